package osprey

import (
	"context"
	"fmt"
)

// PaginatedScanQuery pages through matching action ids ordered by time.
// The cursor encodes the timestamp of the extra row fetched beyond the
// limit, which is not returned on the current page; callers must keep the
// order identical across pages.
type PaginatedScanQuery struct {
	BaseQuery
	Limit    int      `json:"limit"`
	NextPage *string  `json:"next_page,omitempty"`
	Order    Ordering `json:"order"`
}

const defaultScanLimit = 100

// Execute fetches one page. Ability filters from the ACL layer are ANDed
// into the WHERE clause.
func (q *PaginatedScanQuery) Execute(ctx context.Context, backend *QueryBackend, abilities []Ability) (*PaginatedScanResult, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultScanLimit
	}
	paginatedLimit := limit + 1

	order := q.Order
	if order == "" {
		order = OrderingDescending
	}
	if order != OrderingAscending && order != OrderingDescending {
		return nil, fmt.Errorf("unknown ordering %q", order)
	}

	start, end := q.Start, q.End
	if q.NextPage != nil && *q.NextPage != "" {
		cursorTime, err := decodePageCursor(*q.NextPage)
		if err != nil {
			return nil, err
		}
		if order == OrderingAscending {
			start = cursorTime
		} else {
			end = cursorTime
		}
	}

	where, err := backend.BuildWhereClause(start, end, q.QueryFilter, q.Entity, abilities)
	if err != nil {
		return nil, err
	}

	sql := fmt.Sprintf(
		"SELECT `__action_id`, `__time` FROM %s WHERE %s ORDER BY `__time` %s LIMIT %d",
		backend.FullTable(), where, order.direction(), paginatedLimit,
	)

	rows, err := backend.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return &PaginatedScanResult{ActionIDs: []int64{}}, nil
	}

	var nextPage *string
	if len(rows) == paginatedLimit {
		last := rows[len(rows)-1]
		rows = rows[:len(rows)-1]
		ms, ok := toUnixMilli(last["__time"])
		if !ok {
			return nil, fmt.Errorf("unexpected __time value %v", last["__time"])
		}
		cursor := encodePageCursor(ms)
		nextPage = &cursor
	}

	actionIDs := make([]int64, 0, len(rows))
	for _, row := range rows {
		id, ok := toInt64(row["__action_id"])
		if !ok {
			return nil, fmt.Errorf("unexpected __action_id value %v", row["__action_id"])
		}
		actionIDs = append(actionIDs, id)
	}

	return &PaginatedScanResult{ActionIDs: actionIDs, NextPage: nextPage}, nil
}
