package osprey

import (
	"context"
	"fmt"

	"github.com/divinevideo/osprey/querylang"
)

// GroupByApproximateCountQuery estimates the cardinality of a dimension
// over the matching rows. The fixed-precision HLL-12 sketch (~1% typical
// error) fits the dashboard use of showing entity counts.
type GroupByApproximateCountQuery struct {
	BaseQuery
	Dimension string `json:"dimension"`
}

// Execute returns the approximate distinct count, or -1 if the store
// returned no usable value.
func (q *GroupByApproximateCountQuery) Execute(ctx context.Context, backend *QueryBackend) (int64, error) {
	where, err := backend.BuildWhereClause(q.Start, q.End, q.QueryFilter, q.Entity, nil)
	if err != nil {
		return -1, err
	}

	sql := fmt.Sprintf(
		"SELECT uniqHLL12(%s) AS `cardinality` FROM %s WHERE %s",
		querylang.QuoteIdentifier(q.Dimension), backend.FullTable(), where,
	)

	rows, err := backend.Query(ctx, sql)
	if err != nil {
		return -1, err
	}
	if len(rows) > 0 {
		if cardinality, ok := toInt64(rows[0]["cardinality"]); ok {
			return cardinality, nil
		}
	}
	return -1, nil
}
