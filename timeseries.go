package osprey

import (
	"context"
	"fmt"
	"strings"

	"github.com/divinevideo/osprey/querylang"
)

// TimeseriesQuery buckets matching rows by a time granularity and counts
// them, optionally as per-dimension entity-filtered counts.
type TimeseriesQuery struct {
	BaseQuery
	Granularity           string   `json:"granularity"`
	AggregationDimensions []string `json:"aggregation_dimensions,omitempty"`
}

var granularityExprs = map[string]string{
	"minute":         "toStartOfMinute(`__time`)",
	"fifteen_minute": "toStartOfFifteenMinutes(`__time`)",
	"hour":           "toStartOfHour(`__time`)",
	"day":            "toStartOfDay(`__time`)",
	"week":           "toStartOfWeek(`__time`)",
	"month":          "toStartOfMonth(`__time`)",
	"all":            "'all'",
}

func granularityExpr(granularity string) string {
	if expr, ok := granularityExprs[granularity]; ok {
		return expr
	}
	// Anything else is treated as an interval unit.
	return fmt.Sprintf("toStartOfInterval(`__time`, INTERVAL 1 %s)", granularity)
}

// Execute runs the timeseries query and returns the raw bucketed rows.
func (q *TimeseriesQuery) Execute(ctx context.Context, backend *QueryBackend) ([]Row, error) {
	where, err := backend.BuildWhereClause(q.Start, q.End, q.QueryFilter, q.Entity, nil)
	if err != nil {
		return nil, err
	}

	aggSQL := "count(*) AS `count`"
	if len(q.AggregationDimensions) > 0 && q.Entity != nil {
		idLit := querylang.FormatValue(q.Entity.ID)
		parts := make([]string, 0, len(q.AggregationDimensions))
		for _, dim := range q.AggregationDimensions {
			col := querylang.QuoteIdentifier(dim)
			parts = append(parts, fmt.Sprintf("countIf(%s = %s) AS %s", col, idLit, col))
		}
		aggSQL = strings.Join(parts, ", ")
	}

	sql := fmt.Sprintf(
		"SELECT %s AS `timestamp`, %s FROM %s WHERE %s GROUP BY `timestamp` ORDER BY `timestamp` ASC",
		granularityExpr(q.Granularity), aggSQL, backend.FullTable(), where,
	)

	return backend.Query(ctx, sql)
}
