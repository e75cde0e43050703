package osprey

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/divinevideo/osprey/querylang"
)

// timeNow is a test hook for the historical window cap.
var timeNow = time.Now

// TopNQuery ranks the values of a dimension by row count and, when the
// window allows, compares against the immediately preceding period of the
// same duration.
type TopNQuery struct {
	BaseQuery
	Dimension string  `json:"dimension"`
	Limit     int     `json:"limit"`
	Precision float64 `json:"precision"`
}

const defaultTopNLimit = 100

// Execute runs the current period and, unless disabled or capped by the
// historical window, the previous period, returning both with a diff.
func (q *TopNQuery) Execute(ctx context.Context, backend *QueryBackend, calculatePreviousPeriod bool) (*TopNPoPResponse, error) {
	current, err := q.executeSinglePeriod(ctx, backend, q.Start, q.End)
	if err != nil {
		return nil, err
	}

	periodDuration := q.End.Sub(q.Start)
	previousStart := q.Start.Add(-periodDuration)
	previousEnd := q.Start

	cutoff := timeNow().UTC().AddDate(0, 0, -backend.maxHistoricalQueryWindowDays)
	if !calculatePreviousPeriod || previousStart.UTC().Before(cutoff) {
		return &TopNPoPResponse{CurrentPeriod: current}, nil
	}

	previous, err := q.executeSinglePeriod(ctx, backend, previousStart, previousEnd)
	if err != nil {
		return nil, err
	}
	return q.analyzePoPResults(current, previous), nil
}

func (q *TopNQuery) limit() int {
	if q.Limit <= 0 {
		return defaultTopNLimit
	}
	return q.Limit
}

// executeSinglePeriod returns at most one PeriodData; a period with no
// rows yields an empty slice.
func (q *TopNQuery) executeSinglePeriod(ctx context.Context, backend *QueryBackend, start, end time.Time) ([]PeriodData, error) {
	where, err := backend.BuildWhereClause(start, end, q.QueryFilter, q.Entity, nil)
	if err != nil {
		return nil, err
	}

	sql := fmt.Sprintf(
		"SELECT %s AS `dim_value`, count(*) AS `count` FROM %s WHERE %s GROUP BY `dim_value` ORDER BY `count` DESC LIMIT %d",
		q.dimensionExpression(), backend.FullTable(), where, q.limit(),
	)

	rows, err := backend.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	result := make([]DimensionData, 0, len(rows))
	for _, row := range rows {
		count, _ := toInt64(row["count"])
		result = append(result, DimensionData{
			Count:     count,
			Dimension: q.Dimension,
			Value:     row["dim_value"],
		})
	}
	return []PeriodData{{Timestamp: start, Result: result}}, nil
}

// dimensionExpression buckets float dimensions when a precision is set.
// Precision values should be reciprocals of integers; anything else loses
// resolution in the floor.
func (q *TopNQuery) dimensionExpression() string {
	if q.Precision > 0 {
		inverse := int(1 / q.Precision)
		return fmt.Sprintf("floor(%s * %d) / %d", querylang.QuoteIdentifier(q.Dimension), inverse, inverse)
	}
	return querylang.QuoteIdentifier(q.Dimension)
}

func (q *TopNQuery) analyzePoPResults(current, previous []PeriodData) *TopNPoPResponse {
	if len(previous) == 0 {
		return &TopNPoPResponse{CurrentPeriod: current}
	}

	// Each period list holds a single PeriodData; the pairwise walk keeps
	// the response lists parallel.
	pairs := len(current)
	if len(previous) < pairs {
		pairs = len(previous)
	}

	comparison := make([]ComparisonData, 0, pairs)
	for i := 0; i < pairs; i++ {
		currentMap := countsByDimensionValue(current[i].Result)
		previousMap := countsByDimensionValue(previous[i].Result)

		var diffs []DimensionDifference
		for _, key := range unionKeys(currentMap, previousMap) {
			curr := currentMap[key]
			prev := previousMap[key]
			if curr == 0 {
				// Dimensions that disappeared are not reported.
				continue
			}
			diff := curr - prev
			var pct *float64
			if prev > 0 {
				v := float64(diff) / float64(prev) * 100
				pct = &v
			}
			diffs = append(diffs, DimensionDifference{
				DimensionKey:     dimensionKey(key),
				CurrentCount:     curr,
				PreviousCount:    prev,
				Difference:       diff,
				PercentageChange: pct,
			})
		}
		comparison = append(comparison, ComparisonData{Differences: diffs})
	}

	return &TopNPoPResponse{
		CurrentPeriod:  current,
		PreviousPeriod: previous,
		Comparison:     comparison,
	}
}

func countsByDimensionValue(result []DimensionData) map[any]int64 {
	counts := make(map[any]int64, len(result))
	for _, item := range result {
		counts[item.Value] = item.Count
	}
	return counts
}

// unionKeys returns the union of both key sets in a stable order so the
// response is deterministic.
func unionKeys(a, b map[any]int64) []any {
	keys := make([]any, 0, len(a)+len(b))
	for k := range a {
		keys = append(keys, k)
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		return fmt.Sprint(keys[i]) < fmt.Sprint(keys[j])
	})
	return keys
}

func dimensionKey(v any) *string {
	if v == nil {
		return nil
	}
	s := fmt.Sprint(v)
	return &s
}
