// Package osprey implements the analytics query backend of the rules
// engine UI: it turns user-authored DSL predicates, entity constraints,
// and permission filters into ClickHouse SQL over the wide events table,
// and post-processes raw rows into typed responses.
package osprey

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/divinevideo/osprey/querylang"
)

// Row is one result row keyed by column name.
type Row map[string]any

// QueryResult is the raw shape returned by the analytics client.
type QueryResult struct {
	Columns []string
	Rows    [][]any
}

// Client executes SQL against the analytics store. Implementations must be
// safe for concurrent use; the backend only borrows the client and never
// mutates it.
type Client interface {
	Query(ctx context.Context, sql string) (*QueryResult, error)
}

// ParseFunc parses and validates a DSL filter string. The parser itself is
// an external collaborator; the backend only invokes it.
type ParseFunc func(queryFilter string) (*querylang.ValidatedQuery, error)

// FeatureMapper exposes the engine's feature-name to entity-type mapping.
// The mapping is read-only from this package's perspective.
type FeatureMapper interface {
	FeatureNameToEntityType() map[string]string
}

// Ability is a permission object scoping what rows a user may see. A nil
// filter means the ability imposes no row constraint.
type Ability interface {
	QueryFilter() *querylang.LegacyFilter
}

// Ordering is the scan direction.
type Ordering string

const (
	OrderingAscending  Ordering = "ASCENDING"
	OrderingDescending Ordering = "DESCENDING"
)

func (o Ordering) direction() string {
	if o == OrderingAscending {
		return "ASC"
	}
	return "DESC"
}

// EntityFilter restricts results to rows where some feature of the given
// entity type equals the entity id. An optional whitelist narrows which
// features participate.
type EntityFilter struct {
	ID             string   `json:"id"`
	Type           string   `json:"type"`
	FeatureFilters []string `json:"feature_filters,omitempty"`
}

// BaseQuery carries the fields common to every query shape.
type BaseQuery struct {
	Start       time.Time     `json:"start"`
	End         time.Time     `json:"end"`
	QueryFilter string        `json:"query_filter"`
	Entity      *EntityFilter `json:"entity,omitempty"`
}

// PaginatedScanResult is the response of a paginated scan. NextPage is nil
// when the scan is exhausted.
type PaginatedScanResult struct {
	ActionIDs []int64 `json:"action_ids"`
	NextPage  *string `json:"next_page"`
}

// DimensionData is one top-N bucket: a count plus the dimension value,
// serialized under the dimension's own name.
type DimensionData struct {
	Count     int64
	Dimension string
	Value     any
}

// MarshalJSON emits {"count": n, "<dimension>": value}.
func (d DimensionData) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"count":     d.Count,
		d.Dimension: d.Value,
	})
}

// PeriodData is the result set of one query period.
type PeriodData struct {
	Timestamp time.Time       `json:"timestamp"`
	Result    []DimensionData `json:"result"`
}

// DimensionDifference compares one dimension value across periods.
// PercentageChange is nil when the previous count was zero.
type DimensionDifference struct {
	DimensionKey     *string  `json:"dimension_key"`
	CurrentCount     int64    `json:"current_count"`
	PreviousCount    int64    `json:"previous_count"`
	Difference       int64    `json:"difference"`
	PercentageChange *float64 `json:"percentage_change"`
}

// ComparisonData holds the differences for one period pair.
type ComparisonData struct {
	Differences []DimensionDifference `json:"differences"`
}

// TopNPoPResponse is the top-N period-over-period response. PreviousPeriod
// and Comparison are absent when the previous window was skipped.
type TopNPoPResponse struct {
	CurrentPeriod  []PeriodData     `json:"current_period"`
	PreviousPeriod []PeriodData     `json:"previous_period,omitempty"`
	Comparison     []ComparisonData `json:"comparison,omitempty"`
}

// BackendOptions configures a QueryBackend beyond its connection identity.
type BackendOptions struct {
	// ParseQueryFilter parses user filter strings. Required for requests
	// that carry a non-empty query filter.
	ParseQueryFilter ParseFunc
	// Features supplies the feature to entity-type mapping used by entity
	// filters. A nil mapper makes every entity filter match nothing.
	Features FeatureMapper
	// MaxHistoricalQueryWindowDays caps how far back a top-N previous
	// period may reach. Zero or negative selects the default of 90.
	MaxHistoricalQueryWindowDays int
}

// QueryBackend bundles the borrowed analytics client with the context a
// request needs: database and table identity, the DSL parser, the feature
// mapping, and the historical window cap. Planners receive it explicitly;
// nothing here reads process-global state.
type QueryBackend struct {
	client                       Client
	database                     string
	table                        string
	parse                        ParseFunc
	features                     FeatureMapper
	maxHistoricalQueryWindowDays int
}

const (
	// DefaultMaxHistoricalQueryWindowDays caps the top-N previous period.
	DefaultMaxHistoricalQueryWindowDays = 90

	defaultDatabase = "osprey"
	defaultTable    = "osprey_events"
)

// NewQueryBackend builds a backend around a client. Empty database/table
// fall back to the standard names.
func NewQueryBackend(client Client, database, table string, opts BackendOptions) *QueryBackend {
	if database == "" {
		database = defaultDatabase
	}
	if table == "" {
		table = defaultTable
	}
	maxDays := opts.MaxHistoricalQueryWindowDays
	if maxDays <= 0 {
		maxDays = DefaultMaxHistoricalQueryWindowDays
	}
	return &QueryBackend{
		client:                       client,
		database:                     database,
		table:                        table,
		parse:                        opts.ParseQueryFilter,
		features:                     opts.Features,
		maxHistoricalQueryWindowDays: maxDays,
	}
}

// FullTable returns the database-qualified table name.
func (b *QueryBackend) FullTable() string {
	return b.database + "." + b.table
}

// Query executes SQL and zips column names with row values.
func (b *QueryBackend) Query(ctx context.Context, sql string) ([]Row, error) {
	queryID := uuid.NewString()
	zap.S().Debugw("executing analytics query", "query_id", queryID, "sql", sql)

	result, err := b.client.Query(ctx, sql)
	if err != nil {
		zap.S().Errorw("analytics query failed", "query_id", queryID, "error", err)
		return nil, &UpstreamError{Cause: err}
	}

	rows := make([]Row, 0, len(result.Rows))
	for _, values := range result.Rows {
		row := make(Row, len(result.Columns))
		for i, col := range result.Columns {
			if i < len(values) {
				row[col] = values[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
