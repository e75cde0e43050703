// Package factory wires the analytics store driver and constructs query
// backends from configuration. It is the only place that knows which
// concrete driver backs the Client interface.
package factory

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"go.uber.org/zap"

	"github.com/divinevideo/osprey"
)

// Deps are the external collaborators a backend borrows: the DSL parser
// and the engine's feature mapping.
type Deps struct {
	ParseQueryFilter osprey.ParseFunc
	Features         osprey.FeatureMapper
}

// OpenClickHouse opens a database handle for the configured analytics
// store and verifies connectivity.
func OpenClickHouse(cfg *osprey.Config) (*sql.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	db := clickhouse.OpenDB(&clickhouse.Options{
		Addr:     []string{fmt.Sprintf("%s:%d", cfg.ClickHouse.Host, cfg.ClickHouse.Port)},
		Protocol: clickhouse.HTTP,
		Auth: clickhouse.Auth{
			Database: cfg.ClickHouse.Database,
			Username: cfg.ClickHouse.Username,
			Password: cfg.ClickHouse.Password,
		},
		DialTimeout: cfg.ClickHouse.DialTimeout,
		Settings: clickhouse.Settings{
			"max_execution_time": int(cfg.Query.Timeout.Seconds()),
		},
	})
	db.SetMaxOpenConns(cfg.ClickHouse.MaxOpenConns)
	db.SetMaxIdleConns(cfg.ClickHouse.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ClickHouse.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ClickHouse.DialTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach analytics store: %w", err)
	}

	zap.S().Infow("connected to analytics store",
		"host", cfg.ClickHouse.Host,
		"port", cfg.ClickHouse.Port,
		"database", cfg.ClickHouse.Database,
	)
	return db, nil
}

// NewQueryBackend builds a QueryBackend over an open database handle.
func NewQueryBackend(cfg *osprey.Config, db *sql.DB, deps Deps) (*osprey.QueryBackend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if db == nil {
		return nil, fmt.Errorf("database handle is required")
	}

	client := &sqlClient{db: db}
	backend := osprey.NewQueryBackend(client, cfg.ClickHouse.Database, cfg.ClickHouse.Table, osprey.BackendOptions{
		ParseQueryFilter:             deps.ParseQueryFilter,
		Features:                     deps.Features,
		MaxHistoricalQueryWindowDays: cfg.Query.MaxHistoricalQueryWindowDays,
	})
	return backend, nil
}

// sqlClient adapts a database/sql handle to the Client interface,
// returning every column value as-is.
type sqlClient struct {
	db *sql.DB
}

func (c *sqlClient) Query(ctx context.Context, query string) (*osprey.QueryResult, error) {
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := &osprey.QueryResult{Columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
