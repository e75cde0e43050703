package osprey

import (
	"fmt"
	"time"
)

// Config consolidates the settings the query backend and sink read at
// startup. Nothing here is consulted at query time; the factory takes a
// snapshot and threads it through constructors.
type Config struct {
	ClickHouse ClickHouseConfig `json:"clickhouse"`
	Query      QueryConfig      `json:"query"`
	Sink       SinkConfig       `json:"sink"`
}

// ClickHouseConfig contains analytics store connection settings.
type ClickHouseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Username        string        `json:"username"`
	Password        string        `json:"password"`
	Database        string        `json:"database"`
	Table           string        `json:"table"`
	DialTimeout     time.Duration `json:"dialTimeout"`
	MaxOpenConns    int           `json:"maxOpenConns"`
	MaxIdleConns    int           `json:"maxIdleConns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime"`
}

// QueryConfig contains query execution settings.
type QueryConfig struct {
	Timeout                      time.Duration `json:"timeout"`
	MaxHistoricalQueryWindowDays int           `json:"maxHistoricalQueryWindowDays"`
}

// SinkConfig contains event sink settings.
type SinkConfig struct {
	BatchSize int `json:"batchSize"`
}

// DefaultConfig returns the standard settings.
func DefaultConfig() *Config {
	return &Config{
		ClickHouse: ClickHouseConfig{
			Host:            "localhost",
			Port:            8123,
			Username:        "default",
			Password:        "",
			Database:        defaultDatabase,
			Table:           defaultTable,
			DialTimeout:     10 * time.Second,
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
		},
		Query: QueryConfig{
			Timeout:                      300 * time.Second,
			MaxHistoricalQueryWindowDays: DefaultMaxHistoricalQueryWindowDays,
		},
		Sink: SinkConfig{
			BatchSize: 500,
		},
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse host must not be empty")
	}
	if c.ClickHouse.Port <= 0 || c.ClickHouse.Port > 65535 {
		return fmt.Errorf("clickhouse port %d out of range", c.ClickHouse.Port)
	}
	if c.ClickHouse.Database == "" {
		return fmt.Errorf("clickhouse database must not be empty")
	}
	if c.ClickHouse.Table == "" {
		return fmt.Errorf("clickhouse table must not be empty")
	}
	if c.Query.Timeout <= 0 {
		return fmt.Errorf("query timeout must be positive")
	}
	if c.Query.MaxHistoricalQueryWindowDays <= 0 {
		return fmt.Errorf("max historical query window must be positive")
	}
	if c.Sink.BatchSize <= 0 {
		return fmt.Errorf("sink batch size must be positive")
	}
	return nil
}
