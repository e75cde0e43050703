// Package sink writes rule-execution events to the analytics table in
// batches, mirroring on the ingest side the wide-row schema the query
// backend reads.
package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/divinevideo/osprey/querylang"
)

// DefaultBatchSize is the buffer threshold before a flush.
const DefaultBatchSize = 500

// Event is one rule-execution result headed for the analytics table.
type Event struct {
	Timestamp time.Time
	ActionID  int64
	// Features are the extracted feature columns of the wide row.
	Features map[string]any
	Verdicts []string
	RuleHits map[string]bool
}

// EventSink buffers events and flushes them as one multi-row INSERT when
// the buffer reaches the batch size or on Stop.
type EventSink struct {
	db        *sql.DB
	database  string
	table     string
	batchSize int

	mu     sync.Mutex
	buffer []map[string]any
}

// NewEventSink builds a sink over an open database handle. A non-positive
// batch size selects the default.
func NewEventSink(db *sql.DB, database, table string, batchSize int) *EventSink {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &EventSink{
		db:        db,
		database:  database,
		table:     table,
		batchSize: batchSize,
	}
}

// Push buffers one event, flushing if the batch size is reached.
func (s *EventSink) Push(ctx context.Context, event Event) error {
	row, err := eventToRow(event)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffer = append(s.buffer, row)
	if len(s.buffer) >= s.batchSize {
		return s.flushLocked(ctx)
	}
	return nil
}

// Flush writes any buffered events immediately.
func (s *EventSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked(ctx)
}

// Stop flushes the remaining buffer. The database handle is borrowed and
// stays open.
func (s *EventSink) Stop(ctx context.Context) error {
	return s.Flush(ctx)
}

func eventToRow(event Event) (map[string]any, error) {
	row := make(map[string]any, len(event.Features)+4)
	for name, value := range event.Features {
		row[name] = value
	}
	row["__time"] = event.Timestamp.UTC()
	row["__action_id"] = event.ActionID

	if len(event.Verdicts) > 0 {
		encoded, err := json.Marshal(event.Verdicts)
		if err != nil {
			return nil, fmt.Errorf("failed to encode verdicts: %w", err)
		}
		row["__verdicts"] = string(encoded)
	}
	if len(event.RuleHits) > 0 {
		encoded, err := json.Marshal(event.RuleHits)
		if err != nil {
			return nil, fmt.Errorf("failed to encode rule hits: %w", err)
		}
		row["__rule_hits"] = string(encoded)
	}
	return row, nil
}

func (s *EventSink) flushLocked(ctx context.Context) error {
	if len(s.buffer) == 0 {
		return nil
	}
	count := len(s.buffer)
	insertSQL, args := buildInsert(s.database, s.table, s.buffer)
	// The buffer is cleared regardless of outcome so a poison batch cannot
	// wedge the sink.
	s.buffer = s.buffer[:0]

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		zap.S().Errorw("event sink flush failed", "rows", count, "error", err)
		return fmt.Errorf("failed to begin insert batch: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		_ = tx.Rollback()
		zap.S().Errorw("event sink flush failed", "rows", count, "error", err)
		return fmt.Errorf("failed to prepare insert batch: %w", err)
	}
	for _, rowArgs := range args {
		if _, err := stmt.ExecContext(ctx, rowArgs...); err != nil {
			_ = stmt.Close()
			_ = tx.Rollback()
			zap.S().Errorw("event sink flush failed", "rows", count, "error", err)
			return fmt.Errorf("failed to append insert batch: %w", err)
		}
	}
	if err := stmt.Close(); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to close insert batch: %w", err)
	}
	if err := tx.Commit(); err != nil {
		zap.S().Errorw("event sink flush failed", "rows", count, "error", err)
		return fmt.Errorf("failed to commit insert batch: %w", err)
	}

	zap.S().Debugw("flushed events to analytics store", "rows", count)
	return nil
}

// buildInsert computes the column union over the buffered rows and lays
// each row out against it, with NULL for absent columns. The row-identity
// columns lead; feature columns follow sorted.
func buildInsert(database, table string, rows []map[string]any) (string, [][]any) {
	seen := map[string]struct{}{"__time": {}, "__action_id": {}}
	var extra []string
	for _, row := range rows {
		for col := range row {
			if _, ok := seen[col]; !ok {
				seen[col] = struct{}{}
				extra = append(extra, col)
			}
		}
	}
	sort.Strings(extra)
	columns := append([]string{"__time", "__action_id"}, extra...)

	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = querylang.QuoteIdentifier(col)
		placeholders[i] = "?"
	}
	insertSQL := fmt.Sprintf(
		"INSERT INTO %s.%s (%s) VALUES (%s)",
		database, table, strings.Join(quoted, ", "), strings.Join(placeholders, ", "),
	)

	args := make([][]any, 0, len(rows))
	for _, row := range rows {
		rowArgs := make([]any, len(columns))
		for i, col := range columns {
			rowArgs[i] = row[col]
		}
		args = append(args, rowArgs)
	}
	return insertSQL, args
}
