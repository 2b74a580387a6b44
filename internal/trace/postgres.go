package trace

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresSink appends events to the run_traces table.
type PostgresSink struct {
	db *sql.DB

	schemaOnce sync.Once
	schemaErr  error
}

func NewPostgresSink(ctx context.Context, dsn string) (*PostgresSink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresSink{db: db}, nil
}

func (s *PostgresSink) ensureSchema(ctx context.Context) error {
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS run_traces (
  id BIGSERIAL PRIMARY KEY,
  run_id TEXT NOT NULL,
  source TEXT NOT NULL DEFAULT '',
  stage TEXT NOT NULL,
  fields JSONB,
  created_at TIMESTAMP WITH TIME ZONE NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_run_traces_run_id ON run_traces (run_id);
`)
	})
	return s.schemaErr
}

func (s *PostgresSink) Append(ctx context.Context, ev Event) error {
	if s == nil || ev.RunID == "" {
		return nil
	}
	if err := s.ensureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	var fields any
	if len(ev.Fields) > 0 {
		raw, err := json.Marshal(ev.Fields)
		if err != nil {
			return err
		}
		fields = string(raw)
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO run_traces (run_id, source, stage, fields, created_at)
VALUES ($1,$2,$3,$4,$5)`, ev.RunID, ev.Source, ev.Stage, fields, ev.Timestamp)
	return err
}

// Read returns a run's events in insertion order.
func (s *PostgresSink) Read(ctx context.Context, runID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, source, stage, fields, created_at
FROM run_traces WHERE run_id = $1 ORDER BY id`, strings.TrimSpace(runID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Event{}
	for rows.Next() {
		var ev Event
		var fields sql.NullString
		var created sql.NullTime
		if err := rows.Scan(&ev.RunID, &ev.Source, &ev.Stage, &fields, &created); err != nil {
			return nil, err
		}
		if fields.Valid {
			_ = json.Unmarshal([]byte(fields.String), &ev.Fields)
		}
		if created.Valid {
			ev.Timestamp = created.Time.UTC().Format(time.RFC3339Nano)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *PostgresSink) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
