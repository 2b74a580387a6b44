// Package trace persists run-scoped observation events. Tracing is
// write-only from the loop's point of view.
package trace

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var runIDSanitizer = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// Stages after which a run emits nothing more.
var terminalStages = map[string]bool{
	"answer":    true,
	"exhausted": true,
	"failed":    true,
}

// Event is a structured run trace event persisted as JSON.
type Event struct {
	Timestamp string         `json:"timestamp"`
	RunID     string         `json:"run_id"`
	Source    string         `json:"source"`
	Stage     string         `json:"stage"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// NewEvent stamps an event with the current UTC time.
func NewEvent(runID, source, stage string, fields map[string]any) Event {
	ev := Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		RunID:     strings.TrimSpace(runID),
		Source:    strings.TrimSpace(source),
		Stage:     strings.TrimSpace(stage),
	}
	if len(fields) > 0 {
		ev.Fields = fields
	}
	return ev
}

// Terminal reports whether ev closes its run.
func (e Event) Terminal() bool { return terminalStages[e.Stage] }

// Sink stores trace events.
type Sink interface {
	Append(ctx context.Context, ev Event) error
	Close() error
}

// NewRunID returns a random run id.
func NewRunID() string { return uuid.NewString() }

func sanitizeRunID(runID string) string {
	id := strings.TrimSpace(runID)
	if id == "" {
		return "unknown"
	}
	return runIDSanitizer.ReplaceAllString(id, "_")
}

// Multi fans events out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Append(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Append(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Config selects the sinks; an empty Config traces nothing.
type Config struct {
	Dir         string   `toml:"dir"`
	PostgresDSN string   `toml:"postgres_dsn"`
	S3          S3Config `toml:"s3"`
}

// Open builds the configured sinks. It returns nil when none is enabled.
func Open(ctx context.Context, cfg Config) (Sink, error) {
	var sinks Multi
	if strings.TrimSpace(cfg.Dir) != "" {
		fs, err := NewFileSink(cfg.Dir)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, fs)
	}
	if strings.TrimSpace(cfg.PostgresDSN) != "" {
		pg, err := NewPostgresSink(ctx, cfg.PostgresDSN)
		if err != nil {
			_ = sinks.Close()
			return nil, fmt.Errorf("postgres trace sink: %w", err)
		}
		sinks = append(sinks, pg)
	}
	if cfg.S3.Enabled() {
		s3, err := NewS3Sink(cfg.S3)
		if err != nil {
			_ = sinks.Close()
			return nil, fmt.Errorf("s3 trace sink: %w", err)
		}
		sinks = append(sinks, s3)
	}
	switch len(sinks) {
	case 0:
		return nil, nil
	case 1:
		return sinks[0], nil
	}
	return sinks, nil
}
