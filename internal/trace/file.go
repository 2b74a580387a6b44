package trace

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileSink persists events into one JSONL file per run.
type FileSink struct {
	dir string
	mu  sync.Mutex
}

func DefaultDir() string {
	return filepath.Join("tmp", "run_logs")
}

func NewFileSink(dir string) (*FileSink, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		trimmed = DefaultDir()
	}
	if err := os.MkdirAll(trimmed, 0o755); err != nil {
		return nil, fmt.Errorf("create trace dir: %w", err)
	}
	return &FileSink{dir: trimmed}, nil
}

func (s *FileSink) filePath(runID string) string {
	return filepath.Join(s.dir, sanitizeRunID(runID)+".jsonl")
}

// Append writes one trace line for the run.
func (s *FileSink) Append(_ context.Context, ev Event) error {
	if s == nil || ev.RunID == "" {
		return nil
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	raw = append(raw, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.filePath(ev.RunID), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(raw)
	return err
}

func (s *FileSink) Close() error { return nil }

// Read returns all persisted trace events for a run.
func (s *FileSink) Read(runID string) ([]Event, error) {
	f, err := os.Open(s.filePath(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return []Event{}, nil
		}
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	defer f.Close()

	out := make([]Event, 0, 64)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue
		}
		out = append(out, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan trace file: %w", err)
	}
	return out, nil
}
