// Package audit appends one JSON line per admission, revocation,
// update, or sweep to a durable log for external inspection.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Record is one audit log entry.
type Record struct {
	ID        string            `json:"id"`
	Time      time.Time         `json:"time"`
	Operation string            `json:"operation"`
	Zone      string            `json:"zone,omitempty"`
	MAC       string            `json:"mac,omitempty"`
	Detail    map[string]string `json:"detail,omitempty"`
}

// Log is an append-only JSONL file.
type Log struct {
	path string
	mu   sync.Mutex
}

// NewLog creates an audit log at path. The file is created on first
// append.
func NewLog(path string) *Log {
	return &Log{path: path}
}

// Append writes the record as one JSON line. ID and Time are filled
// in when empty.
func (l *Log) Append(rec Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Time.IsZero() {
		rec.Time = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create audit log directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode audit record: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}
	return nil
}
