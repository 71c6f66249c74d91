// Package eventlog keeps an append-only journal of chat turns in daily rotated JSONL files.
package eventlog

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
)

//nolint:gochecknoglobals // drop-in encoding/json replacement
var json = jsoniter.ConfigCompatibleWithStandardLibrary

const filePrefix = "turns-"

// Record is one journaled turn. Message text is not kept.
//
//nolint:govet // fieldalignment: JSON field order preferred
type Record struct {
	Timestamp  time.Time `json:"timestamp"`
	TurnID     string    `json:"turn_id"`
	SessionID  string    `json:"session_id"`
	ThreadID   string    `json:"thread_id,omitempty"`
	RunID      string    `json:"run_id,omitempty"`
	Outcome    string    `json:"outcome"`
	Status     string    `json:"status,omitempty"`
	Polls      int       `json:"polls"`
	ToolCalls  int       `json:"tool_calls"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}

// Writer appends records to the file for the current day.
type Writer struct {
	logDir      string
	currentFile *os.File
	currentDate string
	mu          sync.Mutex
	now         func() time.Time
}

// NewWriter creates logDir if needed and opens today's file.
func NewWriter(logDir string) (*Writer, error) {
	return newWriter(logDir, time.Now)
}

func newWriter(logDir string, now func() time.Time) (*Writer, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	w := &Writer{logDir: logDir, now: now}
	if err := w.rotateIfNeeded(); err != nil {
		return nil, fmt.Errorf("failed to initialize journal file: %w", err)
	}
	return w, nil
}

// Write appends rec as one JSON line, stamping it when Timestamp is zero.
func (w *Writer) Write(rec Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentFile == nil {
		return fmt.Errorf("journal is closed")
	}
	if err := w.rotateIfNeeded(); err != nil {
		return fmt.Errorf("failed to rotate journal file: %w", err)
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = w.now().UTC()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to serialize record: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.currentFile.Write(data); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}

func (w *Writer) rotateIfNeeded() error {
	date := w.now().Format("2006-01-02")
	if w.currentFile != nil && w.currentDate == date {
		return nil
	}
	if w.currentFile != nil {
		if err := w.currentFile.Close(); err != nil {
			return fmt.Errorf("failed to close journal file: %w", err)
		}
	}

	path := filepath.Join(w.logDir, filePrefix+date+".jsonl")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open journal file %s: %w", path, err)
	}
	w.currentFile = file
	w.currentDate = date
	return nil
}

// Close flushes and closes the current file. Later writes fail.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentFile == nil {
		return nil
	}
	syncErr := w.currentFile.Sync()
	err := w.currentFile.Close()
	w.currentFile = nil
	if err == nil {
		err = syncErr
	}
	if err != nil {
		return fmt.Errorf("failed to close journal file: %w", err)
	}
	return nil
}

// CurrentFile returns the path being written, or "" after Close.
func (w *Writer) CurrentFile() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentFile == nil {
		return ""
	}
	return filepath.Join(w.logDir, filePrefix+w.currentDate+".jsonl")
}

// ReadRecords parses every record in one journal file. Blank lines are skipped.
func ReadRecords(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read journal file: %w", err)
	}

	var records []Record
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for line := 1; scanner.Scan(); line++ {
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("failed to parse record on line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan journal file: %w", err)
	}
	return records, nil
}

// ListFiles returns the journal files in logDir, oldest first.
func ListFiles(logDir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(logDir, filePrefix+"*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("failed to list journal files: %w", err)
	}
	return files, nil
}
