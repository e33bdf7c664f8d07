// Package log provides the run journal: one JSON line per loop event in
// .manimgpt/log.jsonl, shared by every session started in the project.
package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileName is the journal file inside the .manimgpt directory.
const FileName = "log.jsonl"

// Event names.
const (
	EventSessionStarted  = "session_started"
	EventScenarioDrafted = "scenario_drafted"
	EventCodingStarted   = "coding_started"
	EventFormatError     = "format_error"
	EventRenderFailed    = "render_failed"
	EventRenderSucceeded = "render_succeeded"
	EventPublishFailed   = "publish_failed"
	EventReviewRejected  = "review_rejected"
	EventReviewAccepted  = "review_accepted"
	EventAttemptsMaxed   = "attempts_exhausted"
	EventSessionFinished = "session_finished"
)

// Entry is one journal line.
type Entry struct {
	Time       time.Time      `json:"time"`
	Event      string         `json:"event"`
	SessionID  string         `json:"session,omitempty"`
	Phase      string         `json:"phase,omitempty"`
	Artifact   string         `json:"artifact,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Error      string         `json:"error,omitempty"`
	Attempt    int            `json:"attempt,omitempty"`
	DurationMs int64          `json:"duration_ms,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// Journal appends entries to a JSONL file. Safe for concurrent use by the
// sessions of one process.
type Journal struct {
	path string
	mu   sync.Mutex
}

// Open returns the journal of the project in dir, creating .manimgpt/ if
// needed. An existing journal is appended to, never truncated.
func Open(dir string) (*Journal, error) {
	stateDir := filepath.Join(dir, ".manimgpt")
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("create .manimgpt directory: %w", err)
	}
	return &Journal{path: filepath.Join(stateDir, FileName)}, nil
}

// Path returns the journal file location.
func (j *Journal) Path() string { return j.path }

// Append writes e as one line, stamping it with the current UTC time when
// e.Time is zero. A nil Journal discards the entry.
func (j *Journal) Append(e Entry) error {
	if j == nil {
		return nil
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("write journal entry: %w", err)
	}
	return nil
}

// ReadAll parses every entry in write order. A missing file is an empty
// journal; a malformed line is an error naming its line number.
func (j *Journal) ReadAll() ([]Entry, error) {
	return j.read(func(Entry) bool { return true })
}

// ForSession returns the entries of one session, in write order.
func (j *Journal) ForSession(sessionID string) ([]Entry, error) {
	return j.read(func(e Entry) bool { return e.SessionID == sessionID })
}

func (j *Journal) read(keep func(Entry) bool) ([]Entry, error) {
	f, err := os.Open(j.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	entries := []Entry{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for n := 1; scanner.Scan(); n++ {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("parse journal line %d: %w", n, err)
		}
		if keep(e) {
			entries = append(entries, e)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	return entries, nil
}
