// Package session holds per-session conversation state and its stores.
package session

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/freQuensy23-coder/manim-gpt/internal/llm"
	"github.com/freQuensy23-coder/manim-gpt/internal/stream"
)

var (
	// ErrInvalidID is returned for identifiers that are empty, too long or
	// contain characters outside [A-Za-z0-9_.:-].
	ErrInvalidID = errors.New("invalid session id")
	// ErrNotFound is returned by stores for unknown session ids.
	ErrNotFound = errors.New("session not found")
	// ErrNoOpenTurn is returned when output arrives with no turn to hold it.
	ErrNoOpenTurn = errors.New("session has no open turn")
)

const maxIDLength = 128

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_.:-]+$`)

// Phase is the position of a session in the generation cycle.
type Phase int

const (
	AwaitTask Phase = iota
	CodingLoop
	AwaitFeedback
	ReviewLoop
	Finished
)

var phaseNames = [...]string{
	AwaitTask:     "await_task",
	CodingLoop:    "coding_loop",
	AwaitFeedback: "await_feedback",
	ReviewLoop:    "review_loop",
	Finished:      "finished",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// ParsePhase is the inverse of Phase.String.
func ParsePhase(s string) (Phase, error) {
	for i, name := range phaseNames {
		if name == s {
			return Phase(i), nil
		}
	}
	return AwaitTask, fmt.Errorf("unknown phase %q", s)
}

// Turn is one user message and everything produced in reply to it.
type Turn struct {
	User      string
	Answer    string // concatenated answer chunks only
	Reasoning string
	Notice    string // system notices appended by the orchestrator
	Closed    bool
	At        time.Time
}

// Session is the state of one conversation with the orchestrator. It is not
// safe for concurrent use; the orchestrator serialises access per session.
type Session struct {
	ID           string
	Phase        Phase
	Conversation llm.Conversation // nil until the first message is handled
	LastArtifact string
	Request      string
	Turns        []Turn
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Summary is the listing view of a session.
type Summary struct {
	ID           string
	Request      string
	Phase        Phase
	Turns        int
	LastArtifact string
	UpdatedAt    time.Time
}

// NewID returns a fresh random session id.
func NewID() string {
	return uuid.New().String()
}

// ValidateID checks id against the accepted identifier format.
func ValidateID(id string) error {
	if id == "" || len(id) > maxIDLength || !idPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// New creates an empty session waiting for its task.
func New(id string) (*Session, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	now := time.Now()
	return &Session{ID: id, Phase: AwaitTask, CreatedAt: now, UpdatedAt: now}, nil
}

// Begin closes any open turn and opens a new one for user.
func (s *Session) Begin(user string) {
	s.Close()
	s.Turns = append(s.Turns, Turn{User: user, At: time.Now()})
	s.UpdatedAt = time.Now()
}

// Close marks the open turn, if any, as complete.
func (s *Session) Close() {
	if t := s.open(); t != nil {
		t.Closed = true
	}
}

func (s *Session) open() *Turn {
	if len(s.Turns) == 0 {
		return nil
	}
	t := &s.Turns[len(s.Turns)-1]
	if t.Closed {
		return nil
	}
	return t
}

// AppendChunk adds streamed output to the open turn.
func (s *Session) AppendChunk(c stream.Chunk) error {
	t := s.open()
	if t == nil {
		return ErrNoOpenTurn
	}
	if c.Kind == stream.Reasoning {
		t.Reasoning += c.Text
	} else {
		t.Answer += c.Text
	}
	s.UpdatedAt = time.Now()
	return nil
}

// Note appends a system notice to the open turn.
func (s *Session) Note(text string) error {
	t := s.open()
	if t == nil {
		return ErrNoOpenTurn
	}
	t.Notice += text
	s.UpdatedAt = time.Now()
	return nil
}

// Snapshot returns a copy that shares no mutable state with s. The
// conversation handle is left out.
func (s *Session) Snapshot() *Session {
	cp := *s
	cp.Conversation = nil
	cp.Turns = append([]Turn(nil), s.Turns...)
	return &cp
}

// Summarize returns the listing view of s.
func (s *Session) Summarize() Summary {
	return Summary{
		ID:           s.ID,
		Request:      s.Request,
		Phase:        s.Phase,
		Turns:        len(s.Turns),
		LastArtifact: s.LastArtifact,
		UpdatedAt:    s.UpdatedAt,
	}
}
