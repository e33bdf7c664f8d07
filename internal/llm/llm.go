// Package llm defines the conversational model the orchestrator talks to and
// its Gemini implementation.
package llm

import (
	"context"
	"errors"

	"github.com/freQuensy23-coder/manim-gpt/internal/stream"
)

// ErrNoAPIKey is returned when a client is built without credentials.
var ErrNoAPIKey = errors.New("API key not configured")

// Attachment references media already uploaded to the provider.
type Attachment struct {
	URI      string
	MIMEType string
}

// Prompt is one user turn. The attachment, when present, precedes the text.
type Prompt struct {
	Text       string
	Attachment *Attachment
}

// Conversation is a handle to provider-side history. Every Stream call appends
// one user turn and one model turn to it.
//
// Callers must not run two Stream calls on the same conversation at once.
type Conversation interface {
	ID() string
	Stream(ctx context.Context, p Prompt) (<-chan stream.Chunk, <-chan error)
}

// Model opens new conversations.
type Model interface {
	Open(ctx context.Context) (Conversation, error)
}
