// Package render executes generated scene code and returns the video it produced.
package render

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"
)

// Job is one render request.
type Job struct {
	Source string // program text
	Scene  string // entry point (scene class name); empty uses the renderer default
}

// Artifact is the media produced by a successful render.
type Artifact struct {
	Path     string
	Size     int64
	Duration time.Duration // wall-clock render time
}

// Failure is a structured render failure. Message and Trace are both fed
// into the next corrective prompt, so Trace is already bounded.
type Failure struct {
	Message  string
	Trace    string
	TimedOut bool
}

func (f *Failure) Error() string {
	return f.Message
}

// Renderer turns source code into at most one artifact per call.
type Renderer interface {
	Render(ctx context.Context, job Job) (*Artifact, error)
}

// Truncate keeps the last limit bytes of trace, which is where Python puts
// the exception. A marker records how much was dropped. The cut never splits
// a rune, so the kept tail may be a few bytes shorter than limit.
func Truncate(trace string, limit int) string {
	if limit <= 0 || len(trace) <= limit {
		return trace
	}
	dropped := len(trace) - limit
	for dropped < len(trace) && !utf8.RuneStart(trace[dropped]) {
		dropped++
	}
	return fmt.Sprintf("...[%d bytes truncated]...\n%s", dropped, trace[dropped:])
}
