// Package report summarises one session from its transcript and journal.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/freQuensy23-coder/manim-gpt/internal/log"
	"github.com/freQuensy23-coder/manim-gpt/internal/session"
)

// Report holds the aggregated statistics for one session.
type Report struct {
	SessionID       string
	Request         string
	Phase           session.Phase
	Turns           int
	Video           string
	Renders         int
	RenderFailures  int
	FormatErrors    int
	Rejections      int
	PublishFailures int
	Exhausted       int
	RenderTime      time.Duration
	Duration        time.Duration
	Outcome         string // last finish reason, if the session ended
}

// Build aggregates s and its journal events. events may be nil.
func Build(s *session.Session, events []log.Entry) *Report {
	r := &Report{
		SessionID: s.ID,
		Request:   s.Request,
		Phase:     s.Phase,
		Turns:     len(s.Turns),
		Video:     s.LastArtifact,
	}

	for _, e := range events {
		switch e.Event {
		case log.EventRenderSucceeded:
			r.Renders++
			r.RenderTime += time.Duration(e.DurationMs) * time.Millisecond
		case log.EventRenderFailed:
			r.RenderFailures++
		case log.EventFormatError:
			r.FormatErrors++
		case log.EventReviewRejected:
			r.Rejections++
		case log.EventPublishFailed:
			r.PublishFailures++
		case log.EventAttemptsMaxed:
			r.Exhausted++
		case log.EventSessionFinished:
			r.Outcome = e.Reason
		}
	}
	r.Duration = computeDuration(events)
	return r
}

// FormatReport produces a terminal-friendly, human-readable summary string.
func FormatReport(r *Report) string {
	var b strings.Builder

	b.WriteString("========================================\n")
	b.WriteString("  manimgpt session report\n")
	b.WriteString("========================================\n")
	b.WriteString("\n")

	fmt.Fprintf(&b, "Session:     %s\n", r.SessionID)
	if r.Request != "" {
		fmt.Fprintf(&b, "Request:     %s\n", r.Request)
	}
	fmt.Fprintf(&b, "Phase:       %s\n", r.Phase)
	if r.Outcome != "" {
		fmt.Fprintf(&b, "Outcome:     %s\n", r.Outcome)
	}
	fmt.Fprintf(&b, "Turns:       %d\n", r.Turns)
	b.WriteString("\n")

	fmt.Fprintf(&b, "Renders:     %d succeeded\n", r.Renders)
	fmt.Fprintf(&b, "  Failed:    %d\n", r.RenderFailures)
	fmt.Fprintf(&b, "  No code:   %d\n", r.FormatErrors)
	if r.Rejections > 0 {
		fmt.Fprintf(&b, "Rejections:  %d\n", r.Rejections)
	}
	if r.PublishFailures > 0 {
		fmt.Fprintf(&b, "Uploads:     %d failed\n", r.PublishFailures)
	}
	if r.Exhausted > 0 {
		fmt.Fprintf(&b, "Budget:      exhausted %d time(s)\n", r.Exhausted)
	}
	b.WriteString("\n")

	if r.Video != "" {
		fmt.Fprintf(&b, "Video:       %s\n", r.Video)
	}
	if r.RenderTime > 0 {
		fmt.Fprintf(&b, "Render time: %s\n", formatDuration(r.RenderTime))
	}
	if r.Duration > 0 {
		fmt.Fprintf(&b, "Duration:    %s\n", formatDuration(r.Duration))
	}

	b.WriteString("========================================\n")

	return b.String()
}

// WriteReport writes the formatted report to {dir}/<session>.md.
// Creates the directory if it does not exist.
func WriteReport(dir string, r *Report) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating report directory: %w", err)
	}

	path := filepath.Join(dir, r.SessionID+".md")
	if err := os.WriteFile(path, []byte(FormatReport(r)), 0644); err != nil {
		return "", fmt.Errorf("writing report file: %w", err)
	}
	return path, nil
}

// computeDuration spans the first session_started event to the last event.
func computeDuration(events []log.Entry) time.Duration {
	var start, end time.Time
	for _, e := range events {
		if e.Event == log.EventSessionStarted && start.IsZero() {
			start = e.Time
		}
		if !e.Time.IsZero() {
			end = e.Time
		}
	}
	if start.IsZero() || end.IsZero() {
		return 0
	}
	d := end.Sub(start)
	if d < 0 {
		return 0
	}
	return d
}

// formatDuration produces a human-readable duration string such as "5m 32s"
// or "1h 12m 5s". Sub-second durations are shown as "< 1s".
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "< 1s"
	}

	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
