// Package ui provides terminal UI components for manimgpt.
// This file implements the progress display shown during "generate".
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/freQuensy23-coder/manim-gpt/internal/session"
)

// Status represents where one request is in its run.
type Status int

const (
	StatusQueued  Status = iota // Waiting for a free slot
	StatusRunning               // Session in progress
	StatusDone                  // Video accepted
	StatusFailed                // Session ended with an error
)

// RequestState holds the display state of one generate request.
type RequestState struct {
	Request string
	Status  Status
	Phase   session.Phase
	Elapsed time.Duration
	Detail  string // video path or error text once finished
}

// ProgressDisplay manages a live-updating terminal progress view.
type ProgressDisplay struct {
	mu          sync.Mutex
	w           io.Writer
	items       []*RequestState
	started     bool
	isTTY       bool
	linesDrawn  int
	startTimes  map[int]time.Time
	lastPrinted map[int]string // last printed line per request (non-TTY)
}

// NewProgressDisplay creates a ProgressDisplay for requests writing to
// stdout.
func NewProgressDisplay(requests []string) *ProgressDisplay {
	return newProgressDisplay(os.Stdout, requests, term.IsTerminal(int(os.Stdout.Fd())))
}

func newProgressDisplay(w io.Writer, requests []string, tty bool) *ProgressDisplay {
	p := &ProgressDisplay{
		w:           w,
		isTTY:       tty,
		startTimes:  make(map[int]time.Time),
		lastPrinted: make(map[int]string),
	}
	for _, r := range requests {
		p.items = append(p.items, &RequestState{Request: r})
	}
	return p
}

// Start draws the initial progress display.
func (p *ProgressDisplay) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.started = true
	p.render()
}

// SetPhase marks request i as running in phase.
func (p *ProgressDisplay) SetPhase(i int, phase session.Phase) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if i < 0 || i >= len(p.items) {
		return
	}
	item := p.items[i]
	if item.Status == StatusQueued {
		p.startTimes[i] = time.Now()
	}
	item.Status = StatusRunning
	item.Phase = phase

	if p.started {
		p.render()
	}
}

// Complete records the outcome of request i. detail is the video path on
// success; err, when non-nil, marks the request failed.
func (p *ProgressDisplay) Complete(i int, detail string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if i < 0 || i >= len(p.items) {
		return
	}
	item := p.items[i]
	if err != nil {
		item.Status = StatusFailed
		item.Detail = err.Error()
	} else {
		item.Status = StatusDone
		item.Detail = detail
	}
	if start, ok := p.startTimes[i]; ok {
		item.Elapsed = time.Since(start)
	}

	if p.started {
		p.render()
	}
}

// Finish moves the cursor below the display and prints a summary line.
func (p *ProgressDisplay) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isTTY && p.linesDrawn > 0 {
		fmt.Fprint(p.w, "\n")
	}

	done, failed := 0, 0
	for _, item := range p.items {
		switch item.Status {
		case StatusDone:
			done++
		case StatusFailed:
			failed++
		}
	}

	fmt.Fprintf(p.w, "\nDone: %d/%d video(s)", done, len(p.items))
	if failed > 0 {
		fmt.Fprintf(p.w, ", %d failed", failed)
	}
	fmt.Fprintln(p.w)
}

func (p *ProgressDisplay) render() {
	if !p.isTTY {
		p.renderPlain()
		return
	}
	p.renderTTY()
}

// renderTTY redraws every line in place using ANSI escape codes.
func (p *ProgressDisplay) renderTTY() {
	if p.linesDrawn > 0 {
		fmt.Fprintf(p.w, "\033[%dA", p.linesDrawn)
	}

	var buf strings.Builder
	buf.WriteString("\033[2K\033[1mmanimgpt generate\033[0m\n")
	buf.WriteString("\033[2K\n")
	for i, item := range p.items {
		buf.WriteString("\033[2K")
		buf.WriteString(formatLine(i, item, p.startTimes))
		buf.WriteString("\n")
	}

	fmt.Fprint(p.w, buf.String())
	p.linesDrawn = len(p.items) + 2
}

// renderPlain writes one line per state change, for CI and pipes.
func (p *ProgressDisplay) renderPlain() {
	for i, item := range p.items {
		if item.Status == StatusQueued {
			continue
		}
		line := formatLinePlain(i, item)
		if p.lastPrinted[i] == line {
			continue
		}
		fmt.Fprintln(p.w, line)
		p.lastPrinted[i] = line
	}
}

func formatLine(i int, item *RequestState, startTimes map[int]time.Time) string {
	return fmt.Sprintf("  %s [%d] %s  %s", statusIcon(item.Status), i+1, shorten(item.Request, 45), statusDetail(i, item, startTimes))
}

func formatLinePlain(i int, item *RequestState) string {
	var status string
	switch item.Status {
	case StatusRunning:
		status = "RUNNING " + item.Phase.String()
	case StatusDone:
		status = fmt.Sprintf("DONE [%s] %s", formatDuration(item.Elapsed), item.Detail)
	case StatusFailed:
		status = "FAILED " + item.Detail
	default:
		status = "QUEUED"
	}
	return fmt.Sprintf("[%d] %s: %s", i+1, shorten(item.Request, 45), status)
}

func statusIcon(s Status) string {
	switch s {
	case StatusDone:
		return "\033[32m✅\033[0m"
	case StatusRunning:
		return "\033[33m⏳\033[0m"
	case StatusFailed:
		return "\033[31m❌\033[0m"
	default:
		return "\033[90m○\033[0m"
	}
}

func statusDetail(i int, item *RequestState, startTimes map[int]time.Time) string {
	switch item.Status {
	case StatusDone:
		return fmt.Sprintf("\033[90m[%s] %s\033[0m", formatDuration(item.Elapsed), item.Detail)
	case StatusRunning:
		elapsed := time.Since(startTimes[i])
		return fmt.Sprintf("\033[33m[%s, %s]\033[0m", item.Phase, formatDuration(elapsed))
	case StatusFailed:
		return fmt.Sprintf("\033[31m[%s]\033[0m", shorten(item.Detail, 60))
	default:
		return "\033[90m[queued]\033[0m"
	}
}

func shorten(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh%dm%ds", h, m, s)
}
