// printer.go writes session updates to a plain terminal as they stream in.
package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/freQuensy23-coder/manim-gpt/internal/session"
)

// printed tracks how much of one turn has been written.
type printed struct {
	started   bool
	reasoning int
	answer    int
	notice    int
}

// printer writes only what changed since the previous snapshot, so repeated
// updates of the same turn produce continuous output.
type printer struct {
	w io.Writer
	// typed is the message the user just entered; it is not echoed back.
	typed string
	// fullPrompts prints every user prompt in full instead of its first line.
	fullPrompts bool
	reasoning   bool

	turns []printed
}

func newPrinter(w io.Writer, showReasoning bool) *printer {
	return &printer{w: w, reasoning: showReasoning}
}

// update prints the delta between s and what was printed before.
func (p *printer) update(s *session.Session) {
	for i, t := range s.Turns {
		if i >= len(p.turns) {
			p.turns = append(p.turns, printed{})
		}
		pr := &p.turns[i]

		if !pr.started {
			pr.started = true
			p.header(t.User)
		}
		if p.reasoning {
			p.delta(t.Reasoning, &pr.reasoning, "(thinking) ")
		}
		p.delta(t.Answer, &pr.answer, "")
		p.delta(t.Notice, &pr.notice, "")
	}
}

func (p *printer) header(user string) {
	if user == "" || user == p.typed {
		return
	}
	if !p.fullPrompts {
		user = firstLine(user)
	}
	fmt.Fprintf(p.w, "\n> %s\n", user)
}

// delta writes text[*done:] and advances *done. prefix is written before the
// first byte of a section.
func (p *printer) delta(text string, done *int, prefix string) {
	if len(text) <= *done {
		return
	}
	if *done == 0 {
		fmt.Fprint(p.w, "\n"+prefix)
	}
	fmt.Fprint(p.w, text[*done:])
	*done = len(text)
}

// firstLine returns the first non-blank line of s, marked when more follows.
func firstLine(s string) string {
	s = strings.TrimSpace(s)
	line, rest, found := strings.Cut(s, "\n")
	if found && strings.TrimSpace(rest) != "" {
		return strings.TrimSpace(line) + " ..."
	}
	return line
}
