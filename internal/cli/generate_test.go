package cli

import (
	"testing"

	"github.com/freQuensy23-coder/manim-gpt/internal/session"
	"github.com/freQuensy23-coder/manim-gpt/internal/stream"
)

func TestFinalCodePicksNewestBlock(t *testing.T) {
	s, _ := session.New("s1")
	s.Begin("draw a circle")
	_ = s.AppendChunk(stream.Chunk{Kind: stream.Answer, Text: "```python\nold()\n```"})
	s.Begin("fix it")
	_ = s.AppendChunk(stream.Chunk{Kind: stream.Answer, Text: "```python\nnew()\n```"})
	s.Begin("review")
	_ = s.AppendChunk(stream.Chunk{Kind: stream.Answer, Text: "No issues found"})

	if got := finalCode(s, "python"); got != "new()" {
		t.Errorf("finalCode = %q, want %q", got, "new()")
	}
}

func TestFinalCodeWithoutCode(t *testing.T) {
	s, _ := session.New("s1")
	s.Begin("hello")
	_ = s.AppendChunk(stream.Chunk{Kind: stream.Answer, Text: "no code here"})

	if got := finalCode(s, "python"); got != "" {
		t.Errorf("finalCode = %q, want empty", got)
	}
}

func TestFirstToken(t *testing.T) {
	if got := firstToken([]string{"continue", "c"}); got != "continue" {
		t.Errorf("firstToken = %q", got)
	}
	if got := firstToken(nil); got != "" {
		t.Errorf("firstToken(nil) = %q", got)
	}
}
