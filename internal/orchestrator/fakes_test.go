package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/freQuensy23-coder/manim-gpt/internal/llm"
	"github.com/freQuensy23-coder/manim-gpt/internal/publish"
	"github.com/freQuensy23-coder/manim-gpt/internal/render"
	"github.com/freQuensy23-coder/manim-gpt/internal/stream"
)

// reply is one scripted model turn.
type reply struct {
	chunks []stream.Chunk
	err    error
}

func answer(text string) reply {
	return reply{chunks: []stream.Chunk{
		{Kind: stream.Reasoning, Text: "thinking..."},
		{Kind: stream.Answer, Text: text},
	}}
}

func code(body string) reply {
	return answer("Here you go:\n```python\n" + body + "\n```")
}

type fakeModel struct {
	mu      sync.Mutex
	opens   int
	replies []reply
	convs   []*fakeConversation
}

func newFakeModel(replies ...reply) *fakeModel {
	return &fakeModel{replies: replies}
}

func (m *fakeModel) Open(context.Context) (llm.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opens++
	c := &fakeConversation{id: fmt.Sprintf("conv-%d", m.opens), model: m}
	m.convs = append(m.convs, c)
	return c, nil
}

func (m *fakeModel) next() reply {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.replies) == 0 {
		return answer("(no scripted reply)")
	}
	r := m.replies[0]
	m.replies = m.replies[1:]
	return r
}

func (m *fakeModel) openCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens
}

type fakeConversation struct {
	id    string
	model *fakeModel

	mu      sync.Mutex
	prompts []llm.Prompt
}

func (c *fakeConversation) ID() string { return c.id }

func (c *fakeConversation) Stream(ctx context.Context, p llm.Prompt) (<-chan stream.Chunk, <-chan error) {
	c.mu.Lock()
	c.prompts = append(c.prompts, p)
	c.mu.Unlock()
	r := c.model.next()
	return stream.FromSlice(ctx, r.chunks, r.err)
}

func (c *fakeConversation) sent() []llm.Prompt {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]llm.Prompt(nil), c.prompts...)
}

// renderResult is one scripted render outcome. A nil artifact and nil error
// produces a default artifact.
type renderResult struct {
	art *render.Artifact
	err error
}

type fakeRenderer struct {
	mu      sync.Mutex
	results []renderResult
	jobs    []render.Job
	// block, when set, makes renders of that source wait for ctx or release.
	block   string
	entered chan struct{}
	release chan struct{}
}

func (r *fakeRenderer) Render(ctx context.Context, job render.Job) (*render.Artifact, error) {
	r.mu.Lock()
	r.jobs = append(r.jobs, job)
	n := len(r.jobs)
	var res renderResult
	if len(r.results) > 0 {
		res = r.results[0]
		r.results = r.results[1:]
	}
	block := r.block != "" && job.Source == r.block
	r.mu.Unlock()

	if block {
		r.entered <- struct{}{}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-r.release:
		}
	}

	if res.err != nil {
		return nil, res.err
	}
	if res.art != nil {
		return res.art, nil
	}
	return &render.Artifact{
		Path:     fmt.Sprintf("/out/video_%d.mp4", n),
		Size:     2 << 20,
		Duration: 1500 * time.Millisecond,
	}, nil
}

func (r *fakeRenderer) jobCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

type fakePublisher struct {
	mu    sync.Mutex
	errs  []error
	paths []string
}

func (p *fakePublisher) Publish(_ context.Context, path string) (publish.File, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paths = append(p.paths, path)
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		if err != nil {
			return publish.File{}, err
		}
	}
	return publish.File{
		Name:     "files/" + path,
		URI:      "https://files.example/" + path,
		MIMEType: "video/mp4",
		State:    publish.Ready,
	}, nil
}

func (p *fakePublisher) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.paths)
}

// drain collects every update and the terminal error of one Handle call.
func drain(t *testing.T, updates <-chan Update, errs <-chan error) ([]Update, error) {
	t.Helper()
	var got []Update
	timeout := time.After(10 * time.Second)
	for updates != nil {
		select {
		case u, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			got = append(got, u)
		case <-timeout:
			t.Fatal("timed out waiting for updates")
		}
	}
	select {
	case err := <-errs:
		return got, err
	case <-timeout:
		t.Fatal("timed out waiting for error channel")
	}
	return got, nil
}
