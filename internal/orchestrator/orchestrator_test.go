package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/freQuensy23-coder/manim-gpt/internal/config"
	"github.com/freQuensy23-coder/manim-gpt/internal/extract"
	"github.com/freQuensy23-coder/manim-gpt/internal/log"
	"github.com/freQuensy23-coder/manim-gpt/internal/publish"
	"github.com/freQuensy23-coder/manim-gpt/internal/render"
	"github.com/freQuensy23-coder/manim-gpt/internal/session"
	"github.com/freQuensy23-coder/manim-gpt/internal/stream"
)

type harness struct {
	orch      *Orchestrator
	store     *session.MemoryStore
	model     *fakeModel
	renderer  *fakeRenderer
	publisher *fakePublisher
	cfg       *config.Config
}

func newHarness(t *testing.T, mode string, model *fakeModel, renderer *fakeRenderer) *harness {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Review.Mode = mode
	h := &harness{
		store:     session.NewMemoryStore(time.Hour, 100),
		model:     model,
		renderer:  renderer,
		publisher: &fakePublisher{},
		cfg:       cfg,
	}
	h.orch = New(Deps{
		Store:     h.store,
		Model:     model,
		Renderer:  renderer,
		Publisher: h.publisher,
		Config:    cfg,
	})
	return h
}

func (h *harness) send(t *testing.T, id, text string) ([]Update, error) {
	t.Helper()
	updates, errs := h.orch.Handle(context.Background(), id, text)
	return drain(t, updates, errs)
}

func (h *harness) session(t *testing.T, id string) *session.Session {
	t.Helper()
	s, err := h.store.Get(context.Background(), id)
	require.NoError(t, err)
	return s
}

func last(updates []Update) *session.Session {
	return updates[len(updates)-1].Session
}

func TestScenarioDraftingHoldsPhase(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(t, config.ReviewHuman, newFakeModel(
		answer("Scenario: five bars swap places."),
		answer("Scenario v2: five bars, slower."),
	), &fakeRenderer{})

	updates, err := h.send(t, "s1", "bubble sort")
	require.NoError(t, err)
	require.NotEmpty(t, updates)

	s := last(updates)
	assert.Equal(t, session.AwaitTask, s.Phase)
	require.Len(t, s.Turns, 1)
	assert.Equal(t, "bubble sort", s.Turns[0].User)
	assert.Equal(t, "Scenario: five bars swap places.", s.Turns[0].Answer, "answer must exclude reasoning")
	assert.Equal(t, "thinking...", s.Turns[0].Reasoning)
	assert.Contains(t, s.Turns[0].Notice, "continue")

	conv := h.model.convs[0]
	require.Len(t, conv.sent(), 1)
	assert.Contains(t, conv.sent()[0].Text, "bubble sort")

	// Anything other than a continue token is forwarded verbatim.
	updates, err = h.send(t, "s1", "make it slower")
	require.NoError(t, err)
	assert.Equal(t, session.AwaitTask, last(updates).Phase)
	assert.Equal(t, "make it slower", conv.sent()[1].Text)
	assert.Equal(t, 1, h.model.openCount())
	assert.Equal(t, 0, h.renderer.jobCount())
}

func TestBubbleSortRecoversFromFormatErrorAndTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	renderer := &fakeRenderer{results: []renderResult{
		{err: &render.Failure{
			Message:  "render timed out after 5m0s",
			Trace:    "Animation 3: Transform(Rectangle) ...",
			TimedOut: true,
		}},
		{art: &render.Artifact{Path: "/out/video_ok.mp4", Size: 1 << 20, Duration: time.Second}},
	}}
	h := newHarness(t, config.ReviewHuman, newFakeModel(
		answer("Scenario: bars swap."),
		answer("class VideoScene(Scene): pass  # forgot the fence"),
		code("class VideoScene(Scene):\n    def construct(self): self.wait(999)"),
		code("class VideoScene(Scene):\n    def construct(self): self.wait(1)"),
	), renderer)

	_, err := h.send(t, "s1", "bubble sort")
	require.NoError(t, err)
	handle := h.session(t, "s1").Conversation

	updates, err := h.send(t, "s1", "continue")
	require.NoError(t, err)

	s := last(updates)
	assert.Equal(t, session.AwaitFeedback, s.Phase)
	assert.Equal(t, "/out/video_ok.mp4", s.LastArtifact)
	assert.Equal(t, "/out/video_ok.mp4", updates[len(updates)-1].Artifact)
	assert.Same(t, handle, h.session(t, "s1").Conversation, "conversation handle must be reused")
	assert.Equal(t, 1, h.model.openCount())

	prompts := h.model.convs[0].sent()
	require.Len(t, prompts, 4)
	assert.Contains(t, prompts[1].Text, "```python")
	assert.Contains(t, prompts[2].Text, extract.ErrNoCodeBlock.Error())
	assert.Contains(t, prompts[3].Text, "render timed out after 5m0s")
	assert.Contains(t, prompts[3].Text, "Animation 3: Transform(Rectangle)")

	require.Equal(t, 2, renderer.jobCount())
	assert.Equal(t, "class VideoScene(Scene):\n    def construct(self): self.wait(1)", renderer.jobs[1].Source)
	assert.Equal(t, "VideoScene", renderer.jobs[1].Scene)

	// Scenario, continue, format correction, render correction; only the last is open until Handle returns.
	require.Len(t, s.Turns, 4)
	for i, turn := range s.Turns[:3] {
		assert.True(t, turn.Closed, "turn %d should be closed", i)
	}
	assert.Contains(t, s.Turns[3].Notice, "Rendering done")
	assert.True(t, h.session(t, "s1").Turns[3].Closed)
}

func TestFinishTokenEndsSessionWithoutCalls(t *testing.T) {
	h := newHarness(t, config.ReviewHuman, newFakeModel(
		answer("Scenario."),
		code("ok"),
	), &fakeRenderer{})

	_, err := h.send(t, "s1", "circle")
	require.NoError(t, err)
	_, err = h.send(t, "s1", "c")
	require.NoError(t, err)
	require.Equal(t, session.AwaitFeedback, h.session(t, "s1").Phase)

	promptsBefore := len(h.model.convs[0].sent())
	updates, err := h.send(t, "s1", "  FINISH ")
	require.NoError(t, err)

	s := last(updates)
	assert.Equal(t, session.Finished, s.Phase)
	assert.Contains(t, s.Turns[len(s.Turns)-1].Notice, ClosingNotice)
	assert.Equal(t, promptsBefore, len(h.model.convs[0].sent()))
	assert.Equal(t, 0, h.publisher.calls())

	// Further messages only get the closing notice.
	updates, err = h.send(t, "s1", "one more thing")
	require.NoError(t, err)
	assert.Equal(t, ClosingNotice, last(updates).Turns[len(last(updates).Turns)-1].Notice)
	assert.Equal(t, promptsBefore, len(h.model.convs[0].sent()))
	assert.Equal(t, 1, h.renderer.jobCount())
}

func TestFeedbackAttachesLastRender(t *testing.T) {
	h := newHarness(t, config.ReviewHuman, newFakeModel(
		answer("Scenario."),
		code("v1"),
		code("v2"),
	), &fakeRenderer{})

	_, _ = h.send(t, "s1", "square")
	_, err := h.send(t, "s1", "continue")
	require.NoError(t, err)
	firstArtifact := h.session(t, "s1").LastArtifact

	updates, err := h.send(t, "s1", "make it blue")
	require.NoError(t, err)
	assert.Equal(t, session.AwaitFeedback, last(updates).Phase)

	require.Equal(t, []string{firstArtifact}, h.publisher.paths)
	prompts := h.model.convs[0].sent()
	fb := prompts[len(prompts)-1]
	require.NotNil(t, fb.Attachment)
	assert.Equal(t, "https://files.example/"+firstArtifact, fb.Attachment.URI)
	assert.Contains(t, fb.Text, "make it blue")
	assert.Contains(t, fb.Text, "```python")
	assert.NotEqual(t, firstArtifact, h.session(t, "s1").LastArtifact)
}

func TestFeedbackSentWithoutAttachmentWhenPublishFails(t *testing.T) {
	h := newHarness(t, config.ReviewHuman, newFakeModel(
		answer("Scenario."),
		code("v1"),
		code("v2"),
	), &fakeRenderer{})
	h.publisher.errs = []error{errors.New("quota exceeded")}

	_, _ = h.send(t, "s1", "square")
	_, _ = h.send(t, "s1", "continue")

	updates, err := h.send(t, "s1", "make it blue")
	require.NoError(t, err)
	assert.Equal(t, session.AwaitFeedback, last(updates).Phase)

	prompts := h.model.convs[0].sent()
	require.Len(t, prompts, 3)
	fb := prompts[2]
	assert.Nil(t, fb.Attachment)
	assert.Contains(t, fb.Text, "could not be attached")
	assert.Contains(t, fb.Text, "make it blue")
}

func TestAutoReviewAccepts(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(t, config.ReviewAuto, newFakeModel(
		answer("Scenario."),
		code("v1"),
		answer("No issues found."),
	), &fakeRenderer{})

	_, _ = h.send(t, "s1", "triangle")
	updates, err := h.send(t, "s1", "continue")
	require.NoError(t, err)

	s := last(updates)
	assert.Equal(t, session.Finished, s.Phase)
	assert.Contains(t, s.Turns[len(s.Turns)-1].Notice, ClosingNotice)

	prompts := h.model.convs[0].sent()
	review := prompts[len(prompts)-1]
	require.NotNil(t, review.Attachment)
	assert.Equal(t, "video/mp4", review.Attachment.MIMEType)
	assert.Contains(t, review.Text, "No issues found")

	var sawReview bool
	for _, u := range updates {
		if u.Session.Phase == session.ReviewLoop {
			sawReview = true
		}
	}
	assert.True(t, sawReview, "review phase should be visible in updates")
}

func TestAutoReviewRejectionFeedsIssuesBack(t *testing.T) {
	h := newHarness(t, config.ReviewAuto, newFakeModel(
		answer("Scenario."),
		code("v1"),
		answer("the text overlaps the square"),
		code("v2"),
		answer("no issues found"),
	), &fakeRenderer{})
	h.orch.deps.Hint = "move the label up"

	_, _ = h.send(t, "s1", "label a square")
	updates, err := h.send(t, "s1", "continue")
	require.NoError(t, err)
	assert.Equal(t, session.Finished, last(updates).Phase)

	prompts := h.model.convs[0].sent()
	require.Len(t, prompts, 5)
	corrective := prompts[3]
	assert.Nil(t, corrective.Attachment)
	assert.Contains(t, corrective.Text, "the text overlaps the square")
	assert.Contains(t, corrective.Text, "move the label up")
	assert.Equal(t, 2, h.renderer.jobCount())
	assert.Equal(t, 2, h.publisher.calls())
}

func TestAutoReviewPublishFailureRetriesCoding(t *testing.T) {
	h := newHarness(t, config.ReviewAuto, newFakeModel(
		answer("Scenario."),
		code("v1"),
		code("v2"),
		answer("No issues found"),
	), &fakeRenderer{})
	h.publisher.errs = []error{publish.ErrPublishFailed}

	_, _ = h.send(t, "s1", "hexagon")
	updates, err := h.send(t, "s1", "continue")
	require.NoError(t, err)
	assert.Equal(t, session.Finished, last(updates).Phase)

	prompts := h.model.convs[0].sent()
	require.Len(t, prompts, 4)
	assert.Contains(t, prompts[2].Text, "could not be uploaded")
	assert.Equal(t, 2, h.renderer.jobCount())
}

func TestAttemptBudgetExhaustion(t *testing.T) {
	h := newHarness(t, config.ReviewHuman, newFakeModel(
		answer("Scenario."),
		answer("no code"),
		answer("still no code"),
		code("finally"),
	), &fakeRenderer{})
	h.cfg.Loop.MaxAttempts = 2

	_, _ = h.send(t, "s1", "star")
	_, err := h.send(t, "s1", "continue")
	require.ErrorIs(t, err, ErrAttemptsExhausted)
	assert.Equal(t, session.CodingLoop, h.session(t, "s1").Phase)
	assert.Equal(t, 0, h.renderer.jobCount())

	// A later message restarts the cycle with the user's text in front.
	updates, err := h.send(t, "s1", "please use a fence")
	require.NoError(t, err)
	assert.Equal(t, session.AwaitFeedback, last(updates).Phase)
	prompts := h.model.convs[0].sent()
	assert.True(t, strings.HasPrefix(prompts[len(prompts)-1].Text, "please use a fence"))
}

func TestRepeatedReviewRejectionExhaustsBudget(t *testing.T) {
	h := newHarness(t, config.ReviewAuto, newFakeModel(
		answer("Scenario."),
		code("v1"),
		answer("the circle is cut off"),
		code("v2"),
		answer("the circle is still cut off"),
	), &fakeRenderer{})
	h.cfg.Loop.MaxAttempts = 2

	_, _ = h.send(t, "s1", "circle")
	_, err := h.send(t, "s1", "continue")
	require.ErrorIs(t, err, ErrAttemptsExhausted)
	assert.Equal(t, 2, h.renderer.jobCount())
	assert.Equal(t, session.CodingLoop, h.session(t, "s1").Phase)
}

func TestRenderInfrastructureErrorIsFatal(t *testing.T) {
	boom := errors.New("disk full")
	h := newHarness(t, config.ReviewHuman, newFakeModel(
		answer("Scenario."),
		code("v1"),
	), &fakeRenderer{results: []renderResult{{err: boom}}})

	_, _ = h.send(t, "s1", "dot")
	_, err := h.send(t, "s1", "continue")
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrAborted)
}

func TestModelTransportErrorIsFatal(t *testing.T) {
	boom := errors.New("connection reset")
	h := newHarness(t, config.ReviewHuman, newFakeModel(
		reply{chunks: nil, err: boom},
	), &fakeRenderer{})

	_, err := h.send(t, "s1", "dot")
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrAborted)
}

func TestFailedFirstMessageIsReframedOnRetry(t *testing.T) {
	defer goleak.VerifyNone(t)

	boom := errors.New("connection reset")
	h := newHarness(t, config.ReviewHuman, newFakeModel(
		reply{err: boom},
		answer("Scenario: bars swap."),
	), &fakeRenderer{})

	_, err := h.send(t, "s1", "bubble sort")
	require.ErrorIs(t, err, boom)

	updates, err := h.send(t, "s1", "bubble sort")
	require.NoError(t, err)
	s := last(updates)
	assert.Equal(t, session.AwaitTask, s.Phase)
	assert.Equal(t, "bubble sort", s.Request)
	assert.Contains(t, s.Turns[len(s.Turns)-1].Notice, "continue")

	assert.Equal(t, 1, h.model.openCount(), "the open conversation is reused")
	prompts := h.model.convs[0].sent()
	require.Len(t, prompts, 2)
	assert.Equal(t, prompts[0].Text, prompts[1].Text)
	assert.Contains(t, prompts[1].Text, "Video idea:\nbubble sort")

	// With a scenario recorded, the next message is a refinement.
	_, err = h.send(t, "s1", "use five bars")
	require.NoError(t, err)
	assert.Equal(t, "use five bars", h.model.convs[0].sent()[2].Text)
}

func TestLostConversation(t *testing.T) {
	h := newHarness(t, config.ReviewHuman, newFakeModel(), &fakeRenderer{})

	restored, _ := session.New("s1")
	restored.Begin("bubble sort")
	restored.Close()
	restored.Phase = session.CodingLoop
	require.NoError(t, h.store.Save(context.Background(), restored))

	_, err := h.send(t, "s1", "continue")
	require.ErrorIs(t, err, ErrLostConversation)
	assert.Equal(t, 0, h.model.openCount())

	// Finishing needs no conversation.
	restored.Phase = session.AwaitFeedback
	_, err = h.send(t, "s1", "done")
	require.NoError(t, err)
	assert.Equal(t, session.Finished, h.session(t, "s1").Phase)
}

func TestInvalidSessionID(t *testing.T) {
	h := newHarness(t, config.ReviewHuman, newFakeModel(), &fakeRenderer{})
	_, err := h.send(t, "not a valid id!", "hello")
	require.ErrorIs(t, err, session.ErrInvalidID)
	require.ErrorIs(t, h.orch.Finish(context.Background(), ""), session.ErrInvalidID)
}

func TestAbortStopsRender(t *testing.T) {
	defer goleak.VerifyNone(t)

	renderer := &fakeRenderer{block: "slow", entered: make(chan struct{}, 1), release: make(chan struct{})}
	h := newHarness(t, config.ReviewHuman, newFakeModel(
		answer("Scenario."),
		code("slow"),
	), renderer)

	_, _ = h.send(t, "s1", "spiral")
	updates, errs := h.orch.Handle(context.Background(), "s1", "continue")

	select {
	case <-renderer.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("render never started")
	}
	assert.True(t, h.orch.Abort("s1"))

	_, err := drain(t, updates, errs)
	require.ErrorIs(t, err, ErrAborted)
	assert.Equal(t, session.CodingLoop, h.session(t, "s1").Phase)
	assert.False(t, h.orch.Abort("s1"), "nothing should be running after abort")
}

func TestSessionsRunIndependently(t *testing.T) {
	defer goleak.VerifyNone(t)

	renderer := &fakeRenderer{block: "A", entered: make(chan struct{}, 1), release: make(chan struct{})}
	// Replies are consumed in call order: A drafts, B drafts, A codes, B codes.
	h := newHarness(t, config.ReviewHuman, newFakeModel(
		answer("Scenario A."),
		answer("Scenario B."),
		code("A"),
		code("B"),
	), renderer)

	_, _ = h.send(t, "a", "first")
	_, _ = h.send(t, "b", "second")

	aUpdates, aErrs := h.orch.Handle(context.Background(), "a", "continue")
	<-renderer.entered

	// B completes while A is blocked in its render.
	updates, err := h.send(t, "b", "continue")
	require.NoError(t, err)
	assert.Equal(t, session.AwaitFeedback, last(updates).Phase)

	close(renderer.release)
	updates, err = drain(t, aUpdates, aErrs)
	require.NoError(t, err)
	assert.Equal(t, session.AwaitFeedback, last(updates).Phase)
}

func TestSessionLocksAreDroppedWhenIdle(t *testing.T) {
	h := newHarness(t, config.ReviewHuman, newFakeModel(), &fakeRenderer{})

	for _, id := range []string{"s1", "s2", "s3"} {
		_, err := h.send(t, id, "square")
		require.NoError(t, err)
	}
	assert.Equal(t, 0, h.orch.activeLocks())

	require.NoError(t, h.orch.Finish(context.Background(), "s1"))
	assert.Equal(t, 0, h.orch.activeLocks())
}

func TestSameSessionTurnsAreSerialised(t *testing.T) {
	renderer := &fakeRenderer{block: "slow", entered: make(chan struct{}, 1), release: make(chan struct{})}
	h := newHarness(t, config.ReviewHuman, newFakeModel(
		answer("Scenario."),
		code("slow"),
	), renderer)

	_, _ = h.send(t, "s1", "wave")
	firstUpdates, firstErrs := h.orch.Handle(context.Background(), "s1", "continue")
	<-renderer.entered

	secondUpdates, secondErrs := h.orch.Handle(context.Background(), "s1", "finish")
	select {
	case u := <-secondUpdates:
		t.Fatalf("second turn ran concurrently: %+v", u)
	case <-time.After(100 * time.Millisecond):
	}

	close(renderer.release)
	updates, err := drain(t, firstUpdates, firstErrs)
	require.NoError(t, err)
	assert.Equal(t, session.AwaitFeedback, last(updates).Phase)

	updates, err = drain(t, secondUpdates, secondErrs)
	require.NoError(t, err)
	assert.Equal(t, session.Finished, last(updates).Phase)
}

func TestUpdatesStreamIncrementally(t *testing.T) {
	h := newHarness(t, config.ReviewHuman, newFakeModel(reply{chunks: []stream.Chunk{
		{Kind: stream.Reasoning, Text: "hmm"},
		{Kind: stream.Answer, Text: "Part one. "},
		{Kind: stream.Answer, Text: "Part two."},
	}}), &fakeRenderer{})

	updates, err := h.send(t, "s1", "hello")
	require.NoError(t, err)

	var answers []string
	for _, u := range updates {
		if n := len(u.Session.Turns); n > 0 {
			answers = append(answers, u.Session.Turns[n-1].Answer)
		}
	}
	assert.Contains(t, answers, "Part one. ")
	assert.Contains(t, answers, "Part one. Part two.")
	for i := 1; i < len(answers); i++ {
		assert.True(t, strings.HasPrefix(answers[i], answers[i-1]), "answer text must only grow within a turn")
	}
}

func TestFinishRemovesSession(t *testing.T) {
	h := newHarness(t, config.ReviewHuman, newFakeModel(answer("Scenario.")), &fakeRenderer{})
	_, _ = h.send(t, "s1", "hello")

	require.NoError(t, h.orch.Finish(context.Background(), "s1"))
	_, err := h.store.Get(context.Background(), "s1")
	require.ErrorIs(t, err, session.ErrNotFound)
}

func TestJournalRecordsCycle(t *testing.T) {
	journal, err := log.Open(t.TempDir())
	require.NoError(t, err)

	h := newHarness(t, config.ReviewHuman, newFakeModel(
		answer("Scenario."),
		answer("no fence"),
		code("ok"),
	), &fakeRenderer{})
	h.orch.deps.Journal = journal

	_, _ = h.send(t, "s1", "hello")
	_, _ = h.send(t, "s1", "continue")
	_, _ = h.send(t, "s1", "finish")

	events, err := journal.ForSession("s1")
	require.NoError(t, err)
	var names []string
	for _, ev := range events {
		names = append(names, ev.Event)
	}
	assert.Equal(t, []string{
		log.EventSessionStarted,
		log.EventScenarioDrafted,
		log.EventCodingStarted,
		log.EventFormatError,
		log.EventRenderSucceeded,
		log.EventSessionFinished,
	}, names)
}
