package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/freQuensy23-coder/manim-gpt/internal/config"
	"github.com/freQuensy23-coder/manim-gpt/internal/extract"
	"github.com/freQuensy23-coder/manim-gpt/internal/llm"
	"github.com/freQuensy23-coder/manim-gpt/internal/log"
	"github.com/freQuensy23-coder/manim-gpt/internal/publish"
	"github.com/freQuensy23-coder/manim-gpt/internal/render"
	"github.com/freQuensy23-coder/manim-gpt/internal/session"
)

// ClosingNotice is shown for every message once a session is finished.
const ClosingNotice = "Session complete. Start a new session to make another video."

func (o *Orchestrator) dispatch(ctx context.Context, t *turn, text string) error {
	switch t.sess.Phase {
	case session.AwaitTask:
		return o.awaitTask(ctx, t, text)
	case session.CodingLoop, session.ReviewLoop:
		// Only reachable after an exhausted budget or an abort.
		return o.resumeCoding(ctx, t, text)
	case session.AwaitFeedback:
		return o.awaitFeedback(ctx, t, text)
	case session.Finished:
		if err := t.begin(ctx, text); err != nil {
			return err
		}
		return t.note(ctx, ClosingNotice)
	default:
		return fmt.Errorf("session %s in unknown phase %v", t.sess.ID, t.sess.Phase)
	}
}

// awaitTask drafts the scenario. Until a scenario answer is recorded every
// message is framed as the request; afterwards messages refine it until the
// user sends a continue token.
func (o *Orchestrator) awaitTask(ctx context.Context, t *turn, text string) error {
	s := t.sess
	first := !scenarioDrafted(s)

	if first {
		if s.Conversation == nil {
			conv, err := o.deps.Model.Open(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return fmt.Errorf("%w: %v", ErrAborted, ctx.Err())
				}
				return fmt.Errorf("opening conversation: %w", err)
			}
			s.Conversation = conv
			o.journal(log.Entry{Event: log.EventSessionStarted, SessionID: s.ID, Data: map[string]any{"request": text}})
			t.log.Info("session started", zap.String("conversation", conv.ID()))
		}
		s.Request = text
	} else if matchesToken(text, o.cfg.Tokens.Continue) {
		if _, err := t.conversation(); err != nil {
			return err
		}
		if err := t.begin(ctx, text); err != nil {
			return err
		}
		if err := t.setPhase(ctx, session.CodingLoop); err != nil {
			return err
		}
		o.journal(log.Entry{Event: log.EventCodingStarted, SessionID: s.ID, Phase: s.Phase.String()})
		return o.codingCycle(ctx, t, llm.Prompt{Text: o.codegenPrompt()})
	}

	if err := t.begin(ctx, text); err != nil {
		return err
	}
	prompt := text
	if first {
		prompt = scenarioPrompt(text)
	}
	if _, err := t.send(ctx, llm.Prompt{Text: prompt}); err != nil {
		return err
	}
	o.journal(log.Entry{Event: log.EventScenarioDrafted, SessionID: s.ID, Phase: s.Phase.String()})
	return t.note(ctx, o.continueHint())
}

// scenarioDrafted reports whether the model has answered the request yet.
// A first message whose stream failed leaves a turn with no answer.
func scenarioDrafted(s *session.Session) bool {
	for _, turn := range s.Turns {
		if turn.Answer != "" {
			return true
		}
	}
	return false
}

// awaitFeedback either finishes the session or sends the user's feedback,
// with the last render attached, back into the coding cycle.
func (o *Orchestrator) awaitFeedback(ctx context.Context, t *turn, text string) error {
	s := t.sess
	if matchesToken(text, o.cfg.Tokens.Finish) {
		if err := t.begin(ctx, text); err != nil {
			return err
		}
		if err := t.setPhase(ctx, session.Finished); err != nil {
			return err
		}
		o.journal(log.Entry{Event: log.EventSessionFinished, SessionID: s.ID, Artifact: s.LastArtifact, Reason: "finish token"})
		return t.note(ctx, ClosingNotice)
	}

	if _, err := t.conversation(); err != nil {
		return err
	}
	if err := t.begin(ctx, text); err != nil {
		return err
	}

	var attachment *llm.Attachment
	file, attachErr := o.publish(ctx, t, s.LastArtifact)
	if attachErr == nil {
		attachment = &llm.Attachment{URI: file.URI, MIMEType: file.MIMEType}
	} else if !errors.Is(attachErr, publish.ErrPublishFailed) {
		return attachErr
	}

	if err := t.setPhase(ctx, session.CodingLoop); err != nil {
		return err
	}
	return o.codingCycle(ctx, t, llm.Prompt{
		Text:       feedbackPrompt(text, o.codegenPrompt(), attachErr),
		Attachment: attachment,
	})
}

// resumeCoding restarts the coding cycle after it was interrupted. Free
// text is passed to the model ahead of the code generation instructions.
func (o *Orchestrator) resumeCoding(ctx context.Context, t *turn, text string) error {
	if _, err := t.conversation(); err != nil {
		return err
	}
	if err := t.begin(ctx, text); err != nil {
		return err
	}
	if err := t.setPhase(ctx, session.CodingLoop); err != nil {
		return err
	}
	prompt := o.codegenPrompt()
	if !matchesToken(text, o.cfg.Tokens.Continue) {
		prompt = text + "\n\n" + prompt
	}
	return o.codingCycle(ctx, t, llm.Prompt{Text: prompt})
}

// codingCycle sends prompt and keeps correcting the model until a render
// succeeds (human review) or the review accepts it (auto review).
func (o *Orchestrator) codingCycle(ctx context.Context, t *turn, prompt llm.Prompt) error {
	s := t.sess
	lang := o.cfg.Render.Language
	budget := newAttemptBudget(o.cfg.Loop.MaxAttempts)

	// retry records a failed attempt and opens a corrective turn.
	retry := func(next string) error {
		if budget.recordFailure() {
			o.journal(log.Entry{Event: log.EventAttemptsMaxed, SessionID: s.ID, Phase: s.Phase.String(), Attempt: budget.failures})
			t.log.Warn("attempt budget exhausted", zap.Int("failures", budget.failures))
			return fmt.Errorf("%w after %d failed attempts", ErrAttemptsExhausted, budget.failures)
		}
		prompt = llm.Prompt{Text: next}
		return t.begin(ctx, next)
	}

	for attempt := 1; ; attempt++ {
		res, err := t.send(ctx, prompt)
		if err != nil {
			return err
		}

		code, err := extract.Code(res.Answer, lang)
		if err != nil {
			o.journal(log.Entry{Event: log.EventFormatError, SessionID: s.ID, Attempt: attempt, Error: err.Error()})
			t.log.Info("no code block in answer", zap.Int("attempt", attempt))
			if err := retry(extract.Instruction(err, lang)); err != nil {
				return err
			}
			continue
		}

		art, err := o.deps.Renderer.Render(ctx, render.Job{Source: code, Scene: o.cfg.Render.Scene})
		if err != nil {
			var failure *render.Failure
			if !errors.As(err, &failure) {
				if ctx.Err() != nil {
					return fmt.Errorf("%w: %v", ErrAborted, ctx.Err())
				}
				return fmt.Errorf("rendering: %w", err)
			}
			o.journal(log.Entry{Event: log.EventRenderFailed, SessionID: s.ID, Attempt: attempt, Error: failure.Message})
			t.log.Info("render failed", zap.Int("attempt", attempt), zap.String("reason", failure.Message))
			if err := retry(renderFailedPrompt(failure)); err != nil {
				return err
			}
			continue
		}

		s.LastArtifact = art.Path
		o.journal(log.Entry{
			Event:      log.EventRenderSucceeded,
			SessionID:  s.ID,
			Attempt:    attempt,
			Artifact:   art.Path,
			DurationMs: art.Duration.Milliseconds(),
		})
		if err := t.note(ctx, renderedNotice(art)); err != nil {
			return err
		}

		if o.cfg.Review.Mode != config.ReviewAuto {
			if err := t.setPhase(ctx, session.AwaitFeedback); err != nil {
				return err
			}
			return t.note(ctx, o.feedbackHint())
		}

		if err := t.setPhase(ctx, session.ReviewLoop); err != nil {
			return err
		}
		next, accepted, err := o.review(ctx, t, art)
		if err != nil {
			return err
		}
		if accepted {
			if err := t.setPhase(ctx, session.Finished); err != nil {
				return err
			}
			o.journal(log.Entry{Event: log.EventSessionFinished, SessionID: s.ID, Artifact: s.LastArtifact, Reason: "review accepted"})
			return t.note(ctx, "\n\n"+ClosingNotice)
		}
		if err := t.setPhase(ctx, session.CodingLoop); err != nil {
			return err
		}
		if err := retry(next); err != nil {
			return err
		}
	}
}

// review publishes the artifact and asks the model to review it in the same
// conversation. It returns the corrective prompt for the next attempt unless
// the review accepted the video.
func (o *Orchestrator) review(ctx context.Context, t *turn, art *render.Artifact) (string, bool, error) {
	s := t.sess
	file, err := o.publish(ctx, t, art.Path)
	if err != nil {
		if errors.Is(err, publish.ErrPublishFailed) {
			return publishFailedPrompt(err), false, nil
		}
		return "", false, err
	}

	prompt := reviewPrompt()
	if err := t.begin(ctx, prompt); err != nil {
		return "", false, err
	}
	res, err := t.send(ctx, llm.Prompt{
		Text:       prompt,
		Attachment: &llm.Attachment{URI: file.URI, MIMEType: file.MIMEType},
	})
	if err != nil {
		return "", false, err
	}

	verdict := o.deps.Interpreter.Interpret(res.Answer)
	if verdict.Accepted {
		o.journal(log.Entry{Event: log.EventReviewAccepted, SessionID: s.ID, Artifact: art.Path})
		t.log.Info("review accepted", zap.String("artifact", art.Path))
		return "", true, nil
	}
	o.journal(log.Entry{Event: log.EventReviewRejected, SessionID: s.ID, Artifact: art.Path, Reason: verdict.Issues})
	t.log.Info("review rejected", zap.String("artifact", art.Path))
	return reviewRejectedPrompt(verdict.Issues, o.deps.Hint), false, nil
}

// publish uploads path. Every non-abort failure wraps publish.ErrPublishFailed
// and is noted in the open turn.
func (o *Orchestrator) publish(ctx context.Context, t *turn, path string) (publish.File, error) {
	if o.deps.Publisher == nil {
		return publish.File{}, fmt.Errorf("%w: no publisher configured", publish.ErrPublishFailed)
	}
	if path == "" {
		return publish.File{}, fmt.Errorf("%w: no rendered video yet", publish.ErrPublishFailed)
	}

	start := time.Now()
	file, err := o.deps.Publisher.Publish(ctx, path)
	if err == nil {
		t.log.Debug("artifact published", zap.String("uri", file.URI), zap.Duration("elapsed", time.Since(start)))
		return file, nil
	}
	if ctx.Err() != nil {
		return publish.File{}, fmt.Errorf("%w: %v", ErrAborted, ctx.Err())
	}
	if !errors.Is(err, publish.ErrPublishFailed) {
		err = fmt.Errorf("%w: %v", publish.ErrPublishFailed, err)
	}
	o.journal(log.Entry{Event: log.EventPublishFailed, SessionID: t.sess.ID, Artifact: path, Error: err.Error()})
	t.log.Warn("publish failed", zap.String("artifact", path), zap.Error(err))
	if noteErr := t.note(ctx, "\n\nCould not attach the video: "+err.Error()); noteErr != nil {
		return publish.File{}, noteErr
	}
	return publish.File{}, err
}

func (o *Orchestrator) codegenPrompt() string {
	return codegenPrompt(o.cfg.Render.Language, o.cfg.Render.Scene)
}

func (o *Orchestrator) continueHint() string {
	return fmt.Sprintf("\n\n*(type **%s** to proceed to code generation)*", firstOr(o.cfg.Tokens.Continue, "continue"))
}

func (o *Orchestrator) feedbackHint() string {
	return fmt.Sprintf("\n\n*(describe what to change, or type **%s** to end the session)*", firstOr(o.cfg.Tokens.Finish, "finish"))
}

func renderedNotice(art *render.Artifact) string {
	return fmt.Sprintf("\n\nRendering done: %s (%.1f MB in %s)",
		art.Path, float64(art.Size)/(1<<20), art.Duration.Round(100*time.Millisecond))
}

// matchesToken compares trimmed, case-folded input against tokens.
func matchesToken(text string, tokens []string) bool {
	text = strings.TrimSpace(text)
	for _, tok := range tokens {
		if strings.EqualFold(text, strings.TrimSpace(tok)) {
			return true
		}
	}
	return false
}

func firstOr(list []string, fallback string) string {
	if len(list) > 0 && list[0] != "" {
		return list[0]
	}
	return fallback
}
