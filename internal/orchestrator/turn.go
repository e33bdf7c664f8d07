package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/freQuensy23-coder/manim-gpt/internal/llm"
	"github.com/freQuensy23-coder/manim-gpt/internal/session"
	"github.com/freQuensy23-coder/manim-gpt/internal/stream"
)

// turn carries the state of one Handle call.
type turn struct {
	sess    *session.Session
	updates chan<- Update
	log     *zap.Logger
}

// emit publishes a snapshot of the session.
func (t *turn) emit(ctx context.Context) error {
	u := Update{Session: t.sess.Snapshot(), Artifact: t.sess.LastArtifact}
	select {
	case t.updates <- u:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrAborted, ctx.Err())
	}
}

// begin opens a new history turn for user and publishes it.
func (t *turn) begin(ctx context.Context, user string) error {
	t.sess.Begin(user)
	return t.emit(ctx)
}

// note appends a system notice to the open turn and publishes it.
func (t *turn) note(ctx context.Context, text string) error {
	if err := t.sess.Note(text); err != nil {
		return err
	}
	return t.emit(ctx)
}

// setPhase moves the session and publishes the change.
func (t *turn) setPhase(ctx context.Context, p session.Phase) error {
	if t.sess.Phase == p {
		return nil
	}
	t.log.Debug("phase change", zap.Stringer("from", t.sess.Phase), zap.Stringer("to", p))
	t.sess.Phase = p
	return t.emit(ctx)
}

// conversation returns the session's handle or ErrLostConversation.
func (t *turn) conversation() (llm.Conversation, error) {
	if t.sess.Conversation == nil {
		return nil, ErrLostConversation
	}
	return t.sess.Conversation, nil
}

// send streams one prompt into the open turn, publishing every chunk.
func (t *turn) send(ctx context.Context, p llm.Prompt) (stream.Result, error) {
	conv, err := t.conversation()
	if err != nil {
		return stream.Result{}, err
	}

	chunks, errs := conv.Stream(ctx, p)
	res, err := stream.Aggregate(ctx, chunks, errs, stream.SinkFunc(func(c stream.Chunk) error {
		if err := t.sess.AppendChunk(c); err != nil {
			return err
		}
		return t.emit(ctx)
	}))
	if err != nil {
		if ctx.Err() != nil {
			return res, fmt.Errorf("%w: %v", ErrAborted, ctx.Err())
		}
		return res, fmt.Errorf("model turn %d: %w", len(t.sess.Turns), err)
	}
	t.log.Debug("model answered",
		zap.Int("chunks", res.Chunks),
		zap.Int("answer_bytes", len(res.Answer)),
		zap.Int("reasoning_bytes", len(res.Reasoning)))
	return res, nil
}
