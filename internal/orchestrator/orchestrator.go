// Package orchestrator drives a session through scenario drafting, code
// generation, rendering and review.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/freQuensy23-coder/manim-gpt/internal/config"
	"github.com/freQuensy23-coder/manim-gpt/internal/llm"
	"github.com/freQuensy23-coder/manim-gpt/internal/log"
	"github.com/freQuensy23-coder/manim-gpt/internal/publish"
	"github.com/freQuensy23-coder/manim-gpt/internal/render"
	"github.com/freQuensy23-coder/manim-gpt/internal/review"
	"github.com/freQuensy23-coder/manim-gpt/internal/session"
)

var (
	// ErrLostConversation is returned when a session past its first message
	// no longer has a conversation handle, e.g. after a restart.
	ErrLostConversation = errors.New("conversation handle lost; start a new session")
	// ErrAttemptsExhausted is returned when the coding cycle fails too many
	// times in a row. The session stays in the coding phase.
	ErrAttemptsExhausted = errors.New("attempt budget exhausted")
	// ErrAborted is returned when a turn is cancelled by Abort or its context.
	ErrAborted = errors.New("turn aborted")
)

// Publisher uploads an artifact and waits until it can be attached.
type Publisher interface {
	Publish(ctx context.Context, path string) (publish.File, error)
}

// Update is delivered for every change to a session during Handle. Session
// is a snapshot that is safe to keep.
type Update struct {
	Session  *session.Session
	Artifact string // latest successful render, if any
}

// Deps are the collaborators of an Orchestrator. Logger and Journal may be nil.
type Deps struct {
	Store       session.Store
	Model       llm.Model
	Renderer    render.Renderer
	Publisher   Publisher
	Interpreter review.Interpreter
	Config      *config.Config
	Logger      *zap.Logger
	Journal     *log.Journal
	// Hint is appended to every review-rejection prompt.
	Hint string
}

// Orchestrator runs turns for many sessions. Turns for one session are
// serialised; turns for different sessions run independently.
type Orchestrator struct {
	deps   Deps
	cfg    *config.Config
	logger *zap.Logger

	mu      sync.Mutex
	locks   map[string]*sessionLock
	cancels map[string]context.CancelFunc
}

// sessionLock serialises the turns of one session. It is dropped from the
// lock map once no caller holds or waits for it.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// New creates an Orchestrator. A nil Config uses config.DefaultConfig.
func New(deps Deps) *Orchestrator {
	if deps.Config == nil {
		deps.Config = config.DefaultConfig()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Interpreter.AcceptPhrase == "" {
		deps.Interpreter = review.Interpreter{
			AcceptPhrase:  deps.Config.Review.AcceptPhrase,
			CaseSensitive: deps.Config.Review.CaseSensitive,
		}
	}
	return &Orchestrator{
		deps:    deps,
		cfg:     deps.Config,
		logger:  deps.Logger,
		locks:   map[string]*sessionLock{},
		cancels: map[string]context.CancelFunc{},
	}
}

// Handle processes one user message for sessionID on its own goroutine.
// Updates arrive in order on the first channel; the error channel yields at
// most one terminal error. Both channels are closed when the turn ends, and
// the caller must drain updates until then.
func (o *Orchestrator) Handle(ctx context.Context, sessionID, text string) (<-chan Update, <-chan error) {
	updates := make(chan Update, 16)
	errs := make(chan error, 1)

	if err := session.ValidateID(sessionID); err != nil {
		errs <- err
		close(errs)
		close(updates)
		return updates, errs
	}

	go func() {
		defer close(errs)
		defer close(updates)
		if err := o.handle(ctx, sessionID, text, updates); err != nil {
			errs <- err
		}
	}()

	return updates, errs
}

func (o *Orchestrator) handle(ctx context.Context, id, text string, updates chan<- Update) error {
	o.lock(id)
	defer o.unlock(id)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.setCancel(id, cancel)
	defer o.clearCancel(id)

	sess, err := o.deps.Store.Get(runCtx, id)
	if errors.Is(err, session.ErrNotFound) {
		sess, err = session.New(id)
	}
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}

	t := &turn{
		sess:    sess,
		updates: updates,
		log:     o.logger.With(zap.String("session", id)),
	}

	start := time.Now()
	err = o.dispatch(runCtx, t, strings.TrimSpace(text))
	if err != nil && runCtx.Err() != nil && !errors.Is(err, ErrAborted) {
		err = fmt.Errorf("%w: %v", ErrAborted, err)
	}
	sess.Close()

	// Persist even when the turn failed or was aborted.
	if saveErr := o.deps.Store.Save(context.WithoutCancel(ctx), sess); saveErr != nil {
		t.log.Error("saving session failed", zap.Error(saveErr))
		if err == nil {
			err = fmt.Errorf("saving session: %w", saveErr)
		}
	}

	if err != nil {
		t.log.Warn("turn ended with error",
			zap.Stringer("phase", sess.Phase),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
	} else {
		t.log.Debug("turn complete", zap.Stringer("phase", sess.Phase), zap.Duration("elapsed", time.Since(start)))
	}
	return err
}

// Abort cancels the in-flight Handle for sessionID, if any. It reports
// whether a turn was running.
func (o *Orchestrator) Abort(sessionID string) bool {
	o.mu.Lock()
	cancel, ok := o.cancels[sessionID]
	o.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Finish aborts any running turn, waits for it and removes the session.
func (o *Orchestrator) Finish(ctx context.Context, sessionID string) error {
	if err := session.ValidateID(sessionID); err != nil {
		return err
	}
	o.Abort(sessionID)

	o.lock(sessionID)
	defer o.unlock(sessionID)

	if err := o.deps.Store.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	o.journal(log.Entry{Event: log.EventSessionFinished, SessionID: sessionID, Reason: "closed"})
	return nil
}

// lock acquires the session's turn lock, creating it on first use.
func (o *Orchestrator) lock(id string) {
	o.mu.Lock()
	l, ok := o.locks[id]
	if !ok {
		l = &sessionLock{}
		o.locks[id] = l
	}
	l.refs++
	o.mu.Unlock()

	l.mu.Lock()
}

func (o *Orchestrator) unlock(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	l := o.locks[id]
	l.mu.Unlock()
	if l.refs--; l.refs == 0 {
		delete(o.locks, id)
	}
}

// activeLocks returns how many sessions currently hold or wait for a lock.
func (o *Orchestrator) activeLocks() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.locks)
}

func (o *Orchestrator) setCancel(id string, cancel context.CancelFunc) {
	o.mu.Lock()
	o.cancels[id] = cancel
	o.mu.Unlock()
}

func (o *Orchestrator) clearCancel(id string) {
	o.mu.Lock()
	delete(o.cancels, id)
	o.mu.Unlock()
}

// journal writes to the run journal. Failures are logged, never returned.
func (o *Orchestrator) journal(ev log.Entry) {
	if err := o.deps.Journal.Append(ev); err != nil {
		o.logger.Warn("journal append failed", zap.String("event", ev.Event), zap.Error(err))
	}
}
