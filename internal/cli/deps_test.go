package cli

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/freQuensy23-coder/manim-gpt/internal/config"
	"github.com/freQuensy23-coder/manim-gpt/internal/orchestrator"
	"github.com/freQuensy23-coder/manim-gpt/internal/session"
)

func newReleaseServices(t *testing.T, backend string) (*services, *session.MemoryStore) {
	t.Helper()
	logger = zap.NewNop()

	cfg := config.DefaultConfig()
	cfg.Store.Backend = backend
	store := session.NewMemoryStore(time.Hour, 10)
	s, err := session.New("done-1")
	if err != nil {
		t.Fatal(err)
	}
	s.Phase = session.Finished
	if err := store.Save(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	return &services{
		cfg:   cfg,
		orch:  orchestrator.New(orchestrator.Deps{Store: store, Config: cfg}),
		close: func() {},
	}, store
}

func TestReleaseDropsMemorySession(t *testing.T) {
	a, store := newReleaseServices(t, config.StoreMemory)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a.release(ctx, "done-1")

	if _, err := store.Get(context.Background(), "done-1"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Get after release: err = %v, want ErrNotFound", err)
	}
}

func TestReleaseKeepsSQLiteTranscripts(t *testing.T) {
	a, store := newReleaseServices(t, config.StoreSQLite)

	a.release(context.Background(), "done-1")

	if _, err := store.Get(context.Background(), "done-1"); err != nil {
		t.Errorf("sqlite-backed sessions must survive release: %v", err)
	}
}
