// deps.go assembles the orchestrator and its collaborators from config.
package cli

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/freQuensy23-coder/manim-gpt/internal/config"
	"github.com/freQuensy23-coder/manim-gpt/internal/llm"
	"github.com/freQuensy23-coder/manim-gpt/internal/log"
	"github.com/freQuensy23-coder/manim-gpt/internal/orchestrator"
	"github.com/freQuensy23-coder/manim-gpt/internal/publish"
	"github.com/freQuensy23-coder/manim-gpt/internal/render"
	"github.com/freQuensy23-coder/manim-gpt/internal/session"
)

// services bundles what a command needs to run sessions.
type services struct {
	cfg     *config.Config
	orch    *orchestrator.Orchestrator
	journal *log.Journal
	close   func()
}

// loadConfig reads the project config from the working directory.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(".")
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// openStore opens the configured session store. The returned func releases it.
func openStore(cfg *config.Config) (session.Store, func(), error) {
	switch cfg.Store.Backend {
	case config.StoreSQLite:
		st, err := session.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			return nil, nil, err
		}
		return st, func() {
			if err := st.Close(); err != nil {
				logger.Warn("closing session store", zap.Error(err))
			}
		}, nil
	default:
		return session.NewMemoryStore(cfg.SessionTTL(), cfg.Store.MaxSessions), func() {}, nil
	}
}

// newServices wires model, renderer, publisher, store and journal into an
// orchestrator. hint is appended to review-rejection prompts.
func newServices(ctx context.Context, cfg *config.Config, hint string) (*services, error) {
	model, err := llm.NewGemini(ctx, cfg.APIKey, cfg.Model, logger.Named("llm"))
	if err != nil {
		return nil, err
	}

	renderer, err := render.NewManimRenderer(cfg, logger.Named("render"))
	if err != nil {
		return nil, err
	}

	pub := publish.New(model.Files(), publish.Options{
		MIMEType:     cfg.Publish.MIMEType,
		PollInterval: cfg.PollInterval(),
		MaxWait:      cfg.PublishMaxWait(),
		Logger:       logger.Named("publish"),
	})

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	// The journal is best effort; the loop runs without it.
	journal, err := log.Open(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: run journal disabled: %v\n", err)
		journal = nil
	}

	orch := orchestrator.New(orchestrator.Deps{
		Store:     store,
		Model:     model,
		Renderer:  renderer,
		Publisher: pub,
		Config:    cfg,
		Logger:    logger.Named("orchestrator"),
		Journal:   journal,
		Hint:      hint,
	})

	return &services{cfg: cfg, orch: orch, journal: journal, close: closeStore}, nil
}

// release tears down a session its command is done with. Memory sessions
// would otherwise linger until their TTL; sqlite sessions are kept for the
// sessions command.
func (a *services) release(ctx context.Context, id string) {
	if a.cfg.Store.Backend == config.StoreSQLite {
		return
	}
	if err := a.orch.Finish(context.WithoutCancel(ctx), id); err != nil {
		logger.Warn("releasing session", zap.String("session", id), zap.Error(err))
	}
}
