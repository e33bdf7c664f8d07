// generate.go implements "manimgpt generate", the non-interactive mode.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/freQuensy23-coder/manim-gpt/internal/config"
	"github.com/freQuensy23-coder/manim-gpt/internal/extract"
	"github.com/freQuensy23-coder/manim-gpt/internal/log"
	"github.com/freQuensy23-coder/manim-gpt/internal/report"
	"github.com/freQuensy23-coder/manim-gpt/internal/session"
	"github.com/freQuensy23-coder/manim-gpt/internal/ui"
)

var generateCmd = &cobra.Command{
	Use:   "generate <request>...",
	Short: "Generate videos without interaction",
	Long: `Run one session per request with model review enabled. Each session drafts
a scenario, continues straight to code generation and loops until the model
accepts its own render or the attempt budget runs out.

Requests run concurrently, up to generate.parallel at a time.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGenerate,
}

var (
	showCodeFlag bool
	hintFlag     string
	parallelFlag int
)

func init() {
	generateCmd.Flags().BoolVar(&showCodeFlag, "show-code", false, "Print the final scene code")
	generateCmd.Flags().StringVar(&hintFlag, "hint", "", "Extra guidance appended to every review rejection")
	generateCmd.Flags().IntVar(&parallelFlag, "parallel", 0, "Concurrent sessions (0 = generate.parallel from config)")
}

// generated is the outcome of one request.
type generated struct {
	request string
	id      string
	video   string
	code    string
	report  string
	err     error
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Review.Mode = config.ReviewAuto

	parallel := parallelFlag
	if parallel <= 0 {
		parallel = cfg.Generate.Parallel
	}
	if parallel <= 0 {
		parallel = 1
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, err := newServices(ctx, cfg, hintFlag)
	if err != nil {
		return err
	}
	defer a.close()

	results := make([]generated, len(args))
	progress := ui.NewProgressDisplay(args)
	progress.Start()

	// Sessions are independent: one failure must not cancel the others.
	var g errgroup.Group
	g.SetLimit(parallel)
	for i, request := range args {
		g.Go(func() error {
			res := generateOne(ctx, a, request, func(p session.Phase) { progress.SetPhase(i, p) })
			results[i] = res
			progress.Complete(i, res.video, res.err)
			return nil
		})
	}
	_ = g.Wait()
	progress.Finish()

	return summarize(results)
}

// generateOne drives a single session from request to accepted video.
// onPhase is called for every update.
func generateOne(ctx context.Context, a *services, request string, onPhase func(session.Phase)) (res generated) {
	res = generated{request: request, id: session.NewID()}
	sessLog := logger.With(zap.String("session", res.id))
	sessLog.Info("generate started", zap.String("request", request))

	var last *session.Session
	defer func() {
		if last != nil {
			res.report = writeReport(a, last)
		}
		a.release(ctx, res.id)
	}()
	for _, msg := range []string{request, firstToken(a.cfg.Tokens.Continue)} {
		updates, errs := a.orch.Handle(ctx, res.id, msg)
		for u := range updates {
			if last == nil || u.Session.Phase != last.Phase {
				sessLog.Info("phase", zap.Stringer("phase", u.Session.Phase))
			}
			onPhase(u.Session.Phase)
			last = u.Session
			if u.Artifact != "" {
				res.video = u.Artifact
			}
		}
		if err := <-errs; err != nil {
			res.err = err
			return res
		}
	}

	if last == nil || last.Phase != session.Finished {
		res.err = errors.New("session ended without an accepted video")
		return res
	}
	res.code = finalCode(last, a.cfg.Render.Language)
	return res
}

// finalCode returns the newest scene code found in the session's answers.
func finalCode(s *session.Session, lang string) string {
	for i := len(s.Turns) - 1; i >= 0; i-- {
		if code, err := extract.Code(s.Turns[i].Answer, lang); err == nil {
			return code
		}
	}
	return ""
}

// writeReport stores the session report next to the journal. Failures are
// logged and leave the path empty.
func writeReport(a *services, s *session.Session) string {
	var events []log.Entry
	if a.journal != nil {
		var err error
		if events, err = a.journal.ForSession(s.ID); err != nil {
			logger.Warn("reading journal", zap.String("session", s.ID), zap.Error(err))
		}
	}
	path, err := report.WriteReport(filepath.Join(config.Dir("."), "reports"), report.Build(s, events))
	if err != nil {
		logger.Warn("writing report", zap.String("session", s.ID), zap.Error(err))
		return ""
	}
	return path
}

func summarize(results []generated) error {
	failed := 0
	fmt.Println()
	for i, r := range results {
		if r.err != nil {
			failed++
			fmt.Printf("  [%d] FAILED  %s\n        %v\n", i+1, r.request, r.err)
		} else {
			fmt.Printf("  [%d] OK      %s\n        %s\n", i+1, r.request, r.video)
		}
		if r.report != "" {
			fmt.Printf("        report: %s\n", r.report)
		}
		if showCodeFlag && r.code != "" {
			fmt.Printf("\n%s\n\n", r.code)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d request(s) failed", failed)
	}
	return nil
}
