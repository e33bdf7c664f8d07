// chat.go implements the interactive session behind the bare "manimgpt" command.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/freQuensy23-coder/manim-gpt/internal/orchestrator"
	"github.com/freQuensy23-coder/manim-gpt/internal/session"
	"github.com/freQuensy23-coder/manim-gpt/internal/tui"
	"github.com/freQuensy23-coder/manim-gpt/internal/tui/app"
	"github.com/freQuensy23-coder/manim-gpt/internal/tui/views"
)

var (
	chatSession   string
	chatReview    string
	chatReasoning bool
)

func init() {
	rootCmd.Flags().StringVar(&chatSession, "session", "", "Resume or name a session (default: new random id)")
	rootCmd.Flags().StringVar(&chatReview, "review", "", "Override review mode: human or auto")
	rootCmd.Flags().BoolVar(&chatReasoning, "reasoning", true, "Show the model's reasoning")
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if chatReview != "" {
		cfg.Review.Mode = chatReview
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	id := chatSession
	if id == "" {
		id = session.NewID()
	}
	if err := session.ValidateID(id); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, err := newServices(ctx, cfg, "")
	if err != nil {
		return err
	}
	defer a.close()

	defer a.release(ctx, id)

	logger.Info("chat started", zap.String("session", id), zap.String("review", cfg.Review.Mode))

	if tui.IsTTY() {
		return tui.Run(app.New(ctx, a.orch, id, views.Hints{
			Continue:      firstToken(cfg.Tokens.Continue),
			Finish:        firstToken(cfg.Tokens.Finish),
			ShowReasoning: chatReasoning,
		}))
	}
	return lineChat(ctx, a, id)
}

// lineChat reads one message per line from stdin until the session finishes.
func lineChat(ctx context.Context, a *services, id string) error {
	p := newPrinter(os.Stdout, chatReasoning)
	fmt.Printf("Session %s. Describe the video you want.\n", id)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		p.typed = text

		phase, err := runTurn(ctx, a.orch, id, text, p)
		fmt.Println()
		switch {
		case err == nil:
		case errors.Is(err, orchestrator.ErrAttemptsExhausted):
			fmt.Fprintf(os.Stderr, "Error: %v. Send a message to try again.\n", err)
		case errors.Is(err, orchestrator.ErrAborted) && ctx.Err() != nil:
			return nil
		default:
			return err
		}
		if phase == session.Finished {
			return nil
		}
	}
}

// runTurn sends one message and prints the updates it produces. It returns
// the phase the session ended in.
func runTurn(ctx context.Context, orch *orchestrator.Orchestrator, id, text string, p *printer) (session.Phase, error) {
	updates, errs := orch.Handle(ctx, id, text)
	phase := session.AwaitTask
	for u := range updates {
		if p != nil {
			p.update(u.Session)
		}
		phase = u.Session.Phase
	}
	return phase, <-errs
}

func firstToken(tokens []string) string {
	if len(tokens) == 0 {
		return ""
	}
	return tokens[0]
}
