// sessions.go implements "manimgpt sessions" for listing stored sessions.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/freQuensy23-coder/manim-gpt/internal/config"
	"github.com/freQuensy23-coder/manim-gpt/internal/log"
	"github.com/freQuensy23-coder/manim-gpt/internal/report"
	"github.com/freQuensy23-coder/manim-gpt/internal/session"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions [id]",
	Short: "List stored sessions or show one transcript",
	Long: `Without arguments, list the most recently updated sessions. With a session
id, print its full transcript. Sessions outlive the process only with
store.backend set to sqlite.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSessions,
}

var (
	limitFlag  int
	deleteFlag bool
)

func init() {
	sessionsCmd.Flags().IntVarP(&limitFlag, "limit", "n", 20, "Maximum sessions to list")
	sessionsCmd.Flags().BoolVar(&deleteFlag, "delete", false, "Delete the given session")
}

func runSessions(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Store.Backend != config.StoreSQLite {
		return errors.New("sessions are only kept between runs with store.backend: sqlite")
	}

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx := cmd.Context()

	if len(args) == 0 {
		if deleteFlag {
			return errors.New("--delete needs a session id")
		}
		list, err := store.List(ctx, limitFlag)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No sessions stored.")
			return nil
		}
		for _, s := range list {
			fmt.Printf("  %-36s  %-14s  %3d turn(s)  %s  %s\n",
				s.ID, s.Phase, s.Turns, s.UpdatedAt.Format("2006-01-02 15:04"), firstLine(s.Request))
		}
		return nil
	}

	id := args[0]
	if deleteFlag {
		if err := store.Delete(ctx, id); err != nil {
			return err
		}
		fmt.Printf("Deleted session %s.\n", id)
		return nil
	}

	s, err := store.Get(ctx, id)
	if errors.Is(err, session.ErrNotFound) {
		return fmt.Errorf("session %s not found", id)
	}
	if err != nil {
		return err
	}

	var events []log.Entry
	if journal, err := log.Open("."); err == nil {
		events, _ = journal.ForSession(s.ID)
	}
	fmt.Print(report.FormatReport(report.Build(s, events)))

	p := newPrinter(os.Stdout, verbose)
	p.fullPrompts = true
	p.update(s)
	fmt.Println()
	return nil
}
