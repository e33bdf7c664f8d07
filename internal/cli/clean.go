// clean.go implements the "manimgpt clean" command for pruning rendered videos.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/freQuensy23-coder/manim-gpt/internal/cleanup"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove old rendered videos",
	Long: `Remove rendered videos from the configured output directory.

By default, removes videos older than the configured max_age_days (default 30).
Use --keep to keep only the N most recent videos instead.
Use --dry-run to preview what would be removed.`,
	RunE: runClean,
}

var (
	keepFlag   int
	dryRunFlag bool
)

func init() {
	cleanCmd.Flags().IntVar(&keepFlag, "keep", 0, "Keep only the last N videos (0 = use age-based cleanup)")
	cleanCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "Preview what would be removed without deleting")
}

func runClean(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	outDir := cfg.Render.OutputDir

	var pruned []string
	if keepFlag > 0 {
		pruned, err = cleanup.PruneKeepRecent(outDir, keepFlag, dryRunFlag)
	} else {
		maxAge := cfg.Cleanup.MaxAgeDays
		if maxAge <= 0 {
			maxAge = 30
		}
		pruned, err = cleanup.PruneByAge(outDir, maxAge, dryRunFlag)
	}
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}

	if len(pruned) == 0 {
		fmt.Println("No videos to clean up.")
		return nil
	}

	verb := "Removed"
	if dryRunFlag {
		verb = "Would remove"
	}
	for _, name := range pruned {
		fmt.Printf("  %s %s\n", verb, name)
	}
	fmt.Printf("%s %d video(s).\n", verb, len(pruned))
	return nil
}
