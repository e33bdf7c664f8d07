// Package cli defines Cobra command definitions for the manimgpt CLI.
// This file contains the root command and the shared logger setup.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/freQuensy23-coder/manim-gpt/internal/config"
	"github.com/freQuensy23-coder/manim-gpt/internal/tui"
)

var (
	verbose bool
	version = "dev" // set via ldflags at build time

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "manimgpt",
	Short: "Turn a video idea into a rendered Manim animation",
	Long: `manimgpt drafts a scenario for your idea with Gemini, asks it for Manim
code, renders the code and feeds any error back into the same conversation
until a video comes out. The result is then reviewed, either by you or by
the model itself, and the loop continues until the video is accepted.`,
	Version:           version,
	SilenceErrors:     true,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogger,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runChat,
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setupLogger builds the process logger. In TUI mode stderr belongs to the
// screen, so logs go to .manimgpt/manimgpt.log instead.
func setupLogger(cmd *cobra.Command, args []string) error {
	zcfg := zap.NewProductionConfig()
	if verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	if !cmd.HasParent() && tui.IsTTY() {
		dir := config.Dir(".")
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
		zcfg.OutputPaths = []string{filepath.Join(dir, "manimgpt.log")}
		zcfg.ErrorOutputPaths = zcfg.OutputPaths
	}

	l, err := zcfg.Build()
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	logger = l
	return nil
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(cleanCmd)
}
