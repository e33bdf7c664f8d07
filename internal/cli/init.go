// init.go implements the "manimgpt init" command.
package cli

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/freQuensy23-coder/manim-gpt/internal/config"
	"github.com/freQuensy23-coder/manim-gpt/internal/detect"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration for the current directory",
	Long: `Create .manimgpt/config.yaml with the default settings and add the
runtime files to .gitignore. The API key is read from GEMINI_API_KEY unless
api_key is set in the config.`,
	RunE: runInit,
}

var (
	initReview string
	initStore  string
)

func init() {
	initCmd.Flags().StringVar(&initReview, "review", config.ReviewHuman, "Review mode: human or auto")
	initCmd.Flags().StringVar(&initStore, "store", config.StoreMemory, "Session store: memory or sqlite")
}

func runInit(cmd *cobra.Command, args []string) error {
	dir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting working directory: %w", err)
	}

	cfgPath := filepath.Join(config.Dir(dir), "config.yaml")
	if _, statErr := os.Stat(cfgPath); statErr == nil {
		fmt.Println("Warning: .manimgpt/config.yaml already exists.")
		fmt.Print("Overwrite with defaults? [y/N]: ")
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		answer = strings.TrimSpace(strings.ToLower(answer))
		if answer != "y" && answer != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	cfg := config.DefaultConfig()
	cfg.Review.Mode = initReview
	cfg.Store.Backend = initStore
	cfg.Render.Command = detect.RenderCommand(dir, cfg.Render.Command)
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := config.WriteConfig(dir, cfg); err != nil {
		return err
	}

	if err := ensureGitignore(dir, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to set up .gitignore: %v\n", err)
	}

	fmt.Println("manimgpt initialized")
	fmt.Printf("  Model:       %s\n", cfg.Model)
	fmt.Printf("  Review mode: %s\n", cfg.Review.Mode)
	fmt.Printf("  Store:       %s\n", cfg.Store.Backend)
	fmt.Printf("  Renderer:    %s\n", cfg.Render.Command)
	fmt.Printf("  Output dir:  %s\n", cfg.Render.OutputDir)
	fmt.Println()

	tools := detect.Tools(cmd.Context(), cfg.Render.Command)
	fmt.Println("Render toolchain:")
	for _, t := range tools {
		switch {
		case t.Found():
			fmt.Printf("  %-7s %s\n", t.Name, t.Version)
		case t.Required:
			fmt.Printf("  %-7s MISSING\n", t.Name)
		default:
			fmt.Printf("  %-7s not found (only needed for Tex and MathTex)\n", t.Name)
		}
	}
	if missing := detect.Missing(tools); len(missing) > 0 {
		fmt.Printf("Install %s before rendering.\n", strings.Join(missing, " and "))
	}
	fmt.Println()
	fmt.Println("Configuration written to .manimgpt/config.yaml")
	if os.Getenv(config.APIKeyEnv) == "" {
		fmt.Printf("Set %s before running manimgpt.\n", config.APIKeyEnv)
	}
	return nil
}

// ensureGitignore appends the runtime entries that are missing from .gitignore.
func ensureGitignore(dir string, cfg *config.Config) error {
	gitignorePath := filepath.Join(dir, ".gitignore")

	required := []string{
		".manimgpt/log.jsonl",
		".manimgpt/manimgpt.log",
		".manimgpt/*.db",
		strings.TrimSuffix(cfg.Render.OutputDir, "/") + "/",
		"media/",
	}

	existing := ""
	if data, err := os.ReadFile(gitignorePath); err == nil {
		existing = string(data)
	}

	var missing []string
	for _, entry := range required {
		if !strings.Contains(existing, entry) {
			missing = append(missing, entry)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	var b strings.Builder
	if existing != "" && !strings.HasSuffix(existing, "\n") {
		b.WriteString("\n")
	}
	if existing != "" {
		b.WriteString("\n# Added by manimgpt init\n")
	}
	for _, entry := range missing {
		b.WriteString(entry + "\n")
	}

	f, err := os.OpenFile(gitignorePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening .gitignore: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(b.String()); err != nil {
		return fmt.Errorf("writing .gitignore: %w", err)
	}
	return nil
}
