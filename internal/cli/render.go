// render.go implements "manimgpt render" for executing a scene file directly.
package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/freQuensy23-coder/manim-gpt/internal/render"
)

var renderCmd = &cobra.Command{
	Use:   "render <file.py>",
	Short: "Render a Manim scene file without the model",
	Long: `Render a scene file with the same renderer the loop uses and copy the
video into the output directory. Useful for checking a Manim install.`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

var (
	sceneFlag   string
	qualityFlag string
)

func init() {
	renderCmd.Flags().StringVar(&sceneFlag, "scene", "", "Scene class to render (default: render.scene from config)")
	renderCmd.Flags().StringVarP(&qualityFlag, "quality", "q", "", "Quality: l, m, h, p or k (default: render.quality from config)")
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if qualityFlag != "" {
		cfg.Render.Quality = qualityFlag
	}

	source, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading scene file: %w", err)
	}

	r, err := render.NewManimRenderer(cfg, logger.Named("render"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	fmt.Printf("Rendering %s ...\n", args[0])
	art, err := r.Render(ctx, render.Job{Source: string(source), Scene: sceneFlag})
	if err != nil {
		var failure *render.Failure
		if errors.As(err, &failure) && failure.Trace != "" {
			fmt.Fprintln(os.Stderr, failure.Trace)
		}
		return err
	}

	fmt.Printf("Video saved: %s\n", art.Path)
	fmt.Printf("  Size: %.2f MB\n", float64(art.Size)/(1<<20))
	fmt.Printf("  Time: %s\n", art.Duration.Round(100*time.Millisecond))
	return nil
}
