// manim.go runs the Manim CLI in a throwaway workspace per attempt.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/freQuensy23-coder/manim-gpt/internal/cleanup"
	"github.com/freQuensy23-coder/manim-gpt/internal/config"
)

const (
	sceneFile  = "scene.py"
	outputName = "video.mp4"
)

// ManimRenderer invokes `manim render` as an isolated subprocess.
type ManimRenderer struct {
	command    string
	scene      string
	quality    string
	timeout    time.Duration
	traceLimit int
	outputDir  string
	logger     *zap.Logger
}

// NewManimRenderer creates a renderer from the render section of cfg.
// The output directory is created if missing.
func NewManimRenderer(cfg *config.Config, logger *zap.Logger) (*ManimRenderer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	outDir, err := filepath.Abs(cfg.Render.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("resolving output dir: %w", err)
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}
	return &ManimRenderer{
		command:    cfg.Render.Command,
		scene:      cfg.Render.Scene,
		quality:    cfg.Render.Quality,
		timeout:    cfg.RenderTimeout(),
		traceLimit: cfg.Render.TraceLimit,
		outputDir:  outDir,
		logger:     logger,
	}, nil
}

// Render writes the source into a fresh scratch directory, renders it and
// copies the newest mp4 into the output directory. The scratch directory is
// removed on every path. Failures are returned as *Failure.
func (r *ManimRenderer) Render(ctx context.Context, job Job) (*Artifact, error) {
	scene := job.Scene
	if scene == "" {
		scene = r.scene
	}

	workDir, err := os.MkdirTemp("", "manimgpt-*")
	if err != nil {
		return nil, fmt.Errorf("creating scratch dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(workDir); rmErr != nil {
			r.logger.Warn("scratch dir cleanup failed", zap.String("dir", workDir), zap.Error(rmErr))
		}
	}()

	codePath := filepath.Join(workDir, sceneFile)
	if err := os.WriteFile(codePath, []byte(job.Source), 0644); err != nil {
		return nil, fmt.Errorf("writing scene file: %w", err)
	}

	start := time.Now()
	if err := r.run(ctx, workDir, scene); err != nil {
		return nil, err
	}

	video, err := newestVideo(filepath.Join(workDir, "media"))
	if err != nil {
		return nil, &Failure{Message: err.Error()}
	}

	final, size, err := r.copyToOutput(video)
	if err != nil {
		return nil, fmt.Errorf("copying video to output: %w", err)
	}

	art := &Artifact{Path: final, Size: size, Duration: time.Since(start)}
	r.logger.Info("render succeeded",
		zap.String("artifact", final),
		zap.Int64("bytes", size),
		zap.Duration("elapsed", art.Duration))
	return art, nil
}

// run executes the manim command with the hard timeout. A cancelled parent
// context kills the process too.
func (r *ManimRenderer) run(ctx context.Context, workDir, scene string) error {
	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	args := buildManimArgs(sceneFile, scene, r.quality)
	r.logger.Debug("executing renderer", zap.String("command", r.command), zap.Strings("args", args))

	cmd := exec.CommandContext(runCtx, r.command, args...)
	cmd.Dir = workDir
	// manim forks ffmpeg; don't wait forever on pipes held by orphans.
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}

	// Parent cancellation is an abort, not a render failure.
	if ctx.Err() != nil {
		return ctx.Err()
	}

	trace := stderr.String()
	if strings.TrimSpace(trace) == "" {
		trace = stdout.String()
	}
	if strings.TrimSpace(trace) == "" {
		trace = err.Error()
	}
	trace = Truncate(trace, r.traceLimit)

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		r.logger.Warn("render timed out", zap.Duration("timeout", r.timeout))
		return &Failure{
			Message:  fmt.Sprintf("render timed out after %s", r.timeout),
			Trace:    trace,
			TimedOut: true,
		}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		r.logger.Info("render failed", zap.Int("exit_code", exitErr.ExitCode()))
		return &Failure{
			Message: fmt.Sprintf("manim exited with status %d: %s", exitErr.ExitCode(), lastLine(trace)),
			Trace:   trace,
		}
	}
	return &Failure{Message: fmt.Sprintf("running %s: %v", r.command, err), Trace: trace}
}

// buildManimArgs constructs the CLI argument slice for one render.
func buildManimArgs(file, scene, quality string) []string {
	if quality == "" {
		quality = "m"
	}
	return []string{
		"render",
		file,
		scene,
		"--format", "mp4",
		"-q", quality,
		"--output_file", outputName,
	}
}

// newestVideo finds the most recently written mp4 under mediaDir.
func newestVideo(mediaDir string) (string, error) {
	if _, err := os.Stat(mediaDir); err != nil {
		return "", errors.New("media folder not found after running manim")
	}

	var newest string
	var newestMod time.Time
	err := filepath.WalkDir(mediaDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".mp4") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest = path
			newestMod = info.ModTime()
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("scanning media folder: %w", err)
	}
	if newest == "" {
		return "", errors.New("video file not found after rendering")
	}
	return newest, nil
}

// copyToOutput copies video into the output dir under a unique name.
func (r *ManimRenderer) copyToOutput(video string) (string, int64, error) {
	dst := filepath.Join(r.outputDir, cleanup.VideoName(time.Now()))

	in, err := os.Open(video)
	if err != nil {
		return "", 0, err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(out, in)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(dst)
		return "", 0, err
	}
	return dst, n, nil
}

// lastLine returns the last non-blank line of s.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n "), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
