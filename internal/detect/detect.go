// Package detect finds the external tools the renderer depends on.
// This file provides RenderCommand and Tools for checking a project before
// the first render.
package detect

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// ToolInfo describes one external program.
type ToolInfo struct {
	Name     string // "manim", "ffmpeg", "latex"
	Path     string // resolved executable, empty when missing
	Version  string // first line of --version output
	Required bool   // false for tools only some scenes need
}

// Found reports whether the tool was located.
func (t ToolInfo) Found() bool { return t.Path != "" }

// versionTimeout bounds each --version probe; manim imports a lot on start.
const versionTimeout = 20 * time.Second

// venvDirs lists project-local virtualenv locations checked for manim.
var venvDirs = []string{".venv", "venv", "env"}

// RenderCommand returns the manim executable to use for dir. A configured
// command that resolves on PATH wins; otherwise a project virtualenv is
// tried. Returns configured unchanged when nothing better is found.
func RenderCommand(dir, configured string) string {
	if configured != "" {
		if _, err := exec.LookPath(configured); err == nil {
			return configured
		}
	}
	for _, venv := range venvDirs {
		candidate := filepath.Join(dir, venv, binDir(), exeName("manim"))
		if isExecutable(candidate) {
			return candidate
		}
	}
	return configured
}

// Tools probes manim (via command), ffmpeg and latex.
func Tools(ctx context.Context, command string) []ToolInfo {
	tools := []ToolInfo{
		{Name: "manim", Required: true},
		{Name: "ffmpeg", Required: true},
		{Name: "latex", Required: false},
	}
	lookups := map[string]string{
		"manim":  command,
		"ffmpeg": "ffmpeg",
		"latex":  "latex",
	}
	for i := range tools {
		path, err := exec.LookPath(lookups[tools[i].Name])
		if err != nil {
			continue
		}
		tools[i].Path = path
		tools[i].Version = version(ctx, path)
	}
	return tools
}

// Missing returns the required tools that were not found.
func Missing(tools []ToolInfo) []string {
	var out []string
	for _, t := range tools {
		if t.Required && !t.Found() {
			out = append(out, t.Name)
		}
	}
	return out
}

// version runs path --version and returns the first non-blank line.
// Returns an empty string if the probe fails.
func version(ctx context.Context, path string) string {
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, path, "--version").CombinedOutput()
	if err != nil && len(out) == 0 {
		return ""
	}
	return firstLine(string(out))
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if l := strings.TrimSpace(line); l != "" {
			return l
		}
	}
	return ""
}

// isExecutable returns true if path exists, is a regular file and has an
// execute bit set.
func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0111 != 0
}

func binDir() string {
	if runtime.GOOS == "windows" {
		return "Scripts"
	}
	return "bin"
}

func exeName(name string) string {
	if runtime.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}
