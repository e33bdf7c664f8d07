// Package testutil provides test helper utilities for manimgpt tests.
package testutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// TempProject creates a temporary directory with the given files and returns its path.
// Files is a map of relative path -> content. Directories are created as needed.
// The directory is automatically cleaned up when the test finishes.
func TempProject(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()

	for relPath, content := range files {
		absPath := filepath.Join(dir, relPath)
		if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
			t.Fatalf("creating directory for %s: %v", relPath, err)
		}
		if err := os.WriteFile(absPath, []byte(content), 0644); err != nil {
			t.Fatalf("writing %s: %v", relPath, err)
		}
	}

	return dir
}

// FakeManim writes an executable shell script standing in for the manim CLI
// and returns its path. The script runs in the render scratch directory with
// the usual manim arguments; $3 is the scene name. Tests are skipped on
// Windows.
func FakeManim(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script renderer not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "manim")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("writing fake manim: %v", err)
	}
	return path
}

// RenderOK is a FakeManim body that writes a video containing the scene name.
const RenderOK = `
test -f scene.py || exit 3
mkdir -p media/videos/scene/720p30
printf "$3" > media/videos/scene/720p30/video.mp4
`

// RenderError is a FakeManim body that fails with a Python traceback.
const RenderError = `
echo "Traceback (most recent call last):" >&2
echo "NameError: name 'Circl' is not defined" >&2
exit 1
`

// SceneProject returns the files of a project with one scene file.
func SceneProject() map[string]string {
	return map[string]string{
		"scene.py": "from manim import *\n\nclass VideoScene(Scene):\n    def construct(self):\n        self.play(Create(Circle()))\n",
	}
}
