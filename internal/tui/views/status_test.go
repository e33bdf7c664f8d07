package views

import (
	"strings"
	"testing"

	"github.com/freQuensy23-coder/manim-gpt/internal/session"
)

func TestStatusBarShowsPhaseAndVideo(t *testing.T) {
	s, err := session.New("status-test")
	if err != nil {
		t.Fatal(err)
	}
	s.Phase = session.AwaitFeedback
	s.LastArtifact = "/tmp/out/video_42.mp4"

	bar := statusBar(s, 80)
	if !strings.Contains(bar, "await_feedback") {
		t.Errorf("status bar %q missing phase", bar)
	}
	if !strings.Contains(bar, "video_42.mp4") {
		t.Errorf("status bar %q missing video name", bar)
	}
	if strings.Contains(bar, "/tmp/out") {
		t.Errorf("status bar %q should show only the file name", bar)
	}
}
