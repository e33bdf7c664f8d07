// Package cleanup prunes rendered videos from the output directory.
package cleanup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	videoPrefix = "video_"
	videoExt    = ".mp4"
)

// Video is a rendered artifact found in the output directory.
type Video struct {
	Name       string
	RenderedAt time.Time
	Size       int64
}

// VideoName returns the file name used for a video rendered at t.
func VideoName(t time.Time) string {
	return fmt.Sprintf("%s%d%s", videoPrefix, t.UnixNano(), videoExt)
}

// parseVideoName extracts the render time from video_<unix-nanos>.mp4.
func parseVideoName(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, videoPrefix) || !strings.HasSuffix(name, videoExt) {
		return time.Time{}, false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(name, videoPrefix), videoExt)
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return time.Time{}, false
	}
	return time.Unix(0, n), true
}

// ListVideos returns the rendered videos in outputDir, oldest first. Files
// that don't follow the naming scheme are ignored. A missing directory is
// not an error.
func ListVideos(outputDir string) ([]Video, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading output directory: %w", err)
	}

	var videos []Video
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		t, ok := parseVideoName(entry.Name())
		if !ok {
			continue
		}
		v := Video{Name: entry.Name(), RenderedAt: t}
		if info, err := entry.Info(); err == nil {
			v.Size = info.Size()
		}
		videos = append(videos, v)
	}

	sort.Slice(videos, func(i, j int) bool { return videos[i].RenderedAt.Before(videos[j].RenderedAt) })
	return videos, nil
}

// PruneByAge removes videos rendered more than maxAgeDays ago.
// If dryRun is true, nothing is deleted; the function only returns the names
// that would be removed.
func PruneByAge(outputDir string, maxAgeDays int, dryRun bool) ([]string, error) {
	videos, err := ListVideos(outputDir)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().AddDate(0, 0, -maxAgeDays)
	var old []Video
	for _, v := range videos {
		if v.RenderedAt.Before(cutoff) {
			old = append(old, v)
		}
	}
	return remove(outputDir, old, dryRun)
}

// PruneKeepRecent removes all but the keep most recent videos.
func PruneKeepRecent(outputDir string, keep int, dryRun bool) ([]string, error) {
	videos, err := ListVideos(outputDir)
	if err != nil {
		return nil, err
	}
	if keep < 0 {
		keep = 0
	}
	if len(videos) <= keep {
		return nil, nil
	}
	return remove(outputDir, videos[:len(videos)-keep], dryRun)
}

func remove(outputDir string, videos []Video, dryRun bool) ([]string, error) {
	var pruned []string
	for _, v := range videos {
		if !dryRun {
			if err := os.Remove(filepath.Join(outputDir, v.Name)); err != nil && !os.IsNotExist(err) {
				return pruned, fmt.Errorf("removing %s: %w", v.Name, err)
			}
		}
		pruned = append(pruned, v.Name)
	}
	return pruned, nil
}
