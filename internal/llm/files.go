// files.go exposes the Gemini Files API as a publish.FileService.
package llm

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/freQuensy23-coder/manim-gpt/internal/publish"
)

var _ publish.FileService = (*GeminiFiles)(nil)

// GeminiFiles uploads artifacts so they can be attached to chat turns.
type GeminiFiles struct {
	client *genai.Client
	logger *zap.Logger
}

// Upload sends the file at path to the Files API.
func (f *GeminiFiles) Upload(ctx context.Context, path, mimeType string) (publish.File, error) {
	file, err := f.client.Files.UploadFromPath(ctx, path, &genai.UploadFileConfig{
		DisplayName: filepath.Base(path),
		MIMEType:    mimeType,
	})
	if err != nil {
		return publish.File{}, fmt.Errorf("uploading %s: %w", path, err)
	}
	f.logger.Debug("file uploaded", zap.String("name", file.Name), zap.String("state", string(file.State)))
	return toPublishFile(file), nil
}

// Get fetches the current state of an uploaded file.
func (f *GeminiFiles) Get(ctx context.Context, name string) (publish.File, error) {
	file, err := f.client.Files.Get(ctx, name, nil)
	if err != nil {
		return publish.File{}, fmt.Errorf("getting file %s: %w", name, err)
	}
	return toPublishFile(file), nil
}

func toPublishFile(file *genai.File) publish.File {
	out := publish.File{
		Name:     file.Name,
		URI:      file.URI,
		MIMEType: file.MIMEType,
		State:    toState(file.State),
	}
	if file.Error != nil {
		out.Reason = file.Error.Message
	}
	return out
}

func toState(s genai.FileState) publish.State {
	switch s {
	case genai.FileStateActive:
		return publish.Ready
	case genai.FileStateFailed:
		return publish.Failed
	default:
		return publish.Processing
	}
}
