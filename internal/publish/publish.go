// Package publish uploads rendered artifacts to the model provider and waits
// until they can be referenced from a prompt.
package publish

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrPublishFailed is returned when an upload is rejected, ends in the failed
// state or does not become ready within the wait budget.
var ErrPublishFailed = errors.New("publish failed")

// State is the provider-side processing state of an uploaded file.
type State int

const (
	Processing State = iota
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "processing"
	}
}

// File describes an uploaded artifact.
type File struct {
	Name     string // provider handle used for polling
	URI      string // reference placed in prompts
	MIMEType string
	State    State
	Reason   string // provider error text when State is Failed
}

// FileService is the provider's upload and status API.
type FileService interface {
	Upload(ctx context.Context, path, mimeType string) (File, error)
	Get(ctx context.Context, name string) (File, error)
}

// Options configures a Publisher.
type Options struct {
	MIMEType     string
	PollInterval time.Duration
	MaxWait      time.Duration
	Logger       *zap.Logger
}

// Publisher uploads a file then polls at a fixed interval until it is ready.
type Publisher struct {
	svc  FileService
	opts Options
}

// New creates a Publisher. Zero options fall back to 3s polling, a 5 minute
// cap and video/mp4.
func New(svc FileService, opts Options) *Publisher {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 3 * time.Second
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = 5 * time.Minute
	}
	if opts.MIMEType == "" {
		opts.MIMEType = "video/mp4"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Publisher{svc: svc, opts: opts}
}

// Publish uploads path and blocks until the file is ready. Every failure
// other than cancellation of ctx wraps ErrPublishFailed.
func (p *Publisher) Publish(ctx context.Context, path string) (File, error) {
	start := time.Now()
	log := p.opts.Logger.With(zap.String("path", path))

	f, err := p.svc.Upload(ctx, path, p.opts.MIMEType)
	if err != nil {
		if ctx.Err() != nil {
			return File{}, ctx.Err()
		}
		return File{}, fmt.Errorf("%w: upload: %v", ErrPublishFailed, err)
	}
	log.Debug("artifact uploaded", zap.String("name", f.Name), zap.Stringer("state", f.State))

	waitCtx, cancel := context.WithTimeout(ctx, p.opts.MaxWait)
	defer cancel()

	ticker := time.NewTicker(p.opts.PollInterval)
	defer ticker.Stop()

	for {
		switch f.State {
		case Ready:
			log.Info("artifact ready", zap.String("uri", f.URI), zap.Duration("elapsed", time.Since(start)))
			return f, nil
		case Failed:
			return f, fmt.Errorf("%w: %s entered failed state: %s", ErrPublishFailed, f.Name, f.Reason)
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return f, ctx.Err()
			}
			return f, fmt.Errorf("%w: %s not ready after %s: %w", ErrPublishFailed, f.Name, p.opts.MaxWait, context.DeadlineExceeded)
		case <-ticker.C:
		}

		name := f.Name
		f, err = p.svc.Get(waitCtx, name)
		if err != nil {
			if ctx.Err() != nil {
				return File{}, ctx.Err()
			}
			if waitCtx.Err() != nil {
				return File{}, fmt.Errorf("%w: %s not ready after %s: %w", ErrPublishFailed, name, p.opts.MaxWait, context.DeadlineExceeded)
			}
			return File{}, fmt.Errorf("%w: polling %s: %v", ErrPublishFailed, name, err)
		}
		log.Debug("artifact state", zap.String("name", name), zap.Stringer("state", f.State))
	}
}
