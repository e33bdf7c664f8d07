// Package stream assembles incrementally streamed model output into turns.
package stream

import (
	"context"
	"errors"
	"strings"
)

// Kind tags a chunk as reasoning or final answer text.
type Kind int

const (
	Answer Kind = iota
	Reasoning
)

func (k Kind) String() string {
	if k == Reasoning {
		return "reasoning"
	}
	return "answer"
}

// Chunk is one unit emitted by the conversational service during a turn.
type Chunk struct {
	Kind Kind
	Text string
}

// Sink observes every chunk before the aggregator reads the next one.
type Sink interface {
	Observe(Chunk) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Chunk) error

// Observe implements Sink.
func (f SinkFunc) Observe(c Chunk) error { return f(c) }

// Result is the completed text of one turn.
type Result struct {
	Answer    string // ordered concatenation of Answer chunks
	Reasoning string // ordered concatenation of Reasoning chunks
	Chunks    int
}

// ErrStreamClosed is returned when the error channel closes before the chunk
// channel is drained, which producers must never do.
var ErrStreamClosed = errors.New("stream closed without completing")

// Aggregate drains chunks in emission order, handing each to sink before the
// next is read. It returns once chunks is closed and errs has produced either
// nothing or one error. A nil sink is allowed.
func Aggregate(ctx context.Context, chunks <-chan Chunk, errs <-chan error, sink Sink) (Result, error) {
	var answer, reasoning strings.Builder
	var res Result

	for {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case c, ok := <-chunks:
			if !ok {
				res.Answer = answer.String()
				res.Reasoning = reasoning.String()
				return res, drainErr(ctx, errs)
			}
			if c.Text == "" {
				continue
			}
			res.Chunks++
			switch c.Kind {
			case Reasoning:
				reasoning.WriteString(c.Text)
			default:
				answer.WriteString(c.Text)
			}
			if sink != nil {
				if err := sink.Observe(c); err != nil {
					res.Answer = answer.String()
					res.Reasoning = reasoning.String()
					return res, err
				}
			}
		}
	}
}

// drainErr waits for the producer's terminal error, if any.
func drainErr(ctx context.Context, errs <-chan error) error {
	if errs == nil {
		return nil
	}
	select {
	case err, ok := <-errs:
		if !ok {
			return nil
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FromSlice replays a fixed set of chunks, closing both channels when done.
// Useful for scripted conversations.
func FromSlice(ctx context.Context, in []Chunk, err error) (<-chan Chunk, <-chan error) {
	out := make(chan Chunk)
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		defer close(out)
		for _, c := range in {
			select {
			case out <- c:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
		if err != nil {
			errCh <- err
		}
	}()
	return out, errCh
}
