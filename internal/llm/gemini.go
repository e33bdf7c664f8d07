// gemini.go implements Model on the Gemini chat API with thought streaming.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/freQuensy23-coder/manim-gpt/internal/stream"
)

const chunkBuffer = 64

var _ Model = (*GeminiModel)(nil)

// GeminiModel opens Gemini chats that report thoughts separately from answers.
type GeminiModel struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

// NewGemini creates a Gemini client for the given model.
func NewGemini(ctx context.Context, apiKey, model string, logger *zap.Logger) (*GeminiModel, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiModel{client: client, model: model, logger: logger}, nil
}

// Files returns the file service backed by the same client.
func (m *GeminiModel) Files() *GeminiFiles {
	return &GeminiFiles{client: m.client, logger: m.logger}
}

// Open starts a new chat. The returned conversation keeps its history on the
// client side of the SDK.
func (m *GeminiModel) Open(ctx context.Context) (Conversation, error) {
	chat, err := m.client.Chats.Create(ctx, m.model, &genai.GenerateContentConfig{
		ThinkingConfig: &genai.ThinkingConfig{IncludeThoughts: true},
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("creating chat: %w", err)
	}
	conv := &geminiConversation{
		id:     uuid.New().String(),
		chat:   chat,
		logger: m.logger,
	}
	m.logger.Debug("conversation opened", zap.String("conversation", conv.id), zap.String("model", m.model))
	return conv, nil
}

type geminiConversation struct {
	id     string
	chat   *genai.Chat
	logger *zap.Logger
}

func (c *geminiConversation) ID() string { return c.id }

// Stream sends p and relays response parts as chunks. Both channels are
// closed when the response ends; errs carries at most one error.
func (c *geminiConversation) Stream(ctx context.Context, p Prompt) (<-chan stream.Chunk, <-chan error) {
	out := make(chan stream.Chunk, chunkBuffer)
	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		defer close(out)

		start := time.Now()
		n := 0
		for resp, err := range c.chat.SendMessageStream(ctx, promptParts(p)...) {
			if err != nil {
				c.logger.Warn("stream error",
					zap.String("conversation", c.id),
					zap.Duration("elapsed", time.Since(start)),
					zap.Error(err))
				errCh <- fmt.Errorf("stream error: %w", err)
				return
			}
			for _, chunk := range chunksFromResponse(resp) {
				select {
				case out <- chunk:
					n++
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				}
			}
		}
		c.logger.Debug("stream completed",
			zap.String("conversation", c.id),
			zap.Int("chunks", n),
			zap.Duration("elapsed", time.Since(start)))
	}()

	return out, errCh
}

// promptParts orders the attachment before the text.
func promptParts(p Prompt) []genai.Part {
	var parts []genai.Part
	if p.Attachment != nil {
		parts = append(parts, genai.Part{FileData: &genai.FileData{
			FileURI:  p.Attachment.URI,
			MIMEType: p.Attachment.MIMEType,
		}})
	}
	if p.Text != "" {
		parts = append(parts, genai.Part{Text: p.Text})
	}
	return parts
}

// chunksFromResponse maps the first candidate's text parts to chunks.
func chunksFromResponse(resp *genai.GenerateContentResponse) []stream.Chunk {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil
	}
	cand := resp.Candidates[0]
	if cand == nil || cand.Content == nil {
		return nil
	}
	var chunks []stream.Chunk
	for _, part := range cand.Content.Parts {
		if part == nil || part.Text == "" {
			continue
		}
		kind := stream.Answer
		if part.Thought {
			kind = stream.Reasoning
		}
		chunks = append(chunks, stream.Chunk{Kind: kind, Text: part.Text})
	}
	return chunks
}
