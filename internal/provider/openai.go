package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/dusk-indust/lessonforge/internal/config"
)

var _ Provider = (*OpenAI)(nil)

// OpenAI streams from any OpenAI-compatible chat completions endpoint,
// including Mistral's.
type OpenAI struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	log     *zap.Logger
	tokens  *tokenCounter
}

// NewOpenAI creates a client for cfg.BaseURL using cfg.APIKey.
func NewOpenAI(cfg config.ProviderConfig, logger *zap.Logger) *OpenAI {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &OpenAI{
		client:  openai.NewClientWithConfig(oc),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		log:     logger.Named("openai"),
		tokens:  newTokenCounter(cfg.Model),
	}
}

func (p *OpenAI) StreamText(ctx context.Context, prompt string, onChunk func(string) error) error {
	req := openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: prompt}},
	}
	return p.stream(ctx, modeText, prompt, req, onChunk)
}

func (p *OpenAI) StreamStructured(ctx context.Context, prompt string, schema Schema, onSnapshot func(json.RawMessage) error) error {
	format := &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	if schema.Definition != nil {
		format = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:        schema.Name,
				Description: schema.Description,
				Schema:      schema.Definition,
			},
		}
	}
	req := openai.ChatCompletionRequest{
		Model:          p.model,
		Messages:       []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: prompt}},
		ResponseFormat: format,
	}

	var snap Snapshotter
	err := p.stream(ctx, modeStructured, prompt, req, func(chunk string) error {
		if doc, ok := snap.Feed(chunk); ok {
			return onSnapshot(doc)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return finishSnapshots(&snap, onSnapshot)
}

func (p *OpenAI) stream(ctx context.Context, mode, prompt string, req openai.ChatCompletionRequest, onChunk func(string) error) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	req.Stream = true
	req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	start := time.Now()
	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		observeRequest("openai", p.model, mode, statusError, time.Since(start))
		p.log.Error("open stream failed", zap.String("mode", mode), zap.Error(err))
		return fmt.Errorf("%w: open stream: %w", ErrGeneration, err)
	}
	defer stream.Close()

	var (
		usage *openai.Usage
		out   strings.Builder
	)
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			observeRequest("openai", p.model, mode, statusError, time.Since(start))
			p.log.Error("stream receive failed", zap.String("mode", mode), zap.Int("received_bytes", out.Len()), zap.Error(err))
			return fmt.Errorf("%w: receive: %w", ErrGeneration, err)
		}
		if resp.Usage != nil && resp.Usage.TotalTokens > 0 {
			usage = resp.Usage
		}
		if len(resp.Choices) == 0 {
			continue
		}
		chunk := resp.Choices[0].Delta.Content
		if chunk == "" {
			continue
		}
		out.WriteString(chunk)
		if err := onChunk(chunk); err != nil {
			observeRequest("openai", p.model, mode, statusError, time.Since(start))
			return fmt.Errorf("%w: chunk handler: %w", ErrGeneration, err)
		}
	}

	duration := time.Since(start)
	observeRequest("openai", p.model, mode, statusSuccess, duration)
	if usage != nil {
		observeTokens("openai", p.model, usage.PromptTokens, usage.CompletionTokens)
	} else {
		observeTokens("openai", p.model, p.tokens.Count(prompt), p.tokens.Count(out.String()))
	}
	p.log.Debug("stream finished", zap.String("mode", mode), zap.Duration("duration", duration), zap.Int("bytes", out.Len()))
	return nil
}

// finishSnapshots validates the full structured output and delivers it if
// the last incremental snapshot did not already equal it.
func finishSnapshots(snap *Snapshotter, onSnapshot func(json.RawMessage) error) error {
	doc, changed, err := snap.Final()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	if !changed {
		return nil
	}
	if err := onSnapshot(doc); err != nil {
		return fmt.Errorf("%w: snapshot handler: %w", ErrGeneration, err)
	}
	return nil
}
