package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"

	"github.com/dusk-indust/lessonforge/internal/config"
)

var _ Provider = (*Ollama)(nil)

// Ollama streams from a local Ollama server using its native chat API.
type Ollama struct {
	client  *api.Client
	model   string
	timeout time.Duration
	log     *zap.Logger
}

// NewOllama creates a client for cfg.BaseURL. A trailing "/v1" is removed
// because the native API is served from the root.
func NewOllama(cfg config.ProviderConfig, logger *zap.Logger) (*Ollama, error) {
	base := strings.TrimSuffix(strings.TrimSuffix(cfg.BaseURL, "/"), "/v1")
	if base == "" {
		base = "http://localhost:11434"
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("provider: parse ollama base url %q: %w", base, err)
	}
	logger.Info("using ollama provider", zap.String("base_url", base), zap.String("model", cfg.Model))
	return &Ollama{
		client:  api.NewClient(u, &http.Client{Timeout: cfg.Timeout}),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		log:     logger.Named("ollama"),
	}, nil
}

func (p *Ollama) StreamText(ctx context.Context, prompt string, onChunk func(string) error) error {
	return p.chat(ctx, modeText, prompt, nil, onChunk)
}

func (p *Ollama) StreamStructured(ctx context.Context, prompt string, schema Schema, onSnapshot func(json.RawMessage) error) error {
	format := json.RawMessage(`"json"`)
	if schema.Definition != nil {
		raw, err := schema.Definition.MarshalJSON()
		if err != nil {
			return fmt.Errorf("%w: marshal schema %s: %w", ErrGeneration, schema.Name, err)
		}
		format = raw
	}

	var snap Snapshotter
	err := p.chat(ctx, modeStructured, prompt, format, func(chunk string) error {
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

func (p *Ollama) chat(ctx context.Context, mode, prompt string, format json.RawMessage, onChunk func(string) error) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	stream := true
	req := &api.ChatRequest{
		Model:    p.model,
		Messages: []api.Message{{Role: "user", Content: prompt}},
		Stream:   &stream,
		Format:   format,
	}

	start := time.Now()
	var (
		handlerErr                 error
		promptTokens, outputTokens int
		received                   int
	)
	err := p.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		if resp.Message.Content != "" {
			received += len(resp.Message.Content)
			if err := onChunk(resp.Message.Content); err != nil {
				handlerErr = err
				return err
			}
		}
		if resp.Done {
			promptTokens = resp.PromptEvalCount
			outputTokens = resp.EvalCount
			if resp.DoneReason != "" && resp.DoneReason != "stop" {
				p.log.Warn("stream ended early", zap.String("mode", mode), zap.String("reason", resp.DoneReason))
			}
		}
		return nil
	})
	if handlerErr != nil {
		observeRequest("ollama", p.model, mode, statusError, time.Since(start))
		return fmt.Errorf("%w: chunk handler: %w", ErrGeneration, handlerErr)
	}
	if err != nil {
		observeRequest("ollama", p.model, mode, statusError, time.Since(start))
		p.log.Error("chat stream failed", zap.String("mode", mode), zap.Int("received_bytes", received), zap.Error(err))
		return fmt.Errorf("%w: chat: %w", ErrGeneration, err)
	}

	observeRequest("ollama", p.model, mode, statusSuccess, time.Since(start))
	observeTokens("ollama", p.model, promptTokens, outputTokens)
	return nil
}
