// Package provider streams text and structured output from hosted or local
// large-language-model backends.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dusk-indust/lessonforge/internal/config"
)

var (
	// ErrGeneration wraps every transport or model fault.
	ErrGeneration = errors.New("generation failed")

	// ErrMalformed is returned when a structured response is not valid JSON
	// once the stream ends.
	ErrMalformed = errors.New("malformed structured response")
)

// Schema describes the shape a structured generation must conform to.
type Schema struct {
	Name        string
	Description string
	// Definition is the JSON Schema document. It is sent to backends that
	// support schema-constrained output.
	Definition json.Marshaler
}

// Provider streams model output.
//
// StreamText calls onChunk for every incremental text chunk. StreamStructured
// calls onSnapshot with successive prefix-consistent JSON documents; the last
// snapshot delivered before a nil return is the complete result. Both calls
// are finite and not restartable. An error returned by a callback aborts the
// stream and is returned wrapped in ErrGeneration.
type Provider interface {
	StreamText(ctx context.Context, prompt string, onChunk func(string) error) error
	StreamStructured(ctx context.Context, prompt string, schema Schema, onSnapshot func(json.RawMessage) error) error
}

// New returns the Provider selected by cfg.Kind.
func New(cfg config.ProviderConfig, logger *zap.Logger) (Provider, error) {
	switch strings.ToLower(cfg.Kind) {
	case "openai", "mistral", "":
		logger.Info("using openai-compatible provider",
			zap.String("base_url", cfg.BaseURL), zap.String("model", cfg.Model), zap.Duration("timeout", cfg.Timeout))
		return NewOpenAI(cfg, logger), nil
	case "ollama":
		return NewOllama(cfg, logger)
	case "canned":
		logger.Warn("using canned provider, output is fixed demo content")
		return Demo(), nil
	default:
		return nil, fmt.Errorf("provider: unknown kind %q", cfg.Kind)
	}
}
