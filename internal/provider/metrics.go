package provider

import (
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	modeText       = "text"
	modeStructured = "structured"

	statusSuccess = "success"
	statusError   = "error"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lessonforge",
		Subsystem: "provider",
		Name:      "requests_total",
		Help:      "Generation requests by backend, model, mode and outcome.",
	}, []string{"provider", "model", "mode", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "lessonforge",
		Subsystem: "provider",
		Name:      "request_duration_seconds",
		Help:      "Wall time of a streamed generation call.",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
	}, []string{"provider", "model", "mode"})

	tokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lessonforge",
		Subsystem: "provider",
		Name:      "tokens_total",
		Help:      "Prompt and completion tokens, reported or estimated.",
	}, []string{"provider", "model", "kind"})
)

func observeRequest(provider, model, mode, status string, d time.Duration) {
	requestsTotal.WithLabelValues(provider, model, mode, status).Inc()
	if status == statusSuccess {
		requestDuration.WithLabelValues(provider, model, mode).Observe(d.Seconds())
	}
}

func observeTokens(provider, model string, prompt, completion int) {
	if prompt > 0 {
		tokensTotal.WithLabelValues(provider, model, "prompt").Add(float64(prompt))
	}
	if completion > 0 {
		tokensTotal.WithLabelValues(provider, model, "completion").Add(float64(completion))
	}
}

// tokenCounter estimates token counts when a backend does not report usage.
// The encoding is resolved lazily on first use; if it cannot be loaded the
// counter reports zero.
type tokenCounter struct {
	model string
	once  sync.Once
	enc   *tiktoken.Tiktoken
}

func newTokenCounter(model string) *tokenCounter {
	return &tokenCounter{model: model}
}

func (t *tokenCounter) Count(s string) int {
	if s == "" {
		return 0
	}
	t.once.Do(func() {
		enc, err := tiktoken.EncodingForModel(t.model)
		if err != nil {
			enc, err = tiktoken.GetEncoding("cl100k_base")
		}
		if err == nil {
			t.enc = enc
		}
	})
	if t.enc == nil {
		return 0
	}
	return len(t.enc.Encode(s, nil, nil))
}
