package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dusk-indust/lessonforge/internal/config"
)

func ollamaServer(t *testing.T, parts []string, lastReq *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		if lastReq != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(lastReq))
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		enc := json.NewEncoder(w)
		for _, p := range parts {
			_ = enc.Encode(map[string]any{
				"model":      "llama3.1",
				"created_at": time.Now().UTC().Format(time.RFC3339Nano),
				"message":    map[string]any{"role": "assistant", "content": p},
				"done":       false,
			})
		}
		fmt.Fprintln(w, `{"model":"llama3.1","message":{"role":"assistant","content":""},"done":true,"done_reason":"stop","prompt_eval_count":9,"eval_count":4}`)
	}))
}

func newTestOllama(t *testing.T, url string) *Ollama {
	t.Helper()
	p, err := NewOllama(config.ProviderConfig{BaseURL: url + "/v1", Model: "llama3.1", Timeout: 5 * time.Second}, zap.NewNop())
	require.NoError(t, err)
	return p
}

func TestOllama_StreamTextForwardsChunks(t *testing.T) {
	var req map[string]any
	srv := ollamaServer(t, []string{"### Lesson", " Procedure\n"}, &req)
	defer srv.Close()

	var got []string
	err := newTestOllama(t, srv.URL).StreamText(context.Background(), "plan", func(s string) error {
		got = append(got, s)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"### Lesson", " Procedure\n"}, got)
	assert.Equal(t, "llama3.1", req["model"])
	assert.Nil(t, req["format"])
}

func TestOllama_StreamStructuredSendsSchemaAsFormat(t *testing.T) {
	var req map[string]any
	srv := ollamaServer(t, []string{`{"questions":[{"type":"SHORT`, `_ANSWER","question":"Q","answer":"A"}]}`}, &req)
	defer srv.Close()

	var last json.RawMessage
	err := newTestOllama(t, srv.URL).StreamStructured(context.Background(), "q",
		Schema{Name: "question_set", Definition: json.RawMessage(`{"type":"object"}`)},
		func(raw json.RawMessage) error {
			last = raw
			return nil
		})
	require.NoError(t, err)
	assert.JSONEq(t, `{"questions":[{"type":"SHORT_ANSWER","question":"Q","answer":"A"}]}`, string(last))
	assert.Equal(t, map[string]any{"type": "object"}, req["format"])
}

func TestOllama_ServerErrorIsGenerationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"model \"llama3.1\" not found"}`)
	}))
	defer srv.Close()

	err := newTestOllama(t, srv.URL).StreamText(context.Background(), "p", func(string) error { return nil })
	assert.ErrorIs(t, err, ErrGeneration)
}
