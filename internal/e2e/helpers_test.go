//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dusk-indust/lessonforge/internal/auth"
	"github.com/dusk-indust/lessonforge/internal/notify"
	"github.com/dusk-indust/lessonforge/internal/orchestrator"
	"github.com/dusk-indust/lessonforge/internal/provider"
	"github.com/dusk-indust/lessonforge/internal/resources"
	"github.com/dusk-indust/lessonforge/internal/server"
	"github.com/dusk-indust/lessonforge/internal/store"
	"github.com/dusk-indust/lessonforge/internal/stream"
)

const secret = "e2e-secret"

type eventRecorder struct {
	events []notify.Event
}

func (r *eventRecorder) Publish(_ context.Context, ev notify.Event) error {
	r.events = append(r.events, ev)
	return nil
}

func (r *eventRecorder) Close() error { return nil }

type stack struct {
	url    string
	token  string
	srv    *server.Server
	events *eventRecorder
}

// startStack runs the whole HTTP service on a loopback listener with the
// demo provider and an in-memory store.
func startStack(t *testing.T) *stack {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	events := &eventRecorder{}
	records := notify.Wrap(store.NewMemory(), events, logger)
	p := provider.Demo()
	p.Delay = time.Millisecond

	v, err := auth.NewVerifier(secret, "lessonforge", logger)
	require.NoError(t, err)
	iss, err := auth.NewIssuer(secret, "lessonforge", time.Hour)
	require.NoError(t, err)
	tok, err := iss.Issue("teacher-e2e", "E2E Teacher")
	require.NoError(t, err)

	srv := server.New(server.Options{
		Assessments: orchestrator.New(p, records, auth.ContextAuthenticator{}, logger),
		LessonPlans: orchestrator.NewLessonPlanner(p, records, auth.ContextAuthenticator{}, logger),
		Store:       records,
		Resources:   resources.NewHub("mem://localhost/e2e", records, logger),
		Verifier:    v,
		Logger:      logger,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Wait()
	})
	return &stack{url: ts.URL, token: tok, srv: srv, events: events}
}

func (s *stack) request(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, s.url+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+s.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// subscribe opens an SSE endpoint and returns its frames.
func (s *stack) subscribe(t *testing.T, path string) <-chan stream.Frame {
	t.Helper()
	resp := s.request(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return stream.ReadEvents(ctx, resp.Body)
}
