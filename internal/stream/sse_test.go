package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSEWriter_WritesNamedEvents(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewSSEWriter(rec)
	w.Init()

	h := New[string]("tos")
	h.Append("| Topic |")
	h.Complete()

	for ev := range h.Events(context.Background()) {
		msg, err := Encode(h.Name(), ev)
		require.NoError(t, err)
		require.NoError(t, w.WriteMessage(msg))
	}

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	frames := strings.Split(strings.TrimSpace(rec.Body.String()), "\n\n")
	require.Len(t, frames, 2)
	assert.True(t, strings.HasPrefix(frames[0], "event: update\ndata: {"))
	assert.True(t, strings.HasPrefix(frames[1], "event: complete\ndata: {"))
}

func TestEncode_FailCarriesErrorText(t *testing.T) {
	msg, err := Encode("questions", Event[int]{Kind: KindFail, Err: errors.New("provider down")})
	require.NoError(t, err)
	assert.Equal(t, "questions", msg.Stream)
	assert.Equal(t, KindFail, msg.Kind)
	assert.Equal(t, "provider down", msg.Error)
	assert.Nil(t, msg.Value)
}

func TestReadEvents_RoundTripsWriterOutput(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewSSEWriter(rec)
	w.Init()
	require.NoError(t, w.WriteMessage(Message{Stream: "tos", Kind: KindUpdate, Value: []byte(`"chunk"`)}))
	require.NoError(t, w.WriteMessage(Message{Stream: "tos", Kind: KindComplete}))

	ch := ReadEvents(context.Background(), io.NopCloser(strings.NewReader(rec.Body.String())))

	f1 := <-ch
	require.NoError(t, f1.Err)
	assert.Equal(t, "update", f1.Event)
	assert.JSONEq(t, `"chunk"`, string(f1.Message.Value))

	f2 := <-ch
	require.NoError(t, f2.Err)
	assert.Equal(t, "complete", f2.Event)
	assert.Equal(t, KindComplete, f2.Message.Kind)

	_, ok := <-ch
	assert.False(t, ok)
}

func TestReadEvents_SkipsCommentsAndReportsMalformed(t *testing.T) {
	pr, pw := io.Pipe()
	go func() {
		defer pw.Close()
		fmt.Fprint(pw, ": keepalive\n\n")
		fmt.Fprint(pw, "event: update\ndata: not-json\n\n")
		fmt.Fprint(pw, "data: {\"stream\":\"q\",\"kind\":\"complete\"}")
	}()

	ch := ReadEvents(context.Background(), pr)

	bad := <-ch
	assert.Error(t, bad.Err)
	assert.Equal(t, "update", bad.Event)

	last := <-ch
	require.NoError(t, last.Err)
	assert.Equal(t, "q", last.Message.Stream)

	_, ok := <-ch
	assert.False(t, ok)
}
