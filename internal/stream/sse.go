package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Message is the wire form of an Event, tagged with the stream it came from.
type Message struct {
	Stream string          `json:"stream"`
	Kind   Kind            `json:"kind"`
	Value  json.RawMessage `json:"value,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Encode converts ev into its wire form.
func Encode[T any](stream string, ev Event[T]) (Message, error) {
	msg := Message{Stream: stream, Kind: ev.Kind}
	switch ev.Kind {
	case KindUpdate:
		raw, err := json.Marshal(ev.Value)
		if err != nil {
			return Message{}, fmt.Errorf("stream: marshal %s update: %w", stream, err)
		}
		msg.Value = raw
	case KindFail:
		if ev.Err != nil {
			msg.Error = ev.Err.Error()
		}
	}
	return msg, nil
}

// SSEWriter writes Server-Sent Events to an http.ResponseWriter.
// Call Init once before writing any events to set the required headers.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter creates a new SSEWriter wrapping the given ResponseWriter.
// The ResponseWriter must implement http.Flusher for streaming to work;
// if it does not, writes will still succeed but may be buffered.
func NewSSEWriter(w http.ResponseWriter) *SSEWriter {
	f, _ := w.(http.Flusher)
	return &SSEWriter{
		w:       w,
		flusher: f,
	}
}

// Init sets the SSE response headers and flushes them to the client.
func (sw *SSEWriter) Init() {
	h := sw.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
}

// WriteMessage writes msg as a named SSE event:
//
//	event: <kind>
//	data: {json}
//
// The connection is flushed after every event.
func (sw *SSEWriter) WriteMessage(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("sse: marshal message: %w", err)
	}
	if _, err := fmt.Fprintf(sw.w, "event: %s\ndata: %s\n\n", msg.Kind, data); err != nil {
		return fmt.Errorf("sse: write message: %w", err)
	}
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
	return nil
}

// Frame is one parsed SSE event. Err is set when the data payload is not a
// valid Message.
type Frame struct {
	Event   string
	Message Message
	Err     error
}

// ReadEvents reads SSE events from body and delivers them on the returned
// channel. The channel is closed when the body is exhausted, an unrecoverable
// read error occurs, or ctx is cancelled. The body is closed when reading
// finishes.
//
// Lines starting with ":" are comments. Multiple "data:" lines within one
// event are joined with newlines before decoding.
func ReadEvents(ctx context.Context, body io.ReadCloser) <-chan Frame {
	ch := make(chan Frame)
	go func() {
		defer close(ch)
		defer body.Close()

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		var (
			event   string
			dataBuf strings.Builder
		)
		flush := func() {
			if dataBuf.Len() > 0 {
				emit(ctx, ch, event, dataBuf.String())
			}
			event = ""
			dataBuf.Reset()
		}

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			if !scanner.Scan() {
				flush()
				return
			}

			line := scanner.Text()
			switch {
			case line == "":
				flush()
			case strings.HasPrefix(line, ":"):
			case strings.HasPrefix(line, "event:"):
				event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				payload := strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " ")
				if dataBuf.Len() > 0 {
					dataBuf.WriteByte('\n')
				}
				dataBuf.WriteString(payload)
			}
		}
	}()
	return ch
}

func emit(ctx context.Context, ch chan<- Frame, event, raw string) {
	f := Frame{Event: event}
	if err := json.Unmarshal([]byte(raw), &f.Message); err != nil {
		f.Err = fmt.Errorf("sse: unmarshal message: %w", err)
	}
	select {
	case ch <- f:
	case <-ctx.Done():
	}
}
