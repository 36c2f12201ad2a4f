// Package stream provides append-only, single-consumer output channels with
// an irreversible terminal state.
package stream

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

// State is the lifecycle state of a Handle.
type State string

const (
	StateOpen      State = "open"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// IsTerminal returns true if the state is final.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Kind identifies an event on a stream.
type Kind string

const (
	KindUpdate   Kind = "update"
	KindComplete Kind = "complete"
	KindFail     Kind = "fail"
)

// ErrFailed is recorded when Fail is called with a nil error.
var ErrFailed = errors.New("stream: failed")

// Event is a single emission on a Handle. Value is set for updates, Err for
// failures.
type Event[T any] struct {
	Kind  Kind
	Value T
	Err   error
}

// Handle is an append-only output channel with exactly one terminal event.
//
// Producers call Append any number of times followed by Complete or Fail.
// The first terminal call wins; every later Append, Complete or Fail is a
// no-op that reports false. Events are queued without bound so a producer
// never blocks on a slow or absent consumer.
type Handle[T any] struct {
	name string

	mu      sync.Mutex
	queue   []Event[T]
	state   State
	err     error
	drained bool

	notify  chan struct{}
	done    chan struct{}
	claimed atomic.Bool
}

// New returns an open Handle. The name labels the stream on the wire.
func New[T any](name string) *Handle[T] {
	return &Handle[T]{
		name:   name,
		state:  StateOpen,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Name returns the stream label.
func (h *Handle[T]) Name() string { return h.name }

// Append enqueues v. It returns false if the handle is already terminal.
func (h *Handle[T]) Append(v T) bool {
	return h.push(Event[T]{Kind: KindUpdate, Value: v})
}

// Complete marks the handle completed. It returns false if the handle was
// already terminal.
func (h *Handle[T]) Complete() bool {
	return h.push(Event[T]{Kind: KindComplete})
}

// Fail marks the handle failed with err. It returns false if the handle was
// already terminal.
func (h *Handle[T]) Fail(err error) bool {
	if err == nil {
		err = ErrFailed
	}
	return h.push(Event[T]{Kind: KindFail, Err: err})
}

func (h *Handle[T]) push(ev Event[T]) bool {
	h.mu.Lock()
	if h.state.IsTerminal() {
		h.mu.Unlock()
		return false
	}
	switch ev.Kind {
	case KindComplete:
		h.state = StateCompleted
	case KindFail:
		h.state = StateFailed
		h.err = ev.Err
	}
	h.queue = append(h.queue, ev)
	terminal := h.state.IsTerminal()
	h.mu.Unlock()

	if terminal {
		close(h.done)
	}
	select {
	case h.notify <- struct{}{}:
	default:
	}
	return true
}

// State returns the current lifecycle state.
func (h *Handle[T]) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Err returns the failure recorded by Fail, or nil.
func (h *Handle[T]) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Done returns a channel that is closed once the handle becomes terminal.
func (h *Handle[T]) Done() <-chan struct{} { return h.done }

// Claim reserves the handle for a consumer. Only the first call returns true.
func (h *Handle[T]) Claim() bool {
	return h.claimed.CompareAndSwap(false, true)
}

// Next blocks until the next event is available. After the terminal event
// has been returned, Next returns io.EOF.
func (h *Handle[T]) Next(ctx context.Context) (Event[T], error) {
	for {
		h.mu.Lock()
		if len(h.queue) > 0 {
			ev := h.queue[0]
			h.queue[0] = Event[T]{}
			h.queue = h.queue[1:]
			if ev.Kind != KindUpdate {
				h.drained = true
			}
			h.mu.Unlock()
			return ev, nil
		}
		if h.drained {
			h.mu.Unlock()
			return Event[T]{}, io.EOF
		}
		h.mu.Unlock()

		select {
		case <-h.notify:
		case <-ctx.Done():
			return Event[T]{}, ctx.Err()
		}
	}
}

// Events delivers every event on the returned channel, closing it after the
// terminal event or when ctx is cancelled.
func (h *Handle[T]) Events(ctx context.Context) <-chan Event[T] {
	ch := make(chan Event[T])
	go func() {
		defer close(ch)
		for {
			ev, err := h.Next(ctx)
			if err != nil {
				return
			}
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

// Collect drains h and returns every update value in order. It returns the
// failure error if the handle failed.
func Collect[T any](ctx context.Context, h *Handle[T]) ([]T, error) {
	var vals []T
	for {
		ev, err := h.Next(ctx)
		if errors.Is(err, io.EOF) {
			return vals, nil
		}
		if err != nil {
			return vals, err
		}
		switch ev.Kind {
		case KindUpdate:
			vals = append(vals, ev.Value)
		case KindFail:
			return vals, ev.Err
		}
	}
}
