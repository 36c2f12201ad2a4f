package stream

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandle_DeliversUpdatesInOrderThenComplete(t *testing.T) {
	h := New[string]("tos")
	assert.True(t, h.Append("a"))
	assert.True(t, h.Append("b"))
	assert.True(t, h.Complete())

	ctx := context.Background()
	vals, err := Collect(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, vals)
	assert.Equal(t, StateCompleted, h.State())

	_, err = h.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestHandle_FailCarriesError(t *testing.T) {
	h := New[int]("n")
	boom := errors.New("boom")
	h.Append(1)
	assert.True(t, h.Fail(boom))

	vals, err := Collect(context.Background(), h)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []int{1}, vals)
	assert.Equal(t, StateFailed, h.State())
	assert.ErrorIs(t, h.Err(), boom)
}

func TestHandle_FailNilUsesErrFailed(t *testing.T) {
	h := New[int]("n")
	h.Fail(nil)
	assert.ErrorIs(t, h.Err(), ErrFailed)
}

func TestHandle_OperationsAfterTerminalAreNoops(t *testing.T) {
	h := New[string]("tos")
	require.True(t, h.Complete())

	assert.NotPanics(t, func() {
		assert.False(t, h.Append("late"))
		assert.False(t, h.Complete())
		assert.False(t, h.Fail(errors.New("late")))
	})
	assert.Equal(t, StateCompleted, h.State())
	assert.NoError(t, h.Err())

	vals, err := Collect(context.Background(), h)
	require.NoError(t, err)
	assert.Empty(t, vals)
}

func TestHandle_FailAfterFailKeepsFirstError(t *testing.T) {
	h := New[string]("q")
	first := errors.New("first")
	require.True(t, h.Fail(first))
	assert.False(t, h.Fail(errors.New("second")))
	assert.False(t, h.Complete())
	assert.ErrorIs(t, h.Err(), first)
	assert.Equal(t, StateFailed, h.State())
}

func TestHandle_ConcurrentTerminalCallsYieldOneTerminalEvent(t *testing.T) {
	h := New[string]("tos")
	var wg sync.WaitGroup
	var wins sync.Map
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var ok bool
			if i%2 == 0 {
				ok = h.Complete()
			} else {
				ok = h.Fail(errors.New("x"))
			}
			if ok {
				wins.Store(i, true)
			}
		}(i)
	}
	wg.Wait()

	n := 0
	wins.Range(func(_, _ any) bool { n++; return true })
	assert.Equal(t, 1, n)

	terminals := 0
	for {
		ev, err := h.Next(context.Background())
		if err != nil {
			break
		}
		if ev.Kind != KindUpdate {
			terminals++
		}
	}
	assert.Equal(t, 1, terminals)
}

func TestHandle_NextBlocksUntilAppend(t *testing.T) {
	h := New[string]("tos")
	go func() {
		time.Sleep(10 * time.Millisecond)
		h.Append("x")
		h.Complete()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, err := h.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, KindUpdate, ev.Kind)
	assert.Equal(t, "x", ev.Value)

	select {
	case <-h.Done():
	case <-ctx.Done():
		t.Fatal("handle never became terminal")
	}
}

func TestHandle_NextRespectsContext(t *testing.T) {
	h := New[string]("tos")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHandle_ProducerNeverBlocksWithoutConsumer(t *testing.T) {
	h := New[int]("n")
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			h.Append(i)
		}
		h.Complete()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("producer blocked")
	}
	vals, err := Collect(context.Background(), h)
	require.NoError(t, err)
	assert.Len(t, vals, 10000)
	assert.Equal(t, 9999, vals[len(vals)-1])
}

func TestHandle_EventsChannelClosesAfterTerminal(t *testing.T) {
	h := New[string]("tos")
	h.Append("a")
	h.Fail(errors.New("nope"))

	var kinds []Kind
	for ev := range h.Events(context.Background()) {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []Kind{KindUpdate, KindFail}, kinds)
}

func TestHandle_ClaimOnlyOnce(t *testing.T) {
	h := New[string]("tos")
	assert.True(t, h.Claim())
	assert.False(t, h.Claim())
}
