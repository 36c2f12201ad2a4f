package server

import (
	"context"
	"sync"
	"time"

	"github.com/dusk-indust/lessonforge/internal/orchestrator"
	"github.com/dusk-indust/lessonforge/internal/stream"
)

// source is a stream handle with its element type erased.
type source interface {
	Name() string
	Claim() bool
	next(ctx context.Context) (stream.Message, error)
}

type handleSource[T any] struct{ h *stream.Handle[T] }

func (s handleSource[T]) Name() string { return s.h.Name() }
func (s handleSource[T]) Claim() bool  { return s.h.Claim() }

func (s handleSource[T]) next(ctx context.Context) (stream.Message, error) {
	ev, err := s.h.Next(ctx)
	if err != nil {
		return stream.Message{}, err
	}
	return stream.Encode(s.h.Name(), ev)
}

type runEntry struct {
	id       string
	userID   string
	kind     string
	sources  []source
	done     <-chan struct{}
	finished time.Time
}

func (e *runEntry) source(name string) (source, bool) {
	for _, s := range e.sources {
		if s.Name() == name {
			return s, true
		}
	}
	return nil, false
}

func (e *runEntry) streamNames() map[string]string {
	out := make(map[string]string, len(e.sources))
	for _, s := range e.sources {
		out[s.Name()] = "/api/runs/" + e.id + "/streams/" + s.Name()
	}
	return out
}

// registry keeps started runs reachable after the request that started
// them has returned. Finished runs are evicted once ttl has passed.
type registry struct {
	ttl time.Duration
	now func() time.Time

	mu   sync.Mutex
	runs map[string]*runEntry
}

func newRegistry(ttl time.Duration) *registry {
	return &registry{ttl: ttl, now: time.Now, runs: make(map[string]*runEntry)}
}

func (r *registry) addAssessment(run *orchestrator.AssessmentRun) *runEntry {
	return r.add(&runEntry{
		id:     run.ID,
		userID: run.UserID,
		kind:   "assessment",
		sources: []source{
			handleSource[string]{run.ToS},
			handleSource[orchestrator.QuestionSet]{run.Questions},
		},
		done: run.Done(),
	})
}

func (r *registry) addLessonPlan(run *orchestrator.LessonPlanRun) *runEntry {
	return r.add(&runEntry{
		id:      run.ID,
		userID:  run.UserID,
		kind:    "lesson_plan",
		sources: []source{handleSource[string]{run.Content}},
		done:    run.Done(),
	})
}

func (r *registry) add(e *runEntry) *runEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()
	r.runs[e.id] = e
	return e
}

// get returns the run only to its owner.
func (r *registry) get(id, userID string) (*runEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.runs[id]
	if !ok || e.userID != userID {
		return nil, false
	}
	return e, true
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

func (r *registry) sweep() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()
}

func (r *registry) sweepLocked() {
	now := r.now()
	for id, e := range r.runs {
		if e.finished.IsZero() {
			select {
			case <-e.done:
				e.finished = now
			default:
				continue
			}
		}
		if now.Sub(e.finished) >= r.ttl {
			delete(r.runs, id)
		}
	}
	registeredRuns.Set(float64(len(r.runs)))
}

// janitor sweeps every interval until ctx is done.
func (r *registry) janitor(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.sweep()
		}
	}
}
