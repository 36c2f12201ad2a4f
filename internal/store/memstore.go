package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Memory is a concurrency-safe in-memory Store. Records are kept in a map
// keyed by ID with a separate slice maintaining insertion order, which makes
// newest-first listing deterministic even when timestamps collide.
type Memory struct {
	mu          sync.RWMutex
	assessments collection[Assessment]
	lessonPlans collection[LessonPlan]
	resources   collection[Resource]
}

// Compile-time check that Memory satisfies Store.
var _ Store = (*Memory)(nil)

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		assessments: newCollection[Assessment](),
		lessonPlans: newCollection[LessonPlan](),
		resources:   newCollection[Resource](),
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) InsertAssessment(_ context.Context, a Assessment) (Assessment, error) {
	stamp(&a.ID, &a.CreatedAt)
	a.GeneratedQuestions = cloneRaw(a.GeneratedQuestions)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.assessments.add(a.ID, a.UserID, a); err != nil {
		return Assessment{}, err
	}
	return copyAssessment(a), nil
}

func (m *Memory) GetAssessment(_ context.Context, userID, id string) (Assessment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, err := m.assessments.get(userID, id)
	if err != nil {
		return Assessment{}, err
	}
	return copyAssessment(a), nil
}

func (m *Memory) ListAssessments(_ context.Context, userID string, opts ListOptions) (Page[Assessment], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	page, err := paginate(m.assessments.newestFirst(userID), func(a Assessment) string { return a.ID }, opts)
	if err != nil {
		return page, err
	}
	for i := range page.Items {
		page.Items[i] = copyAssessment(page.Items[i])
	}
	return page, nil
}

func (m *Memory) InsertLessonPlan(_ context.Context, p LessonPlan) (LessonPlan, error) {
	stamp(&p.ID, &p.CreatedAt)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.lessonPlans.add(p.ID, p.UserID, p); err != nil {
		return LessonPlan{}, err
	}
	return p, nil
}

func (m *Memory) GetLessonPlan(_ context.Context, userID, id string) (LessonPlan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lessonPlans.get(userID, id)
}

func (m *Memory) ListLessonPlans(_ context.Context, userID string, opts ListOptions) (Page[LessonPlan], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return paginate(m.lessonPlans.newestFirst(userID), func(p LessonPlan) string { return p.ID }, opts)
}

func (m *Memory) InsertResource(_ context.Context, r Resource) (Resource, error) {
	stamp(&r.ID, &r.CreatedAt)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.resources.add(r.ID, r.UserID, r); err != nil {
		return Resource{}, err
	}
	return r, nil
}

func (m *Memory) GetResource(_ context.Context, userID, id string) (Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.resources.get(userID, id)
}

func (m *Memory) ListResources(_ context.Context, userID string, opts ListOptions) (Page[Resource], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return paginate(m.resources.newestFirst(userID), func(r Resource) string { return r.ID }, opts)
}

// collection holds one record kind. Callers hold Memory.mu.
type collection[T any] struct {
	items    map[string]T
	owners   map[string]string
	orderIDs []string // insertion-order record IDs
}

func newCollection[T any]() collection[T] {
	return collection[T]{
		items:  make(map[string]T),
		owners: make(map[string]string),
	}
}

func (c *collection[T]) add(id, userID string, v T) error {
	if _, exists := c.items[id]; exists {
		return fmt.Errorf("store: record %q already exists", id)
	}
	c.items[id] = v
	c.owners[id] = userID
	c.orderIDs = append(c.orderIDs, id)
	return nil
}

func (c *collection[T]) get(userID, id string) (T, error) {
	v, ok := c.items[id]
	if !ok || c.owners[id] != userID {
		var zero T
		return zero, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return v, nil
}

func (c *collection[T]) newestFirst(userID string) []T {
	var out []T
	for i := len(c.orderIDs) - 1; i >= 0; i-- {
		id := c.orderIDs[i]
		if c.owners[id] == userID {
			out = append(out, c.items[id])
		}
	}
	return out
}

func copyAssessment(a Assessment) Assessment {
	a.GeneratedQuestions = cloneRaw(a.GeneratedQuestions)
	return a
}

func cloneRaw(src json.RawMessage) json.RawMessage {
	if src == nil {
		return nil
	}
	dst := make(json.RawMessage, len(src))
	copy(dst, src)
	return dst
}
