// Package notify publishes an event whenever a generated record or an
// uploaded resource is stored.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dusk-indust/lessonforge/internal/store"
)

// Event types, also used as AMQP routing keys.
const (
	AssessmentCreated = "assessment.created"
	LessonPlanCreated = "lesson_plan.created"
	ResourceCreated   = "resource.created"
)

// Event is the JSON body of a published message.
type Event struct {
	Type       string    `json:"type"`
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	Subject    string    `json:"subject"`
	GradeLevel string    `json:"gradeLevel"`
	Title      string    `json:"title"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Publisher delivers events to a broker.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }

// Store wraps a store.Store and publishes an event after every successful
// insert. Publish failures are logged and never fail the insert.
type Store struct {
	store.Store
	pub    Publisher
	logger *zap.Logger
}

var _ store.Store = (*Store)(nil)

func Wrap(s store.Store, pub Publisher, logger *zap.Logger) *Store {
	if pub == nil {
		pub = Noop{}
	}
	return &Store{Store: s, pub: pub, logger: logger.Named("notify")}
}

func (s *Store) InsertAssessment(ctx context.Context, a store.Assessment) (store.Assessment, error) {
	rec, err := s.Store.InsertAssessment(ctx, a)
	if err != nil {
		return rec, err
	}
	s.publish(ctx, Event{
		Type:       AssessmentCreated,
		ID:         rec.ID,
		UserID:     rec.UserID,
		Subject:    rec.Subject,
		GradeLevel: rec.GradeLevel,
		Title:      rec.Topic,
		CreatedAt:  rec.CreatedAt,
	})
	return rec, nil
}

func (s *Store) InsertLessonPlan(ctx context.Context, p store.LessonPlan) (store.LessonPlan, error) {
	rec, err := s.Store.InsertLessonPlan(ctx, p)
	if err != nil {
		return rec, err
	}
	s.publish(ctx, Event{
		Type:       LessonPlanCreated,
		ID:         rec.ID,
		UserID:     rec.UserID,
		Subject:    rec.Subject,
		GradeLevel: rec.GradeLevel,
		Title:      rec.Topic,
		CreatedAt:  rec.CreatedAt,
	})
	return rec, nil
}

func (s *Store) InsertResource(ctx context.Context, r store.Resource) (store.Resource, error) {
	rec, err := s.Store.InsertResource(ctx, r)
	if err != nil {
		return rec, err
	}
	s.publish(ctx, Event{
		Type:       ResourceCreated,
		ID:         rec.ID,
		UserID:     rec.UserID,
		Subject:    rec.Subject,
		GradeLevel: rec.GradeLevel,
		Title:      rec.Title,
		CreatedAt:  rec.CreatedAt,
	})
	return rec, nil
}

// Close closes the publisher, then the wrapped store.
func (s *Store) Close() error {
	if err := s.pub.Close(); err != nil {
		s.logger.Warn("closing publisher", zap.Error(err))
	}
	return s.Store.Close()
}

func (s *Store) publish(ctx context.Context, ev Event) {
	if err := s.pub.Publish(ctx, ev); err != nil {
		s.logger.Error("event not published",
			zap.String("type", ev.Type),
			zap.String("id", ev.ID),
			zap.Error(err),
		)
		publishFailures.WithLabelValues(ev.Type).Inc()
		return
	}
	published.WithLabelValues(ev.Type).Inc()
}
