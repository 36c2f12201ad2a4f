package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dusk-indust/lessonforge/internal/auth"
	"github.com/dusk-indust/lessonforge/internal/prompts"
	"github.com/dusk-indust/lessonforge/internal/provider"
	"github.com/dusk-indust/lessonforge/internal/store"
	"github.com/dusk-indust/lessonforge/internal/stream"
	"github.com/dusk-indust/lessonforge/internal/validate"
)

// LessonPlanRequest is the input of a lesson-plan run.
type LessonPlanRequest struct {
	Subject         string `json:"subject" validate:"notblank,min=2"`
	GradeLevel      string `json:"gradeLevel" validate:"notblank"`
	Topic           string `json:"topic" validate:"notblank,min=5"`
	DurationMinutes int    `json:"durationMinutes" validate:"min=5"`
}

// LessonPlanStore persists finished lesson plans.
type LessonPlanStore interface {
	InsertLessonPlan(ctx context.Context, p store.LessonPlan) (store.LessonPlan, error)
}

// LessonPlanner starts single-phase lesson-plan runs.
type LessonPlanner struct {
	provider  provider.Provider
	records   LessonPlanStore
	auth      auth.Authenticator
	validator *validate.Validator
	logger    *zap.Logger

	wg sync.WaitGroup
}

func NewLessonPlanner(p provider.Provider, records LessonPlanStore, authn auth.Authenticator, logger *zap.Logger) *LessonPlanner {
	return &LessonPlanner{
		provider:  p,
		records:   records,
		auth:      authn,
		validator: validate.New(),
		logger:    logger.Named("lesson-planner"),
	}
}

// Wait blocks until every run started by lp has finished.
func (lp *LessonPlanner) Wait() { lp.wg.Wait() }

// LessonPlanRun is a started lesson-plan generation.
type LessonPlanRun struct {
	ID      string
	UserID  string
	Request LessonPlanRequest
	Content *stream.Handle[string]

	done   chan struct{}
	mu     sync.Mutex
	record *store.LessonPlan
}

func (r *LessonPlanRun) Done() <-chan struct{} { return r.done }

func (r *LessonPlanRun) Record() (store.LessonPlan, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.record == nil {
		return store.LessonPlan{}, false
	}
	return *r.record, true
}

// Run validates req, resolves the caller and streams the plan in the
// background. The plan is persisted only when the stream completes with
// non-empty text.
func (lp *LessonPlanner) Run(ctx context.Context, req LessonPlanRequest) (*LessonPlanRun, error) {
	if err := lp.validator.Struct(req); err != nil {
		return nil, err
	}
	userID, err := currentUser(ctx, lp.auth)
	if err != nil {
		return nil, err
	}

	run := &LessonPlanRun{
		ID:      uuid.NewString(),
		UserID:  userID,
		Request: req,
		Content: stream.New[string](StreamContent),
		done:    make(chan struct{}),
	}

	lp.wg.Add(1)
	activeRuns.WithLabelValues(kindLessonPlan).Inc()
	go func() {
		defer lp.wg.Done()
		defer activeRuns.WithLabelValues(kindLessonPlan).Dec()
		defer close(run.done)
		lp.execute(context.WithoutCancel(ctx), run)
	}()
	return run, nil
}

func (lp *LessonPlanner) execute(ctx context.Context, run *LessonPlanRun) {
	log := lp.logger.With(zap.String("run_id", run.ID), zap.String("user_id", run.UserID))
	defer func() {
		if p := recover(); p != nil {
			log.Error("lesson plan run panicked", zap.Any("panic", p))
			run.Content.Fail(fmt.Errorf("%w: panic: %v", ErrProvider, p))
			runsTotal.WithLabelValues(kindLessonPlan, outcomeFailed).Inc()
		}
	}()

	text, err := lp.generate(ctx, run)
	if err != nil {
		log.Error("lesson plan generation failed", zap.Error(err))
		run.Content.Fail(err)
		runsTotal.WithLabelValues(kindLessonPlan, outcomeFailed).Inc()
		return
	}
	run.Content.Complete()
	runsTotal.WithLabelValues(kindLessonPlan, outcomeCompleted).Inc()

	if strings.TrimSpace(text) == "" {
		log.Warn("empty lesson plan not persisted")
		return
	}
	if lp.records == nil {
		return
	}
	start := time.Now()
	rec, err := lp.records.InsertLessonPlan(ctx, store.LessonPlan{
		UserID:           run.UserID,
		Subject:          run.Request.Subject,
		GradeLevel:       run.Request.GradeLevel,
		Topic:            run.Request.Topic,
		DurationMinutes:  run.Request.DurationMinutes,
		GeneratedContent: text,
	})
	observePhase(PhasePersist, start)
	if err != nil {
		phaseFailures.WithLabelValues(PhasePersist.String()).Inc()
		log.Error("lesson plan not persisted", zap.Error(fmt.Errorf("%w: %w", ErrPersistence, err)))
		return
	}
	run.mu.Lock()
	run.record = &rec
	run.mu.Unlock()
	log.Info("lesson plan run finished", zap.String("lesson_plan_id", rec.ID))
}

func (lp *LessonPlanner) generate(ctx context.Context, run *LessonPlanRun) (string, error) {
	defer observePhase(PhaseLessonPlan, time.Now())

	prompt, err := prompts.RenderLessonPlan(prompts.LessonPlan{
		Subject:         run.Request.Subject,
		GradeLevel:      run.Request.GradeLevel,
		Topic:           run.Request.Topic,
		DurationMinutes: run.Request.DurationMinutes,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrProvider, err)
	}

	var acc strings.Builder
	err = lp.provider.StreamText(ctx, prompt, func(chunk string) error {
		acc.WriteString(chunk)
		run.Content.Append(chunk)
		return nil
	})
	if err != nil {
		phaseFailures.WithLabelValues(PhaseLessonPlan.String()).Inc()
		return "", fmt.Errorf("%w: %w", ErrProvider, err)
	}
	return acc.String(), nil
}
