// Package orchestrator drives generation runs. An assessment run makes two
// dependent calls: a Table of Specification streamed as text, then
// questions streamed as structured snapshots. A lesson-plan run makes one.
// Every run is detached from its caller and reports progress only through
// its stream handles.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
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

var (
	// ErrValidationFailed is matched by every request validation error. Use
	// errors.As with *ValidationError for the per-field messages.
	ErrValidationFailed = validate.ErrInvalid

	// ErrAuthenticationRequired is returned when the caller has no
	// authenticated principal.
	ErrAuthenticationRequired = auth.ErrAuthenticationRequired

	// ErrProvider wraps every generation fault delivered through a stream.
	ErrProvider = errors.New("provider error")

	// ErrPersistence wraps store failures. It is logged, never surfaced.
	ErrPersistence = errors.New("persistence error")
)

// ValidationError lists the request fields that failed validation.
type ValidationError = validate.Error

// FieldError is one failed request field.
type FieldError = validate.FieldError

// Stream names, used as labels on the wire.
const (
	StreamToS       = "tos"
	StreamQuestions = "questions"
	StreamContent   = "content"
)

// QuestionType tags a generated question.
type QuestionType string

const (
	QuestionMCQ         QuestionType = "MCQ"
	QuestionShortAnswer QuestionType = "SHORT_ANSWER"
)

func (t QuestionType) Valid() bool {
	return t == QuestionMCQ || t == QuestionShortAnswer
}

// Question is one generated assessment item. Options is set for MCQs.
type Question struct {
	Type           QuestionType `json:"type" description:"MCQ or SHORT_ANSWER"`
	CognitiveLevel string       `json:"cognitive_level" description:"Bloom/SBC cognitive level from the Table of Specification"`
	Question       string       `json:"question" description:"The question text"`
	Options        []string     `json:"options,omitempty" description:"Answer choices, for MCQ only"`
	Answer         string       `json:"answer" description:"The correct answer or a model answer"`
}

// QuestionSet is the structured result of the questions phase. During
// streaming each snapshot supersedes the previous one.
type QuestionSet struct {
	Questions []Question `json:"questions" description:"The generated questions"`
}

// Count returns the number of questions of type t.
func (qs QuestionSet) Count(t QuestionType) int {
	n := 0
	for _, q := range qs.Questions {
		if q.Type == t {
			n++
		}
	}
	return n
}

// AssessmentRequest is the input of an assessment run.
type AssessmentRequest struct {
	Topic          string `json:"topic" validate:"notblank,min=3"`
	GradeLevel     string `json:"gradeLevel" validate:"notblank"`
	Subject        string `json:"subject" validate:"notblank"`
	NumMCQ         int    `json:"numMcq" validate:"min=0"`
	NumShortAnswer int    `json:"numShortAnswer" validate:"min=0"`
}

// RecordStore persists finished assessments.
type RecordStore interface {
	InsertAssessment(ctx context.Context, a store.Assessment) (store.Assessment, error)
}

// Orchestrator starts assessment runs.
type Orchestrator struct {
	provider  provider.Provider
	records   RecordStore
	auth      auth.Authenticator
	validator *validate.Validator
	logger    *zap.Logger
	schema    provider.Schema

	wg sync.WaitGroup
}

// New returns an Orchestrator. records may be nil, in which case finished
// runs are not persisted.
func New(p provider.Provider, records RecordStore, authn auth.Authenticator, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		provider:  p,
		records:   records,
		auth:      authn,
		validator: validate.New(),
		logger:    logger.Named("orchestrator"),
		schema:    QuestionSetSchema(),
	}
}

// Wait blocks until every run started by o has finished, including
// persistence.
func (o *Orchestrator) Wait() { o.wg.Wait() }

// AssessmentRun is a started assessment generation.
type AssessmentRun struct {
	ID        string
	UserID    string
	Request   AssessmentRequest
	ToS       *stream.Handle[string]
	Questions *stream.Handle[QuestionSet]

	done   chan struct{}
	mu     sync.Mutex
	record *store.Assessment
}

// Done is closed after both streams are terminal and persistence, if any,
// has been attempted.
func (r *AssessmentRun) Done() <-chan struct{} { return r.done }

// Record returns the persisted record once the run has stored one.
func (r *AssessmentRun) Record() (store.Assessment, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.record == nil {
		return store.Assessment{}, false
	}
	return *r.record, true
}

// Run validates req, resolves the caller and starts the two phases in the
// background. Validation and authentication errors are returned here,
// before any stream exists. Everything after that is reported through the
// returned handles. The run keeps the values of ctx but not its
// cancellation.
func (o *Orchestrator) Run(ctx context.Context, req AssessmentRequest) (*AssessmentRun, error) {
	if err := o.validator.Struct(req); err != nil {
		return nil, err
	}
	userID, err := currentUser(ctx, o.auth)
	if err != nil {
		return nil, err
	}

	run := &AssessmentRun{
		ID:        uuid.NewString(),
		UserID:    userID,
		Request:   req,
		ToS:       stream.New[string](StreamToS),
		Questions: stream.New[QuestionSet](StreamQuestions),
		done:      make(chan struct{}),
	}

	o.wg.Add(1)
	activeRuns.WithLabelValues(kindAssessment).Inc()
	go func() {
		defer o.wg.Done()
		defer activeRuns.WithLabelValues(kindAssessment).Dec()
		defer close(run.done)
		o.execute(context.WithoutCancel(ctx), run)
	}()
	return run, nil
}

func (o *Orchestrator) execute(ctx context.Context, run *AssessmentRun) {
	log := o.logger.With(zap.String("run_id", run.ID), zap.String("user_id", run.UserID), zap.String("topic", run.Request.Topic))
	log.Info("assessment run started")

	// A panic fails whichever handles are still open.
	defer func() {
		if p := recover(); p != nil {
			err := fmt.Errorf("%w: panic: %v", ErrProvider, p)
			log.Error("assessment run panicked", zap.Any("panic", p))
			run.ToS.Fail(err)
			run.Questions.Fail(err)
			runsTotal.WithLabelValues(kindAssessment, outcomeFailed).Inc()
		}
	}()

	tosText, err := o.specification(ctx, run)
	if err != nil {
		log.Error("specification phase failed", zap.Error(err))
		run.ToS.Fail(err)
		run.Questions.Fail(err)
		runsTotal.WithLabelValues(kindAssessment, outcomeFailed).Inc()
		return
	}
	run.ToS.Complete()

	final, err := o.questions(ctx, run, tosText)
	if err != nil {
		log.Error("questions phase failed", zap.Error(err))
		run.Questions.Fail(err)
		runsTotal.WithLabelValues(kindAssessment, outcomePartial).Inc()
		return
	}
	run.Questions.Complete()
	runsTotal.WithLabelValues(kindAssessment, outcomeCompleted).Inc()

	if err := o.persist(ctx, run, tosText, final); err != nil {
		log.Error("assessment not persisted", zap.Error(err))
		return
	}
	log.Info("assessment run finished", zap.Int("questions", len(final.Questions)))
}

// specification streams the Table of Specification and returns its full
// text.
func (o *Orchestrator) specification(ctx context.Context, run *AssessmentRun) (string, error) {
	defer observePhase(PhaseSpecification, time.Now())

	prompt, err := prompts.RenderToS(prompts.ToS{
		Topic:       run.Request.Topic,
		GradeLevel:  run.Request.GradeLevel,
		Subject:     run.Request.Subject,
		MCQ:         run.Request.NumMCQ,
		ShortAnswer: run.Request.NumShortAnswer,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrProvider, err)
	}

	var acc strings.Builder
	err = o.provider.StreamText(ctx, prompt, func(chunk string) error {
		acc.WriteString(chunk)
		run.ToS.Append(chunk)
		return nil
	})
	if err != nil {
		phaseFailures.WithLabelValues(PhaseSpecification.String()).Inc()
		return "", fmt.Errorf("%w: %w", ErrProvider, err)
	}
	return acc.String(), nil
}

// questions streams question snapshots and returns the final set.
func (o *Orchestrator) questions(ctx context.Context, run *AssessmentRun, tosText string) (QuestionSet, error) {
	defer observePhase(PhaseQuestions, time.Now())

	prompt, err := prompts.RenderQuestions(prompts.Questions{
		ToS: prompts.ToS{
			Topic:       run.Request.Topic,
			GradeLevel:  run.Request.GradeLevel,
			Subject:     run.Request.Subject,
			MCQ:         run.Request.NumMCQ,
			ShortAnswer: run.Request.NumShortAnswer,
		},
		ToSText: tosText,
	})
	if err != nil {
		return QuestionSet{}, fmt.Errorf("%w: %w", ErrProvider, err)
	}

	var (
		last    json.RawMessage
		skipped int
	)
	err = o.provider.StreamStructured(ctx, prompt, o.schema, func(raw json.RawMessage) error {
		var qs QuestionSet
		if err := json.Unmarshal(raw, &qs); err != nil {
			// A prefix that does not fit the item shape yet; the next
			// snapshot supersedes it.
			skipped++
			return nil
		}
		last = raw
		run.Questions.Append(qs)
		return nil
	})
	if err != nil {
		phaseFailures.WithLabelValues(PhaseQuestions.String()).Inc()
		return QuestionSet{}, fmt.Errorf("%w: %w", ErrProvider, err)
	}

	final, err := decodeFinal(last)
	if err != nil {
		phaseFailures.WithLabelValues(PhaseQuestions.String()).Inc()
		return QuestionSet{}, err
	}
	if skipped > 0 {
		o.logger.Debug("skipped undecodable snapshots", zap.String("run_id", run.ID), zap.Int("count", skipped))
	}
	if final.Count(QuestionMCQ) != run.Request.NumMCQ || final.Count(QuestionShortAnswer) != run.Request.NumShortAnswer {
		o.logger.Warn("question counts differ from request",
			zap.String("run_id", run.ID),
			zap.Int("mcq", final.Count(QuestionMCQ)), zap.Int("want_mcq", run.Request.NumMCQ),
			zap.Int("short_answer", final.Count(QuestionShortAnswer)), zap.Int("want_short_answer", run.Request.NumShortAnswer))
	}
	return final, nil
}

// decodeFinal checks that the last snapshot is a complete question set.
func decodeFinal(raw json.RawMessage) (QuestionSet, error) {
	if raw == nil {
		return QuestionSet{}, fmt.Errorf("%w: %w: no snapshot received", ErrProvider, provider.ErrMalformed)
	}
	var doc struct {
		Questions *[]Question `json:"questions"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return QuestionSet{}, fmt.Errorf("%w: %w: %w", ErrProvider, provider.ErrMalformed, err)
	}
	if doc.Questions == nil {
		return QuestionSet{}, fmt.Errorf("%w: %w: questions missing", ErrProvider, provider.ErrMalformed)
	}
	for i, q := range *doc.Questions {
		if !q.Type.Valid() {
			return QuestionSet{}, fmt.Errorf("%w: %w: question %d has type %q", ErrProvider, provider.ErrMalformed, i, q.Type)
		}
	}
	return QuestionSet{Questions: *doc.Questions}, nil
}

func (o *Orchestrator) persist(ctx context.Context, run *AssessmentRun, tosText string, final QuestionSet) error {
	if o.records == nil {
		return nil
	}
	defer observePhase(PhasePersist, time.Now())

	if strings.TrimSpace(tosText) == "" {
		return fmt.Errorf("%w: empty table of specification", ErrPersistence)
	}
	questions, err := json.Marshal(final.Questions)
	if err != nil {
		return fmt.Errorf("%w: encode questions: %w", ErrPersistence, err)
	}
	rec, err := o.records.InsertAssessment(ctx, store.Assessment{
		UserID:             run.UserID,
		Subject:            run.Request.Subject,
		GradeLevel:         run.Request.GradeLevel,
		Topic:              run.Request.Topic,
		GeneratedToS:       tosText,
		GeneratedQuestions: questions,
	})
	if err != nil {
		phaseFailures.WithLabelValues(PhasePersist.String()).Inc()
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	run.mu.Lock()
	run.record = &rec
	run.mu.Unlock()
	return nil
}

// currentUser resolves the caller, mapping every failure onto
// ErrAuthenticationRequired.
func currentUser(ctx context.Context, a auth.Authenticator) (string, error) {
	if a == nil {
		return "", ErrAuthenticationRequired
	}
	u, err := a.CurrentUser(ctx)
	switch {
	case err != nil && errors.Is(err, ErrAuthenticationRequired):
		return "", err
	case err != nil:
		return "", fmt.Errorf("%w: %w", ErrAuthenticationRequired, err)
	case u == "":
		return "", ErrAuthenticationRequired
	}
	return u, nil
}
