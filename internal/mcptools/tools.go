package mcptools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/lessonforge/internal/auth"
	"github.com/dusk-indust/lessonforge/internal/orchestrator"
	"github.com/dusk-indust/lessonforge/internal/sections"
	"github.com/dusk-indust/lessonforge/internal/store"
	"github.com/dusk-indust/lessonforge/internal/stream"
)

// GenerateAssessmentInput is the input for the generate_assessment tool.
type GenerateAssessmentInput struct {
	Topic          string `json:"topic" jsonschema:"the topic to assess, at least 3 characters"`
	GradeLevel     string `json:"gradeLevel" jsonschema:"class or grade, e.g. JHS 2 or Basic 7"`
	Subject        string `json:"subject" jsonschema:"the subject, e.g. Integrated Science"`
	NumMCQ         int    `json:"numMcq" jsonschema:"number of multiple-choice questions"`
	NumShortAnswer int    `json:"numShortAnswer" jsonschema:"number of short-answer questions"`
}

// GenerateAssessmentOutput is the result of the generate_assessment tool.
type GenerateAssessmentOutput struct {
	RunID        string                  `json:"runId"`
	AssessmentID string                  `json:"assessmentId,omitempty"`
	ToS          string                  `json:"tableOfSpecification"`
	Questions    []orchestrator.Question `json:"questions"`
}

// GenerateLessonPlanInput is the input for the generate_lesson_plan tool.
type GenerateLessonPlanInput struct {
	Subject         string `json:"subject" jsonschema:"the subject, at least 2 characters"`
	GradeLevel      string `json:"gradeLevel" jsonschema:"class or form, e.g. Form 1"`
	Topic           string `json:"topic" jsonschema:"the lesson topic, at least 5 characters"`
	DurationMinutes int    `json:"durationMinutes" jsonschema:"lesson length in minutes, at least 5"`
}

// GenerateLessonPlanOutput is the result of the generate_lesson_plan tool.
type GenerateLessonPlanOutput struct {
	RunID        string `json:"runId"`
	LessonPlanID string `json:"lessonPlanId,omitempty"`
	Content      string `json:"content"`
}

// ParseLessonPlanInput is the input for the parse_lesson_plan tool.
type ParseLessonPlanInput struct {
	Document string `json:"document" jsonschema:"lesson plan markdown with ### section headings"`
}

// ParseLessonPlanOutput is the result of the parse_lesson_plan tool.
type ParseLessonPlanOutput struct {
	Sections []sections.Section `json:"sections"`
	Details  map[string]string  `json:"details"`
}

// ListLessonPlansInput is the input for the list_lesson_plans tool.
type ListLessonPlansInput struct {
	Limit     int    `json:"limit,omitempty" jsonschema:"maximum number of plans (default: 10)"`
	PageToken string `json:"pageToken,omitempty" jsonschema:"nextPageToken from a previous call"`
}

// LessonPlanSummary is one entry of list_lesson_plans.
type LessonPlanSummary struct {
	ID              string `json:"id"`
	Subject         string `json:"subject"`
	GradeLevel      string `json:"gradeLevel"`
	Topic           string `json:"topic"`
	DurationMinutes int    `json:"durationMinutes"`
	CreatedAt       string `json:"createdAt"`
}

// ListLessonPlansOutput is the result of the list_lesson_plans tool.
type ListLessonPlansOutput struct {
	LessonPlans   []LessonPlanSummary `json:"lessonPlans"`
	NextPageToken string              `json:"nextPageToken,omitempty"`
}

// Service handles MCP tool calls. Every call acts as the user resolved by
// its Authenticator.
type Service struct {
	assessments *orchestrator.Orchestrator
	lessonPlans *orchestrator.LessonPlanner
	history     store.LessonPlanStore
	auth        auth.Authenticator
	logger      *zap.Logger
}

func NewService(assessments *orchestrator.Orchestrator, lessonPlans *orchestrator.LessonPlanner, history store.LessonPlanStore, authn auth.Authenticator, logger *zap.Logger) *Service {
	return &Service{
		assessments: assessments,
		lessonPlans: lessonPlans,
		history:     history,
		auth:        authn,
		logger:      logger.Named("mcp"),
	}
}

func (s *Service) userContext(ctx context.Context) (context.Context, string, error) {
	if s.auth == nil {
		return ctx, "", auth.ErrAuthenticationRequired
	}
	user, err := s.auth.CurrentUser(ctx)
	if err != nil {
		return ctx, "", err
	}
	return auth.WithUser(ctx, user), user, nil
}

// GenerateAssessment runs both phases to completion and returns the
// Table of Specification and the final questions.
func (s *Service) GenerateAssessment(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GenerateAssessmentInput,
) (*mcp.CallToolResult, GenerateAssessmentOutput, error) {
	ctx, _, err := s.userContext(ctx)
	if err != nil {
		return nil, GenerateAssessmentOutput{}, err
	}
	run, err := s.assessments.Run(ctx, orchestrator.AssessmentRequest{
		Topic:          input.Topic,
		GradeLevel:     input.GradeLevel,
		Subject:        input.Subject,
		NumMCQ:         input.NumMCQ,
		NumShortAnswer: input.NumShortAnswer,
	})
	if err != nil {
		return nil, GenerateAssessmentOutput{}, err
	}

	var (
		chunks    []string
		snapshots []orchestrator.QuestionSet
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		chunks, err = stream.Collect(gctx, run.ToS)
		return err
	})
	g.Go(func() error {
		var err error
		snapshots, err = stream.Collect(gctx, run.Questions)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, GenerateAssessmentOutput{}, fmt.Errorf("generate assessment: %w", err)
	}
	if err := waitRun(ctx, run.Done()); err != nil {
		return nil, GenerateAssessmentOutput{}, err
	}

	out := GenerateAssessmentOutput{
		RunID:     run.ID,
		ToS:       strings.Join(chunks, ""),
		Questions: []orchestrator.Question{},
	}
	if n := len(snapshots); n > 0 && snapshots[n-1].Questions != nil {
		out.Questions = snapshots[n-1].Questions
	}
	if rec, ok := run.Record(); ok {
		out.AssessmentID = rec.ID
	}
	return nil, out, nil
}

// GenerateLessonPlan streams a lesson plan to completion and returns it.
func (s *Service) GenerateLessonPlan(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GenerateLessonPlanInput,
) (*mcp.CallToolResult, GenerateLessonPlanOutput, error) {
	ctx, _, err := s.userContext(ctx)
	if err != nil {
		return nil, GenerateLessonPlanOutput{}, err
	}
	run, err := s.lessonPlans.Run(ctx, orchestrator.LessonPlanRequest{
		Subject:         input.Subject,
		GradeLevel:      input.GradeLevel,
		Topic:           input.Topic,
		DurationMinutes: input.DurationMinutes,
	})
	if err != nil {
		return nil, GenerateLessonPlanOutput{}, err
	}
	chunks, err := stream.Collect(ctx, run.Content)
	if err != nil {
		return nil, GenerateLessonPlanOutput{}, fmt.Errorf("generate lesson plan: %w", err)
	}
	if err := waitRun(ctx, run.Done()); err != nil {
		return nil, GenerateLessonPlanOutput{}, err
	}

	out := GenerateLessonPlanOutput{RunID: run.ID, Content: strings.Join(chunks, "")}
	if rec, ok := run.Record(); ok {
		out.LessonPlanID = rec.ID
	}
	return nil, out, nil
}

// ParseLessonPlan splits a lesson plan document into its sections.
func (s *Service) ParseLessonPlan(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input ParseLessonPlanInput,
) (*mcp.CallToolResult, ParseLessonPlanOutput, error) {
	secs := sections.ParseOrdered(input.Document)
	return nil, ParseLessonPlanOutput{
		Sections: secs,
		Details:  sections.Details(secs[0].Body),
	}, nil
}

// ListLessonPlans returns the caller's lesson plans, newest first.
func (s *Service) ListLessonPlans(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ListLessonPlansInput,
) (*mcp.CallToolResult, ListLessonPlansOutput, error) {
	if s.history == nil {
		return nil, ListLessonPlansOutput{}, errors.New("lesson plan history is not configured")
	}
	_, user, err := s.userContext(ctx)
	if err != nil {
		return nil, ListLessonPlansOutput{}, err
	}
	page, err := s.history.ListLessonPlans(ctx, user, store.ListOptions{Limit: input.Limit, PageToken: input.PageToken})
	if err != nil {
		return nil, ListLessonPlansOutput{}, err
	}

	out := ListLessonPlansOutput{
		LessonPlans:   make([]LessonPlanSummary, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, p := range page.Items {
		out.LessonPlans = append(out.LessonPlans, LessonPlanSummary{
			ID:              p.ID,
			Subject:         p.Subject,
			GradeLevel:      p.GradeLevel,
			Topic:           p.Topic,
			DurationMinutes: p.DurationMinutes,
			CreatedAt:       p.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return nil, out, nil
}

// waitRun waits for persistence so the record ID can be reported.
func waitRun(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
