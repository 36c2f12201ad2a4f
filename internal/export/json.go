// Package export renders stored assessments and lesson plans for download.
package export

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dusk-indust/lessonforge/internal/orchestrator"
	"github.com/dusk-indust/lessonforge/internal/sections"
	"github.com/dusk-indust/lessonforge/internal/store"
)

// AssessmentExport is the JSON export of an assessment.
type AssessmentExport struct {
	ID         string                  `json:"id"`
	Subject    string                  `json:"subject"`
	GradeLevel string                  `json:"gradeLevel"`
	Topic      string                  `json:"topic"`
	CreatedAt  string                  `json:"createdAt"`
	ExportedAt string                  `json:"exportedAt"`
	ToS        string                  `json:"tableOfSpecification"`
	Summary    QuestionSummary         `json:"summary"`
	Questions  []orchestrator.Question `json:"questions"`
}

// QuestionSummary counts questions by type.
type QuestionSummary struct {
	MCQ         int `json:"mcq"`
	ShortAnswer int `json:"shortAnswer"`
	Total       int `json:"total"`
}

// LessonPlanExport is the JSON export of a lesson plan.
type LessonPlanExport struct {
	ID              string             `json:"id"`
	Subject         string             `json:"subject"`
	GradeLevel      string             `json:"gradeLevel"`
	Topic           string             `json:"topic"`
	DurationMinutes int                `json:"durationMinutes"`
	CreatedAt       string             `json:"createdAt"`
	ExportedAt      string             `json:"exportedAt"`
	Details         map[string]string  `json:"details"`
	Sections        []sections.Section `json:"sections"`
}

var now = func() time.Time { return time.Now().UTC() }

// Questions decodes the stored question array. A NULL or empty column
// yields an empty set.
func Questions(a store.Assessment) (orchestrator.QuestionSet, error) {
	set := orchestrator.QuestionSet{Questions: []orchestrator.Question{}}
	if len(a.GeneratedQuestions) == 0 || string(a.GeneratedQuestions) == "null" {
		return set, nil
	}
	if err := json.Unmarshal(a.GeneratedQuestions, &set.Questions); err != nil {
		return set, fmt.Errorf("export: decode questions of %s: %w", a.ID, err)
	}
	if set.Questions == nil {
		set.Questions = []orchestrator.Question{}
	}
	return set, nil
}

// NewAssessmentExport builds the export structure of a.
func NewAssessmentExport(a store.Assessment) (*AssessmentExport, error) {
	set, err := Questions(a)
	if err != nil {
		return nil, err
	}
	mcq := set.Count(orchestrator.QuestionMCQ)
	short := set.Count(orchestrator.QuestionShortAnswer)
	return &AssessmentExport{
		ID:         a.ID,
		Subject:    a.Subject,
		GradeLevel: a.GradeLevel,
		Topic:      a.Topic,
		CreatedAt:  a.CreatedAt.UTC().Format(time.RFC3339),
		ExportedAt: now().Format(time.RFC3339),
		ToS:        a.GeneratedToS,
		Summary:    QuestionSummary{MCQ: mcq, ShortAnswer: short, Total: len(set.Questions)},
		Questions:  set.Questions,
	}, nil
}

// NewLessonPlanExport builds the export structure of p.
func NewLessonPlanExport(p store.LessonPlan) *LessonPlanExport {
	secs := sections.ParseOrdered(p.GeneratedContent)
	var details string
	for _, s := range secs {
		if s.Title == sections.DetailsKey {
			details = s.Body
		}
	}
	return &LessonPlanExport{
		ID:              p.ID,
		Subject:         p.Subject,
		GradeLevel:      p.GradeLevel,
		Topic:           p.Topic,
		DurationMinutes: p.DurationMinutes,
		CreatedAt:       p.CreatedAt.UTC().Format(time.RFC3339),
		ExportedAt:      now().Format(time.RFC3339),
		Details:         sections.Details(details),
		Sections:        secs,
	}
}

// AssessmentJSON renders a as indented JSON.
func AssessmentJSON(a store.Assessment) ([]byte, error) {
	exp, err := NewAssessmentExport(a)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(exp, "", "  ")
}

// LessonPlanJSON renders p as indented JSON.
func LessonPlanJSON(p store.LessonPlan) ([]byte, error) {
	return json.MarshalIndent(NewLessonPlanExport(p), "", "  ")
}
