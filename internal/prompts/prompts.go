// Package prompts embeds the generation prompt templates and renders them
// from request fields. Rendering is deterministic: the same input always
// produces the same prompt.
package prompts

import (
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.New("").Option("missingkey=error").ParseFS(templateFS, "templates/*.tmpl"))

// ToS holds the fields of the Table of Specification prompt.
type ToS struct {
	Topic       string
	GradeLevel  string
	Subject     string
	MCQ         int
	ShortAnswer int
}

// Questions holds the fields of the question-generation prompt. ToS is the
// complete phase-one output.
type Questions struct {
	ToS
	ToSText string
}

// LessonPlan holds the fields of the SBC lesson-plan prompt.
type LessonPlan struct {
	Subject         string
	GradeLevel      string
	Topic           string
	DurationMinutes int
}

// RenderToS renders the Table of Specification prompt.
func RenderToS(d ToS) (string, error) {
	return render("tos.tmpl", d)
}

// RenderQuestions renders the question prompt with the ToS text embedded.
func RenderQuestions(d Questions) (string, error) {
	return render("questions.tmpl", map[string]any{
		"Topic":       d.Topic,
		"GradeLevel":  d.GradeLevel,
		"Subject":     d.Subject,
		"MCQ":         d.MCQ,
		"ShortAnswer": d.ShortAnswer,
		"ToS":         d.ToSText,
	})
}

// RenderLessonPlan renders the SBC lesson-plan prompt.
func RenderLessonPlan(d LessonPlan) (string, error) {
	return render("lessonplan.tmpl", d)
}

// Names lists the embedded template names.
func Names() []string {
	var names []string
	for _, t := range templates.Templates() {
		if t.Name() != "" {
			names = append(names, t.Name())
		}
	}
	return names
}

func render(name string, data any) (string, error) {
	var b strings.Builder
	if err := templates.ExecuteTemplate(&b, name, data); err != nil {
		return "", fmt.Errorf("prompts: render %s: %w", name, err)
	}
	return strings.TrimSpace(b.String()), nil
}
