package export

import (
	"fmt"
	"html"
	"strings"

	"github.com/dusk-indust/lessonforge/internal/orchestrator"
	"github.com/dusk-indust/lessonforge/internal/sections"
	"github.com/dusk-indust/lessonforge/internal/store"
)

// AssessmentMarkdown renders a as a printable document: the ToS, the
// numbered questions with lettered options, then an answer key.
func AssessmentMarkdown(a store.Assessment) (string, error) {
	set, err := Questions(a)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Assessment: %s\n\n", a.Topic)
	fmt.Fprintf(&sb, "- **Subject:** %s\n", a.Subject)
	fmt.Fprintf(&sb, "- **Class:** %s\n", a.GradeLevel)
	fmt.Fprintf(&sb, "- **Questions:** %d MCQ, %d short answer\n\n",
		set.Count(orchestrator.QuestionMCQ), set.Count(orchestrator.QuestionShortAnswer))

	sb.WriteString("## Table of Specification\n\n")
	sb.WriteString(strings.TrimSpace(a.GeneratedToS))
	sb.WriteString("\n\n## Questions\n\n")
	for i, q := range set.Questions {
		fmt.Fprintf(&sb, "%d. %s", i+1, strings.TrimSpace(q.Question))
		if q.CognitiveLevel != "" {
			fmt.Fprintf(&sb, " _(%s)_", q.CognitiveLevel)
		}
		sb.WriteString("\n")
		for j, opt := range q.Options {
			fmt.Fprintf(&sb, "   %s. %s\n", optionLetter(j), strings.TrimSpace(opt))
		}
		if q.Type == orchestrator.QuestionShortAnswer {
			sb.WriteString("\n   ______________________________\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Answer Key\n\n")
	for i, q := range set.Questions {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, strings.TrimSpace(q.Answer))
	}
	return sb.String(), nil
}

// optionLetter maps 0 to A, 1 to B and so on. Past Z it falls back to a
// number.
func optionLetter(i int) string {
	if i < 26 {
		return string(rune('A' + i))
	}
	return fmt.Sprintf("%d", i+1)
}

// LessonPlanMarkdown renders p with a title and its generated content.
func LessonPlanMarkdown(p store.LessonPlan) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Lesson Plan: %s\n\n", p.Topic)
	fmt.Fprintf(&sb, "_%s, %s, %d minutes_\n\n", p.Subject, p.GradeLevel, p.DurationMinutes)
	sb.WriteString(strings.TrimSpace(p.GeneratedContent))
	sb.WriteString("\n")
	return sb.String()
}

// LessonPlanHTML renders p as a standalone HTML page.
func LessonPlanHTML(p store.LessonPlan) (string, error) {
	body, err := sections.RenderHTML(p.GeneratedContent)
	if err != nil {
		return "", err
	}
	title := html.EscapeString("Lesson Plan: " + p.Topic)
	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&sb, "<title>%s</title>\n</head>\n<body>\n<h1>%s</h1>\n", title, title)
	fmt.Fprintf(&sb, "<p class=\"meta\">%s, %s, %d minutes</p>\n",
		html.EscapeString(p.Subject), html.EscapeString(p.GradeLevel), p.DurationMinutes)
	sb.WriteString(body)
	sb.WriteString("</body>\n</html>\n")
	return sb.String(), nil
}
