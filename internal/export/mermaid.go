package export

import (
	"fmt"
	"strings"

	"github.com/dusk-indust/lessonforge/internal/sections"
	"github.com/dusk-indust/lessonforge/internal/store"
)

// LessonPlanMermaid produces a Mermaid flowchart of p: the topic node
// links to each non-empty section in document order, and the details
// become a subgraph of their known fields.
func LessonPlanMermaid(p store.LessonPlan) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")
	fmt.Fprintf(&sb, "  T[\"%s\"]\n", label(p.Topic))

	var details string
	prev := "T"
	n := 0
	for _, s := range sections.ParseOrdered(p.GeneratedContent) {
		if s.Body == "" {
			continue
		}
		if s.Title == sections.DetailsKey {
			details = s.Body
			continue
		}
		id := fmt.Sprintf("S%d", n)
		n++
		fmt.Fprintf(&sb, "  %s[\"%s\"]\n", id, label(s.Title))
		fmt.Fprintf(&sb, "  %s --> %s\n", prev, id)
		prev = id
	}

	if details != "" {
		sb.WriteString("  subgraph D[\"Details\"]\n")
		for i, k := range sections.DetailKeys {
			v := sections.Field(details, k)
			if v == sections.NotProvided {
				continue
			}
			fmt.Fprintf(&sb, "    D%d[\"%s: %s\"]\n", i, label(k), label(v))
		}
		sb.WriteString("  end\n")
		sb.WriteString("  T -.- D\n")
	}
	return sb.String()
}

// label makes s safe inside a quoted Mermaid node label and keeps it short.
func label(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.ReplaceAll(s, `"`, "#quot;")
	if r := []rune(s); len(r) > 40 {
		s = string(r[:39]) + "…"
	}
	return s
}
