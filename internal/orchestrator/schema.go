package orchestrator

import (
	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/dusk-indust/lessonforge/internal/provider"
)

// QuestionSetSchema returns the JSON Schema the questions phase must
// conform to. The type field is restricted to the QuestionType values.
func QuestionSetSchema() provider.Schema {
	s := provider.Schema{
		Name:        "question_set",
		Description: "Assessment questions derived from a Table of Specification",
	}
	def, err := jsonschema.GenerateSchemaForType(QuestionSet{})
	if err != nil {
		// Backends fall back to unconstrained JSON output.
		return s
	}
	if list, ok := def.Properties["questions"]; ok && list.Items != nil {
		typ := list.Items.Properties["type"]
		typ.Enum = []string{string(QuestionMCQ), string(QuestionShortAnswer)}
		list.Items.Properties["type"] = typ
	}
	s.Definition = def
	return s
}
