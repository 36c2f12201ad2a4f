package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

var _ Provider = (*Canned)(nil)

// Canned replays fixed output in small chunks. It backs the "canned"
// provider kind and deterministic tests.
type Canned struct {
	// Text is streamed by StreamText unless TextFor is set.
	Text string
	// TextFor, when set, chooses the text for a prompt.
	TextFor func(prompt string) string
	// Structured is the final document streamed by StreamStructured.
	Structured json.RawMessage
	// ChunkSize is the number of bytes per chunk. Zero means 16.
	ChunkSize int
	// Delay is slept between chunks.
	Delay time.Duration

	// TextErr and StructuredErr, when set, are returned after the first chunk.
	TextErr       error
	StructuredErr error

	textCalls       atomic.Int32
	structuredCalls atomic.Int32
}

// TextCalls reports how many times StreamText was invoked.
func (c *Canned) TextCalls() int { return int(c.textCalls.Load()) }

// StructuredCalls reports how many times StreamStructured was invoked.
func (c *Canned) StructuredCalls() int { return int(c.structuredCalls.Load()) }

func (c *Canned) StreamText(ctx context.Context, prompt string, onChunk func(string) error) error {
	c.textCalls.Add(1)
	text := c.Text
	if c.TextFor != nil {
		text = c.TextFor(prompt)
	}
	return c.replay(ctx, text, c.TextErr, onChunk)
}

func (c *Canned) StreamStructured(ctx context.Context, prompt string, schema Schema, onSnapshot func(json.RawMessage) error) error {
	c.structuredCalls.Add(1)
	var snap Snapshotter
	err := c.replay(ctx, string(c.Structured), c.StructuredErr, func(chunk string) error {
		if doc, ok := snap.Feed(chunk); ok {
			return onSnapshot(doc)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return finishSnapshots(&snap, onSnapshot)
}

func (c *Canned) replay(ctx context.Context, text string, failWith error, onChunk func(string) error) error {
	size := c.ChunkSize
	if size <= 0 {
		size = 16
	}
	for i := 0; i < len(text); i += size {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrGeneration, err)
		}
		end := min(i+size, len(text))
		if err := onChunk(text[i:end]); err != nil {
			return fmt.Errorf("%w: chunk handler: %w", ErrGeneration, err)
		}
		if failWith != nil {
			return fmt.Errorf("%w: %w", ErrGeneration, failWith)
		}
		if c.Delay > 0 {
			time.Sleep(c.Delay)
		}
	}
	if failWith != nil {
		return fmt.Errorf("%w: %w", ErrGeneration, failWith)
	}
	return nil
}

// Demo returns a Canned provider with a small science assessment and lesson
// plan, for running the service without model credentials.
func Demo() *Canned {
	return &Canned{
		TextFor: func(prompt string) string {
			if strings.Contains(prompt, "Table of Specification") {
				return demoToS
			}
			return demoLessonPlan
		},
		Structured: json.RawMessage(demoQuestions),
		ChunkSize:  24,
		Delay:      15 * time.Millisecond,
	}
}

const demoToS = `| Topic Area | Cognitive Level (Bloom/SBC) | No. of Items | Marks Allocated |
|---|---|---|---|
| Photosynthesis | Knowledge | 1 | 1 |
| Photosynthesis | Understanding | 1 | 1 |
| Photosynthesis | Application | 1 | 3 |
`

const demoQuestions = `{"questions":[
{"type":"MCQ","cognitive_level":"Knowledge","question":"Which pigment absorbs light for photosynthesis?","options":["Chlorophyll","Haemoglobin","Melanin","Keratin"],"answer":"Chlorophyll"},
{"type":"MCQ","cognitive_level":"Understanding","question":"Which gas do plants release during photosynthesis?","options":["Carbon dioxide","Oxygen","Nitrogen","Hydrogen"],"answer":"Oxygen"},
{"type":"SHORT_ANSWER","cognitive_level":"Application","question":"Explain why a plant kept in the dark stops producing starch.","answer":"Without light the plant cannot photosynthesise, so no glucose is made to store as starch."}
]}`

const demoLessonPlan = `- **Subject:** Integrated Science
- **Week:** 3
- **Duration:** 60 minutes
- **Form:** 1
- **Strand:** Systems
- **Sub-Strand:** Plant Nutrition
- **Content Standard:** Demonstrate understanding of photosynthesis.
- **Learning Outcome(s):** Describe the raw materials and products of photosynthesis.
- **Learning Indicator(s):** State the word equation for photosynthesis.
- **Essential Question(s):** Where does a plant's food come from?
- **Pedagogical Strategies:** Experiential learning, group work
- **Teaching & Learning Resources:** Potted plants, iodine solution
- **Keywords:** chlorophyll, glucose, stomata

### Key Notes on Differentiation
Pair learners who need support with confident readers.

### Lesson Procedure
**Starter (10 min):** Ask learners what plants need to grow.

**Main (40 min):** Test a destarched and an exposed leaf with iodine.

### Lesson Closure
Learners write the word equation on exit cards.

### Reflection & Remarks
`
