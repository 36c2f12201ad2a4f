//go:build e2e

package e2e

import (
	"encoding/json"
	"flag"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/lessonforge/internal/notify"
	"github.com/dusk-indust/lessonforge/internal/orchestrator"
	"github.com/dusk-indust/lessonforge/internal/store"
	"github.com/dusk-indust/lessonforge/internal/stream"
)

var update = flag.Bool("update", false, "update golden files")

func goldenPath(name string) string {
	return filepath.Join("..", "..", "testdata", "golden", name)
}

type startResponse struct {
	RunID   string            `json:"runId"`
	Streams map[string]string `json:"streams"`
	Events  string            `json:"events"`
}

// TestAssessment_E2E starts an assessment, consumes both streams
// concurrently over HTTP, then checks the stored record against the golden
// export.
func TestAssessment_E2E(t *testing.T) {
	s := startStack(t)

	resp := s.request(t, http.MethodPost, "/api/assessments", orchestrator.AssessmentRequest{
		Topic: "Photosynthesis", GradeLevel: "JHS 1", Subject: "Integrated Science", NumMCQ: 2, NumShortAnswer: 1,
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	started := decode[startResponse](t, resp)

	tosFrames := s.subscribe(t, started.Streams["tos"])
	questionFrames := s.subscribe(t, started.Streams["questions"])

	var tos strings.Builder
	var tosTerminal stream.Kind
	for fr := range tosFrames {
		require.NoError(t, fr.Err)
		if fr.Message.Kind == stream.KindUpdate {
			var chunk string
			require.NoError(t, json.Unmarshal(fr.Message.Value, &chunk))
			tos.WriteString(chunk)
			continue
		}
		tosTerminal = fr.Message.Kind
	}
	assert.Equal(t, stream.KindComplete, tosTerminal)
	assert.Contains(t, tos.String(), "| Photosynthesis | Application | 1 | 3 |")

	var (
		snapshots []orchestrator.QuestionSet
		qTerminal stream.Kind
	)
	for fr := range questionFrames {
		require.NoError(t, fr.Err)
		if fr.Message.Kind == stream.KindUpdate {
			var qs orchestrator.QuestionSet
			require.NoError(t, json.Unmarshal(fr.Message.Value, &qs))
			snapshots = append(snapshots, qs)
			continue
		}
		qTerminal = fr.Message.Kind
	}
	assert.Equal(t, stream.KindComplete, qTerminal)
	require.NotEmpty(t, snapshots)
	for i := 1; i < len(snapshots); i++ {
		assert.GreaterOrEqual(t, len(snapshots[i].Questions), len(snapshots[i-1].Questions))
	}
	assert.Len(t, snapshots[len(snapshots)-1].Questions, 3)

	s.srv.Wait()

	page := decode[store.Page[store.Assessment]](t, s.request(t, http.MethodGet, "/api/assessments", nil))
	require.Len(t, page.Items, 1)
	id := page.Items[0].ID

	resp = s.request(t, http.MethodGet, "/api/assessments/"+id+"/export?format=md", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	golden := goldenPath("assessment_photosynthesis.md")
	if *update {
		require.NoError(t, os.WriteFile(golden, got, 0o644))
	}
	want, err := os.ReadFile(golden)
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))

	require.Len(t, s.events.events, 1)
	assert.Equal(t, notify.AssessmentCreated, s.events.events[0].Type)
	assert.Equal(t, id, s.events.events[0].ID)
}

type lessonPlanDetail struct {
	Sections []struct {
		Title string `json:"title"`
	} `json:"sections"`
	Details map[string]string `json:"details"`
}

// TestLessonPlan_E2E streams a lesson plan through the combined events
// endpoint and reads it back as sections and HTML.
func TestLessonPlan_E2E(t *testing.T) {
	s := startStack(t)

	resp := s.request(t, http.MethodPost, "/api/lesson-plans", orchestrator.LessonPlanRequest{
		Subject: "Integrated Science", GradeLevel: "Form 1", Topic: "Plant nutrition", DurationMinutes: 60,
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	started := decode[startResponse](t, resp)

	var content strings.Builder
	for fr := range s.subscribe(t, started.Events) {
		require.NoError(t, fr.Err)
		assert.Equal(t, "content", fr.Message.Stream)
		if fr.Message.Kind == stream.KindUpdate {
			var chunk string
			require.NoError(t, json.Unmarshal(fr.Message.Value, &chunk))
			content.WriteString(chunk)
		}
	}
	assert.Contains(t, content.String(), "### Lesson Procedure")

	s.srv.Wait()

	page := decode[store.Page[store.LessonPlan]](t, s.request(t, http.MethodGet, "/api/lesson-plans", nil))
	require.Len(t, page.Items, 1)
	id := page.Items[0].ID

	detail := decode[lessonPlanDetail](t, s.request(t, http.MethodGet, "/api/lesson-plans/"+id, nil))
	titles := make([]string, 0, len(detail.Sections))
	for _, sec := range detail.Sections {
		titles = append(titles, sec.Title)
	}
	assert.Equal(t, []string{"Details", "Key Notes on Differentiation", "Lesson Procedure", "Lesson Closure", "Reflection & Remarks"}, titles)
	assert.Equal(t, "Plant Nutrition", detail.Details["Sub-Strand"])

	resp = s.request(t, http.MethodGet, "/api/lesson-plans/"+id+"/html", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	html, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(html), "<h2>Lesson Closure</h2>")
	assert.NotContains(t, string(html), "<h2>Reflection &amp; Remarks</h2>")
}
