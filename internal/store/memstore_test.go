package store

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dusk-indust/lessonforge/internal/config"
)

// testStoreContract exercises the behavior every Store backend shares.
// newStore must return an empty store.
func testStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("InsertAssignsIDAndTimestamp", func(t *testing.T) {
		s := newStore(t)
		got, err := s.InsertAssessment(context.Background(), Assessment{
			UserID:             "u1",
			Subject:            "Science",
			GradeLevel:         "JHS 2",
			Topic:              "Photosynthesis",
			GeneratedToS:       "| Topic Area |",
			GeneratedQuestions: json.RawMessage(`[{"type":"MCQ","question":"Q","answer":"A"}]`),
		})
		require.NoError(t, err)
		assert.NotEmpty(t, got.ID)
		assert.False(t, got.CreatedAt.IsZero())

		back, err := s.GetAssessment(context.Background(), "u1", got.ID)
		require.NoError(t, err)
		assert.Equal(t, "Photosynthesis", back.Topic)
		assert.Equal(t, "| Topic Area |", back.GeneratedToS)
		assert.JSONEq(t, `[{"type":"MCQ","question":"Q","answer":"A"}]`, string(back.GeneratedQuestions))
	})

	t.Run("GetIsScopedToOwner", func(t *testing.T) {
		s := newStore(t)
		p, err := s.InsertLessonPlan(context.Background(), LessonPlan{UserID: "u1", Subject: "Math", GradeLevel: "B6", Topic: "Fractions", DurationMinutes: 60, GeneratedContent: "### Intro"})
		require.NoError(t, err)

		_, err = s.GetLessonPlan(context.Background(), "u2", p.ID)
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = s.GetLessonPlan(context.Background(), "u1", "missing")
		assert.ErrorIs(t, err, ErrNotFound)

		got, err := s.GetLessonPlan(context.Background(), "u1", p.ID)
		require.NoError(t, err)
		assert.Equal(t, 60, got.DurationMinutes)
		assert.Equal(t, "### Intro", got.GeneratedContent)
	})

	t.Run("ListNewestFirstWithPages", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		var ids []string
		for i := 0; i < 12; i++ {
			p, err := s.InsertLessonPlan(ctx, LessonPlan{
				ID:               fmt.Sprintf("plan-%02d", i),
				UserID:           "u1",
				Subject:          "English",
				GradeLevel:       "Form 1",
				Topic:            fmt.Sprintf("Topic %d", i),
				DurationMinutes:  40,
				GeneratedContent: "x",
				CreatedAt:        base.Add(time.Duration(i) * time.Minute),
			})
			require.NoError(t, err)
			ids = append(ids, p.ID)
		}
		_, err := s.InsertLessonPlan(ctx, LessonPlan{UserID: "other", Subject: "English", GradeLevel: "Form 1", Topic: "Other", DurationMinutes: 40, CreatedAt: base.Add(time.Hour)})
		require.NoError(t, err)

		first, err := s.ListLessonPlans(ctx, "u1", ListOptions{})
		require.NoError(t, err)
		require.Len(t, first.Items, DefaultLimit)
		assert.Equal(t, "plan-11", first.Items[0].ID)
		assert.Equal(t, "plan-02", first.Items[9].ID)
		assert.Equal(t, "plan-02", first.NextPageToken)

		second, err := s.ListLessonPlans(ctx, "u1", ListOptions{PageToken: first.NextPageToken})
		require.NoError(t, err)
		require.Len(t, second.Items, 2)
		assert.Equal(t, ids[1], second.Items[0].ID)
		assert.Equal(t, ids[0], second.Items[1].ID)
		assert.Empty(t, second.NextPageToken)
	})

	t.Run("ListEmptyIsNonNil", func(t *testing.T) {
		s := newStore(t)
		page, err := s.ListResources(context.Background(), "nobody", ListOptions{Limit: 5})
		require.NoError(t, err)
		assert.NotNil(t, page.Items)
		assert.Empty(t, page.Items)
	})

	t.Run("InvalidPageToken", func(t *testing.T) {
		s := newStore(t)
		_, err := s.ListAssessments(context.Background(), "u1", ListOptions{PageToken: "nope"})
		assert.ErrorIs(t, err, ErrInvalidPageToken)
	})

	t.Run("Resources", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		r, err := s.InsertResource(ctx, Resource{
			UserID:      "u1",
			Title:       "Leaf diagram",
			Description: "Labelled parts of a leaf",
			Subject:     "Science",
			GradeLevel:  "JHS 2",
			FilePath:    "mem://localhost/resources/u1/leaf.png",
			FileType:    "image/png",
			CreatedAt:   base,
		})
		require.NoError(t, err)

		page, err := s.ListResources(ctx, "u1", ListOptions{Limit: 1})
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		assert.Equal(t, r.ID, page.Items[0].ID)
		assert.Equal(t, "image/png", page.Items[0].FileType)
		assert.True(t, base.Equal(page.Items[0].CreatedAt))
	})
}

func TestMemory_Contract(t *testing.T) {
	testStoreContract(t, func(t *testing.T) Store { return NewMemory() })
}

func TestMemory_ReturnsCopies(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	a, err := s.InsertAssessment(ctx, Assessment{UserID: "u1", GeneratedQuestions: json.RawMessage(`[]`)})
	require.NoError(t, err)

	a.GeneratedQuestions[0] = '{'
	got, err := s.GetAssessment(ctx, "u1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(got.GeneratedQuestions))
}

func TestMemory_DuplicateIDRejected(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	_, err := s.InsertResource(ctx, Resource{ID: "r1", UserID: "u1"})
	require.NoError(t, err)
	_, err = s.InsertResource(ctx, Resource{ID: "r1", UserID: "u1"})
	assert.Error(t, err)
}

func TestOpen_SelectsBackend(t *testing.T) {
	s, err := Open(context.Background(), config.StoreConfig{Kind: "memory"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	_, err = Open(context.Background(), config.StoreConfig{Kind: "sqlite"}, zap.NewNop())
	assert.Error(t, err)
}
