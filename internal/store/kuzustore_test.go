//go:build cgo

package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestKuzu creates a fresh in-memory Kuzu store and closes it when the
// test finishes.
func newTestKuzu(t *testing.T) *Kuzu {
	t.Helper()
	s, err := OpenKuzu("")
	require.NoError(t, err, "OpenKuzu should not fail")
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestKuzu_Contract(t *testing.T) {
	testStoreContract(t, func(t *testing.T) Store { return newTestKuzu(t) })
}

func TestKuzu_InitSchemaIsIdempotent(t *testing.T) {
	s := newTestKuzu(t)
	require.NoError(t, s.initSchema())
}

func TestKuzu_FileDatabaseSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db", "lessonforge.kuzu")
	ctx := context.Background()

	s, err := OpenKuzu(path)
	require.NoError(t, err)
	p, err := s.InsertLessonPlan(ctx, LessonPlan{UserID: "u1", Subject: "Math", GradeLevel: "B6", Topic: "Fractions", DurationMinutes: 30, GeneratedContent: "### Intro\nhello"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = OpenKuzu(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	got, err := s.GetLessonPlan(ctx, "u1", p.ID)
	require.NoError(t, err)
	assert.Equal(t, "### Intro\nhello", got.GeneratedContent)
}
