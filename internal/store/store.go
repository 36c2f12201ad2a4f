// Package store persists generated assessments, lesson plans and resource
// metadata. Implementations: Memory (tests and demos), Postgres (production)
// and Kuzu (embedded, cgo).
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dusk-indust/lessonforge/internal/config"
)

// DefaultLimit is the page size used when ListOptions.Limit is not positive.
const DefaultLimit = 10

var (
	// ErrNotFound is returned when a record does not exist or belongs to
	// another user.
	ErrNotFound = errors.New("store: not found")

	// ErrInvalidPageToken is returned when a page token does not name a
	// record in the listed collection.
	ErrInvalidPageToken = errors.New("store: invalid page token")
)

// Assessment is a persisted two-phase generation: the Table of
// Specification text and the JSON array of questions.
type Assessment struct {
	ID                 string          `db:"id" json:"id"`
	UserID             string          `db:"user_id" json:"userId"`
	Subject            string          `db:"subject" json:"subject"`
	GradeLevel         string          `db:"grade_level" json:"gradeLevel"`
	Topic              string          `db:"topic" json:"topic"`
	GeneratedToS       string          `db:"generated_tos" json:"generatedToS"`
	GeneratedQuestions json.RawMessage `db:"generated_questions" json:"generatedQuestions"`
	CreatedAt          time.Time       `db:"created_at" json:"createdAt"`
}

// LessonPlan is a persisted SBC lesson plan in markdown.
type LessonPlan struct {
	ID               string    `db:"id" json:"id"`
	UserID           string    `db:"user_id" json:"userId"`
	Subject          string    `db:"subject" json:"subject"`
	GradeLevel       string    `db:"grade_level" json:"gradeLevel"`
	Topic            string    `db:"topic" json:"topic"`
	DurationMinutes  int       `db:"duration_minutes" json:"durationMinutes"`
	GeneratedContent string    `db:"generated_content" json:"generatedContent"`
	CreatedAt        time.Time `db:"created_at" json:"createdAt"`
}

// Resource is the metadata of an uploaded learning resource. FilePath is the
// object storage URL of the bytes.
type Resource struct {
	ID          string    `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"userId"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	Subject     string    `db:"subject" json:"subject"`
	GradeLevel  string    `db:"grade_level" json:"gradeLevel"`
	FilePath    string    `db:"file_path" json:"filePath"`
	FileType    string    `db:"file_type" json:"fileType"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// ListOptions paginates a per-user listing. PageToken is the ID of the last
// record of the previous page.
type ListOptions struct {
	Limit     int
	PageToken string
}

func (o ListOptions) limit() int {
	if o.Limit <= 0 {
		return DefaultLimit
	}
	return o.Limit
}

// Page is one page of a newest-first listing. NextPageToken is empty on the
// last page.
type Page[T any] struct {
	Items         []T    `json:"items"`
	NextPageToken string `json:"nextPageToken,omitempty"`
}

type AssessmentStore interface {
	InsertAssessment(ctx context.Context, a Assessment) (Assessment, error)
	GetAssessment(ctx context.Context, userID, id string) (Assessment, error)
	ListAssessments(ctx context.Context, userID string, opts ListOptions) (Page[Assessment], error)
}

type LessonPlanStore interface {
	InsertLessonPlan(ctx context.Context, p LessonPlan) (LessonPlan, error)
	GetLessonPlan(ctx context.Context, userID, id string) (LessonPlan, error)
	ListLessonPlans(ctx context.Context, userID string, opts ListOptions) (Page[LessonPlan], error)
}

type ResourceStore interface {
	InsertResource(ctx context.Context, r Resource) (Resource, error)
	GetResource(ctx context.Context, userID, id string) (Resource, error)
	ListResources(ctx context.Context, userID string, opts ListOptions) (Page[Resource], error)
}

// Store is the full record store. All access to persisted records goes
// through this interface.
type Store interface {
	io.Closer
	AssessmentStore
	LessonPlanStore
	ResourceStore
}

// Open returns the Store selected by cfg.Kind. Postgres stores run pending
// migrations first when cfg.Migrate is set.
func Open(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (Store, error) {
	switch strings.ToLower(cfg.Kind) {
	case "memory", "":
		return NewMemory(), nil
	case "postgres":
		if cfg.Migrate {
			if err := Migrate(ctx, cfg.DSN, MigrateUp, logger); err != nil {
				return nil, err
			}
		}
		pg, err := OpenPostgres(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return pg, nil
	case "kuzu":
		k, err := OpenKuzu(cfg.KuzuPath)
		if err != nil {
			return nil, err
		}
		return k, nil
	default:
		return nil, fmt.Errorf("store: unknown kind %q", cfg.Kind)
	}
}

// stamp fills in the ID and creation time when the caller left them unset.
func stamp(id *string, created *time.Time) {
	if *id == "" {
		*id = uuid.NewString()
	}
	if created.IsZero() {
		*created = time.Now().UTC()
	}
}

// paginate cuts a newest-first slice at the page token and applies the
// limit. idOf extracts a record's ID.
func paginate[T any](items []T, idOf func(T) string, opts ListOptions) (Page[T], error) {
	start := 0
	if opts.PageToken != "" {
		found := false
		for i, it := range items {
			if idOf(it) == opts.PageToken {
				start = i + 1
				found = true
				break
			}
		}
		if !found {
			return Page[T]{}, fmt.Errorf("%w: %q", ErrInvalidPageToken, opts.PageToken)
		}
	}

	rest := items[start:]
	limit := opts.limit()
	var next string
	if len(rest) > limit {
		rest = rest[:limit]
		next = idOf(rest[limit-1])
	}
	out := make([]T, len(rest))
	copy(out, rest)
	return Page[T]{Items: out, NextPageToken: next}, nil
}
