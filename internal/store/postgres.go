package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/dusk-indust/lessonforge/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	assessmentColumns = `id, user_id, subject, grade_level, topic, generated_tos, generated_questions, created_at`
	lessonPlanColumns = `id, user_id, subject, grade_level, topic, duration_minutes, generated_content, created_at`
	resourceColumns   = `id, user_id, title, description, subject, grade_level, file_path, file_type, created_at`

	insertAssessmentQuery = `INSERT INTO assessments (` + assessmentColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	insertLessonPlanQuery = `INSERT INTO lesson_plans (` + lessonPlanColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	insertResourceQuery   = `INSERT INTO resources (` + resourceColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
)

// Postgres is a Store backed by a pgx connection pool.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

var _ Store = (*Postgres)(nil)

// OpenPostgres connects to cfg.DSN and verifies the connection.
func OpenPostgres(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("store: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return NewPostgres(pool, logger), nil
}

// NewPostgres wraps an existing pool. The store takes ownership of pool.
func NewPostgres(pool *pgxpool.Pool, logger *zap.Logger) *Postgres {
	return &Postgres{pool: pool, logger: logger.Named("PostgresStore")}
}

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

func (s *Postgres) InsertAssessment(ctx context.Context, a Assessment) (Assessment, error) {
	stamp(&a.ID, &a.CreatedAt)
	a.CreatedAt = a.CreatedAt.Truncate(time.Microsecond)
	if a.GeneratedQuestions == nil {
		a.GeneratedQuestions = json.RawMessage(`[]`)
	}
	_, err := s.pool.Exec(ctx, insertAssessmentQuery,
		a.ID, a.UserID, a.Subject, a.GradeLevel, a.Topic, a.GeneratedToS, a.GeneratedQuestions, a.CreatedAt)
	if err != nil {
		s.logger.Error("insert assessment", zap.String("user_id", a.UserID), zap.Error(err))
		return Assessment{}, fmt.Errorf("store: insert assessment: %w", err)
	}
	return a, nil
}

func (s *Postgres) GetAssessment(ctx context.Context, userID, id string) (Assessment, error) {
	var a Assessment
	err := getRecord(ctx, s.pool, &a, `SELECT `+assessmentColumns+` FROM assessments WHERE id = $1 AND user_id = $2`, id, userID)
	return a, err
}

func (s *Postgres) ListAssessments(ctx context.Context, userID string, opts ListOptions) (Page[Assessment], error) {
	return listRecords(ctx, s.pool, "assessments", assessmentColumns, func(a Assessment) string { return a.ID }, userID, opts)
}

func (s *Postgres) InsertLessonPlan(ctx context.Context, p LessonPlan) (LessonPlan, error) {
	stamp(&p.ID, &p.CreatedAt)
	p.CreatedAt = p.CreatedAt.Truncate(time.Microsecond)
	_, err := s.pool.Exec(ctx, insertLessonPlanQuery,
		p.ID, p.UserID, p.Subject, p.GradeLevel, p.Topic, p.DurationMinutes, p.GeneratedContent, p.CreatedAt)
	if err != nil {
		s.logger.Error("insert lesson plan", zap.String("user_id", p.UserID), zap.Error(err))
		return LessonPlan{}, fmt.Errorf("store: insert lesson plan: %w", err)
	}
	return p, nil
}

func (s *Postgres) GetLessonPlan(ctx context.Context, userID, id string) (LessonPlan, error) {
	var p LessonPlan
	err := getRecord(ctx, s.pool, &p, `SELECT `+lessonPlanColumns+` FROM lesson_plans WHERE id = $1 AND user_id = $2`, id, userID)
	return p, err
}

func (s *Postgres) ListLessonPlans(ctx context.Context, userID string, opts ListOptions) (Page[LessonPlan], error) {
	return listRecords(ctx, s.pool, "lesson_plans", lessonPlanColumns, func(p LessonPlan) string { return p.ID }, userID, opts)
}

func (s *Postgres) InsertResource(ctx context.Context, r Resource) (Resource, error) {
	stamp(&r.ID, &r.CreatedAt)
	r.CreatedAt = r.CreatedAt.Truncate(time.Microsecond)
	_, err := s.pool.Exec(ctx, insertResourceQuery,
		r.ID, r.UserID, r.Title, r.Description, r.Subject, r.GradeLevel, r.FilePath, r.FileType, r.CreatedAt)
	if err != nil {
		s.logger.Error("insert resource", zap.String("user_id", r.UserID), zap.Error(err))
		return Resource{}, fmt.Errorf("store: insert resource: %w", err)
	}
	return r, nil
}

func (s *Postgres) GetResource(ctx context.Context, userID, id string) (Resource, error) {
	var r Resource
	err := getRecord(ctx, s.pool, &r, `SELECT `+resourceColumns+` FROM resources WHERE id = $1 AND user_id = $2`, id, userID)
	return r, err
}

func (s *Postgres) ListResources(ctx context.Context, userID string, opts ListOptions) (Page[Resource], error) {
	return listRecords(ctx, s.pool, "resources", resourceColumns, func(r Resource) string { return r.ID }, userID, opts)
}

func getRecord(ctx context.Context, db pgxscan.Querier, dst any, query string, id, userID string) error {
	if err := pgxscan.Get(ctx, db, dst, query, id, userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %q", ErrNotFound, id)
		}
		return fmt.Errorf("store: get %q: %w", id, err)
	}
	return nil
}

// listRecords runs a keyset-paginated newest-first listing. table and
// columns are fixed internal constants, not user input.
func listRecords[T any](ctx context.Context, db pgxscan.Querier, table, columns string, idOf func(T) string, userID string, opts ListOptions) (Page[T], error) {
	limit := opts.limit()
	var (
		items []T
		err   error
	)
	if opts.PageToken == "" {
		err = pgxscan.Select(ctx, db, &items,
			`SELECT `+columns+` FROM `+table+` WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`,
			userID, limit+1)
	} else {
		var cursor struct {
			CreatedAt time.Time `db:"created_at"`
		}
		if err := pgxscan.Get(ctx, db, &cursor,
			`SELECT created_at FROM `+table+` WHERE id = $1 AND user_id = $2`, opts.PageToken, userID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return Page[T]{}, fmt.Errorf("%w: %q", ErrInvalidPageToken, opts.PageToken)
			}
			return Page[T]{}, fmt.Errorf("store: list %s: %w", table, err)
		}
		err = pgxscan.Select(ctx, db, &items,
			`SELECT `+columns+` FROM `+table+`
			WHERE user_id = $1 AND (created_at, id) < ($2, $3)
			ORDER BY created_at DESC, id DESC LIMIT $4`,
			userID, cursor.CreatedAt, opts.PageToken, limit+1)
	}
	if err != nil {
		return Page[T]{}, fmt.Errorf("store: list %s: %w", table, err)
	}

	page := Page[T]{Items: items}
	if len(items) > limit {
		page.Items = items[:limit]
		page.NextPageToken = idOf(items[limit-1])
	}
	if page.Items == nil {
		page.Items = []T{}
	}
	return page, nil
}

// MigrateDirection selects which way Migrate moves the schema.
type MigrateDirection string

const (
	MigrateUp   MigrateDirection = "up"
	MigrateDown MigrateDirection = "down"
)

// Migrate applies (or rolls back) the embedded SQL migrations against the
// database at dsn. No pending change is not an error.
func Migrate(ctx context.Context, dsn string, dir MigrateDirection, logger *zap.Logger) error {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("store: migrate connect: %w", err)
	}
	defer pool.Close()

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: "schema_migrations"})
	if err != nil {
		return fmt.Errorf("store: migrate driver: %w", err)
	}
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("store: migrate source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("store: migrate init: %w", err)
	}
	defer m.Close()
	m.LockTimeout = 30 * time.Second

	switch dir {
	case MigrateUp:
		err = m.Up()
	case MigrateDown:
		err = m.Down()
	default:
		return fmt.Errorf("store: unknown migrate direction %q", dir)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("store: migrate %s: %w", dir, err)
	}

	logger.Info("database migrations applied", zap.String("direction", string(dir)))
	return nil
}
