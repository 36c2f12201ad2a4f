//go:build cgo

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	kuzu "github.com/kuzudb/go-kuzu"
)

// Kuzu is a Store backed by an embedded KuzuDB. Each record is a node
// linked from its author's User node. It requires CGO because the go-kuzu
// driver wraps KuzuDB's C library.
type Kuzu struct {
	mu   sync.Mutex
	db   *kuzu.Database
	conn *kuzu.Connection
}

// Compile-time check that Kuzu satisfies Store.
var _ Store = (*Kuzu)(nil)

// OpenKuzu opens a KuzuDB at path, or an in-memory database when path is
// empty or ":memory:", and creates the schema.
func OpenKuzu(path string) (*Kuzu, error) {
	if path == "" {
		path = ":memory:"
	}
	if path != ":memory:" {
		// KuzuDB creates the leaf directory itself.
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("kuzu: create parent directory: %w", err)
		}
	}
	db, err := kuzu.OpenDatabase(path, kuzu.DefaultSystemConfig())
	if err != nil {
		return nil, fmt.Errorf("kuzu: open database: %w", err)
	}
	conn, err := kuzu.OpenConnection(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("kuzu: open connection: %w", err)
	}
	s := &Kuzu{db: db, conn: conn}
	if err := s.initSchema(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the KuzuDB connection and database.
func (s *Kuzu) Close() error {
	if s.conn != nil {
		s.conn.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
	return nil
}

// ddlStatements must create node tables before relationship tables.
var ddlStatements = []string{
	`CREATE NODE TABLE IF NOT EXISTS User(id STRING, PRIMARY KEY(id))`,
	`CREATE NODE TABLE IF NOT EXISTS Assessment(
		id STRING,
		user_id STRING,
		subject STRING,
		grade_level STRING,
		topic STRING,
		generated_tos STRING,
		generated_questions STRING,
		created_at INT64,
		PRIMARY KEY(id)
	)`,
	`CREATE NODE TABLE IF NOT EXISTS LessonPlan(
		id STRING,
		user_id STRING,
		subject STRING,
		grade_level STRING,
		topic STRING,
		duration_minutes INT64,
		generated_content STRING,
		created_at INT64,
		PRIMARY KEY(id)
	)`,
	`CREATE NODE TABLE IF NOT EXISTS Resource(
		id STRING,
		user_id STRING,
		title STRING,
		description STRING,
		subject STRING,
		grade_level STRING,
		file_path STRING,
		file_type STRING,
		created_at INT64,
		PRIMARY KEY(id)
	)`,
	`CREATE REL TABLE IF NOT EXISTS GENERATED_ASSESSMENT(FROM User TO Assessment)`,
	`CREATE REL TABLE IF NOT EXISTS GENERATED_PLAN(FROM User TO LessonPlan)`,
	`CREATE REL TABLE IF NOT EXISTS UPLOADED(FROM User TO Resource)`,
}

func (s *Kuzu) initSchema() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, stmt := range ddlStatements {
		res, err := s.conn.Query(stmt)
		if err != nil {
			return fmt.Errorf("kuzu: init schema: %w", err)
		}
		res.Close()
	}
	return nil
}

// ---------- Assessments ----------

const assessmentReturn = `RETURN a.id, a.user_id, a.subject, a.grade_level, a.topic, a.generated_tos, a.generated_questions, a.created_at`

func (s *Kuzu) InsertAssessment(_ context.Context, a Assessment) (Assessment, error) {
	stamp(&a.ID, &a.CreatedAt)
	if a.GeneratedQuestions == nil {
		a.GeneratedQuestions = json.RawMessage(`[]`)
	}
	err := s.insert(a.UserID, "GENERATED_ASSESSMENT", "Assessment", a.ID,
		`CREATE (:Assessment {
			id: $id, user_id: $uid, subject: $subject, grade_level: $grade, topic: $topic,
			generated_tos: $tos, generated_questions: $questions, created_at: $created
		})`,
		map[string]any{
			"id":        a.ID,
			"uid":       a.UserID,
			"subject":   a.Subject,
			"grade":     a.GradeLevel,
			"topic":     a.Topic,
			"tos":       a.GeneratedToS,
			"questions": string(a.GeneratedQuestions),
			"created":   a.CreatedAt.UnixNano(),
		})
	if err != nil {
		return Assessment{}, err
	}
	return a, nil
}

func (s *Kuzu) GetAssessment(_ context.Context, userID, id string) (Assessment, error) {
	rows, err := s.query(`MATCH (a:Assessment) WHERE a.id = $id AND a.user_id = $uid `+assessmentReturn,
		map[string]any{"id": id, "uid": userID})
	if err != nil {
		return Assessment{}, err
	}
	if len(rows) == 0 {
		return Assessment{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return rowToAssessment(rows[0]), nil
}

func (s *Kuzu) ListAssessments(_ context.Context, userID string, opts ListOptions) (Page[Assessment], error) {
	rows, err := s.query(`MATCH (:User {id: $uid})-[:GENERATED_ASSESSMENT]->(a:Assessment) `+assessmentReturn+` ORDER BY a.created_at DESC, a.id DESC`,
		map[string]any{"uid": userID})
	if err != nil {
		return Page[Assessment]{}, err
	}
	items := make([]Assessment, 0, len(rows))
	for _, r := range rows {
		items = append(items, rowToAssessment(r))
	}
	return paginate(items, func(a Assessment) string { return a.ID }, opts)
}

// ---------- Lesson plans ----------

const lessonPlanReturn = `RETURN p.id, p.user_id, p.subject, p.grade_level, p.topic, p.duration_minutes, p.generated_content, p.created_at`

func (s *Kuzu) InsertLessonPlan(_ context.Context, p LessonPlan) (LessonPlan, error) {
	stamp(&p.ID, &p.CreatedAt)
	err := s.insert(p.UserID, "GENERATED_PLAN", "LessonPlan", p.ID,
		`CREATE (:LessonPlan {
			id: $id, user_id: $uid, subject: $subject, grade_level: $grade, topic: $topic,
			duration_minutes: $duration, generated_content: $content, created_at: $created
		})`,
		map[string]any{
			"id":       p.ID,
			"uid":      p.UserID,
			"subject":  p.Subject,
			"grade":    p.GradeLevel,
			"topic":    p.Topic,
			"duration": int64(p.DurationMinutes),
			"content":  p.GeneratedContent,
			"created":  p.CreatedAt.UnixNano(),
		})
	if err != nil {
		return LessonPlan{}, err
	}
	return p, nil
}

func (s *Kuzu) GetLessonPlan(_ context.Context, userID, id string) (LessonPlan, error) {
	rows, err := s.query(`MATCH (p:LessonPlan) WHERE p.id = $id AND p.user_id = $uid `+lessonPlanReturn,
		map[string]any{"id": id, "uid": userID})
	if err != nil {
		return LessonPlan{}, err
	}
	if len(rows) == 0 {
		return LessonPlan{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return rowToLessonPlan(rows[0]), nil
}

func (s *Kuzu) ListLessonPlans(_ context.Context, userID string, opts ListOptions) (Page[LessonPlan], error) {
	rows, err := s.query(`MATCH (:User {id: $uid})-[:GENERATED_PLAN]->(p:LessonPlan) `+lessonPlanReturn+` ORDER BY p.created_at DESC, p.id DESC`,
		map[string]any{"uid": userID})
	if err != nil {
		return Page[LessonPlan]{}, err
	}
	items := make([]LessonPlan, 0, len(rows))
	for _, r := range rows {
		items = append(items, rowToLessonPlan(r))
	}
	return paginate(items, func(p LessonPlan) string { return p.ID }, opts)
}

// ---------- Resources ----------

const resourceReturn = `RETURN r.id, r.user_id, r.title, r.description, r.subject, r.grade_level, r.file_path, r.file_type, r.created_at`

func (s *Kuzu) InsertResource(_ context.Context, r Resource) (Resource, error) {
	stamp(&r.ID, &r.CreatedAt)
	err := s.insert(r.UserID, "UPLOADED", "Resource", r.ID,
		`CREATE (:Resource {
			id: $id, user_id: $uid, title: $title, description: $desc, subject: $subject,
			grade_level: $grade, file_path: $path, file_type: $ftype, created_at: $created
		})`,
		map[string]any{
			"id":      r.ID,
			"uid":     r.UserID,
			"title":   r.Title,
			"desc":    r.Description,
			"subject": r.Subject,
			"grade":   r.GradeLevel,
			"path":    r.FilePath,
			"ftype":   r.FileType,
			"created": r.CreatedAt.UnixNano(),
		})
	if err != nil {
		return Resource{}, err
	}
	return r, nil
}

func (s *Kuzu) GetResource(_ context.Context, userID, id string) (Resource, error) {
	rows, err := s.query(`MATCH (r:Resource) WHERE r.id = $id AND r.user_id = $uid `+resourceReturn,
		map[string]any{"id": id, "uid": userID})
	if err != nil {
		return Resource{}, err
	}
	if len(rows) == 0 {
		return Resource{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return rowToResource(rows[0]), nil
}

func (s *Kuzu) ListResources(_ context.Context, userID string, opts ListOptions) (Page[Resource], error) {
	rows, err := s.query(`MATCH (:User {id: $uid})-[:UPLOADED]->(r:Resource) `+resourceReturn+` ORDER BY r.created_at DESC, r.id DESC`,
		map[string]any{"uid": userID})
	if err != nil {
		return Page[Resource]{}, err
	}
	items := make([]Resource, 0, len(rows))
	for _, r := range rows {
		items = append(items, rowToResource(r))
	}
	return paginate(items, func(r Resource) string { return r.ID }, opts)
}

// ---------- Helpers ----------

// insert creates the record node, merges its author and links the two.
// rel and label are fixed internal constants, not user input.
func (s *Kuzu) insert(userID, rel, label, id, create string, params map[string]any) error {
	if err := s.exec(`MERGE (:User {id: $uid})`, map[string]any{"uid": userID}); err != nil {
		return err
	}
	if err := s.exec(create, params); err != nil {
		return err
	}
	return s.exec(
		fmt.Sprintf(`MATCH (u:User {id: $uid}), (n:%s {id: $id}) CREATE (u)-[:%s]->(n)`, label, rel),
		map[string]any{"uid": userID, "id": id},
	)
}

// exec runs a parameterized Cypher statement that returns no rows.
func (s *Kuzu) exec(cypher string, params map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stmt, err := s.conn.Prepare(cypher)
	if err != nil {
		return fmt.Errorf("kuzu: prepare: %w", err)
	}
	defer stmt.Close()

	res, err := s.conn.Execute(stmt, params)
	if err != nil {
		return fmt.Errorf("kuzu: execute: %w", err)
	}
	res.Close()
	return nil
}

// query runs a parameterized Cypher statement and collects all result rows.
// Each row is a []any slice with values in column order.
func (s *Kuzu) query(cypher string, params map[string]any) ([][]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stmt, err := s.conn.Prepare(cypher)
	if err != nil {
		return nil, fmt.Errorf("kuzu: prepare: %w", err)
	}
	defer stmt.Close()

	res, err := s.conn.Execute(stmt, params)
	if err != nil {
		return nil, fmt.Errorf("kuzu: query: %w", err)
	}
	defer res.Close()

	var rows [][]any
	for res.HasNext() {
		tuple, err := res.Next()
		if err != nil {
			return nil, fmt.Errorf("kuzu: next: %w", err)
		}
		vals, err := tuple.GetAsSlice()
		if err != nil {
			return nil, fmt.Errorf("kuzu: row values: %w", err)
		}
		rows = append(rows, vals)
	}
	return rows, nil
}

func rowToAssessment(r []any) Assessment {
	return Assessment{
		ID:                 toString(r[0]),
		UserID:             toString(r[1]),
		Subject:            toString(r[2]),
		GradeLevel:         toString(r[3]),
		Topic:              toString(r[4]),
		GeneratedToS:       toString(r[5]),
		GeneratedQuestions: json.RawMessage(toString(r[6])),
		CreatedAt:          fromNanos(r[7]),
	}
}

func rowToLessonPlan(r []any) LessonPlan {
	return LessonPlan{
		ID:               toString(r[0]),
		UserID:           toString(r[1]),
		Subject:          toString(r[2]),
		GradeLevel:       toString(r[3]),
		Topic:            toString(r[4]),
		DurationMinutes:  int(toInt64(r[5])),
		GeneratedContent: toString(r[6]),
		CreatedAt:        fromNanos(r[7]),
	}
}

func rowToResource(r []any) Resource {
	return Resource{
		ID:          toString(r[0]),
		UserID:      toString(r[1]),
		Title:       toString(r[2]),
		Description: toString(r[3]),
		Subject:     toString(r[4]),
		GradeLevel:  toString(r[5]),
		FilePath:    toString(r[6]),
		FileType:    toString(r[7]),
		CreatedAt:   fromNanos(r[8]),
	}
}

// ---------- Type coercion helpers ----------
// KuzuDB returns typed Go values (int64, float64, bool, string).

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func fromNanos(v any) time.Time {
	return time.Unix(0, toInt64(v)).UTC()
}
