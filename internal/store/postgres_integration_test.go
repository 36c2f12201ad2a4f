//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

type PostgresSuite struct {
	suite.Suite
	container *postgres.PostgresContainer
	dsn       string
	logger    *zap.Logger
}

func (s *PostgresSuite) SetupSuite() {
	ctx := context.Background()
	logger, err := zap.NewDevelopment()
	s.Require().NoError(err)
	s.logger = logger

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("lessonforge"),
		postgres.WithUsername("lessonforge"),
		postgres.WithPassword("lessonforge"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	s.Require().NoError(err)
	s.container = ctr

	s.dsn, err = ctr.ConnectionString(ctx, "sslmode=disable")
	s.Require().NoError(err)
	s.Require().NoError(Migrate(ctx, s.dsn, MigrateUp, logger))
	// A second run has nothing to apply.
	s.Require().NoError(Migrate(ctx, s.dsn, MigrateUp, logger))
}

func (s *PostgresSuite) TearDownSuite() {
	if s.container != nil {
		s.NoError(testcontainers.TerminateContainer(s.container))
	}
}

func (s *PostgresSuite) newStore(t *testing.T) Store {
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, s.dsn)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `TRUNCATE assessments, lesson_plans, resources`)
	require.NoError(t, err)
	st := NewPostgres(pool, s.logger)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func (s *PostgresSuite) TestContract() {
	testStoreContract(s.T(), s.newStore)
}

func TestPostgresSuite(t *testing.T) {
	suite.Run(t, new(PostgresSuite))
}
