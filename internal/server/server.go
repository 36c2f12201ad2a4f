// Package server exposes generation runs, history and resources over HTTP.
// Run output is delivered as Server-Sent Events.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dusk-indust/lessonforge/internal/auth"
	"github.com/dusk-indust/lessonforge/internal/orchestrator"
	"github.com/dusk-indust/lessonforge/internal/resources"
	"github.com/dusk-indust/lessonforge/internal/store"
)

// DefaultRunTTL is how long a finished run stays reachable.
const DefaultRunTTL = 10 * time.Minute

// Options wires the server to its collaborators.
type Options struct {
	Assessments    *orchestrator.Orchestrator
	LessonPlans    *orchestrator.LessonPlanner
	Store          store.Store
	Resources      *resources.Hub
	Verifier       *auth.Verifier
	AllowedOrigins []string
	RunTTL         time.Duration
	Logger         *zap.Logger
}

type Server struct {
	assessments *orchestrator.Orchestrator
	lessonPlans *orchestrator.LessonPlanner
	store       store.Store
	resources   *resources.Hub
	runs        *registry
	logger      *zap.Logger
	engine      *gin.Engine
}

func New(opts Options) *Server {
	ttl := opts.RunTTL
	if ttl <= 0 {
		ttl = DefaultRunTTL
	}
	s := &Server{
		assessments: opts.Assessments,
		lessonPlans: opts.LessonPlans,
		store:       opts.Store,
		resources:   opts.Resources,
		runs:        newRegistry(ttl),
		logger:      opts.Logger.Named("http"),
	}
	s.engine = s.routes(opts)
	return s
}

// Handler returns the gin engine.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes(opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog(), metricsMiddleware(), cors.New(corsConfig(opts.AllowedOrigins)))

	health := func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) }
	r.GET("/healthz", health)
	r.HEAD("/healthz", health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api", auth.Middleware(opts.Verifier, s.logger))

	api.POST("/assessments", s.startAssessment)
	api.GET("/assessments", s.listAssessments)
	api.GET("/assessments/:id", s.getAssessment)
	api.GET("/assessments/:id/export", s.exportAssessment)

	api.POST("/lesson-plans", s.startLessonPlan)
	api.GET("/lesson-plans", s.listLessonPlans)
	api.GET("/lesson-plans/:id", s.getLessonPlan)
	api.GET("/lesson-plans/:id/html", s.lessonPlanHTML)

	api.GET("/runs/:id/streams/:name", s.streamOne)
	api.GET("/runs/:id/events", s.streamAll)

	api.POST("/sections/parse", s.parseSections)

	api.POST("/resources", s.uploadResource)
	api.GET("/resources", s.listResources)
	api.GET("/resources/:id/download", s.downloadResource)
	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowMethods = []string{"GET", "POST", "HEAD", "OPTIONS"}
	cfg.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	cfg.MaxAge = 12 * time.Hour
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// Serve listens on addr until ctx is done, then shuts down gracefully and
// waits for in-flight runs to finish.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go s.runs.janitor(janitorCtx, time.Minute)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: listen: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Wait()
	if err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// Wait blocks until every run started through the server has finished.
func (s *Server) Wait() {
	if s.assessments != nil {
		s.assessments.Wait()
	}
	if s.lessonPlans != nil {
		s.lessonPlans.Wait()
	}
}

func userID(c *gin.Context) string { return c.GetString(auth.GinUserKey) }
