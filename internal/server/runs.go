package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/lessonforge/internal/orchestrator"
	"github.com/dusk-indust/lessonforge/internal/stream"
)

type startResponse struct {
	RunID   string            `json:"runId"`
	Streams map[string]string `json:"streams"`
	Events  string            `json:"events"`
}

func newStartResponse(e *runEntry) startResponse {
	return startResponse{
		RunID:   e.id,
		Streams: e.streamNames(),
		Events:  "/api/runs/" + e.id + "/events",
	}
}

func (s *Server) startAssessment(c *gin.Context) {
	var req orchestrator.AssessmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respond(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	run, err := s.assessments.Run(c.Request.Context(), req)
	if err != nil {
		s.respond(c, err)
		return
	}
	e := s.runs.addAssessment(run)
	c.JSON(http.StatusAccepted, newStartResponse(e))
}

func (s *Server) startLessonPlan(c *gin.Context) {
	var req orchestrator.LessonPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respond(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	run, err := s.lessonPlans.Run(c.Request.Context(), req)
	if err != nil {
		s.respond(c, err)
		return
	}
	e := s.runs.addLessonPlan(run)
	c.JSON(http.StatusAccepted, newStartResponse(e))
}

// streamOne serves a single stream of a run. Each stream accepts one
// consumer.
func (s *Server) streamOne(c *gin.Context) {
	e, ok := s.runs.get(c.Param("id"), userID(c))
	if !ok {
		s.respond(c, errRunNotFound)
		return
	}
	src, ok := e.source(c.Param("name"))
	if !ok {
		s.respond(c, errStreamNotFound)
		return
	}
	if !src.Claim() {
		s.respond(c, errStreamClaimed)
		return
	}

	sw := stream.NewSSEWriter(c.Writer)
	sw.Init()
	ctx := c.Request.Context()
	for {
		msg, err := src.next(ctx)
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			s.logger.Debug("stream consumer left", zap.String("run_id", e.id), zap.String("stream", src.Name()), zap.Error(err))
			return
		}
		if err := sw.WriteMessage(msg); err != nil {
			s.logger.Debug("stream write failed", zap.String("run_id", e.id), zap.Error(err))
			return
		}
	}
}

// streamAll multiplexes every stream of a run into one SSE response. Each
// message carries its stream name. It claims all streams of the run.
func (s *Server) streamAll(c *gin.Context) {
	e, ok := s.runs.get(c.Param("id"), userID(c))
	if !ok {
		s.respond(c, errRunNotFound)
		return
	}
	for _, src := range e.sources {
		if !src.Claim() {
			s.respond(c, fmt.Errorf("%w: %s", errStreamClaimed, src.Name()))
			return
		}
	}

	sw := stream.NewSSEWriter(c.Writer)
	sw.Init()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	msgs := make(chan stream.Message)
	for _, src := range e.sources {
		g.Go(func() error { return pump(gctx, src, msgs) })
	}
	go func() {
		_ = g.Wait()
		close(msgs)
	}()

	// Writes stay on this goroutine.
	for msg := range msgs {
		if err := sw.WriteMessage(msg); err != nil {
			s.logger.Debug("events write failed", zap.String("run_id", e.id), zap.Error(err))
			cancel()
			break
		}
	}
	for range msgs {
	}
}

func pump(ctx context.Context, src source, out chan<- stream.Message) error {
	for {
		msg, err := src.next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		select {
		case out <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
