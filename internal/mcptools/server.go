package mcptools

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// version is set by the linker at build time.
var version = "dev"

// NewServer creates an MCP server with the lessonforge tools registered.
func NewServer(svc *Service) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "lessonforge",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "generate_assessment",
		Description: "Generate a Table of Specification for a topic, then questions that follow it. Waits for both phases and returns the ToS and the final questions.",
	}, svc.GenerateAssessment)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "generate_lesson_plan",
		Description: "Generate a standards-based lesson plan in markdown and store it in the caller's history.",
	}, svc.GenerateLessonPlan)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "parse_lesson_plan",
		Description: "Split a lesson plan document on ### headings. Returns the sections in order and the resolved detail fields.",
	}, svc.ParseLessonPlan)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_lesson_plans",
		Description: "List the caller's stored lesson plans, newest first, with pagination.",
	}, svc.ListLessonPlans)

	return server
}

// RunStdio serves server on stdin/stdout until stdin closes or ctx is
// cancelled.
func RunStdio(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP serves server over streamable HTTP on addr until ctx is
// cancelled.
func RunHTTP(ctx context.Context, server *mcp.Server, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
