package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dusk-indust/lessonforge/internal/export"
	"github.com/dusk-indust/lessonforge/internal/sections"
	"github.com/dusk-indust/lessonforge/internal/store"
)

func listOptions(c *gin.Context) (store.ListOptions, error) {
	opts := store.ListOptions{PageToken: c.Query("pageToken")}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			return opts, fmt.Errorf("%w: limit must be between 1 and 100", errBadRequest)
		}
		opts.Limit = n
	}
	return opts, nil
}

func (s *Server) listAssessments(c *gin.Context) {
	opts, err := listOptions(c)
	if err != nil {
		s.respond(c, err)
		return
	}
	page, err := s.store.ListAssessments(c.Request.Context(), userID(c), opts)
	if err != nil {
		s.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) getAssessment(c *gin.Context) {
	a, err := s.store.GetAssessment(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		s.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) exportAssessment(c *gin.Context) {
	a, err := s.store.GetAssessment(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		s.respond(c, err)
		return
	}
	switch format := c.DefaultQuery("format", "md"); format {
	case "md", "markdown":
		out, err := export.AssessmentMarkdown(a)
		if err != nil {
			s.respond(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "assessment-"+a.ID+".md"))
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(out))
	case "json":
		out, err := export.AssessmentJSON(a)
		if err != nil {
			s.respond(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "assessment-"+a.ID+".json"))
		c.Data(http.StatusOK, "application/json", out)
	default:
		s.respond(c, fmt.Errorf("%w: unknown format %q", errBadRequest, format))
	}
}

func (s *Server) listLessonPlans(c *gin.Context) {
	opts, err := listOptions(c)
	if err != nil {
		s.respond(c, err)
		return
	}
	page, err := s.store.ListLessonPlans(c.Request.Context(), userID(c), opts)
	if err != nil {
		s.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

type lessonPlanResponse struct {
	store.LessonPlan
	Sections []sections.Section `json:"sections"`
	Details  map[string]string  `json:"details"`
}

func (s *Server) getLessonPlan(c *gin.Context) {
	p, err := s.store.GetLessonPlan(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		s.respond(c, err)
		return
	}
	exp := export.NewLessonPlanExport(p)
	c.JSON(http.StatusOK, lessonPlanResponse{LessonPlan: p, Sections: exp.Sections, Details: exp.Details})
}

func (s *Server) lessonPlanHTML(c *gin.Context) {
	p, err := s.store.GetLessonPlan(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		s.respond(c, err)
		return
	}
	page, err := export.LessonPlanHTML(p)
	if err != nil {
		s.respond(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(page))
}

type parseRequest struct {
	Document string `json:"document"`
}

type parseResponse struct {
	Sections []sections.Section `json:"sections"`
	Details  map[string]string  `json:"details"`
}

func (s *Server) parseSections(c *gin.Context) {
	var req parseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respond(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	secs := sections.ParseOrdered(req.Document)
	c.JSON(http.StatusOK, parseResponse{
		Sections: secs,
		Details:  sections.Details(secs[0].Body),
	})
}
