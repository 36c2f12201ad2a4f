package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dusk-indust/lessonforge/internal/resources"
)

// uploadResource accepts a multipart form with a "file" part and the
// metadata fields title, description, subject and gradeLevel.
func (s *Server) uploadResource(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		s.respond(c, fmt.Errorf("%w: file: %v", errBadRequest, err))
		return
	}
	f, err := fh.Open()
	if err != nil {
		s.respond(c, fmt.Errorf("%w: file: %v", errBadRequest, err))
		return
	}
	defer f.Close()

	meta := resources.Upload{
		Title:       c.PostForm("title"),
		Description: c.PostForm("description"),
		Subject:     c.PostForm("subject"),
		GradeLevel:  c.PostForm("gradeLevel"),
		FileName:    fh.Filename,
		FileType:    fh.Header.Get("Content-Type"),
	}
	res, err := s.resources.Upload(c.Request.Context(), userID(c), meta, f)
	if err != nil {
		s.respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (s *Server) listResources(c *gin.Context) {
	opts, err := listOptions(c)
	if err != nil {
		s.respond(c, err)
		return
	}
	page, err := s.resources.List(c.Request.Context(), userID(c), opts)
	if err != nil {
		s.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) downloadResource(c *gin.Context) {
	res, err := s.resources.Get(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		s.respond(c, err)
		return
	}
	data, err := s.resources.Open(c.Request.Context(), res)
	if err != nil {
		s.respond(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", resources.FileName(res)))
	c.Data(http.StatusOK, res.FileType, data)
}
