package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dusk-indust/lessonforge/internal/auth"
	"github.com/dusk-indust/lessonforge/internal/resources"
	"github.com/dusk-indust/lessonforge/internal/store"
	"github.com/dusk-indust/lessonforge/internal/validate"
)

var (
	errRunNotFound    = errors.New("run not found")
	errStreamNotFound = errors.New("stream not found")
	errStreamClaimed  = errors.New("stream already has a consumer")
	errBadRequest     = errors.New("bad request")
)

type errorBody struct {
	Error  string                `json:"error"`
	Fields []validate.FieldError `json:"fields,omitempty"`
}

// respond maps err to a status code and writes a JSON error body.
// Unexpected errors are logged and reported as 500 without detail.
func (s *Server) respond(c *gin.Context, err error) {
	var verr *validate.Error
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, errorBody{Error: validate.ErrInvalid.Error(), Fields: verr.Fields})
	case errors.Is(err, errBadRequest), errors.Is(err, store.ErrInvalidPageToken):
		c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.Is(err, auth.ErrAuthenticationRequired):
		c.JSON(http.StatusUnauthorized, errorBody{Error: err.Error()})
	case errors.Is(err, store.ErrNotFound), errors.Is(err, errRunNotFound), errors.Is(err, errStreamNotFound):
		c.JSON(http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, errStreamClaimed):
		c.JSON(http.StatusConflict, errorBody{Error: err.Error()})
	case errors.Is(err, resources.ErrTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, errorBody{Error: err.Error()})
	default:
		s.logger.Error("request failed",
			zap.String("route", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}
