package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// GinUserKey is the gin context key holding the user ID.
const GinUserKey = "user_id"

var tokenVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lessonforge",
	Subsystem: "auth",
	Name:      "token_verifications_total",
	Help:      "Bearer token verifications by outcome.",
}, []string{"status"})

// QueryTokenParam carries the token for clients that cannot set headers,
// such as a browser EventSource.
const QueryTokenParam = "access_token"

// Middleware requires a valid bearer token. The subject claim becomes the
// principal of the request context.
func Middleware(v *Verifier, logger *zap.Logger) gin.HandlerFunc {
	log := logger.Named("auth")
	return func(c *gin.Context) {
		token, ok := bearer(c)
		if !ok {
			tokenVerificationsTotal.WithLabelValues("missing").Inc()
			abort(c, ErrAuthenticationRequired)
			return
		}

		claims, err := v.Verify(c.Request.Context(), token)
		if err != nil {
			log.Debug("bearer token rejected", zap.Error(err))
			tokenVerificationsTotal.WithLabelValues("failure").Inc()
			abort(c, err)
			return
		}

		tokenVerificationsTotal.WithLabelValues("success").Inc()
		c.Set(GinUserKey, claims.Subject)
		c.Request = c.Request.WithContext(WithUser(c.Request.Context(), claims.Subject))
		c.Next()
	}
}

func bearer(c *gin.Context) (string, bool) {
	if header := c.GetHeader("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		token = strings.TrimSpace(token)
		return token, ok && strings.EqualFold(scheme, "bearer") && token != ""
	}
	token := c.Query(QueryTokenParam)
	return token, token != ""
}

func abort(c *gin.Context, err error) {
	msg := ErrAuthenticationRequired.Error()
	switch {
	case errors.Is(err, ErrTokenExpired):
		msg = ErrTokenExpired.Error()
	case errors.Is(err, ErrTokenInvalid):
		msg = ErrTokenInvalid.Error()
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
}
