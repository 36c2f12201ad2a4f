// Package auth resolves the authenticated principal of a request. Tokens are
// HS256 JWTs; the subject claim is the user ID.
package auth

import (
	"context"
	"errors"
)

var (
	// ErrAuthenticationRequired is returned when no principal is present.
	ErrAuthenticationRequired = errors.New("authentication required")

	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenExpired = errors.New("token expired")
)

type principalKey struct{}

// WithUser returns a context carrying userID as the authenticated principal.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, principalKey{}, userID)
}

// UserFrom returns the principal stored by WithUser.
func UserFrom(ctx context.Context) (string, bool) {
	u, ok := ctx.Value(principalKey{}).(string)
	return u, ok && u != ""
}

// Authenticator resolves the current user of a call.
type Authenticator interface {
	CurrentUser(ctx context.Context) (string, error)
}

// ContextAuthenticator reads the principal placed in the context by the HTTP
// middleware or by WithUser.
type ContextAuthenticator struct{}

var _ Authenticator = ContextAuthenticator{}

func (ContextAuthenticator) CurrentUser(ctx context.Context) (string, error) {
	if u, ok := UserFrom(ctx); ok {
		return u, nil
	}
	return "", ErrAuthenticationRequired
}

// Static authenticates every call as UserID. The CLI and the stdio MCP
// server use it for the local operator.
type Static struct {
	UserID string
}

var _ Authenticator = Static{}

func (s Static) CurrentUser(context.Context) (string, error) {
	if s.UserID == "" {
		return "", ErrAuthenticationRequired
	}
	return s.UserID, nil
}
