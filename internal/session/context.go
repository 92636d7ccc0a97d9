package session

import (
	"context"
	"log/slog"
)

type contextKey struct{}

// WithSession returns a context carrying s. This is the provider scope.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the session from ctx, or ErrNoProvider.
func FromContext(ctx context.Context) (*Session, error) {
	s, ok := ctx.Value(contextKey{}).(*Session)
	if !ok || s == nil {
		return nil, ErrNoProvider
	}
	return s, nil
}

// MustFromContext is FromContext for code paths that only run under a provider.
func MustFromContext(ctx context.Context) *Session {
	s, err := FromContext(ctx)
	if err != nil {
		panic(err)
	}
	return s
}

// ContextCredentials supplies bearer tokens to the API client by reading the
// session in the request context, so the token has a single source of truth.
type ContextCredentials struct {
	Logger *slog.Logger
}

func (c ContextCredentials) Token(ctx context.Context) string {
	s, err := FromContext(ctx)
	if err != nil {
		return ""
	}
	return s.Token()
}

// Clear logs the session out after the backend rejected its credentials.
func (c ContextCredentials) Clear(ctx context.Context) {
	s, err := FromContext(ctx)
	if err != nil {
		return
	}
	if err := s.Logout(); err != nil && c.Logger != nil {
		c.Logger.Error("clear credentials", "error", err)
	}
}
