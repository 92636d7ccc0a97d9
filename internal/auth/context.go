// Package auth carries the caller's device identity through request contexts
// and answers who is signed in on it.
package auth

import (
	"context"

	"github.com/dukerupert/gasportal/internal/model"
	"github.com/dukerupert/gasportal/internal/session"
)

type contextKey struct{}

type DeviceContext struct {
	DeviceID string
	// New is set when the device cookie was issued on this request.
	New bool
}

func WithDevice(ctx context.Context, dc DeviceContext) context.Context {
	return context.WithValue(ctx, contextKey{}, dc)
}

func FromContext(ctx context.Context) (DeviceContext, bool) {
	dc, ok := ctx.Value(contextKey{}).(DeviceContext)
	return dc, ok
}

func DeviceID(ctx context.Context) string {
	dc, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return dc.DeviceID
}

// IsAuthenticated reports whether the session in ctx is signed in.
func IsAuthenticated(ctx context.Context) bool {
	s, err := session.FromContext(ctx)
	if err != nil {
		return false
	}
	return s.IsAuthenticated()
}

// State returns one snapshot of the session in ctx. Callers reading both the
// user and the signed-in flag take them from the same snapshot.
func State(ctx context.Context) model.AuthState {
	s, err := session.FromContext(ctx)
	if err != nil {
		return model.AuthState{}
	}
	return s.State()
}
