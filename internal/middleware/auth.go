package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/gasportal/internal/auth"
	"github.com/dukerupert/gasportal/internal/session"
)

// ProvideSession resolves the device's session and places it in the request
// context. It must run after Device. A device whose persisted token the backend
// just rejected is sent to the login page.
func ProvideSession(manager *session.Manager, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			deviceID := auth.DeviceID(r.Context())
			if deviceID == "" {
				http.Error(w, "missing device", http.StatusBadRequest)
				return
			}
			s, err := manager.Get(r.Context(), deviceID)
			if errors.Is(err, session.ErrRevoked) {
				logger.Info("persisted token revoked", "device", deviceID)
				if r.URL.Path != "/login" {
					RedirectToLogin(w, r)
					return
				}
				err = nil
			}
			if err != nil {
				logger.Error("load session", "device", deviceID, "error", err)
				http.Error(w, "failed to load session", http.StatusInternalServerError)
				return
			}
			next.ServeHTTP(w, r.WithContext(session.WithSession(r.Context(), s)))
		})
	}
}

// RequireAuth sends signed-out callers to the login page.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsAuthenticated(r.Context()) {
			RedirectToLogin(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RedirectToLogin performs a hard navigation to /login.
// HTMX-aware: sets HX-Redirect instead of answering 303 for HTMX requests.
func RedirectToLogin(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", "/login")
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
