package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/gasportal/internal/api"
	"github.com/dukerupert/gasportal/internal/auth"
	"github.com/dukerupert/gasportal/internal/flash"
	"github.com/dukerupert/gasportal/internal/form"
	"github.com/dukerupert/gasportal/internal/metrics"
	"github.com/dukerupert/gasportal/internal/model"
	"github.com/dukerupert/gasportal/internal/session"
)

const (
	msgLoginSuccess = "Successfully logged in!"
	msgLoginFailed  = "Login failed. Please try again."
)

// Authenticator is the auth endpoint group of the API client.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (api.LoginResult, error)
	Logout(ctx context.Context) error
}

type AuthHandler struct {
	// authenticator is nil in mock mode.
	authenticator Authenticator
	renderer      *Renderer
	notices       *flash.Queue
	logger        *slog.Logger
}

func NewAuthHandler(authenticator Authenticator, renderer *Renderer, notices *flash.Queue, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		authenticator: authenticator,
		renderer:      renderer,
		notices:       notices,
		logger:        logger,
	}
}

func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	h.renderer.render(w, http.StatusOK, "login", newPage(r, h.notices, "Login | "+appTitle))
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	deviceID := auth.DeviceID(r.Context())
	draft := form.LoginFromRequest(r)

	err := h.login(r.Context(), draft)
	metrics.LoginsTotal.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		h.logger.Warn("login failed", "device", deviceID, "error", err)
		h.notices.Error(deviceID, msgLoginFailed)
		p := newPage(r, h.notices, "Login | "+appTitle)
		p.Email = draft.Email
		h.renderer.render(w, http.StatusOK, "login", p)
		return
	}

	h.logger.Info("logged in", "device", deviceID)
	h.notices.Success(deviceID, msgLoginSuccess)
	redirect(w, r, "/")
}

func (h *AuthHandler) login(ctx context.Context, draft form.LoginDraft) error {
	s, err := session.FromContext(ctx)
	if err != nil {
		return err
	}
	if err := draft.Validate(); err != nil {
		return err
	}

	var (
		token string
		user  model.User
	)
	if h.authenticator == nil {
		token, user = draft.MockSession()
	} else {
		res, err := h.authenticator.Login(ctx, draft.Email, draft.Password)
		if err != nil {
			return err
		}
		token, user = res.Token, res.User
	}
	return s.Login(token, user)
}

// Logout ends the device's session. In live mode the backend is told first;
// its failure does not keep the user signed in. A backend that no longer
// accepts the token sends the browser to the login page.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	deviceID := auth.DeviceID(r.Context())
	s, err := session.FromContext(r.Context())
	if err != nil {
		h.logger.Error("logout", "device", deviceID, "error", err)
		http.Error(w, "no session", http.StatusInternalServerError)
		return
	}

	next := "/"
	if h.authenticator != nil && s.IsAuthenticated() {
		err := h.authenticator.Logout(r.Context())
		switch {
		case errors.Is(err, api.ErrUnauthorized):
			next = "/login"
		case err != nil:
			h.logger.Warn("backend logout", "device", deviceID, "error", err)
		}
	}
	if err := s.Logout(); err != nil {
		h.logger.Error("clear session", "device", deviceID, "error", err)
	}
	redirect(w, r, next)
}
