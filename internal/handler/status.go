package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/dukerupert/gasportal/internal/api"
	"github.com/dukerupert/gasportal/internal/middleware"
	"github.com/dukerupert/gasportal/internal/model"
	"github.com/dukerupert/gasportal/internal/status"
)

const msgStatusFailed = "Failed to load request status. Please try again."

// StatusFetcher looks up a single service request.
type StatusFetcher interface {
	Status(ctx context.Context, id string) (model.ServiceRequest, error)
}

// statusView drives the "status" template. Exactly one of Loading,
// NotFoundID, Error and Request is set; none set renders the lookup form.
type statusView struct {
	RequestID  string
	StatusURL  string
	Loading    bool
	NotFoundID string
	Error      string

	Request             *model.ServiceRequest
	Class               string
	LastUpdated         string
	LastUpdatedAgo      string
	EstimatedCompletion string
}

func requestView(req model.ServiceRequest, locale language.Tag, now time.Time) statusView {
	v := statusView{
		RequestID:           req.ID,
		Request:             &req,
		Class:               status.ColorFor(req.Status).Class(),
		LastUpdated:         "Not available",
		EstimatedCompletion: "Not available",
	}
	if req.LastUpdated != nil {
		v.LastUpdated = status.FormatDate(*req.LastUpdated, locale)
		v.LastUpdatedAgo = status.Relative(*req.LastUpdated, now)
	}
	if req.EstimatedCompletion != nil {
		v.EstimatedCompletion = status.FormatDate(*req.EstimatedCompletion, locale)
	}
	return v
}

type StatusHandler struct {
	// fetcher is nil in mock mode, where only the example request exists.
	fetcher  StatusFetcher
	renderer *Renderer
	logger   *slog.Logger
	now      func() time.Time
}

func NewStatusHandler(fetcher StatusFetcher, renderer *Renderer, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		fetcher:  fetcher,
		renderer: renderer,
		logger:   logger,
		now:      time.Now,
	}
}

// initial returns the status section rendered inside the index page.
func (h *StatusHandler) initial(r *http.Request) statusView {
	id := strings.TrimSpace(r.URL.Query().Get("request"))
	if h.fetcher == nil {
		if id == "" || id == status.ExampleID {
			return requestView(status.Example(), status.Locale(r.Header.Get("Accept-Language")), h.now())
		}
		return statusView{RequestID: id, NotFoundID: id}
	}
	if id == "" {
		return statusView{}
	}
	return statusView{RequestID: id, StatusURL: statusURL(id), Loading: true}
}

// statusURL is the partial's route for id, escaped as a single path segment.
func statusURL(id string) string {
	return "/requests/" + url.PathEscape(id) + "/status"
}

// Partial serves GET /requests/{id}/status for the lazy-loaded status section.
func (h *StatusHandler) Partial(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	locale := status.Locale(r.Header.Get("Accept-Language"))

	if h.fetcher == nil {
		v := statusView{RequestID: id, NotFoundID: id}
		if id == status.ExampleID {
			v = requestView(status.Example(), locale, h.now())
		}
		h.renderer.renderPartial(w, "status", v)
		return
	}

	req, err := h.fetcher.Status(r.Context(), id)
	switch {
	case errors.Is(err, api.ErrUnauthorized):
		middleware.RedirectToLogin(w, r)
		return
	case errors.Is(err, api.ErrNotFound):
		h.renderer.renderPartial(w, "status", statusView{RequestID: id, NotFoundID: id})
		return
	case err != nil:
		h.logger.Error("fetch request status", "request", id, "error", err)
		h.renderer.renderPartial(w, "status", statusView{RequestID: id, Error: msgStatusFailed})
		return
	}
	h.renderer.renderPartial(w, "status", requestView(req, locale, h.now()))
}
