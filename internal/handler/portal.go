package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/gasportal/internal/api"
	"github.com/dukerupert/gasportal/internal/auth"
	"github.com/dukerupert/gasportal/internal/catalog"
	"github.com/dukerupert/gasportal/internal/flash"
	"github.com/dukerupert/gasportal/internal/form"
	"github.com/dukerupert/gasportal/internal/middleware"
)

const msgCatalogFailed = "Failed to load services. Showing the standard catalog."

// PortalHandler renders the index page: catalog, request form and status.
type PortalHandler struct {
	catalog  *catalog.Loader
	drafts   *form.Drafts
	notices  *flash.Queue
	status   *StatusHandler
	renderer *Renderer
	logger   *slog.Logger
}

func NewPortalHandler(loader *catalog.Loader, drafts *form.Drafts, notices *flash.Queue, status *StatusHandler, renderer *Renderer, logger *slog.Logger) *PortalHandler {
	return &PortalHandler{
		catalog:  loader,
		drafts:   drafts,
		notices:  notices,
		status:   status,
		renderer: renderer,
		logger:   logger,
	}
}

func (h *PortalHandler) Index(w http.ResponseWriter, r *http.Request) {
	deviceID := auth.DeviceID(r.Context())

	services, err := h.catalog.Load(r.Context())
	if errors.Is(err, api.ErrUnauthorized) {
		middleware.RedirectToLogin(w, r)
		return
	}
	if err != nil {
		h.logger.Warn("load catalog", "device", deviceID, "error", err)
		h.notices.Error(deviceID, msgCatalogFailed)
	}

	draft := h.drafts.Get(deviceID)
	if raw := r.URL.Query().Get("service"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			if svc, ok := catalog.Find(services, id); ok {
				draft.RequestType = svc.Title
				h.drafts.Put(deviceID, draft)
			}
		}
	}

	p := newPage(r, h.notices, appTitle)
	p.Services = services
	p.Draft = draft
	p.Accept = form.Accept
	p.Status = h.status.initial(r)
	h.renderer.render(w, http.StatusOK, "index", p)
}
