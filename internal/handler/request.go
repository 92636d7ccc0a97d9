package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/dukerupert/gasportal/internal/api"
	"github.com/dukerupert/gasportal/internal/auth"
	"github.com/dukerupert/gasportal/internal/flash"
	"github.com/dukerupert/gasportal/internal/form"
	"github.com/dukerupert/gasportal/internal/metrics"
	"github.com/dukerupert/gasportal/internal/middleware"
	"github.com/dukerupert/gasportal/internal/model"
)

const (
	msgSubmitSuccess = "Service request submitted successfully!"
	msgSubmitFailed  = "Failed to submit service request. Please try again."

	// multipartMemory is how much of an upload is buffered in memory before
	// spilling to temporary files.
	multipartMemory = 8 << 20
)

// Submitter sends a service request to the backend.
type Submitter interface {
	Submit(ctx context.Context, req model.ServiceRequest) (model.ServiceRequest, error)
}

type RequestHandler struct {
	// submitter is nil in mock mode.
	submitter Submitter
	drafts    *form.Drafts
	notices   *flash.Queue
	maxUpload int64
	logger    *slog.Logger
}

func NewRequestHandler(submitter Submitter, drafts *form.Drafts, notices *flash.Queue, maxUpload int64, logger *slog.Logger) *RequestHandler {
	return &RequestHandler{
		submitter: submitter,
		drafts:    drafts,
		notices:   notices,
		maxUpload: maxUpload,
		logger:    logger,
	}
}

// Submit handles POST /requests. The draft is saved before anything can
// fail so the form comes back filled in for a retry.
func (h *RequestHandler) Submit(w http.ResponseWriter, r *http.Request) {
	deviceID := auth.DeviceID(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		h.logger.Warn("parse request form", "device", deviceID, "error", err)
		h.fail(w, r, deviceID, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	draft := h.drafts.Get(deviceID)
	if err := form.ApplyRequest(&draft, r); err != nil {
		h.logger.Warn("read request form", "device", deviceID, "error", err)
		h.fail(w, r, deviceID, err)
		return
	}
	h.drafts.Put(deviceID, draft)

	if err := draft.Validate(); err != nil {
		h.fail(w, r, deviceID, err)
		return
	}

	if h.submitter == nil {
		h.succeed(w, r, deviceID, "/")
		return
	}

	created, err := h.submitter.Submit(r.Context(), draft.ServiceRequest())
	if errors.Is(err, api.ErrUnauthorized) {
		metrics.RequestsSubmittedTotal.WithLabelValues(metrics.Result(err)).Inc()
		middleware.RedirectToLogin(w, r)
		return
	}
	if err != nil {
		h.logger.Error("submit service request", "device", deviceID, "error", err)
		h.fail(w, r, deviceID, err)
		return
	}

	h.logger.Info("service request submitted", "device", deviceID, "request", created.ID, "attachments", len(draft.Attachments))
	next := "/"
	if created.ID != "" {
		next = "/?request=" + url.QueryEscape(created.ID)
	}
	h.succeed(w, r, deviceID, next)
}

func (h *RequestHandler) succeed(w http.ResponseWriter, r *http.Request, deviceID, next string) {
	metrics.RequestsSubmittedTotal.WithLabelValues(metrics.Result(nil)).Inc()
	h.drafts.Reset(deviceID)
	h.notices.Success(deviceID, msgSubmitSuccess)
	redirect(w, r, next)
}

func (h *RequestHandler) fail(w http.ResponseWriter, r *http.Request, deviceID string, err error) {
	metrics.RequestsSubmittedTotal.WithLabelValues(metrics.Result(err)).Inc()
	h.notices.Error(deviceID, msgSubmitFailed)
	redirect(w, r, "/#request-form")
}
