package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/dukerupert/gasportal/internal/model"
)

// RequestsAPI groups the service request and catalog endpoints.
type RequestsAPI struct {
	c *Client
}

// Submit posts the request as multipart form data. Scalar fields become form
// fields named as in the JSON model; each attachment becomes an
// "attachments" file part.
func (r *RequestsAPI) Submit(ctx context.Context, req model.ServiceRequest) (model.ServiceRequest, error) {
	body, contentType, err := encodeRequest(req)
	if err != nil {
		return model.ServiceRequest{}, fmt.Errorf("encode service request: %w", err)
	}

	var created model.ServiceRequest
	err = r.c.do(ctx, call{
		endpoint:    "request_submit",
		method:      http.MethodPost,
		path:        "/service-requests/",
		body:        body,
		contentType: contentType,
	}, &created)
	return created, err
}

// Status fetches a single request by id.
func (r *RequestsAPI) Status(ctx context.Context, id string) (model.ServiceRequest, error) {
	if strings.TrimSpace(id) == "" {
		return model.ServiceRequest{}, errors.New("request id is required")
	}
	var sr model.ServiceRequest
	err := r.c.do(ctx, call{
		endpoint: "request_status",
		method:   http.MethodGet,
		path:     "/service-requests/" + url.PathEscape(id) + "/",
	}, &sr)
	return sr, err
}

// Services lists the catalog. Both a bare array and a paginated
// {"results": [...]} body are accepted.
func (r *RequestsAPI) Services(ctx context.Context) ([]model.Service, error) {
	var raw json.RawMessage
	err := r.c.do(ctx, call{
		endpoint: "services_list",
		method:   http.MethodGet,
		path:     "/services/",
	}, &raw)
	if err != nil {
		return nil, err
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '{' {
		var page struct {
			Results []model.Service `json:"results"`
		}
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, fmt.Errorf("decode services page: %w", err)
		}
		return page.Results, nil
	}

	var services []model.Service
	if err := json.Unmarshal(raw, &services); err != nil {
		return nil, fmt.Errorf("decode services: %w", err)
	}
	return services, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func encodeRequest(req model.ServiceRequest) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := []struct {
		name, value string
		always      bool
	}{
		{"id", req.ID, false},
		{"requestType", req.RequestType, true},
		{"description", req.Description, true},
		{"address", req.Address, true},
		{"contactNumber", req.ContactNumber, true},
		{"status", req.Status, false},
		{"createdAt", formatTime(req.CreatedAt), false},
	}
	for _, f := range fields {
		if f.value == "" && !f.always {
			continue
		}
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", f.name, err)
		}
	}

	for _, a := range req.Attachments {
		contentType := a.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name="attachments"; filename="%s"`, quoteEscaper.Replace(a.Filename)))
		h.Set("Content-Type", contentType)

		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("create attachment part: %w", err)
		}
		if _, err := part.Write(a.Data); err != nil {
			return nil, "", fmt.Errorf("write attachment %s: %w", a.Filename, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
