// Package api is the client for the service-request backend REST API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/gasportal/internal/metrics"
)

const DefaultBaseURL = "http://localhost:8000/api"

var (
	ErrUnauthorized = errors.New("api: unauthorized")
	ErrNotFound     = errors.New("api: not found")
)

// Error is returned for any non-2xx response.
type Error struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api: %s %s: status %d", e.Method, e.Path, e.StatusCode)
}

// Is lets errors.Is match ErrUnauthorized and ErrNotFound by status code.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// Credentials supplies the bearer token for a call and is told to forget it
// when the backend answers 401.
type Credentials interface {
	Token(ctx context.Context) string
	Clear(ctx context.Context)
}

type noCredentials struct{}

func (noCredentials) Token(context.Context) string { return "" }
func (noCredentials) Clear(context.Context)        {}

// Config holds API client configuration.
type Config struct {
	BaseURL     string
	Timeout     time.Duration // zero means no client-side timeout
	HTTPClient  *http.Client
	Credentials Credentials
	Logger      *slog.Logger
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      Credentials
	logger     *slog.Logger
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Credentials == nil {
		cfg.Credentials = noCredentials{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: cfg.HTTPClient,
		creds:      cfg.Credentials,
		logger:     cfg.Logger,
	}
}

// Auth returns the authentication endpoints.
func (c *Client) Auth() *AuthAPI {
	return &AuthAPI{c: c}
}

// Requests returns the service request and catalog endpoints.
func (c *Client) Requests() *RequestsAPI {
	return &RequestsAPI{c: c}
}

type call struct {
	endpoint    string
	method      string
	path        string
	body        io.Reader
	contentType string
	anonymous   bool   // never attach a bearer token
	token       string // overrides Credentials when set
}

func (c *Client) do(ctx context.Context, cl call, out any) error {
	req, err := http.NewRequestWithContext(ctx, cl.method, c.baseURL+cl.path, cl.body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if cl.contentType != "" {
		req.Header.Set("Content-Type", cl.contentType)
	}
	if !cl.anonymous {
		token := cl.token
		if token == "" {
			token = c.creds.Token(ctx)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.APIRequestDuration.WithLabelValues(cl.endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.APIRequestsTotal.WithLabelValues(cl.endpoint, "error").Inc()
		return fmt.Errorf("%s %s: %w", cl.method, cl.path, err)
	}
	defer resp.Body.Close()
	metrics.APIRequestsTotal.WithLabelValues(cl.endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode == http.StatusUnauthorized {
		metrics.UnauthorizedTotal.Inc()
		c.logger.Warn("api unauthorized, clearing credentials", "endpoint", cl.endpoint)
		c.creds.Clear(ctx)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &Error{
			Method:     cl.method,
			Path:       cl.path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", cl.endpoint, err)
	}
	return nil
}
