package server

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dukerupert/gasportal/internal/api"
	"github.com/dukerupert/gasportal/internal/auth"
	"github.com/dukerupert/gasportal/internal/catalog"
	"github.com/dukerupert/gasportal/internal/config"
	"github.com/dukerupert/gasportal/internal/flash"
	"github.com/dukerupert/gasportal/internal/form"
	"github.com/dukerupert/gasportal/internal/handler"
	"github.com/dukerupert/gasportal/internal/middleware"
	"github.com/dukerupert/gasportal/internal/model"
	"github.com/dukerupert/gasportal/internal/session"
	"github.com/dukerupert/gasportal/internal/store"
	ws "github.com/dukerupert/gasportal/internal/websocket"
	"github.com/dukerupert/gasportal/web"
)

const (
	loginRateLimit  = 10
	loginRateWindow = time.Minute
)

type Server struct {
	cfg           *config.Config
	hub           *ws.Hub
	sessions      *session.Manager
	clientStorage *store.ClientStorage
	drafts        *form.Drafts
	notices       *flash.Queue
	rateLimiter   *middleware.RateLimiter
	authH         *handler.AuthHandler
	portalH       *handler.PortalHandler
	requestH      *handler.RequestHandler
	statusH       *handler.StatusHandler
	logger        *slog.Logger
}

func New(cfg *config.Config, db *sql.DB, logger *slog.Logger) (*Server, error) {
	hub := ws.NewHub(logger.With("component", "websocket"))
	clientStorage := store.NewClientStorage(db)

	sessions := session.NewManager(func(deviceID string) session.Storage {
		return clientStorage.Device(deviceID)
	}, logger.With("component", "session"))
	sessions.OnChange(func(deviceID string, state model.AuthState) {
		hub.BroadcastTo(deviceID, ws.SessionChanged(state))
	})

	renderer, err := handler.NewRenderer(logger.With("component", "template"))
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	drafts := form.NewDrafts()
	notices := flash.NewQueue()

	// Handler dependencies stay nil interfaces in mock mode.
	var (
		authenticator handler.Authenticator
		submitter     handler.Submitter
		fetcher       handler.StatusFetcher
		lister        catalog.ServiceLister
	)
	if cfg.Live() {
		client := api.NewClient(api.Config{
			BaseURL:     cfg.BaseURL(),
			Timeout:     cfg.APITimeout,
			Credentials: session.ContextCredentials{Logger: logger.With("component", "session")},
			Logger:      logger.With("component", "api"),
		})
		authenticator = client.Auth()
		submitter = client.Requests()
		fetcher = client.Requests()
		lister = client.Requests()
		sessions.SetRestorer(client.Auth().CurrentUser)
	}

	statusH := handler.NewStatusHandler(fetcher, renderer, logger.With("component", "status"))

	return &Server{
		cfg:           cfg,
		hub:           hub,
		sessions:      sessions,
		clientStorage: clientStorage,
		drafts:        drafts,
		notices:       notices,
		rateLimiter:   middleware.NewRateLimiter(),
		authH:         handler.NewAuthHandler(authenticator, renderer, notices, logger.With("component", "auth")),
		portalH:       handler.NewPortalHandler(catalog.NewLoader(lister), drafts, notices, statusH, renderer, logger.With("component", "portal")),
		requestH:      handler.NewRequestHandler(submitter, drafts, notices, cfg.MaxUploadBytes, logger.With("component", "requests")),
		statusH:       statusH,
		logger:        logger,
	}, nil
}

// RateLimiter returns the login rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Sessions returns the per-device session manager.
func (s *Server) Sessions() *session.Manager {
	return s.sessions
}

func (s *Server) ClientStorage() *store.ClientStorage {
	return s.clientStorage
}

func (s *Server) Drafts() *form.Drafts {
	return s.drafts
}

func (s *Server) Notices() *flash.Queue {
	return s.notices
}

func (s *Server) Hub() *ws.Hub {
	return s.hub
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	static, err := fs.Sub(web.FS, "static")
	if err != nil {
		panic(err)
	}
	outerMux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(static)))
	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.Handle("GET /metrics", promhttp.Handler())

	// Device-scoped routes: every request below has a device id and a session.
	deviceMux := http.NewServeMux()
	deviceMux.HandleFunc("GET /{$}", s.portalH.Index)
	deviceMux.HandleFunc("GET /login", s.authH.LoginPage)
	deviceMux.HandleFunc("POST /login", s.rateLimitedHandler(s.authH.Login))
	deviceMux.HandleFunc("POST /logout", s.authH.Logout)
	deviceMux.Handle("POST /requests", s.backendHandler(s.requestH.Submit))
	deviceMux.Handle("GET /requests/{id}/status", s.backendHandler(s.statusH.Partial))
	deviceMux.HandleFunc("GET /ws", ws.Handler(s.hub, func(r *http.Request) string {
		return auth.DeviceID(r.Context())
	}, s.logger.With("component", "websocket")))

	provide := middleware.ProvideSession(s.sessions, s.logger.With("component", "session"))
	outerMux.Handle("/", middleware.Device(s.cfg.CookieSecure)(provide(deviceMux)))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// backendHandler gates routes that call the backend with the device's token.
// Mock mode serves them to anyone.
func (s *Server) backendHandler(h http.HandlerFunc) http.Handler {
	if !s.cfg.Live() {
		return h
	}
	return middleware.RequireAuth(h)
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	rl := middleware.RateLimit(s.rateLimiter, middleware.RealIP, loginRateLimit, loginRateWindow)
	return rl(h).ServeHTTP
}

// Retention for the periodic cleanup.
const (
	ClientStorageRetention = 90 * 24 * time.Hour
	SessionIdle            = 24 * time.Hour
	DraftIdle              = 24 * time.Hour
)

// Cleanup drops idle per-device state. It is run periodically by the binary.
func (s *Server) Cleanup() {
	// Devices with a live session are in use; keep their durable rows.
	for _, deviceID := range s.sessions.Devices() {
		if err := s.clientStorage.Touch(deviceID); err != nil {
			s.logger.Error("touch client storage", "device", deviceID, "error", err)
		}
	}
	rows, err := s.clientStorage.DeleteIdle(ClientStorageRetention)
	if err != nil {
		s.logger.Error("cleanup client storage", "error", err)
	}
	sessions := s.sessions.Prune(SessionIdle)
	drafts := s.drafts.Prune(DraftIdle)
	notices := s.notices.Forget(func(deviceID string) bool {
		return s.sessions.Has(deviceID) || s.hub.HasDevice(deviceID)
	})
	windows := s.rateLimiter.Cleanup()

	s.logger.Info("cleanup",
		"client_storage_rows", rows,
		"sessions", sessions,
		"drafts", drafts,
		"notice_queues", notices,
		"rate_windows", windows,
	)
}
