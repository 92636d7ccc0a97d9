package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/gasportal/internal/auth"
)

// statusRecorder wraps http.ResponseWriter to capture the status code and
// the device assigned further down the chain.
type statusRecorder struct {
	http.ResponseWriter
	status int
	device auth.DeviceContext
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer; the
// websocket upgrade needs its Hijacker.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// RequestLogger returns middleware that logs each HTTP request with method,
// path, status code, duration, remote IP and, when Device ran inside it,
// the device id. First visits are flagged with new_device.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			duration := time.Since(start)
			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", duration),
				slog.String("remote", RealIP(r)),
			}
			if rec.device.DeviceID != "" {
				attrs = append(attrs, slog.String("device", rec.device.DeviceID))
			}
			if rec.device.New {
				attrs = append(attrs, slog.Bool("new_device", true))
			}

			switch {
			case rec.status >= 500:
				logger.LogAttrs(r.Context(), slog.LevelError, "request", attrs...)
			case rec.status >= 400:
				logger.LogAttrs(r.Context(), slog.LevelWarn, "request", attrs...)
			default:
				logger.LogAttrs(r.Context(), slog.LevelInfo, "request", attrs...)
			}
		})
	}
}
