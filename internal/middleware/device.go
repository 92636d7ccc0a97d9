package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/gasportal/internal/auth"
)

const (
	DeviceCookieName = "gasportal_device"
	deviceCookieAge  = 365 * 24 * time.Hour
)

// Device identifies the browser by a long-lived cookie, issuing a new id when
// the cookie is missing or malformed.
func Device(secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			dc := auth.DeviceContext{}
			if cookie, err := r.Cookie(DeviceCookieName); err == nil {
				if id, err := uuid.Parse(cookie.Value); err == nil {
					dc.DeviceID = id.String()
				}
			}
			if dc.DeviceID == "" {
				dc.DeviceID = uuid.NewString()
				dc.New = true
				http.SetCookie(w, &http.Cookie{
					Name:     DeviceCookieName,
					Value:    dc.DeviceID,
					Path:     "/",
					MaxAge:   int(deviceCookieAge.Seconds()),
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}
			if rec, ok := w.(*statusRecorder); ok {
				rec.device = dc
			}
			next.ServeHTTP(w, r.WithContext(auth.WithDevice(r.Context(), dc)))
		})
	}
}
