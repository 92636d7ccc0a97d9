package websocket

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"
)

// Handler upgrades /ws requests and attaches them to the caller's device.
// deviceID resolves the device from the request; an empty id is rejected.
func Handler(hub *Hub, deviceID func(*http.Request) string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := deviceID(r)
		if id == "" {
			http.Error(w, "missing device", http.StatusBadRequest)
			return
		}
		conn, err := ws.Accept(w, r, nil)
		if err != nil {
			logger.Warn("accept", "device", id, "error", err)
			return
		}
		defer conn.CloseNow()

		NewClient(hub, conn, id).Run(r.Context())
	}
}
