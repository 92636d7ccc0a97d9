package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/dukerupert/gasportal/internal/metrics"
	"github.com/dukerupert/gasportal/internal/model"
)

// Message is pushed to every open tab of a device.
type Message struct {
	Type          string `json:"type"`
	Authenticated bool   `json:"authenticated"`
	User          string `json:"user,omitempty"`
}

// SessionChanged builds the message sent after a login or logout.
func SessionChanged(state model.AuthState) Message {
	msg := Message{Type: "session_changed", Authenticated: state.IsAuthenticated}
	if state.User != nil {
		msg.User = state.User.DisplayName()
	}
	return msg
}

// Hub tracks open connections grouped by device id.
type Hub struct {
	mu      sync.RWMutex
	devices map[string]map[*Client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		devices: make(map[string]map[*Client]struct{}),
		logger:  logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	set, ok := h.devices[c.deviceID]
	if !ok {
		set = make(map[*Client]struct{})
		h.devices[c.deviceID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()
	metrics.ActiveSockets.Inc()
}

// Unregister removes c and closes its send channel. Safe to call twice.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	set := h.devices[c.deviceID]
	_, ok := set[c]
	if ok {
		delete(set, c)
		close(c.send)
		if len(set) == 0 {
			delete(h.devices, c.deviceID)
		}
	}
	h.mu.Unlock()
	if ok {
		metrics.ActiveSockets.Dec()
	}
}

// BroadcastTo sends msg to every connection of one device.
func (h *Hub) BroadcastTo(deviceID string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.devices[deviceID] {
		select {
		case c.send <- data:
		default:
			h.logger.Debug("dropping message, client buffer full", "device", deviceID)
		}
	}
}

// HasDevice reports whether the device has at least one open connection.
func (h *Hub) HasDevice(deviceID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.devices[deviceID]) > 0
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.devices {
		n += len(set)
	}
	return n
}
