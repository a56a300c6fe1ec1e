package engine

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// ingestUpgrader upgrades device connections. Devices are headless clients,
// not browsers, so origin checking is disabled; the handshake timeout guards
// against connections that stall mid-upgrade.
var ingestUpgrader = websocket.Upgrader{
	ReadBufferSize:   1024,
	WriteBufferSize:  1024,
	HandshakeTimeout: 10 * time.Second,
	CheckOrigin:      func(r *http.Request) bool { return true },
}

// Ingest handles GET /ws/ingest: the persistent per-device connection.
// Binary messages are frame payloads handed to the registry; text messages
// are ignored. The session exists for exactly the lifetime of the
// connection, and Disconnect runs on every exit path.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	conn, err := ingestUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("ingest upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	id, err := h.registry.Connect()
	if err != nil {
		h.log.Error("connect failed", slog.String("error", err.Error()))
		return
	}
	defer h.registry.Disconnect(id)

	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Info("ingest connection lost",
					slog.String("client_id", string(id)),
					slog.String("error", err.Error()))
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		if err := h.registry.Receive(id, payload); err != nil {
			// Only ErrUnknownClient reaches here, meaning the session was
			// torn down underneath the reader.
			h.log.Warn("receive failed",
				slog.String("client_id", string(id)),
				slog.String("error", err.Error()))
			return
		}
	}
}

// Updates handles GET /ws/updates: a dashboard client subscribing to the
// detection fan-out hub.
func (h *Handler) Updates(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	conn, err := ingestUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("updates upgrade failed", slog.String("error", err.Error()))
		return
	}
	h.hub.Attach(conn)
}
