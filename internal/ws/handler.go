package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lodhi7862/bringit-app/protocol"
)

const maxMessageSize = 4096

// Handler upgrades HTTP requests on the ws endpoint, registers the
// connection and runs its read loop.
type Handler struct {
	reg      *Registry
	log      *slog.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates the upgrade handler for the registry.
func NewHandler(reg *Registry, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		reg: reg,
		log: log.With("component", "ws.handler"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Clients are mobile apps, not browsers; there is no
			// cookie-based session to protect.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP handles GET /ws?userId=<id>.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"userId query parameter is required"}`))
		return
	}

	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	connID := uuid.NewString()
	sock.SetReadLimit(maxMessageSize)
	sock.SetPongHandler(func(string) error {
		h.reg.Touch(userID, connID)
		return nil
	})

	h.reg.Register(userID, connID, sock)

	// Confirm registration. Goes through the registry so the write is
	// serialized with dispatches already racing for this connection.
	if payload, err := json.Marshal(protocol.Connected(userID)); err == nil {
		h.reg.sendTo(userID, connID, payload)
	}

	h.readLoop(sock, userID, connID)
}

// readLoop consumes client frames until the channel dies. Any read error
// evicts the connection immediately; reconnecting is the client's job.
func (h *Handler) readLoop(sock *websocket.Conn, userID, connID string) {
	defer h.reg.Unregister(userID, connID)

	for {
		_, data, err := sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Warn("connection error", "user_id", userID, "conn_id", connID, "error", err)
			} else {
				h.log.Info("connection closed", "user_id", userID, "conn_id", connID)
			}
			return
		}

		ev, err := protocol.Parse(data)
		if err != nil {
			// Malformed frames never take the channel down.
			h.log.Warn("dropping malformed frame", "user_id", userID, "error", err)
			continue
		}

		switch ev.Type {
		case protocol.EventPing:
			h.reg.Touch(userID, connID)
			if payload, err := json.Marshal(protocol.Pong()); err == nil {
				h.reg.sendTo(userID, connID, payload)
			}
		default:
			h.log.Debug("ignoring client frame", "user_id", userID, "type", ev.Type)
		}
	}
}
