package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/ashureev/docchat/internal/chat"
	"github.com/ashureev/docchat/internal/identity"
)

// WebSocketHandler serves text-only chat turns over a WebSocket. File uploads
// go through the multipart SSE endpoint; this transport exists for clients
// that keep a persistent connection open.
type WebSocketHandler struct {
	svc           *chat.Service
	allowedOrigin string
	isDev         bool
	logger        *slog.Logger
}

// NewWebSocketHandler creates a new WebSocket chat handler.
func NewWebSocketHandler(svc *chat.Service, allowedOrigin string, isDev bool, logger *slog.Logger) *WebSocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHandler{
		svc:           svc,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
		logger:        logger,
	}
}

// wsSendRequest is one inbound chat turn over the socket.
type wsSendRequest struct {
	Type    string `json:"type"`
	RoomID  string `json:"room_id,omitempty"`
	Message string `json:"message,omitempty"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	h.logger.Info("websocket connection request", "user_id", userID, "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("failed to accept websocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			h.logger.Debug("failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				h.logger.Debug("websocket closed by client", "user_id", userID)
			} else {
				h.logger.Warn("websocket read error", "error", err, "user_id", userID)
			}
			return
		}

		var req wsSendRequest
		if err := json.Unmarshal(message, &req); err != nil {
			if writeErr := h.writeJSON(ctx, ws, map[string]string{"error": "invalid message"}); writeErr != nil {
				h.logger.Debug("failed to send parse error", "error", writeErr)
			}
			continue
		}

		switch req.Type {
		case "ping":
			if err := h.writeJSON(ctx, ws, map[string]string{"type": "pong"}); err != nil {
				h.logger.Debug("failed to send pong", "error", err)
			}
		case "send":
			if !h.runTurn(ctx, ws, userID, req) {
				return
			}
		default:
			if err := h.writeJSON(ctx, ws, map[string]string{"error": "unknown message type"}); err != nil {
				h.logger.Debug("failed to send type error", "error", err)
			}
		}
	}
}

// runTurn drives one SendMessage turn, relaying each event to the socket.
// Returns false when the connection is no longer usable.
func (h *WebSocketHandler) runTurn(ctx context.Context, ws *websocket.Conn, userID string, req wsSendRequest) bool {
	send := chat.SendRequest{
		RoomID:    req.RoomID,
		Content:   req.Message,
		CreatorID: userID,
	}
	for event, err := range h.svc.SendMessage(ctx, send) {
		if err != nil {
			h.logger.Error("websocket chat turn failed", "user_id", userID, "error", err)
			if writeErr := h.writeJSON(ctx, ws, map[string]string{"type": "error", "error": err.Error()}); writeErr != nil {
				return false
			}
			return true
		}
		if err := h.writeJSON(ctx, ws, event); err != nil {
			h.logger.Debug("websocket write error", "error", err, "user_id", userID)
			return false
		}
	}
	return true
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	h.logger.Warn("websocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *WebSocketHandler) writeJSON(ctx context.Context, ws *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}
