// Package api provides HTTP handlers for the docchat API.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/docchat/internal/chat"
	"github.com/ashureev/docchat/internal/identity"
)

// Handler serves the room and chat endpoints.
type Handler struct {
	svc            *chat.Service
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(svc *chat.Service, maxUploadBytes int64, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		svc:            svc,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// RegisterRoutes mounts the API endpoints on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/rooms", h.HandleListRooms)
	r.Post("/api/rooms", h.HandleCreateRoom)
	r.Get("/api/rooms/{roomID}/messages", h.HandleListMessages)
	r.Post("/api/chat/messages", h.HandleChat)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// HandleCreateRoom creates a new chat room for the requesting user.
func (h *Handler) HandleCreateRoom(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	room, err := h.svc.CreateRoom(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to create room", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to create room")
		return
	}
	JSON(w, http.StatusCreated, room)
}

// HandleListRooms lists the requesting user's rooms, newest first.
func (h *Handler) HandleListRooms(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	rooms, err := h.svc.Rooms(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list rooms", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to list rooms")
		return
	}
	JSON(w, http.StatusOK, rooms)
}

// HandleListMessages lists a room's history in append order. An unknown room
// reads as an empty list.
func (h *Handler) HandleListMessages(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	if roomID == "" {
		Error(w, http.StatusBadRequest, "room id is required")
		return
	}
	messages, err := h.svc.Messages(r.Context(), roomID)
	if err != nil {
		h.logger.Error("failed to list messages", "room_id", roomID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	JSON(w, http.StatusOK, messages)
}
