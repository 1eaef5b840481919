package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ashureev/docchat/internal/chat"
	"github.com/ashureev/docchat/internal/identity"
)

// multipartMemoryLimit bounds how much of a multipart body is held in memory
// before spilling to temp files.
const multipartMemoryLimit = 32 << 20

// HandleChat accepts one turn as a multipart form (fields: message, room_id,
// and an optional document file) and streams the turn's events over SSE.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		Error(w, http.StatusBadRequest, "invalid multipart body")
		return
	}

	req := chat.SendRequest{
		RoomID:    r.FormValue("room_id"),
		Content:   r.FormValue("message"),
		CreatorID: userID,
	}

	upload, err := h.readUpload(r)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	req.File = upload

	if req.Content == "" && req.File == nil {
		Error(w, http.StatusBadRequest, "message or document is required")
		return
	}

	h.logger.Info("chat request",
		"user_id", userID,
		"room_id", req.RoomID,
		"message_length", len(req.Content),
		"has_file", req.File != nil,
	)

	// Stream response via SSE.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	for event, err := range h.svc.SendMessage(r.Context(), req) {
		if err != nil {
			h.logger.Error("chat turn failed", "user_id", userID, "error", err)
			if writeErr := writeSSE(w, "error", err.Error()); writeErr != nil {
				h.logger.Warn("failed to write SSE error event", "error", writeErr)
			}
			flusher.Flush()
			return
		}

		data, err := json.Marshal(event)
		if err != nil {
			h.logger.Warn("failed to marshal turn event", "error", err)
			if writeErr := writeSSE(w, "error", "failed to serialize event"); writeErr != nil {
				h.logger.Warn("failed to write SSE serialization error", "error", writeErr)
			}
			flusher.Flush()
			return
		}
		if err := writeSSE(w, string(event.Type), string(data)); err != nil {
			h.logger.Warn("failed to write SSE event", "error", err)
			return
		}
		flusher.Flush()
	}
}

// readUpload extracts the optional document part. A missing part is not an
// error; anything else about the part failing is.
func (h *Handler) readUpload(r *http.Request) (*chat.FileUpload, error) {
	file, header, err := r.FormFile("document")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.New("invalid document part")
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			h.logger.Debug("failed to close upload", "error", closeErr)
		}
	}()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, errors.New("failed to read document")
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return &chat.FileUpload{
		Name:     header.Filename,
		MIMEType: mimeType,
		Size:     int64(len(data)),
		Data:     data,
	}, nil
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
