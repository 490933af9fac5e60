package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eldtechnologies/parlor/internal/models"
	"github.com/eldtechnologies/parlor/internal/store"
)

// AnnotatedRoom is a room together with its messages still pending in the
// in-memory buffer, i.e. everything since the last flushed conversation.
type AnnotatedRoom struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Image    string           `json:"image,omitempty"`
	Messages []models.Message `json:"messages"`
}

// CreateRoomRequest is the POST /chat body.
type CreateRoomRequest struct {
	Name  string `json:"name"`
	Image string `json:"image"`
}

// ListRooms handles GET /chat: all rooms, each annotated with its current
// unflushed buffer.
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.store.ListRooms(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("list rooms failed")
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	annotated := make([]AnnotatedRoom, len(rooms))
	for i, room := range rooms {
		annotated[i] = AnnotatedRoom{
			ID:       room.ID,
			Name:     room.Name,
			Image:    room.Image,
			Messages: h.buffers.Snapshot(room.ID),
		}
	}

	h.JSON(w, http.StatusOK, annotated)
}

// GetRoom handles GET /chat/{roomID}.
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	room, err := h.store.GetRoom(r.Context(), roomID)
	if err != nil {
		h.logger.Error().Err(err).Str("room", roomID).Msg("get room failed")
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if room == nil {
		h.Error(w, http.StatusNotFound, "room "+roomID+" was not found")
		return
	}

	h.JSON(w, http.StatusOK, room)
}

// CreateRoom handles POST /chat. A new room gets an empty message buffer so
// the broker accepts messages for it immediately.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	room, err := h.store.AddRoom(r.Context(), models.Room{Name: req.Name, Image: req.Image})
	if err != nil {
		if errors.Is(err, store.ErrMissingName) {
			h.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error().Err(err).Msg("create room failed")
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	h.buffers.Register(room.ID)
	h.JSON(w, http.StatusOK, room)
}

// GetLastConversation handles GET /chat/{roomID}/messages?before=<epoch-ms>.
// It returns the newest conversation block strictly older than the cursor,
// or 404 when history is exhausted. The cursor defaults to now.
func (h *Handler) GetLastConversation(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	before := time.Now().UnixMilli()
	if raw := r.URL.Query().Get("before"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.Error(w, http.StatusBadRequest, "invalid before timestamp")
			return
		}
		before = parsed
	}

	conv, err := h.store.GetLastConversation(r.Context(), roomID, before)
	if err != nil {
		h.logger.Error().Err(err).Str("room", roomID).Msg("conversation lookup failed")
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if conv == nil {
		h.Error(w, http.StatusNotFound, "last conversation for room "+roomID+" was not found")
		return
	}

	h.JSON(w, http.StatusOK, conv)
}
