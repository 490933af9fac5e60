package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/parlor/internal/broker"
	"github.com/eldtechnologies/parlor/internal/session"
	"github.com/eldtechnologies/parlor/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	store      store.ConversationStore
	sessions   *session.Store
	buffers    *broker.BufferSet
	redis      *store.RedisStore
	sessionTTL time.Duration
	logger     zerolog.Logger
}

// New creates a Handler. redis may be nil.
func New(cs store.ConversationStore, sessions *session.Store, buffers *broker.BufferSet, redis *store.RedisStore, sessionTTL time.Duration, logger zerolog.Logger) *Handler {
	if sessionTTL <= 0 {
		sessionTTL = session.DefaultTTL
	}
	return &Handler{
		store:      cs,
		sessions:   sessions,
		buffers:    buffers,
		redis:      redis,
		sessionTTL: sessionTTL,
		logger:     logger,
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}
