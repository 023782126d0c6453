package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/counselchat/internal/core"
)

// APIHandlers provides the read-only REST endpoints.
type APIHandlers struct {
	hub Hub
	log *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(hub Hub, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		hub: hub,
		log: logger,
	}
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ListRooms returns the public room list shown before sign-in.
// GET /api/rooms
func (h *APIHandlers) ListRooms(c *gin.Context) {
	rooms := core.PublicRooms(h.hub.Rooms().List())
	h.log.Debug().Int("room_count", len(rooms)).Msg("rooms listed")
	c.JSON(http.StatusOK, rooms)
}

// Stats returns a snapshot of the coordinator.
// GET /api/stats
func (h *APIHandlers) Stats(c *gin.Context) {
	st, err := h.hub.Stats(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to read hub stats")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "service unavailable"})
		return
	}
	c.JSON(http.StatusOK, st)
}
