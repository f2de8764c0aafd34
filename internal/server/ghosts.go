package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/ghostwatch/internal/ghosts"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (h *httpHandler) handleListGhosts(c *gin.Context) {
	result, err := h.ghosts.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *httpHandler) handleGetGhost(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ghost, err := h.ghosts.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ghost)
}

func (h *httpHandler) handleCreateGhost(c *gin.Context) {
	var request createGhostPayload
	if !bindJSON(c, &request) {
		return
	}
	if request.Visibility.fractional {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_visibility"})
		return
	}
	ghost, err := h.ghosts.Create(c.Request.Context(), ghosts.CreateRequest{
		Name:        request.Name,
		GhostType:   request.Type,
		Description: request.Description,
		Visibility:  request.Visibility.IntPtr(),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(RealtimeEventGhostCreated, 0, ghost)
	c.JSON(http.StatusCreated, ghost)
}

func (h *httpHandler) handleDeleteGhost(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.ghosts.Delete(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	h.logger.Info("ghost deleted", zap.Int64("ghost_id", id), zap.Int64("user_id", authenticatedUser(c)))
	h.publish(RealtimeEventGhostDeleted, 0, gin.H{"id": id})
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleGhostSightings(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	result, err := h.sightings.ListByGhost(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
