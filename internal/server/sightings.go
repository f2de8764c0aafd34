package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/ghostwatch/internal/comments"
	"github.com/MarcoPoloResearchLab/ghostwatch/internal/sightings"
	"github.com/gin-gonic/gin"
)

func (h *httpHandler) handleListSightings(c *gin.Context) {
	result, err := h.sightings.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *httpHandler) handleGetSighting(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	sighting, err := h.sightings.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sighting)
}

func (h *httpHandler) handleCreateSighting(c *gin.Context) {
	var request createSightingPayload
	if !bindJSON(c, &request) {
		return
	}
	if request.Latitude.invalid || request.Longitude.invalid {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_coordinates"})
		return
	}
	if request.Visibility.fractional {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_visibility"})
		return
	}

	sighting, err := h.sightings.Create(c.Request.Context(), sightings.CreateRequest{
		UserReportID:   request.UserReportID.Int(),
		Description:    request.Description,
		Latitude:       request.Latitude.Ptr(),
		Longitude:      request.Longitude.Ptr(),
		GhostID:        request.GhostID.Ptr(),
		TimeOfSighting: request.TimeOfSighting,
		Visibility:     request.Visibility.IntPtr(),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(RealtimeEventSightingCreated, 0, sighting)
	c.JSON(http.StatusCreated, sighting)
}

func (h *httpHandler) handleRenameGhost(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var request renameGhostPayload
	if !bindJSON(c, &request) {
		return
	}
	sighting, err := h.sightings.RenameGhost(c.Request.Context(), id, request.Name)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(RealtimeEventGhostRenamed, 0, sighting)
	c.JSON(http.StatusOK, sighting)
}

func (h *httpHandler) handleListComments(service *comments.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		result, err := service.List(c.Request.Context(), id)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// handleUpsertComment answers 201 for a first comment and 200 when the user's
// existing comment on the target was replaced.
func (h *httpHandler) handleUpsertComment(service *comments.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		var request commentPayload
		if !bindJSON(c, &request) {
			return
		}
		comment, created, err := service.Upsert(c.Request.Context(), comments.UpsertRequest{
			UserID:      request.UserID.Int(),
			TargetID:    id,
			Description: request.Description,
		})
		if err != nil {
			h.respondError(c, err)
			return
		}
		h.publish(RealtimeEventCommentPosted, 0, gin.H{
			"target":  service.Target().Name,
			"comment": comment,
			"created": created,
		})
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		c.JSON(status, comment)
	}
}
