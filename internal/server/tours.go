package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/ghostwatch/internal/tours"
	"github.com/gin-gonic/gin"
)

// handleListTours marks each tour with the viewer's signup state when the
// caller is known, from the userID query parameter or a session token.
func (h *httpHandler) handleListTours(c *gin.Context) {
	var viewer *int64
	if raw := strings.TrimSpace(c.Query("userID")); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_id"})
			return
		}
		viewer = &parsed
	} else if userID := h.viewerID(c); userID > 0 {
		viewer = &userID
	}

	result, err := h.tours.List(c.Request.Context(), viewer)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *httpHandler) handleGetTour(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	tour, err := h.tours.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tour)
}

func (h *httpHandler) handleCreateTour(c *gin.Context) {
	var request createTourPayload
	if !bindJSON(c, &request) {
		return
	}
	ghostIDs, ok := request.GhostIDs.Values()
	if !ok {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_id"})
		return
	}
	start, ok := optionalTime(c, request.StartTime)
	if !ok {
		return
	}
	end, ok := optionalTime(c, request.EndTime)
	if !ok {
		return
	}

	tour, err := h.tours.Create(c.Request.Context(), tours.CreateRequest{
		Guide:     request.Guide,
		Path:      request.Path,
		StartTime: start,
		EndTime:   end,
		GhostIDs:  ghostIDs,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(RealtimeEventTourCreated, 0, tour)
	c.JSON(http.StatusCreated, tour)
}

func (h *httpHandler) handleTourGhosts(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	result, err := h.tours.Ghosts(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *httpHandler) handleTourParticipants(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	result, err := h.tours.Participants(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *httpHandler) handleJoinTour(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := h.memberID(c)
	if !ok {
		return
	}
	membership, err := h.tours.Join(c.Request.Context(), id, userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(RealtimeEventTourMembership, 0, membership)
	c.JSON(http.StatusOK, membership)
}

func (h *httpHandler) handleLeaveTour(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := h.memberID(c)
	if !ok {
		return
	}
	membership, err := h.tours.Leave(c.Request.Context(), id, userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(RealtimeEventTourMembership, 0, membership)
	c.JSON(http.StatusOK, membership)
}

// memberID reads the user joining or leaving a tour from the JSON body, the
// userID query parameter, or the session token, in that order. Zero lets the
// service report missing_fields.
func (h *httpHandler) memberID(c *gin.Context) (int64, bool) {
	var request membershipPayload
	if err := c.ShouldBindJSON(&request); err != nil && !errors.Is(err, io.EOF) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return 0, false
	}
	if userID := request.UserID.Int(); userID != 0 {
		return userID, true
	}
	if raw := strings.TrimSpace(c.Query("userID")); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_id"})
			return 0, false
		}
		return parsed, true
	}
	return h.viewerID(c), true
}

// optionalTime parses a tour time. Blank values stay zero so the service can
// report missing_fields.
func optionalTime(c *gin.Context, value string) (time.Time, bool) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, true
	}
	parsed, err := tours.ParseTime(value)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_time"})
		return time.Time{}, false
	}
	return parsed, true
}
