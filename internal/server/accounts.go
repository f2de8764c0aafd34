package server

import (
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/ghostwatch/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request registerPayload
	if !bindJSON(c, &request) {
		return
	}
	profile, err := h.users.Register(c.Request.Context(), users.RegisterRequest{
		Username: request.Username,
		Email:    request.Email,
		Password: request.Password,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, profile)
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginPayload
	if !bindJSON(c, &request) {
		return
	}
	login := request.identifier()
	if login == "" || strings.TrimSpace(request.Password) == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing_fields"})
		return
	}

	profile, err := h.users.Authenticate(c.Request.Context(), login, request.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}
	token, expiresIn, err := h.tokens.IssueToken(c.Request.Context(), profile.ID)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Int64("user_id", profile.ID), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}
	c.JSON(http.StatusOK, loginResponsePayload{
		User:        profile,
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

func (h *httpHandler) handleGetUser(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	profile, err := h.users.Profile(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// handleDeleteUser removes an account and everything it owns. Only the account
// holder may do so.
func (h *httpHandler) handleDeleteUser(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if authenticatedUser(c) != id {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	if err := h.users.Delete(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	h.logger.Info("user deleted", zap.Int64("user_id", id))
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleGetBuster(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	status, err := h.users.BusterStatus(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *httpHandler) handleSetBuster(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var request busterPayload
	if !bindJSON(c, &request) {
		return
	}
	if request.GhostBuster == nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing_fields"})
		return
	}
	status, err := h.users.SetBuster(c.Request.Context(), id, *request.GhostBuster, request.Alias)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(RealtimeEventBusterChanged, id, status)
	c.JSON(http.StatusOK, status)
}

func (h *httpHandler) handleListFights(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	fights, err := h.users.ListFights(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, fights)
}

func (h *httpHandler) handleGetFight(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}
	ghostID, ok := pathID(c, "ghostId")
	if !ok {
		return
	}
	state, err := h.users.Fighting(c.Request.Context(), userID, ghostID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// handleSetFight starts or abandons a fight with {"fighting": bool}, or ends
// one in a bust with {"busted": true}.
func (h *httpHandler) handleSetFight(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}
	ghostID, ok := pathID(c, "ghostId")
	if !ok {
		return
	}
	var request fightPayload
	if !bindJSON(c, &request) {
		return
	}

	if request.Busted {
		status, err := h.users.Bust(c.Request.Context(), userID, ghostID)
		if err != nil {
			h.respondError(c, err)
			return
		}
		response := gin.H{
			"userID":       userID,
			"ghostId":      ghostID,
			"fighting":     false,
			"busted":       true,
			"ghostsBusted": status.GhostsBusted,
		}
		h.publish(RealtimeEventFightChanged, userID, response)
		c.JSON(http.StatusOK, response)
		return
	}

	if request.Fighting == nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing_fields"})
		return
	}
	state, err := h.users.SetFighting(c.Request.Context(), userID, ghostID, *request.Fighting)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(RealtimeEventFightChanged, userID, state)
	c.JSON(http.StatusOK, state)
}
