package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/ghostwatch/internal/apierr"
	"github.com/MarcoPoloResearchLab/ghostwatch/internal/comments"
	"github.com/MarcoPoloResearchLab/ghostwatch/internal/ghosts"
	"github.com/MarcoPoloResearchLab/ghostwatch/internal/sightings"
	"github.com/MarcoPoloResearchLab/ghostwatch/internal/tours"
	"github.com/MarcoPoloResearchLab/ghostwatch/internal/users"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	userIDContextKey          = "ghostwatch_user_id"
	defaultAuthRateLimitRPS   = 1.0
	defaultAuthRateLimitBurst = 5
)

var (
	errMissingHealthChecker = errors.New("health checker dependency required")
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingService       = errors.New("domain service dependencies required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// HealthChecker reports whether the database answers.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// TokenManager issues and validates session tokens for numeric user ids.
type TokenManager interface {
	IssueToken(ctx context.Context, userID int64) (string, int64, error)
	ValidateToken(token string) (int64, error)
}

// RateLimit configures the per-client limit on the account endpoints.
type RateLimit struct {
	RPS   float64
	Burst int
}

type Dependencies struct {
	Health           HealthChecker
	TokenManager     TokenManager
	Sightings        *sightings.Service
	Ghosts           *ghosts.Service
	SightingComments *comments.Service
	GhostComments    *comments.Service
	Users            *users.Service
	Tours            *tours.Service
	Realtime         *RealtimeDispatcher
	AllowedOrigins   []string
	AuthRateLimit    RateLimit
	Logger           *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Health == nil {
		return nil, errMissingHealthChecker
	}
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Sightings == nil || deps.Ghosts == nil || deps.SightingComments == nil ||
		deps.GhostComments == nil || deps.Users == nil || deps.Tours == nil {
		return nil, errMissingService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}
	limit := deps.AuthRateLimit
	if limit.RPS <= 0 {
		limit.RPS = defaultAuthRateLimitRPS
	}
	if limit.Burst <= 0 {
		limit.Burst = defaultAuthRateLimitBurst
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestID())
	router.Use(requestLogger(logger.Named("http")))
	router.Use(securityHeaders())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		health:           deps.Health,
		tokens:           deps.TokenManager,
		sightings:        deps.Sightings,
		ghosts:           deps.Ghosts,
		sightingComments: deps.SightingComments,
		ghostComments:    deps.GhostComments,
		users:            deps.Users,
		tours:            deps.Tours,
		realtime:         realtime,
		logger:           logger,
	}
	authLimiter := newIPRateLimiter(limit.RPS, limit.Burst)

	router.GET("/healthz", handler.handleHealth)

	api := router.Group("/api")
	api.GET("/sightings", handler.handleListSightings)
	api.POST("/sightings", handler.handleCreateSighting)
	api.GET("/sightings/:id", handler.handleGetSighting)
	api.GET("/sightings/:id/comments", handler.handleListComments(handler.sightingComments))
	api.POST("/sightings/:id/comments", handler.handleUpsertComment(handler.sightingComments))
	api.PUT("/sightings/:id/ghost-name", handler.handleRenameGhost)

	api.GET("/ghosts", handler.handleListGhosts)
	api.POST("/ghosts", handler.handleCreateGhost)
	api.GET("/ghosts/:id", handler.handleGetGhost)
	api.DELETE("/ghosts/:id", handler.authorizeRequest, handler.handleDeleteGhost)
	api.GET("/ghosts/:id/sightings", handler.handleGhostSightings)
	api.GET("/ghosts/:id/comments", handler.handleListComments(handler.ghostComments))
	api.POST("/ghosts/:id/comments", handler.handleUpsertComment(handler.ghostComments))

	api.POST("/register", authLimiter.middleware(logger), handler.handleRegister)
	api.POST("/login", authLimiter.middleware(logger), handler.handleLogin)

	api.GET("/users/:id", handler.handleGetUser)
	api.DELETE("/users/:id", handler.authorizeRequest, handler.handleDeleteUser)
	api.GET("/users/:id/ghost-buster", handler.handleGetBuster)
	api.PUT("/users/:id/ghost-buster", handler.handleSetBuster)
	api.GET("/users/:id/fights", handler.handleListFights)
	api.GET("/users/:id/fights/:ghostId", handler.handleGetFight)
	api.PUT("/users/:id/fights/:ghostId", handler.handleSetFight)

	api.GET("/tours", handler.handleListTours)
	api.POST("/tours", handler.handleCreateTour)
	api.GET("/tours/:id", handler.handleGetTour)
	api.GET("/tours/:id/ghosts", handler.handleTourGhosts)
	api.GET("/tours/:id/participants", handler.handleTourParticipants)
	api.POST("/tours/:id/join", handler.handleJoinTour)
	api.DELETE("/tours/:id/leave", handler.handleLeaveTour)

	api.GET("/events", handler.handleEventStream)
	api.GET("/ws", handler.handleWebSocket)

	return router, nil
}

type httpHandler struct {
	health           HealthChecker
	tokens           TokenManager
	sightings        *sightings.Service
	ghosts           *ghosts.Service
	sightingComments *comments.Service
	ghostComments    *comments.Service
	users            *users.Service
	tours            *tours.Service
	realtime         *RealtimeDispatcher
	logger           *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	if err := h.health.Ping(c.Request.Context()); err != nil {
		h.logger.Error("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// respondError writes the client-safe code for err. Internal causes are only
// logged.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	status := apierr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", c.GetString(requestIDContextKey)),
			zap.Error(err),
		)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": apierr.PublicCode(err)})
}

func (h *httpHandler) publish(eventType string, userID int64, payload any) {
	h.realtime.Publish(RealtimeMessage{UserID: userID, EventType: eventType, Payload: payload})
}

// pathID reads a positive integer path parameter, answering 400 otherwise.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(c.Param(name)), 10, 64)
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_id"})
		return 0, false
	}
	return id, true
}

func bindJSON(c *gin.Context, dest any) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return false
	}
	return true
}

// bearerToken reads the Authorization header, falling back to the
// access_token query parameter used by EventSource and WebSocket clients.
func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header != "" {
		if !strings.HasPrefix(header, "Bearer ") {
			return "", false
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		return token, token != ""
	}
	token := strings.TrimSpace(c.Query("access_token"))
	return token, token != ""
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token, ok := bearerToken(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	userID, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logTokenFailure(err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, userID)
	c.Next()
}

// viewerID identifies the caller when a valid token is present. Anonymous
// callers get zero.
func (h *httpHandler) viewerID(c *gin.Context) int64 {
	token, ok := bearerToken(c)
	if !ok {
		return 0
	}
	userID, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logTokenFailure(err)
		return 0
	}
	return userID
}

func (h *httpHandler) logTokenFailure(err error) {
	if errors.Is(err, jwt.ErrTokenExpired) {
		h.logger.Info("token validation failed", zap.Error(err))
		return
	}
	h.logger.Warn("token validation failed", zap.Error(err))
}

func authenticatedUser(c *gin.Context) int64 {
	value, ok := c.Get(userIDContextKey)
	if !ok {
		return 0
	}
	userID, _ := value.(int64)
	return userID
}
