package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"mojochat/internal/auth"
	"mojochat/internal/blob"
	"mojochat/internal/events"
	"mojochat/internal/service/ai"
	"mojochat/internal/service/assistant"
)

// Dependencies are the process-wide clients a Handler serves requests with.
type Dependencies struct {
	Assistant     *assistant.Service
	Auth          *auth.Service
	AI            ai.ChatStreamer
	Blobs         blob.Store
	Events        events.Publisher
	Logger        *zap.Logger
	FilesDir      string
	StreamTimeout time.Duration
}

// Handler wires HTTP routes to the assistant service and the generation provider.
type Handler struct {
	assistant     *assistant.Service
	auth          *auth.Service
	ai            ai.ChatStreamer
	blobs         blob.Store
	events        events.Publisher
	logger        *zap.Logger
	filesDir      string
	streamTimeout time.Duration
}

// NewHandler constructs a Handler instance.
func NewHandler(deps Dependencies) *Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Events == nil {
		deps.Events = events.Nop{}
	}
	if deps.StreamTimeout <= 0 {
		deps.StreamTimeout = 2 * time.Minute
	}
	return &Handler{
		assistant:     deps.Assistant,
		auth:          deps.Auth,
		ai:            deps.AI,
		blobs:         deps.Blobs,
		events:        deps.Events,
		logger:        deps.Logger,
		filesDir:      deps.FilesDir,
		streamTimeout: deps.StreamTimeout,
	}
}

// RegisterRoutes attaches all HTTP routes to the router. apiMiddleware runs
// ahead of every /api route, before authentication.
func (h *Handler) RegisterRoutes(router *gin.Engine, apiMiddleware ...gin.HandlerFunc) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if h.filesDir != "" {
		router.Static("/files", h.filesDir)
	}

	api := router.Group("/api", apiMiddleware...)
	api.POST("/auth/register", h.registerUser)
	api.POST("/auth/login", h.loginUser)

	protected := api.Group("", auth.Middleware(h.auth))
	protected.POST("/chat", h.submitTurn)
	protected.GET("/chat", h.getChat)
	protected.DELETE("/chat", h.deleteChat)
	protected.GET("/history", h.listHistory)
	protected.POST("/files/upload", h.uploadFile)
	protected.POST("/reservation", h.createReservation)
	protected.GET("/reservation", h.getReservation)
	protected.PATCH("/reservation", h.updateReservation)
}

func (h *Handler) authorizedUserID(c *gin.Context) (string, bool) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": auth.ErrUnauthorized.Error()})
		return "", false
	}
	return userID, true
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) registerUser(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.assistant.RegisterUser(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, assistant.ErrEmailTaken):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, assistant.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.internalError(c, "register user failed", err)
		}
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":         user.ID,
		"email":      user.Email,
		"created_at": user.CreatedAt,
	})
}

func (h *Handler) loginUser(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.assistant.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, assistant.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		h.internalError(c, "login failed", err)
		return
	}
	token, expiresAt, err := h.auth.IssueToken(user.ID)
	if err != nil {
		h.internalError(c, "issue token failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":         user.ID,
		"email":      user.Email,
		"token":      token,
		"expires_at": expiresAt,
	})
}

// internalError logs the cause and answers with a generic 500.
func (h *Handler) internalError(c *gin.Context, msg string, err error) {
	h.logger.Error(msg, zap.String("path", c.FullPath()), zap.Error(err))
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}
