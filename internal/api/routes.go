package api

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/prakoso/voicecoach/domain/repositories"
	"github.com/prakoso/voicecoach/internal/auth"
	"github.com/prakoso/voicecoach/internal/websocket"
	"github.com/prakoso/voicecoach/usecase"
)

// Handlers bundles the dependencies of the HTTP API.
type Handlers struct {
	relay       *usecase.Relay
	chatBackend repositories.ChatBackend
	synthesizer repositories.SpeechSynthesizer
	validate    *validator.Validate
	logger      *zap.Logger
}

// NewHandlers creates the API handler set. chatBackend may be nil when no
// workflow webhook is configured; the blocking endpoint then reports 503.
func NewHandlers(
	relay *usecase.Relay,
	chatBackend repositories.ChatBackend,
	synthesizer repositories.SpeechSynthesizer,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		relay:       relay,
		chatBackend: chatBackend,
		synthesizer: synthesizer,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      logger,
	}
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, h *Handlers, hub *websocket.Hub, logger *zap.Logger) {
	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "voicecoach-server",
		})
	})

	v1 := e.Group("/api/v1")

	v1.POST("/chat/stream", h.handleChatStream)
	v1.POST("/chat", h.handleChat)
	v1.POST("/tts", h.handleSynthesize)

	// WebSocket voice session with JWT validation
	e.GET("/ws", func(c echo.Context) error {
		return websocketWithAuth(hub, c, logger)
	})
}

// websocketWithAuth handles WebSocket connections with JWT authentication
func websocketWithAuth(hub *websocket.Hub, c echo.Context, logger *zap.Logger) error {
	var token string
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader != "" && len(authHeader) > 7 && authHeader[:7] == "Bearer " {
		token = authHeader[7:]
	}
	if token == "" {
		// Browser WebSocket clients cannot set headers; accept a query token.
		token = c.QueryParam("token")
	}

	if token == "" {
		logger.Warn("WebSocket connection rejected: missing token")
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "missing_token",
			Message: "JWT token is required",
		})
	}

	claims, err := auth.ValidateToken(token)
	if err != nil {
		logger.Warn("WebSocket connection rejected: invalid token", zap.Error(err))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_token",
			Message: "Invalid or expired JWT token",
		})
	}

	if claims.UserID == "" {
		logger.Error("WebSocket connection rejected: missing user ID in token")
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_token_claims",
			Message: "User ID not found in token",
		})
	}

	logger.Info("WebSocket connection authenticated",
		zap.String("user_id", claims.UserID),
		zap.String("role", claims.Role))

	return websocket.HandleWebSocketWithAuth(hub, c, claims.UserID, logger)
}
