package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/prakoso/voicecoach/domain/repositories"
)

// handleChat forwards one message to the blocking workflow webhook backend
// and returns the whole reply at once.
func (h *Handlers) handleChat(c echo.Context) error {
	if h.chatBackend == nil {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "backend_unavailable",
			Message: "No workflow backend is configured",
		})
	}

	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		h.logger.Warn("Failed to bind chat request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	if err := h.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: fmt.Sprintf("Invalid request: %v", err),
		})
	}

	if strings.TrimSpace(req.Message) == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Message must not be empty",
		})
	}

	reply, err := h.chatBackend.Send(c.Request().Context(), repositories.DialogueRequest{
		Query:          req.Message,
		ConversationID: req.SessionID,
		User:           req.UserID,
	})
	if err != nil {
		h.logger.Error("Workflow backend request failed", zap.Error(err))
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "backend_error",
			Message: "The AI backend did not produce a reply",
		})
	}

	return c.JSON(http.StatusOK, ChatResponse{
		Reply:     reply,
		SessionID: req.SessionID,
	})
}
