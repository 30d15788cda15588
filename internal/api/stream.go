package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/prakoso/voicecoach/domain/entities"
	"github.com/prakoso/voicecoach/domain/repositories"
	"github.com/prakoso/voicecoach/usecase"
)

// handleChatStream relays one chat turn as a server-sent event stream. Each
// frame is `data: <json>\n\n`; the stream always closes with a stream_end
// event, also on upstream failure.
func (h *Handlers) handleChatStream(c echo.Context) error {
	var req ChatStreamRequest
	if err := c.Bind(&req); err != nil {
		h.logger.Warn("Failed to bind chat stream request", zap.Error(err))
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

	events, err := h.relay.Stream(c.Request().Context(), repositories.DialogueRequest{
		Query:          req.Message,
		ConversationID: req.ConversationID,
		User:           req.UserID,
	})
	if err != nil {
		if errors.Is(err, usecase.ErrEmptyQuery) {
			return c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_request",
				Message: "Message must not be empty",
			})
		}
		h.logger.Error("Failed to open relay stream", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to open stream",
		})
	}

	response := c.Response()
	response.Header().Set(echo.HeaderContentType, "text/event-stream")
	response.Header().Set("Cache-Control", "no-cache")
	response.Header().Set("Connection", "keep-alive")
	response.WriteHeader(http.StatusOK)

	for event := range events {
		if err := writeSSE(response, toStreamFrame(event)); err != nil {
			// Client went away; the relay read is cancelled through the
			// request context.
			h.logger.Debug("Downstream SSE write failed", zap.Error(err))
			return nil
		}
	}

	return nil
}

func toStreamFrame(event entities.StreamEvent) streamFrame {
	frame := streamFrame{Event: string(event.Type)}
	switch event.Type {
	case entities.StreamEventChunk:
		frame.Chunk = event.Chunk
		frame.ConversationID = event.ConversationID
		frame.MessageID = event.MessageID
	case entities.StreamEventComplete, entities.StreamEventEnd:
		frame.ConversationID = event.ConversationID
		frame.MessageID = event.MessageID
		frame.CompleteAnswer = event.CompleteAnswer
	case entities.StreamEventError:
		frame.Err = event.ErrMessage
		frame.Kind = string(event.ErrKind)
	}
	return frame
}

func writeSSE(response *echo.Response, frame streamFrame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(response, "data: %s\n\n", payload); err != nil {
		return err
	}
	response.Flush()
	return nil
}
