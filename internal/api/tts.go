package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/prakoso/voicecoach/domain/repositories"
)

// handleSynthesize proxies one text-to-speech request and returns raw audio
// bytes on success or a JSON error object on failure.
func (h *Handlers) handleSynthesize(c echo.Context) error {
	if h.synthesizer == nil {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "tts_unavailable",
			Message: "No speech synthesizer is configured",
		})
	}

	var req SynthesizeRequest
	if err := c.Bind(&req); err != nil {
		h.logger.Warn("Failed to bind synthesis request", zap.Error(err))
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

	audio, err := h.synthesizer.Synthesize(c.Request().Context(), req.Text, repositories.SynthesisOptions{
		Voice: req.Voice,
		Rate:  req.Rate,
		Pitch: req.Pitch,
	})
	if err != nil {
		h.logger.Error("Speech synthesis failed", zap.Error(err))
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "synthesis_failed",
			Message: "Speech synthesis failed",
		})
	}

	return c.Blob(http.StatusOK, "audio/mpeg", audio)
}
