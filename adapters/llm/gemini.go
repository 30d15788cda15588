package llm

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/prakoso/voicecoach/domain/repositories"
)

const (
	defaultModel        = "gemini-2.0-flash"
	defaultSystemPrompt = "你是一名资深保险培训教练，负责陪练新人销售话术。回答要简洁、口语化，适合朗读。"
)

// GeminiConfig holds configuration for the direct Gemini dialogue backend.
// Required fields:
// - APIKey: the Google AI API key
// Optional fields with defaults:
// - Model: the model name (default: "gemini-2.0-flash")
// - SystemPrompt: the coaching persona prompt
type GeminiConfig struct {
	APIKey       string
	Model        string
	SystemPrompt string
}

// NewGeminiConfigFromEnv creates a GeminiConfig from environment variables.
func NewGeminiConfigFromEnv() GeminiConfig {
	return GeminiConfig{
		APIKey:       os.Getenv("GEMINI_API_KEY"),
		Model:        os.Getenv("GEMINI_MODEL"),
		SystemPrompt: os.Getenv("GEMINI_SYSTEM_PROMPT"),
	}
}

// ValidateGeminiConfig validates the GeminiConfig.
func ValidateGeminiConfig(config GeminiConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("Google AI API key is required")
	}
	return nil
}

// GeminiBackend implements the DialogueBackend interface directly against the
// Gemini API. It serves deployments without a Dify endpoint; the relay treats
// both backends identically.
type GeminiBackend struct {
	client       *genai.Client
	model        string
	systemPrompt string
	logger       *zap.Logger
}

var _ repositories.DialogueBackend = (*GeminiBackend)(nil)

// NewGeminiBackend creates a new direct Gemini dialogue backend.
func NewGeminiBackend(ctx context.Context, config GeminiConfig, logger *zap.Logger) (*GeminiBackend, error) {
	if err := ValidateGeminiConfig(config); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := config.Model
	if model == "" {
		model = defaultModel
		logger.Info("Using default model", zap.String("model", model))
	}

	systemPrompt := config.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}

	return &GeminiBackend{
		client:       client,
		model:        model,
		systemPrompt: systemPrompt,
		logger:       logger,
	}, nil
}

// OpenStream starts one streaming generation and adapts its deltas to
// dialogue frames. Gemini has no server-side conversation ids, so one is
// assigned here and echoed back to the caller.
func (g *GeminiBackend) OpenStream(ctx context.Context, req repositories.DialogueRequest) (repositories.DialogueStream, error) {
	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	messageID := uuid.NewString()

	contents := []*genai.Content{
		genai.NewContentFromText(g.systemPrompt, genai.RoleUser),
		genai.NewContentFromText(req.Query, genai.RoleUser),
	}

	frames := make(chan repositories.DialogueFrame, 16)

	go func() {
		defer close(frames)

		send := func(frame repositories.DialogueFrame) bool {
			select {
			case frames <- frame:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, contents, nil) {
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				g.logger.Error("Gemini stream failed", zap.Error(err))
				send(repositories.DialogueFrame{
					Kind:       repositories.FrameError,
					ErrMessage: err.Error(),
				})
				return
			}

			text := resp.Text()
			if text == "" {
				continue
			}
			if !send(repositories.DialogueFrame{
				Kind:           repositories.FrameAnswer,
				Answer:         text,
				ConversationID: conversationID,
				MessageID:      messageID,
			}) {
				return
			}
		}

		send(repositories.DialogueFrame{
			Kind:           repositories.FrameMessageEnd,
			ConversationID: conversationID,
			MessageID:      messageID,
		})
	}()

	return frames, nil
}
