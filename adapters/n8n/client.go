package n8n

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/prakoso/voicecoach/domain/repositories"
)

const defaultTimeout = 60 * time.Second

// Config holds configuration for the n8n workflow webhook client.
// Required fields:
// - WebhookURL: the full webhook URL of the chat workflow
type Config struct {
	WebhookURL string
	Timeout    time.Duration
}

// NewConfigFromEnv creates a Config from environment variables.
func NewConfigFromEnv() Config {
	config := Config{
		WebhookURL: os.Getenv("N8N_WEBHOOK_URL"),
	}
	if timeoutStr := os.Getenv("N8N_TIMEOUT_SECONDS"); timeoutStr != "" {
		if seconds, err := strconv.Atoi(timeoutStr); err == nil && seconds > 0 {
			config.Timeout = time.Duration(seconds) * time.Second
		}
	}
	return config
}

// ValidateConfig validates the Config.
func ValidateConfig(config Config) error {
	if config.WebhookURL == "" {
		return fmt.Errorf("n8n webhook URL is required")
	}
	if config.Timeout < 0 {
		return fmt.Errorf("timeout must be positive, got %s", config.Timeout)
	}
	return nil
}

// Client implements the blocking ChatBackend interface against an n8n
// workflow webhook: the whole reply arrives in one JSON response.
type Client struct {
	webhookURL string
	httpClient *http.Client
	logger     *zap.Logger
}

var _ repositories.ChatBackend = (*Client)(nil)

// NewClient creates a new n8n webhook client.
func NewClient(config Config, logger *zap.Logger) (*Client, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
		logger.Info("Using default webhook timeout", zap.Duration("timeout", timeout))
	}

	return &Client{
		webhookURL: config.WebhookURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

type webhookRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
	User      string `json:"user"`
}

type webhookResponse struct {
	Output string `json:"output"`
	Text   string `json:"text"`
	Answer string `json:"answer"`
}

// Send posts one message to the workflow and returns the reply text. The
// workflow output field name varies between versions, so the known aliases
// are all tried.
func (c *Client) Send(ctx context.Context, req repositories.DialogueRequest) (string, error) {
	body, err := json.Marshal(webhookRequest{
		Message:   req.Query,
		SessionID: req.ConversationID,
		User:      req.User,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Error("Webhook returned non-2xx status",
			zap.Int("statusCode", resp.StatusCode),
			zap.ByteString("response", errorBody))
		return "", &repositories.UpstreamStatusError{Status: resp.StatusCode, Body: string(errorBody)}
	}

	var parsed webhookResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode webhook response: %w", err)
	}

	switch {
	case parsed.Output != "":
		return parsed.Output, nil
	case parsed.Text != "":
		return parsed.Text, nil
	case parsed.Answer != "":
		return parsed.Answer, nil
	default:
		return "", fmt.Errorf("webhook response carried no reply text")
	}
}
