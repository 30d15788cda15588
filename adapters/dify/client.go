package dify

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/prakoso/voicecoach/domain/repositories"
)

const (
	defaultChatEndpoint   = "/v1/chat-messages"
	defaultConnectTimeout = 30 * time.Second
	// Frames are single JSON lines; 1MB leaves generous headroom for long answers.
	maxFrameSize = 1 << 20

	dataPrefix            = "data: "
	doneSentinel          = "[DONE]"
	responseModeStreaming = "streaming"
)

// Config holds configuration for the Dify streaming client.
// Required fields:
// - BaseURL: the Dify API origin, e.g. "https://api.dify.ai"
// - APIKey: the application API key
type Config struct {
	BaseURL        string
	APIKey         string
	ConnectTimeout time.Duration
}

// NewConfigFromEnv creates a Config from environment variables.
func NewConfigFromEnv() Config {
	config := Config{
		BaseURL: os.Getenv("DIFY_BASE_URL"),
		APIKey:  os.Getenv("DIFY_API_KEY"),
	}

	if timeoutStr := os.Getenv("DIFY_CONNECT_TIMEOUT_SECONDS"); timeoutStr != "" {
		if seconds, err := strconv.Atoi(timeoutStr); err == nil && seconds > 0 {
			config.ConnectTimeout = time.Duration(seconds) * time.Second
		}
	}

	return config
}

// ValidateConfig validates the Config.
func ValidateConfig(config Config) error {
	if config.BaseURL == "" {
		return fmt.Errorf("dify base URL is required")
	}
	if config.APIKey == "" {
		return fmt.Errorf("dify API key is required")
	}
	if config.ConnectTimeout < 0 {
		return fmt.Errorf("connect timeout must be positive, got %s", config.ConnectTimeout)
	}
	return nil
}

// Client implements the DialogueBackend interface against the Dify
// chat-messages streaming API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

var _ repositories.DialogueBackend = (*Client)(nil)

// NewClient creates a new Dify streaming client.
func NewClient(config Config, logger *zap.Logger) (*Client, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}

	connectTimeout := config.ConnectTimeout
	if connectTimeout == 0 {
		connectTimeout = defaultConnectTimeout
		logger.Info("Using default connect timeout", zap.Duration("connectTimeout", connectTimeout))
	}

	// No overall client timeout: the response body is a long-lived stream.
	// The connect ceiling lives in the transport; reads are bounded by ctx.
	transport := &http.Transport{
		ResponseHeaderTimeout: connectTimeout,
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		apiKey:     config.APIKey,
		httpClient: &http.Client{Transport: transport},
		logger:     logger,
	}, nil
}

// upstreamFrame mirrors the JSON payload of one upstream `data:` line.
type upstreamFrame struct {
	Event          string `json:"event"`
	Answer         string `json:"answer,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
	Data           string `json:"data,omitempty"`
	Message        string `json:"message,omitempty"`
}

type chatMessagesRequest struct {
	Query          string         `json:"query"`
	ResponseMode   string         `json:"response_mode"`
	User           string         `json:"user"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Inputs         map[string]any `json:"inputs"`
}

// OpenStream opens one streaming exchange with the Dify API. Transport
// failures and non-2xx responses are returned synchronously; after that the
// returned channel carries frames until the upstream connection closes.
func (c *Client) OpenStream(ctx context.Context, req repositories.DialogueRequest) (repositories.DialogueStream, error) {
	body, err := json.Marshal(chatMessagesRequest{
		Query:          req.Query,
		ResponseMode:   responseModeStreaming,
		User:           req.User,
		ConversationID: req.ConversationID,
		Inputs:         map[string]any{},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+defaultChatEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	c.logger.Debug("Opening upstream dialogue stream",
		zap.String("user", req.User),
		zap.String("conversationID", req.ConversationID))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		c.logger.Error("Upstream returned non-2xx status",
			zap.Int("statusCode", resp.StatusCode),
			zap.ByteString("response", errorBody))
		return nil, &repositories.UpstreamStatusError{Status: resp.StatusCode, Body: string(errorBody)}
	}

	frames := make(chan repositories.DialogueFrame, 16)
	go c.readFrames(ctx, resp.Body, frames)
	return frames, nil
}

// readFrames is the sole reader of the upstream body. It parses one frame per
// `data:` line and closes the channel when the connection closes.
func (c *Client) readFrames(ctx context.Context, body io.ReadCloser, frames chan<- repositories.DialogueFrame) {
	defer close(frames)
	defer body.Close()

	// Close the body when ctx is cancelled so the blocked scanner read
	// returns and no upstream connection is orphaned.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			body.Close()
		case <-done:
		}
	}()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxFrameSize)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, dataPrefix) {
			c.logger.Debug("Skipping non-data line", zap.String("line", line))
			continue
		}

		payload := strings.TrimPrefix(line, dataPrefix)
		if payload == doneSentinel {
			return
		}

		var frame upstreamFrame
		if err := json.Unmarshal([]byte(payload), &frame); err != nil {
			// A single corrupt frame must not kill a healthy stream.
			c.logger.Warn("Skipping malformed upstream frame", zap.Error(err))
			continue
		}

		select {
		case frames <- normalizeFrame(frame):
		case <-ctx.Done():
			return
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		c.logger.Warn("Upstream stream read ended with error", zap.Error(err))
	}
}

// normalizeFrame maps the duck-typed upstream event into the closed frame
// union. Unknown event values become a no-op frame, never an error.
func normalizeFrame(frame upstreamFrame) repositories.DialogueFrame {
	switch frame.Event {
	case "message", "agent_message":
		return repositories.DialogueFrame{
			Kind:           repositories.FrameAnswer,
			Answer:         frame.Answer,
			ConversationID: frame.ConversationID,
			MessageID:      frame.MessageID,
		}
	case "message_end":
		return repositories.DialogueFrame{
			Kind:           repositories.FrameMessageEnd,
			ConversationID: frame.ConversationID,
			MessageID:      frame.MessageID,
		}
	case "error":
		message := frame.Message
		if message == "" {
			message = frame.Data
		}
		return repositories.DialogueFrame{
			Kind:       repositories.FrameError,
			ErrMessage: message,
		}
	default:
		return repositories.DialogueFrame{Kind: repositories.FrameNoop}
	}
}
