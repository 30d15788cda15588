package tts

import (
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
	defaultAPIBaseURL       = "https://api.elevenlabs.io/v1"
	defaultVoiceID          = "21m00Tcm4TlvDq8ikWAM" // Rachel voice
	defaultElevenLabsFormat = "mp3_44100_128"
	defaultModelID          = "eleven_multilingual_v2"
	defaultStability        = 0.5
	defaultClarity          = 0.75
)

// ElevenLabsConfig holds configuration for the ElevenLabsTTS adapter.
// Required fields:
// - APIKey: the Eleven Labs API key
// Optional fields with defaults:
// - APIBaseURL: the API origin (default: "https://api.elevenlabs.io/v1")
// - VoiceID: the voice to use (default: Rachel)
// - ModelID: the model to use (default: "eleven_multilingual_v2")
// - OutputFormat: the audio output format (default: "mp3_44100_128")
// - Stability / Clarity: voice settings in [0,1]
type ElevenLabsConfig struct {
	APIKey       string
	APIBaseURL   string
	VoiceID      string
	ModelID      string
	OutputFormat string
	Stability    float64
	Clarity      float64
}

// NewElevenLabsConfigFromEnv creates an ElevenLabsConfig from environment variables.
func NewElevenLabsConfigFromEnv() ElevenLabsConfig {
	config := ElevenLabsConfig{
		APIKey:       os.Getenv("ELEVEN_LABS_API_KEY"),
		APIBaseURL:   os.Getenv("ELEVEN_LABS_API_BASE_URL"),
		VoiceID:      os.Getenv("ELEVEN_LABS_VOICE_ID"),
		ModelID:      os.Getenv("ELEVEN_LABS_MODEL_ID"),
		OutputFormat: os.Getenv("ELEVEN_LABS_OUTPUT_FORMAT"),
	}

	if stabilityStr := os.Getenv("ELEVEN_LABS_STABILITY"); stabilityStr != "" {
		if stability, err := strconv.ParseFloat(stabilityStr, 64); err == nil && stability >= 0 && stability <= 1 {
			config.Stability = stability
		}
	}
	if clarityStr := os.Getenv("ELEVEN_LABS_CLARITY"); clarityStr != "" {
		if clarity, err := strconv.ParseFloat(clarityStr, 64); err == nil && clarity >= 0 && clarity <= 1 {
			config.Clarity = clarity
		}
	}

	return config
}

// ValidateElevenLabsConfig validates the ElevenLabsConfig.
func ValidateElevenLabsConfig(config ElevenLabsConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("eleven labs API key is required")
	}
	if config.Stability != 0 && (config.Stability < 0 || config.Stability > 1) {
		return fmt.Errorf("stability must be between 0 and 1, got %f", config.Stability)
	}
	if config.Clarity != 0 && (config.Clarity < 0 || config.Clarity > 1) {
		return fmt.Errorf("clarity must be between 0 and 1, got %f", config.Clarity)
	}
	return nil
}

// ElevenLabsTTS implements the SpeechSynthesizer interface using the Eleven
// Labs API. It is the alternative to Azure for non-Chinese voices.
type ElevenLabsTTS struct {
	apiKey       string
	apiBaseURL   string
	voiceID      string
	modelID      string
	outputFormat string
	stability    float64
	clarity      float64
	httpClient   *http.Client
	logger       *zap.Logger
}

var _ repositories.SpeechSynthesizer = (*ElevenLabsTTS)(nil)

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type elevenLabsRequest struct {
	Text          string                  `json:"text"`
	ModelID       string                  `json:"model_id"`
	VoiceSettings elevenLabsVoiceSettings `json:"voice_settings"`
}

// NewElevenLabsTTS creates a new Eleven Labs TTS instance.
func NewElevenLabsTTS(config ElevenLabsConfig, logger *zap.Logger) (*ElevenLabsTTS, error) {
	if err := ValidateElevenLabsConfig(config); err != nil {
		return nil, err
	}

	apiBaseURL := config.APIBaseURL
	if apiBaseURL == "" {
		apiBaseURL = defaultAPIBaseURL
	}

	voiceID := config.VoiceID
	if voiceID == "" {
		voiceID = defaultVoiceID
		logger.Info("Using default voice ID", zap.String("voiceID", voiceID))
	}

	modelID := config.ModelID
	if modelID == "" {
		modelID = defaultModelID
	}

	outputFormat := config.OutputFormat
	if outputFormat == "" {
		outputFormat = defaultElevenLabsFormat
	}

	stability := config.Stability
	if stability == 0 {
		stability = defaultStability
	}
	clarity := config.Clarity
	if clarity == 0 {
		clarity = defaultClarity
	}

	return &ElevenLabsTTS{
		apiKey:       config.APIKey,
		apiBaseURL:   strings.TrimRight(apiBaseURL, "/"),
		voiceID:      voiceID,
		modelID:      modelID,
		outputFormat: outputFormat,
		stability:    stability,
		clarity:      clarity,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		logger:       logger,
	}, nil
}

// Synthesize converts one text unit to audio bytes. The Voice option, when
// set, names an Eleven Labs voice ID.
func (e *ElevenLabsTTS) Synthesize(ctx context.Context, text string, opts repositories.SynthesisOptions) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	voiceID := e.voiceID
	if opts.Voice != "" {
		voiceID = opts.Voice
	}

	body, err := json.Marshal(elevenLabsRequest{
		Text:    text,
		ModelID: e.modelID,
		VoiceSettings: elevenLabsVoiceSettings{
			Stability:       e.stability,
			SimilarityBoost: e.clarity,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/text-to-speech/%s?output_format=%s", e.apiBaseURL, voiceID, e.outputFormat)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")
	httpReq.Header.Set("xi-api-key", e.apiKey)

	e.logger.Debug("Sending synthesis request",
		zap.String("voiceID", voiceID),
		zap.Int("textLength", len(text)))

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("synthesis request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("synthesis failed with status %d: %s", resp.StatusCode, errorBody)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio response: %w", err)
	}

	e.logger.Debug("Synthesis completed", zap.Int("audioBytes", len(audio)))
	return audio, nil
}
