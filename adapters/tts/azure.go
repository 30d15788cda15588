package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/prakoso/voicecoach/domain/repositories"
)

const (
	defaultVoice        = "zh-CN-XiaoxiaoNeural"
	defaultRate         = "0%"
	defaultPitch        = "0%"
	defaultOutputFormat = "audio-16khz-32kbitrate-mono-mp3"
	defaultTimeout      = 30 * time.Second

	tokenPath     = "/sts/v1.0/issueToken"
	synthesisPath = "/cognitiveservices/v1"
)

// AzureConfig holds configuration for the AzureTTS adapter.
// Required fields:
// - Region: the Azure speech region, e.g. "eastasia"
// - SubscriptionKey: the Azure speech subscription key
// Optional fields with defaults:
// - Voice: the neural voice name (default: "zh-CN-XiaoxiaoNeural")
// - Rate / Pitch: prosody adjustments (default: "0%")
// - OutputFormat: the audio output format (default: 16khz mono mp3)
type AzureConfig struct {
	Region          string
	SubscriptionKey string
	Voice           string
	Rate            string
	Pitch           string
	OutputFormat    string
}

// NewAzureConfigFromEnv creates an AzureConfig from environment variables.
func NewAzureConfigFromEnv() AzureConfig {
	return AzureConfig{
		Region:          os.Getenv("AZURE_SPEECH_REGION"),
		SubscriptionKey: os.Getenv("AZURE_SPEECH_KEY"),
		Voice:           os.Getenv("AZURE_SPEECH_VOICE"),
		Rate:            os.Getenv("AZURE_SPEECH_RATE"),
		Pitch:           os.Getenv("AZURE_SPEECH_PITCH"),
		OutputFormat:    os.Getenv("AZURE_SPEECH_OUTPUT_FORMAT"),
	}
}

// ValidateAzureConfig validates the AzureConfig.
func ValidateAzureConfig(config AzureConfig) error {
	if config.Region == "" {
		return fmt.Errorf("azure speech region is required")
	}
	if config.SubscriptionKey == "" {
		return fmt.Errorf("azure speech subscription key is required")
	}
	return nil
}

// AzureTTS implements the SpeechSynthesizer interface using the Azure
// cognitive services speech REST API.
type AzureTTS struct {
	endpoint        string
	subscriptionKey string
	voice           string
	rate            string
	pitch           string
	outputFormat    string
	httpClient      *http.Client
	logger          *zap.Logger
}

var _ repositories.SpeechSynthesizer = (*AzureTTS)(nil)

// NewAzureTTS creates a new Azure TTS instance.
func NewAzureTTS(config AzureConfig, logger *zap.Logger) (*AzureTTS, error) {
	if err := ValidateAzureConfig(config); err != nil {
		return nil, err
	}

	voice := config.Voice
	if voice == "" {
		voice = defaultVoice
		logger.Info("Using default voice", zap.String("voice", voice))
	}

	rate := config.Rate
	if rate == "" {
		rate = defaultRate
	}

	pitch := config.Pitch
	if pitch == "" {
		pitch = defaultPitch
	}

	outputFormat := config.OutputFormat
	if outputFormat == "" {
		outputFormat = defaultOutputFormat
		logger.Info("Using default output format", zap.String("outputFormat", outputFormat))
	}

	return &AzureTTS{
		endpoint:        fmt.Sprintf("https://%s.tts.speech.microsoft.com", config.Region),
		subscriptionKey: config.SubscriptionKey,
		voice:           voice,
		rate:            rate,
		pitch:           pitch,
		outputFormat:    outputFormat,
		httpClient:      &http.Client{Timeout: defaultTimeout},
		logger:          logger,
	}, nil
}

// SetEndpoint overrides the synthesis endpoint. Intended for tests.
func (a *AzureTTS) SetEndpoint(endpoint string) {
	a.endpoint = endpoint
}

// Synthesize converts one text unit to audio bytes. Failures carry the
// upstream JSON error detail when the service provides one.
func (a *AzureTTS) Synthesize(ctx context.Context, text string, opts repositories.SynthesisOptions) ([]byte, error) {
	if text == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	voice := a.voice
	if opts.Voice != "" {
		voice = opts.Voice
	}
	rate := a.rate
	if opts.Rate != "" {
		rate = opts.Rate
	}
	pitch := a.pitch
	if opts.Pitch != "" {
		pitch = opts.Pitch
	}

	ssml := buildSSML(text, voice, rate, pitch)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint+synthesisPath, bytes.NewBufferString(ssml))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/ssml+xml")
	httpReq.Header.Set("X-Microsoft-OutputFormat", a.outputFormat)
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", a.subscriptionKey)

	a.logger.Debug("Sending synthesis request",
		zap.String("voice", voice),
		zap.Int("textLength", len(text)))

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("synthesis request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var detail struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(errorBody, &detail) == nil && detail.Error.Message != "" {
			return nil, fmt.Errorf("synthesis failed with status %d: %s", resp.StatusCode, detail.Error.Message)
		}
		return nil, fmt.Errorf("synthesis failed with status %d", resp.StatusCode)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio response: %w", err)
	}

	a.logger.Debug("Synthesis completed", zap.Int("audioBytes", len(audio)))
	return audio, nil
}

// buildSSML renders the SSML body for one synthesis request.
func buildSSML(text, voice, rate, pitch string) string {
	return fmt.Sprintf(
		`<speak version='1.0' xml:lang='zh-CN'><voice name='%s'><prosody rate='%s' pitch='%s'>%s</prosody></voice></speak>`,
		voice, rate, pitch, escapeXML(text))
}

func escapeXML(s string) string {
	var b bytes.Buffer
	for _, r := range s {
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '\'':
			b.WriteString("&apos;")
		case '"':
			b.WriteString("&quot;")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
