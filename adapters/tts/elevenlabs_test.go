package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/prakoso/voicecoach/domain/repositories"
)

func TestNewElevenLabsTTS(t *testing.T) {
	logger := zaptest.NewLogger(t)

	if _, err := NewElevenLabsTTS(ElevenLabsConfig{}, logger); err == nil {
		t.Error("missing API key accepted")
	}

	tts, err := NewElevenLabsTTS(ElevenLabsConfig{APIKey: "test-api-key"}, logger)
	if err != nil {
		t.Fatalf("NewElevenLabsTTS failed: %v", err)
	}
	if tts.voiceID != defaultVoiceID {
		t.Errorf("expected default voice ID %q, got %q", defaultVoiceID, tts.voiceID)
	}
	if tts.stability != defaultStability || tts.clarity != defaultClarity {
		t.Errorf("voice settings defaults not applied: %f / %f", tts.stability, tts.clarity)
	}
}

func TestNewElevenLabsConfigFromEnv(t *testing.T) {
	t.Setenv("ELEVEN_LABS_API_KEY", "env-key")
	t.Setenv("ELEVEN_LABS_VOICE_ID", "voice-9")
	t.Setenv("ELEVEN_LABS_STABILITY", "0.8")

	config := NewElevenLabsConfigFromEnv()
	if config.APIKey != "env-key" || config.VoiceID != "voice-9" {
		t.Errorf("env fields lost: %+v", config)
	}
	if config.Stability != 0.8 {
		t.Errorf("stability not parsed: %f", config.Stability)
	}
}

func TestElevenLabsSynthesize(t *testing.T) {
	var gotPath string
	var gotRequest elevenLabsRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if key := r.Header.Get("xi-api-key"); key != "test-api-key" {
			t.Errorf("unexpected API key header %q", key)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotRequest); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		w.Write([]byte("mp3-bytes"))
	}))
	defer server.Close()

	tts, err := NewElevenLabsTTS(ElevenLabsConfig{
		APIKey:     "test-api-key",
		APIBaseURL: server.URL,
	}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewElevenLabsTTS failed: %v", err)
	}

	audio, err := tts.Synthesize(context.Background(), "Hello there", repositories.SynthesisOptions{Voice: "voice-override"})
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}

	if !bytes.Equal(audio, []byte("mp3-bytes")) {
		t.Errorf("unexpected audio payload %q", audio)
	}
	if !strings.Contains(gotPath, "/text-to-speech/voice-override") {
		t.Errorf("voice override not applied to path %q", gotPath)
	}
	if gotRequest.Text != "Hello there" {
		t.Errorf("request text lost: %+v", gotRequest)
	}
}

func TestElevenLabsSynthesizeErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"invalid api key"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	tts, err := NewElevenLabsTTS(ElevenLabsConfig{APIKey: "bad-key", APIBaseURL: server.URL}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewElevenLabsTTS failed: %v", err)
	}

	if _, err := tts.Synthesize(context.Background(), "text", repositories.SynthesisOptions{}); err == nil {
		t.Error("401 response did not error")
	}

	if _, err := tts.Synthesize(context.Background(), "   ", repositories.SynthesisOptions{}); err == nil {
		t.Error("whitespace-only text accepted")
	}
}
