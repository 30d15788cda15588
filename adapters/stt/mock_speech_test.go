package stt

import (
	"context"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/prakoso/voicecoach/domain/repositories"
)

func TestMockRecognizerRequiresAudio(t *testing.T) {
	recognizer := NewMockRecognizer(zaptest.NewLogger(t))

	stream, err := recognizer.InitStreaming(context.Background(), repositories.AudioConfig{SampleRate: 16000})
	if err != nil {
		t.Fatalf("InitStreaming failed: %v", err)
	}

	if _, err := stream.End(); err == nil {
		t.Error("End without audio did not error")
	}
}

func TestMockRecognizerTranscribes(t *testing.T) {
	recognizer := NewMockRecognizer(zaptest.NewLogger(t))

	stream, err := recognizer.InitStreaming(context.Background(), repositories.AudioConfig{SampleRate: 16000})
	if err != nil {
		t.Fatalf("InitStreaming failed: %v", err)
	}

	if err := stream.Stream(make([]byte, 4096)); err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	transcript, err := stream.End()
	if err != nil {
		t.Fatalf("End failed: %v", err)
	}
	if transcript == "" {
		t.Error("empty transcript for non-empty audio")
	}
}
