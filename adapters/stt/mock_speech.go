package stt

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/prakoso/voicecoach/domain/repositories"
)

// MockRecognizer is a placeholder recognizer for local development without
// cloud credentials. The transcript depends on how much audio arrived.
type MockRecognizer struct {
	logger *zap.Logger
}

var _ repositories.SpeechRecognizer = (*MockRecognizer)(nil)

// NewMockRecognizer creates a new mock recognizer.
func NewMockRecognizer(logger *zap.Logger) *MockRecognizer {
	return &MockRecognizer{logger: logger}
}

// InitStreaming creates a new mock recognition session.
func (m *MockRecognizer) InitStreaming(ctx context.Context, config repositories.AudioConfig) (repositories.RecognitionStream, error) {
	m.logger.Info("Initializing mock recognition stream",
		zap.Int("sampleRate", config.SampleRate),
		zap.String("encoding", config.Encoding),
		zap.String("language", config.Language))

	return &mockRecognitionStream{logger: m.logger}, nil
}

type mockRecognitionStream struct {
	logger     *zap.Logger
	totalBytes int
}

func (m *mockRecognitionStream) Stream(data []byte) error {
	m.totalBytes += len(data)
	return nil
}

func (m *mockRecognitionStream) End() (string, error) {
	if m.totalBytes == 0 {
		return "", fmt.Errorf("no audio data received")
	}

	var transcript string
	switch {
	case m.totalBytes > 100000:
		transcript = "请帮我讲解一下重疾险和医疗险的区别，客户经常会问到这个问题。"
	case m.totalBytes > 20000:
		transcript = "客户说保费太贵了，我应该怎么回应？"
	default:
		transcript = "你好"
	}

	m.logger.Info("Mock recognition completed",
		zap.Int("totalBytes", m.totalBytes),
		zap.String("transcript", transcript))
	return transcript, nil
}
