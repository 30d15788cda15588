package repositories

import "context"

// SpeechRecognizer abstracts speech recognition services.
type SpeechRecognizer interface {
	// InitStreaming initializes a streaming recognition session.
	InitStreaming(ctx context.Context, config AudioConfig) (RecognitionStream, error)
}

// AudioConfig describes the audio a session will carry.
type AudioConfig struct {
	SampleRate int    `json:"sample_rate"`
	Encoding   string `json:"encoding"`
	Language   string `json:"language"`
}

// RecognitionStream consumes audio and yields a final transcript on End.
type RecognitionStream interface {
	Stream(data []byte) error
	End() (string, error)
}
