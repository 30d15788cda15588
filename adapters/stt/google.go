package stt

import (
	"context"
	"fmt"
	"io"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"

	"github.com/prakoso/voicecoach/domain/repositories"
)

// GoogleRecognizer implements the SpeechRecognizer interface for Google Cloud
// Speech-to-Text.
type GoogleRecognizer struct {
	logger *zap.Logger
}

var _ repositories.SpeechRecognizer = (*GoogleRecognizer)(nil)

// NewGoogleRecognizer creates a new Google Cloud recognizer.
func NewGoogleRecognizer(logger *zap.Logger) *GoogleRecognizer {
	return &GoogleRecognizer{logger: logger}
}

// InitStreaming initializes one streaming recognition session.
func (g *GoogleRecognizer) InitStreaming(ctx context.Context, config repositories.AudioConfig) (repositories.RecognitionStream, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}

	stream, err := client.StreamingRecognize(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create streaming recognize: %w", err)
	}

	encoding, err := audioEncoding(config.Encoding)
	if err != nil {
		stream.CloseSend()
		client.Close()
		return nil, fmt.Errorf("unsupported audio encoding: %s", config.Encoding)
	}

	recognitionConfig := &speechpb.RecognitionConfig{
		Encoding:        encoding,
		SampleRateHertz: int32(config.SampleRate),
		LanguageCode:    config.Language,
	}

	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config:          recognitionConfig,
				InterimResults:  false, // only final results drive the controller
				SingleUtterance: true,
			},
		},
	}); err != nil {
		stream.CloseSend()
		client.Close()
		return nil, fmt.Errorf("failed to send streaming config: %w", err)
	}

	g.logger.Debug("Streaming recognition initialized",
		zap.Int("sampleRate", config.SampleRate),
		zap.String("language", config.Language))

	return &googleRecognitionStream{
		client:     client,
		stream:     stream,
		ctx:        ctx,
		resultChan: make(chan string, 1),
		errorChan:  make(chan error, 1),
	}, nil
}

type googleRecognitionStream struct {
	client         *speech.Client
	stream         speechpb.Speech_StreamingRecognizeClient
	ctx            context.Context
	audioReceived  bool
	resultChan     chan string
	errorChan      chan error
	receiverActive bool
}

func (g *googleRecognitionStream) Stream(data []byte) error {
	// Start the result receiver goroutine only once.
	if !g.receiverActive {
		g.receiverActive = true
		go g.receiveResults()
	}

	if len(data) > 0 {
		g.audioReceived = true

		if err := g.stream.Send(&speechpb.StreamingRecognizeRequest{
			StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
				AudioContent: data,
			},
		}); err != nil {
			return fmt.Errorf("failed to send audio data: %w", err)
		}
	}

	return nil
}

func (g *googleRecognitionStream) End() (string, error) {
	defer g.cleanup()

	if !g.audioReceived {
		return "", fmt.Errorf("no audio data received")
	}

	// Closing the send side signals end of audio.
	if err := g.stream.CloseSend(); err != nil {
		return "", fmt.Errorf("failed to close send stream: %w", err)
	}

	select {
	case <-g.ctx.Done():
		return "", fmt.Errorf("context cancelled while waiting for result: %w", g.ctx.Err())
	case err := <-g.errorChan:
		return "", err
	case result := <-g.resultChan:
		if result == "" {
			return "", fmt.Errorf("no speech detected in audio")
		}
		return result, nil
	}
}

func (g *googleRecognitionStream) receiveResults() {
	var finalTranscription string

	for {
		resp, err := g.stream.Recv()
		if err == io.EOF {
			g.resultChan <- finalTranscription
			return
		}
		if err != nil {
			g.errorChan <- fmt.Errorf("failed to receive response: %w", err)
			return
		}

		for _, result := range resp.GetResults() {
			if result.IsFinal && len(result.Alternatives) > 0 {
				finalTranscription = result.Alternatives[0].Transcript
			}
		}
	}
}

func (g *googleRecognitionStream) cleanup() {
	if g.client != nil {
		g.client.Close()
	}
}

// audioEncoding converts a string encoding to the Google Speech API enum.
func audioEncoding(encoding string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch encoding {
	case "WAV", "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16, nil
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC, nil
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW, nil
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}
