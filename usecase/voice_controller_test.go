package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/prakoso/voicecoach/domain/entities"
	"github.com/prakoso/voicecoach/domain/repositories"
)

type fakeDetector struct {
	mu        sync.Mutex
	initErr   error
	destroyed bool
	onSpeech  func()
}

func (d *fakeDetector) Initialize(config repositories.AudioConfig) error { return d.initErr }
func (d *fakeDetector) Start()                                           {}
func (d *fakeDetector) Pause()                                           {}
func (d *fakeDetector) Destroy() {
	d.mu.Lock()
	d.destroyed = true
	d.mu.Unlock()
}
func (d *fakeDetector) Process(frame []byte) error { return nil }
func (d *fakeDetector) OnSpeechStart(fn func()) {
	d.mu.Lock()
	d.onSpeech = fn
	d.mu.Unlock()
}

// fire simulates speech onset from the capture pipeline.
func (d *fakeDetector) fire() {
	d.mu.Lock()
	fn := d.onSpeech
	d.mu.Unlock()
	if fn != nil {
		fn()
	}
}

type fakeRecognizer struct {
	transcript string
	initErr    error
	endErr     error
}

func (r *fakeRecognizer) InitStreaming(ctx context.Context, config repositories.AudioConfig) (repositories.RecognitionStream, error) {
	if r.initErr != nil {
		return nil, r.initErr
	}
	return &fakeRecognition{transcript: r.transcript, endErr: r.endErr}, nil
}

type fakeRecognition struct {
	transcript string
	endErr     error
}

func (s *fakeRecognition) Stream(data []byte) error { return nil }
func (s *fakeRecognition) End() (string, error) {
	if s.endErr != nil {
		return "", s.endErr
	}
	return s.transcript, nil
}

// blockingPlayer holds playback open until released, so tests can observe the
// speaking state and trigger barge-in mid-playback.
type blockingPlayer struct {
	started chan string
	release chan struct{}
}

func newBlockingPlayer() *blockingPlayer {
	return &blockingPlayer{
		started: make(chan string, 16),
		release: make(chan struct{}),
	}
}

func (p *blockingPlayer) Play(ctx context.Context, audio []byte) error {
	p.started <- string(audio)
	select {
	case <-p.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type controllerHarness struct {
	controller *VoiceController
	detector   *fakeDetector
	statuses   chan entities.VoiceStatus
	transcript chan string
	answers    chan string
	errs       chan error
}

func newControllerHarness(
	t *testing.T,
	detector *fakeDetector,
	recognizer repositories.SpeechRecognizer,
	backend repositories.DialogueBackend,
	player repositories.AudioPlayer,
) *controllerHarness {
	t.Helper()

	h := &controllerHarness{
		detector:   detector,
		statuses:   make(chan entities.VoiceStatus, 32),
		transcript: make(chan string, 8),
		answers:    make(chan string, 8),
		errs:       make(chan error, 8),
	}

	logger := zaptest.NewLogger(t)
	relay := NewRelay(backend, RelayConfig{}, logger)

	h.controller = NewVoiceController(
		detector,
		recognizer,
		relay,
		newGatedSynth(),
		player,
		VoiceControllerConfig{
			Audio: repositories.AudioConfig{SampleRate: 16000, Encoding: "LINEAR16", Language: "zh-CN"},
			User:  "trainee-1",
		},
		VoiceCallbacks{
			OnStatusChanged: func(status entities.VoiceStatus) { h.statuses <- status },
			OnTranscript:    func(text string) { h.transcript <- text },
			OnAnswer:        func(answer string) { h.answers <- answer },
			OnError:         func(err error) { h.errs <- err },
		},
		logger,
	)
	t.Cleanup(h.controller.Close)
	return h
}

func (h *controllerHarness) waitStatus(t *testing.T, want entities.VoiceStatus) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case status := <-h.statuses:
			if status == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for status %s, currently %s", want, h.controller.Status())
		}
	}
}

func TestVoiceControllerFullTurn(t *testing.T) {
	backend := &scriptedBackend{
		frames: []repositories.DialogueFrame{
			{Kind: repositories.FrameAnswer, Answer: "重疾险", ConversationID: "conv-7"},
			{Kind: repositories.FrameMessageEnd},
		},
	}
	player := newBlockingPlayer()
	h := newControllerHarness(t, &fakeDetector{}, &fakeRecognizer{transcript: "我想了解重疾险"}, backend, player)

	h.controller.Start()
	h.waitStatus(t, entities.VoiceStatusIdle)

	h.detector.fire()
	h.waitStatus(t, entities.VoiceStatusListening)

	h.controller.FinishUtterance()
	h.waitStatus(t, entities.VoiceStatusThinking)

	select {
	case text := <-h.transcript:
		if text != "我想了解重疾险" {
			t.Errorf("unexpected transcript %q", text)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("transcript callback never fired")
	}

	h.waitStatus(t, entities.VoiceStatusSpeaking)

	select {
	case answer := <-h.answers:
		if answer != "重疾险" {
			t.Errorf("unexpected answer %q", answer)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("answer callback never fired")
	}

	close(player.release)
	h.waitStatus(t, entities.VoiceStatusIdle)

	if got := h.controller.ConversationID(); got != "conv-7" {
		t.Errorf("conversation id not captured, got %q", got)
	}
}

func TestVoiceControllerCapabilityMissingStaysStopped(t *testing.T) {
	detector := &fakeDetector{initErr: repositories.ErrCapabilityMissing}
	h := newControllerHarness(t, detector, &fakeRecognizer{}, &scriptedBackend{}, newRecordingPlayer())

	h.controller.Start()

	select {
	case err := <-h.errs:
		if !errors.Is(err, repositories.ErrCapabilityMissing) {
			t.Errorf("unexpected error %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("error callback never fired")
	}

	if got := h.controller.Status(); got != entities.VoiceStatusStopped {
		t.Errorf("controller left stopped state on capability failure: %s", got)
	}

	// A second start hits the same permanent failure, never a partial state.
	h.controller.Start()
	select {
	case <-h.errs:
	case <-time.After(5 * time.Second):
		t.Fatal("error callback never fired on retry")
	}
	if got := h.controller.Status(); got != entities.VoiceStatusStopped {
		t.Errorf("controller left stopped state on retried start: %s", got)
	}
}

func TestVoiceControllerStopIsIdempotent(t *testing.T) {
	h := newControllerHarness(t, &fakeDetector{}, &fakeRecognizer{}, &scriptedBackend{}, newRecordingPlayer())

	h.controller.Start()
	h.waitStatus(t, entities.VoiceStatusIdle)

	h.controller.Stop()
	h.waitStatus(t, entities.VoiceStatusStopped)

	h.controller.Stop()
	select {
	case status := <-h.statuses:
		t.Errorf("stop of a stopped controller emitted status %s", status)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestVoiceControllerBargeIn(t *testing.T) {
	backend := &scriptedBackend{
		frames: []repositories.DialogueFrame{
			{Kind: repositories.FrameAnswer, Answer: "这是一个很长的回答"},
			{Kind: repositories.FrameMessageEnd},
		},
	}
	player := newBlockingPlayer()
	h := newControllerHarness(t, &fakeDetector{}, &fakeRecognizer{transcript: "第一个问题"}, backend, player)

	h.controller.Start()
	h.waitStatus(t, entities.VoiceStatusIdle)
	h.detector.fire()
	h.waitStatus(t, entities.VoiceStatusListening)
	h.controller.FinishUtterance()
	h.waitStatus(t, entities.VoiceStatusSpeaking)

	// Playback is now blocked inside the player. The user interrupts.
	<-player.started
	h.detector.fire()

	// Barge-in halts playback and goes straight to listening for the new
	// utterance, never through idle.
	h.waitStatus(t, entities.VoiceStatusListening)

	if h.controller.Status() != entities.VoiceStatusListening {
		t.Errorf("expected listening after barge-in, got %s", h.controller.Status())
	}
}

func TestVoiceControllerRecognizerErrorReturnsToIdle(t *testing.T) {
	h := newControllerHarness(t, &fakeDetector{}, &fakeRecognizer{endErr: errors.New("recognition backend gone")}, &scriptedBackend{}, newRecordingPlayer())

	h.controller.Start()
	h.waitStatus(t, entities.VoiceStatusIdle)
	h.detector.fire()
	h.waitStatus(t, entities.VoiceStatusListening)

	h.controller.FinishUtterance()

	select {
	case <-h.errs:
	case <-time.After(5 * time.Second):
		t.Fatal("error callback never fired")
	}
	h.waitStatus(t, entities.VoiceStatusIdle)
}

func TestVoiceControllerRecognizerInitFailure(t *testing.T) {
	h := newControllerHarness(t, &fakeDetector{}, &fakeRecognizer{initErr: errors.New("no credentials")}, &scriptedBackend{}, newRecordingPlayer())

	h.controller.Start()
	h.waitStatus(t, entities.VoiceStatusIdle)

	h.detector.fire()

	select {
	case <-h.errs:
	case <-time.After(5 * time.Second):
		t.Fatal("error callback never fired")
	}
	h.waitStatus(t, entities.VoiceStatusIdle)
}
