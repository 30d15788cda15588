package usecase

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prakoso/voicecoach/domain/entities"
	"github.com/prakoso/voicecoach/domain/repositories"
)

type controllerEventKind int

const (
	eventStart controllerEventKind = iota
	eventStop
	eventSpeechStart
	eventTranscript
	eventRecognizerError
	eventChunk
	eventStreamError
	eventStreamEnd
	eventPlaybackIdle
	eventShutdown
)

// controllerEvent is one unit of work for the controller loop. Events
// originating from a relay turn carry the turn id so stale turns can be
// discarded.
type controllerEvent struct {
	kind           controllerEventKind
	turnID         string
	text           string
	conversationID string
	errKind        entities.ErrorKind
	err            error
}

// VoiceCallbacks surface controller activity to the transport layer. They are
// invoked from the controller goroutine and must not block for long.
type VoiceCallbacks struct {
	OnStatusChanged func(status entities.VoiceStatus)
	OnTranscript    func(text string)
	OnChunk         func(text string)
	OnAnswer        func(answer string)
	OnError         func(err error)
}

// VoiceControllerConfig holds per-session configuration.
type VoiceControllerConfig struct {
	Audio     repositories.AudioConfig
	Synthesis repositories.SynthesisOptions
	// User is the opaque caller identifier forwarded to the relay.
	User string
}

// VoiceController is the single authority over the voice state machine. Four
// concurrent signal sources (detector, recognizer, relay stream, playback
// queue) are serialized through one event queue processed by one goroutine, so
// at most one conversation turn is ever active.
type VoiceController struct {
	detector   repositories.SpeechDetector
	recognizer repositories.SpeechRecognizer
	relay      *Relay
	queue      *SpeechQueue
	config     VoiceControllerConfig
	callbacks  VoiceCallbacks
	logger     *zap.Logger

	events chan controllerEvent
	done   chan struct{}

	mu             sync.Mutex
	status         entities.VoiceStatus
	micArmed       bool
	recognition    repositories.RecognitionStream
	conversationID string
	currentTurnID  string
	turnCancel     context.CancelFunc
}

// NewVoiceController creates a controller owning its own detector instance and
// speech queue. The controller starts in the stopped state; Start initializes
// the detector and arms the microphone.
func NewVoiceController(
	detector repositories.SpeechDetector,
	recognizer repositories.SpeechRecognizer,
	relay *Relay,
	synthesizer repositories.SpeechSynthesizer,
	player repositories.AudioPlayer,
	config VoiceControllerConfig,
	callbacks VoiceCallbacks,
	logger *zap.Logger,
) *VoiceController {
	c := &VoiceController{
		detector:   detector,
		recognizer: recognizer,
		relay:      relay,
		config:     config,
		callbacks:  callbacks,
		logger:     logger,
		events:     make(chan controllerEvent, 128),
		done:       make(chan struct{}),
		status:     entities.VoiceStatusStopped,
	}

	c.queue = NewSpeechQueue(synthesizer, player, config.Synthesis, SpeechQueueCallbacks{
		OnStateChanged: func(playing bool, depth int) {
			if !playing && depth == 0 {
				c.post(controllerEvent{kind: eventPlaybackIdle})
			}
		},
		OnItemError: func(text string, err error) {
			logger.Warn("Speech item skipped", zap.String("text", text), zap.Error(err))
		},
	}, logger)

	detector.OnSpeechStart(func() {
		c.post(controllerEvent{kind: eventSpeechStart})
	})

	go c.run()
	return c
}

// Status returns the current voice status.
func (c *VoiceController) Status() entities.VoiceStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// ConversationID returns the opaque upstream conversation identifier captured
// so far, empty until the backend assigns one.
func (c *VoiceController) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversationID
}

// Start initializes the detector and arms the microphone. It is the explicit
// re-entry path from stopped back to idle.
func (c *VoiceController) Start() {
	c.post(controllerEvent{kind: eventStart})
}

// Stop tears the voice subsystem down from any state. Stopping an already
// stopped controller is a no-op.
func (c *VoiceController) Stop() {
	c.post(controllerEvent{kind: eventStop})
}

// Close stops the controller and releases the event loop and queue. The stop
// is processed before the loop shuts down.
func (c *VoiceController) Close() {
	c.post(controllerEvent{kind: eventStop})
	c.post(controllerEvent{kind: eventShutdown})
}

// ProcessAudio feeds one captured audio frame to the detector and, while
// listening, to the active recognition stream.
func (c *VoiceController) ProcessAudio(frame []byte) {
	c.mu.Lock()
	armed := c.micArmed
	recognition := c.recognition
	c.mu.Unlock()

	if !armed {
		return
	}

	if err := c.detector.Process(frame); err != nil {
		c.logger.Warn("Speech detector rejected frame", zap.Error(err))
	}

	if recognition != nil {
		if err := recognition.Stream(frame); err != nil {
			c.post(controllerEvent{kind: eventRecognizerError, err: err})
		}
	}
}

// FinishUtterance signals the end of the user's utterance and requests the
// final transcript. The blocking recognizer call runs off the event loop.
func (c *VoiceController) FinishUtterance() {
	c.mu.Lock()
	recognition := c.recognition
	c.recognition = nil
	c.mu.Unlock()

	if recognition == nil {
		return
	}

	go func() {
		transcript, err := recognition.End()
		if err != nil {
			c.post(controllerEvent{kind: eventRecognizerError, err: err})
			return
		}
		c.post(controllerEvent{kind: eventTranscript, text: transcript})
	}()
}

func (c *VoiceController) post(event controllerEvent) {
	select {
	case c.events <- event:
	case <-c.done:
	}
}

// run processes controller events one at a time; it is the only writer of the
// state machine.
func (c *VoiceController) run() {
	for {
		select {
		case <-c.done:
			return
		case event := <-c.events:
			c.handle(event)
		}
	}
}

func (c *VoiceController) handle(event controllerEvent) {
	switch event.kind {
	case eventStart:
		c.handleStart()
	case eventStop:
		c.handleStop()
	case eventSpeechStart:
		c.handleSpeechStart()
	case eventTranscript:
		c.handleTranscript(event.text)
	case eventRecognizerError:
		c.handleRecognizerError(event.err)
	case eventChunk:
		c.handleChunk(event)
	case eventStreamError:
		c.handleStreamError(event)
	case eventStreamEnd:
		c.handleStreamEnd(event)
	case eventPlaybackIdle:
		c.handlePlaybackIdle()
	case eventShutdown:
		close(c.done)
		c.queue.Close()
	}
}

func (c *VoiceController) handleStart() {
	if c.Status() != entities.VoiceStatusStopped {
		return
	}

	if err := c.detector.Initialize(c.config.Audio); err != nil {
		// Missing platform capability is permanent; the controller stays
		// stopped and the transport reports what is missing.
		c.logger.Error("Speech detector initialization failed", zap.Error(err))
		c.reportError(err)
		return
	}

	c.detector.Start()
	c.mu.Lock()
	c.micArmed = true
	c.mu.Unlock()
	c.setStatus(entities.VoiceStatusIdle)
}

func (c *VoiceController) handleStop() {
	if c.Status() == entities.VoiceStatusStopped {
		return
	}

	c.cancelTurn()
	c.queue.Stop()
	c.detector.Destroy()

	c.mu.Lock()
	c.micArmed = false
	c.recognition = nil
	c.mu.Unlock()

	c.setStatus(entities.VoiceStatusStopped)
}

// handleSpeechStart implements barge-in: user speech immediately halts AI
// playback and clears the pending queue before the recognizer activates.
func (c *VoiceController) handleSpeechStart() {
	status := c.Status()
	if status == entities.VoiceStatusStopped || status == entities.VoiceStatusListening {
		return
	}

	if status == entities.VoiceStatusSpeaking || status == entities.VoiceStatusThinking {
		c.queue.Stop()
		// The superseded turn's relay read is left to finish; its remaining
		// events are discarded by turn id and never corrupt the new turn.
		c.abandonTurn()
	}

	recognition, err := c.recognizer.InitStreaming(context.Background(), c.config.Audio)
	if err != nil {
		c.logger.Error("Failed to initialize recognition stream", zap.Error(err))
		c.reportError(err)
		c.setStatus(entities.VoiceStatusIdle)
		return
	}

	c.mu.Lock()
	c.recognition = recognition
	c.mu.Unlock()
	c.setStatus(entities.VoiceStatusListening)
}

func (c *VoiceController) handleTranscript(transcript string) {
	if c.Status() != entities.VoiceStatusListening {
		return
	}

	if c.callbacks.OnTranscript != nil {
		c.callbacks.OnTranscript(transcript)
	}

	turnID := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	conversationID := c.conversationID
	c.currentTurnID = turnID
	c.turnCancel = cancel
	c.mu.Unlock()

	events, err := c.relay.Stream(ctx, repositories.DialogueRequest{
		Query:          transcript,
		ConversationID: conversationID,
		User:           c.config.User,
	})
	if err != nil {
		cancel()
		c.mu.Lock()
		c.currentTurnID = ""
		c.turnCancel = nil
		c.mu.Unlock()
		if !errors.Is(err, ErrEmptyQuery) {
			c.reportError(err)
		}
		c.setStatus(entities.VoiceStatusIdle)
		return
	}

	c.setStatus(entities.VoiceStatusThinking)
	go c.consumeTurn(turnID, cancel, events)
}

// consumeTurn forwards one relay stream into the event queue, tagged with its
// turn id. It owns the turn context's release: abandoned turns are not
// cancelled, they drain.
func (c *VoiceController) consumeTurn(turnID string, cancel context.CancelFunc, events <-chan entities.StreamEvent) {
	defer cancel()
	for event := range events {
		switch event.Type {
		case entities.StreamEventChunk:
			c.post(controllerEvent{kind: eventChunk, turnID: turnID, text: event.Chunk, conversationID: event.ConversationID})
		case entities.StreamEventError:
			c.post(controllerEvent{kind: eventStreamError, turnID: turnID, text: event.ErrMessage, errKind: event.ErrKind})
		case entities.StreamEventEnd:
			c.post(controllerEvent{kind: eventStreamEnd, turnID: turnID, text: event.CompleteAnswer, conversationID: event.ConversationID})
		case entities.StreamEventComplete:
			// The end event carries the same answer; nothing to do here.
		}
	}
}

func (c *VoiceController) handleChunk(event controllerEvent) {
	if !c.isCurrentTurn(event.turnID) {
		return
	}

	if event.conversationID != "" {
		c.mu.Lock()
		c.conversationID = event.conversationID
		c.mu.Unlock()
	}

	if c.Status() == entities.VoiceStatusThinking {
		c.setStatus(entities.VoiceStatusSpeaking)
	}

	if c.callbacks.OnChunk != nil {
		c.callbacks.OnChunk(event.text)
	}
	c.queue.Enqueue(event.text)
}

func (c *VoiceController) handleStreamError(event controllerEvent) {
	if !c.isCurrentTurn(event.turnID) {
		return
	}

	c.logger.Warn("Relay turn failed",
		zap.String("turnID", event.turnID),
		zap.String("kind", string(event.errKind)),
		zap.String("message", event.text))
	c.reportError(errors.New(event.text))
}

func (c *VoiceController) handleStreamEnd(event controllerEvent) {
	if !c.isCurrentTurn(event.turnID) {
		return
	}

	c.mu.Lock()
	if event.conversationID != "" {
		c.conversationID = event.conversationID
	}
	c.currentTurnID = ""
	if c.turnCancel != nil {
		c.turnCancel()
		c.turnCancel = nil
	}
	c.mu.Unlock()

	if c.callbacks.OnAnswer != nil {
		c.callbacks.OnAnswer(event.text)
	}

	// If nothing was enqueued for playback the queue stays silent, so the
	// return to idle happens here instead of on playback-idle.
	if c.Status() == entities.VoiceStatusThinking && c.queue.Depth() == 0 && !c.queue.Playing() {
		c.setStatus(entities.VoiceStatusIdle)
	}
}

func (c *VoiceController) handlePlaybackIdle() {
	if c.Status() == entities.VoiceStatusSpeaking {
		c.setStatus(entities.VoiceStatusIdle)
	}
}

func (c *VoiceController) handleRecognizerError(err error) {
	c.logger.Warn("Recognizer error", zap.Error(err))
	c.reportError(err)
	// Never leave the controller stuck in listening.
	if c.Status() == entities.VoiceStatusListening {
		c.mu.Lock()
		c.recognition = nil
		c.mu.Unlock()
		c.setStatus(entities.VoiceStatusIdle)
	}
}

// abandonTurn forgets the in-flight turn so its late events are discarded.
// The relay read is left to finish on its own.
func (c *VoiceController) abandonTurn() {
	c.mu.Lock()
	c.currentTurnID = ""
	c.turnCancel = nil
	c.mu.Unlock()
}

// cancelTurn abandons the in-flight turn and cancels its relay read. Used on
// stop, where nothing will consume the drained stream.
func (c *VoiceController) cancelTurn() {
	c.mu.Lock()
	c.currentTurnID = ""
	if c.turnCancel != nil {
		c.turnCancel()
		c.turnCancel = nil
	}
	c.mu.Unlock()
}

func (c *VoiceController) isCurrentTurn(turnID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return turnID != "" && turnID == c.currentTurnID
}

func (c *VoiceController) setStatus(status entities.VoiceStatus) {
	c.mu.Lock()
	c.status = status
	c.mu.Unlock()

	if c.callbacks.OnStatusChanged != nil {
		c.callbacks.OnStatusChanged(status)
	}
}

func (c *VoiceController) reportError(err error) {
	if c.callbacks.OnError != nil {
		c.callbacks.OnError(err)
	}
}
