package usecase

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prakoso/voicecoach/domain/entities"
	"github.com/prakoso/voicecoach/domain/repositories"
)

const (
	defaultFirstFrameTimeout = 30 * time.Second
	defaultIdleTimeout       = 60 * time.Second
)

// ErrEmptyQuery rejects empty or whitespace-only input. The upstream backend
// is never contacted for such a request.
var ErrEmptyQuery = errors.New("query must not be empty")

// RelayConfig holds configuration for the stream relay.
type RelayConfig struct {
	// FirstFrameTimeout bounds the wait for the first upstream frame.
	FirstFrameTimeout time.Duration
	// IdleTimeout bounds the wait between consecutive upstream frames.
	IdleTimeout time.Duration
}

// NewRelayConfigFromEnv creates a RelayConfig from environment variables.
func NewRelayConfigFromEnv() RelayConfig {
	config := RelayConfig{}
	if s := os.Getenv("RELAY_FIRST_FRAME_TIMEOUT_SECONDS"); s != "" {
		if seconds, err := strconv.Atoi(s); err == nil && seconds > 0 {
			config.FirstFrameTimeout = time.Duration(seconds) * time.Second
		}
	}
	if s := os.Getenv("RELAY_IDLE_TIMEOUT_SECONDS"); s != "" {
		if seconds, err := strconv.Atoi(s); err == nil && seconds > 0 {
			config.IdleTimeout = time.Duration(seconds) * time.Second
		}
	}
	return config
}

// Relay converts one upstream dialogue exchange into the service's own
// normalized event stream. Downstream consumers never see upstream framing or
// failure modes; they see chunk/complete events followed by exactly one end.
type Relay struct {
	backend           repositories.DialogueBackend
	logger            *zap.Logger
	firstFrameTimeout time.Duration
	idleTimeout       time.Duration
}

// NewRelay creates a new stream relay.
func NewRelay(backend repositories.DialogueBackend, config RelayConfig, logger *zap.Logger) *Relay {
	firstFrameTimeout := config.FirstFrameTimeout
	if firstFrameTimeout == 0 {
		firstFrameTimeout = defaultFirstFrameTimeout
		logger.Info("Using default first frame timeout", zap.Duration("firstFrameTimeout", firstFrameTimeout))
	}

	idleTimeout := config.IdleTimeout
	if idleTimeout == 0 {
		idleTimeout = defaultIdleTimeout
		logger.Info("Using default idle timeout", zap.Duration("idleTimeout", idleTimeout))
	}

	return &Relay{
		backend:           backend,
		logger:            logger,
		firstFrameTimeout: firstFrameTimeout,
		idleTimeout:       idleTimeout,
	}
}

// Stream dispatches one user utterance upstream and returns the normalized
// event stream for it. The only synchronous failure is input validation;
// upstream failures arrive on the stream as an error event followed by end.
// Cancelling ctx cancels the upstream read promptly.
func (r *Relay) Stream(ctx context.Context, req repositories.DialogueRequest) (<-chan entities.StreamEvent, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return nil, ErrEmptyQuery
	}

	session := entities.NewStreamSession(uuid.NewString(), req.ConversationID)
	events := make(chan entities.StreamEvent, 16)

	go r.run(ctx, req, session, events)

	return events, nil
}

// run is the single upstream read loop for one StreamSession; it is the sole
// writer to the session's accumulated answer.
func (r *Relay) run(ctx context.Context, req repositories.DialogueRequest, session *entities.StreamSession, events chan<- entities.StreamEvent) {
	defer close(events)

	// Cancelling here tears down the adapter's read goroutine on every early
	// return, so no upstream connection outlives its session.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	emit := func(event entities.StreamEvent) {
		select {
		case events <- event:
		case <-ctx.Done():
		}
	}

	end := func() {
		session.MarkEnded()
		emit(entities.StreamEvent{
			Type:           entities.StreamEventEnd,
			ConversationID: session.ConversationID,
			MessageID:      session.MessageID,
			CompleteAnswer: session.Answer(),
		})
	}

	fail := func(kind entities.ErrorKind, message string) {
		emit(entities.StreamEvent{
			Type:       entities.StreamEventError,
			ErrMessage: message,
			ErrKind:    kind,
		})
		end()
	}

	frames, err := r.backend.OpenStream(ctx, req)
	if err != nil {
		kind, message := classifyUpstreamError(err)
		r.logger.Error("Failed to open upstream stream",
			zap.String("turnID", session.TurnID),
			zap.Error(err))
		fail(kind, message)
		return
	}

	timer := time.NewTimer(r.firstFrameTimeout)
	defer timer.Stop()

	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				// Upstream closed the connection: that is the normal end signal.
				end()
				return
			}

			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(r.idleTimeout)

			switch frame.Kind {
			case repositories.FrameAnswer:
				session.AppendFragment(frame.Answer, frame.ConversationID, frame.MessageID)
				emit(entities.StreamEvent{
					Type:           entities.StreamEventChunk,
					Chunk:          frame.Answer,
					ConversationID: session.ConversationID,
					MessageID:      session.MessageID,
				})

			case repositories.FrameMessageEnd:
				session.AppendFragment("", frame.ConversationID, frame.MessageID)
				emit(entities.StreamEvent{
					Type:           entities.StreamEventComplete,
					ConversationID: session.ConversationID,
					MessageID:      session.MessageID,
					CompleteAnswer: session.Answer(),
				})

			case repositories.FrameError:
				r.logger.Warn("Upstream reported an error frame",
					zap.String("turnID", session.TurnID),
					zap.String("message", frame.ErrMessage))
				fail(entities.ErrorKindUnavailable, frame.ErrMessage)
				return

			case repositories.FrameNoop:
				// Unknown upstream event, deliberately ignored.
			}

		case <-timer.C:
			r.logger.Warn("Upstream stream timed out",
				zap.String("turnID", session.TurnID),
				zap.String("conversationID", session.ConversationID))
			fail(entities.ErrorKindTimeout, "upstream response timed out")
			return

		case <-ctx.Done():
			// Downstream consumer disconnected; nobody is left to observe events.
			return
		}
	}
}

// classifyUpstreamError maps an open failure to the error taxonomy: timeouts
// are a distinguished kind so callers can choose to retry with backoff.
func classifyUpstreamError(err error) (entities.ErrorKind, string) {
	var statusErr *repositories.UpstreamStatusError
	if errors.As(err, &statusErr) {
		return entities.ErrorKindUnavailable, fmt.Sprintf("upstream returned status %d", statusErr.Status)
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return entities.ErrorKindTimeout, "upstream connection timed out"
	}

	return entities.ErrorKindUnavailable, "upstream request failed"
}
