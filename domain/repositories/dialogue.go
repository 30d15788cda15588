package repositories

import (
	"context"
	"fmt"
)

// DialogueRequest is one user utterance dispatched to the upstream backend.
// ConversationID is an opaque string, empty until the backend assigns one.
type DialogueRequest struct {
	Query          string `json:"query"`
	ConversationID string `json:"conversation_id,omitempty"`
	User           string `json:"user"`
}

// FrameKind tags one parsed unit from the upstream wire format. The set is
// closed; anything the backend sends that we do not recognize becomes
// FrameNoop and is ignored.
type FrameKind string

const (
	// FrameAnswer carries an incremental answer fragment.
	FrameAnswer FrameKind = "answer"
	// FrameMessageEnd signals that the current message is complete.
	FrameMessageEnd FrameKind = "message_end"
	// FrameError carries an upstream-reported error.
	FrameError FrameKind = "error"
	// FrameNoop is an unknown or uninteresting frame.
	FrameNoop FrameKind = "noop"
)

// DialogueFrame is one normalized upstream frame.
type DialogueFrame struct {
	Kind           FrameKind
	Answer         string
	ConversationID string
	MessageID      string
	ErrMessage     string
}

// DialogueStream is the frame sequence of one upstream exchange. The channel
// closes when the upstream connection closes; frames arrive in wire order.
type DialogueStream <-chan DialogueFrame

// DialogueBackend abstracts a streaming conversational AI service.
type DialogueBackend interface {
	// OpenStream opens one streaming exchange. A non-2xx upstream response or
	// a connection failure is returned synchronously; once a stream is
	// returned, frames flow until the upstream closes. Cancelling ctx must
	// terminate the upstream read promptly.
	OpenStream(ctx context.Context, req DialogueRequest) (DialogueStream, error)
}

// ChatBackend abstracts a blocking (non-streaming) conversational AI service,
// such as a workflow webhook that returns the whole reply at once.
type ChatBackend interface {
	Send(ctx context.Context, req DialogueRequest) (string, error)
}

// UpstreamStatusError reports a non-2xx response from a backend.
type UpstreamStatusError struct {
	Status int
	Body   string
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.Status)
}
