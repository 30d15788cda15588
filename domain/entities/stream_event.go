package entities

// StreamEventType identifies a normalized downstream event.
type StreamEventType string

const (
	// StreamEventChunk carries one incremental answer fragment.
	StreamEventChunk StreamEventType = "message_chunk"
	// StreamEventComplete carries the full accumulated answer for a finished message.
	StreamEventComplete StreamEventType = "message_complete"
	// StreamEventEnd closes the sequence. Exactly one per session, always last.
	StreamEventEnd StreamEventType = "stream_end"
	// StreamEventError reports an upstream failure. May precede StreamEventEnd,
	// never follows it.
	StreamEventError StreamEventType = "error"
)

// ErrorKind distinguishes upstream failure classes so callers can decide
// whether a retry makes sense.
type ErrorKind string

const (
	ErrorKindNone        ErrorKind = ""
	ErrorKindUnavailable ErrorKind = "upstream_unavailable"
	ErrorKindTimeout     ErrorKind = "upstream_timeout"
)

// StreamEvent is the normalized event emitted by the relay. Which fields are
// meaningful depends on Type: chunks carry Chunk plus identifiers, complete
// and end carry CompleteAnswer, error carries ErrMessage and ErrKind.
type StreamEvent struct {
	Type           StreamEventType
	Chunk          string
	ConversationID string
	MessageID      string
	CompleteAnswer string
	ErrMessage     string
	ErrKind        ErrorKind
}
