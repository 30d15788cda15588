package entities

import (
	"strings"
	"time"
)

// StreamSession represents one in-flight exchange with the upstream dialogue
// backend. It is created when a chat request is dispatched and is mutated only
// by the relay's read loop; nothing else writes to it.
type StreamSession struct {
	TurnID         string
	ConversationID string
	MessageID      string
	StartedAt      time.Time

	answer strings.Builder
	ended  bool
}

// NewStreamSession creates a session for a single conversation turn.
func NewStreamSession(turnID, conversationID string) *StreamSession {
	return &StreamSession{
		TurnID:         turnID,
		ConversationID: conversationID,
		StartedAt:      time.Now(),
	}
}

// AppendFragment appends an answer fragment and captures any identifiers the
// upstream frame carried. Empty identifiers never overwrite ones already seen.
func (s *StreamSession) AppendFragment(fragment, conversationID, messageID string) {
	s.answer.WriteString(fragment)
	if conversationID != "" {
		s.ConversationID = conversationID
	}
	if messageID != "" {
		s.MessageID = messageID
	}
}

// Answer returns the full accumulated answer text so far.
func (s *StreamSession) Answer() string {
	return s.answer.String()
}

// MarkEnded flags the session terminal. A terminal session accepts no more
// fragments.
func (s *StreamSession) MarkEnded() {
	s.ended = true
}

// Ended reports whether the terminal event has been observed.
func (s *StreamSession) Ended() bool {
	return s.ended
}
