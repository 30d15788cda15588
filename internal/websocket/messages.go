package websocket

import (
	"encoding/json"
	"time"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Inbound control messages
const (
	MessageTypeStart        MessageType = "start"
	MessageTypeStop         MessageType = "stop"
	MessageTypeListeningEnd MessageType = "listening_end"
	MessageTypePing         MessageType = "ping"
)

// Outbound messages
const (
	MessageTypeStatus        MessageType = "status"
	MessageTypeTranscript    MessageType = "transcript"
	MessageTypeChunk         MessageType = "message_chunk"
	MessageTypeAnswer        MessageType = "answer"
	MessageTypeError         MessageType = "error"
	MessageTypeSpeakingStart MessageType = "speaking_start"
	MessageTypeSpeakingEnd   MessageType = "speaking_end"
	MessageTypePong          MessageType = "pong"
)

// ControlMessage is the shape of every inbound JSON message. The audio fields
// only matter on start; a later start does not reconfigure a running session.
type ControlMessage struct {
	Type       MessageType `json:"type"`
	SampleRate int         `json:"sample_rate,omitempty"`
	Language   string      `json:"language,omitempty"`
	Encoding   string      `json:"encoding,omitempty"`
	Voice      string      `json:"voice,omitempty"`
}

// ParseControlMessage decodes one inbound text frame.
func ParseControlMessage(data []byte) (ControlMessage, error) {
	var msg ControlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ControlMessage{}, err
	}
	return msg, nil
}

type outboundMessage struct {
	Type           MessageType `json:"type"`
	Status         string      `json:"status,omitempty"`
	Text           string      `json:"text,omitempty"`
	ConversationID string      `json:"conversation_id,omitempty"`
	Code           string      `json:"code,omitempty"`
	Message        string      `json:"message,omitempty"`
	Timestamp      int64       `json:"timestamp,omitempty"`
}

func marshalMessage(msg outboundMessage) []byte {
	payload, _ := json.Marshal(msg)
	return payload
}

// StatusMessage reports a voice state transition to the client.
func StatusMessage(status string) []byte {
	return marshalMessage(outboundMessage{Type: MessageTypeStatus, Status: status})
}

// TranscriptMessage carries the recognized user utterance.
func TranscriptMessage(text string) []byte {
	return marshalMessage(outboundMessage{Type: MessageTypeTranscript, Text: text})
}

// ChunkMessage carries one streamed answer fragment.
func ChunkMessage(text string) []byte {
	return marshalMessage(outboundMessage{Type: MessageTypeChunk, Text: text})
}

// AnswerMessage carries the accumulated answer of a finished turn.
func AnswerMessage(text, conversationID string) []byte {
	return marshalMessage(outboundMessage{
		Type:           MessageTypeAnswer,
		Text:           text,
		ConversationID: conversationID,
	})
}

// ErrorMessage reports a session error to the client.
func ErrorMessage(code, message string) []byte {
	return marshalMessage(outboundMessage{Type: MessageTypeError, Code: code, Message: message})
}

// SpeakingStartMessage brackets the beginning of AI audio playback.
func SpeakingStartMessage() []byte {
	return marshalMessage(outboundMessage{Type: MessageTypeSpeakingStart, Timestamp: time.Now().Unix()})
}

// SpeakingEndMessage brackets the end of AI audio playback.
func SpeakingEndMessage() []byte {
	return marshalMessage(outboundMessage{Type: MessageTypeSpeakingEnd, Timestamp: time.Now().Unix()})
}

// PongMessage answers a client-level ping.
func PongMessage() []byte {
	return marshalMessage(outboundMessage{Type: MessageTypePong, Timestamp: time.Now().Unix()})
}
