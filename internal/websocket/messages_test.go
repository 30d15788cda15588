package websocket

import (
	"encoding/json"
	"testing"
)

func TestParseControlMessage(t *testing.T) {
	msg, err := ParseControlMessage([]byte(`{"type":"start","sample_rate":16000,"language":"zh-CN","encoding":"LINEAR16"}`))
	if err != nil {
		t.Fatalf("ParseControlMessage failed: %v", err)
	}
	if msg.Type != MessageTypeStart {
		t.Errorf("unexpected type %q", msg.Type)
	}
	if msg.SampleRate != 16000 || msg.Language != "zh-CN" || msg.Encoding != "LINEAR16" {
		t.Errorf("audio fields lost: %+v", msg)
	}
}

func TestParseControlMessageRejectsGarbage(t *testing.T) {
	if _, err := ParseControlMessage([]byte("{not json")); err == nil {
		t.Error("invalid JSON accepted")
	}
}

func TestOutboundMessages(t *testing.T) {
	cases := []struct {
		name     string
		payload  []byte
		wantType MessageType
	}{
		{"status", StatusMessage("listening"), MessageTypeStatus},
		{"transcript", TranscriptMessage("你好"), MessageTypeTranscript},
		{"chunk", ChunkMessage("片段"), MessageTypeChunk},
		{"answer", AnswerMessage("完整回答", "conv-1"), MessageTypeAnswer},
		{"error", ErrorMessage("voice_error", "boom"), MessageTypeError},
		{"speaking_start", SpeakingStartMessage(), MessageTypeSpeakingStart},
		{"speaking_end", SpeakingEndMessage(), MessageTypeSpeakingEnd},
		{"pong", PongMessage(), MessageTypePong},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var decoded map[string]any
			if err := json.Unmarshal(tc.payload, &decoded); err != nil {
				t.Fatalf("payload is not valid JSON: %v", err)
			}
			if got := decoded["type"]; got != string(tc.wantType) {
				t.Errorf("unexpected type %v, want %s", got, tc.wantType)
			}
		})
	}
}

func TestAnswerMessageFields(t *testing.T) {
	var decoded outboundMessage
	if err := json.Unmarshal(AnswerMessage("回答内容", "conv-9"), &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded.Text != "回答内容" {
		t.Errorf("answer text lost: %+v", decoded)
	}
	if decoded.ConversationID != "conv-9" {
		t.Errorf("conversation id lost: %+v", decoded)
	}
}
