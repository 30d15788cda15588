package entities

import "testing"

func TestStreamSessionAccumulatesAnswer(t *testing.T) {
	session := NewStreamSession("turn-1", "")

	session.AppendFragment("你", "conv-1", "msg-1")
	session.AppendFragment("好，我是教练", "", "")

	if got := session.Answer(); got != "你好，我是教练" {
		t.Errorf("accumulated answer mismatch: %q", got)
	}
	if session.ConversationID != "conv-1" {
		t.Errorf("conversation id not captured: %q", session.ConversationID)
	}
	if session.MessageID != "msg-1" {
		t.Errorf("message id not captured: %q", session.MessageID)
	}
}

func TestStreamSessionEmptyIDsDoNotOverwrite(t *testing.T) {
	session := NewStreamSession("turn-1", "conv-existing")

	session.AppendFragment("文本", "", "")

	if session.ConversationID != "conv-existing" {
		t.Errorf("empty frame id overwrote conversation id: %q", session.ConversationID)
	}
}

func TestStreamSessionEnded(t *testing.T) {
	session := NewStreamSession("turn-1", "")
	if session.Ended() {
		t.Error("new session already ended")
	}
	session.MarkEnded()
	if !session.Ended() {
		t.Error("session not ended after MarkEnded")
	}
}
