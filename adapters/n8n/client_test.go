package n8n

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/prakoso/voicecoach/domain/repositories"
)

func TestSendReturnsReply(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req["message"] != "你好" {
			t.Errorf("unexpected message %q", req["message"])
		}
		if req["sessionId"] != "sess-1" {
			t.Errorf("unexpected session id %q", req["sessionId"])
		}
		json.NewEncoder(w).Encode(map[string]string{"output": "您好，很高兴见到您"})
	}))
	defer server.Close()

	client, err := NewClient(Config{WebhookURL: server.URL}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	reply, err := client.Send(context.Background(), repositories.DialogueRequest{
		Query:          "你好",
		ConversationID: "sess-1",
		User:           "trainee-1",
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if reply != "您好，很高兴见到您" {
		t.Errorf("unexpected reply %q", reply)
	}
}

func TestSendOutputFieldAliases(t *testing.T) {
	for _, field := range []string{"output", "text", "answer"} {
		field := field
		t.Run(field, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]string{field: "回复"})
			}))
			defer server.Close()

			client, err := NewClient(Config{WebhookURL: server.URL}, zaptest.NewLogger(t))
			if err != nil {
				t.Fatalf("NewClient failed: %v", err)
			}
			reply, err := client.Send(context.Background(), repositories.DialogueRequest{Query: "测试"})
			if err != nil {
				t.Fatalf("Send failed: %v", err)
			}
			if reply != "回复" {
				t.Errorf("unexpected reply %q", reply)
			}
		})
	}
}

func TestSendNonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "workflow not active", http.StatusNotFound)
	}))
	defer server.Close()

	client, err := NewClient(Config{WebhookURL: server.URL}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	_, err = client.Send(context.Background(), repositories.DialogueRequest{Query: "测试"})
	var statusErr *repositories.UpstreamStatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected UpstreamStatusError, got %v", err)
	}
	if statusErr.Status != http.StatusNotFound {
		t.Errorf("unexpected status %d", statusErr.Status)
	}
}

func TestSendEmptyReply(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer server.Close()

	client, err := NewClient(Config{WebhookURL: server.URL}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	if _, err := client.Send(context.Background(), repositories.DialogueRequest{Query: "测试"}); err == nil {
		t.Error("empty workflow response accepted")
	}
}
