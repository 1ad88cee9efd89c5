package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sparklearn/sparkbot/internal/engine"
	"github.com/sparklearn/sparkbot/internal/engine/stream"
	"github.com/sparklearn/sparkbot/internal/model/chat"
)

func TestOpenAICompatStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected auth header %q", got)
		}

		var body struct {
			Model    string `json:"model"`
			Stream   bool   `json:"stream"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body.Model != "gpt-5-nano" || !body.Stream {
			t.Errorf("unexpected request: %+v", body)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		fmt.Fprint(w, ": comment line ignored\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n")
		fmt.Fprint(w, "data: not-json\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	backend := NewOpenAICompatBackend(server.URL, "secret")
	rs, err := backend.StreamChat(context.Background(), []engine.Message{
		{Role: engine.RoleSystem, Text: "sys"},
		{Role: chat.RoleUser, Text: "hi"},
	}, engine.ChatOptions{ModelID: "gpt-5-nano", Stream: true})
	if err != nil {
		t.Fatalf("StreamChat err: %v", err)
	}
	defer rs.Close()

	var text string
	for {
		chunk, err := rs.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Recv err: %v", err)
		}
		text += stream.Decode(chunk)
	}

	if text != "Hello" {
		t.Fatalf("expected decoded text %q, got %q", "Hello", text)
	}
}

func TestOpenAICompatErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	backend := NewOpenAICompatBackend(server.URL, "")
	if _, err := backend.StreamChat(context.Background(), nil, engine.ChatOptions{ModelID: "m"}); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestEchoBackendRepeatsLastUserMessage(t *testing.T) {
	backend := &EchoBackend{}
	rs, err := backend.StreamChat(context.Background(), []engine.Message{
		{Role: chat.RoleUser, Text: "first"},
		{Role: chat.RoleAssistant, Text: "reply"},
		{Role: chat.RoleUser, Text: "second"},
	}, engine.ChatOptions{})
	if err != nil {
		t.Fatalf("StreamChat err: %v", err)
	}

	var text string
	for {
		chunk, err := rs.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Recv err: %v", err)
		}
		text += stream.Decode(chunk)
	}

	if text != "You said: second " {
		t.Fatalf("unexpected echo %q", text)
	}
}
