package usage

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sparklearn/sparkbot/internal/config"
	"github.com/sparklearn/sparkbot/internal/model/persona"
)

func TestRecordTurnCompletedIncrementsCount(t *testing.T) {
	var gotPut map[string]int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/users/me" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token" {
			t.Errorf("unexpected auth header %q", got)
		}

		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(map[string]any{"chat_count": 3})
		case http.MethodPut:
			if err := json.NewDecoder(r.Body).Decode(&gotPut); err != nil {
				t.Errorf("decode put body: %v", err)
			}
			w.WriteHeader(http.StatusOK)
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	}))
	defer server.Close()

	recorder := NewHTTPRecorder(config.UpstreamConfig{BaseURL: server.URL, Token: "token"})
	if err := recorder.RecordTurnCompleted(persona.General); err != nil {
		t.Fatalf("RecordTurnCompleted err: %v", err)
	}

	if gotPut["chat_count"] != 4 {
		t.Fatalf("expected chat_count 4, got %v", gotPut)
	}
}

func TestRecordTurnCompletedSurfacesFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer server.Close()

	recorder := NewHTTPRecorder(config.UpstreamConfig{BaseURL: server.URL, Token: "token"})
	if err := recorder.RecordTurnCompleted(persona.General); err == nil {
		t.Fatal("expected error for unauthorized upstream")
	}
}

func TestNoopRecorder(t *testing.T) {
	if err := (NoopRecorder{}).RecordTurnCompleted(persona.Code); err != nil {
		t.Fatalf("noop recorder err: %v", err)
	}
}
