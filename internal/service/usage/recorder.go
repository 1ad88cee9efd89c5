// Package usage implements post-turn accounting against the upstream
// application backend. Recording is best-effort: one attempt, errors
// surfaced to the caller for logging, never retried.
package usage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/sparklearn/sparkbot/internal/config"
	"github.com/sparklearn/sparkbot/internal/model/persona"
)

// HTTPRecorder bumps the user's chat count on the upstream profile API:
// read the current count, write count+1. There is no atomic increment
// endpoint upstream, so a lost update under concurrent turns is
// tolerated; this is usage telemetry, not billing.
type HTTPRecorder struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPRecorder builds a recorder against the upstream API.
func NewHTTPRecorder(cfg config.UpstreamConfig) *HTTPRecorder {
	return &HTTPRecorder{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// RecordTurnCompleted increments the chat count for one finished turn.
func (r *HTTPRecorder) RecordTurnCompleted(p persona.ID) error {
	count, err := r.currentCount()
	if err != nil {
		return fmt.Errorf("failed to read chat count: %w", err)
	}

	body, err := json.Marshal(map[string]int{"chat_count": count + 1})
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPut, r.baseURL+"/api/users/me", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.token)

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to update chat count: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("chat count update returned %d", resp.StatusCode)
	}

	log.Printf("[usage] recorded turn persona=%s count=%d", p, count+1)
	return nil
}

func (r *HTTPRecorder) currentCount() (int, error) {
	req, err := http.NewRequest(http.MethodGet, r.baseURL+"/api/users/me", nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+r.token)

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("profile read returned %d", resp.StatusCode)
	}

	var body struct {
		ChatCount int `json:"chat_count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, err
	}
	return body.ChatCount, nil
}

// NoopRecorder drops usage records; used when no upstream is configured.
type NoopRecorder struct{}

// RecordTurnCompleted does nothing.
func (NoopRecorder) RecordTurnCompleted(persona.ID) error { return nil }
