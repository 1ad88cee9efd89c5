package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sparklearn/sparkbot/internal/engine"
)

// OpenAICompatBackend streams chat completions from any endpoint that
// speaks the OpenAI SSE wire format. Each data line is decoded to an
// untyped value and handed to the engine as-is; the stream decoder sorts
// out the shape, so provider-specific chunk variants need no code here.
type OpenAICompatBackend struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewOpenAICompatBackend returns a backend for the given endpoint. The
// client carries no timeout: streams may be arbitrarily long-lived, and
// per-request contexts bound the dial instead.
func NewOpenAICompatBackend(baseURL, apiKey string) *OpenAICompatBackend {
	return &OpenAICompatBackend{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{},
	}
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// StreamChat opens one streaming completion request.
func (b *OpenAICompatBackend) StreamChat(ctx context.Context, messages []engine.Message, opts engine.ChatOptions) (engine.Stream, error) {
	wire := wireRequest{Model: opts.ModelID, Stream: true}
	for _, m := range messages {
		wire.Messages = append(wire.Messages, wireMessage{Role: string(m.Role), Content: m.Text})
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("chat endpoint returned %d: %s", resp.StatusCode, bytes.TrimSpace(payload))
	}

	return &sseStream{reader: bufio.NewReader(resp.Body), closer: resp.Body}, nil
}

// sseStream parses "data:" lines off the response body. Undecodable
// lines are skipped rather than surfaced; a malformed chunk is the
// backend's problem, not the conversation's.
type sseStream struct {
	reader *bufio.Reader
	closer io.Closer
}

func (s *sseStream) Recv() (any, error) {
	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, err
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 || !bytes.HasPrefix(line, []byte("data: ")) {
			continue
		}

		data := bytes.TrimPrefix(line, []byte("data: "))
		if string(data) == "[DONE]" {
			return nil, io.EOF
		}

		var chunk any
		if err := json.Unmarshal(data, &chunk); err != nil {
			continue
		}
		return chunk, nil
	}
}

func (s *sseStream) Close() error {
	return s.closer.Close()
}

// EchoBackend is the credential-less development backend: it repeats the
// last user message back in small word chunks, pacing them so streaming
// paths are exercised end to end.
type EchoBackend struct {
	// Delay between chunks; zero means no pacing (tests).
	Delay time.Duration
}

// StreamChat yields a canned streaming response.
func (b *EchoBackend) StreamChat(_ context.Context, messages []engine.Message, _ engine.ChatOptions) (engine.Stream, error) {
	last := ""
	for _, m := range messages {
		if m.Role == "user" {
			last = m.Text
		}
	}

	text := "You said: " + last
	var chunks []any
	for _, word := range bytes.Fields([]byte(text)) {
		chunks = append(chunks, map[string]any{"text": string(word) + " "})
	}
	return &echoStream{chunks: chunks, delay: b.Delay}, nil
}

type echoStream struct {
	chunks []any
	next   int
	delay  time.Duration
}

func (s *echoStream) Recv() (any, error) {
	if s.next >= len(s.chunks) {
		return nil, io.EOF
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	chunk := s.chunks[s.next]
	s.next++
	return chunk, nil
}

func (s *echoStream) Close() error { return nil }
