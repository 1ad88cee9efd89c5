// Package engine implements the streaming chat session core: it turns
// user inputs into a bounded conversation history, dispatches requests
// to a pluggable model backend and renders the resulting chunk stream
// into a growing assistant turn, with reset-by-epoch cancellation.
package engine

import (
	"context"

	"github.com/sparklearn/sparkbot/internal/engine/prompt"
	"github.com/sparklearn/sparkbot/internal/model/chat"
	"github.com/sparklearn/sparkbot/internal/model/persona"
)

// Message is one role/text pair of an outbound request payload.
type Message struct {
	Role chat.Role `json:"role"`
	Text string    `json:"text"`
}

// RoleSystem marks the system-prompt message of a request payload. User
// and assistant roles reuse the chat package constants.
const RoleSystem chat.Role = "system"

// ChatOptions carries per-request backend options.
type ChatOptions struct {
	ModelID string
	Stream  bool
}

// Backend is the pluggable model collaborator. StreamChat may fail
// before yielding any element; the returned stream is a finite sequence
// of opaquely-shaped chunks terminated by io.EOF.
type Backend interface {
	StreamChat(ctx context.Context, messages []Message, opts ChatOptions) (Stream, error)
}

// Stream delivers incremental model output. Recv returns io.EOF when the
// backend signals completion. Chunk shapes are backend-defined; callers
// normalize them through the stream decoder.
type Stream interface {
	Recv() (any, error)
	Close() error
}

// ProfileProvider reads the user context interpolated into system
// prompts. Missing fields default to generic placeholders.
type ProfileProvider interface {
	Profile() prompt.Profile
}

// UsageRecorder is the post-turn accounting collaborator. Calls are
// fire-and-forget single attempts; the engine logs and swallows any
// error and never retries.
type UsageRecorder interface {
	RecordTurnCompleted(p persona.ID) error
}
