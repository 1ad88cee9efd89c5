// Package conversation owns the ordered turn log for one chat session:
// turn identity, status transitions and the epoch fence used to discard
// stale streaming deliveries after a reset.
package conversation

import (
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/sparklearn/sparkbot/internal/model/chat"
)

var (
	// ErrEmptyMessage rejects user input that trims to nothing.
	ErrEmptyMessage = errors.New("message text is empty")
	// ErrStreamInProgress guards against a second in-flight assistant turn.
	ErrStreamInProgress = errors.New("assistant turn already streaming")
)

// FailureText is the fixed user-facing message shown for a failed turn.
const FailureText = "Sorry, I encountered an error while processing your request."

// Store is an append-only (with in-place update) log of turns. It is not
// safe for concurrent use: the owning session serializes all access
// through its own lock.
type Store struct {
	epoch uint64
	turns []chat.Turn
}

// NewStore returns an empty store at epoch zero.
func NewStore() *Store {
	return &Store{}
}

// Epoch returns the current epoch. Deliveries captured under an earlier
// epoch must be dropped by the caller.
func (s *Store) Epoch() uint64 {
	return s.epoch
}

// Turns returns a snapshot copy of the turn log.
func (s *Store) Turns() []chat.Turn {
	out := make([]chat.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Completed returns the turns eligible for request history. Failed turns
// carry placeholder error text, not model output, so they are excluded.
func (s *Store) Completed() []chat.Turn {
	out := make([]chat.Turn, 0, len(s.turns))
	for _, t := range s.turns {
		if t.Status == chat.StatusComplete {
			out = append(out, t)
		}
	}
	return out
}

// AppendUser appends a complete user turn with a fresh id.
func (s *Store) AppendUser(text string) (chat.Turn, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return chat.Turn{}, ErrEmptyMessage
	}

	turn := chat.Turn{
		ID:     uuid.NewString(),
		Role:   chat.RoleUser,
		Text:   trimmed,
		Status: chat.StatusComplete,
	}
	s.turns = append(s.turns, turn)
	return turn, nil
}

// BeginAssistant appends an empty streaming assistant turn. At most one
// turn per session may be streaming at a time.
func (s *Store) BeginAssistant() (chat.Turn, error) {
	if n := len(s.turns); n > 0 && s.turns[n-1].Status == chat.StatusStreaming {
		return chat.Turn{}, ErrStreamInProgress
	}

	turn := chat.Turn{
		ID:     uuid.NewString(),
		Role:   chat.RoleAssistant,
		Status: chat.StatusStreaming,
	}
	s.turns = append(s.turns, turn)
	return turn, nil
}

// AppendDelta concatenates text onto the matching turn if and only if it
// is still streaming. Unresolvable or finalized turn ids are treated as
// stale deliveries and ignored.
func (s *Store) AppendDelta(turnID, text string) {
	if i, ok := s.index(turnID); ok && s.turns[i].Status == chat.StatusStreaming {
		s.turns[i].Text += text
	}
}

// Finalize transitions the matching turn to complete. Idempotent; no-ops
// on unresolvable ids and already-final turns.
func (s *Store) Finalize(turnID string) {
	if i, ok := s.index(turnID); ok && s.turns[i].Status == chat.StatusStreaming {
		s.turns[i].Status = chat.StatusComplete
	}
}

// Fail transitions the matching turn to failed and replaces its text with
// the fixed user-facing error message. No-ops on unresolvable ids and
// already-final turns.
func (s *Store) Fail(turnID string) {
	if i, ok := s.index(turnID); ok && !s.turns[i].Final() {
		s.turns[i].Status = chat.StatusFailed
		s.turns[i].Text = FailureText
	}
}

// Reset clears the turn log and advances the epoch, fencing off any
// deliveries still in flight for the previous epoch.
func (s *Store) Reset() uint64 {
	s.turns = nil
	s.epoch++
	return s.epoch
}

func (s *Store) index(turnID string) (int, bool) {
	for i := range s.turns {
		if s.turns[i].ID == turnID {
			return i, true
		}
	}
	return 0, false
}
