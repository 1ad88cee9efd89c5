package engine

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sparklearn/sparkbot/internal/engine/conversation"
	"github.com/sparklearn/sparkbot/internal/engine/prompt"
	"github.com/sparklearn/sparkbot/internal/engine/stream"
	"github.com/sparklearn/sparkbot/internal/model/chat"
	"github.com/sparklearn/sparkbot/internal/model/persona"
)

// ErrBusy rejects a send while a previous response is still in flight.
var ErrBusy = errors.New("a response is already in flight")

// State names the session's position in its send lifecycle.
type State string

const (
	StateIdle        State = "idle"
	StateDispatching State = "dispatching"
	StateStreaming   State = "streaming"
)

// Subscriber receives a snapshot of the turn log after every mutation.
// Callbacks run outside the session lock; the snapshot is a copy and
// safe to retain.
type Subscriber func(turns []chat.Turn)

// Session is one persona conversation. All mutation is serialized under
// a single lock, and every mutation re-checks the epoch captured at
// send time so that deliveries superseded by a reset are dropped instead
// of applied.
type Session struct {
	id        string
	persona   persona.Persona
	createdAt time.Time

	backend  Backend
	profiles ProfileProvider
	usage    UsageRecorder

	mu          sync.Mutex
	conv        *conversation.Store
	state       State
	cancel      context.CancelFunc
	subscribers map[int]Subscriber
	nextSub     int
	staleDrops  uint64
}

// NewSession creates an idle session bound to a persona and its
// collaborators.
func NewSession(p persona.Persona, backend Backend, profiles ProfileProvider, usage UsageRecorder) *Session {
	return &Session{
		id:          uuid.NewString(),
		persona:     p,
		createdAt:   time.Now().UTC(),
		backend:     backend,
		profiles:    profiles,
		usage:       usage,
		conv:        conversation.NewStore(),
		state:       StateIdle,
		subscribers: make(map[int]Subscriber),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Persona returns the persona this session speaks as.
func (s *Session) Persona() persona.Persona { return s.persona }

// CreatedAt returns the session creation time.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Epoch returns the current epoch of the session's conversation.
func (s *Session) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv.Epoch()
}

// InFlight reports whether a request has been dispatched and not yet
// finished.
func (s *Session) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != StateIdle
}

// Turns returns a snapshot copy of the conversation.
func (s *Session) Turns() []chat.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv.Turns()
}

// StaleDrops reports how many deliveries have been fenced off since the
// session was created. Observability only.
func (s *Session) StaleDrops() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.staleDrops
}

// Subscribe registers a turn-change callback and returns its
// unsubscribe function.
func (s *Session) Subscribe(fn Subscriber) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

// Send validates the input, appends the user turn, assembles the request
// payload and dispatches the backend call. It returns ErrBusy while a
// previous response is in flight and conversation.ErrEmptyMessage for
// blank input; both leave the session unchanged.
func (s *Session) Send(ctx context.Context, text string) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrBusy
	}

	userTurn, err := s.conv.AppendUser(text)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	epoch := s.conv.Epoch()
	payload := s.buildPayload()
	opts := ChatOptions{ModelID: s.persona.ModelID, Stream: true}
	s.state = StateDispatching

	// The stream outlives the dispatching call; reset cancels it as a
	// transport-level optimization, correctness rests on the epoch fence.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.mu.Unlock()

	s.notify()
	log.Printf("[session] dispatch persona=%s turn=%s epoch=%d", s.persona.ID, userTurn.ID, epoch)

	go s.run(runCtx, epoch, payload, opts)
	return nil
}

// Reset starts a new chat: it advances the epoch so chunks from any
// superseded request are dropped on arrival, clears the turn log and
// returns the session to idle. Callable at any time, including
// mid-stream. Returns the new epoch.
func (s *Session) Reset() uint64 {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	epoch := s.conv.Reset()
	s.state = StateIdle
	s.mu.Unlock()

	s.notify()
	log.Printf("[session] reset persona=%s epoch=%d", s.persona.ID, epoch)
	return epoch
}

// Close abandons any in-flight work. The session must not be used after
// Close.
func (s *Session) Close() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()
}

// buildPayload assembles the outbound messages: the persona system
// prompt followed by every complete turn. The caller holds s.mu.
func (s *Session) buildPayload() []Message {
	system := prompt.Build(s.persona.ID, s.profiles.Profile())
	history := s.conv.Completed()

	messages := make([]Message, 0, len(history)+1)
	messages = append(messages, Message{Role: RoleSystem, Text: system})
	for _, t := range history {
		messages = append(messages, Message{Role: t.Role, Text: t.Text})
	}
	return messages
}

// run drives one backend call to completion. It owns no session state
// directly: every mutation goes through an epoch-checked helper.
func (s *Session) run(ctx context.Context, epoch uint64, payload []Message, opts ChatOptions) {
	rs, err := s.backend.StreamChat(ctx, payload, opts)
	if err != nil {
		s.failTurn(epoch, "", err)
		return
	}
	defer func() {
		if cerr := rs.Close(); cerr != nil {
			log.Printf("[session] close stream: %v", cerr)
		}
	}()

	var turnID string
	for {
		chunk, recvErr := rs.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			s.failTurn(epoch, turnID, recvErr)
			return
		}

		delta := stream.Decode(chunk)
		if delta == "" {
			continue
		}

		id, ok := s.applyDelta(epoch, turnID, delta)
		if !ok {
			return
		}
		turnID = id
	}

	s.completeTurn(epoch, turnID)
}

// applyDelta appends one decoded delta under the epoch fence, creating
// the assistant turn lazily on the first delivery. It returns false when
// the delivery is stale and the caller should abandon the stream.
func (s *Session) applyDelta(epoch uint64, turnID, delta string) (string, bool) {
	s.mu.Lock()
	if s.conv.Epoch() != epoch {
		s.staleDrops++
		s.mu.Unlock()
		return "", false
	}

	if turnID == "" {
		turn, err := s.conv.BeginAssistant()
		if err != nil {
			// Unreachable given the state machine; absorb rather than
			// corrupt the log.
			log.Printf("[session] begin assistant: %v", err)
			s.mu.Unlock()
			return "", false
		}
		turnID = turn.ID
		s.state = StateStreaming
	}

	s.conv.AppendDelta(turnID, delta)
	s.mu.Unlock()

	s.notify()
	return turnID, true
}

// completeTurn finalizes the assistant turn and fires usage accounting.
// A stream that ended without producing any delta still yields an empty
// complete turn so the caller sees the exchange settle.
func (s *Session) completeTurn(epoch uint64, turnID string) {
	s.mu.Lock()
	if s.conv.Epoch() != epoch {
		s.staleDrops++
		s.mu.Unlock()
		return
	}

	if turnID == "" {
		turn, err := s.conv.BeginAssistant()
		if err != nil {
			log.Printf("[session] begin assistant: %v", err)
			s.mu.Unlock()
			return
		}
		turnID = turn.ID
	}

	s.conv.Finalize(turnID)
	s.state = StateIdle
	s.cancel = nil
	s.mu.Unlock()

	s.notify()
	go s.recordUsage()
}

// failTurn converts a backend failure into a single failed turn carrying
// the fixed apology message. When the failure precedes any delta, the
// assistant turn is created synthetically first.
func (s *Session) failTurn(epoch uint64, turnID string, cause error) {
	log.Printf("[session] backend error persona=%s: %v", s.persona.ID, cause)

	s.mu.Lock()
	if s.conv.Epoch() != epoch {
		s.staleDrops++
		s.mu.Unlock()
		return
	}

	if turnID == "" {
		turn, err := s.conv.BeginAssistant()
		if err != nil {
			log.Printf("[session] begin assistant: %v", err)
			s.mu.Unlock()
			return
		}
		turnID = turn.ID
	}

	s.conv.Fail(turnID)
	s.state = StateIdle
	s.cancel = nil
	s.mu.Unlock()

	s.notify()
}

// recordUsage makes the single best-effort accounting attempt.
func (s *Session) recordUsage() {
	if s.usage == nil {
		return
	}
	if err := s.usage.RecordTurnCompleted(s.persona.ID); err != nil {
		log.Printf("[session] usage record failed: %v", err)
	}
}

// notify delivers a fresh snapshot to every subscriber. Snapshot and
// subscriber list are captured under the lock, callbacks run outside it
// so they may call back into the session.
func (s *Session) notify() {
	s.mu.Lock()
	snapshot := s.conv.Turns()
	fns := make([]Subscriber, 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(snapshot)
	}
}
