package ws

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/sparklearn/sparkbot/internal/engine"
	"github.com/sparklearn/sparkbot/internal/engine/prompt"
	"github.com/sparklearn/sparkbot/internal/model/chat"
	"github.com/sparklearn/sparkbot/internal/model/persona"
	"github.com/sparklearn/sparkbot/internal/service/ai"
	"github.com/sparklearn/sparkbot/internal/service/usage"
)

type staticProfiles struct{}

func (staticProfiles) Profile() prompt.Profile { return prompt.Profile{Name: "Ann"} }

// gateStream blocks until released, then ends the stream. Lets tests
// hold a response in flight for as long as they need.
type gateStream struct {
	release chan struct{}
}

func (s *gateStream) Recv() (any, error) {
	<-s.release
	return nil, io.EOF
}

func (s *gateStream) Close() error { return nil }

type gateBackend struct {
	stream *gateStream
}

func (b *gateBackend) StreamChat(context.Context, []engine.Message, engine.ChatOptions) (engine.Stream, error) {
	return b.stream, nil
}

func newTestServer(t *testing.T, backend engine.Backend) (*httptest.Server, *engine.Manager) {
	t.Helper()
	store := persona.NewMemoryStore(persona.Seed())
	manager := engine.NewManager(store, backend, staticProfiles{}, usage.NoopRecorder{})

	r := chi.NewRouter()
	New(manager).RegisterRoutes(r)

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server, manager
}

func dial(t *testing.T, server *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) outboundFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var frame outboundFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

// waitForFrame reads frames until one satisfies the predicate. Snapshot
// pushes arrive per mutation, so intermediate frames are expected.
func waitForFrame(t *testing.T, conn *websocket.Conn, desc string, pred func(outboundFrame) bool) outboundFrame {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		frame := readFrame(t, conn)
		if pred(frame) {
			return frame
		}
	}
	t.Fatalf("timed out waiting for %s", desc)
	return outboundFrame{}
}

func settled(frame outboundFrame) bool {
	if frame.Type != "turns" || len(frame.Turns) == 0 {
		return false
	}
	last := frame.Turns[len(frame.Turns)-1]
	return last.Role == chat.RoleAssistant && last.Final()
}

func TestWebSocketInitialSnapshot(t *testing.T) {
	server, manager := newTestServer(t, &ai.EchoBackend{})
	session, err := manager.Create(persona.General)
	if err != nil {
		t.Fatalf("Create err: %v", err)
	}

	conn := dial(t, server, session.ID())

	frame := readFrame(t, conn)
	if frame.Type != "turns" {
		t.Fatalf("expected turns frame, got %q", frame.Type)
	}
	if len(frame.Turns) != 0 || frame.Epoch != 0 {
		t.Fatalf("expected empty snapshot at epoch 0, got %+v", frame)
	}
	if frame.SessionID != session.ID() {
		t.Fatalf("frame carries wrong session id %q", frame.SessionID)
	}
	if frame.Timestamp == 0 {
		t.Fatal("frame missing timestamp")
	}
}

func TestWebSocketUnknownSession(t *testing.T) {
	server, _ := newTestServer(t, &ai.EchoBackend{})

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/missing"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		conn.Close()
		t.Fatal("expected handshake to fail for unknown session")
	}
	if resp == nil || resp.StatusCode != 404 {
		t.Fatalf("expected 404 handshake response, got %+v", resp)
	}
}

func TestWebSocketSendStreamsTurns(t *testing.T) {
	server, manager := newTestServer(t, &ai.EchoBackend{})
	session, err := manager.Create(persona.General)
	if err != nil {
		t.Fatalf("Create err: %v", err)
	}

	conn := dial(t, server, session.ID())
	readFrame(t, conn) // initial snapshot

	if err := conn.WriteJSON(inboundFrame{Type: "send", Text: "hi there"}); err != nil {
		t.Fatalf("write send frame: %v", err)
	}

	frame := waitForFrame(t, conn, "settled assistant turn", settled)
	last := frame.Turns[len(frame.Turns)-1]
	if last.Status != chat.StatusComplete {
		t.Fatalf("expected complete turn, got %s", last.Status)
	}
	if !strings.Contains(last.Text, "You said: hi there") {
		t.Fatalf("unexpected assistant text %q", last.Text)
	}
	if frame.Turns[0].Role != chat.RoleUser || frame.Turns[0].Text != "hi there" {
		t.Fatalf("unexpected user turn %+v", frame.Turns[0])
	}
}

func TestWebSocketResetClearsTurns(t *testing.T) {
	server, manager := newTestServer(t, &ai.EchoBackend{})
	session, err := manager.Create(persona.General)
	if err != nil {
		t.Fatalf("Create err: %v", err)
	}

	conn := dial(t, server, session.ID())
	readFrame(t, conn)

	if err := conn.WriteJSON(inboundFrame{Type: "send", Text: "hello"}); err != nil {
		t.Fatalf("write send frame: %v", err)
	}
	waitForFrame(t, conn, "settled assistant turn", settled)

	if err := conn.WriteJSON(inboundFrame{Type: "reset"}); err != nil {
		t.Fatalf("write reset frame: %v", err)
	}

	frame := waitForFrame(t, conn, "empty snapshot after reset", func(f outboundFrame) bool {
		return f.Type == "turns" && len(f.Turns) == 0 && f.Epoch == 1
	})
	if frame.Epoch != 1 {
		t.Fatalf("expected epoch 1 after reset, got %d", frame.Epoch)
	}
}

func TestWebSocketErrorFrames(t *testing.T) {
	server, manager := newTestServer(t, &ai.EchoBackend{})
	session, err := manager.Create(persona.General)
	if err != nil {
		t.Fatalf("Create err: %v", err)
	}

	conn := dial(t, server, session.ID())
	readFrame(t, conn)

	if err := conn.WriteJSON(inboundFrame{Type: "bogus"}); err != nil {
		t.Fatalf("write bogus frame: %v", err)
	}
	frame := waitForFrame(t, conn, "unknown-type error", func(f outboundFrame) bool {
		return f.Type == "error"
	})
	if frame.Error != "unknown frame type" {
		t.Fatalf("unexpected error text %q", frame.Error)
	}

	if err := conn.WriteJSON(inboundFrame{Type: "send", Text: "   "}); err != nil {
		t.Fatalf("write empty send frame: %v", err)
	}
	frame = waitForFrame(t, conn, "empty-message error", func(f outboundFrame) bool {
		return f.Type == "error"
	})
	if frame.Error != "message must not be empty" {
		t.Fatalf("unexpected error text %q", frame.Error)
	}
}

func TestWebSocketBusyRejected(t *testing.T) {
	gate := &gateStream{release: make(chan struct{})}
	server, manager := newTestServer(t, &gateBackend{stream: gate})
	session, err := manager.Create(persona.General)
	if err != nil {
		t.Fatalf("Create err: %v", err)
	}

	conn := dial(t, server, session.ID())
	readFrame(t, conn)

	if err := conn.WriteJSON(inboundFrame{Type: "send", Text: "first"}); err != nil {
		t.Fatalf("write first send: %v", err)
	}
	if err := conn.WriteJSON(inboundFrame{Type: "send", Text: "second"}); err != nil {
		t.Fatalf("write second send: %v", err)
	}

	frame := waitForFrame(t, conn, "busy error", func(f outboundFrame) bool {
		return f.Type == "error"
	})
	if frame.Error != "a response is already in flight" {
		t.Fatalf("unexpected error text %q", frame.Error)
	}

	close(gate.release)
	frame = waitForFrame(t, conn, "settled assistant turn", settled)
	if len(frame.Turns) != 2 {
		t.Fatalf("expected user + assistant turn, got %+v", frame.Turns)
	}
}
