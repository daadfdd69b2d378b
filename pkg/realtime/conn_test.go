package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/saker-ai/phoneai-client/internal/session/fsm"
)

type stateEvent struct {
	state fsm.State
	err   error
}

type eventLog struct {
	mu     sync.Mutex
	states []stateEvent
	frames []string
}

func (l *eventLog) events() ConnEvents {
	return ConnEvents{
		OnState: func(_ *Conn, state fsm.State, err error) {
			l.mu.Lock()
			l.states = append(l.states, stateEvent{state: state, err: err})
			l.mu.Unlock()
		},
		OnMessage: func(_ *Conn, data []byte) {
			l.mu.Lock()
			l.frames = append(l.frames, string(data))
			l.mu.Unlock()
		},
	}
}

func (l *eventLog) snapshot() ([]stateEvent, []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]stateEvent(nil), l.states...), append([]string(nil), l.frames...)
}

func waitDone(t *testing.T, conn *Conn) {
	t.Helper()
	select {
	case <-conn.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("connection did not shut down")
	}
}

func TestConnOpenDeliversMessagesInOrder(t *testing.T) {
	tr := newFakeTransport()
	var log eventLog
	conn := NewManager(staticDial(tr), nil).Open(context.Background(), "ws://agent.test/ws", log.events())

	<-conn.Ready()
	if got := conn.State(); got != fsm.StateOpen {
		t.Fatalf("state=%s, want %s", got, fsm.StateOpen)
	}
	tr.inbound <- []byte(`{"n":1}`)
	tr.inbound <- []byte(`{"n":2}`)
	waitFor(t, "two frames", func() bool {
		_, frames := log.snapshot()
		return len(frames) == 2
	})
	_, frames := log.snapshot()
	if frames[0] != `{"n":1}` || frames[1] != `{"n":2}` {
		t.Fatalf("frames=%v, want in delivery order", frames)
	}

	conn.Close()
	waitDone(t, conn)
	states, _ := log.snapshot()
	if len(states) != 2 || states[0].state != fsm.StateOpen || states[1].state != fsm.StateClosed {
		t.Fatalf("states=%v, want [open closed]", states)
	}
	if states[1].err != nil {
		t.Fatalf("close err=%v, want nil", states[1].err)
	}
}

func TestConnSendRequiresOpen(t *testing.T) {
	conn := NewManager(blockingDial, nil).Open(context.Background(), "ws://agent.test/ws", ConnEvents{})
	if got := conn.State(); got != fsm.StateConnecting {
		t.Fatalf("state=%s, want %s", got, fsm.StateConnecting)
	}
	if err := conn.Send([]byte(`{}`)); !errors.Is(err, ErrNotReady) {
		t.Fatalf("Send while connecting error=%v, want ErrNotReady", err)
	}
	conn.Close()
	waitDone(t, conn)
	if err := conn.Send([]byte(`{}`)); !errors.Is(err, ErrNotReady) {
		t.Fatalf("Send while closed error=%v, want ErrNotReady", err)
	}
	if err := conn.Err(); err != nil {
		t.Fatalf("Err after local close=%v, want nil", err)
	}
}

func TestConnCloseIsIdempotent(t *testing.T) {
	tr := newFakeTransport()
	var log eventLog
	conn := NewManager(staticDial(tr), nil).Open(context.Background(), "ws://agent.test/ws", log.events())
	<-conn.Ready()

	conn.Close()
	conn.Close()
	waitDone(t, conn)
	conn.Close()

	states, _ := log.snapshot()
	closed := 0
	for _, ev := range states {
		if ev.state == fsm.StateClosed {
			closed++
		}
	}
	if closed != 1 {
		t.Fatalf("closed events=%d, want 1", closed)
	}
}

func TestConnDialFailureIsTransportError(t *testing.T) {
	dialErr := errors.New("connection refused")
	dial := func(context.Context, string) (Transport, error) { return nil, dialErr }
	var log eventLog
	conn := NewManager(dial, nil).Open(context.Background(), "ws://agent.test/ws", log.events())
	waitDone(t, conn)

	if got := conn.State(); got != fsm.StateClosed {
		t.Fatalf("state=%s, want %s", got, fsm.StateClosed)
	}
	var transportErr *TransportError
	if !errors.As(conn.Err(), &transportErr) || !errors.Is(conn.Err(), dialErr) {
		t.Fatalf("Err=%v, want TransportError wrapping %v", conn.Err(), dialErr)
	}
	states, _ := log.snapshot()
	if len(states) != 1 || states[0].state != fsm.StateClosed || states[0].err == nil {
		t.Fatalf("states=%v, want one closed event with error", states)
	}
}

func TestConnReadFailureForcesClosed(t *testing.T) {
	tr := newFakeTransport()
	var log eventLog
	conn := NewManager(staticDial(tr), nil).Open(context.Background(), "ws://agent.test/ws", log.events())
	<-conn.Ready()

	tr.fail(errors.New("connection reset by peer"))
	waitDone(t, conn)
	if got := conn.State(); got != fsm.StateClosed {
		t.Fatalf("state=%s, want %s", got, fsm.StateClosed)
	}
	if conn.Err() == nil {
		t.Fatal("Err=nil, want transport error")
	}
}

func TestConnWriteFailureReportsTransportError(t *testing.T) {
	tr := newFakeTransport()
	tr.writeErr = errors.New("broken pipe")
	conn := NewManager(staticDial(tr), nil).Open(context.Background(), "ws://agent.test/ws", ConnEvents{})
	<-conn.Ready()

	err := conn.Send([]byte(`{}`))
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("Send error=%v, want TransportError", err)
	}
	waitDone(t, conn)
	if !errors.Is(conn.Err(), tr.writeErr) {
		t.Fatalf("Err=%v, want %v", conn.Err(), tr.writeErr)
	}
}

func TestConnCloseWithoutStatusIsClean(t *testing.T) {
	tr := newFakeTransport()
	var log eventLog
	conn := NewManager(staticDial(tr), nil).Open(context.Background(), "ws://agent.test/ws", log.events())
	<-conn.Ready()

	tr.fail(&websocket.CloseError{Code: websocket.CloseNoStatusReceived})
	waitDone(t, conn)
	if conn.Err() != nil {
		t.Fatalf("Err=%v, want nil", conn.Err())
	}
	states, _ := log.snapshot()
	last := states[len(states)-1]
	if last.state != fsm.StateClosed || last.err != nil {
		t.Fatalf("last event=%+v, want clean close", last)
	}
}
