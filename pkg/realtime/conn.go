package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/saker-ai/phoneai-client/internal/session/fsm"
)

// Transport is the frame-level socket a Conn drives. *websocket.Conn satisfies it.
type Transport interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// DialFunc opens a transport to url.
type DialFunc func(ctx context.Context, url string) (Transport, error)

// WebSocketDialer dials with gorilla/websocket. No handshake timeout is applied.
func WebSocketDialer(header http.Header) DialFunc {
	return func(ctx context.Context, url string) (Transport, error) {
		dialer := websocket.Dialer{}
		conn, resp, err := dialer.DialContext(ctx, url, header)
		if err != nil {
			if resp != nil {
				return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
			}
			return nil, fmt.Errorf("dial %s: %w", url, err)
		}
		return conn, nil
	}
}

// ConnEvents receives the events of one Conn. All events of a Conn are
// delivered from a single goroutine, in transport order.
type ConnEvents struct {
	OnState   func(conn *Conn, state fsm.State, err error)
	OnMessage func(conn *Conn, data []byte)
}

// Manager opens connections. It never reconnects on its own.
type Manager struct {
	dial   DialFunc
	logger *zap.Logger
}

// NewManager executes the newManager function.
func NewManager(dial DialFunc, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dial == nil {
		dial = WebSocketDialer(nil)
	}
	return &Manager{dial: dial, logger: logger}
}

// Open starts connecting to url in the background and returns the handle
// immediately, in the connecting state.
func (m *Manager) Open(ctx context.Context, url string, events ConnEvents) *Conn {
	dialCtx, cancel := context.WithCancel(ctx)
	id := uuid.NewString()
	conn := &Conn{
		id:      id,
		url:     url,
		logger:  m.logger.With(zap.String("conn_id", id)),
		events:  events,
		machine: fsm.New(),
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
		cancel:  cancel,
	}
	go conn.run(dialCtx, m.dial)
	return conn
}

// Conn is one connection attempt and, once open, the live socket.
// A Conn is never reopened; reconnecting means opening a new one.
type Conn struct {
	id      string
	url     string
	logger  *zap.Logger
	events  ConnEvents
	machine *fsm.Machine
	cancel  context.CancelFunc

	mu        sync.Mutex
	transport Transport
	closing   bool
	writeErr  error

	writeMu sync.Mutex

	ready chan struct{}
	done  chan struct{}
}

// ID returns the handle identifier used in logs.
func (c *Conn) ID() string {
	return c.id
}

// URL returns the endpoint this handle was opened against.
func (c *Conn) URL() string {
	return c.url
}

// State returns the current lifecycle state.
func (c *Conn) State() fsm.State {
	return c.machine.State()
}

// Err returns the transport error that closed the handle, if any.
func (c *Conn) Err() error {
	return c.machine.Err()
}

// Ready is closed when the handle becomes open.
func (c *Conn) Ready() <-chan struct{} {
	return c.ready
}

// Done is closed when the handle has shut down and emitted its last event.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Send writes one text frame. It fails with ErrNotReady unless the handle is open.
func (c *Conn) Send(data []byte) error {
	if state := c.machine.State(); state != fsm.StateOpen {
		return fmt.Errorf("%w: state %s", ErrNotReady, state)
	}
	c.mu.Lock()
	transport := c.transport
	c.mu.Unlock()
	if transport == nil {
		return fmt.Errorf("%w: no transport", ErrNotReady)
	}

	c.writeMu.Lock()
	err := transport.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		if c.writeErr == nil {
			c.writeErr = err
		}
		c.mu.Unlock()
		// The read loop observes the closed transport and reports the failure.
		_ = transport.Close()
		return &TransportError{Err: err}
	}
	return nil
}

// Close shuts the handle down. Safe to call repeatedly and on a closed handle.
func (c *Conn) Close() {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return
	}
	c.closing = true
	transport := c.transport
	c.mu.Unlock()

	c.cancel()
	if transport != nil {
		_ = transport.Close()
	}
	if c.machine.OnClose() {
		c.logger.Info("realtime connection closed", zap.String("url", c.url))
	}
}

func (c *Conn) run(ctx context.Context, dial DialFunc) {
	defer close(c.done)
	defer c.cancel()

	c.logger.Info("realtime connecting", zap.String("url", c.url))
	transport, err := dial(ctx, c.url)
	if err != nil {
		c.finish(err)
		return
	}

	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		_ = transport.Close()
		c.finish(nil)
		return
	}
	c.transport = transport
	c.mu.Unlock()

	if c.machine.OnOpen() {
		close(c.ready)
		c.logger.Info("realtime connected", zap.String("url", c.url))
		c.emitState(fsm.StateOpen, nil)
	}

	for {
		msgType, data, err := transport.ReadMessage()
		if err != nil {
			c.finish(err)
			return
		}
		if msgType != websocket.TextMessage {
			c.logger.Debug("realtime ignoring non-text frame", zap.Int("message_type", msgType))
			continue
		}
		if c.events.OnMessage != nil {
			c.events.OnMessage(c, data)
		}
	}
}

// finish closes the transport and emits the final closed event. err is
// reported as a TransportError unless the close was requested locally or was
// a clean close handshake.
func (c *Conn) finish(err error) {
	c.mu.Lock()
	closing := c.closing
	transport := c.transport
	if c.writeErr != nil {
		err = c.writeErr
	}
	c.closing = true
	c.mu.Unlock()

	if transport != nil {
		_ = transport.Close()
	}

	var cause error
	if err != nil && !closing && !isCleanClose(err) {
		cause = &TransportError{Err: err}
	}
	if cause != nil {
		if c.machine.OnError(cause) {
			c.logger.Warn("realtime connection failed", zap.String("url", c.url), zap.Error(err))
		}
	} else if c.machine.OnClose() {
		c.logger.Info("realtime connection closed", zap.String("url", c.url))
	}
	c.emitState(fsm.StateClosed, c.machine.Err())
}

func (c *Conn) emitState(state fsm.State, err error) {
	if c.events.OnState != nil {
		c.events.OnState(c, state, err)
	}
}

func isCleanClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) ||
		errors.Is(err, context.Canceled)
}
