package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/saker-ai/phoneai-client/internal/protocol"
	"github.com/saker-ai/phoneai-client/internal/session/fsm"
	"github.com/saker-ai/phoneai-client/internal/transport/realtime/codec"
	"github.com/saker-ai/phoneai-client/pkg/audio"
)

// Client represents a client.
type Client struct {
	cfg       Config
	logger    *zap.Logger
	callbacks Callbacks
	manager   *Manager

	// opMu serializes outbound operations and inbound dispatch so that no two
	// handlers interleave on the session.
	opMu sync.Mutex

	mu          sync.RWMutex
	conn        *Conn
	history     []protocol.Turn
	activeAgent string
	loading     bool
}

// NewClient executes the newClient function.
func NewClient(cfg Config, callbacks Callbacks, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	dial := cfg.Dial
	if dial == nil {
		dial = WebSocketDialer(cfg.Header)
	}
	return &Client{
		cfg:       cfg,
		logger:    logger,
		callbacks: callbacks,
		manager:   NewManager(dial, logger),
	}
}

// Connect opens a new connection handle. An existing handle is closed and
// replaced; nothing is reconnected automatically.
func (c *Client) Connect(ctx context.Context) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	previous := c.conn
	// Events of the new handle block on opMu until this call returns.
	c.conn = c.manager.Open(ctx, c.cfg.URL, ConnEvents{
		OnState:   c.onConnState,
		OnMessage: c.onConnMessage,
	})
	c.mu.Unlock()

	if previous != nil {
		c.logger.Info("session replacing connection", zap.String("previous_conn_id", previous.ID()))
		previous.Close()
	}
	c.notifyChange()
}

// Close tears the session down, closing the handle whatever its state.
func (c *Client) Close() {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn != nil {
		conn.Close()
	}
}

// WaitReady blocks until the current handle is open, has failed, or ctx ends.
func (c *Client) WaitReady(ctx context.Context) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}
	select {
	case <-conn.Ready():
		return nil
	case <-conn.Done():
		if err := conn.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrNotReady, err)
		}
		return fmt.Errorf("%w: state %s", ErrNotReady, conn.State())
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendTextMessage sends the current history plus a new user turn. History is
// not touched locally; the server echoes it back. On success the session is
// loading until the agent answers.
func (c *Client) SendTextMessage(text string) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.RLock()
	conn := c.conn
	history := c.history
	c.mu.RUnlock()

	if conn == nil {
		return c.warn(fmt.Errorf("%w: no connection", ErrNotReady), "session cannot send message")
	}
	if state := conn.State(); state != fsm.StateOpen {
		err := c.warn(fmt.Errorf("%w: state %s", ErrNotReady, state), "session cannot send message")
		if state == fsm.StateClosed {
			// Loading anticipates a reconnect driven by the caller; none is scheduled here.
			c.setLoading(true)
		}
		return err
	}

	frame, err := protocol.Encode(protocol.NewTextTurn(history, text))
	if err != nil {
		return err
	}
	if err := c.send(conn, frame, "session cannot send message"); err != nil {
		return err
	}
	c.setLoading(true)
	return nil
}

// SendAudioMessage sends one user audio turn: a history anchor, the audio
// chunk, then a commit. Each frame is subject to the readiness check on its
// own, so a partial turn is possible.
func (c *Client) SendAudioMessage(samples []int16) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.RLock()
	conn := c.conn
	history := c.history
	c.mu.RUnlock()
	if conn == nil {
		c.logger.Error("session audio send without connection")
		return ErrNotConnected
	}

	buf := audio.AcquireBytes(len(samples) * 2)
	buf = audio.Int16SliceToBytesInto(buf, samples)
	delta := codec.EncodeAudio(buf)
	audio.ReleaseBytes(buf)

	messages := []any{
		protocol.NewHistoryAnchor(history),
		protocol.NewAudioAppend(delta),
		protocol.NewAudioCommit(),
	}
	var errs []error
	for _, msg := range messages {
		frame, err := protocol.Encode(msg)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := c.send(conn, frame, "session cannot send audio"); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ResetHistory asks the server to clear the conversation. The local history
// is cleared only when the server answers with an empty history.
func (c *Client) ResetHistory() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return c.warn(fmt.Errorf("%w: no connection", ErrNotReady), "session cannot reset")
	}
	frame, err := protocol.Encode(protocol.NewReset())
	if err != nil {
		return err
	}
	return c.send(conn, frame, "session cannot reset")
}

// Snapshot returns a copy of the observable session state.
func (c *Client) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snapshot := Snapshot{
		State:       fsm.StateClosed,
		History:     append([]protocol.Turn{}, c.history...),
		ActiveAgent: c.activeAgent,
		Loading:     c.loading,
	}
	if c.conn != nil {
		snapshot.State = c.conn.State()
		if err := c.conn.Err(); err != nil {
			snapshot.LastError = err.Error()
		}
	}
	snapshot.Ready = snapshot.State == fsm.StateOpen
	return snapshot
}

// Ready reports whether the current handle is open.
func (c *Client) Ready() bool {
	return c.Snapshot().Ready
}

// History returns a copy of the last server-sent history.
func (c *Client) History() []protocol.Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]protocol.Turn{}, c.history...)
}

// ActiveAgent returns the name of the agent currently answering.
func (c *Client) ActiveAgent() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.activeAgent
}

// Loading reports whether an agent response is awaited.
func (c *Client) Loading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading
}

func (c *Client) send(conn *Conn, frame []byte, msg string) error {
	err := conn.Send(frame)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotReady) {
		return c.warn(err, msg)
	}
	c.logger.Error(msg, zap.String("conn_id", conn.ID()), zap.Error(err))
	return err
}

func (c *Client) warn(err error, msg string) error {
	c.logger.Warn(msg, zap.Error(err))
	if c.callbacks.OnWarning != nil {
		c.callbacks.OnWarning(err)
	}
	return err
}

func (c *Client) setLoading(loading bool) {
	c.mu.Lock()
	changed := c.loading != loading
	c.loading = loading
	c.mu.Unlock()
	if changed {
		c.notifyChange()
	}
}

func (c *Client) notifyChange() {
	if c.callbacks.OnChange != nil {
		c.callbacks.OnChange(c.Snapshot())
	}
}

func (c *Client) onConnState(conn *Conn, state fsm.State, err error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	current := conn == c.conn
	if current && err != nil {
		// No response can arrive on a failed handle.
		c.loading = false
	}
	c.mu.Unlock()
	if !current {
		c.logger.Debug("session ignoring stale connection event",
			zap.String("conn_id", conn.ID()),
			zap.String("state", string(state)),
		)
		return
	}

	switch {
	case err != nil:
		c.logger.Error("session transport error", zap.String("conn_id", conn.ID()), zap.Error(err))
	case state == fsm.StateOpen:
		c.logger.Info("session ready", zap.String("conn_id", conn.ID()), zap.String("url", conn.URL()))
	default:
		c.logger.Info("session connection closed", zap.String("conn_id", conn.ID()))
	}
	c.notifyChange()
}

// onConnMessage applies frames from replaced handles too: a frame already
// read before the handle was replaced is still delivered.
func (c *Client) onConnMessage(conn *Conn, data []byte) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.RLock()
	current := conn == c.conn
	c.mu.RUnlock()
	if !current {
		c.logger.Debug("session message from replaced connection", zap.String("conn_id", conn.ID()))
	}
	c.dispatch(data)
}

// dispatch applies one inbound frame. Decode failures are logged and dropped.
func (c *Client) dispatch(data []byte) {
	msg, err := protocol.DecodeInbound(data)
	if err != nil {
		c.logger.Warn("session dropping malformed message", zap.Error(err))
		return
	}
	c.logger.Debug("session message", zap.String("type", protocol.TypeOf(msg)))

	switch m := msg.(type) {
	case protocol.HistoryUpdated:
		c.applyHistory(m)
	case protocol.AudioDelta:
		samples, err := codec.DecodeSamples(m.Delta)
		if err != nil {
			c.logger.Warn("session dropping audio delta", zap.Error(err))
			return
		}
		if c.callbacks.OnAudioChunk != nil {
			c.callbacks.OnAudioChunk(samples)
		}
	case protocol.AudioDone:
		if c.callbacks.OnAudioStreamDone != nil {
			c.callbacks.OnAudioStreamDone()
		}
	case protocol.AgentTransfer:
		c.logger.Info("session agent transfer", zap.String("agent_name", m.AgentName))
		if m.AgentName == "" {
			return
		}
		c.mu.Lock()
		c.activeAgent = m.AgentName
		c.mu.Unlock()
		c.notifyChange()
	case protocol.Unknown:
		c.logger.Debug("session unknown message type", zap.String("type", m.Type))
	}
}

func (c *Client) applyHistory(m protocol.HistoryUpdated) {
	c.mu.Lock()
	c.history = append([]protocol.Turn{}, m.Inputs...)
	if m.AgentName != "" {
		c.activeAgent = m.AgentName
	}
	if n := len(m.Inputs); n == 0 || m.Inputs[n-1].Role != protocol.RoleUser {
		c.loading = false
	}
	c.mu.Unlock()
	c.notifyChange()
}
