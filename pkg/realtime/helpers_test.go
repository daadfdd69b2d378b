package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var errFakeClosed = errors.New("fake transport closed")

type fakeTransport struct {
	mu       sync.Mutex
	written  []string
	writeErr error

	inbound   chan []byte
	readErr   chan error
	closed    chan struct{}
	closeOnce sync.Once

	// reading is closed on the first ReadMessage, which follows the open event.
	reading     chan struct{}
	readingOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbound: make(chan []byte, 16),
		readErr: make(chan error, 1),
		closed:  make(chan struct{}),
		reading: make(chan struct{}),
	}
}

func (f *fakeTransport) ReadMessage() (int, []byte, error) {
	f.readingOnce.Do(func() { close(f.reading) })
	select {
	case data := <-f.inbound:
		return websocket.TextMessage, data, nil
	case err := <-f.readErr:
		return 0, nil, err
	case <-f.closed:
		return 0, nil, errFakeClosed
	}
}

func (f *fakeTransport) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.written = append(f.written, string(data))
	return nil
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) frames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.written...)
}

func (f *fakeTransport) fail(err error) {
	f.readErr <- err
}

func staticDial(tr Transport) DialFunc {
	return func(context.Context, string) (Transport, error) {
		return tr, nil
	}
}

// blockingDial never resolves until the dial context ends.
func blockingDial(ctx context.Context, _ string) (Transport, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func newOpenClient(t *testing.T, callbacks Callbacks, logger *zap.Logger) (*Client, *fakeTransport) {
	t.Helper()
	tr := newFakeTransport()
	c := NewClient(Config{URL: "ws://agent.test/ws", Dial: staticDial(tr)}, callbacks, logger)
	c.Connect(context.Background())
	t.Cleanup(c.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.WaitReady(ctx); err != nil {
		t.Fatalf("WaitReady error: %v", err)
	}
	select {
	case <-tr.reading:
	case <-ctx.Done():
		t.Fatal("connection never started reading")
	}
	return c, tr
}

// deliver hands data to c as if read by its current connection.
func deliver(c *Client, data []byte) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	c.onConnMessage(conn, data)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
