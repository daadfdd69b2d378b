package realtime

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/saker-ai/phoneai-client/internal/protocol"
	"github.com/saker-ai/phoneai-client/internal/session/fsm"
	"github.com/saker-ai/phoneai-client/internal/transport/realtime/codec"
)

var (
	// ErrNotReady is returned when a send is attempted on a connection that is not open.
	// The send is dropped, not queued.
	ErrNotReady = errors.New("realtime: connection not ready")
	// ErrNotConnected is returned when audio is sent before any connection was created.
	ErrNotConnected = errors.New("realtime: not connected")
	// ErrMalformedPayload reports an undecodable audio delta.
	ErrMalformedPayload = codec.ErrMalformedPayload
)

// TransportError wraps a failure of the underlying socket.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("realtime: transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Config represents a config.
type Config struct {
	URL    string
	Header http.Header
	// Dial overrides the websocket dialer.
	Dial DialFunc
}

// Callbacks are invoked synchronously while the client processes an event.
// They must not call back into the Client's outbound operations.
type Callbacks struct {
	OnAudioChunk      func(samples []int16)
	OnAudioStreamDone func()
	OnChange          func(snapshot Snapshot)
	OnWarning         func(err error)
}

// Snapshot is the externally observable session state.
type Snapshot struct {
	State       fsm.State       `json:"state" yaml:"state"`
	Ready       bool            `json:"ready" yaml:"ready"`
	History     []protocol.Turn `json:"history" yaml:"-"`
	ActiveAgent string          `json:"active_agent,omitempty" yaml:"active_agent,omitempty"`
	Loading     bool            `json:"loading" yaml:"loading"`
	LastError   string          `json:"last_error,omitempty" yaml:"last_error,omitempty"`
}
