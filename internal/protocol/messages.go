package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Inbound message types (server to client).
const (
	TypeHistoryUpdated = "history.updated"
	TypeAudioDelta     = "response.audio.delta"
	TypeAudioDone      = "audio.done"
	TypeAgentTransfer  = "agent.transfer"
)

// Outbound message types (client to server).
const (
	TypeHistoryUpdate    = "history.update"
	TypeInputAudioAppend = "input_audio_buffer.append"
	TypeInputAudioCommit = "input_audio_buffer.commit"
)

// KindMessage is the turn kind of a plain conversational message.
const KindMessage = "message"

// ErrMalformedMessage reports a frame that is not JSON or whose payload does not fit its type.
var ErrMalformedMessage = errors.New("protocol: malformed message")

// Role identifies the author of a turn.
type Role string

const (
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
	RoleSystem Role = "system"
)

// Turn is one entry of the conversation history.
//
// A turn decoded from the server keeps its original encoding and is re-emitted
// verbatim, so fields this client does not model survive a round trip.
type Turn struct {
	Role    Role
	Kind    string
	Content json.RawMessage

	raw json.RawMessage
}

type turnWire struct {
	Role    Role            `json:"role,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`
	Kind    string          `json:"type,omitempty"`
}

// UserMessage builds a user text turn.
func UserMessage(text string) Turn {
	content, _ := json.Marshal(text)
	return Turn{Role: RoleUser, Kind: KindMessage, Content: content}
}

// MarshalJSON implements json.Marshaler.
func (t Turn) MarshalJSON() ([]byte, error) {
	if len(t.raw) > 0 {
		return t.raw, nil
	}
	return json.Marshal(turnWire{Role: t.Role, Content: t.Content, Kind: t.Kind})
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Turn) UnmarshalJSON(data []byte) error {
	var wire turnWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	t.Role = wire.Role
	t.Kind = wire.Kind
	t.Content = wire.Content
	t.raw = append(json.RawMessage(nil), data...)
	return nil
}

// Text returns the display text of the turn: a string content as-is, or the
// concatenated text parts of an array content.
func (t Turn) Text() string {
	content := bytes.TrimSpace(t.Content)
	if len(content) == 0 {
		return ""
	}
	switch content[0] {
	case '"':
		var text string
		if err := json.Unmarshal(content, &text); err == nil {
			return text
		}
	case '[':
		var parts []struct {
			Text       string `json:"text"`
			Transcript string `json:"transcript"`
		}
		if err := json.Unmarshal(content, &parts); err == nil {
			var b strings.Builder
			for _, part := range parts {
				switch {
				case part.Text != "":
					b.WriteString(part.Text)
				case part.Transcript != "":
					b.WriteString(part.Transcript)
				}
			}
			return b.String()
		}
	}
	return string(content)
}

// Inbound is the closed set of decoded server messages.
type Inbound interface {
	inboundType() string
}

// HistoryUpdated replaces the session history wholesale.
type HistoryUpdated struct {
	Inputs    []Turn
	AgentName string
}

// AudioDelta carries one encoded chunk of agent audio.
type AudioDelta struct {
	Delta string
}

// AudioDone ends the current agent audio stream.
type AudioDone struct{}

// AgentTransfer announces a change of the active agent.
type AgentTransfer struct {
	AgentName string
}

// Unknown is any message whose type this client does not handle.
type Unknown struct {
	Type string
}

func (HistoryUpdated) inboundType() string { return TypeHistoryUpdated }
func (AudioDelta) inboundType() string     { return TypeAudioDelta }
func (AudioDone) inboundType() string      { return TypeAudioDone }
func (AgentTransfer) inboundType() string  { return TypeAgentTransfer }
func (u Unknown) inboundType() string      { return u.Type }

// TypeOf returns the wire type of an inbound message.
func TypeOf(msg Inbound) string {
	if msg == nil {
		return ""
	}
	return msg.inboundType()
}

// DecodeInbound parses one text frame.
func DecodeInbound(data []byte) (Inbound, error) {
	var envelope struct {
		Type json.RawMessage `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	var msgType string
	if err := json.Unmarshal(envelope.Type, &msgType); err != nil {
		return Unknown{}, nil
	}

	switch msgType {
	case TypeHistoryUpdated:
		var payload struct {
			Inputs    *[]Turn `json:"inputs"`
			AgentName string  `json:"agent_name,omitempty"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedMessage, msgType, err)
		}
		if payload.Inputs == nil {
			return nil, fmt.Errorf("%w: %s: missing inputs", ErrMalformedMessage, msgType)
		}
		return HistoryUpdated{Inputs: *payload.Inputs, AgentName: payload.AgentName}, nil
	case TypeAudioDelta:
		var payload struct {
			Delta string `json:"delta"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedMessage, msgType, err)
		}
		return AudioDelta{Delta: payload.Delta}, nil
	case TypeAudioDone:
		return AudioDone{}, nil
	case TypeAgentTransfer:
		var payload struct {
			AgentName string `json:"agent_name,omitempty"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedMessage, msgType, err)
		}
		return AgentTransfer{AgentName: payload.AgentName}, nil
	default:
		return Unknown{Type: msgType}, nil
	}
}

// HistoryUpdate sends a full history to the server.
type HistoryUpdate struct {
	Type       string `json:"type"`
	Inputs     []Turn `json:"inputs"`
	ResetAgent bool   `json:"reset_agent,omitempty"`
}

// InputAudioAppend sends one encoded chunk of user audio.
type InputAudioAppend struct {
	Type  string `json:"type"`
	Delta string `json:"delta"`
}

// InputAudioCommit ends a user audio turn.
type InputAudioCommit struct {
	Type string `json:"type"`
}

// NewTextTurn returns the update sent when the user types a message: the
// current history plus the new user turn.
func NewTextTurn(history []Turn, text string) HistoryUpdate {
	inputs := make([]Turn, 0, len(history)+1)
	inputs = append(inputs, history...)
	inputs = append(inputs, UserMessage(text))
	return HistoryUpdate{Type: TypeHistoryUpdate, Inputs: inputs}
}

// NewHistoryAnchor re-sends the current history unchanged.
func NewHistoryAnchor(history []Turn) HistoryUpdate {
	return HistoryUpdate{Type: TypeHistoryUpdate, Inputs: append([]Turn{}, history...)}
}

// NewReset clears the history and resets the server-side agent.
func NewReset() HistoryUpdate {
	return HistoryUpdate{Type: TypeHistoryUpdate, Inputs: []Turn{}, ResetAgent: true}
}

// NewAudioAppend wraps an encoded audio chunk.
func NewAudioAppend(delta string) InputAudioAppend {
	return InputAudioAppend{Type: TypeInputAudioAppend, Delta: delta}
}

// NewAudioCommit ends a user audio turn.
func NewAudioCommit() InputAudioCommit {
	return InputAudioCommit{Type: TypeInputAudioCommit}
}

// Encode serializes one outbound message as a text frame.
func Encode(msg any) ([]byte, error) {
	if update, ok := msg.(HistoryUpdate); ok && update.Inputs == nil {
		update.Inputs = []Turn{}
		msg = update
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", msg, err)
	}
	return data, nil
}
