package transport

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/eleven-am/voice-client/internal/shared"
)

type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type MessageType string

const (
	MessageTypeAudio        MessageType = "audio"
	MessageTypeTranscript   MessageType = "transcript"
	MessageTypeMetadata     MessageType = "metadata"
	MessageTypeError        MessageType = "error"
	MessageTypeSessionEnd   MessageType = "session_end"
	MessageTypeSessionStart MessageType = "session_start"
)

// Message is an inbound frame decoded at the socket boundary.
type Message interface {
	Type() MessageType
	message()
}

type AudioMessage struct {
	Data     []byte
	MimeType string
}

type TranscriptMessage struct {
	Role Role
	Text string
}

type MetadataMessage struct {
	Raw json.RawMessage
}

type ErrorMessage struct {
	Message string
}

type SessionEndMessage struct{}

// UnknownMessage carries a well-formed frame whose type is not recognized.
type UnknownMessage struct {
	Kind MessageType
	Raw  json.RawMessage
}

func (AudioMessage) Type() MessageType      { return MessageTypeAudio }
func (TranscriptMessage) Type() MessageType { return MessageTypeTranscript }
func (MetadataMessage) Type() MessageType   { return MessageTypeMetadata }
func (ErrorMessage) Type() MessageType      { return MessageTypeError }
func (SessionEndMessage) Type() MessageType { return MessageTypeSessionEnd }
func (m UnknownMessage) Type() MessageType  { return m.Kind }

func (AudioMessage) message()      {}
func (TranscriptMessage) message() {}
func (MetadataMessage) message()   {}
func (ErrorMessage) message()      {}
func (SessionEndMessage) message() {}
func (UnknownMessage) message()    {}

type inboundEnvelope struct {
	Type         MessageType     `json:"type"`
	Data         string          `json:"data,omitempty"`
	MimeType     string          `json:"mime_type,omitempty"`
	Role         Role            `json:"role,omitempty"`
	Text         string          `json:"text,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
}

type ControlMessage struct {
	Type MessageType `json:"type"`
}

// DecodeText parses a JSON text frame. Frames that are not JSON objects,
// lack a type, or carry an invalid payload yield a *shared.ProtocolError.
func DecodeText(data []byte) (Message, error) {
	var env inboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &shared.ProtocolError{Reason: "malformed json", Err: err}
	}
	if env.Type == "" {
		return nil, &shared.ProtocolError{Reason: "missing message type"}
	}

	switch env.Type {
	case MessageTypeAudio:
		pcm, err := base64.StdEncoding.DecodeString(env.Data)
		if err != nil {
			return nil, &shared.ProtocolError{Reason: "audio data is not base64", Err: err}
		}
		return AudioMessage{Data: pcm, MimeType: env.MimeType}, nil

	case MessageTypeTranscript:
		if env.Role != RoleUser && env.Role != RoleAssistant {
			return nil, &shared.ProtocolError{Reason: fmt.Sprintf("invalid transcript role %q", env.Role)}
		}
		return TranscriptMessage{Role: env.Role, Text: env.Text}, nil

	case MessageTypeMetadata:
		raw := env.Metadata
		if len(raw) == 0 {
			raw = append(json.RawMessage(nil), data...)
		}
		return MetadataMessage{Raw: raw}, nil

	case MessageTypeError:
		return ErrorMessage{Message: env.ErrorMessage}, nil

	case MessageTypeSessionEnd:
		return SessionEndMessage{}, nil

	default:
		return UnknownMessage{Kind: env.Type, Raw: append(json.RawMessage(nil), data...)}, nil
	}
}

// DecodeBinary wraps a raw binary frame as PCM at the default rate.
func DecodeBinary(data []byte) Message {
	return AudioMessage{Data: data}
}

func encodeControl(t MessageType) []byte {
	data, _ := json.Marshal(ControlMessage{Type: t})
	return data
}
