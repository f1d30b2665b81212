package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/campusconnect/backend/internal/messages"
)

// Inbound event names.
const (
	EventAuthenticate     = "authenticate"
	EventSendMessage      = "sendMessage"
	EventTyping           = "typing"
	EventStopTyping       = "stopTyping"
	EventGetNotifications = "getNotifications"
	EventDisconnect       = "disconnect"
)

// Outbound event names.
const (
	EventOnlineUsers    = "onlineUsers"
	EventUserOnline     = "userOnline"
	EventUserOffline    = "userOffline"
	EventNewMessage     = "newMessage"
	EventMessageSent    = "messageSent"
	EventUserTyping     = "userTyping"
	EventUserStopTyping = "userStopTyping"
	EventNotifications  = "notifications"
	EventError          = "error"
)

var (
	// ErrMalformedFrame indicates the frame is not a JSON object with an event name.
	ErrMalformedFrame = errors.New("realtime: malformed frame")
	// ErrUnknownEvent indicates the frame names an event the server does not handle.
	ErrUnknownEvent = errors.New("realtime: unknown event")
)

// Frame is the wire envelope for both directions.
type Frame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// InboundEvent is implemented by every event a client may send.
type InboundEvent interface {
	EventName() string
}

type Authenticate struct {
	Token string `json:"token"`
}

type SendMessage struct {
	ReceiverID string          `json:"receiverId"`
	Text       string          `json:"text"`
	Media      *messages.Media `json:"media,omitempty"`
}

type Typing struct {
	ReceiverID string `json:"receiverId"`
}

type StopTyping struct {
	ReceiverID string `json:"receiverId"`
}

type FetchNotifications struct{}

type Disconnect struct{}

func (Authenticate) EventName() string       { return EventAuthenticate }
func (SendMessage) EventName() string        { return EventSendMessage }
func (Typing) EventName() string             { return EventTyping }
func (StopTyping) EventName() string         { return EventStopTyping }
func (FetchNotifications) EventName() string { return EventGetNotifications }
func (Disconnect) EventName() string         { return EventDisconnect }

// ErrorPayload is the body of an error event.
type ErrorPayload struct {
	Message string `json:"message"`
}

// TypingPayload names the user whose typing state changed.
type TypingPayload struct {
	UserID string `json:"userId"`
}

// DecodeInbound parses a raw frame into its event variant. The returned name is set
// whenever the frame carried one, even if decoding the payload failed.
func DecodeInbound(raw []byte) (string, InboundEvent, error) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	name := strings.TrimSpace(frame.Event)
	if name == "" {
		return "", nil, ErrMalformedFrame
	}

	switch name {
	case EventAuthenticate:
		var event Authenticate
		if err := decodePayload(frame.Data, &event); err != nil {
			return name, nil, err
		}
		return name, event, nil
	case EventSendMessage:
		var event SendMessage
		if err := decodePayload(frame.Data, &event); err != nil {
			return name, nil, err
		}
		return name, event, nil
	case EventTyping:
		var event Typing
		if err := decodePayload(frame.Data, &event); err != nil {
			return name, nil, err
		}
		return name, event, nil
	case EventStopTyping:
		var event StopTyping
		if err := decodePayload(frame.Data, &event); err != nil {
			return name, nil, err
		}
		return name, event, nil
	case EventGetNotifications:
		return name, FetchNotifications{}, nil
	case EventDisconnect:
		return name, Disconnect{}, nil
	default:
		return name, nil, fmt.Errorf("%w: %s", ErrUnknownEvent, name)
	}
}

func decodePayload(data json.RawMessage, target interface{}) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(trimmed, target); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	return nil
}
