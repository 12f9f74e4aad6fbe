package domain

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/samber/lo"
)

var (
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrMissingMessageType = errors.New("missing message type")
)

// MessageType tags an Envelope. The set is closed: every switch over it
// must handle all six kinds.
type MessageType int

const (
	MessageRequest MessageType = iota
	MessageSend
	MessageRemoveUser
	MessageAcceptRequest
	MessageDeclineRequest
	MessageExceptionOccurred
)

func (t MessageType) Valid() bool {
	return t >= MessageRequest && t <= MessageExceptionOccurred
}

func (t MessageType) String() string {
	switch t {
	case MessageRequest:
		return "request"
	case MessageSend:
		return "send_message"
	case MessageRemoveUser:
		return "remove_user"
	case MessageAcceptRequest:
		return "accept_request"
	case MessageDeclineRequest:
		return "decline_request"
	case MessageExceptionOccurred:
		return "exception_occurred"
	}
	return fmt.Sprintf("message_type(%d)", int(t))
}

// Envelope is the unit exchanged on the channel bus and on client connections.
// Treat it as immutable once published.
type Envelope struct {
	SenderUserID    UserID      `json:"sender_user_id"`
	SenderRole      Role        `json:"sender_role"`
	MessageType     MessageType `json:"message_type"`
	ChannelID       ChannelID   `json:"channel_id"`
	Message         *string     `json:"message,omitempty"`
	RecipientUserID *UserID     `json:"recipient_user_id,omitempty"`
	IsApproved      *bool       `json:"is_approved,omitempty"`
}

func (e *Envelope) UnmarshalJSON(data []byte) error {
	type alias Envelope
	aux := struct {
		*alias
		MessageType *MessageType `json:"message_type"`
	}{alias: (*alias)(e)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.MessageType == nil {
		return ErrMissingMessageType
	}
	if !aux.MessageType.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownMessageType, int(*aux.MessageType))
	}
	if !e.SenderRole.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownRole, int(e.SenderRole))
	}
	e.MessageType = *aux.MessageType
	return nil
}

func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Recipient returns recipient_user_id or "" when absent.
func (e Envelope) Recipient() UserID { return lo.FromPtr(e.RecipientUserID) }

// Approved reports is_approved, treating absence as false.
func (e Envelope) Approved() bool { return lo.FromPtr(e.IsApproved) }

func (e Envelope) Text() string { return lo.FromPtr(e.Message) }

// WithApproval returns a copy carrying the sender's role and approval flag.
func (e Envelope) WithApproval(role Role, approved bool) Envelope {
	e.SenderRole = role
	e.IsApproved = lo.ToPtr(approved)
	return e
}

func NewJoinRequest(channel ChannelID, user UserID) Envelope {
	return Envelope{
		SenderUserID: user,
		SenderRole:   RolePlayer,
		MessageType:  MessageRequest,
		ChannelID:    channel,
		Message:      lo.ToPtr(fmt.Sprintf("User: %s is requesting to join the game", user)),
	}
}

func NewRemoveUser(channel ChannelID, user UserID, role Role, text string) Envelope {
	return Envelope{
		SenderUserID: user,
		SenderRole:   role,
		MessageType:  MessageRemoveUser,
		ChannelID:    channel,
		Message:      lo.ToPtr(text),
	}
}

func NewException(channel ChannelID, user UserID, err error) Envelope {
	return Envelope{
		SenderUserID: user,
		MessageType:  MessageExceptionOccurred,
		ChannelID:    channel,
		Message:      lo.ToPtr(err.Error()),
	}
}
