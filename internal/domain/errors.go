package domain

import "errors"

var (
	ErrDuplicateChannel = errors.New("duplicate channel already exists")
	ErrChannelNotFound  = errors.New("unable to find channel")
	ErrSessionEnded     = errors.New("session ended")
)

// SessionErrorKind enumerates the caller-visible failures of the coordinator.
type SessionErrorKind int

const (
	KindDuplicateChannel SessionErrorKind = iota + 1
	KindChannelNotFound
	KindSessionEnded
)

// SessionError is a recoverable failure surfaced to the offending connection
// as a single ExceptionOccurred envelope. It is never broadcast.
type SessionError struct {
	Kind    SessionErrorKind
	Channel ChannelID
}

func NewSessionError(kind SessionErrorKind, channel ChannelID) *SessionError {
	return &SessionError{Kind: kind, Channel: channel}
}

func (e *SessionError) Error() string {
	return e.sentinel().Error()
}

func (e *SessionError) Unwrap() error {
	return e.sentinel()
}

func (e *SessionError) sentinel() error {
	switch e.Kind {
	case KindDuplicateChannel:
		return ErrDuplicateChannel
	case KindChannelNotFound:
		return ErrChannelNotFound
	default:
		return ErrSessionEnded
	}
}

func IsSessionError(err error) bool {
	var se *SessionError
	return errors.As(err, &se)
}
