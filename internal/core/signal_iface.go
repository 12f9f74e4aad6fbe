package core

// Frame is a raw encoded payload written to a client.
type Frame []byte

// Connection abstracts the client messaging transport.
// Owned by the adapter; the adapter must Close() it.
type Connection interface {
	TrySend(Frame) error
	Close()
}

// SessionID identifies one live client connection.
type SessionID string
