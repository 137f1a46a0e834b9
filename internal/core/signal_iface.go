package core

// Frame is one raw signaling message as read off the wire.
type Frame []byte

// ConnID identifies one live client connection for the lifetime of its
// socket. Assigned by the transport adapter; everything else holds it as
// an opaque lookup key.
type ConnID string

// SignalConnection abstracts a system messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
