package transport

import (
	"context"
	"net"
	"time"
)

// Message is the external codec boundary: any type that can serialize
// itself to bytes can be sent. The wire format is opaque to this
// package.
type Message interface {
	Serialize() ([]byte, error)
}

// Frame is a received datagram payload paired with its source endpoint.
// In proxy mode the source is the original sender as reported by the
// relay, not the relay's own address.
type Frame struct {
	Data []byte
	From Endpoint
}

// FramedTransport is the shared send/receive contract of the two
// delivery backends. A transport is exactly one backend for its entire
// lifetime; the mode is fixed at construction.
//
// A FramedTransport is not safe for concurrent use: each instance is
// exclusively owned by one logical caller at a time.
type FramedTransport interface {
	// Send serializes msg and transmits it to target.
	Send(ctx context.Context, msg Message, target Endpoint) error

	// SendRaw transmits pre-serialized bytes to target. It avoids
	// re-serialization when the same buffer goes to multiple targets.
	SendRaw(ctx context.Context, data []byte, target Endpoint) error

	// Next blocks until a datagram arrives and returns it. It returns
	// ErrClosed only when the underlying socket is permanently closed.
	// I/O errors are returned as *ReceiveError and leave the transport
	// usable for subsequent calls.
	Next(ctx context.Context) (*Frame, error)

	// NextTimeout races Next against a deadline. If the deadline elapses
	// first it returns ErrTimeout; the transport stays usable and no
	// buffered datagram is lost.
	NextTimeout(ctx context.Context, timeout time.Duration) (*Frame, error)

	// LocalAddr returns the local address of the underlying socket.
	LocalAddr() net.Addr

	// Close releases the socket (and the relay session in proxy mode).
	Close() error
}

var (
	_ FramedTransport = (*DirectTransport)(nil)
	_ FramedTransport = (*ProxyTransport)(nil)
)
