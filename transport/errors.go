package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned by NextTimeout when the wait elapses before a
	// datagram arrives. It does not mean the transport is closed; the next
	// receive still observes anything buffered by the OS in the meantime.
	ErrTimeout = errors.New("receive timed out")

	// ErrClosed is returned by Next when the underlying socket has been
	// permanently terminated.
	ErrClosed = errors.New("transport closed")
)

// ResolutionError reports a local address specification that yielded no
// usable candidate addresses.
type ResolutionError struct {
	Spec string
	Err  error
}

func (e *ResolutionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("resolve %q: no addresses", e.Spec)
	}
	return fmt.Sprintf("resolve %q: %v", e.Spec, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// BindError reports a socket bind or socket option failure, carrying the
// underlying OS error. Binds are never retried internally.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// ProxyError reports a failed SOCKS5 negotiation with the relay.
type ProxyError struct {
	Proxy string
	Err   error
}

func (e *ProxyError) Error() string {
	return fmt.Sprintf("socks5 proxy %s: %v", e.Proxy, e.Err)
}

func (e *ProxyError) Unwrap() error { return e.Err }

// AddressError reports a send target that does not resolve to a usable
// endpoint.
type AddressError struct {
	Spec string
	Err  error
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("bad target %q: %v", e.Spec, e.Err)
}

func (e *AddressError) Unwrap() error { return e.Err }

// SendError reports an I/O failure while writing a datagram. The
// transport remains usable for subsequent sends.
type SendError struct {
	Target string
	Err    error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send to %s: %v", e.Target, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// ReceiveError reports an I/O or envelope decoding failure on a received
// datagram. It does not indicate stream termination; the transport
// remains usable and the caller may simply call Next again.
type ReceiveError struct {
	Err error
}

func (e *ReceiveError) Error() string {
	return fmt.Sprintf("receive: %v", e.Err)
}

func (e *ReceiveError) Unwrap() error { return e.Err }
