package transport

import (
	"context"
	"errors"
	"net"
	"time"
)

// maxDatagramSize bounds a single UDP read.
const maxDatagramSize = 65535

// defaultReadTimeout bounds each blocking read so that context
// cancellation is observed promptly and, for multicast sockets,
// cooperative callers interleaving timer work are not starved by one
// long poll. Tunable; re-validate against the runtime's polling
// behavior before changing it.
const defaultReadTimeout = 100 * time.Millisecond

// DirectTransport sends and receives datagrams on one bound OS socket.
// The socket lives exactly as long as the transport. Direct mode only
// addresses IP endpoints; a domain-name target is a caller bug, not a
// recoverable failure.
type DirectTransport struct {
	conn        *net.UDPConn
	readTimeout time.Duration
}

// New binds a non-reuse socket on the given local address specification
// and returns a direct transport. It fails with *ResolutionError when
// the specification yields no address, or *BindError on bind failure.
func New(ctx context.Context, addr string) (*DirectTransport, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, &ResolutionError{Spec: addr, Err: err}
	}

	conn, err := newSocket(ctx, udpAddr, false)
	if err != nil {
		return nil, err
	}
	return &DirectTransport{conn: conn, readTimeout: defaultReadTimeout}, nil
}

// NewReuse resolves the local address specification to its candidate
// list and binds the first candidate with address and port reuse
// enabled. Only the first candidate is attempted; this is a deliberate
// simplification, not a fallback chain.
func NewReuse(ctx context.Context, addr string) (*DirectTransport, error) {
	candidates, err := resolveCandidates(ctx, addr)
	if err != nil {
		return nil, err
	}

	conn, err := newSocket(ctx, candidates[0], true)
	if err != nil {
		return nil, err
	}
	return &DirectTransport{conn: conn, readTimeout: defaultReadTimeout}, nil
}

// resolveCandidates expands a "host:port" specification to concrete
// socket addresses, failing with *ResolutionError when none exist.
func resolveCandidates(ctx context.Context, addr string) ([]*net.UDPAddr, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, &ResolutionError{Spec: addr, Err: err}
	}
	port, err := net.DefaultResolver.LookupPort(ctx, "udp", portStr)
	if err != nil {
		return nil, &ResolutionError{Spec: addr, Err: err}
	}

	if host == "" {
		return []*net.UDPAddr{{IP: net.IPv4zero, Port: port}}, nil
	}
	if ip := net.ParseIP(host); ip != nil {
		return []*net.UDPAddr{{IP: ip, Port: port}}, nil
	}

	ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, &ResolutionError{Spec: addr, Err: err}
	}
	if len(ips) == 0 {
		return nil, &ResolutionError{Spec: addr}
	}

	candidates := make([]*net.UDPAddr, 0, len(ips))
	for _, ip := range ips {
		candidates = append(candidates, &net.UDPAddr{IP: ip.IP, Zone: ip.Zone, Port: port})
	}
	return candidates, nil
}

// Send serializes msg and transmits it to target.
func (t *DirectTransport) Send(ctx context.Context, msg Message, target Endpoint) error {
	data, err := msg.Serialize()
	if err != nil {
		return err
	}
	return t.SendRaw(ctx, data, target)
}

// SendRaw transmits data to target as one datagram. No buffering, no
// partial-send retry. The target must be an IP endpoint.
func (t *DirectTransport) SendRaw(ctx context.Context, data []byte, target Endpoint) error {
	if !target.IsIP() {
		panic("transport: direct send to domain endpoint " + target.String())
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := t.conn.WriteToUDP(data, target.UDPAddr()); err != nil {
		return &SendError{Target: target.String(), Err: err}
	}
	return nil
}

// Next blocks until a datagram arrives, returning its payload and the
// OS-reported source address.
func (t *DirectTransport) Next(ctx context.Context) (*Frame, error) {
	buf := make([]byte, maxDatagramSize)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		// Short deadline per read: lets the loop observe ctx and keeps
		// concurrently scheduled timers live while the socket is idle.
		readDeadline := time.Now().Add(t.readTimeout)
		if d, ok := ctx.Deadline(); ok && d.Before(readDeadline) {
			readDeadline = d
		}
		_ = t.conn.SetReadDeadline(readDeadline)

		n, addr, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil, ErrClosed
			}
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				continue
			}
			return nil, &ReceiveError{Err: err}
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		return &Frame{Data: data, From: EndpointFromUDPAddr(addr)}, nil
	}
}

// NextTimeout races Next against the given deadline. Deadline expiry
// returns ErrTimeout and cancels only this wait; any datagram buffered
// by the OS during the window is observed by a later call.
func (t *DirectTransport) NextTimeout(ctx context.Context, timeout time.Duration) (*Frame, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	frame, err := t.Next(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, ErrTimeout
	}
	return frame, err
}

// LocalAddr returns the local address the socket is bound to.
func (t *DirectTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// Close releases the socket. Pending and subsequent receives return
// ErrClosed.
func (t *DirectTransport) Close() error {
	return t.conn.Close()
}
