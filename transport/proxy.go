// Package transport implements the SOCKS5-relayed delivery backend.
//
// This file provides the ProxyTransport: a datagram transport whose
// traffic is forwarded by a SOCKS5 relay negotiated with UDP ASSOCIATE.
// Unlike the direct backend it can address domain-name endpoints, which
// the relay resolves on the client's behalf.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ProxyTransport relays datagrams through a SOCKS5 UDP association. The
// association consists of a TCP control connection, which must stay open
// for the relay to keep forwarding, and a local UDP socket connected to
// the relay endpoint. Both are released by Close.
type ProxyTransport struct {
	control     net.Conn
	conn        *net.UDPConn
	relayAddr   *net.UDPAddr
	readTimeout time.Duration
}

// NewProxy performs the SOCKS5 UDP-associate handshake with the relay at
// proxyAddr, bounded by timeout. localAddr is the bind hint for the
// local UDP socket ("" means wildcard, ephemeral port). A blank username
// selects the unauthenticated handshake; otherwise username/password
// authentication is negotiated.
//
// It fails with ErrTimeout when the handshake does not complete within
// the bound, and *ProxyError on any other failure, wrapping the
// underlying cause (negotiation, local bind, hint resolution).
// Cancellation of ctx surfaces as context.Canceled.
func NewProxy(ctx context.Context, proxyAddr, localAddr, username, password string, timeout time.Duration) (*ProxyTransport, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// A whitespace-only username means no authentication.
	if strings.TrimSpace(username) == "" {
		username = ""
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewProxy",
		"proxy":    proxyAddr,
		"auth":     username != "",
	}).Debug("Starting SOCKS5 UDP associate handshake")

	t, err := newProxy(ctx, proxyAddr, localAddr, username, password)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
			return nil, context.Canceled
		}
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			logrus.WithFields(logrus.Fields{
				"function": "NewProxy",
				"proxy":    proxyAddr,
				"timeout":  timeout,
			}).Error("SOCKS5 handshake timed out")
			return nil, ErrTimeout
		}
		var perr *ProxyError
		if !errors.As(err, &perr) {
			err = &ProxyError{Proxy: proxyAddr, Err: err}
		}
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function":   "NewProxy",
		"local_addr": t.conn.LocalAddr().String(),
		"relay_addr": t.relayAddr.String(),
	}).Trace("SOCKS5 udp connected")

	return t, nil
}

func newProxy(ctx context.Context, proxyAddr, localAddr, username, password string) (*ProxyTransport, error) {
	var dialer net.Dialer
	control, err := dialer.DialContext(ctx, "tcp", proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("dial proxy: %w", err)
	}

	// The whole negotiation shares the handshake deadline, and a
	// cancelled ctx unblocks any in-flight negotiation read.
	if deadline, ok := ctx.Deadline(); ok {
		_ = control.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = control.SetDeadline(time.Now())
	})
	defer stop()

	if localAddr == "" {
		localAddr = "0.0.0.0:0"
	}
	local, err := net.ResolveUDPAddr("udp", localAddr)
	if err != nil {
		control.Close()
		return nil, &ResolutionError{Spec: localAddr, Err: err}
	}

	conn, err := newSocket(ctx, local, false)
	if err != nil {
		control.Close()
		return nil, err
	}

	if err := socksNegotiate(control, username, password); err != nil {
		control.Close()
		conn.Close()
		if isTimeout(err) {
			return nil, context.DeadlineExceeded
		}
		return nil, &ProxyError{Proxy: proxyAddr, Err: err}
	}

	relayAddr, err := socksAssociate(control, conn.LocalAddr().(*net.UDPAddr))
	if err != nil {
		control.Close()
		conn.Close()
		if isTimeout(err) {
			return nil, context.DeadlineExceeded
		}
		return nil, &ProxyError{Proxy: proxyAddr, Err: err}
	}

	_ = control.SetDeadline(time.Time{})

	return &ProxyTransport{
		control:     control,
		conn:        conn,
		relayAddr:   relayAddr,
		readTimeout: defaultReadTimeout,
	}, nil
}

// isTimeout reports whether err stems from the handshake deadline.
func isTimeout(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

// Send serializes msg and forwards it through the relay to target.
func (t *ProxyTransport) Send(ctx context.Context, msg Message, target Endpoint) error {
	data, err := msg.Serialize()
	if err != nil {
		return err
	}
	return t.SendRaw(ctx, data, target)
}

// SendRaw wraps data in the relay envelope and forwards it to target.
// Any resolvable endpoint is accepted; domain names are resolved by the
// relay, not locally.
func (t *ProxyTransport) SendRaw(ctx context.Context, data []byte, target Endpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := t.conn.WriteToUDP(marshalDatagram(target, data), t.relayAddr); err != nil {
		return &SendError{Target: target.String(), Err: err}
	}
	return nil
}

// Next blocks until the relay forwards a datagram, unwraps the envelope
// and returns the payload with the original sender's endpoint as
// reported by the relay.
func (t *ProxyTransport) Next(ctx context.Context) (*Frame, error) {
	buf := make([]byte, maxDatagramSize)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		readDeadline := time.Now().Add(t.readTimeout)
		if d, ok := ctx.Deadline(); ok && d.Before(readDeadline) {
			readDeadline = d
		}
		_ = t.conn.SetReadDeadline(readDeadline)

		n, src, err := t.conn.ReadFromUDP(buf)
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

		// Only the relay may speak on this socket; datagrams from any
		// other source are spoofed and dropped.
		if !src.IP.Equal(t.relayAddr.IP) || src.Port != t.relayAddr.Port {
			continue
		}

		from, payload, err := parseDatagram(buf[:n])
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Next",
				"error":    err.Error(),
			}).Debug("Dropping malformed relay envelope")
			return nil, &ReceiveError{Err: err}
		}

		data := make([]byte, len(payload))
		copy(data, payload)
		return &Frame{Data: data, From: from}, nil
	}
}

// NextTimeout races Next against the given deadline, returning
// ErrTimeout when it elapses first.
func (t *ProxyTransport) NextTimeout(ctx context.Context, timeout time.Duration) (*Frame, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	frame, err := t.Next(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, ErrTimeout
	}
	return frame, err
}

// LocalAddr returns the local address of the UDP socket facing the
// relay.
func (t *ProxyTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// RelayAddr returns the relay endpoint advertised in the associate
// reply. Diagnostic only.
func (t *ProxyTransport) RelayAddr() *net.UDPAddr {
	return t.relayAddr
}

// Close terminates the association: both the control connection and the
// UDP socket are released.
func (t *ProxyTransport) Close() error {
	err := t.conn.Close()
	if cerr := t.control.Close(); err == nil {
		err = cerr
	}
	return err
}
