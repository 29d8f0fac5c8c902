package transport

import (
	"context"
	"net"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/ipv4"
)

// BindMulticast returns a direct transport configured for IPv4
// multicast on the wildcard interface.
//
// With a group address, the socket joins the group, enables loopback
// delivery (a sender on the same host sees its own group traffic) and
// binds the group's port on the wildcard address. The address must be a
// genuine multicast address; anything else is a caller bug and panics
// before any socket is created.
//
// With a nil group the socket is send-only: the outbound multicast
// interface is set to the system default and the bind is to an
// ephemeral port on the wildcard address.
//
// The returned transport polls with a short read deadline (see
// defaultReadTimeout) so that callers multiplexing receive with timer
// ticks are never starved by one blocking read.
func BindMulticast(group *net.UDPAddr) (*DirectTransport, error) {
	var (
		bindAddr *net.UDPAddr
		groupIP  net.IP
	)
	if group != nil {
		groupIP = group.IP.To4()
		if groupIP == nil || !groupIP.IsMulticast() {
			panic("transport: group address must be IPv4 multicast")
		}
		bindAddr = &net.UDPAddr{IP: net.IPv4zero, Port: group.Port}
	} else {
		bindAddr = &net.UDPAddr{IP: net.IPv4zero, Port: 0}
	}

	// 0.0.0.0 binds the default interface; hosts with several
	// interfaces may need explicit interface selection.
	conn, err := newSocket(context.Background(), bindAddr, true)
	if err != nil {
		return nil, err
	}

	pc := ipv4.NewPacketConn(conn)
	if groupIP != nil {
		if err := pc.JoinGroup(nil, &net.UDPAddr{IP: groupIP}); err != nil {
			conn.Close()
			return nil, &BindError{Addr: group.String(), Err: err}
		}
		if err := pc.SetMulticastLoopback(true); err != nil {
			conn.Close()
			return nil, &BindError{Addr: group.String(), Err: err}
		}
		logrus.WithFields(logrus.Fields{
			"function": "BindMulticast",
			"group":    group.String(),
			"local":    conn.LocalAddr().String(),
		}).Debug("Joined multicast group")
	} else {
		if err := pc.SetMulticastInterface(nil); err != nil {
			conn.Close()
			return nil, &BindError{Addr: bindAddr.String(), Err: err}
		}
	}

	return &DirectTransport{conn: conn, readTimeout: defaultReadTimeout}, nil
}
