package transport

import (
	"context"
	"net"
)

// newSocket creates a bound UDP socket for addr. The address family is
// selected from the address form. When reuse is set, address reuse (and
// port reuse where the platform has it) is enabled before the bind so
// that several sockets can share one local port.
func newSocket(ctx context.Context, addr *net.UDPAddr, reuse bool) (*net.UDPConn, error) {
	network := "udp4"
	if addr.IP != nil && addr.IP.To4() == nil {
		network = "udp6"
	}

	var lc net.ListenConfig
	if reuse {
		lc.Control = reuseControl
	}

	pc, err := lc.ListenPacket(ctx, network, addr.String())
	if err != nil {
		return nil, &BindError{Addr: addr.String(), Err: err}
	}
	return pc.(*net.UDPConn), nil
}
