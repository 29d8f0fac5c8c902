// Package transport implements length-delimited UDP datagram transport
// with two interchangeable delivery paths: a direct OS socket and a
// SOCKS5-relayed socket.
//
// A FramedTransport is created once in a fixed mode and used by a single
// logical caller for its whole lifetime:
//
//	t, err := transport.New(ctx, "0.0.0.0:21116")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer t.Close()
//
//	err = t.SendRaw(ctx, payload, target)
//	frame, err := t.NextTimeout(ctx, time.Second)
//
// The package also provides a multicast factory, BindMulticast, used for
// LAN peer discovery.
package transport
