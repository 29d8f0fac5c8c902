package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindMulticastRejectsUnicast(t *testing.T) {
	assert.Panics(t, func() {
		_, _ = BindMulticast(&net.UDPAddr{IP: net.ParseIP("192.168.1.1"), Port: 21117})
	})
	assert.Panics(t, func() {
		// IPv6 multicast is out of scope for the IPv4 factory.
		_, _ = BindMulticast(&net.UDPAddr{IP: net.ParseIP("ff02::1"), Port: 21117})
	})
}

func TestMulticastSelfDelivery(t *testing.T) {
	group := &net.UDPAddr{IP: net.IPv4(239, 255, 42, 98), Port: 28667}

	tr, err := BindMulticast(group)
	if err != nil {
		t.Skipf("multicast unavailable on this host: %v", err)
	}
	defer tr.Close()

	ctx := context.Background()
	payload := []byte("who is out there")
	require.NoError(t, tr.SendRaw(ctx, payload, EndpointFromUDPAddr(group)))

	// Loopback delivery is enabled, so the sender observes its own
	// datagram within the poll window.
	frame, err := tr.NextTimeout(ctx, 2*time.Second)
	if err != nil {
		t.Skipf("no loopback delivery on this host: %v", err)
	}
	assert.Equal(t, payload, frame.Data)
}

func TestMulticastSendOnly(t *testing.T) {
	tr, err := BindMulticast(nil)
	if err != nil {
		t.Skipf("multicast unavailable on this host: %v", err)
	}
	defer tr.Close()

	addr := tr.LocalAddr().(*net.UDPAddr)
	assert.NotZero(t, addr.Port, "expected an ephemeral port bind")

	// A send-only multicast transport can still address unicast peers.
	ctx := context.Background()
	peer, err := New(ctx, "127.0.0.1:0")
	require.NoError(t, err)
	defer peer.Close()

	require.NoError(t, tr.SendRaw(ctx, []byte("unicast ok"), localEndpoint(t, peer)))
	frame, err := peer.NextTimeout(ctx, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("unicast ok"), frame.Data)
}
