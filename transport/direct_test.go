package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rawMessage is a minimal codec stand-in for tests.
type rawMessage []byte

func (m rawMessage) Serialize() ([]byte, error) {
	return m, nil
}

func localEndpoint(t *testing.T, tr FramedTransport) Endpoint {
	t.Helper()
	addr, ok := tr.LocalAddr().(*net.UDPAddr)
	require.True(t, ok, "expected *net.UDPAddr, got %T", tr.LocalAddr())
	return IPEndpoint(net.ParseIP("127.0.0.1"), uint16(addr.Port))
}

func TestDirectRoundTrip(t *testing.T) {
	ctx := context.Background()

	sender, err := New(ctx, "127.0.0.1:0")
	require.NoError(t, err)
	defer sender.Close()

	receiver, err := New(ctx, "127.0.0.1:0")
	require.NoError(t, err)
	defer receiver.Close()

	payload := []byte("direct round trip payload")
	require.NoError(t, sender.SendRaw(ctx, payload, localEndpoint(t, receiver)))

	frame, err := receiver.NextTimeout(ctx, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, payload, frame.Data)
	assert.True(t, frame.From.IsIP())
	assert.Equal(t, localEndpoint(t, sender).String(), frame.From.String())
}

func TestDirectSendMessage(t *testing.T) {
	ctx := context.Background()

	sender, err := New(ctx, "127.0.0.1:0")
	require.NoError(t, err)
	defer sender.Close()

	receiver, err := New(ctx, "127.0.0.1:0")
	require.NoError(t, err)
	defer receiver.Close()

	require.NoError(t, sender.Send(ctx, rawMessage("serialized"), localEndpoint(t, receiver)))

	frame, err := receiver.NextTimeout(ctx, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("serialized"), frame.Data)
}

func TestNextTimeoutFloor(t *testing.T) {
	ctx := context.Background()

	tr, err := New(ctx, "127.0.0.1:0")
	require.NoError(t, err)
	defer tr.Close()

	const wait = 150 * time.Millisecond
	start := time.Now()
	frame, err := tr.NextTimeout(ctx, wait)
	elapsed := time.Since(start)

	assert.Nil(t, frame)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, elapsed, wait, "timed out before the deadline")

	// The socket must stay usable after a timed-out wait.
	peer, err := New(ctx, "127.0.0.1:0")
	require.NoError(t, err)
	defer peer.Close()

	require.NoError(t, peer.SendRaw(ctx, []byte("after timeout"), localEndpoint(t, tr)))
	frame, err = tr.NextTimeout(ctx, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("after timeout"), frame.Data)
}

func TestNextAfterClose(t *testing.T) {
	ctx := context.Background()

	tr, err := New(ctx, "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, tr.Close())

	_, err = tr.Next(ctx)
	assert.ErrorIs(t, err, ErrClosed)

	// Timeout variant reports closure, not a timeout.
	_, err = tr.NextTimeout(ctx, 500*time.Millisecond)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDirectDomainTargetPanics(t *testing.T) {
	ctx := context.Background()

	tr, err := New(ctx, "127.0.0.1:0")
	require.NoError(t, err)
	defer tr.Close()

	assert.Panics(t, func() {
		_ = tr.SendRaw(ctx, []byte("x"), DomainEndpoint("example.com", 80))
	})
}

func TestNewResolutionError(t *testing.T) {
	_, err := New(context.Background(), "127.0.0.1")
	var rerr *ResolutionError
	assert.ErrorAs(t, err, &rerr)
}

func TestReuseBindSharesPort(t *testing.T) {
	ctx := context.Background()

	first, err := NewReuse(ctx, "127.0.0.1:0")
	require.NoError(t, err)
	defer first.Close()

	port := first.LocalAddr().(*net.UDPAddr).Port
	second, err := NewReuse(ctx, fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err, "reuse bind on an already-bound port must succeed")
	defer second.Close()
}

func TestPlainBindConflicts(t *testing.T) {
	ctx := context.Background()

	first, err := New(ctx, "127.0.0.1:0")
	require.NoError(t, err)
	defer first.Close()

	port := first.LocalAddr().(*net.UDPAddr).Port
	_, err = New(ctx, fmt.Sprintf("127.0.0.1:%d", port))
	var berr *BindError
	assert.ErrorAs(t, err, &berr)
}

func TestReuseBindResolutionError(t *testing.T) {
	_, err := NewReuse(context.Background(), "localhost")
	var rerr *ResolutionError
	assert.ErrorAs(t, err, &rerr)
}

func TestNextHonorsContextCancel(t *testing.T) {
	tr, err := New(context.Background(), "127.0.0.1:0")
	require.NoError(t, err)
	defer tr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := tr.Next(ctx)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not observe cancellation")
	}
}
