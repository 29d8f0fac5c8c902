package transport

import (
	"bytes"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalDatagramIPv4(t *testing.T) {
	target := IPEndpoint(net.ParseIP("1.2.3.4"), 0x1F90)
	got := marshalDatagram(target, []byte("hi"))

	want := []byte{
		0x00, 0x00, // RSV
		0x00,                   // FRAG
		0x01,                   // ATYP IPv4
		0x01, 0x02, 0x03, 0x04, // DST.ADDR
		0x1F, 0x90, // DST.PORT
		'h', 'i',
	}
	assert.Equal(t, want, got)
}

func TestMarshalDatagramDomain(t *testing.T) {
	got := marshalDatagram(DomainEndpoint("example.com", 53), []byte{0xAB})

	want := append([]byte{0x00, 0x00, 0x00, 0x03, 11}, "example.com"...)
	want = append(want, 0x00, 53, 0xAB)
	assert.Equal(t, want, got)
}

func TestParseDatagramRoundsBack(t *testing.T) {
	payload := []byte("ping")
	target := IPEndpoint(net.ParseIP("203.0.113.7"), 21116)

	from, data, err := parseDatagram(marshalDatagram(target, payload))
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	assert.True(t, from.IsIP())
	assert.True(t, from.IP().Equal(target.IP()))
	assert.Equal(t, uint16(21116), from.Port())
}

func TestParseDatagramDomainSender(t *testing.T) {
	env := marshalDatagram(DomainEndpoint("peer.example.org", 9000), []byte{1, 2, 3})

	from, data, err := parseDatagram(env)
	require.NoError(t, err)
	assert.False(t, from.IsIP())
	assert.Equal(t, "peer.example.org", from.Domain())
	assert.Equal(t, uint16(9000), from.Port())
	assert.Equal(t, []byte{1, 2, 3}, data)
}

func TestParseDatagramRejectsFragments(t *testing.T) {
	env := marshalDatagram(IPEndpoint(net.ParseIP("1.2.3.4"), 1), []byte("x"))
	env[2] = 0x01 // FRAG

	_, _, err := parseDatagram(env)
	assert.ErrorIs(t, err, errFragmented)
}

func TestParseDatagramTooShort(t *testing.T) {
	cases := [][]byte{
		nil,
		{0x00, 0x00, 0x00},
		{0x00, 0x00, 0x00, 0x01, 0x01}, // IPv4 header cut off
		{0x00, 0x00, 0x00, 0x03, 0x05, 'a'},
	}
	for _, c := range cases {
		_, _, err := parseDatagram(c)
		assert.Error(t, err, "input %v", c)
	}
}

func TestAppendReadSocksAddr(t *testing.T) {
	for _, ep := range []Endpoint{
		IPEndpoint(net.ParseIP("192.0.2.1"), 7),
		IPEndpoint(net.ParseIP("2001:db8::1"), 65535),
		DomainEndpoint("relay.example.net", 1080),
	} {
		b := appendSocksAddr(nil, ep)
		got, err := readSocksAddr(bytes.NewReader(b[1:]), b[0])
		require.NoError(t, err)
		assert.Equal(t, ep.String(), got.String())
		assert.Equal(t, ep.IsIP(), got.IsIP())
	}
}
