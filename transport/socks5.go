package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
)

// SOCKS5 wire constants per RFC 1928 / RFC 1929.
const (
	socksVersion     = 0x05
	authVersion      = 0x01
	authMethodNone   = 0x00
	authMethodPasswd = 0x02
	authMethodReject = 0xFF
	authStatusOK     = 0x00

	cmdUDPAssociate = 0x03

	atypIPv4   = 0x01
	atypDomain = 0x03
	atypIPv6   = 0x04

	replySuccess = 0x00
)

var (
	errFragmented    = errors.New("fragmented datagrams not supported")
	errShortDatagram = errors.New("datagram too short")
)

// socksNegotiate performs method selection on the control connection and,
// when username is non-blank, the RFC 1929 username/password
// sub-negotiation.
func socksNegotiate(conn net.Conn, username, password string) error {
	method := byte(authMethodNone)
	if username != "" {
		method = authMethodPasswd
	}

	if _, err := conn.Write([]byte{socksVersion, 0x01, method}); err != nil {
		return fmt.Errorf("write greeting: %w", err)
	}

	var reply [2]byte
	if _, err := io.ReadFull(conn, reply[:]); err != nil {
		return fmt.Errorf("read method selection: %w", err)
	}
	if reply[0] != socksVersion {
		return fmt.Errorf("unexpected version 0x%02x", reply[0])
	}
	if reply[1] == authMethodReject {
		return errors.New("no acceptable authentication method")
	}
	if reply[1] != method {
		return fmt.Errorf("server selected unsupported method 0x%02x", reply[1])
	}

	if method == authMethodPasswd {
		return socksAuthenticate(conn, username, password)
	}
	return nil
}

// socksAuthenticate runs the username/password sub-negotiation.
func socksAuthenticate(conn net.Conn, username, password string) error {
	if len(username) > 255 || len(password) > 255 {
		return errors.New("username or password too long")
	}

	req := make([]byte, 0, 3+len(username)+len(password))
	req = append(req, authVersion, byte(len(username)))
	req = append(req, username...)
	req = append(req, byte(len(password)))
	req = append(req, password...)
	if _, err := conn.Write(req); err != nil {
		return fmt.Errorf("write auth request: %w", err)
	}

	var reply [2]byte
	if _, err := io.ReadFull(conn, reply[:]); err != nil {
		return fmt.Errorf("read auth reply: %w", err)
	}
	if reply[1] != authStatusOK {
		return errors.New("authentication rejected")
	}
	return nil
}

// socksAssociate issues a UDP ASSOCIATE request carrying the client's
// local bind hint and returns the relay endpoint from the reply. A
// wildcard or unspecified relay address in the reply is substituted with
// the proxy host itself, which is where such relays actually listen.
func socksAssociate(conn net.Conn, local *net.UDPAddr) (*net.UDPAddr, error) {
	req := []byte{socksVersion, cmdUDPAssociate, 0x00}
	req = appendSocksAddr(req, EndpointFromUDPAddr(local))
	if _, err := conn.Write(req); err != nil {
		return nil, fmt.Errorf("write associate request: %w", err)
	}

	var head [4]byte
	if _, err := io.ReadFull(conn, head[:]); err != nil {
		return nil, fmt.Errorf("read associate reply: %w", err)
	}
	if head[1] != replySuccess {
		return nil, fmt.Errorf("associate rejected: %s", replyMessage(head[1]))
	}

	bound, err := readSocksAddr(conn, head[3])
	if err != nil {
		return nil, fmt.Errorf("read relay address: %w", err)
	}
	if !bound.IsIP() {
		return nil, fmt.Errorf("relay advertised domain address %q", bound.String())
	}

	relay := bound.UDPAddr()
	if relay.IP.IsUnspecified() {
		if host, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
			relay.IP = host.IP
		}
	}
	return relay, nil
}

// replyMessage maps RFC 1928 reply codes to text.
func replyMessage(code byte) string {
	switch code {
	case 0x01:
		return "general failure"
	case 0x02:
		return "connection not allowed by ruleset"
	case 0x03:
		return "network unreachable"
	case 0x04:
		return "host unreachable"
	case 0x05:
		return "connection refused"
	case 0x06:
		return "TTL expired"
	case 0x07:
		return "command not supported"
	case 0x08:
		return "address type not supported"
	default:
		return fmt.Sprintf("reply code 0x%02x", code)
	}
}

// appendSocksAddr appends ATYP + address + port for an endpoint.
func appendSocksAddr(b []byte, ep Endpoint) []byte {
	if ip := ep.IP(); ip != nil {
		if ip4 := ip.To4(); ip4 != nil {
			b = append(b, atypIPv4)
			b = append(b, ip4...)
		} else {
			b = append(b, atypIPv6)
			b = append(b, ip.To16()...)
		}
	} else {
		b = append(b, atypDomain, byte(len(ep.Domain())))
		b = append(b, ep.Domain()...)
	}
	return binary.BigEndian.AppendUint16(b, ep.Port())
}

// readSocksAddr reads address + port for a known ATYP from a stream.
func readSocksAddr(r io.Reader, atyp byte) (Endpoint, error) {
	switch atyp {
	case atypIPv4:
		var buf [4 + 2]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return Endpoint{}, err
		}
		ip := make(net.IP, 4)
		copy(ip, buf[:4])
		return IPEndpoint(ip, binary.BigEndian.Uint16(buf[4:])), nil
	case atypIPv6:
		var buf [16 + 2]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return Endpoint{}, err
		}
		ip := make(net.IP, 16)
		copy(ip, buf[:16])
		return IPEndpoint(ip, binary.BigEndian.Uint16(buf[16:])), nil
	case atypDomain:
		var n [1]byte
		if _, err := io.ReadFull(r, n[:]); err != nil {
			return Endpoint{}, err
		}
		buf := make([]byte, int(n[0])+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return Endpoint{}, err
		}
		return DomainEndpoint(string(buf[:n[0]]), binary.BigEndian.Uint16(buf[n[0]:])), nil
	default:
		return Endpoint{}, fmt.Errorf("unsupported address type 0x%02x", atyp)
	}
}

// marshalDatagram wraps payload in the RFC 1928 UDP request header:
//
//	+----+------+------+----------+----------+----------+
//	|RSV | FRAG | ATYP | DST.ADDR | DST.PORT |   DATA   |
//	+----+------+------+----------+----------+----------+
//	| 2  |  1   |  1   | Variable |    2     | Variable |
//	+----+------+------+----------+----------+----------+
func marshalDatagram(target Endpoint, payload []byte) []byte {
	b := make([]byte, 0, 3+1+257+2+len(payload))
	b = append(b, 0x00, 0x00, 0x00)
	b = appendSocksAddr(b, target)
	return append(b, payload...)
}

// parseDatagram unwraps a relay envelope, returning the original
// sender's endpoint and the payload. Fragmented datagrams are rejected.
func parseDatagram(b []byte) (Endpoint, []byte, error) {
	if len(b) < 4 {
		return Endpoint{}, nil, errShortDatagram
	}
	if b[2] != 0x00 {
		return Endpoint{}, nil, errFragmented
	}

	atyp := b[3]
	rest := b[4:]

	var ep Endpoint
	switch atyp {
	case atypIPv4:
		if len(rest) < 4+2 {
			return Endpoint{}, nil, errShortDatagram
		}
		ip := make(net.IP, 4)
		copy(ip, rest[:4])
		ep = IPEndpoint(ip, binary.BigEndian.Uint16(rest[4:6]))
		rest = rest[6:]
	case atypIPv6:
		if len(rest) < 16+2 {
			return Endpoint{}, nil, errShortDatagram
		}
		ip := make(net.IP, 16)
		copy(ip, rest[:16])
		ep = IPEndpoint(ip, binary.BigEndian.Uint16(rest[16:18]))
		rest = rest[18:]
	case atypDomain:
		if len(rest) < 1 {
			return Endpoint{}, nil, errShortDatagram
		}
		n := int(rest[0])
		if len(rest) < 1+n+2 {
			return Endpoint{}, nil, errShortDatagram
		}
		ep = DomainEndpoint(string(rest[1:1+n]), binary.BigEndian.Uint16(rest[1+n:1+n+2]))
		rest = rest[1+n+2:]
	default:
		return Endpoint{}, nil, fmt.Errorf("unsupported address type 0x%02x", atyp)
	}
	return ep, rest, nil
}
