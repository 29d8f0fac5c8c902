// Package transport implements network endpoint abstraction for the
// datagram transport.
//
// This file provides the Endpoint type that covers both concrete IP
// endpoints (the only form a direct socket can address) and domain-name
// endpoints, which are resolved by a SOCKS5 relay rather than locally.
package transport

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

// Endpoint identifies the source or destination of a datagram. It is
// exactly one of two forms for its lifetime: an IP address + port, or a
// domain name + port. Domain endpoints are only meaningful in proxy
// mode, where name resolution is delegated to the relay.
type Endpoint struct {
	ip     net.IP
	domain string
	port   uint16
}

// IPEndpoint creates an Endpoint from a concrete IP address and port.
func IPEndpoint(ip net.IP, port uint16) Endpoint {
	return Endpoint{ip: ip, port: port}
}

// DomainEndpoint creates an Endpoint from a domain name and port. The
// name is passed to the relay verbatim; no local resolution happens.
func DomainEndpoint(name string, port uint16) Endpoint {
	return Endpoint{domain: name, port: port}
}

// EndpointFromUDPAddr converts an OS-reported source address into an
// Endpoint.
func EndpointFromUDPAddr(addr *net.UDPAddr) Endpoint {
	return Endpoint{ip: addr.IP, port: uint16(addr.Port)}
}

// ResolveEndpoint parses a "host:port" target specification. An IP
// literal yields an IP endpoint; any other host yields a domain
// endpoint. Failure to parse surfaces as *AddressError.
func ResolveEndpoint(spec string) (Endpoint, error) {
	host, portStr, err := net.SplitHostPort(spec)
	if err != nil {
		return Endpoint{}, &AddressError{Spec: spec, Err: err}
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Endpoint{}, &AddressError{Spec: spec, Err: fmt.Errorf("invalid port: %w", err)}
	}
	if host == "" {
		return Endpoint{}, &AddressError{Spec: spec, Err: errors.New("empty host")}
	}
	if ip := net.ParseIP(host); ip != nil {
		return Endpoint{ip: ip, port: uint16(port)}, nil
	}
	return Endpoint{domain: host, port: uint16(port)}, nil
}

// IsIP reports whether the endpoint is a concrete IP endpoint.
func (e Endpoint) IsIP() bool {
	return e.ip != nil
}

// IP returns the endpoint's IP address, or nil for a domain endpoint.
func (e Endpoint) IP() net.IP {
	return e.ip
}

// Domain returns the endpoint's domain name, or "" for an IP endpoint.
func (e Endpoint) Domain() string {
	return e.domain
}

// Port returns the endpoint's port.
func (e Endpoint) Port() uint16 {
	return e.port
}

// UDPAddr converts an IP endpoint to a *net.UDPAddr. It returns nil for
// a domain endpoint.
func (e Endpoint) UDPAddr() *net.UDPAddr {
	if e.ip == nil {
		return nil
	}
	return &net.UDPAddr{IP: e.ip, Port: int(e.port)}
}

// String returns the endpoint in "host:port" form.
func (e Endpoint) String() string {
	if e.ip != nil {
		return net.JoinHostPort(e.ip.String(), strconv.Itoa(int(e.port)))
	}
	return net.JoinHostPort(e.domain, strconv.Itoa(int(e.port)))
}
