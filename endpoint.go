package enet

import (
	"errors"
	"net"
	"time"
)

// ErrWouldBlock is returned by Endpoint.Recv when no datagram is currently
// available and the call did not block waiting for one.
var ErrWouldBlock = errors.New("enet: would block")

// ErrRefused is returned by Endpoint.Send when the substrate rejects the
// datagram outright (e.g. ICMP port-unreachable already observed).
var ErrRefused = errors.New("enet: send refused")

// Address is an opaque, comparable, cloneable remote address. Host never
// interprets its contents; it only compares, clones and logs it (spec.md
// §6 "Endpoint contract").
type Address interface {
	// String renders the address for logs and for use as a lookup key.
	String() string
	// Equal reports whether two addresses name the same remote endpoint.
	Equal(Address) bool
}

// Endpoint is the datagram substrate Host is built on (spec.md §6). It is
// deliberately out of scope of the protocol engine itself: goenet ships one
// implementation over net.UDPConn, but any send(addr, bytes)/recv() ->
// (addr, bytes) transport can be substituted, including an in-memory one
// for tests.
type Endpoint interface {
	// Send transmits data to addr. It must not block; if the substrate's
	// send buffer is full it should return ErrWouldBlock so Host can retry
	// on the next tick (spec.md §7, "send WouldBlock ... retried next
	// tick").
	Send(addr Address, data []byte) error

	// Recv waits up to timeout for one datagram to arrive (timeout == 0
	// means "don't block at all"). It returns ErrWouldBlock on a timeout
	// with nothing received.
	Recv(buf []byte, timeout time.Duration) (Address, int, error)

	// LocalAddr returns the endpoint's own bound address.
	LocalAddr() Address
}

// udpAddress adapts *net.UDPAddr to Address.
type udpAddress struct{ addr *net.UDPAddr }

func (a udpAddress) String() string { return a.addr.String() }

func (a udpAddress) Equal(other Address) bool {
	o, ok := other.(udpAddress)
	if !ok {
		return false
	}
	return a.addr.IP.Equal(o.addr.IP) && a.addr.Port == o.addr.Port
}

// UDPAddress wraps a *net.UDPAddr as an Address for callers constructing
// one outside the package (e.g. to pass to Host.Connect).
func UDPAddress(addr *net.UDPAddr) Address { return udpAddress{addr} }

// UDPEndpoint is the default Endpoint, a thin non-blocking-with-timeout
// wrapper over *net.UDPConn.
type UDPEndpoint struct {
	conn *net.UDPConn
}

// NewUDPEndpoint binds a UDP socket at addr (an empty/zero addr binds an
// ephemeral port on all interfaces) and returns an Endpoint over it.
func NewUDPEndpoint(addr *net.UDPAddr) (*UDPEndpoint, error) {
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, &EndpointError{Err: err}
	}
	return &UDPEndpoint{conn: conn}, nil
}

func (e *UDPEndpoint) Send(addr Address, data []byte) error {
	ua, ok := addr.(udpAddress)
	if !ok {
		return &EndpointError{Err: errors.New("enet: address not a UDP address")}
	}
	if err := e.conn.SetWriteDeadline(time.Now().Add(50 * time.Millisecond)); err != nil {
		return &EndpointError{Err: err}
	}
	_, err := e.conn.WriteToUDP(data, ua.addr)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return ErrWouldBlock
		}
		return &EndpointError{Err: err}
	}
	return nil
}

func (e *UDPEndpoint) Recv(buf []byte, timeout time.Duration) (Address, int, error) {
	if timeout <= 0 {
		if err := e.conn.SetReadDeadline(time.Now().Add(time.Microsecond)); err != nil {
			return nil, 0, &EndpointError{Err: err}
		}
	} else {
		if err := e.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, 0, &EndpointError{Err: err}
		}
	}
	n, addr, err := e.conn.ReadFromUDP(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, 0, ErrWouldBlock
		}
		return nil, 0, &EndpointError{Err: err}
	}
	return udpAddress{addr}, n, nil
}

func (e *UDPEndpoint) LocalAddr() Address {
	return udpAddress{e.conn.LocalAddr().(*net.UDPAddr)}
}

// Close releases the underlying socket.
func (e *UDPEndpoint) Close() error { return e.conn.Close() }

// resolveUDPAddr parses a "host:port" bind address for Config.Address, an
// empty string meaning "ephemeral port on all interfaces".
func resolveUDPAddr(addr string) (*net.UDPAddr, error) {
	if addr == "" {
		return &net.UDPAddr{}, nil
	}
	ua, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, &EndpointError{Err: err}
	}
	return ua, nil
}
