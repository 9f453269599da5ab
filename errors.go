package enet

import "errors"

// Error kinds surfaced to the host application (spec.md §7). Errors that
// are "recovered locally" or "fatal per-peer" per that section never reach
// the caller as a Go error; they show up as dropped datagrams (logged at
// debug level; no drop counter is kept) or as a synthetic Disconnect
// event, respectively.
var (
	// ErrNoPeerAvailable is returned by Host.Connect when every peer slot
	// is occupied.
	ErrNoPeerAvailable = errors.New("enet: no peer slot available")

	// ErrPeerNotConnected is returned by Peer operations that require a
	// Connected-family state, when the peer isn't in one. Reset is always
	// valid and never returns this.
	ErrPeerNotConnected = errors.New("enet: peer not connected")

	// ErrInvalidChannel is returned when a channel id is >= the peer's
	// channel count.
	ErrInvalidChannel = errors.New("enet: invalid channel id")

	// ErrPacketTooLarge is returned when a packet's payload exceeds
	// MaximumPacketSize.
	ErrPacketTooLarge = errors.New("enet: packet too large")

	// ErrInvalidPacketFlags is returned for the illegal
	// PacketFlagReliable|PacketFlagUnsequenced combination.
	ErrInvalidPacketFlags = errors.New("enet: reliable and unsequenced are mutually exclusive")

	// ErrFailedToQueue is returned when a channel's outgoing reliable
	// queue would overflow its flow-control window.
	ErrFailedToQueue = errors.New("enet: outgoing command queue full")
)

// EndpointError wraps any error surfaced by the datagram substrate so
// callers can still errors.Is/As through to it.
type EndpointError struct {
	Err error
}

func (e *EndpointError) Error() string { return "enet: endpoint error: " + e.Err.Error() }
func (e *EndpointError) Unwrap() error { return e.Err }
