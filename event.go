package enet

// EventType distinguishes the three kinds of event Host.Service surfaces
// (spec.md §6 "Events").
type EventType uint8

const (
	// EventNone is the zero value; Host.Service returns it (with ok ==
	// false) when there is nothing to report this call.
	EventNone EventType = iota
	EventConnect
	EventDisconnect
	EventReceive
)

func (t EventType) String() string {
	switch t {
	case EventConnect:
		return "connect"
	case EventDisconnect:
		return "disconnect"
	case EventReceive:
		return "receive"
	default:
		return "none"
	}
}

// Event is one application-visible occurrence produced by Host.Service
// (spec.md §6). Data is the 32-bit value the initiating side supplied at
// connect or disconnect time; it is zero for EventReceive.
type Event struct {
	Type      EventType
	Peer      PeerID
	ChannelID uint8
	Data      uint32
	Packet    *Packet
}
