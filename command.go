package enet

// CommandType identifies the ~13 protocol commands (spec.md §3 "Command").
type CommandType uint8

const (
	CommandNone CommandType = iota
	CommandAcknowledge
	CommandConnect
	CommandVerifyConnect
	CommandDisconnect
	CommandPing
	CommandSendReliable
	CommandSendUnreliable
	CommandSendFragment
	CommandSendUnsequenced
	CommandBandwidthLimit
	CommandThrottleConfigure
	CommandSendUnreliableFragment
	commandCount
)

// Command header flag bits, packed into the high bits of the wire command
// byte alongside the 4-bit CommandType (spec.md §4.1).
const (
	commandTypeMask        = 0x0F
	commandFlagAcknowledge = 0x80
	commandFlagUnsequenced = 0x40
)

// Protocol header flag/field layout, packed into the 16-bit "peer ID and
// flags" field (spec.md §4.1).
const (
	headerFlagCompressed = 1 << 14
	headerFlagSentTime   = 1 << 15
	headerSessionShift   = 12
	headerSessionMask    = 0x3 << headerSessionShift
	headerPeerIDMask     = 0x0FFF
)

// command is one protocol command, reliable or not, with its type-specific
// fields populated according to Type. It's a flat struct rather than a
// tagged union: every wire command is small and fixed-shape, and a single
// struct keeps encode/decode symmetric without a type switch on the Go
// side duplicating the one already needed for the wire switch.
type command struct {
	Type                   CommandType
	ChannelID              uint8
	ReliableSequenceNumber uint16
	NeedsAck               bool
	Unsequenced            bool

	// Acknowledge
	ReceivedReliableSequenceNumber uint16
	ReceivedSentTime               uint16

	// Connect / VerifyConnect
	OutgoingPeerID             uint16
	IncomingSessionID          uint8
	OutgoingSessionID          uint8
	MTU                        uint32
	WindowSize                 uint32
	ChannelCount               uint32
	IncomingBandwidth          uint32
	OutgoingBandwidth          uint32
	PacketThrottleInterval     uint32
	PacketThrottleAcceleration uint32
	PacketThrottleDeceleration uint32
	ConnectID                  uint32
	Data                       uint32 // also used by Disconnect's data payload

	// SendUnreliable
	UnreliableSequenceNumber uint16

	// SendUnsequenced
	UnsequencedGroup uint16

	// SendFragment / SendUnreliableFragment
	StartSequenceNumber uint16
	FragmentCount       uint32
	FragmentNumber      uint32
	TotalLength         uint32
	FragmentOffset      uint32

	// BandwidthLimit reuses IncomingBandwidth/OutgoingBandwidth above.
	// ThrottleConfigure reuses PacketThrottleInterval/Acceleration/Deceleration above.

	Payload []byte // trailing variable-length bytes for Send* commands

	// sentTime and sendAttempts are bookkeeping for the sent-reliable
	// queue (spec.md §4.2, §4.6); they are never encoded on the wire.
	sentTime     uint32
	sendAttempts uint32
	roundTripTimeout uint32
}

// reliable reports whether this command type carries a
// ReliableSequenceNumber and lives in the sent-reliable queue once sent.
func (c *command) reliable() bool {
	switch c.Type {
	case CommandSendReliable, CommandSendFragment, CommandConnect, CommandVerifyConnect, CommandDisconnect,
		CommandPing, CommandBandwidthLimit, CommandThrottleConfigure:
		return true
	default:
		return false
	}
}

func (c *command) size() int {
	n := commandHeaderSize
	switch c.Type {
	case CommandAcknowledge:
		n += 4
	case CommandConnect:
		n += 44
	case CommandVerifyConnect:
		n += 40
	case CommandDisconnect:
		n += 4
	case CommandPing:
	case CommandSendReliable:
		n += 2 + len(c.Payload)
	case CommandSendUnreliable:
		n += 4 + len(c.Payload)
	case CommandSendUnsequenced:
		n += 4 + len(c.Payload)
	case CommandSendFragment, CommandSendUnreliableFragment:
		n += 20 + len(c.Payload)
	case CommandBandwidthLimit:
		n += 8
	case CommandThrottleConfigure:
		n += 12
	}
	return n
}
