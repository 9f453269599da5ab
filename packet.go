package enet

// PacketFlag controls how a Packet is delivered. See spec.md §3 "Packet".
type PacketFlag uint8

const (
	// PacketFlagReliable guarantees delivery and, within a channel, order.
	PacketFlagReliable PacketFlag = 1 << iota
	// PacketFlagUnsequenced disables the reliable ordering a channel
	// otherwise provides; mutually exclusive with PacketFlagReliable.
	PacketFlagUnsequenced
	// PacketFlagUnreliableFragment marks a packet that must be split even
	// though it is unreliable (without it, an unreliable packet that
	// doesn't fit the MTU is rejected with ErrPacketTooLarge rather than
	// fragmented).
	PacketFlagUnreliableFragment
	// PacketFlagNoAllocate indicates the caller's buffer may be retained
	// without copying. goenet always copies on receive, so this flag is
	// accepted but has no observable effect; it exists for wire/API
	// parity with the protocol this engine reimplements.
	PacketFlagNoAllocate
)

// Packet is one application message passed to Host.Connect's peer (via
// Peer.Send / Host.Broadcast) or surfaced on an Event.
type Packet struct {
	Data  []byte
	Flags PacketFlag
}

// NewPacket constructs a Packet, copying data so the caller's slice may be
// reused immediately.
func NewPacket(data []byte, flags PacketFlag) *Packet {
	buf := make([]byte, len(data))
	copy(buf, data)
	return &Packet{Data: buf, Flags: flags}
}

func (p *Packet) reliable() bool   { return p.Flags&PacketFlagReliable != 0 }
func (p *Packet) unsequenced() bool { return p.Flags&PacketFlagUnsequenced != 0 }

func (p *Packet) validate() error {
	if p.reliable() && p.unsequenced() {
		return ErrInvalidPacketFlags
	}
	if len(p.Data) > MaximumPacketSize {
		return ErrPacketTooLarge
	}
	return nil
}
