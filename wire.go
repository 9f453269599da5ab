package enet

import (
	"encoding/binary"
	"fmt"
)

// ChecksumFunc computes an integrity checksum over a datagram. When set on
// a Host (spec.md §9 "Checksum pluggability"), every outgoing datagram gets
// a 32-bit checksum appended after the protocol header, computed with the
// checksum field itself zeroed, and every incoming datagram is verified the
// same way before any command in it is processed.
type ChecksumFunc func(data []byte) uint32

const (
	protocolHeaderMinSize = 2 // peerIDAndFlags
	protocolHeaderSentTimeSize = 2
	checksumSize = 4
	commandHeaderSize = 4
)

// header is the decoded form of the wire protocol header (spec.md §4.1).
type header struct {
	peerID     uint16
	sessionID  uint8
	hasSentTime bool
	sentTime   uint16
}

func encodeHeader(buf []byte, h header, checksum bool) []byte {
	flags := h.peerID & headerPeerIDMask
	flags |= uint16(h.sessionID) << headerSessionShift & headerSessionMask
	if h.hasSentTime {
		flags |= headerFlagSentTime
	}
	buf = binary.BigEndian.AppendUint16(buf, flags)
	if h.hasSentTime {
		buf = binary.BigEndian.AppendUint16(buf, h.sentTime)
	}
	if checksum {
		buf = binary.BigEndian.AppendUint32(buf, 0) // placeholder, patched by caller
	}
	return buf
}

func decodeHeader(data []byte, checksum bool) (header, int, error) {
	if len(data) < protocolHeaderMinSize {
		return header{}, 0, fmt.Errorf("enet: datagram shorter than protocol header")
	}
	flags := binary.BigEndian.Uint16(data)
	h := header{
		peerID:      flags & headerPeerIDMask,
		sessionID:   uint8((flags & headerSessionMask) >> headerSessionShift),
		hasSentTime: flags&headerFlagSentTime != 0,
	}
	off := protocolHeaderMinSize
	if h.hasSentTime {
		if len(data) < off+protocolHeaderSentTimeSize {
			return header{}, 0, fmt.Errorf("enet: datagram too short for sent-time field")
		}
		h.sentTime = binary.BigEndian.Uint16(data[off:])
		off += protocolHeaderSentTimeSize
	}
	if checksum {
		if len(data) < off+checksumSize {
			return header{}, 0, fmt.Errorf("enet: datagram too short for checksum field")
		}
		off += checksumSize
	}
	return h, off, nil
}

// patchChecksum computes fn over data with the 4-byte checksum field (at
// data[checksumOffset:checksumOffset+4]) zeroed, then writes the result
// into that field. This matches spec.md §4.1: "the field is included in the
// covered bytes with value zero during computation, then overwritten."
func patchChecksum(fn ChecksumFunc, data []byte, checksumOffset int) {
	zero := [4]byte{}
	saved := [4]byte{data[checksumOffset], data[checksumOffset+1], data[checksumOffset+2], data[checksumOffset+3]}
	copy(data[checksumOffset:], zero[:])
	sum := fn(data)
	copy(data[checksumOffset:], saved[:]) // restore before overwrite, harmless, keeps intent obvious
	binary.BigEndian.PutUint32(data[checksumOffset:], sum)
}

func verifyChecksum(fn ChecksumFunc, data []byte, checksumOffset int) bool {
	want := binary.BigEndian.Uint32(data[checksumOffset:])
	zero := [4]byte{}
	patched := make([]byte, len(data))
	copy(patched, data)
	copy(patched[checksumOffset:], zero[:])
	return fn(patched) == want
}

func encodeCommand(buf []byte, c *command) []byte {
	typeByte := uint8(c.Type) & commandTypeMask
	if c.NeedsAck {
		typeByte |= commandFlagAcknowledge
	}
	if c.Unsequenced {
		typeByte |= commandFlagUnsequenced
	}
	buf = append(buf, typeByte, c.ChannelID)
	buf = binary.BigEndian.AppendUint16(buf, c.ReliableSequenceNumber)

	switch c.Type {
	case CommandAcknowledge:
		buf = binary.BigEndian.AppendUint16(buf, c.ReceivedReliableSequenceNumber)
		buf = binary.BigEndian.AppendUint16(buf, c.ReceivedSentTime)

	case CommandConnect, CommandVerifyConnect:
		buf = binary.BigEndian.AppendUint16(buf, c.OutgoingPeerID)
		buf = append(buf, c.IncomingSessionID, c.OutgoingSessionID)
		buf = binary.BigEndian.AppendUint32(buf, c.MTU)
		buf = binary.BigEndian.AppendUint32(buf, c.WindowSize)
		buf = binary.BigEndian.AppendUint32(buf, c.ChannelCount)
		buf = binary.BigEndian.AppendUint32(buf, c.IncomingBandwidth)
		buf = binary.BigEndian.AppendUint32(buf, c.OutgoingBandwidth)
		buf = binary.BigEndian.AppendUint32(buf, c.PacketThrottleInterval)
		buf = binary.BigEndian.AppendUint32(buf, c.PacketThrottleAcceleration)
		buf = binary.BigEndian.AppendUint32(buf, c.PacketThrottleDeceleration)
		buf = binary.BigEndian.AppendUint32(buf, c.ConnectID)
		if c.Type == CommandConnect {
			buf = binary.BigEndian.AppendUint32(buf, c.Data)
		}

	case CommandDisconnect:
		buf = binary.BigEndian.AppendUint32(buf, c.Data)

	case CommandPing:
		// header only

	case CommandSendReliable:
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(c.Payload)))
		buf = append(buf, c.Payload...)

	case CommandSendUnreliable:
		buf = binary.BigEndian.AppendUint16(buf, c.UnreliableSequenceNumber)
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(c.Payload)))
		buf = append(buf, c.Payload...)

	case CommandSendUnsequenced:
		buf = binary.BigEndian.AppendUint16(buf, c.UnsequencedGroup)
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(c.Payload)))
		buf = append(buf, c.Payload...)

	case CommandSendFragment, CommandSendUnreliableFragment:
		buf = binary.BigEndian.AppendUint16(buf, c.StartSequenceNumber)
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(c.Payload)))
		buf = binary.BigEndian.AppendUint32(buf, c.FragmentCount)
		buf = binary.BigEndian.AppendUint32(buf, c.FragmentNumber)
		buf = binary.BigEndian.AppendUint32(buf, c.TotalLength)
		buf = binary.BigEndian.AppendUint32(buf, c.FragmentOffset)
		buf = append(buf, c.Payload...)

	case CommandBandwidthLimit:
		buf = binary.BigEndian.AppendUint32(buf, c.IncomingBandwidth)
		buf = binary.BigEndian.AppendUint32(buf, c.OutgoingBandwidth)

	case CommandThrottleConfigure:
		buf = binary.BigEndian.AppendUint32(buf, c.PacketThrottleInterval)
		buf = binary.BigEndian.AppendUint32(buf, c.PacketThrottleAcceleration)
		buf = binary.BigEndian.AppendUint32(buf, c.PacketThrottleDeceleration)
	}
	return buf
}

// decodeCommand reads one command from data[0:], returning it along with
// the number of bytes consumed. It rejects (spec.md §4.1) any command whose
// declared length does not fit in the remaining datagram.
func decodeCommand(data []byte) (command, int, error) {
	if len(data) < commandHeaderSize {
		return command{}, 0, fmt.Errorf("enet: truncated command header")
	}
	typeByte := data[0]
	c := command{
		Type:                   CommandType(typeByte & commandTypeMask),
		NeedsAck:               typeByte&commandFlagAcknowledge != 0,
		Unsequenced:            typeByte&commandFlagUnsequenced != 0,
		ChannelID:              data[1],
		ReliableSequenceNumber: binary.BigEndian.Uint16(data[2:4]),
	}
	off := commandHeaderSize

	need := func(n int) error {
		if len(data) < off+n {
			return fmt.Errorf("enet: command type %d claims length past datagram end", c.Type)
		}
		return nil
	}

	switch c.Type {
	case CommandAcknowledge:
		if err := need(4); err != nil {
			return command{}, 0, err
		}
		c.ReceivedReliableSequenceNumber = binary.BigEndian.Uint16(data[off:])
		c.ReceivedSentTime = binary.BigEndian.Uint16(data[off+2:])
		off += 4

	case CommandConnect, CommandVerifyConnect:
		fixed := 40
		if c.Type == CommandConnect {
			fixed = 44
		}
		if err := need(fixed); err != nil {
			return command{}, 0, err
		}
		c.OutgoingPeerID = binary.BigEndian.Uint16(data[off:])
		c.IncomingSessionID = data[off+2]
		c.OutgoingSessionID = data[off+3]
		c.MTU = binary.BigEndian.Uint32(data[off+4:])
		c.WindowSize = binary.BigEndian.Uint32(data[off+8:])
		c.ChannelCount = binary.BigEndian.Uint32(data[off+12:])
		c.IncomingBandwidth = binary.BigEndian.Uint32(data[off+16:])
		c.OutgoingBandwidth = binary.BigEndian.Uint32(data[off+20:])
		c.PacketThrottleInterval = binary.BigEndian.Uint32(data[off+24:])
		c.PacketThrottleAcceleration = binary.BigEndian.Uint32(data[off+28:])
		c.PacketThrottleDeceleration = binary.BigEndian.Uint32(data[off+32:])
		c.ConnectID = binary.BigEndian.Uint32(data[off+36:])
		off += 40
		if c.Type == CommandConnect {
			c.Data = binary.BigEndian.Uint32(data[off:])
			off += 4
		}

	case CommandDisconnect:
		if err := need(4); err != nil {
			return command{}, 0, err
		}
		c.Data = binary.BigEndian.Uint32(data[off:])
		off += 4

	case CommandPing:
		// header only

	case CommandSendReliable:
		if err := need(2); err != nil {
			return command{}, 0, err
		}
		length := int(binary.BigEndian.Uint16(data[off:]))
		off += 2
		if err := need(length); err != nil {
			return command{}, 0, err
		}
		c.Payload = append([]byte(nil), data[off:off+length]...)
		off += length

	case CommandSendUnreliable:
		if err := need(4); err != nil {
			return command{}, 0, err
		}
		c.UnreliableSequenceNumber = binary.BigEndian.Uint16(data[off:])
		length := int(binary.BigEndian.Uint16(data[off+2:]))
		off += 4
		if err := need(length); err != nil {
			return command{}, 0, err
		}
		c.Payload = append([]byte(nil), data[off:off+length]...)
		off += length

	case CommandSendUnsequenced:
		if err := need(4); err != nil {
			return command{}, 0, err
		}
		c.UnsequencedGroup = binary.BigEndian.Uint16(data[off:])
		length := int(binary.BigEndian.Uint16(data[off+2:]))
		off += 4
		if err := need(length); err != nil {
			return command{}, 0, err
		}
		c.Payload = append([]byte(nil), data[off:off+length]...)
		off += length

	case CommandSendFragment, CommandSendUnreliableFragment:
		if err := need(20); err != nil {
			return command{}, 0, err
		}
		c.StartSequenceNumber = binary.BigEndian.Uint16(data[off:])
		length := int(binary.BigEndian.Uint16(data[off+2:]))
		c.FragmentCount = binary.BigEndian.Uint32(data[off+4:])
		c.FragmentNumber = binary.BigEndian.Uint32(data[off+8:])
		c.TotalLength = binary.BigEndian.Uint32(data[off+12:])
		c.FragmentOffset = binary.BigEndian.Uint32(data[off+16:])
		off += 20
		if c.FragmentCount == 0 || c.FragmentCount > maximumFragmentCount || c.FragmentNumber >= c.FragmentCount {
			return command{}, 0, fmt.Errorf("enet: invalid fragment descriptor")
		}
		if err := need(length); err != nil {
			return command{}, 0, err
		}
		c.Payload = append([]byte(nil), data[off:off+length]...)
		off += length

	case CommandBandwidthLimit:
		if err := need(8); err != nil {
			return command{}, 0, err
		}
		c.IncomingBandwidth = binary.BigEndian.Uint32(data[off:])
		c.OutgoingBandwidth = binary.BigEndian.Uint32(data[off+4:])
		off += 8

	case CommandThrottleConfigure:
		if err := need(12); err != nil {
			return command{}, 0, err
		}
		c.PacketThrottleInterval = binary.BigEndian.Uint32(data[off:])
		c.PacketThrottleAcceleration = binary.BigEndian.Uint32(data[off+4:])
		c.PacketThrottleDeceleration = binary.BigEndian.Uint32(data[off+8:])
		off += 12

	default:
		return command{}, 0, fmt.Errorf("enet: unknown command type %d", c.Type)
	}

	return c, off, nil
}
