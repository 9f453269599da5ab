package enet

// fragmentCommandOverhead is the fixed byte cost of a fragment descriptor
// beyond the common command header, used to size outgoing fragments so the
// whole fragment still fits a single datagram (spec.md §4.4).
const fragmentCommandOverhead = 20

// queueSend is the shared tail of Peer.Send and Host.Broadcast: it decides
// reliable vs. unreliable vs. unsequenced delivery and, if the payload
// doesn't fit one command, splits it into a fragment group (spec.md §4.4).
func (h *Host) queueSend(peer *Peer, channelID uint8, packet *Packet) error {
	if int(channelID) >= len(peer.channels) {
		return ErrInvalidChannel
	}
	if err := packet.validate(); err != nil {
		return err
	}
	ch := &peer.channels[channelID]

	overhead := protocolHeaderMinSize + protocolHeaderSentTimeSize + commandHeaderSize
	if h.checksum != nil {
		overhead += checksumSize
	}
	mtu := int(peer.mtu) - overhead
	if mtu < 64 {
		mtu = 64
	}

	switch {
	case packet.reliable():
		return h.queueReliable(peer, ch, channelID, packet, mtu-fragmentCommandOverhead)
	case packet.unsequenced():
		return h.queueUnsequenced(peer, channelID, packet)
	default:
		return h.queueUnreliable(peer, ch, channelID, packet, mtu-fragmentCommandOverhead)
	}
}

func (h *Host) queueReliable(peer *Peer, ch *channel, channelID uint8, packet *Packet, fragmentSize int) error {
	plainLimit := fragmentSize + fragmentCommandOverhead - 2
	if len(packet.Data) <= plainLimit {
		peer.queueOutgoing(command{
			Type:                   CommandSendReliable,
			ChannelID:              channelID,
			NeedsAck:               true,
			ReliableSequenceNumber: ch.nextOutgoingReliable(),
			Payload:                packet.Data,
		})
		return nil
	}

	fragments := splitPayload(packet.Data, fragmentSize)
	if len(fragments) > maximumFragmentCount {
		return ErrPacketTooLarge
	}
	start := ch.nextOutgoingReliable()
	total := uint32(len(packet.Data))
	var offset uint32
	for i, frag := range fragments {
		seq := start
		if i > 0 {
			seq = ch.nextOutgoingReliable()
		}
		peer.queueOutgoing(command{
			Type:                   CommandSendFragment,
			ChannelID:              channelID,
			NeedsAck:               true,
			ReliableSequenceNumber: seq,
			StartSequenceNumber:    start,
			FragmentCount:          uint32(len(fragments)),
			FragmentNumber:         uint32(i),
			TotalLength:            total,
			FragmentOffset:         offset,
			Payload:                frag,
		})
		offset += uint32(len(frag))
	}
	return nil
}

func (h *Host) queueUnsequenced(peer *Peer, channelID uint8, packet *Packet) error {
	peer.outgoingUnsequencedGroup++
	peer.queueOutgoing(command{
		Type:             CommandSendUnsequenced,
		ChannelID:        channelID,
		Unsequenced:      true,
		UnsequencedGroup: peer.outgoingUnsequencedGroup,
		Payload:          packet.Data,
	})
	return nil
}

func (h *Host) queueUnreliable(peer *Peer, ch *channel, channelID uint8, packet *Packet, fragmentSize int) error {
	plainLimit := fragmentSize + fragmentCommandOverhead - 4
	if len(packet.Data) <= plainLimit {
		peer.queueOutgoing(command{
			Type:                     CommandSendUnreliable,
			ChannelID:                channelID,
			ReliableSequenceNumber:   ch.outgoingReliableSequenceNumber,
			UnreliableSequenceNumber: ch.nextOutgoingUnreliable(),
			Payload:                  packet.Data,
		})
		return nil
	}
	if packet.Flags&PacketFlagUnreliableFragment == 0 {
		// Unreliable packets that don't fit the MTU are rejected with
		// ErrPacketTooLarge rather than fragmented, unless the caller opted
		// in (spec.md §3 "Packet").
		return ErrPacketTooLarge
	}

	fragments := splitPayload(packet.Data, fragmentSize)
	if len(fragments) > maximumFragmentCount {
		return ErrPacketTooLarge
	}
	start := ch.nextOutgoingUnreliable()
	total := uint32(len(packet.Data))
	var offset uint32
	for i, frag := range fragments {
		peer.queueOutgoing(command{
			Type:                   CommandSendUnreliableFragment,
			ChannelID:              channelID,
			ReliableSequenceNumber: ch.outgoingReliableSequenceNumber,
			StartSequenceNumber:    start,
			FragmentCount:       uint32(len(fragments)),
			FragmentNumber:      uint32(i),
			TotalLength:         total,
			FragmentOffset:      offset,
			Payload:             frag,
		})
		offset += uint32(len(frag))
	}
	return nil
}

// sendToPeer packs as many pending acknowledgements and outgoing commands
// as fit into peer.mtu-sized datagrams and transmits them, repeating until
// the queue drains or a send would block (spec.md §4.2, §4.9).
func (h *Host) sendToPeer(peer *Peer, now uint32) {
	if peer.state == StateDisconnected || peer.address == nil {
		return
	}

	for {
		buf := make([]byte, 0, peer.mtu)
		checksumOn := h.checksum != nil
		buf = encodeHeader(buf, header{peerID: peer.outgoingPeerID, hasSentTime: true, sentTime: uint16(now)}, checksumOn)
		checksumOffset := -1
		if checksumOn {
			checksumOffset = len(buf) - checksumSize
		}

		packed := 0
		for len(peer.acknowledgements) > 0 && packed < maximumPeerPacketCommands {
			ack := peer.acknowledgements[0]
			encoded := encodeCommand(nil, &ack)
			if len(buf)+len(encoded) > int(peer.mtu) {
				break
			}
			buf = append(buf, encoded...)
			peer.acknowledgements = peer.acknowledgements[1:]
			packed++
		}

		for len(peer.outgoingCommands) > 0 && packed < maximumPeerPacketCommands {
			cmd := peer.outgoingCommands[0]
			if cmd.reliable() {
				if len(peer.sentReliableCommands) > 0 && peer.reliableDataInTransit+uint32(len(cmd.Payload)) > peer.windowSize {
					break // flow-controlled: wait for acknowledgements before sending more
				}
			} else if cmd.Type == CommandSendUnreliable || cmd.Type == CommandSendUnreliableFragment {
				if !peer.admitUnreliable() {
					peer.outgoingCommands = peer.outgoingCommands[1:]
					continue
				}
			}

			encoded := encodeCommand(nil, &cmd)
			if len(buf)+len(encoded) > int(peer.mtu) {
				if packed == 0 {
					// A single command doesn't fit even an empty datagram;
					// this would only happen with a misconfigured MTU.
					peer.outgoingCommands = peer.outgoingCommands[1:]
					continue
				}
				break
			}
			buf = append(buf, encoded...)
			peer.outgoingCommands = peer.outgoingCommands[1:]
			packed++

			if cmd.reliable() {
				cmd.sentTime = now
				cmd.sendAttempts++
				if cmd.roundTripTimeout == 0 {
					// First transmission; a retransmission keeps the doubled
					// timeout checkPeerRetransmits gave it.
					cmd.roundTripTimeout = peer.roundTripTime + 4*peer.roundTripTimeVariance
					if cmd.roundTripTimeout < peer.timeoutMinimum {
						cmd.roundTripTimeout = peer.timeoutMinimum
					}
				}
				peer.sentReliableCommands = append(peer.sentReliableCommands, cmd)
				peer.reliableDataInTransit += uint32(len(cmd.Payload))
			}
			peer.packetsSent++
			peer.outgoingDataTotal += uint32(len(encoded))
			peer.outgoingDataThisEpoch += uint32(len(encoded))
		}

		if packed == 0 {
			break
		}
		if checksumOffset >= 0 {
			patchChecksum(h.checksum, buf, checksumOffset)
		}
		if err := h.endpoint.Send(peer.address, buf); err != nil {
			h.logger.Debug("send to %s failed: %v", peer.address.String(), err)
			break
		}
		peer.lastSendTime = now

		if len(peer.acknowledgements) == 0 && len(peer.outgoingCommands) == 0 {
			break
		}
	}

	if peer.state == StateDisconnectLater && len(peer.outgoingCommands) == 0 && len(peer.sentReliableCommands) == 0 {
		h.disconnect(peer, peer.disconnectLaterData)
	}
}
