package enet

import "time"

// receivePhase drains every datagram currently available on the endpoint
// (timeout == 0 meaning "don't wait at all"; anything longer blocks once
// for up to timeout waiting for the first datagram, then drains the rest
// without waiting further).
func (h *Host) receivePhase(timeout time.Duration) error {
	first := true
	for {
		wait := time.Duration(0)
		if first {
			wait = timeout
		}
		first = false

		addr, n, err := h.endpoint.Recv(h.recvBuf, wait)
		if err != nil {
			if err == ErrWouldBlock {
				return nil
			}
			return err
		}
		h.processDatagram(addr, h.recvBuf[:n])
	}
}

// processDatagram verifies and decodes one datagram and dispatches every
// command in it (spec.md §4.1, §4.9).
func (h *Host) processDatagram(addr Address, data []byte) {
	checksumOn := h.checksum != nil
	if checksumOn {
		if len(data) < checksumSize {
			h.logger.Debug("dropping datagram from %s: too short for checksum", addr.String())
			return
		}
	}

	hdr, off, err := decodeHeader(data, checksumOn)
	if err != nil {
		h.logger.Debug("dropping malformed datagram from %s: %v", addr.String(), err)
		return
	}
	if checksumOn {
		checksumOffset := off - checksumSize
		if !verifyChecksum(h.checksum, data, checksumOffset) {
			h.logger.Debug("dropping datagram from %s: checksum mismatch", addr.String())
			return
		}
	}

	now := h.now()
	peer := h.resolvePeer(hdr, addr)

	rest := data[off:]
	for len(rest) > 0 {
		cmd, n, err := decodeCommand(rest)
		if err != nil {
			h.logger.Debug("dropping rest of datagram from %s: %v", addr.String(), err)
			return
		}
		rest = rest[n:]

		if peer == nil {
			if cmd.Type == CommandConnect {
				peer = h.handleConnect(addr, cmd, now)
			}
			continue
		}

		peer.lastReceiveTime = now
		peer.incomingDataTotal += uint32(n)
		peer.incomingDataThisEpoch += uint32(n)

		ack := cmd.NeedsAck
		if ack && (cmd.Type == CommandSendReliable || cmd.Type == CommandSendFragment) {
			if ch, ok := h.channelFor(peer, cmd); ok && seq16Diff(ch.incomingReliableSequenceNumber, cmd.ReliableSequenceNumber) > reliableWindowGap {
				ack = false // outside the reliable window: dropped below, never acknowledged
			}
		}
		if ack {
			peer.acknowledgements = append(peer.acknowledgements, command{
				Type:                           CommandAcknowledge,
				ChannelID:                      cmd.ChannelID,
				ReceivedReliableSequenceNumber: cmd.ReliableSequenceNumber,
				ReceivedSentTime:               hdr.sentTime,
			})
		}

		h.handleCommand(peer, cmd, now)
	}
}

// resolvePeer finds the local Peer a datagram's header addresses. A
// sentinel peerID (ProtocolMaximumPeerID) means the sender doesn't know
// its assigned id yet (spec.md §4.1); any other field is a direct index
// into this Host's own peer array, double-checked against the source
// address to reject spoofed or stale indices.
func (h *Host) resolvePeer(hdr header, addr Address) *Peer {
	if int(hdr.peerID) < len(h.peers) {
		candidate := h.peers[hdr.peerID]
		if candidate.state != StateDisconnected && candidate.address != nil && candidate.address.Equal(addr) {
			return candidate
		}
	}
	if p, ok := h.peerByAddr(addr); ok {
		return p
	}
	return nil
}

func (h *Host) handleCommand(peer *Peer, cmd command, now uint32) {
	switch cmd.Type {
	case CommandAcknowledge:
		h.handleAcknowledge(peer, cmd, now)
	case CommandVerifyConnect:
		h.handleVerifyConnect(peer, cmd, now)
	case CommandDisconnect:
		h.handleDisconnect(peer, cmd, now)
	case CommandPing:
		// The acknowledgement already queued above is the entire point of
		// a ping; nothing further to do.
	case CommandSendReliable:
		h.handleSendReliable(peer, cmd)
	case CommandSendUnreliable:
		h.handleSendUnreliable(peer, cmd)
	case CommandSendUnsequenced:
		h.handleSendUnsequenced(peer, cmd)
	case CommandSendFragment:
		h.handleSendFragment(peer, cmd)
	case CommandSendUnreliableFragment:
		h.handleSendUnreliableFragment(peer, cmd)
	case CommandBandwidthLimit:
		h.handleBandwidthLimit(peer, cmd)
	case CommandThrottleConfigure:
		h.handleThrottleConfigure(peer, cmd)
	case CommandConnect:
		h.handleDuplicateConnect(peer, cmd, now)
	default:
		h.logger.Debug("peer %d: ignoring unexpected command type %d", peer.id, cmd.Type)
	}
}

func (h *Host) channelFor(peer *Peer, cmd command) (*channel, bool) {
	if int(cmd.ChannelID) >= len(peer.channels) {
		return nil, false
	}
	return &peer.channels[cmd.ChannelID], true
}

func (h *Host) deliver(peer *Peer, channelID uint8, payload []byte) {
	data := make([]byte, len(payload))
	copy(data, payload)
	peer.dispatchedEvents = append(peer.dispatchedEvents, Event{
		Type:      EventReceive,
		Peer:      peer.id,
		ChannelID: channelID,
		Packet:    &Packet{Data: data},
	})
}

func (h *Host) handleSendReliable(peer *Peer, cmd command) {
	ch, ok := h.channelFor(peer, cmd)
	if !ok {
		return
	}
	ready, _, inWindow := ch.acceptReliable(cmd)
	if !inWindow {
		return
	}
	h.deliverReliableReady(peer, ch, cmd.ChannelID, ready)
}

// deliverReliableReady dispatches every reliable command that
// ch.acceptReliable just unblocked, in order. A plain SendReliable
// delivers immediately; a SendFragment instead feeds its own reliable
// sequence slot into the owning fragmentAssembly (keyed by
// StartSequenceNumber) and only delivers once that group is complete
// (spec.md §4.4). Gating each fragment on its own ReliableSequenceNumber
// this way keeps the channel's incomingReliableSequenceNumber advancing
// once per fragment, matching the once-per-fragment slot the sender
// consumes in queueReliable — otherwise later reliable sends on the same
// channel would arrive with a sequence number the window never fills and
// stall forever.
func (h *Host) deliverReliableReady(peer *Peer, ch *channel, channelID uint8, ready []command) {
	for _, cmd := range ready {
		if cmd.Type != CommandSendFragment {
			h.deliver(peer, channelID, cmd.Payload)
			continue
		}
		group, key := ch.fragmentGroup(&cmd)
		fa, exists := group[key]
		if !exists {
			fa = newFragmentAssembly(&cmd)
			group[key] = fa
		}
		complete, valid := fa.addFragment(&cmd)
		if !valid {
			delete(group, key)
			continue
		}
		if !complete {
			continue
		}
		delete(group, key)
		h.deliver(peer, channelID, fa.buffer)
	}
	if len(ready) > 0 {
		// The reliable prefix advanced: release unreliable commands that
		// were waiting for it.
		for _, c := range ch.drainReadyUnreliable() {
			h.deliver(peer, channelID, c.Payload)
		}
	}
}

func (h *Host) handleSendUnreliable(peer *Peer, cmd command) {
	ch, ok := h.channelFor(peer, cmd)
	if !ok {
		return
	}
	ready := ch.acceptUnreliable(cmd, cmd.UnreliableSequenceNumber)
	for _, c := range ready {
		h.deliver(peer, cmd.ChannelID, c.Payload)
	}
}

func (h *Host) handleSendUnsequenced(peer *Peer, cmd command) {
	ch, ok := h.channelFor(peer, cmd)
	if !ok {
		return
	}
	if !ch.acceptUnsequenced(cmd.UnsequencedGroup) {
		return
	}
	h.deliver(peer, cmd.ChannelID, cmd.Payload)
}

// handleSendFragment gates one reliable fragment on its own
// ReliableSequenceNumber, the same ordering window every other reliable
// command on this channel goes through, rather than waiting for the whole
// group and collapsing it onto a single borrowed sequence number.
func (h *Host) handleSendFragment(peer *Peer, cmd command) {
	ch, ok := h.channelFor(peer, cmd)
	if !ok {
		return
	}
	ready, _, inWindow := ch.acceptReliable(cmd)
	if !inWindow {
		return
	}
	h.deliverReliableReady(peer, ch, cmd.ChannelID, ready)
}

func (h *Host) handleSendUnreliableFragment(peer *Peer, cmd command) {
	ch, ok := h.channelFor(peer, cmd)
	if !ok {
		return
	}
	group, key := ch.fragmentGroup(&cmd)
	fa, exists := group[key]
	if !exists {
		fa = newFragmentAssembly(&cmd)
		group[key] = fa
	}
	complete, valid := fa.addFragment(&cmd)
	if !valid {
		delete(group, key)
		return
	}
	if !complete {
		return
	}
	delete(group, key)

	whole := command{Type: CommandSendUnreliable, ChannelID: cmd.ChannelID, ReliableSequenceNumber: cmd.ReliableSequenceNumber, UnreliableSequenceNumber: key, Payload: fa.buffer}
	ready := ch.acceptUnreliable(whole, key)
	for _, c := range ready {
		h.deliver(peer, cmd.ChannelID, c.Payload)
	}
}

func (h *Host) handleBandwidthLimit(peer *Peer, cmd command) {
	peer.incomingBandwidth = cmd.IncomingBandwidth
	peer.outgoingBandwidth = cmd.OutgoingBandwidth
}

func (h *Host) handleThrottleConfigure(peer *Peer, cmd command) {
	peer.packetThrottleInterval = cmd.PacketThrottleInterval
	peer.packetThrottleAcceleration = cmd.PacketThrottleAcceleration
	peer.packetThrottleDeceleration = cmd.PacketThrottleDeceleration
}

// handleDuplicateConnect re-acknowledges a Connect command that arrives
// again for an address already mid-handshake, covering the case where our
// VerifyConnect was lost in flight (Open Question resolved in SPEC_FULL.md:
// re-send rather than silently drop).
func (h *Host) handleDuplicateConnect(peer *Peer, cmd command, now uint32) {
	if peer.state != StateAcknowledgingConnect || cmd.ConnectID != peer.connectID {
		return
	}
	h.queueVerifyConnect(peer)
}
