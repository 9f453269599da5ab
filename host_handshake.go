package enet

// handleConnect accepts an incoming Connect command from an address the
// Host hasn't seen before, allocating a peer slot for it (spec.md §4.7,
// state Disconnected -> AcknowledgingConnect). Returns nil (dropping the
// attempt silently, per spec.md §8 "peer slot exhaustion") if no slot is
// free.
func (h *Host) handleConnect(addr Address, cmd command, now uint32) *Peer {
	if existing, ok := h.peerByAddr(addr); ok {
		if existing.state == StateAcknowledgingConnect && existing.connectID == cmd.ConnectID {
			h.queueVerifyConnect(existing)
			return existing
		}
		if existing.state != StateDisconnected && existing.state != StateZombie {
			return existing // mid-session from this address already; ignore the stray Connect
		}
	}

	peer := h.findFreeSlot()
	if peer == nil {
		h.logger.Warn("connect from %s dropped: no peer slot available", addr.String())
		return nil
	}

	channelCount := int(cmd.ChannelCount)
	if channelCount < MinimumChannelCount {
		channelCount = MinimumChannelCount
	}
	if channelCount > h.channelLimit {
		channelCount = h.channelLimit
	}

	peer.reset(channelCount)
	peer.address = addr
	peer.connectID = cmd.ConnectID
	peer.outgoingPeerID = cmd.OutgoingPeerID
	peer.incomingSessionID = cmd.OutgoingSessionID
	peer.outgoingSessionID = cmd.IncomingSessionID
	peer.connectData = cmd.Data

	peer.mtu = cmd.MTU
	if peer.mtu < ProtocolMinimumMTU {
		peer.mtu = ProtocolMinimumMTU
	}
	if peer.mtu > ProtocolMaximumMTU {
		peer.mtu = ProtocolMaximumMTU
	}
	peer.windowSize = clampWindowSize(uint64(cmd.WindowSize))
	peer.incomingBandwidth = cmd.IncomingBandwidth
	peer.outgoingBandwidth = cmd.OutgoingBandwidth
	if cmd.PacketThrottleInterval != 0 {
		peer.packetThrottleInterval = cmd.PacketThrottleInterval
	}
	peer.packetThrottleAcceleration = cmd.PacketThrottleAcceleration
	peer.packetThrottleDeceleration = cmd.PacketThrottleDeceleration

	peer.state = StateAcknowledgingConnect
	peer.lastReceiveTime = now
	h.peerByAddress[addr.String()] = peer.id

	h.queueVerifyConnect(peer)
	h.logger.Debug("accepted connect from %s as peer %d", addr.String(), peer.id)
	return peer
}

func (h *Host) queueVerifyConnect(peer *Peer) {
	peer.queueOutgoing(command{
		Type:                       CommandVerifyConnect,
		ChannelID:                  0xFF,
		NeedsAck:                   true,
		ReliableSequenceNumber:     peer.nextControlReliable(),
		OutgoingPeerID:             uint16(peer.id),
		IncomingSessionID:          peer.incomingSessionID,
		OutgoingSessionID:          peer.outgoingSessionID,
		MTU:                        peer.mtu,
		WindowSize:                 peer.windowSize,
		ChannelCount:               uint32(len(peer.channels)),
		IncomingBandwidth:          h.incomingBandwidth,
		OutgoingBandwidth:          h.outgoingBandwidth,
		PacketThrottleInterval:     peer.packetThrottleInterval,
		PacketThrottleAcceleration: peer.packetThrottleAcceleration,
		PacketThrottleDeceleration: peer.packetThrottleDeceleration,
		ConnectID:                  peer.connectID,
	})
}

// handleVerifyConnect completes the connecting side's handshake (spec.md
// §4.7): a connecting Host moves straight from Connecting to Connected on
// receiving this and queues its EventConnect. The ConnectionPending and
// ConnectionSucceeded states are never entered.
func (h *Host) handleVerifyConnect(peer *Peer, cmd command, now uint32) {
	if peer.state != StateConnecting || cmd.ConnectID != peer.connectID {
		return
	}
	if int(cmd.ChannelCount) < len(peer.channels) {
		peer.channels = peer.channels[:cmd.ChannelCount]
	}
	peer.outgoingPeerID = cmd.OutgoingPeerID
	peer.mtu = cmd.MTU
	if peer.mtu > ProtocolMaximumMTU {
		peer.mtu = ProtocolMaximumMTU
	}
	peer.windowSize = clampWindowSize(uint64(cmd.WindowSize))
	peer.incomingBandwidth = cmd.IncomingBandwidth
	peer.outgoingBandwidth = cmd.OutgoingBandwidth
	if cmd.PacketThrottleInterval != 0 {
		peer.packetThrottleInterval = cmd.PacketThrottleInterval
	}
	peer.packetThrottleAcceleration = cmd.PacketThrottleAcceleration
	peer.packetThrottleDeceleration = cmd.PacketThrottleDeceleration

	peer.state = StateConnected
	peer.lastReceiveTime = now
	peer.dispatchedEvents = append(peer.dispatchedEvents, Event{
		Type: EventConnect,
		Peer: peer.id,
		Data: peer.connectData,
	})
	h.logger.Debug("peer %d connected", peer.id)
}

// handleAcknowledge retires a sent-reliable command and folds its
// round-trip time into the RTT estimator (spec.md §4.2, §4.5). It also
// drives the accepting side's Connecting-family state machine forward,
// since Connect/VerifyConnect/Disconnect are themselves reliable commands.
func (h *Host) handleAcknowledge(peer *Peer, cmd command, now uint32) {
	var ackedCmd command
	found := false
	remaining := peer.sentReliableCommands[:0]
	for i := range peer.sentReliableCommands {
		c := peer.sentReliableCommands[i]
		if !found && c.ChannelID == cmd.ChannelID && c.ReliableSequenceNumber == cmd.ReceivedReliableSequenceNumber {
			// Copied out before the in-place compaction below can overwrite
			// this slot's backing array storage.
			ackedCmd = c
			found = true
			continue
		}
		remaining = append(remaining, c)
	}
	peer.sentReliableCommands = remaining
	if !found {
		return
	}
	acked := &ackedCmd
	peer.reliableDataInTransit -= uint32(len(acked.Payload))

	if acked.sentTime != 0 {
		rtt := timeDiff(now, acked.sentTime)
		peer.recordAcknowledgeRTT(rtt)
	}

	switch acked.Type {
	case CommandVerifyConnect:
		if peer.state == StateAcknowledgingConnect {
			peer.state = StateConnected
			peer.dispatchedEvents = append(peer.dispatchedEvents, Event{Type: EventConnect, Peer: peer.id, Data: peer.connectData})
			h.logger.Debug("peer %d connected", peer.id)
		}
	case CommandDisconnect:
		h.finishDisconnect(peer)
	}
}

func (h *Host) handleDisconnect(peer *Peer, cmd command, now uint32) {
	switch peer.state {
	case StateDisconnected, StateZombie:
		return
	}
	peer.dispatchedEvents = append(peer.dispatchedEvents, Event{Type: EventDisconnect, Peer: peer.id, Data: cmd.Data})
	h.forgetAddress(peer)
	peer.state = StateZombie
	h.logger.Debug("peer %d disconnected by remote", peer.id)
}
