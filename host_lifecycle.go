package enet

// disconnect begins (or immediately finishes) a graceful disconnection,
// backing Peer.Disconnect and Peer.DisconnectLater (spec.md §4.7).
func (h *Host) disconnect(peer *Peer, data uint32) {
	switch peer.state {
	case StateDisconnected, StateZombie:
		return
	}
	peer.acknowledgements = nil
	peer.outgoingCommands = nil
	peer.sentReliableCommands = nil
	peer.reliableDataInTransit = 0
	peer.queueOutgoing(command{
		Type:                   CommandDisconnect,
		ChannelID:              0xFF,
		NeedsAck:               true,
		ReliableSequenceNumber: peer.nextControlReliable(),
		Data:                   data,
	})
	peer.state = StateDisconnecting
}

// finishDisconnect completes a graceful disconnection on the side that
// initiated it, once the remote has acknowledged the Disconnect command
// (spec.md §4.7: "on ACK: -> Zombie; emit Disconnect event"). The peer sits
// in Zombie for one tick, visible through State(), the same as a timed-out
// peer; checkTimeouts recycles the slot once the event has been collected.
func (h *Host) finishDisconnect(peer *Peer) {
	h.forgetAddress(peer)
	peer.state = StateZombie
	peer.dispatchedEvents = append(peer.dispatchedEvents, Event{Type: EventDisconnect, Peer: peer.id})
}

// disconnectNow forces an immediate disconnection: a best-effort unreliable
// Disconnect datagram is sent directly, bypassing the queue, and the slot
// is freed without waiting for any acknowledgement (spec.md §4.7).
func (h *Host) disconnectNow(peer *Peer, data uint32) {
	if peer.state == StateDisconnected {
		return
	}
	if peer.address != nil && peer.state != StateConnecting {
		cmd := command{Type: CommandDisconnect, ChannelID: 0xFF, Data: data}
		buf := encodeHeader(nil, header{peerID: peer.outgoingPeerID}, h.checksum != nil)
		checksumOffset := -1
		if h.checksum != nil {
			checksumOffset = len(buf) - checksumSize
		}
		buf = encodeCommand(buf, &cmd)
		if checksumOffset >= 0 {
			patchChecksum(h.checksum, buf, checksumOffset)
		}
		_ = h.endpoint.Send(peer.address, buf) // best effort; errors are not actionable here
	}
	h.forgetAddress(peer)
	peer.reset(len(peer.channels))
}

// resetPeer forcibly disconnects a peer without sending anything, backing
// Peer.Reset (spec.md §4.7).
func (h *Host) resetPeer(peer *Peer) {
	h.forgetAddress(peer)
	peer.reset(len(peer.channels))
}

// timeoutPeer forcibly ends a session whose sent-reliable commands have
// gone unacknowledged for too long (spec.md §4.6, invariant I5 "state
// machine closure"). The peer sits in Zombie for one tick, visible through
// State(), then is recycled once its Disconnect event has been collected.
func (h *Host) timeoutPeer(peer *Peer, now uint32) {
	h.logger.Warn("peer %d timed out", peer.id)
	h.forgetAddress(peer)
	peer.state = StateZombie
	peer.dispatchedEvents = append(peer.dispatchedEvents, Event{Type: EventDisconnect, Peer: peer.id})
}

// checkTimeouts runs the per-tick retransmission and timeout scan (spec.md
// §4.6, §4.9) and recycles peers that finished their one tick of Zombie
// visibility.
func (h *Host) checkTimeouts(now uint32) {
	for _, p := range h.peers {
		switch p.state {
		case StateDisconnected:
			continue
		case StateZombie:
			if len(p.dispatchedEvents) == 0 {
				p.reset(len(p.channels))
			}
			continue
		}
		h.checkPeerRetransmits(p, now)
		h.maybeAutoPing(p, now)
		p.throttleTick(now)
	}
}

// checkPeerRetransmits scans a peer's sent-but-unacknowledged reliable
// commands, requeueing any whose retransmission timer has expired and
// declaring the peer timed out if one has been retried past its limit or
// sat unacknowledged past timeoutMaximum (spec.md §4.6).
func (h *Host) checkPeerRetransmits(p *Peer, now uint32) {
	if len(p.sentReliableCommands) == 0 {
		return
	}
	remaining := p.sentReliableCommands[:0]
	timedOut := false
	for _, cmd := range p.sentReliableCommands {
		if timeDiff(now, cmd.sentTime) < cmd.roundTripTimeout {
			remaining = append(remaining, cmd)
			continue
		}
		if timeDiff(now, cmd.sentTime) >= p.timeoutMaximum || cmd.sendAttempts >= p.timeoutLimit {
			timedOut = true
			p.reliableDataInTransit -= uint32(len(cmd.Payload))
			continue
		}
		cmd.sendAttempts++
		cmd.roundTripTimeout *= 2
		if cmd.roundTripTimeout > p.timeoutMaximum {
			cmd.roundTripTimeout = p.timeoutMaximum
		}
		p.reliableDataInTransit -= uint32(len(cmd.Payload))
		p.outgoingCommands = append([]command{cmd}, p.outgoingCommands...)
	}
	p.sentReliableCommands = remaining
	if timedOut {
		h.timeoutPeer(p, now)
	}
}

// maybeAutoPing queues an automatic keepalive ping once pingInterval has
// elapsed since the peer last sent anything (spec.md §3 "a ping interval").
func (h *Host) maybeAutoPing(p *Peer, now uint32) {
	if !p.state.connectedFamily() {
		return
	}
	if timeDiff(now, p.lastSendTime) < p.pingInterval {
		return
	}
	p.queueOutgoing(command{
		Type:                   CommandPing,
		ChannelID:              0xFF,
		NeedsAck:               true,
		ReliableSequenceNumber: p.nextControlReliable(),
	})
}
