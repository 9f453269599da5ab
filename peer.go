package enet

import "time"

// PeerID identifies a Peer by its slot index in a Host's peer array
// (spec.md §9 "Raw-pointer peer references": indices, not pointers,
// everywhere across the public API).
type PeerID int

// PeerState is one of the ten states in the peer lifecycle (spec.md §4.7).
type PeerState uint8

const (
	StateDisconnected PeerState = iota
	StateConnecting
	StateAcknowledgingConnect
	StateConnectionPending
	StateConnectionSucceeded
	StateConnected
	StateDisconnectLater
	StateDisconnecting
	StateAcknowledgingDisconnect
	StateZombie
)

func (s PeerState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAcknowledgingConnect:
		return "acknowledging-connect"
	case StateConnectionPending:
		return "connection-pending"
	case StateConnectionSucceeded:
		return "connection-succeeded"
	case StateConnected:
		return "connected"
	case StateDisconnectLater:
		return "disconnect-later"
	case StateDisconnecting:
		return "disconnecting"
	case StateAcknowledgingDisconnect:
		return "acknowledging-disconnect"
	case StateZombie:
		return "zombie"
	default:
		return "unknown"
	}
}

// connectedFamily reports whether s is one of the states spec.md treats as
// "Connected-family": a live session that can still send/receive/ping/
// disconnect and that participates in bandwidth sharing and timeout scans.
func (s PeerState) connectedFamily() bool {
	switch s {
	case StateConnected, StateDisconnectLater, StateDisconnecting, StateAcknowledgingDisconnect:
		return true
	default:
		return false
	}
}

// Peer is one remote endpoint of a Host (spec.md §3 "Peer"). Its zero value
// is StateDisconnected and unusable until the Host assigns it during
// Connect or on accepting an incoming Connect command.
type Peer struct {
	id   PeerID
	host *Host

	state   PeerState
	address Address

	outgoingPeerID    uint16
	incomingPeerID    uint16
	connectID         uint32
	incomingSessionID uint8
	outgoingSessionID uint8

	mtu        uint32
	windowSize uint32
	channels   []channel

	incomingBandwidth              uint32
	outgoingBandwidth              uint32
	incomingBandwidthThrottleEpoch uint32
	outgoingBandwidthThrottleEpoch uint32
	incomingDataTotal              uint32
	outgoingDataTotal              uint32
	incomingDataThisEpoch          uint32
	outgoingDataThisEpoch          uint32

	packetsSent        uint32
	packetsLost        uint32
	packetLoss         uint32
	packetLossVariance uint32
	packetLossEpoch    uint32

	packetThrottle             uint32
	packetThrottleLimit        uint32
	packetThrottleCounter      uint32
	packetThrottleEpoch        uint32
	packetThrottleAcceleration uint32
	packetThrottleDeceleration uint32
	packetThrottleInterval     uint32

	lastRoundTripTime         uint32
	lowestRoundTripTime       uint32
	lastRoundTripTimeVariance uint32
	roundTripTime             uint32
	roundTripTimeVariance     uint32

	pingInterval    uint32
	timeoutLimit    uint32
	timeoutMinimum  uint32
	timeoutMaximum  uint32
	lastSendTime    uint32
	lastReceiveTime uint32
	nextPingTime    uint32

	reliableDataInTransit             uint32
	outgoingReliableSequenceNumber    uint16
	incomingUnsequencedGroup          uint16
	outgoingUnsequencedGroup          uint16

	// disconnectLaterData holds the data argument from DisconnectLater
	// until the outgoing queues drain and the real disconnect can start.
	disconnectLaterData uint32

	// connectData holds the 32-bit value carried by the Connect command
	// that established this session, surfaced on the EventConnect once the
	// handshake completes (spec.md §6 "Events").
	connectData uint32

	acknowledgements             []command
	sentReliableCommands         []command
	outgoingSendReliableCommands []command
	outgoingCommands             []command
	dispatchedEvents             []Event
}

func newPeer(id PeerID, host *Host) *Peer {
	return &Peer{id: id, host: host, state: StateDisconnected}
}

func (p *Peer) reset(channelCount int) {
	p.state = StateDisconnected
	p.address = nil
	p.outgoingPeerID = uint16(ProtocolMaximumPeerID)
	p.incomingPeerID = uint16(p.id)
	p.connectID = 0
	p.incomingSessionID = 0
	p.outgoingSessionID = 0
	p.mtu = ProtocolMinimumMTU
	p.windowSize = minimumWindowSize
	p.channels = make([]channel, channelCount)
	for i := range p.channels {
		p.channels[i] = *newChannel()
	}
	p.incomingBandwidth = 0
	p.outgoingBandwidth = 0
	p.incomingBandwidthThrottleEpoch = 0
	p.outgoingBandwidthThrottleEpoch = 0
	p.incomingDataTotal = 0
	p.outgoingDataTotal = 0
	p.incomingDataThisEpoch = 0
	p.outgoingDataThisEpoch = 0
	p.packetsSent = 0
	p.packetsLost = 0
	p.packetLoss = 0
	p.packetLossVariance = 0
	p.packetLossEpoch = 0
	p.packetThrottle = defaultPacketThrottle
	p.packetThrottleLimit = ThrottleScale
	p.packetThrottleCounter = 0
	p.packetThrottleEpoch = 0
	p.packetThrottleAcceleration = DefaultPacketThrottleAcceleration
	p.packetThrottleDeceleration = DefaultPacketThrottleDeceleration
	p.packetThrottleInterval = DefaultPacketThrottleInterval
	p.lastRoundTripTime = DefaultTimeoutMinimum
	p.lowestRoundTripTime = DefaultTimeoutMinimum
	p.lastRoundTripTimeVariance = 0
	p.roundTripTime = DefaultTimeoutMinimum
	p.roundTripTimeVariance = 0
	p.pingInterval = DefaultPingInterval
	p.timeoutLimit = DefaultTimeoutLimit
	p.timeoutMinimum = DefaultTimeoutMinimum
	p.timeoutMaximum = DefaultTimeoutMaximum
	p.lastSendTime = 0
	p.lastReceiveTime = 0
	p.nextPingTime = 0
	p.reliableDataInTransit = 0
	p.outgoingReliableSequenceNumber = 0
	p.incomingUnsequencedGroup = 0
	p.outgoingUnsequencedGroup = 0
	p.acknowledgements = nil
	p.sentReliableCommands = nil
	p.outgoingSendReliableCommands = nil
	p.outgoingCommands = nil
	p.dispatchedEvents = nil
	p.disconnectLaterData = 0
	p.connectData = 0
}

// ID returns this peer's PeerID.
func (p *Peer) ID() PeerID { return p.id }

// State returns the peer's current lifecycle state (spec.md §4.7).
func (p *Peer) State() PeerState { return p.state }

// Connected reports whether State() == StateConnected.
func (p *Peer) Connected() bool { return p.state == StateConnected }

// ChannelCount returns the number of channels negotiated for this peer.
func (p *Peer) ChannelCount() int { return len(p.channels) }

// Address returns the peer's remote address, or nil if it has never been
// connected.
func (p *Peer) Address() Address { return p.address }

// IncomingBandwidth returns the advertised downstream bandwidth cap in
// bytes/second (0 meaning unlimited).
func (p *Peer) IncomingBandwidth() uint32 { return p.incomingBandwidth }

// OutgoingBandwidth returns the advertised upstream bandwidth cap in
// bytes/second (0 meaning unlimited).
func (p *Peer) OutgoingBandwidth() uint32 { return p.outgoingBandwidth }

// IncomingDataTotal returns the total bytes received from this peer.
func (p *Peer) IncomingDataTotal() uint32 { return p.incomingDataTotal }

// OutgoingDataTotal returns the total bytes sent to this peer.
func (p *Peer) OutgoingDataTotal() uint32 { return p.outgoingDataTotal }

// PacketsSent returns the number of packets sent to this peer since the
// packet-loss statistics last rolled over (once per packetLossInterval,
// when the count is folded into PacketLoss and cleared).
func (p *Peer) PacketsSent() uint32 { return p.packetsSent }

// PacketsLost returns the number of packets believed lost since the
// packet-loss statistics last rolled over, including unreliable packets
// dropped locally by the throttle (spec.md §4.5).
func (p *Peer) PacketsLost() uint32 { return p.packetsLost }

// PacketLoss returns the mean packet loss ratio, scaled by PacketLossScale
// (folded back in from original_source/src/peer.rs; see SPEC_FULL.md §12).
func (p *Peer) PacketLoss() uint32 { return p.packetLoss }

// PacketLossVariance returns the EWMA variance of PacketLoss.
func (p *Peer) PacketLossVariance() uint32 { return p.packetLossVariance }

// PingInterval returns the interval between automatic pings.
func (p *Peer) PingInterval() time.Duration {
	return time.Duration(p.pingInterval) * time.Millisecond
}

// RoundTripTime returns the current mean round-trip time estimate.
func (p *Peer) RoundTripTime() time.Duration {
	return time.Duration(p.roundTripTime) * time.Millisecond
}

// RoundTripTimeVariance returns the current round-trip time variance
// estimate.
func (p *Peer) RoundTripTimeVariance() time.Duration {
	return time.Duration(p.roundTripTimeVariance) * time.Millisecond
}

// Ping sends an immediate ping request, factoring into RoundTripTime the
// same way an automatic keepalive ping would (spec.md §4.6). It is a no-op
// outside the Connected-family states.
func (p *Peer) Ping() {
	if !p.state.connectedFamily() {
		return
	}
	p.nextPingTime = p.host.now()
	p.queueOutgoing(command{Type: CommandPing, ChannelID: 0xFF, NeedsAck: true, ReliableSequenceNumber: p.nextControlReliable()})
}

// SetPingInterval changes the interval, in milliseconds, between automatic
// pings. A zero value resets it to DefaultPingInterval.
func (p *Peer) SetPingInterval(ms uint32) {
	if ms == 0 {
		ms = DefaultPingInterval
	}
	p.pingInterval = ms
}

// SetTimeout configures the peer's retransmission timeout parameters
// (spec.md §4.6). A zero argument resets that parameter to its default.
func (p *Peer) SetTimeout(limit, minimum, maximum uint32) {
	if limit == 0 {
		limit = DefaultTimeoutLimit
	}
	if minimum == 0 {
		minimum = DefaultTimeoutMinimum
	}
	if maximum == 0 {
		maximum = DefaultTimeoutMaximum
	}
	p.timeoutLimit = limit
	p.timeoutMinimum = minimum
	p.timeoutMaximum = maximum
}

// SetThrottle configures the unreliable-packet throttle (spec.md §4.5). A
// zero argument resets that parameter to its default.
func (p *Peer) SetThrottle(interval, acceleration, deceleration uint32) {
	if interval == 0 {
		interval = DefaultPacketThrottleInterval
	}
	p.packetThrottleInterval = interval
	p.packetThrottleAcceleration = acceleration
	p.packetThrottleDeceleration = deceleration
}

// Send queues packet for delivery on channelID (spec.md §6 "Peer
// operations"). It is non-blocking: the packet is appended to a queue and
// actually leaves the host on a later Host.Service/Host.Flush call.
func (p *Peer) Send(channelID uint8, packet *Packet) error {
	if !p.state.connectedFamily() || p.state == StateDisconnecting || p.state == StateAcknowledgingDisconnect {
		return ErrPeerNotConnected
	}
	if int(channelID) >= len(p.channels) {
		return ErrInvalidChannel
	}
	if err := packet.validate(); err != nil {
		return err
	}
	return p.host.queueSend(p, channelID, packet)
}

// Disconnect requests a graceful disconnection: Disconnect is sent and the
// peer transitions to Disconnecting, completing (Zombie, then reset) once
// the remote side acknowledges (spec.md §4.7). An Event.Disconnect is
// surfaced once that completes.
func (p *Peer) Disconnect(data uint32) {
	if p.state == StateDisconnected || p.state == StateZombie {
		return
	}
	p.host.disconnect(p, data)
}

// DisconnectLater behaves like Disconnect, but defers sending the
// Disconnect command until every queued outgoing command has drained
// (spec.md §4.7).
func (p *Peer) DisconnectLater(data uint32) {
	if !p.state.connectedFamily() {
		return
	}
	if len(p.outgoingCommands) == 0 && len(p.outgoingSendReliableCommands) == 0 && len(p.sentReliableCommands) == 0 {
		p.host.disconnect(p, data)
		return
	}
	p.disconnectLaterData = data
	p.state = StateDisconnectLater
}

// DisconnectNow forces an immediate disconnection without waiting for
// acknowledgement. A best-effort unreliable Disconnect is sent; no
// Event.Disconnect is surfaced (spec.md §4.7).
func (p *Peer) DisconnectNow(data uint32) {
	if p.state == StateDisconnected {
		return
	}
	p.host.disconnectNow(p, data)
}

// Reset forcefully disconnects the peer without notifying the remote side,
// which will eventually time out on its own (spec.md §4.7). Always valid,
// regardless of current state.
func (p *Peer) Reset() {
	p.host.resetPeer(p)
}

func (p *Peer) queueOutgoing(cmd command) {
	p.outgoingCommands = append(p.outgoingCommands, cmd)
}

// nextControlReliable returns the next reliable sequence number for a
// connection-level command (Connect/VerifyConnect/Disconnect/Ping/
// BandwidthLimit/ThrottleConfigure), which aren't tied to any channel and
// so share the peer's own counter instead of a per-channel one.
func (p *Peer) nextControlReliable() uint16 {
	p.outgoingReliableSequenceNumber++
	return p.outgoingReliableSequenceNumber
}
