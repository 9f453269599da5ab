package enet

import (
	"fmt"
	mrand "math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"goenet/pkg/logger"
)

// Config holds the parameters for NewHost (spec.md §6 "Host construction").
type Config struct {
	// Endpoint is the datagram substrate to drive. When it is nil, NewHost
	// binds a UDPEndpoint at Address (an empty Address meaning an
	// ephemeral port on all interfaces); Address is ignored when Endpoint
	// is set.
	Endpoint Endpoint
	Address  string

	// PeerCount is the number of peer slots, 1..=MaximumPeerCount.
	PeerCount int
	// ChannelLimit is the default channel-count limit, 1..=MaximumChannelCount.
	ChannelLimit int

	IncomingBandwidth uint32
	OutgoingBandwidth uint32

	// Checksum, when non-nil, is applied to every outgoing datagram and
	// verified on every incoming one (spec.md §9).
	Checksum ChecksumFunc

	// Clock is the Host's time source (spec.md §9). Defaults to
	// clockwork.NewRealClock(); tests pass clockwork.NewFakeClock().
	Clock clockwork.Clock

	// Seed seeds the Host's random source for connectID/session ID
	// generation (spec.md §9). Zero means "seed non-deterministically."
	Seed uint64

	// Logger receives diagnostic output for recoverable protocol errors
	// and lifecycle transitions (SPEC_FULL.md §10.1). Defaults to
	// logger.Default().
	Logger *logger.Logger
}

// Host owns a fixed array of Peer slots and the single datagram endpoint
// they all share (spec.md §3 "Host"). All of its methods, and all methods
// on the Peers it owns, must be called from one goroutine (spec.md §5).
type Host struct {
	endpoint      Endpoint
	ownedEndpoint *UDPEndpoint

	peers         []*Peer
	peerByAddress map[string]PeerID

	channelLimit      int
	incomingBandwidth uint32
	outgoingBandwidth uint32

	bandwidthThrottleEpoch uint32

	checksum ChecksumFunc
	clock    clockwork.Clock
	rng      *mrand.Rand

	id     string
	logger *logger.Logger

	recvBuf []byte

	nextScanPeer int // round-robins the dispatched-event scan start point
}

// NewHost binds (or adopts) an endpoint and allocates PeerCount peer slots
// (spec.md §6 "Host construction").
func NewHost(cfg Config) (*Host, error) {
	if cfg.PeerCount <= 0 || cfg.PeerCount > MaximumPeerCount {
		return nil, fmt.Errorf("enet: peer count must be in 1..=%d", MaximumPeerCount)
	}
	channelLimit := cfg.ChannelLimit
	if channelLimit <= 0 {
		channelLimit = DefaultChannelCount
	}
	if channelLimit > MaximumChannelCount {
		channelLimit = MaximumChannelCount
	}

	endpoint := cfg.Endpoint
	var owned *UDPEndpoint
	if endpoint == nil {
		addr, err := resolveUDPAddr(cfg.Address)
		if err != nil {
			return nil, err
		}
		owned, err = NewUDPEndpoint(addr)
		if err != nil {
			return nil, err
		}
		endpoint = owned
	}

	clock := cfg.Clock
	if clock == nil {
		clock = defaultClock()
	}

	var seed [2]uint64
	if cfg.Seed != 0 {
		seed[0] = cfg.Seed
		seed[1] = cfg.Seed ^ 0x9e3779b97f4a7c15
	} else {
		seed[0] = uint64(clock.Now().UnixNano())
		seed[1] = seed[0] ^ 0xff51afd7ed558ccd
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}

	h := &Host{
		endpoint:          endpoint,
		ownedEndpoint:     owned,
		peerByAddress:     make(map[string]PeerID),
		channelLimit:      channelLimit,
		incomingBandwidth: cfg.IncomingBandwidth,
		outgoingBandwidth: cfg.OutgoingBandwidth,
		checksum:          cfg.Checksum,
		clock:             clock,
		rng:               mrand.New(mrand.NewPCG(seed[0], seed[1])),
		id:                uuid.NewString(),
		logger:            log,
		recvBuf:           make([]byte, ProtocolMaximumMTU),
	}
	h.peers = make([]*Peer, cfg.PeerCount)
	for i := range h.peers {
		p := newPeer(PeerID(i), h)
		p.reset(channelLimit)
		h.peers[i] = p
	}
	return h, nil
}

// Close releases the endpoint if NewHost created it from Config.Address.
func (h *Host) Close() error {
	if h.ownedEndpoint != nil {
		return h.ownedEndpoint.Close()
	}
	return nil
}

// ID returns this Host's process-unique instance identifier (SPEC_FULL.md
// §10.3). The Host itself does not attach it to its log lines or to any
// metric; callers may log it, as cmd/echoserver does at startup.
func (h *Host) ID() string { return h.id }

// LocalAddr returns the endpoint's bound address.
func (h *Host) LocalAddr() Address { return h.endpoint.LocalAddr() }

// Peers returns every peer slot, Disconnected ones included, indexed by
// PeerID.
func (h *Host) Peers() []*Peer { return h.peers }

// Peer returns the peer slot for id, or nil if id is out of range.
func (h *Host) Peer(id PeerID) *Peer {
	if int(id) < 0 || int(id) >= len(h.peers) {
		return nil
	}
	return h.peers[id]
}

func (h *Host) randomUint32() uint32 { return h.rng.Uint32() }

// Connect allocates a free peer slot and begins a handshake with addr
// (spec.md §6 "Host operations").
func (h *Host) Connect(addr Address, channelCount int, data uint32) (PeerID, error) {
	if channelCount <= 0 {
		channelCount = h.channelLimit
	}
	if channelCount > h.channelLimit {
		channelCount = h.channelLimit
	}

	peer := h.findFreeSlot()
	if peer == nil {
		return 0, ErrNoPeerAvailable
	}

	peer.reset(channelCount)
	peer.address = addr
	peer.connectID = h.randomUint32()
	peer.state = StateConnecting
	peer.mtu = ProtocolMaximumMTU
	peer.windowSize = minimumWindowSize
	h.peerByAddress[addr.String()] = peer.id

	cmd := command{
		Type:                       CommandConnect,
		ChannelID:                  0xFF,
		NeedsAck:                   true,
		ReliableSequenceNumber:     peer.nextControlReliable(),
		OutgoingPeerID:             uint16(peer.id),
		IncomingSessionID:          peer.incomingSessionID,
		OutgoingSessionID:          peer.outgoingSessionID,
		MTU:                        peer.mtu,
		WindowSize:                 peer.windowSize,
		ChannelCount:               uint32(channelCount),
		IncomingBandwidth:          h.incomingBandwidth,
		OutgoingBandwidth:          h.outgoingBandwidth,
		PacketThrottleInterval:     peer.packetThrottleInterval,
		PacketThrottleAcceleration: peer.packetThrottleAcceleration,
		PacketThrottleDeceleration: peer.packetThrottleDeceleration,
		ConnectID:                  peer.connectID,
		Data:                       data,
	}
	peer.queueOutgoing(cmd)
	h.logger.Debug("connect requested to %s (peer %d)", addr.String(), peer.id)
	return peer.id, nil
}

// Broadcast queues packet for delivery to every Connected peer on
// channelID (spec.md §6 "Host operations").
func (h *Host) Broadcast(channelID uint8, packet *Packet) {
	for _, p := range h.peers {
		if p.state != StateConnected {
			continue
		}
		clone := &Packet{Data: append([]byte(nil), packet.Data...), Flags: packet.Flags}
		_ = h.queueSend(p, channelID, clone)
	}
}

// BandwidthLimit changes the Host's own bandwidth caps and notifies every
// connected peer of the new limits (spec.md §6 "Host operations").
func (h *Host) BandwidthLimit(incoming, outgoing uint32) {
	h.incomingBandwidth = incoming
	h.outgoingBandwidth = outgoing
	for _, p := range h.peers {
		if !p.state.connectedFamily() {
			continue
		}
		p.queueOutgoing(command{
			Type:              CommandBandwidthLimit,
			ChannelID:          0xFF,
			NeedsAck:           true,
			ReliableSequenceNumber: p.nextControlReliable(),
			IncomingBandwidth: incoming,
			OutgoingBandwidth: outgoing,
		})
	}
}

// ChannelLimit changes the default channel-count limit applied to future
// incoming connections (spec.md §6 "Host operations").
func (h *Host) ChannelLimit(limit int) {
	if limit <= 0 {
		limit = DefaultChannelCount
	}
	if limit > MaximumChannelCount {
		limit = MaximumChannelCount
	}
	h.channelLimit = limit
}

// Flush runs only the send phase of Service: it packs and transmits every
// peer's pending outgoing commands without processing incoming datagrams,
// timeouts, or dispatching events (spec.md §6 "flush() (send phase only)").
func (h *Host) Flush() {
	now := h.now()
	for _, p := range h.peers {
		h.sendToPeer(p, now)
	}
}

// Service runs one tick of the protocol engine (spec.md §4.9) and returns
// at most one application event. ok is false when there was nothing to
// report; callers should keep calling Service in a loop.
func (h *Host) Service(timeout time.Duration) (Event, bool, error) {
	if ev, ok := h.popDispatched(); ok {
		return ev, true, nil
	}

	now := h.now()
	for _, p := range h.peers {
		h.sendToPeer(p, now)
	}

	if err := h.receivePhase(0); err != nil {
		return Event{}, false, err
	}

	now = h.now()
	h.checkTimeouts(now)
	h.bandwidthThrottle(now)

	if ev, ok := h.popDispatched(); ok {
		return ev, true, nil
	}

	if timeout > 0 {
		if err := h.receivePhase(timeout); err != nil && err != ErrWouldBlock {
			return Event{}, false, err
		}
		now = h.now()
		h.checkTimeouts(now)
		for _, p := range h.peers {
			h.sendToPeer(p, now)
		}
		if ev, ok := h.popDispatched(); ok {
			return ev, true, nil
		}
	}

	return Event{}, false, nil
}

// popDispatched scans peers for a pending dispatched event, round-robining
// the starting point so one noisy peer can't starve the others' events
// from ever surfacing within a bounded number of Service calls.
func (h *Host) popDispatched() (Event, bool) {
	n := len(h.peers)
	for i := 0; i < n; i++ {
		idx := (h.nextScanPeer + i) % n
		p := h.peers[idx]
		if len(p.dispatchedEvents) > 0 {
			ev := p.dispatchedEvents[0]
			p.dispatchedEvents = p.dispatchedEvents[1:]
			h.nextScanPeer = (idx + 1) % n
			return ev, true
		}
	}
	return Event{}, false
}

func (h *Host) findFreeSlot() *Peer {
	for _, p := range h.peers {
		if p.state == StateDisconnected && p.address == nil {
			return p
		}
	}
	return nil
}

func (h *Host) peerByAddr(addr Address) (*Peer, bool) {
	id, ok := h.peerByAddress[addr.String()]
	if !ok {
		return nil, false
	}
	return h.peers[id], true
}

func (h *Host) forgetAddress(p *Peer) {
	if p.address != nil {
		delete(h.peerByAddress, p.address.String())
	}
}
