package enet

import "time"

// Wire-format limits. These mirror the original ENet protocol so that a
// goenet Host can interoperate, byte-for-byte, with any other ENet-wire
// implementation on the same LAN or WAN.
const (
	ProtocolMinimumMTU     = 576
	ProtocolMaximumMTU     = 4096
	ProtocolMaximumPeerID  = 0xFFF // 4095: reserved as the "unassigned" sentinel
	MaximumPeerCount       = ProtocolMaximumPeerID // usable slots are 0..4094
	MinimumChannelCount    = 1
	MaximumChannelCount    = 255
	DefaultChannelCount    = 1

	minimumWindowSize = 4096
	maximumWindowSize = 65536

	// maximumFragmentCount bounds totalLength/mtu for a reassembled message;
	// it exists purely to reject hostile fragment counts before allocating.
	maximumFragmentCount = 1024 * 1024

	// MaximumPacketSize is the wire limit on a single Packet payload: a
	// 24-bit length field (spec.md §7 "PacketTooLarge").
	MaximumPacketSize = (1 << 24) - 1

	maximumPeerPacketCommands = 32
)

// ThrottleScale is the fixed denominator packet_throttle and
// packet_throttle_limit are expressed against (spec.md §4.5, invariant I6).
const ThrottleScale = 32

// Default throttle parameters (spec.md §4.5).
const (
	DefaultPacketThrottleInterval      = 5000 // ms
	DefaultPacketThrottleAcceleration  = 2
	DefaultPacketThrottleDeceleration  = 2
	defaultPacketThrottle             = ThrottleScale
)

// Default timeout parameters (spec.md §4.6).
const (
	DefaultTimeoutLimit   = 32
	DefaultTimeoutMinimum = 5000  // ms
	DefaultTimeoutMaximum = 30000 // ms
)

// Default ping interval (spec.md §3 "a ping interval").
const DefaultPingInterval = 500 // ms

// Bandwidth throttle epoch (spec.md §4.8).
const bandwidthThrottleInterval = 1000 // ms

// packetLossInterval reuses the throttle epoch for the packet-loss EWMA
// folded back in from original_source/src/peer.rs (see SPEC_FULL.md §12).
const packetLossInterval = DefaultPacketThrottleInterval

// PacketLossScale is packet_loss's fixed denominator, the loss-side analogue
// of ThrottleScale.
const PacketLossScale = 1 << 16

// serviceMinTick bounds how long Service(timeout) will actually block
// waiting on the endpoint in one iteration of its internal wait loop.
const serviceMinTick = time.Millisecond
