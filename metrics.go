package enet

import "time"

// HostStats is a point-in-time snapshot of a Host's aggregate counters
// (SPEC_FULL.md §10.5). It is produced synchronously by Host.Stats() rather
// than exposed as a live prometheus.Collector: a Collector's Collect method
// can run concurrently with whatever goroutine is driving Service, and
// spec.md §5 requires Host and its Peers to be touched from exactly one
// goroutine. Host.Stats() keeps that invariant intact — the caller decides
// when to pay the summation cost, on the same goroutine that owns the Host
// — and hands the result to the application to push into its own
// prometheus.Gauge set (see cmd/echoserver).
type HostStats struct {
	PeerCount          int
	ConnectedPeers     int
	PacketsSent        uint64
	PacketsLost        uint64
	BytesSent          uint64
	BytesReceived      uint64
	MeanRoundTripTime  time.Duration
	MeanPacketLoss     float64 // fraction in [0, 1], averaged over connected peers
}

// Stats summarizes every peer slot (SPEC_FULL.md §10.5). Call it from the
// same goroutine driving Service; it does not mutate any Host or Peer
// state.
func (h *Host) Stats() HostStats {
	var s HostStats
	s.PeerCount = len(h.peers)

	var rttSum time.Duration
	var lossSum float64
	for _, p := range h.peers {
		if p.state == StateConnected {
			s.ConnectedPeers++
			rttSum += p.RoundTripTime()
			lossSum += float64(p.PacketLoss()) / float64(PacketLossScale)
		}
		s.PacketsSent += uint64(p.packetsSent)
		s.PacketsLost += uint64(p.packetsLost)
		s.BytesSent += uint64(p.outgoingDataTotal)
		s.BytesReceived += uint64(p.incomingDataTotal)
	}
	if s.ConnectedPeers > 0 {
		s.MeanRoundTripTime = rttSum / time.Duration(s.ConnectedPeers)
		s.MeanPacketLoss = lossSum / float64(s.ConnectedPeers)
	}
	return s
}
