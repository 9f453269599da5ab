package enet

// This file implements the RTT and throttle controller described in
// spec.md §4.5, plus the packet_loss/packet_loss_variance EWMA folded back
// in from original_source/src/peer.rs (SPEC_FULL.md §12). It is grounded
// on the same epoch-based "sample during the interval, adjust at the
// interval boundary" shape spec.md describes; goenet does not copy ENet's
// literal arithmetic, since the spec pins down the formulas precisely
// enough to re-derive them directly.

// recordAcknowledgeRTT folds one round-trip sample into the peer's RTT
// EWMA and this epoch's lowest-observed RTT (spec.md §4.5).
func (p *Peer) recordAcknowledgeRTT(sample uint32) {
	p.lastRoundTripTime = sample
	if sample < p.lowestRoundTripTime {
		p.lowestRoundTripTime = sample
	}

	// round_trip_time_variance: EWMA of |sample - mean| with weight 1/4.
	var delta int64
	if sample > p.roundTripTime {
		delta = int64(sample - p.roundTripTime)
	} else {
		delta = int64(p.roundTripTime - sample)
	}
	p.roundTripTimeVariance = uint32((int64(p.roundTripTimeVariance)*3 + delta) / 4)

	// round_trip_time: EWMA with weight 1/8.
	p.roundTripTime = uint32((int64(p.roundTripTime)*7 + int64(sample)) / 8)
}

// throttleTick runs at most once per packetThrottleInterval; it adjusts
// packetThrottle per spec.md §4.5 and rolls the packet-loss EWMA described
// in SPEC_FULL.md §12.
func (p *Peer) throttleTick(now uint32) {
	if timeDiff(now, p.packetThrottleEpoch) < p.packetThrottleInterval {
		return
	}
	previousEpoch := p.packetThrottleEpoch
	p.packetThrottleEpoch = now

	if timeDiff(now, previousEpoch) >= packetLossInterval && p.packetsSent > 0 {
		sampleLoss := uint32(uint64(p.packetsLost) * PacketLossScale / uint64(p.packetsSent))
		var delta int64
		if sampleLoss > p.packetLoss {
			delta = int64(sampleLoss - p.packetLoss)
		} else {
			delta = int64(p.packetLoss - sampleLoss)
		}
		p.packetLossVariance = uint32((int64(p.packetLossVariance)*3 + delta) / 4)
		p.packetLoss = uint32((int64(p.packetLoss)*7 + int64(sampleLoss)) / 8)
		p.packetsLost = 0
		p.packetsSent = 0
	}

	switch {
	case p.lowestRoundTripTime < p.roundTripTime:
		p.packetThrottle += p.packetThrottleAcceleration
		if p.packetThrottle > p.packetThrottleLimit {
			p.packetThrottle = p.packetThrottleLimit
		}
	case p.lowestRoundTripTime > p.roundTripTime+p.roundTripTimeVariance:
		if p.packetThrottle > p.packetThrottleDeceleration {
			p.packetThrottle -= p.packetThrottleDeceleration
		} else {
			p.packetThrottle = 0
		}
	}
	p.lowestRoundTripTime = p.roundTripTime
}

// admitUnreliable implements the per-packet throttle decision (spec.md
// §4.5): it returns true if this unreliable packet should actually be
// sent, incrementing packetsLost itself when it returns false.
func (p *Peer) admitUnreliable() bool {
	p.packetThrottleCounter += p.packetThrottle
	if p.packetThrottleCounter >= ThrottleScale {
		p.packetThrottleCounter -= ThrottleScale
		return true
	}
	p.packetsLost++
	return false
}

// timeDiff computes b-a as an unsigned forward difference over the 32-bit
// wraparound millisecond clock (spec.md §9 "Time source ... wrapping at
// 2^32").
func timeDiff(b, a uint32) uint32 {
	return b - a
}
