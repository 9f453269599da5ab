package enet

// bandwidthThrottle runs at most once per bandwidthThrottleInterval
// (spec.md §4.8). Each connected-family peer's share of the Host's
// outgoing bandwidth cap is proportional to its own advertised bandwidth;
// peers advertising 0 (unlimited) split whatever's left over equally.
func (h *Host) bandwidthThrottle(now uint32) {
	if timeDiff(now, h.bandwidthThrottleEpoch) < bandwidthThrottleInterval {
		return
	}
	elapsed := timeDiff(now, h.bandwidthThrottleEpoch)
	if elapsed == 0 {
		elapsed = 1
	}
	h.bandwidthThrottleEpoch = now

	var peers []*Peer
	var bandwidthSum uint64
	var zeroBandwidthCount int
	for i := range h.peers {
		p := h.peers[i]
		if !p.state.connectedFamily() {
			continue
		}
		peers = append(peers, p)
		if p.outgoingBandwidth == 0 {
			zeroBandwidthCount++
		} else {
			bandwidthSum += uint64(p.outgoingBandwidth)
		}
	}
	if len(peers) == 0 {
		return
	}

	defer func() {
		for _, p := range peers {
			p.incomingDataThisEpoch = 0
			p.outgoingDataThisEpoch = 0
		}
	}()

	if h.outgoingBandwidth == 0 {
		for _, p := range peers {
			if p.outgoingBandwidth == 0 {
				continue
			}
			p.windowSize = clampWindowSize(uint64(p.outgoingBandwidth) * uint64(elapsed) / 1000)
		}
		return
	}

	totalAllowed := uint64(h.outgoingBandwidth) * uint64(elapsed) / 1000
	remaining := totalAllowed

	if bandwidthSum > 0 {
		for _, p := range peers {
			if p.outgoingBandwidth == 0 {
				continue
			}
			share := totalAllowed * uint64(p.outgoingBandwidth) / bandwidthSum
			ownCap := uint64(p.outgoingBandwidth) * uint64(elapsed) / 1000
			if share > ownCap {
				share = ownCap
			}
			p.windowSize = clampWindowSize(share)
			if share <= remaining {
				remaining -= share
			} else {
				remaining = 0
			}
		}
	}

	if zeroBandwidthCount > 0 {
		equalShare := remaining / uint64(zeroBandwidthCount)
		for _, p := range peers {
			if p.outgoingBandwidth != 0 {
				continue
			}
			p.windowSize = clampWindowSize(equalShare)
		}
	}
}

func clampWindowSize(bytes uint64) uint32 {
	if bytes < minimumWindowSize {
		return minimumWindowSize
	}
	if bytes > maximumWindowSize {
		return maximumWindowSize
	}
	return uint32(bytes)
}
