package enet

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestPeer() *Peer {
	p := newPeer(0, nil)
	p.reset(1)
	return p
}

// TestRoundTripTimeEWMAConverges checks that repeated identical samples pull
// roundTripTime toward that value (spec.md §4.5, property P4).
func TestRoundTripTimeEWMAConverges(t *testing.T) {
	p := newTestPeer()
	for i := 0; i < 50; i++ {
		p.recordAcknowledgeRTT(100)
	}
	assert.InDelta(t, 100, p.roundTripTime, 1)
	assert.InDelta(t, 0, p.roundTripTimeVariance, 1)
}

func TestRoundTripTimeTracksLowest(t *testing.T) {
	p := newTestPeer()
	p.recordAcknowledgeRTT(80)
	p.recordAcknowledgeRTT(200)
	p.recordAcknowledgeRTT(150)
	assert.Equal(t, uint32(80), p.lowestRoundTripTime)
}

// TestThrottleAccelerates checks that when the lowest RTT observed this
// epoch beats the smoothed mean, the throttle ramps toward full send rate.
func TestThrottleAccelerates(t *testing.T) {
	p := newTestPeer()
	p.packetThrottle = 0
	p.roundTripTime = 100
	p.lowestRoundTripTime = 50 // better than the mean: accelerate
	p.packetThrottleEpoch = 0

	p.throttleTick(p.packetThrottleInterval)
	assert.Equal(t, p.packetThrottleAcceleration, p.packetThrottle)
}

// TestThrottleDecelerates checks that when the lowest RTT this epoch is
// worse than mean+variance, the throttle backs off.
func TestThrottleDecelerates(t *testing.T) {
	p := newTestPeer()
	p.packetThrottle = ThrottleScale
	p.roundTripTime = 50
	p.roundTripTimeVariance = 0
	p.lowestRoundTripTime = 500 // much worse: decelerate
	p.packetThrottleEpoch = 0

	p.throttleTick(p.packetThrottleInterval)
	assert.Equal(t, ThrottleScale-p.packetThrottleDeceleration, p.packetThrottle)
}

func TestThrottleNoOpBeforeInterval(t *testing.T) {
	p := newTestPeer()
	p.packetThrottleEpoch = 1000
	before := p.packetThrottle
	p.throttleTick(1000 + p.packetThrottleInterval - 1)
	assert.Equal(t, before, p.packetThrottle)
}

// TestAdmitUnreliableBudget checks that a fully-open throttle (ThrottleScale)
// admits every packet, and a zero throttle admits none, counting every
// rejection as a lost packet.
func TestAdmitUnreliableBudget(t *testing.T) {
	p := newTestPeer()
	p.packetThrottle = ThrottleScale
	for i := 0; i < 10; i++ {
		assert.True(t, p.admitUnreliable())
	}
	assert.Equal(t, uint32(0), p.packetsLost)

	p2 := newTestPeer()
	p2.packetThrottle = 0
	for i := 0; i < 10; i++ {
		assert.False(t, p2.admitUnreliable())
	}
	assert.Equal(t, uint32(10), p2.packetsLost)
}

func TestTimeDiffWraparound(t *testing.T) {
	assert.Equal(t, uint32(1), timeDiff(0, ^uint32(0)))
	assert.Equal(t, uint32(10), timeDiff(110, 100))
}
