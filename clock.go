package enet

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// startEpoch anchors the Host's 32-bit millisecond clock so fresh Hosts
// don't all start at millisecond zero (which would make it easy to
// accidentally rely on an un-wrapped clock in tests).
var startEpoch = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

// now returns the Host's monotonic millisecond timestamp, wrapping at 2^32
// (spec.md §9 "Time source"). clockwork.Clock is injected so tests can
// drive it deterministically with clockwork.NewFakeClock() instead of
// sleeping on the wall clock.
func (h *Host) now() uint32 {
	return uint32(h.clock.Since(startEpoch).Milliseconds())
}

// defaultClock is used when Config.Clock is left nil.
func defaultClock() clockwork.Clock { return clockwork.NewRealClock() }
