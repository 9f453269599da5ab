package enet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestChannelReliableInOrderDelivery checks contiguous in-order delivery and
// out-of-order buffering with gap-fill (spec.md §8 property P1).
func TestChannelReliableInOrderDelivery(t *testing.T) {
	ch := newChannel()

	ready, dup, inWindow := ch.acceptReliable(command{ReliableSequenceNumber: 1})
	require.True(t, inWindow)
	require.False(t, dup)
	require.Len(t, ready, 1)

	// Sequence 3 arrives before 2: buffered, nothing deliverable yet.
	ready, dup, inWindow = ch.acceptReliable(command{ReliableSequenceNumber: 3})
	require.True(t, inWindow)
	require.False(t, dup)
	require.Empty(t, ready)

	// 2 arrives: fills the gap, and 3 becomes deliverable in the same call.
	ready, dup, inWindow = ch.acceptReliable(command{ReliableSequenceNumber: 2})
	require.True(t, inWindow)
	require.False(t, dup)
	require.Len(t, ready, 2)
	assert.Equal(t, uint16(2), ready[0].ReliableSequenceNumber)
	assert.Equal(t, uint16(3), ready[1].ReliableSequenceNumber)

	// Re-arrival of an already-delivered sequence number is a duplicate.
	_, dup, inWindow = ch.acceptReliable(command{ReliableSequenceNumber: 2})
	require.True(t, inWindow)
	require.True(t, dup)
}

func TestChannelReliableOutOfWindowDropped(t *testing.T) {
	ch := newChannel()
	_, _, inWindow := ch.acceptReliable(command{ReliableSequenceNumber: reliableWindowGap + 100})
	require.False(t, inWindow)
}

// TestChannelUnreliableGatedOnReliablePrefix checks that unreliable commands
// only become deliverable once the channel's reliable sequence has caught up
// to what the sender had delivered when it sent them, and that delivery order
// is monotonic in the unreliable sequence space (spec.md §8 property P3).
func TestChannelUnreliableGatedOnReliablePrefix(t *testing.T) {
	ch := newChannel()

	// Sent after reliable #1, so gated until the channel's reliable prefix
	// reaches 1.
	ready := ch.acceptUnreliable(command{ReliableSequenceNumber: 1, UnreliableSequenceNumber: 1}, 1)
	require.Empty(t, ready)

	ready = ch.acceptUnreliable(command{ReliableSequenceNumber: 1, UnreliableSequenceNumber: 2}, 2)
	require.Empty(t, ready)

	ready2, _, _ := ch.acceptReliable(command{ReliableSequenceNumber: 1})
	require.Len(t, ready2, 1)

	ready = ch.drainReadyUnreliable()
	require.Len(t, ready, 2)
	assert.Equal(t, uint16(1), ready[0].UnreliableSequenceNumber)
	assert.Equal(t, uint16(2), ready[1].UnreliableSequenceNumber)
}

func TestChannelUnreliableDuplicateDropped(t *testing.T) {
	ch := newChannel()
	ch.acceptReliable(command{ReliableSequenceNumber: 1})

	ready := ch.acceptUnreliable(command{ReliableSequenceNumber: 1, UnreliableSequenceNumber: 5}, 5)
	require.Len(t, ready, 1)

	// A stale/duplicate unreliable sequence number arriving later is dropped.
	ready = ch.acceptUnreliable(command{ReliableSequenceNumber: 1, UnreliableSequenceNumber: 5}, 5)
	require.Empty(t, ready)
}

func TestChannelUnsequencedDuplicateSuppression(t *testing.T) {
	ch := newChannel()

	assert.True(t, ch.acceptUnsequenced(1))
	assert.False(t, ch.acceptUnsequenced(1), "re-arrival of the current group is a duplicate")

	assert.True(t, ch.acceptUnsequenced(2))
	assert.True(t, ch.acceptUnsequenced(5), "advancing the window forward is always new")

	// 2 is now behind the window head (5) but still inside the tracked
	// range, and was already seen: must stay suppressed.
	assert.False(t, ch.acceptUnsequenced(2))

	// A group far older than the window is dropped outright.
	var old uint16 = 5
	old -= unsequencedWindowSize + 1
	assert.False(t, ch.acceptUnsequenced(old))
}

func TestSeq16DiffWraparound(t *testing.T) {
	assert.Equal(t, int32(1), seq16Diff(0xFFFF, 0x0000))
	assert.Equal(t, int32(-1), seq16Diff(0x0000, 0xFFFF))
	assert.Equal(t, int32(0), seq16Diff(42, 42))
}
