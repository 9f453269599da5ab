package enet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFragmentReassembly checks that a message split into fragments and fed
// back in shuffled order reassembles to the original bytes exactly once, and
// that duplicate fragments are idempotent (spec.md §8 property P7).
func TestFragmentReassembly(t *testing.T) {
	payload := make([]byte, 2500)
	for i := range payload {
		payload[i] = byte(i)
	}
	pieces := splitPayload(payload, 1000)
	require.Len(t, pieces, 3)

	var fa *fragmentAssembly
	offset := uint32(0)
	order := []int{1, 1, 0, 2} // shuffled, with a duplicate
	cmds := make([]*command, len(pieces))
	for i, p := range pieces {
		cmds[i] = &command{
			Type:           CommandSendFragment,
			FragmentCount:  uint32(len(pieces)),
			FragmentNumber: uint32(i),
			TotalLength:    uint32(len(payload)),
			FragmentOffset: offset,
			Payload:        p,
		}
		offset += uint32(len(p))
	}

	var complete bool
	for _, idx := range order {
		if fa == nil {
			fa = newFragmentAssembly(cmds[idx])
		}
		var ok bool
		complete, ok = fa.addFragment(cmds[idx])
		require.True(t, ok)
	}
	// Remaining fragment(s) not yet in `order`.
	seen := map[int]bool{}
	for _, idx := range order {
		seen[idx] = true
	}
	for i, cmd := range cmds {
		if seen[i] {
			continue
		}
		var ok bool
		complete, ok = fa.addFragment(cmd)
		require.True(t, ok)
	}

	require.True(t, complete)
	assert.Equal(t, payload, fa.buffer)
}

func TestFragmentRejectsInconsistentDescriptor(t *testing.T) {
	cmd := &command{Type: CommandSendFragment, FragmentCount: 3, FragmentNumber: 0, TotalLength: 300, FragmentOffset: 0, Payload: make([]byte, 100)}
	fa := newFragmentAssembly(cmd)

	_, ok := fa.addFragment(&command{FragmentCount: 4, FragmentNumber: 1, TotalLength: 300, FragmentOffset: 100, Payload: make([]byte, 100)})
	assert.False(t, ok, "mismatched FragmentCount must be rejected")

	_, ok = fa.addFragment(&command{FragmentCount: 3, FragmentNumber: 5, TotalLength: 300, FragmentOffset: 100, Payload: make([]byte, 100)})
	assert.False(t, ok, "FragmentNumber past FragmentCount must be rejected")
}

func TestSplitPayloadSizes(t *testing.T) {
	pieces := splitPayload(make([]byte, 10), 4)
	require.Len(t, pieces, 3)
	assert.Len(t, pieces[0], 4)
	assert.Len(t, pieces[1], 4)
	assert.Len(t, pieces[2], 2)
}
