package enet

import "sort"

// reliableWindowGap bounds how far ahead of the last-delivered reliable
// sequence number an out-of-order arrival may sit before it's treated as
// outside the sliding window and dropped (spec.md §4.1, §3 invariant I3).
// This plays the role ENet's fixed reliableWindows array plays, sized
// generously enough to hold a full window's worth of in-flight fragments.
const reliableWindowGap = 1 << 13

// unsequencedWindowSize is the number of unsequenced groups tracked in the
// sliding duplicate-suppression bitmap (spec.md §4.3).
const unsequencedWindowSize = 1024

// channel is one of a Peer's fixed channel slots (spec.md §3 "Channel").
type channel struct {
	outgoingReliableSequenceNumber   uint16
	outgoingUnreliableSequenceNumber uint16
	incomingReliableSequenceNumber   uint16
	incomingUnreliableSequenceNumber uint16

	// pendingReliable holds reliable commands that arrived ahead of the
	// contiguous prefix, keyed by sequence number, waiting for the gap to
	// fill (spec.md §4.3 "queued in dispatched at its ordered position").
	pendingReliable map[uint16]command

	// pendingUnreliable holds unreliable commands whose reliable prefix
	// hasn't caught up yet.
	pendingUnreliable []command

	// incomingUnsequencedGroup is the highest unsequenced group number
	// seen; unsequencedWindow is a bitmap of the unsequencedWindowSize
	// groups below it, used to suppress duplicates (spec.md §4.3).
	incomingUnsequencedGroup uint16
	unsequencedWindow        [unsequencedWindowSize / 32]uint32

	reliableFragments   map[uint16]*fragmentAssembly
	unreliableFragments map[uint16]*fragmentAssembly
}

func newChannel() *channel {
	return &channel{
		pendingReliable:     make(map[uint16]command),
		reliableFragments:   make(map[uint16]*fragmentAssembly),
		unreliableFragments: make(map[uint16]*fragmentAssembly),
	}
}

// seq16Diff computes b-a as a signed difference over the 16-bit wraparound
// sequence space (spec.md invariant I3, "modulo 16-bit wraparound").
func seq16Diff(a, b uint16) int32 {
	return int32(int16(b - a))
}

// nextOutgoingReliable assigns and returns the next reliable sequence
// number for this channel (starts at 1, per invariant I3).
func (ch *channel) nextOutgoingReliable() uint16 {
	ch.outgoingReliableSequenceNumber++
	return ch.outgoingReliableSequenceNumber
}

func (ch *channel) nextOutgoingUnreliable() uint16 {
	ch.outgoingUnreliableSequenceNumber++
	return ch.outgoingUnreliableSequenceNumber
}

// acceptReliable runs one incoming reliable command through the channel's
// ordering gate. It returns (ready, dup, inWindow): ready is the
// in-order-deliverable run starting with cmd (possibly more than one, if
// cmd fills a gap that unblocks buffered successors); dup reports a
// duplicate that must still be acknowledged but not delivered again;
// inWindow is false if the sequence number is unreasonably far ahead and
// the command should be dropped without buffering or acknowledging it.
func (ch *channel) acceptReliable(cmd command) (ready []command, dup bool, inWindow bool) {
	diff := seq16Diff(ch.incomingReliableSequenceNumber, cmd.ReliableSequenceNumber)
	if diff <= 0 {
		return nil, true, true
	}
	if diff > reliableWindowGap {
		return nil, false, false
	}
	if diff == 1 {
		ch.incomingReliableSequenceNumber = cmd.ReliableSequenceNumber
		ready = append(ready, cmd)
		for {
			next := ch.incomingReliableSequenceNumber + 1
			pending, ok := ch.pendingReliable[next]
			if !ok {
				break
			}
			delete(ch.pendingReliable, next)
			ch.incomingReliableSequenceNumber = next
			ready = append(ready, pending)
		}
		return ready, false, true
	}
	// Out of order: buffer it (idempotent on duplicate re-arrival).
	ch.pendingReliable[cmd.ReliableSequenceNumber] = cmd
	return nil, false, true
}

// acceptUnreliable gates an incoming unreliable (or unreliable-fragment)
// command on the channel's reliable prefix: it is deliverable only once
// incomingReliableSequenceNumber has caught up to the reliable sequence
// number the sender had last delivered when this packet was sent (spec.md
// §4.3). unreliableSeq is cmd.UnreliableSequenceNumber for SendUnreliable
// or cmd.StartSequenceNumber for SendUnreliableFragment.
func (ch *channel) acceptUnreliable(cmd command, unreliableSeq uint16) (ready []command) {
	ch.pendingUnreliable = append(ch.pendingUnreliable, cmd)
	return ch.drainReadyUnreliable()
}

func unreliableKey(cmd command) uint16 {
	if cmd.Type == CommandSendUnreliableFragment {
		return cmd.StartSequenceNumber
	}
	return cmd.UnreliableSequenceNumber
}

// drainReadyUnreliable extracts, in non-decreasing unreliable-sequence
// order, every buffered unreliable command whose reliable prefix has now
// arrived and whose unreliable sequence number is newer than the last
// delivered one (spec.md testable property P3).
func (ch *channel) drainReadyUnreliable() []command {
	if len(ch.pendingUnreliable) == 0 {
		return nil
	}
	sort.Slice(ch.pendingUnreliable, func(i, j int) bool {
		return seq16Diff(unreliableKey(ch.pendingUnreliable[i]), unreliableKey(ch.pendingUnreliable[j])) > 0
	})
	var ready []command
	remaining := ch.pendingUnreliable[:0]
	for _, cmd := range ch.pendingUnreliable {
		if seq16Diff(ch.incomingReliableSequenceNumber, cmd.ReliableSequenceNumber) > 0 {
			remaining = append(remaining, cmd)
			continue
		}
		key := unreliableKey(cmd)
		if seq16Diff(ch.incomingUnreliableSequenceNumber, key) <= 0 {
			continue // duplicate or stale, drop silently
		}
		ch.incomingUnreliableSequenceNumber = key
		ready = append(ready, cmd)
	}
	ch.pendingUnreliable = remaining
	return ready
}

// acceptUnsequenced reports whether group is new (and records it), or a
// duplicate/stale arrival to be silently dropped (spec.md §4.3).
func (ch *channel) acceptUnsequenced(group uint16) bool {
	diff := seq16Diff(ch.incomingUnsequencedGroup, group)
	if diff > 0 {
		// Advance the window, clearing bits that scrolled out of range.
		shift := diff
		if shift > unsequencedWindowSize {
			for i := range ch.unsequencedWindow {
				ch.unsequencedWindow[i] = 0
			}
		} else {
			shiftUnsequencedWindow(&ch.unsequencedWindow, uint(shift))
		}
		ch.incomingUnsequencedGroup = group
		setUnsequencedBit(&ch.unsequencedWindow, 0)
		return true
	}
	if diff == 0 {
		return false // the current group itself is always "already seen" once entered
	}
	index := -diff
	if index >= unsequencedWindowSize {
		return false // far too old: treat as duplicate/drop
	}
	if testUnsequencedBit(&ch.unsequencedWindow, uint(index)) {
		return false
	}
	setUnsequencedBit(&ch.unsequencedWindow, uint(index))
	return true
}

func shiftUnsequencedWindow(w *[unsequencedWindowSize / 32]uint32, shift uint) {
	words := len(w)
	wordShift := shift / 32
	bitShift := shift % 32
	var out [unsequencedWindowSize / 32]uint32
	for i := 0; i < words; i++ {
		srcIdx := i - int(wordShift)
		if srcIdx < 0 {
			continue
		}
		v := w[srcIdx] << bitShift
		if bitShift > 0 && srcIdx-1 >= 0 {
			v |= w[srcIdx-1] >> (32 - bitShift)
		}
		out[i] = v
	}
	*w = out
}

func setUnsequencedBit(w *[unsequencedWindowSize / 32]uint32, index uint) {
	w[index/32] |= 1 << (index % 32)
}

func testUnsequencedBit(w *[unsequencedWindowSize / 32]uint32, index uint) bool {
	return w[index/32]&(1<<(index%32)) != 0
}
