package enet

// fragmentAssembly reassembles one fragmented message (spec.md §4.4). It's
// allocated on the first fragment seen for a given start-sequence-number
// group and discarded once complete or once the owning peer is reset.
type fragmentAssembly struct {
	totalLength     uint32
	fragmentCount   uint32
	fragmentsSeen   uint32
	received        []bool
	buffer          []byte
	channelID       uint8
	unsequenced     bool // from a SendUnreliableFragment group
}

func newFragmentAssembly(cmd *command) *fragmentAssembly {
	return &fragmentAssembly{
		totalLength:   cmd.TotalLength,
		fragmentCount: cmd.FragmentCount,
		received:      make([]bool, cmd.FragmentCount),
		buffer:        make([]byte, cmd.TotalLength),
		channelID:     cmd.ChannelID,
		unsequenced:   cmd.Type == CommandSendUnreliableFragment,
	}
}

// addFragment copies cmd's payload into place and reports whether the
// message is now complete. Duplicate fragment numbers are ignored.
func (fa *fragmentAssembly) addFragment(cmd *command) (complete bool, ok bool) {
	if cmd.FragmentNumber >= fa.fragmentCount || cmd.FragmentCount != fa.fragmentCount || cmd.TotalLength != fa.totalLength {
		return false, false
	}
	if fa.received[cmd.FragmentNumber] {
		return fa.fragmentsSeen == fa.fragmentCount, true // duplicate, already accounted for
	}
	end := cmd.FragmentOffset + uint32(len(cmd.Payload))
	if end > fa.totalLength {
		return false, false
	}
	copy(fa.buffer[cmd.FragmentOffset:end], cmd.Payload)
	fa.received[cmd.FragmentNumber] = true
	fa.fragmentsSeen++
	return fa.fragmentsSeen == fa.fragmentCount, true
}

// fragmentGroup picks the map a fragment command belongs in and the key
// within it (spec.md §4.4: reliable fragments are keyed by
// startSequenceNumber in the reliable stream; unreliable fragments by
// their own start-sequence-number in the unreliable stream).
func (ch *channel) fragmentGroup(cmd *command) (group map[uint16]*fragmentAssembly, key uint16) {
	if cmd.Type == CommandSendUnreliableFragment {
		return ch.unreliableFragments, cmd.StartSequenceNumber
	}
	return ch.reliableFragments, cmd.StartSequenceNumber
}

// splitPayload divides payload into MTU-sized fragments (spec.md §4.4:
// "equal-sized fragments (last may be smaller)").
func splitPayload(payload []byte, fragmentSize int) [][]byte {
	if fragmentSize <= 0 {
		fragmentSize = len(payload)
		if fragmentSize == 0 {
			fragmentSize = 1
		}
	}
	var fragments [][]byte
	for off := 0; off < len(payload); off += fragmentSize {
		end := off + fragmentSize
		if end > len(payload) {
			end = len(payload)
		}
		fragments = append(fragments, payload[off:end])
	}
	if len(fragments) == 0 {
		fragments = [][]byte{{}}
	}
	return fragments
}
