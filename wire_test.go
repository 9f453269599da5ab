package enet

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
)

// TestCommandRoundTrip checks decode(encode(c)) == c for every command type
// (spec.md §8 property P6).
func TestCommandRoundTrip(t *testing.T) {
	cases := []command{
		{Type: CommandAcknowledge, ChannelID: 1, ReliableSequenceNumber: 7, ReceivedReliableSequenceNumber: 9, ReceivedSentTime: 123},
		{Type: CommandConnect, ChannelID: 0xFF, NeedsAck: true, ReliableSequenceNumber: 1,
			OutgoingPeerID: 3, IncomingSessionID: 1, OutgoingSessionID: 2, MTU: 1400, WindowSize: 65536,
			ChannelCount: 2, IncomingBandwidth: 1000, OutgoingBandwidth: 2000,
			PacketThrottleInterval: 5000, PacketThrottleAcceleration: 2, PacketThrottleDeceleration: 2,
			ConnectID: 0xDEADBEEF, Data: 42},
		{Type: CommandVerifyConnect, ChannelID: 0xFF, NeedsAck: true, ReliableSequenceNumber: 1,
			OutgoingPeerID: 5, MTU: 1400, WindowSize: 65536, ChannelCount: 2,
			PacketThrottleInterval: 5000, PacketThrottleAcceleration: 2, PacketThrottleDeceleration: 2, ConnectID: 0xDEADBEEF},
		{Type: CommandDisconnect, ChannelID: 0xFF, NeedsAck: true, ReliableSequenceNumber: 4, Data: 99},
		{Type: CommandPing, ChannelID: 0xFF, NeedsAck: true, ReliableSequenceNumber: 5},
		{Type: CommandSendReliable, ChannelID: 0, NeedsAck: true, ReliableSequenceNumber: 1, Payload: []byte("hello")},
		{Type: CommandSendUnreliable, ChannelID: 0, UnreliableSequenceNumber: 3, Payload: []byte("world")},
		{Type: CommandSendUnsequenced, ChannelID: 0, Unsequenced: true, UnsequencedGroup: 11, Payload: []byte("x")},
		{Type: CommandSendFragment, ChannelID: 0, NeedsAck: true, ReliableSequenceNumber: 2,
			StartSequenceNumber: 2, FragmentCount: 3, FragmentNumber: 1, TotalLength: 3000, FragmentOffset: 1000,
			Payload: make([]byte, 1000)},
		{Type: CommandSendUnreliableFragment, ChannelID: 0, StartSequenceNumber: 1,
			FragmentCount: 2, FragmentNumber: 0, TotalLength: 2000, FragmentOffset: 0, Payload: make([]byte, 1000)},
		{Type: CommandBandwidthLimit, ChannelID: 0xFF, NeedsAck: true, ReliableSequenceNumber: 6, IncomingBandwidth: 10, OutgoingBandwidth: 20},
		{Type: CommandThrottleConfigure, ChannelID: 0xFF, NeedsAck: true, ReliableSequenceNumber: 7, PacketThrottleInterval: 1, PacketThrottleAcceleration: 2, PacketThrottleDeceleration: 3},
	}

	for _, in := range cases {
		t.Run(CommandType(in.Type).String(), func(t *testing.T) {
			buf := encodeCommand(nil, &in)
			out, n, err := decodeCommand(buf)
			require.NoError(t, err)
			require.Equal(t, len(buf), n)

			// sentTime/sendAttempts/roundTripTimeout never travel on the wire.
			out.sentTime, out.sendAttempts, out.roundTripTimeout = in.sentTime, in.sendAttempts, in.roundTripTimeout
			if diff := cmp.Diff(in, out, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func (t CommandType) String() string {
	names := [...]string{"None", "Acknowledge", "Connect", "VerifyConnect", "Disconnect", "Ping",
		"SendReliable", "SendUnreliable", "SendFragment", "SendUnsequenced", "BandwidthLimit",
		"ThrottleConfigure", "SendUnreliableFragment"}
	if int(t) < len(names) {
		return names[t]
	}
	return "Unknown"
}

func TestHeaderRoundTrip(t *testing.T) {
	cases := []header{
		{peerID: 0, sessionID: 0, hasSentTime: false},
		{peerID: 4094, sessionID: 3, hasSentTime: true, sentTime: 0xBEEF},
		{peerID: ProtocolMaximumPeerID, sessionID: 1, hasSentTime: true, sentTime: 7},
	}
	for _, in := range cases {
		buf := encodeHeader(nil, in, false)
		out, n, err := decodeHeader(buf, false)
		require.NoError(t, err)
		require.Equal(t, len(buf), n)
		require.Equal(t, in, out)
	}
}

func TestChecksumPatchAndVerify(t *testing.T) {
	fn := func(data []byte) uint32 {
		var sum uint32
		for _, b := range data {
			sum = sum*31 + uint32(b)
		}
		return sum
	}
	buf := []byte{1, 2, 3, 4, 0, 0, 0, 0, 9, 9}
	patchChecksum(fn, buf, 4)
	require.True(t, verifyChecksum(fn, buf, 4))
	buf[0] ^= 0xFF
	require.False(t, verifyChecksum(fn, buf, 4))
}

func TestDecodeCommandRejectsTruncated(t *testing.T) {
	cmd := command{Type: CommandSendReliable, ChannelID: 0, ReliableSequenceNumber: 1, Payload: []byte("hello")}
	buf := encodeCommand(nil, &cmd)
	_, _, err := decodeCommand(buf[:len(buf)-2])
	require.Error(t, err)
}

func TestDecodeCommandRejectsBadFragmentDescriptor(t *testing.T) {
	cmd := command{Type: CommandSendFragment, ChannelID: 0, ReliableSequenceNumber: 1,
		StartSequenceNumber: 1, FragmentCount: 2, FragmentNumber: 5, TotalLength: 10, FragmentOffset: 0, Payload: []byte("hi")}
	buf := encodeCommand(nil, &cmd)
	_, _, err := decodeCommand(buf)
	require.Error(t, err)
}
