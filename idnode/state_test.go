package idnode

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNodeStateMarshalLayout(t *testing.T) {
	s := NodeState{
		Timestamp: 0x0102030405060708,
		ID:        513,
		Port:      26980,
		IPAddr:    0x7F000001,
	}
	s.SetMode(ModeUp)

	b := s.Marshal()
	require.Len(t, b, StateSize)
	require.Equal(t, uint64(0x0102030405060708), binary.LittleEndian.Uint64(b[0:8]))
	require.Equal(t, uint16(513), binary.LittleEndian.Uint16(b[8:10]))
	require.Equal(t, uint16(26980), binary.LittleEndian.Uint16(b[10:12]))
	require.Equal(t, uint32(0x7F000001), binary.LittleEndian.Uint32(b[12:16]))
	require.Equal(t, byte('U'), b[16])
	require.Equal(t, byte('P'), b[17])

	got, err := UnmarshalNodeState(b)
	require.NoError(t, err)
	require.Equal(t, s, got)
}

func TestUnmarshalNodeStateSize(t *testing.T) {
	_, err := UnmarshalNodeState(make([]byte, StateSize-1))
	require.ErrorIs(t, err, ErrRecordSize)

	_, err = UnmarshalNodeState(make([]byte, StateSize+1))
	require.ErrorIs(t, err, ErrRecordSize)
}

func TestNodeStateModeHelpers(t *testing.T) {
	var s NodeState
	s.SetMode(ModeRequest)
	require.True(t, s.HasMode(ModeRequest))
	require.False(t, s.HasMode(ModeUp))
	require.False(t, s.HasMode(ModeHighWater))
}

func TestNodeStateAddressRoundTrip(t *testing.T) {
	var s NodeState
	s.SetAddress(&net.UDPAddr{IP: net.IPv4(10, 1, 2, 3), Port: 4567})
	require.Equal(t, uint32(0x0A010203), s.IPAddr)
	require.Equal(t, uint16(4567), s.Port)

	addr := s.Address()
	require.True(t, addr.IP.Equal(net.IPv4(10, 1, 2, 3)))
	require.Equal(t, 4567, addr.Port)
}
