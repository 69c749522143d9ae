package idnode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComposeIDConsistency(t *testing.T) {
	id1, err := ComposeID(1234567, 123, 234)
	require.NoError(t, err)
	id2, err := ComposeID(1234567, 123, 234)
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	// mutate node (no assumed order)
	id2, err = ComposeID(1234567, 123, 235)
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)
}

func TestComposeIDOrdering(t *testing.T) {
	id1, err := ComposeID(1234567, 123, 234)
	require.NoError(t, err)

	// mutate counter (assumed order)
	id2, err := ComposeID(1234567, 124, 234)
	require.NoError(t, err)
	require.Less(t, id1, id2)

	// mutate timestamp (assumed order)
	id2, err = ComposeID(1234568, 123, 234)
	require.NoError(t, err)
	require.Less(t, id1, id2)
}

func TestComposeIDFormula(t *testing.T) {
	id, err := ComposeID(1234567, 123, 234)
	require.NoError(t, err)
	require.Equal(t, uint64(1234567)<<20|uint64(123)<<10|234, id)
	require.Equal(t, uint64(0x12D6871ECEA), id)
}

func TestComposeIDDomainErrors(t *testing.T) {
	_, err := ComposeID(1, 1, 1024)
	require.ErrorIs(t, err, ErrInvalidNodeID)

	_, err = ComposeID(1, 1024, 1)
	require.ErrorIs(t, err, ErrInvalidCounter)
}

func TestComposeIDFieldBoundaries(t *testing.T) {
	// node boundary
	id1, err := ComposeID(1234567, 123, 1022)
	require.NoError(t, err)
	id2, err := ComposeID(1234567, 123, 1023)
	require.NoError(t, err)
	require.Less(t, id1, id2)
	id2, err = ComposeID(1234567, 123, 0)
	require.NoError(t, err)
	require.Greater(t, id1, id2)

	// counter boundary
	id1, err = ComposeID(1234567, 1022, 123)
	require.NoError(t, err)
	id2, err = ComposeID(1234567, 1023, 123)
	require.NoError(t, err)
	require.Less(t, id1, id2)
	id2, err = ComposeID(1234567, 0, 123)
	require.NoError(t, err)
	require.Greater(t, id1, id2)
}

func TestDecomposeIDRoundTrip(t *testing.T) {
	cases := []struct {
		timestamp uint64
		counter   uint16
		node      uint16
	}{
		{0, 0, 0},
		{1234567, 123, 234},
		{1<<44 - 1, 1023, 1023},
		{1, 0, 1023},
	}
	for _, tc := range cases {
		id, err := ComposeID(tc.timestamp, tc.counter, tc.node)
		require.NoError(t, err)
		ts, counter, node := DecomposeID(id)
		require.Equal(t, tc.timestamp, ts)
		require.Equal(t, tc.counter, counter)
		require.Equal(t, tc.node, node)
	}
}
