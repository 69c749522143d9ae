package idnode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestManagerCreateIssueDelete(t *testing.T) {
	cfg := testConfig(t)
	m := NewManager(cfg)
	defer m.StopAll()

	id1, err := m.CreateNode()
	require.NoError(t, err)
	require.Equal(t, uint16(1), id1)

	id2, err := m.CreateNode()
	require.NoError(t, err)
	require.Equal(t, uint16(2), id2)
	require.Equal(t, 2, m.Count())

	infos := m.Snapshots()
	require.Len(t, infos, 2)
	require.True(t, infos[0].Valid)
	require.True(t, infos[1].Valid)
	require.NotZero(t, infos[0].Port)

	first, last, err := m.IssueBurst(0, 100)
	require.NoError(t, err)
	require.Less(t, first, last)

	// each node at least knows itself
	require.NotEmpty(t, m.PeerStates(0))

	require.NoError(t, m.DeleteNode(0))
	require.Equal(t, 1, m.Count())
	require.Error(t, m.DeleteNode(5))
}
