package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// a group distinct from the default so tests don't disturb running nodes
const testGroup = "239.0.0.153:26981"

func openTestTransport(t *testing.T) *Transport {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping multicast network test in short mode")
	}
	tr, err := Open(Config{Group: testGroup})
	require.NoError(t, err)
	t.Cleanup(func() { tr.Close() })
	return tr
}

func TestLocalAddrIsBound(t *testing.T) {
	tr := openTestTransport(t)
	require.NotZero(t, tr.LocalAddr().Port)
}

func TestRecvZeroWaitPolls(t *testing.T) {
	tr := openTestTransport(t)

	start := time.Now()
	_, ok := tr.Recv(0)
	require.False(t, ok)
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestSendReachesPeersAndSelf(t *testing.T) {
	t1 := openTestTransport(t)
	t2 := openTestTransport(t)

	payload := []byte("high-water")
	require.NoError(t, t1.Send(payload))

	dg, ok := t2.Recv(2 * time.Second)
	require.True(t, ok, "peer transport should hear the datagram")
	require.Equal(t, payload, dg.Payload)
	require.Equal(t, t1.LocalAddr().Port, dg.From.Port)

	// loopback is enabled, so the sender hears itself too
	dg, ok = t1.Recv(2 * time.Second)
	require.True(t, ok, "sending transport should hear its own datagram")
	require.Equal(t, payload, dg.Payload)
}

func TestRecvTimesOut(t *testing.T) {
	tr := openTestTransport(t)

	start := time.Now()
	_, ok := tr.Recv(50 * time.Millisecond)
	require.False(t, ok)
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}
