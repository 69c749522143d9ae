package idnode

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSystemClockWallMs(t *testing.T) {
	c := NewSystemClock()
	now := uint64(time.Now().UnixMilli())
	wall := c.WallMs()
	require.InDelta(t, float64(now), float64(wall), 1000)
}

func TestSystemClockMonoNeverDecreases(t *testing.T) {
	c := NewSystemClock()
	prev := c.MonoMs()
	for i := 0; i < 100; i++ {
		time.Sleep(100 * time.Microsecond)
		cur := c.MonoMs()
		require.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
}
