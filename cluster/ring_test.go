package cluster

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRingPartitions(t *testing.T) {
	r := NewRing(RingConfig{PartitionCount: 7})
	r.Join("node-1", true)
	require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6}, r.GetPartitions())

	seen := make(map[int]bool)
	for contact := int64(1); contact <= 200; contact++ {
		p := r.GetPartition(1, contact)
		require.GreaterOrEqual(t, p, 0)
		require.Less(t, p, 7)
		require.Equal(t, p, r.GetPartition(1, contact))
		require.True(t, r.IsLocal(p))
		seen[p] = true
	}
	require.Greater(t, len(seen), 1)
}

func TestRingSharedOwnership(t *testing.T) {
	r := NewRing(RingConfig{PartitionCount: 23})
	r.Join("node-1", true)
	r.Join("node-2", false)
	local := r.GetPartitions()
	require.NotEmpty(t, local)
	require.Less(t, len(local), 23)

	r.Leave("node-2")
	require.Len(t, r.GetPartitions(), 23)
}
