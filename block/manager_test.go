package block_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lanrat/xsort/block"
)

func TestMockManagerRoundTrip(t *testing.T) {
	m := block.NewMockManager(64, 2)
	ids, err := m.AllocateBlocks(nil, 4)
	require.NoError(t, err)
	require.Len(t, ids, 4)
	// round-robin strategy stripes across the 2 disks in order
	require.Equal(t, 0, ids[0].DiskID())
	require.Equal(t, 1, ids[1].DiskID())
	require.Equal(t, 0, ids[2].DiskID())
	require.Equal(t, 1, ids[3].DiskID())

	payload := make([]byte, 64)
	for i := range payload {
		payload[i] = byte(i)
	}
	req, err := m.WriteBlock(ids[0], payload)
	require.NoError(t, err)
	require.NoError(t, req.Wait())

	out := make([]byte, 64)
	req, err = m.ReadBlock(ids[0], out)
	require.NoError(t, err)
	require.NoError(t, req.Wait())
	require.Equal(t, payload, out)

	require.EqualValues(t, 4, m.AllocatedCount())
	require.NoError(t, m.FreeBlocks(ids))
	require.EqualValues(t, 4, m.FreedCount())
}

func TestDiskManagerRoundTripAndCompression(t *testing.T) {
	for _, compress := range []bool{false, true} {
		m, err := block.NewDiskManager(block.DiskManagerConfig{
			BlockSize: 4096,
			Disks:     2,
			Dir:       t.TempDir(),
			Compress:  compress,
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = m.Close() })

		ids, err := m.AllocateBlocks(block.NewRoundRobinStrategy(), 3)
		require.NoError(t, err)

		payload := make([]byte, 4096)
		for i := range payload {
			payload[i] = byte(i % 251)
		}

		var reqs []block.Request
		for _, id := range ids {
			r, err := m.WriteBlock(id, payload)
			require.NoError(t, err)
			reqs = append(reqs, r)
		}
		for _, r := range reqs {
			require.NoError(t, r.Wait())
		}

		for _, id := range ids {
			out := make([]byte, 4096)
			r, err := m.ReadBlock(id, out)
			require.NoError(t, err)
			require.NoError(t, r.Wait())
			require.Equal(t, payload, out)
		}
	}
}

func TestDiskManagerFreeAndReuseSlot(t *testing.T) {
	m, err := block.NewDiskManager(block.DiskManagerConfig{
		BlockSize: 128,
		Disks:     1,
		Dir:       t.TempDir(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	ids, err := m.AllocateBlocks(nil, 1)
	require.NoError(t, err)
	require.NoError(t, m.FreeBlocks(ids))

	ids2, err := m.AllocateBlocks(nil, 1)
	require.NoError(t, err)
	require.Equal(t, ids[0], ids2[0])
}

func TestRoundRobinStrategyFreshInstancePerRun(t *testing.T) {
	s1 := block.NewRoundRobinStrategy()
	require.Equal(t, 0, s1.NextDisk(2))
	require.Equal(t, 1, s1.NextDisk(2))

	s2 := block.NewRoundRobinStrategy()
	require.Equal(t, 0, s2.NextDisk(2), "a fresh strategy instance must reset to disk 0")
}
