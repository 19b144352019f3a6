package xsort_test

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lanrat/xsort"
	"github.com/lanrat/xsort/block"
)

// drain pulls every remaining element out of a merger in order.
func drain(t *testing.T, rm *xsort.RunMerger[uint32]) []uint32 {
	t.Helper()
	var out []uint32
	for !rm.Empty() {
		out = append(out, rm.Current())
		rm.Advance()
	}
	return out
}

// Scenario A: empty input.
func TestScenarioA_EmptyInput(t *testing.T) {
	bm := block.NewMockManager(16, 1)
	rc, err := xsort.NewRunCreator[uint32](xsort.Uint32Comparator{}, xsort.Uint32Codec{}, bm, &xsort.Config{MemoryToUse: 32}, nil)
	require.NoError(t, err)

	result, err := rc.Result()
	require.NoError(t, err)
	require.Empty(t, result.Runs)
	require.EqualValues(t, 0, result.Elements)
	require.EqualValues(t, 0, bm.AllocatedCount())
}

// Scenario B: a 3-element input, below B=4, uses the small-run buffer and
// allocates zero block ids.
func TestScenarioB_SmallRun(t *testing.T) {
	bm := block.NewMockManager(16, 1) // B = 16/4 = 4 elements
	rc, err := xsort.NewRunCreator[uint32](xsort.Uint32Comparator{}, xsort.Uint32Codec{}, bm, &xsort.Config{MemoryToUse: 32}, nil)
	require.NoError(t, err)

	for _, v := range []uint32{7, 3, 5} {
		require.NoError(t, rc.Push(v))
	}
	result, err := rc.Result()
	require.NoError(t, err)
	require.True(t, result.IsSmallRun())
	require.Equal(t, []uint32{3, 5, 7}, result.SmallRun)
	require.EqualValues(t, 0, bm.AllocatedCount())
}

// Scenario C: 8 elements with a run size of exactly B=4 produce two
// 4-element runs, merged in a single pass.
func TestScenarioC_TwoExactRuns(t *testing.T) {
	bm := block.NewMockManager(16, 1)
	// m2 = 1 => E = B = 4: each half holds exactly one block.
	rc, err := xsort.NewRunCreator[uint32](xsort.Uint32Comparator{}, xsort.Uint32Codec{}, bm, &xsort.Config{MemoryToUse: 32}, nil)
	require.NoError(t, err)

	for _, v := range []uint32{8, 2, 6, 4, 1, 7, 5, 3} {
		require.NoError(t, rc.Push(v))
	}
	result, err := rc.Result()
	require.NoError(t, err)
	require.Len(t, result.Runs, 2)
	require.Equal(t, []int64{4, 4}, result.RunSizes)

	rm, err := xsort.NewRunMerger[uint32](xsort.Uint32Comparator{}, xsort.Uint32Codec{}, bm, result, &xsort.Config{MemoryToUse: 128}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, rm.Initialize())
	require.Equal(t, []uint32{1, 2, 3, 4, 5, 6, 7, 8}, drain(t, rm))
}

// Scenario D: repeated equal keys across run boundaries still merge to a
// sorted (here, constant) sequence.
func TestScenarioD_EqualKeysAcrossRuns(t *testing.T) {
	bm := block.NewMockManager(16, 1)
	rc, err := xsort.NewRunCreator[uint32](xsort.Uint32Comparator{}, xsort.Uint32Codec{}, bm, &xsort.Config{MemoryToUse: 32}, nil)
	require.NoError(t, err)

	for i := 0; i < 12; i++ {
		require.NoError(t, rc.Push(5))
	}
	result, err := rc.Result()
	require.NoError(t, err)
	require.Len(t, result.Runs, 3)

	rm, err := xsort.NewRunMerger[uint32](xsort.Uint32Comparator{}, xsort.Uint32Codec{}, bm, result, &xsort.Config{MemoryToUse: 128}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, rm.Initialize())
	out := drain(t, rm)
	require.Len(t, out, 12)
	for _, v := range out {
		require.EqualValues(t, 5, v)
	}
}

// Scenario E: an input whose final run is a partial block exercises the
// MAX-sentinel padding path; padding must never surface in output.
func TestScenarioE_PaddedFinalRun(t *testing.T) {
	bm := block.NewMockManager(16, 1)
	rc, err := xsort.NewRunCreator[uint32](xsort.Uint32Comparator{}, xsort.Uint32Codec{}, bm, &xsort.Config{MemoryToUse: 32}, nil)
	require.NoError(t, err)

	r := rand.New(rand.NewSource(1))
	input := make([]uint32, 17)
	for i := range input {
		input[i] = r.Uint32() % 1000
	}
	for _, v := range input {
		require.NoError(t, rc.Push(v))
	}
	result, err := rc.Result()
	require.NoError(t, err)
	require.EqualValues(t, 17, result.Elements)

	rm, err := xsort.NewRunMerger[uint32](xsort.Uint32Comparator{}, xsort.Uint32Codec{}, bm, result, &xsort.Config{MemoryToUse: 256}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, rm.Initialize())
	out := drain(t, rm)

	want := append([]uint32(nil), input...)
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })
	require.Equal(t, want, out)
	for _, v := range out {
		require.NotEqual(t, ^uint32(0), v, "sentinel padding leaked into output")
	}
}

// Scenario F: 1024 elements forced into 16 runs, merged under a budget
// that forces a recursive pass with merge factor 4 before the final
// single-pass merge.
func TestScenarioF_RecursiveMerge(t *testing.T) {
	bm := block.NewMockManager(16, 1) // B = 4 elements
	// m2 = 16 => E = 64 elements/run => 1024/64 = 16 runs.
	rc, err := xsort.NewRunCreator[uint32](xsort.Uint32Comparator{}, xsort.Uint32Codec{}, bm, &xsort.Config{MemoryToUse: 512}, nil)
	require.NoError(t, err)

	r := rand.New(rand.NewSource(2))
	input := make([]uint32, 1024)
	for i := range input {
		input[i] = r.Uint32()
	}
	for _, v := range input {
		require.NoError(t, rc.Push(v))
	}
	result, err := rc.Result()
	require.NoError(t, err)
	require.Len(t, result.Runs, 16)

	// merger budget: totalBlocks=9 => maxArity = 9 - 2*disks(2) - Pmin(2) - 1 = 4
	rm, err := xsort.NewRunMerger[uint32](xsort.Uint32Comparator{}, xsort.Uint32Codec{}, bm, result, &xsort.Config{MemoryToUse: 144}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, rm.Initialize())
	require.Len(t, result.Runs, 4, "recursive pass should reduce 16 runs to 4 before the final merge")

	out := drain(t, rm)
	want := append([]uint32(nil), input...)
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })
	require.Equal(t, want, out)
}

// Scenario G: the same runs as scenario F, merged through the
// parallel-multiway frontier instead of the native loser tree
// (Config.ParallelMultiwayMerge), including a forced recursive pass so
// both mergeGroup's inner tree and the top-level parallel frontier run
// in the same drain.
func TestScenarioG_ParallelMultiwayMerge(t *testing.T) {
	bm := block.NewMockManager(16, 1) // B = 4 elements
	rc, err := xsort.NewRunCreator[uint32](xsort.Uint32Comparator{}, xsort.Uint32Codec{}, bm, &xsort.Config{MemoryToUse: 512}, nil)
	require.NoError(t, err)

	r := rand.New(rand.NewSource(3))
	input := make([]uint32, 1024)
	for i := range input {
		input[i] = r.Uint32()
	}
	for _, v := range input {
		require.NoError(t, rc.Push(v))
	}
	result, err := rc.Result()
	require.NoError(t, err)
	require.Len(t, result.Runs, 16)

	rm, err := xsort.NewRunMerger[uint32](xsort.Uint32Comparator{}, xsort.Uint32Codec{}, bm, result, &xsort.Config{
		MemoryToUse:           144,
		ParallelMultiwayMerge: true,
	}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, rm.Initialize())

	out := drain(t, rm)
	want := append([]uint32(nil), input...)
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })
	require.Equal(t, want, out)
}
