package xsort_test

import (
	"sort"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"github.com/lanrat/xsort"
	"github.com/lanrat/xsort/block"
)

// sortViaEngine pushes input through a fresh Sorter and drains it,
// exercising the full RunCreator -> RunMerger pipeline.
func sortViaEngine(t *testing.T, input []uint32) []uint32 {
	t.Helper()
	// Large relative to gopter's generated slice sizes so the vast
	// majority of runs land in the small-input or single-pass-merge path;
	// the recursive-merge path has its own dedicated coverage in
	// TestScenarioF_RecursiveMerge.
	bm := block.NewMockManager(256, 2)
	defer bm.Close()

	s, err := xsort.NewSorter[uint32](xsort.Uint32Comparator{}, xsort.Uint32Codec{}, bm, &xsort.Config{
		MemoryToUse: 1 << 20,
	}, nil, nil)
	require.NoError(t, err)

	for _, v := range input {
		require.NoError(t, s.Push(v))
	}
	require.NoError(t, s.Sort())

	var out []uint32
	for !s.Empty() {
		out = append(out, s.Current())
		s.Advance()
	}
	return out
}

// TestSortInvariants checks the universal properties of spec.md §8 over
// random uint32 sequences, following
// _examples/dd0wney-graphdb/pkg/storage/property_test.go's use of gopter.
func TestSortInvariants(t *testing.T) {
	if testing.Short() {
		t.Skip("property-based test skipped in short mode")
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20

	properties := gopter.NewProperties(parameters)

	properties.Property("sortedness: output is non-decreasing", prop.ForAll(
		func(input []uint32) bool {
			out := sortViaEngine(t, input)
			return sort.SliceIsSorted(out, func(i, j int) bool { return out[i] < out[j] })
		},
		gen.SliceOf(gen.UInt32()),
	))

	properties.Property("permutation: output is a permutation of the input", prop.ForAll(
		func(input []uint32) bool {
			out := sortViaEngine(t, input)
			if len(out) != len(input) {
				return false
			}
			want := append([]uint32(nil), input...)
			got := append([]uint32(nil), out...)
			sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })
			sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
			for i := range want {
				if want[i] != got[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.UInt32()),
	))

	properties.Property("sentinel values round-trip through the sorted output", prop.ForAll(
		func(input []uint32) bool {
			withSentinels := append(append([]uint32(nil), input...), 0, ^uint32(0))
			out := sortViaEngine(t, withSentinels)
			return sort.SliceIsSorted(out, func(i, j int) bool { return out[i] < out[j] }) &&
				len(out) == len(withSentinels)
		},
		gen.SliceOf(gen.UInt32()),
	))

	properties.TestingRun(t)
}

// TestLifecycleInvariants checks properties 3-5 of spec.md §8 over random
// inputs: size() before the first advance, Rewind idempotence, and
// Clear-then-push producing exactly the new input's sorted result.
func TestLifecycleInvariants(t *testing.T) {
	if testing.Short() {
		t.Skip("property-based test skipped in short mode")
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20

	properties := gopter.NewProperties(parameters)

	newLifecycleSorter := func(t *testing.T) *xsort.Sorter[uint32] {
		bm := block.NewMockManager(64, 1)
		s, err := xsort.NewSorter[uint32](xsort.Uint32Comparator{}, xsort.Uint32Codec{}, bm, &xsort.Config{MemoryToUse: 256}, nil, nil)
		require.NoError(t, err)
		// The creator's 256 bytes give 32-element runs; 4 merger blocks
		// cannot merge two or more of them, so the merger gets 16 blocks.
		s.SetMergerMemoryToUse(1024)
		return s
	}

	properties.Property("size before advance equals elements pushed", prop.ForAll(
		func(input []uint32) bool {
			s := newLifecycleSorter(t)
			for _, v := range input {
				require.NoError(t, s.Push(v))
			}
			require.NoError(t, s.Sort())
			return s.Size() == int64(len(input))
		},
		gen.SliceOf(gen.UInt32()),
	))

	properties.Property("rewind reproduces the same drain", prop.ForAll(
		func(input []uint32) bool {
			s := newLifecycleSorter(t)
			for _, v := range input {
				require.NoError(t, s.Push(v))
			}
			require.NoError(t, s.Sort())

			var first []uint32
			for !s.Empty() {
				first = append(first, s.Current())
				s.Advance()
			}

			require.NoError(t, s.Rewind())
			var second []uint32
			for !s.Empty() {
				second = append(second, s.Current())
				s.Advance()
			}

			return len(first) == len(second) && func() bool {
				for i := range first {
					if first[i] != second[i] {
						return false
					}
				}
				return true
			}()
		},
		gen.SliceOf(gen.UInt32()),
	))

	properties.Property("clear then push replaces the drained sequence", prop.ForAll(
		func(first, second []uint32) bool {
			s := newLifecycleSorter(t)
			for _, v := range first {
				require.NoError(t, s.Push(v))
			}
			require.NoError(t, s.Sort())
			require.NoError(t, s.Clear())

			for _, v := range second {
				require.NoError(t, s.Push(v))
			}
			require.NoError(t, s.Sort())

			var out []uint32
			for !s.Empty() {
				out = append(out, s.Current())
				s.Advance()
			}
			want := append([]uint32(nil), second...)
			sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })
			if len(out) != len(want) {
				return false
			}
			for i := range want {
				if want[i] != out[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.UInt32()),
		gen.SliceOf(gen.UInt32()),
	))

	properties.TestingRun(t)
}

// drainViaBudget pushes input through a fresh RunCreator/RunMerger pair
// bounded by mergerMemory and drains the result. Each call gets its own
// MockManager and creator so a forced-recursion run and an ample-budget
// run over the same input never share (and one mutate) the same
// SortedRuns descriptor, since RunMerger.recursiveMerge rewrites its
// descriptor's Runs/RunSizes in place.
func drainViaBudget(t *testing.T, input []uint32, mergerMemory int64) []uint32 {
	t.Helper()
	bm := block.NewMockManager(16, 1) // B = 4 elements/block, matching TestScenarioF_RecursiveMerge's maxArity=4 sizing
	defer bm.Close()

	rc, err := xsort.NewRunCreator[uint32](xsort.Uint32Comparator{}, xsort.Uint32Codec{}, bm, &xsort.Config{MemoryToUse: 512}, nil)
	require.NoError(t, err)
	for _, v := range input {
		require.NoError(t, rc.Push(v))
	}
	result, err := rc.Result()
	require.NoError(t, err)

	rm, err := xsort.NewRunMerger[uint32](xsort.Uint32Comparator{}, xsort.Uint32Codec{}, bm, result, &xsort.Config{MemoryToUse: mergerMemory}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, rm.Initialize())

	var out []uint32
	for !rm.Empty() {
		out = append(out, rm.Current())
		rm.Advance()
	}
	return out
}

// TestRecursiveMergeCorrectness checks property 8: draining a run set
// under a budget that forces a recursive-merge pass produces the same
// sequence as draining it under an ample single-pass budget, over
// random input. Uses a fixed-size generator (rather than gen.SliceOf's
// default small sizes) so the forced-recursion budget below (matching
// TestScenarioF_RecursiveMerge's maxArity=4 sizing) reliably drives at
// least one recursive pass per trial.
func TestRecursiveMergeCorrectness(t *testing.T) {
	if testing.Short() {
		t.Skip("property-based test skipped in short mode")
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 10

	properties := gopter.NewProperties(parameters)

	properties.Property("recursive and single-pass merges agree", prop.ForAll(
		func(input []uint32) bool {
			forced := drainViaBudget(t, input, 144)
			ample := drainViaBudget(t, input, 1<<20)
			if len(forced) != len(ample) {
				return false
			}
			for i := range forced {
				if forced[i] != ample[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(600, gen.UInt32()),
	))

	properties.TestingRun(t)
}

// TestSmallInputAllocatesNoBlocks checks property 7 directly against the
// mock manager's allocation counter.
func TestSmallInputAllocatesNoBlocks(t *testing.T) {
	bm := block.NewMockManager(64, 1) // B = 64/4 = 16 elements
	s, err := xsort.NewSorter[uint32](xsort.Uint32Comparator{}, xsort.Uint32Codec{}, bm, &xsort.Config{MemoryToUse: 256}, nil, nil)
	require.NoError(t, err)

	for i := uint32(0); i < 10; i++ {
		require.NoError(t, s.Push(i))
	}
	require.NoError(t, s.Sort())
	require.EqualValues(t, 0, bm.AllocatedCount())
}

// TestInsufficientMemoryOnConstruction checks property 9's creator half.
func TestInsufficientMemoryOnConstruction(t *testing.T) {
	bm := block.NewMockManager(64, 1)
	_, err := xsort.NewRunCreator[uint32](xsort.Uint32Comparator{}, xsort.Uint32Codec{}, bm, &xsort.Config{MemoryToUse: 32}, nil)
	require.Error(t, err)
	var imErr *xsort.InsufficientMemoryError
	require.ErrorAs(t, err, &imErr)
}
