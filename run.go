package xsort

import "github.com/lanrat/xsort/block"

// Run is an ordered list of block ids such that reading them in order and
// concatenating their B-element payloads yields a sorted sequence
// (spec.md §3 "Run"). trigger holds, parallel to blocks, the value of
// each block's first element, letting the merger's prefetch scheduler
// order reads without touching the block itself.
type Run[E any] struct {
	Blocks  []block.ID
	Trigger []E
}

// Len returns the number of blocks in the run.
func (r Run[E]) Len() int { return len(r.Blocks) }

// SortedRuns is the immutable-after-Finish bundle produced by a
// RunCreator and consumed by a RunMerger (spec.md §3 "Sorted-runs
// descriptor"). It is owned by the creator until transferred to the
// merger by initialize/Sort: this is the "move, not a cycle" framing
// spec.md §9 recommends over the source's reference-counted sharing.
type SortedRuns[E any] struct {
	Runs      []Run[E]
	RunSizes  []int64 // element count per run, parallel to Runs
	Elements  int64   // total_elements = sum(RunSizes)

	// SmallRun holds the entire input in memory when it fit in a single
	// block (spec.md §3 "small-run buffer"); when non-nil, Runs is empty
	// and no block ids were ever allocated.
	SmallRun []E
}

// IsSmallRun reports whether the small-input optimization was used.
func (sr *SortedRuns[E]) IsSmallRun() bool {
	return sr != nil && sr.SmallRun != nil
}

// Empty reports whether the descriptor holds no elements at all.
func (sr *SortedRuns[E]) Empty() bool {
	return sr == nil || sr.Elements == 0
}

// AddRun appends a completed run and its element count, keeping
// Elements in sync (spec.md §3 "total_elements = sum(run_sizes)").
func (sr *SortedRuns[E]) AddRun(run Run[E], size int64) {
	sr.Runs = append(sr.Runs, run)
	sr.RunSizes = append(sr.RunSizes, size)
	sr.Elements += size
}

// TakeBlockIDs clears the descriptor's block-id lists and returns every
// block id it held, transferring ownership to the caller. This is the
// concrete mechanism behind spec.md §3's invariant "double-free is
// prevented by clearing the descriptor's id list before transferring
// ownership (as the merger does when a run is consumed)". Sorter.Clear
// and Sorter.FinishClear use it; recursive merging does not call it, and
// instead frees each merged group's ids in mergeGroup and replaces the
// descriptor's run list.
func (sr *SortedRuns[E]) TakeBlockIDs() []block.ID {
	var ids []block.ID
	for i := range sr.Runs {
		ids = append(ids, sr.Runs[i].Blocks...)
		sr.Runs[i].Blocks = nil
	}
	return ids
}

// Clear empties the descriptor. The caller is responsible for freeing any
// block ids first via TakeBlockIDs; Clear does not talk to a block
// manager itself, keeping the descriptor a plain data holder as spec.md
// §3 describes it ("Shared by reference between creator and merger").
func (sr *SortedRuns[E]) Clear() {
	sr.Runs = nil
	sr.RunSizes = nil
	sr.Elements = 0
	sr.SmallRun = nil
}
