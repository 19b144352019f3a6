package xsort

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/lanrat/xsort/block"
	"github.com/lanrat/xsort/losertree"
)

// recursiveMerge implements spec.md §4.2.1: it repeatedly merges the
// descriptor's runs in groups of up to max_arity until the run count fits
// a single merge pass. Disk-queue priority is set to WRITE for the
// duration and restored to READ afterward, matching
// original_source/include/stxxl/bits/stream/sort_stream.h's
// runs_merger::compute_result (SPEC_FULL.md §4 "Disk-queue priority
// toggling around recursive-merge passes").
func (rm *RunMerger[E]) recursiveMerge() error {
	blockSize := int64(rm.bm.BlockSize())
	disks := rm.bm.DisksNumber()
	writebackBuffers := int64(2 * disks)
	prefetchBuffers := int64(rm.cfg.minPrefetchBuffers())
	totalBlocks := rm.memoryToUse / blockSize

	maxArity := totalBlocks - writebackBuffers - prefetchBuffers - 1
	if maxArity < 3 {
		return &InsufficientMemoryError{
			Component: "recursive merge",
			Requested: (writebackBuffers + prefetchBuffers + 1 + 3) * blockSize,
			Available: rm.memoryToUse,
		}
	}
	f := int(maxArity)

	rm.bm.SetPriority(block.PriorityWrite)
	defer rm.bm.SetPriority(block.PriorityRead)

	for len(rm.descriptor.Runs) > int(maxArity) {
		oldRuns := rm.descriptor.Runs
		oldSizes := rm.descriptor.RunSizes

		numGroups := (len(oldRuns) + f - 1) / f
		newRuns := make([]Run[E], numGroups)
		newSizes := make([]int64, numGroups)

		// Groups merge concurrently, bounded by NumMergeWorkers, the way
		// lanrat-extsort/sort_generic.go's mergeNChunksParallel runs a
		// worker pool over independent chunk-merge jobs with an
		// errgroup.Group.
		workers := rm.cfg.NumMergeWorkers
		if workers > numGroups {
			workers = numGroups
		}
		if workers < 1 {
			workers = 1
		}
		jobs := make(chan int)
		g, _ := errgroup.WithContext(context.Background())
		for w := 0; w < workers; w++ {
			g.Go(func() error {
				for gi := range jobs {
					start := gi * f
					end := min(start+f, len(oldRuns))
					group := oldRuns[start:end]
					groupSizes := oldSizes[start:end]

					if len(group) == 1 {
						rm.metrics.observeGroupCarried()
						newRuns[gi] = group[0]
						newSizes[gi] = groupSizes[0]
						continue
					}
					merged, size, err := rm.mergeGroup(group, groupSizes)
					if err != nil {
						return err
					}
					rm.metrics.observeRunsMerged(len(group))
					newRuns[gi] = merged
					newSizes[gi] = size
				}
				return nil
			})
		}
		for gi := 0; gi < numGroups; gi++ {
			jobs <- gi
		}
		close(jobs)
		if err := g.Wait(); err != nil {
			return err
		}

		rm.descriptor.Runs = newRuns
		rm.descriptor.RunSizes = newSizes
		rm.metrics.observePass()
		rm.logger.Debug("xsort: recursive merge pass", "runs_before", len(oldRuns), "runs_after", len(newRuns), "factor", f)
	}
	return nil
}

// mergeGroup merges group's runs into a single new run via a fresh inner
// loser-tree merger, streaming the merged output through the shared
// runFlusher in bounded chunks of writebackBlocks blocks at a time — spec.md
// §4.2.1's "buffered writer of 2*disks blocks" — instead of materializing
// the whole group (which can be arbitrarily larger than any single memory
// budget; that is the entire reason recursion exists) in one Go slice.
// Successive chunks reuse the same flusher, so the slot-wait/reuse
// discipline in flush.go overlaps chunk N's write with chunk N+1's pull
// from the tree, the same overlap RunCreator gets from its two halves.
// Frees the group's now-consumed block ids and returns the new run and its
// element count. Groups of size 1 never reach here — recursiveMerge
// carries them over untouched.
func (rm *RunMerger[E]) mergeGroup(group []Run[E], sizes []int64) (Run[E], int64, error) {
	var total int64
	for _, s := range sizes {
		total += s
	}

	seq := buildConsumeSequence(group, rm.cmp.Less)
	writebackBlocks := 2 * rm.bm.DisksNumber()
	bufCount := len(group) + writebackBlocks
	if bufCount > len(seq) {
		bufCount = len(seq)
	}
	pf := newPrefetcher(rm.bm, rm.codec, seq, bufCount)

	seqs := make([]losertree.Sequence[E], len(group))
	cursors := make([]*runCursor[E], len(group))
	for i, run := range group {
		c := newRunCursor(pf, i, run.Len())
		cursors[i] = c
		seqs[i] = c
	}
	tree := losertree.New(rm.cmp.Less, seqs)

	chunkElems := writebackBlocks * rm.B
	if chunkElems < rm.B {
		chunkElems = rm.B
	}

	flusher := newRunFlusher(rm.cmp, rm.codec, rm.bm, rm.cfg, rm.logger, writebackBlocks, rm.B)

	var blocks []block.ID
	var triggers []E
	chunk := make([]E, 0, chunkElems)
	remaining := total
	for remaining > 0 {
		n := int64(chunkElems)
		if n > remaining {
			n = remaining
		}
		chunk = chunk[:0]
		chunk = tree.PopN(int(n), chunk)
		for _, c := range cursors {
			if c.Err() != nil {
				return Run[E]{}, 0, c.Err()
			}
		}

		last := n == remaining
		r, err := flusher.writeRun(chunk, last)
		if err != nil {
			return Run[E]{}, 0, err
		}
		blocks = append(blocks, r.Blocks...)
		triggers = append(triggers, r.Trigger...)
		remaining -= n
	}

	if err := flusher.awaitAll(); err != nil {
		return Run[E]{}, 0, err
	}

	for _, r := range group {
		if err := rm.bm.FreeBlocks(r.Blocks); err != nil {
			return Run[E]{}, 0, wrapDiskError("free", err)
		}
	}
	return Run[E]{Blocks: blocks, Trigger: triggers}, total, nil
}
