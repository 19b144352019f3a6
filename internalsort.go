package xsort

import (
	"context"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/lanrat/xsort/losertree"
)

// internalSort is the "internal sort" collaborator spec.md §1 treats as
// external: it sorts a bounded, contiguous in-memory range and expects a
// sorted result, with no further contract (spec.md §9 "Parallel vs.
// native merge" design note reused here: "the core provides bounded,
// contiguous ranges and expects a sorted result").
//
// When parallel is false it is a direct slices.SortFunc call. When true,
// it splits buf into workers contiguous chunks, sorts each concurrently
// with an errgroup.Group the way
// _examples/lanrat-extsort/sort_generic.go's sortChunks workers do, then
// merges the sorted chunks back into buf using a losertree.Tree — the
// out-of-place merge buffer this needs is exactly what
// Config.memoryUsageFactor()'s doubling to 2 when ParallelInternalSort is
// set reserves room for (spec.md §4.1 "memory_usage_factor is 1 for
// sequential, >= 2 when the internal sort is parallel, to leave room for
// out-of-place sort buffers").
func internalSort[E any](buf []E, less func(a, b E) int, parallel bool, workers int) error {
	if !parallel || workers <= 1 || len(buf) < 4*workers {
		slices.SortFunc(buf, less)
		return nil
	}

	chunkLen := (len(buf) + workers - 1) / workers
	var chunks [][]E
	for start := 0; start < len(buf); start += chunkLen {
		end := min(start+chunkLen, len(buf))
		chunks = append(chunks, buf[start:end])
	}

	g, _ := errgroup.WithContext(context.Background())
	for _, c := range chunks {
		c := c
		g.Go(func() error {
			slices.SortFunc(c, less)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if len(chunks) == 1 {
		return nil
	}

	lessBool := func(a, b E) bool { return less(a, b) < 0 }
	seqs := make([]losertree.Sequence[E], len(chunks))
	for i, c := range chunks {
		seqs[i] = &chunkSeq[E]{data: c}
	}
	tree := losertree.New(lessBool, seqs)
	merged := make([]E, 0, len(buf))
	merged = tree.PopN(len(buf), merged)
	copy(buf, merged)
	return nil
}

// chunkSeq adapts a sorted slice to losertree.Sequence for the parallel
// internal sort's merge step.
type chunkSeq[E any] struct {
	data []E
	pos  int
}

func (c *chunkSeq[E]) Empty() bool  { return c.pos >= len(c.data) }
func (c *chunkSeq[E]) Current() E   { return c.data[c.pos] }
func (c *chunkSeq[E]) Advance()     { c.pos++ }
