package xsort

// parallelFrontier is the parallel-multiway-merge frontier of spec.md
// §4.2 step 7. Unlike the native frontier (a loser tree of n run
// cursors), it holds n (begin, end) iterator pairs directly and selects
// the next minimum by scanning every active pair's head, rather than
// through a tournament structure — the structurally different merge
// path spec.md §4.2 step 7 calls for ("hold n (begin, end) iterator
// pairs" vs. "build a loser tree of n run cursors").
type parallelFrontier[E any] struct {
	cmp     Comparator[E]
	cursors []*runCursor[E]
	active  []bool
}

func newParallelFrontier[E any](cmp Comparator[E], cursors []*runCursor[E]) *parallelFrontier[E] {
	active := make([]bool, len(cursors))
	for i, c := range cursors {
		active[i] = !c.Empty()
	}
	return &parallelFrontier[E]{cmp: cmp, cursors: cursors, active: active}
}

// empty reports whether every iterator pair is exhausted.
func (pf *parallelFrontier[E]) empty() bool {
	for _, a := range pf.active {
		if a {
			return false
		}
	}
	return true
}

// popInto pulls up to n elements from the active iterator pairs into dst.
// Each step scans every active pair's current head for the minimum and
// advances that pair. Advancing a cursor past its currently loaded block
// transparently pulls the run's next block from the prefetcher
// (runCursor.ensureLoaded, spec.md §4.2.2 step 5d "swap in the next
// block"); a pair left with nothing more to give is dropped from the
// active set ("otherwise drop the sequence from the active set").
func (pf *parallelFrontier[E]) popInto(n int, dst []E) []E {
	for i := 0; i < n; i++ {
		minIdx := -1
		for j := range pf.cursors {
			if !pf.active[j] {
				continue
			}
			if minIdx == -1 || pf.cmp.Less(pf.cursors[j].Current(), pf.cursors[minIdx].Current()) {
				minIdx = j
			}
		}
		if minIdx == -1 {
			break
		}
		dst = append(dst, pf.cursors[minIdx].Current())
		pf.cursors[minIdx].Advance()
		if pf.cursors[minIdx].Empty() {
			pf.active[minIdx] = false
		}
	}
	return dst
}

// err returns the first I/O error observed by any of the frontier's
// cursors, if any.
func (pf *parallelFrontier[E]) err() error {
	for _, c := range pf.cursors {
		if c.Err() != nil {
			return c.Err()
		}
	}
	return nil
}
