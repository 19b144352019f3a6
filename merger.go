package xsort

import (
	"io"
	"log/slog"
	"sort"

	"github.com/lanrat/xsort/block"
	"github.com/lanrat/xsort/losertree"
)

// RunMerger consumes a sorted-runs descriptor and produces a forward-only
// sorted stream (spec.md §4.2). It implements Source[E] itself, so a
// RunMerger can feed a downstream StreamRunCreator directly (spec.md
// §4.4's pipeline).
type RunMerger[E any] struct {
	cmp     Comparator[E]
	codec   Codec[E]
	bm      block.Manager
	cfg     *Config
	logger  *slog.Logger
	metrics *Metrics

	memoryToUse int64
	descriptor  *SortedRuns[E]
	remaining   int64

	// small-run path
	usingSmallRun bool
	smallRun      []E
	smallPos      int

	// general path
	pf       *prefetcher[E]
	cursors  []*runCursor[E]
	seqs     []losertree.Sequence[E] // native frontier only
	tree     *losertree.Tree[E]      // native frontier only
	parallel *parallelFrontier[E]    // parallel-multiway frontier only

	outBuf []E
	outPos int
	outEnd int

	B int

	// order-checking (Config.OrderChecking, spec.md §7 "OrderingViolation")
	orderCheck  bool
	hasLast     bool
	lastEmitted E
	emittedPos  uint64
}

// NewRunMerger constructs an un-initialized merger over descriptor.
// Initialize must be called (directly, or via Sorter.Sort) before
// Empty/Current/Advance are used.
func NewRunMerger[E any](comparator Comparator[E], codec Codec[E], bm block.Manager, descriptor *SortedRuns[E], cfg *Config, logger *slog.Logger, metrics *Metrics) (*RunMerger[E], error) {
	if err := verifySentinelStrictWeakOrdering(comparator); err != nil {
		return nil, err
	}
	merged, err := mergeConfig(cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &RunMerger[E]{
		cmp:         comparator,
		codec:       codec,
		bm:          bm,
		cfg:         merged,
		logger:      logger,
		metrics:     metrics,
		memoryToUse: merged.MemoryToUse,
		descriptor:  descriptor,
		B:           elementsPerBlock(bm.BlockSize(), codec.Size()),
	}, nil
}

// SetMemoryToUse overrides the merger's memory budget, effective on the
// next Initialize (spec.md §4.2 "set_memory_to_use(M'')").
func (rm *RunMerger[E]) SetMemoryToUse(m int64) { rm.memoryToUse = m }

// OutputBlockElements returns B, the source's num_els_in_output_block().
func (rm *RunMerger[E]) OutputBlockElements() int { return rm.B }

// Size returns the number of elements not yet drained.
func (rm *RunMerger[E]) Size() int64 { return rm.remaining }

// Empty reports whether every element has been drained.
func (rm *RunMerger[E]) Empty() bool { return rm.remaining == 0 }

// Current returns the current output element. Requires !Empty.
func (rm *RunMerger[E]) Current() E {
	if rm.Empty() {
		panic(contractViolation("RunMerger.Current", "current called while empty"))
	}
	if rm.usingSmallRun {
		return rm.smallRun[rm.smallPos]
	}
	return rm.outBuf[rm.outPos]
}

// Advance moves to the next output element, refilling the output buffer
// when it is exhausted (spec.md §4.2 "advance()").
func (rm *RunMerger[E]) Advance() {
	if rm.Empty() {
		panic(contractViolation("RunMerger.Advance", "advance called while empty"))
	}
	rm.remaining--
	if rm.usingSmallRun {
		rm.smallPos++
		return
	}
	rm.outPos++
	if rm.outPos >= rm.outEnd && rm.remaining > 0 {
		if err := rm.refill(); err != nil {
			panic(err)
		}
	}
}

// NextOutputWouldBlock reports whether the next Advance will trigger a
// refill (spec.md §4.3 "next_output_would_block()", also
// SPEC_FULL.md §4's next_call_would_block()/next_output_would_block()
// unification).
func (rm *RunMerger[E]) NextOutputWouldBlock() bool {
	if rm.usingSmallRun || rm.Empty() {
		return false
	}
	return rm.outPos+1 >= rm.outEnd && rm.remaining > 1
}

// Initialize plans and constructs the merge structures over rm.descriptor
// (spec.md §4.2 "Initialization planning").
func (rm *RunMerger[E]) Initialize() error {
	rm.usingSmallRun = false
	rm.smallRun = nil
	rm.smallPos = 0
	rm.pf = nil
	rm.cursors = nil
	rm.seqs = nil
	rm.tree = nil
	rm.parallel = nil
	rm.outBuf = nil
	rm.outPos, rm.outEnd = 0, 0

	rm.orderCheck = rm.cfg.OrderChecking
	rm.hasLast = false
	rm.emittedPos = 0

	if rm.descriptor.Empty() {
		rm.remaining = 0
		return nil
	}

	if rm.descriptor.IsSmallRun() {
		rm.usingSmallRun = true
		rm.smallRun = rm.descriptor.SmallRun
		rm.remaining = int64(len(rm.smallRun))
		if rm.orderCheck {
			if err := rm.checkOrder(rm.smallRun); err != nil {
				return err
			}
		}
		return nil
	}

	blockSize := rm.bm.BlockSize()
	pMin := rm.cfg.minPrefetchBuffers()
	n := len(rm.descriptor.Runs)

	availableInputBuffers := func() int64 {
		return rm.memoryToUse/int64(blockSize) - 1 // minus one output block
	}

	if availableInputBuffers() < int64(n+pMin) {
		if err := rm.recursiveMerge(); err != nil {
			return err
		}
		n = len(rm.descriptor.Runs)
		if availableInputBuffers() < int64(n+pMin) {
			return &InsufficientMemoryError{
				Component: "RunMerger",
				Requested: int64(n+pMin+1) * int64(blockSize),
				Available: rm.memoryToUse,
			}
		}
	}

	rm.bm.SetPriority(block.PriorityRead)
	seq := buildConsumeSequence(rm.descriptor.Runs, rm.cmp.Less)
	schedule := prefetchSchedule(seq, rm.bm.DisksNumber(), rm.cfg.OptimalPrefetching)
	scheduled := make([]consumeEntry[E], len(seq))
	for i, idx := range schedule {
		scheduled[i] = seq[idx]
	}

	// Buffers beyond the n active cursors: the naive window hands the
	// prefetcher every spare buffer (P_available); optimal prefetching
	// instead caps it at P_opt = P_min + ratio*(P_available - P_min)
	// (spec.md §4.2 step 5), holding back the rest so the seek-minimizing
	// schedule it drives has an actually bounded window to plan against
	// instead of racing ahead through the whole consume sequence.
	pAvailable := availableInputBuffers()
	extraBuffers := pAvailable
	if rm.cfg.OptimalPrefetching {
		pOpt := int64(float64(pMin) + rm.cfg.OptimalPrefetchRatio*float64(pAvailable-int64(pMin)))
		if pOpt < int64(pMin) {
			pOpt = int64(pMin)
		}
		extraBuffers = pOpt
	}
	bufCount := int(extraBuffers) + n
	if bufCount > len(seq) {
		bufCount = len(seq)
	}
	if bufCount < 1 {
		bufCount = 1
	}
	rm.pf = newPrefetcher(rm.bm, rm.codec, scheduled, bufCount)

	rm.cursors = make([]*runCursor[E], n)
	for r, run := range rm.descriptor.Runs {
		rm.cursors[r] = newRunCursor(rm.pf, r, run.Len())
	}

	// Native mode builds a loser tree of run cursors (spec.md §4.2 step
	// 7); parallel-multiway mode instead holds the same cursors as n
	// direct iterator pairs behind a linear-scan frontier — two
	// structurally different merge paths sharing only the cursor/
	// prefetcher plumbing underneath, per spec.md §9's "must not leak
	// into the loser-tree path" boundary.
	if rm.cfg.ParallelMultiwayMerge {
		rm.parallel = newParallelFrontier(rm.cmp, rm.cursors)
	} else {
		rm.seqs = make([]losertree.Sequence[E], n)
		for r, c := range rm.cursors {
			rm.seqs[r] = c
		}
		rm.tree = losertree.New(rm.cmp.Less, rm.seqs)
	}

	rm.outBuf = make([]E, rm.B)
	rm.remaining = rm.descriptor.Elements
	if err := rm.refill(); err != nil {
		return err
	}
	return nil
}

// refill dispatches to the native or parallel-multiway frontier per
// Config.ParallelMultiwayMerge (spec.md §4.2.2, §9 "Parallel vs. native
// merge": "the count-mergeable-elements bound is specific to the parallel
// path and must not leak into the loser-tree path").
func (rm *RunMerger[E]) refill() error {
	rest := rm.B
	if int64(rest) > rm.remaining {
		rest = int(rm.remaining)
	}

	rm.outBuf = rm.outBuf[:0]
	if rm.cfg.ParallelMultiwayMerge {
		if err := rm.refillParallel(rest); err != nil {
			return err
		}
	} else {
		rm.outBuf = rm.tree.PopN(rest, rm.outBuf)
	}
	for _, c := range rm.cursors {
		if c.Err() != nil {
			return c.Err()
		}
	}

	if rm.orderCheck {
		if err := rm.checkOrder(rm.outBuf); err != nil {
			return err
		}
	}

	rm.outPos = 0
	rm.outEnd = len(rm.outBuf)

	if rm.remaining <= int64(rm.B) {
		rm.pf = nil
		rm.tree = nil
		rm.parallel = nil
		rm.cursors = nil
		rm.seqs = nil
	}
	return nil
}

// refillParallel implements spec.md §4.2.2's parallel-mode loop over the
// parallelFrontier: it bounds how many elements may be drawn per
// iteration by the "mergeable count" — the number of already-in-memory
// elements guaranteed not to require a not-yet-issued block — recomputing
// it whenever it drops below rest.
//
// Correctness here does not depend on the bound: runCursor.ensureLoaded
// always synchronously fetches whatever block it needs next. The bound is
// purely the batching discipline the source uses to avoid emitting past
// data it would otherwise need to block for; the "must not leak into the
// loser-tree path" requirement is honored by refill() computing it only
// against rm.parallel, never rm.tree.
func (rm *RunMerger[E]) refillParallel(rest int) error {
	mergeableCount := 0
	for rest > 0 && !rm.parallel.empty() {
		if mergeableCount < rest {
			mergeableCount = rm.computeMergeable()
		}
		n := mergeableCount
		if n > rest {
			n = rest
		}
		if n <= 0 {
			n = 1 // always make progress even if the bound underestimates
		}
		rm.outBuf = rm.parallel.popInto(n, rm.outBuf)
		rest -= n
		mergeableCount -= n
	}
	return rm.parallel.err()
}

// checkOrder verifies buf continues non-decreasing from whatever was last
// emitted, and is itself non-decreasing, raising OrderingViolationError at
// the first inversion (spec.md §7 "OrderingViolation", gated by
// Config.OrderChecking). It advances the running position/last-value
// state for every element it accepts, so a later chunk's check lines up
// against the correct absolute output position.
func (rm *RunMerger[E]) checkOrder(buf []E) error {
	for _, v := range buf {
		if rm.hasLast && rm.cmp.Less(v, rm.lastEmitted) {
			return &OrderingViolationError{Position: rm.emittedPos, Prev: rm.lastEmitted, Next: v}
		}
		rm.lastEmitted = v
		rm.hasLast = true
		rm.emittedPos++
	}
	return nil
}

// computeMergeable counts, across all cursors, the elements already
// resident in memory that are <= the trigger of the next block the
// prefetcher has not yet issued (spec.md §4.2.2 step 5a). If the
// prefetcher has issued every block, every remaining element qualifies.
func (rm *RunMerger[E]) computeMergeable() int {
	bound, ok := rm.pf.nextTrigger()
	if !ok {
		return int(rm.remaining)
	}
	total := 0
	for _, c := range rm.cursors {
		if c.data == nil {
			continue
		}
		avail := c.data[c.pos:]
		total += sort.Search(len(avail), func(i int) bool { return rm.cmp.Less(bound, avail[i]) })
	}
	return total
}
