package xsort

import (
	"io"
	"log/slog"

	"github.com/lanrat/xsort/block"
)

// RunCreator is the push-mode half of spec.md §4.1: callers push elements
// one at a time and the creator owns the accumulation buffer. It shares
// its flush/sort/write routine with the stream-mode creator in
// creator_stream.go, per spec.md §9's design note that the two are "two
// instances of the same algorithm with different element sources", ported
// here as a shared runFlusher rather than an inheritance hierarchy.
type RunCreator[E any] struct {
	cmp    Comparator[E]
	codec  Codec[E]
	cfg    *Config
	logger *slog.Logger

	flusher *runFlusher[E]

	// halves holds the two block-aligned memory halves H1/H2 of spec.md
	// §4.1; fill is the index (0 or 1) currently accepting pushes.
	halves  [2][]E
	fill    int
	curEl   int64
	runSize int64 // E = m2*B

	result         *SortedRuns[E]
	resultComputed bool
}

// NewRunCreator constructs a push-mode RunCreator. It fails with
// InsufficientMemoryError when the memory budget cannot hold two block
// halves (spec.md §4.1 "Errors").
func NewRunCreator[E any](comparator Comparator[E], codec Codec[E], bm block.Manager, cfg *Config, logger *slog.Logger) (*RunCreator[E], error) {
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

	blockSize := bm.BlockSize()
	factor := merged.memoryUsageFactor()
	minBytes := 2 * int64(blockSize) * factor
	if merged.MemoryToUse < minBytes {
		return nil, &InsufficientMemoryError{
			Component: "RunCreator",
			Requested: minBytes,
			Available: merged.MemoryToUse,
		}
	}

	B := elementsPerBlock(blockSize, codec.Size())
	m := merged.MemoryToUse / int64(blockSize) / factor
	m2 := m / 2
	runSize := m2 * int64(B)

	rc := &RunCreator[E]{
		cmp:     comparator,
		codec:   codec,
		cfg:     merged,
		logger:  logger,
		runSize: runSize,
		result:  &SortedRuns[E]{},
		flusher: newRunFlusher(comparator, codec, bm, merged, logger, int(m2), B),
	}
	rc.halves[0] = make([]E, runSize)
	rc.halves[1] = make([]E, runSize)
	return rc, nil
}

// RunSize returns E, the number of elements a full run holds (source's
// num_els_in_run()).
func (rc *RunCreator[E]) RunSize() int64 { return rc.runSize }

// Size returns the number of elements pushed so far, including those
// already flushed into runs.
func (rc *RunCreator[E]) Size() int64 {
	return rc.result.Elements + rc.curEl
}

// Push appends v to the accumulation buffer, flushing a full half to a new
// run first if necessary.
func (rc *RunCreator[E]) Push(v E) error {
	if rc.resultComputed {
		panic(contractViolation("RunCreator.Push", "push after result has been computed"))
	}
	if rc.curEl == rc.runSize {
		if err := rc.flushFullHalf(); err != nil {
			return err
		}
	}
	rc.halves[rc.fill][rc.curEl] = v
	rc.curEl++
	return nil
}

// flushFullHalf sorts and writes the current fill half as a complete run
// (spec.md §4.1 steps 2-5), then swaps H1<->H2 and resets curEl so the
// caller can resume filling the other half.
func (rc *RunCreator[E]) flushFullHalf() error {
	half := rc.halves[rc.fill]
	if err := rc.flusher.sortRange(half); err != nil {
		return err
	}
	run, err := rc.flusher.writeRun(half, false)
	if err != nil {
		return err
	}
	rc.result.AddRun(run, int64(len(half)))
	rc.logger.Debug("xsort: run flushed", "elements", len(half), "blocks", run.Len())
	rc.fill = 1 - rc.fill
	rc.curEl = 0
	return nil
}

// Result finalizes the creator (spec.md §4.1 "Finishing"/compute_result)
// and returns the sorted-runs descriptor. It is idempotent: subsequent
// calls return the cached descriptor without touching state again.
func (rc *RunCreator[E]) Result() (*SortedRuns[E], error) {
	if rc.resultComputed {
		return rc.result, nil
	}
	rc.resultComputed = true

	if rc.curEl == 0 {
		return rc.result, nil
	}

	pending := rc.halves[rc.fill][:rc.curEl]

	if rc.cfg.SmallInputOptimization && rc.curEl <= int64(rc.flusher.B) && rc.result.Elements == 0 {
		if err := rc.flusher.sortRange(pending); err != nil {
			return nil, err
		}
		small := make([]E, rc.curEl)
		copy(small, pending)
		rc.result.SmallRun = small
		rc.result.Elements = rc.curEl
		return rc.result, nil
	}

	if err := rc.flusher.sortRange(pending); err != nil {
		return nil, err
	}
	run, err := rc.flusher.writeRun(pending, true)
	if err != nil {
		return nil, err
	}
	rc.result.AddRun(run, int64(len(pending)))

	if err := rc.flusher.awaitAll(); err != nil {
		return nil, err
	}
	return rc.result, nil
}

// Finish is an alias for Result kept for symmetry with the source's
// finish()/result() pair and with Sorter.Finish.
func (rc *RunCreator[E]) Finish() (*SortedRuns[E], error) { return rc.Result() }

// Clear cancels any outstanding writes (spec.md §5 "Cancellation &
// timeouts") and resets the creator to accept a fresh input, discarding
// (but not freeing — the caller owns any already-flushed run's block ids
// via the descriptor it received) whatever was accumulated so far.
func (rc *RunCreator[E]) Clear() {
	rc.flusher.cancelAll()
	rc.result = &SortedRuns[E]{}
	rc.resultComputed = false
	rc.fill = 0
	rc.curEl = 0
}

// less adapts Comparator.Less to the three-way cmp.Compare shape
// slices.SortFunc and internalSort want.
func less[E any](c Comparator[E]) func(a, b E) int {
	return func(a, b E) int {
		switch {
		case c.Less(a, b):
			return -1
		case c.Less(b, a):
			return 1
		default:
			return 0
		}
	}
}

