package xsort

import (
	"io"
	"log/slog"

	"github.com/lanrat/xsort/block"
)

// Source is the element-stream interface spec.md §6 requires of
// stream-mode input: empty/current/advance, the same shape
// losertree.Sequence uses for merge inputs and RunMerger exposes as
// output.
type Source[E any] interface {
	Empty() bool
	Current() E
	Advance()
}

// StreamRunCreator is the stream-mode half of spec.md §4.1: it pulls from
// a Source rather than being pushed to, filling both halves per iteration,
// and adds the two-halves-fit-in-one-run shortcut from
// original_source/include/stxxl/bits/stream/sort_stream.h's
// basic_runs_creator::compute_result (SPEC_FULL.md §4, "Two-halves-fit-in-
// one-run stream shortcut").
type StreamRunCreator[E any] struct {
	cmp    Comparator[E]
	codec  Codec[E]
	cfg    *Config
	logger *slog.Logger

	flusher *runFlusher[E]

	halves  [2][]E
	runSize int64

	result *SortedRuns[E]
}

// NewStreamRunCreator constructs a stream-mode creator with the same
// memory arithmetic and InsufficientMemoryError behavior as
// NewRunCreator.
func NewStreamRunCreator[E any](comparator Comparator[E], codec Codec[E], bm block.Manager, cfg *Config, logger *slog.Logger) (*StreamRunCreator[E], error) {
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

	sc := &StreamRunCreator[E]{
		cmp:     comparator,
		codec:   codec,
		cfg:     merged,
		logger:  logger,
		runSize: runSize,
		result:  &SortedRuns[E]{},
		flusher: newRunFlusher(comparator, codec, bm, merged, logger, int(m2), B),
	}
	return sc, nil
}

// RunSize returns E, the number of elements a full run holds.
func (sc *StreamRunCreator[E]) RunSize() int64 { return sc.runSize }

// Drain consumes src to exhaustion and returns the completed sorted-runs
// descriptor, applying the small-input optimization and the
// two-halves-fit-in-one-run shortcut described on StreamRunCreator.
func (sc *StreamRunCreator[E]) Drain(src Source[E]) (*SortedRuns[E], error) {
	first := sc.fillHalf(src)
	if first == 0 {
		return sc.result, nil
	}

	if sc.cfg.SmallInputOptimization && int64(first) <= sc.runSize && src.Empty() && int64(first) <= int64(sc.flusher.B) {
		buf := sc.halves[0][:first]
		if err := sc.flusher.sortRange(buf); err != nil {
			return nil, err
		}
		small := make([]E, first)
		copy(small, buf)
		sc.result.SmallRun = small
		sc.result.Elements = int64(first)
		return sc.result, nil
	}

	if src.Empty() {
		// Everything fit in H1 alone but exceeds one block: a single
		// (possibly padded) run, no need to touch H2 at all.
		return sc.flushFinal(sc.halves[0][:first])
	}

	second := sc.fillHalf2(src)

	if src.Empty() && int64(first+second) <= 2*sc.runSize {
		// original_source's two-halves-fit-in-one-run shortcut: sort H1
		// and H2 together as a single contiguous range and write one run,
		// instead of flushing H1 and H2 as two separate runs.
		combined := make([]E, first+second)
		copy(combined, sc.halves[0][:first])
		copy(combined[first:], sc.halves[1][:second])
		return sc.flushFinal(combined)
	}

	// H1 is a genuine full run; flush it and continue the general loop.
	if err := sc.flusher.sortRange(sc.halves[0][:first]); err != nil {
		return nil, err
	}
	run, err := sc.flusher.writeRun(sc.halves[0][:first], false)
	if err != nil {
		return nil, err
	}
	sc.result.AddRun(run, int64(first))
	sc.logger.Debug("xsort: run flushed", "elements", first, "blocks", run.Len())

	cur := sc.halves[1][:second]
	for {
		if src.Empty() {
			return sc.flushFinal(cur)
		}
		if err := sc.flusher.sortRange(cur); err != nil {
			return nil, err
		}
		run, err := sc.flusher.writeRun(cur, false)
		if err != nil {
			return nil, err
		}
		sc.result.AddRun(run, int64(len(cur)))
		sc.logger.Debug("xsort: run flushed", "elements", len(cur), "blocks", run.Len())

		n := sc.fillHalf(src)
		cur = sc.halves[0][:n]
	}
}

// flushFinal sorts, pads and writes buf as the last run, then awaits every
// outstanding write before returning the completed descriptor.
func (sc *StreamRunCreator[E]) flushFinal(buf []E) (*SortedRuns[E], error) {
	if len(buf) == 0 {
		return sc.result, nil
	}
	if err := sc.flusher.sortRange(buf); err != nil {
		return nil, err
	}
	run, err := sc.flusher.writeRun(buf, true)
	if err != nil {
		return nil, err
	}
	sc.result.AddRun(run, int64(len(buf)))
	if err := sc.flusher.awaitAll(); err != nil {
		return nil, err
	}
	return sc.result, nil
}

// fillHalf pulls up to runSize elements from src into H1, lazily
// allocating it on first use.
func (sc *StreamRunCreator[E]) fillHalf(src Source[E]) int {
	if sc.halves[0] == nil {
		sc.halves[0] = make([]E, sc.runSize)
	}
	return sc.fillInto(src, sc.halves[0])
}

// fillHalf2 pulls into H2, lazily allocating it on first use.
func (sc *StreamRunCreator[E]) fillHalf2(src Source[E]) int {
	if sc.halves[1] == nil {
		sc.halves[1] = make([]E, sc.runSize)
	}
	return sc.fillInto(src, sc.halves[1])
}

func (sc *StreamRunCreator[E]) fillInto(src Source[E], dst []E) int {
	n := 0
	for n < len(dst) && !src.Empty() {
		dst[n] = src.Current()
		src.Advance()
		n++
	}
	return n
}
