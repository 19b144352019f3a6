package xsort

import (
	"io"
	"log/slog"

	"github.com/lanrat/xsort/block"
)

// sorterState is the INPUT/OUTPUT state machine of spec.md §4.3.
type sorterState int

const (
	stateInput sorterState = iota
	stateOutput
)

// Sorter is the two-state container of spec.md §4.3: it owns a RunCreator
// (active in state INPUT) and a RunMerger (active in state OUTPUT)
// sharing one comparator, and exposes push-then-drain semantics.
type Sorter[E any] struct {
	cmp     Comparator[E]
	codec   Codec[E]
	bm      block.Manager
	cfg     *Config
	logger  *slog.Logger
	metrics *Metrics

	state        sorterState
	creator      *RunCreator[E]
	merger       *RunMerger[E]
	result       *SortedRuns[E]
	mergerMemory int64
}

// NewSorter constructs a Sorter in state INPUT. The memory budget is not
// split between creator and merger: the creator gets cfg.MemoryToUse as
// given, and the merger's budget defaults to the same value unless
// SetMergerMemoryToUse overrides it before the first Sort.
func NewSorter[E any](comparator Comparator[E], codec Codec[E], bm block.Manager, cfg *Config, logger *slog.Logger, metrics *Metrics) (*Sorter[E], error) {
	merged, err := mergeConfig(cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	creator, err := NewRunCreator(comparator, codec, bm, merged, logger)
	if err != nil {
		return nil, err
	}
	return &Sorter[E]{
		cmp:          comparator,
		codec:        codec,
		bm:           bm,
		cfg:          merged,
		logger:       logger,
		metrics:      metrics,
		state:        stateInput,
		creator:      creator,
		mergerMemory: merged.MemoryToUse,
	}, nil
}

// Push forwards v to the creator. Valid only in state INPUT.
func (s *Sorter[E]) Push(v E) error {
	if s.state != stateInput {
		panic(contractViolation("Sorter.Push", "push is only valid in state INPUT"))
	}
	return s.creator.Push(v)
}

// Sort finalizes the creator, hands its descriptor to a freshly
// initialized merger, and transitions to state OUTPUT. Valid from either
// state (spec.md §4.3: "If OUTPUT, deallocate merger. Finalize creator,
// hand descriptor to merger, initialize it.").
func (s *Sorter[E]) Sort() error {
	if s.state == stateOutput {
		s.merger = nil
	}
	result, err := s.creator.Result()
	if err != nil {
		return err
	}
	s.result = result
	return s.enterOutput()
}

// SortReuse behaves like Sort but is only valid from state INPUT. The
// source skips a buffer-release step on the creator's finalize path that
// this implementation has no analogue for — RunCreator never eagerly
// frees its accumulation halves — so SortReuse and Sort are equivalent
// here; SortReuse exists to keep the two call sites spec.md §4.3
// distinguishes distinguishable at the call site.
func (s *Sorter[E]) SortReuse() error {
	if s.state != stateInput {
		panic(contractViolation("Sorter.SortReuse", "sort_reuse is only valid in state INPUT"))
	}
	return s.Sort()
}

// Rewind re-initializes a fresh merger over the same result descriptor,
// re-reading the already-produced runs from the beginning, without
// touching the creator (spec.md §4.3 "rewind()"). Valid only in state
// OUTPUT.
func (s *Sorter[E]) Rewind() error {
	if s.state != stateOutput {
		panic(contractViolation("Sorter.Rewind", "rewind is only valid in state OUTPUT"))
	}
	s.merger = nil
	return s.enterOutput()
}

func (s *Sorter[E]) enterOutput() error {
	merger, err := NewRunMerger(s.cmp, s.codec, s.bm, s.result, &Config{
		BlockSize:              s.cfg.BlockSize,
		MemoryToUse:            s.mergerMemory,
		NumSortWorkers:         s.cfg.NumSortWorkers,
		NumMergeWorkers:        s.cfg.NumMergeWorkers,
		Disks:                  s.cfg.Disks,
		MinPrefetchBuffers:     s.cfg.MinPrefetchBuffers,
		OptimalPrefetchRatio:   s.cfg.OptimalPrefetchRatio,
		ParallelMultiwayMerge:  s.cfg.ParallelMultiwayMerge,
		OptimalPrefetching:     s.cfg.OptimalPrefetching,
		OrderChecking:          s.cfg.OrderChecking,
		SmallInputOptimization: s.cfg.SmallInputOptimization,
	}, s.logger, s.metrics)
	if err != nil {
		return err
	}
	if err := merger.Initialize(); err != nil {
		return err
	}
	s.merger = merger
	s.state = stateOutput
	return nil
}

// Clear discards all state and returns to a fresh state INPUT: any
// outstanding merger is dropped, any block ids owned by the previous
// result are freed, and the creator is reset (spec.md §4.3 "clear()").
func (s *Sorter[E]) Clear() error {
	s.merger = nil
	if s.result != nil && !s.result.IsSmallRun() {
		if err := s.bm.FreeBlocks(s.result.TakeBlockIDs()); err != nil {
			return wrapDiskError("free", err)
		}
	}
	s.result = nil
	s.creator.Clear()
	s.state = stateInput
	return nil
}

// Finish deallocates the merger (if any) while keeping the result
// descriptor, finalizing the creator first if it was never finalized
// (spec.md §4.3 "finish()").
func (s *Sorter[E]) Finish() (*SortedRuns[E], error) {
	if s.state == stateInput {
		result, err := s.creator.Result()
		if err != nil {
			return nil, err
		}
		s.result = result
	}
	s.merger = nil
	return s.result, nil
}

// FinishClear is Finish followed by freeing and clearing the result
// (spec.md §4.3 "finish_clear()").
func (s *Sorter[E]) FinishClear() error {
	if _, err := s.Finish(); err != nil {
		return err
	}
	if s.result != nil && !s.result.IsSmallRun() {
		if err := s.bm.FreeBlocks(s.result.TakeBlockIDs()); err != nil {
			return wrapDiskError("free", err)
		}
	}
	s.result = nil
	return nil
}

// Size returns the creator's push count in state INPUT, or the merger's
// remaining element count in state OUTPUT (spec.md §4.3 "size()").
func (s *Sorter[E]) Size() int64 {
	if s.state == stateInput {
		return s.creator.Size()
	}
	return s.merger.Size()
}

// Empty is valid only in state OUTPUT.
func (s *Sorter[E]) Empty() bool {
	if s.state != stateOutput {
		panic(contractViolation("Sorter.Empty", "empty is only valid in state OUTPUT"))
	}
	return s.merger.Empty()
}

// Current is valid only in state OUTPUT.
func (s *Sorter[E]) Current() E {
	if s.state != stateOutput {
		panic(contractViolation("Sorter.Current", "current is only valid in state OUTPUT"))
	}
	return s.merger.Current()
}

// Advance is valid only in state OUTPUT.
func (s *Sorter[E]) Advance() {
	if s.state != stateOutput {
		panic(contractViolation("Sorter.Advance", "advance is only valid in state OUTPUT"))
	}
	s.merger.Advance()
}

// SetMergerMemoryToUse forwards to the merger, effective on next
// (re)initialization (spec.md §4.3 "set_merger_memory_to_use(M')").
func (s *Sorter[E]) SetMergerMemoryToUse(m int64) {
	s.mergerMemory = m
	if s.merger != nil {
		s.merger.SetMemoryToUse(m)
	}
}

// NextOutputWouldBlock is valid only in state OUTPUT.
func (s *Sorter[E]) NextOutputWouldBlock() bool {
	if s.state != stateOutput {
		panic(contractViolation("Sorter.NextOutputWouldBlock", "next_output_would_block is only valid in state OUTPUT"))
	}
	return s.merger.NextOutputWouldBlock()
}

// RunSize returns the creator's num_els_in_run() (SPEC_FULL.md §4).
func (s *Sorter[E]) RunSize() int64 { return s.creator.RunSize() }

// OutputBlockElements returns the merger's num_els_in_output_block()
// (SPEC_FULL.md §4), falling back to the creator's block size in state
// INPUT where no merger exists yet.
func (s *Sorter[E]) OutputBlockElements() int {
	if s.merger != nil {
		return s.merger.OutputBlockElements()
	}
	return elementsPerBlock(s.bm.BlockSize(), s.codec.Size())
}
