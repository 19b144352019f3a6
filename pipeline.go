package xsort

import (
	"log/slog"

	"github.com/lanrat/xsort/block"
)

// Pipeline is the streaming adapter of spec.md §4.4: it wires a Source
// through a StreamRunCreator and exposes a RunMerger as its own output,
// implementing Source[E] itself so pipelines compose.
type Pipeline[E any] struct {
	merger *RunMerger[E]
}

// NewPipeline drains src through a StreamRunCreator built with
// creatorCfg, then initializes a RunMerger over the result with
// mergerCfg. A nil mergerCfg reuses creatorCfg, splitting a single memory
// budget evenly the way spec.md §4.4 allows ("constructed with either a
// single memory budget (split evenly) or two separate budgets").
func NewPipeline[E any](comparator Comparator[E], codec Codec[E], bm block.Manager, src Source[E], creatorCfg, mergerCfg *Config, logger *slog.Logger, metrics *Metrics) (*Pipeline[E], error) {
	if mergerCfg == nil && creatorCfg != nil {
		half := *creatorCfg
		half.MemoryToUse /= 2
		mergerCfg = &half
		halfCreator := *creatorCfg
		halfCreator.MemoryToUse /= 2
		creatorCfg = &halfCreator
	}

	creator, err := NewStreamRunCreator(comparator, codec, bm, creatorCfg, logger)
	if err != nil {
		return nil, err
	}
	result, err := creator.Drain(src)
	if err != nil {
		return nil, err
	}
	merger, err := NewRunMerger(comparator, codec, bm, result, mergerCfg, logger, metrics)
	if err != nil {
		return nil, err
	}
	if err := merger.Initialize(); err != nil {
		return nil, err
	}
	return &Pipeline[E]{merger: merger}, nil
}

func (p *Pipeline[E]) Empty() bool  { return p.merger.Empty() }
func (p *Pipeline[E]) Current() E   { return p.merger.Current() }
func (p *Pipeline[E]) Advance()     { p.merger.Advance() }
func (p *Pipeline[E]) Size() int64  { return p.merger.Size() }
