package xsort

import (
	"log/slog"

	"github.com/lanrat/xsort/block"
)

// runFlusher is the shared "sort, allocate, write" routine spec.md §9
// asks for: "Implementations should factor the flush/sort/write pipeline
// into a shared routine and differ only in fill." Both RunCreator (push
// mode) and StreamRunCreator (stream mode, creator_stream.go) hold one.
//
// pendingWrites tracks, per block slot, the write request most recently
// issued for that slot. Waiting on pendingWrites[i] before reusing slot i
// is what gives spec.md §4.1 step 4 / §5's overlap guarantee: the write of
// the half that was flushed one cycle ago must complete before the
// now-full half's write for the same slot is issued, but the caller was
// free to fill and sort the new half in the meantime.
type runFlusher[E any] struct {
	cmp    Comparator[E]
	codec  Codec[E]
	bm     block.Manager
	cfg    *Config
	logger *slog.Logger

	B             int // elements per block
	m2            int // blocks per half
	pendingWrites []block.Request
}

func newRunFlusher[E any](cmp Comparator[E], codec Codec[E], bm block.Manager, cfg *Config, logger *slog.Logger, m2, B int) *runFlusher[E] {
	return &runFlusher[E]{
		cmp:           cmp,
		codec:         codec,
		bm:            bm,
		cfg:           cfg,
		logger:        logger,
		B:             B,
		m2:            m2,
		pendingWrites: make([]block.Request, m2),
	}
}

// sortRange runs the internal sort (external collaborator, spec.md §1)
// over buf in place.
func (f *runFlusher[E]) sortRange(buf []E) error {
	return internalSort(buf, less(f.cmp), f.cfg.ParallelInternalSort, f.cfg.NumSortWorkers)
}

// writeRun allocates fresh block ids for buf, pads its last block with
// MAX sentinels when pad is true (the final, possibly-partial run,
// spec.md §4.1 "Finishing"), and writes every block, honoring the
// slot-wait/reuse discipline described on runFlusher. It returns the
// completed Run descriptor; the caller is responsible for awaiting the
// returned run's writes (directly, or via awaitAll at the very end).
func (f *runFlusher[E]) writeRun(buf []E, pad bool) (Run[E], error) {
	count := len(buf)
	numBlocks := (count + f.B - 1) / f.B
	if numBlocks == 0 {
		return Run[E]{}, nil
	}

	if pad {
		total := numBlocks * f.B
		if cap(buf) < total {
			grown := make([]E, total)
			copy(grown, buf)
			buf = grown
		} else {
			buf = buf[:total]
		}
		maxVal := f.cmp.MaxValue()
		for i := count; i < total; i++ {
			buf[i] = maxVal
		}
	}

	f.bm.SetPriority(block.PriorityWrite)
	ids, err := f.bm.AllocateBlocks(block.NewRoundRobinStrategy(), numBlocks)
	if err != nil {
		return Run[E]{}, wrapDiskError("allocate", err)
	}

	triggers := make([]E, numBlocks)
	elemSize := f.codec.Size()
	for i := 0; i < numBlocks; i++ {
		blockElems := buf[i*f.B : (i+1)*f.B]
		triggers[i] = blockElems[0]

		raw := make([]byte, elemSize*f.B)
		for j, e := range blockElems {
			f.codec.Encode(e, raw[j*elemSize:(j+1)*elemSize])
		}

		if i < len(f.pendingWrites) && f.pendingWrites[i] != nil {
			if err := f.pendingWrites[i].Wait(); err != nil {
				return Run[E]{}, wrapDiskError("write", err)
			}
		}
		req, err := f.bm.WriteBlock(ids[i], raw)
		if err != nil {
			return Run[E]{}, wrapDiskError("write", err)
		}
		if i < len(f.pendingWrites) {
			f.pendingWrites[i] = req
		} else {
			f.pendingWrites = append(f.pendingWrites, req)
		}
	}
	return Run[E]{Blocks: ids, Trigger: triggers}, nil
}

// awaitAll waits on every outstanding write, per spec.md §5 "the engine
// never returns from result() with writes still pending".
func (f *runFlusher[E]) awaitAll() error {
	for i, r := range f.pendingWrites {
		if r == nil {
			continue
		}
		if err := r.Wait(); err != nil {
			return wrapDiskError("write", err)
		}
		f.pendingWrites[i] = nil
	}
	return nil
}

// cancelAll best-effort cancels every outstanding write (spec.md §5
// "Cancellation & timeouts": "On clear(), outstanding writes on the
// creator's half are cancelled through the block manager's cancel
// primitive").
func (f *runFlusher[E]) cancelAll() {
	for i, r := range f.pendingWrites {
		if r == nil {
			continue
		}
		_ = r.Cancel()
		f.pendingWrites[i] = nil
	}
}
