package xsort

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Config holds the run-time tunables of spec.md §6. BlockSize is a
// compile-time constant in the STXXL source; here the block size is a
// run-time value taken from the block.Manager, and the element size comes
// from the Codec instead of sizeof().
type Config struct {
	// BlockSize is validated and copied into the merger's Config, but
	// RunCreator, StreamRunCreator and RunMerger take the block size from
	// block.Manager.BlockSize(); this field does not change it.
	BlockSize int `validate:"gte=4096"`
	// MemoryToUse is M, the number of bytes a RunCreator or RunMerger
	// (or both, when a Sorter is built from a single budget) may use.
	MemoryToUse int64 `validate:"gte=1"`
	// NumSortWorkers bounds the parallelism of the internal sort when
	// Config.ParallelInternalSort is set.
	NumSortWorkers int `validate:"gte=1"`
	// NumMergeWorkers bounds the number of recursive-merge group workers.
	// The parallel-multiway merge frontier runs on a single goroutine and
	// does not read it.
	NumMergeWorkers int `validate:"gte=1"`
	// Disks sets the default P_min (2*Disks, see MinPrefetchBuffers).
	// Block placement and the recursive-merge writeback buffer count use
	// the block.Manager's own DisksNumber(), not this field.
	Disks int `validate:"gte=1"`
	// MinPrefetchBuffers overrides P_min (spec.md §4.2 step 2); zero
	// means "use 2*Disks".
	MinPrefetchBuffers int `validate:"gte=0"`
	// OptimalPrefetchRatio is the fraction, in [0,1], of buffers beyond
	// MinPrefetchBuffers handed to the optimal-prefetch scheduler
	// (spec.md §4.2 step 5, P_opt formula).
	OptimalPrefetchRatio float64 `validate:"gte=0,lte=1"`
	// TempFilesDir is not read by RunCreator, RunMerger or Sorter; the
	// disk-backed manager's directory is set by block.DiskManagerConfig.Dir.
	TempFilesDir string
	// RunFilePrefix is not read by RunCreator, RunMerger or Sorter; the
	// disk-backed manager's file prefix is set by
	// block.DiskManagerConfig.Prefix.
	RunFilePrefix string
	// ParallelMultiwayMerge selects the multiway-merge-sequences
	// frontier over the native loser-tree frontier (spec.md §4.2 step 7,
	// §9 "Parallel vs. native merge").
	ParallelMultiwayMerge bool
	// OptimalPrefetching enables the seek-minimizing prefetch schedule
	// instead of the identity permutation (spec.md §4.2 step 5).
	OptimalPrefetching bool
	// ParallelInternalSort sorts each run's memory half with multiple
	// workers, which doubles memory_usage_factor (spec.md §4.1).
	ParallelInternalSort bool
	// OrderChecking wraps the merge frontier with an inversion check
	// that raises OrderingViolationError (spec.md §7).
	OrderChecking bool
	// SmallInputOptimization enables the small-run shortcut (spec.md §3,
	// §4.1 "Finishing"). mergeConfig treats false as unset and fills it
	// from DefaultConfig, which sets it to true, so every constructor that
	// goes through mergeConfig runs with the shortcut enabled.
	SmallInputOptimization bool
	// CompressBlocks is not read by RunCreator, RunMerger or Sorter.
	// Block compression is configured on the disk-backed manager itself
	// (block.DiskManagerConfig.Compress).
	CompressBlocks bool
}

// memoryUsageFactor is the source's sort_memory_usage_factor(): 1 for a
// sequential internal sort, 2 when the internal sort runs in parallel and
// needs an out-of-place sort buffer (spec.md §4.1 "Memory layout").
func (c *Config) memoryUsageFactor() int64 {
	if c.ParallelInternalSort {
		return 2
	}
	return 1
}

var configValidator = validator.New()

// DefaultConfig returns the default configuration, mirroring
// lanrat-extsort/config.go's DefaultConfig: a set of workable values a
// caller can override piecemeal by passing a partially-filled *Config to
// mergeConfig.
func DefaultConfig() *Config {
	return &Config{
		BlockSize:              2 << 20, // 2MiB, in the spirit of STXXL_DEFAULT_BLOCK_SIZE
		MemoryToUse:            256 << 20,
		NumSortWorkers:         4,
		NumMergeWorkers:        4,
		Disks:                  1,
		MinPrefetchBuffers:     0,
		OptimalPrefetchRatio:   0.3, // P_opt = P_min + 0.3*(P_available - P_min), spec.md §4.2 step 5
		TempFilesDir:           "",
		RunFilePrefix:          "",
		ParallelMultiwayMerge:  false,
		OptimalPrefetching:     false,
		ParallelInternalSort:   false,
		OrderChecking:          false,
		SmallInputOptimization: true,
		CompressBlocks:         false,
	}
}

// mergeConfig fills the zero-valued fields of a caller-supplied Config
// with defaults, exactly like lanrat-extsort/config.go's mergeConfig, then
// validates the result. A nil Config returns DefaultConfig() untouched.
func mergeConfig(c *Config) (*Config, error) {
	d := DefaultConfig()
	if c == nil {
		return d, nil
	}
	out := *c
	if out.BlockSize <= 0 {
		out.BlockSize = d.BlockSize
	}
	if out.MemoryToUse <= 0 {
		out.MemoryToUse = d.MemoryToUse
	}
	if out.NumSortWorkers <= 0 {
		out.NumSortWorkers = d.NumSortWorkers
	}
	if out.NumMergeWorkers <= 0 {
		out.NumMergeWorkers = d.NumMergeWorkers
	}
	if out.Disks <= 0 {
		out.Disks = d.Disks
	}
	if out.OptimalPrefetchRatio == 0 {
		out.OptimalPrefetchRatio = d.OptimalPrefetchRatio
	}
	if out.RunFilePrefix == "" {
		out.RunFilePrefix = d.RunFilePrefix
	}
	if !out.SmallInputOptimization {
		out.SmallInputOptimization = d.SmallInputOptimization
	}
	if err := configValidator.Struct(&out); err != nil {
		return nil, contractViolation("mergeConfig", fmt.Sprintf("invalid config: %v", err))
	}
	return &out, nil
}

// minPrefetchBuffers returns P_min: the configured override, or 2*Disks
// (spec.md §4.2 step 2).
func (c *Config) minPrefetchBuffers() int {
	if c.MinPrefetchBuffers > 0 {
		return c.MinPrefetchBuffers
	}
	return 2 * c.Disks
}
