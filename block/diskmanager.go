package block

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/golang/snappy"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// slotOverhead is the fixed header written before every physical block:
// one flag byte (raw vs. snappy-compressed), a uint32 payload length, and
// a uint32 crc32 checksum. Grounded on
// _examples/dd0wney-graphdb/pkg/wal/compressed_wal_io.go's
// encode-then-checksum shape, adapted from a WAL entry to a fixed-size
// block slot.
const slotOverhead = 1 + 4 + 4

const (
	flagRaw    byte = 0
	flagSnappy byte = 1
)

// DiskManager is the disk-backed block.Manager: each disk is one growing
// backing file, blocks are fixed-size slots within it, addressed by
// index. Grounded on _examples/lanrat-extsort/tempfile/{tempfile.go,
// tempdir.go,mockfile.go}, generalized from "virtual temp file sections"
// (sequential, single reader per section) to block-id-addressable,
// concurrently readable/writable, multi-disk storage as spec.md §3/§6
// require.
type DiskManager struct {
	blockSize int
	compress  bool
	logger    *slog.Logger
	metrics   *Metrics

	disks []*diskFile

	priority atomic.Int32 // Priority
}

type diskFile struct {
	mu       sync.Mutex
	file     *os.File
	nextSlot int64
	free     []int64
}

// DiskManagerConfig configures a DiskManager.
type DiskManagerConfig struct {
	// BlockSize is the fixed size, in bytes, of every block's payload.
	BlockSize int
	// Disks is the number of independent backing files to stripe
	// across.
	Disks int
	// Dir is the directory backing files are created in; empty selects
	// an OS-appropriate disk-backed default (see chooseTempDir).
	Dir string
	// Prefix names the backing files; empty generates a UUID-qualified
	// prefix, replacing the source's PID-based naming
	// (lanrat-extsort/config.go's MergeFilenamePrefix) with a
	// collision-free identifier across concurrently running engines on
	// one host.
	Prefix string
	// Compress snappy-compresses block payloads before they hit disk.
	Compress bool
	// Logger receives debug-level events for block writes/reads/frees. A
	// nil Logger discards them.
	Logger *slog.Logger
	// Registry, if non-nil, receives this manager's prometheus
	// collectors.
	Registry *prometheus.Registry
}

// NewDiskManager creates a disk-backed block manager with cfg.Disks
// independent backing files, each opened in cfg.Dir (or an
// auto-discovered disk-backed directory).
func NewDiskManager(cfg DiskManagerConfig) (*DiskManager, error) {
	if cfg.BlockSize <= 0 {
		return nil, fmt.Errorf("block: BlockSize must be positive")
	}
	if cfg.Disks <= 0 {
		cfg.Disks = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = fmt.Sprintf("xsort_%s_", uuid.NewString())
	}
	dir := chooseTempDir(cfg.Dir)

	m := &DiskManager{
		blockSize: cfg.BlockSize,
		compress:  cfg.Compress,
		logger:    logger,
		metrics:   NewMetrics(cfg.Registry),
		disks:     make([]*diskFile, cfg.Disks),
	}
	m.priority.Store(int32(PriorityWrite))

	for i := 0; i < cfg.Disks; i++ {
		f, err := os.CreateTemp(dir, fmt.Sprintf("%sdisk%d_", prefix, i))
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("block: creating backing file for disk %d: %w", i, err)
		}
		m.disks[i] = &diskFile{file: f}
	}
	logger.Debug("block manager opened", "disks", cfg.Disks, "block_size", cfg.BlockSize, "dir", dir)
	return m, nil
}

func (m *DiskManager) BlockSize() int    { return m.blockSize }
func (m *DiskManager) DisksNumber() int  { return len(m.disks) }
func (m *DiskManager) MaxDeviceID() int  { return len(m.disks) - 1 }
func (m *DiskManager) SetPriority(p Priority) {
	m.priority.Store(int32(p))
	m.logger.Debug("block manager priority changed", "priority", p.String())
}

func (m *DiskManager) physicalSlotSize() int64 {
	return int64(m.blockSize + slotOverhead)
}

// AllocateBlocks issues n fresh block ids using strategy to place them
// across disks (spec.md §6 "allocate_blocks(strategy, range)").
func (m *DiskManager) AllocateBlocks(strategy AllocStrategy, n int) ([]ID, error) {
	if strategy == nil {
		strategy = NewRoundRobinStrategy()
	}
	ids := make([]ID, n)
	for i := 0; i < n; i++ {
		disk := strategy.NextDisk(len(m.disks))
		d := m.disks[disk]
		d.mu.Lock()
		var slot int64
		if k := len(d.free); k > 0 {
			slot = d.free[k-1]
			d.free = d.free[:k-1]
		} else {
			slot = d.nextSlot
			d.nextSlot++
		}
		d.mu.Unlock()
		ids[i] = ID{Disk: disk, slot: slot}
	}
	m.metrics.observeAllocate(n)
	return ids, nil
}

// FreeBlocks releases block ids back to their disk's free list (spec.md
// §6 "free_blocks(range)"). Freeing the same id twice is a caller error
// the source guards against by clearing descriptor id lists before
// transferring ownership (spec.md §3 "Invariants"); this manager does not
// itself detect double-frees, matching the "opaque handle" contract.
func (m *DiskManager) FreeBlocks(ids []ID) error {
	for _, id := range ids {
		d := m.disks[id.Disk]
		d.mu.Lock()
		d.free = append(d.free, id.slot)
		d.mu.Unlock()
	}
	m.metrics.observeFree(len(ids))
	m.logger.Debug("blocks freed", "count", len(ids))
	return nil
}

// asyncRequest is the goroutine-backed Request implementation: the I/O
// itself is issued in a goroutine at construction time, and Wait blocks
// on its completion channel. This is the Go-idiomatic analogue of the
// source's foxxll::request objects (spec.md §6).
type asyncRequest struct {
	done      chan struct{}
	err       error
	cancelled atomic.Bool
}

func newAsyncRequest() *asyncRequest {
	return &asyncRequest{done: make(chan struct{})}
}

func (r *asyncRequest) finish(err error) {
	r.err = err
	close(r.done)
}

func (r *asyncRequest) Wait() error {
	<-r.done
	return r.err
}

// Cancel marks the request cancelled; if its I/O has not yet started it
// is skipped, matching spec.md §5's "outstanding writes ... are
// cancelled through the block manager's cancel primitive" on Sorter.Clear.
// A request whose I/O already started runs to completion regardless
// (best-effort, per spec.md §5 "Cancellation & timeouts").
func (r *asyncRequest) Cancel() error {
	r.cancelled.Store(true)
	return nil
}

// WriteBlock issues an asynchronous write of data to id (spec.md §6
// "block.write(bid) -> request"). len(data) must equal BlockSize().
func (m *DiskManager) WriteBlock(id ID, data []byte) (Request, error) {
	if len(data) != m.blockSize {
		return nil, fmt.Errorf("block: WriteBlock: len(data)=%d, want %d", len(data), m.blockSize)
	}
	slot, err := m.encodeSlot(data)
	if err != nil {
		return nil, err
	}
	d := m.disks[id.Disk]
	req := newAsyncRequest()
	m.metrics.requestStarted()
	go func() {
		defer m.metrics.requestFinished()
		if req.cancelled.Load() {
			req.finish(fmt.Errorf("block: write to %s cancelled", id))
			return
		}
		_, err := d.file.WriteAt(slot, id.slot*m.physicalSlotSize())
		req.finish(err)
	}()
	m.metrics.observeWrite(len(data))
	return req, nil
}

// ReadBlock issues an asynchronous read of id into dst (spec.md §6
// "block.read(bid) -> request"). len(dst) must equal BlockSize().
func (m *DiskManager) ReadBlock(id ID, dst []byte) (Request, error) {
	if len(dst) != m.blockSize {
		return nil, fmt.Errorf("block: ReadBlock: len(dst)=%d, want %d", len(dst), m.blockSize)
	}
	d := m.disks[id.Disk]
	req := newAsyncRequest()
	m.metrics.requestStarted()
	go func() {
		defer m.metrics.requestFinished()
		if req.cancelled.Load() {
			req.finish(fmt.Errorf("block: read from %s cancelled", id))
			return
		}
		slot := make([]byte, m.physicalSlotSize())
		_, err := d.file.ReadAt(slot, id.slot*m.physicalSlotSize())
		if err != nil {
			req.finish(err)
			return
		}
		req.finish(m.decodeSlot(slot, dst))
	}()
	m.metrics.observeRead(len(dst))
	return req, nil
}

// encodeSlot builds the on-disk physical slot for a block payload,
// compressing it with snappy when the manager is configured to and doing
// so shrinks the payload (compressed_wal_io.go's Append shape: compress,
// then checksum the bytes actually written).
func (m *DiskManager) encodeSlot(payload []byte) ([]byte, error) {
	flag := flagRaw
	body := payload
	if m.compress {
		compressed := snappy.Encode(nil, payload)
		if len(compressed) < len(payload) {
			flag = flagSnappy
			body = compressed
		}
	}
	if slotOverhead+len(body) > int(m.physicalSlotSize()) {
		return nil, fmt.Errorf("block: encoded payload (%d bytes) exceeds physical slot size", len(body))
	}
	slot := make([]byte, m.physicalSlotSize())
	slot[0] = flag
	binary.BigEndian.PutUint32(slot[1:5], uint32(len(body)))
	binary.BigEndian.PutUint32(slot[5:9], crc32.ChecksumIEEE(body))
	copy(slot[slotOverhead:], body)
	return slot, nil
}

// decodeSlot recovers a block payload from its physical slot into dst,
// which must have length BlockSize().
func (m *DiskManager) decodeSlot(slot []byte, dst []byte) error {
	flag := slot[0]
	n := binary.BigEndian.Uint32(slot[1:5])
	sum := binary.BigEndian.Uint32(slot[5:9])
	if int(n) > len(slot)-slotOverhead {
		return fmt.Errorf("block: corrupt slot: encoded length %d exceeds slot capacity", n)
	}
	body := slot[slotOverhead : slotOverhead+int(n)]
	if crc32.ChecksumIEEE(body) != sum {
		return fmt.Errorf("block: checksum mismatch reading block")
	}
	switch flag {
	case flagRaw:
		if len(body) != len(dst) {
			return fmt.Errorf("block: raw payload length %d, want %d", len(body), len(dst))
		}
		copy(dst, body)
	case flagSnappy:
		decoded, err := snappy.Decode(nil, body)
		if err != nil {
			return fmt.Errorf("block: snappy decode: %w", err)
		}
		if len(decoded) != len(dst) {
			return fmt.Errorf("block: decoded payload length %d, want %d", len(decoded), len(dst))
		}
		copy(dst, decoded)
	default:
		return fmt.Errorf("block: unknown slot flag %d", flag)
	}
	return nil
}

// Close removes every disk's backing file. Safe to call once all
// outstanding requests have been waited on.
func (m *DiskManager) Close() error {
	var firstErr error
	for _, d := range m.disks {
		if d == nil || d.file == nil {
			continue
		}
		name := d.file.Name()
		if err := d.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := os.Remove(name); err != nil && firstErr == nil && !os.IsNotExist(err) {
			firstErr = err
		}
	}
	return firstErr
}
