package block

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the block manager's I/O counters, grounded on
// _examples/dd0wney-graphdb/pkg/metrics/init_storage.go's
// promauto.With(registry)-scoped construction: every DiskManager gets its
// own set of collectors registered against a caller-supplied registry
// rather than the global default, so multiple engines in one process
// don't collide.
type Metrics struct {
	blocksWritten   prometheus.Counter
	blocksRead      prometheus.Counter
	bytesWritten    prometheus.Counter
	bytesRead       prometheus.Counter
	blocksAllocated prometheus.Counter
	blocksFreed     prometheus.Counter
	requestsInFlight prometheus.Gauge
}

// NewMetrics registers the block manager's collectors against reg. A nil
// registry disables metrics: all recorded operations become no-ops.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		return nil
	}
	f := promauto.With(reg)
	return &Metrics{
		blocksWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "xsort_block_writes_total",
			Help: "Total number of blocks written to external storage.",
		}),
		blocksRead: f.NewCounter(prometheus.CounterOpts{
			Name: "xsort_block_reads_total",
			Help: "Total number of blocks read from external storage.",
		}),
		bytesWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "xsort_block_bytes_written_total",
			Help: "Total number of bytes written to external storage.",
		}),
		bytesRead: f.NewCounter(prometheus.CounterOpts{
			Name: "xsort_block_bytes_read_total",
			Help: "Total number of bytes read from external storage.",
		}),
		blocksAllocated: f.NewCounter(prometheus.CounterOpts{
			Name: "xsort_block_allocations_total",
			Help: "Total number of block ids allocated.",
		}),
		blocksFreed: f.NewCounter(prometheus.CounterOpts{
			Name: "xsort_block_frees_total",
			Help: "Total number of block ids freed.",
		}),
		requestsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "xsort_block_requests_in_flight",
			Help: "Number of outstanding asynchronous read/write requests.",
		}),
	}
}

func (m *Metrics) observeWrite(n int) {
	if m == nil {
		return
	}
	m.blocksWritten.Inc()
	m.bytesWritten.Add(float64(n))
}

func (m *Metrics) observeRead(n int) {
	if m == nil {
		return
	}
	m.blocksRead.Inc()
	m.bytesRead.Add(float64(n))
}

func (m *Metrics) observeAllocate(n int) {
	if m == nil {
		return
	}
	m.blocksAllocated.Add(float64(n))
}

func (m *Metrics) observeFree(n int) {
	if m == nil {
		return
	}
	m.blocksFreed.Add(float64(n))
}

func (m *Metrics) requestStarted() {
	if m == nil {
		return
	}
	m.requestsInFlight.Inc()
}

func (m *Metrics) requestFinished() {
	if m == nil {
		return
	}
	m.requestsInFlight.Dec()
}
