package actorloop

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-actorloop/internal/slab"
)

// Metrics is a snapshot of runtime statistics, see [WithMetrics].
type Metrics struct {
	// Passes summarises the duration of domain run passes.
	Passes LatencyMetrics
	// Messages holds cumulative message counters.
	Messages MessageCounts
	// TPS is the rate of delivered messages per second, over the last ten
	// seconds.
	TPS float64
	// MessageMemory and ProcessMemory describe the shared allocators.
	MessageMemory AllocatorMetrics
	ProcessMemory AllocatorMetrics
	// ExternalCached is the number of free message chunks cached for sends
	// from outside the loop.
	ExternalCached int
}

// AllocatorMetrics is a view of one slab zone.
type AllocatorMetrics struct {
	// ChunkSize is the cache-line aligned size of one object.
	ChunkSize int
	// LivePages is the number of pages currently allocated.
	LivePages int
	// FreedPages counts pages handed back since the runtime was created.
	FreedPages int
	// FreeChunks is the number of free objects on live pages, excluding
	// those cached by domains.
	FreeChunks int
}

func allocatorMetrics(s slab.Stats) AllocatorMetrics {
	return AllocatorMetrics{
		ChunkSize:  s.ChunkSize,
		LivePages:  s.AllocatedPages - s.FreedPages,
		FreedPages: s.FreedPages,
		FreeChunks: s.FreeChunks,
	}
}

// LatencyMetrics holds streaming percentile estimates.
type LatencyMetrics struct {
	P50   time.Duration
	P90   time.Duration
	P99   time.Duration
	Max   time.Duration
	Mean  time.Duration
	Count int
}

// MessageCounts are cumulative since the runtime was created.
type MessageCounts struct {
	// Sent counts messages accepted by Send, from processes or outside.
	Sent uint64
	// Delivered counts messages placed in a process inbox. Each broadcast
	// counts once per recipient.
	Delivered uint64
	// Dropped counts messages freed undelivered.
	Dropped uint64
	// Flushed counts outbox batches moved to another domain.
	Flushed uint64
	// Ingress counts wakeups requested from domain drivers.
	Ingress uint64
}

const (
	tpsWindow = 10 * time.Second
	tpsBucket = 100 * time.Millisecond
)

// metricsRecorder is shared by all workers.
type metricsRecorder struct {
	mu        sync.Mutex
	p50       *quantile
	p90       *quantile
	p99       *quantile
	tps       *rateWindow
	sum       time.Duration
	max       time.Duration
	count     int
	sent      atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
	flushed   atomic.Uint64
	ingress   atomic.Uint64
}

func newMetricsRecorder() *metricsRecorder {
	return &metricsRecorder{
		p50: newQuantile(0.50),
		p90: newQuantile(0.90),
		p99: newQuantile(0.99),
		tps: newRateWindow(tpsWindow, tpsBucket),
	}
}

// passStats are accumulated by a domain during a pass, without locking.
type passStats struct {
	sent      uint64
	delivered uint64
	dropped   uint64
	flushed   uint64
}

func (m *metricsRecorder) recordPass(d time.Duration, s passStats) {
	m.sent.Add(s.sent)
	m.delivered.Add(s.delivered)
	m.dropped.Add(s.dropped)
	m.flushed.Add(s.flushed)

	m.mu.Lock()
	defer m.mu.Unlock()
	v := float64(d)
	m.p50.observe(v)
	m.p90.observe(v)
	m.p99.observe(v)
	m.sum += d
	m.max = max(m.max, d)
	m.count++
	m.tps.add(time.Now(), s.delivered)
}

func (m *metricsRecorder) snapshot() Metrics {
	s := Metrics{
		Messages: MessageCounts{
			Sent:      m.sent.Load(),
			Delivered: m.delivered.Load(),
			Dropped:   m.dropped.Load(),
			Flushed:   m.flushed.Load(),
			Ingress:   m.ingress.Load(),
		},
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s.Passes = LatencyMetrics{
		P50:   time.Duration(m.p50.value()),
		P90:   time.Duration(m.p90.value()),
		P99:   time.Duration(m.p99.value()),
		Max:   m.max,
		Count: m.count,
	}
	if m.count != 0 {
		s.Passes.Mean = m.sum / time.Duration(m.count)
	}
	s.TPS = m.tps.rate(time.Now())
	return s
}

// rateWindow counts events in fixed buckets over a rolling window.
type rateWindow struct {
	buckets []uint64
	start   time.Time // start of the newest bucket
	window  time.Duration
	bucket  time.Duration
	head    int
}

func newRateWindow(window, bucket time.Duration) *rateWindow {
	return &rateWindow{
		buckets: make([]uint64, int(window/bucket)),
		window:  window,
		bucket:  bucket,
		start:   time.Now().Truncate(bucket),
	}
}

// advance rotates the ring so that the newest bucket covers now.
func (r *rateWindow) advance(now time.Time) {
	elapsed := int(now.Sub(r.start) / r.bucket)
	if elapsed <= 0 {
		return
	}
	if elapsed >= len(r.buckets) {
		clear(r.buckets)
		r.head = 0
	} else {
		for range elapsed {
			r.head = (r.head + 1) % len(r.buckets)
			r.buckets[r.head] = 0
		}
	}
	r.start = r.start.Add(time.Duration(elapsed) * r.bucket)
}

func (r *rateWindow) add(now time.Time, n uint64) {
	r.advance(now)
	r.buckets[r.head] += n
}

func (r *rateWindow) rate(now time.Time) float64 {
	r.advance(now)
	var total uint64
	for _, v := range r.buckets {
		total += v
	}
	return float64(total) / r.window.Seconds()
}
