package profiler

import (
	"log/slog"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Profiler tracks the frame rate and sync cost of a bridge and memory statistics of the
// process. Every frame is recorded in prometheus collectors; a summary is logged at a
// configurable interval.
type Profiler struct {
	logger *slog.Logger
	reg    prometheus.Registerer
	now    func() time.Time

	frames        prometheus.Counter
	frameDuration prometheus.Histogram
	heapBytes     prometheus.Gauge
	gcPause       prometheus.Gauge

	frameCount     int
	syncTotal      time.Duration
	syncMax        time.Duration
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64
}

// NewProfiler creates a new Profiler with the provided options.
// The update interval defaults to 1 second and collectors go to a private registry.
//
// Parameters:
//   - options: functional options for profiler configuration
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(options ...ProfilerBuilderOption) *Profiler {
	p := &Profiler{
		logger:         slog.Default(),
		now:            time.Now,
		updateInterval: time.Second,
		memStats:       runtime.MemStats{},
	}

	for _, opt := range options {
		opt(p)
	}

	if p.reg == nil {
		p.reg = prometheus.NewRegistry()
	}
	p.logger = p.logger.With("component", "profiler")
	p.lastTime = p.now()

	f := promauto.With(p.reg)
	p.frames = f.NewCounter(prometheus.CounterOpts{
		Name: "oxybridge_frames_total",
		Help: "Frames synced by the bridge.",
	})
	p.frameDuration = f.NewHistogram(prometheus.HistogramOpts{
		Name:    "oxybridge_frame_sync_seconds",
		Help:    "Time spent syncing one frame, pre-frame pass plus delta reconciliation.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
	})
	p.heapBytes = f.NewGauge(prometheus.GaugeOpts{
		Name: "oxybridge_heap_alloc_bytes",
		Help: "Live heap bytes at the last profiler summary.",
	})
	p.gcPause = f.NewGauge(prometheus.GaugeOpts{
		Name: "oxybridge_gc_max_pause_seconds",
		Help: "Longest GC pause observed during the last summary interval.",
	})
	return p
}

// Tick should be called once per frame with the time the frame's sync took.
// Logs a summary when the update interval has elapsed: frames per second, mean and
// maximum sync time, heap usage, allocation rate, GC count and pause times.
//
// Parameters:
//   - syncTime: the duration of the frame's sync
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick(syncTime time.Duration) bool {
	p.frames.Inc()
	p.frameDuration.Observe(syncTime.Seconds())
	p.frameCount++
	p.syncTotal += syncTime
	p.syncMax = max(p.syncMax, syncTime)

	currentTime := p.now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	fps := float64(p.frameCount) / elapsed.Seconds()
	meanSync := p.syncTotal / time.Duration(p.frameCount)

	runtime.ReadMemStats(&p.memStats)
	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
	allocRateMB := float64(allocDelta) / 1024 / 1024 / elapsed.Seconds()

	// PauseNs is a circular buffer of the last 256 pauses
	gcCount := p.memStats.NumGC
	var lastPause, maxPause time.Duration
	if gcCount > 0 {
		lastPause = time.Duration(p.memStats.PauseNs[(gcCount-1)%256])
		startIdx := p.lastGCCount
		if gcCount-startIdx > 256 {
			startIdx = gcCount - 256
		}
		for i := startIdx; i < gcCount; i++ {
			maxPause = max(maxPause, time.Duration(p.memStats.PauseNs[i%256]))
		}
	}

	p.heapBytes.Set(float64(p.memStats.Alloc))
	p.gcPause.Set(maxPause.Seconds())

	p.logger.Info("frame stats",
		"fps", fps,
		"sync_mean", meanSync,
		"sync_max", p.syncMax,
		"heap_mb", float64(p.memStats.Alloc)/1024/1024,
		"alloc_rate_mb_s", allocRateMB,
		"gc", gcCount,
		"gc_last_pause", lastPause,
		"gc_max_pause", maxPause,
		"sys_mb", float64(p.memStats.Sys)/1024/1024,
	)

	p.frameCount = 0
	p.syncTotal = 0
	p.syncMax = 0
	p.lastTime = currentTime
	p.lastGCCount = gcCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}
