package elm327

import (
	"sync"
	"sync/atomic"
	"time"
)

// MetricsSnapshot is a point-in-time view of link health.
type MetricsSnapshot struct {
	Timestamp   time.Time
	IsConnected bool

	ConnectionSuccess   float64
	ReadSuccessRate     float64
	WriteSuccessRate    float64
	AverageReadLatency  time.Duration
	AverageWriteLatency time.Duration
	MaxReadLatency      time.Duration
	MaxWriteLatency     time.Duration
	BytesPerSecond      float64
	TimeoutRate         float64
	ErrorRate           float64
	ConsecutiveFailures int64
	BufferPoolHitRatio  float64
	UptimeSeconds       float64

	TotalReads        int64
	TotalWrites       int64
	TotalBytesRead    int64
	TotalBytesWritten int64
	TotalErrors       int64
	TotalTimeouts     int64

	HealthStatus string
	HealthScore  float64
}

// Metrics holds the raw link counters. Durations are nanoseconds and
// timestamps Unix seconds unless noted.
type Metrics struct {
	ConnectionAttempts  atomic.Int64
	SuccessfulConnects  atomic.Int64
	ConnectionFailures  atomic.Int64
	Disconnections      atomic.Int64
	CurrentConnections  atomic.Int64
	LastConnectTime     atomic.Int64
	LastDisconnectTime  atomic.Int64
	TotalUptime         atomic.Int64
	ConnectionStartTime atomic.Int64 // Unix nanoseconds

	ReadOperations  atomic.Int64
	SuccessfulReads atomic.Int64
	ReadTimeouts    atomic.Int64
	ReadErrors      atomic.Int64
	BytesRead       atomic.Int64
	TotalReadTime   atomic.Int64
	MaxReadTime     atomic.Int64
	LastReadTime    atomic.Int64

	WriteOperations  atomic.Int64
	SuccessfulWrites atomic.Int64
	WriteTimeouts    atomic.Int64
	WriteErrors      atomic.Int64
	BytesWritten     atomic.Int64
	TotalWriteTime   atomic.Int64
	MaxWriteTime     atomic.Int64
	LastWriteTime    atomic.Int64

	BufferPoolHits   atomic.Int64
	BufferPoolMisses atomic.Int64

	InitializationErrors atomic.Int64
	ConfigurationErrors  atomic.Int64
	PortValidationErrors atomic.Int64
	BufferErrors         atomic.Int64
	TimeoutErrors        atomic.Int64
	HardwareErrors       atomic.Int64

	ConsecutiveFailures atomic.Int64
	LastErrorTime       atomic.Int64
	ErrorRate           atomic.Int64 // errors per thousand operations
}

// HealthStatus summarises a snapshot for display.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusDown      HealthStatus = "down"
)

// MetricsBroadcaster publishes snapshots on a channel at a fixed interval.
// Slow consumers miss snapshots rather than block the link.
type MetricsBroadcaster struct {
	snapshots chan MetricsSnapshot
	source    func() *MetricsSnapshot
	interval  time.Duration
	enabled   atomic.Bool
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewMetricsBroadcaster creates a broadcaster reading from source.
func NewMetricsBroadcaster(channelSize int, interval time.Duration, source func() *MetricsSnapshot) *MetricsBroadcaster {
	return &MetricsBroadcaster{
		snapshots: make(chan MetricsSnapshot, channelSize),
		source:    source,
		interval:  interval,
		stopCh:    make(chan struct{}),
	}
}

// Start begins broadcasting. A second call is a no-op.
func (mb *MetricsBroadcaster) Start() {
	if !mb.enabled.CompareAndSwap(false, true) {
		return
	}

	ticker := time.NewTicker(mb.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-mb.stopCh:
				return
			case <-ticker.C:
				mb.Broadcast()
			}
		}
	}()
}

// Stop stops broadcasting and closes the channel.
func (mb *MetricsBroadcaster) Stop() {
	if mb.enabled.CompareAndSwap(true, false) {
		mb.stopOnce.Do(func() {
			close(mb.stopCh)
			close(mb.snapshots)
		})
	}
}

// Broadcast sends one snapshot now if there is room.
func (mb *MetricsBroadcaster) Broadcast() {
	if !mb.enabled.Load() {
		return
	}
	select {
	case mb.snapshots <- *mb.source():
	default:
	}
}

// C returns the snapshot channel.
func (mb *MetricsBroadcaster) C() <-chan MetricsSnapshot {
	return mb.snapshots
}

func ratio(part, whole int64, empty float64) float64 {
	if whole == 0 {
		return empty
	}
	return float64(part) / float64(whole) * 100
}

func (m *Metrics) connectionSuccessRate() float64 {
	return ratio(m.SuccessfulConnects.Load(), m.ConnectionAttempts.Load(), 100)
}

func (m *Metrics) readSuccessRate() float64 {
	return ratio(m.SuccessfulReads.Load(), m.ReadOperations.Load(), 100)
}

func (m *Metrics) writeSuccessRate() float64 {
	return ratio(m.SuccessfulWrites.Load(), m.WriteOperations.Load(), 100)
}

func (m *Metrics) timeoutRate() float64 {
	return ratio(m.ReadTimeouts.Load()+m.WriteTimeouts.Load(), m.ReadOperations.Load()+m.WriteOperations.Load(), 0)
}

func (m *Metrics) bufferPoolHitRatio() float64 {
	return ratio(m.BufferPoolHits.Load(), m.BufferPoolHits.Load()+m.BufferPoolMisses.Load(), 100)
}

func average(total, count int64) time.Duration {
	if count == 0 {
		return 0
	}
	return time.Duration(total / count)
}

// connectedFor returns seconds since the current connection started, or 0.
func (m *Metrics) connectedFor(isConnected bool, now time.Time) float64 {
	start := m.ConnectionStartTime.Load()
	if !isConnected || start == 0 {
		return 0
	}
	d := now.UnixNano() - start
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Second)
}

func (m *Metrics) throughput(isConnected bool, now time.Time) float64 {
	secs := m.connectedFor(isConnected, now)
	if secs == 0 {
		return 0
	}
	return float64(m.BytesRead.Load()+m.BytesWritten.Load()) / secs
}

// assessHealthStatus grades a snapshot. A vehicle that is switched off
// produces a run of NO DATA answers, which are not link failures, so only
// transport errors count here.
func assessHealthStatus(s *MetricsSnapshot) HealthStatus {
	switch {
	case !s.IsConnected:
		return HealthStatusDown
	case s.ErrorRate > 50 || s.ConsecutiveFailures > 5:
		return HealthStatusUnhealthy
	case s.ErrorRate > 10 || s.TimeoutRate > 20 || s.ConsecutiveFailures > 3:
		return HealthStatusDegraded
	}
	return HealthStatusHealthy
}

func healthScore(s *MetricsSnapshot) float64 {
	if !s.IsConnected {
		return 0
	}
	score := 100 - s.ErrorRate*2 - s.TimeoutRate - float64(s.ConsecutiveFailures)*10
	return max(score, 0)
}
