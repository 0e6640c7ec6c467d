package elm327

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// GetMetrics returns the live counters.
func (p *Service) GetMetrics() *Metrics {
	if p.metrics == nil {
		return &Metrics{}
	}
	return p.metrics
}

// GetMetricsSnapshot derives rates, latencies and health from the counters.
func (p *Service) GetMetricsSnapshot() *MetricsSnapshot {
	now := time.Now()
	m := p.metrics
	if m == nil {
		return &MetricsSnapshot{Timestamp: now, HealthStatus: string(HealthStatusDown)}
	}

	isConnected := p.isOpen.Load()
	s := &MetricsSnapshot{
		Timestamp:   now,
		IsConnected: isConnected,

		ConnectionSuccess:   m.connectionSuccessRate(),
		ReadSuccessRate:     m.readSuccessRate(),
		WriteSuccessRate:    m.writeSuccessRate(),
		AverageReadLatency:  average(m.TotalReadTime.Load(), m.ReadOperations.Load()),
		AverageWriteLatency: average(m.TotalWriteTime.Load(), m.WriteOperations.Load()),
		MaxReadLatency:      time.Duration(m.MaxReadTime.Load()),
		MaxWriteLatency:     time.Duration(m.MaxWriteTime.Load()),
		BytesPerSecond:      m.throughput(isConnected, now),
		TimeoutRate:         m.timeoutRate(),
		ErrorRate:           float64(m.ErrorRate.Load()) / 10,
		ConsecutiveFailures: m.ConsecutiveFailures.Load(),
		BufferPoolHitRatio:  m.bufferPoolHitRatio(),
		UptimeSeconds:       m.connectedFor(isConnected, now),

		TotalReads:        m.ReadOperations.Load(),
		TotalWrites:       m.WriteOperations.Load(),
		TotalBytesRead:    m.BytesRead.Load(),
		TotalBytesWritten: m.BytesWritten.Load(),
		TotalErrors:       m.ReadErrors.Load() + m.WriteErrors.Load(),
		TotalTimeouts:     m.ReadTimeouts.Load() + m.WriteTimeouts.Load(),
	}
	s.HealthStatus = string(assessHealthStatus(s))
	s.HealthScore = healthScore(s)
	return s
}

func (p *Service) EnableMetrics() { p.metricsEnabled.Store(true) }

func (p *Service) DisableMetrics() { p.metricsEnabled.Store(false) }

func (p *Service) IsMetricsEnabled() bool { return p.metricsEnabled.Load() }

// StartMetricsBroadcasting publishes snapshots every interval until Close.
func (p *Service) StartMetricsBroadcasting(interval time.Duration) (<-chan MetricsSnapshot, error) {
	if !p.initialized.Load() {
		return nil, ErrNotInitialized
	}
	if interval <= 0 {
		return nil, fmt.Errorf("metrics interval must be positive, got %v", interval)
	}

	p.StopMetricsBroadcasting()

	size := p.getConfigSafeCopy().MetricsChannelSize
	if size <= 0 {
		size = 50
	}

	mb := NewMetricsBroadcaster(size, interval, p.GetMetricsSnapshot)
	p.configMu.Lock()
	p.metricsBroadcaster = mb
	p.configMu.Unlock()
	mb.Start()
	return mb.C(), nil
}

// StopMetricsBroadcasting stops a running broadcaster.
func (p *Service) StopMetricsBroadcasting() {
	p.configMu.Lock()
	mb := p.metricsBroadcaster
	p.metricsBroadcaster = nil
	p.configMu.Unlock()
	if mb != nil {
		mb.Stop()
	}
}

func (p *Service) recordWriteMetrics(n int, err error, d time.Duration) {
	m := p.metrics
	if m == nil {
		return
	}
	m.WriteOperations.Add(1)
	m.LastWriteTime.Store(time.Now().Unix())
	m.TotalWriteTime.Add(d.Nanoseconds())
	storeMax(&m.MaxWriteTime, d.Nanoseconds())

	if err != nil {
		m.WriteErrors.Add(1)
		p.recordErrorMetrics(err, true)
		return
	}
	m.SuccessfulWrites.Add(1)
	m.BytesWritten.Add(int64(n))
	p.resetConsecutiveFailures()
}

func (p *Service) recordReadMetrics(n int, err error, d time.Duration) {
	m := p.metrics
	if m == nil {
		return
	}
	m.ReadOperations.Add(1)
	m.LastReadTime.Store(time.Now().Unix())
	m.TotalReadTime.Add(d.Nanoseconds())
	storeMax(&m.MaxReadTime, d.Nanoseconds())

	if err != nil {
		m.ReadErrors.Add(1)
		p.recordErrorMetrics(err, false)
		return
	}
	m.SuccessfulReads.Add(1)
	m.BytesRead.Add(int64(n))
	p.resetConsecutiveFailures()
}

type maxer interface {
	Load() int64
	CompareAndSwap(old, next int64) bool
}

func storeMax(v maxer, candidate int64) {
	for {
		current := v.Load()
		if candidate <= current || v.CompareAndSwap(current, candidate) {
			return
		}
	}
}

func (p *Service) recordErrorMetrics(err error, write bool) {
	m := p.metrics
	m.LastErrorTime.Store(time.Now().Unix())

	switch {
	case errors.Is(err, context.Canceled):
		// the caller gave up; not a link fault
		return
	case errors.Is(err, ErrWriteTimeout), errors.Is(err, context.DeadlineExceeded):
		if write {
			m.WriteTimeouts.Add(1)
		} else {
			m.ReadTimeouts.Add(1)
		}
		m.TimeoutErrors.Add(1)
	case errors.Is(err, ErrInvalidBuffer), errors.Is(err, ErrBufferTooLarge):
		m.BufferErrors.Add(1)
	case errors.Is(err, ErrInvalidPortName):
		m.PortValidationErrors.Add(1)
	case errors.Is(err, ErrPortNotOpen):
	default:
		m.HardwareErrors.Add(1)
	}
	m.ConsecutiveFailures.Add(1)

	totalOps := m.ReadOperations.Load() + m.WriteOperations.Load()
	totalErrors := m.ReadErrors.Load() + m.WriteErrors.Load()
	if totalOps > 0 {
		m.ErrorRate.Store(totalErrors * 1000 / totalOps)
	}
}

func (p *Service) resetConsecutiveFailures() {
	if p.metrics != nil {
		p.metrics.ConsecutiveFailures.Store(0)
	}
}
