package elm327

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMetrics_Initialization(t *testing.T) {
	s := newTestService(t)

	if s.metrics == nil {
		t.Fatal("Metrics not initialized")
	}
	if !s.IsMetricsEnabled() {
		t.Fatal("Metrics should be enabled by default")
	}
	if s.bufferPool == nil {
		t.Fatal("Buffer pool not initialized")
	}
}

func TestMetrics_EnableDisable(t *testing.T) {
	h := &mockHandle{}
	s := openTestService(t, h)

	s.DisableMetrics()
	if s.IsMetricsEnabled() {
		t.Fatal("Metrics should be disabled")
	}
	if _, err := s.Write([]byte("AT Z\r")); err != nil {
		t.Fatal(err)
	}
	if got := s.metrics.WriteOperations.Load(); got != 0 {
		t.Fatalf("disabled metrics recorded %d writes", got)
	}

	s.EnableMetrics()
	if _, err := s.Write([]byte("AT Z\r")); err != nil {
		t.Fatal(err)
	}
	if got := s.metrics.WriteOperations.Load(); got != 1 {
		t.Fatalf("expected 1 write, got %d", got)
	}
}

func TestMetrics_ConnectionLifecycle(t *testing.T) {
	s := openTestService(t, &mockHandle{})

	m := s.GetMetrics()
	if m.ConnectionAttempts.Load() != 1 || m.SuccessfulConnects.Load() != 1 {
		t.Fatalf("expected 1 attempt and 1 connect, got %d/%d", m.ConnectionAttempts.Load(), m.SuccessfulConnects.Load())
	}
	if m.CurrentConnections.Load() != 1 {
		t.Fatalf("expected 1 current connection, got %d", m.CurrentConnections.Load())
	}

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if m.Disconnections.Load() != 1 || m.CurrentConnections.Load() != 0 {
		t.Fatal("disconnect not recorded")
	}
	if m.TotalUptime.Load() <= 0 {
		t.Fatal("uptime not accumulated")
	}
}

func TestMetrics_SuccessfulWriteAndRead(t *testing.T) {
	h := &mockHandle{toRead: []byte("41 0C 1A F8\r\r>")}
	s := openTestService(t, h)

	if _, err := s.Write([]byte("01 0C\r")); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 64)
	if _, err := s.Read(buf); err != nil {
		t.Fatal(err)
	}

	m := s.GetMetrics()
	if m.SuccessfulWrites.Load() != 1 || m.BytesWritten.Load() != 6 {
		t.Fatalf("write metrics: %d writes, %d bytes", m.SuccessfulWrites.Load(), m.BytesWritten.Load())
	}
	if m.SuccessfulReads.Load() != 1 || m.BytesRead.Load() != 14 {
		t.Fatalf("read metrics: %d reads, %d bytes", m.SuccessfulReads.Load(), m.BytesRead.Load())
	}
	if m.MaxWriteTime.Load() < m.TotalWriteTime.Load()/m.WriteOperations.Load() {
		t.Fatal("max write time below the average")
	}
}

func TestMetrics_FailedWrite(t *testing.T) {
	h := &mockHandle{writeErr: errors.New("connection reset by peer")}
	s := openTestService(t, h)

	for range 4 {
		if _, err := s.Write([]byte("01 0D\r")); err == nil {
			t.Fatal("expected write error")
		}
	}

	m := s.GetMetrics()
	if m.WriteErrors.Load() != 4 || m.HardwareErrors.Load() != 4 {
		t.Fatalf("expected 4 write and hardware errors, got %d/%d", m.WriteErrors.Load(), m.HardwareErrors.Load())
	}
	if m.ConsecutiveFailures.Load() != 4 {
		t.Fatalf("expected 4 consecutive failures, got %d", m.ConsecutiveFailures.Load())
	}
	if m.ErrorRate.Load() != 1000 {
		t.Fatalf("expected error rate 1000 per thousand, got %d", m.ErrorRate.Load())
	}

	snap := s.GetMetricsSnapshot()
	if snap.HealthStatus != string(HealthStatusUnhealthy) {
		t.Fatalf("expected unhealthy, got %s", snap.HealthStatus)
	}

	h.mu.Lock()
	h.writeErr = nil
	h.mu.Unlock()
	if _, err := s.Write([]byte("01 0D\r")); err != nil {
		t.Fatal(err)
	}
	if m.ConsecutiveFailures.Load() != 0 {
		t.Fatal("a success resets consecutive failures")
	}
}

func TestMetrics_TimeoutClassification(t *testing.T) {
	s := openTestService(t, &mockHandle{})
	s.recordWriteMetrics(0, ErrWriteTimeout, time.Millisecond)

	m := s.GetMetrics()
	if m.WriteTimeouts.Load() != 1 || m.TimeoutErrors.Load() != 1 {
		t.Fatal("write timeout not classified")
	}
	if m.HardwareErrors.Load() != 0 {
		t.Fatal("timeouts are not hardware errors")
	}
}

func TestMetrics_BufferValidationErrors(t *testing.T) {
	s := openTestService(t, &mockHandle{})
	_, _ = s.Write([]byte{})
	_, _ = s.Read(nil)

	if got := s.GetMetrics().BufferErrors.Load(); got < 2 {
		t.Fatalf("expected buffer errors to be counted, got %d", got)
	}
}

func TestMetrics_Snapshot(t *testing.T) {
	h := &mockHandle{toRead: []byte("OK\r\r>")}
	s := openTestService(t, h)

	if _, err := s.Write([]byte("AT E0\r")); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 16)
	if _, err := s.Read(buf); err != nil {
		t.Fatal(err)
	}

	snap := s.GetMetricsSnapshot()
	if !snap.IsConnected {
		t.Fatal("snapshot should report connected")
	}
	if snap.HealthStatus != string(HealthStatusHealthy) {
		t.Fatalf("expected healthy, got %s", snap.HealthStatus)
	}
	if snap.ReadSuccessRate != 100 || snap.WriteSuccessRate != 100 {
		t.Fatalf("unexpected success rates %.1f/%.1f", snap.ReadSuccessRate, snap.WriteSuccessRate)
	}
	if snap.TotalReads != 1 || snap.TotalWrites != 1 {
		t.Fatalf("unexpected totals %d/%d", snap.TotalReads, snap.TotalWrites)
	}
	if snap.HealthScore <= 0 {
		t.Fatal("healthy link should score above zero")
	}

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	snap = s.GetMetricsSnapshot()
	if snap.HealthStatus != string(HealthStatusDown) || snap.HealthScore != 0 {
		t.Fatalf("closed link should be down, got %s %.0f", snap.HealthStatus, snap.HealthScore)
	}
}

func TestAssessHealthStatus(t *testing.T) {
	tests := []struct {
		name string
		snap MetricsSnapshot
		want HealthStatus
	}{
		{"down", MetricsSnapshot{}, HealthStatusDown},
		{"healthy", MetricsSnapshot{IsConnected: true}, HealthStatusHealthy},
		{"error rate", MetricsSnapshot{IsConnected: true, ErrorRate: 20}, HealthStatusDegraded},
		{"timeouts", MetricsSnapshot{IsConnected: true, TimeoutRate: 25}, HealthStatusDegraded},
		{"failing", MetricsSnapshot{IsConnected: true, ConsecutiveFailures: 6}, HealthStatusUnhealthy},
		{"mostly errors", MetricsSnapshot{IsConnected: true, ErrorRate: 60}, HealthStatusUnhealthy},
	}
	for _, tt := range tests {
		if got := assessHealthStatus(&tt.snap); got != tt.want {
			t.Fatalf("%s: got %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestMetricsBroadcaster_StartStop(t *testing.T) {
	s := openTestService(t, &mockHandle{})

	ch, err := s.StartMetricsBroadcasting(5 * time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	select {
	case snap := <-ch:
		if !snap.IsConnected {
			t.Fatal("expected a connected snapshot")
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot broadcast")
	}

	s.StopMetricsBroadcasting()
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel not closed after stop")
		}
	}
}

func TestMetricsBroadcaster_Validation(t *testing.T) {
	if _, err := (&Service{}).StartMetricsBroadcasting(time.Second); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	s := newTestService(t)
	if _, err := s.StartMetricsBroadcasting(0); err == nil {
		t.Fatal("expected error for zero interval")
	}
}

func TestMetricsBroadcaster_DropsWhenFull(t *testing.T) {
	calls := 0
	mb := NewMetricsBroadcaster(1, time.Hour, func() *MetricsSnapshot {
		calls++
		return &MetricsSnapshot{HealthStatus: string(HealthStatusHealthy)}
	})
	mb.Broadcast() // not started
	if calls != 0 {
		t.Fatal("broadcast before start")
	}

	mb.Start()
	defer mb.Stop()
	mb.Broadcast()
	mb.Broadcast()
	if len(mb.C()) != 1 {
		t.Fatalf("expected one buffered snapshot, got %d", len(mb.C()))
	}
}

func TestMetrics_BufferPoolIntegration(t *testing.T) {
	s := newTestService(t)

	buf := s.bufferPool.Get()
	s.bufferPool.Put(buf)
	_ = s.bufferPool.Get()

	stats := s.GetBufferPoolStats()
	if stats.Gets != 2 || stats.Puts != 1 {
		t.Fatalf("unexpected pool stats %+v", stats)
	}
	m := s.GetMetrics()
	if m.BufferPoolHits.Load()+m.BufferPoolMisses.Load() != 2 {
		t.Fatal("pool gets not mirrored into metrics")
	}
}

func TestBufferPool_PutIgnoresForeignBuffers(t *testing.T) {
	bp := NewBufferPool(64, nil)
	bp.Put(make([]byte, 32))
	if bp.Stats().Puts != 0 {
		t.Fatal("buffers of another size must not enter the pool")
	}

	buf := bp.Get()
	buf[0] = '>'
	bp.Put(buf)
	if bp.Stats().Puts != 1 {
		t.Fatal("expected one put")
	}
	if (PoolStats{}).HitRatio() != 0 {
		t.Fatal("empty pool hit ratio should be zero")
	}
}

func TestMetrics_ConcurrentAccess(t *testing.T) {
	h := &mockHandle{}
	s := openTestService(t, h)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				_, _ = s.Write([]byte("01 0C\r"))
				_ = s.GetMetricsSnapshot()
			}
		}()
	}
	wg.Wait()

	if got := s.GetMetrics().WriteOperations.Load(); got != 400 {
		t.Fatalf("expected 400 writes, got %d", got)
	}
}

func BenchmarkBufferPool(b *testing.B) {
	bp := NewBufferPool(256, nil)
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			buf := bp.Get()
			bp.Put(buf)
		}
	})
}

func BenchmarkPortExec(b *testing.B) {
	mp := newMockPort()
	p := newPort(mp, DefaultConfig("mock"))
	defer p.Close()

	ctx := b.Context()
	b.ReportAllocs()
	for b.Loop() {
		mp.readCh <- []byte("41 0C 1A F8\r\r>")
		if _, err := p.Exec(ctx, "01 0C"); err != nil {
			b.Fatal(err)
		}
	}
}
