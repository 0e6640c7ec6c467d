package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Station-Manager/elm327"
)

// linkCollector reads an elm327 metrics snapshot at scrape time.
type linkCollector struct {
	mu     sync.RWMutex
	source func() *elm327.MetricsSnapshot

	connected    *prometheus.Desc
	health       *prometheus.Desc
	reads        *prometheus.Desc
	writes       *prometheus.Desc
	bytesRead    *prometheus.Desc
	bytesWritten *prometheus.Desc
	errors       *prometheus.Desc
	timeouts     *prometheus.Desc
	readLatency  *prometheus.Desc
	writeLatency *prometheus.Desc
	uptime       *prometheus.Desc
}

func newLinkCollector() *linkCollector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "link", name), help, labels, nil)
	}
	return &linkCollector{
		connected:    desc("up", "1 while the adapter port is open"),
		health:       desc("health_score", "Link health score from 0 to 100", "status"),
		reads:        desc("reads_total", "Read calls that returned data or an error"),
		writes:       desc("writes_total", "Write calls"),
		bytesRead:    desc("read_bytes_total", "Bytes read from the adapter"),
		bytesWritten: desc("written_bytes_total", "Bytes written to the adapter"),
		errors:       desc("errors_total", "Read and write errors"),
		timeouts:     desc("timeouts_total", "Read and write timeouts"),
		readLatency:  desc("read_latency_seconds", "Average read latency"),
		writeLatency: desc("write_latency_seconds", "Average write latency"),
		uptime:       desc("uptime_seconds", "Time the current connection has been open"),
	}
}

func (c *linkCollector) setSource(source func() *elm327.MetricsSnapshot) {
	c.mu.Lock()
	c.source = source
	c.mu.Unlock()
}

func (c *linkCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.connected, c.health, c.reads, c.writes, c.bytesRead, c.bytesWritten,
		c.errors, c.timeouts, c.readLatency, c.writeLatency, c.uptime,
	} {
		ch <- d
	}
}

func (c *linkCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	source := c.source
	c.mu.RUnlock()
	if source == nil {
		return
	}
	s := source()
	if s == nil {
		return
	}

	up := 0.0
	if s.IsConnected {
		up = 1
	}
	ch <- prometheus.MustNewConstMetric(c.connected, prometheus.GaugeValue, up)
	ch <- prometheus.MustNewConstMetric(c.health, prometheus.GaugeValue, s.HealthScore, s.HealthStatus)
	ch <- prometheus.MustNewConstMetric(c.reads, prometheus.CounterValue, float64(s.TotalReads))
	ch <- prometheus.MustNewConstMetric(c.writes, prometheus.CounterValue, float64(s.TotalWrites))
	ch <- prometheus.MustNewConstMetric(c.bytesRead, prometheus.CounterValue, float64(s.TotalBytesRead))
	ch <- prometheus.MustNewConstMetric(c.bytesWritten, prometheus.CounterValue, float64(s.TotalBytesWritten))
	ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(s.TotalErrors))
	ch <- prometheus.MustNewConstMetric(c.timeouts, prometheus.CounterValue, float64(s.TotalTimeouts))
	ch <- prometheus.MustNewConstMetric(c.readLatency, prometheus.GaugeValue, s.AverageReadLatency.Seconds())
	ch <- prometheus.MustNewConstMetric(c.writeLatency, prometheus.GaugeValue, s.AverageWriteLatency.Seconds())
	ch <- prometheus.MustNewConstMetric(c.uptime, prometheus.GaugeValue, s.UptimeSeconds)
}
