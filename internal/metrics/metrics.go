// Package metrics exports poll and link metrics to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/atomic"

	"github.com/Station-Manager/elm327"
	"github.com/Station-Manager/elm327/pid"
)

const namespace = "obd"

// Recorder owns a registry and the poll metrics in it. It implements
// session.Instrumentation.
type Recorder struct {
	Registry *prometheus.Registry

	CommandsTotal   *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
	TickDuration    prometheus.Histogram
	Connected       prometheus.Gauge
	Connections     *prometheus.CounterVec
	ReadingValue    *prometheus.GaugeVec

	up   atomic.Bool
	mu   sync.Mutex
	link *linkCollector
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		Registry: reg,
		CommandsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands sent to the adapter by parameter and status",
		}, []string{"parameter", "status"}),
		CommandDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Round trip time of one adapter command",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"parameter"}),
		TickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_tick_duration_seconds",
			Help:      "Time to poll every selected parameter once",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5},
		}),
		Connected: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected",
			Help:      "1 while a link to the adapter is open",
		}),
		Connections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Connection attempts by result",
		}, []string{"result"}),
		ReadingValue: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reading_value",
			Help:      "Last decoded value of each polled parameter",
		}, []string{"parameter", "unit"}),
	}
}

func status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case pid.IsNoData(err):
		return "no_data"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

func (r *Recorder) CommandDone(name string, elapsed time.Duration, err error) {
	r.CommandsTotal.WithLabelValues(name, status(err)).Inc()
	r.CommandDuration.WithLabelValues(name).Observe(elapsed.Seconds())
}

func (r *Recorder) TickDone(elapsed time.Duration) {
	r.TickDuration.Observe(elapsed.Seconds())
}

// Connection counts attempts and tracks the connected gauge. A down event
// after an up is a disconnect, otherwise a failed attempt.
func (r *Recorder) Connection(up bool) {
	wasUp := r.up.Swap(up)
	switch {
	case up:
		r.Connected.Set(1)
		r.Connections.WithLabelValues("ok").Inc()
	case wasUp:
		r.Connected.Set(0)
	default:
		r.Connections.WithLabelValues("failed").Inc()
	}
}

// WatchLink exports the snapshot source's link counters. A later call
// replaces the source.
func (r *Recorder) WatchLink(source func() *elm327.MetricsSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.link == nil {
		r.link = newLinkCollector()
		r.Registry.MustRegister(r.link)
	}
	r.link.setSource(source)
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.Registry, promhttp.HandlerOpts{Registry: r.Registry})
}

// Serve exposes /metrics on addr until ctx is done.
func (r *Recorder) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
