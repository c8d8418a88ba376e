// Package metrics exposes Prometheus instrumentation for device handshakes,
// the storage cache and file uploads.
//
// Each Metrics owns its registry, so a process can run several clients (or
// tests) without duplicate-registration panics. Components accept nil and
// skip instrumentation.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mmcdole/teensyrom/internal/protocol"
)

// Metrics implements protocol.Observer.
type Metrics struct {
	reg *prometheus.Registry

	handshakes        *prometheus.CounterVec
	handshakeDuration *prometheus.HistogramVec
	cachedDirectories prometheus.Gauge
	cachedFiles       prometheus.Gauge
	uploadedBytes     prometheus.Counter
	transfers         *prometheus.CounterVec
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	return &Metrics{
		reg: reg,
		handshakes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "teensyrom_handshakes_total",
				Help: "Total number of device handshakes by command and outcome",
			},
			[]string{"command", "status"},
		),
		handshakeDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "teensyrom_handshake_duration_seconds",
				Help: "Duration of device handshakes in seconds",
				Buckets: []float64{
					0.01, // 10ms
					0.05, // 50ms
					0.1,  // 100ms
					0.5,  // 500ms
					1,    // 1s
					5,    // 5s
					10,   // 10s
				},
			},
			[]string{"command"},
		),
		cachedDirectories: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "teensyrom_cache_directories",
				Help: "Number of directories held in the storage cache",
			},
		),
		cachedFiles: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "teensyrom_cache_files",
				Help: "Number of files held in the storage cache",
			},
		),
		uploadedBytes: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "teensyrom_uploaded_bytes_total",
				Help: "Total bytes sent to the device",
			},
		),
		transfers: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "teensyrom_transfers_total",
				Help: "Total number of auto-transferred files by outcome",
			},
			[]string{"status"},
		),
	}
}

func (m *Metrics) ObserveHandshake(command string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.handshakes.WithLabelValues(command, Status(err)).Inc()
	m.handshakeDuration.WithLabelValues(command).Observe(elapsed.Seconds())
}

// SetCacheSize records the current cache population.
func (m *Metrics) SetCacheSize(directories, files int) {
	if m == nil {
		return
	}
	m.cachedDirectories.Set(float64(directories))
	m.cachedFiles.Set(float64(files))
}

// ObserveTransfer records one auto-transferred file.
func (m *Metrics) ObserveTransfer(size int64, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.transfers.WithLabelValues("error").Inc()
		return
	}
	m.transfers.WithLabelValues("ok").Inc()
	m.uploadedBytes.Add(float64(size))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Status maps a handshake error onto a low-cardinality label value.
func Status(err error) string {
	var (
		timeout    *protocol.HandshakeTimeoutError
		rejected   *protocol.HandshakeRejectedError
		unexpected *protocol.UnexpectedResponseError
		malformed  *protocol.MalformedResponseError
		framing    *protocol.ProtocolFramingError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.As(err, &timeout):
		return "timeout"
	case errors.As(err, &rejected):
		return "rejected"
	case errors.As(err, &unexpected):
		return "unexpected"
	case errors.As(err, &malformed):
		return "malformed"
	case errors.As(err, &framing):
		return "framing"
	default:
		return "error"
	}
}
