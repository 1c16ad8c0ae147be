package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry     *prometheus.Registry
	filesTotal   *prometheus.CounterVec
	fileDuration *prometheus.HistogramVec
	activeFiles  prometheus.Gauge
	outputBytes  prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		filesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelbatch_files_total",
			Help: "Total files attempted by final status and the stage they stopped in.",
		}, []string{"status", "stage"}),
		fileDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixelbatch_file_duration_seconds",
			Help:    "Per-file pipeline duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),
		activeFiles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pixelbatch_active_files",
			Help: "Files currently inside the pipeline.",
		}),
		outputBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelbatch_output_bytes_total",
			Help: "Total bytes written to output files.",
		}),
	}

	registry.MustRegister(
		m.filesTotal,
		m.fileDuration,
		m.activeFiles,
		m.outputBytes,
	)
	return m
}

// Begin marks a file as in flight; the returned func must be called once.
func (m *Metrics) Begin() func() {
	m.activeFiles.Inc()
	return m.activeFiles.Dec
}

func (m *Metrics) Observe(status, stage string, duration time.Duration, bytes int64) {
	m.filesTotal.WithLabelValues(status, stage).Inc()
	m.fileDuration.WithLabelValues(status).Observe(duration.Seconds())
	if bytes > 0 {
		m.outputBytes.Add(float64(bytes))
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
