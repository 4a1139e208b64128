package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics for the audiobook service
type Metrics struct {
	registry *prometheus.Registry

	// Pipeline
	Extractions       *prometheus.CounterVec
	ExtractDuration   prometheus.Histogram
	Syntheses         *prometheus.CounterVec
	SynthesisDuration prometheus.Histogram
	Transcodes        *prometheus.CounterVec
	AudioBytes        prometheus.Histogram
	AudioSeconds      prometheus.Histogram
	JobsEnqueued      prometheus.Counter

	// HTTP API
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates all metrics and registers them on a fresh registry, together
// with the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Extractions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "audiobook_extractions_total",
			Help: "Document extractions by backend and result",
		}, []string{"backend", "result"}),
		ExtractDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "audiobook_extraction_duration_seconds",
			Help:    "Time spent extracting text from documents",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		Syntheses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "audiobook_syntheses_total",
			Help: "Speech synthesis calls by backend and result",
		}, []string{"backend", "result"}),
		SynthesisDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "audiobook_synthesis_duration_seconds",
			Help:    "Time spent waiting for speech synthesis",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		Transcodes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "audiobook_transcodes_total",
			Help: "PCM to WAVE transcodes by result",
		}, []string{"result"}),
		AudioBytes: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "audiobook_audio_bytes",
			Help:    "Size of produced WAVE files",
			Buckets: prometheus.ExponentialBuckets(64*1024, 2, 10),
		}),
		AudioSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "audiobook_audio_duration_seconds",
			Help:    "Playback length of produced WAVE files",
			Buckets: prometheus.ExponentialBuckets(5, 2, 10),
		}),
		JobsEnqueued: f.NewCounter(prometheus.CounterOpts{
			Name: "audiobook_jobs_enqueued_total",
			Help: "Synthesis tasks handed to the background queue",
		}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "audiobook_http_requests_total",
			Help: "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "audiobook_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) ObserveExtraction(backend string, started time.Time, err error) {
	m.Extractions.WithLabelValues(backend, result(err)).Inc()
	m.ExtractDuration.Observe(time.Since(started).Seconds())
}

func (m *Metrics) ObserveSynthesis(backend string, started time.Time, err error) {
	m.Syntheses.WithLabelValues(backend, result(err)).Inc()
	m.SynthesisDuration.Observe(time.Since(started).Seconds())
}

func (m *Metrics) ObserveTranscode(size int, duration time.Duration, err error) {
	m.Transcodes.WithLabelValues(result(err)).Inc()
	if err == nil {
		m.AudioBytes.Observe(float64(size))
		m.AudioSeconds.Observe(duration.Seconds())
	}
}

func (m *Metrics) ObserveRequest(method, route string, status int, took time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(took.Seconds())
}
