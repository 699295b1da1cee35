package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Engine lifecycle metrics
	engineState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nllbgate_engine_state",
			Help: "Current engine lifecycle state (1 for the active state, 0 otherwise)",
		},
		[]string{"engine", "state"},
	)

	engineLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nllbgate_engine_loads_total",
			Help: "Total number of engine load attempts",
		},
		[]string{"engine", "status"},
	)

	engineLoadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nllbgate_engine_load_duration_seconds",
			Help:    "Duration of engine loads in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"engine", "status"},
	)

	// Translation request metrics
	translationRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nllbgate_translation_requests_total",
			Help: "Total number of translation requests by outcome",
		},
		[]string{"engine", "status"},
	)

	translationRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nllbgate_translation_request_duration_seconds",
			Help:    "Duration of translation requests in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
		},
		[]string{"engine", "status"},
	)

	translationRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nllbgate_translation_request_size_bytes",
			Help:    "Size of translation request text in bytes",
			Buckets: []float64{16, 64, 256, 1024, 4096, 16384, 65536},
		},
		[]string{"engine"},
	)

	translationResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nllbgate_translation_response_size_bytes",
			Help:    "Size of translated text in bytes",
			Buckets: []float64{16, 64, 256, 1024, 4096, 16384, 65536},
		},
		[]string{"engine"},
	)

	translationPairsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nllbgate_translation_pairs_total",
			Help: "Successful translations per language pair",
		},
		[]string{"engine", "pair"},
	)

	// Time spent waiting for the inference critical section
	inferenceWaitTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nllbgate_inference_wait_seconds",
			Help:    "Time spent waiting for exclusive access to the engine",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1.0, 2.0, 5.0, 10.0},
		},
		[]string{"engine"},
	)
)

// Request outcome labels.
const (
	StatusSuccess     = "success"
	StatusInvalid     = "invalid"
	StatusUnsupported = "unsupported"
	StatusNotReady    = "not_ready"
	StatusError       = "error"
)

// Recorder records metrics for one engine, labelled by engine type.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	engine string
}

// NewRecorder creates a recorder for the given engine label.
func NewRecorder(engine string) *Recorder {
	return &Recorder{engine: engine}
}

// SetEngineState marks state as the active lifecycle state.
func (r *Recorder) SetEngineState(state string, all []string) {
	if r == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		engineState.WithLabelValues(r.engine, s).Set(v)
	}
}

// RecordLoad records one engine load attempt.
func (r *Recorder) RecordLoad(duration time.Duration, success bool) {
	if r == nil {
		return
	}
	status := StatusSuccess
	if !success {
		status = StatusError
	}
	engineLoadsTotal.WithLabelValues(r.engine, status).Inc()
	engineLoadDuration.WithLabelValues(r.engine, status).Observe(duration.Seconds())
}

// RecordInferenceWait records time spent waiting to use the engine.
func (r *Recorder) RecordInferenceWait(duration time.Duration) {
	if r == nil {
		return
	}
	inferenceWaitTime.WithLabelValues(r.engine).Observe(duration.Seconds())
}

// RecordTranslation records one translation request with its outcome status.
// pair and responseSize are only recorded on success.
func (r *Recorder) RecordTranslation(duration time.Duration, status, pair string, requestSize, responseSize int) {
	if r == nil {
		return
	}
	translationRequestsTotal.WithLabelValues(r.engine, status).Inc()
	translationRequestDuration.WithLabelValues(r.engine, status).Observe(duration.Seconds())
	translationRequestSize.WithLabelValues(r.engine).Observe(float64(requestSize))
	if status == StatusSuccess {
		translationResponseSize.WithLabelValues(r.engine).Observe(float64(responseSize))
		translationPairsTotal.WithLabelValues(r.engine, pair).Inc()
	}
}
