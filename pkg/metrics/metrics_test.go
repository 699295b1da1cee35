package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorderEngineState(t *testing.T) {
	r := NewRecorder("state-test")
	all := []string{"unloaded", "loading", "ready", "failed"}

	r.SetEngineState("loading", all)
	assert.Equal(t, 1.0, testutil.ToFloat64(engineState.WithLabelValues("state-test", "loading")))
	assert.Equal(t, 0.0, testutil.ToFloat64(engineState.WithLabelValues("state-test", "ready")))

	r.SetEngineState("ready", all)
	assert.Equal(t, 0.0, testutil.ToFloat64(engineState.WithLabelValues("state-test", "loading")))
	assert.Equal(t, 1.0, testutil.ToFloat64(engineState.WithLabelValues("state-test", "ready")))
}

func TestRecorderCounters(t *testing.T) {
	r := NewRecorder("counter-test")

	r.RecordLoad(2*time.Second, false)
	r.RecordLoad(3*time.Second, true)
	assert.Equal(t, 1.0, testutil.ToFloat64(engineLoadsTotal.WithLabelValues("counter-test", StatusError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(engineLoadsTotal.WithLabelValues("counter-test", StatusSuccess)))

	r.RecordTranslation(time.Millisecond, StatusSuccess, "en-fr", 5, 7)
	r.RecordTranslation(time.Millisecond, StatusNotReady, "en-fr", 5, 0)
	assert.Equal(t, 1.0, testutil.ToFloat64(translationRequestsTotal.WithLabelValues("counter-test", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(translationRequestsTotal.WithLabelValues("counter-test", StatusNotReady)))
	assert.Equal(t, 1.0, testutil.ToFloat64(translationPairsTotal.WithLabelValues("counter-test", "en-fr")))
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.SetEngineState("ready", []string{"ready"})
		r.RecordLoad(time.Second, true)
		r.RecordInferenceWait(time.Second)
		r.RecordTranslation(time.Second, StatusSuccess, "en-fr", 1, 1)
	})
}
