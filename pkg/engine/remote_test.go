package engine

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newSidecar(t *testing.T, unloads *atomic.Int32) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/load", func(w http.ResponseWriter, r *http.Request) {
		var req loadRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			return
		}
		if req.Model == "missing/model" {
			http.Error(w, "model not found", http.StatusInternalServerError)
			return
		}
		assert.Equal(t, PrecisionFloat16, req.Precision)
		w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("/generate", func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			return
		}
		if req.Text == "boom" {
			http.Error(w, "generation exploded", http.StatusInternalServerError)
			return
		}
		assert.Equal(t, DefaultGenerationParams, req.GenerationParams)
		json.NewEncoder(w).Encode(generateResponse{TranslatedText: req.TargetCode + ":" + req.Text})
	})
	mux.HandleFunc("/unload", func(w http.ResponseWriter, r *http.Request) {
		unloads.Add(1)
		w.Write([]byte(`{}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRemoteEngine(t *testing.T) {
	var unloads atomic.Int32
	srv := newSidecar(t, &unloads)

	loader := NewRemoteLoader(srv.URL+"/", time.Second, quietLogger())
	eng, err := loader.Load(context.Background(), "facebook/nllb-200-distilled-600M", PrecisionFloat16)
	require.NoError(t, err)

	out, err := eng.Generate(context.Background(), "Hello", "eng_Latn", "fra_Latn", DefaultGenerationParams)
	require.NoError(t, err)
	assert.Equal(t, "fra_Latn:Hello", out)

	_, err = eng.Generate(context.Background(), "boom", "eng_Latn", "fra_Latn", DefaultGenerationParams)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 500: generation exploded")

	require.NoError(t, eng.Close())
	assert.Equal(t, int32(1), unloads.Load())
}

func TestRemoteLoadFailure(t *testing.T) {
	var unloads atomic.Int32
	srv := newSidecar(t, &unloads)

	loader := NewRemoteLoader(srv.URL, time.Second, quietLogger())
	_, err := loader.Load(context.Background(), "missing/model", PrecisionFloat16)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not found")
}

func TestRemoteLoadUnreachable(t *testing.T) {
	loader := NewRemoteLoader("http://127.0.0.1:1", time.Second, quietLogger())
	_, err := loader.Load(context.Background(), "nllb", PrecisionFloat16)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
}
