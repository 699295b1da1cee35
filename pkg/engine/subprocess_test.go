package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHelperProcess is not a real test. It stands in for the Python worker
// when re-executed by helperLoader.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("NLLBGATE_WANT_HELPER_PROCESS") != "1" {
		return
	}

	model := ""
	args := os.Args
	for i, a := range args {
		if a == "--model" && i+1 < len(args) {
			model = args[i+1]
		}
	}

	switch model {
	case "broken":
		fmt.Println(`{"ready": false, "error": "model not found"}`)
		os.Exit(1)
	case "crash":
		os.Exit(3)
	case "exit-after-ready":
		fmt.Println(`{"ready": true, "device": "cpu"}`)
		os.Exit(0)
	}
	fmt.Println(`{"ready": true, "device": "cpu"}`)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		var req workerRequest
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			continue
		}
		resp := workerResponse{ID: req.ID, Success: true}
		switch req.Text {
		case "fail":
			resp = workerResponse{ID: req.ID, Error: "CUDA out of memory"}
		case "slow":
			time.Sleep(300 * time.Millisecond)
			resp.TranslatedText = "slow"
		default:
			resp.TranslatedText = fmt.Sprintf("[%s->%s beams=%d max=%d] %s",
				req.SourceCode, req.TargetCode, req.BeamWidth, req.MaxLength, req.Text)
		}
		out, _ := json.Marshal(resp)
		fmt.Println(string(out))
	}
	os.Exit(0)
}

func helperLoader(t *testing.T) *SubprocessLoader {
	t.Helper()
	t.Setenv("NLLBGATE_WANT_HELPER_PROCESS", "1")

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	l := NewSubprocessLoader(os.Args[0], "", logger)
	l.Args = []string{"-test.run=TestHelperProcess", "--"}
	return l
}

func TestSubprocessEngineGenerate(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	eng, err := helperLoader(t).Load(ctx, "nllb-test", PrecisionFloat16)
	require.NoError(t, err)
	defer eng.Close()

	out, err := eng.Generate(ctx, "Hello", "eng_Latn", "fra_Latn", DefaultGenerationParams)
	require.NoError(t, err)
	assert.Equal(t, "[eng_Latn->fra_Latn beams=5 max=512] Hello", out)

	_, err = eng.Generate(ctx, "fail", "eng_Latn", "fra_Latn", DefaultGenerationParams)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CUDA out of memory")

	// the engine remains usable after a failed generation
	out, err = eng.Generate(ctx, "again", "eng_Latn", "deu_Latn", DefaultGenerationParams)
	require.NoError(t, err)
	assert.Contains(t, out, "again")
}

func TestSubprocessEngineDiscardsLateReplies(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	eng, err := helperLoader(t).Load(ctx, "nllb-test", PrecisionFloat32)
	require.NoError(t, err)
	defer eng.Close()

	shortCtx, shortCancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer shortCancel()
	_, err = eng.Generate(shortCtx, "slow", "eng_Latn", "fra_Latn", DefaultGenerationParams)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	out, err := eng.Generate(ctx, "next", "eng_Latn", "fra_Latn", DefaultGenerationParams)
	require.NoError(t, err)
	assert.Contains(t, out, "next")
}

func TestSubprocessLoadFailures(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := helperLoader(t).Load(ctx, "broken", PrecisionFloat16)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not found")

	_, err = helperLoader(t).Load(ctx, "crash", PrecisionFloat16)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker exited before becoming ready")
}

func TestSubprocessLoadMissingExecutable(t *testing.T) {
	l := NewSubprocessLoader("/nonexistent/python3", "worker.py", nil)
	_, err := l.Load(context.Background(), "nllb", PrecisionFloat16)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start worker process")
}

func TestSubprocessEngineCloseIsIdempotent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	eng, err := helperLoader(t).Load(ctx, "nllb-test", PrecisionFloat16)
	require.NoError(t, err)

	require.NoError(t, eng.Close())
	require.NoError(t, eng.Close())

	_, err = eng.Generate(ctx, "Hello", "eng_Latn", "fra_Latn", DefaultGenerationParams)
	require.Error(t, err)
}

func TestSubprocessEngineAliveDetectsDeadWorker(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	eng, err := helperLoader(t).Load(ctx, "nllb-test", PrecisionFloat16)
	require.NoError(t, err)
	prober, ok := eng.(Prober)
	require.True(t, ok)
	assert.NoError(t, prober.Alive())
	require.NoError(t, eng.Close())
	assert.EqualError(t, prober.Alive(), "engine closed")

	eng, err = helperLoader(t).Load(ctx, "exit-after-ready", PrecisionFloat16)
	require.NoError(t, err)
	defer eng.Close()

	prober = eng.(Prober)
	require.Eventually(t, func() bool { return prober.Alive() != nil }, 5*time.Second, 10*time.Millisecond)
	assert.Contains(t, prober.Alive().Error(), "worker not running")
}
