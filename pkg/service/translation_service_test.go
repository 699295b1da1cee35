package service

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"

	"github.com/dasmlab/nllbgate/pkg/engine"
	"github.com/dasmlab/nllbgate/pkg/languages"
	"github.com/dasmlab/nllbgate/pkg/lifecycle"
	"github.com/dasmlab/nllbgate/pkg/metrics"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEngine returns a fixed translation and records what it was asked.
type stubEngine struct {
	output string
	err    error
	calls  atomic.Int32

	lastSource string
	lastTarget string
	lastParams engine.GenerationParams
}

func (e *stubEngine) Generate(_ context.Context, _ string, sourceCode, targetCode string, params engine.GenerationParams) (string, error) {
	e.calls.Add(1)
	e.lastSource, e.lastTarget, e.lastParams = sourceCode, targetCode, params
	if e.err != nil {
		return "", e.err
	}
	return e.output, nil
}

func (e *stubEngine) Close() error { return nil }

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newService(t *testing.T, eng *stubEngine, load bool) (*TranslationService, *lifecycle.Manager) {
	t.Helper()

	m, err := lifecycle.NewManager(lifecycle.Config{
		ModelID:   "facebook/nllb-200-distilled-600M",
		Precision: engine.PrecisionFloat16,
		Loader: engine.LoaderFunc(func(context.Context, string, engine.Precision) (engine.Engine, error) {
			return eng, nil
		}),
		Logger: quietLogger(),
	})
	require.NoError(t, err)

	if load {
		_, err := m.TriggerLoad(context.Background())
		require.NoError(t, err)
	}

	svc := NewTranslationService(languages.NewDefault(), m, metrics.NewRecorder("service-test"), quietLogger())
	return svc, m
}

func TestTranslateSuccess(t *testing.T) {
	eng := &stubEngine{output: "Bonjour"}
	svc, _ := newService(t, eng, true)

	res, err := svc.Translate(context.Background(), Request{Text: "Hello", SourceLang: "en", TargetLang: "fr"})
	require.NoError(t, err)
	assert.Equal(t, &Result{
		OriginalText:   "Hello",
		TranslatedText: "Bonjour",
		SourceLanguage: "English",
		TargetLanguage: "French",
	}, res)

	assert.Equal(t, "eng_Latn", eng.lastSource)
	assert.Equal(t, "fra_Latn", eng.lastTarget)
	assert.Equal(t, engine.GenerationParams{MaxLength: 512, BeamWidth: 5, EarlyStop: true}, eng.lastParams)
}

func TestTranslateBeforeLoadIsNotReady(t *testing.T) {
	eng := &stubEngine{output: "Bonjour"}
	svc, _ := newService(t, eng, false)

	_, err := svc.Translate(context.Background(), Request{Text: "Hello", SourceLang: "en", TargetLang: "fr"})
	var notReady *EngineNotReadyError
	require.ErrorAs(t, err, &notReady)
	assert.Equal(t, "unloaded", notReady.State)
	assert.Equal(t, LoadAction, notReady.Action)
	assert.Contains(t, err.Error(), "Please call POST /load_models first")
	assert.Zero(t, eng.calls.Load())
}

func TestTranslateUnsupportedPair(t *testing.T) {
	eng := &stubEngine{output: "?"}
	svc, _ := newService(t, eng, true)

	_, err := svc.Translate(context.Background(), Request{Text: "Hello", SourceLang: "xx", TargetLang: "yy"})
	var unsupported *UnsupportedPairError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "xx-yy", unsupported.Pair)
	assert.Equal(t, "Unsupported language pair: xx-yy", err.Error())
	assert.Zero(t, eng.calls.Load())
}

func TestTranslateCheckOrder(t *testing.T) {
	tests := []struct {
		name    string
		loaded  bool
		request Request
		check   func(t *testing.T, err error)
	}{
		{
			name:    "empty text wins over unsupported pair and unloaded engine",
			request: Request{Text: "", SourceLang: "xx", TargetLang: "yy"},
			check: func(t *testing.T, err error) {
				var v *ValidationError
				require.ErrorAs(t, err, &v)
				assert.Equal(t, "text", v.Field)
			},
		},
		{
			name:    "whitespace text is rejected",
			loaded:  true,
			request: Request{Text: "  \n", SourceLang: "en", TargetLang: "fr"},
			check: func(t *testing.T, err error) {
				var v *ValidationError
				require.ErrorAs(t, err, &v)
				assert.Equal(t, "text is required", v.Error())
			},
		},
		{
			name:    "missing source tag",
			loaded:  true,
			request: Request{Text: "Hello", TargetLang: "fr"},
			check: func(t *testing.T, err error) {
				var v *ValidationError
				require.ErrorAs(t, err, &v)
				assert.Equal(t, "source_lang", v.Field)
			},
		},
		{
			name:    "missing target tag",
			loaded:  true,
			request: Request{Text: "Hello", SourceLang: "en"},
			check: func(t *testing.T, err error) {
				var v *ValidationError
				require.ErrorAs(t, err, &v)
				assert.Equal(t, "target_lang", v.Field)
			},
		},
		{
			name:    "unsupported pair wins over unloaded engine",
			request: Request{Text: "Hello", SourceLang: "fr", TargetLang: "de"},
			check: func(t *testing.T, err error) {
				var u *UnsupportedPairError
				require.ErrorAs(t, err, &u)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := &stubEngine{output: "x"}
			svc, _ := newService(t, eng, tt.loaded)

			res, err := svc.Translate(context.Background(), tt.request)
			assert.Nil(t, res)
			tt.check(t, err)
			assert.Zero(t, eng.calls.Load(), "engine must not be invoked")
		})
	}
}

func TestTranslateEngineFailure(t *testing.T) {
	eng := &stubEngine{err: errors.New("CUDA out of memory")}
	svc, m := newService(t, eng, true)

	_, err := svc.Translate(context.Background(), Request{Text: "Hello", SourceLang: "en", TargetLang: "de"})
	var execErr *EngineExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "Translation failed: CUDA out of memory", err.Error())
	assert.Equal(t, int32(1), eng.calls.Load(), "failures are not retried")

	// the engine stays usable for later requests
	assert.Equal(t, lifecycle.Ready, m.State().Phase)
	eng.err = nil
	eng.output = "Hallo"
	res, err := svc.Translate(context.Background(), Request{Text: "Hello", SourceLang: "en", TargetLang: "de"})
	require.NoError(t, err)
	assert.Equal(t, "Hallo", res.TranslatedText)
}

// racingAccess reports Ready but the engine disappears before use.
type racingAccess struct{}

func (racingAccess) State() lifecycle.State {
	return lifecycle.State{Phase: lifecycle.Ready}
}

func (racingAccess) WithEngine(context.Context, func(context.Context, engine.Engine) error) error {
	return lifecycle.ErrNotReady
}

func TestTranslateNotReadyRace(t *testing.T) {
	svc := NewTranslationService(languages.NewDefault(), racingAccess{}, nil, quietLogger())

	_, err := svc.Translate(context.Background(), Request{Text: "Hello", SourceLang: "en", TargetLang: "fr"})
	var notReady *EngineNotReadyError
	require.ErrorAs(t, err, &notReady)
}

func TestLanguages(t *testing.T) {
	svc, _ := newService(t, &stubEngine{}, false)
	assert.Len(t, svc.Languages(), 54)
}
