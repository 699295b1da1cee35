package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dasmlab/nllbgate/pkg/engine"
	"github.com/dasmlab/nllbgate/pkg/languages"
	"github.com/dasmlab/nllbgate/pkg/lifecycle"
	"github.com/dasmlab/nllbgate/pkg/metrics"
	"github.com/sirupsen/logrus"
)

// LoadAction is the prerequisite named in EngineNotReadyError.
const LoadAction = "POST /load_models"

// EngineAccess is the part of the lifecycle manager the service depends on.
type EngineAccess interface {
	State() lifecycle.State
	WithEngine(ctx context.Context, fn func(ctx context.Context, eng engine.Engine) error) error
}

// Request is a single translation request.
type Request struct {
	Text       string
	SourceLang string
	TargetLang string
}

// Result is a successful translation.
type Result struct {
	OriginalText   string
	TranslatedText string
	SourceLanguage string
	TargetLanguage string
}

// TranslationService validates requests, resolves language pairs and runs
// them on the shared engine.
type TranslationService struct {
	registry *languages.Registry
	engines  EngineAccess
	params   engine.GenerationParams
	metrics  *metrics.Recorder
	logger   *logrus.Logger
}

// NewTranslationService creates a new TranslationService using the fixed
// generation policy engine.DefaultGenerationParams.
func NewTranslationService(registry *languages.Registry, engines EngineAccess, recorder *metrics.Recorder, logger *logrus.Logger) *TranslationService {
	if logger == nil {
		logger = logrus.New()
	}

	return &TranslationService{
		registry: registry,
		engines:  engines,
		params:   engine.DefaultGenerationParams,
		metrics:  recorder,
		logger:   logger,
	}
}

// Languages lists the registered directions.
func (s *TranslationService) Languages() []languages.Listing {
	return s.registry.List()
}

// Translate runs one request. Checks happen in a fixed order: request shape,
// language pair, engine readiness, then generation. Errors are one of
// *ValidationError, *UnsupportedPairError, *EngineNotReadyError or
// *EngineExecutionError.
func (s *TranslationService) Translate(ctx context.Context, req Request) (*Result, error) {
	startTime := time.Now()
	pair := languages.PairKey(req.SourceLang, req.TargetLang)

	logger := s.logger.WithFields(logrus.Fields{
		"pair":        pair,
		"text_length": len(req.Text),
	})

	res, err := s.translate(ctx, req, pair)

	duration := time.Since(startTime)
	status := outcomeStatus(err)
	responseSize := 0
	if res != nil {
		responseSize = len(res.TranslatedText)
	}
	s.metrics.RecordTranslation(duration, status, pair, len(req.Text), responseSize)

	switch status {
	case metrics.StatusSuccess:
		logger.WithField("duration_ms", duration.Milliseconds()).Info("Translation completed successfully")
	case metrics.StatusError:
		logger.WithError(err).WithField("duration_ms", duration.Milliseconds()).Error("Translation failed")
	default:
		logger.WithError(err).WithField("status", status).Warn("Translation request rejected")
	}

	return res, err
}

func (s *TranslationService) translate(ctx context.Context, req Request, pair string) (*Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, &ValidationError{Field: "text", Reason: "is required"}
	}
	if strings.TrimSpace(req.SourceLang) == "" {
		return nil, &ValidationError{Field: "source_lang", Reason: "is required"}
	}
	if strings.TrimSpace(req.TargetLang) == "" {
		return nil, &ValidationError{Field: "target_lang", Reason: "is required"}
	}

	entry, ok := s.registry.Resolve(req.SourceLang, req.TargetLang)
	if !ok {
		return nil, &UnsupportedPairError{Pair: pair}
	}

	if state := s.engines.State(); state.Phase != lifecycle.Ready {
		return nil, &EngineNotReadyError{State: state.Phase.String(), Action: LoadAction}
	}

	var translated string
	err := s.engines.WithEngine(ctx, func(ctx context.Context, eng engine.Engine) error {
		var err error
		translated, err = eng.Generate(ctx, req.Text, entry.SourceCode, entry.TargetCode, s.params)
		return err
	})
	if errors.Is(err, lifecycle.ErrNotReady) {
		return nil, &EngineNotReadyError{State: s.engines.State().Phase.String(), Action: LoadAction}
	}
	if err != nil {
		return nil, &EngineExecutionError{Err: err}
	}

	return &Result{
		OriginalText:   req.Text,
		TranslatedText: translated,
		SourceLanguage: entry.SourceName,
		TargetLanguage: entry.TargetName,
	}, nil
}

func outcomeStatus(err error) string {
	var (
		validationErr  *ValidationError
		unsupportedErr *UnsupportedPairError
		notReadyErr    *EngineNotReadyError
	)
	switch {
	case err == nil:
		return metrics.StatusSuccess
	case errors.As(err, &validationErr):
		return metrics.StatusInvalid
	case errors.As(err, &unsupportedErr):
		return metrics.StatusUnsupported
	case errors.As(err, &notReadyErr):
		return metrics.StatusNotReady
	default:
		return metrics.StatusError
	}
}
