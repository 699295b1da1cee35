package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/dasmlab/nllbgate/pkg/languages"
	"github.com/dasmlab/nllbgate/pkg/lifecycle"
	"github.com/dasmlab/nllbgate/pkg/service"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Translator is the translation use case served over HTTP.
type Translator interface {
	Translate(ctx context.Context, req service.Request) (*service.Result, error)
	Languages() []languages.Listing
}

// EngineController exposes the engine lifecycle to the HTTP API.
type EngineController interface {
	TriggerLoad(ctx context.Context) (lifecycle.Outcome, error)
	State() lifecycle.State
	Probe() error
}

// HTTPServer provides the translation API.
type HTTPServer struct {
	translator Translator
	engines    EngineController
	logger     *logrus.Logger
	hostname   string
	router     *gin.Engine
	srv        *http.Server
}

// NewHTTPServer creates a new HTTP server listening on addr.
func NewHTTPServer(translator Translator, engines EngineController, logger *logrus.Logger, addr string) *HTTPServer {
	if logger == nil {
		logger = logrus.New()
	}
	hostname, _ := os.Hostname()

	s := &HTTPServer{
		translator: translator,
		engines:    engines,
		logger:     logger,
		hostname:   hostname,
	}
	s.router = s.routes()
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *HTTPServer) routes() *gin.Engine {
	r := gin.New()

	r.Use(requestID())
	r.Use(accessLog(s.logger))
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	r.GET("/", s.handleStatus)
	r.POST("/load_models", s.handleLoadModels)
	r.POST("/translate", s.handleTranslate)
	r.GET("/language_pairs", s.handleLanguagePairs)

	r.GET("/health", s.handleHealth)
	r.GET("/ready", s.handleReady)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

// Handler returns the HTTP handler, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called.
func (s *HTTPServer) Start() error {
	s.logger.WithFields(logrus.Fields{
		"addr": s.srv.Addr,
	}).Info("Starting HTTP server for translation API")

	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

type statusResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	ModelLoaded bool   `json:"model_loaded"`
	Model       string `json:"model"`
	EngineState string `json:"engine_state"`
	Reason      string `json:"reason,omitempty"`
	Hostname    string `json:"hostname,omitempty"`
}

type loadResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Model   string `json:"model,omitempty"`
	Info    string `json:"info,omitempty"`
}

type translateRequest struct {
	Text       string `json:"text"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
}

type translateResponse struct {
	Status         string `json:"status"`
	OriginalText   string `json:"original_text"`
	TranslatedText string `json:"translated_text"`
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
}

type pairNames struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

type languagePairsResponse struct {
	AvailablePairs map[string]pairNames `json:"available_pairs"`
	Count          int                  `json:"count"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// handleStatus reports whether the model is loaded.
func (s *HTTPServer) handleStatus(c *gin.Context) {
	state := s.engines.State()
	c.JSON(http.StatusOK, statusResponse{
		Status:      "running",
		Message:     "Translation API is active",
		ModelLoaded: state.Phase == lifecycle.Ready,
		Model:       state.Model,
		EngineState: state.Phase.String(),
		Reason:      state.Reason(),
		Hostname:    s.hostname,
	})
}

// handleLoadModels loads the engine and waits for the outcome.
func (s *HTTPServer) handleLoadModels(c *gin.Context) {
	outcome, err := s.engines.TriggerLoad(c.Request.Context())
	if err != nil {
		if errors.Is(err, lifecycle.ErrClosed) {
			c.JSON(http.StatusServiceUnavailable, errorResponse{Detail: "Server is shutting down"})
			return
		}
		reason := err.Error()
		var loadErr *lifecycle.LoadError
		if errors.As(err, &loadErr) {
			reason = loadErr.Err.Error()
		}
		c.JSON(http.StatusInternalServerError, errorResponse{Detail: "Failed to load models: " + reason})
		return
	}

	switch outcome {
	case lifecycle.OutcomeAlreadyLoaded:
		c.JSON(http.StatusOK, loadResponse{
			Status:  string(outcome),
			Message: "Models are already loaded",
		})
	case lifecycle.OutcomeAlreadyLoading:
		c.JSON(http.StatusAccepted, loadResponse{
			Status:  string(outcome),
			Message: "Models are being loaded by another request",
		})
	default:
		c.JSON(http.StatusOK, loadResponse{
			Status:  string(outcome),
			Message: "Translation models loaded successfully",
			Model:   s.engines.State().Model,
			Info:    "NLLB-200 supports 200 languages with high quality",
		})
	}
}

// handleTranslate translates one text.
func (s *HTTPServer) handleTranslate(c *gin.Context) {
	var body translateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Detail: "Invalid request body: " + err.Error()})
		return
	}

	res, err := s.translator.Translate(c.Request.Context(), service.Request{
		Text:       body.Text,
		SourceLang: body.SourceLang,
		TargetLang: body.TargetLang,
	})
	if err != nil {
		c.JSON(statusFor(err), errorResponse{Detail: err.Error()})
		return
	}

	c.JSON(http.StatusOK, translateResponse{
		Status:         "success",
		OriginalText:   res.OriginalText,
		TranslatedText: res.TranslatedText,
		SourceLanguage: res.SourceLanguage,
		TargetLanguage: res.TargetLanguage,
	})
}

// handleLanguagePairs lists the supported directions.
func (s *HTTPServer) handleLanguagePairs(c *gin.Context) {
	list := s.translator.Languages()
	pairs := make(map[string]pairNames, len(list))
	for _, l := range list {
		pairs[l.Key] = pairNames{Source: l.SourceName, Target: l.TargetName}
	}
	c.JSON(http.StatusOK, languagePairsResponse{AvailablePairs: pairs, Count: len(list)})
}

// handleHealth is a liveness probe; it does not depend on the engine.
func (s *HTTPServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// handleReady is a readiness probe; it succeeds only while the engine is
// Ready and, for engines that can tell, still alive.
func (s *HTTPServer) handleReady(c *gin.Context) {
	state := s.engines.State()
	if state.Phase != lifecycle.Ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": state.Phase.String(),
			"reason": state.Reason(),
		})
		return
	}
	if err := s.engines.Probe(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"reason": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// statusFor maps a translation error to an HTTP status code.
func statusFor(err error) int {
	var (
		validationErr  *service.ValidationError
		unsupportedErr *service.UnsupportedPairError
		notReadyErr    *service.EngineNotReadyError
	)
	switch {
	case errors.As(err, &validationErr), errors.As(err, &unsupportedErr), errors.As(err, &notReadyErr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
