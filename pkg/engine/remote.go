package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultRemoteURL is the default base URL of the inference sidecar.
	DefaultRemoteURL = "http://localhost:5000"
	// DefaultRemoteTimeout bounds each HTTP call. Model loads on the sidecar can
	// take minutes, so this is generous.
	DefaultRemoteTimeout = 10 * time.Minute
)

// RemoteLoader loads the model on an inference sidecar reachable over HTTP.
type RemoteLoader struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewRemoteLoader creates a loader for the sidecar at baseURL.
func NewRemoteLoader(baseURL string, timeout time.Duration, logger *logrus.Logger) *RemoteLoader {
	if baseURL == "" {
		baseURL = DefaultRemoteURL
	}
	if timeout <= 0 {
		timeout = DefaultRemoteTimeout
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &RemoteLoader{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type loadRequest struct {
	Model     string    `json:"model"`
	Precision Precision `json:"precision"`
}

type generateRequest struct {
	Text       string `json:"text"`
	SourceCode string `json:"src_lang"`
	TargetCode string `json:"tgt_lang"`
	GenerationParams
}

type generateResponse struct {
	TranslatedText string `json:"translated_text"`
}

// Load asks the sidecar to load modelID and returns an engine bound to it.
func (l *RemoteLoader) Load(ctx context.Context, modelID string, precision Precision) (Engine, error) {
	l.logger.WithFields(logrus.Fields{
		"base_url":  l.baseURL,
		"model":     modelID,
		"precision": precision,
	}).Info("Requesting model load from inference sidecar")

	startTime := time.Now()
	if err := l.post(ctx, "/load", loadRequest{Model: modelID, Precision: precision}, nil); err != nil {
		return nil, fmt.Errorf("load model on sidecar: %w", err)
	}

	l.logger.WithFields(logrus.Fields{
		"model":       modelID,
		"duration_ms": time.Since(startTime).Milliseconds(),
	}).Info("Inference sidecar reports model loaded")

	return &RemoteEngine{loader: l, model: modelID}, nil
}

// post sends a JSON body to path and decodes a JSON response into out (if non-nil).
func (l *RemoteLoader) post(ctx context.Context, path string, body, out any) error {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(body); err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	url := l.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, buf)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		l.logger.WithError(err).WithFields(logrus.Fields{
			"url": url,
		}).Error("Inference sidecar request failed")
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		l.logger.WithFields(logrus.Fields{
			"url":         url,
			"status_code": resp.StatusCode,
			"response":    string(bodyBytes),
		}).Error("Inference sidecar returned non-OK status")
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// RemoteEngine generates translations on the inference sidecar.
type RemoteEngine struct {
	loader *RemoteLoader
	model  string
}

// Generate translates text on the sidecar.
func (e *RemoteEngine) Generate(ctx context.Context, text, sourceCode, targetCode string, params GenerationParams) (string, error) {
	e.loader.logger.WithFields(logrus.Fields{
		"source_code": sourceCode,
		"target_code": targetCode,
		"text_length": len(text),
	}).Debug("Generating translation on inference sidecar")

	var out generateResponse
	err := e.loader.post(ctx, "/generate", generateRequest{
		Text:             text,
		SourceCode:       sourceCode,
		TargetCode:       targetCode,
		GenerationParams: params,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.TranslatedText, nil
}

// Close asks the sidecar to release the model. Failures are logged only.
func (e *RemoteEngine) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.loader.post(ctx, "/unload", loadRequest{Model: e.model}, nil); err != nil {
		e.loader.logger.WithError(err).Warn("Failed to unload model on inference sidecar")
	}
	return nil
}
