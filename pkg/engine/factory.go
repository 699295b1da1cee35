package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// EngineType selects how the translation model is hosted.
type EngineType string

const (
	// EngineSubprocess runs the model in a local Python worker process.
	EngineSubprocess EngineType = "subprocess"
	// EngineRemote delegates to an inference sidecar over HTTP.
	EngineRemote EngineType = "remote"
)

// Config holds configuration for creating a Loader.
type Config struct {
	// Engine specifies how the model is hosted.
	Engine EngineType
	// PythonPath and ScriptPath configure the subprocess worker.
	PythonPath string
	ScriptPath string
	// BaseURL and Timeout configure the remote sidecar client.
	BaseURL string
	Timeout time.Duration
	// Logger is the logger instance to use. If nil, a default logger is created.
	Logger *logrus.Logger
}

// NewLoader creates a Loader based on the configuration.
func NewLoader(cfg Config) (Loader, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	cfg.Logger.WithFields(logrus.Fields{
		"engine":   cfg.Engine,
		"base_url": cfg.BaseURL,
		"script":   cfg.ScriptPath,
	}).Info("Creating engine loader")

	switch cfg.Engine {
	case EngineSubprocess:
		return NewSubprocessLoader(cfg.PythonPath, cfg.ScriptPath, cfg.Logger), nil
	case EngineRemote:
		return NewRemoteLoader(cfg.BaseURL, cfg.Timeout, cfg.Logger), nil
	default:
		cfg.Logger.WithFields(logrus.Fields{
			"engine": cfg.Engine,
		}).Error("Unknown engine type")
		return nil, fmt.Errorf("unknown engine type: %s", cfg.Engine)
	}
}

// ParseEngineType parses a string into an EngineType.
func ParseEngineType(s string) (EngineType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "subprocess", "python", "local":
		return EngineSubprocess, nil
	case "remote", "http", "sidecar":
		return EngineRemote, nil
	default:
		return "", fmt.Errorf("unknown engine type: %s (supported: subprocess, remote)", s)
	}
}
