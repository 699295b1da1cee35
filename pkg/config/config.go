package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/dasmlab/nllbgate/pkg/engine"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. NLLBGATE_HTTP_PORT.
const EnvPrefix = "NLLBGATE"

// DefaultModel is the model served when none is configured.
const DefaultModel = "facebook/nllb-200-distilled-600M"

// Config holds all configuration for the gateway.
type Config struct {
	Server ServerConfig
	Engine EngineConfig
	Log    LogConfig
	// PairsFile is an optional YAML language-pair table replacing the built-in one.
	PairsFile string
}

// ServerConfig holds network configuration.
type ServerConfig struct {
	Host            string
	HTTPPort        int
	GRPCPort        int // 0 disables the gRPC health server
	ShutdownTimeout time.Duration
}

// EngineConfig holds model and engine configuration.
type EngineConfig struct {
	Type                engine.EngineType
	Model               string
	Precision           engine.Precision
	PythonPath          string
	WorkerScript        string
	RemoteURL           string
	RemoteTimeout       time.Duration
	LoadOnStart         bool
	LoadTimeout         time.Duration
	InferenceTimeout    time.Duration
	ConcurrentInference bool
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string
	Format string // text or json
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("http_port", 8000)
	v.SetDefault("grpc_port", 50051)
	v.SetDefault("shutdown_timeout", 30*time.Second)

	v.SetDefault("engine", string(engine.EngineSubprocess))
	v.SetDefault("model", DefaultModel)
	v.SetDefault("precision", string(engine.PrecisionFloat16))
	v.SetDefault("python_path", engine.DefaultPythonPath)
	v.SetDefault("worker_script", engine.DefaultWorkerScript)
	v.SetDefault("remote_url", engine.DefaultRemoteURL)
	v.SetDefault("remote_timeout", engine.DefaultRemoteTimeout)
	v.SetDefault("load_on_start", false)
	v.SetDefault("load_timeout", 0)
	v.SetDefault("inference_timeout", 0)
	v.SetDefault("concurrent_inference", false)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("pairs_file", "")
}

// New returns a viper instance with defaults and environment binding applied.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads and validates configuration from v.
func Load(v *viper.Viper) (*Config, error) {
	engineType, err := engine.ParseEngineType(v.GetString("engine"))
	if err != nil {
		return nil, err
	}
	precision, err := engine.ParsePrecision(v.GetString("precision"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:            v.GetString("host"),
			HTTPPort:        v.GetInt("http_port"),
			GRPCPort:        v.GetInt("grpc_port"),
			ShutdownTimeout: v.GetDuration("shutdown_timeout"),
		},
		Engine: EngineConfig{
			Type:                engineType,
			Model:               strings.TrimSpace(v.GetString("model")),
			Precision:           precision,
			PythonPath:          v.GetString("python_path"),
			WorkerScript:        v.GetString("worker_script"),
			RemoteURL:           v.GetString("remote_url"),
			RemoteTimeout:       v.GetDuration("remote_timeout"),
			LoadOnStart:         v.GetBool("load_on_start"),
			LoadTimeout:         v.GetDuration("load_timeout"),
			InferenceTimeout:    v.GetDuration("inference_timeout"),
			ConcurrentInference: v.GetBool("concurrent_inference"),
		},
		Log: LogConfig{
			Level:  v.GetString("log_level"),
			Format: strings.ToLower(v.GetString("log_format")),
		},
		PairsFile: v.GetString("pairs_file"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid http port: %d", c.Server.HTTPPort)
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		return fmt.Errorf("invalid grpc port: %d", c.Server.GRPCPort)
	}
	if c.Server.GRPCPort == c.Server.HTTPPort {
		return fmt.Errorf("http and grpc ports must differ (both %d)", c.Server.HTTPPort)
	}
	if c.Engine.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.Engine.LoadTimeout < 0 || c.Engine.InferenceTimeout < 0 || c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format: %s (supported: text, json)", c.Log.Format)
	}
	return nil
}
