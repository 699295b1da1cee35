package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dasmlab/nllbgate/pkg/config"
	"github.com/dasmlab/nllbgate/pkg/engine"
	"github.com/dasmlab/nllbgate/pkg/languages"
	"github.com/dasmlab/nllbgate/pkg/lifecycle"
	"github.com/dasmlab/nllbgate/pkg/metrics"
	"github.com/dasmlab/nllbgate/pkg/server"
	"github.com/dasmlab/nllbgate/pkg/service"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

func main() {
	if err := newApp().rootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries state shared by the commands.
type app struct {
	v      *viper.Viper
	cfg    *config.Config
	logger *logrus.Logger
}

func newApp() *app {
	return &app{v: config.New()}
}

func (a *app) rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nllbgate",
		Short: "HTTP gateway serving NLLB-200 translation",
		Long: "nllbgate exposes an NLLB-200 translation model over HTTP. The model is loaded\n" +
			"on demand with POST /load_models and shared by all translation requests.",
		SilenceUsage:      true,
		PersistentPreRunE: a.loadConfig,
		RunE: func(*cobra.Command, []string) error {
			return a.serve()
		},
	}

	flags := cmd.PersistentFlags()
	flags.String("config", "", "Path to a config file (yaml, json or toml)")

	flags.String("host", a.v.GetString("host"), "HTTP listen host")
	flags.Int("http-port", a.v.GetInt("http_port"), "HTTP server port")
	flags.Int("grpc-port", a.v.GetInt("grpc_port"), "gRPC health server port (0 disables it)")
	flags.Duration("shutdown-timeout", a.v.GetDuration("shutdown_timeout"), "Graceful shutdown timeout")

	flags.String("engine", a.v.GetString("engine"), "Translation engine: subprocess or remote")
	flags.String("model", a.v.GetString("model"), "Model identifier to load")
	flags.String("precision", a.v.GetString("precision"), "Weight precision: float16, bfloat16 or float32")
	flags.String("python-path", a.v.GetString("python_path"), "Python interpreter for the subprocess engine")
	flags.String("worker-script", a.v.GetString("worker_script"), "Worker script for the subprocess engine")
	flags.String("remote-url", a.v.GetString("remote_url"), "Base URL of the inference sidecar for the remote engine")
	flags.Duration("remote-timeout", a.v.GetDuration("remote_timeout"), "Per-call timeout for the remote engine")
	flags.Bool("load-on-start", a.v.GetBool("load_on_start"), "Load the model in the background at startup")
	flags.Duration("load-timeout", a.v.GetDuration("load_timeout"), "Bound on a model load (0 for none)")
	flags.Duration("inference-timeout", a.v.GetDuration("inference_timeout"), "Bound on a single translation (0 for none)")
	flags.Bool("concurrent-inference", a.v.GetBool("concurrent_inference"), "Allow overlapping translations on the engine")

	flags.String("log-level", a.v.GetString("log_level"), "Log level: debug, info, warn, error")
	flags.String("log-format", a.v.GetString("log_format"), "Log format: text or json")
	flags.String("pairs-file", a.v.GetString("pairs_file"), "YAML language-pair table replacing the built-in one")

	bindFlags(a.v, flags)

	cmd.AddCommand(a.pairsCommand())
	return cmd
}

// bindFlags binds every flag to the viper key of the same name with
// dashes replaced by underscores.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		_ = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
	})
}

func (a *app) loadConfig(cmd *cobra.Command, _ []string) error {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		a.v.SetConfigFile(path)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = newLogger(cfg.Log)
	return nil
}

func newLogger(cfg config.LogConfig) *logrus.Logger {
	logger := logrus.New()
	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logger.WithError(err).Warn("Invalid log level, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

func (a *app) registry() (*languages.Registry, error) {
	if a.cfg.PairsFile == "" {
		return languages.NewDefault(), nil
	}
	return languages.LoadFile(a.cfg.PairsFile)
}

func (a *app) pairsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pairs",
		Short: "Print the supported language pairs as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry, err := a.registry()
			if err != nil {
				return err
			}

			type pair struct {
				Key    string `yaml:"key"`
				Source string `yaml:"source"`
				Target string `yaml:"target"`
			}
			list := registry.List()
			out := make([]pair, 0, len(list))
			for _, l := range list {
				out = append(out, pair{Key: l.Key, Source: l.SourceName, Target: l.TargetName})
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(map[string]any{"count": len(out), "pairs": out}); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

// serve runs the gateway until a signal arrives or a server fails.
func (a *app) serve() error {
	cfg, logger := a.cfg, a.logger

	logger.WithFields(logrus.Fields{
		"http_port": cfg.Server.HTTPPort,
		"grpc_port": cfg.Server.GRPCPort,
		"engine":    cfg.Engine.Type,
		"model":     cfg.Engine.Model,
		"precision": cfg.Engine.Precision,
		"log_level": logger.GetLevel().String(),
	}).Info("Starting nllbgate")

	if logger.GetLevel() < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	registry, err := a.registry()
	if err != nil {
		return fmt.Errorf("load language pairs: %w", err)
	}
	logger.WithFields(logrus.Fields{
		"pairs": registry.Len(),
		"file":  cfg.PairsFile,
	}).Info("Language pairs registered")

	loader, err := engine.NewLoader(engine.Config{
		Engine:     cfg.Engine.Type,
		PythonPath: cfg.Engine.PythonPath,
		ScriptPath: cfg.Engine.WorkerScript,
		BaseURL:    cfg.Engine.RemoteURL,
		Timeout:    cfg.Engine.RemoteTimeout,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("create engine loader: %w", err)
	}

	recorder := metrics.NewRecorder(string(cfg.Engine.Type))
	manager, err := lifecycle.NewManager(lifecycle.Config{
		ModelID:             cfg.Engine.Model,
		Precision:           cfg.Engine.Precision,
		Loader:              loader,
		LoadTimeout:         cfg.Engine.LoadTimeout,
		InferenceTimeout:    cfg.Engine.InferenceTimeout,
		ConcurrentInference: cfg.Engine.ConcurrentInference,
		Metrics:             recorder,
		Logger:              logger,
	})
	if err != nil {
		return fmt.Errorf("create engine manager: %w", err)
	}

	translationService := service.NewTranslationService(registry, manager, recorder, logger)
	httpServer := server.NewHTTPServer(translationService, manager, logger,
		net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.HTTPPort)))

	errChan := make(chan error, 2)
	go func() {
		if err := httpServer.Start(); err != nil {
			errChan <- fmt.Errorf("http server: %w", err)
		}
	}()

	var healthServer *server.HealthServer
	if cfg.Server.GRPCPort > 0 {
		healthServer = server.NewHealthServer(logger)
		manager.Subscribe(healthServer.ObserveEngine)
		go func() {
			addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.GRPCPort))
			if err := healthServer.ListenAndServe(addr); err != nil {
				errChan <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	if cfg.Engine.LoadOnStart {
		go func() {
			outcome, err := manager.TriggerLoad(context.Background())
			if err != nil {
				logger.WithError(err).Error("Startup model load failed; retry with POST /load_models")
				return
			}
			logger.WithFields(logrus.Fields{
				"outcome": outcome,
			}).Info("Startup model load finished")
		}()
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var runErr error
	select {
	case runErr = <-errChan:
		logger.WithError(runErr).Error("Server error, shutting down")
	case sig := <-sigChan:
		logger.WithFields(logrus.Fields{
			"signal": sig.String(),
		}).Info("Received signal, shutting down gracefully...")
	}

	ctx, cancel := shutdownContext(cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("HTTP server did not shut down cleanly")
	}
	if healthServer != nil {
		healthServer.Stop(ctx)
	}
	if err := manager.Close(); err != nil {
		logger.WithError(err).Warn("Failed to release translation engine")
	}

	logger.Info("Server stopped")
	return runErr
}

func shutdownContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), timeout)
}
