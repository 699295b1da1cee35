package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dasmlab/nllbgate/pkg/engine"
	"github.com/dasmlab/nllbgate/pkg/metrics"
	"github.com/sirupsen/logrus"
)

// Phase is a step of the engine lifecycle.
type Phase int

const (
	// Unloaded is the initial phase: no engine resources are held.
	Unloaded Phase = iota
	// Loading means a load is in flight.
	Loading
	// Ready means the engine is available for generation.
	Ready
	// Failed means the last load attempt failed; a new load may be triggered.
	Failed
)

var phaseNames = []string{"unloaded", "loading", "ready", "failed"}

func (p Phase) String() string {
	if int(p) < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// State is an immutable snapshot of the lifecycle.
type State struct {
	Phase Phase
	// Err is the load failure while Phase is Failed.
	Err   error
	Model string
	Since time.Time
}

// Reason returns the failure message, or "" when the state carries no error.
func (s State) Reason() string {
	if s.Err == nil {
		return ""
	}
	return s.Err.Error()
}

// Outcome is the result of a TriggerLoad call that did not fail.
type Outcome string

const (
	// OutcomeLoaded means this call performed the load and the engine is ready.
	OutcomeLoaded Outcome = "success"
	// OutcomeAlreadyLoaded means the engine was already ready; nothing was done.
	OutcomeAlreadyLoaded Outcome = "already_loaded"
	// OutcomeAlreadyLoading means another caller's load is in flight; nothing was done.
	OutcomeAlreadyLoading Outcome = "already_loading"
)

var (
	// ErrNotReady is returned by WithEngine unless the engine is Ready.
	ErrNotReady = errors.New("engine not ready")
	// ErrClosed is returned once the manager has been closed.
	ErrClosed = errors.New("engine manager closed")
)

// LoadError reports a failed engine load. It is also retained in the Failed state.
type LoadError struct {
	Model string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load model %s: %v", e.Model, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Config holds configuration for a Manager.
type Config struct {
	// ModelID identifies the model handed to the loader.
	ModelID string
	// Precision is the weight precision hint handed to the loader.
	Precision engine.Precision
	// Loader initializes the engine.
	Loader engine.Loader
	// LoadTimeout bounds a load; zero means no bound.
	LoadTimeout time.Duration
	// InferenceTimeout bounds a single WithEngine call; zero means no bound.
	InferenceTimeout time.Duration
	// ConcurrentInference lets WithEngine calls overlap. Only set it for engines
	// known to support concurrent generation.
	ConcurrentInference bool
	// Metrics may be nil.
	Metrics *metrics.Recorder
	// Logger is the logger instance to use. If nil, a default logger is created.
	Logger *logrus.Logger
}

// Manager owns the single translation engine and governs its lifecycle:
// Unloaded -> Loading -> Ready, or Loading -> Failed -> Loading on retry.
// At most one load runs at a time; the engine is only reachable through WithEngine.
type Manager struct {
	cfg    Config
	logger *logrus.Logger

	// mu serializes state transitions.
	mu     sync.Mutex
	closed bool
	state  atomic.Pointer[State]

	// engineMu is held for reading during every engine call and for writing
	// when the engine is installed or torn down.
	engineMu sync.RWMutex
	eng      engine.Engine

	// inferSem admits one inference at a time unless ConcurrentInference is set.
	inferSem chan struct{}

	observers []func(State)
}

// NewManager creates a Manager in the Unloaded phase.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Loader == nil {
		return nil, errors.New("engine loader is required")
	}
	if cfg.ModelID == "" {
		return nil, errors.New("model id is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	m := &Manager{
		cfg:      cfg,
		logger:   cfg.Logger,
		inferSem: make(chan struct{}, 1),
	}
	m.state.Store(&State{Phase: Unloaded, Model: cfg.ModelID, Since: time.Now()})
	cfg.Metrics.SetEngineState(Unloaded.String(), phaseNames)
	return m, nil
}

// State returns the current lifecycle snapshot without locking.
func (m *Manager) State() State {
	return *m.state.Load()
}

// Model returns the configured model identifier.
func (m *Manager) Model() string {
	return m.cfg.ModelID
}

// Subscribe registers fn to be called on every transition, in order, and
// immediately with the current state. fn must not call back into the Manager.
func (m *Manager) Subscribe(fn func(State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
	fn(m.State())
}

// setState records a transition. Callers must hold m.mu.
func (m *Manager) setState(phase Phase, err error) {
	s := &State{Phase: phase, Err: err, Model: m.cfg.ModelID, Since: time.Now()}
	prev := m.state.Swap(s)

	fields := logrus.Fields{
		"model": m.cfg.ModelID,
		"from":  prev.Phase.String(),
		"to":    phase.String(),
	}
	if err != nil {
		m.logger.WithError(err).WithFields(fields).Warn("Engine state changed")
	} else {
		m.logger.WithFields(fields).Info("Engine state changed")
	}

	m.cfg.Metrics.SetEngineState(phase.String(), phaseNames)
	for _, fn := range m.observers {
		fn(*s)
	}
}

// TriggerLoad loads the engine unless it is already Ready or Loading.
//
// The caller that starts a load waits for it and receives OutcomeLoaded or a
// *LoadError; the failure is also recorded as the Failed state. Concurrent
// callers do not wait: they get OutcomeAlreadyLoading. The load is not
// cancelled when ctx is; it is bounded by Config.LoadTimeout instead.
func (m *Manager) TriggerLoad(ctx context.Context) (Outcome, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrClosed
	}
	switch m.State().Phase {
	case Ready:
		m.mu.Unlock()
		return OutcomeAlreadyLoaded, nil
	case Loading:
		m.mu.Unlock()
		return OutcomeAlreadyLoading, nil
	}
	m.setState(Loading, nil)
	m.mu.Unlock()

	loadCtx := context.WithoutCancel(ctx)
	if m.cfg.LoadTimeout > 0 {
		var cancel context.CancelFunc
		loadCtx, cancel = context.WithTimeout(loadCtx, m.cfg.LoadTimeout)
		defer cancel()
	}

	m.logger.WithFields(logrus.Fields{
		"model":     m.cfg.ModelID,
		"precision": m.cfg.Precision,
	}).Info("Loading translation engine")

	startTime := time.Now()
	eng, err := m.load(loadCtx)
	duration := time.Since(startTime)
	m.cfg.Metrics.RecordLoad(duration, err == nil)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		loadErr := &LoadError{Model: m.cfg.ModelID, Err: err}
		m.logger.WithError(err).WithFields(logrus.Fields{
			"model":       m.cfg.ModelID,
			"duration_ms": duration.Milliseconds(),
		}).Error("Failed to load translation engine")
		m.setState(Failed, loadErr)
		return "", loadErr
	}

	if m.closed {
		if err := eng.Close(); err != nil {
			m.logger.WithError(err).WithFields(logrus.Fields{
				"model": m.cfg.ModelID,
			}).Warn("Failed to release engine loaded after shutdown")
		}
		m.setState(Unloaded, nil)
		return "", ErrClosed
	}

	m.engineMu.Lock()
	m.eng = eng
	m.engineMu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"model":       m.cfg.ModelID,
		"duration_ms": duration.Milliseconds(),
	}).Info("Translation engine loaded successfully")
	m.setState(Ready, nil)
	return OutcomeLoaded, nil
}

// load runs the loader, converting a panic into an error.
func (m *Manager) load(ctx context.Context) (eng engine.Engine, err error) {
	defer func() {
		if r := recover(); r != nil {
			eng, err = nil, fmt.Errorf("loader panicked: %v", r)
		}
	}()

	eng, err = m.cfg.Loader.Load(ctx, m.cfg.ModelID, m.cfg.Precision)
	if err == nil && eng == nil {
		err = errors.New("loader returned no engine")
	}
	return eng, err
}

// WithEngine runs fn with the engine. The engine cannot be replaced or closed
// while fn runs. Calls are serialized unless Config.ConcurrentInference is set;
// waiting for a turn honors ctx. Returns ErrNotReady unless the engine is Ready.
func (m *Manager) WithEngine(ctx context.Context, fn func(ctx context.Context, eng engine.Engine) error) error {
	m.engineMu.RLock()
	defer m.engineMu.RUnlock()

	if m.eng == nil || m.State().Phase != Ready {
		return ErrNotReady
	}

	if !m.cfg.ConcurrentInference {
		waitStart := time.Now()
		select {
		case m.inferSem <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
		defer func() { <-m.inferSem }()
		m.cfg.Metrics.RecordInferenceWait(time.Since(waitStart))
	}

	if m.cfg.InferenceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.InferenceTimeout)
		defer cancel()
	}

	return fn(ctx, m.eng)
}

// Probe reports whether the Ready engine can still serve requests. It
// returns ErrNotReady outside Ready and nil for engines that do not
// implement engine.Prober. A failing probe does not change the state;
// only an explicit load or Close does.
func (m *Manager) Probe() error {
	m.engineMu.RLock()
	defer m.engineMu.RUnlock()

	if m.eng == nil || m.State().Phase != Ready {
		return ErrNotReady
	}
	if p, ok := m.eng.(engine.Prober); ok {
		return p.Alive()
	}
	return nil
}

// Close waits for in-flight engine calls, releases the engine and records
// Unloaded. A load still in flight is released when it completes. Further
// loads return ErrClosed.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	m.engineMu.Lock()
	eng := m.eng
	m.eng = nil
	m.engineMu.Unlock()

	if eng == nil {
		return nil
	}

	err := eng.Close()
	m.setState(Unloaded, nil)
	if err != nil {
		return fmt.Errorf("close engine: %w", err)
	}
	return nil
}
