package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultPythonPath is the interpreter used to run the model worker.
	DefaultPythonPath = "python3"
	// DefaultWorkerScript is where the container image installs scripts/nllb_worker.py.
	DefaultWorkerScript = "/app/scripts/nllb_worker.py"

	// maxLineSize bounds a single JSON line exchanged with the worker.
	maxLineSize = 16 << 20
)

// SubprocessLoader starts a Python worker that loads the model in-process and
// answers newline-delimited JSON requests over stdin/stdout.
type SubprocessLoader struct {
	// Command is the executable to run (usually python3).
	Command string
	// Args precede the --model/--dtype flags (usually the worker script path).
	Args   []string
	logger *logrus.Logger
}

// NewSubprocessLoader creates a loader running scriptPath with pythonPath.
func NewSubprocessLoader(pythonPath, scriptPath string, logger *logrus.Logger) *SubprocessLoader {
	if pythonPath == "" {
		pythonPath = DefaultPythonPath
	}
	if scriptPath == "" {
		scriptPath = DefaultWorkerScript
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &SubprocessLoader{
		Command: pythonPath,
		Args:    []string{scriptPath},
		logger:  logger,
	}
}

// readyMessage is the first line a worker prints once the model is loaded (or failed to).
type readyMessage struct {
	Ready  bool   `json:"ready"`
	Device string `json:"device,omitempty"`
	Error  string `json:"error,omitempty"`
}

type workerRequest struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	SourceCode string `json:"src_lang"`
	TargetCode string `json:"tgt_lang"`
	GenerationParams
}

type workerResponse struct {
	ID             string `json:"id"`
	Success        bool   `json:"success"`
	TranslatedText string `json:"translated_text,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Load starts the worker and blocks until it reports the model ready, the
// worker exits, or ctx is done. The worker process is not bound to ctx.
func (l *SubprocessLoader) Load(ctx context.Context, modelID string, precision Precision) (Engine, error) {
	args := append(append([]string{}, l.Args...), "--model", modelID, "--dtype", string(precision))
	cmd := exec.Command(l.Command, args...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	logger := l.logger.WithFields(logrus.Fields{
		"model":     modelID,
		"precision": precision,
	})

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start worker process: %w", err)
	}
	logger.WithField("pid", cmd.Process.Pid).Info("Model worker started, waiting for model to load")

	e := &SubprocessEngine{
		cmd:       cmd,
		stdin:     stdin,
		responses: make(chan workerResponse),
		done:      make(chan struct{}),
		closed:    make(chan struct{}),
		logger:    logger,
	}
	ready := make(chan readyMessage, 1)
	go e.readLoop(stdout, ready)

	var msg readyMessage
	select {
	case msg = <-ready:
	case <-e.done:
		// readLoop queues the ready line before closing done
		select {
		case msg = <-ready:
		default:
			e.Close()
			return nil, fmt.Errorf("worker exited before becoming ready: %w", e.exitErr())
		}
	case <-ctx.Done():
		e.Close()
		return nil, fmt.Errorf("waiting for model worker: %w", ctx.Err())
	}

	if !msg.Ready {
		e.Close()
		if msg.Error == "" {
			msg.Error = "worker reported not ready"
		}
		return nil, fmt.Errorf("model load failed: %s", msg.Error)
	}
	logger.WithField("device", msg.Device).Info("Model worker ready")
	return e, nil
}

// SubprocessEngine is an Engine backed by a running worker process.
type SubprocessEngine struct {
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	responses chan workerResponse
	done      chan struct{} // closed when stdout reaches EOF
	closed    chan struct{} // closed by Close
	closeOnce sync.Once
	mu        sync.Mutex // one request on the wire at a time
	errMu     sync.Mutex
	readErr   error
	logger    *logrus.Entry
}

// readLoop owns stdout for the worker's lifetime.
func (e *SubprocessEngine) readLoop(stdout io.Reader, ready chan<- readyMessage) {
	defer close(e.done)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	first := true
	for scanner.Scan() {
		line := scanner.Bytes()
		if first {
			first = false
			var msg readyMessage
			if err := json.Unmarshal(line, &msg); err != nil {
				msg = readyMessage{Error: fmt.Sprintf("invalid ready message: %v", err)}
			}
			ready <- msg
			continue
		}

		var resp workerResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			e.logger.WithError(err).Warn("Discarding malformed worker output")
			continue
		}
		select {
		case e.responses <- resp:
		case <-e.closed:
			return
		}
	}

	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	e.errMu.Lock()
	e.readErr = err
	e.errMu.Unlock()
	e.logger.WithError(err).Warn("Model worker output closed")
}

func (e *SubprocessEngine) exitErr() error {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	if e.readErr == nil {
		return errors.New("worker exited")
	}
	return e.readErr
}

// Generate sends one request to the worker and waits for the matching reply.
// A reply that arrives after its caller gave up is discarded by the next call.
func (e *SubprocessEngine) Generate(ctx context.Context, text, sourceCode, targetCode string, params GenerationParams) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	select {
	case <-e.done:
		return "", fmt.Errorf("worker not running: %w", e.exitErr())
	default:
	}

	req := workerRequest{
		ID:               uuid.NewString(),
		Text:             text,
		SourceCode:       sourceCode,
		TargetCode:       targetCode,
		GenerationParams: params,
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}
	if _, err := e.stdin.Write(append(payload, '\n')); err != nil {
		return "", fmt.Errorf("failed to write to worker: %w", err)
	}

	for {
		select {
		case resp := <-e.responses:
			if resp.ID != req.ID {
				e.logger.WithField("response_id", resp.ID).Debug("Discarding stale worker response")
				continue
			}
			if !resp.Success {
				errorMsg := resp.Error
				if errorMsg == "" {
					errorMsg = "unknown error"
				}
				return "", fmt.Errorf("generation failed: %s", errorMsg)
			}
			return resp.TranslatedText, nil
		case <-e.done:
			return "", fmt.Errorf("worker exited during generation: %w", e.exitErr())
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Alive reports an error once the worker has exited or the engine was closed.
func (e *SubprocessEngine) Alive() error {
	select {
	case <-e.closed:
		return errors.New("engine closed")
	case <-e.done:
		return fmt.Errorf("worker not running: %w", e.exitErr())
	default:
		return nil
	}
}

// Close stops the worker process. It is safe to call more than once.
func (e *SubprocessEngine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		close(e.closed)
		e.stdin.Close()
		if e.cmd.Process != nil {
			if kerr := e.cmd.Process.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
				err = kerr
			}
		}
		<-e.done
		e.cmd.Wait()
		e.logger.Info("Model worker stopped")
	})
	return err
}
