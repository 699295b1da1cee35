package service

import "fmt"

// ValidationError reports a malformed request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// UnsupportedPairError reports a language direction missing from the registry.
type UnsupportedPairError struct {
	Pair string
}

func (e *UnsupportedPairError) Error() string {
	return fmt.Sprintf("Unsupported language pair: %s", e.Pair)
}

// EngineNotReadyError reports that the engine cannot serve requests yet.
// Action names what the caller must do first.
type EngineNotReadyError struct {
	State  string
	Action string
}

func (e *EngineNotReadyError) Error() string {
	return fmt.Sprintf("Models not loaded (state: %s). Please call %s first.", e.State, e.Action)
}

// EngineExecutionError reports a failed generation for one request.
type EngineExecutionError struct {
	Err error
}

func (e *EngineExecutionError) Error() string {
	return fmt.Sprintf("Translation failed: %v", e.Err)
}

func (e *EngineExecutionError) Unwrap() error {
	return e.Err
}
