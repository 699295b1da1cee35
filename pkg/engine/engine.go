package engine

import (
	"context"
	"fmt"
	"strings"
)

// Engine is a loaded sequence-to-sequence translation model.
// Implementations are not assumed to be safe for concurrent Generate calls.
type Engine interface {
	// Generate translates text between two engine-specific language codes
	// (e.g., "eng_Latn" -> "fra_Latn") under the given generation policy.
	Generate(ctx context.Context, text, sourceCode, targetCode string, params GenerationParams) (string, error)

	// Close releases the model and any process or connection behind it.
	Close() error
}

// Prober is implemented by engines that can notice they became unusable
// between calls, e.g. because a worker process died.
type Prober interface {
	// Alive returns nil while the engine can serve Generate calls.
	Alive() error
}

// Loader initializes an Engine. Loading is expected to be slow (seconds to minutes).
type Loader interface {
	Load(ctx context.Context, modelID string, precision Precision) (Engine, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, modelID string, precision Precision) (Engine, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, modelID string, precision Precision) (Engine, error) {
	return f(ctx, modelID, precision)
}

// GenerationParams bounds a single generate call.
type GenerationParams struct {
	// MaxLength caps input truncation and output length, in tokens.
	MaxLength int `json:"max_length"`
	// BeamWidth is the number of candidate sequences explored.
	BeamWidth int `json:"num_beams"`
	// EarlyStop ends the search once every beam has produced an end token.
	EarlyStop bool `json:"early_stopping"`
}

// DefaultGenerationParams is the fixed policy used for every translation.
//
//	| parameter | value |
//	|-----------|-------|
//	| MaxLength | 512   |
//	| BeamWidth | 5     |
//	| EarlyStop | true  |
var DefaultGenerationParams = GenerationParams{
	MaxLength: 512,
	BeamWidth: 5,
	EarlyStop: true,
}

// Precision is a hint for the numeric type used to hold model weights.
type Precision string

const (
	PrecisionFloat16  Precision = "float16"
	PrecisionBFloat16 Precision = "bfloat16"
	PrecisionFloat32  Precision = "float32"
)

// ParsePrecision parses a string into a Precision.
func ParsePrecision(s string) (Precision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "float16", "fp16", "half":
		return PrecisionFloat16, nil
	case "bfloat16", "bf16":
		return PrecisionBFloat16, nil
	case "float32", "fp32", "full":
		return PrecisionFloat32, nil
	default:
		return "", fmt.Errorf("unknown precision: %s (supported: float16, bfloat16, float32)", s)
	}
}
