package autoencoder

import (
	"fmt"
	"runtime"

	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/constants"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/errors"
)

// Config describes the network topology and its optimizer.
type Config struct {
	// Layers is [d0, d1, d2, d3]: d0 is the feature dimensionality and
	// d1 > d2 > d3 are the encoder sizes down to the bottleneck.
	Layers []int `json:"layers" mapstructure:"layers"`

	// SeqLength is the window length the model is trained on. The network
	// accepts any length; it is recorded so scoring can cut matching windows.
	SeqLength int `json:"seq_length" mapstructure:"seq_length"`

	LearningRate     float64 `json:"learning_rate" mapstructure:"learning_rate"`
	L2Regularization float64 `json:"l2_regularization" mapstructure:"l2_regularization"`
	GradientClipping float64 `json:"gradient_clipping" mapstructure:"gradient_clipping"` // 0 disables
	ForgetGateBias   float64 `json:"forget_gate_bias" mapstructure:"forget_gate_bias"`
	Seed             int64   `json:"seed" mapstructure:"seed"`

	// Workers bounds the goroutines computing per-window gradients in Fit.
	Workers int `json:"workers" mapstructure:"workers"`
}

// DefaultConfig returns the default configuration for a series with the
// given number of features.
func DefaultConfig(features int) Config {
	return Config{
		Layers:           BuildLayers(features, constants.DefaultHiddenLayers),
		SeqLength:        constants.DefaultSeqLength,
		LearningRate:     constants.DefaultLearningRate,
		L2Regularization: constants.DefaultL2Regularization,
		GradientClipping: constants.DefaultGradientClipping,
		ForgetGateBias:   constants.DefaultForgetGateBias,
		Seed:             constants.DefaultSeed,
		Workers:          runtime.GOMAXPROCS(0),
	}
}

// BuildLayers prepends the feature dimensionality to the hidden sizes.
func BuildLayers(features int, hidden []int) []int {
	layers := make([]int, 0, len(hidden)+1)
	layers = append(layers, features)
	return append(layers, hidden...)
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := validateLayers(c.Layers); err != nil {
		return errors.NewInvalidConfigError("layers", err.Error())
	}
	if c.SeqLength < 0 {
		return errors.NewInvalidConfigError("seq_length",
			fmt.Sprintf("must not be negative, got %d", c.SeqLength))
	}
	if c.LearningRate <= 0 {
		return errors.NewInvalidConfigError("learning_rate",
			fmt.Sprintf("must be positive, got %v", c.LearningRate))
	}
	if c.L2Regularization < 0 {
		return errors.NewInvalidConfigError("l2_regularization",
			fmt.Sprintf("must not be negative, got %v", c.L2Regularization))
	}
	if c.GradientClipping < 0 {
		return errors.NewInvalidConfigError("gradient_clipping",
			fmt.Sprintf("must not be negative, got %v", c.GradientClipping))
	}
	if c.Workers < 0 {
		return errors.NewInvalidConfigError("workers",
			fmt.Sprintf("must not be negative, got %d", c.Workers))
	}
	return nil
}
