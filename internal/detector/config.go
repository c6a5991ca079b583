package detector

import (
	"fmt"
	"math"
	"regexp"
	"runtime"

	"github.com/jayeshkapadnis/ts-anamoly-detector/internal/preprocessing"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/constants"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/errors"
)

// Config holds the settings of one detection run.
type Config struct {
	Separator  string  `json:"separator" mapstructure:"separator"`
	SeqLength  int     `json:"seq_length" mapstructure:"seq_length"`
	TrainRatio float64 `json:"train_ratio" mapstructure:"train_ratio"`
	Seed       int64   `json:"seed" mapstructure:"seed"`

	HiddenLayers     []int   `json:"hidden_layers" mapstructure:"hidden_layers"`
	LearningRate     float64 `json:"learning_rate" mapstructure:"learning_rate"`
	L2Regularization float64 `json:"l2_regularization" mapstructure:"l2_regularization"`
	GradientClipping float64 `json:"gradient_clipping" mapstructure:"gradient_clipping"`
	Normalization    string  `json:"normalization" mapstructure:"normalization"`

	Epochs    int `json:"epochs" mapstructure:"epochs"`
	BatchSize int `json:"batch_size" mapstructure:"batch_size"`
	Workers   int `json:"workers" mapstructure:"workers"`

	TopK            int    `json:"top_k" mapstructure:"top_k"`
	ModelOutputPath string `json:"model_output_path" mapstructure:"model_output_path"`
}

// DefaultConfig returns the default run configuration.
func DefaultConfig() Config {
	return Config{
		Separator:        constants.DefaultSeparator,
		SeqLength:        constants.DefaultSeqLength,
		TrainRatio:       constants.DefaultTrainRatio,
		Seed:             constants.DefaultSeed,
		HiddenLayers:     append([]int(nil), constants.DefaultHiddenLayers...),
		LearningRate:     constants.DefaultLearningRate,
		L2Regularization: constants.DefaultL2Regularization,
		GradientClipping: constants.DefaultGradientClipping,
		Normalization:    constants.DefaultNormalization,
		Epochs:           constants.DefaultEpochs,
		BatchSize:        constants.DefaultBatchSize,
		Workers:          runtime.GOMAXPROCS(0),
		TopK:             constants.DefaultTopK,
	}
}

// Validate checks every setting that can be checked before the input is
// read.
func (c Config) Validate() error {
	if c.Separator == "" {
		return errors.NewInvalidConfigError("separator", "must not be empty")
	}
	if _, err := regexp.Compile(c.Separator); err != nil {
		return errors.NewInvalidConfigError("separator", err.Error())
	}
	if c.SeqLength < 1 {
		return errors.NewInvalidConfigError("seq_length", fmt.Sprintf("must be at least 1, got %d", c.SeqLength))
	}
	if math.IsNaN(c.TrainRatio) || c.TrainRatio <= 0 || c.TrainRatio >= 1 {
		return errors.NewInvalidConfigError("train_ratio", fmt.Sprintf("must be in (0, 1), got %v", c.TrainRatio))
	}
	if len(c.HiddenLayers) != 3 {
		return errors.NewInvalidConfigError("hidden_layers", fmt.Sprintf("expected 3 sizes, got %d", len(c.HiddenLayers)))
	}
	for i, size := range c.HiddenLayers {
		if size <= 0 {
			return errors.NewInvalidConfigError("hidden_layers", fmt.Sprintf("size %d must be positive, got %d", i, size))
		}
	}
	if c.Epochs <= 0 {
		return errors.NewInvalidConfigError("epochs", fmt.Sprintf("must be positive, got %d", c.Epochs))
	}
	if c.BatchSize <= 0 {
		return errors.NewInvalidConfigError("batch_size", fmt.Sprintf("must be positive, got %d", c.BatchSize))
	}
	if c.TopK <= 0 {
		return errors.NewInvalidConfigError("top_k", fmt.Sprintf("must be positive, got %d", c.TopK))
	}
	if c.Workers < 0 {
		return errors.NewInvalidConfigError("workers", fmt.Sprintf("must not be negative, got %d", c.Workers))
	}
	if _, err := preprocessing.NewScaler(c.Normalization); err != nil {
		return err
	}
	return nil
}
