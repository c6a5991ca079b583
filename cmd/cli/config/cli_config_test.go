package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/constants"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfig(t, `
detector:
  separator: '\s+'
  seq_length: 20
  train_ratio: 0.8
  hidden_layers: [32, 16, 4]
  normalization: minmax
  model_output_path: s3://models/run/
s3:
  region: eu-west-1
  bucket: models
sinks:
  types: [file, redis]
  redis:
    addr: redis:6379
    ttl: 1h
metrics:
  addr: ":9100"
log:
  format: json
`)

	cfg, err := LoadConfig(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, `\s+`, cfg.Detector.Separator)
	assert.Equal(t, 20, cfg.Detector.SeqLength)
	assert.Equal(t, 0.8, cfg.Detector.TrainRatio)
	assert.Equal(t, []int{32, 16, 4}, cfg.Detector.HiddenLayers)
	assert.Equal(t, constants.NormalizationMinMax, cfg.Detector.Normalization)
	assert.Equal(t, "s3://models/run/", cfg.Detector.ModelOutputPath)
	assert.Equal(t, "eu-west-1", cfg.S3.Region)
	assert.Equal(t, []string{"file", "redis"}, cfg.Sinks.Types)
	assert.Equal(t, "redis:6379", cfg.Sinks.Redis.Addr)
	assert.Equal(t, time.Hour, cfg.Sinks.Redis.TTL)
	assert.Equal(t, ":9100", cfg.Metrics.Addr)
	assert.Equal(t, "json", cfg.Log.Format)

	// Defaults fill what the file leaves out.
	assert.Equal(t, constants.DefaultEpochs, cfg.Detector.Epochs)
	assert.Equal(t, constants.DefaultTopK, cfg.Detector.TopK)
	assert.Equal(t, constants.DefaultSeed, cfg.Detector.Seed)
	assert.Equal(t, constants.DefaultLogLevel, cfg.Log.Level)
	assert.Equal(t, constants.DefaultMetricsPath, cfg.Metrics.Path)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	path := writeConfig(t, "detector:\n  top_k: 10\n")
	t.Setenv("TSANOMALY_DETECTOR_TOP_K", "7")
	t.Setenv("TSANOMALY_DETECTOR_EPOCHS", "3")

	cfg, err := LoadConfig(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Detector.TopK)
	assert.Equal(t, 3, cfg.Detector.Epochs)
}

func TestLoadConfigInvalid(t *testing.T) {
	path := writeConfig(t, "detector:\n  train_ratio: 1.5\n")

	_, err := LoadConfig(viper.New(), path)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidConfig))
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestGetDefaultConfigPath(t *testing.T) {
	assert.Contains(t, GetDefaultConfigPath(), filepath.Join(constants.ConfigDirName, "config.yaml"))
}
