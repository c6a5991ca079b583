package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/jayeshkapadnis/ts-anamoly-detector/internal/detector"
	"github.com/jayeshkapadnis/ts-anamoly-detector/internal/observability/metrics"
	"github.com/jayeshkapadnis/ts-anamoly-detector/internal/storage"
	"github.com/jayeshkapadnis/ts-anamoly-detector/internal/storage/implementations/s3"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/constants"
)

// DetectorConfig is the complete CLI configuration.
type DetectorConfig struct {
	Detector detector.Config          `mapstructure:"detector"`
	S3       s3.S3Config              `mapstructure:"s3"`
	Sinks    storage.SinkConfig       `mapstructure:"sinks"`
	Metrics  metrics.PrometheusConfig `mapstructure:"metrics"`
	Log      LogConfig                `mapstructure:"log"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads cfgFile, or config.yaml under the default config
// directory when cfgFile is empty, into v. A missing default file is not an
// error. Environment variables prefixed with TSANOMALY_ override file
// values, e.g. TSANOMALY_DETECTOR_SEQ_LENGTH.
func LoadConfig(v *viper.Viper, cfgFile string) (*DetectorConfig, error) {
	if v == nil {
		v = viper.GetViper()
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, constants.ConfigDirName))
		}
		v.SetConfigName(constants.ConfigFileName)
		v.SetConfigType(constants.ConfigFileType)
	}

	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || cfgFile != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &DetectorConfig{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Detector.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// SetDefaults registers a default for every configuration key.
func SetDefaults(v *viper.Viper) {
	d := detector.DefaultConfig()
	v.SetDefault("detector.separator", d.Separator)
	v.SetDefault("detector.seq_length", d.SeqLength)
	v.SetDefault("detector.train_ratio", d.TrainRatio)
	v.SetDefault("detector.seed", d.Seed)
	v.SetDefault("detector.hidden_layers", d.HiddenLayers)
	v.SetDefault("detector.learning_rate", d.LearningRate)
	v.SetDefault("detector.l2_regularization", d.L2Regularization)
	v.SetDefault("detector.gradient_clipping", d.GradientClipping)
	v.SetDefault("detector.normalization", d.Normalization)
	v.SetDefault("detector.epochs", d.Epochs)
	v.SetDefault("detector.batch_size", d.BatchSize)
	v.SetDefault("detector.workers", 0)
	v.SetDefault("detector.top_k", d.TopK)
	v.SetDefault("detector.model_output_path", ".")

	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.access_key_id", "")
	v.SetDefault("s3.secret_access_key", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.force_path_style", false)
	v.SetDefault("s3.timeout", constants.DefaultStorageTimeout)
	v.SetDefault("s3.max_retries", 3)

	v.SetDefault("sinks.types", []string{})
	v.SetDefault("sinks.file.base_path", "reports")
	v.SetDefault("sinks.file.create_dirs", true)
	v.SetDefault("sinks.file.compression", false)
	v.SetDefault("sinks.file.indent", true)
	v.SetDefault("sinks.redis.addr", "localhost:6379")
	v.SetDefault("sinks.redis.db", 0)
	v.SetDefault("sinks.redis.key_prefix", constants.DefaultRedisKeyPrefix)
	v.SetDefault("sinks.redis.ttl", constants.DefaultRedisTTL)
	v.SetDefault("sinks.influxdb.url", "http://localhost:8086")
	v.SetDefault("sinks.influxdb.token", "")
	v.SetDefault("sinks.influxdb.organization", "")
	v.SetDefault("sinks.influxdb.bucket", "")
	v.SetDefault("sinks.influxdb.measurement", constants.DefaultInfluxMeasurement)
	v.SetDefault("sinks.influxdb.timeout", constants.DefaultStorageTimeout)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("metrics.path", constants.DefaultMetricsPath)
	v.SetDefault("metrics.namespace", constants.DefaultMetricsNamespace)
	v.SetDefault("metrics.subsystem", "detector")

	v.SetDefault("log.level", constants.DefaultLogLevel)
	v.SetDefault("log.format", constants.DefaultLogFormat)
}

// GetDefaultConfigPath returns the path LoadConfig reads when no file is
// given.
func GetDefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, constants.ConfigDirName, constants.ConfigFileName+"."+constants.ConfigFileType)
}
