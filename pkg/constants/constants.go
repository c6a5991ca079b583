package constants

import "time"

// Application constants
const (
	// Application metadata
	AppName        = "tsanomaly"
	AppDescription = "LSTM autoencoder anomaly detection for time series"
	AppVersion     = "0.1.0"

	// Configuration
	ConfigDirName    = ".tsanomaly"
	ConfigFileName   = "config"
	ConfigFileType   = "yaml"
	EnvPrefix        = "TSANOMALY"
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"

	// Input defaults
	DefaultSeparator  = ","
	DefaultSeqLength  = 49
	DefaultSourceName = "stream"

	// Dataset defaults
	DefaultTrainRatio = 0.9
	DefaultSeed       = int64(123456)

	// Model defaults
	DefaultLearningRate     = 2e-3
	DefaultL2Regularization = 1e-5
	DefaultGradientClipping = 5.0
	DefaultAdamBeta1        = 0.9
	DefaultAdamBeta2        = 0.999
	DefaultAdamEpsilon      = 1e-8
	DefaultForgetGateBias   = 1.0
	DefaultNormalization    = NormalizationNone

	// Training defaults
	DefaultEpochs    = 10
	DefaultBatchSize = 32

	// Ranking defaults
	DefaultTopK = 60

	// Persistence defaults
	DefaultModelFileName = "AbnormalDetectedModel.gob.gz"
	DefaultModelDirPerm  = 0755
	DefaultModelFilePerm = 0644

	// Metrics defaults
	DefaultMetricsNamespace = "tsanomaly"
	DefaultMetricsPath      = "/metrics"
	DefaultHealthPath       = "/healthz"

	// Storage defaults
	DefaultStorageTimeout    = 30 * time.Second
	DefaultRedisKeyPrefix    = "tsanomaly"
	DefaultRedisTTL          = 24 * time.Hour
	DefaultInfluxMeasurement = "window_reconstruction_error"
)

// DefaultHiddenLayers are the encoder hidden sizes; the decoder mirrors them.
var DefaultHiddenLayers = []int{200, 100, 10}

// Normalization methods
const (
	NormalizationNone   = "none"
	NormalizationMinMax = "minmax"
	NormalizationZScore = "zscore"
	NormalizationRobust = "robust"
)

// Report sink types
const (
	SinkTypeNone     = "none"
	SinkTypeFile     = "file"
	SinkTypeRedis    = "redis"
	SinkTypeInfluxDB = "influxdb"
)

// Model storage URI schemes
const (
	SchemeFile = "file"
	SchemeS3   = "s3"
)

// Storage operations and outcomes, as reported to metrics
const (
	BackendLocal = "local"

	OperationStore    = "store"
	OperationRetrieve = "retrieve"
	OperationPublish  = "publish"

	StatusSuccess = "success"
	StatusFailure = "failure"
)
