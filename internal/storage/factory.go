// Package storage creates the sinks that detection reports are published to.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/jayeshkapadnis/ts-anamoly-detector/internal/storage/implementations/file"
	"github.com/jayeshkapadnis/ts-anamoly-detector/internal/storage/implementations/influxdb"
	"github.com/jayeshkapadnis/ts-anamoly-detector/internal/storage/implementations/redis"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/constants"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/errors"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/interfaces"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/models"
)

// SinkConfig selects the report sinks and holds their settings
type SinkConfig struct {
	Types    []string                `json:"types" mapstructure:"types"`
	File     file.FileStorageConfig  `json:"file" mapstructure:"file"`
	Redis    redis.RedisConfig       `json:"redis" mapstructure:"redis"`
	InfluxDB influxdb.InfluxDBConfig `json:"influxdb" mapstructure:"influxdb"`
}

// SinkCreateFunc builds a sink from the configuration
type SinkCreateFunc func(config SinkConfig) (interfaces.ReportSink, error)

// Factory creates report sinks by type
type Factory struct {
	creators map[string]SinkCreateFunc
	recorder interfaces.OperationRecorder
	mu       sync.RWMutex
	logger   *logrus.Logger
}

// NewFactory creates a new sink factory
func NewFactory(logger *logrus.Logger) *Factory {
	if logger == nil {
		logger = logrus.New()
	}

	factory := &Factory{
		creators: make(map[string]SinkCreateFunc),
		logger:   logger,
	}

	// Register default sink types
	factory.registerDefaults()

	return factory
}

// SetRecorder counts every publish of sinks created afterwards, labelled
// with the sink type.
func (f *Factory) SetRecorder(recorder interfaces.OperationRecorder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorder = recorder
}

// CreateSink creates a new sink instance
func (f *Factory) CreateSink(sinkType string, config SinkConfig) (interfaces.ReportSink, error) {
	f.mu.RLock()
	createFunc, exists := f.creators[sinkType]
	recorder := f.recorder
	f.mu.RUnlock()

	if !exists {
		return nil, errors.NewStorageError("UNSUPPORTED_TYPE", fmt.Sprintf("Sink type '%s' is not supported", sinkType))
	}

	sink, err := createFunc(config)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, "CREATION_FAILED", fmt.Sprintf("Failed to create %s sink", sinkType))
	}

	f.logger.WithFields(logrus.Fields{
		"sink_type": sinkType,
	}).Debug("Created report sink")

	if recorder != nil {
		sink = &instrumentedSink{backend: sinkType, sink: sink, recorder: recorder}
	}
	return sink, nil
}

// GetSupportedTypes returns all supported sink types in sorted order
func (f *Factory) GetSupportedTypes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	types := make([]string, 0, len(f.creators))
	for sinkType := range f.creators {
		types = append(types, sinkType)
	}
	sort.Strings(types)

	return types
}

// RegisterSink registers a new sink type
func (f *Factory) RegisterSink(sinkType string, createFunc SinkCreateFunc) error {
	if sinkType == "" {
		return errors.NewInvalidConfigError("sink_type", "cannot be empty")
	}

	if createFunc == nil {
		return errors.NewInvalidConfigError("sink_type", "create function cannot be nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.creators[sinkType] = createFunc
	return nil
}

// IsSupported checks if a sink type is supported
func (f *Factory) IsSupported(sinkType string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	_, exists := f.creators[sinkType]
	return exists
}

// NewReportSink creates one sink per configured type. Duplicate types and
// "none" are ignored; no types yields a sink that discards reports.
func (f *Factory) NewReportSink(config SinkConfig) (interfaces.ReportSink, error) {
	seen := make(map[string]bool)
	var sinks MultiSink
	for _, sinkType := range config.Types {
		if sinkType == "" || sinkType == constants.SinkTypeNone || seen[sinkType] {
			continue
		}
		seen[sinkType] = true

		sink, err := f.CreateSink(sinkType, config)
		if err != nil {
			sinks.Close()
			return nil, err
		}
		sinks = append(sinks, sink)
	}
	return sinks, nil
}

// NewReportSink creates the sinks named in config using the default factory.
// recorder may be nil.
func NewReportSink(config SinkConfig, recorder interfaces.OperationRecorder, logger *logrus.Logger) (interfaces.ReportSink, error) {
	f := NewFactory(logger)
	if recorder != nil {
		f.SetRecorder(recorder)
	}
	return f.NewReportSink(config)
}

// registerDefaults registers the default sink implementations
func (f *Factory) registerDefaults() {
	f.RegisterSink(constants.SinkTypeFile, func(config SinkConfig) (interfaces.ReportSink, error) {
		cfg := config.File
		return file.NewFileStorage(&cfg, f.logger)
	})

	f.RegisterSink(constants.SinkTypeRedis, func(config SinkConfig) (interfaces.ReportSink, error) {
		cfg := config.Redis
		return redis.NewRedisStorage(&cfg, f.logger)
	})

	f.RegisterSink(constants.SinkTypeInfluxDB, func(config SinkConfig) (interfaces.ReportSink, error) {
		cfg := config.InfluxDB
		return influxdb.NewInfluxDBStorage(&cfg, f.logger)
	})
}

// MultiSink publishes to several sinks in order
type MultiSink []interfaces.ReportSink

// Publish publishes the report to every sink, stopping at the first error
func (m MultiSink) Publish(ctx context.Context, report *models.Report) error {
	for _, sink := range m {
		if err := sink.Publish(ctx, report); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink and returns the first error
func (m MultiSink) Close() error {
	var firstErr error
	for _, sink := range m {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// instrumentedSink counts the publishes of one sink
type instrumentedSink struct {
	backend  string
	sink     interfaces.ReportSink
	recorder interfaces.OperationRecorder
}

func (s *instrumentedSink) Publish(ctx context.Context, report *models.Report) error {
	err := s.sink.Publish(ctx, report)
	status := constants.StatusSuccess
	if err != nil {
		status = constants.StatusFailure
	}
	s.recorder.RecordOperation(s.backend, constants.OperationPublish, status)
	return err
}

func (s *instrumentedSink) Close() error {
	return s.sink.Close()
}
