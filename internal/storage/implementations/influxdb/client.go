package influxdb

import (
	"context"
	"math"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"

	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/constants"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/errors"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/interfaces"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/models"
)

// InfluxDBConfig contains configuration for the InfluxDB report sink
type InfluxDBConfig struct {
	URL          string        `json:"url" yaml:"url" mapstructure:"url"`
	Token        string        `json:"token" yaml:"token" mapstructure:"token"`
	Organization string        `json:"organization" yaml:"organization" mapstructure:"organization"`
	Bucket       string        `json:"bucket" yaml:"bucket" mapstructure:"bucket"`
	Measurement  string        `json:"measurement" yaml:"measurement" mapstructure:"measurement"`
	Timeout      time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
	BatchSize    int           `json:"batch_size" yaml:"batch_size" mapstructure:"batch_size"`
	UseGZip      bool          `json:"use_gzip" yaml:"use_gzip" mapstructure:"use_gzip"`
}

// InfluxDBStorage writes window reconstruction errors to InfluxDB, one point
// per ranked window plus one summary point per run
type InfluxDBStorage struct {
	config    *InfluxDBConfig
	client    influxdb2.Client
	writeAPI  api.WriteAPIBlocking
	logger    *logrus.Logger
	connected bool
}

var _ interfaces.ReportSink = (*InfluxDBStorage)(nil)

// NewInfluxDBStorage creates a new InfluxDB storage instance
func NewInfluxDBStorage(config *InfluxDBConfig, logger *logrus.Logger) (*InfluxDBStorage, error) {
	if config == nil {
		return nil, errors.NewStorageError("INVALID_CONFIG", "InfluxDB config cannot be nil")
	}
	if config.URL == "" {
		return nil, errors.NewStorageError("INVALID_CONFIG", "InfluxDB URL is required")
	}
	if config.Bucket == "" {
		return nil, errors.NewStorageError("INVALID_CONFIG", "InfluxDB bucket is required")
	}

	if logger == nil {
		logger = logrus.New()
	}

	// Set defaults
	if config.Timeout == 0 {
		config.Timeout = constants.DefaultStorageTimeout
	}
	if config.BatchSize == 0 {
		config.BatchSize = 1000
	}
	if config.Measurement == "" {
		config.Measurement = constants.DefaultInfluxMeasurement
	}

	return &InfluxDBStorage{
		config: config,
		logger: logger,
	}, nil
}

// Connect establishes connection to InfluxDB
func (s *InfluxDBStorage) Connect(ctx context.Context) error {
	if s.connected {
		return nil
	}

	options := influxdb2.DefaultOptions()
	options.SetBatchSize(uint(s.config.BatchSize))
	options.SetUseGZip(s.config.UseGZip)
	options.SetPrecision(time.Nanosecond)
	options.SetHTTPRequestTimeout(uint(s.config.Timeout / time.Second))

	client := influxdb2.NewClientWithOptions(s.config.URL, s.config.Token, options)

	ok, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed, "Failed to connect to InfluxDB")
	}
	if !ok {
		client.Close()
		return errors.NewStorageError(errors.CodeConnectionFailed, "InfluxDB ping failed")
	}

	s.client = client
	s.writeAPI = client.WriteAPIBlocking(s.config.Organization, s.config.Bucket)
	s.connected = true

	s.logger.WithFields(logrus.Fields{
		"url":          s.config.URL,
		"organization": s.config.Organization,
		"bucket":       s.config.Bucket,
	}).Info("Connected to InfluxDB")

	return nil
}

// Close closes the connection to InfluxDB
func (s *InfluxDBStorage) Close() error {
	if !s.connected {
		return nil
	}

	if s.client != nil {
		s.client.Close()
	}
	s.connected = false

	s.logger.Debug("Closed InfluxDB connection")
	return nil
}

// IsConnected reports whether Connect succeeded
func (s *InfluxDBStorage) IsConnected() bool {
	return s.connected
}

// Publish writes the report's ranked windows and its summary
func (s *InfluxDBStorage) Publish(ctx context.Context, report *models.Report) error {
	if err := s.Connect(ctx); err != nil {
		return err
	}

	points := s.buildPoints(report)
	if err := s.writeAPI.WritePoint(ctx, points...); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodePublishFailed, "Failed to write points to InfluxDB")
	}

	s.logger.WithFields(logrus.Fields{
		"run_id": report.RunID,
		"points": len(points),
	}).Info("Published report to InfluxDB")

	return nil
}

// buildPoints converts a report to line protocol points. Windows are
// timestamped relative to the run creation time by their index so that
// points of one run never collide.
func (s *InfluxDBStorage) buildPoints(report *models.Report) []*write.Point {
	points := make([]*write.Point, 0, len(report.Normal)+len(report.Anomalous)+1)

	add := func(set string, windows []models.ScoredWindow) {
		for rank, sw := range windows {
			if math.IsNaN(sw.Score) || math.IsInf(sw.Score, 0) {
				continue
			}
			p := influxdb2.NewPointWithMeasurement(s.config.Measurement).
				AddTag("run_id", report.RunID).
				AddTag("set", set).
				AddTag("window", strconv.Itoa(sw.Index)).
				AddField("score", sw.Score).
				AddField("rank", rank+1).
				SetTime(report.CreatedAt.Add(time.Duration(sw.Index)))
			points = append(points, p)
		}
	}
	add("normal", report.Normal)
	add("anomalous", report.Anomalous)

	summary := influxdb2.NewPointWithMeasurement(s.config.Measurement+"_summary").
		AddTag("run_id", report.RunID).
		AddTag("source", report.Source).
		AddField("count", report.Summary.Count).
		AddField("mean", report.Summary.Mean).
		AddField("std_dev", report.Summary.StdDev).
		AddField("min", report.Summary.Min).
		AddField("max", report.Summary.Max).
		AddField("threshold", report.Summary.Threshold).
		AddField("train_windows", report.TrainWindows).
		AddField("test_windows", report.TestWindows).
		SetTime(report.CreatedAt)
	if !math.IsNaN(report.FinalLoss) && !math.IsInf(report.FinalLoss, 0) {
		summary.AddField("final_loss", report.FinalLoss)
	}
	return append(points, summary)
}
