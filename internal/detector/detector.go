// Package detector runs the end-to-end anomaly detection pipeline: windowing,
// splitting, training, ranking, persistence and report publishing.
package detector

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jayeshkapadnis/ts-anamoly-detector/internal/autoencoder"
	"github.com/jayeshkapadnis/ts-anamoly-detector/internal/dataset"
	"github.com/jayeshkapadnis/ts-anamoly-detector/internal/ml"
	"github.com/jayeshkapadnis/ts-anamoly-detector/internal/observability/metrics"
	"github.com/jayeshkapadnis/ts-anamoly-detector/internal/preprocessing"
	"github.com/jayeshkapadnis/ts-anamoly-detector/internal/ranking"
	"github.com/jayeshkapadnis/ts-anamoly-detector/internal/training"
	"github.com/jayeshkapadnis/ts-anamoly-detector/internal/windowing"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/constants"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/errors"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/interfaces"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/models"
)

// Pipeline stages, as reported to metrics.
const (
	StageWindowing = "windowing"
	StageSplit     = "split"
	StageTraining  = "training"
	StageRanking   = "ranking"
	StagePersist   = "persist"
	StagePublish   = "publish"
)

// Detector trains an autoencoder on a series and ranks its windows.
type Detector struct {
	config      Config
	persistence *ml.Persistence
	sink        interfaces.ReportSink
	metrics     *metrics.PrometheusMetrics
	logger      *logrus.Logger
}

// Result is the outcome of one run.
type Result struct {
	RunID         string
	TrainWindows  int
	TestWindows   int
	Training      *training.Report
	Ranking       *models.Ranking
	ModelLocation string
	Report        *models.Report
	Model         *autoencoder.Model
}

// NewDetector creates a detector. persistence and sink may be nil: without
// persistence the model is not saved, without a sink the report is not
// published.
func NewDetector(config Config, persistence *ml.Persistence, sink interfaces.ReportSink, logger *logrus.Logger) (*Detector, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Detector{
		config:      config,
		persistence: persistence,
		sink:        sink,
		logger:      logger,
	}, nil
}

// SetMetrics attaches a metrics collector. Model saves and loads through the
// detector's persistence are counted as storage operations.
func (d *Detector) SetMetrics(m *metrics.PrometheusMetrics) {
	d.metrics = m
	if m != nil && d.persistence != nil {
		d.persistence.SetRecorder(m)
	}
}

// Config returns the detector configuration.
func (d *Detector) Config() Config {
	return d.config
}

// Run trains a model on source and ranks the held-out windows. The stages
// run in order and the first error aborts the run.
func (d *Detector) Run(ctx context.Context, source io.Reader) (*Result, error) {
	runID := uuid.New().String()
	logger := d.logger.WithField("run_id", runID)
	start := time.Now()

	result, err := d.run(ctx, runID, source, logger)
	if err != nil {
		d.recordError("run", err)
		logger.WithError(err).Error("Detection run failed")
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"train_windows": result.TrainWindows,
		"test_windows":  result.TestWindows,
		"final_loss":    result.Report.FinalLoss,
		"model":         result.ModelLocation,
		"duration":      time.Since(start),
	}).Info("Detection run completed")
	return result, nil
}

func (d *Detector) run(ctx context.Context, runID string, source io.Reader, logger *logrus.Entry) (*Result, error) {
	var windows []models.Window
	err := d.stage(StageWindowing, func() error {
		var err error
		windows, err = d.buildWindows(source, d.config.SeqLength)
		return err
	})
	if err != nil {
		return nil, err
	}

	var split *models.Split
	err = d.stage(StageSplit, func() error {
		var err error
		split, err = dataset.SplitSeeded(windows, d.config.TrainRatio, d.config.Seed)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(split.Train) == 0 {
		return nil, errors.NewInsufficientDataError("seq_length",
			fmt.Sprintf("%d windows leave no training windows at ratio %v", len(windows), d.config.TrainRatio))
	}
	logger.WithFields(logrus.Fields{
		"windows": len(windows),
		"train":   len(split.Train),
		"test":    len(split.Test),
	}).Info("Split dataset")

	model, err := d.buildModel(split.Train)
	if err != nil {
		return nil, err
	}

	var trainReport *training.Report
	err = d.stage(StageTraining, func() error {
		var err error
		trainReport, err = training.NewLoop(d.config.Epochs, d.config.BatchSize, d.logger, d.observers()...).
			Train(ctx, model, split.Train)
		return err
	})
	if err != nil {
		return nil, err
	}

	ranked, err := d.rank(ctx, model, split.Test)
	if err != nil {
		return nil, err
	}

	location, err := d.persist(ctx, model)
	if err != nil {
		return nil, err
	}

	report := d.newReport(runID, source, model, ranked)
	report.ModelLocation = location
	report.TrainWindows = len(split.Train)
	report.TestWindows = len(split.Test)
	report.FinalLoss = trainReport.FinalLoss()

	if err := d.publish(ctx, report); err != nil {
		return nil, err
	}

	return &Result{
		RunID:         runID,
		TrainWindows:  len(split.Train),
		TestWindows:   len(split.Test),
		Training:      trainReport,
		Ranking:       ranked,
		ModelLocation: location,
		Report:        report,
		Model:         model,
	}, nil
}

// Score windows source with the model's sequence length and ranks every
// window. Nothing is trained or persisted; the report is published with
// ModelOutputPath as the model location.
func (d *Detector) Score(ctx context.Context, model *autoencoder.Model, source io.Reader) (*Result, error) {
	runID := uuid.New().String()
	logger := d.logger.WithField("run_id", runID)

	seqLength := model.Config().SeqLength
	if seqLength <= 0 {
		seqLength = d.config.SeqLength
	}

	var windows []models.Window
	err := d.stage(StageWindowing, func() error {
		var err error
		windows, err = d.buildWindows(source, seqLength)
		return err
	})
	if err != nil {
		d.recordError("score", err)
		return nil, err
	}

	ranked, err := d.rank(ctx, model, windows)
	if err != nil {
		d.recordError("score", err)
		return nil, err
	}

	report := d.newReport(runID, source, model, ranked)
	report.SeqLength = seqLength
	report.TestWindows = len(windows)
	report.ModelLocation = d.config.ModelOutputPath

	if err := d.publish(ctx, report); err != nil {
		d.recordError("score", err)
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"windows":   len(windows),
		"mean":      report.Summary.Mean,
		"max_score": report.Summary.Max,
	}).Info("Scoring completed")

	return &Result{
		RunID:       runID,
		TestWindows: len(windows),
		Ranking:     ranked,
		Report:      report,
		Model:       model,
	}, nil
}

func (d *Detector) buildWindows(source io.Reader, seqLength int) ([]models.Window, error) {
	builder, err := windowing.NewBuilder(d.config.Separator, seqLength+1, d.logger)
	if err != nil {
		return nil, err
	}
	windows, err := builder.Build(source)
	if err != nil {
		return nil, err
	}
	if len(windows) == 0 {
		return nil, errors.NewInsufficientDataError("seq_length",
			fmt.Sprintf("series is too short for windows of %d rows", seqLength+1))
	}
	return windows, nil
}

// buildModel sizes the network to the series and fits the scaler on the
// distinct rows of the training windows.
func (d *Detector) buildModel(train []models.Window) (*autoencoder.Model, error) {
	features := train[0].Features()

	cfg := autoencoder.DefaultConfig(features)
	cfg.Layers = autoencoder.BuildLayers(features, d.config.HiddenLayers)
	cfg.SeqLength = d.config.SeqLength
	cfg.LearningRate = d.config.LearningRate
	cfg.L2Regularization = d.config.L2Regularization
	cfg.GradientClipping = d.config.GradientClipping
	cfg.Seed = d.config.Seed
	if d.config.Workers > 0 {
		cfg.Workers = d.config.Workers
	}

	model, err := autoencoder.NewModel(cfg, d.logger)
	if err != nil {
		return nil, err
	}

	scaler, err := preprocessing.NewScaler(d.config.Normalization)
	if err != nil {
		return nil, err
	}
	if scaler.Enabled() {
		if err := scaler.Fit(distinctRows(train)); err != nil {
			return nil, err
		}
		if err := model.SetScaler(scaler); err != nil {
			return nil, err
		}
	}
	return model, nil
}

func (d *Detector) rank(ctx context.Context, scorer interfaces.Scorer, windows []models.Window) (*models.Ranking, error) {
	var ranked *models.Ranking
	err := d.stage(StageRanking, func() error {
		var err error
		ranked, err = ranking.NewRanker(d.config.Workers, d.logger).Rank(ctx, scorer, windows, d.config.TopK)
		return err
	})
	if err != nil {
		return nil, err
	}
	if d.metrics != nil {
		d.metrics.RecordScores(ranked.Scores())
	}
	return ranked, nil
}

func (d *Detector) persist(ctx context.Context, model *autoencoder.Model) (string, error) {
	if d.persistence == nil || d.config.ModelOutputPath == "" {
		d.logger.Warn("No model output path configured, model not saved")
		return "", nil
	}
	var location string
	err := d.stage(StagePersist, func() error {
		var err error
		location, err = d.persistence.SaveModel(ctx, model, d.config.ModelOutputPath)
		return err
	})
	return location, err
}

func (d *Detector) publish(ctx context.Context, report *models.Report) error {
	if d.sink == nil {
		return nil
	}
	return d.stage(StagePublish, func() error {
		return d.sink.Publish(ctx, report)
	})
}

func (d *Detector) newReport(runID string, source io.Reader, model *autoencoder.Model, ranked *models.Ranking) *models.Report {
	return &models.Report{
		RunID:     runID,
		CreatedAt: time.Now().UTC(),
		Source:    sourceName(source),
		SeqLength: d.config.SeqLength,
		Features:  model.InputSize(),
		TopK:      d.config.TopK,
		Summary:   ranked.Summary(),
		Normal:    ranked.Normal,
		Anomalous: ranked.Anomalous,
	}
}

func (d *Detector) observers() []interfaces.TrainingObserver {
	observers := []interfaces.TrainingObserver{training.NewLogObserver(d.logger)}
	if d.metrics != nil {
		observers = append(observers, d.metrics)
	}
	return observers
}

func (d *Detector) stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	if d.metrics != nil {
		d.metrics.RecordStage(name, time.Since(start))
	}
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (d *Detector) recordError(component string, err error) {
	if d.metrics == nil {
		return
	}
	errType := string(errors.TypeOf(err))
	if errType == "" {
		errType = string(errors.ErrorTypeInternal)
	}
	d.metrics.RecordError(component, errType)
}

// distinctRows collects each row of the windows once. Overlapping windows
// share row storage, so rows are keyed by their backing array.
func distinctRows(windows []models.Window) []models.Row {
	seen := make(map[*float64]struct{})
	var rows []models.Row
	for _, w := range windows {
		for _, row := range w {
			if len(row) == 0 {
				continue
			}
			if _, ok := seen[&row[0]]; ok {
				continue
			}
			seen[&row[0]] = struct{}{}
			rows = append(rows, row)
		}
	}
	return rows
}

func sourceName(source io.Reader) string {
	if named, ok := source.(interface{ Name() string }); ok {
		return named.Name()
	}
	return constants.DefaultSourceName
}
