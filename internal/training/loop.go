// Package training drives mini-batch optimization of a reconstruction model.
package training

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/errors"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/interfaces"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/models"
)

// Loop trains a model for a fixed number of epochs over consecutive
// batches of the training set. The batch order is the same in every epoch.
type Loop struct {
	Epochs    int
	BatchSize int
	Observers []interfaces.TrainingObserver

	logger *logrus.Logger
}

// Report summarizes a completed training run.
type Report struct {
	Epochs   []interfaces.EpochStats `json:"epochs"`
	Steps    int                     `json:"steps"`
	Duration time.Duration           `json:"duration"`
}

// FinalLoss returns the mean loss of the last epoch.
func (r *Report) FinalLoss() float64 {
	if len(r.Epochs) == 0 {
		return 0
	}
	return r.Epochs[len(r.Epochs)-1].MeanLoss
}

// NewLoop creates a training loop.
func NewLoop(epochs, batchSize int, logger *logrus.Logger, observers ...interfaces.TrainingObserver) *Loop {
	if logger == nil {
		logger = logrus.New()
	}
	return &Loop{
		Epochs:    epochs,
		BatchSize: batchSize,
		Observers: observers,
		logger:    logger,
	}
}

// Validate checks the loop configuration.
func (l *Loop) Validate() error {
	if l.Epochs <= 0 {
		return errors.NewInvalidConfigError("epochs", fmt.Sprintf("must be positive, got %d", l.Epochs))
	}
	if l.BatchSize <= 0 {
		return errors.NewInvalidConfigError("batch_size", fmt.Sprintf("must be positive, got %d", l.BatchSize))
	}
	return nil
}

// Train runs Epochs passes over trainSet, calling model.Fit once per batch.
// Observers are notified after every epoch; they cannot stop training.
// The context is checked between batches.
func (l *Loop) Train(ctx context.Context, model interfaces.TrainableModel, trainSet []models.Window) (*Report, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	if len(trainSet) == 0 {
		return nil, errors.NewInvalidConfigError("train_set", "must contain at least one window")
	}
	if l.logger == nil {
		l.logger = logrus.New()
	}

	batches := Batches(trainSet, l.BatchSize)
	report := &Report{Epochs: make([]interfaces.EpochStats, 0, l.Epochs)}
	started := time.Now()

	l.logger.WithFields(logrus.Fields{
		"epochs":     l.Epochs,
		"batch_size": l.BatchSize,
		"batches":    len(batches),
		"windows":    len(trainSet),
	}).Info("Starting training")

	for epoch := 1; epoch <= l.Epochs; epoch++ {
		epochStart := time.Now()
		var totalLoss float64

		for b, batch := range batches {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			loss, err := model.Fit(batch)
			if err != nil {
				return nil, fmt.Errorf("epoch %d, batch %d: %w", epoch, b+1, err)
			}
			totalLoss += loss * float64(len(batch))
			report.Steps++

			for _, o := range l.Observers {
				if bo, ok := o.(interfaces.BatchObserver); ok {
					bo.BatchCompleted(epoch, b+1, loss)
				}
			}
		}

		stats := interfaces.EpochStats{
			Epoch:    epoch,
			Epochs:   l.Epochs,
			Batches:  len(batches),
			Windows:  len(trainSet),
			MeanLoss: totalLoss / float64(len(trainSet)),
			Duration: time.Since(epochStart),
		}
		report.Epochs = append(report.Epochs, stats)

		for _, o := range l.Observers {
			o.EpochCompleted(stats)
		}
	}

	report.Duration = time.Since(started)
	l.logger.WithFields(logrus.Fields{
		"steps":      report.Steps,
		"final_loss": report.FinalLoss(),
		"duration":   report.Duration,
	}).Info("Training completed")

	return report, nil
}

// Batches splits windows into consecutive batches of size; the last batch
// may be smaller. The batches share the backing array of windows.
func Batches(windows []models.Window, size int) [][]models.Window {
	if size <= 0 {
		return nil
	}
	batches := make([][]models.Window, 0, (len(windows)+size-1)/size)
	for lo := 0; lo < len(windows); lo += size {
		hi := lo + size
		if hi > len(windows) {
			hi = len(windows)
		}
		batches = append(batches, windows[lo:hi:hi])
	}
	return batches
}
