package training

import (
	"github.com/sirupsen/logrus"

	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/interfaces"
)

// LogObserver reports training progress through logrus. Epochs are logged
// at info level and batches at debug level.
type LogObserver struct {
	logger *logrus.Logger
}

// NewLogObserver creates a LogObserver.
func NewLogObserver(logger *logrus.Logger) *LogObserver {
	if logger == nil {
		logger = logrus.New()
	}
	return &LogObserver{logger: logger}
}

// EpochCompleted implements interfaces.TrainingObserver.
func (o *LogObserver) EpochCompleted(stats interfaces.EpochStats) {
	o.logger.WithFields(logrus.Fields{
		"epoch":    stats.Epoch,
		"epochs":   stats.Epochs,
		"loss":     stats.MeanLoss,
		"duration": stats.Duration,
	}).Info("Training progress")
}

// BatchCompleted implements interfaces.BatchObserver.
func (o *LogObserver) BatchCompleted(epoch, batch int, loss float64) {
	if !o.logger.IsLevelEnabled(logrus.DebugLevel) {
		return
	}
	o.logger.WithFields(logrus.Fields{
		"epoch": epoch,
		"batch": batch,
		"loss":  loss,
	}).Debug("Batch completed")
}
