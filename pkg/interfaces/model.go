package interfaces

import (
	"io"
	"time"

	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/models"
)

// Scorer computes the reconstruction error of a window
type Scorer interface {
	// Score returns the reconstruction error of w without changing the model
	Score(w models.Window) (float64, error)
}

// TrainableModel defines the interface for a reconstruction model
type TrainableModel interface {
	Scorer

	// Fit performs one optimization step over the batch and returns its mean loss
	Fit(batch []models.Window) (float64, error)

	// InputSize returns the feature dimensionality the model was built for
	InputSize() int

	// Save writes the trained model to w
	Save(w io.Writer) error

	// Load replaces the model state with one read from r
	Load(r io.Reader) error
}

// TrainingObserver receives progress notifications from a training loop
type TrainingObserver interface {
	// EpochCompleted is called once after every epoch
	EpochCompleted(stats EpochStats)
}

// BatchObserver is an optional extension of TrainingObserver that is
// notified after every batch
type BatchObserver interface {
	BatchCompleted(epoch, batch int, loss float64)
}

// EpochStats describes one completed training epoch
type EpochStats struct {
	Epoch    int           `json:"epoch"`
	Epochs   int           `json:"epochs"`
	Batches  int           `json:"batches"`
	Windows  int           `json:"windows"`
	MeanLoss float64       `json:"mean_loss"`
	Duration time.Duration `json:"duration"`
}
