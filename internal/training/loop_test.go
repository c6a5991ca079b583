package training

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/errors"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/interfaces"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/models"
)

// recordingModel records the batches passed to Fit and returns a loss
// that halves on every call.
type recordingModel struct {
	batches [][]models.Window
	loss    float64
	failAt  int
}

func (m *recordingModel) Fit(batch []models.Window) (float64, error) {
	m.batches = append(m.batches, batch)
	if m.failAt > 0 && len(m.batches) == m.failAt {
		return 0, fmt.Errorf("boom")
	}
	m.loss /= 2
	return m.loss, nil
}

func (m *recordingModel) Score(models.Window) (float64, error) { return 0, nil }
func (m *recordingModel) InputSize() int                       { return 1 }
func (m *recordingModel) Save(io.Writer) error                 { return nil }
func (m *recordingModel) Load(io.Reader) error                 { return nil }

type recordingObserver struct {
	epochs  []interfaces.EpochStats
	batches int
}

func (o *recordingObserver) EpochCompleted(stats interfaces.EpochStats) {
	o.epochs = append(o.epochs, stats)
}

func (o *recordingObserver) BatchCompleted(int, int, float64) {
	o.batches++
}

func windows(n int) []models.Window {
	res := make([]models.Window, n)
	for i := range res {
		res[i] = models.Window{{float64(i)}}
	}
	return res
}

func quietLogger() *logrus.Logger {
	logger, _ := test.NewNullLogger()
	return logger
}

func TestBatches(t *testing.T) {
	batches := Batches(windows(10), 4)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 4)
	assert.Len(t, batches[1], 4)
	assert.Len(t, batches[2], 2)
	assert.Equal(t, 8.0, batches[2][0][0][0])

	assert.Len(t, Batches(windows(3), 32), 1)
	assert.Nil(t, Batches(windows(3), 0))
}

func TestTrainCallsFitPerBatch(t *testing.T) {
	model := &recordingModel{loss: 1}
	observer := &recordingObserver{}
	loop := NewLoop(3, 4, quietLogger(), observer)

	report, err := loop.Train(context.Background(), model, windows(10))
	require.NoError(t, err)

	assert.Len(t, model.batches, 9)
	assert.Equal(t, 9, report.Steps)
	assert.Equal(t, 9, observer.batches)
	require.Len(t, observer.epochs, 3)
	for i, stats := range observer.epochs {
		assert.Equal(t, i+1, stats.Epoch)
		assert.Equal(t, 3, stats.Epochs)
		assert.Equal(t, 3, stats.Batches)
		assert.Equal(t, 10, stats.Windows)
	}
	assert.Equal(t, observer.epochs, report.Epochs)

	// Same batch order in every epoch.
	for i := 3; i < len(model.batches); i++ {
		assert.Equal(t, model.batches[i%3], model.batches[i])
	}

	// Epoch loss is the window-weighted mean of the batch losses.
	expected := (0.5*4 + 0.25*4 + 0.125*2) / 10
	assert.InDelta(t, expected, report.Epochs[0].MeanLoss, 1e-12)
	assert.Less(t, report.FinalLoss(), report.Epochs[0].MeanLoss)
}

func TestTrainSingleEpochSingleBatch(t *testing.T) {
	model := &recordingModel{loss: 1}
	report, err := NewLoop(1, 32, quietLogger()).Train(context.Background(), model, windows(5))
	require.NoError(t, err)
	assert.Len(t, model.batches, 1)
	assert.Len(t, model.batches[0], 5)
	assert.Equal(t, 1, report.Steps)
}

func TestTrainInvalidConfig(t *testing.T) {
	model := &recordingModel{loss: 1}
	ctx := context.Background()

	_, err := NewLoop(0, 4, quietLogger()).Train(ctx, model, windows(3))
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidConfig))

	_, err = NewLoop(1, 0, quietLogger()).Train(ctx, model, windows(3))
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidConfig))

	_, err = NewLoop(1, 4, quietLogger()).Train(ctx, model, nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidConfig))

	assert.Empty(t, model.batches)
}

func TestTrainPropagatesFitError(t *testing.T) {
	model := &recordingModel{loss: 1, failAt: 2}
	_, err := NewLoop(2, 2, quietLogger()).Train(context.Background(), model, windows(6))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "epoch 1, batch 2")
	assert.Len(t, model.batches, 2)
}

func TestTrainHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	model := &recordingModel{loss: 1}
	_, err := NewLoop(2, 2, quietLogger()).Train(ctx, model, windows(6))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, model.batches)
}

func TestLogObserver(t *testing.T) {
	logger, hook := test.NewNullLogger()
	observer := NewLogObserver(logger)

	observer.BatchCompleted(1, 1, 0.5)
	assert.Empty(t, hook.AllEntries(), "batches are logged at debug level only")

	logger.SetLevel(logrus.DebugLevel)
	observer.BatchCompleted(1, 2, 0.25)
	observer.EpochCompleted(interfaces.EpochStats{Epoch: 1, Epochs: 2, MeanLoss: 0.3})

	entries := hook.AllEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, logrus.DebugLevel, entries[0].Level)
	assert.Equal(t, 2, entries[0].Data["batch"])
	assert.Equal(t, logrus.InfoLevel, entries[1].Level)
	assert.Equal(t, 0.3, entries[1].Data["loss"])
}
