package autoencoder

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/jayeshkapadnis/ts-anamoly-detector/internal/preprocessing"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/errors"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/models"
)

// Model is a trainable LSTM autoencoder. It reconstructs windows of a
// multivariate series and scores them by their reconstruction error.
//
// Fit and Load must not run concurrently with each other; Score may be
// called from any number of goroutines.
type Model struct {
	mu sync.RWMutex

	config    Config
	net       *Network
	optimizer *AdamOptimizer
	scaler    *preprocessing.Scaler
	logger    *logrus.Logger
}

// NewModel builds a randomly initialized model. Initialization is fully
// determined by cfg.Seed.
func NewModel(cfg Config, logger *logrus.Logger) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.New()
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	net, err := NewNetwork(cfg.Layers, cfg.ForgetGateBias, rng)
	if err != nil {
		return nil, errors.NewInvalidConfigError("layers", err.Error())
	}

	m := &Model{
		config:    cfg,
		net:       net,
		optimizer: NewAdamOptimizer(cfg.LearningRate),
		logger:    logger,
	}

	logger.WithFields(logrus.Fields{
		"layers":     cfg.Layers,
		"parameters": net.NumParameters(),
		"seed":       cfg.Seed,
	}).Debug("Built LSTM autoencoder")

	return m, nil
}

// Config returns the model configuration.
func (m *Model) Config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Network exposes the underlying layers.
func (m *Model) Network() *Network {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.net
}

// InputSize returns the feature dimensionality the model accepts.
func (m *Model) InputSize() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.net.InputSize()
}

// Steps returns the number of optimizer updates applied so far.
func (m *Model) Steps() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.optimizer.Steps()
}

// SetScaler attaches a fitted scaler. Windows passed to Fit and Score are
// scaled before they reach the network.
func (m *Model) SetScaler(s *preprocessing.Scaler) error {
	if s.Enabled() && s.Features() != m.InputSize() {
		return errors.NewDimensionMismatchError(m.InputSize(), s.Features())
	}
	m.mu.Lock()
	m.scaler = s
	m.mu.Unlock()
	return nil
}

// Scaler returns the attached scaler, or nil.
func (m *Model) Scaler() *preprocessing.Scaler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.scaler
}

// Fit performs one optimization step on the batch: gradients of the mean
// reconstruction error are averaged over all windows, L2-regularized,
// clipped by global norm and applied with Adam. It returns the mean loss of
// the batch before the update.
func (m *Model) Fit(batch []models.Window) (float64, error) {
	if len(batch) == 0 {
		return 0, errors.NewInvalidConfigError("batch", "must contain at least one window")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	inputs, err := m.prepare(batch)
	if err != nil {
		return 0, err
	}

	grad, loss := m.batchGradient(inputs)
	grad.scale(1 / float64(len(inputs)))
	loss /= float64(len(inputs))

	params := m.net.parameters()
	slices := grad.slices()
	if l2 := m.config.L2Regularization; l2 > 0 {
		for i, p := range params {
			if !p.decay {
				continue
			}
			g := slices[i]
			for k, w := range p.value {
				g[k] += l2 * w
			}
		}
	}
	if limit := m.config.GradientClipping; limit > 0 {
		if norm := grad.norm(); norm > limit {
			grad.scale(limit / norm)
		}
	}

	m.optimizer.Update(params, slices)
	return loss, nil
}

// batchGradient sums the gradients of inputs. The batch is split into
// contiguous chunks, one per worker, and the partial sums are combined in
// chunk order so the result does not depend on scheduling.
func (m *Model) batchGradient(inputs []*mat.Dense) (*networkGrad, float64) {
	workers := m.config.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(inputs) {
		workers = len(inputs)
	}
	chunk := (len(inputs) + workers - 1) / workers

	grads := make([]*networkGrad, workers)
	losses := make([]float64, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > len(inputs) {
			hi = len(inputs)
		}
		if lo >= hi {
			continue
		}

		wg.Add(1)
		go func(w int, part []*mat.Dense) {
			defer wg.Done()
			g := m.net.newGrad()
			for _, x := range part {
				losses[w] += m.net.gradient(x, g)
			}
			grads[w] = g
		}(w, inputs[lo:hi])
	}
	wg.Wait()

	total := m.net.newGrad()
	var loss float64
	for w, g := range grads {
		if g == nil {
			continue
		}
		total.add(g)
		loss += losses[w]
	}
	return total, loss
}

// Score returns the mean squared reconstruction error of w. It does not
// modify the model.
func (m *Model) Score(w models.Window) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inputs, err := m.prepare([]models.Window{w})
	if err != nil {
		return 0, err
	}
	return m.net.Loss(inputs[0]), nil
}

// prepare validates the windows against the model width, applies the scaler
// and converts them to matrices.
func (m *Model) prepare(windows []models.Window) ([]*mat.Dense, error) {
	features := m.net.InputSize()
	inputs := make([]*mat.Dense, len(windows))
	for i, w := range windows {
		if w.Len() == 0 {
			return nil, errors.NewDimensionMismatchError(features, 0).
				WithDetails(fmt.Sprintf("window %d is empty", i))
		}
		for _, row := range w {
			if len(row) != features {
				return nil, errors.NewDimensionMismatchError(features, len(row)).
					WithContext("window", i)
			}
		}

		scaled, err := m.scaler.TransformWindow(w)
		if err != nil {
			return nil, err
		}
		inputs[i] = scaled.Matrix()
	}
	return inputs, nil
}
