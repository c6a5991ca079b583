package autoencoder

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/jayeshkapadnis/ts-anamoly-detector/internal/preprocessing"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/errors"
)

// snapshotVersion is bumped whenever the snapshot layout changes.
const snapshotVersion = 1

// snapshot is the persisted form of a Model.
type snapshot struct {
	Version   int
	Config    Config
	Layers    []lstmSnapshot
	Output    denseSnapshot
	Optimizer adamSnapshot
	Scaler    *preprocessing.Scaler
}

type lstmSnapshot struct {
	Name          string
	InputSize     int
	HiddenSize    int
	WeightsInput  []float64
	WeightsHidden []float64
	Biases        []float64
}

type denseSnapshot struct {
	Name       string
	InputSize  int
	OutputSize int
	Weights    []float64
	Biases     []float64
}

type adamSnapshot struct {
	LearningRate float64
	Beta1        float64
	Beta2        float64
	Epsilon      float64
	Step         int
	Momentum     [][]float64
	Velocity     [][]float64
}

// Save writes the model as a gzip-compressed gob snapshot. The snapshot
// holds the topology, all parameters, the optimizer state and the scaler,
// so a loaded model can continue training or scoring.
func (m *Model) Save(w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	zw := gzip.NewWriter(w)
	if err := gob.NewEncoder(zw).Encode(m.snapshot()); err != nil {
		zw.Close()
		return errors.NewPersistenceError(fmt.Errorf("%w: %v", errors.ErrModelWriteFailed, err), "writer")
	}
	if err := zw.Close(); err != nil {
		return errors.NewPersistenceError(fmt.Errorf("%w: %v", errors.ErrModelWriteFailed, err), "writer")
	}
	return nil
}

// Load replaces the model state with a snapshot read from r. The model is
// left unchanged when the snapshot cannot be decoded.
func (m *Model) Load(r io.Reader) error {
	snap, err := readSnapshot(r)
	if err != nil {
		return err
	}
	net, optimizer, err := snap.restore()
	if err != nil {
		return errors.NewModelReadError(fmt.Errorf("%w: %v", errors.ErrModelReadFailed, err), "reader")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = snap.Config
	m.net = net
	m.optimizer = optimizer
	m.scaler = snap.Scaler
	return nil
}

// Load reads a model saved with Model.Save.
func Load(r io.Reader, logger *logrus.Logger) (*Model, error) {
	if logger == nil {
		logger = logrus.New()
	}
	m := &Model{logger: logger}
	if err := m.Load(r); err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"layers": m.config.Layers,
		"steps":  m.optimizer.Steps(),
	}).Debug("Loaded LSTM autoencoder")

	return m, nil
}

func readSnapshot(r io.Reader) (*snapshot, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, errors.NewModelReadError(fmt.Errorf("%w: %v", errors.ErrModelReadFailed, err), "reader")
	}
	defer zr.Close()

	var snap snapshot
	if err := gob.NewDecoder(zr).Decode(&snap); err != nil {
		return nil, errors.NewModelReadError(fmt.Errorf("%w: %v", errors.ErrModelReadFailed, err), "reader")
	}
	if snap.Version != snapshotVersion {
		return nil, errors.NewModelReadError(
			fmt.Errorf("%w: unsupported snapshot version %d", errors.ErrModelReadFailed, snap.Version), "reader")
	}
	return &snap, nil
}

func (m *Model) snapshot() *snapshot {
	snap := &snapshot{
		Version: snapshotVersion,
		Config:  m.config,
		Scaler:  m.scaler,
		Output: denseSnapshot{
			Name:       m.net.output.name,
			InputSize:  m.net.output.inputSize,
			OutputSize: m.net.output.outputSize,
			Weights:    m.net.output.weights.RawMatrix().Data,
			Biases:     m.net.output.biases.RawVector().Data,
		},
		Optimizer: adamSnapshot{
			LearningRate: m.optimizer.learningRate,
			Beta1:        m.optimizer.beta1,
			Beta2:        m.optimizer.beta2,
			Epsilon:      m.optimizer.epsilon,
			Step:         m.optimizer.t,
			Momentum:     m.optimizer.momentum,
			Velocity:     m.optimizer.velocity,
		},
	}
	for _, l := range m.net.layers {
		snap.Layers = append(snap.Layers, lstmSnapshot{
			Name:          l.name,
			InputSize:     l.inputSize,
			HiddenSize:    l.hiddenSize,
			WeightsInput:  l.weightsInput.RawMatrix().Data,
			WeightsHidden: l.weightsHidden.RawMatrix().Data,
			Biases:        l.biases.RawVector().Data,
		})
	}
	return snap
}

// restore rebuilds the network and optimizer, checking every tensor
// against the topology recorded in the configuration.
func (s *snapshot) restore() (*Network, *AdamOptimizer, error) {
	if err := validateLayers(s.Config.Layers); err != nil {
		return nil, nil, err
	}
	topology := Topology(s.Config.Layers)
	if len(s.Layers) != len(topology) {
		return nil, nil, fmt.Errorf("expected %d recurrent layers, got %d", len(topology), len(s.Layers))
	}

	net := &Network{}
	for i, shape := range topology {
		ls := s.Layers[i]
		if ls.InputSize != shape[0] || ls.HiddenSize != shape[1] {
			return nil, nil, fmt.Errorf("layer %s: expected %dx%d, got %dx%d",
				ls.Name, shape[0], shape[1], ls.InputSize, ls.HiddenSize)
		}
		layer := newLSTMLayerZero(ls.Name, ls.InputSize, ls.HiddenSize)
		if err := copyInto(layer.weightsInput.RawMatrix().Data, ls.WeightsInput, ls.Name+".weights_input"); err != nil {
			return nil, nil, err
		}
		if err := copyInto(layer.weightsHidden.RawMatrix().Data, ls.WeightsHidden, ls.Name+".weights_hidden"); err != nil {
			return nil, nil, err
		}
		if err := copyInto(layer.biases.RawVector().Data, ls.Biases, ls.Name+".biases"); err != nil {
			return nil, nil, err
		}
		net.layers = append(net.layers, layer)
	}

	ds := s.Output
	if ds.InputSize != s.Config.Layers[1] || ds.OutputSize != s.Config.Layers[0] {
		return nil, nil, fmt.Errorf("output layer: expected %dx%d, got %dx%d",
			s.Config.Layers[1], s.Config.Layers[0], ds.InputSize, ds.OutputSize)
	}
	net.output = newDenseLayerZero(ds.Name, ds.InputSize, ds.OutputSize)
	if err := copyInto(net.output.weights.RawMatrix().Data, ds.Weights, ds.Name+".weights"); err != nil {
		return nil, nil, err
	}
	if err := copyInto(net.output.biases.RawVector().Data, ds.Biases, ds.Name+".biases"); err != nil {
		return nil, nil, err
	}

	opt := s.Optimizer
	optimizer := &AdamOptimizer{
		learningRate: opt.LearningRate,
		beta1:        opt.Beta1,
		beta2:        opt.Beta2,
		epsilon:      opt.Epsilon,
		t:            opt.Step,
	}
	if opt.Step > 0 {
		params := net.parameters()
		if len(opt.Momentum) != len(params) || len(opt.Velocity) != len(params) {
			return nil, nil, fmt.Errorf("optimizer state covers %d tensors, network has %d",
				len(opt.Momentum), len(params))
		}
		for i, p := range params {
			if len(opt.Momentum[i]) != len(p.value) || len(opt.Velocity[i]) != len(p.value) {
				return nil, nil, fmt.Errorf("optimizer state for %s has the wrong size", p.name)
			}
		}
		optimizer.momentum = opt.Momentum
		optimizer.velocity = opt.Velocity
	}

	if s.Scaler.Enabled() && s.Scaler.Features() != s.Config.Layers[0] {
		return nil, nil, fmt.Errorf("scaler fitted on %d features, model has %d",
			s.Scaler.Features(), s.Config.Layers[0])
	}
	return net, optimizer, nil
}

func copyInto(dst, src []float64, name string) error {
	if len(src) != len(dst) {
		return fmt.Errorf("%s: expected %d values, got %d", name, len(dst), len(src))
	}
	copy(dst, src)
	return nil
}
