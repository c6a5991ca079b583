package models

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Row holds the feature values recorded at one time step.
type Row []float64

// Window is a run of consecutive rows taken from a series, in temporal order.
type Window []Row

// Len returns the number of time steps in the window.
func (w Window) Len() int {
	return len(w)
}

// Features returns the feature dimensionality of the window.
// An empty window has zero features.
func (w Window) Features() int {
	if len(w) == 0 {
		return 0
	}
	return len(w[0])
}

// Matrix copies the window into a time-steps x features matrix.
func (w Window) Matrix() *mat.Dense {
	steps, features := w.Len(), w.Features()
	data := make([]float64, 0, steps*features)
	for _, row := range w {
		data = append(data, row...)
	}
	return mat.NewDense(steps, features, data)
}

// Dataset is the set of windows cut from one series.
// Inputs double as reconstruction targets, so no target tensor is kept.
type Dataset struct {
	Windows []Window
}

// NewDataset creates a dataset over the given windows.
func NewDataset(windows []Window) *Dataset {
	return &Dataset{Windows: windows}
}

// Len returns the number of windows.
func (d *Dataset) Len() int {
	return len(d.Windows)
}

// Shuffle reorders the windows in place using rng.
// Rows inside each window keep their order.
func (d *Dataset) Shuffle(rng *rand.Rand) {
	rng.Shuffle(len(d.Windows), func(i, j int) {
		d.Windows[i], d.Windows[j] = d.Windows[j], d.Windows[i]
	})
}

// Split holds the disjoint train and test partitions of a Dataset.
type Split struct {
	Train []Window
	Test  []Window
}

// Total returns the number of windows across both partitions.
func (s *Split) Total() int {
	return len(s.Train) + len(s.Test)
}
