package autoencoder

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// DenseLayer is a time-distributed fully-connected layer with an identity
// activation. It maps every time step independently.
type DenseLayer struct {
	name       string
	inputSize  int
	outputSize int

	weights *mat.Dense    // Out x In
	biases  *mat.VecDense // Out
}

type denseGrad struct {
	weights *mat.Dense
	biases  *mat.VecDense
}

// NewDenseLayer creates a Xavier-initialized dense layer with zero biases.
func NewDenseLayer(name string, inputSize, outputSize int, rng *rand.Rand) *DenseLayer {
	layer := newDenseLayerZero(name, inputSize, outputSize)
	xavierFill(layer.weights, inputSize, outputSize, rng)
	return layer
}

func newDenseLayerZero(name string, inputSize, outputSize int) *DenseLayer {
	return &DenseLayer{
		name:       name,
		inputSize:  inputSize,
		outputSize: outputSize,
		weights:    mat.NewDense(outputSize, inputSize, nil),
		biases:     mat.NewVecDense(outputSize, nil),
	}
}

// Name returns the layer name.
func (d *DenseLayer) Name() string {
	return d.name
}

func (d *DenseLayer) parameters() []*parameter {
	return []*parameter{
		{name: d.name + ".weights", value: d.weights.RawMatrix().Data, decay: true},
		{name: d.name + ".biases", value: d.biases.RawVector().Data},
	}
}

func (d *DenseLayer) newGrad() *denseGrad {
	return &denseGrad{
		weights: mat.NewDense(d.outputSize, d.inputSize, nil),
		biases:  mat.NewVecDense(d.outputSize, nil),
	}
}

func (g *denseGrad) slices() [][]float64 {
	return [][]float64{g.weights.RawMatrix().Data, g.biases.RawVector().Data}
}

// forward maps a T x In sequence to T x Out.
func (d *DenseLayer) forward(input *mat.Dense) *mat.Dense {
	steps, _ := input.Dims()
	out := mat.NewDense(steps, d.outputSize, nil)
	out.Mul(input, d.weights.T())
	bias := d.biases.RawVector().Data
	for t := 0; t < steps; t++ {
		row := out.RawRowView(t)
		for k := range row {
			row[k] += bias[k]
		}
	}
	return out
}

// backward adds the parameter gradients for upstream (T x Out) to grad and
// returns the T x In input gradient.
func (d *DenseLayer) backward(input, upstream *mat.Dense, grad *denseGrad) *mat.Dense {
	steps, _ := upstream.Dims()

	var dw mat.Dense
	dw.Mul(upstream.T(), input)
	grad.weights.Add(grad.weights, &dw)

	biases := grad.biases.RawVector().Data
	for t := 0; t < steps; t++ {
		for k, v := range upstream.RawRowView(t) {
			biases[k] += v
		}
	}

	dInput := mat.NewDense(steps, d.inputSize, nil)
	dInput.Mul(upstream, d.weights)
	return dInput
}
