package autoencoder

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Gate blocks are stacked in this order along the rows of the weight
// matrices and the pre-activation vector.
const (
	gateInput = iota
	gateForget
	gateCell
	gateOutput
	numGates
)

// LSTMLayer is a long short-term memory layer without peepholes.
// Input, forget and output gates use the logistic sigmoid; the cell
// candidate and the cell output use ReLU.
type LSTMLayer struct {
	name       string
	inputSize  int
	hiddenSize int

	weightsInput  *mat.Dense    // 4H x In
	weightsHidden *mat.Dense    // 4H x H
	biases        *mat.VecDense // 4H
}

// lstmCache keeps the activations of one sequence for back-propagation.
type lstmCache struct {
	input  *mat.Dense // T x In
	gates  *mat.Dense // T x 4H, post-activation
	cell   *mat.Dense // T x H
	hidden *mat.Dense // T x H
}

// lstmGrad accumulates parameter gradients of an LSTMLayer.
type lstmGrad struct {
	weightsInput  *mat.Dense
	weightsHidden *mat.Dense
	biases        *mat.VecDense
}

// NewLSTMLayer creates an LSTM layer with Xavier-initialized weights.
// The forget gate biases start at forgetBias.
func NewLSTMLayer(name string, inputSize, hiddenSize int, forgetBias float64, rng *rand.Rand) *LSTMLayer {
	layer := newLSTMLayerZero(name, inputSize, hiddenSize)
	xavierFill(layer.weightsInput, inputSize, hiddenSize, rng)
	xavierFill(layer.weightsHidden, hiddenSize, hiddenSize, rng)
	for j := 0; j < hiddenSize; j++ {
		layer.biases.SetVec(gateForget*hiddenSize+j, forgetBias)
	}
	return layer
}

func newLSTMLayerZero(name string, inputSize, hiddenSize int) *LSTMLayer {
	return &LSTMLayer{
		name:          name,
		inputSize:     inputSize,
		hiddenSize:    hiddenSize,
		weightsInput:  mat.NewDense(numGates*hiddenSize, inputSize, nil),
		weightsHidden: mat.NewDense(numGates*hiddenSize, hiddenSize, nil),
		biases:        mat.NewVecDense(numGates*hiddenSize, nil),
	}
}

// Name returns the layer name.
func (l *LSTMLayer) Name() string {
	return l.name
}

// InputSize returns the number of input features.
func (l *LSTMLayer) InputSize() int {
	return l.inputSize
}

// HiddenSize returns the number of hidden units.
func (l *LSTMLayer) HiddenSize() int {
	return l.hiddenSize
}

func (l *LSTMLayer) parameters() []*parameter {
	return []*parameter{
		{name: l.name + ".weights_input", value: l.weightsInput.RawMatrix().Data, decay: true},
		{name: l.name + ".weights_hidden", value: l.weightsHidden.RawMatrix().Data, decay: true},
		{name: l.name + ".biases", value: l.biases.RawVector().Data},
	}
}

func (l *LSTMLayer) newGrad() *lstmGrad {
	return &lstmGrad{
		weightsInput:  mat.NewDense(numGates*l.hiddenSize, l.inputSize, nil),
		weightsHidden: mat.NewDense(numGates*l.hiddenSize, l.hiddenSize, nil),
		biases:        mat.NewVecDense(numGates*l.hiddenSize, nil),
	}
}

func (g *lstmGrad) slices() [][]float64 {
	return [][]float64{
		g.weightsInput.RawMatrix().Data,
		g.weightsHidden.RawMatrix().Data,
		g.biases.RawVector().Data,
	}
}

// forward runs the layer over a T x In sequence, starting from zero state.
func (l *LSTMLayer) forward(input *mat.Dense) *lstmCache {
	steps, _ := input.Dims()
	h := l.hiddenSize

	pre := mat.NewDense(steps, numGates*h, nil)
	pre.Mul(input, l.weightsInput.T())

	cache := &lstmCache{
		input:  input,
		gates:  mat.NewDense(steps, numGates*h, nil),
		cell:   mat.NewDense(steps, h, nil),
		hidden: mat.NewDense(steps, h, nil),
	}

	recurrent := mat.NewVecDense(numGates*h, nil)
	bias := l.biases.RawVector().Data
	for t := 0; t < steps; t++ {
		z := pre.RawRowView(t)
		for k := range z {
			z[k] += bias[k]
		}
		if t > 0 {
			recurrent.MulVec(l.weightsHidden, cache.hidden.RowView(t-1))
			rec := recurrent.RawVector().Data
			for k := range z {
				z[k] += rec[k]
			}
		}

		gates := cache.gates.RawRowView(t)
		cell := cache.cell.RawRowView(t)
		hidden := cache.hidden.RawRowView(t)
		for j := 0; j < h; j++ {
			i := sigmoid(z[gateInput*h+j])
			f := sigmoid(z[gateForget*h+j])
			g := relu(z[gateCell*h+j])
			o := sigmoid(z[gateOutput*h+j])
			gates[gateInput*h+j] = i
			gates[gateForget*h+j] = f
			gates[gateCell*h+j] = g
			gates[gateOutput*h+j] = o

			c := i * g
			if t > 0 {
				c += f * cache.cell.At(t-1, j)
			}
			cell[j] = c
			hidden[j] = o * relu(c)
		}
	}
	return cache
}

// backward back-propagates upstream (T x H) through time, adds the
// parameter gradients to grad and returns the T x In input gradient.
// When needInput is false the input gradient is not computed and nil is
// returned.
func (l *LSTMLayer) backward(cache *lstmCache, upstream *mat.Dense, grad *lstmGrad, needInput bool) *mat.Dense {
	steps, _ := upstream.Dims()
	h := l.hiddenSize

	dPre := mat.NewDense(steps, numGates*h, nil)
	dHiddenNext := mat.NewVecDense(h, nil)
	dCellNext := make([]float64, h)

	for t := steps - 1; t >= 0; t-- {
		gates := cache.gates.RawRowView(t)
		cell := cache.cell.RawRowView(t)
		up := upstream.RawRowView(t)
		dz := dPre.RawRowView(t)
		dhNext := dHiddenNext.RawVector().Data

		for j := 0; j < h; j++ {
			i := gates[gateInput*h+j]
			f := gates[gateForget*h+j]
			g := gates[gateCell*h+j]
			o := gates[gateOutput*h+j]
			c := cell[j]
			var cPrev float64
			if t > 0 {
				cPrev = cache.cell.At(t-1, j)
			}

			dh := up[j] + dhNext[j]
			dOut := dh * relu(c)
			dc := dCellNext[j]
			if c > 0 {
				dc += dh * o
			}

			dz[gateInput*h+j] = dc * g * i * (1 - i)
			dz[gateForget*h+j] = dc * cPrev * f * (1 - f)
			if g > 0 {
				dz[gateCell*h+j] = dc * i
			}
			dz[gateOutput*h+j] = dOut * o * (1 - o)

			dCellNext[j] = dc * f
		}

		dHiddenNext.MulVec(l.weightsHidden.T(), dPre.RowView(t))
	}

	var tmp mat.Dense
	tmp.Mul(dPre.T(), cache.input)
	grad.weightsInput.Add(grad.weightsInput, &tmp)

	if steps > 1 {
		var rec mat.Dense
		rec.Mul(dPre.Slice(1, steps, 0, numGates*h).T(), cache.hidden.Slice(0, steps-1, 0, h))
		grad.weightsHidden.Add(grad.weightsHidden, &rec)
	}

	biases := grad.biases.RawVector().Data
	for t := 0; t < steps; t++ {
		for k, v := range dPre.RawRowView(t) {
			biases[k] += v
		}
	}

	if !needInput {
		return nil
	}
	dInput := mat.NewDense(steps, l.inputSize, nil)
	dInput.Mul(dPre, l.weightsInput)
	return dInput
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func relu(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

// xavierFill draws every element from N(0, 2/(fanIn+fanOut)).
func xavierFill(m *mat.Dense, fanIn, fanOut int, rng *rand.Rand) {
	scale := math.Sqrt(2.0 / float64(fanIn+fanOut))
	data := m.RawMatrix().Data
	for i := range data {
		data[i] = rng.NormFloat64() * scale
	}
}
