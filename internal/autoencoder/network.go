package autoencoder

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Layer names of the encoder/decoder stack, in evaluation order.
var lstmLayerNames = []string{"input", "encoder1", "encoder2", "decoder1", "decoder2"}

const outputLayerName = "output"

// parameter is a named view of a learnable tensor's backing storage.
type parameter struct {
	name  string
	value []float64
	decay bool
}

// Network is the stacked-LSTM autoencoder: three encoder layers narrowing
// to the bottleneck, two mirrored decoder layers and a dense output layer.
type Network struct {
	layers []*LSTMLayer
	output *DenseLayer
}

type networkGrad struct {
	layers []*lstmGrad
	output *denseGrad
}

// Topology returns the LSTM in/out sizes for layers = [d0, d1, d2, d3]:
// d0→d1, d1→d2, d2→d3, d3→d2, d2→d1. The output layer maps d1→d0.
func Topology(layers []int) [][2]int {
	d0, d1, d2, d3 := layers[0], layers[1], layers[2], layers[3]
	return [][2]int{{d0, d1}, {d1, d2}, {d2, d3}, {d3, d2}, {d2, d1}}
}

// NewNetwork builds a randomly initialized network for layers = [d0, d1, d2, d3].
func NewNetwork(layers []int, forgetBias float64, rng *rand.Rand) (*Network, error) {
	if err := validateLayers(layers); err != nil {
		return nil, err
	}
	net := &Network{}
	for i, shape := range Topology(layers) {
		net.layers = append(net.layers, NewLSTMLayer(lstmLayerNames[i], shape[0], shape[1], forgetBias, rng))
	}
	net.output = NewDenseLayer(outputLayerName, layers[1], layers[0], rng)
	return net, nil
}

func validateLayers(layers []int) error {
	if len(layers) != 4 {
		return fmt.Errorf("expected 4 layer sizes, got %d", len(layers))
	}
	for i, size := range layers {
		if size <= 0 {
			return fmt.Errorf("layer size %d must be positive, got %d", i, size)
		}
	}
	return nil
}

// InputSize returns the feature dimensionality of the network.
func (n *Network) InputSize() int {
	return n.layers[0].inputSize
}

// Layers returns the recurrent layers in evaluation order.
func (n *Network) Layers() []*LSTMLayer {
	return n.layers
}

// Output returns the dense output layer.
func (n *Network) Output() *DenseLayer {
	return n.output
}

// NumParameters returns the number of learnable scalars.
func (n *Network) NumParameters() int {
	var total int
	for _, p := range n.parameters() {
		total += len(p.value)
	}
	return total
}

// parameters lists every learnable tensor; the order matches
// networkGrad.slices.
func (n *Network) parameters() []*parameter {
	var params []*parameter
	for _, l := range n.layers {
		params = append(params, l.parameters()...)
	}
	return append(params, n.output.parameters()...)
}

func (n *Network) newGrad() *networkGrad {
	g := &networkGrad{output: n.output.newGrad()}
	for _, l := range n.layers {
		g.layers = append(g.layers, l.newGrad())
	}
	return g
}

func (g *networkGrad) slices() [][]float64 {
	var res [][]float64
	for _, l := range g.layers {
		res = append(res, l.slices()...)
	}
	return append(res, g.output.slices()...)
}

// add accumulates other into g.
func (g *networkGrad) add(other *networkGrad) {
	dst, src := g.slices(), other.slices()
	for i := range dst {
		floats.Add(dst[i], src[i])
	}
}

// scale multiplies every gradient by s.
func (g *networkGrad) scale(s float64) {
	for _, v := range g.slices() {
		floats.Scale(s, v)
	}
}

// norm returns the global L2 norm of all gradients.
func (g *networkGrad) norm() float64 {
	var sum float64
	for _, v := range g.slices() {
		n := floats.Norm(v, 2)
		sum += n * n
	}
	return math.Sqrt(sum)
}

// reconstruct runs the window through the network and returns the
// reconstruction and the caches needed for back-propagation.
func (n *Network) reconstruct(input *mat.Dense) (*mat.Dense, []*lstmCache) {
	caches := make([]*lstmCache, len(n.layers))
	current := input
	for i, l := range n.layers {
		caches[i] = l.forward(current)
		current = caches[i].hidden
	}
	return n.output.forward(current), caches
}

// Loss returns the mean squared error between input and its reconstruction.
func (n *Network) Loss(input *mat.Dense) float64 {
	output, _ := n.reconstruct(input)
	return meanSquaredError(output, input)
}

// gradient adds the gradient of the reconstruction loss of input to grad
// and returns the loss.
func (n *Network) gradient(input *mat.Dense, grad *networkGrad) float64 {
	output, caches := n.reconstruct(input)
	loss := meanSquaredError(output, input)

	steps, features := input.Dims()
	upstream := mat.NewDense(steps, features, nil)
	upstream.Sub(output, input)
	upstream.Scale(2/float64(steps*features), upstream)

	last := caches[len(caches)-1].hidden
	dHidden := n.output.backward(last, upstream, grad.output)
	for i := len(n.layers) - 1; i >= 0; i-- {
		dHidden = n.layers[i].backward(caches[i], dHidden, grad.layers[i], i > 0)
	}
	return loss
}

func meanSquaredError(actual, desired *mat.Dense) float64 {
	rows, cols := actual.Dims()
	var diff mat.Dense
	diff.Sub(actual, desired)
	var sum float64
	for t := 0; t < rows; t++ {
		for _, v := range diff.RawRowView(t) {
			sum += v * v
		}
	}
	return sum / float64(rows*cols)
}
