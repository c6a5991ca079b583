package autoencoder

import (
	"math"

	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/constants"
)

// AdamOptimizer implements the Adam optimization algorithm
type AdamOptimizer struct {
	learningRate float64
	beta1        float64
	beta2        float64
	epsilon      float64
	t            int // time step

	// First and second moment estimates, one slice per parameter
	momentum [][]float64
	velocity [][]float64
}

// NewAdamOptimizer creates an Adam optimizer with the default moment decay
// rates.
func NewAdamOptimizer(learningRate float64) *AdamOptimizer {
	return &AdamOptimizer{
		learningRate: learningRate,
		beta1:        constants.DefaultAdamBeta1,
		beta2:        constants.DefaultAdamBeta2,
		epsilon:      constants.DefaultAdamEpsilon,
	}
}

// Steps returns the number of updates applied so far.
func (a *AdamOptimizer) Steps() int {
	return a.t
}

// Update applies one Adam step: params[i] -= lr * m̂ / (√v̂ + ε).
// grads must line up with params.
func (a *AdamOptimizer) Update(params []*parameter, grads [][]float64) {
	if a.momentum == nil {
		a.momentum = make([][]float64, len(params))
		a.velocity = make([][]float64, len(params))
		for i, p := range params {
			a.momentum[i] = make([]float64, len(p.value))
			a.velocity[i] = make([]float64, len(p.value))
		}
	}

	a.t++
	correction1 := 1 - math.Pow(a.beta1, float64(a.t))
	correction2 := 1 - math.Pow(a.beta2, float64(a.t))

	for i, p := range params {
		m, v, g := a.momentum[i], a.velocity[i], grads[i]
		for k := range p.value {
			m[k] = a.beta1*m[k] + (1-a.beta1)*g[k]
			v[k] = a.beta2*v[k] + (1-a.beta2)*g[k]*g[k]
			mHat := m[k] / correction1
			vHat := v[k] / correction2
			p.value[k] -= a.learningRate * mHat / (math.Sqrt(vHat) + a.epsilon)
		}
	}
}
