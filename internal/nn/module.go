// Package nn implements neural network modules on top of the autodiff engine.
//
// This package provides building blocks for constructing neural networks:
//   - Module interface: Base interface for all NN components
//   - Parameter: Persistent trainable payload bound to each iteration's graph
//   - Linear: Fully connected layer
//   - Activations: ReLU, Tanh, LogSoftmax
//   - Loss functions: NLL, CrossEntropy, MSE
//   - Sequential: Container for stacking layers
//
// Modules never hold graph state between iterations: every Forward call
// records into the Graph it is given.
package nn

import (
	"github.com/born-ml/backprop/internal/autodiff"
)

// Module is the base interface for all neural network components.
//
// Modules can be composed to build complex architectures:
//
//	model := nn.NewSequential(
//	    nn.NewLinear(784, 128, rng),
//	    nn.NewReLU(),
//	    nn.NewLinear(128, 10, rng),
//	    nn.NewLogSoftmax(1),
//	)
type Module interface {
	// Forward records the module's computation on g and returns its output.
	Forward(g *autodiff.Graph, input autodiff.Node) (autodiff.Node, error)

	// Parameters returns all trainable parameters of this module.
	// Returns an empty slice for modules without trainable parameters.
	Parameters() []*Parameter
}

// ZeroGrad clears the gradients of every parameter of m.
func ZeroGrad(m Module) {
	for _, p := range m.Parameters() {
		p.ZeroGrad()
	}
}

// NumParameters returns the total number of scalar weights in m.
func NumParameters(m Module) int {
	n := 0
	for _, p := range m.Parameters() {
		n += p.NumElements()
	}
	return n
}
