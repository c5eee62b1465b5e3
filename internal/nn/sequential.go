package nn

import (
	"github.com/pkg/errors"

	"github.com/born-ml/backprop/internal/autodiff"
)

// Sequential is a container module that chains multiple modules together.
//
// Each module's output becomes the next module's input.
//
// Example:
//
//	model := nn.NewSequential(
//	    nn.NewLinear(784, 128, rng),
//	    nn.NewReLU(),
//	    nn.NewLinear(128, 10, rng),
//	)
type Sequential struct {
	modules []Module
}

// NewSequential creates a new Sequential container.
func NewSequential(modules ...Module) *Sequential {
	return &Sequential{
		modules: modules,
	}
}

// Forward applies all modules in sequence.
func (s *Sequential) Forward(g *autodiff.Graph, input autodiff.Node) (autodiff.Node, error) {
	output := input
	for i, module := range s.modules {
		var err error
		if output, err = module.Forward(g, output); err != nil {
			return autodiff.Node{}, errors.Wrapf(err, "sequential layer %d", i)
		}
	}
	return output, nil
}

// Parameters returns all trainable parameters from all modules, in order.
func (s *Sequential) Parameters() []*Parameter {
	var params []*Parameter
	for _, module := range s.modules {
		params = append(params, module.Parameters()...)
	}
	return params
}

// Modules returns the contained modules.
func (s *Sequential) Modules() []Module {
	return s.modules
}

// Len returns the number of modules.
func (s *Sequential) Len() int {
	return len(s.modules)
}
