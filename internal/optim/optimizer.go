// Package optim implements optimization algorithms for training neural networks.
//
// This package provides:
//   - Optimizer interface: Base interface for all optimizers
//   - SGD: Stochastic Gradient Descent with momentum
//   - Adam: Adaptive Moment Estimation
//
// Optimizers read the gradient each nn.Parameter accumulated in its bound
// graph and update the persistent payload in place.
//
// Example usage:
//
//	optimizer := optim.NewSGD(model.Parameters(), optim.SGDConfig{
//	    LR:       0.003,
//	    Momentum: 0.9,
//	})
//
//	for _, batch := range batches {
//	    g := autodiff.NewGraph()
//	    out, _ := model.Forward(g, g.Constant(batch.Inputs))
//	    loss, _ := g.NLLLoss(out, batch.Targets)
//	    _ = g.Backward(loss)
//
//	    _ = optimizer.Step()
//	    optimizer.ZeroGrad()
//	}
package optim

import (
	"github.com/pkg/errors"

	"github.com/born-ml/backprop/internal/autodiff"
	"github.com/born-ml/backprop/internal/nn"
	"github.com/born-ml/backprop/internal/tensor"
)

// Optimizer is the base interface for all optimization algorithms.
type Optimizer interface {
	// Step applies one update to every parameter holding a gradient.
	// Parameters without a gradient (not reached by the last backward pass)
	// are skipped.
	Step() error

	// ZeroGrad clears all parameter gradients.
	ZeroGrad()

	// LR returns the current learning rate.
	LR() float64

	// SetLR updates the learning rate, for scheduling.
	SetLR(lr float64)
}

// gradientOf returns the parameter's gradient, nil when it has none.
func gradientOf(p *nn.Parameter) (*tensor.Tensor, error) {
	grad := p.Grad()
	if grad == nil {
		return nil, nil
	}
	if !grad.Shape().Equal(p.Value().Shape()) {
		return nil, errors.Wrapf(autodiff.ErrShapeMismatch, "parameter %s: gradient %v vs value %v",
			p.Name(), grad.Shape(), p.Value().Shape())
	}
	return grad, nil
}

// zeroGrad clears the gradients of params.
func zeroGrad(params []*nn.Parameter) {
	for _, p := range params {
		p.ZeroGrad()
	}
}
