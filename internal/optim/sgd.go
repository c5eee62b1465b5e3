package optim

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/backprop/internal/autodiff"
	"github.com/born-ml/backprop/internal/nn"
	"github.com/born-ml/backprop/internal/tensor"
)

// SGD implements Stochastic Gradient Descent optimizer with optional momentum.
//
// Update rule without momentum:
//
//	param = param - lr * gradient
//
// Update rule with momentum:
//
//	velocity = momentum * velocity + gradient
//	param = param - lr * velocity
//
// A non-zero WeightDecay adds weight_decay * param to the gradient first.
type SGD struct {
	params      []*nn.Parameter
	lr          float64
	momentum    float64
	weightDecay float64
	velocities  map[*nn.Parameter]*tensor.Tensor
}

// SGDConfig holds configuration for SGD optimizer.
type SGDConfig struct {
	LR          float64 // Learning rate (default: 0.01)
	Momentum    float64 // Momentum factor (default: 0.0, range: [0, 1))
	WeightDecay float64 // L2 penalty (default: 0.0)
}

// NewSGD creates a new SGD optimizer.
func NewSGD(params []*nn.Parameter, config SGDConfig) *SGD {
	if config.LR == 0 {
		config.LR = 0.01
	}

	return &SGD{
		params:      params,
		lr:          config.LR,
		momentum:    config.Momentum,
		weightDecay: config.WeightDecay,
		velocities:  make(map[*nn.Parameter]*tensor.Tensor),
	}
}

// Step performs a single optimization step.
func (s *SGD) Step() error {
	for _, param := range s.params {
		grad, err := gradientOf(param)
		if err != nil {
			return err
		}
		if grad == nil {
			continue
		}

		step := grad.Data()
		if s.weightDecay != 0 {
			step = append([]float64(nil), step...)
			floats.AddScaled(step, s.weightDecay, param.Value().Data())
		}

		if s.momentum != 0 {
			velocity, ok := s.velocities[param]
			if !ok {
				velocity = tensor.ZerosLike(param.Value())
				s.velocities[param] = velocity
			}
			// velocity = momentum * velocity + grad
			floats.Scale(s.momentum, velocity.Data())
			floats.Add(velocity.Data(), step)
			step = velocity.Data()
		}

		floats.AddScaled(param.Value().Data(), -s.lr, step)
	}
	return nil
}

// ZeroGrad clears gradients for all parameters.
func (s *SGD) ZeroGrad() {
	zeroGrad(s.params)
}

// LR returns the current learning rate.
func (s *SGD) LR() float64 {
	return s.lr
}

// SetLR updates the learning rate.
func (s *SGD) SetLR(lr float64) {
	s.lr = lr
}

// StateDict returns the momentum buffers keyed "velocity.{param_index}".
// Without momentum the map is empty.
func (s *SGD) StateDict() map[string]*tensor.Tensor {
	state := make(map[string]*tensor.Tensor)
	if s.momentum == 0 {
		return state
	}
	for i, param := range s.params {
		if velocity, ok := s.velocities[param]; ok {
			state[fmt.Sprintf("velocity.%d", i)] = velocity.Clone()
		}
	}
	return state
}

// LoadStateDict restores momentum buffers saved by StateDict.
// Missing entries start from zero on the next step.
func (s *SGD) LoadStateDict(state map[string]*tensor.Tensor) error {
	if s.momentum == 0 {
		return nil
	}

	velocities := make(map[*nn.Parameter]*tensor.Tensor)
	for i, param := range s.params {
		velocity, ok := state[fmt.Sprintf("velocity.%d", i)]
		if !ok {
			continue
		}
		if !velocity.Shape().Equal(param.Value().Shape()) {
			return errors.Wrapf(autodiff.ErrShapeMismatch, "velocity %d: expected %v, got %v",
				i, param.Value().Shape(), velocity.Shape())
		}
		velocities[param] = velocity.Clone()
	}
	s.velocities = velocities
	return nil
}
