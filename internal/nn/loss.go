package nn

import (
	"github.com/pkg/errors"

	"github.com/born-ml/backprop/internal/autodiff"
)

// NLLLoss computes the negative log-likelihood of class targets from
// log-probabilities, typically the output of a final LogSoftmax module.
//
//	Loss = -mean_b logProbs[b, target_b]
type NLLLoss struct{}

// NewNLLLoss creates a new NLL loss function.
func NewNLLLoss() *NLLLoss {
	return &NLLLoss{}
}

// Forward computes the mean NLL over the batch.
func (n *NLLLoss) Forward(g *autodiff.Graph, logProbs autodiff.Node, targets []int) (autodiff.Node, error) {
	return g.NLLLoss(logProbs, targets)
}

// MSELoss computes Mean Squared Error loss.
//
// Loss = mean((predictions - targets)²)
//
// MSE is commonly used for regression tasks where the goal is to predict
// continuous values.
type MSELoss struct{}

// NewMSELoss creates a new MSE loss function.
func NewMSELoss() *MSELoss {
	return &MSELoss{}
}

// Forward computes the MSE loss. predictions and targets must have the same shape.
func (m *MSELoss) Forward(g *autodiff.Graph, predictions, targets autodiff.Node) (autodiff.Node, error) {
	if !predictions.Shape().Equal(targets.Shape()) {
		return autodiff.Node{}, errors.Wrapf(autodiff.ErrShapeMismatch, "mse: predictions %v vs targets %v",
			predictions.Shape(), targets.Shape())
	}

	diff, err := g.Sub(predictions, targets)
	if err != nil {
		return autodiff.Node{}, err
	}
	squared, err := g.Pow(diff, 2)
	if err != nil {
		return autodiff.Node{}, err
	}
	return g.Mean(squared)
}
