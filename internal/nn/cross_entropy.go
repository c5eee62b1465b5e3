package nn

import (
	"github.com/pkg/errors"

	"github.com/born-ml/backprop/internal/autodiff"
	"github.com/born-ml/backprop/internal/backend/cpu"
	"github.com/born-ml/backprop/internal/tensor"
)

// ClassificationLoss scores a batch of model outputs against class indices.
type ClassificationLoss interface {
	Forward(g *autodiff.Graph, output autodiff.Node, targets []int) (autodiff.Node, error)
}

// CrossEntropyLoss computes cross-entropy loss for multi-class classification.
//
// It expects raw logits and decomposes into LogSoftmax + NLLLoss, which keeps
// the log-sum-exp numerically stable for large logits.
//
//	Loss = -mean_b log_softmax(logits)[b, target_b]
//	∂L/∂logits = (softmax(logits) - onehot) / B
type CrossEntropyLoss struct{}

// NewCrossEntropyLoss creates a new cross-entropy loss function.
func NewCrossEntropyLoss() *CrossEntropyLoss {
	return &CrossEntropyLoss{}
}

// Forward computes the mean cross-entropy of logits [batch, classes].
func (c *CrossEntropyLoss) Forward(g *autodiff.Graph, logits autodiff.Node, targets []int) (autodiff.Node, error) {
	logProbs, err := g.LogSoftmax(logits, 1)
	if err != nil {
		return autodiff.Node{}, errors.Wrap(err, "cross-entropy")
	}
	return g.NLLLoss(logProbs, targets)
}

// Argmax returns the predicted class for each row of a [batch, classes] tensor.
func Argmax(outputs *tensor.Tensor) ([]int, error) {
	return cpu.Argmax(outputs)
}

// Accuracy returns the fraction of rows of outputs whose largest entry is at
// the target class. outputs may be logits or log-probabilities.
func Accuracy(outputs *tensor.Tensor, targets []int) (float64, error) {
	predicted, err := Argmax(outputs)
	if err != nil {
		return 0, err
	}
	if len(predicted) != len(targets) {
		return 0, errors.Wrapf(autodiff.ErrShapeMismatch, "accuracy: %d predictions for %d targets",
			len(predicted), len(targets))
	}
	if len(targets) == 0 {
		return 0, nil
	}
	return float64(Correct(predicted, targets)) / float64(len(targets)), nil
}

// Correct counts the positions where predicted matches targets.
func Correct(predicted, targets []int) int {
	n := 0
	for i, p := range predicted {
		if p == targets[i] {
			n++
		}
	}
	return n
}
