package nn

import (
	"math/rand/v2"

	"github.com/pkg/errors"

	"github.com/born-ml/backprop/internal/autodiff"
	"github.com/born-ml/backprop/internal/tensor"
)

// Linear implements a fully connected (dense) layer.
//
// Performs the transformation: y = x @ W + b
// where:
//   - x is the input with shape [batch_size, in_features]
//   - W is the weight matrix with shape [in_features, out_features]
//   - b is the bias vector with shape [out_features], broadcast over the batch
//   - y is the output with shape [batch_size, out_features]
//
// Weights use Kaiming uniform initialization; biases start at zero.
//
// Example:
//
//	layer := nn.NewLinear(784, 128, rng)
//	out, err := layer.Forward(g, x) // [32, 784] -> [32, 128]
type Linear struct {
	inFeatures  int
	outFeatures int
	weight      *Parameter // [in_features, out_features]
	bias        *Parameter // [out_features]
}

// NewLinear creates a new Linear layer drawing its weights from rng.
func NewLinear(inFeatures, outFeatures int, rng *rand.Rand) *Linear {
	weight := KaimingUniform(inFeatures, tensor.Shape{inFeatures, outFeatures}, rng)
	return NewLinearFrom(weight, Zeros(tensor.Shape{outFeatures}))
}

// NewLinearFrom creates a Linear layer around existing weight and bias
// tensors. bias may be nil for a layer without bias.
func NewLinearFrom(weight, bias *tensor.Tensor) *Linear {
	shape := weight.Shape()
	l := &Linear{
		inFeatures:  shape[0],
		outFeatures: shape[1],
		weight:      NewParameter("weight", weight),
	}
	if bias != nil {
		l.bias = NewParameter("bias", bias)
	}
	return l
}

// Forward computes x @ W + b.
func (l *Linear) Forward(g *autodiff.Graph, input autodiff.Node) (autodiff.Node, error) {
	shape := input.Shape()
	if len(shape) != 2 || shape[1] != l.inFeatures {
		return autodiff.Node{}, errors.Wrapf(autodiff.ErrShapeMismatch,
			"linear: expected input [batch, %d], got %v", l.inFeatures, shape)
	}

	out, err := g.MatMul(input, l.weight.Node(g))
	if err != nil {
		return autodiff.Node{}, errors.Wrap(err, "linear")
	}
	if l.bias == nil {
		return out, nil
	}
	return g.Add(out, l.bias.Node(g))
}

// Parameters returns [weight, bias], or [weight] for a layer without bias.
func (l *Linear) Parameters() []*Parameter {
	if l.bias != nil {
		return []*Parameter{l.weight, l.bias}
	}
	return []*Parameter{l.weight}
}

// Weight returns the weight parameter.
func (l *Linear) Weight() *Parameter {
	return l.weight
}

// Bias returns the bias parameter, nil for a layer without bias.
func (l *Linear) Bias() *Parameter {
	return l.bias
}

// InFeatures returns the number of input features.
func (l *Linear) InFeatures() int {
	return l.inFeatures
}

// OutFeatures returns the number of output features.
func (l *Linear) OutFeatures() int {
	return l.outFeatures
}
