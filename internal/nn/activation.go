package nn

import (
	"github.com/born-ml/backprop/internal/autodiff"
)

// ReLU is a Rectified Linear Unit activation module.
//
// Applies the element-wise function: f(x) = max(0, x)
type ReLU struct{}

// NewReLU creates a new ReLU activation module.
func NewReLU() *ReLU {
	return &ReLU{}
}

// Forward applies ReLU activation.
func (r *ReLU) Forward(g *autodiff.Graph, input autodiff.Node) (autodiff.Node, error) {
	return g.ReLU(input)
}

// Parameters returns nil (ReLU has no trainable parameters).
func (r *ReLU) Parameters() []*Parameter {
	return nil
}

// Tanh is a hyperbolic tangent activation module.
//
// Tanh squashes values to the range (-1, 1).
type Tanh struct{}

// NewTanh creates a new Tanh activation module.
func NewTanh() *Tanh {
	return &Tanh{}
}

// Forward applies Tanh activation.
func (t *Tanh) Forward(g *autodiff.Graph, input autodiff.Node) (autodiff.Node, error) {
	return g.Tanh(input)
}

// Parameters returns nil (Tanh has no trainable parameters).
func (t *Tanh) Parameters() []*Parameter {
	return nil
}

// LogSoftmax turns logits into log-probabilities along an axis.
//
// Placed last in a classifier, its output feeds NLLLoss directly.
type LogSoftmax struct {
	axis int
}

// NewLogSoftmax creates a LogSoftmax module over axis (negative counts from
// the last dimension).
func NewLogSoftmax(axis int) *LogSoftmax {
	return &LogSoftmax{axis: axis}
}

// Forward applies log-softmax.
func (l *LogSoftmax) Forward(g *autodiff.Graph, input autodiff.Node) (autodiff.Node, error) {
	return g.LogSoftmax(input, l.axis)
}

// Parameters returns nil.
func (l *LogSoftmax) Parameters() []*Parameter {
	return nil
}
