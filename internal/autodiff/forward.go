package autodiff

import (
	"github.com/pkg/errors"

	"github.com/born-ml/backprop/internal/tensor"
)

// Add returns a + b with NumPy-style broadcasting.
func (g *Graph) Add(a, b Node) (Node, error) {
	return g.apply(OpAdd, attrs{}, a, b)
}

// Sub returns a - b with NumPy-style broadcasting.
func (g *Graph) Sub(a, b Node) (Node, error) {
	return g.apply(OpSub, attrs{}, a, b)
}

// Mul returns the element-wise product a * b with NumPy-style broadcasting.
func (g *Graph) Mul(a, b Node) (Node, error) {
	return g.apply(OpMul, attrs{}, a, b)
}

// Pow raises x element-wise to the scalar exponent p.
func (g *Graph) Pow(x Node, p float64) (Node, error) {
	return g.apply(OpPow, attrs{exponent: p}, x)
}

// MatMul returns the matrix product a @ b of two 2D nodes.
func (g *Graph) MatMul(a, b Node) (Node, error) {
	return g.apply(OpMatMul, attrs{}, a, b)
}

// Transpose swaps the axes of a 2D node.
func (g *Graph) Transpose(x Node) (Node, error) {
	return g.apply(OpTranspose, attrs{}, x)
}

// ReLU returns max(0, x) element-wise.
func (g *Graph) ReLU(x Node) (Node, error) {
	return g.apply(OpReLU, attrs{}, x)
}

// Tanh returns tanh(x) element-wise.
func (g *Graph) Tanh(x Node) (Node, error) {
	return g.apply(OpTanh, attrs{}, x)
}

// Exp returns e^x element-wise.
func (g *Graph) Exp(x Node) (Node, error) {
	return g.apply(OpExp, attrs{}, x)
}

// Log returns the natural logarithm of x element-wise.
func (g *Graph) Log(x Node) (Node, error) {
	return g.apply(OpLog, attrs{}, x)
}

// Sum reduces x to a scalar holding the sum of its elements.
func (g *Graph) Sum(x Node) (Node, error) {
	return g.apply(OpSum, attrs{}, x)
}

// Mean reduces x to a scalar holding the mean of its elements.
func (g *Graph) Mean(x Node) (Node, error) {
	return g.apply(OpMean, attrs{}, x)
}

// LogSoftmax computes log(softmax(x)) along axis in a numerically stable way.
// Negative axes count from the last dimension.
func (g *Graph) LogSoftmax(x Node, axis int) (Node, error) {
	return g.apply(OpLogSoftmax, attrs{axis: axis}, x)
}

// NLLLoss returns the mean negative log-likelihood of the target classes.
//
// logProbs must be [batch, classes] log-probabilities (typically the output of
// LogSoftmax along axis 1) and targets one class index per sample.
func (g *Graph) NLLLoss(logProbs Node, targets []int) (Node, error) {
	return g.apply(OpNLLLoss, attrs{targets: append([]int(nil), targets...)}, logProbs)
}

// apply evaluates an operation and, when any input tracks gradients outside a
// NoGrad scope, attaches its record to the output.
func (g *Graph) apply(kind OpKind, at attrs, inputs ...Node) (Node, error) {
	r := &rules[kind]
	if len(inputs) != r.arity {
		return Node{}, errors.Errorf("%s: expected %d inputs, got %d", r.name, r.arity, len(inputs))
	}

	values := make([]*tensor.Tensor, len(inputs))
	ids := make([]int, len(inputs))
	tracks := false
	for i, in := range inputs {
		if err := g.owns(in); err != nil {
			return Node{}, errors.Wrapf(err, "%s: input %d", r.name, i)
		}
		s := &g.nodes[in.id]
		values[i] = s.value
		ids[i] = in.id
		tracks = tracks || s.tracks
	}

	out, saved, err := r.forward(values, &at)
	if err != nil {
		return Node{}, errors.Wrap(err, r.name)
	}

	if !tracks || !g.tracking() {
		return g.push(node{value: out}), nil
	}
	return g.push(node{
		value:  out,
		tracks: true,
		record: &record{kind: kind, inputs: ids, attrs: at, saved: saved},
	}), nil
}

// owns checks that n is a live node of g.
func (g *Graph) owns(n Node) error {
	if n.graph != g || !n.Valid() {
		return errors.Wrapf(ErrForeignNode, "node %d", n.id)
	}
	return nil
}
