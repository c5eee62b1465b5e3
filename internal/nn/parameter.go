package nn

import (
	"github.com/born-ml/backprop/internal/autodiff"
	"github.com/born-ml/backprop/internal/tensor"
)

// Parameter represents a trainable parameter in a neural network.
//
// A Parameter owns a persistent payload and gradient buffer that outlive any
// single Graph. Each forward pass binds it to that iteration's graph as a
// tracked leaf with Node. Backward adds into the parameter's buffer, so
// gradients keep accumulating across graphs until ZeroGrad; optimizers read
// that buffer and update the payload in place.
//
// Example:
//
//	weight := nn.NewParameter("weight", w)
//
//	g := autodiff.NewGraph()
//	y, _ := g.MatMul(x, weight.Node(g))
//	// ... loss, g.Backward(loss) ...
//	grad := weight.Grad()
//	weight.ZeroGrad()
type Parameter struct {
	name  string
	value *tensor.Tensor
	grad  *autodiff.GradBuffer

	// Binding to the most recent graph.
	graph *autodiff.Graph
	node  autodiff.Node
}

// NewParameter creates a new trainable parameter.
func NewParameter(name string, value *tensor.Tensor) *Parameter {
	return &Parameter{
		name:  name,
		value: value,
		grad:  autodiff.NewGradBuffer(),
	}
}

// Name returns the parameter name.
func (p *Parameter) Name() string {
	return p.name
}

// Value returns the persistent parameter payload.
func (p *Parameter) Value() *tensor.Tensor {
	return p.value
}

// Node returns the parameter as a tracked leaf of g.
//
// The leaf is created on the first call for a given graph and reused after
// that, so a parameter consumed several times in one forward pass is a single
// leaf. Every binding shares the parameter's gradient buffer.
func (p *Parameter) Node(g *autodiff.Graph) autodiff.Node {
	if p.graph != g {
		p.graph = g
		p.node = g.Bind(p.value, p.grad)
	}
	return p.node
}

// Grad returns the gradient accumulated since the last ZeroGrad, or nil
// when no backward pass has reached the parameter since then.
func (p *Parameter) Grad() *tensor.Tensor {
	return p.grad.Grad()
}

// ZeroGrad clears the accumulated gradient.
func (p *Parameter) ZeroGrad() {
	p.grad.Zero()
}

// NumElements returns the number of scalar weights in the parameter.
func (p *Parameter) NumElements() int {
	return p.value.NumElements()
}
