// Package autodiff implements reverse-mode automatic differentiation.
//
// Architecture:
//   - Graph: an arena owning every node created during one forward pass.
//     It is per-iteration state owned by the caller; drop it (or build a new
//     one) to reclaim the whole iteration.
//   - Node: a (graph, index) handle. Inputs always have smaller indices than
//     the outputs computed from them, which keeps the graph acyclic and makes a
//     descending index sweep a valid reverse topological order.
//   - Operation records: a closed OpKind enum plus a rule table pairing each
//     kind with its forward and backward functions.
//   - Backward: seeds the scalar root with 1, propagates through every
//     reachable record and accumulates into tracked leaves.
//   - GradBuffer: the gradient accumulator of a tracked leaf. Graph.Bind
//     lets a caller-owned buffer collect gradients across graphs.
//
// Usage:
//
//	g := autodiff.NewGraph()
//	x := g.Leaf(tensor.Full(tensor.Shape{1, 1}, 3), true)
//	y, _ := g.Pow(x, 2)
//	z, _ := g.Mean(y)
//	_ = g.Backward(z)
//	grad, _ := x.Grad() // [[6]]
//
// Gradients accumulate across Backward calls until the caller resets them
// with Node.ZeroGrad. A Graph is not safe for concurrent use.
package autodiff

import (
	"github.com/born-ml/backprop/internal/tensor"
)

// Graph records nodes and operations for one forward/backward cycle.
type Graph struct {
	nodes  []node
	noGrad int  // depth of nested NoGrad scopes
	strict bool // report a missing ZeroGrad instead of accumulating
}

// node is one arena slot.
type node struct {
	value  *tensor.Tensor
	grad   *GradBuffer // tracked leaves only
	tracks bool
	record *record // nil for leaves and untracked results
}

// record is the operation that produced a node.
type record struct {
	kind     OpKind
	inputs   []int // arena indices, non-owning
	attrs    attrs
	saved    []*tensor.Tensor
	released bool
}

// GraphOption configures a Graph.
type GraphOption func(*Graph)

// WithStrictReset makes Backward fail with ErrGradientNotReset when it would
// accumulate into a leaf gradient left over from an earlier pass.
func WithStrictReset() GraphOption {
	return func(g *Graph) {
		g.strict = true
	}
}

// WithCapacity pre-allocates room for n nodes.
func WithCapacity(n int) GraphOption {
	return func(g *Graph) {
		g.nodes = make([]node, 0, n)
	}
}

// NewGraph creates an empty graph.
func NewGraph(opts ...GraphOption) *Graph {
	g := &Graph{}
	for _, opt := range opts {
		opt(g)
	}
	if g.nodes == nil {
		g.nodes = make([]node, 0, 64)
	}
	return g
}

// Leaf declares an input or parameter node with no producing operation.
//
// The payload is copied, so later in-place updates of the caller's tensor
// (for example by an optimizer) never alter values recorded in the graph.
func (g *Graph) Leaf(value *tensor.Tensor, tracksGradient bool) Node {
	if !tracksGradient {
		return g.push(node{value: value.Clone()})
	}
	return g.Bind(value, nil)
}

// Bind declares a tracked leaf whose gradient accumulates into buf.
//
// The buffer belongs to the caller and may outlive the graph, so gradients
// of a value bound into successive graphs keep accumulating until the caller
// resets the buffer. A nil buf gets a fresh buffer owned by the leaf.
func (g *Graph) Bind(value *tensor.Tensor, buf *GradBuffer) Node {
	if buf == nil {
		buf = &GradBuffer{}
	}
	return g.push(node{value: value.Clone(), grad: buf, tracks: true})
}

// Constant declares a leaf that never tracks gradients.
func (g *Graph) Constant(value *tensor.Tensor) Node {
	return g.Leaf(value, false)
}

// NoGrad runs fn with gradient tracking disabled: every operation executed
// inside produces an untracked node with no operation record.
func (g *Graph) NoGrad(fn func() error) error {
	g.noGrad++
	defer func() { g.noGrad-- }()
	return fn()
}

// Len returns the number of nodes in the graph.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// NumOps returns the number of recorded operations.
func (g *Graph) NumOps() int {
	n := 0
	for i := range g.nodes {
		if g.nodes[i].record != nil {
			n++
		}
	}
	return n
}

// Release drops the intermediates saved by every recorded operation.
// Any later Backward that reaches one of them fails with ErrStaleGraph.
// Leaf gradients stay readable.
func (g *Graph) Release() {
	for i := range g.nodes {
		if rec := g.nodes[i].record; rec != nil {
			rec.saved = nil
			rec.released = true
		}
	}
}

func (g *Graph) push(n node) Node {
	g.nodes = append(g.nodes, n)
	return Node{graph: g, id: len(g.nodes) - 1}
}

func (g *Graph) tracking() bool {
	return g.noGrad == 0
}
