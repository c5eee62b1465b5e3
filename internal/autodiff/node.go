package autodiff

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/born-ml/backprop/internal/tensor"
)

// Node is a handle to a value recorded in a Graph.
// The zero Node belongs to no graph and is rejected by every operation.
type Node struct {
	graph *Graph
	id    int
}

// Graph returns the graph owning the node.
func (n Node) Graph() *Graph {
	return n.graph
}

// ID returns the node's arena index.
func (n Node) ID() int {
	return n.id
}

// Valid reports whether the node refers to a graph slot.
func (n Node) Valid() bool {
	return n.graph != nil && n.id >= 0 && n.id < len(n.graph.nodes)
}

func (n Node) slot() *node {
	if !n.Valid() {
		panic("autodiff: use of invalid Node")
	}
	return &n.graph.nodes[n.id]
}

// Value returns the node's payload.
//
// WARNING: the tensor is shared with the graph; do not modify it.
func (n Node) Value() *tensor.Tensor {
	return n.slot().value
}

// Shape returns the payload shape.
func (n Node) Shape() tensor.Shape {
	return n.slot().value.Shape()
}

// Item returns the value of a single-element node.
func (n Node) Item() (float64, error) {
	return n.slot().value.Item()
}

// TracksGradient reports whether gradients flow into this node.
func (n Node) TracksGradient() bool {
	return n.slot().tracks
}

// IsLeaf reports whether the node has no producing operation record.
func (n Node) IsLeaf() bool {
	return n.slot().record == nil
}

// Op returns the kind of operation that produced the node, or OpNone for leaves.
func (n Node) Op() OpKind {
	if rec := n.slot().record; rec != nil {
		return rec.kind
	}
	return OpNone
}

// Grad returns the accumulated gradient of a tracked leaf.
//
// It returns ErrUntrackedGradient for nodes that do not track gradients and
// (nil, nil) while the node is ungraded: before any backward pass reached it,
// after ZeroGrad, and always for intermediate nodes, whose gradients are not
// retained.
//
// The returned tensor is the live buffer; it changes on the next Backward.
func (n Node) Grad() (*tensor.Tensor, error) {
	s := n.slot()
	if !s.tracks {
		return nil, errors.Wrapf(ErrUntrackedGradient, "grad of node %d", n.id)
	}
	return s.grad.Grad(), nil
}

// HasGrad reports whether the node currently holds an accumulated gradient.
func (n Node) HasGrad() bool {
	return n.slot().grad.HasGrad()
}

// ZeroGrad resets the node's accumulated gradient. For a leaf created with
// Bind this resets the caller's buffer. No-op for untracked nodes.
func (n Node) ZeroGrad() {
	n.slot().grad.Zero()
}

// GradBuffer accumulates the gradient of a tracked leaf.
//
// The zero value is an empty buffer. A nil *GradBuffer reads as empty.
type GradBuffer struct {
	grad *tensor.Tensor // allocated on the first backward contribution
}

// NewGradBuffer returns an empty gradient buffer.
func NewGradBuffer() *GradBuffer {
	return &GradBuffer{}
}

// Grad returns the accumulated gradient, or nil while the buffer is empty.
//
// The returned tensor is the live buffer; it changes on the next Backward.
func (b *GradBuffer) Grad() *tensor.Tensor {
	if b == nil {
		return nil
	}
	return b.grad
}

// HasGrad reports whether any backward pass has written to the buffer since
// the last Zero.
func (b *GradBuffer) HasGrad() bool {
	return b != nil && b.grad != nil
}

// Zero empties the buffer. The next contribution allocates it again.
func (b *GradBuffer) Zero() {
	if b != nil {
		b.grad = nil
	}
}

// Detach returns a new leaf with the same payload that does not track
// gradients, stopping gradient flow at this point.
func (n Node) Detach() Node {
	return n.graph.push(node{value: n.slot().value, tracks: false})
}

// String returns a short description of the node.
func (n Node) String() string {
	if !n.Valid() {
		return "Node(invalid)"
	}
	s := n.slot()
	return fmt.Sprintf("Node#%d(%s, %v, tracks=%t)", n.id, n.Op(), s.value.Shape(), s.tracks)
}
