package autodiff

import (
	"github.com/pkg/errors"

	"github.com/born-ml/backprop/internal/backend/cpu"
	"github.com/born-ml/backprop/internal/tensor"
)

// BackwardOption configures a single Backward call.
type BackwardOption func(*backwardConfig)

type backwardConfig struct {
	release bool
}

// ReleaseGraph drops every saved intermediate once the backward pass has
// completed, as Graph.Release does.
func ReleaseGraph() BackwardOption {
	return func(c *backwardConfig) {
		c.release = true
	}
}

// Backward computes d(root)/d(leaf) for every tracked leaf reachable from root
// and adds it into the leaf's gradient buffer.
//
// Algorithm:
//  1. Mark the tracked nodes reachable from root through operation records.
//  2. Seed root with 1 and sweep the marked nodes in descending index order.
//     Every consumer of a node has a larger index, so a node's gradient is
//     complete before its own rule runs.
//  3. Commit the collected leaf gradients.
//
// The call is atomic: on error no gradient buffer has been touched.
// Intermediate gradients live only for the duration of the call.
func (g *Graph) Backward(root Node, opts ...BackwardOption) error {
	cfg := backwardConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := g.owns(root); err != nil {
		return errors.Wrap(err, "backward")
	}
	rootSlot := &g.nodes[root.id]
	if !rootSlot.value.IsScalar() {
		return errors.Wrapf(ErrNonScalarRoot, "backward: root shape %v", rootSlot.value.Shape())
	}
	if !rootSlot.tracks {
		return errors.Wrap(ErrUntrackedGradient, "backward: root")
	}

	reachable := g.reachable(root.id)
	if err := g.validate(reachable); err != nil {
		return err
	}

	grads := make([]*tensor.Tensor, root.id+1)
	grads[root.id] = tensor.Ones(rootSlot.value.Shape())

	for id := root.id; id >= 0; id-- {
		if !reachable[id] || grads[id] == nil {
			continue
		}
		rec := g.nodes[id].record
		if rec == nil {
			continue
		}
		if err := g.propagate(rec, grads[id], grads); err != nil {
			return errors.Wrapf(err, "backward through %s (node %d)", rec.kind, id)
		}
		grads[id] = nil
	}

	g.commit(grads)

	if cfg.release {
		g.Release()
	}
	return nil
}

// reachable marks every tracked node that root depends on.
func (g *Graph) reachable(root int) []bool {
	seen := make([]bool, root+1)
	seen[root] = true
	stack := []int{root}

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		rec := g.nodes[id].record
		if rec == nil {
			continue
		}
		for _, in := range rec.inputs {
			if !seen[in] && g.nodes[in].tracks {
				seen[in] = true
				stack = append(stack, in)
			}
		}
	}
	return seen
}

// validate rejects passes that would read released intermediates or, in
// strict mode, accumulate into a gradient that was never reset.
func (g *Graph) validate(reachable []bool) error {
	for id, ok := range reachable {
		if !ok {
			continue
		}
		s := &g.nodes[id]
		if s.record != nil && s.record.released {
			return errors.Wrapf(ErrStaleGraph, "backward: %s (node %d)", s.record.kind, id)
		}
		if g.strict && s.record == nil && s.grad.HasGrad() {
			return errors.Wrapf(ErrGradientNotReset, "backward: leaf node %d", id)
		}
	}
	return nil
}

// propagate runs one backward rule and sums its contributions into grads.
func (g *Graph) propagate(rec *record, outGrad *tensor.Tensor, grads []*tensor.Tensor) error {
	needs := make([]bool, len(rec.inputs))
	for i, in := range rec.inputs {
		needs[i] = g.nodes[in].tracks
	}

	contributions, err := rules[rec.kind].backward(rec.saved, &rec.attrs, outGrad, needs)
	if err != nil {
		return err
	}

	for i, in := range rec.inputs {
		if !needs[i] {
			continue
		}
		c := contributions[i]
		want := g.nodes[in].value.Shape()
		if c == nil || !c.Shape().Equal(want) {
			return errors.Wrapf(ErrShapeMismatch, "gradient for input %d does not match payload shape %v", i, want)
		}
		if grads[in] == nil {
			grads[in] = c
			continue
		}
		if err := cpu.AddInto(grads[in], c); err != nil {
			return err
		}
	}
	return nil
}

// commit adds the collected gradients into tracked leaves, allocating each
// buffer on first write.
func (g *Graph) commit(grads []*tensor.Tensor) {
	for id, grad := range grads {
		if grad == nil {
			continue
		}
		s := &g.nodes[id]
		if s.record != nil || s.grad == nil {
			continue
		}
		if s.grad.grad == nil {
			s.grad.grad = grad
			continue
		}
		// Shapes were checked in propagate.
		_ = cpu.AddInto(s.grad.grad, grad)
	}
}
