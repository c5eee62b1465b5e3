// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package autodiff provides reverse-mode automatic differentiation.
//
// A Graph records every node created during one forward pass. Operations are
// methods on the Graph; Backward propagates from a scalar root and
// accumulates gradients into the tracked leaves.
//
// Example:
//
//	import (
//	    "github.com/born-ml/backprop/autodiff"
//	    "github.com/born-ml/backprop/tensor"
//	)
//
//	func main() {
//	    g := autodiff.NewGraph()
//	    x := g.Leaf(tensor.Full(tensor.Shape{1, 1}, 3), true)
//	    y, _ := g.Pow(x, 2)
//	    loss, _ := g.Mean(y)
//
//	    _ = g.Backward(loss)
//	    grad, _ := x.Grad() // [[6]]
//	}
//
// Gradients accumulate across Backward calls until reset with ZeroGrad.
// Build a fresh Graph per training iteration; parameters that outlive it
// belong in nn.Parameter.
package autodiff

import (
	"github.com/born-ml/backprop/internal/autodiff"
)

// Graph is the arena of nodes and operation records for one forward/backward cycle.
type Graph = autodiff.Graph

// Node is a handle to a value in a Graph.
type Node = autodiff.Node

// GradBuffer accumulates the gradient of a tracked leaf. Bind a caller-owned
// buffer with Graph.Bind to keep accumulating across graphs.
type GradBuffer = autodiff.GradBuffer

// OpKind identifies a primitive operation.
type OpKind = autodiff.OpKind

// GraphOption configures a Graph.
type GraphOption = autodiff.GraphOption

// BackwardOption configures a single Backward call.
type BackwardOption = autodiff.BackwardOption

// Supported operations.
const (
	OpNone       = autodiff.OpNone
	OpAdd        = autodiff.OpAdd
	OpSub        = autodiff.OpSub
	OpMul        = autodiff.OpMul
	OpPow        = autodiff.OpPow
	OpMatMul     = autodiff.OpMatMul
	OpTranspose  = autodiff.OpTranspose
	OpReLU       = autodiff.OpReLU
	OpTanh       = autodiff.OpTanh
	OpExp        = autodiff.OpExp
	OpLog        = autodiff.OpLog
	OpSum        = autodiff.OpSum
	OpMean       = autodiff.OpMean
	OpLogSoftmax = autodiff.OpLogSoftmax
	OpNLLLoss    = autodiff.OpNLLLoss
)

// Errors reported by graph construction and Backward. Match them with errors.Is.
var (
	ErrShapeMismatch     = autodiff.ErrShapeMismatch
	ErrInvalidTarget     = autodiff.ErrInvalidTarget
	ErrNonScalarRoot     = autodiff.ErrNonScalarRoot
	ErrStaleGraph        = autodiff.ErrStaleGraph
	ErrUntrackedGradient = autodiff.ErrUntrackedGradient
	ErrGradientNotReset  = autodiff.ErrGradientNotReset
	ErrForeignNode       = autodiff.ErrForeignNode
)

// NewGraph creates an empty graph.
func NewGraph(opts ...GraphOption) *Graph {
	return autodiff.NewGraph(opts...)
}

// NewGradBuffer returns an empty gradient buffer.
func NewGradBuffer() *GradBuffer {
	return autodiff.NewGradBuffer()
}

// WithStrictReset makes Backward fail with ErrGradientNotReset instead of
// accumulating into a leaf gradient that was never reset.
func WithStrictReset() GraphOption {
	return autodiff.WithStrictReset()
}

// WithCapacity preallocates room for n nodes.
func WithCapacity(n int) GraphOption {
	return autodiff.WithCapacity(n)
}

// ReleaseGraph drops the saved intermediates once Backward has completed.
func ReleaseGraph() BackwardOption {
	return autodiff.ReleaseGraph()
}
