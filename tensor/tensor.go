// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public API for the dense float64 tensors used
// by the autodiff engine.
//
// Example:
//
//	x, _ := tensor.FromSlice([]float64{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
//	y := tensor.Ones(tensor.Shape{2, 3})
//	fmt.Println(x.Shape(), y.NumElements()) // [2 3] 6
package tensor

import (
	"math/rand/v2"

	"github.com/born-ml/backprop/internal/tensor"
)

// Tensor is a dense, row-major float64 array with a shape.
type Tensor = tensor.Tensor

// Shape represents tensor dimensions. An empty shape is a scalar.
type Shape = tensor.Shape

// ErrShapeMismatch reports incompatible shapes.
var ErrShapeMismatch = tensor.ErrShapeMismatch

// New creates a zero-filled tensor, failing for an invalid shape.
func New(shape Shape) (*Tensor, error) {
	return tensor.New(shape)
}

// FromSlice creates a tensor holding a copy of data.
func FromSlice(data []float64, shape Shape) (*Tensor, error) {
	return tensor.FromSlice(data, shape)
}

// Zeros creates a zero-filled tensor. It panics on an invalid shape.
func Zeros(shape Shape) *Tensor {
	return tensor.Zeros(shape)
}

// ZerosLike creates a zero-filled tensor with the shape of t.
func ZerosLike(t *Tensor) *Tensor {
	return tensor.ZerosLike(t)
}

// Ones creates a tensor filled with ones.
func Ones(shape Shape) *Tensor {
	return tensor.Ones(shape)
}

// Full creates a tensor filled with value.
func Full(shape Shape, value float64) *Tensor {
	return tensor.Full(shape, value)
}

// Scalar creates a rank-0 tensor.
func Scalar(value float64) *Tensor {
	return tensor.Scalar(value)
}

// Uniform creates a tensor with values drawn uniformly from [low, high).
func Uniform(shape Shape, low, high float64, rng *rand.Rand) *Tensor {
	return tensor.Uniform(shape, low, high, rng)
}

// Randn creates a tensor with standard normal values.
func Randn(shape Shape, rng *rand.Rand) *Tensor {
	return tensor.Randn(shape, rng)
}

// BroadcastShapes returns the NumPy-style broadcast of a and b.
func BroadcastShapes(a, b Shape) (Shape, error) {
	return tensor.BroadcastShapes(a, b)
}
