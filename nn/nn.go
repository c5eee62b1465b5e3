// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides neural network layers and building blocks on top of
// the autodiff graph.
//
// # Overview
//
// This package contains:
//   - Layers: Linear
//   - Activations: ReLU, Tanh, LogSoftmax
//   - Loss functions: CrossEntropyLoss, NLLLoss, MSELoss
//   - Utilities: Sequential, Module interface, Parameter, StateDict
//   - Initialization: Xavier, KaimingUniform, Zeros
//
// # Basic Usage
//
//	rng := rand.New(rand.NewPCG(1, 2))
//	model := nn.NewSequential(
//	    nn.NewLinear(784, 128, rng),
//	    nn.NewReLU(),
//	    nn.NewLinear(128, 10, rng),
//	    nn.NewLogSoftmax(1),
//	)
//
//	g := autodiff.NewGraph()
//	out, _ := model.Forward(g, g.Constant(batch))
//	loss, _ := nn.NewNLLLoss().Forward(g, out, targets)
//	_ = g.Backward(loss)
//
// Parameters keep their values across graphs. Each forward pass binds them
// to that pass's graph, where their gradients accumulate.
package nn

import (
	"math/rand/v2"

	"github.com/born-ml/backprop/internal/nn"
	"github.com/born-ml/backprop/internal/tensor"
)

// Module is the common interface of all network components.
type Module = nn.Module

// Parameter is a trainable tensor that persists across graphs.
type Parameter = nn.Parameter

// NewParameter creates a new parameter with the given name and value.
func NewParameter(name string, value *tensor.Tensor) *Parameter {
	return nn.NewParameter(name, value)
}

// Layers

// Linear represents a fully connected (dense) layer: y = x @ W + b.
type Linear = nn.Linear

// NewLinear creates a new linear layer with Kaiming-uniform weights and zero bias.
func NewLinear(inFeatures, outFeatures int, rng *rand.Rand) *Linear {
	return nn.NewLinear(inFeatures, outFeatures, rng)
}

// NewLinearFrom creates a linear layer around existing weights; bias may be nil.
func NewLinearFrom(weight, bias *tensor.Tensor) *Linear {
	return nn.NewLinearFrom(weight, bias)
}

// Sequential chains modules.
type Sequential = nn.Sequential

// NewSequential creates a container running modules in order.
func NewSequential(modules ...Module) *Sequential {
	return nn.NewSequential(modules...)
}

// Activations

// ReLU applies max(0, x).
type ReLU = nn.ReLU

// NewReLU creates a ReLU activation.
func NewReLU() *ReLU {
	return nn.NewReLU()
}

// Tanh applies the hyperbolic tangent.
type Tanh = nn.Tanh

// NewTanh creates a Tanh activation.
func NewTanh() *Tanh {
	return nn.NewTanh()
}

// LogSoftmax normalises log-probabilities along an axis.
type LogSoftmax = nn.LogSoftmax

// NewLogSoftmax creates a LogSoftmax over axis.
func NewLogSoftmax(axis int) *LogSoftmax {
	return nn.NewLogSoftmax(axis)
}

// Loss functions

// ClassificationLoss scores model outputs against class indices.
type ClassificationLoss = nn.ClassificationLoss

// CrossEntropyLoss computes cross-entropy from raw logits.
type CrossEntropyLoss = nn.CrossEntropyLoss

// NewCrossEntropyLoss creates a cross-entropy loss.
func NewCrossEntropyLoss() *CrossEntropyLoss {
	return nn.NewCrossEntropyLoss()
}

// NLLLoss computes negative log-likelihood from log-probabilities.
type NLLLoss = nn.NLLLoss

// NewNLLLoss creates an NLL loss.
func NewNLLLoss() *NLLLoss {
	return nn.NewNLLLoss()
}

// MSELoss computes mean squared error.
type MSELoss = nn.MSELoss

// NewMSELoss creates an MSE loss.
func NewMSELoss() *MSELoss {
	return nn.NewMSELoss()
}

// Metrics

// Accuracy returns the fraction of rows whose largest entry is the target class.
func Accuracy(outputs *tensor.Tensor, targets []int) (float64, error) {
	return nn.Accuracy(outputs, targets)
}

// Argmax returns the index of the largest entry of each row.
func Argmax(outputs *tensor.Tensor) ([]int, error) {
	return nn.Argmax(outputs)
}

// Initialization

// Xavier draws Glorot-uniform weights.
func Xavier(fanIn, fanOut int, shape tensor.Shape, rng *rand.Rand) *tensor.Tensor {
	return nn.Xavier(fanIn, fanOut, shape, rng)
}

// KaimingUniform draws He-uniform weights.
func KaimingUniform(fanIn int, shape tensor.Shape, rng *rand.Rand) *tensor.Tensor {
	return nn.KaimingUniform(fanIn, shape, rng)
}

// Zeros creates a zero-initialized tensor.
func Zeros(shape tensor.Shape) *tensor.Tensor {
	return nn.Zeros(shape)
}

// Utilities

// ErrMissingParameter reports a state dict without an entry for a parameter.
var ErrMissingParameter = nn.ErrMissingParameter

// ZeroGrad clears the gradients of every parameter of m.
func ZeroGrad(m Module) {
	nn.ZeroGrad(m)
}

// NumParameters returns the number of scalar weights in m.
func NumParameters(m Module) int {
	return nn.NumParameters(m)
}

// StateDict returns copies of m's parameters keyed by dotted path ("0.weight").
func StateDict(m Module) map[string]*tensor.Tensor {
	return nn.StateDict(m)
}

// LoadStateDict copies state into m's parameters.
func LoadStateDict(m Module, state map[string]*tensor.Tensor) error {
	return nn.LoadStateDict(m, state)
}

// Save writes m's parameters to a SafeTensors file.
func Save(path string, m Module, metadata map[string]string) error {
	return nn.Save(path, m, metadata)
}

// Load reads parameters written by Save into m and returns the file metadata.
func Load(path string, m Module) (map[string]string, error) {
	return nn.Load(path, m)
}
