package tensor

import (
	"math/rand/v2"
)

// Zeros creates a tensor filled with zeros.
// Panics on an invalid shape, like the other shape-literal constructors.
func Zeros(shape Shape) *Tensor {
	t, err := New(shape)
	if err != nil {
		panic(err)
	}
	return t
}

// ZerosLike creates a zero tensor with the same shape as t.
func ZerosLike(t *Tensor) *Tensor {
	return Zeros(t.Shape())
}

// Ones creates a tensor filled with ones.
func Ones(shape Shape) *Tensor {
	return Full(shape, 1)
}

// Full creates a tensor filled with a specific value.
func Full(shape Shape, value float64) *Tensor {
	t := Zeros(shape)
	t.Fill(value)
	return t
}

// Scalar creates a rank-0 tensor holding value.
func Scalar(value float64) *Tensor {
	return Full(Shape{}, value)
}

// Uniform creates a tensor with values drawn uniformly from [low, high).
func Uniform(shape Shape, low, high float64, rng *rand.Rand) *Tensor {
	t := Zeros(shape)
	for i := range t.data {
		t.data[i] = low + rng.Float64()*(high-low)
	}
	return t
}

// Randn creates a tensor with values from the standard normal distribution.
func Randn(shape Shape, rng *rand.Rand) *Tensor {
	t := Zeros(shape)
	for i := range t.data {
		t.data[i] = rng.NormFloat64()
	}
	return t
}
