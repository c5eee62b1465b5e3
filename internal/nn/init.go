package nn

import (
	"math"
	"math/rand/v2"

	"github.com/born-ml/backprop/internal/tensor"
)

// Xavier (Glorot) initialization for weights.
//
// Initializes weights with values drawn from a uniform distribution:
// U(-sqrt(6/(fan_in + fan_out)), sqrt(6/(fan_in + fan_out)))
//
// This initialization helps maintain variance of activations across layers
// with saturating activations such as Tanh.
func Xavier(fanIn, fanOut int, shape tensor.Shape, rng *rand.Rand) *tensor.Tensor {
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))
	return tensor.Uniform(shape, -bound, bound, rng)
}

// KaimingUniform (He) initialization for weights feeding ReLU layers.
//
// Values are drawn from U(-sqrt(6/fan_in), sqrt(6/fan_in)).
func KaimingUniform(fanIn int, shape tensor.Shape, rng *rand.Rand) *tensor.Tensor {
	bound := math.Sqrt(6.0 / float64(fanIn))
	return tensor.Uniform(shape, -bound, bound, rng)
}

// Zeros creates a tensor filled with zeros.
//
// This is commonly used for bias initialization.
func Zeros(shape tensor.Shape) *tensor.Tensor {
	return tensor.Zeros(shape)
}
