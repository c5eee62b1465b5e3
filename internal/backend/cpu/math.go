package cpu

import (
	"math"
	"sync/atomic"

	"github.com/born-ml/backprop/internal/parallel"
	"github.com/born-ml/backprop/internal/tensor"
)

var workers atomic.Pointer[parallel.Config]

func init() {
	SetParallelism(parallel.DefaultConfig())
}

// SetParallelism replaces the process-wide loop configuration used by the
// element-wise and log-softmax kernels. It is meant to be called once at
// startup. Concurrent calls are safe: a kernel reads the configuration once
// when it starts, so running kernels keep the one they began with.
func SetParallelism(cfg parallel.Config) {
	workers.Store(&cfg)
}

// Parallelism returns the current kernel loop configuration.
func Parallelism() parallel.Config {
	return *workers.Load()
}

// Map applies f element-wise and returns a new tensor.
func Map(x *tensor.Tensor, f func(float64) float64) *tensor.Tensor {
	result := tensor.ZerosLike(x)
	in, out := x.Data(), result.Data()
	parallel.Range(len(in), func(start, end int) {
		for i := start; i < end; i++ {
			out[i] = f(in[i])
		}
	}, Parallelism())
	return result
}

// Pow raises every element to the scalar power p.
func Pow(x *tensor.Tensor, p float64) *tensor.Tensor {
	switch p {
	case 1:
		return x.Clone()
	case 2:
		return Map(x, func(v float64) float64 { return v * v })
	}
	return Map(x, func(v float64) float64 { return math.Pow(v, p) })
}

// Exp computes e^x element-wise.
func Exp(x *tensor.Tensor) *tensor.Tensor {
	return Map(x, math.Exp)
}

// Log computes the natural logarithm element-wise.
func Log(x *tensor.Tensor) *tensor.Tensor {
	return Map(x, math.Log)
}

// Tanh computes the hyperbolic tangent element-wise.
func Tanh(x *tensor.Tensor) *tensor.Tensor {
	return Map(x, math.Tanh)
}

// ReLU computes max(0, x) element-wise.
func ReLU(x *tensor.Tensor) *tensor.Tensor {
	return Map(x, func(v float64) float64 {
		if v > 0 {
			return v
		}
		return 0
	})
}

// ReLUMask returns 1 where x > 0 and 0 elsewhere.
func ReLUMask(x *tensor.Tensor) *tensor.Tensor {
	return Map(x, func(v float64) float64 {
		if v > 0 {
			return 1
		}
		return 0
	})
}
