// Package cpu implements the CPU kernels used by the autodiff operation rules.
//
// Every kernel is a pure function: inputs are never modified and a freshly
// allocated result is returned. Equal-shape elementwise paths and reductions
// go through gonum/floats; matrix products go through gonum/mat.
package cpu

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/backprop/internal/tensor"
)

// Add performs element-wise addition with NumPy-style broadcasting.
func Add(a, b *tensor.Tensor) (*tensor.Tensor, error) {
	return binary("add", a, b, floats.AddTo, func(x, y float64) float64 { return x + y })
}

// Sub performs element-wise subtraction with NumPy-style broadcasting.
func Sub(a, b *tensor.Tensor) (*tensor.Tensor, error) {
	return binary("sub", a, b, floats.SubTo, func(x, y float64) float64 { return x - y })
}

// Mul performs element-wise multiplication with NumPy-style broadcasting.
func Mul(a, b *tensor.Tensor) (*tensor.Tensor, error) {
	return binary("mul", a, b, floats.MulTo, func(x, y float64) float64 { return x * y })
}

// Div performs element-wise division with NumPy-style broadcasting.
func Div(a, b *tensor.Tensor) (*tensor.Tensor, error) {
	return binary("div", a, b, floats.DivTo, func(x, y float64) float64 { return x / y })
}

// Scale returns alpha * x.
func Scale(x *tensor.Tensor, alpha float64) *tensor.Tensor {
	result := tensor.ZerosLike(x)
	floats.ScaleTo(result.Data(), alpha, x.Data())
	return result
}

// AddInto accumulates src into dst in place. Shapes must match exactly.
// This is the only mutating kernel; the engine uses it on buffers it owns.
func AddInto(dst, src *tensor.Tensor) error {
	if !dst.Shape().Equal(src.Shape()) {
		return errors.Wrapf(tensor.ErrShapeMismatch, "accumulate: %v into %v", src.Shape(), dst.Shape())
	}
	floats.Add(dst.Data(), src.Data())
	return nil
}

// binary dispatches to the gonum fast path when shapes match and to the
// strided broadcast loop otherwise.
func binary(
	name string,
	a, b *tensor.Tensor,
	fast func(dst, s, t []float64) []float64,
	f func(x, y float64) float64,
) (*tensor.Tensor, error) {
	if a.Shape().Equal(b.Shape()) {
		result := tensor.ZerosLike(a)
		fast(result.Data(), a.Data(), b.Data())
		return result, nil
	}

	outShape, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		return nil, errors.Wrap(err, name)
	}

	result := tensor.Zeros(outShape)
	outStrides := outShape.ComputeStrides()
	aStrides := computeBroadcastStridesForShape(a.Shape(), outShape)
	bStrides := computeBroadcastStridesForShape(b.Shape(), outShape)

	aData, bData, out := a.Data(), b.Data(), result.Data()
	for i := range out {
		out[i] = f(
			aData[computeFlatIndex(i, outStrides, aStrides)],
			bData[computeFlatIndex(i, outStrides, bStrides)],
		)
	}
	return result, nil
}
