package cpu

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/backprop/internal/tensor"
)

// MatMul performs matrix multiplication.
// For 2D tensors: (M, K) @ (K, N) -> (M, N), computed with gonum's BLAS-backed Dense.Mul.
func MatMul(a, b *tensor.Tensor) (*tensor.Tensor, error) {
	aShape, bShape := a.Shape(), b.Shape()

	if len(aShape) != 2 || len(bShape) != 2 {
		return nil, errors.Wrapf(tensor.ErrShapeMismatch, "matmul: only 2D tensors supported, got %dD and %dD",
			len(aShape), len(bShape))
	}

	m, k := aShape[0], aShape[1]
	kAlt, n := bShape[0], bShape[1]
	if k != kAlt {
		return nil, errors.Wrapf(tensor.ErrShapeMismatch, "matmul: [%d,%d] @ [%d,%d]", m, k, kAlt, n)
	}

	// gonum wraps the slices without copying; neither operand is written.
	ma := mat.NewDense(m, k, a.Data())
	mb := mat.NewDense(k, n, b.Data())

	result := tensor.Zeros(tensor.Shape{m, n})
	mc := mat.NewDense(m, n, result.Data())
	mc.Mul(ma, mb)

	return result, nil
}

// Transpose swaps the two axes of a 2D tensor.
func Transpose(t *tensor.Tensor) (*tensor.Tensor, error) {
	shape := t.Shape()
	if len(shape) != 2 {
		return nil, errors.Wrapf(tensor.ErrShapeMismatch, "transpose: only 2D tensors supported, got %dD", len(shape))
	}

	rows, cols := shape[0], shape[1]
	result := tensor.Zeros(tensor.Shape{cols, rows})
	dst := mat.NewDense(cols, rows, result.Data())
	dst.Copy(mat.NewDense(rows, cols, t.Data()).T())

	return result, nil
}
