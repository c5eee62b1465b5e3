package cpu

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/backprop/internal/tensor"
)

// Sum returns the total sum as a rank-0 tensor.
func Sum(x *tensor.Tensor) *tensor.Tensor {
	return tensor.Scalar(floats.Sum(x.Data()))
}

// Mean returns the mean of all elements as a rank-0 tensor.
func Mean(x *tensor.Tensor) *tensor.Tensor {
	return tensor.Scalar(floats.Sum(x.Data()) / float64(x.NumElements()))
}

// Argmax returns, for each row of a 2D tensor, the column holding the
// largest value. Ties resolve to the lowest index.
func Argmax(x *tensor.Tensor) ([]int, error) {
	shape := x.Shape()
	if len(shape) != 2 {
		return nil, errors.Wrapf(tensor.ErrShapeMismatch, "argmax: expected 2D tensor, got %v", shape)
	}

	rows, cols := shape[0], shape[1]
	data := x.Data()
	result := make([]int, rows)
	for r := 0; r < rows; r++ {
		result[r] = floats.MaxIdx(data[r*cols : (r+1)*cols])
	}
	return result, nil
}

// axisLayout splits a shape around axis into (outer, size, inner) so that
// element (o, k, i) lives at o*size*inner + k*inner + i.
func axisLayout(shape tensor.Shape, axis int) (outer, size, inner int, err error) {
	if axis < 0 {
		axis += len(shape)
	}
	if axis < 0 || axis >= len(shape) {
		return 0, 0, 0, errors.Wrapf(tensor.ErrShapeMismatch, "axis %d out of range for shape %v", axis, shape)
	}

	outer, inner = 1, 1
	for i := 0; i < axis; i++ {
		outer *= shape[i]
	}
	for i := axis + 1; i < len(shape); i++ {
		inner *= shape[i]
	}
	return outer, shape[axis], inner, nil
}
