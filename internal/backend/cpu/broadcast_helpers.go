package cpu

import (
	"github.com/pkg/errors"

	"github.com/born-ml/backprop/internal/tensor"
)

// computeBroadcastStridesForShape computes strides for broadcasting a shape to outShape.
// Returns strides where dimensions of size 1 have stride 0 (for broadcasting).
func computeBroadcastStridesForShape(inShape, outShape tensor.Shape) []int {
	outDim := len(outShape)
	strides := make([]int, outDim)

	// Pad input shape with 1s on the left
	inDim := len(inShape)
	offset := outDim - inDim

	origStrides := inShape.ComputeStrides()

	for i := 0; i < outDim; i++ {
		inIdx := i - offset
		switch {
		case inIdx < 0:
			strides[i] = 0
		case inShape[inIdx] == 1:
			strides[i] = 0
		default:
			strides[i] = origStrides[inIdx]
		}
	}

	return strides
}

// computeFlatIndex computes the flat index in the source array for a given output index.
// outStrides: strides of the output shape.
// inStrides: broadcast-adjusted strides of the input shape.
func computeFlatIndex(outIdx int, outStrides, inStrides []int) int {
	flatIdx := 0
	for i := range outStrides {
		coord := outIdx / outStrides[i]
		outIdx %= outStrides[i]
		flatIdx += coord * inStrides[i]
	}
	return flatIdx
}

// SumTo reduces a broadcast result back to targetShape by summing over every
// dimension that broadcasting expanded.
//
//	Forward:  a[3,1] + b[3,4] -> c[3,4]
//	Backward: grad_c[3,4] -> SumTo(grad_c, [3,1])
//
// targetShape must be broadcast-compatible with t's shape.
func SumTo(t *tensor.Tensor, targetShape tensor.Shape) (*tensor.Tensor, error) {
	if t.Shape().Equal(targetShape) {
		return t.Clone(), nil
	}

	outShape, err := tensor.BroadcastShapes(t.Shape(), targetShape)
	if err != nil || !outShape.Equal(t.Shape()) {
		return nil, errors.Wrapf(tensor.ErrShapeMismatch, "sum-to: %v is not a broadcast of %v", t.Shape(), targetShape)
	}

	result := tensor.Zeros(targetShape)
	srcStrides := t.Shape().ComputeStrides()
	dstStrides := computeBroadcastStridesForShape(targetShape, t.Shape())

	src, dst := t.Data(), result.Data()
	for i, v := range src {
		dst[computeFlatIndex(i, srcStrides, dstStrides)] += v
	}
	return result, nil
}

// BroadcastTo expands t to shape, repeating along broadcast dimensions.
func BroadcastTo(t *tensor.Tensor, shape tensor.Shape) (*tensor.Tensor, error) {
	outShape, err := tensor.BroadcastShapes(t.Shape(), shape)
	if err != nil || !outShape.Equal(shape) {
		return nil, errors.Wrapf(tensor.ErrShapeMismatch, "broadcast-to: %v cannot expand to %v", t.Shape(), shape)
	}

	result := tensor.Zeros(shape)
	outStrides := shape.ComputeStrides()
	inStrides := computeBroadcastStridesForShape(t.Shape(), shape)

	src, out := t.Data(), result.Data()
	for i := range out {
		out[i] = src[computeFlatIndex(i, outStrides, inStrides)]
	}
	return result, nil
}
