// Package tensor provides the dense float64 payload type used by the
// autodiff engine and its collaborators.
package tensor

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrShapeMismatch is returned when operand shapes are incompatible for the
// requested operation.
var ErrShapeMismatch = errors.New("shape mismatch")

// Tensor is a dense, row-major, n-dimensional float64 array.
//
// The zero value is not usable; create tensors with New, FromSlice, Full,
// Scalar or the other constructors.
type Tensor struct {
	shape   Shape
	strides []int
	data    []float64
}

// New creates a zero-filled tensor with the given shape.
func New(shape Shape) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid shape")
	}
	return &Tensor{
		shape:   shape.Clone(),
		strides: shape.ComputeStrides(),
		data:    make([]float64, shape.NumElements()),
	}, nil
}

// FromSlice creates a tensor from a Go slice.
// The slice is copied into the tensor's memory.
func FromSlice(data []float64, shape Shape) (*Tensor, error) {
	if shape.NumElements() != len(data) {
		return nil, errors.Wrapf(ErrShapeMismatch, "shape %v requires %d elements, but got %d",
			shape, shape.NumElements(), len(data))
	}
	t, err := New(shape)
	if err != nil {
		return nil, err
	}
	copy(t.data, data)
	return t, nil
}

// Shape returns the tensor's shape.
func (t *Tensor) Shape() Shape {
	return t.shape
}

// Strides returns the tensor's row-major strides.
func (t *Tensor) Strides() []int {
	return t.strides
}

// NumElements returns the total number of elements.
func (t *Tensor) NumElements() int {
	return len(t.data)
}

// Data returns the backing slice (zero-copy).
//
// WARNING: Modifications to the returned slice will modify the tensor.
func (t *Tensor) Data() []float64 {
	return t.data
}

// IsScalar reports whether the tensor holds exactly one element,
// regardless of its rank ([], [1], [1, 1] all qualify).
func (t *Tensor) IsScalar() bool {
	return len(t.data) == 1
}

// Item returns the single value of a one-element tensor.
func (t *Tensor) Item() (float64, error) {
	if !t.IsScalar() {
		return 0, errors.Wrapf(ErrShapeMismatch, "Item() needs a single element, got shape %v", t.shape)
	}
	return t.data[0], nil
}

// At returns the element at the given indices.
// Panics if indices are out of bounds.
func (t *Tensor) At(indices ...int) float64 {
	return t.data[t.offset(indices)]
}

// Set sets the element at the given indices.
// Panics if indices are out of bounds.
func (t *Tensor) Set(value float64, indices ...int) {
	t.data[t.offset(indices)] = value
}

func (t *Tensor) offset(indices []int) int {
	if len(indices) != len(t.shape) {
		panic(fmt.Sprintf("expected %d indices, got %d", len(t.shape), len(indices)))
	}
	off := 0
	for i, idx := range indices {
		if idx < 0 || idx >= t.shape[i] {
			panic(fmt.Sprintf("index %d out of bounds for dimension %d (size %d)", idx, i, t.shape[i]))
		}
		off += idx * t.strides[i]
	}
	return off
}

// Clone creates a deep copy of the tensor.
func (t *Tensor) Clone() *Tensor {
	data := make([]float64, len(t.data))
	copy(data, t.data)
	return &Tensor{
		shape:   t.shape.Clone(),
		strides: append([]int(nil), t.strides...),
		data:    data,
	}
}

// Reshape returns a copy of the tensor with a new shape holding the same
// number of elements.
func (t *Tensor) Reshape(shape Shape) (*Tensor, error) {
	if shape.NumElements() != t.NumElements() {
		return nil, errors.Wrapf(ErrShapeMismatch, "cannot reshape %v to %v", t.shape, shape)
	}
	return FromSlice(t.data, shape)
}

// Fill sets every element to value.
func (t *Tensor) Fill(value float64) {
	for i := range t.data {
		t.data[i] = value
	}
}

// String returns a human-readable representation of the tensor.
func (t *Tensor) String() string {
	if t.NumElements() <= 16 {
		parts := make([]string, len(t.data))
		for i, v := range t.data {
			parts[i] = fmt.Sprintf("%g", v)
		}
		return fmt.Sprintf("Tensor%v[%s]", t.shape, strings.Join(parts, " "))
	}
	return fmt.Sprintf("Tensor%v", t.shape)
}
