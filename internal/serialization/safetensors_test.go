package serialization

import (
	"bytes"
	"encoding/binary"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/backprop/internal/tensor"
)

// rawFile assembles a SafeTensors stream from a header and data section.
func rawFile(t *testing.T, header string, data []byte) *bytes.Reader {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint64(len(header))))
	buf.WriteString(header)
	buf.Write(data)
	return bytes.NewReader(buf.Bytes())
}

func TestWriteRead(t *testing.T) {
	w, err := tensor.FromSlice([]float64{1.5, -2, math.Pi, 0, 1e-300, 7}, tensor.Shape{2, 3})
	require.NoError(t, err)
	b := tensor.Scalar(-0.25)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, map[string]*tensor.Tensor{"0.weight": w, "0.bias": b},
		map[string]string{"epoch": "3"}))

	// Header layout: size prefix, JSON, then bias data before weight data.
	headerSize := binary.LittleEndian.Uint64(buf.Bytes()[:8])
	assert.Equal(t, 8+int(headerSize)+7*8, buf.Len())
	assert.Contains(t, string(buf.Bytes()[8:8+headerSize]), `"0.bias":{"dtype":"F64","shape":[],"data_offsets":[0,8]}`)

	tensors, metadata, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"epoch": "3"}, metadata)
	require.Len(t, tensors, 2)

	assert.Equal(t, w.Shape(), tensors["0.weight"].Shape())
	assert.Equal(t, w.Data(), tensors["0.weight"].Data())
	assert.Equal(t, tensor.Shape{}, tensors["0.bias"].Shape())
	assert.Equal(t, []float64{-0.25}, tensors["0.bias"].Data())
}

func TestSaveLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.safetensors")
	x := tensor.Full(tensor.Shape{4}, 0.5)

	require.NoError(t, SaveFile(path, map[string]*tensor.Tensor{"x": x}, nil))

	tensors, metadata, err := LoadFile(path)
	require.NoError(t, err)
	assert.Nil(t, metadata)
	assert.Equal(t, x.Data(), tensors["x"].Data())

	_, _, err = LoadFile(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestRead_Errors(t *testing.T) {
	eight := make([]byte, 8)

	tests := []struct {
		name   string
		header string
		data   []byte
		target error
	}{
		{
			name:   "UnsupportedDType",
			header: `{"x":{"dtype":"F32","shape":[2],"data_offsets":[0,8]}}`,
			data:   eight,
			target: ErrUnsupportedDType,
		},
		{
			name:   "OutOfBounds",
			header: `{"x":{"dtype":"F64","shape":[2],"data_offsets":[0,16]}}`,
			data:   eight,
			target: ErrOutOfBounds,
		},
		{
			name:   "Overlap",
			header: `{"a":{"dtype":"F64","shape":[1],"data_offsets":[0,8]},"b":{"dtype":"F64","shape":[1],"data_offsets":[4,12]}}`,
			data:   make([]byte, 16),
			target: ErrOffsetOverlap,
		},
		{
			name:   "SizeMismatch",
			header: `{"x":{"dtype":"F64","shape":[2],"data_offsets":[0,8]}}`,
			data:   eight,
			target: ErrTensorSizeMismatch,
		},
		{
			name:   "PathName",
			header: `{"../x":{"dtype":"F64","shape":[1],"data_offsets":[0,8]}}`,
			data:   eight,
			target: ErrInvalidTensorName,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Read(rawFile(t, tt.header, tt.data))
			assert.ErrorIs(t, err, tt.target)
		})
	}

	t.Run("HeaderTooLarge", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint64(MaxHeaderSize+1)))
		_, _, err := Read(&buf)
		assert.ErrorIs(t, err, ErrHeaderTooLarge)
	})

	t.Run("Truncated", func(t *testing.T) {
		_, _, err := Read(bytes.NewReader([]byte{1, 2, 3}))
		assert.Error(t, err)
	})

	t.Run("BadJSON", func(t *testing.T) {
		_, _, err := Read(rawFile(t, `{"x":`, nil))
		assert.Error(t, err)
	})
}

func TestValidateTensorName(t *testing.T) {
	assert.NoError(t, ValidateTensorName("2.weight"))

	for _, name := range []string{"", "a/b", `a\b`, "..", "x\x00", metadataKey, string(make([]byte, MaxTensorNameLen+1))} {
		assert.ErrorIs(t, ValidateTensorName(name), ErrInvalidTensorName, "%q", name)
	}
}

func TestWrite_RejectsInvalidName(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf, map[string]*tensor.Tensor{"a/b": tensor.Scalar(1)}, nil)
	assert.ErrorIs(t, err, ErrInvalidTensorName)
	assert.Zero(t, buf.Len())
}
