// Package serialization stores named float64 tensors in the SafeTensors
// format, used for model checkpoints.
//
// Format:
//
//	[8 bytes: header_size (uint64 LE)]
//	[header_size bytes: JSON header]
//	[tensor data: raw little-endian bytes]
//
// The header maps each tensor name to {dtype, shape, data_offsets} and may
// carry a "__metadata__" map of strings. Only the F64 dtype is supported.
package serialization

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"io"
	"math"
	"os"
	"sort"

	"github.com/pkg/errors"

	"github.com/born-ml/backprop/internal/tensor"
)

const (
	metadataKey = "__metadata__"
	dtypeF64    = "F64"
	bytesPerF64 = 8
)

// TensorInfo describes a tensor in the SafeTensors header.
type TensorInfo struct {
	DType       string   `json:"dtype"`
	Shape       []int    `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"` // [start, end)
}

// Write encodes tensors and optional metadata to w.
// Tensors are written in alphabetical order by name.
func Write(w io.Writer, tensors map[string]*tensor.Tensor, metadata map[string]string) error {
	names := make([]string, 0, len(tensors))
	for name := range tensors {
		if err := ValidateTensorName(name); err != nil {
			return err
		}
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]any, len(names)+1)
	if len(metadata) > 0 {
		header[metadataKey] = metadata
	}

	var offset int64
	for _, name := range names {
		t := tensors[name]
		size := int64(t.NumElements() * bytesPerF64)
		header[name] = TensorInfo{
			DType:       dtypeF64,
			Shape:       append([]int{}, t.Shape()...),
			DataOffsets: [2]int64{offset, offset + size},
		}
		offset += size
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return errors.Wrap(err, "failed to marshal header")
	}

	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return errors.Wrap(err, "failed to write header size")
	}
	if _, err := bw.Write(headerJSON); err != nil {
		return errors.Wrap(err, "failed to write header")
	}

	var buf [bytesPerF64]byte
	for _, name := range names {
		for _, v := range tensors[name].Data() {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
			if _, err := bw.Write(buf[:]); err != nil {
				return errors.Wrapf(err, "failed to write tensor %s", name)
			}
		}
	}
	return bw.Flush()
}

// Read decodes a SafeTensors stream written by Write (or any F64-only file).
func Read(r io.Reader) (map[string]*tensor.Tensor, map[string]string, error) {
	var headerSize uint64
	if err := binary.Read(r, binary.LittleEndian, &headerSize); err != nil {
		return nil, nil, errors.Wrap(err, "failed to read header size")
	}
	if headerSize > MaxHeaderSize {
		return nil, nil, errors.Wrapf(ErrHeaderTooLarge, "%d bytes", headerSize)
	}

	headerJSON := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerJSON); err != nil {
		return nil, nil, errors.Wrap(err, "failed to read header")
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(headerJSON, &raw); err != nil {
		return nil, nil, errors.Wrap(err, "failed to parse header JSON")
	}

	var metadata map[string]string
	infos := make(map[string]TensorInfo, len(raw))
	for name, value := range raw {
		if name == metadataKey {
			if err := json.Unmarshal(value, &metadata); err != nil {
				return nil, nil, errors.Wrap(err, "failed to parse metadata")
			}
			continue
		}
		if err := ValidateTensorName(name); err != nil {
			return nil, nil, err
		}
		var info TensorInfo
		if err := json.Unmarshal(value, &info); err != nil {
			return nil, nil, errors.Wrapf(err, "failed to parse tensor %s", name)
		}
		if info.DType != dtypeF64 {
			return nil, nil, errors.Wrapf(ErrUnsupportedDType, "tensor %s has dtype %s", name, info.DType)
		}
		infos[name] = info
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to read tensor data")
	}

	spans := make([]tensorSpan, 0, len(infos))
	for name, info := range infos {
		spans = append(spans, tensorSpan{name: name, start: info.DataOffsets[0], end: info.DataOffsets[1]})
	}
	if err := validateSpans(spans, int64(len(data))); err != nil {
		return nil, nil, err
	}

	tensors := make(map[string]*tensor.Tensor, len(infos))
	for name, info := range infos {
		t, err := decode(name, info, data)
		if err != nil {
			return nil, nil, err
		}
		tensors[name] = t
	}
	return tensors, metadata, nil
}

func decode(name string, info TensorInfo, data []byte) (*tensor.Tensor, error) {
	shape := tensor.Shape(info.Shape)
	if err := shape.Validate(); err != nil {
		return nil, errors.Wrapf(err, "tensor %s", name)
	}
	start, end := info.DataOffsets[0], info.DataOffsets[1]
	if end-start != int64(shape.NumElements()*bytesPerF64) {
		return nil, &ValidationError{
			Err:     ErrTensorSizeMismatch,
			Tensor:  name,
			Details: "shape does not match data_offsets",
		}
	}

	values := make([]float64, shape.NumElements())
	chunk := data[start:end]
	for i := range values {
		values[i] = math.Float64frombits(binary.LittleEndian.Uint64(chunk[i*bytesPerF64:]))
	}
	return tensor.FromSlice(values, shape)
}

// SaveFile writes tensors to path.
func SaveFile(path string, tensors map[string]*tensor.Tensor, metadata map[string]string) error {
	f, err := os.Create(path) //nolint:gosec // G304: path is chosen by the caller
	if err != nil {
		return errors.Wrap(err, "failed to create file")
	}
	if err := Write(f, tensors, metadata); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// LoadFile reads tensors from path.
func LoadFile(path string) (map[string]*tensor.Tensor, map[string]string, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path is chosen by the caller
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to open file")
	}
	defer func() {
		_ = f.Close()
	}()
	return Read(bufio.NewReader(f))
}
