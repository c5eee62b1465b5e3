package nn

import (
	"strconv"

	"github.com/pkg/errors"

	"github.com/born-ml/backprop/internal/autodiff"
	"github.com/born-ml/backprop/internal/serialization"
	"github.com/born-ml/backprop/internal/tensor"
)

// ErrMissingParameter is returned by LoadStateDict when the state lacks a
// parameter of the module.
var ErrMissingParameter = errors.New("missing parameter in state dict")

// NamedParameters returns the parameters of m keyed by a dotted path.
// Layers inside a Sequential are prefixed with their index ("0.weight",
// "2.bias").
func NamedParameters(m Module) map[string]*Parameter {
	named := make(map[string]*Parameter)
	collect(m, "", named)
	return named
}

func collect(m Module, prefix string, into map[string]*Parameter) {
	if seq, ok := m.(*Sequential); ok {
		for i, child := range seq.Modules() {
			collect(child, prefix+strconv.Itoa(i)+".", into)
		}
		return
	}
	for i, p := range m.Parameters() {
		name := prefix + p.Name()
		if _, dup := into[name]; dup {
			name = prefix + strconv.Itoa(i) + "." + p.Name()
		}
		into[name] = p
	}
}

// StateDict returns the current parameter values of m keyed by
// NamedParameters' names. The tensors are the live payloads.
func StateDict(m Module) map[string]*tensor.Tensor {
	named := NamedParameters(m)
	state := make(map[string]*tensor.Tensor, len(named))
	for name, p := range named {
		state[name] = p.Value()
	}
	return state
}

// LoadStateDict copies state into the parameters of m in place.
// Every parameter must be present with a matching shape; extra entries are
// ignored.
func LoadStateDict(m Module, state map[string]*tensor.Tensor) error {
	for name, p := range NamedParameters(m) {
		src, ok := state[name]
		if !ok {
			return errors.Wrap(ErrMissingParameter, name)
		}
		if !src.Shape().Equal(p.Value().Shape()) {
			return errors.Wrapf(autodiff.ErrShapeMismatch, "parameter %s: expected %v, got %v",
				name, p.Value().Shape(), src.Shape())
		}
		copy(p.Value().Data(), src.Data())
	}
	return nil
}

// Save writes the parameters of m to a SafeTensors file.
func Save(path string, m Module, metadata map[string]string) error {
	return serialization.SaveFile(path, StateDict(m), metadata)
}

// Load reads parameters saved by Save into m and returns the file metadata.
func Load(path string, m Module) (map[string]string, error) {
	state, metadata, err := serialization.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := LoadStateDict(m, state); err != nil {
		return nil, err
	}
	return metadata, nil
}
