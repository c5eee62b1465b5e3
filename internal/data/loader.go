package data

import (
	"io"
	"math/rand/v2"

	"github.com/pkg/errors"

	"github.com/born-ml/backprop/internal/tensor"
)

// Batch is one mini-batch: a [size, features] input matrix and one class
// label per row.
type Batch struct {
	Inputs  *tensor.Tensor
	Targets []int
}

// Size returns the number of samples in the batch.
func (b *Batch) Size() int {
	return len(b.Targets)
}

// LoaderConfig holds configuration for a Loader.
type LoaderConfig struct {
	BatchSize int    // Samples per batch (required)
	Shuffle   bool   // Visit samples in a new random order every epoch
	Seed      uint64 // Seed for the shuffle order
	DropLast  bool   // Skip the final batch when it is smaller than BatchSize
}

// Loader iterates over a Dataset in mini-batches.
//
// Each epoch starts with Reset and ends when Next returns io.EOF. With
// Shuffle set, every Reset draws a fresh permutation from a generator seeded
// by Seed, so a run is reproducible epoch by epoch.
type Loader struct {
	ds       Dataset
	cfg      LoaderConfig
	features int
	rng      *rand.Rand
	order    []int
	pos      int
}

// NewLoader creates a loader over ds positioned at the start of the first epoch.
func NewLoader(ds Dataset, cfg LoaderConfig) (*Loader, error) {
	if cfg.BatchSize <= 0 {
		return nil, errors.Wrapf(ErrInvalidBatchSize, "got %d", cfg.BatchSize)
	}
	if ds.Len() == 0 {
		return nil, ErrEmptyDataset
	}

	features, _ := ds.Sample(0)
	if len(features) == 0 {
		return nil, errors.Wrap(ErrFeatureMismatch, "samples have no features")
	}
	l := &Loader{
		ds:       ds,
		cfg:      cfg,
		features: len(features),
		rng:      rand.New(rand.NewPCG(cfg.Seed, cfg.Seed)),
		order:    make([]int, ds.Len()),
	}
	l.Reset()
	return l, nil
}

// Reset rewinds the loader to the start of a new epoch.
func (l *Loader) Reset() {
	for i := range l.order {
		l.order[i] = i
	}
	if l.cfg.Shuffle {
		l.rng.Shuffle(len(l.order), func(i, j int) {
			l.order[i], l.order[j] = l.order[j], l.order[i]
		})
	}
	l.pos = 0
}

// Next returns the next batch of the epoch, or io.EOF once the epoch is
// exhausted.
func (l *Loader) Next() (*Batch, error) {
	remaining := len(l.order) - l.pos
	size := min(l.cfg.BatchSize, remaining)
	if size == 0 || (l.cfg.DropLast && size < l.cfg.BatchSize) {
		return nil, io.EOF
	}

	inputs := tensor.Zeros(tensor.Shape{size, l.features})
	data := inputs.Data()
	targets := make([]int, size)
	for row := 0; row < size; row++ {
		idx := l.order[l.pos+row]
		features, label := l.ds.Sample(idx)
		if len(features) != l.features {
			return nil, errors.Wrapf(ErrFeatureMismatch, "sample %d: %d features, want %d",
				idx, len(features), l.features)
		}
		copy(data[row*l.features:(row+1)*l.features], features)
		targets[row] = label
	}
	l.pos += size

	return &Batch{Inputs: inputs, Targets: targets}, nil
}

// NumBatches returns the number of batches in one epoch.
func (l *Loader) NumBatches() int {
	n := len(l.order)
	if l.cfg.DropLast {
		return n / l.cfg.BatchSize
	}
	return (n + l.cfg.BatchSize - 1) / l.cfg.BatchSize
}

// Len returns the number of samples in the underlying dataset.
func (l *Loader) Len() int {
	return len(l.order)
}

// NumFeatures returns the feature vector length of every batch row.
func (l *Loader) NumFeatures() int {
	return l.features
}
