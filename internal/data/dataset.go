// Package data provides datasets and mini-batch loading for training loops.
//
// A Dataset exposes flat feature vectors with integer class labels. A Loader
// walks a Dataset in batches, one epoch at a time, optionally in a seeded
// shuffled order:
//
//	ds, _ := data.NewInMemory(features, labels)
//	trainSet, valSet := data.Split(ds, 0.2)
//
//	loader, _ := data.NewLoader(trainSet, data.LoaderConfig{BatchSize: 64, Shuffle: true, Seed: 1})
//	for epoch := 0; epoch < epochs; epoch++ {
//	    loader.Reset()
//	    for {
//	        batch, err := loader.Next()
//	        if err == io.EOF {
//	            break
//	        }
//	        // batch.Inputs is [batch, features], batch.Targets has one label per row.
//	    }
//	}
package data

import (
	"github.com/pkg/errors"
)

// Errors returned by dataset construction and loading.
var (
	// ErrEmptyDataset reports a dataset without samples.
	ErrEmptyDataset = errors.New("dataset is empty")

	// ErrFeatureMismatch reports samples whose feature vectors differ in length.
	ErrFeatureMismatch = errors.New("feature length mismatch")

	// ErrInvalidBatchSize reports a non-positive batch size.
	ErrInvalidBatchSize = errors.New("batch size must be positive")
)

// Dataset is a finite, indexable collection of labelled samples.
type Dataset interface {
	// Len returns the number of samples.
	Len() int

	// Sample returns the features and class label of sample i.
	// The returned slice must not be modified.
	Sample(i int) ([]float64, int)
}

// InMemory is a Dataset backed by slices.
type InMemory struct {
	features [][]float64
	labels   []int
}

// NewInMemory creates a dataset from parallel feature and label slices.
// Every feature vector must have the same length.
func NewInMemory(features [][]float64, labels []int) (*InMemory, error) {
	if len(features) != len(labels) {
		return nil, errors.Errorf("data: %d feature vectors for %d labels", len(features), len(labels))
	}
	for i, f := range features {
		if len(f) != len(features[0]) {
			return nil, errors.Wrapf(ErrFeatureMismatch, "sample %d: %d features, want %d",
				i, len(f), len(features[0]))
		}
	}
	return &InMemory{features: features, labels: labels}, nil
}

// Len returns the number of samples.
func (d *InMemory) Len() int {
	return len(d.labels)
}

// Sample returns the features and label of sample i.
func (d *InMemory) Sample(i int) ([]float64, int) {
	return d.features[i], d.labels[i]
}

// NumFeatures returns the feature vector length, 0 for an empty dataset.
func (d *InMemory) NumFeatures() int {
	if len(d.features) == 0 {
		return 0
	}
	return len(d.features[0])
}

// Subset is a view of a contiguous range of another Dataset.
type Subset struct {
	base       Dataset
	start, end int
}

// Len returns the number of samples in the view.
func (s *Subset) Len() int {
	return s.end - s.start
}

// Sample returns sample i of the view.
func (s *Subset) Sample(i int) ([]float64, int) {
	return s.base.Sample(s.start + i)
}

// Split divides ds into a leading training part and a trailing validation
// part holding validationRatio of the samples (rounded down).
// The ratio is clamped to [0, 1].
func Split(ds Dataset, validationRatio float64) (train, validation *Subset) {
	n := ds.Len()
	validationRatio = min(max(validationRatio, 0), 1)
	splitIdx := n - int(float64(n)*validationRatio)
	return &Subset{base: ds, start: 0, end: splitIdx}, &Subset{base: ds, start: splitIdx, end: n}
}
