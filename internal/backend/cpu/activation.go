package cpu

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/backprop/internal/parallel"
	"github.com/born-ml/backprop/internal/tensor"
)

// ErrInvalidTarget is returned when a class target falls outside [0, numClasses).
var ErrInvalidTarget = errors.New("class target out of range")

// LogSoftmax computes log(softmax(x)) along axis.
//
//	log_softmax(x)_i = x_i - (max(x) + log(Σ_j exp(x_j - max(x))))
//
// The max-shifted log-sum-exp keeps every exponent <= 0, so no lane
// overflows regardless of the magnitude of x.
func LogSoftmax(x *tensor.Tensor, axis int) (*tensor.Tensor, error) {
	outer, size, inner, err := axisLayout(x.Shape(), axis)
	if err != nil {
		return nil, errors.Wrap(err, "log-softmax")
	}

	result := tensor.ZerosLike(x)
	src, dst := x.Data(), result.Data()

	forEachLane(outer, size, inner, func(first, end int) {
		lane := make([]float64, size)
		for l := first; l < end; l++ {
			base := (l/inner)*size*inner + l%inner
			for k := 0; k < size; k++ {
				lane[k] = src[base+k*inner]
			}
			lse := floats.LogSumExp(lane)
			for k := 0; k < size; k++ {
				dst[base+k*inner] = lane[k] - lse
			}
		}
	})
	return result, nil
}

// LogSoftmaxBackward computes the input gradient of LogSoftmax from its
// output y and the upstream gradient g:
//
//	∂L/∂x_i = g_i - softmax_i * Σ_j g_j
func LogSoftmaxBackward(y, g *tensor.Tensor, axis int) (*tensor.Tensor, error) {
	if !y.Shape().Equal(g.Shape()) {
		return nil, errors.Wrapf(tensor.ErrShapeMismatch, "log-softmax backward: output %v vs gradient %v",
			y.Shape(), g.Shape())
	}
	outer, size, inner, err := axisLayout(y.Shape(), axis)
	if err != nil {
		return nil, errors.Wrap(err, "log-softmax backward")
	}

	result := tensor.ZerosLike(y)
	yData, gData, dst := y.Data(), g.Data(), result.Data()

	forEachLane(outer, size, inner, func(first, end int) {
		for l := first; l < end; l++ {
			base := (l/inner)*size*inner + l%inner
			sum := 0.0
			for k := 0; k < size; k++ {
				sum += gData[base+k*inner]
			}
			for k := 0; k < size; k++ {
				idx := base + k*inner
				dst[idx] = gData[idx] - math.Exp(yData[idx])*sum
			}
		}
	})
	return result, nil
}

// forEachLane calls f over chunks of the outer*inner independent lanes of an
// axis layout. Lane l starts at (l/inner)*size*inner + l%inner with stride inner.
func forEachLane(outer, size, inner int, f func(first, end int)) {
	cfg := Parallelism()
	parallel.Range(outer*inner, f, cfg.WithMinChunk(cfg.MinChunkSize/size))
}

// validateNLL checks that logProbs is [batch, classes] and targets holds one
// in-range class index per sample.
func validateNLL(logProbs *tensor.Tensor, targets []int) (batch, classes int, err error) {
	shape := logProbs.Shape()
	if len(shape) != 2 {
		return 0, 0, errors.Wrapf(tensor.ErrShapeMismatch, "nll: log-probabilities must be 2D [batch, classes], got %v", shape)
	}
	batch, classes = shape[0], shape[1]
	if len(targets) != batch {
		return 0, 0, errors.Wrapf(tensor.ErrShapeMismatch, "nll: %d targets for batch of %d", len(targets), batch)
	}
	for b, t := range targets {
		if t < 0 || t >= classes {
			return 0, 0, errors.Wrapf(ErrInvalidTarget, "nll: sample %d has target %d, want [0, %d)", b, t, classes)
		}
	}
	return batch, classes, nil
}

// NLLLoss computes the negative log-likelihood averaged over the batch:
//
//	loss = -(1/B) Σ_b logProbs[b, targets[b]]
func NLLLoss(logProbs *tensor.Tensor, targets []int) (*tensor.Tensor, error) {
	batch, classes, err := validateNLL(logProbs, targets)
	if err != nil {
		return nil, err
	}

	data := logProbs.Data()
	total := 0.0
	for b, t := range targets {
		total -= data[b*classes+t]
	}
	return tensor.Scalar(total / float64(batch)), nil
}

// NLLLossBackward returns the gradient of NLLLoss w.r.t. its log-probabilities:
// -g/B at each sample's target position and zero elsewhere.
func NLLLossBackward(shape tensor.Shape, targets []int, g float64) *tensor.Tensor {
	batch, classes := shape[0], shape[1]
	result := tensor.Zeros(shape)
	data := result.Data()
	for b, t := range targets {
		data[b*classes+t] = -g / float64(batch)
	}
	return result
}
