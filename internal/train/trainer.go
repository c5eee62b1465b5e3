// Package train runs the supervised training loop for classification models.
//
// Every mini-batch gets a fresh autodiff.Graph: parameters are bound to it as
// tracked leaves, the loss is built and differentiated, the optimizer updates
// the persistent parameter payloads, and the graph is dropped. Evaluation
// binds the same parameters inside NoGrad, so it records nothing.
//
// Example:
//
//	trainer := train.New(model, optimizer, train.Config{Epochs: 5}, log.Default())
//	history, err := trainer.Fit(ctx, trainLoader, valLoader)
package train

import (
	"context"
	"io"
	"log"

	"github.com/pkg/errors"

	"github.com/born-ml/backprop/internal/autodiff"
	"github.com/born-ml/backprop/internal/data"
	"github.com/born-ml/backprop/internal/nn"
	"github.com/born-ml/backprop/internal/optim"
)

// Config holds configuration for a Trainer.
type Config struct {
	Epochs   int                   // Number of passes over the training set (default: 1)
	Loss     nn.ClassificationLoss // Loss on model outputs (default: NLLLoss on log-probabilities)
	LogEvery int                   // Log progress every N training batches (0: epoch summaries only)
	LRDecay  float64               // Multiply the learning rate by this after each epoch (0: constant)

	// GraphOptions are applied to the graph of every training iteration.
	GraphOptions []autodiff.GraphOption
}

// Stats summarises one pass over a loader.
type Stats struct {
	Loss     float64 // Sample-weighted mean loss
	Accuracy float64 // Fraction of correctly classified samples
	Batches  int
	Samples  int
}

// EpochResult records the statistics of one Fit epoch.
type EpochResult struct {
	Epoch      int
	LR         float64
	Train      Stats
	Validation Stats // Zero when Fit ran without a validation loader
}

// Trainer couples a model with an optimizer and runs the training loop.
type Trainer struct {
	Model     nn.Module
	Optimizer optim.Optimizer
	Config    Config
	Logger    *log.Logger // Optional; nil disables logging
}

// New creates a trainer, filling unset configuration with defaults.
func New(model nn.Module, optimizer optim.Optimizer, config Config, logger *log.Logger) *Trainer {
	if config.Epochs <= 0 {
		config.Epochs = 1
	}
	if config.Loss == nil {
		config.Loss = nn.NewNLLLoss()
	}
	return &Trainer{
		Model:     model,
		Optimizer: optimizer,
		Config:    config,
		Logger:    logger,
	}
}

// Fit trains for Config.Epochs epochs, evaluating on val after each one when
// val is non-nil. It returns the per-epoch history collected so far, also
// when it stops early on an error or a cancelled context.
func (t *Trainer) Fit(ctx context.Context, train, val *data.Loader) ([]EpochResult, error) {
	history := make([]EpochResult, 0, t.Config.Epochs)

	for epoch := 1; epoch <= t.Config.Epochs; epoch++ {
		result := EpochResult{Epoch: epoch, LR: t.Optimizer.LR()}

		stats, err := t.TrainEpoch(ctx, train)
		if err != nil {
			return history, errors.Wrapf(err, "epoch %d", epoch)
		}
		result.Train = stats

		if val != nil {
			stats, err = t.Evaluate(ctx, val)
			if err != nil {
				return history, errors.Wrapf(err, "epoch %d: validation", epoch)
			}
			result.Validation = stats
		}
		history = append(history, result)

		t.logf("Epoch %2d/%d: Loss=%.4f, Train Acc=%.2f%%, Val Loss=%.4f, Val Acc=%.2f%%",
			epoch, t.Config.Epochs, result.Train.Loss, result.Train.Accuracy*100,
			result.Validation.Loss, result.Validation.Accuracy*100)

		if t.Config.LRDecay > 0 {
			t.Optimizer.SetLR(t.Optimizer.LR() * t.Config.LRDecay)
		}
	}
	return history, nil
}

// TrainEpoch runs one optimisation step per batch of loader, starting from a
// fresh epoch. ctx is checked before every batch.
func (t *Trainer) TrainEpoch(ctx context.Context, loader *data.Loader) (Stats, error) {
	var acc accumulator
	loader.Reset()

	for {
		if err := ctx.Err(); err != nil {
			return acc.stats(), err
		}
		batch, err := loader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return acc.stats(), errors.Wrap(err, "load batch")
		}

		loss, correct, err := t.step(batch)
		if err != nil {
			return acc.stats(), errors.Wrapf(err, "batch %d", acc.batches+1)
		}
		acc.add(loss, correct, batch.Size())

		if t.Config.LogEvery > 0 && acc.batches%t.Config.LogEvery == 0 {
			t.logf("  batch %d/%d: loss=%.4f", acc.batches, loader.NumBatches(), loss)
		}
	}
	return acc.stats(), nil
}

// step performs forward, backward and the optimizer update for one batch.
func (t *Trainer) step(batch *data.Batch) (loss float64, correct int, err error) {
	g := autodiff.NewGraph(t.Config.GraphOptions...)

	output, err := t.Model.Forward(g, g.Constant(batch.Inputs))
	if err != nil {
		return 0, 0, errors.Wrap(err, "forward")
	}
	lossNode, err := t.Config.Loss.Forward(g, output, batch.Targets)
	if err != nil {
		return 0, 0, errors.Wrap(err, "loss")
	}
	loss, err = lossNode.Item()
	if err != nil {
		return 0, 0, err
	}

	t.Optimizer.ZeroGrad()
	if err := g.Backward(lossNode, autodiff.ReleaseGraph()); err != nil {
		return 0, 0, errors.Wrap(err, "backward")
	}
	if err := t.Optimizer.Step(); err != nil {
		return 0, 0, errors.Wrap(err, "optimizer step")
	}

	correct, err = countCorrect(output, batch.Targets)
	return loss, correct, err
}

// Evaluate computes loss and accuracy over one full pass of loader without
// recording any operations.
func (t *Trainer) Evaluate(ctx context.Context, loader *data.Loader) (Stats, error) {
	var acc accumulator
	loader.Reset()

	for {
		if err := ctx.Err(); err != nil {
			return acc.stats(), err
		}
		batch, err := loader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return acc.stats(), errors.Wrap(err, "load batch")
		}

		g := autodiff.NewGraph()
		err = g.NoGrad(func() error {
			output, err := t.Model.Forward(g, g.Constant(batch.Inputs))
			if err != nil {
				return errors.Wrap(err, "forward")
			}
			lossNode, err := t.Config.Loss.Forward(g, output, batch.Targets)
			if err != nil {
				return errors.Wrap(err, "loss")
			}
			loss, err := lossNode.Item()
			if err != nil {
				return err
			}
			correct, err := countCorrect(output, batch.Targets)
			if err != nil {
				return err
			}
			acc.add(loss, correct, batch.Size())
			return nil
		})
		if err != nil {
			return acc.stats(), errors.Wrapf(err, "eval batch %d", acc.batches+1)
		}
	}
	return acc.stats(), nil
}

func (t *Trainer) logf(format string, args ...any) {
	if t.Logger != nil {
		t.Logger.Printf(format, args...)
	}
}

func countCorrect(output autodiff.Node, targets []int) (int, error) {
	predicted, err := nn.Argmax(output.Value())
	if err != nil {
		return 0, errors.Wrap(err, "argmax")
	}
	return nn.Correct(predicted, targets), nil
}

type accumulator struct {
	lossSum float64
	correct int
	samples int
	batches int
}

func (a *accumulator) add(loss float64, correct, size int) {
	a.lossSum += loss * float64(size)
	a.correct += correct
	a.samples += size
	a.batches++
}

func (a *accumulator) stats() Stats {
	s := Stats{Batches: a.batches, Samples: a.samples}
	if a.samples > 0 {
		s.Loss = a.lossSum / float64(a.samples)
		s.Accuracy = float64(a.correct) / float64(a.samples)
	}
	return s
}
