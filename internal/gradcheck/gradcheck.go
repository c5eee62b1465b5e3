// Package gradcheck compares gradients computed by the autodiff engine with
// centered finite-difference estimates.
package gradcheck

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/diff/fd"

	"github.com/born-ml/backprop/internal/autodiff"
	"github.com/born-ml/backprop/internal/tensor"
)

// Func builds a scalar output from the given input nodes.
type Func func(g *autodiff.Graph, inputs []autodiff.Node) (autodiff.Node, error)

// Config controls the finite-difference step and the acceptance tolerance.
type Config struct {
	Step      float64 // finite-difference step (default: 1e-6)
	Tolerance float64 // accepted absolute or relative error (default: 1e-5)
}

func (c Config) withDefaults() Config {
	if c.Step == 0 {
		c.Step = 1e-6
	}
	if c.Tolerance == 0 {
		c.Tolerance = 1e-5
	}
	return c
}

// Result is the comparison for one input element.
type Result struct {
	Input    int // index into the inputs slice
	Index    int // flat element index within that input
	Analytic float64
	Numeric  float64
	AbsErr   float64
	RelErr   float64
}

// Report summarises a gradient check.
type Report struct {
	Results   []Result
	MaxAbsErr float64
	MaxRelErr float64
	Passed    bool
}

// Worst returns the result with the largest relative error.
func (r *Report) Worst() Result {
	var worst Result
	for _, res := range r.Results {
		if res.RelErr >= worst.RelErr {
			worst = res
		}
	}
	return worst
}

// String formats the report on one line.
func (r *Report) String() string {
	status := "ok"
	if !r.Passed {
		status = "FAIL"
	}
	return fmt.Sprintf("%s: %d elements, max abs err %.3g, max rel err %.3g",
		status, len(r.Results), r.MaxAbsErr, r.MaxRelErr)
}

// Check evaluates fn at inputs, runs the backward pass, and compares every
// input gradient element with a central-difference estimate.
//
// The inputs are not modified.
func Check(fn Func, inputs []*tensor.Tensor, cfg Config) (*Report, error) {
	cfg = cfg.withDefaults()

	analytic, err := analyticGradients(fn, inputs)
	if err != nil {
		return nil, err
	}

	report := &Report{Passed: true}
	for i := range inputs {
		numeric, err := numericGradient(fn, inputs, i, cfg.Step)
		if err != nil {
			return nil, err
		}

		for j, a := range analytic[i].Data() {
			n := numeric[j]
			absErr := math.Abs(a - n)
			relErr := 0.0
			if scale := math.Max(math.Abs(a), math.Abs(n)); scale > 0 {
				relErr = absErr / scale
			}

			report.Results = append(report.Results, Result{
				Input: i, Index: j, Analytic: a, Numeric: n, AbsErr: absErr, RelErr: relErr,
			})
			report.MaxAbsErr = math.Max(report.MaxAbsErr, absErr)
			report.MaxRelErr = math.Max(report.MaxRelErr, relErr)
			if math.IsNaN(absErr) || (absErr > cfg.Tolerance && relErr > cfg.Tolerance) {
				report.Passed = false
			}
		}
	}
	return report, nil
}

func analyticGradients(fn Func, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	g := autodiff.NewGraph()
	nodes := make([]autodiff.Node, len(inputs))
	for i, in := range inputs {
		nodes[i] = g.Leaf(in, true)
	}

	out, err := fn(g, nodes)
	if err != nil {
		return nil, errors.Wrap(err, "gradcheck: forward")
	}
	if err := g.Backward(out); err != nil {
		return nil, errors.Wrap(err, "gradcheck: backward")
	}

	grads := make([]*tensor.Tensor, len(nodes))
	for i, n := range nodes {
		grad, err := n.Grad()
		if err != nil {
			return nil, err
		}
		if grad == nil {
			// Input did not influence the output.
			grad = tensor.ZerosLike(inputs[i])
		}
		grads[i] = grad
	}
	return grads, nil
}

// numericGradient estimates d(fn)/d(inputs[which]) with gonum's central formula.
func numericGradient(fn Func, inputs []*tensor.Tensor, which int, step float64) ([]float64, error) {
	var evalErr error
	shape := inputs[which].Shape()

	f := func(x []float64) float64 {
		g := autodiff.NewGraph()
		nodes := make([]autodiff.Node, len(inputs))
		for i, in := range inputs {
			if i == which {
				perturbed, err := tensor.FromSlice(x, shape)
				if err != nil {
					evalErr = err
					return math.NaN()
				}
				in = perturbed
			}
			nodes[i] = g.Constant(in)
		}

		out, err := fn(g, nodes)
		if err == nil {
			var v float64
			if v, err = out.Item(); err == nil {
				return v
			}
		}
		if evalErr == nil {
			evalErr = err
		}
		return math.NaN()
	}

	x := append([]float64(nil), inputs[which].Data()...)
	grad := fd.Gradient(nil, f, x, &fd.Settings{Formula: fd.Central, Step: step})
	if evalErr != nil {
		return nil, errors.Wrap(evalErr, "gradcheck: numeric evaluation")
	}
	return grad, nil
}
