package gradcheck

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/backprop/internal/autodiff"
	"github.com/born-ml/backprop/internal/tensor"
)

func sumOfCubes(g *autodiff.Graph, in []autodiff.Node) (autodiff.Node, error) {
	cube, err := g.Pow(in[0], 3)
	if err != nil {
		return autodiff.Node{}, err
	}
	return g.Sum(cube)
}

func TestCheck_Passes(t *testing.T) {
	x, err := tensor.FromSlice([]float64{-1, 0.5, 2}, tensor.Shape{3})
	require.NoError(t, err)

	report, err := Check(sumOfCubes, []*tensor.Tensor{x}, Config{})
	require.NoError(t, err)

	assert.True(t, report.Passed, report.String())
	require.Len(t, report.Results, 3)
	for i, v := range []float64{-1, 0.5, 2} {
		assert.InDelta(t, 3*v*v, report.Results[i].Analytic, 1e-12)
		assert.InDelta(t, 3*v*v, report.Results[i].Numeric, 1e-6)
	}
	assert.Less(t, report.MaxAbsErr, 1e-6)

	// Inputs are left untouched.
	assert.Equal(t, []float64{-1, 0.5, 2}, x.Data())
}

// ReLU has a kink at zero: the engine uses the 0 subgradient while central
// differences see the average slope 0.5.
func TestCheck_DetectsMismatch(t *testing.T) {
	x, err := tensor.FromSlice([]float64{0, 1}, tensor.Shape{2})
	require.NoError(t, err)

	fn := func(g *autodiff.Graph, in []autodiff.Node) (autodiff.Node, error) {
		y, err := g.ReLU(in[0])
		if err != nil {
			return autodiff.Node{}, err
		}
		return g.Sum(y)
	}

	report, err := Check(fn, []*tensor.Tensor{x}, Config{})
	require.NoError(t, err)

	assert.False(t, report.Passed)
	worst := report.Worst()
	assert.Equal(t, 0, worst.Index)
	assert.InDelta(t, 0.0, worst.Analytic, 1e-12)
	assert.InDelta(t, 0.5, worst.Numeric, 1e-6)
	assert.Contains(t, report.String(), "FAIL")
}

// A NaN on either side never counts as agreement.
func TestCheck_NaNFails(t *testing.T) {
	x := tensor.Full(tensor.Shape{1}, -1)
	fn := func(g *autodiff.Graph, in []autodiff.Node) (autodiff.Node, error) {
		y, err := g.Pow(in[0], 0.5)
		if err != nil {
			return autodiff.Node{}, err
		}
		return g.Sum(y)
	}

	report, err := Check(fn, []*tensor.Tensor{x}, Config{})
	require.NoError(t, err)
	assert.False(t, report.Passed)
}

func TestCheck_UnusedInput(t *testing.T) {
	x := tensor.Full(tensor.Shape{2}, 1.5)
	unused := tensor.Full(tensor.Shape{2, 2}, 3)

	report, err := Check(sumOfCubes, []*tensor.Tensor{x, unused}, Config{})
	require.NoError(t, err)

	assert.True(t, report.Passed)
	require.Len(t, report.Results, 6)
	for _, res := range report.Results[2:] {
		assert.Equal(t, 1, res.Input)
		assert.InDelta(t, 0.0, res.Analytic, 1e-12)
		assert.InDelta(t, 0.0, res.Numeric, 1e-9)
	}
}

func TestCheck_ForwardError(t *testing.T) {
	a := tensor.Zeros(tensor.Shape{2, 3})
	b := tensor.Zeros(tensor.Shape{2, 3})

	fn := func(g *autodiff.Graph, in []autodiff.Node) (autodiff.Node, error) {
		return g.MatMul(in[0], in[1])
	}

	_, err := Check(fn, []*tensor.Tensor{a, b}, Config{})
	assert.ErrorIs(t, err, autodiff.ErrShapeMismatch)
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, 1e-6, cfg.Step)
	assert.Equal(t, 1e-5, cfg.Tolerance)

	cfg = Config{Step: 1e-4, Tolerance: 1e-3}.withDefaults()
	assert.Equal(t, 1e-4, cfg.Step)
	assert.Equal(t, 1e-3, cfg.Tolerance)
}

func TestSuite(t *testing.T) {
	cases := Suite(rand.New(rand.NewPCG(11, 12)))
	require.NotEmpty(t, cases)

	seen := make(map[string]bool)
	for _, c := range cases {
		assert.False(t, seen[c.Name], "duplicate case %s", c.Name)
		seen[c.Name] = true

		report, err := c.Run(Config{})
		require.NoError(t, err, c.Name)
		assert.True(t, report.Passed, "%s: %s", c.Name, report)
	}
}
