package nn_test

import (
	"math"
	"math/rand/v2"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/backprop/internal/autodiff"
	"github.com/born-ml/backprop/internal/nn"
	"github.com/born-ml/backprop/internal/tensor"
)

func newRNG() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

func mustTensor(t *testing.T, data []float64, shape ...int) *tensor.Tensor {
	t.Helper()
	x, err := tensor.FromSlice(data, shape)
	require.NoError(t, err)
	return x
}

// TestParameter_BindsOncePerGraph tests that a parameter used twice in one
// graph is a single leaf whose gradient sums both uses.
func TestParameter_BindsOncePerGraph(t *testing.T) {
	p := nn.NewParameter("w", mustTensor(t, []float64{3}, 1, 1))
	assert.Equal(t, "w", p.Name())
	assert.Nil(t, p.Grad())

	g := autodiff.NewGraph()
	a, b := p.Node(g), p.Node(g)
	assert.Equal(t, a.ID(), b.ID())

	prod, err := g.Mul(a, b) // w²
	require.NoError(t, err)
	require.NoError(t, g.Backward(prod))

	require.NotNil(t, p.Grad())
	assert.InDelta(t, 6.0, p.Grad().Data()[0], 1e-12)

	p.ZeroGrad()
	assert.Nil(t, p.Grad())

	// A new graph binds a new leaf to the same, now empty, buffer.
	g2 := autodiff.NewGraph()
	assert.Equal(t, 0, p.Node(g2).ID())
	assert.Nil(t, p.Grad())
}

// TestParameter_GradientPersistsAcrossGraphs tests that gradients from
// successive forward passes accumulate until the caller resets them.
func TestParameter_GradientPersistsAcrossGraphs(t *testing.T) {
	p := nn.NewParameter("w", mustTensor(t, []float64{3}, 1, 1))

	pass := func(opts ...autodiff.GraphOption) error {
		g := autodiff.NewGraph(opts...)
		sq, err := g.Pow(p.Node(g), 2)
		require.NoError(t, err)
		loss, err := g.Mean(sq)
		require.NoError(t, err)
		return g.Backward(loss, autodiff.ReleaseGraph())
	}

	require.NoError(t, pass())
	assert.Equal(t, []float64{6}, p.Grad().Data())

	require.NoError(t, pass())
	assert.Equal(t, []float64{12}, p.Grad().Data())

	p.ZeroGrad()
	require.NoError(t, pass())
	assert.Equal(t, []float64{6}, p.Grad().Data())

	err := pass(autodiff.WithStrictReset())
	assert.ErrorIs(t, err, autodiff.ErrGradientNotReset)
	assert.Equal(t, []float64{6}, p.Grad().Data())

	p.ZeroGrad()
	require.NoError(t, pass(autodiff.WithStrictReset()))
	assert.Equal(t, []float64{6}, p.Grad().Data())
}

// TestParameter_InPlaceUpdateDoesNotAlterGraph tests that updating the
// persistent payload leaves the bound leaf's recorded value unchanged.
func TestParameter_InPlaceUpdateDoesNotAlterGraph(t *testing.T) {
	p := nn.NewParameter("w", mustTensor(t, []float64{1, 2}, 2))
	g := autodiff.NewGraph()
	n := p.Node(g)

	p.Value().Data()[0] = 100
	assert.Equal(t, []float64{1, 2}, n.Value().Data())
}

// TestLinear_Forward tests y = x @ W + b against hand-computed values.
func TestLinear_Forward(t *testing.T) {
	w := mustTensor(t, []float64{1, 2, 3, 4, 5, 6}, 3, 2)
	b := mustTensor(t, []float64{0.5, -0.5}, 2)
	layer := nn.NewLinearFrom(w, b)

	assert.Equal(t, 3, layer.InFeatures())
	assert.Equal(t, 2, layer.OutFeatures())
	assert.Len(t, layer.Parameters(), 2)

	g := autodiff.NewGraph()
	x := g.Constant(mustTensor(t, []float64{1, 0, 1, 0, 1, 0}, 2, 3))
	y, err := layer.Forward(g, x)
	require.NoError(t, err)

	assert.Equal(t, tensor.Shape{2, 2}, y.Shape())
	assert.Equal(t, []float64{6.5, 7.5, 3.5, 3.5}, y.Value().Data())
}

// TestLinear_Backward tests parameter gradients of sum(x @ W + b).
func TestLinear_Backward(t *testing.T) {
	layer := nn.NewLinear(3, 2, newRNG())
	g := autodiff.NewGraph()
	x := g.Constant(mustTensor(t, []float64{1, 2, 3, 4, 5, 6}, 2, 3))

	y, err := layer.Forward(g, x)
	require.NoError(t, err)
	loss, err := g.Sum(y)
	require.NoError(t, err)
	require.NoError(t, g.Backward(loss))

	// dW[i, j] = Σ_b x[b, i]; db[j] = batch size.
	assert.Equal(t, []float64{5, 5, 7, 7, 9, 9}, layer.Weight().Grad().Data())
	assert.Equal(t, []float64{2, 2}, layer.Bias().Grad().Data())
}

func TestLinear_ShapeErrors(t *testing.T) {
	layer := nn.NewLinear(4, 2, newRNG())
	g := autodiff.NewGraph()

	_, err := layer.Forward(g, g.Constant(tensor.Zeros(tensor.Shape{2, 3})))
	assert.ErrorIs(t, err, autodiff.ErrShapeMismatch)

	_, err = layer.Forward(g, g.Constant(tensor.Zeros(tensor.Shape{4})))
	assert.ErrorIs(t, err, autodiff.ErrShapeMismatch)
}

func TestLinear_WithoutBias(t *testing.T) {
	layer := nn.NewLinearFrom(tensor.Ones(tensor.Shape{2, 1}), nil)
	assert.Nil(t, layer.Bias())
	assert.Len(t, layer.Parameters(), 1)

	g := autodiff.NewGraph()
	y, err := layer.Forward(g, g.Constant(mustTensor(t, []float64{2, 3}, 1, 2)))
	require.NoError(t, err)
	assert.Equal(t, []float64{5}, y.Value().Data())
}

func TestInit(t *testing.T) {
	rng := newRNG()

	xavier := nn.Xavier(100, 50, tensor.Shape{100, 50}, rng)
	bound := math.Sqrt(6.0 / 150)
	for _, v := range xavier.Data() {
		assert.LessOrEqual(t, math.Abs(v), bound)
	}

	kaiming := nn.KaimingUniform(64, tensor.Shape{64, 10}, rng)
	bound = math.Sqrt(6.0 / 64)
	for _, v := range kaiming.Data() {
		assert.LessOrEqual(t, math.Abs(v), bound)
	}

	assert.Equal(t, []float64{0, 0, 0}, nn.Zeros(tensor.Shape{3}).Data())
}

// TestSequential tests chaining and parameter collection.
func TestSequential(t *testing.T) {
	rng := newRNG()
	model := nn.NewSequential(
		nn.NewLinear(4, 8, rng),
		nn.NewReLU(),
		nn.NewLinear(8, 3, rng),
		nn.NewLogSoftmax(1),
	)
	assert.Equal(t, 4, model.Len())
	assert.Len(t, model.Parameters(), 4)
	assert.Equal(t, 4*8+8+8*3+3, nn.NumParameters(model))

	g := autodiff.NewGraph()
	x := g.Constant(tensor.Randn(tensor.Shape{5, 4}, rng))
	out, err := model.Forward(g, x)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{5, 3}, out.Shape())

	// Rows are log-probabilities.
	for r := 0; r < 5; r++ {
		total := 0.0
		for c := 0; c < 3; c++ {
			total += math.Exp(out.Value().At(r, c))
		}
		assert.InDelta(t, 1.0, total, 1e-12)
	}

	loss, err := nn.NewNLLLoss().Forward(g, out, []int{0, 1, 2, 0, 1})
	require.NoError(t, err)
	require.NoError(t, g.Backward(loss))
	for _, p := range model.Parameters() {
		assert.NotNil(t, p.Grad(), p.Name())
	}

	nn.ZeroGrad(model)
	for _, p := range model.Parameters() {
		assert.Nil(t, p.Grad(), p.Name())
	}

	_, err = model.Forward(g, g.Constant(tensor.Zeros(tensor.Shape{5, 2})))
	assert.ErrorIs(t, err, autodiff.ErrShapeMismatch)
}

func TestActivations(t *testing.T) {
	g := autodiff.NewGraph()
	x := g.Constant(mustTensor(t, []float64{-1, 0, 2}, 1, 3))

	relu, err := nn.NewReLU().Forward(g, x)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 2}, relu.Value().Data())

	tanh, err := nn.NewTanh().Forward(g, x)
	require.NoError(t, err)
	assert.InDelta(t, math.Tanh(2), tanh.Value().At(0, 2), 1e-12)

	assert.Nil(t, nn.NewReLU().Parameters())
	assert.Nil(t, nn.NewTanh().Parameters())
	assert.Nil(t, nn.NewLogSoftmax(1).Parameters())
}

// TestCrossEntropy_MatchesLogSoftmaxNLL tests that cross-entropy on logits
// equals NLL on log-softmax output.
func TestCrossEntropy_MatchesLogSoftmaxNLL(t *testing.T) {
	logits := mustTensor(t, []float64{2, 1, 0.1, 0.5, 2.5, 0.3}, 2, 3)
	targets := []int{0, 1}

	g := autodiff.NewGraph()
	ce, err := nn.NewCrossEntropyLoss().Forward(g, g.Constant(logits), targets)
	require.NoError(t, err)

	logProbs, err := g.LogSoftmax(g.Constant(logits), 1)
	require.NoError(t, err)
	nll, err := nn.NewNLLLoss().Forward(g, logProbs, targets)
	require.NoError(t, err)

	a, err := ce.Item()
	require.NoError(t, err)
	b, err := nll.Item()
	require.NoError(t, err)
	assert.InDelta(t, b, a, 1e-12)
	assert.Greater(t, a, 0.0)
}

func TestMSELoss(t *testing.T) {
	g := autodiff.NewGraph()
	pred := g.Leaf(mustTensor(t, []float64{1, 2, 3}, 3), true)
	target := g.Constant(mustTensor(t, []float64{1, 0, 0}, 3))

	loss, err := nn.NewMSELoss().Forward(g, pred, target)
	require.NoError(t, err)
	v, err := loss.Item()
	require.NoError(t, err)
	assert.InDelta(t, 13.0/3.0, v, 1e-12)

	require.NoError(t, g.Backward(loss))
	grad, err := pred.Grad()
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 4.0 / 3.0, 2}, grad.Data(), 1e-12)

	_, err = nn.NewMSELoss().Forward(g, pred, g.Constant(tensor.Zeros(tensor.Shape{2})))
	assert.ErrorIs(t, err, autodiff.ErrShapeMismatch)
}

func TestAccuracy(t *testing.T) {
	outputs := mustTensor(t, []float64{
		0.1, 0.9, 0.0,
		0.8, 0.1, 0.1,
		0.2, 0.2, 0.6,
		0.3, 0.4, 0.3,
	}, 4, 3)

	pred, err := nn.Argmax(outputs)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0, 2, 1}, pred)

	acc, err := nn.Accuracy(outputs, []int{1, 0, 0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.75, acc, 1e-12)

	_, err = nn.Accuracy(outputs, []int{1})
	assert.ErrorIs(t, err, autodiff.ErrShapeMismatch)
}

func TestStateDict_SaveLoad(t *testing.T) {
	model := nn.NewSequential(nn.NewLinear(3, 4, newRNG()), nn.NewTanh(), nn.NewLinear(4, 2, newRNG()))

	state := nn.StateDict(model)
	assert.ElementsMatch(t, []string{"0.weight", "0.bias", "2.weight", "2.bias"}, keys(state))

	path := filepath.Join(t.TempDir(), "mlp.safetensors")
	require.NoError(t, nn.Save(path, model, map[string]string{"arch": "3-4-2"}))

	restored := nn.NewSequential(
		nn.NewLinear(3, 4, rand.New(rand.NewPCG(9, 9))),
		nn.NewTanh(),
		nn.NewLinear(4, 2, rand.New(rand.NewPCG(9, 9))),
	)
	metadata, err := nn.Load(path, restored)
	require.NoError(t, err)
	assert.Equal(t, "3-4-2", metadata["arch"])

	for name, want := range nn.StateDict(model) {
		assert.Equal(t, want.Data(), nn.StateDict(restored)[name].Data(), name)
	}

	err = nn.LoadStateDict(restored, map[string]*tensor.Tensor{"0.weight": tensor.Zeros(tensor.Shape{3, 4})})
	assert.ErrorIs(t, err, nn.ErrMissingParameter)

	bad := nn.StateDict(model)
	bad["2.bias"] = tensor.Zeros(tensor.Shape{3})
	assert.ErrorIs(t, nn.LoadStateDict(restored, bad), autodiff.ErrShapeMismatch)
}

func keys(m map[string]*tensor.Tensor) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
