package cpu

import (
	"math"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/backprop/internal/parallel"
	"github.com/born-ml/backprop/internal/tensor"
)

func mustTensor(t *testing.T, data []float64, shape ...int) *tensor.Tensor {
	t.Helper()
	x, err := tensor.FromSlice(data, shape)
	require.NoError(t, err)
	return x
}

func TestBinary_SameShape(t *testing.T) {
	a := mustTensor(t, []float64{1, 2, 3, 4}, 2, 2)
	b := mustTensor(t, []float64{4, 3, 2, 1}, 2, 2)

	tests := []struct {
		name string
		op   func(a, b *tensor.Tensor) (*tensor.Tensor, error)
		want []float64
	}{
		{"Add", Add, []float64{5, 5, 5, 5}},
		{"Sub", Sub, []float64{-3, -1, 1, 3}},
		{"Mul", Mul, []float64{4, 6, 6, 4}},
		{"Div", Div, []float64{0.25, 2.0 / 3.0, 1.5, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.op(a, b)
			require.NoError(t, err)
			assert.InDeltaSlice(t, tt.want, got.Data(), 1e-12)
			assert.Equal(t, []float64{1, 2, 3, 4}, a.Data(), "inputs must not be modified")
		})
	}
}

func TestBinary_Broadcast(t *testing.T) {
	a := mustTensor(t, []float64{1, 2, 3, 4, 5, 6}, 2, 3)
	row := mustTensor(t, []float64{10, 20, 30}, 3)
	col := mustTensor(t, []float64{100, 200}, 2, 1)

	got, err := Add(a, row)
	require.NoError(t, err)
	assert.Equal(t, []float64{11, 22, 33, 14, 25, 36}, got.Data())

	got, err = Sub(a, col)
	require.NoError(t, err)
	assert.Equal(t, []float64{-99, -98, -97, -196, -195, -194}, got.Data())

	got, err = Mul(tensor.Scalar(2), a)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 3}, got.Shape())
	assert.Equal(t, []float64{2, 4, 6, 8, 10, 12}, got.Data())

	_, err = Add(a, mustTensor(t, []float64{1, 2}, 2))
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)
}

func TestAddInto(t *testing.T) {
	dst := mustTensor(t, []float64{1, 2}, 2)
	require.NoError(t, AddInto(dst, mustTensor(t, []float64{3, 4}, 2)))
	assert.Equal(t, []float64{4, 6}, dst.Data())

	err := AddInto(dst, mustTensor(t, []float64{1, 2}, 1, 2))
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)
}

func TestSumTo(t *testing.T) {
	g := mustTensor(t, []float64{1, 2, 3, 4, 5, 6}, 2, 3)

	rows, err := SumTo(g, tensor.Shape{3})
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 7, 9}, rows.Data())

	cols, err := SumTo(g, tensor.Shape{2, 1})
	require.NoError(t, err)
	assert.Equal(t, []float64{6, 15}, cols.Data())

	all, err := SumTo(g, tensor.Shape{})
	require.NoError(t, err)
	assert.Equal(t, []float64{21}, all.Data())

	same, err := SumTo(g, tensor.Shape{2, 3})
	require.NoError(t, err)
	same.Data()[0] = 99
	assert.Equal(t, 1.0, g.Data()[0], "SumTo must not alias its input")

	_, err = SumTo(g, tensor.Shape{4})
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)
}

func TestBroadcastTo(t *testing.T) {
	x := mustTensor(t, []float64{1, 2}, 2, 1)
	got, err := BroadcastTo(x, tensor.Shape{2, 3})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 1, 2, 2, 2}, got.Data())

	_, err = BroadcastTo(x, tensor.Shape{3, 3})
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)
}

func TestMatMul(t *testing.T) {
	a := mustTensor(t, []float64{1, 2, 3, 4, 5, 6}, 2, 3)
	b := mustTensor(t, []float64{7, 8, 9, 10, 11, 12}, 3, 2)

	c, err := MatMul(a, b)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 2}, c.Shape())
	assert.Equal(t, []float64{58, 64, 139, 154}, c.Data())

	_, err = MatMul(a, a)
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)

	_, err = MatMul(mustTensor(t, []float64{1, 2}, 2), b)
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)
}

func TestTranspose(t *testing.T) {
	a := mustTensor(t, []float64{1, 2, 3, 4, 5, 6}, 2, 3)
	at, err := Transpose(a)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{3, 2}, at.Shape())
	assert.Equal(t, []float64{1, 4, 2, 5, 3, 6}, at.Data())

	_, err = Transpose(mustTensor(t, []float64{1}, 1))
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)
}

func TestElementwise(t *testing.T) {
	x := mustTensor(t, []float64{-1, 0, 2}, 3)

	assert.Equal(t, []float64{0, 0, 2}, ReLU(x).Data())
	assert.Equal(t, []float64{0, 0, 1}, ReLUMask(x).Data())
	assert.Equal(t, []float64{1, 0, 4}, Pow(x, 2).Data())
	assert.Equal(t, []float64{-1, 0, 8}, Pow(x, 3).Data())
	assert.Equal(t, []float64{-2, 0, 4}, Scale(x, 2).Data())
	assert.InDeltaSlice(t, []float64{math.Exp(-1), 1, math.Exp(2)}, Exp(x).Data(), 1e-12)
	assert.InDeltaSlice(t, []float64{math.Tanh(-1), 0, math.Tanh(2)}, Tanh(x).Data(), 1e-12)
	assert.InDeltaSlice(t, []float64{0, math.Log(2)}, Log(mustTensor(t, []float64{1, 2}, 2)).Data(), 1e-12)
}

func TestReductions(t *testing.T) {
	x := mustTensor(t, []float64{1, 2, 3, 6}, 2, 2)

	sum := Sum(x)
	assert.Equal(t, tensor.Shape{}, sum.Shape())
	assert.Equal(t, 12.0, sum.Data()[0])
	assert.Equal(t, 3.0, Mean(x).Data()[0])

	idx, err := Argmax(mustTensor(t, []float64{0.1, 0.7, 0.2, 0.5, 0.5, 0.1}, 2, 3))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, idx)

	_, err = Argmax(mustTensor(t, []float64{1, 2}, 2))
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)
}

func TestLogSoftmax(t *testing.T) {
	x := mustTensor(t, []float64{1, 2, 3, 1000, 1000, 1000}, 2, 3)

	y, err := LogSoftmax(x, 1)
	require.NoError(t, err)

	for r := 0; r < 2; r++ {
		total := 0.0
		for c := 0; c < 3; c++ {
			v := y.At(r, c)
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
			total += math.Exp(v)
		}
		assert.InDelta(t, 1.0, total, 1e-12, "row %d", r)
	}
	assert.InDelta(t, -math.Log(3), y.At(1, 0), 1e-12)

	neg, err := LogSoftmax(x, -1)
	require.NoError(t, err)
	assert.Equal(t, y.Data(), neg.Data())

	_, err = LogSoftmax(x, 2)
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)
}

func TestLogSoftmaxBackward(t *testing.T) {
	y, err := LogSoftmax(mustTensor(t, []float64{0.5, -1, 2}, 1, 3), 1)
	require.NoError(t, err)

	grad, err := LogSoftmaxBackward(y, mustTensor(t, []float64{1, 1, 1}, 1, 3), 1)
	require.NoError(t, err)
	// A uniform upstream gradient cancels: Σ softmax = 1.
	assert.InDeltaSlice(t, []float64{0, 0, 0}, grad.Data(), 1e-12)

	_, err = LogSoftmaxBackward(y, mustTensor(t, []float64{1, 1}, 1, 2), 1)
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)
}

func TestNLLLoss(t *testing.T) {
	logProbs := mustTensor(t, []float64{
		math.Log(0.2), math.Log(0.8),
		math.Log(0.6), math.Log(0.4),
	}, 2, 2)

	loss, err := NLLLoss(logProbs, []int{1, 0})
	require.NoError(t, err)
	assert.InDelta(t, -(math.Log(0.8)+math.Log(0.6))/2, loss.Data()[0], 1e-12)

	grad := NLLLossBackward(logProbs.Shape(), []int{1, 0}, 1)
	assert.Equal(t, []float64{0, -0.5, -0.5, 0}, grad.Data())

	_, err = NLLLoss(logProbs, []int{1, 2})
	assert.ErrorIs(t, err, ErrInvalidTarget)

	_, err = NLLLoss(logProbs, []int{-1, 0})
	assert.ErrorIs(t, err, ErrInvalidTarget)

	_, err = NLLLoss(logProbs, []int{1})
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)
}

// TestParallelKernels_MatchSequential forces tiny chunks so the kernels fan out
// over several goroutines, and compares with a sequential run.
func TestParallelKernels_MatchSequential(t *testing.T) {
	defer SetParallelism(parallel.DefaultConfig())

	x := tensor.Randn(tensor.Shape{37, 5, 3}, rand.New(rand.NewPCG(1, 1)))
	g := tensor.Randn(x.Shape(), rand.New(rand.NewPCG(2, 2)))

	run := func() (mapped, ls, lsGrad *tensor.Tensor) {
		ls, err := LogSoftmax(x, 1)
		require.NoError(t, err)
		lsGrad, err = LogSoftmaxBackward(ls, g, 1)
		require.NoError(t, err)
		return Tanh(x), ls, lsGrad
	}

	SetParallelism(parallel.Sequential())
	wantMap, wantLS, wantGrad := run()

	SetParallelism(parallel.Config{Enabled: true, NumWorkers: 4, MinChunkSize: 2})
	gotMap, gotLS, gotGrad := run()

	assert.Equal(t, wantMap.Data(), gotMap.Data())
	assert.Equal(t, wantLS.Data(), gotLS.Data())
	assert.Equal(t, wantGrad.Data(), gotGrad.Data())
}

// TestSetParallelism_Concurrent tests that reconfiguring while kernels run
// leaves every result intact. Run with -race.
func TestSetParallelism_Concurrent(t *testing.T) {
	defer SetParallelism(parallel.DefaultConfig())

	x := tensor.Randn(tensor.Shape{64, 10}, rand.New(rand.NewPCG(3, 3)))
	want := Tanh(x).Data()

	var wg sync.WaitGroup
	results := make([][]float64, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = Tanh(x).Data()
		}(i)
	}
	for i := range 8 {
		SetParallelism(parallel.Config{Enabled: i%2 == 0, NumWorkers: 4, MinChunkSize: 8})
	}
	wg.Wait()

	assert.Equal(t, parallel.Config{Enabled: false, NumWorkers: 4, MinChunkSize: 8}, Parallelism())
	for i, got := range results {
		assert.Equal(t, want, got, "goroutine %d", i)
	}
}
