package gradcheck

import (
	"math/rand/v2"

	"github.com/born-ml/backprop/internal/autodiff"
	"github.com/born-ml/backprop/internal/tensor"
)

// Case is one named gradient check.
type Case struct {
	Name   string
	Fn     Func
	Inputs []*tensor.Tensor
}

// Run checks the case with cfg.
func (c Case) Run(cfg Config) (*Report, error) {
	return Check(c.Fn, c.Inputs, cfg)
}

// Unary reduces op(x) to a scalar with Sum so every element is checked.
func Unary(op func(g *autodiff.Graph, x autodiff.Node) (autodiff.Node, error)) Func {
	return func(g *autodiff.Graph, in []autodiff.Node) (autodiff.Node, error) {
		y, err := op(g, in[0])
		if err != nil {
			return autodiff.Node{}, err
		}
		return g.Sum(y)
	}
}

// Weighted reduces op(a, b) to sum(op(a, b) * w) for a fixed random w, so the
// upstream gradient is not uniform.
func Weighted(op func(g *autodiff.Graph, a, b autodiff.Node) (autodiff.Node, error)) Func {
	return func(g *autodiff.Graph, in []autodiff.Node) (autodiff.Node, error) {
		y, err := op(g, in[0], in[1])
		if err != nil {
			return autodiff.Node{}, err
		}
		w := g.Constant(tensor.Randn(y.Shape(), rand.New(rand.NewPCG(7, 7))))
		prod, err := g.Mul(y, w)
		if err != nil {
			return autodiff.Node{}, err
		}
		return g.Sum(prod)
	}
}

// Suite returns a check for every differentiable operation, plus one
// composite classifier loss, with inputs drawn from rng. Inputs stay inside
// each operation's smooth domain: away from the ReLU kink and positive for
// Log and fractional powers.
func Suite(rng *rand.Rand) []Case {
	randn := func(shape ...int) *tensor.Tensor { return tensor.Randn(shape, rng) }

	return []Case{
		{"Add", Weighted((*autodiff.Graph).Add), []*tensor.Tensor{randn(2, 3), randn(2, 3)}},
		{"AddBroadcast", Weighted((*autodiff.Graph).Add), []*tensor.Tensor{randn(4, 3), randn(3)}},
		{"SubBroadcast", Weighted((*autodiff.Graph).Sub), []*tensor.Tensor{randn(2, 1), randn(2, 3)}},
		{"Mul", Weighted((*autodiff.Graph).Mul), []*tensor.Tensor{randn(3, 2), randn(3, 2)}},
		{"MulBroadcast", Weighted((*autodiff.Graph).Mul), []*tensor.Tensor{randn(3, 2), randn(1, 2)}},
		{"MatMul", Weighted((*autodiff.Graph).MatMul), []*tensor.Tensor{randn(2, 4), randn(4, 3)}},
		{"PowCube", Unary(pow(3)), []*tensor.Tensor{randn(5)}},
		{"PowZero", Unary(pow(0)), []*tensor.Tensor{tensor.Zeros(tensor.Shape{3})}},
		{"PowFractional", Unary(pow(1.5)), []*tensor.Tensor{tensor.Uniform(tensor.Shape{5}, 0.5, 2, rng)}},
		{"Transpose", Weighted(transposeThenAdd), []*tensor.Tensor{randn(2, 3), randn(3, 2)}},
		{"ReLU", Unary((*autodiff.Graph).ReLU), []*tensor.Tensor{awayFromZero(tensor.Shape{2, 4}, rng)}},
		{"Tanh", Unary((*autodiff.Graph).Tanh), []*tensor.Tensor{randn(6)}},
		{"Exp", Unary((*autodiff.Graph).Exp), []*tensor.Tensor{randn(6)}},
		{"Log", Unary((*autodiff.Graph).Log), []*tensor.Tensor{tensor.Uniform(tensor.Shape{6}, 0.5, 3, rng)}},
		{"Sum", Weighted(sumThenScale), []*tensor.Tensor{randn(3, 2), randn(1)}},
		{"Mean", mean, []*tensor.Tensor{randn(3, 3)}},
		{"LogSoftmaxRows", Weighted(logSoftmaxAxis(1)), []*tensor.Tensor{randn(3, 4), tensor.Zeros(tensor.Shape{3, 4})}},
		{"LogSoftmaxColumns", Weighted(logSoftmaxAxis(0)), []*tensor.Tensor{randn(3, 4), tensor.Zeros(tensor.Shape{3, 4})}},
		{"NLLLoss", nll([]int{2, 0, 1}), []*tensor.Tensor{randn(3, 3)}},
		{"ClassifierLoss", classifierLoss([]int{1, 0, 3}), []*tensor.Tensor{randn(3, 4), randn(4, 4)}},
	}
}

// awayFromZero returns values with |v| in [0.2, 1.2).
func awayFromZero(shape tensor.Shape, rng *rand.Rand) *tensor.Tensor {
	x := tensor.Uniform(shape, 0.2, 1.2, rng)
	for i, v := range x.Data() {
		if rng.IntN(2) == 0 {
			x.Data()[i] = -v
		}
	}
	return x
}

func pow(p float64) func(g *autodiff.Graph, x autodiff.Node) (autodiff.Node, error) {
	return func(g *autodiff.Graph, x autodiff.Node) (autodiff.Node, error) {
		return g.Pow(x, p)
	}
}

func mean(g *autodiff.Graph, in []autodiff.Node) (autodiff.Node, error) {
	return g.Mean(in[0])
}

func transposeThenAdd(g *autodiff.Graph, a, b autodiff.Node) (autodiff.Node, error) {
	at, err := g.Transpose(a)
	if err != nil {
		return autodiff.Node{}, err
	}
	return g.Add(at, b)
}

// sumThenScale multiplies sum(a) by b, so Sum's upstream gradient is not 1.
func sumThenScale(g *autodiff.Graph, a, b autodiff.Node) (autodiff.Node, error) {
	s, err := g.Sum(a)
	if err != nil {
		return autodiff.Node{}, err
	}
	return g.Mul(s, b)
}

// logSoftmaxAxis ignores its second operand, which only fixes the weight shape.
func logSoftmaxAxis(axis int) func(g *autodiff.Graph, a, b autodiff.Node) (autodiff.Node, error) {
	return func(g *autodiff.Graph, a, _ autodiff.Node) (autodiff.Node, error) {
		return g.LogSoftmax(a, axis)
	}
}

// nll treats its input directly as log-probabilities; NLL is linear in them.
func nll(targets []int) Func {
	return func(g *autodiff.Graph, in []autodiff.Node) (autodiff.Node, error) {
		return g.NLLLoss(in[0], targets)
	}
}

// classifierLoss is nll(log_softmax(tanh(x) @ w)), the shape of one training step.
func classifierLoss(targets []int) Func {
	return func(g *autodiff.Graph, in []autodiff.Node) (autodiff.Node, error) {
		h, err := g.Tanh(in[0])
		if err != nil {
			return autodiff.Node{}, err
		}
		logits, err := g.MatMul(h, in[1])
		if err != nil {
			return autodiff.Node{}, err
		}
		logProbs, err := g.LogSoftmax(logits, 1)
		if err != nil {
			return autodiff.Node{}, err
		}
		return g.NLLLoss(logProbs, targets)
	}
}
