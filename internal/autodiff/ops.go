package autodiff

import (
	"github.com/born-ml/backprop/internal/tensor"
)

// OpKind identifies a primitive operation. The set is closed: every kind has
// an entry in the rule table.
type OpKind uint8

// Supported operations.
const (
	OpNone OpKind = iota
	OpAdd
	OpSub
	OpMul
	OpPow
	OpMatMul
	OpTranspose
	OpReLU
	OpTanh
	OpExp
	OpLog
	OpSum
	OpMean
	OpLogSoftmax
	OpNLLLoss

	numOps
)

// String returns the operation name.
func (k OpKind) String() string {
	if k == OpNone {
		return "leaf"
	}
	if k < numOps {
		return rules[k].name
	}
	return "unknown"
}

// attrs carries the non-tensor arguments of an operation.
type attrs struct {
	exponent float64 // OpPow
	axis     int     // OpLogSoftmax
	targets  []int   // OpNLLLoss
}

// forwardFunc computes an output payload from input payloads and returns the
// tensors its backward rule needs.
type forwardFunc func(in []*tensor.Tensor, at *attrs) (out *tensor.Tensor, saved []*tensor.Tensor, err error)

// backwardFunc computes one gradient contribution per input, in input order,
// from the saved intermediates and the output gradient. needs[i] is false for
// inputs that do not track gradients; their slot may be left nil.
//
// Every returned tensor must be freshly allocated: the engine accumulates into
// them in place.
type backwardFunc func(saved []*tensor.Tensor, at *attrs, outGrad *tensor.Tensor, needs []bool) ([]*tensor.Tensor, error)

// rule pairs the forward and backward function of an operation kind.
type rule struct {
	name     string
	arity    int
	forward  forwardFunc
	backward backwardFunc
}

var rules [numOps]rule

func init() {
	rules = [numOps]rule{
		OpAdd:        {name: "add", arity: 2, forward: addForward, backward: addBackward},
		OpSub:        {name: "sub", arity: 2, forward: subForward, backward: subBackward},
		OpMul:        {name: "mul", arity: 2, forward: mulForward, backward: mulBackward},
		OpPow:        {name: "pow", arity: 1, forward: powForward, backward: powBackward},
		OpMatMul:     {name: "matmul", arity: 2, forward: matmulForward, backward: matmulBackward},
		OpTranspose:  {name: "transpose", arity: 1, forward: transposeForward, backward: transposeBackward},
		OpReLU:       {name: "relu", arity: 1, forward: reluForward, backward: reluBackward},
		OpTanh:       {name: "tanh", arity: 1, forward: tanhForward, backward: tanhBackward},
		OpExp:        {name: "exp", arity: 1, forward: expForward, backward: expBackward},
		OpLog:        {name: "log", arity: 1, forward: logForward, backward: logBackward},
		OpSum:        {name: "sum", arity: 1, forward: sumForward, backward: sumBackward},
		OpMean:       {name: "mean", arity: 1, forward: meanForward, backward: meanBackward},
		OpLogSoftmax: {name: "log_softmax", arity: 1, forward: logSoftmaxForward, backward: logSoftmaxBackward},
		OpNLLLoss:    {name: "nll_loss", arity: 1, forward: nllForward, backward: nllBackward},
	}
}
