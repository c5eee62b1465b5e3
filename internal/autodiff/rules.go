package autodiff

import (
	"github.com/born-ml/backprop/internal/backend/cpu"
	"github.com/born-ml/backprop/internal/tensor"
)

// Add: d(a+b)/da = 1, d(a+b)/db = 1, summed over broadcast dimensions.

func addForward(in []*tensor.Tensor, _ *attrs) (*tensor.Tensor, []*tensor.Tensor, error) {
	out, err := cpu.Add(in[0], in[1])
	return out, in, err
}

func addBackward(saved []*tensor.Tensor, _ *attrs, g *tensor.Tensor, needs []bool) ([]*tensor.Tensor, error) {
	grads := make([]*tensor.Tensor, 2)
	for i := range grads {
		if !needs[i] {
			continue
		}
		grad, err := cpu.SumTo(g, saved[i].Shape())
		if err != nil {
			return nil, err
		}
		grads[i] = grad
	}
	return grads, nil
}

// Sub: d(a-b)/da = 1, d(a-b)/db = -1.

func subForward(in []*tensor.Tensor, _ *attrs) (*tensor.Tensor, []*tensor.Tensor, error) {
	out, err := cpu.Sub(in[0], in[1])
	return out, in, err
}

func subBackward(saved []*tensor.Tensor, at *attrs, g *tensor.Tensor, needs []bool) ([]*tensor.Tensor, error) {
	grads, err := addBackward(saved, at, g, needs)
	if err != nil {
		return nil, err
	}
	if grads[1] != nil {
		grads[1] = cpu.Scale(grads[1], -1)
	}
	return grads, nil
}

// Mul: d(a*b)/da = b, d(a*b)/db = a, evaluated at the saved operands.

func mulForward(in []*tensor.Tensor, _ *attrs) (*tensor.Tensor, []*tensor.Tensor, error) {
	out, err := cpu.Mul(in[0], in[1])
	return out, in, err
}

func mulBackward(saved []*tensor.Tensor, _ *attrs, g *tensor.Tensor, needs []bool) ([]*tensor.Tensor, error) {
	grads := make([]*tensor.Tensor, 2)
	for i := range grads {
		if !needs[i] {
			continue
		}
		other := saved[1-i]
		prod, err := cpu.Mul(g, other)
		if err != nil {
			return nil, err
		}
		grad, err := cpu.SumTo(prod, saved[i].Shape())
		if err != nil {
			return nil, err
		}
		grads[i] = grad
	}
	return grads, nil
}

// Pow: d(x^p)/dx = p * x^(p-1).

func powForward(in []*tensor.Tensor, at *attrs) (*tensor.Tensor, []*tensor.Tensor, error) {
	return cpu.Pow(in[0], at.exponent), in, nil
}

func powBackward(saved []*tensor.Tensor, at *attrs, g *tensor.Tensor, _ []bool) ([]*tensor.Tensor, error) {
	if at.exponent == 0 {
		// x^0 is constant; 0 * x^-1 would be NaN at x = 0.
		return []*tensor.Tensor{tensor.ZerosLike(saved[0])}, nil
	}
	local := cpu.Scale(cpu.Pow(saved[0], at.exponent-1), at.exponent)
	grad, err := cpu.Mul(g, local)
	if err != nil {
		return nil, err
	}
	return []*tensor.Tensor{grad}, nil
}

// MatMul: d(A@B)/dA = g @ Bᵀ, d(A@B)/dB = Aᵀ @ g.

func matmulForward(in []*tensor.Tensor, _ *attrs) (*tensor.Tensor, []*tensor.Tensor, error) {
	out, err := cpu.MatMul(in[0], in[1])
	return out, in, err
}

func matmulBackward(saved []*tensor.Tensor, _ *attrs, g *tensor.Tensor, needs []bool) ([]*tensor.Tensor, error) {
	a, b := saved[0], saved[1]
	grads := make([]*tensor.Tensor, 2)

	if needs[0] {
		bT, err := cpu.Transpose(b)
		if err != nil {
			return nil, err
		}
		if grads[0], err = cpu.MatMul(g, bT); err != nil {
			return nil, err
		}
	}
	if needs[1] {
		aT, err := cpu.Transpose(a)
		if err != nil {
			return nil, err
		}
		if grads[1], err = cpu.MatMul(aT, g); err != nil {
			return nil, err
		}
	}
	return grads, nil
}

// Transpose: the gradient is transposed back.

func transposeForward(in []*tensor.Tensor, _ *attrs) (*tensor.Tensor, []*tensor.Tensor, error) {
	out, err := cpu.Transpose(in[0])
	return out, nil, err
}

func transposeBackward(_ []*tensor.Tensor, _ *attrs, g *tensor.Tensor, _ []bool) ([]*tensor.Tensor, error) {
	grad, err := cpu.Transpose(g)
	if err != nil {
		return nil, err
	}
	return []*tensor.Tensor{grad}, nil
}

// ReLU: gradient passes where the input was strictly positive.

func reluForward(in []*tensor.Tensor, _ *attrs) (*tensor.Tensor, []*tensor.Tensor, error) {
	return cpu.ReLU(in[0]), in, nil
}

func reluBackward(saved []*tensor.Tensor, _ *attrs, g *tensor.Tensor, _ []bool) ([]*tensor.Tensor, error) {
	grad, err := cpu.Mul(g, cpu.ReLUMask(saved[0]))
	if err != nil {
		return nil, err
	}
	return []*tensor.Tensor{grad}, nil
}

// Tanh: d(tanh x)/dx = 1 - y².

func tanhForward(in []*tensor.Tensor, _ *attrs) (*tensor.Tensor, []*tensor.Tensor, error) {
	out := cpu.Tanh(in[0])
	return out, []*tensor.Tensor{out}, nil
}

func tanhBackward(saved []*tensor.Tensor, _ *attrs, g *tensor.Tensor, _ []bool) ([]*tensor.Tensor, error) {
	local := cpu.Map(saved[0], func(y float64) float64 { return 1 - y*y })
	grad, err := cpu.Mul(g, local)
	if err != nil {
		return nil, err
	}
	return []*tensor.Tensor{grad}, nil
}

// Exp: d(e^x)/dx = e^x, reusing the output.

func expForward(in []*tensor.Tensor, _ *attrs) (*tensor.Tensor, []*tensor.Tensor, error) {
	out := cpu.Exp(in[0])
	return out, []*tensor.Tensor{out}, nil
}

func expBackward(saved []*tensor.Tensor, _ *attrs, g *tensor.Tensor, _ []bool) ([]*tensor.Tensor, error) {
	grad, err := cpu.Mul(g, saved[0])
	if err != nil {
		return nil, err
	}
	return []*tensor.Tensor{grad}, nil
}

// Log: d(ln x)/dx = 1/x.

func logForward(in []*tensor.Tensor, _ *attrs) (*tensor.Tensor, []*tensor.Tensor, error) {
	return cpu.Log(in[0]), in, nil
}

func logBackward(saved []*tensor.Tensor, _ *attrs, g *tensor.Tensor, _ []bool) ([]*tensor.Tensor, error) {
	grad, err := cpu.Div(g, saved[0])
	if err != nil {
		return nil, err
	}
	return []*tensor.Tensor{grad}, nil
}

// Sum: the scalar gradient is broadcast to every element.

func sumForward(in []*tensor.Tensor, _ *attrs) (*tensor.Tensor, []*tensor.Tensor, error) {
	return cpu.Sum(in[0]), in, nil
}

func sumBackward(saved []*tensor.Tensor, _ *attrs, g *tensor.Tensor, _ []bool) ([]*tensor.Tensor, error) {
	return []*tensor.Tensor{tensor.Full(saved[0].Shape(), g.Data()[0])}, nil
}

// Mean: every element receives g/n.

func meanForward(in []*tensor.Tensor, _ *attrs) (*tensor.Tensor, []*tensor.Tensor, error) {
	return cpu.Mean(in[0]), in, nil
}

func meanBackward(saved []*tensor.Tensor, _ *attrs, g *tensor.Tensor, _ []bool) ([]*tensor.Tensor, error) {
	n := float64(saved[0].NumElements())
	return []*tensor.Tensor{tensor.Full(saved[0].Shape(), g.Data()[0]/n)}, nil
}

// LogSoftmax: ∂L/∂x_i = g_i - softmax_i * Σ_j g_j along the axis.

func logSoftmaxForward(in []*tensor.Tensor, at *attrs) (*tensor.Tensor, []*tensor.Tensor, error) {
	out, err := cpu.LogSoftmax(in[0], at.axis)
	if err != nil {
		return nil, nil, err
	}
	return out, []*tensor.Tensor{out}, nil
}

func logSoftmaxBackward(saved []*tensor.Tensor, at *attrs, g *tensor.Tensor, _ []bool) ([]*tensor.Tensor, error) {
	grad, err := cpu.LogSoftmaxBackward(saved[0], g, at.axis)
	if err != nil {
		return nil, err
	}
	return []*tensor.Tensor{grad}, nil
}

// NLLLoss: -g/B at each sample's target position, zero elsewhere.

func nllForward(in []*tensor.Tensor, at *attrs) (*tensor.Tensor, []*tensor.Tensor, error) {
	out, err := cpu.NLLLoss(in[0], at.targets)
	return out, in, err
}

func nllBackward(saved []*tensor.Tensor, at *attrs, g *tensor.Tensor, _ []bool) ([]*tensor.Tensor, error) {
	return []*tensor.Tensor{cpu.NLLLossBackward(saved[0].Shape(), at.targets, g.Data()[0])}, nil
}
