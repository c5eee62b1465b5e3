package autodiff

import (
	"github.com/pkg/errors"

	"github.com/born-ml/backprop/internal/backend/cpu"
	"github.com/born-ml/backprop/internal/tensor"
)

// Errors returned by graph construction and the backward pass.
// Returned errors wrap these sentinels with operation context; match them
// with errors.Is.
var (
	// ErrShapeMismatch reports operands whose shapes are incompatible for the
	// requested operation. Raised at forward time.
	ErrShapeMismatch = tensor.ErrShapeMismatch

	// ErrInvalidTarget reports a class target outside [0, numClasses).
	ErrInvalidTarget = cpu.ErrInvalidTarget

	// ErrNonScalarRoot reports a Backward call on a root holding more than one element.
	ErrNonScalarRoot = errors.New("backward root is not a scalar")

	// ErrStaleGraph reports a backward rule whose saved intermediates were released.
	ErrStaleGraph = errors.New("graph intermediates were released")

	// ErrUntrackedGradient reports a gradient read from a node that does not track gradients.
	ErrUntrackedGradient = errors.New("node does not track gradients")

	// ErrGradientNotReset reports, in strict mode, a backward pass reaching a
	// leaf whose gradient from a previous pass was never reset.
	ErrGradientNotReset = errors.New("gradient was not reset since the previous backward pass")

	// ErrForeignNode reports a node that belongs to a different graph (or to none).
	ErrForeignNode = errors.New("node belongs to a different graph")
)
