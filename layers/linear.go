package layers

import (
	"github.com/sarchlab/certrain/compensated"
	"github.com/sarchlab/certrain/dvm"
	"github.com/sarchlab/certrain/fixedpoint"
	"github.com/sarchlab/certrain/tensor"
)

// Linear is a dense (fully-connected) layer computing y = Wx + b over
// Q16.16 inputs/weights, grounded on original_source/src/training/forward.c's
// ct_linear_t / ct_matvec_mul / ct_vec_add.
type Linear struct {
	Weights tensor.Tensor // [OutputSize, InputSize]
	Bias    tensor.Tensor // [OutputSize]

	InputSize  uint32
	OutputSize uint32
}

// NewLinear builds a Linear layer over caller-provided weight and bias
// buffers (no allocation inside the layer itself).
func NewLinear(weightsBuf, biasBuf []fixedpoint.Q16, inputSize, outputSize uint32) Linear {
	return Linear{
		Weights:    tensor.New2D(weightsBuf, outputSize, inputSize),
		Bias:       tensor.New1D(biasBuf, outputSize),
		InputSize:  inputSize,
		OutputSize: outputSize,
	}
}

// Forward computes output = Weights * input + Bias. input must have
// InputSize elements; output must have OutputSize elements and is
// written in place, never reshaped.
func (l Linear) Forward(input, output tensor.Tensor, f *fixedpoint.Fault) {
	if input.TotalSize != l.InputSize || output.TotalSize != l.OutputSize {
		f.Domain = true
		return
	}

	ct := dvm.New()
	for row := uint32(0); row < l.OutputSize; row++ {
		var acc compensated.Accumulator
		base := row * l.InputSize
		for col := uint32(0); col < l.InputSize; col++ {
			prod := int64(l.Weights.Data[base+col]) * int64(input.Data[col])
			acc = compensated.Add(acc, prod, f)
		}
		sum := compensated.Finalize(acc, f)
		y := ct.RoundShiftRNE(sum, 16, f)
		output.Data[row] = ct.Add(fixedpoint.Q16(y), l.Bias.Data[row], f)
	}
}

// Backward computes gradInput, gradWeights and gradBias from the
// upstream gradOutput and the cached forward-pass input, following the
// standard dense-layer adjoint: dL/dW = gradOutput ⊗ input,
// dL/db = gradOutput, dL/dx = Weights^T * gradOutput. Gradients are
// accumulated in Q8.24; the weight/input product is widened from Q16.16
// before combining, matching the Q16/Q8 boundary that
// fixedpoint.Widen16to8 and fixedpoint.Narrow8to16 cross.
func (l Linear) Backward(input tensor.Tensor, gradOutput tensor.GradTensor, gradInput, gradWeights, gradBias tensor.GradTensor, f *fixedpoint.Fault) {
	for row := uint32(0); row < l.OutputSize; row++ {
		gradBias.Data[row] = gradOutput.Data[row]

		base := row * l.InputSize
		for col := uint32(0); col < l.InputSize; col++ {
			inputQ8 := fixedpoint.Widen16to8(input.Data[col])
			prod := int64(gradOutput.Data[row]) * int64(inputQ8)
			gradWeights.Data[base+col] = fixedpoint.Q8(dvm.New().RoundShiftRNE(prod, 24, f))
		}
	}

	for col := uint32(0); col < l.InputSize; col++ {
		var acc compensated.Accumulator
		for row := uint32(0); row < l.OutputSize; row++ {
			weightQ8 := fixedpoint.Widen16to8(l.Weights.Data[row*l.InputSize+col])
			prod := int64(gradOutput.Data[row]) * int64(weightQ8)
			acc = compensated.Add(acc, prod, f)
		}
		sum := compensated.Finalize(acc, f)
		gradInput.Data[col] = fixedpoint.Q8(dvm.New().RoundShiftRNE(sum, 24, f))
	}
}
