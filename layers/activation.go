// Package layers implements the forward/backward collaborator layers
// that consume the deterministic numerical core: linear (dense),
// activation (ReLU/sigmoid/tanh via a shared interpolated lookup table),
// 2-D convolution, and layer normalization. None of these are part of
// the certified core itself; they are external collaborators that must
// only ever reach the core through dvm/compensated/fixedpoint, never
// around it, grounded on
// original_source/include/forward.h and original_source/src/layers/activation.c.
package layers

import (
	"math"

	"github.com/sarchlab/certrain/dvm"
	"github.com/sarchlab/certrain/fixedpoint"
	"github.com/sarchlab/certrain/tensor"
)

// Kind selects which activation function a layer applies.
type Kind int

const (
	None Kind = iota
	ReLU
	Sigmoid
	Tanh
)

// LUTSize is the number of entries in an interpolated activation table:
// 257 samples over [-8, +8], giving 256 equal intervals.
const LUTSize = 257

// LUT is a precomputed interpolation table over a fixed domain. It is
// built once, at startup, using floating point (construction-time float
// use is the one place the numerical core permits it); every runtime
// lookup through it is pure integer linear interpolation.
type LUT struct {
	Table     [LUTSize]fixedpoint.Q16
	DomainMin fixedpoint.Q16
	DomainMax fixedpoint.Q16
}

// NewSigmoidLUT builds the table both layers.Activation and a sigmoid
// driver share, following forward.c's generation formula exactly (domain
// [-8, 8], 257 samples, float64 double precision): this is the
// resolution of the spec's open question about two divergent sigmoid
// LUTs — only this one is implemented, and every sigmoid consumer in the
// tree shares it.
func NewSigmoidLUT() *LUT {
	return newLUT(func(x float64) float64 {
		return 1.0 / (1.0 + math.Exp(-x))
	})
}

// NewTanhLUT builds the analogous table for tanh, same domain and
// sample count as NewSigmoidLUT.
func NewTanhLUT() *LUT {
	return newLUT(math.Tanh)
}

func newLUT(fn func(float64) float64) *LUT {
	lut := &LUT{
		DomainMin: floatToFixed(-8.0),
		DomainMax: floatToFixed(8.0),
	}
	for i := 0; i < LUTSize; i++ {
		x := -8.0 + (16.0*float64(i))/256.0
		lut.Table[i] = floatToFixed(fn(x))
	}
	return lut
}

func floatToFixed(f float64) fixedpoint.Q16 {
	if f >= 0 {
		return fixedpoint.Q16(f*float64(fixedpoint.OneQ16) + 0.5)
	}
	return fixedpoint.Q16(f*float64(fixedpoint.OneQ16) - 0.5)
}

// lookup performs the saturate-then-interpolate lookup forward.c defines
// for both sigmoid and tanh: outside the domain the table's boundary
// value is returned; inside it, linear interpolation between the two
// bracketing samples.
func (l *LUT) lookup(x fixedpoint.Q16) fixedpoint.Q16 {
	if x <= l.DomainMin {
		return l.Table[0]
	}
	if x >= l.DomainMax {
		return l.Table[LUTSize-1]
	}

	shifted := int64(x) - int64(l.DomainMin)
	scaled := shifted * 16
	index := uint32(scaled >> 16)
	if index >= LUTSize-1 {
		index = LUTSize - 2
	}

	frac := scaled & (1<<16 - 1)
	y0 := l.Table[index]
	y1 := l.Table[index+1]
	interp := (int64(y1-y0) * frac) >> 16
	return fixedpoint.Q16(int64(y0) + interp)
}

// Activation applies ReLU, sigmoid, or tanh element-wise. A Sigmoid or
// Tanh layer must carry a non-nil LUT; ReLU needs none.
type Activation struct {
	Kind Kind
	LUT  *LUT
}

// NewActivation builds an activation layer. kind == Sigmoid or Tanh
// require a non-nil lut (typically shared across every layer of that
// kind in a network, per spec.md's "single shared table" directive).
func NewActivation(kind Kind, lut *LUT) Activation {
	return Activation{Kind: kind, LUT: lut}
}

// Apply computes the activation of a single value.
func (a Activation) Apply(x fixedpoint.Q16, f *fixedpoint.Fault) fixedpoint.Q16 {
	switch a.Kind {
	case ReLU:
		if x > 0 {
			return x
		}
		return 0
	case Sigmoid, Tanh:
		if a.LUT == nil {
			f.Domain = true
			return 0
		}
		return a.LUT.lookup(x)
	default:
		return x
	}
}

// Derivative computes the activation's derivative given its own
// (already-computed) output y = Apply(x): 1{x>0} for ReLU, y(1-y) for
// sigmoid, 1-y^2 for tanh. preActivation is only consulted for ReLU.
func (a Activation) Derivative(preActivation, output fixedpoint.Q16, f *fixedpoint.Fault) fixedpoint.Q16 {
	ct := dvm.New()
	switch a.Kind {
	case ReLU:
		if preActivation > 0 {
			return fixedpoint.OneQ16
		}
		return 0
	case Sigmoid:
		oneMinus := ct.Sub(fixedpoint.OneQ16, output, f)
		return ct.Mul(output, oneMinus, f)
	case Tanh:
		sq := ct.Mul(output, output, f)
		return ct.Sub(fixedpoint.OneQ16, sq, f)
	default:
		return fixedpoint.OneQ16
	}
}

// Forward applies the activation element-wise into output (which may
// alias input). Both tensors must be contiguous and equal in size.
func (a Activation) Forward(input, output tensor.Tensor, f *fixedpoint.Fault) {
	if !input.IsContiguous() || !output.IsContiguous() {
		f.Domain = true
		return
	}
	if input.TotalSize != output.TotalSize {
		f.Domain = true
		return
	}
	for i := uint32(0); i < input.TotalSize; i++ {
		output.Data[i] = a.Apply(input.Data[i], f)
	}
}

// Backward propagates gradOutput through the activation into gradInput,
// given the cached pre-activation and post-activation values from the
// matching Forward call: grad_input[i] = grad_output[i] * f'(pre[i]).
// The Q16.16 derivative is widened into Q8.24 before multiplying the
// Q8.24 gradient, matching the carrier the gradient buffers use.
func (a Activation) Backward(preActivation, output tensor.Tensor, gradOutput, gradInput tensor.GradTensor, f *fixedpoint.Fault) {
	ct := dvm.New()
	n := preActivation.TotalSize
	for i := uint32(0); i < n; i++ {
		deriv := a.Derivative(preActivation.Data[i], output.Data[i], f)
		derivQ8 := fixedpoint.Widen16to8(deriv)

		prod := int64(gradOutput.Data[i]) * int64(derivQ8)
		gradInput.Data[i] = fixedpoint.Q8(ct.RoundShiftRNE(prod, 24, f))
	}
}
