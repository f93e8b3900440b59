// Package optim implements the deterministic parameter-update rules that
// consume gradients produced by package layers: plain SGD, SGD with
// momentum, and Adam. Every update runs entirely through package dvm's
// saturating primitives, so two optimizers fed identical gradient
// streams converge on bit-identical parameters regardless of host.
// Grounded on original_source/include/optimizer.h and
// original_source/src/training/optimizer.c.
package optim

import (
	"github.com/sarchlab/certrain/dvm"
	"github.com/sarchlab/certrain/fixedpoint"
)

// DefaultLR is the reference's default learning rate, 0.01 in Q16.16.
const DefaultLR = fixedpoint.Q16(655)

// gradToParam narrows a Q8.24 gradient into Q16.16 for a parameter
// update, rounding rather than truncating the 8 dropped fractional bits.
func gradToParam(g fixedpoint.Q8, f *fixedpoint.Fault) fixedpoint.Q16 {
	return fixedpoint.Narrow8to16(g, f)
}

// SGDConfig configures plain stochastic gradient descent.
type SGDConfig struct {
	LearningRate fixedpoint.Q16
	WeightDecay  fixedpoint.Q16
}

// DefaultSGDConfig returns the reference's default: lr=0.01, no decay.
func DefaultSGDConfig() SGDConfig {
	return SGDConfig{LearningRate: DefaultLR}
}

// SGD implements θ = θ - η*(g + λ*θ) element-wise.
type SGD struct {
	Config    SGDConfig
	StepCount uint64
}

// SGDOption configures an SGD optimizer at construction.
type SGDOption func(*SGD)

// WithSGDConfig overrides the default configuration.
func WithSGDConfig(cfg SGDConfig) SGDOption {
	return func(s *SGD) { s.Config = cfg }
}

// NewSGD builds an SGD optimizer, defaulting to DefaultSGDConfig.
func NewSGD(opts ...SGDOption) *SGD {
	s := &SGD{Config: DefaultSGDConfig()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Step applies one SGD update to params (Q16.16) given grads (Q8.24).
// params and grads must have equal length; a mismatch sets Domain and
// leaves params untouched.
func (s *SGD) Step(params []fixedpoint.Q16, grads []fixedpoint.Q8, f *fixedpoint.Fault) {
	if len(params) != len(grads) {
		f.Domain = true
		return
	}

	ct := dvm.New()
	lr, wd := s.Config.LearningRate, s.Config.WeightDecay

	for i := range params {
		theta := params[i]
		g := gradToParam(grads[i], f)

		if wd != 0 {
			decay := ct.Mul(wd, theta, f)
			g = ct.Add(g, decay, f)
		}

		update := ct.Mul(lr, g, f)
		params[i] = ct.Sub(theta, update, f)
	}

	s.StepCount++
}

// Reset zeroes the update counter (SGD carries no other state).
func (s *SGD) Reset() {
	s.StepCount = 0
}
