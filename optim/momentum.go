package optim

import (
	"github.com/sarchlab/certrain/dvm"
	"github.com/sarchlab/certrain/fixedpoint"
)

// DefaultMomentum is the reference's default momentum coefficient, 0.9
// in Q16.16.
const DefaultMomentum = fixedpoint.Q16(58982)

// SGDMomentumConfig configures velocity-accumulating SGD.
type SGDMomentumConfig struct {
	LearningRate fixedpoint.Q16
	Momentum     fixedpoint.Q16
	WeightDecay  fixedpoint.Q16
}

// DefaultSGDMomentumConfig returns lr=0.01, momentum=0.9, no decay.
func DefaultSGDMomentumConfig() SGDMomentumConfig {
	return SGDMomentumConfig{LearningRate: DefaultLR, Momentum: DefaultMomentum}
}

// SGDMomentum implements v = β*v + g, θ = θ - η*(v + λ*θ). The velocity
// buffer is caller-owned (sized to the parameter count at construction),
// mirroring the no-allocation-inside-a-step contract the rest of the
// numerical core follows.
type SGDMomentum struct {
	Config    SGDMomentumConfig
	Velocity  []fixedpoint.Q16
	NumParams uint32
	StepCount uint64
}

// SGDMomentumOption configures an SGDMomentum optimizer at construction.
type SGDMomentumOption func(*SGDMomentum)

// WithSGDMomentumConfig overrides the default configuration.
func WithSGDMomentumConfig(cfg SGDMomentumConfig) SGDMomentumOption {
	return func(s *SGDMomentum) { s.Config = cfg }
}

// NewSGDMomentum builds an optimizer over a caller-provided, zeroed
// velocity buffer of length numParams.
func NewSGDMomentum(velocity []fixedpoint.Q16, numParams uint32, opts ...SGDMomentumOption) *SGDMomentum {
	s := &SGDMomentum{
		Config:    DefaultSGDMomentumConfig(),
		Velocity:  velocity,
		NumParams: numParams,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Step applies one momentum update. params, grads, and the velocity
// buffer must all agree in length with NumParams; a mismatch sets
// Domain and leaves params untouched.
func (s *SGDMomentum) Step(params []fixedpoint.Q16, grads []fixedpoint.Q8, f *fixedpoint.Fault) {
	n := int(s.NumParams)
	if len(params) != n || len(grads) != n || len(s.Velocity) != n {
		f.Domain = true
		return
	}

	ct := dvm.New()
	lr, beta, wd := s.Config.LearningRate, s.Config.Momentum, s.Config.WeightDecay

	for i := 0; i < n; i++ {
		theta := params[i]
		g := gradToParam(grads[i], f)

		vScaled := ct.Mul(beta, s.Velocity[i], f)
		v := ct.Add(vScaled, g, f)
		s.Velocity[i] = v

		effective := v
		if wd != 0 {
			decay := ct.Mul(wd, theta, f)
			effective = ct.Add(v, decay, f)
		}

		update := ct.Mul(lr, effective, f)
		params[i] = ct.Sub(theta, update, f)
	}

	s.StepCount++
}

// Reset zeroes the velocity buffer and the update counter.
func (s *SGDMomentum) Reset() {
	for i := range s.Velocity {
		s.Velocity[i] = 0
	}
	s.StepCount = 0
}
