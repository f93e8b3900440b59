package optim

import (
	"github.com/sarchlab/certrain/dvm"
	"github.com/sarchlab/certrain/fixedpoint"
)

// Adam's default moment-decay and stability constants, all in Q16.16.
const (
	DefaultAdamBeta1   = fixedpoint.Q16(58982) // 0.9
	DefaultAdamBeta2   = fixedpoint.Q16(65471) // 0.999
	DefaultAdamEpsilon = fixedpoint.Q16(1)     // ~1.5e-5, the format's floor
)

// AdamConfig configures Adam (optionally AdamW-style decoupled decay).
type AdamConfig struct {
	LearningRate fixedpoint.Q16
	Beta1        fixedpoint.Q16
	Beta2        fixedpoint.Q16
	Epsilon      fixedpoint.Q16
	WeightDecay  fixedpoint.Q16
}

// DefaultAdamConfig returns lr=0.01, beta1=0.9, beta2=0.999, eps~1.5e-5
// (one Q16.16 LSB), no decay.
func DefaultAdamConfig() AdamConfig {
	return AdamConfig{
		LearningRate: DefaultLR,
		Beta1:        DefaultAdamBeta1,
		Beta2:        DefaultAdamBeta2,
		Epsilon:      DefaultAdamEpsilon,
	}
}

// Adam implements bias-corrected adaptive moment estimation:
//
//	m = β₁*m + (1-β₁)*g
//	v = β₂*v + (1-β₂)*g²
//	m̂ = m / (1-β₁ᵗ),  v̂ = v / (1-β₂ᵗ)
//	θ = θ - η * m̂ / (√v̂ + ε)
//
// The first/second moment buffers are caller-owned, matching the
// no-hidden-allocation contract SGDMomentum follows.
type Adam struct {
	Config      AdamConfig
	M           []fixedpoint.Q16
	V           []fixedpoint.Q16
	Beta1Power  fixedpoint.Q16
	Beta2Power  fixedpoint.Q16
	NumParams   uint32
	StepCount   uint64
}

// AdamOption configures an Adam optimizer at construction.
type AdamOption func(*Adam)

// WithAdamConfig overrides the default configuration.
func WithAdamConfig(cfg AdamConfig) AdamOption {
	return func(a *Adam) { a.Config = cfg }
}

// NewAdam builds an optimizer over caller-provided, zeroed first- and
// second-moment buffers of length numParams.
func NewAdam(m, v []fixedpoint.Q16, numParams uint32, opts ...AdamOption) *Adam {
	a := &Adam{
		Config:     DefaultAdamConfig(),
		M:          m,
		V:          v,
		Beta1Power: fixedpoint.OneQ16,
		Beta2Power: fixedpoint.OneQ16,
		NumParams:  numParams,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Step applies one Adam update. params, grads, M, and V must all agree
// in length with NumParams; a mismatch sets Domain and leaves params
// untouched.
func (a *Adam) Step(params []fixedpoint.Q16, grads []fixedpoint.Q8, f *fixedpoint.Fault) {
	n := int(a.NumParams)
	if len(params) != n || len(grads) != n || len(a.M) != n || len(a.V) != n {
		f.Domain = true
		return
	}

	ct := dvm.New()
	cfg := a.Config

	a.Beta1Power = ct.Mul(a.Beta1Power, cfg.Beta1, f)
	a.Beta2Power = ct.Mul(a.Beta2Power, cfg.Beta2, f)

	oneMinusBeta1T := ct.Sub(fixedpoint.OneQ16, a.Beta1Power, f)
	oneMinusBeta2T := ct.Sub(fixedpoint.OneQ16, a.Beta2Power, f)
	oneMinusBeta1 := ct.Sub(fixedpoint.OneQ16, cfg.Beta1, f)
	oneMinusBeta2 := ct.Sub(fixedpoint.OneQ16, cfg.Beta2, f)

	for i := 0; i < n; i++ {
		theta := params[i]
		g := gradToParam(grads[i], f)

		mScaled := ct.Mul(cfg.Beta1, a.M[i], f)
		gScaled := ct.Mul(oneMinusBeta1, g, f)
		m := ct.Add(mScaled, gScaled, f)
		a.M[i] = m

		vScaled := ct.Mul(cfg.Beta2, a.V[i], f)
		gSq := ct.Mul(g, g, f)
		gSqScaled := ct.Mul(oneMinusBeta2, gSq, f)
		v := ct.Add(vScaled, gSqScaled, f)
		a.V[i] = v

		mHat := m
		if oneMinusBeta1T > 0 {
			mHat = fixedpoint.Q16(ct.DivQ(int32(m), int32(oneMinusBeta1T), 16, f))
		}
		vHat := v
		if oneMinusBeta2T > 0 {
			vHat = fixedpoint.Q16(ct.DivQ(int32(v), int32(oneMinusBeta2T), 16, f))
		}

		sqrtV := fixedpoint.SqrtQ16(vHat)
		denom := ct.Add(sqrtV, cfg.Epsilon, f)

		var update fixedpoint.Q16
		if denom > 0 {
			ratio := fixedpoint.Q16(ct.DivQ(int32(mHat), int32(denom), 16, f))
			update = ct.Mul(cfg.LearningRate, ratio, f)
		}

		if cfg.WeightDecay != 0 {
			decay := ct.Mul(ct.Mul(cfg.LearningRate, cfg.WeightDecay, f), theta, f)
			theta = ct.Sub(theta, decay, f)
		}

		params[i] = ct.Sub(theta, update, f)
	}

	a.StepCount++
}

// Reset zeroes the moment buffers, bias-correction powers, and step.
func (a *Adam) Reset() {
	for i := range a.M {
		a.M[i] = 0
	}
	for i := range a.V {
		a.V[i] = 0
	}
	a.Beta1Power = fixedpoint.OneQ16
	a.Beta2Power = fixedpoint.OneQ16
	a.StepCount = 0
}
