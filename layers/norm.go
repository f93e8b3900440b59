package layers

import (
	"github.com/sarchlab/certrain/compensated"
	"github.com/sarchlab/certrain/dvm"
	"github.com/sarchlab/certrain/fixedpoint"
)

// DefaultEpsilon is the numerical-stability constant used when the
// normalized variance could otherwise be zero: 1e-5 in Q16.16, rounded.
const DefaultEpsilon = fixedpoint.Q16(1)

// LayerNorm normalizes a single sample across its feature dimension:
// y = gamma * (x - mean) / sqrt(var + epsilon) + beta. Mean and variance
// are computed with the compensated accumulator (package compensated)
// rather than a naive running sum, so normalization inherits the same
// platform-independence guarantee as every other reduction in the core.
// Grounded on original_source/src/layers/normalization.c's per-feature
// statistics, adapted from batch normalization to per-sample layer
// normalization.
type LayerNorm struct {
	Gamma       []fixedpoint.Q16
	Beta        []fixedpoint.Q16
	NumFeatures uint32
	Epsilon     fixedpoint.Q16

	// MeanCache and InvStdCache hold the statistics from the last
	// Forward call. LayerNorm has no Backward method; nothing in this
	// module reads them.
	MeanCache   fixedpoint.Q16
	InvStdCache fixedpoint.Q16
}

// NewLayerNorm builds a LayerNorm over caller-provided gamma/beta
// buffers, each of length numFeatures. gamma is expected pre-filled with
// ONE_Q16 and beta with zero by the caller (matching the reference's
// init-to-identity convention).
func NewLayerNorm(gamma, beta []fixedpoint.Q16, numFeatures uint32) LayerNorm {
	return LayerNorm{
		Gamma:       gamma,
		Beta:        beta,
		NumFeatures: numFeatures,
		Epsilon:     DefaultEpsilon,
	}
}

// Forward normalizes input (numFeatures elements) into output, caching
// the mean and 1/sqrt(var+eps) used in MeanCache and InvStdCache.
func (ln *LayerNorm) Forward(input, output []fixedpoint.Q16, f *fixedpoint.Fault) {
	ct := dvm.New()
	n := ln.NumFeatures

	var sumAcc compensated.Accumulator
	for i := uint32(0); i < n; i++ {
		sumAcc = compensated.Add(sumAcc, int64(input[i])<<16, f)
	}
	meanRaw := compensated.Finalize(sumAcc, f) / int64(n)
	mean := fixedpoint.Q16(ct.RoundShiftRNE(meanRaw, 16, f))

	var varAcc compensated.Accumulator
	for i := uint32(0); i < n; i++ {
		centered := ct.Sub(input[i], mean, f)
		sq := int64(centered) * int64(centered)
		varAcc = compensated.Add(varAcc, sq, f)
	}
	varRaw := compensated.Finalize(varAcc, f) / int64(n)
	variance := fixedpoint.Q16(ct.RoundShiftRNE(varRaw, 16, f))

	stdInput := ct.Add(variance, ln.Epsilon, f)
	std := fixedpoint.SqrtQ16(stdInput)
	invStd := fixedpoint.Q16(ct.DivQ(int32(fixedpoint.OneQ16), int32(std), 16, f))

	ln.MeanCache = mean
	ln.InvStdCache = invStd

	for i := uint32(0); i < n; i++ {
		centered := ct.Sub(input[i], mean, f)
		normalized := ct.Mul(centered, invStd, f)
		scaled := ct.Mul(normalized, ln.Gamma[i], f)
		output[i] = ct.Add(scaled, ln.Beta[i], f)
	}
}
