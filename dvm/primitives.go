// Package dvm implements the deterministic virtual machine's saturating
// fixed-point arithmetic primitives: round-to-nearest-even shifting,
// saturating add/sub/mul, and the two division flavors the format needs.
// Every primitive computes in at least one size wider than its inputs and
// then saturates; a small struct of
// pure methods operating on caller-owned state, never allocating, never
// blocking.
package dvm

import "github.com/sarchlab/certrain/fixedpoint"

// CT is the set of DVM primitives over the Q16.16 carrier. It holds no
// state of its own; every method takes the shared fault record explicitly,
// the same way the shared register file is threaded through an ALU.
type CT struct{}

// New returns a stateless DVM primitive set.
func New() CT { return CT{} }

// Add computes a + b on Q16.16 with a 64-bit intermediate, saturating to
// int32 and setting Overflow/Underflow on clamp.
func (CT) Add(a, b fixedpoint.Q16, f *fixedpoint.Fault) fixedpoint.Q16 {
	return fixedpoint.Q16(fixedpoint.Clamp32(int64(a)+int64(b), f))
}

// Sub computes a - b on Q16.16, same saturation contract as Add.
func (CT) Sub(a, b fixedpoint.Q16, f *fixedpoint.Fault) fixedpoint.Q16 {
	return fixedpoint.Q16(fixedpoint.Clamp32(int64(a)-int64(b), f))
}

// Mul computes a * b on Q16.16: a 64-bit product, then RoundShiftRNE by 16.
func (c CT) Mul(a, b fixedpoint.Q16, f *fixedpoint.Fault) fixedpoint.Q16 {
	product := int64(a) * int64(b)
	return fixedpoint.Q16(c.RoundShiftRNE(product, 16, f))
}

// DivInt32 performs plain truncating integer division. b == 0 returns 0
// with DivZero set; otherwise the quotient is truncated toward zero (Go's
// native int division semantics).
func (CT) DivInt32(a, b int32, f *fixedpoint.Fault) int32 {
	if b == 0 {
		f.DivZero = true
		return 0
	}
	return a / b
}

// DivQ performs fixed-point division with frac fractional bits of
// pre-shift: b == 0 yields 0 + DivZero; frac > 62 yields 0 + Domain;
// otherwise (a << frac) / b, saturated to int32.
func (CT) DivQ(a, b int32, frac uint, f *fixedpoint.Fault) int32 {
	if b == 0 {
		f.DivZero = true
		return 0
	}
	if frac > 62 {
		f.Domain = true
		return 0
	}
	return fixedpoint.Clamp32((int64(a)<<frac)/int64(b), f)
}

// Clamp32 saturates x into the int32 range.
func (CT) Clamp32(x int64, f *fixedpoint.Fault) int32 {
	return fixedpoint.Clamp32(x, f)
}

// Abs64Sat returns |x|, saturating int64's most negative value to
// int64::MAX with Overflow set (its true absolute value has no int64
// representation).
func (CT) Abs64Sat(x int64, f *fixedpoint.Fault) int64 {
	if x == minInt64 {
		f.Overflow = true
		return maxInt64
	}
	if x < 0 {
		return -x
	}
	return x
}

// RoundShiftRNE shifts x right by k bits with round-to-nearest-ties-to-even,
// then saturates to int32. k == 0 is equivalent to Clamp32; k > 62 sets
// Domain and returns 0.
func (CT) RoundShiftRNE(x int64, k uint, f *fixedpoint.Fault) int32 {
	if k == 0 {
		return fixedpoint.Clamp32(x, f)
	}
	if k > 62 {
		f.Domain = true
		return 0
	}
	return fixedpoint.Clamp32(fixedpoint.RoundToNearestEven(x, k), f)
}

const (
	maxInt64 = int64(1<<63 - 1)
	minInt64 = int64(-1 << 63)
)
