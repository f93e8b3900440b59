// Package compensated implements the Neumaier compensated summation
// accumulator: a (sum, err) pair that tracks rounding error in a second
// register so that many small values added to a large one are not lost,
// and a fixed reduction order over arrays of that accumulator.
package compensated

import "github.com/sarchlab/certrain/fixedpoint"

// maxElements bounds the sequential array reducers.
const maxElements = 65536

// Accumulator is the pair (sum, err); the represented value is
// sum + err. Both fields saturate to int64 bounds on overflow.
type Accumulator struct {
	Sum int64
	Err int64
}

// saturatingAdd64 adds a and b with int64 saturation, setting Overflow or
// Underflow on the faults record when the mathematical result does not fit.
func saturatingAdd64(a, b int64, f *fixedpoint.Fault) int64 {
	sum := a + b
	// Two's-complement overflow detection: overflow occurred iff the
	// operands share a sign and the result's sign differs from theirs.
	if (a >= 0) == (b >= 0) && (sum >= 0) != (a >= 0) {
		if a > 0 {
			f.Overflow = true
			return maxInt64
		}
		f.Underflow = true
		return minInt64
	}
	return sum
}

const (
	maxInt64 = int64(1<<63 - 1)
	minInt64 = int64(-1 << 63)
)

// Add folds v into acc using Neumaier's compensated summation.
func Add(acc Accumulator, v int64, f *fixedpoint.Fault) Accumulator {
	t := saturatingAdd64(acc.Sum, v, f)

	var e int64
	if abs64(acc.Sum) >= abs64(v) {
		e = (acc.Sum - t) + v
	} else {
		e = (v - t) + acc.Sum
	}

	return Accumulator{Sum: t, Err: acc.Err + e}
}

// Merge combines b into a: Add(a, b.Sum) followed by a.Err += b.Err.
func Merge(a, b Accumulator, f *fixedpoint.Fault) Accumulator {
	merged := Add(a, b.Sum, f)
	merged.Err += b.Err
	return merged
}

// Finalize returns the saturated sum + err.
func Finalize(acc Accumulator, f *fixedpoint.Fault) int64 {
	return saturatingAdd64(acc.Sum, acc.Err, f)
}

func abs64(x int64) int64 {
	if x == minInt64 {
		return maxInt64
	}
	if x < 0 {
		return -x
	}
	return x
}

// SumInt64 sequentially reduces values with compensated summation. It sets
// Domain (and returns 0) if len(values) exceeds the 65536-element domain
// guard.
func SumInt64(values []int64, f *fixedpoint.Fault) int64 {
	if len(values) > maxElements {
		f.Domain = true
		return 0
	}
	var acc Accumulator
	for _, v := range values {
		acc = Add(acc, v, f)
	}
	return Finalize(acc, f)
}

// SumInt32 is SumInt64 for a slice of int32, widening each element before
// accumulation.
func SumInt32(values []int32, f *fixedpoint.Fault) int64 {
	if len(values) > maxElements {
		f.Domain = true
		return 0
	}
	var acc Accumulator
	for _, v := range values {
		acc = Add(acc, int64(v), f)
	}
	return Finalize(acc, f)
}
