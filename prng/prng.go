// Package prng implements the counter-based pseudo-random generator: a
// pure function of (seed, op_id, step) with no state beyond the caller's
// cursor, in the spirit of a 10-round Philox block cipher. The mixing
// constants and reference vectors below are part of the contract, not an
// implementation detail — any deviation is non-compliant.
package prng

import "github.com/sarchlab/certrain/fixedpoint"

// Mixing constants for the Philox-style block. Published, not tunable.
const (
	mulCtr  = 0xD2511F53
	mulKey  = 0xCD9E8D57
	addKey  = 0x9E3779B9
	rounds  = 10
	keyMult = 0x9E3779B97F4A7C15 // golden ratio, 64-bit
)

// State is the PRNG context: (seed, op_id, step). seed and op_id are
// immutable after Init; only step advances, and only through Next or
// StochasticRound.
type State struct {
	Seed uint64
	OpID uint64
	Step uint64
}

// Init returns a fresh State positioned at step 0.
func Init(seed, opID uint64) State {
	return State{Seed: seed, OpID: opID, Step: 0}
}

// core is the pure mixing function: (seed, op_id, step) -> u32. It is
// never called directly by anything outside this package; Next and Peek
// are the only entry points; core itself stays a pure function.
func core(seed, opID, step uint64) uint32 {
	ctr := (opID << 32) | (step & 0xFFFFFFFF)
	key := seed ^ (opID * keyMult)

	for r := 0; r < rounds; r++ {
		ctr = (ctr * mulCtr) ^ key
		key = key*mulKey + addKey
	}

	return uint32(ctr & 0xFFFFFFFF)
}

// Next returns core(seed, op_id, step) and advances step by one.
func (s *State) Next() uint32 {
	out := core(s.Seed, s.OpID, s.Step)
	s.Step++
	return out
}

// Peek returns core(seed, op_id, step) for an arbitrary step without
// mutating the state — a pure re-derivation, not random access into a
// cached sequence.
func (s State) Peek(step uint64) uint32 {
	return core(s.Seed, s.OpID, step)
}

// MakeOpID mixes three u32s into a u64 via a splitmix-style chain. Distinct
// (layer, tensor, element) triples produce distinct ids with no collisions
// inside 2^32 by construction of the mixing function.
func MakeOpID(layer, tensor, element uint32) uint64 {
	id := uint64(layer)
	id = id*0x9E3779B97F4A7C15 + uint64(tensor)
	id = id*0xBF58476D1CE4E5B9 + uint64(element)
	id ^= id >> 30
	id *= 0x94D049BB133111EB
	id ^= id >> 31
	return id
}

// ID names a (layer, tensor) op-id stream: every element of that tensor
// draws from the same stream but at a distinct op-id, so two tensors
// never share a sequence even under the same seed.
type ID struct {
	Layer  uint32
	Tensor uint32
}

// Stream returns the op-id stream for a given layer/tensor pair. Callers
// derive a per-element State via ID.State, varying only element.
func Stream(layer, tensor uint32) ID {
	return ID{Layer: layer, Tensor: tensor}
}

// OpID computes this stream's op-id for one element.
func (id ID) OpID(element uint32) uint64 {
	return MakeOpID(id.Layer, id.Tensor, element)
}

// State returns the PRNG state for one element of this stream under seed.
func (id ID) State(seed uint64, element uint32) State {
	return Init(seed, id.OpID(element))
}

// StochasticRound advances the PRNG by one call to Next and rounds x >> k
// up iff the fractional part of x below bit k exceeds the threshold drawn
// from the PRNG output. shift > 62 sets Domain and returns 0 without
// advancing state; shift == 0 is equivalent to Clamp32.
func (s *State) StochasticRound(x int64, shift uint, f *fixedpoint.Fault) int32 {
	const maxShift = 62

	if shift > maxShift {
		f.Domain = true
		return 0
	}
	if shift == 0 {
		return fixedpoint.Clamp32(x, f)
	}

	r := s.Next()

	mask := (int64(1) << shift) - 1
	fraction := x & mask
	// shift > 32 makes (32-shift) wrap to a huge unsigned count; Go defines
	// an unsigned shift by >= the operand width as 0, which is the
	// threshold the original C implementation's UB collapses to in
	// practice on every mainstream target.
	threshold := r >> (32 - shift)
	quotient := x >> shift

	result := quotient
	if uint64(fraction) > uint64(threshold) {
		result = quotient + 1
	}

	return fixedpoint.Clamp32(result, f)
}
