// Package permutation implements deterministic dataset shuffling via a
// cycle-walking balanced Feistel network, grounded on
// original_source/src/training/permutation.c.
package permutation

import "github.com/sarchlab/certrain/fixedpoint"

// MaxDatasetSize bounds N at 2^30, matching the reference implementation.
const MaxDatasetSize = uint32(1) << 30

const feistelRounds = 4

// Permutation is a bijection on [0, N-1] keyed by (seed, epoch).
type Permutation struct {
	seed        uint64
	epoch       uint32
	datasetSize uint32
	halfBits    uint32
	halfMask    uint32
	rng         uint32 // cached 2^k cycle-walk range
}

// New initializes a permutation over [0, datasetSize). It sets Domain and
// returns the zero Permutation if datasetSize is 0 or exceeds
// MaxDatasetSize.
func New(seed uint64, epoch, datasetSize uint32, f *fixedpoint.Fault) Permutation {
	if datasetSize == 0 || datasetSize > MaxDatasetSize {
		f.Domain = true
		return Permutation{}
	}

	k := ceilLog2(datasetSize)
	if k%2 == 1 {
		k++
	}

	return Permutation{
		seed:        seed,
		epoch:       epoch,
		datasetSize: datasetSize,
		halfBits:    k / 2,
		halfMask:    (uint32(1) << (k / 2)) - 1,
		rng:         uint32(1) << k,
	}
}

// ceilLog2 returns ceil(log2(n)), floored at 1 (the reference
// implementation's minimum, since a zero-bit Feistel network is
// degenerate).
func ceilLog2(n uint32) uint32 {
	if n <= 1 {
		return 1
	}
	var bits uint32
	val := n - 1
	for val > 0 {
		val >>= 1
		bits++
	}
	return bits
}

// SetEpoch updates the epoch, changing the permutation produced by Apply.
func (p *Permutation) SetEpoch(epoch uint32) {
	p.epoch = epoch
}

// hash is the Feistel round function mixing (seed, epoch, round, value).
func hash(seed uint64, epoch, round, value uint32) uint32 {
	h := uint32(seed & 0xFFFFFFFF)
	h = uint32(uint64(h)*0x9E3779B9 + uint64(epoch))
	h = uint32(uint64(h)*0x85EBCA6B + uint64(round))
	h = uint32(uint64(h)*0xC2B2AE35 + uint64(value))
	h ^= h >> 16
	h = uint32(uint64(h) * 0x85EBCA6B)
	h ^= h >> 13
	return h
}

func (p Permutation) forward(input uint32) uint32 {
	l := input & p.halfMask
	r := (input >> p.halfBits) & p.halfMask

	for round := uint32(0); round < feistelRounds; round++ {
		f := hash(p.seed, p.epoch, round, r)
		l, r = r, l^(f&p.halfMask)
	}

	return (r << p.halfBits) | l
}

func (p Permutation) inverse(input uint32) uint32 {
	l := input & p.halfMask
	r := (input >> p.halfBits) & p.halfMask

	for round := int(feistelRounds) - 1; round >= 0; round-- {
		f := hash(p.seed, p.epoch, uint32(round), l)
		l, r = r^(f&p.halfMask), l
	}

	return (r << p.halfBits) | l
}

// Apply computes π(index): the forward permuted index in [0, N-1], via
// cycle-walking Feistel rounds repeated until the result lands in range.
// It sets Domain and returns index % N if index is out of range or the
// walk exceeds its safety bound of p.rng iterations.
func (p Permutation) Apply(index uint32, f *fixedpoint.Fault) uint32 {
	if p.datasetSize == 0 {
		f.Domain = true
		return 0
	}
	if index >= p.datasetSize {
		f.Domain = true
		return index % p.datasetSize
	}
	if p.datasetSize == 1 {
		return 0
	}

	i := index
	for iterations := uint32(0); ; iterations++ {
		if iterations >= p.rng {
			f.Domain = true
			return index % p.datasetSize
		}
		i = p.forward(i)
		if i < p.datasetSize {
			return i
		}
	}
}

// Inverse computes π⁻¹(permutedIndex), walking the reversed-round-order
// Feistel network under the same cycle-walking rule as Apply.
func (p Permutation) Inverse(permutedIndex uint32, f *fixedpoint.Fault) uint32 {
	if p.datasetSize == 0 {
		f.Domain = true
		return 0
	}
	if permutedIndex >= p.datasetSize {
		f.Domain = true
		return permutedIndex % p.datasetSize
	}
	if p.datasetSize == 1 {
		return 0
	}

	i := permutedIndex
	for iterations := uint32(0); ; iterations++ {
		if iterations >= p.rng {
			f.Domain = true
			return permutedIndex % p.datasetSize
		}
		i = p.inverse(i)
		if i < p.datasetSize {
			return i
		}
	}
}

// VerifyBijection checks, by brute force, that Apply is a bijection on
// [0, N-1]. It is intended for small N in tests, matching the reference
// implementation's O(N) verification utility.
func (p Permutation) VerifyBijection(f *fixedpoint.Fault) bool {
	n := p.datasetSize
	visited := make([]bool, n)
	for i := uint32(0); i < n; i++ {
		j := p.Apply(i, f)
		if j >= n || visited[j] {
			return false
		}
		visited[j] = true
	}
	return true
}

// BatchContext generates deterministic per-step batch indices from a
// permutation: indices[j] = π(t*B + j).
type BatchContext struct {
	Perm          Permutation
	BatchSize     uint32
	StepsPerEpoch uint32
	datasetSize   uint32
}

// NewBatchContext initializes a batch context. It sets Domain and returns
// the zero BatchContext if batchSize is 0 or the underlying permutation
// fails to initialize.
func NewBatchContext(seed uint64, epoch, datasetSize, batchSize uint32, f *fixedpoint.Fault) BatchContext {
	if batchSize == 0 {
		f.Domain = true
		return BatchContext{}
	}
	perm := New(seed, epoch, datasetSize, f)
	if f.Domain {
		return BatchContext{}
	}
	return BatchContext{
		Perm:          perm,
		BatchSize:     batchSize,
		StepsPerEpoch: (datasetSize + batchSize - 1) / batchSize,
		datasetSize:   datasetSize,
	}
}

// SetEpoch updates the epoch of the underlying permutation.
func (b *BatchContext) SetEpoch(epoch uint32) {
	b.Perm.SetEpoch(epoch)
}

// StepInEpoch returns globalStep modulo StepsPerEpoch.
func (b BatchContext) StepInEpoch(globalStep uint64) uint32 {
	if b.StepsPerEpoch == 0 {
		return 0
	}
	return uint32(globalStep % uint64(b.StepsPerEpoch))
}

// Epoch returns the epoch implied by a global step counter.
func (b BatchContext) Epoch(globalStep uint64) uint32 {
	if b.StepsPerEpoch == 0 {
		return 0
	}
	return uint32(globalStep / uint64(b.StepsPerEpoch))
}

// Size returns the number of valid samples in the batch at step,
// accounting for a partial final batch when N is not divisible by B.
func (b BatchContext) Size(step uint64) uint32 {
	stepInEpoch := b.StepInEpoch(step)
	if stepInEpoch == b.StepsPerEpoch-1 {
		remaining := b.datasetSize - stepInEpoch*b.BatchSize
		if remaining < b.BatchSize {
			return remaining
		}
	}
	return b.BatchSize
}

// Indices fills indicesOut (length BatchSize) with the permuted sample
// indices for the batch at step, wrapping the final partial batch.
func (b BatchContext) Indices(step uint64, indicesOut []uint32, f *fixedpoint.Fault) {
	n := b.datasetSize
	stepInEpoch := b.StepInEpoch(step)
	baseIndex := uint64(stepInEpoch) * uint64(b.BatchSize)

	for j := uint32(0); j < b.BatchSize; j++ {
		linearIdx := baseIndex + uint64(j)
		if linearIdx >= uint64(n) {
			indicesOut[j] = b.Perm.Apply(uint32(linearIdx%uint64(n)), f)
		} else {
			indicesOut[j] = b.Perm.Apply(uint32(linearIdx), f)
		}
	}
}
