// Package merkle implements the auditable training chain: a running
// SHA-256 hash over every training step's weights and batch, plus
// checkpoint create/verify/restore for resuming a chain without losing
// its audit trail. Grounded on original_source/src/audit/merkle.c and
// original_source/include/merkle.h.
package merkle

import (
	"github.com/sarchlab/certrain/fixedpoint"
	"github.com/sarchlab/certrain/sha256"
	"github.com/sarchlab/certrain/tensor"
)

// CheckpointVersion is the wire format version written by Checkpoint
// serialization.
const CheckpointVersion = 2

// Step is a single recorded link in the chain: h_t = SHA256(h_{t-1} ||
// H(weights_t) || H(batch_t) || t).
type Step struct {
	PrevHash    [sha256.Size]byte
	WeightsHash [sha256.Size]byte
	BatchHash   [sha256.Size]byte
	StepNumber  uint64
	StepHash    [sha256.Size]byte
}

// Chain is the Merkle training chain state machine. It has three
// effective states: uninitialized (the zero value), running
// (Initialized && !Faulted), and faulted (Initialized && Faulted) — once
// faulted a chain never recovers except via Restore from a checkpoint
// taken before the fault.
type Chain struct {
	CurrentHash [sha256.Size]byte
	InitialHash [sha256.Size]byte
	Step        uint64
	Epoch       uint32
	Initialized bool
	Faulted     bool
}

func writeU32LE(buf []byte, v uint32) {
	buf[0] = byte(v)
	buf[1] = byte(v >> 8)
	buf[2] = byte(v >> 16)
	buf[3] = byte(v >> 24)
}

func writeU64LE(buf []byte, v uint64) {
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * uint(i)))
	}
}

func batchHash(indices []uint32) [sha256.Size]byte {
	h := sha256.New()
	var b [4]byte
	for _, idx := range indices {
		writeU32LE(b[:], idx)
		h.Write(b[:])
	}
	var out [sha256.Size]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Init computes the genesis hash h_0 = SHA256(H(initialWeights) ||
// H(config) || seed) and returns a running chain at step 0. configData
// may be nil, in which case a zero hash is mixed in for it.
func Init(initialWeights tensor.Tensor, configData []byte, seed uint64, f *fixedpoint.Fault) Chain {
	weightsHash := tensor.Hash(initialWeights, f)

	h := sha256.New()
	h.Write(weightsHash[:])

	if len(configData) > 0 {
		cfgHash := sha256.Sum256(configData)
		h.Write(cfgHash[:])
	} else {
		var zero [sha256.Size]byte
		h.Write(zero[:])
	}

	var seedBytes [8]byte
	writeU64LE(seedBytes[:], seed)
	h.Write(seedBytes[:])

	var genesis [sha256.Size]byte
	copy(genesis[:], h.Sum(nil))

	return Chain{
		CurrentHash: genesis,
		InitialHash: genesis,
		Initialized: true,
	}
}

// Advance computes h_t and advances the chain, returning the recorded
// Step. If faults carries any fault, the chain is marked Faulted and no
// hash is advanced. Advance is a no-op (returning the zero Step) on an
// uninitialized or already-faulted chain.
func (c *Chain) Advance(weights tensor.Tensor, batchIndices []uint32, faults *fixedpoint.Fault) (Step, bool) {
	if !c.Initialized || c.Faulted {
		return Step{}, false
	}
	if faults.HasFault() {
		c.Faulted = true
		return Step{}, false
	}

	weightsHash := tensor.Hash(weights, faults)
	batchH := batchHash(batchIndices)

	h := sha256.New()
	h.Write(c.CurrentHash[:])
	h.Write(weightsHash[:])
	h.Write(batchH[:])
	var stepBytes [8]byte
	writeU64LE(stepBytes[:], c.Step)
	h.Write(stepBytes[:])

	var newHash [sha256.Size]byte
	copy(newHash[:], h.Sum(nil))

	step := Step{
		PrevHash:    c.CurrentHash,
		WeightsHash: weightsHash,
		BatchHash:   batchH,
		StepNumber:  c.Step,
		StepHash:    newHash,
	}

	c.CurrentHash = newHash
	c.Step++

	return step, true
}

// IsValid reports whether the chain is initialized and not faulted.
func (c Chain) IsValid() bool {
	return c.Initialized && !c.Faulted
}

// Invalidate marks the chain as permanently faulted.
func (c *Chain) Invalidate() {
	c.Faulted = true
}

// VerifyStep recomputes step's hash from prevHash, weights and
// batchIndices and reports whether every committed hash matches: this is
// the pure function an external auditor runs to check a chain log
// without holding any chain state itself.
func VerifyStep(step Step, prevHash [sha256.Size]byte, weights tensor.Tensor, batchIndices []uint32, f *fixedpoint.Fault) bool {
	if step.PrevHash != prevHash {
		return false
	}

	weightsHash := tensor.Hash(weights, f)
	if weightsHash != step.WeightsHash {
		return false
	}

	computedBatch := batchHash(batchIndices)
	if computedBatch != step.BatchHash {
		return false
	}

	h := sha256.New()
	h.Write(step.PrevHash[:])
	h.Write(step.WeightsHash[:])
	h.Write(step.BatchHash[:])
	var stepBytes [8]byte
	writeU64LE(stepBytes[:], step.StepNumber)
	h.Write(stepBytes[:])

	var computed [sha256.Size]byte
	copy(computed[:], h.Sum(nil))

	return computed == step.StepHash
}
