package merkle

import (
	"github.com/sarchlab/certrain/fixedpoint"
	"github.com/sarchlab/certrain/prng"
	"github.com/sarchlab/certrain/sha256"
	"github.com/sarchlab/certrain/status"
	"github.com/sarchlab/certrain/tensor"
)

// WireSize is the fixed on-disk checkpoint record length: 152 bytes.
const WireSize = 152

// Magic is the four-byte ASCII tag "CTCK" identifying a checkpoint
// record, written little-endian as a u32 at offset 0.
const Magic uint32 = 0x4B435443

// MaxSupportedVersion is the highest wire version this library can read.
const MaxSupportedVersion = CheckpointVersion

// Checkpoint is a point-in-time snapshot sufficient to resume a chain
// without losing its audit trail.
type Checkpoint struct {
	Step        uint64
	Epoch       uint32
	MerkleHash  [sha256.Size]byte
	WeightsHash [sha256.Size]byte
	ConfigHash  [sha256.Size]byte
	PRNGState   prng.State
	Timestamp   uint64 // excluded from the commitment hash
	Version     uint32
	Faults      fixedpoint.Fault

	// ChainFaultedAtCheckpoint is in-memory only: it is never serialized,
	// and exists so a checkpoint taken from a faulted chain can still be
	// inspected without overloading the wire-format fault bits (which
	// mirror the Faults record taken at checkpoint time, not the chain's
	// faulted flag).
	ChainFaultedAtCheckpoint bool
}

// Create snapshots ctx's current state. configHash is the pre-computed
// hash of the training configuration, carried through so a checkpoint
// can later be matched against the run that produced it.
func Create(ctx Chain, state prng.State, epoch uint32, weights tensor.Tensor, configHash [sha256.Size]byte, timestamp uint64, f *fixedpoint.Fault) Checkpoint {
	weightsHash := tensor.Hash(weights, f)

	return Checkpoint{
		Step:                     ctx.Step,
		Epoch:                    epoch,
		MerkleHash:               ctx.CurrentHash,
		WeightsHash:              weightsHash,
		ConfigHash:               configHash,
		PRNGState:                state,
		Timestamp:                timestamp,
		Version:                  CheckpointVersion,
		Faults:                   *f,
		ChainFaultedAtCheckpoint: ctx.Faulted,
	}
}

// Verify checks that weights hashes to the checkpoint's recorded
// WeightsHash.
func Verify(c Checkpoint, weights tensor.Tensor, f *fixedpoint.Fault) bool {
	return tensor.Hash(weights, f) == c.WeightsHash
}

// VerifyStatus is Verify translated into the boundary status code a
// driver reports to its caller: status.OK on match, status.Hash on
// mismatch.
func VerifyStatus(c Checkpoint, weights tensor.Tensor, f *fixedpoint.Fault) status.Status {
	if Verify(c, weights, f) {
		return status.OK
	}
	return status.Hash
}

// Restore rebuilds a Chain from a checkpoint, re-marking it Faulted if
// either the checkpoint's recorded fault state or its
// ChainFaultedAtCheckpoint flag indicates the source chain was faulted.
func Restore(c Checkpoint) Chain {
	return Chain{
		CurrentHash: c.MerkleHash,
		Step:        c.Step,
		Epoch:       c.Epoch,
		Initialized: true,
		Faulted:     c.Faults.HasFault() || c.ChainFaultedAtCheckpoint,
	}
}

func packFaults(f fixedpoint.Fault) uint32 {
	var v uint32
	if f.Overflow {
		v |= 1 << 0
	}
	if f.Underflow {
		v |= 1 << 1
	}
	if f.DivZero {
		v |= 1 << 2
	}
	if f.Domain {
		v |= 1 << 3
	}
	if f.GradFloor {
		v |= 1 << 4
	}
	return v
}

func unpackFaults(v uint32) fixedpoint.Fault {
	return fixedpoint.Fault{
		Overflow:  v&(1<<0) != 0,
		Underflow: v&(1<<1) != 0,
		DivZero:   v&(1<<2) != 0,
		Domain:    v&(1<<3) != 0,
		GradFloor: v&(1<<4) != 0,
	}
}

// Bytes encodes the checkpoint into its fixed WireSize-byte on-disk
// layout:
//
//	[0:4]     magic          (u32 LE, "CTCK" = 0x4B435443)
//	[4:8]     version        (u32 LE)
//	[8:16]    step           (u64 LE)
//	[16:20]   epoch          (u32 LE)
//	[20:52]   merkle_hash    (32 bytes)
//	[52:84]   weights_hash   (32 bytes)
//	[84:116]  config_hash    (32 bytes)
//	[116:124] prng.seed      (u64 LE)
//	[124:132] prng.op_id     (u64 LE)
//	[132:140] prng.step      (u64 LE)
//	[140:144] fault_flags    (u32 LE, packed bits)
//	[144:152] timestamp      (u64 LE, excluded from CommitHash)
func (c Checkpoint) Bytes() [WireSize]byte {
	var buf [WireSize]byte
	writeU32LE(buf[0:4], Magic)
	writeU32LE(buf[4:8], c.Version)
	writeU64LE(buf[8:16], c.Step)
	writeU32LE(buf[16:20], c.Epoch)
	copy(buf[20:52], c.MerkleHash[:])
	copy(buf[52:84], c.WeightsHash[:])
	copy(buf[84:116], c.ConfigHash[:])
	writeU64LE(buf[116:124], c.PRNGState.Seed)
	writeU64LE(buf[124:132], c.PRNGState.OpID)
	writeU64LE(buf[132:140], c.PRNGState.Step)
	writeU32LE(buf[140:144], packFaults(c.Faults))
	writeU64LE(buf[144:152], c.Timestamp)
	return buf
}

func readU32LE(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func readU64LE(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * uint(i))
	}
	return v
}

// ParseCheckpoint decodes a WireSize-byte buffer written by Bytes. A
// magic mismatch is reported as status.Hash (the record is not a
// checkpoint at all); a version above MaxSupportedVersion is reported as
// status.Config. ChainFaultedAtCheckpoint is not part of the wire format
// and is always false on a parsed checkpoint.
func ParseCheckpoint(buf [WireSize]byte) (Checkpoint, status.Status) {
	if readU32LE(buf[0:4]) != Magic {
		return Checkpoint{}, status.Hash
	}

	var c Checkpoint
	c.Version = readU32LE(buf[4:8])
	if c.Version > MaxSupportedVersion {
		return Checkpoint{}, status.Config
	}

	c.Step = readU64LE(buf[8:16])
	c.Epoch = readU32LE(buf[16:20])
	copy(c.MerkleHash[:], buf[20:52])
	copy(c.WeightsHash[:], buf[52:84])
	copy(c.ConfigHash[:], buf[84:116])
	c.PRNGState = prng.State{
		Seed: readU64LE(buf[116:124]),
		OpID: readU64LE(buf[124:132]),
		Step: readU64LE(buf[132:140]),
	}
	c.Faults = unpackFaults(readU32LE(buf[140:144]))
	c.Timestamp = readU64LE(buf[144:152])
	return c, status.OK
}

// CommitHash hashes the checkpoint's wire bytes with the timestamp field
// zeroed, so that two checkpoints differing only in wall-clock time they
// were written hash identically. It is the integrity check a checkpoint
// inspection tool uses to detect a corrupted or hand-edited record.
func (c Checkpoint) CommitHash() [sha256.Size]byte {
	buf := c.Bytes()
	for i := 144; i < 152; i++ {
		buf[i] = 0
	}
	return sha256.Sum256(buf[:])
}
