package driver

import (
	"github.com/sarchlab/certrain/fixedpoint"
	"github.com/sarchlab/certrain/merkle"
	"github.com/sarchlab/certrain/sha256"
	"github.com/sarchlab/certrain/status"
	"github.com/sarchlab/certrain/tensor"
)

// ChainRecord is one logged link of a training run: the committed Step
// alongside the weights and batch indices that produced it, sufficient
// for an external auditor to recompute and compare the hash without
// having trained anything itself.
type ChainRecord struct {
	Step         merkle.Step
	Weights      tensor.Tensor
	BatchIndices []uint32
}

// VerifyResult reports the outcome of replaying a chain log.
type VerifyResult struct {
	Status        status.Status
	MismatchIndex int // -1 if the whole log verified
	StepsChecked  int
}

// VerifyStep replays a recorded sequence of merkle.Step records against
// their logged weights/batches, recomputing each step's hash from
// genesisHash forward and reporting the first record that fails to
// verify. A record fails if its own prev-hash, weights hash, batch hash
// or step hash doesn't match what merkle.VerifyStep recomputes, or if
// its PrevHash doesn't chain from the previous record's StepHash. The
// chain-threading here mirrors merkle.Chain.Advance exactly, so a
// record set produced by TrainXOR always verifies clean.
func VerifyStep(genesisHash [sha256.Size]byte, records []ChainRecord, f *fixedpoint.Fault) VerifyResult {
	prevHash := genesisHash

	for i, rec := range records {
		if rec.Step.PrevHash != prevHash {
			return VerifyResult{Status: status.Hash, MismatchIndex: i, StepsChecked: i}
		}

		ok := merkle.VerifyStep(rec.Step, prevHash, rec.Weights, rec.BatchIndices, f)
		if !ok || f.HasFault() {
			return VerifyResult{Status: status.Hash, MismatchIndex: i, StepsChecked: i}
		}

		prevHash = rec.Step.StepHash
	}

	return VerifyResult{Status: status.OK, MismatchIndex: -1, StepsChecked: len(records)}
}
