package driver_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/certrain/driver"
	"github.com/sarchlab/certrain/fixedpoint"
	"github.com/sarchlab/certrain/merkle"
	"github.com/sarchlab/certrain/status"
	"github.com/sarchlab/certrain/tensor"
)

func buildChainRecords(n int) ([32]byte, []driver.ChainRecord, fixedpoint.Fault) {
	var f fixedpoint.Fault
	weights := make([]fixedpoint.Q16, 4)
	for i := range weights {
		weights[i] = fixedpoint.Q16(i + 1)
	}
	wt := tensor.New1D(weights, 4)

	chain := merkle.Init(wt, []byte("cfg"), 1, &f)
	genesis := chain.CurrentHash

	records := make([]driver.ChainRecord, 0, n)
	batch := []uint32{0, 1}
	for i := 0; i < n; i++ {
		weights[0] = fixedpoint.Q16(i + 100)
		snapshot := append([]fixedpoint.Q16(nil), weights...)
		snapshotTensor := tensor.New1D(snapshot, 4)

		step, ok := chain.Advance(snapshotTensor, batch, &f)
		Expect(ok).To(BeTrue())

		records = append(records, driver.ChainRecord{
			Step:         step,
			Weights:      snapshotTensor,
			BatchIndices: batch,
		})
	}

	return genesis, records, f
}

var _ = Describe("VerifyStep", func() {
	It("reports OK and no mismatch for a clean chain log", func() {
		genesis, records, f := buildChainRecords(5)
		Expect(f.HasFault()).To(BeFalse())

		result := driver.VerifyStep(genesis, records, &f)

		Expect(result.Status).To(Equal(status.OK))
		Expect(result.MismatchIndex).To(Equal(-1))
		Expect(result.StepsChecked).To(Equal(5))
	})

	It("reports the index of the first tampered record", func() {
		genesis, records, f := buildChainRecords(5)
		Expect(f.HasFault()).To(BeFalse())

		records[2].Weights.Data[0]++

		result := driver.VerifyStep(genesis, records, &f)

		Expect(result.Status).To(Equal(status.Hash))
		Expect(result.MismatchIndex).To(Equal(2))
		Expect(result.StepsChecked).To(Equal(2))
	})

	It("reports a mismatch when the genesis hash doesn't match the first record", func() {
		_, records, f := buildChainRecords(3)
		Expect(f.HasFault()).To(BeFalse())

		var wrongGenesis [32]byte
		wrongGenesis[0] = 0xFF

		result := driver.VerifyStep(wrongGenesis, records, &f)

		Expect(result.Status).To(Equal(status.Hash))
		Expect(result.MismatchIndex).To(Equal(0))
	})

	It("verifies an empty log trivially", func() {
		var f fixedpoint.Fault
		result := driver.VerifyStep([32]byte{}, nil, &f)
		Expect(result.Status).To(Equal(status.OK))
		Expect(result.MismatchIndex).To(Equal(-1))
		Expect(result.StepsChecked).To(Equal(0))
	})
})
