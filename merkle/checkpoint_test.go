package merkle_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/certrain/fixedpoint"
	"github.com/sarchlab/certrain/merkle"
	"github.com/sarchlab/certrain/prng"
	"github.com/sarchlab/certrain/status"
)

func TestCheckpoint(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Checkpoint Suite")
}

var _ = Describe("Create, Verify and Restore", func() {
	It("round-trips through the wire format byte-for-byte", func() {
		var f fixedpoint.Fault
		c := merkle.Init(weights(1, 2, 3), []byte("cfg"), 7, &f)
		c.Advance(weights(4, 5, 6), []uint32{0, 1}, &f)

		state := prng.Init(7, 0)
		state.Next()

		cfgHash := [32]byte{1, 2, 3}
		cp := merkle.Create(c, state, 2, weights(4, 5, 6), cfgHash, 1700000000, &f)
		Expect(f.HasFault()).To(BeFalse())

		wire := cp.Bytes()
		Expect(wire).To(HaveLen(merkle.WireSize))

		parsed, st := merkle.ParseCheckpoint(wire)
		Expect(st.OK()).To(BeTrue())
		Expect(parsed.Step).To(Equal(cp.Step))
		Expect(parsed.Epoch).To(Equal(cp.Epoch))
		Expect(parsed.MerkleHash).To(Equal(cp.MerkleHash))
		Expect(parsed.WeightsHash).To(Equal(cp.WeightsHash))
		Expect(parsed.ConfigHash).To(Equal(cp.ConfigHash))
		Expect(parsed.PRNGState).To(Equal(cp.PRNGState))
		Expect(parsed.Timestamp).To(Equal(cp.Timestamp))
		Expect(parsed.Version).To(Equal(uint32(merkle.CheckpointVersion)))
	})

	It("verifies weights hash match and rejects mismatches", func() {
		var f fixedpoint.Fault
		c := merkle.Init(weights(1, 2, 3), []byte("cfg"), 7, &f)
		state := prng.Init(7, 0)
		cp := merkle.Create(c, state, 0, weights(1, 2, 3), [32]byte{}, 0, &f)

		Expect(merkle.Verify(cp, weights(1, 2, 3), &f)).To(BeTrue())
		Expect(merkle.Verify(cp, weights(1, 2, 4), &f)).To(BeFalse())
	})

	It("restores a chain whose step and hash match the checkpoint", func() {
		var f fixedpoint.Fault
		c := merkle.Init(weights(1, 2, 3), []byte("cfg"), 7, &f)
		c.Advance(weights(4, 5, 6), []uint32{0}, &f)
		state := prng.Init(7, 0)
		cp := merkle.Create(c, state, 1, weights(4, 5, 6), [32]byte{}, 0, &f)

		restored := merkle.Restore(cp)
		Expect(restored.Step).To(Equal(c.Step))
		Expect(restored.Epoch).To(Equal(uint32(1)))
		Expect(restored.CurrentHash).To(Equal(c.CurrentHash))
		Expect(restored.Initialized).To(BeTrue())
		Expect(restored.Faulted).To(BeFalse())
	})

	It("restores a faulted chain as faulted via ChainFaultedAtCheckpoint", func() {
		var f fixedpoint.Fault
		c := merkle.Init(weights(1), []byte("cfg"), 7, &f)
		c.Invalidate()
		state := prng.Init(7, 0)
		cp := merkle.Create(c, state, 0, weights(1), [32]byte{}, 0, &f)

		Expect(cp.ChainFaultedAtCheckpoint).To(BeTrue())
		restored := merkle.Restore(cp)
		Expect(restored.Faulted).To(BeTrue())
	})
})

var _ = Describe("CommitHash", func() {
	It("is unaffected by the excluded timestamp field", func() {
		var f fixedpoint.Fault
		c := merkle.Init(weights(1, 2, 3), []byte("cfg"), 7, &f)
		state := prng.Init(7, 0)

		a := merkle.Create(c, state, 0, weights(1, 2, 3), [32]byte{}, 100, &f)
		b := merkle.Create(c, state, 0, weights(1, 2, 3), [32]byte{}, 999999, &f)

		Expect(a.CommitHash()).To(Equal(b.CommitHash()))
	})

	It("changes when any non-timestamp field changes", func() {
		var f fixedpoint.Fault
		c := merkle.Init(weights(1, 2, 3), []byte("cfg"), 7, &f)
		state := prng.Init(7, 0)

		a := merkle.Create(c, state, 0, weights(1, 2, 3), [32]byte{}, 100, &f)
		b := merkle.Create(c, state, 1, weights(1, 2, 3), [32]byte{}, 100, &f)

		Expect(a.CommitHash()).NotTo(Equal(b.CommitHash()))
	})
})

var _ = Describe("ParseCheckpoint wire contract", func() {
	It("rejects a buffer with the wrong magic", func() {
		var f fixedpoint.Fault
		c := merkle.Init(weights(1, 2, 3), []byte("cfg"), 7, &f)
		state := prng.Init(7, 0)
		cp := merkle.Create(c, state, 0, weights(1, 2, 3), [32]byte{}, 0, &f)

		wire := cp.Bytes()
		wire[0] ^= 0xFF

		_, st := merkle.ParseCheckpoint(wire)
		Expect(st).To(Equal(status.Hash))
	})

	It("rejects a version above the supported one", func() {
		var f fixedpoint.Fault
		c := merkle.Init(weights(1, 2, 3), []byte("cfg"), 7, &f)
		state := prng.Init(7, 0)
		cp := merkle.Create(c, state, 0, weights(1, 2, 3), [32]byte{}, 0, &f)
		cp.Version = merkle.MaxSupportedVersion + 1

		wire := cp.Bytes()
		_, st := merkle.ParseCheckpoint(wire)
		Expect(st).To(Equal(status.Config))
	})
})
