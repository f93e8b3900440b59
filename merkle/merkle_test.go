package merkle_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/certrain/fixedpoint"
	"github.com/sarchlab/certrain/merkle"
	"github.com/sarchlab/certrain/tensor"
)

func TestMerkle(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Merkle Suite")
}

func weights(vals ...fixedpoint.Q16) tensor.Tensor {
	return tensor.New1D(vals, uint32(len(vals)))
}

var _ = Describe("Init", func() {
	It("is deterministic for identical (weights, config, seed)", func() {
		var f1, f2 fixedpoint.Fault
		c1 := merkle.Init(weights(1, 2, 3), []byte("cfg"), 42, &f1)
		c2 := merkle.Init(weights(1, 2, 3), []byte("cfg"), 42, &f2)
		Expect(c1.CurrentHash).To(Equal(c2.CurrentHash))
		Expect(c1.InitialHash).To(Equal(c1.CurrentHash))
		Expect(c1.Initialized).To(BeTrue())
		Expect(c1.Faulted).To(BeFalse())
	})

	It("differs when the seed differs", func() {
		var f fixedpoint.Fault
		c1 := merkle.Init(weights(1, 2, 3), []byte("cfg"), 1, &f)
		c2 := merkle.Init(weights(1, 2, 3), []byte("cfg"), 2, &f)
		Expect(c1.CurrentHash).NotTo(Equal(c2.CurrentHash))
	})

	It("differs when config is empty versus present", func() {
		var f fixedpoint.Fault
		c1 := merkle.Init(weights(1, 2, 3), nil, 42, &f)
		c2 := merkle.Init(weights(1, 2, 3), []byte("cfg"), 42, &f)
		Expect(c1.CurrentHash).NotTo(Equal(c2.CurrentHash))
	})
})

var _ = Describe("Advance", func() {
	It("advances the step counter and chains the hash", func() {
		var f fixedpoint.Fault
		c := merkle.Init(weights(1, 2, 3), []byte("cfg"), 42, &f)
		prevHash := c.CurrentHash

		step, ok := c.Advance(weights(4, 5, 6), []uint32{0, 1, 2}, &f)
		Expect(ok).To(BeTrue())
		Expect(step.PrevHash).To(Equal(prevHash))
		Expect(step.StepNumber).To(Equal(uint64(0)))
		Expect(c.Step).To(Equal(uint64(1)))
		Expect(c.CurrentHash).To(Equal(step.StepHash))
		Expect(c.CurrentHash).NotTo(Equal(prevHash))
	})

	It("faults the chain and stops advancing when faults are present", func() {
		var f fixedpoint.Fault
		c := merkle.Init(weights(1, 2, 3), []byte("cfg"), 42, &f)
		f.Overflow = true

		_, ok := c.Advance(weights(4, 5, 6), []uint32{0}, &f)
		Expect(ok).To(BeFalse())
		Expect(c.Faulted).To(BeTrue())
		Expect(c.IsValid()).To(BeFalse())

		var f2 fixedpoint.Fault
		_, ok2 := c.Advance(weights(7, 8, 9), []uint32{0}, &f2)
		Expect(ok2).To(BeFalse())
	})

	It("is a no-op on an uninitialized chain", func() {
		var f fixedpoint.Fault
		var c merkle.Chain
		_, ok := c.Advance(weights(1), []uint32{0}, &f)
		Expect(ok).To(BeFalse())
	})
})

var _ = Describe("VerifyStep", func() {
	It("accepts a genuine step and rejects a tampered one", func() {
		var f fixedpoint.Fault
		c := merkle.Init(weights(1, 2, 3), []byte("cfg"), 42, &f)
		prevHash := c.CurrentHash
		step, _ := c.Advance(weights(4, 5, 6), []uint32{0, 1}, &f)

		Expect(merkle.VerifyStep(step, prevHash, weights(4, 5, 6), []uint32{0, 1}, &f)).To(BeTrue())
		Expect(merkle.VerifyStep(step, prevHash, weights(4, 5, 7), []uint32{0, 1}, &f)).To(BeFalse())
		Expect(merkle.VerifyStep(step, prevHash, weights(4, 5, 6), []uint32{1, 0}, &f)).To(BeFalse())
	})
})

var _ = Describe("Invalidate", func() {
	It("marks the chain permanently faulted", func() {
		var f fixedpoint.Fault
		c := merkle.Init(weights(1), []byte("cfg"), 1, &f)
		c.Invalidate()
		Expect(c.IsValid()).To(BeFalse())
	})
})
