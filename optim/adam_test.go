package optim_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/certrain/fixedpoint"
	"github.com/sarchlab/certrain/optim"
)

var _ = Describe("Adam", func() {
	It("decreases a parameter given a positive gradient", func() {
		var f fixedpoint.Fault
		m := make([]fixedpoint.Q16, 1)
		v := make([]fixedpoint.Q16, 1)
		a := optim.NewAdam(m, v, 1)
		params := []fixedpoint.Q16{fixedpoint.OneQ16}
		grads := []fixedpoint.Q8{fixedpoint.Q8(fixedpoint.OneQ24)}

		a.Step(params, grads, &f)

		Expect(int64(params[0])).To(BeNumerically("<", int64(fixedpoint.OneQ16)))
		Expect(f.HasFault()).To(BeFalse())
		Expect(a.StepCount).To(Equal(uint64(1)))
	})

	It("sets Domain on a length mismatch between moment buffers and params", func() {
		var f fixedpoint.Fault
		m := make([]fixedpoint.Q16, 2)
		v := make([]fixedpoint.Q16, 2)
		a := optim.NewAdam(m, v, 2)
		a.Step([]fixedpoint.Q16{1}, []fixedpoint.Q8{1}, &f)
		Expect(f.Domain).To(BeTrue())
	})

	It("Reset restores beta powers to one and clears moments", func() {
		var f fixedpoint.Fault
		m := make([]fixedpoint.Q16, 1)
		v := make([]fixedpoint.Q16, 1)
		a := optim.NewAdam(m, v, 1)
		a.Step([]fixedpoint.Q16{1}, []fixedpoint.Q8{1 << 24}, &f)
		a.Reset()

		Expect(a.M[0]).To(Equal(fixedpoint.Q16(0)))
		Expect(a.V[0]).To(Equal(fixedpoint.Q16(0)))
		Expect(a.Beta1Power).To(Equal(fixedpoint.OneQ16))
		Expect(a.Beta2Power).To(Equal(fixedpoint.OneQ16))
		Expect(a.StepCount).To(Equal(uint64(0)))
	})
})
