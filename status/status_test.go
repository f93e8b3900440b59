package status_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/certrain/status"
)

func TestStatus(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Status Suite")
}

var _ = Describe("Status", func() {
	It("renders each code's wire name", func() {
		Expect(status.OK.String()).To(Equal("ok"))
		Expect(status.Null.String()).To(Equal("null"))
		Expect(status.Dimension.String()).To(Equal("dimension"))
		Expect(status.Overflow.String()).To(Equal("overflow"))
		Expect(status.Underflow.String()).To(Equal("underflow"))
		Expect(status.DivZero.String()).To(Equal("div_zero"))
		Expect(status.Domain.String()).To(Equal("domain"))
		Expect(status.Config.String()).To(Equal("config"))
		Expect(status.State.String()).To(Equal("state"))
		Expect(status.Memory.String()).To(Equal("memory"))
		Expect(status.Hash.String()).To(Equal("hash"))
		Expect(status.Fault.String()).To(Equal("fault"))
	})

	It("reports OK only for the zero value", func() {
		Expect(status.OK.OK()).To(BeTrue())
		Expect(status.Hash.OK()).To(BeFalse())
	})

	It("renders unknown codes safely", func() {
		Expect(status.Status(999).String()).To(Equal("unknown"))
	})
})

var _ = Describe("FromFault", func() {
	It("prioritizes overflow, underflow, div_zero, domain in order", func() {
		Expect(status.FromFault(true, true, true, true)).To(Equal(status.Overflow))
		Expect(status.FromFault(false, true, true, true)).To(Equal(status.Underflow))
		Expect(status.FromFault(false, false, true, true)).To(Equal(status.DivZero))
		Expect(status.FromFault(false, false, false, true)).To(Equal(status.Domain))
		Expect(status.FromFault(false, false, false, false)).To(Equal(status.OK))
	})
})
