package layers_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/certrain/fixedpoint"
	"github.com/sarchlab/certrain/layers"
)

var _ = Describe("LayerNorm.Forward", func() {
	It("produces a zero-mean output for an identity gamma/beta", func() {
		var f fixedpoint.Fault
		n := uint32(4)
		gamma := []fixedpoint.Q16{fixedpoint.OneQ16, fixedpoint.OneQ16, fixedpoint.OneQ16, fixedpoint.OneQ16}
		beta := make([]fixedpoint.Q16, n)
		ln := layers.NewLayerNorm(gamma, beta, n)

		input := []fixedpoint.Q16{1 << 16, 2 << 16, 3 << 16, 4 << 16}
		output := make([]fixedpoint.Q16, n)
		ln.Forward(input, output, &f)

		var sum int64
		for _, v := range output {
			sum += int64(v)
		}
		Expect(sum).To(BeNumerically("~", 0, 200))
		Expect(f.HasFault()).To(BeFalse())
	})

	It("leaves a constant input at zero after normalization (variance floor via epsilon)", func() {
		var f fixedpoint.Fault
		n := uint32(3)
		gamma := []fixedpoint.Q16{fixedpoint.OneQ16, fixedpoint.OneQ16, fixedpoint.OneQ16}
		beta := make([]fixedpoint.Q16, n)
		ln := layers.NewLayerNorm(gamma, beta, n)

		input := []fixedpoint.Q16{5 << 16, 5 << 16, 5 << 16}
		output := make([]fixedpoint.Q16, n)
		ln.Forward(input, output, &f)

		for _, v := range output {
			Expect(int64(v)).To(BeNumerically("~", 0, 200))
		}
	})
})
