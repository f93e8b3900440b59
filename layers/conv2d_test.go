package layers_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/certrain/fixedpoint"
	"github.com/sarchlab/certrain/layers"
)

var _ = Describe("Conv2D", func() {
	It("computes OutputDim per the stride/padding formula", func() {
		Expect(layers.OutputDim(4, 3, 1, 1)).To(Equal(uint32(4)))
		Expect(layers.OutputDim(5, 3, 2, 0)).To(Equal(uint32(2)))
	})

	It("runs a 1x1 identity kernel over a single channel unchanged (up to bias)", func() {
		var f fixedpoint.Fault
		cfg := layers.Conv2DConfig{
			InChannels: 1, OutChannels: 1,
			KernelH: 1, KernelW: 1,
			StrideH: 1, StrideW: 1,
			PaddingH: 0, PaddingW: 0,
		}
		weights := []fixedpoint.Q16{fixedpoint.OneQ16}
		bias := []fixedpoint.Q16{0}
		c := layers.NewConv2D(cfg, weights, bias)

		input := []fixedpoint.Q16{1, 2, 3, 4}
		output := make([]fixedpoint.Q16, 4)
		c.Forward(input, 2, 2, output, &f)

		Expect(output).To(Equal(input))
		Expect(f.HasFault()).To(BeFalse())
	})

	It("zero-pads positions outside the input for a 3x3 default config", func() {
		var f fixedpoint.Fault
		cfg := layers.DefaultConv2DConfig(1, 1)
		weights := make([]fixedpoint.Q16, layers.WeightCount(cfg))
		weights[4] = fixedpoint.OneQ16 // center tap only
		bias := []fixedpoint.Q16{0}
		c := layers.NewConv2D(cfg, weights, bias)

		input := []fixedpoint.Q16{1, 2, 3, 4}
		output := make([]fixedpoint.Q16, 4)
		c.Forward(input, 2, 2, output, &f)

		Expect(output).To(Equal(input))
		Expect(f.HasFault()).To(BeFalse())
	})
})
