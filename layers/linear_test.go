package layers_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/certrain/fixedpoint"
	"github.com/sarchlab/certrain/layers"
	"github.com/sarchlab/certrain/tensor"
)

var _ = Describe("Linear.Forward", func() {
	It("computes Wx + b for a 2x3 layer", func() {
		var f fixedpoint.Fault
		one := fixedpoint.OneQ16
		weights := []fixedpoint.Q16{one, 0, 0, 0, one, 0} // 2x3 identity-ish
		bias := []fixedpoint.Q16{0, one}
		l := layers.NewLinear(weights, bias, 3, 2)

		input := tensor.New1D([]fixedpoint.Q16{5, 7, 9}, 3)
		output := tensor.New1D(make([]fixedpoint.Q16, 2), 2)
		l.Forward(input, output, &f)

		Expect(output.Data[0]).To(Equal(fixedpoint.Q16(5)))
		Expect(output.Data[1]).To(Equal(fixedpoint.Q16(7) + one))
		Expect(f.HasFault()).To(BeFalse())
	})

	It("sets Domain on a size mismatch", func() {
		var f fixedpoint.Fault
		l := layers.NewLinear(make([]fixedpoint.Q16, 6), make([]fixedpoint.Q16, 2), 3, 2)
		input := tensor.New1D(make([]fixedpoint.Q16, 2), 2)
		output := tensor.New1D(make([]fixedpoint.Q16, 2), 2)
		l.Forward(input, output, &f)
		Expect(f.Domain).To(BeTrue())
	})
})

var _ = Describe("Linear.Backward", func() {
	It("computes gradBias equal to gradOutput", func() {
		var f fixedpoint.Fault
		l := layers.NewLinear([]fixedpoint.Q16{fixedpoint.OneQ16, 0}, []fixedpoint.Q16{0}, 2, 1)
		input := tensor.New1D([]fixedpoint.Q16{3, 4}, 2)
		gradOutput := tensor.GradNew1D([]fixedpoint.Q8{fixedpoint.Q8(1) << 24}, 1)
		gradInput := tensor.GradNew1D(make([]fixedpoint.Q8, 2), 2)
		gradWeights := tensor.GradNew1D(make([]fixedpoint.Q8, 2), 2)
		gradBias := tensor.GradNew1D(make([]fixedpoint.Q8, 1), 1)

		l.Backward(input, gradOutput, gradInput, gradWeights, gradBias, &f)
		Expect(gradBias.Data[0]).To(Equal(gradOutput.Data[0]))
		Expect(f.HasFault()).To(BeFalse())
	})
})
