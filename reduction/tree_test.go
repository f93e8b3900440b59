package reduction_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/certrain/compensated"
	"github.com/sarchlab/certrain/fixedpoint"
	"github.com/sarchlab/certrain/reduction"
)

func TestReduction(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Reduction Suite")
}

var _ = Describe("New", func() {
	// Canonical shape table, grounded on original_source/src/dvm/reduction.c,
	// enumerated for n = 1..8.
	DescribeTable("builds the canonical tree shape",
		func(n uint32, wantInternal map[uint32][2]uint32) {
			var f fixedpoint.Fault
			nodes := make([]reduction.Node, reduction.NodeCount(n))
			tr := reduction.New(n, 0, nodes, &f)
			Expect(f.HasFault()).To(BeFalse())
			Expect(tr.NumLeaves).To(Equal(n))
			Expect(tr.NumNodes).To(Equal(2*n - 1))

			for idx, want := range wantInternal {
				got := tr.Nodes[idx]
				Expect(got.LeftChild).To(Equal(want[0]), "node %d left", idx)
				Expect(got.RightChild).To(Equal(want[1]), "node %d right", idx)
			}
		},
		Entry("n=1", uint32(1), map[uint32][2]uint32{}),
		Entry("n=2", uint32(2), map[uint32][2]uint32{
			2: {0, 1},
		}),
		Entry("n=3", uint32(3), map[uint32][2]uint32{
			3: {0, 1},
			4: {2, 3},
		}),
		Entry("n=4", uint32(4), map[uint32][2]uint32{
			4: {0, 1},
			5: {2, 3},
			6: {4, 5},
		}),
		Entry("n=5", uint32(5), map[uint32][2]uint32{
			5: {0, 1},
			6: {2, 3},
			7: {4, 5},
			8: {6, 7},
		}),
		Entry("n=6", uint32(6), map[uint32][2]uint32{
			6: {0, 1},
			7: {2, 3},
			8: {4, 5},
			9: {6, 7},
		}),
		Entry("n=7", uint32(7), map[uint32][2]uint32{
			7:  {0, 1},
			8:  {2, 3},
			9:  {4, 5},
			10: {6, 7},
			11: {8, 9},
			12: {10, 11},
		}),
		Entry("n=8", uint32(8), map[uint32][2]uint32{
			8:  {0, 1},
			9:  {2, 3},
			10: {4, 5},
			11: {6, 7},
			12: {8, 9},
			13: {10, 11},
			14: {12, 13},
		}),
	)

	It("sets Domain and returns the zero tree for numLeaves == 0", func() {
		var f fixedpoint.Fault
		tr := reduction.New(0, 0, nil, &f)
		Expect(f.Domain).To(BeTrue())
		Expect(tr.NumNodes).To(Equal(uint32(0)))
	})

	It("sets Domain when the node buffer is too small", func() {
		var f fixedpoint.Fault
		tr := reduction.New(4, 0, make([]reduction.Node, 2), &f)
		Expect(f.Domain).To(BeTrue())
		Expect(tr.NumNodes).To(Equal(uint32(0)))
	})

	It("computes ceil(log2(n)) depth", func() {
		cases := map[uint32]uint32{1: 0, 2: 1, 3: 2, 4: 2, 5: 3, 8: 3, 9: 4}
		for n, want := range cases {
			var f fixedpoint.Fault
			nodes := make([]reduction.Node, reduction.NodeCount(n))
			tr := reduction.New(n, 0, nodes, &f)
			Expect(tr.Depth).To(Equal(want), "n=%d", n)
		}
	})
})

var _ = Describe("Reduce", func() {
	// Universal invariant 5 — tree reduction agrees with sequential
	// compensated reduction for the same values.
	It("matches compensated.SumInt64 for n leaves up to a moderate size", func() {
		for _, n := range []uint32{1, 2, 3, 7, 8, 100, 1000} {
			var f, fSeq fixedpoint.Fault
			values := make([]int64, n)
			for i := range values {
				values[i] = int64(i)*7 - 3
			}

			nodes := make([]reduction.Node, reduction.NodeCount(n))
			tr := reduction.New(n, 0, nodes, &f)
			accum := make([]compensated.Accumulator, tr.NumNodes)

			got := tr.Reduce(values, accum, &f)
			want := compensated.SumInt64(values, &fSeq)

			Expect(got).To(Equal(want), "n=%d", n)
			Expect(f.HasFault()).To(BeFalse())
		}
	})

	It("returns the single value directly when numLeaves == 1", func() {
		var f fixedpoint.Fault
		nodes := make([]reduction.Node, reduction.NodeCount(1))
		tr := reduction.New(1, 0, nodes, &f)
		accum := make([]compensated.Accumulator, tr.NumNodes)
		Expect(tr.Reduce([]int64{42}, accum, &f)).To(Equal(int64(42)))
	})

	It("falls back to a sequential sum and sets Domain when the workspace is too small", func() {
		var f fixedpoint.Fault
		nodes := make([]reduction.Node, reduction.NodeCount(4))
		tr := reduction.New(4, 0, nodes, &f)
		values := []int64{1, 2, 3, 4}
		got := tr.Reduce(values, make([]compensated.Accumulator, 1), &f)
		Expect(f.Domain).To(BeTrue())
		Expect(got).To(Equal(int64(10)))
	})

	It("widens int32 inputs before reducing", func() {
		var f fixedpoint.Fault
		nodes := make([]reduction.Node, reduction.NodeCount(3))
		tr := reduction.New(3, 0, nodes, &f)
		accum := make([]compensated.Accumulator, tr.NumNodes)
		got := tr.ReduceInt32([]int32{10, 20, 30}, accum, &f)
		Expect(got).To(Equal(int64(60)))
	})
})
