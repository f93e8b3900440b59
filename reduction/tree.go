// Package reduction implements the fixed-topology binary reduction tree:
// a deterministic merge order over compensated accumulators so that any
// parallel schedule respecting child-before-parent dependencies produces
// bit-identical results, grounded on
// original_source/src/dvm/reduction.c.
package reduction

import (
	"github.com/sarchlab/certrain/compensated"
	"github.com/sarchlab/certrain/fixedpoint"
)

// LeafMarker and RootMarker are the sentinel values for "no child" and
// "no parent" respectively.
const (
	LeafMarker = ^uint32(0)
	RootMarker = ^uint32(0)
	// MaxLeaves bounds num_leaves, matching the compensated-array
	// domain guard reused here for tree size.
	MaxLeaves = 65536
)

// Node mirrors the reference layout: two children, a parent, and a
// per-node op_id reserved for stochastic-rounding reductions.
type Node struct {
	LeftChild  uint32
	RightChild uint32
	Parent     uint32
	OpID       uint64
}

// Tree is a complete binary tree over NumLeaves leaves, stored as a flat
// caller-provided Nodes array of length 2*NumLeaves-1.
type Tree struct {
	Nodes      []Node
	NumLeaves  uint32
	NumNodes   uint32
	RootIndex  uint32
	Depth      uint32
	BaseOpID   uint64
}

// NodeCount returns 2*numLeaves-1, the node array size New requires.
func NodeCount(numLeaves uint32) uint32 {
	if numLeaves == 0 || numLeaves > MaxLeaves {
		return 0
	}
	return 2*numLeaves - 1
}

func ceilLog2(n uint32) uint32 {
	if n <= 1 {
		return 0
	}
	var log uint32
	val := n - 1
	for val > 0 {
		val >>= 1
		log++
	}
	return log
}

// New builds a tree over numLeaves leaves into the caller-provided nodes
// array (length must be NodeCount(numLeaves)). It sets Domain and returns
// the zero Tree if numLeaves is 0, exceeds MaxLeaves, or nodes is too
// small.
//
// Shape (grounded on original_source/src/dvm/reduction.c): internal node
// n+i (i in [0, n-1)) has raw child indices 2i and 2i+1; a raw child index
// becomes LeafMarker iff it is >= the node's own index n+i, otherwise it
// is used as-is — it may itself be an earlier internal node, not only a
// leaf.
func New(numLeaves uint32, baseOpID uint64, nodes []Node, f *fixedpoint.Fault) Tree {
	if numLeaves == 0 || numLeaves > MaxLeaves {
		f.Domain = true
		return Tree{}
	}

	numNodes := NodeCount(numLeaves)
	if uint32(len(nodes)) < numNodes {
		f.Domain = true
		return Tree{}
	}
	nodes = nodes[:numNodes]

	numInternal := uint32(0)
	if numLeaves > 1 {
		numInternal = numLeaves - 1
	}
	rootIndex := uint32(0)
	if numLeaves > 1 {
		rootIndex = numNodes - 1
	}

	for i := uint32(0); i < numLeaves; i++ {
		nodes[i] = Node{
			LeftChild:  LeafMarker,
			RightChild: LeafMarker,
			Parent:     RootMarker,
			OpID:       baseOpID + uint64(i),
		}
	}

	for i := uint32(0); i < numInternal; i++ {
		nodeIdx := numLeaves + i
		left := 2 * i
		right := 2*i + 1
		if left >= nodeIdx {
			left = LeafMarker
		}
		if right >= nodeIdx {
			right = LeafMarker
		}

		nodes[nodeIdx] = Node{
			LeftChild:  left,
			RightChild: right,
			Parent:     RootMarker,
			OpID:       baseOpID + uint64(nodeIdx),
		}

		if left != LeafMarker && left < numNodes {
			nodes[left].Parent = nodeIdx
		}
		if right != LeafMarker && right < numNodes {
			nodes[right].Parent = nodeIdx
		}
	}

	return Tree{
		Nodes:     nodes,
		NumLeaves: numLeaves,
		NumNodes:  numNodes,
		RootIndex: rootIndex,
		Depth:     ceilLog2(numLeaves),
		BaseOpID:  baseOpID,
	}
}

// IsLeaf reports whether index names a leaf node.
func (t Tree) IsLeaf(index uint32) bool {
	return index < t.NumLeaves
}

// Reduce sums values (one per leaf) using the tree's fixed merge order.
// accum is a caller-provided workspace of at least t.NumNodes
// accumulators; if it is too small, Reduce sets Domain and falls back to
// a plain sequential compensated sum over values (matching the reference
// implementation's stack-overflow fallback).
func (t Tree) Reduce(values []int64, accum []compensated.Accumulator, f *fixedpoint.Fault) int64 {
	if uint32(len(accum)) < t.NumNodes {
		f.Domain = true
		return compensated.SumInt64(values, f)
	}

	for i := range accum[:t.NumNodes] {
		accum[i] = compensated.Accumulator{}
	}

	for i := uint32(0); i < t.NumLeaves; i++ {
		accum[i] = compensated.Add(compensated.Accumulator{}, values[i], f)
	}

	for i := t.NumLeaves; i < t.NumNodes; i++ {
		node := t.Nodes[i]
		if node.LeftChild != LeafMarker && node.LeftChild < t.NumNodes {
			accum[i] = compensated.Merge(accum[i], accum[node.LeftChild], f)
		}
		if node.RightChild != LeafMarker && node.RightChild < t.NumNodes {
			accum[i] = compensated.Merge(accum[i], accum[node.RightChild], f)
		}
	}

	return compensated.Finalize(accum[t.RootIndex], f)
}

// ReduceInt32 is Reduce for 32-bit inputs, widening each into the int64
// accumulator domain before the same fixed merge order.
func (t Tree) ReduceInt32(values []int32, accum []compensated.Accumulator, f *fixedpoint.Fault) int64 {
	widened := make([]int64, len(values))
	for i, v := range values {
		widened[i] = int64(v)
	}
	return t.Reduce(widened, accum, f)
}
