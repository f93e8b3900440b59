// Package tensor implements the canonical tensor descriptor and its
// byte-stream encoding for hashing and serialization, grounded on
// original_source/include/forward.h and
// original_source/src/audit/merkle.c.
package tensor

import (
	"github.com/sarchlab/certrain/fixedpoint"
	"github.com/sarchlab/certrain/sha256"
)

// MaxDims bounds the number of dimensions a Tensor may carry.
const MaxDims = 4

// Data type tags for canonical serialization headers.
const (
	DTypeQ16_16 = 0
	DTypeQ8_24  = 1
	DTypeQ32_32 = 2 // checkpoint-inspection tooling only; see SerializeQ32.
)

// SerializeVersion is the canonical serialization format version.
const SerializeVersion = 1

// Tensor describes a multi-dimensional array of Q16.16 elements, backed
// by a caller-provided Data slice (no allocation happens on the
// numerical path once a Tensor exists).
type Tensor struct {
	Data      []fixedpoint.Q16
	Dims      [MaxDims]uint32
	Strides   [MaxDims]uint32
	NDims     uint32
	TotalSize uint32
}

// New1D describes a dense vector of size elements.
func New1D(data []fixedpoint.Q16, size uint32) Tensor {
	return Tensor{
		Data:      data,
		Dims:      [MaxDims]uint32{size, 1, 1, 1},
		Strides:   [MaxDims]uint32{1, size, size, size},
		NDims:     1,
		TotalSize: size,
	}
}

// New2D describes a dense row-major [rows, cols] matrix.
func New2D(data []fixedpoint.Q16, rows, cols uint32) Tensor {
	return Tensor{
		Data:      data,
		Dims:      [MaxDims]uint32{rows, cols, 1, 1},
		Strides:   [MaxDims]uint32{cols, 1, rows * cols, rows * cols},
		NDims:     2,
		TotalSize: rows * cols,
	}
}

// IsContiguous reports whether Strides matches the natural row-major
// layout implied by Dims[:NDims].
func (t Tensor) IsContiguous() bool {
	if t.NDims == 0 {
		return true
	}
	expected := uint32(1)
	for i := int(t.NDims) - 1; i >= 0; i-- {
		if t.Strides[i] != expected {
			return false
		}
		expected *= t.Dims[i]
	}
	return true
}

// headerSize is the canonical serialized header length: version(4) +
// dtype(4) + ndims(4) + dims(4*MaxDims) + total_size(8).
const headerSize = 4 + 4 + 4 + 4*MaxDims + 8

// SerialSize returns the total canonical byte-stream length for t.
func (t Tensor) SerialSize() int {
	return headerSize + int(t.TotalSize)*4
}

func writeU32LE(buf []byte, v uint32) {
	buf[0] = byte(v)
	buf[1] = byte(v >> 8)
	buf[2] = byte(v >> 16)
	buf[3] = byte(v >> 24)
}

func writeU64LE(buf []byte, v uint64) {
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * uint(i)))
	}
}

func (t Tensor) header() []byte {
	buf := make([]byte, headerSize)
	p := buf
	writeU32LE(p, SerializeVersion)
	writeU32LE(p[4:], DTypeQ16_16)
	writeU32LE(p[8:], t.NDims)
	for i := 0; i < MaxDims; i++ {
		writeU32LE(p[12+4*i:], t.Dims[i])
	}
	writeU64LE(p[12+4*MaxDims:], uint64(t.TotalSize))
	return buf
}

// Serialize writes the canonical byte stream for t (header followed by
// little-endian element data). It sets Domain and returns nil if t is
// not contiguous.
func (t Tensor) Serialize(f *fixedpoint.Fault) []byte {
	if !t.IsContiguous() {
		f.Domain = true
		return nil
	}

	buf := make([]byte, t.SerialSize())
	copy(buf, t.header())

	p := buf[headerSize:]
	for i, v := range t.Data[:t.TotalSize] {
		writeU32LE(p[i*4:], uint32(int32(v)))
	}
	return buf
}

// Hash computes the SHA-256 digest of t's canonical byte stream: this is
// the value committed into the Merkle training chain. It sets Domain and
// returns the zero digest if t is not contiguous.
func Hash(t Tensor, f *fixedpoint.Fault) [sha256.Size]byte {
	data := t.Serialize(f)
	if data == nil {
		return [sha256.Size]byte{}
	}
	return sha256.Sum256(data)
}

// Q32Tensor describes a multi-dimensional array of Q32.32 elements (a
// 64-bit-raw carrier, dtype tag DTypeQ32_32). It exists purely for
// checkpoint-inspection tooling — e.g. dumping a compensated
// accumulator's (sum, err) pair, or a higher-precision weight snapshot,
// without losing bits to the 32-bit carrier the committed chain hash
// uses — and is never part of a Merkle step's H(theta) commitment.
type Q32Tensor struct {
	Data      []fixedpoint.Q32
	Dims      [MaxDims]uint32
	Strides   [MaxDims]uint32
	NDims     uint32
	TotalSize uint32
}

// New1DQ32 describes a dense Q32.32 vector of size elements.
func New1DQ32(data []fixedpoint.Q32, size uint32) Q32Tensor {
	return Q32Tensor{
		Data:      data,
		Dims:      [MaxDims]uint32{size, 1, 1, 1},
		Strides:   [MaxDims]uint32{1, size, size, size},
		NDims:     1,
		TotalSize: size,
	}
}

// IsContiguous reports whether Strides matches the natural row-major
// layout implied by Dims[:NDims].
func (t Q32Tensor) IsContiguous() bool {
	if t.NDims == 0 {
		return true
	}
	expected := uint32(1)
	for i := int(t.NDims) - 1; i >= 0; i-- {
		if t.Strides[i] != expected {
			return false
		}
		expected *= t.Dims[i]
	}
	return true
}

// q32SerialSize returns the canonical byte-stream length for t: the
// same header shape as the Q16.16 stream, but 8 bytes per element
// instead of 4, since Q32.32 is a 64-bit-raw carrier.
func (t Q32Tensor) q32SerialSize() int {
	return headerSize + int(t.TotalSize)*8
}

func (t Q32Tensor) header() []byte {
	buf := make([]byte, headerSize)
	p := buf
	writeU32LE(p, SerializeVersion)
	writeU32LE(p[4:], DTypeQ32_32)
	writeU32LE(p[8:], t.NDims)
	for i := 0; i < MaxDims; i++ {
		writeU32LE(p[12+4*i:], t.Dims[i])
	}
	writeU64LE(p[12+4*MaxDims:], uint64(t.TotalSize))
	return buf
}

// SerializeQ32 writes the canonical byte stream for a Q32.32 tensor
// (header followed by little-endian 64-bit element data). It sets
// Domain and returns nil if t is not contiguous.
func SerializeQ32(t Q32Tensor, f *fixedpoint.Fault) []byte {
	if !t.IsContiguous() {
		f.Domain = true
		return nil
	}

	buf := make([]byte, t.q32SerialSize())
	copy(buf, t.header())

	p := buf[headerSize:]
	for i, v := range t.Data[:t.TotalSize] {
		writeU64LE(p[i*8:], uint64(v))
	}
	return buf
}

// HashQ32 computes the SHA-256 digest of t's canonical Q32.32 byte
// stream, the same way Hash does for the Q16.16 committed-chain tensor.
func HashQ32(t Q32Tensor, f *fixedpoint.Fault) [sha256.Size]byte {
	data := SerializeQ32(t, f)
	if data == nil {
		return [sha256.Size]byte{}
	}
	return sha256.Sum256(data)
}

// GradTensor describes a multi-dimensional array of Q8.24 elements: the
// gradient-precision carrier used on the backward side of a layer, backed
// by a caller-provided Data slice.
type GradTensor struct {
	Data      []fixedpoint.Q8
	Dims      [MaxDims]uint32
	Strides   [MaxDims]uint32
	NDims     uint32
	TotalSize uint32
}

// GradNew1D describes a dense gradient vector of size elements.
func GradNew1D(data []fixedpoint.Q8, size uint32) GradTensor {
	return GradTensor{
		Data:      data,
		Dims:      [MaxDims]uint32{size, 1, 1, 1},
		Strides:   [MaxDims]uint32{1, size, size, size},
		NDims:     1,
		TotalSize: size,
	}
}

// GradNew2D describes a dense row-major [rows, cols] gradient matrix.
func GradNew2D(data []fixedpoint.Q8, rows, cols uint32) GradTensor {
	return GradTensor{
		Data:      data,
		Dims:      [MaxDims]uint32{rows, cols, 1, 1},
		Strides:   [MaxDims]uint32{cols, 1, rows * cols, rows * cols},
		NDims:     2,
		TotalSize: rows * cols,
	}
}

// IsContiguous reports whether Strides matches the natural row-major
// layout implied by Dims[:NDims].
func (t GradTensor) IsContiguous() bool {
	if t.NDims == 0 {
		return true
	}
	expected := uint32(1)
	for i := int(t.NDims) - 1; i >= 0; i-- {
		if t.Strides[i] != expected {
			return false
		}
		expected *= t.Dims[i]
	}
	return true
}
