// Package sha256 is a self-contained FIPS 180-4 SHA-256 implementation,
// embedded rather than delegated to crypto/sha256 so the audit chain's
// hash function ships with the rest of the deterministic core and is not
// tied to a platform's crypto library, grounded on
// original_source/src/audit/merkle.c.
package sha256

// Size is the length in bytes of a SHA-256 digest.
const Size = 32

const blockSize = 64

var k = [64]uint32{
	0x428a2f98, 0x71374491, 0xb5c0fbcf, 0xe9b5dba5,
	0x3956c25b, 0x59f111f1, 0x923f82a4, 0xab1c5ed5,
	0xd807aa98, 0x12835b01, 0x243185be, 0x550c7dc3,
	0x72be5d74, 0x80deb1fe, 0x9bdc06a7, 0xc19bf174,
	0xe49b69c1, 0xefbe4786, 0x0fc19dc6, 0x240ca1cc,
	0x2de92c6f, 0x4a7484aa, 0x5cb0a9dc, 0x76f988da,
	0x983e5152, 0xa831c66d, 0xb00327c8, 0xbf597fc7,
	0xc6e00bf3, 0xd5a79147, 0x06ca6351, 0x14292967,
	0x27b70a85, 0x2e1b2138, 0x4d2c6dfc, 0x53380d13,
	0x650a7354, 0x766a0abb, 0x81c2c92e, 0x92722c85,
	0xa2bfe8a1, 0xa81a664b, 0xc24b8b70, 0xc76c51a3,
	0xd192e819, 0xd6990624, 0xf40e3585, 0x106aa070,
	0x19a4c116, 0x1e376c08, 0x2748774c, 0x34b0bcb5,
	0x391c0cb3, 0x4ed8aa4a, 0x5b9cca4f, 0x682e6ff3,
	0x748f82ee, 0x78a5636f, 0x84c87814, 0x8cc70208,
	0x90befffa, 0xa4506ceb, 0xbef9a3f7, 0xc67178f2,
}

var initState = [8]uint32{
	0x6a09e667, 0xbb67ae85, 0x3c6ef372, 0xa54ff53a,
	0x510e527f, 0x9b05688c, 0x1f83d9ab, 0x5be0cd19,
}

// Hasher is a streaming SHA-256 context, written incrementally like the
// reference ct_sha256_ctx_t.
type Hasher struct {
	state  [8]uint32
	buffer [blockSize]byte
	count  uint64
}

// New returns an initialized Hasher.
func New() *Hasher {
	h := &Hasher{}
	h.Reset()
	return h
}

// Reset returns the Hasher to its initial state so it can be reused.
func (h *Hasher) Reset() {
	h.state = initState
	h.count = 0
}

func rotr(x uint32, n uint) uint32 {
	return (x >> n) | (x << (32 - n))
}

func transform(state *[8]uint32, data []byte) {
	var w [64]uint32
	for i := 0; i < 16; i++ {
		w[i] = uint32(data[i*4])<<24 | uint32(data[i*4+1])<<16 |
			uint32(data[i*4+2])<<8 | uint32(data[i*4+3])
	}
	for i := 16; i < 64; i++ {
		sig1 := rotr(w[i-2], 17) ^ rotr(w[i-2], 19) ^ (w[i-2] >> 10)
		sig0 := rotr(w[i-15], 7) ^ rotr(w[i-15], 18) ^ (w[i-15] >> 3)
		w[i] = sig1 + w[i-7] + sig0 + w[i-16]
	}

	a, b, c, d := state[0], state[1], state[2], state[3]
	e, f, g, hh := state[4], state[5], state[6], state[7]

	for i := 0; i < 64; i++ {
		ep1 := rotr(e, 6) ^ rotr(e, 11) ^ rotr(e, 25)
		ch := (e & f) ^ (^e & g)
		t1 := hh + ep1 + ch + k[i] + w[i]
		ep0 := rotr(a, 2) ^ rotr(a, 13) ^ rotr(a, 22)
		maj := (a & b) ^ (a & c) ^ (b & c)
		t2 := ep0 + maj

		hh, g, f, e = g, f, e, d+t1
		d, c, b, a = c, b, a, t1+t2
	}

	state[0] += a
	state[1] += b
	state[2] += c
	state[3] += d
	state[4] += e
	state[5] += f
	state[6] += g
	state[7] += hh
}

// Write absorbs data into the hash state. It never returns an error.
func (h *Hasher) Write(data []byte) (int, error) {
	total := len(data)
	bufIdx := int(h.count & 63)
	h.count += uint64(total)

	if bufIdx > 0 {
		toCopy := blockSize - bufIdx
		if toCopy > len(data) {
			toCopy = len(data)
		}
		copy(h.buffer[bufIdx:], data[:toCopy])
		data = data[toCopy:]
		bufIdx += toCopy
		if bufIdx == blockSize {
			transform(&h.state, h.buffer[:])
			bufIdx = 0
		}
	}

	for len(data) >= blockSize {
		transform(&h.state, data[:blockSize])
		data = data[blockSize:]
	}

	if len(data) > 0 {
		copy(h.buffer[:], data)
	}

	return total, nil
}

// Sum appends the current digest to b and returns the resulting slice,
// without mutating the Hasher's accumulated state for further writes.
func (h Hasher) Sum(b []byte) []byte {
	bufIdx := int(h.count & 63)
	bitCount := h.count * 8

	var padded [blockSize]byte
	copy(padded[:], h.buffer[:bufIdx])
	padded[bufIdx] = 0x80
	bufIdx++

	if bufIdx > 56 {
		transform(&h.state, padded[:])
		padded = [blockSize]byte{}
		bufIdx = 0
	}

	for i := 56; i < 64; i++ {
		padded[i] = byte(bitCount >> uint(56-(i-56)*8))
	}

	transform(&h.state, padded[:])

	var digest [Size]byte
	for i := 0; i < 8; i++ {
		digest[i*4] = byte(h.state[i] >> 24)
		digest[i*4+1] = byte(h.state[i] >> 16)
		digest[i*4+2] = byte(h.state[i] >> 8)
		digest[i*4+3] = byte(h.state[i])
	}

	return append(b, digest[:]...)
}

// Sum256 computes the SHA-256 digest of data in one call.
func Sum256(data []byte) [Size]byte {
	h := New()
	h.Write(data)
	var out [Size]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Equal performs a constant-time comparison of two digests.
func Equal(a, b [Size]byte) bool {
	var diff byte
	for i := 0; i < Size; i++ {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}
