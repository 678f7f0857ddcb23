// Package bmalloc implements an indirect bitmap allocator: a first-free-bit
// search over a caller-owned word slice.
//
// The allocator performs no locking of its own. Every call must be wrapped
// by the caller in a held lock when the bitmap is used from more than one
// goroutine or process; the rwspinlock package is the intended companion.
package bmalloc

import "math/bits"

// wordBits is the word width in bits.
const wordBits = bits.UintSize

// Requirement returns the number of words needed to back at least n bits.
func Requirement(n int) int {
	return (n-1)/wordBits + 1
}

// Bitmap allocates indices out of a caller-owned bit array. A set bit is an
// allocated index. Since the caller provides the backing slice, the caller
// may also place it in shared memory or resize it between uses.
type Bitmap struct {
	data []uintptr
	size int // size of the bitmap in bits
}

// New returns a Bitmap of size bits backed by data. The slice must hold at
// least Requirement(size) words.
func New(data []uintptr, size int) *Bitmap {
	return &Bitmap{data: data, size: size}
}

// Size reports the bitmap capacity in bits.
func (b *Bitmap) Size() int {
	return b.size
}

// Acquire finds the first clear bit, sets it and returns its index. It
// returns false when every bit is set.
func (b *Bitmap) Acquire() (int, bool) {
	words := b.size / wordBits
	for w := 0; w < words; w++ {
		if inv := ^b.data[w]; inv != 0 {
			i := bits.TrailingZeros(uint(inv))
			b.data[w] |= 1 << i
			return w*wordBits + i, true
		}
	}

	if rest := b.size % wordBits; rest != 0 {
		if inv := ^b.data[words]; inv != 0 {
			if i := bits.TrailingZeros(uint(inv)); i < rest {
				b.data[words] |= 1 << i
				return words*wordBits + i, true
			}
		}
	}
	return 0, false
}

// Release clears the bit at index and returns its prior value.
func (b *Bitmap) Release(index int) bool {
	w, bit := index/wordBits, uint(index%wordBits)
	prior := b.data[w]&(1<<bit) != 0
	b.data[w] &^= 1 << bit
	return prior
}
