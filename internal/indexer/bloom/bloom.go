// Package bloom implements the per-document probabilistic set used by the
// index. A Filter answers "might this term be present?" with no false
// negatives and a false-positive rate bounded by its geometry.
//
// # Hash family
//
// The k bit positions for a term are derived by double hashing:
//
//	h_i(x) = h1(x) + i*h2(x) mod m,  i = 0..k-1
//
// where h1 is xxhash64 and h2 is FNV-1a 64 forced to an odd value. Two base
// hashes stand in for k independent functions. Kirsch and Mitzenmacher show
// the asymptotic false-positive rate is unchanged, (1 - e^{-kn/m})^k, so the
// only cost is slightly more correlation between positions for very small m.
// Forcing h2 odd keeps the probe sequence from collapsing onto one bit when
// h2 shares a factor with m.
//
// Filters with different (m, k) are never comparable: Union rejects them and
// the dump format records both values alongside every set of bits.
package bloom

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/bits"

	"github.com/bits-and-blooms/bitset"
	"github.com/cespare/xxhash/v2"

	apperrors "github.com/Adithya-Monish-Kumar-K/bloom-index/pkg/errors"
)

// Geometry limits. A filter of MaxBits takes 256 MiB; no useful error rate
// needs more than MaxHashes hash functions.
const (
	MaxBits   uint = 1 << 31
	MaxHashes uint = 1 << 10
)

// Filter is a fixed-size bloom filter. Bits are only ever set, never cleared.
// A Filter is not safe for concurrent mutation.
type Filter struct {
	m    uint
	k    uint
	bits *bitset.BitSet
}

// New creates an empty filter with m bits and k hash functions.
func New(m, k uint) (*Filter, error) {
	if err := Validate(m, k); err != nil {
		return nil, err
	}
	return &Filter{m: m, k: k, bits: bitset.New(m)}, nil
}

// Validate rejects a geometry outside 1..MaxBits bits and 1..MaxHashes
// hashes.
func Validate(m, k uint) error {
	if m == 0 || k == 0 {
		return fmt.Errorf("%w: m=%d k=%d, both must be positive", apperrors.ErrInvalidConfig, m, k)
	}
	if m > MaxBits || k > MaxHashes {
		return fmt.Errorf("%w: m=%d k=%d, limits are m<=%d k<=%d", apperrors.ErrInvalidConfig, m, k, MaxBits, MaxHashes)
	}
	return nil
}

// M returns the number of bits in the filter.
func (f *Filter) M() uint { return f.m }

// K returns the number of hash functions.
func (f *Filter) K() uint { return f.k }

// Count returns the number of set bits.
func (f *Filter) Count() uint { return f.bits.Count() }

// Add inserts term into the filter.
func (f *Filter) Add(term string) {
	h1, h2 := baseHashes(term)
	for i := uint(0); i < f.k; i++ {
		f.bits.Set(f.position(h1, h2, i))
	}
}

// Test reports whether term might have been added. A false result is
// definitive.
func (f *Filter) Test(term string) bool {
	h1, h2 := baseHashes(term)
	for i := uint(0); i < f.k; i++ {
		if !f.bits.Test(f.position(h1, h2, i)) {
			return false
		}
	}
	return true
}

// Union returns a new filter holding the bitwise OR of f and other.
func (f *Filter) Union(other *Filter) (*Filter, error) {
	if other == nil {
		return nil, fmt.Errorf("%w: nil filter", apperrors.ErrIncompatibleFilter)
	}
	if !f.Compatible(other) {
		return nil, fmt.Errorf("%w: (m=%d, k=%d) vs (m=%d, k=%d)",
			apperrors.ErrIncompatibleFilter, f.m, f.k, other.m, other.k)
	}
	return &Filter{m: f.m, k: f.k, bits: f.bits.Union(other.bits)}, nil
}

// Compatible reports whether other has the same geometry as f.
func (f *Filter) Compatible(other *Filter) bool {
	return other != nil && f.m == other.m && f.k == other.k
}

// Equal reports whether both filters have the same geometry and bits.
func (f *Filter) Equal(other *Filter) bool {
	return f.Compatible(other) && f.bits.Equal(other.bits)
}

// Clone returns a deep copy of f.
func (f *Filter) Clone() *Filter {
	return &Filter{m: f.m, k: f.k, bits: f.bits.Clone()}
}

// Bytes packs the bit array 8 bits per byte, bit i stored in byte i/8 at
// position i%8 (least significant bit first). The result is ByteLen(m) long.
func (f *Filter) Bytes() []byte {
	out := make([]byte, ByteLen(f.m))
	for i, ok := f.bits.NextSet(0); ok; i, ok = f.bits.NextSet(i + 1) {
		out[i/8] |= 1 << (i % 8)
	}
	return out
}

// FromBytes rebuilds a filter from the packed form produced by Bytes. The
// data must be exactly ByteLen(m) long and carry no bits at or beyond m.
func FromBytes(data []byte, m, k uint) (*Filter, error) {
	f, err := New(m, k)
	if err != nil {
		return nil, err
	}
	if uint(len(data)) != ByteLen(m) {
		return nil, fmt.Errorf("%w: bit array is %d bytes, want %d for m=%d",
			apperrors.ErrCorruptData, len(data), ByteLen(m), m)
	}
	for byteIdx, b := range data {
		for b != 0 {
			pos := uint(byteIdx)*8 + uint(bits.TrailingZeros8(b))
			if pos >= m {
				return nil, fmt.Errorf("%w: padding bit %d set beyond m=%d", apperrors.ErrCorruptData, pos, m)
			}
			f.bits.Set(pos)
			b &= b - 1
		}
	}
	return f, nil
}

// ByteLen returns ceil(m/8), the packed size of an m-bit filter.
func ByteLen(m uint) uint {
	n := m / 8
	if m%8 != 0 {
		n++
	}
	return n
}

// EstimateParameters returns the bit count m and hash count k that keep the
// false-positive rate at or below p once n terms are inserted. It fails with
// ErrInvalidConfig when p is outside (0, 1) or the result exceeds the
// geometry limits.
func EstimateParameters(n uint, p float64) (m, k uint, err error) {
	if !(p > 0 && p < 1) {
		return 0, 0, fmt.Errorf("%w: error rate %v outside (0, 1)", apperrors.ErrInvalidConfig, p)
	}
	if n == 0 {
		n = 1
	}
	mf := math.Ceil(-float64(n) * math.Log(p) / (math.Ln2 * math.Ln2))
	if mf > float64(MaxBits) {
		return 0, 0, fmt.Errorf("%w: %d terms at rate %v need %.0f bits, limit is %d",
			apperrors.ErrInvalidConfig, n, p, mf, MaxBits)
	}
	m = uint(math.Max(mf, 8))
	k = uint(math.Max(math.Round(float64(m)/float64(n)*math.Ln2), 1))
	if err := Validate(m, k); err != nil {
		return 0, 0, err
	}
	return m, k, nil
}

// FalsePositiveRate returns the theoretical false-positive probability
// (1 - e^{-kn/m})^k of an m-bit, k-hash filter holding n terms.
func FalsePositiveRate(m, k, n uint) float64 {
	if m == 0 {
		return 1
	}
	return math.Pow(1-math.Exp(-float64(k)*float64(n)/float64(m)), float64(k))
}

func (f *Filter) position(h1, h2 uint64, i uint) uint {
	return uint((h1 + uint64(i)*h2) % uint64(f.m))
}

func baseHashes(term string) (uint64, uint64) {
	h1 := xxhash.Sum64String(term)
	fh := fnv.New64a()
	fh.Write([]byte(term))
	return h1, fh.Sum64() | 1
}
