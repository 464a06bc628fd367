package bloom

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/bloom-index/pkg/errors"
)

func mustNew(t testing.TB, m, k uint) *Filter {
	t.Helper()
	f, err := New(m, k)
	require.NoError(t, err)
	return f
}

func TestNew_InvalidConfig(t *testing.T) {
	for _, tc := range []struct{ m, k uint }{
		{0, 5}, {100, 0}, {0, 0},
		{MaxBits + 1, 3}, {math.MaxUint, 3}, {64, MaxHashes + 1},
	} {
		_, err := New(tc.m, tc.k)
		assert.ErrorIs(t, err, apperrors.ErrInvalidConfig, "m=%d k=%d", tc.m, tc.k)
	}
}

func TestNew_Empty(t *testing.T) {
	f := mustNew(t, 1000, 5)
	assert.Equal(t, uint(0), f.Count())
	assert.False(t, f.Test("anything"))
	assert.Equal(t, uint(1000), f.M())
	assert.Equal(t, uint(5), f.K())
}

func TestFilter_NoFalseNegatives(t *testing.T) {
	f := mustNew(t, 2048, 6)
	terms := make([]string, 0, 400)
	for i := 0; i < 400; i++ {
		term := fmt.Sprintf("term-%d", i)
		terms = append(terms, term)
		f.Add(term)
	}
	for _, term := range terms {
		assert.True(t, f.Test(term), term)
	}
}

func TestFilter_AddIsIdempotent(t *testing.T) {
	f := mustNew(t, 512, 4)
	f.Add("cat")
	before := f.Count()
	f.Add("cat")
	assert.Equal(t, before, f.Count())
	assert.LessOrEqual(t, before, uint(4))
}

func TestFilter_FalsePositiveRateWithinBound(t *testing.T) {
	tests := []struct {
		name      string
		m, k, n   uint
		tolerance float64
	}{
		{"sparse", 10000, 7, 100, 0.001},
		{"loaded", 10000, 7, 1000, 0.005},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := mustNew(t, tt.m, tt.k)
			for i := uint(0); i < tt.n; i++ {
				f.Add(fmt.Sprintf("inserted-%d", i))
			}
			const probes = 10000
			hits := 0
			for i := 0; i < probes; i++ {
				if f.Test(fmt.Sprintf("probe-%d", i)) {
					hits++
				}
			}
			empirical := float64(hits) / probes
			theory := FalsePositiveRate(tt.m, tt.k, tt.n)
			assert.LessOrEqual(t, math.Abs(empirical-theory), tt.tolerance,
				"empirical %.5f theoretical %.5f", empirical, theory)
		})
	}
}

func TestFilter_Union(t *testing.T) {
	a := mustNew(t, 1024, 5)
	b := mustNew(t, 1024, 5)
	a.Add("cat")
	b.Add("dog")

	u, err := a.Union(b)
	require.NoError(t, err)
	assert.True(t, u.Test("cat"))
	assert.True(t, u.Test("dog"))
	// operands are untouched
	assert.False(t, a.Test("dog"))
	assert.False(t, b.Test("cat"))
}

func TestFilter_UnionIncompatible(t *testing.T) {
	a := mustNew(t, 1024, 5)
	for _, other := range []*Filter{mustNew(t, 2048, 5), mustNew(t, 1024, 6), nil} {
		_, err := a.Union(other)
		assert.ErrorIs(t, err, apperrors.ErrIncompatibleFilter)
	}
}

func TestFilter_BytesRoundTrip(t *testing.T) {
	for _, m := range []uint{1, 7, 8, 9, 100, 10000} {
		t.Run(fmt.Sprintf("m=%d", m), func(t *testing.T) {
			f := mustNew(t, m, 3)
			for i := 0; i < 20; i++ {
				f.Add(fmt.Sprintf("w%d", i))
			}
			data := f.Bytes()
			require.Len(t, data, int(ByteLen(m)))

			restored, err := FromBytes(data, m, 3)
			require.NoError(t, err)
			assert.True(t, f.Equal(restored))
		})
	}
}

func TestFilter_BytesLayoutIsLSBFirst(t *testing.T) {
	f := mustNew(t, 16, 1)
	f.bits.Set(0)
	f.bits.Set(9)
	assert.Equal(t, []byte{0x01, 0x02}, f.Bytes())
}

func TestFromBytes_Corrupt(t *testing.T) {
	_, err := FromBytes(make([]byte, 12), 100, 3)
	assert.ErrorIs(t, err, apperrors.ErrCorruptData)

	_, err = FromBytes(make([]byte, 14), 100, 3)
	assert.ErrorIs(t, err, apperrors.ErrCorruptData)

	// m=10 leaves six padding bits in the second byte
	_, err = FromBytes([]byte{0x00, 0x80}, 10, 3)
	assert.ErrorIs(t, err, apperrors.ErrCorruptData)

	_, err = FromBytes(nil, 0, 3)
	assert.ErrorIs(t, err, apperrors.ErrInvalidConfig)
}

func TestFilter_CloneIsIndependent(t *testing.T) {
	f := mustNew(t, 256, 3)
	f.Add("a")
	c := f.Clone()
	c.Add("b")
	assert.False(t, f.Equal(c))
	assert.True(t, c.Test("a"))
	assert.NotSame(t, f.bits, c.bits)
}

func TestEstimateParameters(t *testing.T) {
	m, k, err := EstimateParameters(1000, 0.01)
	require.NoError(t, err)
	assert.Equal(t, uint(9586), m)
	assert.Equal(t, uint(7), k)
	assert.LessOrEqual(t, FalsePositiveRate(m, k, 1000), 0.0101)

	m, k, err = EstimateParameters(0, 0.5)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, m, uint(8))
	assert.GreaterOrEqual(t, k, uint(1))
}

func TestEstimateParameters_OutOfRange(t *testing.T) {
	tests := []struct {
		name string
		n    uint
		p    float64
	}{
		{"too many terms", math.MaxUint, 1e-9},
		{"tiny rate", 1, 1e-320},
		{"zero rate", 100, 0},
		{"rate of one", 100, 1},
		{"nan rate", 100, math.NaN()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, k, err := EstimateParameters(tt.n, tt.p)
			assert.ErrorIs(t, err, apperrors.ErrInvalidConfig)
			assert.Zero(t, m)
			assert.Zero(t, k)
		})
	}
}

func TestByteLen(t *testing.T) {
	assert.Equal(t, uint(0), ByteLen(0))
	assert.Equal(t, uint(1), ByteLen(1))
	assert.Equal(t, uint(1), ByteLen(8))
	assert.Equal(t, uint(2), ByteLen(9))
	assert.Equal(t, uint(math.MaxUint/8+1), ByteLen(math.MaxUint))
}

func BenchmarkFilterAdd(b *testing.B) {
	f := mustNew(b, 1<<16, 7)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		f.Add("benchmark-term")
	}
}

func BenchmarkFilterTest(b *testing.B) {
	f := mustNew(b, 1<<16, 7)
	for i := 0; i < 1000; i++ {
		f.Add(fmt.Sprintf("term-%d", i))
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = f.Test("term-500")
	}
}
