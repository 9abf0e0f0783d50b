package keyhash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigest_Deterministic(t *testing.T) {
	a := Digest("user", 42)
	b := Digest("user", 42)
	assert.Equal(t, a, b)
}

func TestDigest_OrderIndependent(t *testing.T) {
	a := Digest("alpha", "beta", 7)
	b := Digest(7, "beta", "alpha")
	assert.Equal(t, a, b)
}

func TestDigest_HexOutput(t *testing.T) {
	d := Digest("x")
	require.Len(t, d, 32)
	for _, c := range d {
		assert.Contains(t, "0123456789abcdef", string(c))
	}
}

func TestDigest_NonScalarArgsExcluded(t *testing.T) {
	// Slices, maps and structs do not participate in the digest, so calls
	// differing only in those collide. This is the documented behavior.
	a := Digest("key", []string{"x"})
	b := Digest("key", []string{"y"})
	c := Digest("key", map[string]int{"z": 1})
	assert.Equal(t, a, b)
	assert.Equal(t, a, c)
}

func TestDigest_EmptyAndZeroExcluded(t *testing.T) {
	assert.Equal(t, Digest("a"), Digest("a", "", 0))
	assert.Equal(t, Digest(), Digest("", 0))
}

func TestDigest_BoolNotAnInteger(t *testing.T) {
	assert.Equal(t, Digest("a"), Digest("a", true))
}

func TestDigest_DashesStripped(t *testing.T) {
	// "-" is removed from each canonicalized argument, so "a-b" and "ab"
	// produce the same digest, as do -5 and 5.
	assert.Equal(t, Digest("a-b"), Digest("ab"))
	assert.Equal(t, Digest(-5), Digest(5))
}

func TestDigest_IntegerKinds(t *testing.T) {
	assert.Equal(t, Digest(int32(9)), Digest(int64(9)))
	assert.Equal(t, Digest(uint16(9)), Digest(9))
}

func TestDigest_DistinctArgsDistinctDigests(t *testing.T) {
	assert.NotEqual(t, Digest("a"), Digest("b"))
	assert.NotEqual(t, Digest("a", 1), Digest("a", 2))
}

func TestSignature(t *testing.T) {
	assert.Empty(t, Signature())
	require.Len(t, Signature("a"), 32)
	assert.Equal(t, Signature("a", "b"), Signature("ab"))
	assert.NotEqual(t, Signature("a"), Signature("b"))
}
