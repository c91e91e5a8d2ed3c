package model

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	a, err := ParseAmount("100.5", 6)
	require.NoError(t, err)
	assert.Equal(t, "100500000", a.Raw().String())
	assert.Equal(t, "100.5", a.String())

	_, err = ParseAmount("1.1234567", 6)
	assert.Error(t, err, "more fractional digits than the scale")

	_, err = ParseAmount("abc", 6)
	assert.Error(t, err)
}

func TestAmountString(t *testing.T) {
	cases := []struct {
		raw      string
		decimals int
		want     string
	}{
		{"0", 18, "0"},
		{"1000000000000000000", 18, "1"},
		{"1500000000000000000", 18, "1.5"},
		{"1", 18, "0.000000000000000001"},
		{"100000000", 6, "100"},
		{"12000001", 6, "12.000001"},
		{"250000", 0, "250000"},
	}
	for _, c := range cases {
		raw, ok := new(big.Int).SetString(c.raw, 10)
		require.True(t, ok)
		assert.Equal(t, c.want, NewAmount(raw, c.decimals).String(), "raw=%s dec=%d", c.raw, c.decimals)
	}
}

func TestAmountStoredRoundTrip(t *testing.T) {
	orig, err := ParseAmount("1234.000001", 18)
	require.NoError(t, err)

	back, err := AmountFromStored(orig.String())
	require.NoError(t, err)
	assert.Equal(t, orig.String(), back.String())
}

func TestAmountExceedsUnits(t *testing.T) {
	raw, _ := new(big.Int).SetString("250000000000000000000000", 10) // 250000 at 18 decimals
	a := NewAmount(raw, 18)
	assert.True(t, a.ExceedsUnits(100_000))
	assert.False(t, a.ExceedsUnits(250_000), "threshold is strict")

	small := NewAmount(big.NewInt(100), 0)
	assert.False(t, small.ExceedsUnits(100_000))
}

func TestNewRawAmountPreservesValue(t *testing.T) {
	raw := big.NewInt(42)
	a := NewRawAmount(raw)
	raw.SetInt64(99)
	assert.Equal(t, "42", a.Raw().String(), "amount must copy the input")
	assert.False(t, a.DecimalsKnown())
	assert.Equal(t, DefaultDecimals, a.Decimals())
}
