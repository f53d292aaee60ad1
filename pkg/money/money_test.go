package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	d, err := Parse(" 12.50 ")
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.RequireFromString("12.5")))

	_, err = Parse("")
	require.Error(t, err)

	_, err = Parse("twelve")
	require.Error(t, err)
}

func TestParseNonNegative(t *testing.T) {
	d, err := ParseNonNegative("5")
	require.NoError(t, err)
	assert.Equal(t, "5.00", Format(d))

	_, err = ParseNonNegative("-1.00")
	require.Error(t, err)

	_, err = ParseNonNegative("1.005")
	require.Error(t, err)
}

func TestGramsToKgIsExact(t *testing.T) {
	assert.Equal(t, "1.5", GramsToKg(1500).String())
	assert.Equal(t, "0.001", GramsToKg(1).String())
}

func TestSumAndFormat(t *testing.T) {
	total := Sum(
		decimal.RequireFromString("0.10"),
		decimal.RequireFromString("0.20"),
		decimal.RequireFromString("0.30"),
	)
	assert.Equal(t, "0.60", Format(total))
	assert.Equal(t, "0.00", Format(Sum()))
}

func TestToCurrencyRoundsHalfAwayFromZero(t *testing.T) {
	assert.Equal(t, "0.13", Format(ToCurrency(decimal.RequireFromString("0.125"))))
	assert.Equal(t, "0.01", Format(ToCurrency(decimal.RequireFromString("0.01234"))))
}
