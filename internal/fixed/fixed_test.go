package fixed

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuantizeHalfEven(t *testing.T) {
	cases := map[string]string{
		"0.123456785":  "0.12345678",
		"0.123456775":  "0.12345678",
		"0.123456786":  "0.12345679",
		"-0.123456785": "-0.12345678",
		"1.0102":       "1.0102",
	}
	for in, want := range cases {
		got := Quantize(decimal.RequireFromString(in))
		assert.True(t, got.Equal(decimal.RequireFromString(want)), "%s -> %s, got %s", in, want, got)
	}
}

func TestDiv(t *testing.T) {
	q, err := Div(decimal.NewFromInt(1), decimal.NewFromInt(3))
	require.NoError(t, err)
	assert.Equal(t, "0.33333333", q.String())

	q, err = Div(decimal.NewFromInt(2), decimal.NewFromInt(3))
	require.NoError(t, err)
	assert.Equal(t, "0.66666667", q.String())

	q, err = Div(decimal.NewFromInt(-2), decimal.NewFromInt(3))
	require.NoError(t, err)
	assert.Equal(t, "-0.66666667", q.String())

	// 0.000000025 / 1 sits exactly on a tie and rounds to the even digit.
	q, err = Div(decimal.RequireFromString("0.000000025"), decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.Equal(t, "0.00000002", q.String())

	q, err = Div(decimal.RequireFromString("0.000000035"), decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.Equal(t, "0.00000004", q.String())

	_, err = Div(decimal.NewFromInt(1), decimal.Zero)
	assert.ErrorIs(t, err, ErrDivisionByZero)
}

func TestMulAndPow(t *testing.T) {
	assert.Equal(t, "0.010102", Mul(MustParse("0.01"), MustParse("1.0102")).String())
	assert.Equal(t, "1.02050404", Pow(MustParse("1.0102"), 2).String())
	assert.True(t, Pow(MustParse("3"), 0).Equal(decimal.NewFromInt(1)))
}

func TestParse(t *testing.T) {
	d, err := Parse(" 0.123456789 ")
	require.NoError(t, err)
	assert.Equal(t, "0.12345679", d.String())

	_, err = Parse("")
	assert.Error(t, err)
	_, err = Parse("abc")
	assert.Error(t, err)
}

func TestMinMaxSum(t *testing.T) {
	a, b := MustParse("0.1"), MustParse("0.2")
	assert.True(t, Min(a, b).Equal(a))
	assert.True(t, Max(a, b).Equal(b))
	assert.Equal(t, "0.3", Sum(a, b).String())
	assert.True(t, Sum().IsZero())
}
