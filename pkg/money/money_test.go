package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Cents
	}{
		{"Ksh 100", 10000},
		{"Ksh 50", 5000},
		{"Ksh. 1,250.50", 125050},
		{"99.999", 10000},
		{"0", 0},
		{"KES 12.3", 1230},
		{"1e3", 100000},
		{"2.5E2", 25000},
		{"Ksh 100000000000", MaxAmount},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, in := range []string{
		"", "Ksh", "free", "-5", "Ksh -10",
		"Ksh 100000000000.01",
		"Ksh 100000000000000000",
		"Ksh 92233720368547758.08",
		"1e30",
	} {
		_, err := Parse(in)
		assert.ErrorIs(t, err, ErrInvalidPrice, "input %q", in)
	}
}

func TestParseOrZero(t *testing.T) {
	assert.Equal(t, Cents(0), ParseOrZero("not a price"))
	assert.Equal(t, Cents(10000), ParseOrZero("Ksh 100"))
}

func TestFromDecimal(t *testing.T) {
	c, err := FromDecimal(decimal.RequireFromString("19.995"))
	require.NoError(t, err)
	assert.Equal(t, Cents(2000), c)

	_, err = FromDecimal(decimal.NewFromInt(-1))
	assert.ErrorIs(t, err, ErrInvalidPrice)

	_, err = FromDecimal(decimal.RequireFromString("92233720368547758.08"))
	assert.ErrorIs(t, err, ErrInvalidPrice)
}

func TestMaxAmount_TimesDoesNotOverflow(t *testing.T) {
	assert.Greater(t, MaxAmount.Times(99), Cents(0))
	assert.Greater(t, MaxAmount.Times(99)*1000, Cents(0))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "200.00", Cents(20000).String())
	assert.Equal(t, "0.05", Cents(5).String())
	assert.Equal(t, "Ksh 50.00", Cents(5000).Format(""))
	assert.Equal(t, "USD 1.10", Cents(110).Format("USD"))
	assert.Equal(t, Cents(30000), Cents(10000).Times(3))
}
