package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_ValidAmounts(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"whole", "100", "100"},
		{"cents", "0.50", "0.5"},
		{"six decimals", "1.123456", "1.123456"},
		{"trailing zeros beyond scale", "1.50000000", "1.5"},
		{"padded", "  42.10 ", "42.1"},
		{"negative", "-3.25", "-3.25"},
		{"largest storable", "99999999999999.999999", "99999999999999.999999"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}

func TestParse_InvalidAmounts(t *testing.T) {
	for _, input := range []string{"", "   ", "abc", "1.2.3", "1.1234567", "0x10", "1e30", "100000000000000"} {
		t.Run(input, func(t *testing.T) {
			_, err := Parse(input)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(decimal.RequireFromString("0.000001")))
	assert.True(t, Valid(decimal.NewFromInt(100)))
	assert.False(t, Valid(decimal.Zero))
	assert.False(t, Valid(decimal.RequireFromString("-1")))
	assert.False(t, Valid(decimal.RequireFromString("0.0000001")))
	assert.False(t, Valid(decimal.RequireFromString("1e30")))
	assert.False(t, Valid(decimal.New(1, MaxIntegerDigits)))
	assert.True(t, Valid(decimal.New(1, MaxIntegerDigits).Sub(decimal.NewFromInt(1))))
}

func TestFitsScale_IntegerDigits(t *testing.T) {
	assert.True(t, FitsScale(decimal.RequireFromString("-99999999999999")))
	assert.False(t, FitsScale(decimal.RequireFromString("-100000000000000")))
}

func TestFormat(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"100", "100.00"},
		{"100.5", "100.50"},
		{"15.00", "15.00"},
		{"1.234", "1.234"},
		{"0.000001", "0.000001"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Format(decimal.RequireFromString(tt.input)), tt.input)
	}
}
