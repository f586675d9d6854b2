package contracts

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePriceType(t *testing.T) {
	tests := []struct {
		input   string
		want    PriceType
		wantErr bool
	}{
		{"O", PriceOpen, false},
		{"h", PriceHigh, false},
		{"Low", PriceLow, false},
		{" close ", PriceClose, false},
		{"V", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePriceType(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPriceTypeStrings(t *testing.T) {
	assert.Equal(t, "Close", PriceClose.String())
	assert.Equal(t, "H", PriceHigh.Letter())
	assert.Equal(t, "?", PriceType(9).Letter())
	assert.True(t, PriceLow.Valid())
	assert.False(t, PriceType(0).Valid())
}

func TestPriceRecord_Price(t *testing.T) {
	r := PriceRecord{
		Open:  decimal.NewFromInt(1),
		High:  decimal.NewFromInt(2),
		Low:   decimal.NewFromInt(3),
		Close: decimal.NewFromInt(4),
	}

	assert.True(t, r.Price(PriceOpen).Equal(decimal.NewFromInt(1)))
	assert.True(t, r.Price(PriceHigh).Equal(decimal.NewFromInt(2)))
	assert.True(t, r.Price(PriceLow).Equal(decimal.NewFromInt(3)))
	assert.True(t, r.Price(PriceClose).Equal(decimal.NewFromInt(4)))
}

func TestDay(t *testing.T) {
	loc := time.FixedZone("KST", 9*3600)
	in := time.Date(2024, 3, 5, 23, 59, 0, 0, loc)

	got := Day(in)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), got)
	assert.True(t, got == Day(got), "Day is idempotent and comparable with ==")
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), d)

	_, err = ParseDate("2023-02-29")
	assert.Error(t, err)

	_, err = ParseDate("02/01/2024")
	assert.Error(t, err)
}
