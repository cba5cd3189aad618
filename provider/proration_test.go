package provider

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCalculateProratedAmount(t *testing.T) {
	thirty := decimal.RequireFromString("30.00")

	tests := []struct {
		name     string
		amount   decimal.Decimal
		days     int
		expected string
	}{
		{"half period", thirty, 15, "15"},
		{"full period", thirty, 30, "30"},
		{"beyond period", thirty, 45, "30"},
		{"one day", thirty, 1, "1"},
		{"zero days", thirty, 0, "0"},
		{"negative days", thirty, -3, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateProratedAmount(tt.amount, tt.days)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.expected)), "got %s", got)
		})
	}

	t.Run("non-round amount", func(t *testing.T) {
		got := CalculateProratedAmount(decimal.RequireFromString("19.99"), 10)
		assert.Equal(t, "6.66", got.Round(2).StringFixed(2))
	})
}
