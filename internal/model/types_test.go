package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_ActionType(t *testing.T) {
	tests := []struct {
		action ActionType
		name   string
		valid  bool
	}{
		{Hold, "hold", true},
		{Buy, "buy", true},
		{Sell, "sell", true},
		{ActionType(3), "action(3)", false},
		{ActionType(-1), "action(-1)", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.action.String())
			assert.Equal(t, tt.valid, tt.action.Valid())
		})
	}
}

func Test_HoldAction(t *testing.T) {
	a := HoldAction()
	assert.Equal(t, Hold, a.Type)
	assert.True(t, a.Amount.IsZero())
}

func Test_PriceSeries_Validate(t *testing.T) {
	tests := []struct {
		name        string
		series      PriceSeries
		expectError bool
		description string
	}{
		{
			name:        "Valid series",
			series:      FromFloats([]float64{100, 110.5, 95}),
			expectError: false,
			description: "Should accept positive prices",
		},
		{
			name:        "Empty",
			series:      PriceSeries{},
			expectError: true,
			description: "Should reject an empty series",
		},
		{
			name:        "Single point",
			series:      FromFloats([]float64{100}),
			expectError: true,
			description: "Should require at least two points",
		},
		{
			name:        "Zero price",
			series:      FromFloats([]float64{100, 0}),
			expectError: true,
			description: "Should reject non-positive prices",
		},
		{
			name:        "Negative price",
			series:      FromFloats([]float64{100, -1}),
			expectError: true,
			description: "Should reject negative prices",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.series.Validate()
			if tt.expectError {
				assert.Error(t, err, tt.description)
			} else {
				assert.NoError(t, err, tt.description)
			}
		})
	}
}
