package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestStakeRepresentable(t *testing.T) {
	tests := []struct {
		amount string
		want   bool
	}{
		{"10", true},
		{"0.00000001", true},
		{"12.34567890", true},
		{"999999999999.99999999", true},
		{"0.000000001", false},
		{"10.123456789", false},
		{"1000000000000", false},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			assert.Equal(t, tt.want, StakeRepresentable(decimal.RequireFromString(tt.amount)))
		})
	}
}
