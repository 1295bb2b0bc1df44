package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestMarkupRule_CalculateSalePrice(t *testing.T) {
	tests := []struct {
		name string
		rule MarkupRule
		cost string
		want string
	}{
		{"percentage 30 on 10", MarkupRule{Type: MarkupTypePercentage, Amount: decimal.NewFromInt(30)}, "10.00", "13.00"},
		{"fixed 5 on 10", MarkupRule{Type: MarkupTypeFixed, Amount: decimal.NewFromInt(5)}, "10.00", "15.00"},
		{"percentage rounds to cents", MarkupRule{Type: MarkupTypePercentage, Amount: decimal.NewFromInt(15)}, "3.33", "3.83"},
		{"zero markup", MarkupRule{Type: MarkupTypePercentage, Amount: decimal.Zero}, "7.25", "7.25"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.rule.CalculateSalePrice(decimal.RequireFromString(tt.cost))
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s want %s", got, tt.want)
		})
	}
}

func TestMarkupRule_Validate(t *testing.T) {
	assert.NoError(t, DefaultMarkupRule().Validate())
	assert.Error(t, MarkupRule{Type: "bogus"}.Validate())
	assert.Error(t, MarkupRule{Type: MarkupTypeFixed, Amount: decimal.NewFromInt(-1)}.Validate())
}
