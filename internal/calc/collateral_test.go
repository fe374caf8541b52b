package calc

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestProRata(t *testing.T) {
	tests := []struct {
		name        string
		value       string
		numerator   string
		denominator string
		expected    string
	}{
		{
			name:        "exact division",
			value:       "600",
			numerator:   "100",
			denominator: "600",
			expected:    "100",
		},
		{
			name:        "proportional dilution",
			value:       "300",
			numerator:   "100",
			denominator: "600",
			expected:    "50",
		},
		{
			name:        "truncates toward zero",
			value:       "1",
			numerator:   "1",
			denominator: "3",
			expected:    "0.333333333333333333",
		},
		{
			name:        "zero value mints zero",
			value:       "0",
			numerator:   "100",
			denominator: "600",
			expected:    "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value := decimal.RequireFromString(tt.value)
			num := decimal.RequireFromString(tt.numerator)
			den := decimal.RequireFromString(tt.denominator)
			expected := decimal.RequireFromString(tt.expected)

			result := ProRata(value, num, den)
			assert.True(t, expected.Equal(result), "expected %s, got %s", expected, result)
		})
	}
}

func TestProRataNeverRoundsUp(t *testing.T) {
	// 7/9 = 0.777... must truncate, not round the last digit up.
	result := ProRata(decimal.NewFromInt(7), decimal.NewFromInt(1), decimal.NewFromInt(9))
	expected := decimal.RequireFromString("0.777777777777777777")
	assert.True(t, expected.Equal(result), "expected %s, got %s", expected, result)
}

func TestUserDebtValue(t *testing.T) {
	globalDebt := decimal.NewFromInt(600)
	shareBalance := decimal.NewFromInt(50)
	shareSupply := decimal.NewFromInt(100)

	result := UserDebtValue(globalDebt, shareBalance, shareSupply)
	assert.True(t, decimal.NewFromInt(300).Equal(result), "expected 300, got %s", result)
}

func TestRatio(t *testing.T) {
	tests := []struct {
		name            string
		collateralValue decimal.Decimal
		debtValue       decimal.Decimal
		expected        decimal.Decimal
	}{
		{
			name:            "normal case",
			collateralValue: decimal.NewFromInt(1000),
			debtValue:       decimal.NewFromInt(600),
			expected:        decimal.NewFromInt(1000).Div(decimal.NewFromInt(600)),
		},
		{
			name:            "zero debt",
			collateralValue: decimal.NewFromInt(1000),
			debtValue:       decimal.Zero,
			expected:        decimal.Zero,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Ratio(tt.collateralValue, tt.debtValue)
			assert.True(t, tt.expected.Equal(result), "expected %s, got %s", tt.expected, result)
		})
	}
}

func TestCheckSolvency(t *testing.T) {
	threshold := decimal.RequireFromString("1.5")

	tests := []struct {
		name              string
		collateralBalance decimal.Decimal
		collateralPrice   decimal.Decimal
		globalDebt        decimal.Decimal
		shareBalance      decimal.Decimal
		shareSupply       decimal.Decimal
		wantErr           bool
	}{
		{
			name:              "solvent at 1.667",
			collateralBalance: decimal.NewFromInt(1000),
			collateralPrice:   decimal.NewFromInt(1),
			globalDebt:        decimal.NewFromInt(600),
			shareBalance:      decimal.NewFromInt(100),
			shareSupply:       decimal.NewFromInt(100),
			wantErr:           false,
		},
		{
			name:              "insolvent at 1.43",
			collateralBalance: decimal.NewFromInt(1000),
			collateralPrice:   decimal.NewFromInt(1),
			globalDebt:        decimal.NewFromInt(700),
			shareBalance:      decimal.NewFromInt(100),
			shareSupply:       decimal.NewFromInt(100),
			wantErr:           true,
		},
		{
			name:              "exactly at threshold passes",
			collateralBalance: decimal.NewFromInt(900),
			collateralPrice:   decimal.NewFromInt(1),
			globalDebt:        decimal.NewFromInt(600),
			shareBalance:      decimal.NewFromInt(100),
			shareSupply:       decimal.NewFromInt(100),
			wantErr:           false,
		},
		{
			name:              "zero share supply exempt",
			collateralBalance: decimal.Zero,
			collateralPrice:   decimal.NewFromInt(1),
			globalDebt:        decimal.Zero,
			shareBalance:      decimal.Zero,
			shareSupply:       decimal.Zero,
			wantErr:           false,
		},
		{
			name:              "zero share balance exempt despite global debt",
			collateralBalance: decimal.Zero,
			collateralPrice:   decimal.NewFromInt(1),
			globalDebt:        decimal.NewFromInt(10000),
			shareBalance:      decimal.Zero,
			shareSupply:       decimal.NewFromInt(100),
			wantErr:           false,
		},
		{
			name:              "partial share holder",
			collateralBalance: decimal.NewFromInt(100),
			collateralPrice:   decimal.NewFromInt(2),
			globalDebt:        decimal.NewFromInt(1000),
			shareBalance:      decimal.NewFromInt(10),
			shareSupply:       decimal.NewFromInt(100),
			wantErr:           false, // 200 >= 100*1.5
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckSolvency(tt.collateralBalance, tt.collateralPrice, tt.globalDebt, tt.shareBalance, tt.shareSupply, threshold)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUndercollateralized)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
