package calc

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrUndercollateralized is returned when an account's collateral value would
// fall below threshold times its implied debt value.
var ErrUndercollateralized = errors.New("under collateralized")

// ShareScale is the fractional precision of debt-share arithmetic. Every
// pro-rata division truncates toward zero at this scale so that mint and burn
// cannot leak value in opposite directions.
const ShareScale = 18

// ProRata computes value * numerator / denominator truncated toward zero at
// ShareScale fractional digits.
func ProRata(value, numerator, denominator decimal.Decimal) decimal.Decimal {
	q, _ := value.Mul(numerator).QuoRem(denominator, ShareScale)
	return q
}

// UserDebtValue computes the debt value implied by a share balance:
// globalDebt * shareBalance / shareSupply.
func UserDebtValue(globalDebt, shareBalance, shareSupply decimal.Decimal) decimal.Decimal {
	return ProRata(globalDebt, shareBalance, shareSupply)
}

// Ratio calculates CR = collateral value / debt value. A zero debt value
// yields a zero ratio; callers that need the zero-debt exemption must apply
// it before dividing.
func Ratio(collateralValue, debtValue decimal.Decimal) decimal.Decimal {
	if debtValue.IsZero() {
		return decimal.Zero
	}
	return collateralValue.Div(debtValue)
}

// CheckSolvency verifies that an account's collateral covers its implied debt
// at the given threshold.
//
// A zero share supply or a zero share balance passes unconditionally: an
// account that never minted carries no debt and may move collateral freely.
// Otherwise the check fails with ErrUndercollateralized when
//
//	collateralBalance * collateralPrice < userDebtValue * threshold
//
// The comparison multiplies the threshold through instead of dividing out the
// ratio, so no rounding is introduced beyond the truncation inside
// UserDebtValue.
func CheckSolvency(collateralBalance, collateralPrice, globalDebt, shareBalance, shareSupply, threshold decimal.Decimal) error {
	if shareSupply.IsZero() || shareBalance.IsZero() {
		return nil
	}
	userDebt := UserDebtValue(globalDebt, shareBalance, shareSupply)
	if userDebt.IsZero() {
		return nil
	}
	collateralValue := collateralBalance.Mul(collateralPrice)
	if collateralValue.LessThan(userDebt.Mul(threshold)) {
		return ErrUndercollateralized
	}
	return nil
}
