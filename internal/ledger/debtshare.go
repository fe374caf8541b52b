package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/synthpool/synthpool-backend/internal/calc"
)

// BootstrapShares is the fixed share amount issued by the first-ever mint
// against a zero total share supply. The value is arbitrary: it only fixes
// the initial share-to-value exchange rate, after which the ratio is driven
// entirely by actual debt growth.
var BootstrapShares = decimal.NewFromInt(100)

// DebtShareLedger is the global proportional-ownership accounting over all
// debt shares. Shares are a normalized, dimensionless claim on systemic debt;
// their value is global debt value / total share supply.
//
// The ledger holds the invariant that the total supply always equals the sum
// of every account's share balance: supply and account balances change only
// together, inside MintShares and BurnShares.
type DebtShareLedger struct {
	totalSupply decimal.Decimal
}

func NewDebtShareLedger() *DebtShareLedger {
	return &DebtShareLedger{totalSupply: decimal.Zero}
}

func (l *DebtShareLedger) TotalSupply() decimal.Decimal {
	return l.totalSupply
}

// MintShares issues shares for newDebtValue of freshly created debt and
// credits them to acct.
//
// Bootstrap: against a zero supply it issues BootstrapShares regardless of
// value. Otherwise shares = newDebtValue * supply / globalDebtBefore, which
// dilutes supply exactly in proportion to the value added: existing holders'
// share value is preserved, only their ownership fraction shrinks.
func (l *DebtShareLedger) MintShares(globalDebtBefore, newDebtValue decimal.Decimal, acct *Account) (decimal.Decimal, error) {
	if newDebtValue.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%w: negative debt value %s", ErrInternal, newDebtValue)
	}

	var minted decimal.Decimal
	if l.totalSupply.IsZero() {
		minted = BootstrapShares
	} else {
		if globalDebtBefore.IsZero() {
			// Nonzero supply with zero debt value means every tracked asset
			// prices at zero; pro-rata issuance is undefined.
			return decimal.Decimal{}, fmt.Errorf("%w: mint against zero global debt with nonzero share supply", ErrInternal)
		}
		minted = calc.ProRata(newDebtValue, l.totalSupply, globalDebtBefore)
	}

	l.totalSupply = l.totalSupply.Add(minted)
	acct.DebtShares = acct.DebtShares.Add(minted)
	return minted, nil
}

// BurnShares retires the shares corresponding to debtValueRemoved and debits
// them from acct: burned = supply * debtValueRemoved / globalDebtBefore.
//
// A zero globalDebtBefore cannot occur here — burning requires previously
// minted debt — so it fails loudly as an internal error instead of being
// silently guarded.
func (l *DebtShareLedger) BurnShares(globalDebtBefore, debtValueRemoved decimal.Decimal, acct *Account) (decimal.Decimal, error) {
	if globalDebtBefore.IsZero() {
		return decimal.Decimal{}, fmt.Errorf("%w: burn against zero global debt", ErrInternal)
	}
	if debtValueRemoved.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%w: negative debt value %s", ErrInternal, debtValueRemoved)
	}

	burned := calc.ProRata(l.totalSupply, debtValueRemoved, globalDebtBefore)
	if acct.DebtShares.LessThan(burned) {
		return decimal.Decimal{}, fmt.Errorf("%w: have %s, need %s", ErrInsufficientShareBalance, acct.DebtShares, burned)
	}

	l.totalSupply = l.totalSupply.Sub(burned)
	acct.DebtShares = acct.DebtShares.Sub(burned)
	return burned, nil
}

// restore resets the total supply to a previously captured value during
// operation rollback.
func (l *DebtShareLedger) restore(supply decimal.Decimal) {
	l.totalSupply = supply
}
