package ledger

import "github.com/shopspring/decimal"

// Account is a user's collateral account. Created lazily on first stake and
// never deleted; a zero-balance account is valid and inert.
type Account struct {
	Collateral decimal.Decimal
	DebtShares decimal.Decimal
}

func newAccount() *Account {
	return &Account{Collateral: decimal.Zero, DebtShares: decimal.Zero}
}

// snapshot returns a copy used as the rollback pre-image for atomic
// operations.
func (a *Account) snapshot() Account {
	return *a
}

func (a *Account) restore(s Account) {
	*a = s
}
