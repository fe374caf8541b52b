package token

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Vault holds pooled units of a single token. The pool engine keeps all
// staked collateral in one Vault while per-account entitlements live in its
// own ledger.
type Vault struct {
	token   ID
	balance decimal.Decimal
}

func NewVault(token ID) *Vault {
	return &Vault{token: token, balance: decimal.Zero}
}

func (v *Vault) Token() ID { return v.token }

func (v *Vault) Balance() decimal.Decimal { return v.balance }

// Put deposits a bucket. The bucket's token must match the vault's.
func (v *Vault) Put(b Bucket) error {
	if b.token != v.token {
		return fmt.Errorf("%w: vault holds %s, bucket carries %s", ErrTokenMismatch, v.token, b.token)
	}
	v.balance = v.balance.Add(b.amount)
	return nil
}

// Take withdraws amount units as a new bucket.
func (v *Vault) Take(amount decimal.Decimal) (Bucket, error) {
	if !amount.IsPositive() {
		return Bucket{}, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	if v.balance.LessThan(amount) {
		return Bucket{}, fmt.Errorf("%w: have %s, want %s", ErrInsufficientFunds, v.balance, amount)
	}
	v.balance = v.balance.Sub(amount)
	return Bucket{token: v.token, amount: amount}, nil
}
