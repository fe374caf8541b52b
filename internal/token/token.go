// Package token is the custody collaborator: it owns fungible token
// identities, their issued supply, and per-holder balances. The pool engine
// never holds raw value directly; it moves Buckets obtained from this
// package and keeps pooled collateral in a Vault.
package token

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownToken      = errors.New("token ledger: unknown token")
	ErrBadAuthority      = errors.New("token ledger: mint authority not recognized")
	ErrTokenMismatch     = errors.New("token ledger: token mismatch")
	ErrInsufficientFunds = errors.New("token ledger: insufficient funds")
	ErrInvalidAmount     = errors.New("token ledger: amount must be positive")
)

// ID identifies a fungible token within the custody ledger.
type ID string

// Bucket is a transient handle on issued value. Buckets are created only by
// Mint, Withdraw, and Vault.Take, so holding one is proof the value exists.
type Bucket struct {
	token  ID
	amount decimal.Decimal
}

func (b Bucket) Token() ID               { return b.token }
func (b Bucket) Amount() decimal.Decimal { return b.amount }

// MintAuthority is the capability required for protocol-controlled mint and
// burn. It replaces ambient "admin badge" authority: the ledger issues
// exactly one at construction and every privileged call must present it.
type MintAuthority struct {
	key *authorityKey
}

type authorityKey struct{}

// Ledger is the external token/value custody contract consumed by the pool.
// Calls are synchronous and have no partial completion: they either return a
// usable result or fail without side effects.
type Ledger interface {
	// NewToken allocates a fresh token identity under the given authority.
	NewToken(ctx context.Context, auth MintAuthority, name, symbol string) (ID, error)
	// Mint issues amount units of the token and returns them as a Bucket.
	Mint(ctx context.Context, auth MintAuthority, id ID, amount decimal.Decimal) (Bucket, error)
	// Burn destroys the bucket's units, reducing issued supply.
	Burn(ctx context.Context, auth MintAuthority, b Bucket) error
	// TotalIssued reports the circulating supply (minted minus burned).
	TotalIssued(ctx context.Context, id ID) (decimal.Decimal, error)

	// Per-holder balance operations.
	Deposit(ctx context.Context, holder string, b Bucket) error
	Withdraw(ctx context.Context, holder string, id ID, amount decimal.Decimal) (Bucket, error)
	BalanceOf(ctx context.Context, holder string, id ID) (decimal.Decimal, error)
}
