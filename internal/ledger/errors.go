package ledger

import (
	"errors"

	"github.com/synthpool/synthpool-backend/internal/calc"
	"github.com/synthpool/synthpool-backend/internal/oracle"
)

var (
	ErrDuplicateAsset           = errors.New("synthetic pool: asset already registered")
	ErrUnknownAsset             = errors.New("synthetic pool: unknown asset")
	ErrAccountNotFound          = errors.New("synthetic pool: account not found")
	ErrInsufficientCollateral   = errors.New("synthetic pool: insufficient collateral")
	ErrInsufficientShareBalance = errors.New("synthetic pool: insufficient debt share balance")
	ErrInvalidAmount            = errors.New("synthetic pool: amount must be positive")

	// ErrInternal marks a programming-invariant violation, such as a burn
	// against zero global debt. It is surfaced loudly, never guarded around.
	ErrInternal = errors.New("synthetic pool: internal invariant violation")
)

// Re-exported collaborator failures so callers can match every operation
// outcome against one package.
var (
	ErrUndercollateralized = calc.ErrUndercollateralized
	ErrPriceUnavailable    = oracle.ErrPriceUnavailable
)
