package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/synthpool/synthpool-backend/internal/token"
)

// SyntheticAsset describes one registered synthetic token and its backing.
// Registered once, immutable thereafter.
type SyntheticAsset struct {
	// Symbol of the underlying asset, unique within the registry.
	Symbol string
	// Underlying is the oracle identifier the synthetic tracks.
	Underlying string
	// Token is the custody identity of the synthetic itself.
	Token token.ID
}

// Registry is the catalog of supported synthetic assets. Token identities are
// allocated through the custody ledger under the pool's mint authority.
type Registry struct {
	custody   token.Ledger
	authority token.MintAuthority

	bySymbol map[string]SyntheticAsset
	byToken  map[token.ID]SyntheticAsset
}

func NewRegistry(custody token.Ledger, authority token.MintAuthority) *Registry {
	return &Registry{
		custody:   custody,
		authority: authority,
		bySymbol:  make(map[string]SyntheticAsset),
		byToken:   make(map[token.ID]SyntheticAsset),
	}
}

// Register adds a new synthetic asset. There is no deregistration; symbol
// uniqueness holds for the registry's lifetime.
func (r *Registry) Register(ctx context.Context, symbol, underlying string) (token.ID, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return "", fmt.Errorf("registry: empty asset symbol")
	}
	if _, exists := r.bySymbol[symbol]; exists {
		return "", fmt.Errorf("%w: %s", ErrDuplicateAsset, symbol)
	}

	id, err := r.custody.NewToken(ctx, r.authority, "Synthetic "+symbol, "s"+symbol)
	if err != nil {
		return "", fmt.Errorf("allocating synthetic token for %s: %w", symbol, err)
	}

	asset := SyntheticAsset{Symbol: symbol, Underlying: underlying, Token: id}
	r.bySymbol[symbol] = asset
	r.byToken[id] = asset
	return id, nil
}

func (r *Registry) LookupBySymbol(symbol string) (SyntheticAsset, error) {
	asset, ok := r.bySymbol[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return SyntheticAsset{}, fmt.Errorf("%w: %s", ErrUnknownAsset, symbol)
	}
	return asset, nil
}

func (r *Registry) LookupByToken(id token.ID) (SyntheticAsset, error) {
	asset, ok := r.byToken[id]
	if !ok {
		return SyntheticAsset{}, fmt.Errorf("%w: token %s", ErrUnknownAsset, id)
	}
	return asset, nil
}

// CirculatingSupply delegates to the custody ledger's total-issued query.
func (r *Registry) CirculatingSupply(ctx context.Context, asset SyntheticAsset) (decimal.Decimal, error) {
	return r.custody.TotalIssued(ctx, asset.Token)
}

// All returns the registered assets in no particular order.
func (r *Registry) All() []SyntheticAsset {
	assets := make([]SyntheticAsset, 0, len(r.bySymbol))
	for _, a := range r.bySymbol {
		assets = append(assets, a)
	}
	return assets
}
