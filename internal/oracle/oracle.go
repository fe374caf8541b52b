package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// ErrPriceUnavailable indicates the gateway holds no price for the requested
// pair. Callers must abort the enclosing operation; a missing price is never
// substituted with a default or a stale value.
var ErrPriceUnavailable = errors.New("price unavailable")

// Gateway supplies current exchange rates. The pool always quotes against a
// single unit-of-account asset, but the interface leaves the quote side open
// the way the upstream feed does.
type Gateway interface {
	PriceOf(ctx context.Context, base, quote string) (decimal.Decimal, error)
}

// Static is an in-memory Gateway with operator-settable prices. It backs the
// host service and tests; production deployments swap in an adapter over a
// real feed.
type Static struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

func NewStatic() *Static {
	return &Static{prices: make(map[string]decimal.Decimal)}
}

// SetPrice records the current base/quote rate. Non-positive prices are
// rejected; a feed publishing those is broken, not quoting.
func (s *Static) SetPrice(base, quote string, price decimal.Decimal) error {
	if !price.IsPositive() {
		return fmt.Errorf("oracle: non-positive price %s for %s/%s", price, base, quote)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[pairKey(base, quote)] = price
	return nil
}

func (s *Static) PriceOf(_ context.Context, base, quote string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	price, ok := s.prices[pairKey(base, quote)]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %s/%s", ErrPriceUnavailable, base, quote)
	}
	return price, nil
}

func pairKey(base, quote string) string {
	return strings.ToUpper(base) + "/" + strings.ToUpper(quote)
}
