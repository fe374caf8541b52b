package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/synthpool/synthpool-backend/internal/calc"
	"github.com/synthpool/synthpool-backend/internal/identity"
	"github.com/synthpool/synthpool-backend/internal/oracle"
	"github.com/synthpool/synthpool-backend/internal/token"
)

// LiquidationHook is the extension point for a future liquidation policy.
// It is notified when a solvency check rejects an operation on a position
// that was already below threshold before the operation, i.e. when the
// rejection merely blocks new actions on a pre-existing unsafe position.
// No liquidation is performed here.
type LiquidationHook interface {
	OnUndercollateralized(accountID identity.AccountID, collateralValue, debtValue decimal.Decimal)
}

// PoolConfig wires the pool engine's collaborators.
type PoolConfig struct {
	Oracle    oracle.Gateway
	Custody   token.Ledger
	Authority token.MintAuthority
	Identity  identity.Resolver

	// CollateralToken is the custody identity of the staking collateral.
	CollateralToken token.ID
	// CollateralSymbol is the oracle identifier of the collateral asset.
	CollateralSymbol string
	// UnitOfAccount is the asset all prices are quoted against.
	UnitOfAccount string
	// Threshold is the collateralization ratio every debtor must maintain.
	Threshold decimal.Decimal

	Logger *zap.SugaredLogger

	// Liquidation is optional; see LiquidationHook.
	Liquidation LiquidationHook
}

// Pool is the synthetic pool engine: participants stake collateral, mint
// synthetics against a shared debt pool, and burn them to retire debt.
//
// Every public operation is globally serialized under one mutex: it reads
// state, computes, mutates, verifies, and commits before any other operation
// can observe intermediate state. An aborted operation restores the exact
// pre-image.
type Pool struct {
	mu sync.Mutex

	oracle    oracle.Gateway
	custody   token.Ledger
	authority token.MintAuthority
	identity  identity.Resolver

	registry *Registry
	shares   *DebtShareLedger
	accounts map[identity.AccountID]*Account
	vault    *token.Vault

	collateralToken  token.ID
	collateralSymbol string
	unitOfAccount    string
	threshold        decimal.Decimal

	liquidation LiquidationHook
	log         *zap.SugaredLogger
}

func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.Oracle == nil {
		return nil, fmt.Errorf("pool: oracle is required")
	}
	if cfg.Custody == nil {
		return nil, fmt.Errorf("pool: custody ledger is required")
	}
	if cfg.Identity == nil {
		return nil, fmt.Errorf("pool: identity resolver is required")
	}
	if cfg.CollateralToken == "" {
		return nil, fmt.Errorf("pool: collateral token is required")
	}
	if cfg.CollateralSymbol == "" || cfg.UnitOfAccount == "" {
		return nil, fmt.Errorf("pool: collateral symbol and unit of account are required")
	}
	if !cfg.Threshold.IsPositive() {
		return nil, fmt.Errorf("pool: threshold must be positive, got %s", cfg.Threshold)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &Pool{
		oracle:           cfg.Oracle,
		custody:          cfg.Custody,
		authority:        cfg.Authority,
		identity:         cfg.Identity,
		registry:         NewRegistry(cfg.Custody, cfg.Authority),
		shares:           NewDebtShareLedger(),
		accounts:         make(map[identity.AccountID]*Account),
		vault:            token.NewVault(cfg.CollateralToken),
		collateralToken:  cfg.CollateralToken,
		collateralSymbol: cfg.CollateralSymbol,
		unitOfAccount:    cfg.UnitOfAccount,
		threshold:        cfg.Threshold,
		liquidation:      cfg.Liquidation,
		log:              logger,
	}, nil
}

// RegisterAsset adds a new synthetic asset to the protocol and returns the
// custody identity of its synthetic token.
func (p *Pool) RegisterAsset(ctx context.Context, symbol, underlying string) (token.ID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id, err := p.registry.Register(ctx, symbol, underlying)
	if err != nil {
		return "", err
	}
	p.log.Infow("synthetic asset registered", "symbol", symbol, "underlying", underlying, "token", id)
	return id, nil
}

// Stake deposits collateral into the caller's account, creating the account
// on first deposit. Staking only improves solvency, so no check runs.
func (p *Pool) Stake(ctx context.Context, cred identity.Credential, deposit token.Bucket) error {
	accountID, err := p.identity.Resolve(ctx, cred)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if deposit.Token() != p.collateralToken {
		return fmt.Errorf("%w: stake expects the collateral token", ErrUnknownAsset)
	}
	if !deposit.Amount().IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, deposit.Amount())
	}

	acct, ok := p.accounts[accountID]
	if !ok {
		acct = newAccount()
		p.accounts[accountID] = acct
	}

	if err := p.vault.Put(deposit); err != nil {
		return err
	}
	acct.Collateral = acct.Collateral.Add(deposit.Amount())

	p.log.Infow("collateral staked", "account", accountID, "amount", deposit.Amount(), "balance", acct.Collateral)
	return nil
}

// Unstake withdraws collateral. The solvency check runs against the
// post-withdrawal state; accounts with zero debt shares are exempt and may
// withdraw everything regardless of price availability.
func (p *Pool) Unstake(ctx context.Context, cred identity.Credential, amount decimal.Decimal) (token.Bucket, error) {
	accountID, err := p.identity.Resolve(ctx, cred)
	if err != nil {
		return token.Bucket{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	acct, ok := p.accounts[accountID]
	if !ok {
		return token.Bucket{}, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	if !amount.IsPositive() {
		return token.Bucket{}, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	if amount.GreaterThan(acct.Collateral) {
		return token.Bucket{}, fmt.Errorf("%w: have %s, want %s", ErrInsufficientCollateral, acct.Collateral, amount)
	}

	tentative := acct.Collateral.Sub(amount)

	// Zero-debt accounts skip the oracle entirely: a missing price must not
	// trap collateral that backs nothing.
	if acct.DebtShares.IsPositive() && p.shares.TotalSupply().IsPositive() {
		collateralPrice, err := p.priceOf(ctx, p.collateralSymbol)
		if err != nil {
			return token.Bucket{}, err
		}
		globalDebt, err := p.globalDebtValue(ctx)
		if err != nil {
			return token.Bucket{}, err
		}

		if err := calc.CheckSolvency(tentative, collateralPrice, globalDebt, acct.DebtShares, p.shares.TotalSupply(), p.threshold); err != nil {
			p.notifyIfAlreadyUnsafe(accountID, acct, collateralPrice, globalDebt)
			return token.Bucket{}, fmt.Errorf("unstake %s: %w", amount, err)
		}
	}

	bucket, err := p.vault.Take(amount)
	if err != nil {
		// The vault mirrors the sum of account balances; a shortfall here is
		// a broken invariant, not a user error.
		return token.Bucket{}, fmt.Errorf("%w: vault shortfall on unstake: %v", ErrInternal, err)
	}
	acct.Collateral = tentative

	p.log.Infow("collateral unstaked", "account", accountID, "amount", amount, "balance", acct.Collateral)
	return bucket, nil
}

// Mint issues synthetic tokens against the caller's collateral. Debt shares
// are minted first, then the synthetic tokens, so the recomputed global debt
// reflects the new supply; the solvency check then gates the whole operation.
// Any failure unwinds shares, tokens, and balances.
func (p *Pool) Mint(ctx context.Context, cred identity.Credential, amount decimal.Decimal, symbol string) (token.Bucket, error) {
	accountID, err := p.identity.Resolve(ctx, cred)
	if err != nil {
		return token.Bucket{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	acct, ok := p.accounts[accountID]
	if !ok {
		return token.Bucket{}, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	if !amount.IsPositive() {
		return token.Bucket{}, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	synth, err := p.registry.LookupBySymbol(symbol)
	if err != nil {
		return token.Bucket{}, err
	}

	debtBefore, err := p.globalDebtValue(ctx)
	if err != nil {
		return token.Bucket{}, err
	}
	assetPrice, err := p.priceOf(ctx, synth.Underlying)
	if err != nil {
		return token.Bucket{}, err
	}
	collateralPrice, err := p.priceOf(ctx, p.collateralSymbol)
	if err != nil {
		return token.Bucket{}, err
	}
	newDebt := assetPrice.Mul(amount)

	pre := acct.snapshot()
	preSupply := p.shares.TotalSupply()

	minted, err := p.shares.MintShares(debtBefore, newDebt, acct)
	if err != nil {
		return token.Bucket{}, err
	}

	bucket, err := p.custody.Mint(ctx, p.authority, synth.Token, amount)
	if err != nil {
		acct.restore(pre)
		p.shares.restore(preSupply)
		return token.Bucket{}, fmt.Errorf("minting %s %s: %w", amount, synth.Symbol, err)
	}

	// Prices cannot move inside the critical section, so the post-mint global
	// debt is exactly the pre-mint value plus the debt just created.
	debtAfter := debtBefore.Add(newDebt)
	if err := calc.CheckSolvency(acct.Collateral, collateralPrice, debtAfter, acct.DebtShares, p.shares.TotalSupply(), p.threshold); err != nil {
		if burnErr := p.custody.Burn(ctx, p.authority, bucket); burnErr != nil {
			return token.Bucket{}, fmt.Errorf("%w: unwinding rejected mint: %v", ErrInternal, burnErr)
		}
		acct.restore(pre)
		p.shares.restore(preSupply)
		p.notifyIfAlreadyUnsafe(accountID, acct, collateralPrice, debtBefore)
		return token.Bucket{}, fmt.Errorf("mint %s %s: %w", amount, synth.Symbol, err)
	}

	p.log.Infow("synthetic minted",
		"account", accountID,
		"symbol", synth.Symbol,
		"amount", amount,
		"debtValue", newDebt,
		"sharesMinted", minted,
		"shareSupply", p.shares.TotalSupply(),
	)
	return bucket, nil
}

// Burn redeems synthetic tokens, retiring the corresponding debt shares. The
// asset is identified by the bucket's token identity. Burning can only
// improve the caller's ratio, so no post-check runs.
func (p *Pool) Burn(ctx context.Context, cred identity.Credential, bucket token.Bucket) error {
	accountID, err := p.identity.Resolve(ctx, cred)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	acct, ok := p.accounts[accountID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	if !bucket.Amount().IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, bucket.Amount())
	}
	synth, err := p.registry.LookupByToken(bucket.Token())
	if err != nil {
		return err
	}

	globalDebt, err := p.globalDebtValue(ctx)
	if err != nil {
		return err
	}
	assetPrice, err := p.priceOf(ctx, synth.Underlying)
	if err != nil {
		return err
	}
	debtRemoved := assetPrice.Mul(bucket.Amount())

	pre := acct.snapshot()
	preSupply := p.shares.TotalSupply()

	burned, err := p.shares.BurnShares(globalDebt, debtRemoved, acct)
	if err != nil {
		return err
	}

	if err := p.custody.Burn(ctx, p.authority, bucket); err != nil {
		acct.restore(pre)
		p.shares.restore(preSupply)
		return fmt.Errorf("%w: burning %s %s: %v", ErrInternal, bucket.Amount(), synth.Symbol, err)
	}

	p.log.Infow("synthetic burned",
		"account", accountID,
		"symbol", synth.Symbol,
		"amount", bucket.Amount(),
		"debtValue", debtRemoved,
		"sharesBurned", burned,
		"shareSupply", p.shares.TotalSupply(),
	)
	return nil
}

// TotalGlobalDebtValue sums price times circulating supply over every
// registered asset, using live oracle prices.
func (p *Pool) TotalGlobalDebtValue(ctx context.Context) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.globalDebtValue(ctx)
}

// AssetPrice reports the unit-of-account price of the collateral asset or of
// a registered synthetic's underlying.
func (p *Pool) AssetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if strings.EqualFold(symbol, p.collateralSymbol) {
		return p.priceOf(ctx, p.collateralSymbol)
	}
	asset, err := p.registry.LookupBySymbol(symbol)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return p.priceOf(ctx, asset.Underlying)
}

// Summary is a read-only report of one account's position.
type Summary struct {
	Account         identity.AccountID
	Collateral      decimal.Decimal
	CollateralPrice decimal.Decimal
	CollateralValue decimal.Decimal
	DebtShares      decimal.Decimal
	ShareSupply     decimal.Decimal
	GlobalDebtValue decimal.Decimal
	DebtValue       decimal.Decimal
	// Ratio is collateral value over implied debt value; zero when the
	// account holds no debt.
	Ratio decimal.Decimal
}

// AccountSummary reports the caller's collateral and debt position.
func (p *Pool) AccountSummary(ctx context.Context, cred identity.Credential) (Summary, error) {
	accountID, err := p.identity.Resolve(ctx, cred)
	if err != nil {
		return Summary{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	acct, ok := p.accounts[accountID]
	if !ok {
		return Summary{}, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}

	collateralPrice, err := p.priceOf(ctx, p.collateralSymbol)
	if err != nil {
		return Summary{}, err
	}
	globalDebt, err := p.globalDebtValue(ctx)
	if err != nil {
		return Summary{}, err
	}

	supply := p.shares.TotalSupply()
	debtValue := decimal.Zero
	if acct.DebtShares.IsPositive() && supply.IsPositive() {
		debtValue = calc.UserDebtValue(globalDebt, acct.DebtShares, supply)
	}
	collateralValue := acct.Collateral.Mul(collateralPrice)

	return Summary{
		Account:         accountID,
		Collateral:      acct.Collateral,
		CollateralPrice: collateralPrice,
		CollateralValue: collateralValue,
		DebtShares:      acct.DebtShares,
		ShareSupply:     supply,
		GlobalDebtValue: globalDebt,
		DebtValue:       debtValue,
		Ratio:           calc.Ratio(collateralValue, debtValue),
	}, nil
}

// ShareSupply returns the current total debt-share supply.
func (p *Pool) ShareSupply() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shares.TotalSupply()
}

// Threshold returns the configured collateralization threshold.
func (p *Pool) Threshold() decimal.Decimal {
	return p.threshold
}

// CollateralToken returns the custody identity of the staking collateral.
func (p *Pool) CollateralToken() token.ID {
	return p.collateralToken
}

// Assets lists the registered synthetic assets.
func (p *Pool) Assets() []SyntheticAsset {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.registry.All()
}

// globalDebtValue computes the live global debt. Callers hold p.mu. Any
// missing price aborts the computation.
func (p *Pool) globalDebtValue(ctx context.Context) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, asset := range p.registry.All() {
		price, err := p.priceOf(ctx, asset.Underlying)
		if err != nil {
			return decimal.Decimal{}, err
		}
		supply, err := p.registry.CirculatingSupply(ctx, asset)
		if err != nil {
			return decimal.Decimal{}, err
		}
		total = total.Add(price.Mul(supply))
	}
	return total, nil
}

func (p *Pool) priceOf(ctx context.Context, base string) (decimal.Decimal, error) {
	price, err := p.oracle.PriceOf(ctx, base, p.unitOfAccount)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("price of %s/%s: %w", base, p.unitOfAccount, err)
	}
	return price, nil
}

// notifyIfAlreadyUnsafe fires the liquidation hook when the rejected
// operation hit a position that was under threshold before the operation
// even started. Callers hold p.mu and have already rolled back.
func (p *Pool) notifyIfAlreadyUnsafe(accountID identity.AccountID, acct *Account, collateralPrice, globalDebt decimal.Decimal) {
	if p.liquidation == nil {
		return
	}
	supply := p.shares.TotalSupply()
	if calc.CheckSolvency(acct.Collateral, collateralPrice, globalDebt, acct.DebtShares, supply, p.threshold) == nil {
		return
	}
	collateralValue := acct.Collateral.Mul(collateralPrice)
	debtValue := calc.UserDebtValue(globalDebt, acct.DebtShares, supply)
	p.log.Warnw("pre-existing under-collateralized position", "account", accountID, "collateralValue", collateralValue, "debtValue", debtValue)
	p.liquidation.OnUndercollateralized(accountID, collateralValue, debtValue)
}
