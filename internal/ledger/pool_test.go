package ledger

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synthpool/synthpool-backend/internal/identity"
	"github.com/synthpool/synthpool-backend/internal/oracle"
	"github.com/synthpool/synthpool-backend/internal/token"
)

type poolFixture struct {
	pool       *Pool
	custody    *token.Memory
	auth       token.MintAuthority
	gateway    *oracle.Static
	collateral token.ID
}

func newPoolFixture(t *testing.T, threshold string) *poolFixture {
	t.Helper()
	ctx := context.Background()

	custody, auth := token.NewMemory()
	collateral, err := custody.NewToken(ctx, auth, "Collateral", "SNX")
	require.NoError(t, err)

	gw := oracle.NewStatic()
	require.NoError(t, gw.SetPrice("SNX", "USD", dec("1.0")))

	pool, err := NewPool(PoolConfig{
		Oracle:           gw,
		Custody:          custody,
		Authority:        auth,
		Identity:         identity.Passthrough{},
		CollateralToken:  collateral,
		CollateralSymbol: "SNX",
		UnitOfAccount:    "USD",
		Threshold:        dec(threshold),
	})
	require.NoError(t, err)

	return &poolFixture{pool: pool, custody: custody, auth: auth, gateway: gw, collateral: collateral}
}

func (f *poolFixture) stake(t *testing.T, cred identity.Credential, amount string) {
	t.Helper()
	ctx := context.Background()
	bucket, err := f.custody.Mint(ctx, f.auth, f.collateral, dec(amount))
	require.NoError(t, err)
	require.NoError(t, f.pool.Stake(ctx, cred, bucket))
}

// assertInvariant checks that the global share supply equals the sum of all
// account balances.
func (f *poolFixture) assertInvariant(t *testing.T) {
	t.Helper()
	sum := decimal.Zero
	for _, acct := range f.pool.accounts {
		sum = sum.Add(acct.DebtShares)
	}
	assert.True(t, sum.Equal(f.pool.shares.TotalSupply()),
		"share supply %s != account sum %s", f.pool.shares.TotalSupply(), sum)
}

func TestStakeCreatesAccount(t *testing.T) {
	f := newPoolFixture(t, "1.5")
	ctx := context.Background()

	f.stake(t, "alice", "1000")

	summary, err := f.pool.AccountSummary(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, dec("1000").Equal(summary.Collateral))
	assert.True(t, summary.DebtShares.IsZero())
}

func TestStakeRejectsWrongToken(t *testing.T) {
	f := newPoolFixture(t, "1.5")
	ctx := context.Background()

	other, err := f.custody.NewToken(ctx, f.auth, "Other", "OTH")
	require.NoError(t, err)
	bucket, err := f.custody.Mint(ctx, f.auth, other, dec("10"))
	require.NoError(t, err)

	assert.ErrorIs(t, f.pool.Stake(ctx, "alice", bucket), ErrUnknownAsset)
}

func TestUnstakeUnknownAccount(t *testing.T) {
	f := newPoolFixture(t, "1.5")

	_, err := f.pool.Unstake(context.Background(), "nobody", dec("1"))
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestUnstakeInsufficientCollateral(t *testing.T) {
	f := newPoolFixture(t, "1.5")
	ctx := context.Background()

	f.stake(t, "alice", "100")

	_, err := f.pool.Unstake(ctx, "alice", dec("101"))
	assert.ErrorIs(t, err, ErrInsufficientCollateral)

	summary, err := f.pool.AccountSummary(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, dec("100").Equal(summary.Collateral))
}

func TestZeroDebtAccountWithdrawsWithoutPrices(t *testing.T) {
	// An account that never minted can withdraw everything even when no
	// price is available at all.
	ctx := context.Background()
	custody, auth := token.NewMemory()
	collateral, err := custody.NewToken(ctx, auth, "Collateral", "SNX")
	require.NoError(t, err)

	pool, err := NewPool(PoolConfig{
		Oracle:           oracle.NewStatic(), // no prices set
		Custody:          custody,
		Authority:        auth,
		Identity:         identity.Passthrough{},
		CollateralToken:  collateral,
		CollateralSymbol: "SNX",
		UnitOfAccount:    "USD",
		Threshold:        dec("1.5"),
	})
	require.NoError(t, err)

	bucket, err := custody.Mint(ctx, auth, collateral, dec("500"))
	require.NoError(t, err)
	require.NoError(t, pool.Stake(ctx, "alice", bucket))

	withdrawn, err := pool.Unstake(ctx, "alice", dec("500"))
	require.NoError(t, err)
	assert.True(t, dec("500").Equal(withdrawn.Amount()))
}

func TestMintScenario(t *testing.T) {
	// Threshold 1.5; stake 1000 of collateral at 1.0; mint 300 synthetic of
	// an underlying priced 2.0 (debt value 600): ratio 1000/600 = 1.667,
	// passes. A further mint pushing debt value to 700 gives 1.43 and must
	// fail, leaving state exactly as after the first mint.
	f := newPoolFixture(t, "1.5")
	ctx := context.Background()

	require.NoError(t, f.gateway.SetPrice("TSLA", "USD", dec("2.0")))
	synthToken, err := f.pool.RegisterAsset(ctx, "TSLA", "TSLA")
	require.NoError(t, err)

	f.stake(t, "alice", "1000")

	bucket, err := f.pool.Mint(ctx, "alice", dec("300"), "TSLA")
	require.NoError(t, err)
	assert.Equal(t, synthToken, bucket.Token())
	assert.True(t, dec("300").Equal(bucket.Amount()))

	// Bootstrap mint issues the fixed nominal share amount.
	assert.True(t, BootstrapShares.Equal(f.pool.ShareSupply()))

	debt, err := f.pool.TotalGlobalDebtValue(ctx)
	require.NoError(t, err)
	assert.True(t, dec("600").Equal(debt))

	// Second mint of 50 raises debt value to 700: rejected.
	_, err = f.pool.Mint(ctx, "alice", dec("50"), "TSLA")
	assert.ErrorIs(t, err, ErrUndercollateralized)

	// State unchanged from the prior successful mint.
	summary, err := f.pool.AccountSummary(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, dec("1000").Equal(summary.Collateral))
	assert.True(t, BootstrapShares.Equal(summary.DebtShares))
	assert.True(t, dec("600").Equal(summary.GlobalDebtValue))

	issued, err := f.custody.TotalIssued(ctx, synthToken)
	require.NoError(t, err)
	assert.True(t, dec("300").Equal(issued))

	f.assertInvariant(t)
}

func TestMintUnknownAccount(t *testing.T) {
	f := newPoolFixture(t, "1.5")
	ctx := context.Background()

	require.NoError(t, f.gateway.SetPrice("TSLA", "USD", dec("2.0")))
	_, err := f.pool.RegisterAsset(ctx, "TSLA", "TSLA")
	require.NoError(t, err)

	_, err = f.pool.Mint(ctx, "ghost", dec("1"), "TSLA")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestMintUnknownAsset(t *testing.T) {
	f := newPoolFixture(t, "1.5")
	ctx := context.Background()

	f.stake(t, "alice", "1000")

	_, err := f.pool.Mint(ctx, "alice", dec("1"), "MISSING")
	assert.ErrorIs(t, err, ErrUnknownAsset)
}

func TestMintMissingPriceAborts(t *testing.T) {
	f := newPoolFixture(t, "1.5")
	ctx := context.Background()

	// Registered, but the oracle has no FOO quote.
	_, err := f.pool.RegisterAsset(ctx, "FOO", "FOO")
	require.NoError(t, err)

	f.stake(t, "alice", "1000")

	_, err = f.pool.Mint(ctx, "alice", dec("10"), "FOO")
	assert.ErrorIs(t, err, ErrPriceUnavailable)

	assert.True(t, f.pool.ShareSupply().IsZero())
	f.assertInvariant(t)
}

func TestProportionalSecondMinter(t *testing.T) {
	f := newPoolFixture(t, "1.5")
	ctx := context.Background()

	require.NoError(t, f.gateway.SetPrice("TSLA", "USD", dec("2.0")))
	_, err := f.pool.RegisterAsset(ctx, "TSLA", "TSLA")
	require.NoError(t, err)

	f.stake(t, "alice", "10000")
	f.stake(t, "bob", "10000")

	_, err = f.pool.Mint(ctx, "alice", dec("300"), "TSLA")
	require.NoError(t, err)
	aliceShares := f.pool.accounts["alice"].DebtShares

	// Bob mints the same debt value (600 on a 600 pool): equal shares.
	_, err = f.pool.Mint(ctx, "bob", dec("300"), "TSLA")
	require.NoError(t, err)
	firstBob := f.pool.accounts["bob"].DebtShares
	assert.True(t, aliceShares.Equal(firstBob), "alice %s, bob %s", aliceShares, firstBob)

	// A second identical mint sees a larger pool and yields fewer shares.
	_, err = f.pool.Mint(ctx, "bob", dec("300"), "TSLA")
	require.NoError(t, err)
	secondBob := f.pool.accounts["bob"].DebtShares.Sub(firstBob)
	assert.True(t, secondBob.LessThan(firstBob), "second %s should be < first %s", secondBob, firstBob)

	f.assertInvariant(t)
}

func TestBurnReturnsSharesToPreMintBalance(t *testing.T) {
	f := newPoolFixture(t, "1.5")
	ctx := context.Background()

	require.NoError(t, f.gateway.SetPrice("TSLA", "USD", dec("2.0")))
	synthToken, err := f.pool.RegisterAsset(ctx, "TSLA", "TSLA")
	require.NoError(t, err)

	f.stake(t, "alice", "1000")

	bucket, err := f.pool.Mint(ctx, "alice", dec("300"), "TSLA")
	require.NoError(t, err)

	require.NoError(t, f.pool.Burn(ctx, "alice", bucket))

	summary, err := f.pool.AccountSummary(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, summary.DebtShares.IsZero(), "residual shares %s", summary.DebtShares)
	assert.True(t, f.pool.ShareSupply().IsZero())

	issued, err := f.custody.TotalIssued(ctx, synthToken)
	require.NoError(t, err)
	assert.True(t, issued.IsZero())

	// Debt retired: all collateral is withdrawable again.
	withdrawn, err := f.pool.Unstake(ctx, "alice", dec("1000"))
	require.NoError(t, err)
	assert.True(t, dec("1000").Equal(withdrawn.Amount()))

	f.assertInvariant(t)
}

func TestBurnInsufficientShareBalance(t *testing.T) {
	f := newPoolFixture(t, "1.5")
	ctx := context.Background()

	require.NoError(t, f.gateway.SetPrice("TSLA", "USD", dec("2.0")))
	_, err := f.pool.RegisterAsset(ctx, "TSLA", "TSLA")
	require.NoError(t, err)

	f.stake(t, "alice", "10000")
	f.stake(t, "bob", "10000")

	aliceBucket, err := f.pool.Mint(ctx, "alice", dec("300"), "TSLA")
	require.NoError(t, err)
	_, err = f.pool.Mint(ctx, "bob", dec("30"), "TSLA")
	require.NoError(t, err)

	// Bob holds a tenth of alice's shares but presents her full bucket.
	err = f.pool.Burn(ctx, "bob", aliceBucket)
	assert.ErrorIs(t, err, ErrInsufficientShareBalance)

	f.assertInvariant(t)
}

func TestUnstakeSolvencyGate(t *testing.T) {
	f := newPoolFixture(t, "1.5")
	ctx := context.Background()

	require.NoError(t, f.gateway.SetPrice("TSLA", "USD", dec("2.0")))
	_, err := f.pool.RegisterAsset(ctx, "TSLA", "TSLA")
	require.NoError(t, err)

	f.stake(t, "alice", "1000")
	_, err = f.pool.Mint(ctx, "alice", dec("300"), "TSLA")
	require.NoError(t, err)

	// Debt value 600 at threshold 1.5 requires 900 of collateral value;
	// withdrawing 200 leaves only 800.
	_, err = f.pool.Unstake(ctx, "alice", dec("200"))
	assert.ErrorIs(t, err, ErrUndercollateralized)

	summary, err := f.pool.AccountSummary(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, dec("1000").Equal(summary.Collateral))

	// Withdrawing 100 leaves exactly 900: allowed.
	withdrawn, err := f.pool.Unstake(ctx, "alice", dec("100"))
	require.NoError(t, err)
	assert.True(t, dec("100").Equal(withdrawn.Amount()))

	f.assertInvariant(t)
}

func TestAccountSummary(t *testing.T) {
	f := newPoolFixture(t, "1.5")
	ctx := context.Background()

	require.NoError(t, f.gateway.SetPrice("TSLA", "USD", dec("2.0")))
	_, err := f.pool.RegisterAsset(ctx, "TSLA", "TSLA")
	require.NoError(t, err)

	f.stake(t, "alice", "1000")
	_, err = f.pool.Mint(ctx, "alice", dec("300"), "TSLA")
	require.NoError(t, err)

	summary, err := f.pool.AccountSummary(ctx, "alice")
	require.NoError(t, err)

	assert.Equal(t, identity.AccountID("alice"), summary.Account)
	assert.True(t, dec("1000").Equal(summary.CollateralValue))
	assert.True(t, dec("600").Equal(summary.DebtValue))
	assert.True(t, BootstrapShares.Equal(summary.ShareSupply))

	expectedRatio := dec("1000").Div(dec("600"))
	assert.True(t, expectedRatio.Equal(summary.Ratio), "ratio %s", summary.Ratio)
}

func TestAssetPrice(t *testing.T) {
	f := newPoolFixture(t, "1.5")
	ctx := context.Background()

	require.NoError(t, f.gateway.SetPrice("TSLA", "USD", dec("2.0")))
	_, err := f.pool.RegisterAsset(ctx, "TSLA", "TSLA")
	require.NoError(t, err)

	price, err := f.pool.AssetPrice(ctx, "SNX")
	require.NoError(t, err)
	assert.True(t, dec("1.0").Equal(price))

	price, err = f.pool.AssetPrice(ctx, "TSLA")
	require.NoError(t, err)
	assert.True(t, dec("2.0").Equal(price))

	_, err = f.pool.AssetPrice(ctx, "MISSING")
	assert.ErrorIs(t, err, ErrUnknownAsset)
}

type recordingHook struct {
	accounts []identity.AccountID
}

func (h *recordingHook) OnUndercollateralized(id identity.AccountID, _, _ decimal.Decimal) {
	h.accounts = append(h.accounts, id)
}

func TestLiquidationHookFiresOnPreExistingUnsafePosition(t *testing.T) {
	ctx := context.Background()
	custody, auth := token.NewMemory()
	collateral, err := custody.NewToken(ctx, auth, "Collateral", "SNX")
	require.NoError(t, err)

	gw := oracle.NewStatic()
	require.NoError(t, gw.SetPrice("SNX", "USD", dec("1.0")))
	require.NoError(t, gw.SetPrice("TSLA", "USD", dec("2.0")))

	hook := &recordingHook{}
	pool, err := NewPool(PoolConfig{
		Oracle:           gw,
		Custody:          custody,
		Authority:        auth,
		Identity:         identity.Passthrough{},
		CollateralToken:  collateral,
		CollateralSymbol: "SNX",
		UnitOfAccount:    "USD",
		Threshold:        dec("1.5"),
		Liquidation:      hook,
	})
	require.NoError(t, err)

	bucket, err := custody.Mint(ctx, auth, collateral, dec("1000"))
	require.NoError(t, err)
	require.NoError(t, pool.Stake(ctx, "alice", bucket))
	_, err = pool.RegisterAsset(ctx, "TSLA", "TSLA")
	require.NoError(t, err)
	_, err = pool.Mint(ctx, "alice", dec("300"), "TSLA")
	require.NoError(t, err)

	// Collateral price halves: the existing position is now under threshold
	// before any new operation runs.
	require.NoError(t, gw.SetPrice("SNX", "USD", dec("0.5")))

	_, err = pool.Unstake(ctx, "alice", dec("1"))
	assert.ErrorIs(t, err, ErrUndercollateralized)
	assert.Equal(t, []identity.AccountID{"alice"}, hook.accounts)
}
