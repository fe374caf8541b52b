package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/synthpool/synthpool-backend/internal/config"
	"github.com/synthpool/synthpool-backend/internal/identity"
	"github.com/synthpool/synthpool-backend/internal/journal"
	"github.com/synthpool/synthpool-backend/internal/ledger"
	"github.com/synthpool/synthpool-backend/internal/metrics"
	"github.com/synthpool/synthpool-backend/internal/store"
	"github.com/synthpool/synthpool-backend/internal/token"
)

// CredentialHeader carries the caller's credential on every pool operation.
const CredentialHeader = "X-Account-Credential"

// FaucetFunc mints collateral into an account's custody balance. Wired only
// in dev environments.
type FaucetFunc func(ctx context.Context, account string, amount decimal.Decimal) error

type Handler struct {
	pool     *ledger.Pool
	custody  token.Ledger
	identity identity.Resolver
	cache    *store.Cache
	journal  *journal.Journal
	config   *config.Config
	logger   *zap.SugaredLogger
	metrics  *metrics.Metrics
	faucet   FaucetFunc
}

func NewHandler(
	pool *ledger.Pool,
	custody token.Ledger,
	resolver identity.Resolver,
	cache *store.Cache,
	jrnl *journal.Journal,
	cfg *config.Config,
	logger *zap.SugaredLogger,
	m *metrics.Metrics,
	faucet FaucetFunc,
) *Handler {
	return &Handler{
		pool:     pool,
		custody:  custody,
		identity: resolver,
		cache:    cache,
		journal:  jrnl,
		config:   cfg,
		logger:   logger,
		metrics:  m,
		faucet:   faucet,
	}
}

func (h *Handler) credential(r *http.Request) identity.Credential {
	return identity.Credential(strings.TrimSpace(r.Header.Get(CredentialHeader)))
}

// Asset endpoints

func (h *Handler) RegisterAsset(w http.ResponseWriter, r *http.Request) {
	var req RegisterAssetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Symbol) == "" {
		h.writeError(w, http.StatusBadRequest, "MISSING_PARAMETER", "symbol is required")
		return
	}
	underlying := strings.TrimSpace(req.Underlying)
	if underlying == "" {
		underlying = strings.ToUpper(strings.TrimSpace(req.Symbol))
	}

	id, err := h.pool.RegisterAsset(r.Context(), req.Symbol, underlying)
	if err != nil {
		h.writePoolError(w, r, "register", err)
		return
	}
	h.recordOp(r.Context(), "register", "ok")

	h.writeJSON(w, http.StatusCreated, RegisterAssetResponse{Asset: AssetDTO{
		Symbol:     strings.ToUpper(strings.TrimSpace(req.Symbol)),
		Underlying: underlying,
		Token:      string(id),
	}})
}

func (h *Handler) ListAssets(w http.ResponseWriter, r *http.Request) {
	assets := h.pool.Assets()
	dto := AssetListResponse{Assets: make([]AssetDTO, 0, len(assets))}
	for _, a := range assets {
		dto.Assets = append(dto.Assets, AssetDTO{Symbol: a.Symbol, Underlying: a.Underlying, Token: string(a.Token)})
	}
	h.writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) GetAssetPrice(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))

	var cached PriceDTO
	if h.cache != nil && h.cache.GetAssetPrice(r.Context(), symbol, &cached) == nil {
		h.writeJSON(w, http.StatusOK, cached)
		return
	}

	price, err := h.pool.AssetPrice(r.Context(), symbol)
	if err != nil {
		h.writePoolError(w, r, "price", err)
		return
	}

	dto := PriceDTO{Symbol: symbol, UnitOfAccount: h.config.Pool.UnitOfAccount, Price: price.String()}
	if h.cache != nil {
		_ = h.cache.SetAssetPrice(r.Context(), symbol, dto, h.config.Cache.TTL)
	}
	h.writeJSON(w, http.StatusOK, dto)
}

// Pool operation endpoints

func (h *Handler) Stake(w http.ResponseWriter, r *http.Request) {
	cred := h.credential(r)
	account, err := h.identity.Resolve(r.Context(), cred)
	if err != nil {
		h.writePoolError(w, r, "stake", err)
		return
	}
	amount, ok := h.decodeAmount(w, r)
	if !ok {
		return
	}

	bucket, err := h.custody.Withdraw(r.Context(), string(account), h.pool.CollateralToken(), amount)
	if err != nil {
		h.writePoolError(w, r, "stake", err)
		return
	}
	if err := h.pool.Stake(r.Context(), cred, bucket); err != nil {
		// Return the withdrawn collateral before reporting the failure.
		if depErr := h.custody.Deposit(r.Context(), string(account), bucket); depErr != nil {
			h.logger.Errorw("failed to return collateral after rejected stake", "account", account, "error", depErr)
		}
		h.writePoolError(w, r, "stake", err)
		return
	}
	h.commitSideEffects(r.Context(), "stake", string(account), map[string]string{"amount": amount.String()})

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "staked", "amount": amount.String()})
}

func (h *Handler) Unstake(w http.ResponseWriter, r *http.Request) {
	cred := h.credential(r)
	account, err := h.identity.Resolve(r.Context(), cred)
	if err != nil {
		h.writePoolError(w, r, "unstake", err)
		return
	}
	amount, ok := h.decodeAmount(w, r)
	if !ok {
		return
	}

	bucket, err := h.pool.Unstake(r.Context(), cred, amount)
	if err != nil {
		h.writePoolError(w, r, "unstake", err)
		return
	}
	if err := h.custody.Deposit(r.Context(), string(account), bucket); err != nil {
		h.writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	h.commitSideEffects(r.Context(), "unstake", string(account), map[string]string{"amount": amount.String()})

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "unstaked", "amount": amount.String()})
}

func (h *Handler) Mint(w http.ResponseWriter, r *http.Request) {
	cred := h.credential(r)
	account, err := h.identity.Resolve(r.Context(), cred)
	if err != nil {
		h.writePoolError(w, r, "mint", err)
		return
	}

	var req MintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON body")
		return
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_AMOUNT", "amount must be a decimal number")
		return
	}

	bucket, err := h.pool.Mint(r.Context(), cred, amount, req.Symbol)
	if err != nil {
		h.writePoolError(w, r, "mint", err)
		return
	}
	if err := h.custody.Deposit(r.Context(), string(account), bucket); err != nil {
		h.writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	h.commitSideEffects(r.Context(), "mint", string(account), map[string]string{
		"symbol": strings.ToUpper(strings.TrimSpace(req.Symbol)),
		"amount": amount.String(),
	})

	h.writeJSON(w, http.StatusOK, BalanceDTO{Token: string(bucket.Token()), Amount: bucket.Amount().String()})
}

func (h *Handler) Burn(w http.ResponseWriter, r *http.Request) {
	cred := h.credential(r)
	account, err := h.identity.Resolve(r.Context(), cred)
	if err != nil {
		h.writePoolError(w, r, "burn", err)
		return
	}

	var req BurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON body")
		return
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_AMOUNT", "amount must be a decimal number")
		return
	}

	asset, ok := h.lookupAsset(req.Symbol)
	if !ok {
		h.writeError(w, http.StatusNotFound, "UNKNOWN_ASSET", "no such synthetic asset: "+req.Symbol)
		return
	}

	bucket, err := h.custody.Withdraw(r.Context(), string(account), asset.Token, amount)
	if err != nil {
		h.writePoolError(w, r, "burn", err)
		return
	}
	if err := h.pool.Burn(r.Context(), cred, bucket); err != nil {
		if depErr := h.custody.Deposit(r.Context(), string(account), bucket); depErr != nil {
			h.logger.Errorw("failed to return synthetics after rejected burn", "account", account, "error", depErr)
		}
		h.writePoolError(w, r, "burn", err)
		return
	}
	h.commitSideEffects(r.Context(), "burn", string(account), map[string]string{
		"symbol": asset.Symbol,
		"amount": amount.String(),
	})

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "burned", "symbol": asset.Symbol, "amount": amount.String()})
}

// Reporting endpoints

func (h *Handler) GetGlobalDebt(w http.ResponseWriter, r *http.Request) {
	var cached GlobalDebtDTO
	if h.cache != nil && h.cache.GetGlobalDebt(r.Context(), &cached) == nil {
		h.writeJSON(w, http.StatusOK, cached)
		return
	}

	debt, err := h.pool.TotalGlobalDebtValue(r.Context())
	if err != nil {
		h.writePoolError(w, r, "debt", err)
		return
	}

	dto := GlobalDebtDTO{
		GlobalDebtValue: debt.String(),
		ShareSupply:     h.pool.ShareSupply().String(),
		Threshold:       h.pool.Threshold().String(),
	}
	if h.cache != nil {
		_ = h.cache.SetGlobalDebt(r.Context(), dto, h.config.Cache.TTL)
	}
	h.writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) GetUserSummary(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")

	var cached UserSummaryDTO
	if h.cache != nil && h.cache.GetUserSummary(r.Context(), account, &cached) == nil {
		h.writeJSON(w, http.StatusOK, cached)
		return
	}

	summary, err := h.pool.AccountSummary(r.Context(), identity.Credential(account))
	if err != nil {
		h.writePoolError(w, r, "summary", err)
		return
	}

	dto := UserSummaryDTO{
		Account:         string(summary.Account),
		Collateral:      summary.Collateral.String(),
		CollateralPrice: summary.CollateralPrice.String(),
		CollateralValue: summary.CollateralValue.String(),
		DebtShares:      summary.DebtShares.String(),
		ShareSupply:     summary.ShareSupply.String(),
		GlobalDebtValue: summary.GlobalDebtValue.String(),
		DebtValue:       summary.DebtValue.String(),
		Ratio:           summary.Ratio.String(),
	}
	if h.cache != nil {
		_ = h.cache.SetUserSummary(r.Context(), account, dto, h.config.Cache.TTL)
	}
	h.writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) GetUserBalances(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	ctx := r.Context()

	balances := make([]BalanceDTO, 0, len(h.pool.Assets())+1)

	collateral, err := h.custody.BalanceOf(ctx, account, h.pool.CollateralToken())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	balances = append(balances, BalanceDTO{Token: string(h.pool.CollateralToken()), Balance: collateral.String()})

	for _, asset := range h.pool.Assets() {
		balance, err := h.custody.BalanceOf(ctx, account, asset.Token)
		if err != nil {
			h.writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
			return
		}
		balances = append(balances, BalanceDTO{Token: string(asset.Token), Balance: balance.String()})
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"account": account, "balances": balances})
}

func (h *Handler) GetUserHistory(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		h.writeError(w, http.StatusServiceUnavailable, "HISTORY_UNAVAILABLE", "operation journal is not configured")
		return
	}
	account := chi.URLParam(r, "account")

	entries, err := h.journal.AccountHistory(r.Context(), account, 100)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}

	dto := HistoryResponse{Account: account, Entries: make([]HistoryEntryDTO, 0, len(entries))}
	for _, e := range entries {
		dto.Entries = append(dto.Entries, HistoryEntryDTO{
			ID:        e.ID.String(),
			At:        e.At.Unix(),
			Operation: e.Operation,
			Fields:    e.Fields,
		})
	}
	h.writeJSON(w, http.StatusOK, dto)
}

// Faucet mints collateral to the caller's custody balance. Dev only.
func (h *Handler) Faucet(w http.ResponseWriter, r *http.Request) {
	cred := h.credential(r)
	account, err := h.identity.Resolve(r.Context(), cred)
	if err != nil {
		h.writePoolError(w, r, "faucet", err)
		return
	}
	amount, ok := h.decodeAmount(w, r)
	if !ok {
		return
	}

	if err := h.faucet(r.Context(), string(account), amount); err != nil {
		h.writePoolError(w, r, "faucet", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "funded", "amount": amount.String()})
}

// Health and ops endpoints

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			h.writeError(w, http.StatusServiceUnavailable, "CACHE_UNAVAILABLE", err.Error())
			return
		}
	}
	if h.journal != nil {
		if err := h.journal.Ping(r.Context()); err != nil {
			h.writeError(w, http.StatusServiceUnavailable, "JOURNAL_UNAVAILABLE", err.Error())
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("READY"))
}

// Utility methods

func (h *Handler) decodeAmount(w http.ResponseWriter, r *http.Request) (decimal.Decimal, bool) {
	var req AmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON body")
		return decimal.Decimal{}, false
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_AMOUNT", "amount must be a decimal number")
		return decimal.Decimal{}, false
	}
	return amount, true
}

func (h *Handler) lookupAsset(symbol string) (ledger.SyntheticAsset, bool) {
	want := strings.ToUpper(strings.TrimSpace(symbol))
	for _, asset := range h.pool.Assets() {
		if asset.Symbol == want {
			return asset, true
		}
	}
	return ledger.SyntheticAsset{}, false
}

// commitSideEffects runs the post-commit bookkeeping shared by all mutating
// operations: journal append, cache invalidation, metrics.
func (h *Handler) commitSideEffects(ctx context.Context, op, account string, fields map[string]string) {
	if h.journal != nil {
		h.journal.Record(ctx, journal.NewEntry(op, account, fields))
	}
	if h.cache != nil {
		_ = h.cache.InvalidateUserSummary(ctx, account)
	}
	h.recordOp(ctx, op, "ok")
}

func (h *Handler) recordOp(ctx context.Context, op, outcome string) {
	if h.metrics != nil {
		h.metrics.RecordPoolOperation(ctx, op, outcome)
	}
}

// writePoolError maps domain errors onto HTTP statuses and records the
// operation outcome.
func (h *Handler) writePoolError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := mapError(err)
	h.recordOp(r.Context(), op, code)
	if errors.Is(err, ledger.ErrUndercollateralized) && h.metrics != nil {
		h.metrics.RecordSolvencyRejection(r.Context(), op)
	}
	h.writeError(w, status, code, err.Error())
}

func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, ledger.ErrDuplicateAsset):
		return http.StatusConflict, "DUPLICATE_ASSET"
	case errors.Is(err, ledger.ErrUnknownAsset), errors.Is(err, token.ErrUnknownToken):
		return http.StatusNotFound, "UNKNOWN_ASSET"
	case errors.Is(err, ledger.ErrAccountNotFound):
		return http.StatusNotFound, "ACCOUNT_NOT_FOUND"
	case errors.Is(err, identity.ErrUnknownCaller):
		return http.StatusUnauthorized, "UNKNOWN_CALLER"
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, token.ErrInvalidAmount):
		return http.StatusBadRequest, "INVALID_AMOUNT"
	case errors.Is(err, ledger.ErrUndercollateralized):
		return http.StatusUnprocessableEntity, "UNDER_COLLATERALIZED"
	case errors.Is(err, ledger.ErrInsufficientCollateral):
		return http.StatusUnprocessableEntity, "INSUFFICIENT_COLLATERAL"
	case errors.Is(err, ledger.ErrInsufficientShareBalance):
		return http.StatusUnprocessableEntity, "INSUFFICIENT_SHARES"
	case errors.Is(err, token.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS"
	case errors.Is(err, ledger.ErrPriceUnavailable):
		return http.StatusServiceUnavailable, "PRICE_UNAVAILABLE"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.logger.Errorw("API error", "code", code, "message", message, "status", status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := ErrorResponse{
		Code:    code,
		Message: message,
	}
	json.NewEncoder(w).Encode(err)
}
