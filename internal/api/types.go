package api

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type RegisterAssetRequest struct {
	Symbol     string `json:"symbol"`
	Underlying string `json:"underlying"`
}

type AssetDTO struct {
	Symbol     string `json:"symbol"`
	Underlying string `json:"underlying"`
	Token      string `json:"token"`
}

type RegisterAssetResponse struct {
	Asset AssetDTO `json:"asset"`
}

type AssetListResponse struct {
	Assets []AssetDTO `json:"assets"`
}

type PriceDTO struct {
	Symbol        string `json:"symbol"`
	UnitOfAccount string `json:"unit_of_account"`
	Price         string `json:"price"`
}

type AmountRequest struct {
	Amount string `json:"amount"`
}

type MintRequest struct {
	Symbol string `json:"symbol"`
	Amount string `json:"amount"`
}

type BurnRequest struct {
	Symbol string `json:"symbol"`
	Amount string `json:"amount"`
}

type BalanceDTO struct {
	Token   string `json:"token"`
	Amount  string `json:"amount"`
	Balance string `json:"balance"`
}

type GlobalDebtDTO struct {
	GlobalDebtValue string `json:"global_debt_value"`
	ShareSupply     string `json:"share_supply"`
	Threshold       string `json:"threshold"`
}

type UserSummaryDTO struct {
	Account         string `json:"account"`
	Collateral      string `json:"collateral"`
	CollateralPrice string `json:"collateral_price"`
	CollateralValue string `json:"collateral_value"`
	DebtShares      string `json:"debt_shares"`
	ShareSupply     string `json:"share_supply"`
	GlobalDebtValue string `json:"global_debt_value"`
	DebtValue       string `json:"debt_value"`
	Ratio           string `json:"ratio"`
}

type HistoryEntryDTO struct {
	ID        string            `json:"id"`
	At        int64             `json:"at"`
	Operation string            `json:"operation"`
	Fields    map[string]string `json:"fields"`
}

type HistoryResponse struct {
	Account string            `json:"account"`
	Entries []HistoryEntryDTO `json:"entries"`
}
