package market

// RepayMax is the wire literal the repay family accepts to settle the full
// outstanding debt.
const RepayMax = "max"

// RateModel is a pool's jump rate configuration as 1e18 mantissa strings.
type RateModel struct {
	BaseRatePerBlock       string `json:"baseRatePerBlock"`
	MultiplierPerBlock     string `json:"multiplierPerBlock"`
	JumpMultiplierPerBlock string `json:"jumpMultiplierPerBlock"`
	Kink                   string `json:"kink"`
}

// Pauses reports the per-action halt switches of a pool.
type Pauses struct {
	Mint     bool `json:"mint"`
	Borrow   bool `json:"borrow"`
	Transfer bool `json:"transfer"`
	Seize    bool `json:"seize"`
}

// Market is the stored pool record. An absent SupplyCap or BorrowCap means
// unlimited.
type Market struct {
	Symbol           string    `json:"symbol"`
	RegistryID       string    `json:"registryId"`
	TotalCash        string    `json:"totalCash"`
	TotalBorrows     string    `json:"totalBorrows"`
	TotalReserves    string    `json:"totalReserves"`
	TotalSupply      string    `json:"totalSupply"`
	BorrowIndex      string    `json:"borrowIndex"`
	AccrualBlock     uint64    `json:"accrualBlock"`
	ExchangeRate     string    `json:"exchangeRate"`
	CollateralFactor string    `json:"collateralFactor"`
	ReserveFactor    string    `json:"reserveFactor"`
	SupplyCap        string    `json:"supplyCap,omitempty"`
	BorrowCap        string    `json:"borrowCap,omitempty"`
	RateModel        RateModel `json:"rateModel"`
	Paused           Pauses    `json:"paused"`
	Deprecated       bool      `json:"deprecated,omitempty"`
}

// Rates is a pool's current per-block interest picture.
type Rates struct {
	Symbol             string `json:"symbol"`
	Utilization        string `json:"utilization"`
	BorrowRatePerBlock string `json:"borrowRatePerBlock"`
	SupplyRatePerBlock string `json:"supplyRatePerBlock"`
}

// Token is the registered metadata of an underlying token.
type Token struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals uint8  `json:"decimals"`
}

// Balance is an account's underlying token balance.
type Balance struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
	Amount  string `json:"amount"`
}

// AccountSnapshot is the account's position in one pool at the stored
// exchange rate.
type AccountSnapshot struct {
	Symbol        string `json:"symbol"`
	ClaimTokens   string `json:"claimTokens"`
	BorrowBalance string `json:"borrowBalance"`
	ExchangeRate  string `json:"exchangeRate"`
}

// Liquidity reports borrowing headroom or deficit in price units. At most
// one of the two is nonzero.
type Liquidity struct {
	Liquidity string `json:"liquidity"`
	Shortfall string `json:"shortfall"`
}

// Membership lists the pools an account entered as collateral.
type Membership struct {
	Account string   `json:"account"`
	Markets []string `json:"markets"`
}

// RiskParams are the registry-wide liquidation parameters.
type RiskParams struct {
	CloseFactor          string `json:"closeFactor"`
	LiquidationIncentive string `json:"liquidationIncentive"`
	ProtocolSeizeShare   string `json:"protocolSeizeShare"`
}

// Status summarizes the daemon's registry identity and progress.
type Status struct {
	RegistryID    string `json:"registryId"`
	BlockHeight   uint64 `json:"blockHeight"`
	Halted        bool   `json:"halted"`
	EventSequence uint64 `json:"eventSequence"`
}

// MintReceipt reports the underlying pulled and claim tokens issued.
type MintReceipt struct {
	Symbol      string `json:"symbol"`
	Minted      string `json:"minted"`
	ClaimTokens string `json:"claimTokens"`
}

// RedeemReceipt reports the claim tokens burned and underlying paid out.
type RedeemReceipt struct {
	Symbol      string `json:"symbol"`
	ClaimTokens string `json:"claimTokens"`
	Redeemed    string `json:"redeemed"`
}

// RepayReceipt reports the underlying actually settled, which may be less
// than the request when the debt was smaller.
type RepayReceipt struct {
	Symbol string `json:"symbol"`
	Repaid string `json:"repaid"`
}

// LiquidateReceipt itemizes a completed liquidation.
type LiquidateReceipt struct {
	DebtSymbol            string `json:"debtSymbol"`
	CollateralSymbol      string `json:"collateralSymbol"`
	RepaidActual          string `json:"repaidActual"`
	SeizedTokens          string `json:"seizedTokens"`
	LiquidatorTokens      string `json:"liquidatorTokens"`
	ProtocolTokens        string `json:"protocolTokens"`
	ProtocolReserveCredit string `json:"protocolReserveCredit"`
}

// ReservesReceipt reports a reserve movement.
type ReservesReceipt struct {
	Symbol string `json:"symbol"`
	Amount string `json:"amount"`
}

// AccrueReceipt lists the pools whose accrual actually advanced.
type AccrueReceipt struct {
	Advanced []string `json:"advanced"`
}
