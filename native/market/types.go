package market

import (
	"github.com/holiman/uint256"

	"lendcore/crypto"
)

// ActionPauses exposes fine-grained switches for halting individual market
// flows. Redeem and repay are intentionally absent: suppliers and borrowers
// can always unwind.
type ActionPauses struct {
	Mint     bool
	Borrow   bool
	Transfer bool
	Seize    bool
}

// Market captures the accounting state of a single pool. Underlying amounts
// are base units; index and factor fields are 1e18 mantissas.
type Market struct {
	// Symbol identifies the pool and its underlying token.
	Symbol string
	// RegistryID names the registry the pool was listed under. Cross-market
	// settlement requires both pools to share it.
	RegistryID string
	// TotalCash is the underlying held by the pool vault.
	TotalCash *uint256.Int
	// TotalBorrows is the outstanding borrowed underlying including accrued
	// interest.
	TotalBorrows *uint256.Int
	// TotalReserves is the slice of accrued interest retained by the
	// protocol.
	TotalReserves *uint256.Int
	// TotalSupply is the number of claim tokens in circulation.
	TotalSupply *uint256.Int
	// BorrowIndex is the cumulative interest index applied to borrower debt.
	BorrowIndex *uint256.Int
	// AccrualBlock records the block height when interest was last accrued.
	AccrualBlock uint64
	// InitialExchangeRate seeds the claim token price before the first mint.
	InitialExchangeRate *uint256.Int
	// CollateralFactor scales this pool's collateral value during solvency
	// checks. Zero disables borrowing against the pool.
	CollateralFactor *uint256.Int
	// ReserveFactor is the share of borrow interest routed to reserves.
	ReserveFactor *uint256.Int
	// SupplyCap bounds total supplied underlying. Zero means unlimited.
	SupplyCap *uint256.Int
	// BorrowCap bounds total borrowed underlying. Zero means unlimited.
	BorrowCap *uint256.Int
	// RateModel prices borrow demand for this pool.
	RateModel JumpRateModel
	// Pauses holds the per-action halt switches.
	Pauses ActionPauses
	// Deprecated marks a pool being wound down: positions in it may be
	// liquidated in full regardless of account health.
	Deprecated bool
}

// normalize backfills nil big values so arithmetic never trips on a sparse
// record loaded from state.
func (m *Market) normalize() {
	if m == nil {
		return
	}
	if m.TotalCash == nil {
		m.TotalCash = new(uint256.Int)
	}
	if m.TotalBorrows == nil {
		m.TotalBorrows = new(uint256.Int)
	}
	if m.TotalReserves == nil {
		m.TotalReserves = new(uint256.Int)
	}
	if m.TotalSupply == nil {
		m.TotalSupply = new(uint256.Int)
	}
	if isZero(m.BorrowIndex) {
		m.BorrowIndex = cloneInt(expScale)
	}
	if isZero(m.InitialExchangeRate) {
		m.InitialExchangeRate = cloneInt(expScale)
	}
	if m.CollateralFactor == nil {
		m.CollateralFactor = new(uint256.Int)
	}
	if m.ReserveFactor == nil {
		m.ReserveFactor = new(uint256.Int)
	}
	if m.SupplyCap == nil {
		m.SupplyCap = new(uint256.Int)
	}
	if m.BorrowCap == nil {
		m.BorrowCap = new(uint256.Int)
	}
	if m.RateModel.BaseRatePerBlock == nil {
		m.RateModel.BaseRatePerBlock = new(uint256.Int)
	}
	if m.RateModel.MultiplierPerBlock == nil {
		m.RateModel.MultiplierPerBlock = new(uint256.Int)
	}
	if m.RateModel.JumpMultiplierPerBlock == nil {
		m.RateModel.JumpMultiplierPerBlock = new(uint256.Int)
	}
	if m.RateModel.Kink == nil {
		m.RateModel.Kink = new(uint256.Int)
	}
}

// ExchangeRate derives the claim token price in underlying terms:
// (cash + borrows - reserves) / totalSupply. Before the first mint the
// configured initial rate applies.
func (m *Market) ExchangeRate() (*uint256.Int, error) {
	if m == nil {
		return nil, ErrMarketNotListed
	}
	if isZero(m.TotalSupply) {
		return cloneInt(m.InitialExchangeRate), nil
	}
	pooled, err := checkedAdd(m.TotalCash, m.TotalBorrows)
	if err != nil {
		return nil, err
	}
	net, err := checkedSub(pooled, m.TotalReserves)
	if err != nil {
		return nil, err
	}
	return expDiv(net, m.TotalSupply)
}

// AccountPosition tracks one account's stake in one market. Debt is stored
// lazily: BorrowPrincipal is exact as of the snapshot index and grows with
// the market index ratio afterwards.
type AccountPosition struct {
	Address crypto.Address
	// ClaimTokens is the account's claim token balance.
	ClaimTokens *uint256.Int
	// BorrowPrincipal is the debt including interest settled up to the
	// snapshot below.
	BorrowPrincipal *uint256.Int
	// BorrowIndexSnapshot is the market borrow index as of the last borrow
	// or repay touch.
	BorrowIndexSnapshot *uint256.Int
}

func (p *AccountPosition) normalize() {
	if p == nil {
		return
	}
	if p.ClaimTokens == nil {
		p.ClaimTokens = new(uint256.Int)
	}
	if p.BorrowPrincipal == nil {
		p.BorrowPrincipal = new(uint256.Int)
	}
	if p.BorrowIndexSnapshot == nil {
		p.BorrowIndexSnapshot = new(uint256.Int)
	}
}

// BorrowBalance settles the position's debt against the market's current
// borrow index: principal * index / snapshot, truncated.
func (m *Market) BorrowBalance(p *AccountPosition) (*uint256.Int, error) {
	if m == nil {
		return nil, ErrMarketNotListed
	}
	if p == nil || isZero(p.BorrowPrincipal) {
		return new(uint256.Int), nil
	}
	if isZero(p.BorrowIndexSnapshot) {
		return nil, ErrMathDivideByZero
	}
	scaled, err := checkedMul(p.BorrowPrincipal, m.BorrowIndex)
	if err != nil {
		return nil, err
	}
	return scaled.Div(scaled, p.BorrowIndexSnapshot), nil
}

// Liquidity is the outcome of a solvency evaluation. Exactly one of the two
// fields is nonzero.
type Liquidity struct {
	// Liquidity is the spare borrowing headroom in price units.
	Liquidity *uint256.Int
	// Shortfall is the deficit below the collateral requirement in price
	// units.
	Shortfall *uint256.Int
}

// AccountSnapshot is the per-market view served to transports: balances plus
// the exchange rate they were computed with.
type AccountSnapshot struct {
	Symbol        string
	ClaimTokens   *uint256.Int
	BorrowBalance *uint256.Int
	ExchangeRate  *uint256.Int
}
