package market

import (
	"github.com/holiman/uint256"

	"lendcore/crypto"
	nativecommon "lendcore/native/common"
)

// LiquidationResult reports how a liquidation settled: the debt actually
// repaid and how the seized claim tokens were split between the liquidator
// and protocol reserves.
type LiquidationResult struct {
	DebtSymbol       string
	CollateralSymbol string
	Liquidator       crypto.Address
	Borrower         crypto.Address
	// RepaidActual is the underlying received from the liquidator.
	RepaidActual *uint256.Int
	// SeizedTokens is the total claim tokens removed from the borrower.
	SeizedTokens *uint256.Int
	// LiquidatorTokens is the portion credited to the liquidator.
	LiquidatorTokens *uint256.Int
	// ProtocolTokens is the portion burned in favor of reserves.
	ProtocolTokens *uint256.Int
	// ProtocolReserveCredit is the underlying value booked into the
	// collateral market's reserves for the burned portion.
	ProtocolReserveCredit *uint256.Int
}

// LiquidateBorrow repays part of an underwater borrower's debt with the
// liquidator's funds and seizes discounted collateral claim tokens in
// exchange. Deprecated debt markets skip the health check and allow closing
// the full balance. The whole settlement is one state transition: any
// failure, including on the seize leg, unwinds the repay leg with it.
func (e *Engine) LiquidateBorrow(liquidator, borrower crypto.Address, debtSymbol, collateralSymbol string, repayAmount *uint256.Int) (*LiquidationResult, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.bank == nil {
		return nil, errNilBank
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if liquidator.Equal(borrower) {
		return nil, ErrSelfLiquidation
	}
	if isZero(repayAmount) {
		return nil, ErrInvalidAmount
	}
	// The full-repay sentinel is a footgun here: the cap depends on state
	// the liquidator cannot see atomically, so the amount must be explicit.
	if repayAmount.Eq(RepayMax) {
		return nil, ErrRepayMaxForbidden
	}

	debtMkt, err := e.ensureMarket(debtSymbol)
	if err != nil {
		return nil, err
	}
	var collMkt *Market
	sameMarket := debtMkt.Symbol == normalizeSymbol(collateralSymbol)
	if sameMarket {
		collMkt = debtMkt
	} else {
		collMkt, err = e.ensureMarket(collateralSymbol)
		if err != nil {
			return nil, err
		}
	}
	if debtMkt.RegistryID != collMkt.RegistryID {
		return nil, ErrRegistryMismatch
	}
	if collMkt.Pauses.Seize {
		return nil, ErrSeizePaused
	}

	if err := e.accrueInterest(debtMkt); err != nil {
		return nil, err
	}
	if err := e.state.PutMarket(debtMkt); err != nil {
		return nil, err
	}
	if !sameMarket {
		if err := e.accrueInterest(collMkt); err != nil {
			return nil, err
		}
		if err := e.state.PutMarket(collMkt); err != nil {
			return nil, err
		}
	}

	debtPosition, err := e.position(debtMkt.Symbol, borrower)
	if err != nil {
		return nil, err
	}
	borrowBalance, err := debtMkt.BorrowBalance(debtPosition)
	if err != nil {
		return nil, err
	}
	if borrowBalance.IsZero() {
		return nil, ErrNoDebtToRepay
	}

	if debtMkt.Deprecated {
		if repayAmount.Gt(borrowBalance) {
			return nil, ErrTooMuchRepay
		}
	} else {
		liquidity, err := e.hypotheticalLiquidity(borrower, "", nil, nil)
		if err != nil {
			return nil, err
		}
		if isZero(liquidity.Shortfall) {
			return nil, ErrInsufficientShortfall
		}
		maxClose, err := expMul(e.params.CloseFactor, borrowBalance)
		if err != nil {
			return nil, err
		}
		if repayAmount.Gt(maxClose) {
			return nil, ErrTooMuchRepay
		}
	}

	// Repay leg.
	actual, err := e.transferIn(debtMkt.Symbol, liquidator, repayAmount)
	if err != nil {
		return nil, err
	}
	debtPosition.BorrowPrincipal, err = checkedSub(borrowBalance, actual)
	if err != nil {
		return nil, err
	}
	debtPosition.BorrowIndexSnapshot = cloneInt(debtMkt.BorrowIndex)
	debtMkt.TotalBorrows, err = checkedSub(debtMkt.TotalBorrows, actual)
	if err != nil {
		return nil, err
	}
	debtMkt.TotalCash, err = checkedAdd(debtMkt.TotalCash, actual)
	if err != nil {
		return nil, err
	}
	if err := e.state.PutPosition(debtMkt.Symbol, debtPosition); err != nil {
		return nil, err
	}
	if err := e.state.PutMarket(debtMkt); err != nil {
		return nil, err
	}

	// Seize pricing: repaid value marked up by the liquidation incentive,
	// then converted into collateral claim tokens at their current price
	// and exchange rate.
	debtPrice, err := e.underlyingPrice(debtMkt.Symbol)
	if err != nil {
		return nil, err
	}
	collPrice, err := e.underlyingPrice(collMkt.Symbol)
	if err != nil {
		return nil, err
	}
	collExchangeRate, err := collMkt.ExchangeRate()
	if err != nil {
		return nil, err
	}
	numerator, err := expMul(e.params.LiquidationIncentive, debtPrice)
	if err != nil {
		return nil, err
	}
	denominator, err := expMul(collPrice, collExchangeRate)
	if err != nil {
		return nil, err
	}
	ratio, err := expDiv(numerator, denominator)
	if err != nil {
		return nil, err
	}
	seizeTokens, err := expMul(ratio, actual)
	if err != nil {
		return nil, err
	}

	collPosition, err := e.position(collMkt.Symbol, borrower)
	if err != nil {
		return nil, err
	}
	if collPosition.ClaimTokens.Lt(seizeTokens) {
		return nil, ErrTooMuchSeize
	}

	protocolTokens, err := expMul(seizeTokens, e.params.ProtocolSeizeShare)
	if err != nil {
		return nil, err
	}
	liquidatorTokens, err := checkedSub(seizeTokens, protocolTokens)
	if err != nil {
		return nil, err
	}
	protocolReserveCredit, err := expMul(protocolTokens, collExchangeRate)
	if err != nil {
		return nil, err
	}

	collPosition.ClaimTokens, err = checkedSub(collPosition.ClaimTokens, seizeTokens)
	if err != nil {
		return nil, err
	}
	if err := e.state.PutPosition(collMkt.Symbol, collPosition); err != nil {
		return nil, err
	}

	liquidatorPosition, err := e.position(collMkt.Symbol, liquidator)
	if err != nil {
		return nil, err
	}
	liquidatorPosition.ClaimTokens, err = checkedAdd(liquidatorPosition.ClaimTokens, liquidatorTokens)
	if err != nil {
		return nil, err
	}
	if err := e.state.PutPosition(collMkt.Symbol, liquidatorPosition); err != nil {
		return nil, err
	}

	// The protocol's share leaves circulation and its underlying value is
	// booked as reserves.
	collMkt.TotalSupply, err = checkedSub(collMkt.TotalSupply, protocolTokens)
	if err != nil {
		return nil, err
	}
	collMkt.TotalReserves, err = checkedAdd(collMkt.TotalReserves, protocolReserveCredit)
	if err != nil {
		return nil, err
	}
	if err := e.state.PutMarket(collMkt); err != nil {
		return nil, err
	}

	return &LiquidationResult{
		DebtSymbol:            debtMkt.Symbol,
		CollateralSymbol:      collMkt.Symbol,
		Liquidator:            liquidator,
		Borrower:              borrower,
		RepaidActual:          actual,
		SeizedTokens:          seizeTokens,
		LiquidatorTokens:      liquidatorTokens,
		ProtocolTokens:        protocolTokens,
		ProtocolReserveCredit: protocolReserveCredit,
	}, nil
}
