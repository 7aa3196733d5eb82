package market

import (
	"github.com/holiman/uint256"

	"lendcore/crypto"
)

// GetAccountLiquidity values the account across every entered market and
// reports either spare borrowing headroom or the shortfall below the
// collateral requirement.
func (e *Engine) GetAccountLiquidity(account crypto.Address) (*Liquidity, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.hypotheticalLiquidity(account, "", nil, nil)
}

// HypotheticalAccountLiquidity evaluates the account as if it had already
// redeemed claim tokens from, or borrowed additional underlying in, the named
// market.
func (e *Engine) HypotheticalAccountLiquidity(account crypto.Address, symbol string, redeemTokens, borrowAmount *uint256.Int) (*Liquidity, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	mkt, err := e.ensureMarket(symbol)
	if err != nil {
		return nil, err
	}
	return e.hypotheticalLiquidity(account, mkt.Symbol, redeemTokens, borrowAmount)
}

// hypotheticalLiquidity walks the account's membership set, pricing claim
// token holdings through collateralFactor * exchangeRate * price and debt
// through price alone. Deltas apply to the modify market: redeeming shrinks
// collateral-side value, borrowing grows the debt side, both priced the same
// way a real redeem or borrow would settle. Stored exchange rates are used;
// callers wanting fresh values accrue first.
func (e *Engine) hypotheticalLiquidity(account crypto.Address, modifySymbol string, redeemTokens, borrowAmount *uint256.Int) (*Liquidity, error) {
	symbols, err := e.membership(account)
	if err != nil {
		return nil, err
	}

	sumCollateral := new(uint256.Int)
	sumBorrowPlusEffects := new(uint256.Int)

	for _, symbol := range symbols {
		mkt, err := e.ensureMarket(symbol)
		if err != nil {
			return nil, err
		}
		position, err := e.position(mkt.Symbol, account)
		if err != nil {
			return nil, err
		}

		exchangeRate, err := mkt.ExchangeRate()
		if err != nil {
			return nil, err
		}
		price, err := e.underlyingPrice(mkt.Symbol)
		if err != nil {
			return nil, err
		}

		// Value of one claim token in price units, discounted by the
		// market's collateral factor.
		tokensToDenom, err := expMul(mkt.CollateralFactor, exchangeRate)
		if err != nil {
			return nil, err
		}
		tokensToDenom, err = expMul(tokensToDenom, price)
		if err != nil {
			return nil, err
		}

		collateralValue, err := expMul(tokensToDenom, position.ClaimTokens)
		if err != nil {
			return nil, err
		}
		sumCollateral, err = checkedAdd(sumCollateral, collateralValue)
		if err != nil {
			return nil, err
		}

		borrowBalance, err := mkt.BorrowBalance(position)
		if err != nil {
			return nil, err
		}
		borrowValue, err := expMul(price, borrowBalance)
		if err != nil {
			return nil, err
		}
		sumBorrowPlusEffects, err = checkedAdd(sumBorrowPlusEffects, borrowValue)
		if err != nil {
			return nil, err
		}

		if mkt.Symbol != modifySymbol {
			continue
		}
		if !isZero(redeemTokens) {
			redeemValue, err := expMul(tokensToDenom, redeemTokens)
			if err != nil {
				return nil, err
			}
			sumBorrowPlusEffects, err = checkedAdd(sumBorrowPlusEffects, redeemValue)
			if err != nil {
				return nil, err
			}
		}
		if !isZero(borrowAmount) {
			borrowEffect, err := expMul(price, borrowAmount)
			if err != nil {
				return nil, err
			}
			sumBorrowPlusEffects, err = checkedAdd(sumBorrowPlusEffects, borrowEffect)
			if err != nil {
				return nil, err
			}
		}
	}

	result := &Liquidity{Liquidity: new(uint256.Int), Shortfall: new(uint256.Int)}
	if sumCollateral.Gt(sumBorrowPlusEffects) {
		result.Liquidity.Sub(sumCollateral, sumBorrowPlusEffects)
	} else {
		result.Shortfall.Sub(sumBorrowPlusEffects, sumCollateral)
	}
	return result, nil
}
