package core

import (
	"github.com/holiman/uint256"

	"lendcore/core/state"
	"lendcore/crypto"
	"lendcore/native/bank"
	"lendcore/native/market"
)

// MarketRates reports a pool's current per-block interest picture.
type MarketRates struct {
	Symbol             string
	Utilization        *uint256.Int
	BorrowRatePerBlock *uint256.Int
	SupplyRatePerBlock *uint256.Int
}

// GetMarket returns the stored market record without accruing.
func (l *Ledger) GetMarket(symbol string) (*market.Market, error) {
	var mkt *market.Market
	err := l.withRead(func(eng *market.Engine, _ *state.Manager) error {
		var err error
		mkt, err = eng.GetMarket(symbol)
		return err
	})
	if err != nil {
		return nil, err
	}
	return mkt, nil
}

// Markets returns every listed market sorted by symbol.
func (l *Ledger) Markets() ([]*market.Market, error) {
	var markets []*market.Market
	err := l.withRead(func(eng *market.Engine, _ *state.Manager) error {
		var err error
		markets, err = eng.Markets()
		return err
	})
	if err != nil {
		return nil, err
	}
	return markets, nil
}

// Rates computes the pool's utilization and per-block borrow and supply
// rates from its stored balances.
func (l *Ledger) Rates(symbol string) (*MarketRates, error) {
	var rates *MarketRates
	err := l.withRead(func(eng *market.Engine, _ *state.Manager) error {
		mkt, err := eng.GetMarket(symbol)
		if err != nil {
			return err
		}
		util, err := mkt.RateModel.UtilizationRate(mkt.TotalCash, mkt.TotalBorrows, mkt.TotalReserves)
		if err != nil {
			return err
		}
		borrowRate, err := mkt.RateModel.BorrowRatePerBlock(mkt.TotalCash, mkt.TotalBorrows, mkt.TotalReserves)
		if err != nil {
			return err
		}
		supplyRate, err := mkt.RateModel.SupplyRatePerBlock(mkt.TotalCash, mkt.TotalBorrows, mkt.TotalReserves, mkt.ReserveFactor)
		if err != nil {
			return err
		}
		rates = &MarketRates{
			Symbol:             mkt.Symbol,
			Utilization:        util,
			BorrowRatePerBlock: borrowRate,
			SupplyRatePerBlock: supplyRate,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rates, nil
}

// AccountSnapshot reports the account's balances in one market at the stored
// exchange rate.
func (l *Ledger) AccountSnapshot(account crypto.Address, symbol string) (*market.AccountSnapshot, error) {
	var snapshot *market.AccountSnapshot
	err := l.withRead(func(eng *market.Engine, _ *state.Manager) error {
		var err error
		snapshot, err = eng.GetAccountSnapshot(account, symbol)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// AccountLiquidity evaluates the account's solvency across its entered
// markets.
func (l *Ledger) AccountLiquidity(account crypto.Address) (*market.Liquidity, error) {
	var liquidity *market.Liquidity
	err := l.withRead(func(eng *market.Engine, _ *state.Manager) error {
		var err error
		liquidity, err = eng.GetAccountLiquidity(account)
		return err
	})
	if err != nil {
		return nil, err
	}
	return liquidity, nil
}

// HypotheticalLiquidity evaluates the account's solvency as if it redeemed
// claim tokens or drew a new borrow in the named market.
func (l *Ledger) HypotheticalLiquidity(account crypto.Address, symbol string, redeemTokens, borrowAmount *uint256.Int) (*market.Liquidity, error) {
	var liquidity *market.Liquidity
	err := l.withRead(func(eng *market.Engine, _ *state.Manager) error {
		var err error
		liquidity, err = eng.HypotheticalAccountLiquidity(account, symbol, redeemTokens, borrowAmount)
		return err
	})
	if err != nil {
		return nil, err
	}
	return liquidity, nil
}

// Membership returns the markets the account entered as collateral, sorted.
func (l *Ledger) Membership(account crypto.Address) ([]string, error) {
	var symbols []string
	err := l.withRead(func(eng *market.Engine, _ *state.Manager) error {
		var err error
		symbols, err = eng.Membership(account)
		return err
	})
	if err != nil {
		return nil, err
	}
	return symbols, nil
}

// Balance returns the account's underlying token balance.
func (l *Ledger) Balance(symbol string, account crypto.Address) (*uint256.Int, error) {
	var balance *uint256.Int
	err := l.withRead(func(_ *market.Engine, mgr *state.Manager) error {
		var err error
		balance, err = bank.NewLedger(mgr).Balance(symbol, account)
		return err
	})
	if err != nil {
		return nil, err
	}
	return balance, nil
}

// Token returns the registered metadata for an underlying token, or nil when
// the symbol is unknown.
func (l *Ledger) Token(symbol string) (*state.TokenMetadata, error) {
	var token *state.TokenMetadata
	err := l.withRead(func(_ *market.Engine, mgr *state.Manager) error {
		var err error
		token, err = mgr.Token(symbol)
		return err
	})
	if err != nil {
		return nil, err
	}
	return token, nil
}

// TokenList returns the registered underlying token symbols, sorted.
func (l *Ledger) TokenList() ([]string, error) {
	var symbols []string
	err := l.withRead(func(_ *market.Engine, mgr *state.Manager) error {
		var err error
		symbols, err = mgr.TokenList()
		return err
	})
	if err != nil {
		return nil, err
	}
	return symbols, nil
}

// RiskParams returns a copy of the registry-wide risk parameters in force.
func (l *Ledger) RiskParams() market.RiskParameters {
	if l == nil {
		return market.RiskParameters{}
	}
	l.stateMu.RLock()
	defer l.stateMu.RUnlock()
	return l.params.Clone()
}
