package core

import (
	"time"

	"github.com/holiman/uint256"

	"lendcore/core/events"
	"lendcore/core/state"
	"lendcore/crypto"
	"lendcore/native/market"
	"lendcore/observability/metrics"
)

// Mint deposits underlying into a pool and credits claim tokens. It returns
// the claim tokens minted and the underlying actually received.
func (l *Ledger) Mint(supplier crypto.Address, symbol string, amount *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	sym := market.CanonicalSymbol(symbol)
	started := time.Now()
	var minted, actual *uint256.Int
	err := l.withWrite(func(eng *market.Engine, _ *state.Manager) ([]events.Typed, error) {
		var err error
		minted, actual, err = eng.Mint(supplier, sym, amount)
		if err != nil {
			return nil, err
		}
		return []events.Typed{events.MarketMinted{
			Symbol:   sym,
			Supplier: supplier,
			Amount:   actual,
			Claims:   minted,
		}}, nil
	})
	metrics.Market().ObserveOperation("mint", sym, err, time.Since(started))
	if err != nil {
		return nil, nil, err
	}
	return minted, actual, nil
}

// Redeem burns an exact number of claim tokens and pays out the underlying
// they are worth. The released underlying is returned.
func (l *Ledger) Redeem(redeemer crypto.Address, symbol string, claimTokens *uint256.Int) (*uint256.Int, error) {
	sym := market.CanonicalSymbol(symbol)
	started := time.Now()
	var amount *uint256.Int
	err := l.withWrite(func(eng *market.Engine, _ *state.Manager) ([]events.Typed, error) {
		var err error
		amount, err = eng.Redeem(redeemer, sym, claimTokens)
		if err != nil {
			return nil, err
		}
		return []events.Typed{events.MarketRedeemed{
			Symbol:   sym,
			Supplier: redeemer,
			Claims:   claimTokens,
			Amount:   amount,
		}}, nil
	})
	metrics.Market().ObserveOperation("redeem", sym, err, time.Since(started))
	if err != nil {
		return nil, err
	}
	return amount, nil
}

// RedeemUnderlying releases an exact underlying amount, burning however many
// claim tokens it currently costs. The burned token count is returned.
func (l *Ledger) RedeemUnderlying(redeemer crypto.Address, symbol string, amount *uint256.Int) (*uint256.Int, error) {
	sym := market.CanonicalSymbol(symbol)
	started := time.Now()
	var burned *uint256.Int
	err := l.withWrite(func(eng *market.Engine, _ *state.Manager) ([]events.Typed, error) {
		var err error
		burned, err = eng.RedeemUnderlying(redeemer, sym, amount)
		if err != nil {
			return nil, err
		}
		return []events.Typed{events.MarketRedeemed{
			Symbol:   sym,
			Supplier: redeemer,
			Claims:   burned,
			Amount:   amount,
		}}, nil
	})
	metrics.Market().ObserveOperation("redeem_underlying", sym, err, time.Since(started))
	if err != nil {
		return nil, err
	}
	return burned, nil
}

// Borrow draws underlying from a pool against the borrower's collateral.
func (l *Ledger) Borrow(borrower crypto.Address, symbol string, amount *uint256.Int) error {
	sym := market.CanonicalSymbol(symbol)
	started := time.Now()
	err := l.withWrite(func(eng *market.Engine, _ *state.Manager) ([]events.Typed, error) {
		entering, err := l.wouldEnter(eng, borrower, sym)
		if err != nil {
			return nil, err
		}
		if err := eng.Borrow(borrower, sym, amount); err != nil {
			return nil, err
		}
		mkt, err := eng.GetMarket(sym)
		if err != nil {
			return nil, err
		}
		evts := make([]events.Typed, 0, 2)
		if entering {
			evts = append(evts, events.MarketEntered{Symbol: sym, Account: borrower})
		}
		evts = append(evts, events.MarketBorrowed{
			Symbol:       sym,
			Borrower:     borrower,
			Amount:       amount,
			TotalBorrows: mkt.TotalBorrows,
		})
		return evts, nil
	})
	metrics.Market().ObserveOperation("borrow", sym, err, time.Since(started))
	return err
}

// Repay settles the caller's own debt. market.RepayMax settles the full
// outstanding balance. The underlying actually collected is returned.
func (l *Ledger) Repay(payer crypto.Address, symbol string, amount *uint256.Int) (*uint256.Int, error) {
	return l.repay(payer, payer, symbol, amount)
}

// RepayBehalf settles another account's debt with the payer's funds.
func (l *Ledger) RepayBehalf(payer, borrower crypto.Address, symbol string, amount *uint256.Int) (*uint256.Int, error) {
	return l.repay(payer, borrower, symbol, amount)
}

func (l *Ledger) repay(payer, borrower crypto.Address, symbol string, amount *uint256.Int) (*uint256.Int, error) {
	sym := market.CanonicalSymbol(symbol)
	started := time.Now()
	var actual *uint256.Int
	err := l.withWrite(func(eng *market.Engine, _ *state.Manager) ([]events.Typed, error) {
		var err error
		actual, err = eng.RepayBehalf(payer, borrower, sym, amount)
		if err != nil {
			return nil, err
		}
		snapshot, err := eng.GetAccountSnapshot(borrower, sym)
		if err != nil {
			return nil, err
		}
		return []events.Typed{events.MarketRepaid{
			Symbol:    sym,
			Payer:     payer,
			Borrower:  borrower,
			Amount:    actual,
			Remaining: snapshot.BorrowBalance,
		}}, nil
	})
	metrics.Market().ObserveOperation("repay", sym, err, time.Since(started))
	if err != nil {
		return nil, err
	}
	return actual, nil
}

// TransferClaim moves claim tokens between accounts without touching pool
// cash.
func (l *Ledger) TransferClaim(from, to crypto.Address, symbol string, tokens *uint256.Int) error {
	sym := market.CanonicalSymbol(symbol)
	started := time.Now()
	err := l.withWrite(func(eng *market.Engine, _ *state.Manager) ([]events.Typed, error) {
		if err := eng.TransferClaim(from, to, sym, tokens); err != nil {
			return nil, err
		}
		return []events.Typed{events.ClaimsTransferred{
			Symbol: sym,
			From:   from,
			To:     to,
			Claims: tokens,
		}}, nil
	})
	metrics.Market().ObserveOperation("transfer", sym, err, time.Since(started))
	return err
}

// EnterMarket opts the account into using a market as collateral. Entering a
// market twice is a no-op and emits nothing.
func (l *Ledger) EnterMarket(account crypto.Address, symbol string) error {
	sym := market.CanonicalSymbol(symbol)
	started := time.Now()
	err := l.withWrite(func(eng *market.Engine, _ *state.Manager) ([]events.Typed, error) {
		entering, err := l.wouldEnter(eng, account, sym)
		if err != nil {
			return nil, err
		}
		if err := eng.EnterMarket(account, sym); err != nil {
			return nil, err
		}
		if !entering {
			return nil, nil
		}
		return []events.Typed{events.MarketEntered{Symbol: sym, Account: account}}, nil
	})
	metrics.Market().ObserveOperation("enter_market", sym, err, time.Since(started))
	return err
}

// ExitMarket removes a market from the account's collateral set.
func (l *Ledger) ExitMarket(account crypto.Address, symbol string) error {
	sym := market.CanonicalSymbol(symbol)
	started := time.Now()
	err := l.withWrite(func(eng *market.Engine, _ *state.Manager) ([]events.Typed, error) {
		entering, err := l.wouldEnter(eng, account, sym)
		if err != nil {
			return nil, err
		}
		if err := eng.ExitMarket(account, sym); err != nil {
			return nil, err
		}
		if entering {
			// Was never a member, nothing changed.
			return nil, nil
		}
		return []events.Typed{events.MarketExited{Symbol: sym, Account: account}}, nil
	})
	metrics.Market().ObserveOperation("exit_market", sym, err, time.Since(started))
	return err
}

// wouldEnter reports whether the account is not yet a member of the market.
func (l *Ledger) wouldEnter(eng *market.Engine, account crypto.Address, sym string) (bool, error) {
	membership, err := eng.Membership(account)
	if err != nil {
		return false, err
	}
	for _, s := range membership {
		if s == sym {
			return false, nil
		}
	}
	return true, nil
}

// LiquidateBorrow repays part of an underwater borrower's debt and seizes
// discounted collateral claim tokens in exchange.
func (l *Ledger) LiquidateBorrow(liquidator, borrower crypto.Address, debtSymbol, collateralSymbol string, repayAmount *uint256.Int) (*market.LiquidationResult, error) {
	debtSym := market.CanonicalSymbol(debtSymbol)
	collSym := market.CanonicalSymbol(collateralSymbol)
	started := time.Now()
	var result *market.LiquidationResult
	err := l.withWrite(func(eng *market.Engine, _ *state.Manager) ([]events.Typed, error) {
		var err error
		result, err = eng.LiquidateBorrow(liquidator, borrower, debtSym, collSym, repayAmount)
		if err != nil {
			return nil, err
		}
		return []events.Typed{events.MarketLiquidated{
			DebtSymbol:       result.DebtSymbol,
			CollateralSymbol: result.CollateralSymbol,
			Liquidator:       result.Liquidator,
			Borrower:         result.Borrower,
			Repaid:           result.RepaidActual,
			SeizedClaims:     result.SeizedTokens,
			LiquidatorClaims: result.LiquidatorTokens,
			ProtocolClaims:   result.ProtocolTokens,
		}}, nil
	})
	metrics.Market().ObserveOperation("liquidate", debtSym, err, time.Since(started))
	if err != nil {
		return nil, err
	}
	metrics.Market().RecordLiquidation(result.DebtSymbol, result.CollateralSymbol)
	return result, nil
}

// AddReserves donates underlying straight into a pool's reserves.
func (l *Ledger) AddReserves(from crypto.Address, symbol string, amount *uint256.Int) (*uint256.Int, error) {
	sym := market.CanonicalSymbol(symbol)
	started := time.Now()
	var actual *uint256.Int
	err := l.withWrite(func(eng *market.Engine, _ *state.Manager) ([]events.Typed, error) {
		var err error
		actual, err = eng.AddReserves(from, sym, amount)
		if err != nil {
			return nil, err
		}
		mkt, err := eng.GetMarket(sym)
		if err != nil {
			return nil, err
		}
		return []events.Typed{events.ReservesChanged{
			Symbol:        sym,
			Account:       from,
			Direction:     events.ReservesAdded,
			Amount:        actual,
			TotalReserves: mkt.TotalReserves,
		}}, nil
	})
	metrics.Market().ObserveOperation("add_reserves", sym, err, time.Since(started))
	if err != nil {
		return nil, err
	}
	return actual, nil
}

// AccrueMarket settles pending interest on a single market.
func (l *Ledger) AccrueMarket(symbol string) error {
	sym := market.CanonicalSymbol(symbol)
	started := time.Now()
	err := l.withWrite(func(eng *market.Engine, _ *state.Manager) ([]events.Typed, error) {
		return l.accrue(eng, sym)
	})
	metrics.Market().ObserveOperation("accrue", sym, err, time.Since(started))
	return err
}

// AccrueAll settles pending interest on every listed market in one state
// transition. It returns the symbols whose accrual block advanced.
func (l *Ledger) AccrueAll() ([]string, error) {
	var advanced []string
	err := l.withWrite(func(eng *market.Engine, _ *state.Manager) ([]events.Typed, error) {
		markets, err := eng.Markets()
		if err != nil {
			return nil, err
		}
		var evts []events.Typed
		for _, mkt := range markets {
			perMarket, err := l.accrue(eng, mkt.Symbol)
			if err != nil {
				return nil, err
			}
			if len(perMarket) > 0 {
				advanced = append(advanced, mkt.Symbol)
				evts = append(evts, perMarket...)
			}
		}
		return evts, nil
	})
	if err != nil {
		return nil, err
	}
	return advanced, nil
}

// accrue runs interest accrual for one market and reports an event when the
// accrual block actually advanced.
func (l *Ledger) accrue(eng *market.Engine, sym string) ([]events.Typed, error) {
	before, err := eng.GetMarket(sym)
	if err != nil {
		return nil, err
	}
	prevBlock := before.AccrualBlock
	if err := eng.AccrueInterest(sym); err != nil {
		return nil, err
	}
	after, err := eng.GetMarket(sym)
	if err != nil {
		return nil, err
	}
	if after.AccrualBlock == prevBlock {
		return nil, nil
	}
	return []events.Typed{events.MarketAccrued{
		Symbol:        sym,
		Block:         after.AccrualBlock,
		BorrowIndex:   after.BorrowIndex,
		TotalBorrows:  after.TotalBorrows,
		TotalReserves: after.TotalReserves,
	}}, nil
}
