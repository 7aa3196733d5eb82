package market

import (
	"github.com/holiman/uint256"

	"lendcore/crypto"
	nativecommon "lendcore/native/common"
)

func (e *Engine) requireAuthority(addr crypto.Address, action string) error {
	// No controller wired means no admin surface at all; fail closed.
	if e.authority == nil || !e.authority.IsAllowed(addr, action) {
		return ErrUnauthorized
	}
	return nil
}

// ListMarket registers a new pool under the engine's registry. The record's
// factors are validated, indexes are seeded and accrual starts at the
// current block.
func (e *Engine) ListMarket(admin crypto.Address, mkt *Market) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.requireAuthority(admin, ActionListMarket); err != nil {
		return err
	}
	if mkt == nil {
		return ErrInvalidAmount
	}
	symbol := normalizeSymbol(mkt.Symbol)
	if symbol == "" {
		return ErrMarketNotListed
	}
	existing, err := e.state.GetMarket(symbol)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrMarketAlreadyListed
	}
	// Unset factors default to zero in normalize; only reject explicit
	// out-of-range values.
	if mkt.CollateralFactor != nil {
		if err := ValidateCollateralFactor(mkt.CollateralFactor); err != nil {
			return err
		}
	}
	if mkt.ReserveFactor != nil {
		if err := ValidateReserveFactor(mkt.ReserveFactor); err != nil {
			return err
		}
	}

	mkt.Symbol = symbol
	mkt.RegistryID = e.registryID
	mkt.AccrualBlock = e.blockHeight
	mkt.normalize()
	return e.state.PutMarket(mkt)
}

// SetCollateralFactor updates how much borrowing power a pool's claim tokens
// carry. Raising it above zero requires a working price feed, otherwise the
// new collateral could never be valued.
func (e *Engine) SetCollateralFactor(admin crypto.Address, symbol string, factor *uint256.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireAuthority(admin, ActionSetParams); err != nil {
		return err
	}
	mkt, err := e.ensureMarket(symbol)
	if err != nil {
		return err
	}
	if err := ValidateCollateralFactor(factor); err != nil {
		return err
	}
	if !isZero(factor) {
		if _, err := e.underlyingPrice(mkt.Symbol); err != nil {
			return err
		}
	}
	mkt.CollateralFactor = cloneInt(factor)
	return e.state.PutMarket(mkt)
}

// SetReserveFactor updates the share of borrow interest retained as
// reserves. Pending interest accrues at the old factor first.
func (e *Engine) SetReserveFactor(admin crypto.Address, symbol string, factor *uint256.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireAuthority(admin, ActionSetParams); err != nil {
		return err
	}
	mkt, err := e.ensureMarket(symbol)
	if err != nil {
		return err
	}
	if err := ValidateReserveFactor(factor); err != nil {
		return err
	}
	if err := e.accrueInterest(mkt); err != nil {
		return err
	}
	mkt.ReserveFactor = cloneInt(factor)
	return e.state.PutMarket(mkt)
}

// SetCaps updates the pool's supply and borrow ceilings. Nil or zero
// disables the respective cap.
func (e *Engine) SetCaps(admin crypto.Address, symbol string, supplyCap, borrowCap *uint256.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireAuthority(admin, ActionSetParams); err != nil {
		return err
	}
	mkt, err := e.ensureMarket(symbol)
	if err != nil {
		return err
	}
	mkt.SupplyCap = cloneInt(supplyCap)
	mkt.BorrowCap = cloneInt(borrowCap)
	return e.state.PutMarket(mkt)
}

// SetActionPauses replaces the pool's per-action halt switches.
func (e *Engine) SetActionPauses(admin crypto.Address, symbol string, pauses ActionPauses) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireAuthority(admin, ActionSetPauses); err != nil {
		return err
	}
	mkt, err := e.ensureMarket(symbol)
	if err != nil {
		return err
	}
	mkt.Pauses = pauses
	return e.state.PutMarket(mkt)
}

// SetDeprecated flags a pool as being wound down, making its borrows
// liquidatable in full regardless of account health.
func (e *Engine) SetDeprecated(admin crypto.Address, symbol string, deprecated bool) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireAuthority(admin, ActionSetParams); err != nil {
		return err
	}
	mkt, err := e.ensureMarket(symbol)
	if err != nil {
		return err
	}
	mkt.Deprecated = deprecated
	return e.state.PutMarket(mkt)
}

// SetRateModel swaps the pool's borrow rate curve. Pending interest accrues
// under the old curve first.
func (e *Engine) SetRateModel(admin crypto.Address, symbol string, model JumpRateModel) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireAuthority(admin, ActionSetParams); err != nil {
		return err
	}
	mkt, err := e.ensureMarket(symbol)
	if err != nil {
		return err
	}
	if err := e.accrueInterest(mkt); err != nil {
		return err
	}
	mkt.RateModel = model.Clone()
	return e.state.PutMarket(mkt)
}

// ReduceReserves pays accumulated reserves out of the pool vault. The
// withdrawal is bounded by both the reserve balance and available cash.
func (e *Engine) ReduceReserves(admin crypto.Address, symbol string, amount *uint256.Int, recipient crypto.Address) (*uint256.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.bank == nil {
		return nil, errNilBank
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if err := e.requireAuthority(admin, ActionReduceReserves); err != nil {
		return nil, err
	}
	if isZero(amount) || amount.Eq(RepayMax) {
		return nil, ErrInvalidAmount
	}
	mkt, err := e.ensureMarket(symbol)
	if err != nil {
		return nil, err
	}
	if err := e.accrueInterest(mkt); err != nil {
		return nil, err
	}
	if mkt.TotalReserves.Lt(amount) {
		return nil, ErrInsufficientBalance
	}
	if mkt.TotalCash.Lt(amount) {
		return nil, ErrInsufficientCash
	}

	mkt.TotalReserves, err = checkedSub(mkt.TotalReserves, amount)
	if err != nil {
		return nil, err
	}
	mkt.TotalCash, err = checkedSub(mkt.TotalCash, amount)
	if err != nil {
		return nil, err
	}
	if err := e.state.PutMarket(mkt); err != nil {
		return nil, err
	}
	if err := e.transferOut(mkt.Symbol, recipient, amount); err != nil {
		return nil, err
	}
	return cloneInt(amount), nil
}

// AddReserves lets any account donate underlying straight into the pool's
// reserves.
func (e *Engine) AddReserves(from crypto.Address, symbol string, amount *uint256.Int) (*uint256.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.bank == nil {
		return nil, errNilBank
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if isZero(amount) || amount.Eq(RepayMax) {
		return nil, ErrInvalidAmount
	}
	mkt, err := e.ensureMarket(symbol)
	if err != nil {
		return nil, err
	}
	if err := e.accrueInterest(mkt); err != nil {
		return nil, err
	}

	actual, err := e.transferIn(mkt.Symbol, from, amount)
	if err != nil {
		return nil, err
	}
	mkt.TotalReserves, err = checkedAdd(mkt.TotalReserves, actual)
	if err != nil {
		return nil, err
	}
	mkt.TotalCash, err = checkedAdd(mkt.TotalCash, actual)
	if err != nil {
		return nil, err
	}
	if err := e.state.PutMarket(mkt); err != nil {
		return nil, err
	}
	return actual, nil
}
