package core

import (
	"fmt"
	"strconv"

	"github.com/holiman/uint256"

	"lendcore/core/events"
	"lendcore/core/state"
	"lendcore/crypto"
	"lendcore/native/market"
)

func decString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

// ListMarket registers a new pool under the ledger's registry. The underlying
// token must already be registered so deposits have a denomination to settle
// in.
func (l *Ledger) ListMarket(admin crypto.Address, mkt *market.Market) error {
	return l.withWrite(func(eng *market.Engine, mgr *state.Manager) ([]events.Typed, error) {
		if l.authority == nil || !l.authority.IsAllowed(admin, market.ActionListMarket) {
			return nil, market.ErrUnauthorized
		}
		if mkt != nil && !mgr.TokenExists(mkt.Symbol) {
			return nil, market.Wrap(market.ErrInvalidAmount, fmt.Errorf("token %s not registered", market.CanonicalSymbol(mkt.Symbol)))
		}
		if err := eng.ListMarket(admin, mkt); err != nil {
			return nil, err
		}
		l.log.Info("market listed", "symbol", mkt.Symbol, "registry", l.registry)
		return []events.Typed{events.MarketListed{
			Symbol:   mkt.Symbol,
			Registry: l.registry,
			Admin:    admin,
		}}, nil
	})
}

// SetCollateralFactor updates how much borrowing power a pool's claim tokens
// carry.
func (l *Ledger) SetCollateralFactor(admin crypto.Address, symbol string, factor *uint256.Int) error {
	sym := market.CanonicalSymbol(symbol)
	return l.withWrite(func(eng *market.Engine, _ *state.Manager) ([]events.Typed, error) {
		if err := eng.SetCollateralFactor(admin, sym, factor); err != nil {
			return nil, err
		}
		return []events.Typed{events.ParamsUpdated{
			Symbol:    sym,
			Admin:     admin,
			Parameter: "collateral_factor",
			Value:     decString(factor),
		}}, nil
	})
}

// SetReserveFactor updates the share of borrow interest retained as reserves.
func (l *Ledger) SetReserveFactor(admin crypto.Address, symbol string, factor *uint256.Int) error {
	sym := market.CanonicalSymbol(symbol)
	return l.withWrite(func(eng *market.Engine, _ *state.Manager) ([]events.Typed, error) {
		if err := eng.SetReserveFactor(admin, sym, factor); err != nil {
			return nil, err
		}
		return []events.Typed{events.ParamsUpdated{
			Symbol:    sym,
			Admin:     admin,
			Parameter: "reserve_factor",
			Value:     decString(factor),
		}}, nil
	})
}

// SetCaps updates the pool's supply and borrow ceilings. Nil or zero disables
// the respective cap.
func (l *Ledger) SetCaps(admin crypto.Address, symbol string, supplyCap, borrowCap *uint256.Int) error {
	sym := market.CanonicalSymbol(symbol)
	return l.withWrite(func(eng *market.Engine, _ *state.Manager) ([]events.Typed, error) {
		if err := eng.SetCaps(admin, sym, supplyCap, borrowCap); err != nil {
			return nil, err
		}
		return []events.Typed{
			events.ParamsUpdated{Symbol: sym, Admin: admin, Parameter: "supply_cap", Value: decString(supplyCap)},
			events.ParamsUpdated{Symbol: sym, Admin: admin, Parameter: "borrow_cap", Value: decString(borrowCap)},
		}, nil
	})
}

// SetActionPauses replaces the pool's per-action halt switches.
func (l *Ledger) SetActionPauses(admin crypto.Address, symbol string, pauses market.ActionPauses) error {
	sym := market.CanonicalSymbol(symbol)
	return l.withWrite(func(eng *market.Engine, _ *state.Manager) ([]events.Typed, error) {
		if err := eng.SetActionPauses(admin, sym, pauses); err != nil {
			return nil, err
		}
		value := fmt.Sprintf("mint=%t borrow=%t transfer=%t seize=%t",
			pauses.Mint, pauses.Borrow, pauses.Transfer, pauses.Seize)
		return []events.Typed{events.ParamsUpdated{
			Symbol:    sym,
			Admin:     admin,
			Parameter: "pauses",
			Value:     value,
		}}, nil
	})
}

// SetDeprecated flags a pool as being wound down, making its borrows
// liquidatable in full regardless of account health.
func (l *Ledger) SetDeprecated(admin crypto.Address, symbol string, deprecated bool) error {
	sym := market.CanonicalSymbol(symbol)
	return l.withWrite(func(eng *market.Engine, _ *state.Manager) ([]events.Typed, error) {
		if err := eng.SetDeprecated(admin, sym, deprecated); err != nil {
			return nil, err
		}
		return []events.Typed{events.ParamsUpdated{
			Symbol:    sym,
			Admin:     admin,
			Parameter: "deprecated",
			Value:     strconv.FormatBool(deprecated),
		}}, nil
	})
}

// SetRateModel swaps the pool's borrow rate curve.
func (l *Ledger) SetRateModel(admin crypto.Address, symbol string, model market.JumpRateModel) error {
	sym := market.CanonicalSymbol(symbol)
	return l.withWrite(func(eng *market.Engine, _ *state.Manager) ([]events.Typed, error) {
		if err := eng.SetRateModel(admin, sym, model); err != nil {
			return nil, err
		}
		value := fmt.Sprintf("base=%s multiplier=%s jump=%s kink=%s",
			decString(model.BaseRatePerBlock), decString(model.MultiplierPerBlock),
			decString(model.JumpMultiplierPerBlock), decString(model.Kink))
		return []events.Typed{events.ParamsUpdated{
			Symbol:    sym,
			Admin:     admin,
			Parameter: "rate_model",
			Value:     value,
		}}, nil
	})
}

// ReduceReserves pays accumulated reserves out of the pool vault to the
// recipient. The withdrawn amount is returned.
func (l *Ledger) ReduceReserves(admin crypto.Address, symbol string, amount *uint256.Int, recipient crypto.Address) (*uint256.Int, error) {
	sym := market.CanonicalSymbol(symbol)
	var withdrawn *uint256.Int
	err := l.withWrite(func(eng *market.Engine, _ *state.Manager) ([]events.Typed, error) {
		var err error
		withdrawn, err = eng.ReduceReserves(admin, sym, amount, recipient)
		if err != nil {
			return nil, err
		}
		mkt, err := eng.GetMarket(sym)
		if err != nil {
			return nil, err
		}
		return []events.Typed{events.ReservesChanged{
			Symbol:        sym,
			Account:       recipient,
			Direction:     events.ReservesReduced,
			Amount:        withdrawn,
			TotalReserves: mkt.TotalReserves,
		}}, nil
	})
	if err != nil {
		return nil, err
	}
	return withdrawn, nil
}

// updateRiskParameters stages, persists and adopts a registry-wide parameter
// change. The in-memory copy only advances once the store accepted the new
// record.
func (l *Ledger) updateRiskParameters(admin crypto.Address, parameter, value string, mutate func(*market.RiskParameters) error) error {
	release, err := l.acquire()
	if err != nil {
		return err
	}
	defer release()

	if l.authority == nil || !l.authority.IsAllowed(admin, market.ActionSetParams) {
		return market.ErrUnauthorized
	}
	next := l.params.Clone()
	if err := mutate(&next); err != nil {
		return err
	}

	overlay := state.NewOverlay(l.db)
	mgr := state.NewManager(overlay)
	if err := mgr.PutRiskParameters(l.registry, next); err != nil {
		overlay.Discard()
		return err
	}

	l.stateMu.Lock()
	err = overlay.Commit()
	if err == nil {
		l.params = next
	}
	l.stateMu.Unlock()
	if err != nil {
		return fmt.Errorf("core: commit state: %w", err)
	}

	l.log.Info("risk parameter updated", "parameter", parameter, "value", value)
	l.bus.Emit(events.ParamsUpdated{Admin: admin, Parameter: parameter, Value: value})
	return nil
}

// SetCloseFactor updates the debt fraction a single liquidation may repay,
// registry wide.
func (l *Ledger) SetCloseFactor(admin crypto.Address, factor *uint256.Int) error {
	return l.updateRiskParameters(admin, "close_factor", decString(factor), func(p *market.RiskParameters) error {
		if err := market.ValidateCloseFactor(factor); err != nil {
			return err
		}
		p.CloseFactor = factor.Clone()
		return nil
	})
}

// SetLiquidationIncentive updates the collateral bonus paid per unit of
// repaid debt, registry wide.
func (l *Ledger) SetLiquidationIncentive(admin crypto.Address, incentive *uint256.Int) error {
	return l.updateRiskParameters(admin, "liquidation_incentive", decString(incentive), func(p *market.RiskParameters) error {
		if err := market.ValidateLiquidationIncentive(incentive); err != nil {
			return err
		}
		p.LiquidationIncentive = incentive.Clone()
		return nil
	})
}

// SetProtocolSeizeShare updates the fraction of seized collateral booked as
// protocol reserves, registry wide.
func (l *Ledger) SetProtocolSeizeShare(admin crypto.Address, share *uint256.Int) error {
	return l.updateRiskParameters(admin, "protocol_seize_share", decString(share), func(p *market.RiskParameters) error {
		if err := market.ValidateProtocolSeizeShare(share); err != nil {
			return err
		}
		p.ProtocolSeizeShare = share.Clone()
		return nil
	})
}

// SetHalted engages or releases the module-wide halt switch. The switch is
// an operational control and does not persist across restarts.
func (l *Ledger) SetHalted(admin crypto.Address, halted bool) error {
	release, err := l.acquire()
	if err != nil {
		return err
	}
	defer release()

	if l.authority == nil || !l.authority.IsAllowed(admin, market.ActionSetPauses) {
		return market.ErrUnauthorized
	}
	l.halted.Store(halted)
	l.log.Warn("module halt switch changed", "halted", halted)
	l.bus.Emit(events.ParamsUpdated{
		Admin:     admin,
		Parameter: "halted",
		Value:     strconv.FormatBool(halted),
	})
	return nil
}

// GrantRole adds an address to an authority role.
func (l *Ledger) GrantRole(admin crypto.Address, role string, account crypto.Address) error {
	return l.withWrite(func(_ *market.Engine, mgr *state.Manager) ([]events.Typed, error) {
		if l.authority == nil || !l.authority.IsAllowed(admin, ActionManageRoles) {
			return nil, market.ErrUnauthorized
		}
		if account.IsZero() {
			return nil, market.ErrInvalidAmount
		}
		if err := mgr.SetRole(role, account.Bytes()); err != nil {
			return nil, err
		}
		return []events.Typed{events.RoleGranted{Role: role, Account: account, Admin: admin}}, nil
	})
}

// RevokeRole removes an address from an authority role.
func (l *Ledger) RevokeRole(admin crypto.Address, role string, account crypto.Address) error {
	return l.withWrite(func(_ *market.Engine, mgr *state.Manager) ([]events.Typed, error) {
		if l.authority == nil || !l.authority.IsAllowed(admin, ActionManageRoles) {
			return nil, market.ErrUnauthorized
		}
		if account.IsZero() {
			return nil, market.ErrInvalidAmount
		}
		if err := mgr.RemoveRole(role, account.Bytes()); err != nil {
			return nil, err
		}
		return []events.Typed{events.RoleRevoked{Role: role, Account: account, Admin: admin}}, nil
	})
}
