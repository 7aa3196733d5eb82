package core

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"lendcore/core/events"
	"lendcore/core/state"
	"lendcore/crypto"
	"lendcore/native/bank"
	"lendcore/native/market"
)

// TokenGenesis registers an underlying token denomination at genesis.
type TokenGenesis struct {
	Symbol   string
	Name     string
	Decimals uint8
}

// RoleGenesis seeds an authority role with its initial members.
type RoleGenesis struct {
	Role      string
	Addresses []crypto.Address
}

// BalanceGenesis funds an account with underlying tokens at genesis.
type BalanceGenesis struct {
	Address crypto.Address
	Symbol  string
	Amount  *uint256.Int
}

// Genesis is the initial state applied to an empty store: token
// denominations, authority roles, funded balances and the markets listed
// from block zero.
type Genesis struct {
	Registry string
	Params   *market.RiskParameters
	Tokens   []TokenGenesis
	Roles    []RoleGenesis
	Balances []BalanceGenesis
	Markets  []*market.Market
}

// genesisAuthority admits every caller. Only used while applying genesis,
// where no roles exist yet.
type genesisAuthority struct{}

func (genesisAuthority) IsAllowed(crypto.Address, string) bool { return true }

// ApplyGenesis seeds an empty store with the genesis document in one state
// transition. A store that already holds tokens or markets refuses a second
// genesis.
func (l *Ledger) ApplyGenesis(genesis *Genesis) error {
	if l == nil {
		return errors.New("core: ledger not initialised")
	}
	if genesis == nil {
		return errors.New("core: genesis document required")
	}
	if genesis.Registry != "" && genesis.Registry != l.registry {
		return fmt.Errorf("core: genesis registry %q does not match ledger registry %q", genesis.Registry, l.registry)
	}

	release, err := l.acquire()
	if err != nil {
		return err
	}
	defer release()

	base := state.NewManager(l.db)
	tokens, err := base.TokenList()
	if err != nil {
		return err
	}
	markets, err := base.ListMarkets()
	if err != nil {
		return err
	}
	if len(tokens) > 0 || len(markets) > 0 {
		return ErrGenesisApplied
	}

	params := l.params.Clone()
	if genesis.Params != nil {
		if genesis.Params.CloseFactor != nil {
			if err := market.ValidateCloseFactor(genesis.Params.CloseFactor); err != nil {
				return err
			}
		}
		if genesis.Params.LiquidationIncentive != nil {
			if err := market.ValidateLiquidationIncentive(genesis.Params.LiquidationIncentive); err != nil {
				return err
			}
		}
		if genesis.Params.ProtocolSeizeShare != nil {
			if err := market.ValidateProtocolSeizeShare(genesis.Params.ProtocolSeizeShare); err != nil {
				return err
			}
		}
		params = genesis.Params.Clone()
	}

	overlay := state.NewOverlay(l.db)
	mgr := state.NewManager(overlay)

	if err := mgr.PutRiskParameters(l.registry, params); err != nil {
		return err
	}
	for _, token := range genesis.Tokens {
		if err := mgr.RegisterToken(token.Symbol, token.Name, token.Decimals); err != nil {
			return err
		}
	}
	for _, role := range genesis.Roles {
		for _, addr := range role.Addresses {
			if addr.IsZero() {
				return fmt.Errorf("core: genesis role %q has a zero address member", role.Role)
			}
			if err := mgr.SetRole(role.Role, addr.Bytes()); err != nil {
				return err
			}
		}
	}
	ledger := bank.NewLedger(mgr)
	for _, balance := range genesis.Balances {
		if err := ledger.Mint(balance.Symbol, balance.Address, balance.Amount); err != nil {
			return err
		}
	}

	eng := market.NewEngine(l.registry, params)
	eng.SetState(mgr)
	eng.SetAuthority(genesisAuthority{})
	eng.SetBlockHeight(l.clock.Height())
	evts := make([]events.Typed, 0, len(genesis.Markets))
	for _, mkt := range genesis.Markets {
		if mkt == nil {
			return errors.New("core: genesis market record is nil")
		}
		if !mgr.TokenExists(mkt.Symbol) {
			return fmt.Errorf("core: genesis market %s has no registered token", market.CanonicalSymbol(mkt.Symbol))
		}
		if err := eng.ListMarket(crypto.Address{}, mkt); err != nil {
			return err
		}
		evts = append(evts, events.MarketListed{Symbol: mkt.Symbol, Registry: l.registry})
	}

	l.stateMu.Lock()
	err = overlay.Commit()
	if err == nil {
		l.params = params
	}
	l.stateMu.Unlock()
	if err != nil {
		return fmt.Errorf("core: commit genesis: %w", err)
	}

	l.log.Info("genesis applied",
		"registry", l.registry,
		"tokens", len(genesis.Tokens),
		"markets", len(genesis.Markets),
		"balances", len(genesis.Balances))
	for _, evt := range evts {
		l.bus.Emit(evt)
	}
	return nil
}
