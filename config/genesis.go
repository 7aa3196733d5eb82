package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/holiman/uint256"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
	"lukechampine.com/blake3"

	"lendcore/core"
	"lendcore/crypto"
	"lendcore/native/market"
)

// GenesisSpec is the YAML market genesis: the tokens, roles, balances and
// market listings a fresh ledger boots with. Factors and amounts stay
// strings in the file; Build resolves them into ledger types.
type GenesisSpec struct {
	Registry string        `yaml:"registry"`
	Params   *ParamsSpec   `yaml:"params,omitempty"`
	Tokens   []TokenSpec   `yaml:"tokens"`
	Roles    []RoleSpec    `yaml:"roles,omitempty"`
	Balances []BalanceSpec `yaml:"balances,omitempty"`
	Markets  []MarketSpec  `yaml:"markets"`
}

// ParamsSpec overrides the registry-wide liquidation parameters.
type ParamsSpec struct {
	CloseFactor          string `yaml:"close_factor"`
	LiquidationIncentive string `yaml:"liquidation_incentive"`
	ProtocolSeizeShare   string `yaml:"protocol_seize_share"`
}

// TokenSpec registers an underlying token.
type TokenSpec struct {
	Symbol   string `yaml:"symbol"`
	Name     string `yaml:"name"`
	Decimals uint8  `yaml:"decimals"`
}

// RoleSpec seeds a role with its initial members.
type RoleSpec struct {
	Role      string   `yaml:"role"`
	Addresses []string `yaml:"addresses"`
}

// BalanceSpec funds an account at genesis.
type BalanceSpec struct {
	Address string `yaml:"address"`
	Symbol  string `yaml:"symbol"`
	Amount  string `yaml:"amount"`
}

// MarketSpec lists a money market. Rates are annualized decimals split
// across the configured blocks per year at build time.
type MarketSpec struct {
	Symbol           string        `yaml:"symbol"`
	CollateralFactor string        `yaml:"collateral_factor"`
	ReserveFactor    string        `yaml:"reserve_factor"`
	SupplyCap        string        `yaml:"supply_cap,omitempty"`
	BorrowCap        string        `yaml:"borrow_cap,omitempty"`
	RateModel        RateModelSpec `yaml:"rate_model"`
}

// RateModelSpec parameterizes the kinked interest curve.
type RateModelSpec struct {
	BaseRatePerYear       string `yaml:"base_rate_per_year"`
	MultiplierPerYear     string `yaml:"multiplier_per_year"`
	JumpMultiplierPerYear string `yaml:"jump_multiplier_per_year"`
	Kink                  string `yaml:"kink"`
}

// LoadGenesis reads the YAML genesis from disk and returns the parsed spec
// together with the blake3 digest of the raw file, hex encoded.
func LoadGenesis(path string) (*GenesisSpec, string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read genesis %s: %w", path, err)
	}
	spec := &GenesisSpec{}
	if err := yaml.Unmarshal(raw, spec); err != nil {
		return nil, "", fmt.Errorf("decode genesis %s: %w", path, err)
	}
	spec.normalize()
	if err := spec.validate(); err != nil {
		return nil, "", fmt.Errorf("genesis %s: %w", path, err)
	}
	sum := blake3.Sum256(raw)
	return spec, hex.EncodeToString(sum[:]), nil
}

// CheckGenesisDigest compares the loaded genesis digest against the expected
// one from the daemon config. An empty expectation skips the check.
func (cfg *Config) CheckGenesisDigest(actual string) error {
	if cfg.GenesisDigest == "" {
		return nil
	}
	if !strings.EqualFold(cfg.GenesisDigest, actual) {
		return fmt.Errorf("genesis digest mismatch: file %s, config expects %s", actual, cfg.GenesisDigest)
	}
	return nil
}

func (s *GenesisSpec) normalize() {
	if s == nil {
		return
	}
	s.Registry = strings.TrimSpace(s.Registry)
	if s.Registry == "" {
		s.Registry = defaultRegistryID
	}
	for i := range s.Tokens {
		s.Tokens[i].Symbol = market.CanonicalSymbol(s.Tokens[i].Symbol)
		// Display names come straight from operator YAML; NFC keeps the
		// stored metadata byte-stable across differently composed inputs.
		s.Tokens[i].Name = norm.NFC.String(strings.TrimSpace(s.Tokens[i].Name))
	}
	for i := range s.Roles {
		s.Roles[i].Role = strings.TrimSpace(s.Roles[i].Role)
	}
	for i := range s.Balances {
		s.Balances[i].Symbol = market.CanonicalSymbol(s.Balances[i].Symbol)
		s.Balances[i].Address = strings.TrimSpace(s.Balances[i].Address)
		s.Balances[i].Amount = strings.TrimSpace(s.Balances[i].Amount)
	}
	for i := range s.Markets {
		s.Markets[i].Symbol = market.CanonicalSymbol(s.Markets[i].Symbol)
	}
}

func (s *GenesisSpec) validate() error {
	if s == nil {
		return fmt.Errorf("genesis is missing")
	}
	if len(s.Tokens) == 0 {
		return fmt.Errorf("at least one token required")
	}
	tokens := make(map[string]bool, len(s.Tokens))
	for _, tok := range s.Tokens {
		if tok.Symbol == "" {
			return fmt.Errorf("token symbol required")
		}
		if tokens[tok.Symbol] {
			return fmt.Errorf("duplicate token %s", tok.Symbol)
		}
		if tok.Decimals > 18 {
			return fmt.Errorf("token %s: decimals above 18", tok.Symbol)
		}
		tokens[tok.Symbol] = true
	}
	for _, role := range s.Roles {
		if role.Role == "" {
			return fmt.Errorf("role name required")
		}
		if len(role.Addresses) == 0 {
			return fmt.Errorf("role %s has no members", role.Role)
		}
	}
	for _, bal := range s.Balances {
		if !tokens[bal.Symbol] {
			return fmt.Errorf("balance references unknown token %s", bal.Symbol)
		}
	}
	markets := make(map[string]bool, len(s.Markets))
	for _, mkt := range s.Markets {
		if !tokens[mkt.Symbol] {
			return fmt.Errorf("market %s has no token entry", mkt.Symbol)
		}
		if markets[mkt.Symbol] {
			return fmt.Errorf("duplicate market %s", mkt.Symbol)
		}
		markets[mkt.Symbol] = true
	}
	return nil
}

// Build resolves the spec into the ledger genesis, splitting annualized
// rates across blocksPerYear.
func (s *GenesisSpec) Build(blocksPerYear uint64) (*core.Genesis, error) {
	if blocksPerYear == 0 {
		return nil, fmt.Errorf("blocks per year must be positive")
	}
	genesis := &core.Genesis{Registry: s.Registry}

	if s.Params != nil {
		params, err := s.Params.build()
		if err != nil {
			return nil, err
		}
		genesis.Params = params
	}

	for _, tok := range s.Tokens {
		genesis.Tokens = append(genesis.Tokens, core.TokenGenesis{
			Symbol:   tok.Symbol,
			Name:     tok.Name,
			Decimals: tok.Decimals,
		})
	}

	for _, role := range s.Roles {
		entry := core.RoleGenesis{Role: role.Role}
		for _, encoded := range role.Addresses {
			addr, err := crypto.DecodeAddress(strings.TrimSpace(encoded))
			if err != nil {
				return nil, fmt.Errorf("role %s: decode address %q: %w", role.Role, encoded, err)
			}
			entry.Addresses = append(entry.Addresses, addr)
		}
		genesis.Roles = append(genesis.Roles, entry)
	}

	for _, bal := range s.Balances {
		addr, err := crypto.DecodeAddress(bal.Address)
		if err != nil {
			return nil, fmt.Errorf("balance: decode address %q: %w", bal.Address, err)
		}
		amount, err := uint256.FromDecimal(bal.Amount)
		if err != nil {
			return nil, fmt.Errorf("balance for %s: parse amount %q: %w", bal.Symbol, bal.Amount, err)
		}
		if amount.IsZero() {
			return nil, fmt.Errorf("balance for %s: amount must be positive", bal.Symbol)
		}
		genesis.Balances = append(genesis.Balances, core.BalanceGenesis{
			Address: addr,
			Symbol:  bal.Symbol,
			Amount:  amount,
		})
	}

	for _, spec := range s.Markets {
		mkt, err := spec.build(blocksPerYear)
		if err != nil {
			return nil, fmt.Errorf("market %s: %w", spec.Symbol, err)
		}
		genesis.Markets = append(genesis.Markets, mkt)
	}

	return genesis, nil
}

func (p *ParamsSpec) build() (*market.RiskParameters, error) {
	params := market.DefaultRiskParameters()
	if p.CloseFactor != "" {
		value, err := mantissa("close_factor", p.CloseFactor)
		if err != nil {
			return nil, err
		}
		if err := market.ValidateCloseFactor(value); err != nil {
			return nil, err
		}
		params.CloseFactor = value
	}
	if p.LiquidationIncentive != "" {
		value, err := mantissa("liquidation_incentive", p.LiquidationIncentive)
		if err != nil {
			return nil, err
		}
		if err := market.ValidateLiquidationIncentive(value); err != nil {
			return nil, err
		}
		params.LiquidationIncentive = value
	}
	if p.ProtocolSeizeShare != "" {
		value, err := mantissa("protocol_seize_share", p.ProtocolSeizeShare)
		if err != nil {
			return nil, err
		}
		if err := market.ValidateProtocolSeizeShare(value); err != nil {
			return nil, err
		}
		params.ProtocolSeizeShare = value
	}
	return &params, nil
}

func (m *MarketSpec) build(blocksPerYear uint64) (*market.Market, error) {
	collateral, err := mantissa("collateral_factor", m.CollateralFactor)
	if err != nil {
		return nil, err
	}
	if err := market.ValidateCollateralFactor(collateral); err != nil {
		return nil, err
	}
	reserve, err := mantissa("reserve_factor", m.ReserveFactor)
	if err != nil {
		return nil, err
	}
	if err := market.ValidateReserveFactor(reserve); err != nil {
		return nil, err
	}

	mkt := &market.Market{
		Symbol:           m.Symbol,
		CollateralFactor: collateral,
		ReserveFactor:    reserve,
	}
	if m.SupplyCap != "" {
		limit, err := uint256.FromDecimal(m.SupplyCap)
		if err != nil {
			return nil, fmt.Errorf("parse supply_cap %q: %w", m.SupplyCap, err)
		}
		mkt.SupplyCap = limit
	}
	if m.BorrowCap != "" {
		limit, err := uint256.FromDecimal(m.BorrowCap)
		if err != nil {
			return nil, fmt.Errorf("parse borrow_cap %q: %w", m.BorrowCap, err)
		}
		mkt.BorrowCap = limit
	}

	model, err := m.RateModel.build(blocksPerYear)
	if err != nil {
		return nil, err
	}
	mkt.RateModel = model
	return mkt, nil
}

func (r *RateModelSpec) build(blocksPerYear uint64) (market.JumpRateModel, error) {
	model := market.JumpRateModel{}

	base, err := annualRate("base_rate_per_year", r.BaseRatePerYear, blocksPerYear)
	if err != nil {
		return model, err
	}
	multiplier, err := annualRate("multiplier_per_year", r.MultiplierPerYear, blocksPerYear)
	if err != nil {
		return model, err
	}
	jump, err := annualRate("jump_multiplier_per_year", r.JumpMultiplierPerYear, blocksPerYear)
	if err != nil {
		return model, err
	}
	model.BaseRatePerBlock = base
	model.MultiplierPerBlock = multiplier
	model.JumpMultiplierPerBlock = jump

	kink := strings.TrimSpace(r.Kink)
	if kink == "" {
		kink = "1"
	}
	model.Kink, err = mantissa("kink", kink)
	if err != nil {
		return model, err
	}
	if model.Kink.Gt(market.MustExp("1")) {
		return model, fmt.Errorf("kink above 1")
	}
	return model, nil
}

func mantissa(field, value string) (*uint256.Int, error) {
	parsed, err := market.MantissaFromDecimal(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("parse %s %q: %w", field, value, err)
	}
	return parsed, nil
}

// annualRate parses a per-year decimal rate and splits it per block. Empty
// means zero.
func annualRate(field, value string, blocksPerYear uint64) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return new(uint256.Int), nil
	}
	annual, err := mantissa(field, trimmed)
	if err != nil {
		return nil, err
	}
	return market.RatePerBlock(annual, blocksPerYear), nil
}
