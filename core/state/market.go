package state

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"lendcore/crypto"
	"lendcore/native/market"
)

// storedPosition flattens the account address into raw bytes so the record
// survives RLP, which cannot see through the address type's unexported
// fields.
type storedPosition struct {
	Address             []byte
	ClaimTokens         *uint256.Int
	BorrowPrincipal     *uint256.Int
	BorrowIndexSnapshot *uint256.Int
}

// GetMarket loads the market record for the symbol, or nil when unlisted.
func (m *Manager) GetMarket(symbol string) (*market.Market, error) {
	sym := normalizeSymbol(symbol)
	if sym == "" {
		return nil, nil
	}
	data, ok, err := m.read(marketKey(sym))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	mkt := new(market.Market)
	if err := rlp.DecodeBytes(data, mkt); err != nil {
		return nil, err
	}
	return mkt, nil
}

// PutMarket persists the market record and keeps the listing index current.
func (m *Manager) PutMarket(mkt *market.Market) error {
	if mkt == nil {
		return fmt.Errorf("state: market required")
	}
	sym := normalizeSymbol(mkt.Symbol)
	if sym == "" {
		return fmt.Errorf("state: market symbol required")
	}
	if err := m.write(marketKey(sym), mkt); err != nil {
		return err
	}
	list, err := m.ListMarkets()
	if err != nil {
		return err
	}
	for _, existing := range list {
		if existing == sym {
			return nil
		}
	}
	list = append(list, sym)
	sort.Strings(list)
	return m.write(marketListKey, list)
}

// ListMarkets returns the sorted symbols of every listed market.
func (m *Manager) ListMarkets() ([]string, error) {
	data, ok, err := m.read(marketListKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []string{}, nil
	}
	var list []string
	if err := rlp.DecodeBytes(data, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// GetPosition loads the account's position in the market, or nil when the
// account never touched it.
func (m *Manager) GetPosition(symbol string, addr crypto.Address) (*market.AccountPosition, error) {
	sym := normalizeSymbol(symbol)
	if sym == "" || addr.IsZero() {
		return nil, nil
	}
	data, ok, err := m.read(positionKey(sym, addr.Bytes()))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	stored := new(storedPosition)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, err
	}
	decoded, err := crypto.NewAddress(crypto.LendPrefix, stored.Address)
	if err != nil {
		return nil, fmt.Errorf("state: corrupt position record for %s: %w", sym, err)
	}
	return &market.AccountPosition{
		Address:             decoded,
		ClaimTokens:         stored.ClaimTokens,
		BorrowPrincipal:     stored.BorrowPrincipal,
		BorrowIndexSnapshot: stored.BorrowIndexSnapshot,
	}, nil
}

// PutPosition persists the account's position in the market.
func (m *Manager) PutPosition(symbol string, position *market.AccountPosition) error {
	if position == nil {
		return fmt.Errorf("state: position required")
	}
	sym := normalizeSymbol(symbol)
	if sym == "" {
		return fmt.Errorf("state: market symbol required")
	}
	if position.Address.IsZero() {
		return fmt.Errorf("state: position address required")
	}
	stored := &storedPosition{
		Address:             position.Address.Bytes(),
		ClaimTokens:         position.ClaimTokens,
		BorrowPrincipal:     position.BorrowPrincipal,
		BorrowIndexSnapshot: position.BorrowIndexSnapshot,
	}
	return m.write(positionKey(sym, position.Address.Bytes()), stored)
}

// GetMembership returns the markets the account entered as collateral.
func (m *Manager) GetMembership(addr crypto.Address) ([]string, error) {
	if addr.IsZero() {
		return nil, nil
	}
	data, ok, err := m.read(membershipKey(addr.Bytes()))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var symbols []string
	if err := rlp.DecodeBytes(data, &symbols); err != nil {
		return nil, err
	}
	return symbols, nil
}

// PutMembership replaces the account's collateral membership list.
func (m *Manager) PutMembership(addr crypto.Address, symbols []string) error {
	if addr.IsZero() {
		return fmt.Errorf("state: address required")
	}
	stored := append([]string{}, symbols...)
	return m.write(membershipKey(addr.Bytes()), stored)
}

// GetRiskParameters loads the registry-wide liquidation controls, or nil when
// the registry has never persisted any.
func (m *Manager) GetRiskParameters(registry string) (*market.RiskParameters, error) {
	registry = strings.TrimSpace(registry)
	if registry == "" {
		return nil, nil
	}
	data, ok, err := m.read(riskParamsKey(registry))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	params := new(market.RiskParameters)
	if err := rlp.DecodeBytes(data, params); err != nil {
		return nil, err
	}
	return params, nil
}

// PutRiskParameters persists the registry-wide liquidation controls.
func (m *Manager) PutRiskParameters(registry string, params market.RiskParameters) error {
	registry = strings.TrimSpace(registry)
	if registry == "" {
		return fmt.Errorf("state: registry required")
	}
	stored := params.Clone()
	return m.write(riskParamsKey(registry), &stored)
}
