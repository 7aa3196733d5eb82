package state

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"lendcore/crypto"
	"lendcore/storage"
)

// Manager reads and writes ledger records through a flat key-value backend.
// Keys are keccak hashes of namespaced preimages so records from different
// domains can never collide.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided backend.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// TokenMetadata describes a registered underlying token denomination.
type TokenMetadata struct {
	Symbol   string
	Name     string
	Decimals uint8
}

var (
	tokenPrefix      = []byte("token:")
	tokenListKey     = ethcrypto.Keccak256([]byte("token-list"))
	balancePrefix    = []byte("balance:")
	rolePrefix       = []byte("role:")
	marketPrefix     = []byte("market:")
	marketListKey    = ethcrypto.Keccak256([]byte("market-list"))
	positionPrefix   = []byte("position:")
	membershipPrefix = []byte("membership:")
	riskParamsPrefix = []byte("risk-params:")
)

func prefixedKey(prefix []byte, rest ...[]byte) []byte {
	size := len(prefix)
	for _, part := range rest {
		size += len(part) + 1
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for i, part := range rest {
		if i > 0 {
			buf = append(buf, ':')
		}
		buf = append(buf, part...)
	}
	return ethcrypto.Keccak256(buf)
}

func tokenMetadataKey(symbol string) []byte {
	return prefixedKey(tokenPrefix, []byte(symbol))
}

func balanceKey(symbol string, addr []byte) []byte {
	return prefixedKey(balancePrefix, []byte(symbol), addr)
}

func roleKey(role string) []byte {
	return prefixedKey(rolePrefix, []byte(role))
}

func marketKey(symbol string) []byte {
	return prefixedKey(marketPrefix, []byte(symbol))
}

func positionKey(symbol string, addr []byte) []byte {
	return prefixedKey(positionPrefix, []byte(symbol), addr)
}

func membershipKey(addr []byte) []byte {
	return prefixedKey(membershipPrefix, addr)
}

func riskParamsKey(registry string) []byte {
	return prefixedKey(riskParamsPrefix, []byte(registry))
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func (m *Manager) read(key []byte) ([]byte, bool, error) {
	data, err := m.db.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if len(data) == 0 {
		return nil, false, nil
	}
	return data, true, nil
}

func (m *Manager) write(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.db.Put(key, encoded)
}

// RegisterToken stores the metadata for an underlying denomination and
// records it in the token index.
func (m *Manager) RegisterToken(symbol, name string, decimals uint8) error {
	sym := normalizeSymbol(symbol)
	if sym == "" {
		return fmt.Errorf("state: token symbol required")
	}
	display := strings.TrimSpace(name)
	if display == "" {
		display = sym
	}
	meta := &TokenMetadata{Symbol: sym, Name: display, Decimals: decimals}
	if err := m.write(tokenMetadataKey(sym), meta); err != nil {
		return err
	}
	list, err := m.TokenList()
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
	return m.write(tokenListKey, list)
}

// Token returns the metadata stored for the symbol, or nil when unknown.
func (m *Manager) Token(symbol string) (*TokenMetadata, error) {
	sym := normalizeSymbol(symbol)
	if sym == "" {
		return nil, fmt.Errorf("state: token symbol required")
	}
	data, ok, err := m.read(tokenMetadataKey(sym))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	meta := new(TokenMetadata)
	if err := rlp.DecodeBytes(data, meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// TokenList returns the sorted registry of token symbols.
func (m *Manager) TokenList() ([]string, error) {
	data, ok, err := m.read(tokenListKey)
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

// TokenExists reports whether the provided token symbol is registered.
func (m *Manager) TokenExists(symbol string) bool {
	meta, err := m.Token(symbol)
	return err == nil && meta != nil
}

// SetBalance stores a token balance for the account. The token must be
// registered first; the bank refuses to move denominations the ledger does
// not know about.
func (m *Manager) SetBalance(symbol string, addr crypto.Address, amount *uint256.Int) error {
	sym := normalizeSymbol(symbol)
	if sym == "" {
		return fmt.Errorf("state: token symbol required")
	}
	if addr.IsZero() {
		return fmt.Errorf("state: address required")
	}
	if !m.TokenExists(sym) {
		return fmt.Errorf("state: token %s not registered", sym)
	}
	if amount == nil {
		amount = uint256.NewInt(0)
	}
	return m.write(balanceKey(sym, addr.Bytes()), amount)
}

// GetBalance returns the stored balance, or nil when the account holds none.
func (m *Manager) GetBalance(symbol string, addr crypto.Address) (*uint256.Int, error) {
	sym := normalizeSymbol(symbol)
	if sym == "" || addr.IsZero() {
		return nil, nil
	}
	data, ok, err := m.read(balanceKey(sym, addr.Bytes()))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	amount := new(uint256.Int)
	if err := rlp.DecodeBytes(data, amount); err != nil {
		return nil, err
	}
	return amount, nil
}

// SetRole associates an address with the specified role. Duplicate
// assignments are ignored while the stored list remains sorted for
// determinism.
func (m *Manager) SetRole(role string, addr []byte) error {
	trimmed := strings.TrimSpace(role)
	if trimmed == "" {
		return fmt.Errorf("state: role required")
	}
	if len(addr) == 0 {
		return fmt.Errorf("state: address required")
	}
	members, err := m.RoleMembers(trimmed)
	if err != nil {
		return err
	}
	for _, existing := range members {
		if bytes.Equal(existing, addr) {
			return nil
		}
	}
	members = append(members, append([]byte(nil), addr...))
	sort.Slice(members, func(i, j int) bool {
		return hex.EncodeToString(members[i]) < hex.EncodeToString(members[j])
	})
	return m.write(roleKey(trimmed), members)
}

// RemoveRole drops an address from the specified role. Removing an address
// that never held the role is a no-op.
func (m *Manager) RemoveRole(role string, addr []byte) error {
	trimmed := strings.TrimSpace(role)
	if trimmed == "" {
		return fmt.Errorf("state: role required")
	}
	if len(addr) == 0 {
		return fmt.Errorf("state: address required")
	}
	members, err := m.RoleMembers(trimmed)
	if err != nil {
		return err
	}
	filtered := members[:0]
	for _, existing := range members {
		if !bytes.Equal(existing, addr) {
			filtered = append(filtered, existing)
		}
	}
	if len(filtered) == len(members) {
		return nil
	}
	return m.write(roleKey(trimmed), filtered)
}

// RoleMembers returns all addresses assigned to the provided role.
func (m *Manager) RoleMembers(role string) ([][]byte, error) {
	data, ok, err := m.read(roleKey(strings.TrimSpace(role)))
	if err != nil {
		return nil, err
	}
	if !ok {
		return [][]byte{}, nil
	}
	var members [][]byte
	if err := rlp.DecodeBytes(data, &members); err != nil {
		return nil, err
	}
	return members, nil
}

// HasRole reports whether the provided address is associated with the
// specified role. Read errors result in a false return, matching the
// fail-closed semantics the authority checks require.
func (m *Manager) HasRole(role string, addr []byte) bool {
	if len(addr) == 0 {
		return false
	}
	members, err := m.RoleMembers(role)
	if err != nil {
		return false
	}
	for _, member := range members {
		if bytes.Equal(member, addr) {
			return true
		}
	}
	return false
}
