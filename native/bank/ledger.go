package bank

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"lendcore/crypto"
)

var (
	// ErrInsufficientFunds is returned when a debit exceeds the sender's
	// balance.
	ErrInsufficientFunds = errors.New("bank: insufficient funds")
	// ErrInvalidAmount is returned for nil or zero transfer amounts.
	ErrInvalidAmount = errors.New("bank: amount must be positive")
)

type ledgerState interface {
	GetBalance(symbol string, addr crypto.Address) (*uint256.Int, error)
	SetBalance(symbol string, addr crypto.Address, amount *uint256.Int) error
}

// Ledger is the internal token ledger used as the default transfer backend.
// Every market symbol doubles as a token denomination; balances live in the
// state backend keyed by symbol and account.
type Ledger struct {
	state ledgerState
}

// NewLedger constructs a ledger over the provided state backend.
func NewLedger(state ledgerState) *Ledger {
	return &Ledger{state: state}
}

// Balance returns a copy of the account's balance for the given symbol.
func (l *Ledger) Balance(symbol string, addr crypto.Address) (*uint256.Int, error) {
	if l == nil || l.state == nil {
		return nil, fmt.Errorf("bank: ledger not initialised")
	}
	sym, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	balance, err := l.state.GetBalance(sym, addr)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return uint256.NewInt(0), nil
	}
	return new(uint256.Int).Set(balance), nil
}

// Mint credits newly issued units to the recipient. Genesis funding and test
// fixtures are the only callers; the ledger itself never creates supply.
func (l *Ledger) Mint(symbol string, to crypto.Address, amount *uint256.Int) error {
	if l == nil || l.state == nil {
		return fmt.Errorf("bank: ledger not initialised")
	}
	sym, err := normalizeSymbol(symbol)
	if err != nil {
		return err
	}
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	return l.credit(sym, to, amount)
}

// Transfer moves amount from one account to another within the same
// denomination.
func (l *Ledger) Transfer(symbol string, from, to crypto.Address, amount *uint256.Int) error {
	if l == nil || l.state == nil {
		return fmt.Errorf("bank: ledger not initialised")
	}
	sym, err := normalizeSymbol(symbol)
	if err != nil {
		return err
	}
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	if from.Equal(to) {
		return nil
	}
	if err := l.debit(sym, from, amount); err != nil {
		return err
	}
	return l.credit(sym, to, amount)
}

// TransferIn moves amount from the supplier into the market vault and reports
// the credited amount. The internal ledger never skims fees, so the credited
// amount always equals the requested amount.
func (l *Ledger) TransferIn(symbol string, from, vault crypto.Address, amount *uint256.Int) (*uint256.Int, error) {
	if err := l.Transfer(symbol, from, vault, amount); err != nil {
		return nil, err
	}
	return new(uint256.Int).Set(amount), nil
}

// TransferOut moves amount from the market vault to the recipient.
func (l *Ledger) TransferOut(symbol string, vault, to crypto.Address, amount *uint256.Int) error {
	return l.Transfer(symbol, vault, to, amount)
}

func (l *Ledger) debit(symbol string, addr crypto.Address, amount *uint256.Int) error {
	balance, err := l.state.GetBalance(symbol, addr)
	if err != nil {
		return err
	}
	if balance == nil {
		balance = uint256.NewInt(0)
	}
	if balance.Lt(amount) {
		return fmt.Errorf("%w: %s balance %s, need %s", ErrInsufficientFunds, symbol, balance.Dec(), amount.Dec())
	}
	next := new(uint256.Int).Sub(balance, amount)
	return l.state.SetBalance(symbol, addr, next)
}

func (l *Ledger) credit(symbol string, addr crypto.Address, amount *uint256.Int) error {
	balance, err := l.state.GetBalance(symbol, addr)
	if err != nil {
		return err
	}
	if balance == nil {
		balance = uint256.NewInt(0)
	}
	next, overflow := new(uint256.Int).AddOverflow(balance, amount)
	if overflow {
		return fmt.Errorf("bank: %s balance overflow for %s", symbol, addr.String())
	}
	return l.state.SetBalance(symbol, addr, next)
}

func normalizeSymbol(symbol string) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if sym == "" {
		return "", fmt.Errorf("bank: symbol required")
	}
	return sym, nil
}
