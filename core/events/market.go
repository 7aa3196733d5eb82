package events

import (
	"strconv"

	"github.com/holiman/uint256"

	"lendcore/crypto"
)

// Event types emitted by the market ledger.
const (
	TypeMarketListed      = "market.listed"
	TypeMarketMinted      = "market.minted"
	TypeMarketRedeemed    = "market.redeemed"
	TypeMarketBorrowed    = "market.borrowed"
	TypeMarketRepaid      = "market.repaid"
	TypeClaimsTransferred = "market.claims_transferred"
	TypeMarketEntered     = "market.entered"
	TypeMarketExited      = "market.exited"
	TypeMarketLiquidated  = "market.liquidated"
	TypeMarketAccrued     = "market.accrued"
	TypeReservesChanged   = "market.reserves_changed"
	TypeParamsUpdated     = "market.params_updated"
	TypeRoleGranted       = "market.role_granted"
	TypeRoleRevoked       = "market.role_revoked"
)

func amount(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

// addrString renders an account attribute. Zero-value addresses, such as the
// implicit genesis admin, render empty rather than panicking in bech32.
func addrString(a crypto.Address) string {
	if a.IsZero() {
		return ""
	}
	return a.String()
}

// MarketListed records a new pool joining the registry.
type MarketListed struct {
	Symbol   string
	Registry string
	Admin    crypto.Address
}

func (e MarketListed) EventType() string { return TypeMarketListed }

func (e MarketListed) Event() *Event {
	return &Event{
		Type: TypeMarketListed,
		Attributes: map[string]string{
			"symbol":   e.Symbol,
			"registry": e.Registry,
			"admin":    addrString(e.Admin),
		},
	}
}

// MarketMinted records a supply deposit and the claim tokens it minted.
type MarketMinted struct {
	Symbol   string
	Supplier crypto.Address
	Amount   *uint256.Int
	Claims   *uint256.Int
}

func (e MarketMinted) EventType() string { return TypeMarketMinted }

func (e MarketMinted) Event() *Event {
	return &Event{
		Type: TypeMarketMinted,
		Attributes: map[string]string{
			"symbol":   e.Symbol,
			"supplier": addrString(e.Supplier),
			"amount":   amount(e.Amount),
			"claims":   amount(e.Claims),
		},
	}
}

// MarketRedeemed records claim tokens burned for underlying.
type MarketRedeemed struct {
	Symbol   string
	Supplier crypto.Address
	Claims   *uint256.Int
	Amount   *uint256.Int
}

func (e MarketRedeemed) EventType() string { return TypeMarketRedeemed }

func (e MarketRedeemed) Event() *Event {
	return &Event{
		Type: TypeMarketRedeemed,
		Attributes: map[string]string{
			"symbol":   e.Symbol,
			"supplier": addrString(e.Supplier),
			"claims":   amount(e.Claims),
			"amount":   amount(e.Amount),
		},
	}
}

// MarketBorrowed records underlying drawn against collateral.
type MarketBorrowed struct {
	Symbol       string
	Borrower     crypto.Address
	Amount       *uint256.Int
	TotalBorrows *uint256.Int
}

func (e MarketBorrowed) EventType() string { return TypeMarketBorrowed }

func (e MarketBorrowed) Event() *Event {
	return &Event{
		Type: TypeMarketBorrowed,
		Attributes: map[string]string{
			"symbol":        e.Symbol,
			"borrower":      addrString(e.Borrower),
			"amount":        amount(e.Amount),
			"total_borrows": amount(e.TotalBorrows),
		},
	}
}

// MarketRepaid records a debt repayment. Payer and borrower differ when the
// debt was settled on the borrower's behalf.
type MarketRepaid struct {
	Symbol    string
	Payer     crypto.Address
	Borrower  crypto.Address
	Amount    *uint256.Int
	Remaining *uint256.Int
}

func (e MarketRepaid) EventType() string { return TypeMarketRepaid }

func (e MarketRepaid) Event() *Event {
	return &Event{
		Type: TypeMarketRepaid,
		Attributes: map[string]string{
			"symbol":    e.Symbol,
			"payer":     addrString(e.Payer),
			"borrower":  addrString(e.Borrower),
			"amount":    amount(e.Amount),
			"remaining": amount(e.Remaining),
		},
	}
}

// ClaimsTransferred records claim tokens moving between accounts without
// touching pool cash.
type ClaimsTransferred struct {
	Symbol string
	From   crypto.Address
	To     crypto.Address
	Claims *uint256.Int
}

func (e ClaimsTransferred) EventType() string { return TypeClaimsTransferred }

func (e ClaimsTransferred) Event() *Event {
	return &Event{
		Type: TypeClaimsTransferred,
		Attributes: map[string]string{
			"symbol": e.Symbol,
			"from":   addrString(e.From),
			"to":     addrString(e.To),
			"claims": amount(e.Claims),
		},
	}
}

// MarketEntered records an account opting a market into its collateral set.
type MarketEntered struct {
	Symbol  string
	Account crypto.Address
}

func (e MarketEntered) EventType() string { return TypeMarketEntered }

func (e MarketEntered) Event() *Event {
	return &Event{
		Type: TypeMarketEntered,
		Attributes: map[string]string{
			"symbol":  e.Symbol,
			"account": addrString(e.Account),
		},
	}
}

// MarketExited records an account dropping a market from its collateral set.
type MarketExited struct {
	Symbol  string
	Account crypto.Address
}

func (e MarketExited) EventType() string { return TypeMarketExited }

func (e MarketExited) Event() *Event {
	return &Event{
		Type: TypeMarketExited,
		Attributes: map[string]string{
			"symbol":  e.Symbol,
			"account": addrString(e.Account),
		},
	}
}

// MarketLiquidated records a liquidation settlement across the debt and
// collateral markets.
type MarketLiquidated struct {
	DebtSymbol       string
	CollateralSymbol string
	Liquidator       crypto.Address
	Borrower         crypto.Address
	Repaid           *uint256.Int
	SeizedClaims     *uint256.Int
	LiquidatorClaims *uint256.Int
	ProtocolClaims   *uint256.Int
}

func (e MarketLiquidated) EventType() string { return TypeMarketLiquidated }

func (e MarketLiquidated) Event() *Event {
	return &Event{
		Type: TypeMarketLiquidated,
		Attributes: map[string]string{
			"debt_symbol":       e.DebtSymbol,
			"collateral_symbol": e.CollateralSymbol,
			"liquidator":        addrString(e.Liquidator),
			"borrower":          addrString(e.Borrower),
			"repaid":            amount(e.Repaid),
			"seized_claims":     amount(e.SeizedClaims),
			"liquidator_claims": amount(e.LiquidatorClaims),
			"protocol_claims":   amount(e.ProtocolClaims),
		},
	}
}

// MarketAccrued records an interest accrual sweep advancing a market's
// borrow index.
type MarketAccrued struct {
	Symbol        string
	Block         uint64
	BorrowIndex   *uint256.Int
	TotalBorrows  *uint256.Int
	TotalReserves *uint256.Int
}

func (e MarketAccrued) EventType() string { return TypeMarketAccrued }

func (e MarketAccrued) Event() *Event {
	return &Event{
		Type: TypeMarketAccrued,
		Attributes: map[string]string{
			"symbol":         e.Symbol,
			"block":          strconv.FormatUint(e.Block, 10),
			"borrow_index":   amount(e.BorrowIndex),
			"total_borrows":  amount(e.TotalBorrows),
			"total_reserves": amount(e.TotalReserves),
		},
	}
}

// Reserve movement directions.
const (
	ReservesAdded   = "added"
	ReservesReduced = "reduced"
)

// ReservesChanged records underlying moving into or out of a pool's
// reserves.
type ReservesChanged struct {
	Symbol        string
	Account       crypto.Address
	Direction     string
	Amount        *uint256.Int
	TotalReserves *uint256.Int
}

func (e ReservesChanged) EventType() string { return TypeReservesChanged }

func (e ReservesChanged) Event() *Event {
	return &Event{
		Type: TypeReservesChanged,
		Attributes: map[string]string{
			"symbol":         e.Symbol,
			"account":        addrString(e.Account),
			"direction":      e.Direction,
			"amount":         amount(e.Amount),
			"total_reserves": amount(e.TotalReserves),
		},
	}
}

// RoleGranted records an address joining an authority role.
type RoleGranted struct {
	Role    string
	Account crypto.Address
	Admin   crypto.Address
}

func (e RoleGranted) EventType() string { return TypeRoleGranted }

func (e RoleGranted) Event() *Event {
	return &Event{
		Type: TypeRoleGranted,
		Attributes: map[string]string{
			"role":    e.Role,
			"account": addrString(e.Account),
			"admin":   addrString(e.Admin),
		},
	}
}

// RoleRevoked records an address leaving an authority role.
type RoleRevoked struct {
	Role    string
	Account crypto.Address
	Admin   crypto.Address
}

func (e RoleRevoked) EventType() string { return TypeRoleRevoked }

func (e RoleRevoked) Event() *Event {
	return &Event{
		Type: TypeRoleRevoked,
		Attributes: map[string]string{
			"role":    e.Role,
			"account": addrString(e.Account),
			"admin":   addrString(e.Admin),
		},
	}
}

// ParamsUpdated records an administrative parameter change. Symbol is empty
// for registry-wide parameters.
type ParamsUpdated struct {
	Symbol    string
	Admin     crypto.Address
	Parameter string
	Value     string
}

func (e ParamsUpdated) EventType() string { return TypeParamsUpdated }

func (e ParamsUpdated) Event() *Event {
	return &Event{
		Type: TypeParamsUpdated,
		Attributes: map[string]string{
			"symbol":    e.Symbol,
			"admin":     addrString(e.Admin),
			"parameter": e.Parameter,
			"value":     e.Value,
		},
	}
}
