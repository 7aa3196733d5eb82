package market

import (
	"errors"
	"testing"
)

func TestExchangeRateBeforeFirstMint(t *testing.T) {
	mkt := &Market{Symbol: "ATOM", InitialExchangeRate: MustExp("0.02")}
	mkt.normalize()

	rate, err := mkt.ExchangeRate()
	if err != nil {
		t.Fatalf("exchange rate: %v", err)
	}
	if !rate.Eq(MustExp("0.02")) {
		t.Fatalf("unexpected seed rate: got %s", rate)
	}
}

func TestExchangeRateFromTotals(t *testing.T) {
	mkt := &Market{
		Symbol:        "ATOM",
		TotalCash:     units(120),
		TotalBorrows:  units(30),
		TotalReserves: units(10),
		TotalSupply:   units(100),
	}
	mkt.normalize()

	rate, err := mkt.ExchangeRate()
	if err != nil {
		t.Fatalf("exchange rate: %v", err)
	}
	if !rate.Eq(MustExp("1.4")) {
		t.Fatalf("unexpected rate: got %s want %s", rate, MustExp("1.4"))
	}
}

func TestBorrowBalanceGrowsWithIndex(t *testing.T) {
	mkt := &Market{Symbol: "ATOM", BorrowIndex: MustExp("1.5")}
	mkt.normalize()
	position := &AccountPosition{
		BorrowPrincipal:     units(100),
		BorrowIndexSnapshot: cloneInt(expScale),
	}

	balance, err := mkt.BorrowBalance(position)
	if err != nil {
		t.Fatalf("borrow balance: %v", err)
	}
	if !balance.Eq(units(150)) {
		t.Fatalf("unexpected balance: got %s want %s", balance, units(150))
	}
}

func TestBorrowBalanceZeroPrincipal(t *testing.T) {
	mkt := &Market{Symbol: "ATOM"}
	mkt.normalize()

	balance, err := mkt.BorrowBalance(&AccountPosition{})
	if err != nil {
		t.Fatalf("borrow balance: %v", err)
	}
	if !balance.IsZero() {
		t.Fatalf("empty position must owe nothing, got %s", balance)
	}

	// A principal without a snapshot is corrupt state, not a zero debt.
	_, err = mkt.BorrowBalance(&AccountPosition{BorrowPrincipal: units(10)})
	if !errors.Is(err, ErrMathDivideByZero) {
		t.Fatalf("expected divide by zero, got %v", err)
	}
}
