package market

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
)

func newAdminEngine() (*Engine, *mockEngineState, *mockOracle, *mockBank) {
	engine, state, oracle, bank := newTestEngine()
	engine.SetAuthority(mockAuthority{admin: makeAddress(0xAA)})
	return engine, state, oracle, bank
}

func TestListMarketStampsRegistry(t *testing.T) {
	engine, state, _, _ := newAdminEngine()
	engine.SetBlockHeight(7)
	admin := makeAddress(0xAA)

	err := engine.ListMarket(admin, &Market{
		Symbol:           " atom ",
		CollateralFactor: MustExp("0.5"),
	})
	if err != nil {
		t.Fatalf("list market: %v", err)
	}

	stored, ok := state.markets["ATOM"]
	if !ok {
		t.Fatalf("market not stored under normalized symbol: %v", state.markets)
	}
	if stored.RegistryID != "main" {
		t.Fatalf("unexpected registry: got %q", stored.RegistryID)
	}
	if stored.AccrualBlock != 7 {
		t.Fatalf("unexpected accrual block: got %d", stored.AccrualBlock)
	}
	if !stored.BorrowIndex.Eq(expScale) {
		t.Fatalf("borrow index must seed at one, got %s", stored.BorrowIndex)
	}

	if err := engine.ListMarket(admin, &Market{Symbol: "ATOM"}); !errors.Is(err, ErrMarketAlreadyListed) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
	if err := engine.ListMarket(admin, &Market{Symbol: "  "}); !errors.Is(err, ErrMarketNotListed) {
		t.Fatalf("expected empty symbol rejection, got %v", err)
	}
	err = engine.ListMarket(admin, &Market{Symbol: "JUNO", CollateralFactor: MustExp("0.95")})
	if !errors.Is(err, ErrCollateralFactorBounds) {
		t.Fatalf("expected factor bounds rejection, got %v", err)
	}
}

func TestListMarketRequiresAuthority(t *testing.T) {
	engine, _, _, _ := newAdminEngine()
	outsider := makeAddress(0xBB)

	if err := engine.ListMarket(outsider, &Market{Symbol: "ATOM"}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected authorization failure, got %v", err)
	}

	// Without a wired controller the admin surface fails closed.
	bare, _, _, _ := newTestEngine()
	if err := bare.ListMarket(makeAddress(0xAA), &Market{Symbol: "ATOM"}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected fail-closed authorization, got %v", err)
	}
}

func TestSetCollateralFactorChecksPrice(t *testing.T) {
	engine, state, oracle, _ := newAdminEngine()
	listTestMarket(state, "ATOM", "0")
	admin := makeAddress(0xAA)

	if err := engine.SetCollateralFactor(admin, "ATOM", MustExp("0.6")); !errors.Is(err, ErrPriceUnavailable) {
		t.Fatalf("nonzero factor without a feed must fail, got %v", err)
	}
	// Zeroing the factor needs no price.
	if err := engine.SetCollateralFactor(admin, "ATOM", new(uint256.Int)); err != nil {
		t.Fatalf("zero factor: %v", err)
	}

	oracle.setPrice("ATOM", "1")
	if err := engine.SetCollateralFactor(admin, "ATOM", MustExp("0.6")); err != nil {
		t.Fatalf("set factor: %v", err)
	}
	if !state.markets["ATOM"].CollateralFactor.Eq(MustExp("0.6")) {
		t.Fatalf("factor not stored")
	}
	if err := engine.SetCollateralFactor(admin, "ATOM", MustExp("0.91")); !errors.Is(err, ErrCollateralFactorBounds) {
		t.Fatalf("expected bounds rejection, got %v", err)
	}
}

func TestSetReserveFactorAccruesFirst(t *testing.T) {
	engine, state, _, _ := newAdminEngine()
	admin := makeAddress(0xAA)

	mkt := listTestMarket(state, "ATOM", "0.5")
	mkt.AccrualBlock = 0
	mkt.TotalCash = units(500)
	mkt.TotalBorrows = units(500)
	mkt.TotalSupply = units(1000)
	mkt.RateModel = JumpRateModel{
		BaseRatePerBlock:       uint256.NewInt(1_000_000_000_000),
		MultiplierPerBlock:     uint256.NewInt(2_000_000_000_000),
		JumpMultiplierPerBlock: new(uint256.Int),
		Kink:                   MustExp("0.8"),
	}
	engine.SetBlockHeight(100)

	if err := engine.SetReserveFactor(admin, "ATOM", MustExp("0.2")); err != nil {
		t.Fatalf("set reserve factor: %v", err)
	}

	stored := state.markets["ATOM"]
	// Interest up to this block accrued under the old zero factor.
	expectedBorrows := new(uint256.Int).Add(units(500), uint256.NewInt(100_000_000_000_000_000))
	if !stored.TotalBorrows.Eq(expectedBorrows) {
		t.Fatalf("unexpected borrows: got %s want %s", stored.TotalBorrows, expectedBorrows)
	}
	if !stored.TotalReserves.IsZero() {
		t.Fatalf("pending interest must use the old factor, reserves got %s", stored.TotalReserves)
	}
	if !stored.ReserveFactor.Eq(MustExp("0.2")) {
		t.Fatalf("factor not stored")
	}

	if err := engine.SetReserveFactor(admin, "ATOM", MustExp("1.01")); !errors.Is(err, ErrReserveFactorBounds) {
		t.Fatalf("expected bounds rejection, got %v", err)
	}
}

func TestSetCapsPausesDeprecated(t *testing.T) {
	engine, state, _, _ := newAdminEngine()
	listTestMarket(state, "ATOM", "0.5")
	admin := makeAddress(0xAA)

	if err := engine.SetCaps(admin, "ATOM", units(1000), units(500)); err != nil {
		t.Fatalf("set caps: %v", err)
	}
	stored := state.markets["ATOM"]
	if !stored.SupplyCap.Eq(units(1000)) || !stored.BorrowCap.Eq(units(500)) {
		t.Fatalf("caps not stored: supply %s borrow %s", stored.SupplyCap, stored.BorrowCap)
	}
	// Nil clears back to unlimited.
	if err := engine.SetCaps(admin, "ATOM", nil, nil); err != nil {
		t.Fatalf("clear caps: %v", err)
	}
	stored = state.markets["ATOM"]
	if !stored.SupplyCap.IsZero() || !stored.BorrowCap.IsZero() {
		t.Fatalf("caps not cleared")
	}

	if err := engine.SetActionPauses(admin, "ATOM", ActionPauses{Mint: true, Seize: true}); err != nil {
		t.Fatalf("set pauses: %v", err)
	}
	stored = state.markets["ATOM"]
	if !stored.Pauses.Mint || !stored.Pauses.Seize || stored.Pauses.Borrow {
		t.Fatalf("unexpected pauses: %+v", stored.Pauses)
	}

	if err := engine.SetDeprecated(admin, "ATOM", true); err != nil {
		t.Fatalf("set deprecated: %v", err)
	}
	if !state.markets["ATOM"].Deprecated {
		t.Fatalf("deprecated flag not stored")
	}
}

func TestSetRateModelAccruesUnderOldCurve(t *testing.T) {
	engine, state, _, _ := newAdminEngine()
	admin := makeAddress(0xAA)

	mkt := listTestMarket(state, "ATOM", "0.5")
	mkt.AccrualBlock = 0
	mkt.TotalCash = units(500)
	mkt.TotalBorrows = units(500)
	mkt.TotalSupply = units(1000)
	mkt.RateModel.BaseRatePerBlock = uint256.NewInt(2_000_000_000_000)
	engine.SetBlockHeight(100)

	next := JumpRateModel{
		BaseRatePerBlock: uint256.NewInt(500_000_000_000),
		Kink:             MustExp("0.8"),
	}
	if err := engine.SetRateModel(admin, "ATOM", next); err != nil {
		t.Fatalf("set rate model: %v", err)
	}

	stored := state.markets["ATOM"]
	// 100 blocks at the old 2e-6 rate on 500 borrowed.
	expectedBorrows := new(uint256.Int).Add(units(500), uint256.NewInt(100_000_000_000_000_000))
	if !stored.TotalBorrows.Eq(expectedBorrows) {
		t.Fatalf("unexpected borrows: got %s want %s", stored.TotalBorrows, expectedBorrows)
	}
	if !stored.RateModel.BaseRatePerBlock.Eq(uint256.NewInt(500_000_000_000)) {
		t.Fatalf("model not stored: got %s", stored.RateModel.BaseRatePerBlock)
	}
}

func TestReduceReserves(t *testing.T) {
	engine, state, _, bank := newAdminEngine()
	admin := makeAddress(0xAA)
	recipient := makeAddress(0x05)

	mkt := listTestMarket(state, "ATOM", "0.5")
	mkt.TotalCash = units(100)
	mkt.TotalReserves = units(30)
	mkt.TotalSupply = units(70)
	bank.fund("ATOM", VaultAddress("ATOM"), units(100))

	withdrawn, err := engine.ReduceReserves(admin, "ATOM", units(20), recipient)
	if err != nil {
		t.Fatalf("reduce reserves: %v", err)
	}
	if !withdrawn.Eq(units(20)) {
		t.Fatalf("unexpected withdrawal: got %s", withdrawn)
	}
	stored := state.markets["ATOM"]
	if !stored.TotalReserves.Eq(units(10)) || !stored.TotalCash.Eq(units(80)) {
		t.Fatalf("unexpected totals: reserves %s cash %s", stored.TotalReserves, stored.TotalCash)
	}
	if !bank.balance("ATOM", recipient).Eq(units(20)) {
		t.Fatalf("recipient not paid: got %s", bank.balance("ATOM", recipient))
	}

	if _, err := engine.ReduceReserves(admin, "ATOM", units(11), recipient); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected reserve bound, got %v", err)
	}
	outsider := makeAddress(0xBB)
	if _, err := engine.ReduceReserves(outsider, "ATOM", units(1), recipient); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected authorization failure, got %v", err)
	}
}

func TestReduceReservesCashBound(t *testing.T) {
	engine, state, _, _ := newAdminEngine()
	admin := makeAddress(0xAA)

	mkt := listTestMarket(state, "ATOM", "0.5")
	mkt.TotalCash = units(50)
	mkt.TotalReserves = units(200)
	mkt.TotalBorrows = units(400)
	mkt.TotalSupply = units(250)

	if _, err := engine.ReduceReserves(admin, "ATOM", units(150), makeAddress(0x05)); !errors.Is(err, ErrInsufficientCash) {
		t.Fatalf("expected cash bound, got %v", err)
	}
}

func TestAddReservesPermissionless(t *testing.T) {
	engine, state, _, bank := newTestEngine()
	listTestMarket(state, "ATOM", "0.5")
	donor := makeAddress(0x09)
	bank.fund("ATOM", donor, units(25))

	added, err := engine.AddReserves(donor, "ATOM", units(25))
	if err != nil {
		t.Fatalf("add reserves: %v", err)
	}
	if !added.Eq(units(25)) {
		t.Fatalf("unexpected added amount: got %s", added)
	}
	stored := state.markets["ATOM"]
	if !stored.TotalReserves.Eq(units(25)) || !stored.TotalCash.Eq(units(25)) {
		t.Fatalf("unexpected totals: reserves %s cash %s", stored.TotalReserves, stored.TotalCash)
	}
	if !bank.balance("ATOM", VaultAddress("ATOM")).Eq(units(25)) {
		t.Fatalf("vault not funded")
	}
}
