package market

import (
	"testing"

	"github.com/holiman/uint256"
)

func testRateModel() JumpRateModel {
	return JumpRateModel{
		BaseRatePerBlock:       uint256.NewInt(1_000_000_000_000),
		MultiplierPerBlock:     uint256.NewInt(2_000_000_000_000),
		JumpMultiplierPerBlock: uint256.NewInt(10_000_000_000_000),
		Kink:                   MustExp("0.8"),
	}
}

func TestUtilizationRate(t *testing.T) {
	model := testRateModel()

	util, err := model.UtilizationRate(units(500), new(uint256.Int), new(uint256.Int))
	if err != nil {
		t.Fatalf("utilization: %v", err)
	}
	if !util.IsZero() {
		t.Fatalf("no borrows must utilize nothing, got %s", util)
	}

	util, err = model.UtilizationRate(units(500), units(500), new(uint256.Int))
	if err != nil {
		t.Fatalf("utilization: %v", err)
	}
	if !util.Eq(MustExp("0.5")) {
		t.Fatalf("unexpected utilization: got %s", util)
	}

	// Reserves shrink the denominator: 500 / (300 + 500 - 200).
	util, err = model.UtilizationRate(units(300), units(500), units(200))
	if err != nil {
		t.Fatalf("utilization: %v", err)
	}
	if !util.Eq(uint256.NewInt(833_333_333_333_333_333)) {
		t.Fatalf("unexpected utilization: got %s", util)
	}

	// A fully reserved pool divides by nothing and reads as idle.
	util, err = model.UtilizationRate(new(uint256.Int), units(100), units(100))
	if err != nil {
		t.Fatalf("utilization: %v", err)
	}
	if !util.IsZero() {
		t.Fatalf("zero denominator must read as zero, got %s", util)
	}
}

func TestBorrowRateBelowKink(t *testing.T) {
	model := testRateModel()

	rate, err := model.BorrowRatePerBlock(units(500), units(500), new(uint256.Int))
	if err != nil {
		t.Fatalf("borrow rate: %v", err)
	}
	if !rate.Eq(uint256.NewInt(2_000_000_000_000)) {
		t.Fatalf("unexpected rate: got %s", rate)
	}

	// Exactly at the kink the jump slope stays out of the price.
	rate, err = model.BorrowRatePerBlock(units(200), units(800), new(uint256.Int))
	if err != nil {
		t.Fatalf("borrow rate: %v", err)
	}
	if !rate.Eq(uint256.NewInt(2_600_000_000_000)) {
		t.Fatalf("unexpected kink rate: got %s", rate)
	}
}

func TestBorrowRateAboveKink(t *testing.T) {
	model := testRateModel()

	rate, err := model.BorrowRatePerBlock(units(100), units(900), new(uint256.Int))
	if err != nil {
		t.Fatalf("borrow rate: %v", err)
	}
	// 1e-6 base + 0.8*2e-6 slope + 0.1*10e-6 jump.
	if !rate.Eq(uint256.NewInt(3_600_000_000_000)) {
		t.Fatalf("unexpected rate: got %s", rate)
	}
}

func TestSupplyRatePerBlock(t *testing.T) {
	model := testRateModel()

	rate, err := model.SupplyRatePerBlock(units(500), units(500), new(uint256.Int), MustExp("0.2"))
	if err != nil {
		t.Fatalf("supply rate: %v", err)
	}
	// Borrowers pay 2e-6; 80% of that scaled by the 0.5 utilization.
	if !rate.Eq(uint256.NewInt(800_000_000_000)) {
		t.Fatalf("unexpected rate: got %s", rate)
	}

	rate, err = model.SupplyRatePerBlock(units(500), new(uint256.Int), new(uint256.Int), MustExp("0.2"))
	if err != nil {
		t.Fatalf("supply rate: %v", err)
	}
	if !rate.IsZero() {
		t.Fatalf("idle pool must pay nothing, got %s", rate)
	}
}

func TestDefaultRateModelCadence(t *testing.T) {
	model := DefaultRateModel(2_102_400)
	if model.BaseRatePerBlock.IsZero() || model.MultiplierPerBlock.IsZero() {
		t.Fatalf("default model must carry nonzero slopes")
	}
	if !model.Kink.Eq(MustExp("0.8")) {
		t.Fatalf("unexpected kink: got %s", model.Kink)
	}
	// The annualized base rate divides evenly across the cadence.
	expectedBase := new(uint256.Int).Div(MustExp("0.02"), uint256.NewInt(2_102_400))
	if !model.BaseRatePerBlock.Eq(expectedBase) {
		t.Fatalf("unexpected base rate: got %s want %s", model.BaseRatePerBlock, expectedBase)
	}
}
