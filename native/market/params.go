package market

import "github.com/holiman/uint256"

// Governance bounds. Setters reject values outside these ranges before any
// state is touched.
var (
	collateralFactorMax     = MustExp("0.9")
	closeFactorMin          = MustExp("0.05")
	closeFactorMax          = MustExp("0.9")
	liquidationIncentiveMin = MustExp("1.0")
	liquidationIncentiveMax = MustExp("1.5")
	reserveFactorMax        = MustExp("1.0")
	protocolSeizeShareMax   = MustExp("0.5")
)

// RiskParameters groups the registry-wide liquidation controls shared by all
// markets.
type RiskParameters struct {
	// CloseFactor caps the debt fraction a single liquidation may repay.
	CloseFactor *uint256.Int
	// LiquidationIncentive is the collateral multiplier paid out per unit of
	// repaid debt, expressed as a mantissa at or above 1.0.
	LiquidationIncentive *uint256.Int
	// ProtocolSeizeShare is the fraction of seized collateral converted into
	// protocol reserves instead of paid to the liquidator.
	ProtocolSeizeShare *uint256.Int
}

// Clone returns a deep copy of the risk parameters.
func (p RiskParameters) Clone() RiskParameters {
	return RiskParameters{
		CloseFactor:          cloneInt(p.CloseFactor),
		LiquidationIncentive: cloneInt(p.LiquidationIncentive),
		ProtocolSeizeShare:   cloneInt(p.ProtocolSeizeShare),
	}
}

func (p RiskParameters) normalize() RiskParameters {
	out := p.Clone()
	if isZero(out.CloseFactor) {
		out.CloseFactor = cloneInt(closeFactorMin)
	}
	if isZero(out.LiquidationIncentive) {
		out.LiquidationIncentive = cloneInt(liquidationIncentiveMin)
	}
	if out.ProtocolSeizeShare == nil {
		out.ProtocolSeizeShare = new(uint256.Int)
	}
	return out
}

// DefaultRiskParameters mirrors long-running production money markets: half
// the debt closable per liquidation, an 8% liquidation bonus and a 2.8%
// protocol cut of seized collateral.
func DefaultRiskParameters() RiskParameters {
	return RiskParameters{
		CloseFactor:          MustExp("0.5"),
		LiquidationIncentive: MustExp("1.08"),
		ProtocolSeizeShare:   MustExp("0.028"),
	}
}

func ValidateCollateralFactor(factor *uint256.Int) error {
	if factor == nil {
		return ErrInvalidAmount
	}
	if factor.Gt(collateralFactorMax) {
		return ErrCollateralFactorBounds
	}
	return nil
}

func ValidateCloseFactor(factor *uint256.Int) error {
	if factor == nil {
		return ErrInvalidAmount
	}
	if factor.Lt(closeFactorMin) || factor.Gt(closeFactorMax) {
		return ErrCloseFactorBounds
	}
	return nil
}

func ValidateLiquidationIncentive(incentive *uint256.Int) error {
	if incentive == nil {
		return ErrInvalidAmount
	}
	if incentive.Lt(liquidationIncentiveMin) || incentive.Gt(liquidationIncentiveMax) {
		return ErrLiquidationIncentiveBounds
	}
	return nil
}

func ValidateReserveFactor(factor *uint256.Int) error {
	if factor == nil {
		return ErrInvalidAmount
	}
	if factor.Gt(reserveFactorMax) {
		return ErrReserveFactorBounds
	}
	return nil
}

func ValidateProtocolSeizeShare(share *uint256.Int) error {
	if share == nil {
		return ErrInvalidAmount
	}
	if share.Gt(protocolSeizeShareMax) {
		return ErrSeizeShareBounds
	}
	return nil
}
