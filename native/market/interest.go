package market

import "github.com/holiman/uint256"

// maxBorrowRatePerBlock bounds the per-block borrow rate accepted during
// accrual. Rates above it indicate corrupted parameters, not a hot market.
var maxBorrowRatePerBlock = uint256.NewInt(5_000_000_000_000)

// JumpRateModel prices borrow demand with a two-slope curve: a gentle slope
// up to the kink utilization and a steep jump slope beyond it. All fields are
// 1e18 scaled per-block mantissas except Kink, which is a utilization
// mantissa.
type JumpRateModel struct {
	BaseRatePerBlock       *uint256.Int
	MultiplierPerBlock     *uint256.Int
	JumpMultiplierPerBlock *uint256.Int
	Kink                   *uint256.Int
}

// NewJumpRateModel converts annualized 1e18 mantissa rates into a per-block
// model for the given cadence.
func NewJumpRateModel(baseAnnual, multiplierAnnual, jumpAnnual, kink *uint256.Int, blocksPerYear uint64) JumpRateModel {
	return JumpRateModel{
		BaseRatePerBlock:       RatePerBlock(baseAnnual, blocksPerYear),
		MultiplierPerBlock:     RatePerBlock(multiplierAnnual, blocksPerYear),
		JumpMultiplierPerBlock: RatePerBlock(jumpAnnual, blocksPerYear),
		Kink:                   cloneInt(kink),
	}
}

// DefaultRateModel mirrors a conservative money-market curve: 2% base, 15%
// slope to an 80% kink, then a 60% jump slope.
func DefaultRateModel(blocksPerYear uint64) JumpRateModel {
	return NewJumpRateModel(
		MustExp("0.02"),
		MustExp("0.15"),
		MustExp("0.6"),
		MustExp("0.8"),
		blocksPerYear,
	)
}

// Clone returns a deep copy of the model.
func (m JumpRateModel) Clone() JumpRateModel {
	return JumpRateModel{
		BaseRatePerBlock:       cloneInt(m.BaseRatePerBlock),
		MultiplierPerBlock:     cloneInt(m.MultiplierPerBlock),
		JumpMultiplierPerBlock: cloneInt(m.JumpMultiplierPerBlock),
		Kink:                   cloneInt(m.Kink),
	}
}

// UtilizationRate computes borrows / (cash + borrows - reserves) as an 1e18
// mantissa. A market with no borrows utilizes nothing regardless of the
// denominator, so the zero-liquidity bootstrap case never divides.
func (m JumpRateModel) UtilizationRate(cash, borrows, reserves *uint256.Int) (*uint256.Int, error) {
	if isZero(borrows) {
		return new(uint256.Int), nil
	}
	liquidity, err := checkedAdd(cash, borrows)
	if err != nil {
		return nil, err
	}
	denom, err := checkedSub(liquidity, reserves)
	if err != nil {
		return nil, err
	}
	if denom.IsZero() {
		return new(uint256.Int), nil
	}
	return expDiv(borrows, denom)
}

// BorrowRatePerBlock evaluates the kinked curve at the current utilization.
func (m JumpRateModel) BorrowRatePerBlock(cash, borrows, reserves *uint256.Int) (*uint256.Int, error) {
	util, err := m.UtilizationRate(cash, borrows, reserves)
	if err != nil {
		return nil, err
	}
	if isZero(m.Kink) || !util.Gt(m.Kink) {
		slope, err := expMul(util, m.MultiplierPerBlock)
		if err != nil {
			return nil, err
		}
		return checkedAdd(slope, m.BaseRatePerBlock)
	}
	kinkSlope, err := expMul(m.Kink, m.MultiplierPerBlock)
	if err != nil {
		return nil, err
	}
	normalRate, err := checkedAdd(kinkSlope, m.BaseRatePerBlock)
	if err != nil {
		return nil, err
	}
	excess, err := checkedSub(util, m.Kink)
	if err != nil {
		return nil, err
	}
	jump, err := expMul(excess, m.JumpMultiplierPerBlock)
	if err != nil {
		return nil, err
	}
	return checkedAdd(normalRate, jump)
}

// SupplyRatePerBlock derives the rate paid to suppliers: the borrow rate
// scaled by utilization, less the reserve factor cut.
func (m JumpRateModel) SupplyRatePerBlock(cash, borrows, reserves, reserveFactor *uint256.Int) (*uint256.Int, error) {
	oneMinusReserve, err := checkedSub(expScale, reserveFactor)
	if err != nil {
		return nil, err
	}
	borrowRate, err := m.BorrowRatePerBlock(cash, borrows, reserves)
	if err != nil {
		return nil, err
	}
	rateToPool, err := expMul(borrowRate, oneMinusReserve)
	if err != nil {
		return nil, err
	}
	util, err := m.UtilizationRate(cash, borrows, reserves)
	if err != nil {
		return nil, err
	}
	return expMul(util, rateToPool)
}
