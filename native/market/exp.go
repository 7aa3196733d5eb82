package market

import (
	"math/big"

	"github.com/holiman/uint256"
)

// Fixed point values carry an implicit 1e18 scale. Multiplication truncates
// toward zero after rescaling; overflow past 256 bits aborts instead of
// wrapping.
var (
	expScale    = uint256.NewInt(1_000_000_000_000_000_000)
	basisPoints = uint256.NewInt(10_000)
	bpsToExp    = uint256.NewInt(100_000_000_000_000)
)

// RepayMax is the sentinel repay amount meaning "the full outstanding debt".
var RepayMax = new(uint256.Int).SetAllOne()

func cloneInt(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}

func isZero(v *uint256.Int) bool {
	return v == nil || v.IsZero()
}

// expMul computes floor(a * b / 1e18).
func expMul(a, b *uint256.Int) (*uint256.Int, error) {
	if a == nil || b == nil {
		return new(uint256.Int), nil
	}
	product, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrMathOverflow
	}
	return product.Div(product, expScale), nil
}

// expDiv computes floor(a * 1e18 / b).
func expDiv(a, b *uint256.Int) (*uint256.Int, error) {
	if b == nil || b.IsZero() {
		return nil, ErrMathDivideByZero
	}
	if a == nil {
		return new(uint256.Int), nil
	}
	scaled, overflow := new(uint256.Int).MulOverflow(a, expScale)
	if overflow {
		return nil, ErrMathOverflow
	}
	return scaled.Div(scaled, b), nil
}

func checkedAdd(a, b *uint256.Int) (*uint256.Int, error) {
	if a == nil {
		a = new(uint256.Int)
	}
	if b == nil {
		b = new(uint256.Int)
	}
	sum, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, ErrMathOverflow
	}
	return sum, nil
}

func checkedSub(a, b *uint256.Int) (*uint256.Int, error) {
	if a == nil {
		a = new(uint256.Int)
	}
	if b == nil {
		b = new(uint256.Int)
	}
	diff, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return nil, ErrMathUnderflow
	}
	return diff, nil
}

func checkedMul(a, b *uint256.Int) (*uint256.Int, error) {
	if a == nil || b == nil {
		return new(uint256.Int), nil
	}
	product, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrMathOverflow
	}
	return product, nil
}

// MustExp parses a decimal constant into an 1e18 mantissa and panics on
// malformed input. Reserved for package-level constants.
func MustExp(value string) *uint256.Int {
	mantissa, err := MantissaFromDecimal(value)
	if err != nil {
		panic(err)
	}
	return mantissa
}

// MantissaFromDecimal converts a decimal string such as "0.85" into an 1e18
// scaled mantissa, truncating excess precision.
func MantissaFromDecimal(value string) (*uint256.Int, error) {
	rat, ok := new(big.Rat).SetString(value)
	if !ok || rat.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	scaled := new(big.Rat).Mul(rat, new(big.Rat).SetInt(expScale.ToBig()))
	quotient := new(big.Int).Quo(scaled.Num(), scaled.Denom())
	mantissa, overflow := uint256.FromBig(quotient)
	if overflow {
		return nil, ErrMathOverflow
	}
	return mantissa, nil
}

// MantissaFromBps converts basis points into an 1e18 scaled mantissa.
func MantissaFromBps(bps uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(bps), bpsToExp)
}

// RatePerBlock splits an annualized 1e18 mantissa across the configured
// number of blocks per year, truncating.
func RatePerBlock(annual *uint256.Int, blocksPerYear uint64) *uint256.Int {
	if isZero(annual) || blocksPerYear == 0 {
		return new(uint256.Int)
	}
	return new(uint256.Int).Div(annual, uint256.NewInt(blocksPerYear))
}
