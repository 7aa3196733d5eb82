package oracle

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// priceScale is the 1e18 fixed-point scale shared with the market engine.
var priceScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Source resolves market underlying prices against a fixed pricing unit and
// scales them to 1e18 mantissas for the market engine.
type Source struct {
	oracle PriceOracle
	unit   string
}

// NewSource wraps the provided feed. The unit names the currency prices are
// denominated in and defaults to USD.
func NewSource(feed PriceOracle, unit string) *Source {
	trimmed := normaliseSymbol(unit)
	if trimmed == "" {
		trimmed = "USD"
	}
	return &Source{oracle: feed, unit: trimmed}
}

// Unit reports the pricing unit quotes are denominated in.
func (s *Source) Unit() string {
	if s == nil {
		return ""
	}
	return s.unit
}

// GetUnderlyingPrice returns the 1e18-scaled price of one underlying unit of
// the given market symbol. Missing, stale and non-positive quotes surface as
// errors so callers fail closed.
func (s *Source) GetUnderlyingPrice(symbol string) (*uint256.Int, error) {
	if s == nil || s.oracle == nil {
		return nil, fmt.Errorf("oracle: price source not configured")
	}
	sym := normaliseSymbol(symbol)
	if sym == "" {
		return nil, fmt.Errorf("oracle: symbol required")
	}
	quote, err := s.oracle.GetRate(s.unit, sym)
	if err != nil {
		return nil, err
	}
	return MantissaFromRat(quote.Rate)
}

// MantissaFromRat converts a rational price into the 1e18 fixed-point form
// used by the market engine. The conversion truncates toward zero and rejects
// rates that do not register at that scale.
func MantissaFromRat(rate *big.Rat) (*uint256.Int, error) {
	if rate == nil || rate.Sign() <= 0 {
		return nil, fmt.Errorf("oracle: rate must be positive")
	}
	scaled := new(big.Int).Mul(rate.Num(), priceScale)
	scaled.Quo(scaled, rate.Denom())
	if scaled.Sign() <= 0 {
		return nil, fmt.Errorf("oracle: rate below mantissa resolution")
	}
	price, overflow := uint256.FromBig(scaled)
	if overflow {
		return nil, fmt.Errorf("oracle: rate overflows mantissa")
	}
	return price, nil
}
