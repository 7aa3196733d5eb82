package oracle

import (
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type feedFunc func(base, quote string) (PriceQuote, error)

func (f feedFunc) GetRate(base, quote string) (PriceQuote, error) {
	return f(base, quote)
}

func TestManualOracleRoundTrip(t *testing.T) {
	manual := NewManualOracle()
	now := time.Now().UTC()
	require.NoError(t, manual.SetDecimal("USD", "ATOM", "9.25", now))

	quote, err := manual.GetRate(" usd ", "atom")
	require.NoError(t, err)
	require.Equal(t, "9.25", quote.RateString(2))
	require.True(t, quote.Timestamp.Equal(now))
	require.Equal(t, "manual", quote.Source)

	// The returned quote must not alias the stored rate.
	quote.Rate.SetInt64(1)
	again, err := manual.GetRate("USD", "ATOM")
	require.NoError(t, err)
	require.Equal(t, "9.25", again.RateString(2))
}

func TestManualOracleRejectsBadRates(t *testing.T) {
	manual := NewManualOracle()
	now := time.Now()
	require.Error(t, manual.SetDecimal("USD", "ATOM", "", now))
	require.Error(t, manual.SetDecimal("USD", "ATOM", "abc", now))
	require.Error(t, manual.SetDecimal("USD", "ATOM", "-1", now))
	require.Error(t, manual.SetDecimal("USD", "ATOM", "0", now))

	_, err := manual.GetRate("USD", "ATOM")
	require.Error(t, err)
}

func TestAggregatorFreshnessWindow(t *testing.T) {
	manual := NewManualOracle()
	agg := NewAggregator([]string{"manual"}, time.Minute)
	agg.Register("manual", manual)

	manual.Set("USD", "ATOM", big.NewRat(37, 4), time.Now().Add(-2*time.Minute))
	_, err := agg.GetRate("USD", "ATOM")
	require.ErrorIs(t, err, ErrNoFreshQuote)

	manual.Set("USD", "ATOM", big.NewRat(37, 4), time.Now())
	quote, err := agg.GetRate("USD", "ATOM")
	require.NoError(t, err)
	require.Equal(t, "9.25", quote.RateString(2))
}

func TestAggregatorZeroMaxAgeDisablesCheck(t *testing.T) {
	manual := NewManualOracle()
	agg := NewAggregator([]string{"manual"}, 0)
	agg.Register("manual", manual)

	manual.Set("USD", "OSMO", big.NewRat(1, 2), time.Now().Add(-24*time.Hour))
	quote, err := agg.GetRate("USD", "OSMO")
	require.NoError(t, err)
	require.Equal(t, "0.50", quote.RateString(2))
}

func TestAggregatorPriorityFailover(t *testing.T) {
	agg := NewAggregator([]string{"primary", "manual"}, time.Minute)
	agg.Register("primary", feedFunc(func(string, string) (PriceQuote, error) {
		return PriceQuote{}, fmt.Errorf("primary down")
	}))
	manual := NewManualOracle()
	agg.Register("manual", manual)
	manual.Set("USD", "ATOM", big.NewRat(8, 1), time.Now())

	quote, err := agg.GetRate("usd", "atom")
	require.NoError(t, err)
	require.Equal(t, "manual", quote.Source)
	require.Equal(t, "8.00", quote.RateString(2))
}

func TestAggregatorSkipsInvalidRates(t *testing.T) {
	agg := NewAggregator(nil, time.Minute)
	agg.Register("broken", feedFunc(func(string, string) (PriceQuote, error) {
		return PriceQuote{Rate: big.NewRat(0, 1), Timestamp: time.Now()}, nil
	}))
	_, err := agg.GetRate("USD", "ATOM")
	require.Error(t, err)

	agg.Register("backup", feedFunc(func(string, string) (PriceQuote, error) {
		return PriceQuote{Rate: big.NewRat(3, 1), Timestamp: time.Now(), Source: "backup"}, nil
	}))
	quote, err := agg.GetRate("USD", "ATOM")
	require.NoError(t, err)
	require.Equal(t, "backup", quote.Source)
	require.Equal(t, "3.00", quote.RateString(2))
}

func TestAggregatorStampsMissingSource(t *testing.T) {
	agg := NewAggregator(nil, 0)
	agg.Register("PLAIN", feedFunc(func(string, string) (PriceQuote, error) {
		return PriceQuote{Rate: big.NewRat(2, 1), Timestamp: time.Now()}, nil
	}))

	quote, err := agg.GetRate("USD", "ATOM")
	require.NoError(t, err)
	require.Equal(t, "plain", quote.Source)
}

func TestAggregatorHealthTracksObservations(t *testing.T) {
	manual := NewManualOracle()
	agg := NewAggregator([]string{"manual"}, time.Minute)
	agg.Register("manual", manual)

	now := time.Now().UTC()
	manual.Set("USD", "OSMO", big.NewRat(1, 1), now)
	manual.Set("USD", "ATOM", big.NewRat(9, 1), now)
	_, err := agg.GetRate("USD", "OSMO")
	require.NoError(t, err)
	_, err = agg.GetRate("USD", "ATOM")
	require.NoError(t, err)
	_, err = agg.GetRate("USD", "ATOM")
	require.NoError(t, err)

	health := agg.Health()
	require.Len(t, health.Feeds, 2)
	require.Equal(t, "USD/ATOM", health.Feeds[0].Pair())
	require.Equal(t, 2, health.Feeds[0].Observations)
	require.Equal(t, "USD/OSMO", health.Feeds[1].Pair())
	require.Equal(t, 1, health.Feeds[1].Observations)
	require.WithinDuration(t, now, health.Feeds[0].LastObserved, time.Second)
}

func TestAggregatorSampleCap(t *testing.T) {
	agg := NewAggregator(nil, 0)
	agg.SetSampleCap(3)
	agg.Register("feed", feedFunc(func(string, string) (PriceQuote, error) {
		return PriceQuote{Rate: big.NewRat(1, 1), Timestamp: time.Now()}, nil
	}))

	for i := 0; i < 5; i++ {
		_, err := agg.GetRate("USD", "ATOM")
		require.NoError(t, err)
	}
	health := agg.Health()
	require.Len(t, health.Feeds, 1)
	require.Equal(t, 3, health.Feeds[0].Observations)
}

func TestConfigNormaliseDefaults(t *testing.T) {
	cfg := Config{}.Normalise()
	require.Equal(t, "USD", cfg.PricingUnit)
	require.Equal(t, int64(120), cfg.MaxQuoteAgeSeconds)
	require.Equal(t, []string{"manual"}, cfg.Priority)
	require.Equal(t, defaultSampleCap, cfg.SampleCap)
	require.Equal(t, 2*time.Minute, cfg.MaxQuoteAge())

	cfg = Config{
		PricingUnit:        " eur ",
		MaxQuoteAgeSeconds: 30,
		Priority:           []string{" CoinGecko ", "Manual"},
		SampleCap:          16,
	}.Normalise()
	require.Equal(t, "EUR", cfg.PricingUnit)
	require.Equal(t, []string{"coingecko", "manual"}, cfg.Priority)
	require.Equal(t, 16, cfg.SampleCap)
	require.Equal(t, 30*time.Second, cfg.MaxQuoteAge())
}
