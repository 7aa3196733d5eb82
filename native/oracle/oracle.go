package oracle

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"
)

// PriceQuote captures an exchange rate for a currency pair along with the
// timestamp reported by the upstream feed and the feed identifier. The rate is
// denominated in base units per one quote unit.
type PriceQuote struct {
	Rate      *big.Rat
	Timestamp time.Time
	Source    string
}

// Clone returns a deep copy of the quote to prevent accidental mutations.
func (q PriceQuote) Clone() PriceQuote {
	clone := PriceQuote{Timestamp: q.Timestamp, Source: q.Source}
	if q.Rate != nil {
		clone.Rate = new(big.Rat).Set(q.Rate)
	}
	return clone
}

// RateString renders the rate using the supplied decimal precision.
func (q PriceQuote) RateString(precision int) string {
	if q.Rate == nil {
		return ""
	}
	if precision < 0 {
		precision = 18
	}
	return q.Rate.FloatString(precision)
}

// PriceOracle resolves an exchange rate for the provided base/quote pair.
type PriceOracle interface {
	GetRate(base, quote string) (PriceQuote, error)
}

// ErrNoFreshQuote indicates that no feed produced a quote within the
// configured freshness window.
var ErrNoFreshQuote = errors.New("oracle: no fresh quote available")

// FeedHealth summarises the observation history for a single tracked pair.
type FeedHealth struct {
	Base         string
	Quote        string
	LastObserved time.Time
	Observations int
}

// Pair renders the canonical pair string in BASE/QUOTE form.
func (fh FeedHealth) Pair() string {
	base := strings.TrimSpace(fh.Base)
	quote := strings.TrimSpace(fh.Quote)
	if base == "" && quote == "" {
		return ""
	}
	if quote == "" {
		return base
	}
	if base == "" {
		return quote
	}
	return base + "/" + quote
}

// Health aggregates feed health for all tracked pairs.
type Health struct {
	Feeds []FeedHealth
}

const defaultSampleCap = 128

// Aggregator consults registered feeds in priority order until one returns a
// fresh quote. Stale and non-positive quotes are skipped.
type Aggregator struct {
	mu        sync.RWMutex
	priority  []string
	oracles   map[string]PriceOracle
	maxAge    time.Duration
	history   map[string][]PriceQuote
	sampleCap int
}

// NewAggregator constructs an aggregator with the provided priority order and
// freshness window. A zero maxAge disables the freshness check. When priority
// is nil a zero-length slice is initialised so that Register can safely append
// identifiers without additional checks.
func NewAggregator(priority []string, maxAge time.Duration) *Aggregator {
	return &Aggregator{
		priority:  append([]string{}, priority...),
		oracles:   make(map[string]PriceOracle),
		maxAge:    maxAge,
		history:   make(map[string][]PriceQuote),
		sampleCap: defaultSampleCap,
	}
}

// SetMaxAge updates the freshness window used when filtering quotes.
func (a *Aggregator) SetMaxAge(maxAge time.Duration) {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.maxAge = maxAge
	a.mu.Unlock()
}

// MaxAge reports the currently configured freshness window.
func (a *Aggregator) MaxAge() time.Duration {
	if a == nil {
		return 0
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.maxAge
}

// SetPriority replaces the priority ordering used when consulting feeds.
func (a *Aggregator) SetPriority(priority []string) {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.priority = append([]string{}, priority...)
	a.mu.Unlock()
}

// SetSampleCap bounds the stored observation count per pair. A non-positive
// value resets the cap to the default.
func (a *Aggregator) SetSampleCap(cap int) {
	if a == nil {
		return
	}
	if cap <= 0 {
		cap = defaultSampleCap
	}
	a.mu.Lock()
	a.sampleCap = cap
	a.mu.Unlock()
}

// Register adds or replaces a feed under the supplied identifier. Identifiers
// are stored in lowercase so lookups remain consistent regardless of the
// configuration casing.
func (a *Aggregator) Register(name string, feed PriceOracle) {
	if a == nil {
		return
	}
	trimmed := strings.ToLower(strings.TrimSpace(name))
	if trimmed == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.oracles[trimmed] = feed
	for _, entry := range a.priority {
		if strings.EqualFold(entry, trimmed) {
			return
		}
	}
	a.priority = append(a.priority, trimmed)
}

// GetRate fetches a rate from the registered feeds respecting the priority
// ordering. The aggregator enforces the freshness window and returns a
// defensive copy of the upstream quote.
func (a *Aggregator) GetRate(base, quote string) (PriceQuote, error) {
	if a == nil {
		return PriceQuote{}, fmt.Errorf("oracle: aggregator not configured")
	}
	a.mu.RLock()
	priority := append([]string{}, a.priority...)
	maxAge := a.maxAge
	a.mu.RUnlock()

	baseSym := normaliseSymbol(base)
	quoteSym := normaliseSymbol(quote)
	if baseSym == "" || quoteSym == "" {
		return PriceQuote{}, fmt.Errorf("oracle: base and quote required")
	}

	var cutoff time.Time
	if maxAge > 0 {
		cutoff = time.Now().Add(-maxAge)
	}

	var lastErr error
	for _, name := range priority {
		a.mu.RLock()
		feed := a.oracles[strings.ToLower(name)]
		a.mu.RUnlock()
		if feed == nil {
			continue
		}
		res, err := feed.GetRate(baseSym, quoteSym)
		if err != nil {
			lastErr = err
			continue
		}
		if res.Rate == nil || res.Rate.Sign() <= 0 {
			lastErr = fmt.Errorf("oracle: feed %s returned invalid rate", name)
			continue
		}
		if maxAge > 0 && res.Timestamp.Before(cutoff) {
			lastErr = ErrNoFreshQuote
			continue
		}
		out := res.Clone()
		if strings.TrimSpace(out.Source) == "" {
			out.Source = strings.ToLower(name)
		}
		a.recordSample(baseSym, quoteSym, out)
		return out, nil
	}

	if lastErr == nil {
		lastErr = ErrNoFreshQuote
	}
	return PriceQuote{}, lastErr
}

func (a *Aggregator) recordSample(base, quote string, sample PriceQuote) {
	entry := sample.Clone()
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	} else {
		entry.Timestamp = entry.Timestamp.UTC()
	}
	key := pairKey(base, quote)
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.history == nil {
		a.history = make(map[string][]PriceQuote)
	}
	bucket := append(a.history[key], entry)
	if a.sampleCap > 0 && len(bucket) > a.sampleCap {
		bucket = append([]PriceQuote{}, bucket[len(bucket)-a.sampleCap:]...)
	}
	a.history[key] = bucket
}

// Health reports the last observation timestamp and sample count for each
// tracked pair. The slice is sorted by pair for stable output.
func (a *Aggregator) Health() Health {
	if a == nil {
		return Health{}
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	feeds := make([]FeedHealth, 0, len(a.history))
	for key, samples := range a.history {
		if len(samples) == 0 {
			continue
		}
		last := samples[len(samples)-1]
		base, quote := parsePairKey(key)
		feeds = append(feeds, FeedHealth{
			Base:         base,
			Quote:        quote,
			LastObserved: last.Timestamp,
			Observations: len(samples),
		})
	}
	sort.Slice(feeds, func(i, j int) bool {
		return feeds[i].Pair() < feeds[j].Pair()
	})
	return Health{Feeds: feeds}
}

// ManualOracle provides an in-memory feed used for tests and manual overrides
// during incident response.
type ManualOracle struct {
	mu     sync.RWMutex
	quotes map[string]PriceQuote
}

// NewManualOracle constructs an empty manual feed.
func NewManualOracle() *ManualOracle {
	return &ManualOracle{quotes: make(map[string]PriceQuote)}
}

func manualKey(base, quote string) string {
	return normaliseSymbol(base) + "_" + normaliseSymbol(quote)
}

// SetDecimal records the supplied decimal rate for the currency pair using the
// provided timestamp.
func (m *ManualOracle) SetDecimal(base, quote, rate string, ts time.Time) error {
	if m == nil {
		return fmt.Errorf("oracle: manual feed not configured")
	}
	trimmed := strings.TrimSpace(rate)
	if trimmed == "" {
		return fmt.Errorf("oracle: rate required")
	}
	rat, ok := new(big.Rat).SetString(trimmed)
	if !ok {
		return fmt.Errorf("oracle: invalid rate %q", rate)
	}
	if rat.Sign() <= 0 {
		return fmt.Errorf("oracle: rate must be positive")
	}
	m.Set(base, quote, rat, ts)
	return nil
}

// Set stores the provided rational rate for the currency pair. Nil and
// non-positive rates are ignored.
func (m *ManualOracle) Set(base, quote string, rate *big.Rat, ts time.Time) {
	if m == nil || rate == nil || rate.Sign() <= 0 {
		return
	}
	baseSym := normaliseSymbol(base)
	quoteSym := normaliseSymbol(quote)
	if baseSym == "" || quoteSym == "" {
		return
	}
	m.mu.Lock()
	m.quotes[baseSym+"_"+quoteSym] = PriceQuote{
		Rate:      new(big.Rat).Set(rate),
		Timestamp: ts,
		Source:    "manual",
	}
	m.mu.Unlock()
}

// GetRate retrieves the stored rate for the currency pair.
func (m *ManualOracle) GetRate(base, quote string) (PriceQuote, error) {
	if m == nil {
		return PriceQuote{}, fmt.Errorf("oracle: manual feed not configured")
	}
	m.mu.RLock()
	stored, ok := m.quotes[manualKey(base, quote)]
	m.mu.RUnlock()
	if !ok {
		return PriceQuote{}, fmt.Errorf("oracle: quote for %s/%s not found", base, quote)
	}
	return stored.Clone(), nil
}

func normaliseSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func pairKey(base, quote string) string {
	return normaliseSymbol(base) + ":" + normaliseSymbol(quote)
}

func parsePairKey(key string) (string, string) {
	parts := strings.SplitN(key, ":", 2)
	base := ""
	quote := ""
	if len(parts) > 0 {
		base = strings.TrimSpace(parts[0])
	}
	if len(parts) > 1 {
		quote = strings.TrimSpace(parts[1])
	}
	return base, quote
}

// Config controls feed priority and quote freshness for the price oracle.
type Config struct {
	PricingUnit        string   `toml:"pricing_unit" yaml:"pricing_unit"`
	MaxQuoteAgeSeconds int64    `toml:"max_quote_age_seconds" yaml:"max_quote_age_seconds"`
	Priority           []string `toml:"priority" yaml:"priority"`
	SampleCap          int      `toml:"sample_cap" yaml:"sample_cap"`
}

// Normalise applies defaults and canonical casing to the configuration values.
func (c Config) Normalise() Config {
	cfg := Config{
		PricingUnit:        normaliseSymbol(c.PricingUnit),
		MaxQuoteAgeSeconds: c.MaxQuoteAgeSeconds,
		Priority:           append([]string{}, c.Priority...),
		SampleCap:          c.SampleCap,
	}
	if cfg.PricingUnit == "" {
		cfg.PricingUnit = "USD"
	}
	if cfg.MaxQuoteAgeSeconds <= 0 {
		cfg.MaxQuoteAgeSeconds = 120
	}
	if len(cfg.Priority) == 0 {
		cfg.Priority = []string{"manual"}
	}
	for i := range cfg.Priority {
		cfg.Priority[i] = strings.ToLower(strings.TrimSpace(cfg.Priority[i]))
	}
	if cfg.SampleCap <= 0 {
		cfg.SampleCap = defaultSampleCap
	}
	return cfg
}

// MaxQuoteAge returns the configured freshness window as a duration.
func (c Config) MaxQuoteAge() time.Duration {
	if c.MaxQuoteAgeSeconds <= 0 {
		return 0
	}
	return time.Duration(c.MaxQuoteAgeSeconds) * time.Second
}
