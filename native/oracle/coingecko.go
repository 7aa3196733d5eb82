package oracle

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPDoer abstracts http.Client for ease of testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

const defaultCoinGeckoEndpoint = "https://api.coingecko.com/api/v3/simple/price"

// CoinGeckoOracle adapts the public CoinGecko simple price API. idMap maps
// market symbols to CoinGecko asset identifiers; unmapped symbols fall back to
// their lowercase form.
type CoinGeckoOracle struct {
	client   HTTPDoer
	endpoint string
	idMap    map[string]string
}

// NewCoinGeckoOracle constructs the adapter. When client is nil
// http.DefaultClient is used.
func NewCoinGeckoOracle(client HTTPDoer, endpoint string, idMap map[string]string) *CoinGeckoOracle {
	ep := strings.TrimSpace(endpoint)
	if ep == "" {
		ep = defaultCoinGeckoEndpoint
	}
	if client == nil {
		client = http.DefaultClient
	}
	mapped := make(map[string]string, len(idMap))
	for symbol, id := range idMap {
		mapped[normaliseSymbol(symbol)] = strings.TrimSpace(id)
	}
	return &CoinGeckoOracle{client: client, endpoint: ep, idMap: mapped}
}

func (o *CoinGeckoOracle) assetID(symbol string) string {
	if id, ok := o.idMap[normaliseSymbol(symbol)]; ok && id != "" {
		return id
	}
	return strings.ToLower(strings.TrimSpace(symbol))
}

// GetRate queries the simple price endpoint for one asset quoted in the base
// currency. CoinGecko keys the response by asset identifier and lowercase
// vs_currency.
func (o *CoinGeckoOracle) GetRate(base, quote string) (PriceQuote, error) {
	if o == nil {
		return PriceQuote{}, fmt.Errorf("oracle: coingecko adapter not configured")
	}
	vs := strings.ToLower(normaliseSymbol(base))
	id := o.assetID(quote)
	if vs == "" || id == "" {
		return PriceQuote{}, fmt.Errorf("oracle: base and quote required")
	}
	req, err := http.NewRequest(http.MethodGet, o.endpoint, nil)
	if err != nil {
		return PriceQuote{}, err
	}
	params := url.Values{}
	params.Set("ids", id)
	params.Set("vs_currencies", vs)
	params.Set("include_last_updated_at", "true")
	req.URL.RawQuery = params.Encode()
	resp, err := o.client.Do(req)
	if err != nil {
		return PriceQuote{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return PriceQuote{}, fmt.Errorf("oracle: coingecko status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var payload map[string]map[string]json.Number
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return PriceQuote{}, fmt.Errorf("oracle: coingecko decode: %w", err)
	}
	entry, ok := payload[id]
	if !ok {
		return PriceQuote{}, fmt.Errorf("oracle: coingecko quote missing for %s", quote)
	}
	price := strings.TrimSpace(entry[vs].String())
	if price == "" {
		return PriceQuote{}, fmt.Errorf("oracle: coingecko empty price for %s", quote)
	}
	rat, ok := new(big.Rat).SetString(price)
	if !ok || rat.Sign() <= 0 {
		return PriceQuote{}, fmt.Errorf("oracle: coingecko invalid rate %q", price)
	}
	ts := time.Now().UTC()
	if raw, ok := entry["last_updated_at"]; ok {
		if unix, err := raw.Int64(); err == nil && unix > 0 {
			ts = time.Unix(unix, 0)
		}
	}
	return PriceQuote{Rate: rat, Timestamp: ts, Source: "coingecko"}, nil
}
