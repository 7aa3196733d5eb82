package market

import "context"

type symbolQuery struct {
	Symbol string `json:"symbol"`
}

type addressQuery struct {
	Address string `json:"address"`
}

type snapshotQuery struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
}

type hypotheticalQuery struct {
	Address      string `json:"address"`
	Symbol       string `json:"symbol"`
	RedeemTokens string `json:"redeemTokens,omitempty"`
	BorrowAmount string `json:"borrowAmount,omitempty"`
}

// GetMarket fetches one pool record by symbol.
func (c *Client) GetMarket(ctx context.Context, symbol string) (*Market, error) {
	out := new(Market)
	if err := c.Call(ctx, "market_getMarket", symbolQuery{Symbol: symbol}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListMarkets enumerates every listed pool, sorted by symbol.
func (c *Client) ListMarkets(ctx context.Context) ([]Market, error) {
	var out []Market
	if err := c.Call(ctx, "market_listMarkets", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetRates returns the pool's utilization and per-block rates.
func (c *Client) GetRates(ctx context.Context, symbol string) (*Rates, error) {
	out := new(Rates)
	if err := c.Call(ctx, "market_getRates", symbolQuery{Symbol: symbol}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListTokens returns the registered underlying token symbols, sorted.
func (c *Client) ListTokens(ctx context.Context) ([]string, error) {
	var out []string
	if err := c.Call(ctx, "market_listTokens", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetToken fetches the metadata of one underlying token.
func (c *Client) GetToken(ctx context.Context, symbol string) (*Token, error) {
	out := new(Token)
	if err := c.Call(ctx, "market_getToken", symbolQuery{Symbol: symbol}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetBalance returns the account's underlying token balance.
func (c *Client) GetBalance(ctx context.Context, address, symbol string) (*Balance, error) {
	out := new(Balance)
	if err := c.Call(ctx, "market_getBalance", snapshotQuery{Address: address, Symbol: symbol}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetAccountSnapshot returns the account's position in one pool.
func (c *Client) GetAccountSnapshot(ctx context.Context, address, symbol string) (*AccountSnapshot, error) {
	out := new(AccountSnapshot)
	if err := c.Call(ctx, "market_getAccountSnapshot", snapshotQuery{Address: address, Symbol: symbol}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetAccountLiquidity evaluates the account's solvency across entered pools.
func (c *Client) GetAccountLiquidity(ctx context.Context, address string) (*Liquidity, error) {
	out := new(Liquidity)
	if err := c.Call(ctx, "market_getAccountLiquidity", addressQuery{Address: address}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetHypotheticalLiquidity previews solvency as if the account redeemed
// claim tokens or drew a new borrow in the named pool. Either amount may be
// empty.
func (c *Client) GetHypotheticalLiquidity(ctx context.Context, address, symbol, redeemTokens, borrowAmount string) (*Liquidity, error) {
	out := new(Liquidity)
	query := hypotheticalQuery{Address: address, Symbol: symbol, RedeemTokens: redeemTokens, BorrowAmount: borrowAmount}
	if err := c.Call(ctx, "market_getHypotheticalLiquidity", query, out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetMembership lists the pools the account entered as collateral.
func (c *Client) GetMembership(ctx context.Context, address string) (*Membership, error) {
	out := new(Membership)
	if err := c.Call(ctx, "market_getMembership", addressQuery{Address: address}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetRiskParams returns the registry-wide liquidation parameters.
func (c *Client) GetRiskParams(ctx context.Context) (*RiskParams, error) {
	out := new(RiskParams)
	if err := c.Call(ctx, "market_getRiskParams", nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetStatus summarizes the daemon's registry identity and progress.
func (c *Client) GetStatus(ctx context.Context) (*Status, error) {
	out := new(Status)
	if err := c.Call(ctx, "market_getStatus", nil, out); err != nil {
		return nil, err
	}
	return out, nil
}
