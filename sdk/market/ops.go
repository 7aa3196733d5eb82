package market

import (
	"context"
	"strings"
)

type mintOrder struct {
	Supplier string `json:"supplier"`
	Symbol   string `json:"symbol"`
	Amount   string `json:"amount"`
}

type redeemOrder struct {
	Redeemer string `json:"redeemer"`
	Symbol   string `json:"symbol"`
	Tokens   string `json:"tokens"`
}

type redeemUnderlyingOrder struct {
	Redeemer string `json:"redeemer"`
	Symbol   string `json:"symbol"`
	Amount   string `json:"amount"`
}

type borrowOrder struct {
	Borrower string `json:"borrower"`
	Symbol   string `json:"symbol"`
	Amount   string `json:"amount"`
}

type repayOrder struct {
	Payer  string `json:"payer"`
	Symbol string `json:"symbol"`
	Amount string `json:"amount"`
}

type repayBehalfOrder struct {
	Payer    string `json:"payer"`
	Borrower string `json:"borrower"`
	Symbol   string `json:"symbol"`
	Amount   string `json:"amount"`
}

type transferOrder struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Symbol string `json:"symbol"`
	Tokens string `json:"tokens"`
}

type membershipOrder struct {
	Account string `json:"account"`
	Symbol  string `json:"symbol"`
}

type liquidateOrder struct {
	Liquidator       string `json:"liquidator"`
	Borrower         string `json:"borrower"`
	DebtSymbol       string `json:"debtSymbol"`
	CollateralSymbol string `json:"collateralSymbol"`
	RepayAmount      string `json:"repayAmount"`
}

type addReservesOrder struct {
	From   string `json:"from"`
	Symbol string `json:"symbol"`
	Amount string `json:"amount"`
}

type accrueOrder struct {
	Symbol string `json:"symbol,omitempty"`
}

// Mint supplies underlying to the pool and returns the issued claims.
func (c *Client) Mint(ctx context.Context, supplier, symbol, amount string) (*MintReceipt, error) {
	out := new(MintReceipt)
	if err := c.Call(ctx, "market_mint", mintOrder{Supplier: supplier, Symbol: symbol, Amount: amount}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Redeem burns an exact number of claim tokens for underlying.
func (c *Client) Redeem(ctx context.Context, redeemer, symbol, tokens string) (*RedeemReceipt, error) {
	out := new(RedeemReceipt)
	if err := c.Call(ctx, "market_redeem", redeemOrder{Redeemer: redeemer, Symbol: symbol, Tokens: tokens}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// RedeemUnderlying withdraws an exact underlying amount, burning whatever
// claims that takes.
func (c *Client) RedeemUnderlying(ctx context.Context, redeemer, symbol, amount string) (*RedeemReceipt, error) {
	out := new(RedeemReceipt)
	if err := c.Call(ctx, "market_redeemUnderlying", redeemUnderlyingOrder{Redeemer: redeemer, Symbol: symbol, Amount: amount}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Borrow draws underlying against the account's collateral.
func (c *Client) Borrow(ctx context.Context, borrower, symbol, amount string) error {
	return c.Call(ctx, "market_borrow", borrowOrder{Borrower: borrower, Symbol: symbol, Amount: amount}, nil)
}

// Repay settles the payer's own debt. Pass RepayMax to settle in full.
func (c *Client) Repay(ctx context.Context, payer, symbol, amount string) (*RepayReceipt, error) {
	out := new(RepayReceipt)
	if err := c.Call(ctx, "market_repay", repayOrder{Payer: payer, Symbol: symbol, Amount: amount}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// RepayBehalf settles another account's debt with the payer's funds.
func (c *Client) RepayBehalf(ctx context.Context, payer, borrower, symbol, amount string) (*RepayReceipt, error) {
	out := new(RepayReceipt)
	order := repayBehalfOrder{Payer: payer, Borrower: borrower, Symbol: symbol, Amount: amount}
	if err := c.Call(ctx, "market_repayBehalf", order, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Transfer moves claim tokens between accounts.
func (c *Client) Transfer(ctx context.Context, from, to, symbol, tokens string) error {
	return c.Call(ctx, "market_transfer", transferOrder{From: from, To: to, Symbol: symbol, Tokens: tokens}, nil)
}

// EnterMarket flags the pool as collateral for the account.
func (c *Client) EnterMarket(ctx context.Context, account, symbol string) error {
	return c.Call(ctx, "market_enterMarket", membershipOrder{Account: account, Symbol: symbol}, nil)
}

// ExitMarket removes the pool from the account's collateral set.
func (c *Client) ExitMarket(ctx context.Context, account, symbol string) error {
	return c.Call(ctx, "market_exitMarket", membershipOrder{Account: account, Symbol: symbol}, nil)
}

// Liquidate repays an underwater borrower's debt and seizes collateral
// claims at the liquidation incentive.
func (c *Client) Liquidate(ctx context.Context, liquidator, borrower, debtSymbol, collateralSymbol, repayAmount string) (*LiquidateReceipt, error) {
	out := new(LiquidateReceipt)
	order := liquidateOrder{
		Liquidator:       liquidator,
		Borrower:         borrower,
		DebtSymbol:       debtSymbol,
		CollateralSymbol: collateralSymbol,
		RepayAmount:      repayAmount,
	}
	if err := c.Call(ctx, "market_liquidate", order, out); err != nil {
		return nil, err
	}
	return out, nil
}

// AddReserves donates underlying into the pool's reserves.
func (c *Client) AddReserves(ctx context.Context, from, symbol, amount string) (*ReservesReceipt, error) {
	out := new(ReservesReceipt)
	if err := c.Call(ctx, "market_addReserves", addReservesOrder{From: from, Symbol: symbol, Amount: amount}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Accrue pokes interest accrual, for one pool when symbol is set or across
// every pool when empty, and reports which pools actually advanced.
func (c *Client) Accrue(ctx context.Context, symbol string) (*AccrueReceipt, error) {
	out := new(AccrueReceipt)
	var params any
	if trimmed := strings.TrimSpace(symbol); trimmed != "" {
		params = accrueOrder{Symbol: trimmed}
	}
	if err := c.Call(ctx, "market_accrue", params, out); err != nil {
		return nil, err
	}
	return out, nil
}
