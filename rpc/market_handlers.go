package rpc

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/holiman/uint256"

	"lendcore/core/state"
	"lendcore/crypto"
	"lendcore/native/market"
)

type marketQueryParams struct {
	Symbol string `json:"symbol"`
}

type accountQueryParams struct {
	Address string `json:"address"`
}

type snapshotParams struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
}

type hypotheticalParams struct {
	Address      string `json:"address"`
	Symbol       string `json:"symbol"`
	RedeemTokens string `json:"redeemTokens,omitempty"`
	BorrowAmount string `json:"borrowAmount,omitempty"`
}

type balanceParams struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
}

type mintParams struct {
	Supplier string `json:"supplier"`
	Symbol   string `json:"symbol"`
	Amount   string `json:"amount"`
}

type redeemParams struct {
	Redeemer string `json:"redeemer"`
	Symbol   string `json:"symbol"`
	Tokens   string `json:"tokens"`
}

type redeemUnderlyingParams struct {
	Redeemer string `json:"redeemer"`
	Symbol   string `json:"symbol"`
	Amount   string `json:"amount"`
}

type borrowParams struct {
	Borrower string `json:"borrower"`
	Symbol   string `json:"symbol"`
	Amount   string `json:"amount"`
}

type repayParams struct {
	Payer  string `json:"payer"`
	Symbol string `json:"symbol"`
	Amount string `json:"amount"`
}

type repayBehalfParams struct {
	Payer    string `json:"payer"`
	Borrower string `json:"borrower"`
	Symbol   string `json:"symbol"`
	Amount   string `json:"amount"`
}

type transferParams struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Symbol string `json:"symbol"`
	Tokens string `json:"tokens"`
}

type membershipParams struct {
	Account string `json:"account"`
	Symbol  string `json:"symbol"`
}

type liquidateParams struct {
	Liquidator       string `json:"liquidator"`
	Borrower         string `json:"borrower"`
	DebtSymbol       string `json:"debtSymbol"`
	CollateralSymbol string `json:"collateralSymbol"`
	RepayAmount      string `json:"repayAmount"`
}

type addReservesParams struct {
	From   string `json:"from"`
	Symbol string `json:"symbol"`
	Amount string `json:"amount"`
}

type accrueParams struct {
	Symbol string `json:"symbol,omitempty"`
}

type rateModelResult struct {
	BaseRatePerBlock       string `json:"baseRatePerBlock"`
	MultiplierPerBlock     string `json:"multiplierPerBlock"`
	JumpMultiplierPerBlock string `json:"jumpMultiplierPerBlock"`
	Kink                   string `json:"kink"`
}

type pausesResult struct {
	Mint     bool `json:"mint"`
	Borrow   bool `json:"borrow"`
	Transfer bool `json:"transfer"`
	Seize    bool `json:"seize"`
}

// marketResult mirrors the stored market record with big values rendered as
// decimal strings.
type marketResult struct {
	Symbol           string          `json:"symbol"`
	RegistryID       string          `json:"registryId"`
	TotalCash        string          `json:"totalCash"`
	TotalBorrows     string          `json:"totalBorrows"`
	TotalReserves    string          `json:"totalReserves"`
	TotalSupply      string          `json:"totalSupply"`
	BorrowIndex      string          `json:"borrowIndex"`
	AccrualBlock     uint64          `json:"accrualBlock"`
	ExchangeRate     string          `json:"exchangeRate"`
	CollateralFactor string          `json:"collateralFactor"`
	ReserveFactor    string          `json:"reserveFactor"`
	SupplyCap        string          `json:"supplyCap,omitempty"`
	BorrowCap        string          `json:"borrowCap,omitempty"`
	RateModel        rateModelResult `json:"rateModel"`
	Paused           pausesResult    `json:"paused"`
	Deprecated       bool            `json:"deprecated,omitempty"`
}

type ratesResult struct {
	Symbol             string `json:"symbol"`
	Utilization        string `json:"utilization"`
	BorrowRatePerBlock string `json:"borrowRatePerBlock"`
	SupplyRatePerBlock string `json:"supplyRatePerBlock"`
}

type tokenResult struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals uint8  `json:"decimals"`
}

type balanceResult struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
	Amount  string `json:"amount"`
}

type snapshotResult struct {
	Symbol        string `json:"symbol"`
	ClaimTokens   string `json:"claimTokens"`
	BorrowBalance string `json:"borrowBalance"`
	ExchangeRate  string `json:"exchangeRate"`
}

type liquidityResult struct {
	Liquidity string `json:"liquidity"`
	Shortfall string `json:"shortfall"`
}

type membershipResult struct {
	Account string   `json:"account"`
	Markets []string `json:"markets"`
}

type riskParamsResult struct {
	CloseFactor          string `json:"closeFactor"`
	LiquidationIncentive string `json:"liquidationIncentive"`
	ProtocolSeizeShare   string `json:"protocolSeizeShare"`
}

type statusResult struct {
	RegistryID    string `json:"registryId"`
	BlockHeight   uint64 `json:"blockHeight"`
	Halted        bool   `json:"halted"`
	EventSequence uint64 `json:"eventSequence"`
}

type mintResult struct {
	Symbol      string `json:"symbol"`
	Minted      string `json:"minted"`
	ClaimTokens string `json:"claimTokens"`
}

type redeemResult struct {
	Symbol      string `json:"symbol"`
	ClaimTokens string `json:"claimTokens"`
	Redeemed    string `json:"redeemed"`
}

type repayResult struct {
	Symbol string `json:"symbol"`
	Repaid string `json:"repaid"`
}

type liquidateResult struct {
	DebtSymbol            string `json:"debtSymbol"`
	CollateralSymbol      string `json:"collateralSymbol"`
	RepaidActual          string `json:"repaidActual"`
	SeizedTokens          string `json:"seizedTokens"`
	LiquidatorTokens      string `json:"liquidatorTokens"`
	ProtocolTokens        string `json:"protocolTokens"`
	ProtocolReserveCredit string `json:"protocolReserveCredit"`
}

type reservesResult struct {
	Symbol string `json:"symbol"`
	Amount string `json:"amount"`
}

type accrueResult struct {
	Advanced []string `json:"advanced"`
}

type ackResult struct {
	Status string `json:"status"`
}

var ackOK = ackResult{Status: "ok"}

func bigString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

// capString keeps unset caps out of the rendered view so clients read
// absence as unlimited.
func capString(v *uint256.Int) string {
	if v == nil || v.IsZero() {
		return ""
	}
	return v.Dec()
}

func marketView(mkt *market.Market) marketResult {
	view := marketResult{
		Symbol:           mkt.Symbol,
		RegistryID:       mkt.RegistryID,
		TotalCash:        bigString(mkt.TotalCash),
		TotalBorrows:     bigString(mkt.TotalBorrows),
		TotalReserves:    bigString(mkt.TotalReserves),
		TotalSupply:      bigString(mkt.TotalSupply),
		BorrowIndex:      bigString(mkt.BorrowIndex),
		AccrualBlock:     mkt.AccrualBlock,
		CollateralFactor: bigString(mkt.CollateralFactor),
		ReserveFactor:    bigString(mkt.ReserveFactor),
		SupplyCap:        capString(mkt.SupplyCap),
		BorrowCap:        capString(mkt.BorrowCap),
		RateModel: rateModelResult{
			BaseRatePerBlock:       bigString(mkt.RateModel.BaseRatePerBlock),
			MultiplierPerBlock:     bigString(mkt.RateModel.MultiplierPerBlock),
			JumpMultiplierPerBlock: bigString(mkt.RateModel.JumpMultiplierPerBlock),
			Kink:                   bigString(mkt.RateModel.Kink),
		},
		Paused: pausesResult{
			Mint:     mkt.Pauses.Mint,
			Borrow:   mkt.Pauses.Borrow,
			Transfer: mkt.Pauses.Transfer,
			Seize:    mkt.Pauses.Seize,
		},
		Deprecated: mkt.Deprecated,
	}
	if rate, err := mkt.ExchangeRate(); err == nil {
		view.ExchangeRate = bigString(rate)
	}
	return view
}

func tokenView(meta *state.TokenMetadata) tokenResult {
	return tokenResult{Symbol: meta.Symbol, Name: meta.Name, Decimals: meta.Decimals}
}

func riskParamsView(params market.RiskParameters) riskParamsResult {
	return riskParamsResult{
		CloseFactor:          bigString(params.CloseFactor),
		LiquidationIncentive: bigString(params.LiquidationIncentive),
		ProtocolSeizeShare:   bigString(params.ProtocolSeizeShare),
	}
}

// decodeParams unmarshals the single positional parameter object every
// market method expects.
func decodeParams(w http.ResponseWriter, req *RPCRequest, target interface{}) bool {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected parameter object", nil)
		return false
	}
	if err := json.Unmarshal(req.Params[0], target); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return false
	}
	return true
}

func decodeAddressParam(w http.ResponseWriter, req *RPCRequest, value, field string) (crypto.Address, bool) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid "+field, err.Error())
		return crypto.Address{}, false
	}
	return addr, true
}

func parseAmountParam(w http.ResponseWriter, req *RPCRequest, value, field string) (*uint256.Int, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, field+" required", nil)
		return nil, false
	}
	amount, err := uint256.FromDecimal(value)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid "+field, err.Error())
		return nil, false
	}
	return amount, true
}

// parseRepayAmountParam accepts the literal "max" to settle a full debt
// without quoting it first.
func parseRepayAmountParam(w http.ResponseWriter, req *RPCRequest, value string) (*uint256.Int, bool) {
	if strings.EqualFold(strings.TrimSpace(value), "max") {
		return market.RepayMax.Clone(), true
	}
	return parseAmountParam(w, req, value, "amount")
}

// parseOptionalAmountParam treats blank values as zero for fields where zero
// means unset.
func parseOptionalAmountParam(w http.ResponseWriter, req *RPCRequest, value, field string) (*uint256.Int, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return new(uint256.Int), true
	}
	amount, err := uint256.FromDecimal(value)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid "+field, err.Error())
		return nil, false
	}
	return amount, true
}

func parseMantissaParam(w http.ResponseWriter, req *RPCRequest, value, field string) (*uint256.Int, bool) {
	mantissa, err := market.MantissaFromDecimal(strings.TrimSpace(value))
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid "+field, err.Error())
		return nil, false
	}
	return mantissa, true
}

func (s *Server) handleGetMarket(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params marketQueryParams
	if !decodeParams(w, req, &params) {
		return
	}
	mkt, err := s.ledger.GetMarket(params.Symbol)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, marketView(mkt))
}

func (s *Server) handleListMarkets(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "no parameters expected", nil)
		return
	}
	markets, err := s.ledger.Markets()
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	views := make([]marketResult, 0, len(markets))
	for _, mkt := range markets {
		views = append(views, marketView(mkt))
	}
	writeResult(w, req.ID, views)
}

func (s *Server) handleGetRates(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params marketQueryParams
	if !decodeParams(w, req, &params) {
		return
	}
	rates, err := s.ledger.Rates(params.Symbol)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, ratesResult{
		Symbol:             rates.Symbol,
		Utilization:        bigString(rates.Utilization),
		BorrowRatePerBlock: bigString(rates.BorrowRatePerBlock),
		SupplyRatePerBlock: bigString(rates.SupplyRatePerBlock),
	})
}

func (s *Server) handleListTokens(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "no parameters expected", nil)
		return
	}
	symbols, err := s.ledger.TokenList()
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, symbols)
}

func (s *Server) handleGetToken(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params marketQueryParams
	if !decodeParams(w, req, &params) {
		return
	}
	meta, err := s.ledger.Token(params.Symbol)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	if meta == nil {
		writeError(w, http.StatusNotFound, req.ID, codeMarketError, "token not registered", nil)
		return
	}
	writeResult(w, req.ID, tokenView(meta))
}

func (s *Server) handleGetBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params balanceParams
	if !decodeParams(w, req, &params) {
		return
	}
	addr, ok := decodeAddressParam(w, req, params.Address, "address")
	if !ok {
		return
	}
	amount, err := s.ledger.Balance(params.Symbol, addr)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, balanceResult{
		Address: addr.String(),
		Symbol:  market.CanonicalSymbol(params.Symbol),
		Amount:  bigString(amount),
	})
}

func (s *Server) handleGetAccountSnapshot(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params snapshotParams
	if !decodeParams(w, req, &params) {
		return
	}
	addr, ok := decodeAddressParam(w, req, params.Address, "address")
	if !ok {
		return
	}
	snapshot, err := s.ledger.AccountSnapshot(addr, params.Symbol)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, snapshotResult{
		Symbol:        snapshot.Symbol,
		ClaimTokens:   bigString(snapshot.ClaimTokens),
		BorrowBalance: bigString(snapshot.BorrowBalance),
		ExchangeRate:  bigString(snapshot.ExchangeRate),
	})
}

func (s *Server) handleGetAccountLiquidity(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params accountQueryParams
	if !decodeParams(w, req, &params) {
		return
	}
	addr, ok := decodeAddressParam(w, req, params.Address, "address")
	if !ok {
		return
	}
	liquidity, err := s.ledger.AccountLiquidity(addr)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, liquidityResult{
		Liquidity: bigString(liquidity.Liquidity),
		Shortfall: bigString(liquidity.Shortfall),
	})
}

func (s *Server) handleGetHypotheticalLiquidity(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params hypotheticalParams
	if !decodeParams(w, req, &params) {
		return
	}
	addr, ok := decodeAddressParam(w, req, params.Address, "address")
	if !ok {
		return
	}
	redeemTokens, ok := parseOptionalAmountParam(w, req, params.RedeemTokens, "redeemTokens")
	if !ok {
		return
	}
	borrowAmount, ok := parseOptionalAmountParam(w, req, params.BorrowAmount, "borrowAmount")
	if !ok {
		return
	}
	liquidity, err := s.ledger.HypotheticalLiquidity(addr, params.Symbol, redeemTokens, borrowAmount)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, liquidityResult{
		Liquidity: bigString(liquidity.Liquidity),
		Shortfall: bigString(liquidity.Shortfall),
	})
}

func (s *Server) handleGetMembership(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params accountQueryParams
	if !decodeParams(w, req, &params) {
		return
	}
	addr, ok := decodeAddressParam(w, req, params.Address, "address")
	if !ok {
		return
	}
	markets, err := s.ledger.Membership(addr)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	if markets == nil {
		markets = []string{}
	}
	writeResult(w, req.ID, membershipResult{Account: addr.String(), Markets: markets})
}

func (s *Server) handleGetRiskParams(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "no parameters expected", nil)
		return
	}
	writeResult(w, req.ID, riskParamsView(s.ledger.RiskParams()))
}

func (s *Server) handleGetStatus(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "no parameters expected", nil)
		return
	}
	writeResult(w, req.ID, statusResult{
		RegistryID:    s.ledger.RegistryID(),
		BlockHeight:   s.ledger.BlockHeight(),
		Halted:        s.ledger.Halted(),
		EventSequence: s.ledger.EventSequence(),
	})
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if !s.throttleMutation(w, r, req) {
		return
	}
	var params mintParams
	if !decodeParams(w, req, &params) {
		return
	}
	supplier, ok := decodeAddressParam(w, req, params.Supplier, "supplier")
	if !ok {
		return
	}
	amount, ok := parseAmountParam(w, req, params.Amount, "amount")
	if !ok {
		return
	}
	minted, actual, err := s.ledger.Mint(supplier, params.Symbol, amount)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, mintResult{
		Symbol:      market.CanonicalSymbol(params.Symbol),
		Minted:      bigString(actual),
		ClaimTokens: bigString(minted),
	})
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if !s.throttleMutation(w, r, req) {
		return
	}
	var params redeemParams
	if !decodeParams(w, req, &params) {
		return
	}
	redeemer, ok := decodeAddressParam(w, req, params.Redeemer, "redeemer")
	if !ok {
		return
	}
	tokens, ok := parseAmountParam(w, req, params.Tokens, "tokens")
	if !ok {
		return
	}
	amount, err := s.ledger.Redeem(redeemer, params.Symbol, tokens)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, redeemResult{
		Symbol:      market.CanonicalSymbol(params.Symbol),
		ClaimTokens: bigString(tokens),
		Redeemed:    bigString(amount),
	})
}

func (s *Server) handleRedeemUnderlying(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if !s.throttleMutation(w, r, req) {
		return
	}
	var params redeemUnderlyingParams
	if !decodeParams(w, req, &params) {
		return
	}
	redeemer, ok := decodeAddressParam(w, req, params.Redeemer, "redeemer")
	if !ok {
		return
	}
	amount, ok := parseAmountParam(w, req, params.Amount, "amount")
	if !ok {
		return
	}
	burned, err := s.ledger.RedeemUnderlying(redeemer, params.Symbol, amount)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, redeemResult{
		Symbol:      market.CanonicalSymbol(params.Symbol),
		ClaimTokens: bigString(burned),
		Redeemed:    bigString(amount),
	})
}

func (s *Server) handleBorrow(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if !s.throttleMutation(w, r, req) {
		return
	}
	var params borrowParams
	if !decodeParams(w, req, &params) {
		return
	}
	borrower, ok := decodeAddressParam(w, req, params.Borrower, "borrower")
	if !ok {
		return
	}
	amount, ok := parseAmountParam(w, req, params.Amount, "amount")
	if !ok {
		return
	}
	if err := s.ledger.Borrow(borrower, params.Symbol, amount); err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, ackOK)
}

func (s *Server) handleRepay(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if !s.throttleMutation(w, r, req) {
		return
	}
	var params repayParams
	if !decodeParams(w, req, &params) {
		return
	}
	payer, ok := decodeAddressParam(w, req, params.Payer, "payer")
	if !ok {
		return
	}
	amount, ok := parseRepayAmountParam(w, req, params.Amount)
	if !ok {
		return
	}
	actual, err := s.ledger.Repay(payer, params.Symbol, amount)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, repayResult{
		Symbol: market.CanonicalSymbol(params.Symbol),
		Repaid: bigString(actual),
	})
}

func (s *Server) handleRepayBehalf(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if !s.throttleMutation(w, r, req) {
		return
	}
	var params repayBehalfParams
	if !decodeParams(w, req, &params) {
		return
	}
	payer, ok := decodeAddressParam(w, req, params.Payer, "payer")
	if !ok {
		return
	}
	borrower, ok := decodeAddressParam(w, req, params.Borrower, "borrower")
	if !ok {
		return
	}
	amount, ok := parseRepayAmountParam(w, req, params.Amount)
	if !ok {
		return
	}
	actual, err := s.ledger.RepayBehalf(payer, borrower, params.Symbol, amount)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, repayResult{
		Symbol: market.CanonicalSymbol(params.Symbol),
		Repaid: bigString(actual),
	})
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if !s.throttleMutation(w, r, req) {
		return
	}
	var params transferParams
	if !decodeParams(w, req, &params) {
		return
	}
	from, ok := decodeAddressParam(w, req, params.From, "from")
	if !ok {
		return
	}
	to, ok := decodeAddressParam(w, req, params.To, "to")
	if !ok {
		return
	}
	tokens, ok := parseAmountParam(w, req, params.Tokens, "tokens")
	if !ok {
		return
	}
	if err := s.ledger.TransferClaim(from, to, params.Symbol, tokens); err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, ackOK)
}

func (s *Server) handleEnterMarket(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if !s.throttleMutation(w, r, req) {
		return
	}
	var params membershipParams
	if !decodeParams(w, req, &params) {
		return
	}
	account, ok := decodeAddressParam(w, req, params.Account, "account")
	if !ok {
		return
	}
	if err := s.ledger.EnterMarket(account, params.Symbol); err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, ackOK)
}

func (s *Server) handleExitMarket(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if !s.throttleMutation(w, r, req) {
		return
	}
	var params membershipParams
	if !decodeParams(w, req, &params) {
		return
	}
	account, ok := decodeAddressParam(w, req, params.Account, "account")
	if !ok {
		return
	}
	if err := s.ledger.ExitMarket(account, params.Symbol); err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, ackOK)
}

func (s *Server) handleLiquidate(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if !s.throttleMutation(w, r, req) {
		return
	}
	var params liquidateParams
	if !decodeParams(w, req, &params) {
		return
	}
	liquidator, ok := decodeAddressParam(w, req, params.Liquidator, "liquidator")
	if !ok {
		return
	}
	borrower, ok := decodeAddressParam(w, req, params.Borrower, "borrower")
	if !ok {
		return
	}
	repayAmount, ok := parseRepayAmountParam(w, req, params.RepayAmount)
	if !ok {
		return
	}
	result, err := s.ledger.LiquidateBorrow(liquidator, borrower, params.DebtSymbol, params.CollateralSymbol, repayAmount)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, liquidateResult{
		DebtSymbol:            result.DebtSymbol,
		CollateralSymbol:      result.CollateralSymbol,
		RepaidActual:          bigString(result.RepaidActual),
		SeizedTokens:          bigString(result.SeizedTokens),
		LiquidatorTokens:      bigString(result.LiquidatorTokens),
		ProtocolTokens:        bigString(result.ProtocolTokens),
		ProtocolReserveCredit: bigString(result.ProtocolReserveCredit),
	})
}

func (s *Server) handleAddReserves(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if !s.throttleMutation(w, r, req) {
		return
	}
	var params addReservesParams
	if !decodeParams(w, req, &params) {
		return
	}
	from, ok := decodeAddressParam(w, req, params.From, "from")
	if !ok {
		return
	}
	amount, ok := parseAmountParam(w, req, params.Amount, "amount")
	if !ok {
		return
	}
	actual, err := s.ledger.AddReserves(from, params.Symbol, amount)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, reservesResult{
		Symbol: market.CanonicalSymbol(params.Symbol),
		Amount: bigString(actual),
	})
}

// handleAccrue pokes interest accrual. Accrual is permissionless so keepers
// need no credentials, only budget.
func (s *Server) handleAccrue(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if !s.throttleMutation(w, r, req) {
		return
	}
	var params accrueParams
	if len(req.Params) > 0 && !decodeParams(w, req, &params) {
		return
	}
	if strings.TrimSpace(params.Symbol) != "" {
		if err := s.ledger.AccrueMarket(params.Symbol); err != nil {
			writeLedgerError(w, req.ID, err)
			return
		}
		writeResult(w, req.ID, accrueResult{Advanced: []string{market.CanonicalSymbol(params.Symbol)}})
		return
	}
	advanced, err := s.ledger.AccrueAll()
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	if advanced == nil {
		advanced = []string{}
	}
	writeResult(w, req.ID, accrueResult{Advanced: advanced})
}
