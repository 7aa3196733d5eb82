package rpc

import (
	"net/http"
	"strings"

	"lendcore/native/market"
)

type listMarketParams struct {
	Admin            string           `json:"admin"`
	Symbol           string           `json:"symbol"`
	CollateralFactor string           `json:"collateralFactor"`
	ReserveFactor    string           `json:"reserveFactor"`
	SupplyCap        string           `json:"supplyCap,omitempty"`
	BorrowCap        string           `json:"borrowCap,omitempty"`
	RateModel        *rateModelParams `json:"rateModel,omitempty"`
}

type rateModelParams struct {
	BaseRatePerBlock       string `json:"baseRatePerBlock"`
	MultiplierPerBlock     string `json:"multiplierPerBlock"`
	JumpMultiplierPerBlock string `json:"jumpMultiplierPerBlock"`
	Kink                   string `json:"kink"`
}

type setFactorParams struct {
	Admin  string `json:"admin"`
	Symbol string `json:"symbol"`
	Factor string `json:"factor"`
}

type setCapsParams struct {
	Admin     string `json:"admin"`
	Symbol    string `json:"symbol"`
	SupplyCap string `json:"supplyCap,omitempty"`
	BorrowCap string `json:"borrowCap,omitempty"`
}

type setPausesParams struct {
	Admin    string `json:"admin"`
	Symbol   string `json:"symbol"`
	Mint     bool   `json:"mint"`
	Borrow   bool   `json:"borrow"`
	Transfer bool   `json:"transfer"`
	Seize    bool   `json:"seize"`
}

type setDeprecatedParams struct {
	Admin      string `json:"admin"`
	Symbol     string `json:"symbol"`
	Deprecated bool   `json:"deprecated"`
}

type setRateModelParams struct {
	Admin                  string `json:"admin"`
	Symbol                 string `json:"symbol"`
	BaseRatePerBlock       string `json:"baseRatePerBlock"`
	MultiplierPerBlock     string `json:"multiplierPerBlock"`
	JumpMultiplierPerBlock string `json:"jumpMultiplierPerBlock"`
	Kink                   string `json:"kink"`
}

type riskValueParams struct {
	Admin string `json:"admin"`
	Value string `json:"value"`
}

type setHaltedParams struct {
	Admin  string `json:"admin"`
	Halted bool   `json:"halted"`
}

type reduceReservesParams struct {
	Admin     string `json:"admin"`
	Symbol    string `json:"symbol"`
	Amount    string `json:"amount"`
	Recipient string `json:"recipient"`
}

type roleParams struct {
	Admin   string `json:"admin"`
	Role    string `json:"role"`
	Account string `json:"account"`
}

type haltedResult struct {
	Halted bool `json:"halted"`
}

// authorize gates the admin surface behind the configured bearer token.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request, req *RPCRequest) bool {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return false
	}
	return true
}

// marketViewResult re-reads a market after a mutation so the caller sees the
// settled record.
func (s *Server) marketViewResult(w http.ResponseWriter, req *RPCRequest, symbol string) {
	mkt, err := s.ledger.GetMarket(symbol)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, marketView(mkt))
}

// build converts per-block decimal rates into a model. Omitted rates default
// to zero and an omitted kink to full utilization.
func (p *rateModelParams) build(w http.ResponseWriter, req *RPCRequest) (market.JumpRateModel, bool) {
	orDefault := func(value, fallback string) string {
		if strings.TrimSpace(value) == "" {
			return fallback
		}
		return value
	}
	var model market.JumpRateModel
	var ok bool
	if model.BaseRatePerBlock, ok = parseMantissaParam(w, req, orDefault(p.BaseRatePerBlock, "0"), "baseRatePerBlock"); !ok {
		return model, false
	}
	if model.MultiplierPerBlock, ok = parseMantissaParam(w, req, orDefault(p.MultiplierPerBlock, "0"), "multiplierPerBlock"); !ok {
		return model, false
	}
	if model.JumpMultiplierPerBlock, ok = parseMantissaParam(w, req, orDefault(p.JumpMultiplierPerBlock, "0"), "jumpMultiplierPerBlock"); !ok {
		return model, false
	}
	if model.Kink, ok = parseMantissaParam(w, req, orDefault(p.Kink, "1"), "kink"); !ok {
		return model, false
	}
	return model, true
}

func (s *Server) handleListMarket(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if !s.authorize(w, r, req) {
		return
	}
	var params listMarketParams
	if !decodeParams(w, req, &params) {
		return
	}
	admin, ok := decodeAddressParam(w, req, params.Admin, "admin")
	if !ok {
		return
	}
	symbol := market.CanonicalSymbol(params.Symbol)
	if symbol == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "symbol required", nil)
		return
	}
	mkt := &market.Market{Symbol: symbol}
	if mkt.CollateralFactor, ok = parseMantissaParam(w, req, params.CollateralFactor, "collateralFactor"); !ok {
		return
	}
	if mkt.ReserveFactor, ok = parseMantissaParam(w, req, params.ReserveFactor, "reserveFactor"); !ok {
		return
	}
	if mkt.SupplyCap, ok = parseOptionalAmountParam(w, req, params.SupplyCap, "supplyCap"); !ok {
		return
	}
	if mkt.BorrowCap, ok = parseOptionalAmountParam(w, req, params.BorrowCap, "borrowCap"); !ok {
		return
	}
	if params.RateModel != nil {
		if mkt.RateModel, ok = params.RateModel.build(w, req); !ok {
			return
		}
	}
	if err := s.ledger.ListMarket(admin, mkt); err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	s.marketViewResult(w, req, symbol)
}

func (s *Server) handleSetCollateralFactor(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if !s.authorize(w, r, req) {
		return
	}
	var params setFactorParams
	if !decodeParams(w, req, &params) {
		return
	}
	admin, ok := decodeAddressParam(w, req, params.Admin, "admin")
	if !ok {
		return
	}
	factor, ok := parseMantissaParam(w, req, params.Factor, "factor")
	if !ok {
		return
	}
	if err := s.ledger.SetCollateralFactor(admin, params.Symbol, factor); err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	s.marketViewResult(w, req, params.Symbol)
}

func (s *Server) handleSetReserveFactor(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if !s.authorize(w, r, req) {
		return
	}
	var params setFactorParams
	if !decodeParams(w, req, &params) {
		return
	}
	admin, ok := decodeAddressParam(w, req, params.Admin, "admin")
	if !ok {
		return
	}
	factor, ok := parseMantissaParam(w, req, params.Factor, "factor")
	if !ok {
		return
	}
	if err := s.ledger.SetReserveFactor(admin, params.Symbol, factor); err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	s.marketViewResult(w, req, params.Symbol)
}

func (s *Server) handleSetCaps(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if !s.authorize(w, r, req) {
		return
	}
	var params setCapsParams
	if !decodeParams(w, req, &params) {
		return
	}
	admin, ok := decodeAddressParam(w, req, params.Admin, "admin")
	if !ok {
		return
	}
	supplyCap, ok := parseOptionalAmountParam(w, req, params.SupplyCap, "supplyCap")
	if !ok {
		return
	}
	borrowCap, ok := parseOptionalAmountParam(w, req, params.BorrowCap, "borrowCap")
	if !ok {
		return
	}
	if err := s.ledger.SetCaps(admin, params.Symbol, supplyCap, borrowCap); err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	s.marketViewResult(w, req, params.Symbol)
}

func (s *Server) handleSetActionPauses(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if !s.authorize(w, r, req) {
		return
	}
	var params setPausesParams
	if !decodeParams(w, req, &params) {
		return
	}
	admin, ok := decodeAddressParam(w, req, params.Admin, "admin")
	if !ok {
		return
	}
	pauses := market.ActionPauses{
		Mint:     params.Mint,
		Borrow:   params.Borrow,
		Transfer: params.Transfer,
		Seize:    params.Seize,
	}
	if err := s.ledger.SetActionPauses(admin, params.Symbol, pauses); err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	s.marketViewResult(w, req, params.Symbol)
}

func (s *Server) handleSetDeprecated(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if !s.authorize(w, r, req) {
		return
	}
	var params setDeprecatedParams
	if !decodeParams(w, req, &params) {
		return
	}
	admin, ok := decodeAddressParam(w, req, params.Admin, "admin")
	if !ok {
		return
	}
	if err := s.ledger.SetDeprecated(admin, params.Symbol, params.Deprecated); err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	s.marketViewResult(w, req, params.Symbol)
}

func (s *Server) handleSetRateModel(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if !s.authorize(w, r, req) {
		return
	}
	var params setRateModelParams
	if !decodeParams(w, req, &params) {
		return
	}
	admin, ok := decodeAddressParam(w, req, params.Admin, "admin")
	if !ok {
		return
	}
	spec := rateModelParams{
		BaseRatePerBlock:       params.BaseRatePerBlock,
		MultiplierPerBlock:     params.MultiplierPerBlock,
		JumpMultiplierPerBlock: params.JumpMultiplierPerBlock,
		Kink:                   params.Kink,
	}
	model, ok := spec.build(w, req)
	if !ok {
		return
	}
	if err := s.ledger.SetRateModel(admin, params.Symbol, model); err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	s.marketViewResult(w, req, params.Symbol)
}

func (s *Server) handleSetCloseFactor(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if !s.authorize(w, r, req) {
		return
	}
	var params riskValueParams
	if !decodeParams(w, req, &params) {
		return
	}
	admin, ok := decodeAddressParam(w, req, params.Admin, "admin")
	if !ok {
		return
	}
	value, ok := parseMantissaParam(w, req, params.Value, "value")
	if !ok {
		return
	}
	if err := s.ledger.SetCloseFactor(admin, value); err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, riskParamsView(s.ledger.RiskParams()))
}

func (s *Server) handleSetLiquidationIncentive(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if !s.authorize(w, r, req) {
		return
	}
	var params riskValueParams
	if !decodeParams(w, req, &params) {
		return
	}
	admin, ok := decodeAddressParam(w, req, params.Admin, "admin")
	if !ok {
		return
	}
	value, ok := parseMantissaParam(w, req, params.Value, "value")
	if !ok {
		return
	}
	if err := s.ledger.SetLiquidationIncentive(admin, value); err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, riskParamsView(s.ledger.RiskParams()))
}

func (s *Server) handleSetProtocolSeizeShare(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if !s.authorize(w, r, req) {
		return
	}
	var params riskValueParams
	if !decodeParams(w, req, &params) {
		return
	}
	admin, ok := decodeAddressParam(w, req, params.Admin, "admin")
	if !ok {
		return
	}
	value, ok := parseMantissaParam(w, req, params.Value, "value")
	if !ok {
		return
	}
	if err := s.ledger.SetProtocolSeizeShare(admin, value); err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, riskParamsView(s.ledger.RiskParams()))
}

func (s *Server) handleSetHalted(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if !s.authorize(w, r, req) {
		return
	}
	var params setHaltedParams
	if !decodeParams(w, req, &params) {
		return
	}
	admin, ok := decodeAddressParam(w, req, params.Admin, "admin")
	if !ok {
		return
	}
	if err := s.ledger.SetHalted(admin, params.Halted); err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, haltedResult{Halted: s.ledger.Halted()})
}

func (s *Server) handleReduceReserves(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if !s.authorize(w, r, req) {
		return
	}
	var params reduceReservesParams
	if !decodeParams(w, req, &params) {
		return
	}
	admin, ok := decodeAddressParam(w, req, params.Admin, "admin")
	if !ok {
		return
	}
	recipient, ok := decodeAddressParam(w, req, params.Recipient, "recipient")
	if !ok {
		return
	}
	amount, ok := parseAmountParam(w, req, params.Amount, "amount")
	if !ok {
		return
	}
	reduced, err := s.ledger.ReduceReserves(admin, params.Symbol, amount, recipient)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, reservesResult{
		Symbol: market.CanonicalSymbol(params.Symbol),
		Amount: bigString(reduced),
	})
}

func (s *Server) handleGrantRole(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if !s.authorize(w, r, req) {
		return
	}
	var params roleParams
	if !decodeParams(w, req, &params) {
		return
	}
	admin, ok := decodeAddressParam(w, req, params.Admin, "admin")
	if !ok {
		return
	}
	account, ok := decodeAddressParam(w, req, params.Account, "account")
	if !ok {
		return
	}
	if err := s.ledger.GrantRole(admin, params.Role, account); err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, ackOK)
}

func (s *Server) handleRevokeRole(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if !s.authorize(w, r, req) {
		return
	}
	var params roleParams
	if !decodeParams(w, req, &params) {
		return
	}
	admin, ok := decodeAddressParam(w, req, params.Admin, "admin")
	if !ok {
		return
	}
	account, ok := decodeAddressParam(w, req, params.Account, "account")
	if !ok {
		return
	}
	if err := s.ledger.RevokeRole(admin, params.Role, account); err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, ackOK)
}
