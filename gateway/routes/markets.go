package routes

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"lendcore/core"
	"lendcore/crypto"
	nativecommon "lendcore/native/common"
	"lendcore/native/market"
)

type handler struct {
	ledger *core.Ledger
	log    *slog.Logger
}

type errorPayload struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type rateModelPayload struct {
	BaseRatePerBlock       string `json:"baseRatePerBlock"`
	MultiplierPerBlock     string `json:"multiplierPerBlock"`
	JumpMultiplierPerBlock string `json:"jumpMultiplierPerBlock"`
	Kink                   string `json:"kink"`
}

type pausesPayload struct {
	Mint     bool `json:"mint"`
	Borrow   bool `json:"borrow"`
	Transfer bool `json:"transfer"`
	Seize    bool `json:"seize"`
}

type marketPayload struct {
	Symbol           string           `json:"symbol"`
	RegistryID       string           `json:"registryId"`
	TotalCash        string           `json:"totalCash"`
	TotalBorrows     string           `json:"totalBorrows"`
	TotalReserves    string           `json:"totalReserves"`
	TotalSupply      string           `json:"totalSupply"`
	BorrowIndex      string           `json:"borrowIndex"`
	AccrualBlock     uint64           `json:"accrualBlock"`
	ExchangeRate     string           `json:"exchangeRate"`
	CollateralFactor string           `json:"collateralFactor"`
	ReserveFactor    string           `json:"reserveFactor"`
	SupplyCap        string           `json:"supplyCap,omitempty"`
	BorrowCap        string           `json:"borrowCap,omitempty"`
	RateModel        rateModelPayload `json:"rateModel"`
	Paused           pausesPayload    `json:"paused"`
	Deprecated       bool             `json:"deprecated,omitempty"`
}

type ratesPayload struct {
	Symbol             string `json:"symbol"`
	Utilization        string `json:"utilization"`
	BorrowRatePerBlock string `json:"borrowRatePerBlock"`
	SupplyRatePerBlock string `json:"supplyRatePerBlock"`
}

type tokenPayload struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals uint8  `json:"decimals"`
}

type positionPayload struct {
	Symbol        string `json:"symbol"`
	ClaimTokens   string `json:"claimTokens"`
	BorrowBalance string `json:"borrowBalance"`
	ExchangeRate  string `json:"exchangeRate"`
	Collateral    bool   `json:"collateral"`
}

type positionsPayload struct {
	Address   string            `json:"address"`
	Positions []positionPayload `json:"positions"`
}

type liquidityPayload struct {
	Address   string `json:"address"`
	Liquidity string `json:"liquidity"`
	Shortfall string `json:"shortfall"`
}

type riskParamsPayload struct {
	CloseFactor          string `json:"closeFactor"`
	LiquidationIncentive string `json:"liquidationIncentive"`
	ProtocolSeizeShare   string `json:"protocolSeizeShare"`
}

type statusPayload struct {
	RegistryID    string `json:"registryId"`
	BlockHeight   uint64 `json:"blockHeight"`
	Halted        bool   `json:"halted"`
	EventSequence uint64 `json:"eventSequence"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, errorPayload{Error: message, Code: code})
}

func (h *handler) writeLedgerError(w http.ResponseWriter, err error) {
	if errors.Is(err, nativecommon.ErrModulePaused) {
		writeError(w, http.StatusServiceUnavailable, err.Error(), "module_halted")
		return
	}
	code := market.CodeOf(err)
	writeError(w, statusForCode(code), err.Error(), string(code))
}

func statusForCode(code market.Code) int {
	switch code {
	case market.CodeMarketNotListed:
		return http.StatusNotFound
	case market.CodeInvalidParameter:
		return http.StatusBadRequest
	case market.CodeUnauthorized:
		return http.StatusForbidden
	case market.CodeReentrancy:
		return http.StatusConflict
	case market.CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func bigString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func capString(v *uint256.Int) string {
	if v == nil || v.IsZero() {
		return ""
	}
	return v.Dec()
}

func marketPayloadFrom(mkt *market.Market) marketPayload {
	payload := marketPayload{
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
		RateModel: rateModelPayload{
			BaseRatePerBlock:       bigString(mkt.RateModel.BaseRatePerBlock),
			MultiplierPerBlock:     bigString(mkt.RateModel.MultiplierPerBlock),
			JumpMultiplierPerBlock: bigString(mkt.RateModel.JumpMultiplierPerBlock),
			Kink:                   bigString(mkt.RateModel.Kink),
		},
		Paused: pausesPayload{
			Mint:     mkt.Pauses.Mint,
			Borrow:   mkt.Pauses.Borrow,
			Transfer: mkt.Pauses.Transfer,
			Seize:    mkt.Pauses.Seize,
		},
		Deprecated: mkt.Deprecated,
	}
	if rate, err := mkt.ExchangeRate(); err == nil {
		payload.ExchangeRate = bigString(rate)
	}
	return payload
}

func (h *handler) decodeAddress(w http.ResponseWriter, raw string) (crypto.Address, bool) {
	addr, err := crypto.DecodeAddress(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid address", string(market.CodeInvalidParameter))
		return crypto.Address{}, false
	}
	return addr, true
}

func (h *handler) listMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := h.ledger.Markets()
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	payload := make([]marketPayload, 0, len(markets))
	for _, mkt := range markets {
		payload = append(payload, marketPayloadFrom(mkt))
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *handler) getMarket(w http.ResponseWriter, r *http.Request) {
	mkt, err := h.ledger.GetMarket(chi.URLParam(r, "symbol"))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, marketPayloadFrom(mkt))
}

func (h *handler) getRates(w http.ResponseWriter, r *http.Request) {
	rates, err := h.ledger.Rates(chi.URLParam(r, "symbol"))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ratesPayload{
		Symbol:             rates.Symbol,
		Utilization:        bigString(rates.Utilization),
		BorrowRatePerBlock: bigString(rates.BorrowRatePerBlock),
		SupplyRatePerBlock: bigString(rates.SupplyRatePerBlock),
	})
}

func (h *handler) listTokens(w http.ResponseWriter, r *http.Request) {
	symbols, err := h.ledger.TokenList()
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	payload := make([]tokenPayload, 0, len(symbols))
	for _, symbol := range symbols {
		meta, err := h.ledger.Token(symbol)
		if err != nil {
			h.writeLedgerError(w, err)
			return
		}
		if meta == nil {
			continue
		}
		payload = append(payload, tokenPayload{Symbol: meta.Symbol, Name: meta.Name, Decimals: meta.Decimals})
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *handler) getToken(w http.ResponseWriter, r *http.Request) {
	meta, err := h.ledger.Token(chi.URLParam(r, "symbol"))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	if meta == nil {
		writeError(w, http.StatusNotFound, "token not registered", "not_found")
		return
	}
	writeJSON(w, http.StatusOK, tokenPayload{Symbol: meta.Symbol, Name: meta.Name, Decimals: meta.Decimals})
}

// accountPositions joins the account's balances across every listed market,
// dropping markets the account neither supplied, borrowed, nor entered.
func (h *handler) accountPositions(w http.ResponseWriter, r *http.Request) {
	addr, ok := h.decodeAddress(w, chi.URLParam(r, "address"))
	if !ok {
		return
	}
	markets, err := h.ledger.Markets()
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	membership, err := h.ledger.Membership(addr)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	entered := make(map[string]struct{}, len(membership))
	for _, symbol := range membership {
		entered[symbol] = struct{}{}
	}
	positions := make([]positionPayload, 0, len(markets))
	for _, mkt := range markets {
		snapshot, err := h.ledger.AccountSnapshot(addr, mkt.Symbol)
		if err != nil {
			h.writeLedgerError(w, err)
			return
		}
		_, member := entered[mkt.Symbol]
		if !member && isZero(snapshot.ClaimTokens) && isZero(snapshot.BorrowBalance) {
			continue
		}
		positions = append(positions, positionPayload{
			Symbol:        snapshot.Symbol,
			ClaimTokens:   bigString(snapshot.ClaimTokens),
			BorrowBalance: bigString(snapshot.BorrowBalance),
			ExchangeRate:  bigString(snapshot.ExchangeRate),
			Collateral:    member,
		})
	}
	writeJSON(w, http.StatusOK, positionsPayload{Address: addr.String(), Positions: positions})
}

func (h *handler) accountLiquidity(w http.ResponseWriter, r *http.Request) {
	addr, ok := h.decodeAddress(w, chi.URLParam(r, "address"))
	if !ok {
		return
	}
	liquidity, err := h.ledger.AccountLiquidity(addr)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, liquidityPayload{
		Address:   addr.String(),
		Liquidity: bigString(liquidity.Liquidity),
		Shortfall: bigString(liquidity.Shortfall),
	})
}

func (h *handler) riskParams(w http.ResponseWriter, r *http.Request) {
	params := h.ledger.RiskParams()
	writeJSON(w, http.StatusOK, riskParamsPayload{
		CloseFactor:          bigString(params.CloseFactor),
		LiquidationIncentive: bigString(params.LiquidationIncentive),
		ProtocolSeizeShare:   bigString(params.ProtocolSeizeShare),
	})
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusPayload{
		RegistryID:    h.ledger.RegistryID(),
		BlockHeight:   h.ledger.BlockHeight(),
		Halted:        h.ledger.Halted(),
		EventSequence: h.ledger.EventSequence(),
	})
}

func isZero(v *uint256.Int) bool {
	return v == nil || v.IsZero()
}
