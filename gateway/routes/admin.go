package routes

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"lendcore/crypto"
	"lendcore/gateway/middleware"
	"lendcore/native/market"
)

const maxAdminBodyBytes = 1 << 16

type haltRequest struct {
	Halted bool `json:"halted"`
}

type haltPayload struct {
	Halted bool `json:"halted"`
}

type pausesRequest struct {
	Mint     bool `json:"mint"`
	Borrow   bool `json:"borrow"`
	Transfer bool `json:"transfer"`
	Seize    bool `json:"seize"`
}

type accrueRequest struct {
	Symbol string `json:"symbol"`
}

type accruePayload struct {
	Advanced []string `json:"advanced"`
}

// adminAddress resolves the caller's ledger address from the token subject.
// The role check itself stays in the engine, so a token minted for an
// account without the admin role still fails closed.
func (h *handler) adminAddress(w http.ResponseWriter, r *http.Request) (crypto.Address, bool) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok || principal.Subject == "" {
		writeError(w, http.StatusForbidden, "token subject missing", string(market.CodeUnauthorized))
		return crypto.Address{}, false
	}
	addr, err := crypto.DecodeAddress(principal.Subject)
	if err != nil {
		writeError(w, http.StatusForbidden, "token subject is not a valid address", string(market.CodeUnauthorized))
		return crypto.Address{}, false
	}
	return addr, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAdminBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large", string(market.CodeInvalidParameter))
		return false
	}
	if len(body) == 0 {
		return true
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body", string(market.CodeInvalidParameter))
		return false
	}
	return true
}

func (h *handler) setHalted(w http.ResponseWriter, r *http.Request) {
	admin, ok := h.adminAddress(w, r)
	if !ok {
		return
	}
	var req haltRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.ledger.SetHalted(admin, req.Halted); err != nil {
		h.writeLedgerError(w, err)
		return
	}
	h.log.Info("registry halt switched",
		"halted", req.Halted,
		"admin", admin.String(),
		"request_id", middleware.RequestIDFromContext(r.Context()))
	writeJSON(w, http.StatusOK, haltPayload{Halted: h.ledger.Halted()})
}

func (h *handler) setPauses(w http.ResponseWriter, r *http.Request) {
	admin, ok := h.adminAddress(w, r)
	if !ok {
		return
	}
	symbol := chi.URLParam(r, "symbol")
	var req pausesRequest
	if !decodeBody(w, r, &req) {
		return
	}
	pauses := market.ActionPauses{
		Mint:     req.Mint,
		Borrow:   req.Borrow,
		Transfer: req.Transfer,
		Seize:    req.Seize,
	}
	if err := h.ledger.SetActionPauses(admin, symbol, pauses); err != nil {
		h.writeLedgerError(w, err)
		return
	}
	mkt, err := h.ledger.GetMarket(symbol)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	h.log.Info("market pauses updated",
		"symbol", mkt.Symbol,
		"admin", admin.String(),
		"request_id", middleware.RequestIDFromContext(r.Context()))
	writeJSON(w, http.StatusOK, marketPayloadFrom(mkt))
}

// accrue pokes interest accrual, either for one market or across the board.
// The ledger treats accrual as permissionless; the route sits behind the
// admin scope only to keep keeper traffic off the public budget.
func (h *handler) accrue(w http.ResponseWriter, r *http.Request) {
	var req accrueRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if symbol := strings.TrimSpace(req.Symbol); symbol != "" {
		if err := h.ledger.AccrueMarket(symbol); err != nil {
			h.writeLedgerError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, accruePayload{Advanced: []string{market.CanonicalSymbol(symbol)}})
		return
	}
	advanced, err := h.ledger.AccrueAll()
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	if advanced == nil {
		advanced = []string{}
	}
	writeJSON(w, http.StatusOK, accruePayload{Advanced: advanced})
}
