package rpc

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"lendcore/core"
	nativecommon "lendcore/native/common"
	"lendcore/native/market"
	"lendcore/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	rateLimitWindow = time.Minute

	defaultMutationsPerMinute = 120
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020
	codeMarketError    = -32030
	codeModuleHalted   = -32040
)

// ServerConfig carries the transport knobs the daemon resolves from its
// configuration file and environment.
type ServerConfig struct {
	// AuthToken guards the admin methods. Empty rejects them all.
	AuthToken string
	// TrustProxyHeaders honors X-Forwarded-For from any peer.
	TrustProxyHeaders bool
	// TrustedProxies lists peers whose X-Forwarded-For header is honored.
	TrustedProxies []string
	// MutationsPerMinute bounds state-changing calls per source address.
	// Zero applies the default.
	MutationsPerMinute int
	// Logger receives transport diagnostics. Nil falls back to the process
	// default.
	Logger *slog.Logger
}

type rateLimiter struct {
	count       int
	windowStart time.Time
}

// Server exposes the ledger over a single-endpoint JSON-RPC surface plus a
// websocket event stream.
type Server struct {
	ledger *core.Ledger
	cfg    ServerConfig
	log    *slog.Logger

	trusted map[string]struct{}

	mu           sync.Mutex
	rateLimiters map[string]*rateLimiter

	serverMu   sync.Mutex
	httpServer *http.Server
}

func NewServer(ledger *core.Ledger, cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MutationsPerMinute <= 0 {
		cfg.MutationsPerMinute = defaultMutationsPerMinute
	}
	trusted := make(map[string]struct{}, len(cfg.TrustedProxies))
	for _, proxy := range cfg.TrustedProxies {
		proxy = strings.TrimSpace(proxy)
		if proxy != "" {
			trusted[proxy] = struct{}{}
		}
	}
	return &Server{
		ledger:       ledger,
		cfg:          cfg,
		log:          logger.With("component", "rpc"),
		trusted:      trusted,
		rateLimiters: make(map[string]*rateLimiter),
	}
}

// Handler returns the route table so callers can mount the server inside an
// existing mux or test harness.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	mux.HandleFunc("/ws/events", s.handleEventsWS)
	return mux
}

func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("rpc: listen on %s: %w", addr, err)
	}
	return s.Serve(listener)
}

func (s *Server) Serve(listener net.Listener) error {
	srv := &http.Server{
		Handler:           otelhttp.NewHandler(s.Handler(), "lend-rpc"),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.serverMu.Lock()
	s.httpServer = srv
	s.serverMu.Unlock()
	s.log.Info("rpc server listening", "addr", listener.Addr().String())
	return srv.Serve(listener)
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.serverMu.Lock()
	srv := s.httpServer
	s.serverMu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// statusRecorder captures the final HTTP status so request metrics observe
// the same outcome the client saw.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	method := s.serveRPC(recorder, r)
	observability.ModuleMetrics().Observe("market", method, recorder.status, time.Since(started))
}

// serveRPC parses and dispatches one request, returning the method name for
// instrumentation. Requests that never parsed far enough report "invalid".
func (s *Server) serveRPC(w http.ResponseWriter, r *http.Request) string {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, nil, codeInvalidRequest, "POST required", nil)
		return "invalid"
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, nil, codeInvalidRequest, "request body too large", err.Error())
		return "invalid"
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "empty request body", nil)
		return "invalid"
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON-RPC request", err.Error())
		return "invalid"
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported JSON-RPC version", nil)
		return "invalid"
	}
	method := strings.TrimSpace(req.Method)
	if method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method is required", nil)
		return "invalid"
	}
	req.Method = method
	s.dispatch(w, r, &req)
	return method
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	switch req.Method {
	// Views.
	case "market_getMarket":
		s.handleGetMarket(w, r, req)
	case "market_listMarkets":
		s.handleListMarkets(w, r, req)
	case "market_getRates":
		s.handleGetRates(w, r, req)
	case "market_listTokens":
		s.handleListTokens(w, r, req)
	case "market_getToken":
		s.handleGetToken(w, r, req)
	case "market_getBalance":
		s.handleGetBalance(w, r, req)
	case "market_getAccountSnapshot":
		s.handleGetAccountSnapshot(w, r, req)
	case "market_getAccountLiquidity":
		s.handleGetAccountLiquidity(w, r, req)
	case "market_getHypotheticalLiquidity":
		s.handleGetHypotheticalLiquidity(w, r, req)
	case "market_getMembership":
		s.handleGetMembership(w, r, req)
	case "market_getRiskParams":
		s.handleGetRiskParams(w, r, req)
	case "market_getStatus":
		s.handleGetStatus(w, r, req)

	// Position mutations.
	case "market_mint":
		s.handleMint(w, r, req)
	case "market_redeem":
		s.handleRedeem(w, r, req)
	case "market_redeemUnderlying":
		s.handleRedeemUnderlying(w, r, req)
	case "market_borrow":
		s.handleBorrow(w, r, req)
	case "market_repay":
		s.handleRepay(w, r, req)
	case "market_repayBehalf":
		s.handleRepayBehalf(w, r, req)
	case "market_transfer":
		s.handleTransfer(w, r, req)
	case "market_enterMarket":
		s.handleEnterMarket(w, r, req)
	case "market_exitMarket":
		s.handleExitMarket(w, r, req)
	case "market_liquidate":
		s.handleLiquidate(w, r, req)
	case "market_addReserves":
		s.handleAddReserves(w, r, req)
	case "market_accrue":
		s.handleAccrue(w, r, req)

	// Admin surface, bearer token required.
	case "market_listMarket":
		s.handleListMarket(w, r, req)
	case "market_setCollateralFactor":
		s.handleSetCollateralFactor(w, r, req)
	case "market_setReserveFactor":
		s.handleSetReserveFactor(w, r, req)
	case "market_setCaps":
		s.handleSetCaps(w, r, req)
	case "market_setActionPauses":
		s.handleSetActionPauses(w, r, req)
	case "market_setDeprecated":
		s.handleSetDeprecated(w, r, req)
	case "market_setRateModel":
		s.handleSetRateModel(w, r, req)
	case "market_setCloseFactor":
		s.handleSetCloseFactor(w, r, req)
	case "market_setLiquidationIncentive":
		s.handleSetLiquidationIncentive(w, r, req)
	case "market_setProtocolSeizeShare":
		s.handleSetProtocolSeizeShare(w, r, req)
	case "market_setHalted":
		s.handleSetHalted(w, r, req)
	case "market_reduceReserves":
		s.handleReduceReserves(w, r, req)
	case "market_grantRole":
		s.handleGrantRole(w, r, req)
	case "market_revokeRole":
		s.handleRevokeRole(w, r, req)

	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
	}
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.cfg.AuthToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

// throttleMutation applies the per-source budget to state-changing calls.
// The caller aborts when false is returned; the rejection is already
// written.
func (s *Server) throttleMutation(w http.ResponseWriter, r *http.Request, req *RPCRequest) bool {
	source := s.clientSource(r)
	if !s.allowSource(source, time.Now()) {
		observability.ModuleMetrics().RecordThrottle("market", req.Method)
		writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "rate limit exceeded", nil)
		return false
	}
	return true
}

func (s *Server) allowSource(source string, now time.Time) bool {
	if source == "" {
		source = "unknown"
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	limiter, ok := s.rateLimiters[source]
	if !ok {
		limiter = &rateLimiter{windowStart: now}
		s.rateLimiters[source] = limiter
	}
	if now.Sub(limiter.windowStart) >= rateLimitWindow {
		limiter.windowStart = now
		limiter.count = 0
	}
	if limiter.count >= s.cfg.MutationsPerMinute {
		return false
	}
	limiter.count++
	return true
}

// clientSource resolves the peer identity used for rate limiting. Forwarded
// headers count only when the direct peer is a configured proxy, otherwise a
// spoofed header would mint fresh budgets at will.
func (s *Server) clientSource(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = strings.TrimSpace(r.RemoteAddr)
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" && s.trustForwarded(host) {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			if candidate := strings.TrimSpace(parts[0]); candidate != "" {
				return candidate
			}
		}
	}
	if host == "" {
		return "unknown"
	}
	return host
}

func (s *Server) trustForwarded(peer string) bool {
	if s.cfg.TrustProxyHeaders {
		return true
	}
	_, ok := s.trusted[peer]
	return ok
}

// writeLedgerError renders an operation failure, mapping engine
// classifications onto stable wire codes. The classification string rides
// along in the data field so clients never parse messages.
func writeLedgerError(w http.ResponseWriter, id interface{}, err error) {
	if errors.Is(err, nativecommon.ErrModulePaused) {
		writeError(w, http.StatusServiceUnavailable, id, codeModuleHalted, err.Error(), nil)
		return
	}
	code := market.CodeOf(err)
	status, wireCode := engineErrorStatus(code)
	writeError(w, status, id, wireCode, err.Error(), string(code))
}

func engineErrorStatus(code market.Code) (int, int) {
	switch code {
	case market.CodeUnauthorized:
		return http.StatusForbidden, codeUnauthorized
	case market.CodeInvalidParameter:
		return http.StatusBadRequest, codeInvalidParams
	case market.CodeMarketNotListed:
		return http.StatusNotFound, codeMarketError
	case market.CodeReentrancy:
		return http.StatusConflict, codeMarketError
	case market.CodeInternal:
		return http.StatusInternalServerError, codeServerError
	default:
		return http.StatusBadRequest, codeMarketError
	}
}
