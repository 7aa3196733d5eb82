package routes

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"lendcore/core"
	"lendcore/gateway/middleware"
)

// ScopeMarketAdmin is the JWT scope admin routes require.
const ScopeMarketAdmin = "market:admin"

// Rate limit keys route groups register budgets under.
const (
	RateLimitPublic = "public"
	RateLimitAdmin  = "admin"
)

type Config struct {
	Ledger        *core.Ledger
	Authenticator *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	CORS          middleware.CORSConfig
	Logger        *slog.Logger
}

// New assembles the REST router. Admin routes mount only when an
// authenticator is configured; without one the gateway stays read-only.
func New(cfg Config) (http.Handler, error) {
	if cfg.Ledger == nil {
		return nil, errors.New("routes: ledger required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{ledger: cfg.Ledger, log: logger.With("component", "gateway")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(cfg.CORS))

	obs := cfg.Observability
	if obs != nil {
		r.Use(obs.Middleware("root"))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/v1", func(v1 chi.Router) {
		if cfg.RateLimiter != nil {
			v1.Use(cfg.RateLimiter.Middleware(RateLimitPublic))
		}
		if obs != nil {
			v1.Use(obs.Middleware("market"))
		}
		v1.Get("/markets", h.listMarkets)
		v1.Get("/markets/{symbol}", h.getMarket)
		v1.Get("/markets/{symbol}/rates", h.getRates)
		v1.Get("/tokens", h.listTokens)
		v1.Get("/tokens/{symbol}", h.getToken)
		v1.Get("/accounts/{address}/positions", h.accountPositions)
		v1.Get("/accounts/{address}/liquidity", h.accountLiquidity)
		v1.Get("/params", h.riskParams)
		v1.Get("/status", h.status)

		if cfg.Authenticator != nil {
			v1.Route("/admin", func(admin chi.Router) {
				if cfg.RateLimiter != nil {
					admin.Use(cfg.RateLimiter.Middleware(RateLimitAdmin))
				}
				admin.Use(cfg.Authenticator.Middleware(ScopeMarketAdmin))
				if obs != nil {
					admin.Use(obs.Middleware("admin"))
				}
				admin.Post("/halt", h.setHalted)
				admin.Post("/markets/{symbol}/pauses", h.setPauses)
				admin.Post("/accrue", h.accrue)
			})
		}
	})

	if obs != nil {
		r.Handle("/metrics", obs.MetricsHandler())
	}

	return r, nil
}
