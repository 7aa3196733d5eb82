package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/netutil"

	"lendcore/cmd/internal/passphrase"
	"lendcore/config"
	"lendcore/core"
	"lendcore/gateway/middleware"
	"lendcore/gateway/routes"
	"lendcore/native/oracle"
	"lendcore/observability/logging"
	telemetry "lendcore/observability/otel"
	"lendcore/rpc"
	"lendcore/services/history"
	"lendcore/services/keeper"
	"lendcore/storage"
)

const (
	// Connection ceilings for the two listeners. Excess dials wait in the
	// kernel backlog instead of spawning handler goroutines.
	maxRPCConns     = 512
	maxGatewayConns = 1024

	// Admin traffic is low-volume by nature; a fixed budget keeps a leaked
	// token from hammering the mutation path.
	adminRatePerSecond = 5
	adminRateBurst     = 10

	shutdownGrace = 10 * time.Second
)

func main() {
	configFile := flag.String("config", "./lendcore.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a genesis YAML file (overrides config GenesisFile)")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("LENDCORED_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("lendcored: load config: %v", err)
	}

	logger := logging.Setup("lendcored", env, logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Path:       cfg.Log.Path,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	telemetryEnv := env
	if telemetryEnv == "" {
		telemetryEnv = cfg.Telemetry.Environment
	}
	otlpEndpoint := cfg.Telemetry.Endpoint
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); value != "" {
		otlpEndpoint = value
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "lendcored",
		Environment: telemetryEnv,
		Endpoint:    otlpEndpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Metrics:     true,
		Traces:      true,
	})
	if err != nil {
		logger.Error("failed to initialise telemetry", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	db, err := openDatabase(cfg)
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	genesisTime, err := cfg.GenesisInstant()
	if err != nil {
		logger.Error("invalid genesis time", slog.Any("error", err))
		os.Exit(1)
	}
	clock, err := core.NewIntervalClock(genesisTime, cfg.BlockInterval())
	if err != nil {
		logger.Error("failed to build block clock", slog.Any("error", err))
		os.Exit(1)
	}

	ledger, err := core.NewLedger(db, cfg.RegistryID, clock)
	if err != nil {
		logger.Error("failed to open ledger", slog.Any("error", err))
		os.Exit(1)
	}
	ledger.SetLogger(logger)

	genesisPath := strings.TrimSpace(*genesisFlag)
	if genesisPath == "" {
		genesisPath = cfg.GenesisFile
	}
	if genesisPath != "" {
		spec, digest, err := config.LoadGenesis(genesisPath)
		if err != nil {
			logger.Error("failed to load genesis", slog.Any("error", err))
			os.Exit(1)
		}
		if err := cfg.CheckGenesisDigest(digest); err != nil {
			logger.Error("genesis digest check failed", slog.Any("error", err))
			os.Exit(1)
		}
		genesis, err := spec.Build(cfg.BlocksPerYear())
		if err != nil {
			logger.Error("failed to build genesis", slog.Any("error", err))
			os.Exit(1)
		}
		if err := ledger.ApplyGenesis(genesis); err != nil {
			if !errors.Is(err, core.ErrGenesisApplied) {
				logger.Error("failed to apply genesis", slog.Any("error", err))
				os.Exit(1)
			}
			logger.Info("genesis already applied", slog.String("registry", ledger.RegistryID()))
		} else {
			logger.Info("genesis applied",
				slog.String("registry", ledger.RegistryID()),
				slog.String("digest", digest))
		}
	}

	oracleCfg := cfg.Oracle.Config.Normalise()
	manualFeed := oracle.NewManualOracle()
	aggregator := oracle.NewAggregator(oracleCfg.Priority, oracleCfg.MaxQuoteAge())
	aggregator.SetSampleCap(oracleCfg.SampleCap)
	aggregator.Register("manual", manualFeed)
	if len(cfg.Oracle.CoinGeckoIDs) > 0 {
		ids := make(map[string]string, len(cfg.Oracle.CoinGeckoIDs))
		for symbol, id := range cfg.Oracle.CoinGeckoIDs {
			ids[strings.ToUpper(strings.TrimSpace(symbol))] = strings.TrimSpace(id)
		}
		aggregator.Register("coingecko", oracle.NewCoinGeckoOracle(nil, "", ids))
	}
	ledger.SetOracle(oracle.NewSource(aggregator, oracleCfg.PricingUnit))

	rpcToken, err := passphrase.NewSource(cfg.RPCAuthTokenEnv, "RPC admin token").Get()
	if err != nil {
		logger.Error("failed to resolve RPC admin token", slog.Any("error", err))
		os.Exit(1)
	}
	if rpcToken == "" {
		logger.Warn("no RPC admin token configured, privileged methods disabled")
	}
	jwtSecret, err := passphrase.NewSource(cfg.GatewayJWTSecretEnv, "gateway JWT secret").Get()
	if err != nil {
		logger.Error("failed to resolve gateway JWT secret", slog.Any("error", err))
		os.Exit(1)
	}

	rpcServer := rpc.NewServer(ledger, rpc.ServerConfig{
		AuthToken: rpcToken,
		Logger:    logger,
	})
	rpcListener, err := net.Listen("tcp", cfg.RPCAddress)
	if err != nil {
		logger.Error("failed to listen for RPC", slog.String("addr", cfg.RPCAddress), slog.Any("error", err))
		os.Exit(1)
	}

	var authenticator *middleware.Authenticator
	if jwtSecret != "" {
		authenticator = middleware.NewAuthenticator(middleware.AuthConfig{Secret: []byte(jwtSecret)}, logger)
	} else {
		logger.Warn("no gateway JWT secret configured, admin routes disabled")
	}
	limiter := middleware.NewRateLimiter(map[string]middleware.RateLimit{
		routes.RateLimitPublic: {RatePerSecond: cfg.Gateway.RateLimitPerSecond, Burst: cfg.Gateway.RateBurst},
		routes.RateLimitAdmin:  {RatePerSecond: adminRatePerSecond, Burst: adminRateBurst},
	})
	gatewayHandler, err := routes.New(routes.Config{
		Ledger:        ledger,
		Authenticator: authenticator,
		RateLimiter:   limiter,
		Observability: middleware.NewObservability("lend-gateway"),
		Logger:        logger,
	})
	if err != nil {
		logger.Error("failed to build gateway router", slog.Any("error", err))
		os.Exit(1)
	}
	gatewayListener, err := net.Listen("tcp", cfg.GatewayAddress)
	if err != nil {
		logger.Error("failed to listen for gateway", slog.String("addr", cfg.GatewayAddress), slog.Any("error", err))
		os.Exit(1)
	}
	gatewaySrv := &http.Server{
		Handler:           otelhttp.NewHandler(gatewayHandler, "lend-gateway"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweeper, err := keeper.New(ledger,
		keeper.WithLogger(logger),
		keeper.WithAccrualSpec(cfg.KeeperSchedule),
		keeper.WithOracleProbe(aggregator, oracleCfg.PricingUnit, oracleCfg.MaxQuoteAge()),
	)
	if err != nil {
		logger.Error("failed to build keeper", slog.Any("error", err))
		os.Exit(1)
	}
	go func() {
		if err := sweeper.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("keeper exited", slog.Any("error", err))
			stop()
		}
	}()

	if cfg.HistoryDSN != "" {
		store, err := history.Open(cfg.HistoryDSN)
		if err != nil {
			logger.Error("failed to open history storage", slog.Any("error", err))
			os.Exit(1)
		}
		defer store.Close()
		logger.Info("history indexing enabled", logging.MaskField("dsn", cfg.HistoryDSN))
		indexer, err := history.NewIndexer(store, ledger, history.WithLogger(logger))
		if err != nil {
			logger.Error("failed to build history indexer", slog.Any("error", err))
			os.Exit(1)
		}
		go func() {
			if err := indexer.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("history indexer exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	serverErrCh := make(chan error, 2)
	go func() {
		serverErrCh <- rpcServer.Serve(netutil.LimitListener(rpcListener, maxRPCConns))
	}()
	go func() {
		serverErrCh <- gatewaySrv.Serve(netutil.LimitListener(gatewayListener, maxGatewayConns))
	}()

	logger.Info("lendcored running",
		slog.String("rpc", rpcListener.Addr().String()),
		slog.String("gateway", gatewayListener.Addr().String()),
		slog.String("registry", ledger.RegistryID()),
		slog.Uint64("height", ledger.BlockHeight()))

	select {
	case <-rootCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server terminated", slog.Any("error", err))
		}
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := rpcServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("RPC shutdown incomplete", slog.Any("error", err))
	}
	if err := gatewaySrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("gateway shutdown incomplete", slog.Any("error", err))
	}
	logger.Info("lendcored stopped")
}

// openDatabase opens the configured state backend, creating the data
// directory for the file-backed ones.
func openDatabase(cfg *config.Config) (storage.Database, error) {
	switch cfg.DataBackend {
	case "memory":
		return storage.NewMemDB(), nil
	case "bolt":
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("prepare data directory: %w", err)
		}
		return storage.NewBoltDB(filepath.Join(cfg.DataDir, "lend.db"))
	default:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("prepare data directory: %w", err)
		}
		return storage.NewLevelDB(filepath.Join(cfg.DataDir, "chaindata"))
	}
}
