package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadParsesDaemonSettings(t *testing.T) {
	path := writeConfig(t, `RPCAddress = "0.0.0.0:9545"
GatewayAddress = "0.0.0.0:9080"
DataDir = "./data"
DataBackend = "bolt"
GenesisFile = "genesis.yaml"
RegistryID = "testnet"
GenesisTime = "2024-06-01T00:00:00Z"
BlockIntervalSeconds = 12
RPCAuthTokenEnv = "LEND_RPC_TOKEN"
GatewayJWTSecretEnv = "LEND_JWT_SECRET"
KeeperSchedule = "@every 30s"
HistoryDSN = "file:history.db"

[Log]
Level = "debug"
Format = "text"

[Telemetry]
Endpoint = "localhost:4318"
Environment = "staging"

[Gateway]
RateLimitPerSecond = 10.0
RateBurst = 20
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9545", cfg.RPCAddress)
	require.Equal(t, "0.0.0.0:9080", cfg.GatewayAddress)
	require.Equal(t, "bolt", cfg.DataBackend)
	require.Equal(t, "testnet", cfg.RegistryID)
	require.Equal(t, 12*time.Second, cfg.BlockInterval())
	require.Equal(t, uint64(365*24*3600/12), cfg.BlocksPerYear())
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "text", cfg.Log.Format)
	require.Equal(t, "staging", cfg.Telemetry.Environment)
	require.Equal(t, 10.0, cfg.Gateway.RateLimitPerSecond)
	require.Equal(t, 20, cfg.Gateway.RateBurst)

	instant, err := cfg.GenesisInstant()
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), instant)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `GenesisTime = "2024-06-01T00:00:00Z"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, defaultRPCAddress, cfg.RPCAddress)
	require.Equal(t, defaultGatewayAddress, cfg.GatewayAddress)
	require.Equal(t, defaultDataBackend, cfg.DataBackend)
	require.Equal(t, defaultRegistryID, cfg.RegistryID)
	require.Equal(t, int64(defaultBlockInterval), cfg.BlockIntervalSeconds)
	require.Equal(t, defaultKeeperSchedule, cfg.KeeperSchedule)
	require.Equal(t, "info", cfg.Log.Level)
	require.Equal(t, "json", cfg.Log.Format)
	require.Equal(t, "dev", cfg.Telemetry.Environment)
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.FileExists(t, path)
	require.NotEmpty(t, cfg.GenesisTime)
	require.NoError(t, cfg.Validate())

	// Loading again round-trips the persisted file.
	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.GenesisTime, reloaded.GenesisTime)
	require.Equal(t, cfg.RPCAddress, reloaded.RPCAddress)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		name     string
		contents string
	}{
		{"unknown backend", "DataBackend = \"redis\"\nGenesisTime = \"2024-06-01T00:00:00Z\"\n"},
		{"negative interval", "BlockIntervalSeconds = -3\nGenesisTime = \"2024-06-01T00:00:00Z\"\n"},
		{"missing genesis time", "DataBackend = \"memory\"\n"},
		{"malformed genesis time", "GenesisTime = \"yesterday\"\n"},
		{"unknown log level", "GenesisTime = \"2024-06-01T00:00:00Z\"\n[Log]\nLevel = \"verbose\"\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.contents)
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}

func TestAuthTokensResolveFromEnvironment(t *testing.T) {
	path := writeConfig(t, `GenesisTime = "2024-06-01T00:00:00Z"
RPCAuthTokenEnv = "TEST_LEND_RPC_TOKEN"
GatewayJWTSecretEnv = "TEST_LEND_JWT_SECRET"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Empty(t, cfg.RPCAuthToken())
	require.Nil(t, cfg.GatewayJWTSecret())

	t.Setenv("TEST_LEND_RPC_TOKEN", " secret-token ")
	t.Setenv("TEST_LEND_JWT_SECRET", "jwt-secret")
	require.Equal(t, "secret-token", cfg.RPCAuthToken())
	require.Equal(t, []byte("jwt-secret"), cfg.GatewayJWTSecret())
}

func TestLoadParsesOracleSection(t *testing.T) {
	path := writeConfig(t, `GenesisTime = "2024-06-01T00:00:00Z"

[Oracle]
pricing_unit = "usd"
max_quote_age_seconds = 300
priority = ["Manual", "coingecko"]
sample_cap = 64

[Oracle.CoinGeckoIDs]
ATOM = "cosmos"
OSMO = "osmosis"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	oracleCfg := cfg.Oracle.Config.Normalise()
	require.Equal(t, "USD", oracleCfg.PricingUnit)
	require.Equal(t, 5*time.Minute, oracleCfg.MaxQuoteAge())
	require.Equal(t, []string{"manual", "coingecko"}, oracleCfg.Priority)
	require.Equal(t, 64, oracleCfg.SampleCap)
	require.Equal(t, map[string]string{"ATOM": "cosmos", "OSMO": "osmosis"}, cfg.Oracle.CoinGeckoIDs)
}

func TestOracleSectionDefaults(t *testing.T) {
	path := writeConfig(t, `GenesisTime = "2024-06-01T00:00:00Z"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	oracleCfg := cfg.Oracle.Config.Normalise()
	require.Equal(t, "USD", oracleCfg.PricingUnit)
	require.Equal(t, 2*time.Minute, oracleCfg.MaxQuoteAge())
	require.Equal(t, []string{"manual"}, oracleCfg.Priority)
	require.Empty(t, cfg.Oracle.CoinGeckoIDs)
}

func TestCheckGenesisDigest(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, cfg.CheckGenesisDigest("abc123"))

	cfg.GenesisDigest = "ABC123"
	require.NoError(t, cfg.CheckGenesisDigest("abc123"))

	cfg.GenesisDigest = "def456"
	require.Error(t, cfg.CheckGenesisDigest("abc123"))
}
