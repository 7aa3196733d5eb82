package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"lendcore/native/oracle"
)

const (
	defaultRPCAddress     = ":8545"
	defaultGatewayAddress = ":8080"
	defaultDataDir        = "./lend-data"
	defaultDataBackend    = "leveldb"
	defaultRegistryID     = "main"
	defaultBlockInterval  = 5
	defaultKeeperSchedule = "@every 1m"
)

// Config is the daemon configuration loaded from TOML.
type Config struct {
	RPCAddress     string `toml:"RPCAddress"`
	GatewayAddress string `toml:"GatewayAddress"`
	DataDir        string `toml:"DataDir"`
	// DataBackend selects the key-value store: memory, leveldb or bolt.
	DataBackend string `toml:"DataBackend"`
	GenesisFile string `toml:"GenesisFile"`
	// GenesisDigest, when set, must match the blake3 digest of the genesis
	// file so a daemon never boots against tampered market parameters.
	GenesisDigest string `toml:"GenesisDigest,omitempty"`
	RegistryID    string `toml:"RegistryID"`
	// GenesisTime anchors the block clock; heights derive from the time
	// elapsed since this instant divided by BlockIntervalSeconds.
	GenesisTime          string `toml:"GenesisTime"`
	BlockIntervalSeconds int64  `toml:"BlockIntervalSeconds"`
	// RPCAuthTokenEnv names the environment variable holding the bearer
	// token for privileged RPC methods. The token itself never lives in
	// the file.
	RPCAuthTokenEnv string `toml:"RPCAuthTokenEnv"`
	// GatewayJWTSecretEnv names the environment variable holding the HMAC
	// secret for gateway admin JWTs.
	GatewayJWTSecretEnv string    `toml:"GatewayJWTSecretEnv"`
	KeeperSchedule      string       `toml:"KeeperSchedule"`
	HistoryDSN          string       `toml:"HistoryDSN"`
	Log                 Log          `toml:"Log"`
	Telemetry           Telemetry    `toml:"Telemetry"`
	Gateway             Gateway      `toml:"Gateway"`
	Oracle              OracleConfig `toml:"Oracle"`
}

// OracleConfig couples the feed aggregation knobs with the daemon-level feed
// registrations.
type OracleConfig struct {
	oracle.Config
	// CoinGeckoIDs maps market symbols onto CoinGecko asset identifiers.
	// Empty leaves the CoinGecko feed unregistered.
	CoinGeckoIDs map[string]string `toml:"CoinGeckoIDs,omitempty"`
}

// Log controls the slog setup and optional file rotation.
type Log struct {
	Level  string `toml:"Level"`
	Format string `toml:"Format"`
	// Path enables rotated file output when non-empty; stdout otherwise.
	Path       string `toml:"Path,omitempty"`
	MaxSizeMB  int    `toml:"MaxSizeMB,omitempty"`
	MaxBackups int    `toml:"MaxBackups,omitempty"`
	MaxAgeDays int    `toml:"MaxAgeDays,omitempty"`
}

// Telemetry controls the OTLP trace/metric export.
type Telemetry struct {
	Endpoint    string `toml:"Endpoint,omitempty"`
	Insecure    bool   `toml:"Insecure,omitempty"`
	Environment string `toml:"Environment"`
}

// Gateway holds the REST gateway throttling knobs.
type Gateway struct {
	RateLimitPerSecond float64 `toml:"RateLimitPerSecond"`
	RateBurst          int     `toml:"RateBurst"`
}

// Load reads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	if cfg == nil {
		return
	}
	cfg.RPCAddress = strings.TrimSpace(cfg.RPCAddress)
	if cfg.RPCAddress == "" {
		cfg.RPCAddress = defaultRPCAddress
	}
	cfg.GatewayAddress = strings.TrimSpace(cfg.GatewayAddress)
	if cfg.GatewayAddress == "" {
		cfg.GatewayAddress = defaultGatewayAddress
	}
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir
	}
	cfg.DataBackend = strings.ToLower(strings.TrimSpace(cfg.DataBackend))
	if cfg.DataBackend == "" {
		cfg.DataBackend = defaultDataBackend
	}
	cfg.GenesisFile = strings.TrimSpace(cfg.GenesisFile)
	cfg.GenesisDigest = strings.TrimSpace(cfg.GenesisDigest)
	cfg.RegistryID = strings.TrimSpace(cfg.RegistryID)
	if cfg.RegistryID == "" {
		cfg.RegistryID = defaultRegistryID
	}
	cfg.GenesisTime = strings.TrimSpace(cfg.GenesisTime)
	if cfg.BlockIntervalSeconds == 0 {
		cfg.BlockIntervalSeconds = defaultBlockInterval
	}
	cfg.RPCAuthTokenEnv = strings.TrimSpace(cfg.RPCAuthTokenEnv)
	cfg.GatewayJWTSecretEnv = strings.TrimSpace(cfg.GatewayJWTSecretEnv)
	cfg.KeeperSchedule = strings.TrimSpace(cfg.KeeperSchedule)
	if cfg.KeeperSchedule == "" {
		cfg.KeeperSchedule = defaultKeeperSchedule
	}
	cfg.HistoryDSN = strings.TrimSpace(cfg.HistoryDSN)
	cfg.Log.normalize()
	cfg.Telemetry.Environment = strings.TrimSpace(cfg.Telemetry.Environment)
	if cfg.Telemetry.Environment == "" {
		cfg.Telemetry.Environment = "dev"
	}
	if cfg.Gateway.RateLimitPerSecond == 0 {
		cfg.Gateway.RateLimitPerSecond = 25
	}
	if cfg.Gateway.RateBurst == 0 {
		cfg.Gateway.RateBurst = 50
	}
}

func (l *Log) normalize() {
	l.Level = strings.ToLower(strings.TrimSpace(l.Level))
	if l.Level == "" {
		l.Level = "info"
	}
	l.Format = strings.ToLower(strings.TrimSpace(l.Format))
	if l.Format == "" {
		l.Format = "json"
	}
	l.Path = strings.TrimSpace(l.Path)
	if l.Path != "" {
		if l.MaxSizeMB <= 0 {
			l.MaxSizeMB = 100
		}
		if l.MaxBackups <= 0 {
			l.MaxBackups = 5
		}
		if l.MaxAgeDays <= 0 {
			l.MaxAgeDays = 14
		}
	}
}

// Validate checks the configuration bounds that have no safe default.
func (cfg *Config) Validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	switch cfg.DataBackend {
	case "memory", "leveldb", "bolt":
	default:
		return fmt.Errorf("unknown data backend %q", cfg.DataBackend)
	}
	if cfg.BlockIntervalSeconds <= 0 {
		return fmt.Errorf("block interval must be positive")
	}
	if cfg.GenesisTime == "" {
		return fmt.Errorf("genesis time required")
	}
	if _, err := cfg.GenesisInstant(); err != nil {
		return err
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("unknown log format %q", cfg.Log.Format)
	}
	if cfg.Gateway.RateLimitPerSecond < 0 {
		return fmt.Errorf("gateway rate limit must not be negative")
	}
	if cfg.Gateway.RateBurst < 0 {
		return fmt.Errorf("gateway rate burst must not be negative")
	}
	return nil
}

// GenesisInstant parses the configured genesis time.
func (cfg *Config) GenesisInstant() (time.Time, error) {
	ts, err := time.Parse(time.RFC3339, cfg.GenesisTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse genesis time: %w", err)
	}
	return ts.UTC(), nil
}

// BlockInterval returns the block cadence as a duration.
func (cfg *Config) BlockInterval() time.Duration {
	return time.Duration(cfg.BlockIntervalSeconds) * time.Second
}

// BlocksPerYear derives the annualized block count used to split per-year
// interest rates into per-block rates.
func (cfg *Config) BlocksPerYear() uint64 {
	if cfg.BlockIntervalSeconds <= 0 {
		return 0
	}
	return uint64(365*24*3600) / uint64(cfg.BlockIntervalSeconds)
}

// RPCAuthToken resolves the privileged RPC token from the environment.
// Empty means privileged methods stay disabled.
func (cfg *Config) RPCAuthToken() string {
	if cfg.RPCAuthTokenEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(cfg.RPCAuthTokenEnv))
}

// GatewayJWTSecret resolves the gateway admin JWT secret from the
// environment. Empty means admin routes stay disabled.
func (cfg *Config) GatewayJWTSecret() []byte {
	if cfg.GatewayJWTSecretEnv == "" {
		return nil
	}
	secret := strings.TrimSpace(os.Getenv(cfg.GatewayJWTSecretEnv))
	if secret == "" {
		return nil
	}
	return []byte(secret)
}

// createDefault creates and saves a default configuration file. The genesis
// time anchors at the moment of creation so a fresh deployment starts its
// height sequence immediately.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:           defaultRPCAddress,
		GatewayAddress:       defaultGatewayAddress,
		DataDir:              defaultDataDir,
		DataBackend:          defaultDataBackend,
		GenesisFile:          "genesis.yaml",
		RegistryID:           defaultRegistryID,
		GenesisTime:          time.Now().UTC().Truncate(time.Second).Format(time.RFC3339),
		BlockIntervalSeconds: defaultBlockInterval,
		RPCAuthTokenEnv:      "LENDCORED_RPC_TOKEN",
		GatewayJWTSecretEnv:  "LENDCORED_JWT_SECRET",
		KeeperSchedule:       defaultKeeperSchedule,
	}
	cfg.normalize()

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
