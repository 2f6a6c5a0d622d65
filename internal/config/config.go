// Package config loads the engine configuration from YAML with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"fairlaunch/internal/collab"
	"fairlaunch/internal/curve"
	"fairlaunch/internal/domain"
	"fairlaunch/internal/graduation"
	"fairlaunch/internal/liquidity"
	"fairlaunch/internal/risk"
	"fairlaunch/internal/session"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration.
type Config struct {
	Server      Server            `yaml:"server"`
	Storage     Storage           `yaml:"storage"`
	Logging     Logging           `yaml:"logging"`
	Curve       Curve             `yaml:"curve"`
	Risk        risk.Config       `yaml:"risk"`
	Session     session.Config    `yaml:"session"`
	Graduation  graduation.Config `yaml:"graduation"`
	Liquidity   Liquidity         `yaml:"liquidity"`
	Coordinator Coordinator       `yaml:"coordinator"`

	// TierLimits maps a verification tier to its per-trade cap in quote
	// currency. Entries override the defaults; orb is uncapped unless listed.
	TierLimits map[string]string `yaml:"tier_limits"`
}

// Server holds the HTTP listener configuration.
type Server struct {
	ListenAddr      string        `yaml:"listen_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// AllowedOrigins restricts websocket upgrades; empty allows any origin.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Storage selects the persistence backend.
type Storage struct {
	Backend       string `yaml:"backend"` // memory | postgres
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickHouseDSN string `yaml:"clickhouse_dsn"` // optional analytics sink
	Migrate       bool   `yaml:"migrate"`
}

// Logging configures the application logger.
type Logging struct {
	Verbose bool `yaml:"verbose"`
}

// Curve holds engine settings and the parameters new tokens get by default.
type Curve struct {
	curve.Config  `yaml:",inline"`
	DefaultParams CurveParams `yaml:"default_params"`
}

// CurveParams is the YAML form of domain.CurveParams.
type CurveParams struct {
	InitialPrice   decimal.Decimal `yaml:"initial_price"`
	PriceIncrement decimal.Decimal `yaml:"price_increment"`
	MaxPrice       decimal.Decimal `yaml:"max_price"`
}

// Params converts to the domain type.
func (p CurveParams) Params() domain.CurveParams {
	return domain.CurveParams{
		InitialPrice:   p.InitialPrice,
		PriceIncrement: p.PriceIncrement,
		MaxPrice:       p.MaxPrice,
	}
}

// Liquidity configures the liquidity collaborator stub.
type Liquidity struct {
	ProgramID string        `yaml:"program_id"`
	Latency   time.Duration `yaml:"latency"`
}

// Coordinator holds trade pipeline settings.
type Coordinator struct {
	CallTimeout     time.Duration `yaml:"call_timeout"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
	WatchOnRegister bool          `yaml:"watch_on_register"`
	DefaultTier     string        `yaml:"default_tier"`
	// DefaultReputation is the score of users the reputation store has never seen.
	DefaultReputation int `yaml:"default_reputation"`
}

// Default returns a complete configuration with in-memory storage.
func Default() *Config {
	return &Config{
		Server: Server{
			ListenAddr:      ":8080",
			ShutdownTimeout: 30 * time.Second,
		},
		Storage: Storage{
			Backend: BackendMemory,
			Migrate: true,
		},
		Curve: Curve{
			Config: curve.DefaultConfig(),
			DefaultParams: CurveParams{
				InitialPrice:   decimal.RequireFromString("0.0001"),
				PriceIncrement: decimal.RequireFromString("0.000000001"),
				MaxPrice:       decimal.RequireFromString("0.01"),
			},
		},
		Risk:       risk.DefaultConfig(),
		Session:    session.DefaultConfig(),
		Graduation: graduation.DefaultConfig(),
		Liquidity: Liquidity{
			ProgramID: liquidity.DefaultProgramID,
		},
		Coordinator: Coordinator{
			CallTimeout:       2 * time.Second,
			SweepInterval:     10 * time.Minute,
			WatchOnRegister:   true,
			DefaultTier:       string(domain.TierDevice),
			DefaultReputation: 100,
		},
		TierLimits: map[string]string{
			string(domain.TierDevice): "10",
			string(domain.TierPhone):  "100",
		},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. An empty path loads defaults only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides overrides fields from well-known environment variables.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Storage.PostgresDSN = v
		if os.Getenv("STORAGE_BACKEND") == "" {
			cfg.Storage.Backend = BackendPostgres
		}
	}
	if v := os.Getenv("CLICKHOUSE_DSN"); v != "" {
		cfg.Storage.ClickHouseDSN = v
	}
	if v := os.Getenv("STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("LIQUIDITY_PROGRAM_ID"); v != "" {
		cfg.Liquidity.ProgramID = v
	}
	if v := os.Getenv("VERBOSE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("VERBOSE: %w", err)
		}
		cfg.Logging.Verbose = b
	}
	if v := os.Getenv("GRADUATION_THRESHOLD"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return fmt.Errorf("GRADUATION_THRESHOLD: %w", err)
		}
		cfg.Graduation.Threshold = d
	}
	return nil
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}
	if err := c.Curve.DefaultParams.Params().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("curve.default_params: %w", err))
	}
	if err := c.Risk.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("risk: %w", err))
	}
	if c.Session.Lookback <= 0 || c.Session.MaxFacts <= 0 {
		errs = append(errs, errors.New("session: lookback and max_facts must be positive"))
	}
	if err := c.Graduation.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("graduation: %w", err))
	}
	if !liquidity.IsAddress(c.Liquidity.ProgramID) {
		errs = append(errs, fmt.Errorf("liquidity.program_id %q is not a base58 address", c.Liquidity.ProgramID))
	}
	if c.Coordinator.CallTimeout <= 0 {
		errs = append(errs, errors.New("coordinator.call_timeout must be positive"))
	}
	if !domain.VerificationTier(c.Coordinator.DefaultTier).IsValid() {
		errs = append(errs, fmt.Errorf("coordinator.default_tier %q is not a verification tier", c.Coordinator.DefaultTier))
	}
	if _, err := c.Limits(); err != nil {
		errs = append(errs, fmt.Errorf("tier_limits: %w", err))
	}
	return errors.Join(errs...)
}

// Limits parses the tier caps.
func (c *Config) Limits() (collab.StaticTierLimits, error) {
	return collab.ParseTierLimits(c.TierLimits)
}

// LoadEnvFile sets variables from a KEY=VALUE file without overriding ones
// already present in the environment. A missing file is not an error.
func LoadEnvFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), `"'`)

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
