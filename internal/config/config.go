package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"minority/internal/game"
)

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Game     game.Params    `yaml:"game"`
	Height   HeightConfig   `yaml:"height"`
	Oracle   OracleConfig   `yaml:"oracle"`
	Redis    RedisConfig    `yaml:"redis"`
	Database DatabaseConfig `yaml:"database"`
	Manager  ManagerConfig  `yaml:"manager"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Port            int    `yaml:"port"`
	AdminToken      string `yaml:"admin_token"`
	OperatorAddress string `yaml:"operator_address"`
	RequestsPerMin  int    `yaml:"requests_per_min"`
	EnableFaucet    bool   `yaml:"enable_faucet"`
}

// HeightConfig maps wall time onto engine heights.
type HeightConfig struct {
	IntervalMillis int `yaml:"interval_millis"`
}

type OracleConfig struct {
	Kind         string `yaml:"kind"` // beacon | redis
	BeaconSeed   string `yaml:"beacon_seed"`
	BeaconPeriod uint64 `yaml:"beacon_period"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// LockTTLMillis is the lease of the single-instance lock taken
	// whenever balances live in Redis.
	LockTTLMillis int `yaml:"lock_ttl_millis"`
}

type DatabaseConfig struct {
	Driver      string `yaml:"driver"` // postgres | sqlite
	DSN         string `yaml:"dsn"`
	AutoMigrate bool   `yaml:"auto_migrate"`
}

type ManagerConfig struct {
	Enabled     bool `yaml:"enabled"`
	AutoStart   bool `yaml:"auto_start"`
	TickMillis  int  `yaml:"tick_millis"`
	RetryMillis int  `yaml:"retry_millis"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

func (h HeightConfig) Interval() time.Duration {
	return time.Duration(h.IntervalMillis) * time.Millisecond
}

func (m ManagerConfig) Tick() time.Duration {
	return time.Duration(m.TickMillis) * time.Millisecond
}

func (m ManagerConfig) Retry() time.Duration {
	return time.Duration(m.RetryMillis) * time.Millisecond
}

func (r RedisConfig) LockTTL() time.Duration {
	return time.Duration(r.LockTTLMillis) * time.Millisecond
}

// Load reads the YAML file at path, if it exists, then applies .env and
// environment overrides and fills defaults. An empty path skips the file.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
			}
		}
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return cfg, nil
}

// Default returns a configuration suitable for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			OperatorAddress: "operator",
			RequestsPerMin:  600,
		},
		Game:   game.DefaultParams(),
		Height: HeightConfig{IntervalMillis: 1000},
		Oracle: OracleConfig{Kind: "beacon", BeaconPeriod: 3},
		Redis:  RedisConfig{Addr: "localhost:6379", LockTTLMillis: 5000},
		Database: DatabaseConfig{
			Driver:      "sqlite",
			DSN:         "minority.db",
			AutoMigrate: true,
		},
		Manager: ManagerConfig{
			Enabled:     true,
			AutoStart:   true,
			TickMillis:  500,
			RetryMillis: 2000,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

func (c *Config) Validate() error {
	var errs []error
	if err := c.Game.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("game: %w", err))
	}
	switch c.Oracle.Kind {
	case "beacon", "redis":
	default:
		errs = append(errs, fmt.Errorf("oracle.kind %q must be beacon or redis", c.Oracle.Kind))
	}
	switch c.Database.Driver {
	case "postgres", "sqlite", "none":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q must be postgres, sqlite or none", c.Database.Driver))
	}
	if c.Server.OperatorAddress == "" {
		errs = append(errs, errors.New("server.operator_address is required"))
	}
	return errors.Join(errs...)
}

func applyEnvOverrides(cfg *Config) {
	cfg.Server.Port = getEnvAsInt("PORT", cfg.Server.Port)
	cfg.Server.AdminToken = getEnv("ADMIN_TOKEN", cfg.Server.AdminToken)
	cfg.Server.OperatorAddress = getEnv("OPERATOR_ADDRESS", cfg.Server.OperatorAddress)
	cfg.Redis.Addr = getEnv("REDIS_URL", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvAsInt("REDIS_DB", cfg.Redis.DB)
	cfg.Database.Driver = getEnv("DB_DRIVER", cfg.Database.Driver)
	cfg.Database.DSN = getEnv("DB_DSN", cfg.Database.DSN)
	cfg.Oracle.Kind = getEnv("ORACLE_KIND", cfg.Oracle.Kind)
	cfg.Oracle.BeaconSeed = getEnv("BEACON_SEED", cfg.Oracle.BeaconSeed)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestsPerMin <= 0 {
		cfg.Server.RequestsPerMin = 600
	}
	if cfg.Height.IntervalMillis <= 0 {
		cfg.Height.IntervalMillis = 1000
	}
	if cfg.Oracle.BeaconPeriod == 0 {
		cfg.Oracle.BeaconPeriod = 3
	}
	if cfg.Game.LeaderboardSize <= 0 {
		cfg.Game.LeaderboardSize = game.LEADERBOARD_SIZE
	}
	if cfg.Manager.TickMillis <= 0 {
		cfg.Manager.TickMillis = 500
	}
	if cfg.Manager.RetryMillis <= 0 {
		cfg.Manager.RetryMillis = 2000
	}
	if cfg.Redis.LockTTLMillis <= 0 {
		cfg.Redis.LockTTLMillis = 5000
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
