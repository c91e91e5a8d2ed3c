// Package config loads the observer fleet configuration from YAML with
// environment overrides for connection secrets.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/bridgescope/backend/internal/model"
)

type Config struct {
	Observers   []ObserverConfig  `yaml:"observers"`
	Risk        RiskConfig        `yaml:"risk"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Sweeps      SweepsConfig      `yaml:"sweeps"`
	Postgres    PostgresConfig    `yaml:"postgres"`
	Graph       GraphConfig       `yaml:"graph"`
	Redis       RedisConfig       `yaml:"redis"`
	API         APIConfig         `yaml:"api"`
}

// ObserverConfig is one (protocol, chain, contract) tuple to monitor.
type ObserverConfig struct {
	Protocol     string   `yaml:"protocol"`
	Chain        string   `yaml:"chain"`
	Contract     string   `yaml:"contract"`
	RPCPrimary   string   `yaml:"rpc_primary"`
	RPCFallbacks []string `yaml:"rpc_fallbacks"`
}

type RiskConfig struct {
	HighValueThreshold  int64 `yaml:"high_value_threshold"`
	FrequentBridgeCount int   `yaml:"frequent_bridge_count"`
	ActivityWindowHours int   `yaml:"activity_window_hours"`
}

type ConcurrencyConfig struct {
	PipelineWorkers   int           `yaml:"pipeline_workers"`
	RelationalPool    int           `yaml:"relational_pool"`
	GraphPool         int           `yaml:"graph_pool"`
	RPCTimeout        time.Duration `yaml:"rpc_timeout"`
	DBTimeout         time.Duration `yaml:"db_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	TimestampCacheLen int           `yaml:"timestamp_cache_len"`
}

type SweepsConfig struct {
	RescoreInterval    time.Duration `yaml:"rescore_interval"`
	RescoreBatch       int           `yaml:"rescore_batch"`
	CorrelateInterval  time.Duration `yaml:"correlate_interval"`
	CorrelateMinAge    time.Duration `yaml:"correlate_min_age"`
	CorrelationTimeout time.Duration `yaml:"correlation_timeout"`
	CorrelationWindow  time.Duration `yaml:"correlation_window"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type GraphConfig struct {
	URI      string `yaml:"uri"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Default returns the built-in defaults; LoadConfig layers the file and
// environment on top of these.
func Default() *Config {
	return &Config{
		Risk: RiskConfig{
			HighValueThreshold:  100_000,
			FrequentBridgeCount: 10,
			ActivityWindowHours: 24,
		},
		Concurrency: ConcurrencyConfig{
			PipelineWorkers:   5,
			RelationalPool:    10,
			GraphPool:         10,
			RPCTimeout:        30 * time.Second,
			DBTimeout:         10 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			TimestampCacheLen: 4096,
		},
		Sweeps: SweepsConfig{
			RescoreInterval:    15 * time.Minute,
			RescoreBatch:       500,
			CorrelateInterval:  5 * time.Minute,
			CorrelateMinAge:    time.Hour,
			CorrelationTimeout: 24 * time.Hour,
			CorrelationWindow:  30 * time.Minute,
		},
		API: APIConfig{ListenAddr: ":8080"},
	}
}

// LoadConfig reads the YAML file at path, applies environment overrides and
// fills defaults. A missing file is allowed when the environment supplies
// everything.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		} else {
			defer f.Close()
			if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	cfg.fillDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("NEO4J_URI"); v != "" {
		c.Graph.URI = v
	}
	if v := os.Getenv("NEO4J_USER"); v != "" {
		c.Graph.User = v
	}
	if v := os.Getenv("NEO4J_PASSWORD"); v != "" {
		c.Graph.Password = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("API_LISTEN_ADDR"); v != "" {
		c.API.ListenAddr = v
	}
	if v := os.Getenv("HIGH_VALUE_THRESHOLD"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Risk.HighValueThreshold = n
		}
	}
	if v := os.Getenv("FREQUENT_BRIDGE_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Risk.FrequentBridgeCount = n
		}
	}
}

func (c *Config) fillDefaults() {
	d := Default()
	if c.Risk.HighValueThreshold <= 0 {
		c.Risk.HighValueThreshold = d.Risk.HighValueThreshold
	}
	if c.Risk.FrequentBridgeCount <= 0 {
		c.Risk.FrequentBridgeCount = d.Risk.FrequentBridgeCount
	}
	if c.Risk.ActivityWindowHours <= 0 {
		c.Risk.ActivityWindowHours = d.Risk.ActivityWindowHours
	}
	if c.Concurrency.PipelineWorkers <= 0 {
		c.Concurrency.PipelineWorkers = d.Concurrency.PipelineWorkers
	}
	if c.Concurrency.RelationalPool <= 0 {
		c.Concurrency.RelationalPool = d.Concurrency.RelationalPool
	}
	if c.Concurrency.GraphPool <= 0 {
		c.Concurrency.GraphPool = d.Concurrency.GraphPool
	}
	if c.Concurrency.RPCTimeout <= 0 {
		c.Concurrency.RPCTimeout = d.Concurrency.RPCTimeout
	}
	if c.Concurrency.DBTimeout <= 0 {
		c.Concurrency.DBTimeout = d.Concurrency.DBTimeout
	}
	if c.Concurrency.ShutdownTimeout <= 0 {
		c.Concurrency.ShutdownTimeout = d.Concurrency.ShutdownTimeout
	}
	if c.Concurrency.TimestampCacheLen <= 0 {
		c.Concurrency.TimestampCacheLen = d.Concurrency.TimestampCacheLen
	}
	if c.Sweeps.RescoreInterval <= 0 {
		c.Sweeps.RescoreInterval = d.Sweeps.RescoreInterval
	}
	if c.Sweeps.RescoreBatch <= 0 {
		c.Sweeps.RescoreBatch = d.Sweeps.RescoreBatch
	}
	if c.Sweeps.CorrelateInterval <= 0 {
		c.Sweeps.CorrelateInterval = d.Sweeps.CorrelateInterval
	}
	if c.Sweeps.CorrelateMinAge <= 0 {
		c.Sweeps.CorrelateMinAge = d.Sweeps.CorrelateMinAge
	}
	if c.Sweeps.CorrelationTimeout <= 0 {
		c.Sweeps.CorrelationTimeout = d.Sweeps.CorrelationTimeout
	}
	if c.Sweeps.CorrelationWindow <= 0 {
		c.Sweeps.CorrelationWindow = d.Sweeps.CorrelationWindow
	}
	if c.API.ListenAddr == "" {
		c.API.ListenAddr = d.API.ListenAddr
	}
}

// Validate checks one observer entry. A zero contract address means the
// entry is disabled rather than invalid; callers should check Disabled first.
func (o ObserverConfig) Validate() error {
	if _, err := model.ParseProtocol(o.Protocol); err != nil {
		return err
	}
	if _, err := model.ParseChain(o.Chain); err != nil {
		return err
	}
	addr := model.NormalizeAddress(o.Contract)
	if !model.ValidAddress(addr) {
		return fmt.Errorf("observer %s/%s: invalid contract address %q", o.Protocol, o.Chain, o.Contract)
	}
	if o.RPCPrimary == "" {
		return fmt.Errorf("observer %s/%s: missing primary RPC endpoint", o.Protocol, o.Chain)
	}
	return nil
}

// Disabled reports whether the entry carries the zero-address placeholder.
func (o ObserverConfig) Disabled() bool {
	return model.NormalizeAddress(o.Contract) == model.ZeroAddress
}

// Endpoints returns the ordered endpoint list, primary first.
func (o ObserverConfig) Endpoints() []string {
	out := make([]string, 0, 1+len(o.RPCFallbacks))
	out = append(out, o.RPCPrimary)
	out = append(out, o.RPCFallbacks...)
	return out
}
