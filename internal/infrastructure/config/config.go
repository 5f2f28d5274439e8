package config

import (
	"errors"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	App struct {
		LogLevel           string   `toml:"log_level"`
		PriceRefreshSec    int      `toml:"price_refresh_sec"`
		BalanceRefreshSec  int      `toml:"balance_refresh_sec"`
		PositionRefreshSec int      `toml:"position_refresh_sec"`
		QuoteTTLSec        int      `toml:"quote_ttl_sec"`
		RequestTimeoutSec  int      `toml:"request_timeout_sec"`
		PositionStatuses   []string `toml:"position_statuses"`
	} `toml:"app"`

	Upstream struct {
		ClobURL   string `toml:"clob_url"`
		DataURL   string `toml:"data_url"`
		User      string `toml:"user"`
		WsEnabled bool   `toml:"ws_enabled"`
		WsURL     string `toml:"ws_url"`
	} `toml:"upstream"`

	Redis struct {
		Enabled   bool   `toml:"enabled"`
		Addr      string `toml:"addr"`
		Password  string `toml:"password"`
		DB        int    `toml:"db"`
		Prefix    string `toml:"prefix"`
		CacheTTLm int    `toml:"cache_ttl_min"`
	} `toml:"redis"`

	SQLite struct {
		Enabled bool   `toml:"enabled"`
		Path    string `toml:"path"`
	} `toml:"sqlite"`

	Postgres struct {
		Enabled bool   `toml:"enabled"`
		DSN     string `toml:"dsn"`
	} `toml:"postgres"`
}

func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = "info"
	}
	if cfg.App.PriceRefreshSec <= 0 {
		cfg.App.PriceRefreshSec = 30
	}
	if cfg.App.BalanceRefreshSec <= 0 {
		cfg.App.BalanceRefreshSec = 30
	}
	if cfg.App.PositionRefreshSec <= 0 {
		cfg.App.PositionRefreshSec = 60
	}
	if cfg.App.QuoteTTLSec <= 0 {
		cfg.App.QuoteTTLSec = 30
	}
	if cfg.App.RequestTimeoutSec <= 0 {
		cfg.App.RequestTimeoutSec = 10
	}
	if len(cfg.App.PositionStatuses) == 0 {
		cfg.App.PositionStatuses = []string{"open", "filled", "won"}
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "polyfolio"
	}
	if cfg.Redis.CacheTTLm <= 0 {
		cfg.Redis.CacheTTLm = 10
	}
	if cfg.SQLite.Path == "" {
		cfg.SQLite.Path = "data/polyfolio.db"
	}
}

func validate(cfg *Config) error {
	cfg.App.PositionStatuses = normalizeStatuses(cfg.App.PositionStatuses)
	if len(cfg.App.PositionStatuses) == 0 {
		return errors.New("app.position_statuses is empty")
	}
	if strings.TrimSpace(cfg.Upstream.User) == "" {
		return errors.New("upstream.user is empty")
	}
	if cfg.Upstream.WsEnabled && strings.TrimSpace(cfg.Upstream.WsURL) == "" {
		return errors.New("upstream.ws_url empty but ws enabled")
	}
	if cfg.Redis.Enabled && strings.TrimSpace(cfg.Redis.Addr) == "" {
		return errors.New("redis.addr empty but enabled")
	}
	if cfg.Postgres.Enabled && strings.TrimSpace(cfg.Postgres.DSN) == "" {
		return errors.New("postgres.dsn empty but enabled")
	}
	if cfg.Postgres.Enabled && cfg.SQLite.Enabled {
		return errors.New("sqlite and postgres are mutually exclusive snapshot backends")
	}
	return nil
}

func normalizeStatuses(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, s := range in {
		v := strings.ToLower(strings.TrimSpace(s))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func (c *Config) PriceRefresh() time.Duration {
	return time.Duration(c.App.PriceRefreshSec) * time.Second
}

func (c *Config) BalanceRefresh() time.Duration {
	return time.Duration(c.App.BalanceRefreshSec) * time.Second
}

func (c *Config) PositionRefresh() time.Duration {
	return time.Duration(c.App.PositionRefreshSec) * time.Second
}

func (c *Config) QuoteTTL() time.Duration {
	return time.Duration(c.App.QuoteTTLSec) * time.Second
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.App.RequestTimeoutSec) * time.Second
}
