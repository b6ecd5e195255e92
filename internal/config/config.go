package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL      string
	LogLevel    string
	Out         string
	State       string
	PGDSN       string
	Listen      string
	MetricsAddr string
	Interval    time.Duration
	Once        bool
	Tokens      []string

	Feed  FeedConfig
	Guard GuardConfig
	Cache CacheConfig
	Chain ChainConfig
	Table TokensConfig
}

// FeedConfig configures the external price aggregator.
type FeedConfig struct {
	BaseURL         string            `mapstructure:"base-url"`
	Timeout         time.Duration     `mapstructure:"timeout"`
	ChainIDs        []string          `mapstructure:"chain-ids"`
	PrimaryVenues   []string          `mapstructure:"primary-venues"`
	StableQuotes    []string          `mapstructure:"stable-quotes"`
	MinLiquidityUSD float64           `mapstructure:"min-liquidity-usd"`
	AddressMap      map[string]string `mapstructure:"address-map"`
}

// GuardConfig bounds request pressure on the aggregator.
type GuardConfig struct {
	MaxRequests int           `mapstructure:"max-requests"`
	Window      time.Duration `mapstructure:"window"`
	MinSpacing  time.Duration `mapstructure:"min-spacing"`
	MaxWait     time.Duration `mapstructure:"max-wait"`
}

// CacheConfig selects and sizes the result cache.
type CacheConfig struct {
	Backend string        `mapstructure:"backend"`
	Size    int           `mapstructure:"size"`
	TTL     time.Duration `mapstructure:"ttl"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// ChainConfig bounds on-chain reads.
type ChainConfig struct {
	CallTimeout  time.Duration `mapstructure:"call-timeout"`
	MaxRetries   int           `mapstructure:"max-retries"`
	RetryBackoff time.Duration `mapstructure:"retry-backoff"`
}

// TokensConfig is the identity table used to classify tokens.
type TokensConfig struct {
	Stable           []string       `mapstructure:"stable"`
	Oracle           []OracleToken  `mapstructure:"oracle"`
	Pools            []string       `mapstructure:"pools"`
	Derived          []DerivedToken `mapstructure:"derived"`
	PoolSymbolMarker string         `mapstructure:"pool-symbol-marker"`
}

// OracleToken is priced as consult(address, 10^decimals) in quote units.
type OracleToken struct {
	Address       string `mapstructure:"address"`
	Oracle        string `mapstructure:"oracle"`
	Quote         string `mapstructure:"quote"`
	Decimals      uint8  `mapstructure:"decimals"`
	QuoteDecimals uint8  `mapstructure:"quote-decimals"`
}

// DerivedToken is priced through the reserve ratio of a reference pool.
type DerivedToken struct {
	Address string `mapstructure:"address"`
	Pool    string `mapstructure:"pool"`
}

const (
	DefaultFeedURL     = "https://api.dexscreener.com/latest/dex/tokens"
	DefaultFeedTimeout = 7 * time.Second
	DefaultPoolMarker  = "LP"
)

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PRICER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	v.SetDefault("out", "")
	v.SetDefault("state", "./data/watch_state.json")
	v.SetDefault("listen", ":8080")
	v.SetDefault("interval", 30*time.Second)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:      v.GetString("rpc"),
		LogLevel:    v.GetString("log-level"),
		Out:         v.GetString("out"),
		State:       v.GetString("state"),
		PGDSN:       v.GetString("pg-dsn"),
		Listen:      v.GetString("listen"),
		MetricsAddr: v.GetString("metrics-addr"),
		Interval:    v.GetDuration("interval"),
		Once:        v.GetBool("once"),
		Tokens:      getStringSlice(v, "token"),
	}

	sections := []struct {
		key string
		out any
	}{
		{"feed", &cfg.Feed},
		{"guard", &cfg.Guard},
		{"cache", &cfg.Cache},
		{"chain", &cfg.Chain},
		{"tokens", &cfg.Table},
	}
	for _, s := range sections {
		if !v.IsSet(s.key) {
			continue
		}
		if err := v.UnmarshalKey(s.key, s.out); err != nil {
			return Config{}, fmt.Errorf("decode %s: %w", s.key, err)
		}
	}

	if addr := v.GetString("redis-addr"); addr != "" {
		cfg.Cache.Backend = "redis"
		cfg.Cache.Redis.Addr = addr
	}
	if backend := v.GetString("cache-backend"); backend != "" {
		cfg.Cache.Backend = backend
	}

	// An explicitly empty marker turns symbol probing off.
	if !v.IsSet("tokens.pool-symbol-marker") {
		cfg.Table.PoolSymbolMarker = DefaultPoolMarker
	}

	applyDefaults(&cfg)
	return cfg, cfg.Validate()
}

func applyDefaults(cfg *Config) {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}

	if cfg.Feed.BaseURL == "" {
		cfg.Feed.BaseURL = DefaultFeedURL
	}
	if cfg.Feed.Timeout <= 0 {
		cfg.Feed.Timeout = DefaultFeedTimeout
	}
	if len(cfg.Feed.StableQuotes) == 0 {
		cfg.Feed.StableQuotes = []string{"USDC", "USDT"}
	}

	if cfg.Guard.Window <= 0 {
		cfg.Guard.Window = time.Minute
	}
	if cfg.Guard.MaxRequests == 0 {
		cfg.Guard.MaxRequests = 60
	}
	if cfg.Guard.MinSpacing == 0 {
		cfg.Guard.MinSpacing = 250 * time.Millisecond
	}
	if cfg.Guard.MaxWait == 0 {
		cfg.Guard.MaxWait = time.Second
	}

	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "memory"
	}
	if cfg.Cache.Size <= 0 {
		cfg.Cache.Size = 1024
	}
	if cfg.Cache.TTL <= 0 {
		cfg.Cache.TTL = 5 * time.Minute
	}
	if cfg.Cache.Redis.Prefix == "" {
		cfg.Cache.Redis.Prefix = "price:"
	}

	if cfg.Chain.CallTimeout <= 0 {
		cfg.Chain.CallTimeout = 10 * time.Second
	}
	if cfg.Chain.MaxRetries == 0 {
		cfg.Chain.MaxRetries = 3
	}
	if cfg.Chain.RetryBackoff <= 0 {
		cfg.Chain.RetryBackoff = time.Second
	}

	for i := range cfg.Table.Oracle {
		if cfg.Table.Oracle[i].Decimals == 0 {
			cfg.Table.Oracle[i].Decimals = 18
		}
		if cfg.Table.Oracle[i].QuoteDecimals == 0 {
			cfg.Table.Oracle[i].QuoteDecimals = 18
		}
	}
}

// Validate checks values that cannot be defaulted.
func (c Config) Validate() error {
	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("cache.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	if c.Guard.MaxRequests < 0 {
		return fmt.Errorf("guard.max-requests must not be negative")
	}
	if c.Chain.MaxRetries < 0 {
		return fmt.Errorf("chain.max-retries must not be negative")
	}
	for _, o := range c.Table.Oracle {
		if o.Address == "" || o.Oracle == "" || o.Quote == "" {
			return fmt.Errorf("oracle token entries need address, oracle and quote")
		}
	}
	for _, d := range c.Table.Derived {
		if d.Address == "" || d.Pool == "" {
			return fmt.Errorf("derived token entries need address and pool")
		}
	}
	return nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
