package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

const sampleConfig = `
rpc: https://rpc.hyperliquid.xyz/evm
log-level: debug
token:
  - "0x5555555555555555555555555555555555555555"
feed:
  timeout: 3s
  chain-ids: [hyperevm, hyperliquid]
  primary-venues: [hyperswap, hyperliquid]
  stable-quotes: [USDC, USDT]
  address-map:
    "0xadcb2f358eae6492f61a5f87eb8893d09391d160": "0x5555555555555555555555555555555555555555"
guard:
  max-requests: 10
  window: 30s
cache:
  ttl: 2m
tokens:
  stable: ["0xd9CBEC81df392A88AEff575E962d149d57F4d6bc"]
  pools: ["0x95086e54952C1EaE95d0381c1bE801728ed64d83"]
  oracle:
    - address: "0x65545d42515e4c860EF51C2d06f8Ced58b4F3a74"
      oracle: "0x7D37a5324D1012EaF1cEE1fA0E4aaaBFD9Ed3FBe"
      quote: "0x5555555555555555555555555555555555555555"
  derived:
    - address: "0x65b8397C3501172131cA7dF0e48e7a8Cf5b18738"
      pool: "0x162991e2926089D493beB9458Bd1f94db2F5efB1"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.RPCURL != "https://rpc.hyperliquid.xyz/evm" || cfg.LogLevel != "debug" {
		t.Fatalf("unexpected flat values: %+v", cfg)
	}
	if len(cfg.Tokens) != 1 {
		t.Fatalf("expected 1 token, got %v", cfg.Tokens)
	}
	if cfg.Feed.Timeout != 3*time.Second || len(cfg.Feed.ChainIDs) != 2 || cfg.Feed.PrimaryVenues[0] != "hyperswap" {
		t.Fatalf("unexpected feed config: %+v", cfg.Feed)
	}
	if cfg.Feed.BaseURL != DefaultFeedURL {
		t.Fatalf("expected default feed url, got %q", cfg.Feed.BaseURL)
	}
	if got := cfg.Feed.AddressMap["0xadcb2f358eae6492f61a5f87eb8893d09391d160"]; got != "0x5555555555555555555555555555555555555555" {
		t.Fatalf("address map not decoded: %v", cfg.Feed.AddressMap)
	}
	if cfg.Guard.MaxRequests != 10 || cfg.Guard.Window != 30*time.Second || cfg.Guard.MinSpacing != 250*time.Millisecond {
		t.Fatalf("unexpected guard config: %+v", cfg.Guard)
	}
	if cfg.Cache.Backend != "memory" || cfg.Cache.TTL != 2*time.Minute || cfg.Cache.Size != 1024 {
		t.Fatalf("unexpected cache config: %+v", cfg.Cache)
	}
	if cfg.Chain.MaxRetries != 3 || cfg.Chain.RetryBackoff != time.Second || cfg.Chain.CallTimeout != 10*time.Second {
		t.Fatalf("unexpected chain config: %+v", cfg.Chain)
	}
	if len(cfg.Table.Oracle) != 1 || cfg.Table.Oracle[0].Decimals != 18 || cfg.Table.Oracle[0].QuoteDecimals != 18 {
		t.Fatalf("unexpected oracle table: %+v", cfg.Table.Oracle)
	}
	if len(cfg.Table.Derived) != 1 || cfg.Table.Derived[0].Pool == "" {
		t.Fatalf("unexpected derived table: %+v", cfg.Table.Derived)
	}
	if cfg.Table.PoolSymbolMarker != DefaultPoolMarker {
		t.Fatalf("expected default marker, got %q", cfg.Table.PoolSymbolMarker)
	}
}

func TestLoadFlagsAndEnv(t *testing.T) {
	t.Setenv("PRICER_RPC", "http://env-rpc")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log-level", "info", "")
	flags.String("redis-addr", "", "")
	flags.StringSlice("token", nil, "")
	if err := flags.Parse([]string{"--log-level=warn", "--redis-addr=127.0.0.1:6379", "--token=0xa,0xb"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load(writeConfig(t, "interval: 5s\n"), flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCURL != "http://env-rpc" {
		t.Fatalf("expected env rpc, got %q", cfg.RPCURL)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("expected flag log level, got %q", cfg.LogLevel)
	}
	if cfg.Cache.Backend != "redis" || cfg.Cache.Redis.Addr != "127.0.0.1:6379" || cfg.Cache.Redis.Prefix != "price:" {
		t.Fatalf("unexpected cache config: %+v", cfg.Cache)
	}
	if len(cfg.Tokens) != 2 || cfg.Tokens[1] != "0xb" {
		t.Fatalf("unexpected tokens: %v", cfg.Tokens)
	}
	if cfg.Interval != 5*time.Second {
		t.Fatalf("expected 5s interval, got %s", cfg.Interval)
	}
}

func TestLoadRejectsBadConfig(t *testing.T) {
	cases := map[string]string{
		"unknown backend": "cache:\n  backend: memcached\n",
		"redis no addr":   "cache:\n  backend: redis\n",
		"oracle no quote": "tokens:\n  oracle:\n    - address: \"0x1\"\n      oracle: \"0x2\"\n",
		"derived no pool": "tokens:\n  derived:\n    - address: \"0x1\"\n",
	}
	for name, body := range cases {
		if _, err := Load(writeConfig(t, body), nil); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadEmptyPoolMarkerDisablesProbe(t *testing.T) {
	cfg, err := Load(writeConfig(t, "tokens:\n  pool-symbol-marker: \"\"\n"), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Table.PoolSymbolMarker != "" {
		t.Fatalf("expected empty marker, got %q", cfg.Table.PoolSymbolMarker)
	}

	cfg, err = Load(writeConfig(t, "tokens:\n  pool-symbol-marker: ULP\n"), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Table.PoolSymbolMarker != "ULP" {
		t.Fatalf("expected configured marker, got %q", cfg.Table.PoolSymbolMarker)
	}
}
