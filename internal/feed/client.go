package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"priceScope/internal/model"
)

const (
	DefaultBaseURL = "https://api.dexscreener.com/latest/dex/tokens"
	DefaultTimeout = 7 * time.Second
)

// ClientConfig configures the aggregator HTTP client.
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
	// AddressMap rewrites a token to the address the aggregator indexes,
	// e.g. a test-network deployment to its main-network twin.
	AddressMap map[model.Token]model.Token
	HTTPClient *http.Client
}

// Client is a DexScreener-shaped aggregator client.
type Client struct {
	cfg    ClientConfig
	http   *http.Client
	logger *zap.Logger
}

// NewClient builds a Client, filling defaults.
func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{cfg: cfg, http: httpClient, logger: logger}
}

type tokensResponse struct {
	Pairs []wirePair `json:"pairs"`
}

type wirePair struct {
	ChainID     string `json:"chainId"`
	DexID       string `json:"dexId"`
	PairAddress string `json:"pairAddress"`
	PriceUSD    string `json:"priceUsd"`
	BaseToken   struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	QuoteToken struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
	} `json:"quoteToken"`
	Liquidity *struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
}

// Pairs fetches all pairs for token. The whole request is bounded by the
// configured timeout.
func (c *Client) Pairs(ctx context.Context, token model.Token) ([]model.TradingPair, error) {
	lookup := token
	if mapped, ok := c.cfg.AddressMap[token]; ok {
		lookup = mapped
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/" + lookup.String()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("price feed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &HTTPError{Status: resp.StatusCode, URL: url, Body: strings.TrimSpace(string(body))}
	}

	var decoded tokensResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode price feed response: %w", err)
	}

	pairs := make([]model.TradingPair, 0, len(decoded.Pairs))
	for _, p := range decoded.Pairs {
		pair := model.TradingPair{
			ChainID:     p.ChainID,
			Venue:       p.DexID,
			PairAddress: p.PairAddress,
			BaseSymbol:  p.BaseToken.Symbol,
			QuoteSymbol: p.QuoteToken.Symbol,
			PriceUSD:    p.PriceUSD,
		}
		if p.Liquidity != nil {
			pair.LiquidityUSD = p.Liquidity.USD
		}
		pairs = append(pairs, pair)
	}

	c.logger.Debug("price feed pairs", zap.String("token", token.String()), zap.String("lookup", lookup.String()), zap.Int("pairs", len(pairs)))
	return pairs, nil
}
