package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"priceScope/internal/model"
)

const (
	testToken  = "0x5555555555555555555555555555555555555555"
	testMapped = "0x6666666666666666666666666666666666666666"
)

const pairsBody = `{
  "schemaVersion": "1.0.0",
  "pairs": [
    {
      "chainId": "hyperevm",
      "dexId": "hyperswap",
      "pairAddress": "0xPAIR1",
      "baseToken": {"address": "0x5555555555555555555555555555555555555555", "symbol": "WHYPE"},
      "quoteToken": {"address": "0xb88339cb7199b77e23db6e890353e22632ba630f", "symbol": "USDC"},
      "priceUsd": "38.12",
      "liquidity": {"usd": 120000.5}
    },
    {
      "chainId": "hyperevm",
      "dexId": "kittenswap",
      "pairAddress": "0xPAIR2",
      "baseToken": {"address": "0x5555555555555555555555555555555555555555", "symbol": "WHYPE"},
      "quoteToken": {"address": "0x1111111111111111111111111111111111111111", "symbol": "FOO"}
    }
  ]
}`

func TestClientPairs(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(pairsBody))
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{BaseURL: srv.URL + "/latest/dex/tokens/"}, nil)
	pairs, err := client.Pairs(context.Background(), model.MustToken(testToken))
	require.NoError(t, err)
	require.Len(t, pairs, 2)

	assert.Equal(t, "/latest/dex/tokens/"+testToken, gotPath)
	assert.Equal(t, "hyperswap", pairs[0].Venue)
	assert.Equal(t, "USDC", pairs[0].QuoteSymbol)
	assert.Equal(t, "38.12", pairs[0].PriceUSD)
	assert.InDelta(t, 120000.5, pairs[0].LiquidityUSD, 1e-9)
	assert.Equal(t, "", pairs[1].PriceUSD)
	assert.Zero(t, pairs[1].LiquidityUSD)
}

func TestClientAddressMap(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"pairs":[]}`))
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{
		BaseURL: srv.URL,
		AddressMap: map[model.Token]model.Token{
			model.MustToken(testToken): model.MustToken(testMapped),
		},
	}, nil)
	pairs, err := client.Pairs(context.Background(), model.MustToken(testToken))
	require.NoError(t, err)
	assert.Empty(t, pairs)
	assert.Equal(t, "/"+testMapped, gotPath)
}

func TestClientRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	_, err := NewClient(ClientConfig{BaseURL: srv.URL}, nil).Pairs(context.Background(), model.MustToken(testToken))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRateLimited))

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusTooManyRequests, httpErr.Status)
	assert.Equal(t, "slow down", httpErr.Body)
}

func TestClientServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(ClientConfig{BaseURL: srv.URL}, nil).Pairs(context.Background(), model.MustToken(testToken))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrRateLimited))

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusInternalServerError, httpErr.Status)
}

func TestClientMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"pairs": [`))
	}))
	defer srv.Close()

	_, err := NewClient(ClientConfig{BaseURL: srv.URL}, nil).Pairs(context.Background(), model.MustToken(testToken))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrRateLimited))
	assert.True(t, strings.Contains(err.Error(), "decode"))
}

func TestClientTimeoutIsNotRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{BaseURL: srv.URL, Timeout: 30 * time.Millisecond}, nil)
	_, err := client.Pairs(context.Background(), model.MustToken(testToken))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.False(t, errors.Is(err, ErrRateLimited))
}
