package feed

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"priceScope/internal/model"
)

func testSelector() Selector {
	return Selector{
		ChainIDs:      []string{"hyperevm", "hyperliquid"},
		PrimaryVenues: []string{"hyperswap", "hyperliquid"},
		StableQuotes:  []string{"USDC", "USDT"},
	}
}

func pair(venue, quote, addr, price string, liq float64) model.TradingPair {
	return model.TradingPair{
		ChainID:      "hyperevm",
		Venue:        venue,
		PairAddress:  addr,
		QuoteSymbol:  quote,
		PriceUSD:     price,
		LiquidityUSD: liq,
	}
}

func TestBestPrimaryVenueBeatsLiquidity(t *testing.T) {
	pairs := []model.TradingPair{
		pair("kittenswap", "USDC", "0xa", "1.10", 9_000_000),
		pair("hyperswap", "USDC", "0xb", "1.00", 10),
	}
	best, price, err := testSelector().Best(pairs)
	require.NoError(t, err)
	assert.Equal(t, "0xb", best.PairAddress)
	assert.InDelta(t, 1.0, price, 1e-12)
}

func TestBestVenueRankOrder(t *testing.T) {
	pairs := []model.TradingPair{
		pair("hyperliquid", "USDC", "0xa", "2", 500),
		pair("hyperswap", "USDC", "0xb", "3", 100),
	}
	best, _, err := testSelector().Best(pairs)
	require.NoError(t, err)
	assert.Equal(t, "hyperswap", best.Venue)
}

func TestBestHigherLiquidityWithinVenue(t *testing.T) {
	pairs := []model.TradingPair{
		pair("hyperswap", "USDC", "0xa", "1.0", 100),
		pair("hyperswap", "USDC", "0xb", "1.1", 5000),
		pair("hyperswap", "USDC", "0xc", "1.2", 2500),
	}
	best, price, err := testSelector().Best(pairs)
	require.NoError(t, err)
	assert.Equal(t, "0xb", best.PairAddress)
	assert.InDelta(t, 1.1, price, 1e-12)
}

func TestBestStableQuoteBeatsNonStable(t *testing.T) {
	pairs := []model.TradingPair{
		pair("hyperswap", "WHYPE", "0xa", "0.9", 1000),
		pair("hyperswap", "usdt", "0xb", "1.0", 1000),
	}
	best, _, err := testSelector().Best(pairs)
	require.NoError(t, err)
	assert.Equal(t, "0xb", best.PairAddress)
}

func TestBestDiscardsInvalidPrices(t *testing.T) {
	pairs := []model.TradingPair{
		pair("hyperswap", "USDC", "0xa", "", 9000),
		pair("hyperswap", "USDC", "0xb", "abc", 9000),
		pair("hyperswap", "USDC", "0xc", "-1", 9000),
		pair("hyperswap", "USDC", "0xd", "0", 9000),
		pair("hyperswap", "USDC", "0xe", "NaN", 9000),
		pair("other", "FOO", "0xf", "4.2", 1),
	}
	best, price, err := testSelector().Best(pairs)
	require.NoError(t, err)
	assert.Equal(t, "0xf", best.PairAddress)
	assert.InDelta(t, 4.2, price, 1e-12)
}

func TestBestNoSurvivors(t *testing.T) {
	other := pair("hyperswap", "USDC", "0xa", "1", 10)
	other.ChainID = "ethereum"
	_, _, err := testSelector().Best([]model.TradingPair{
		other,
		pair("hyperswap", "USDC", "0xb", "nope", 10),
	})
	assert.True(t, errors.Is(err, ErrNoPair))

	_, _, err = testSelector().Best(nil)
	assert.True(t, errors.Is(err, ErrNoPair))
}

func TestBestMinLiquidity(t *testing.T) {
	sel := testSelector()
	sel.MinLiquidityUSD = 1000
	_, _, err := sel.Best([]model.TradingPair{pair("hyperswap", "USDC", "0xa", "1", 999)})
	assert.True(t, errors.Is(err, ErrNoPair))
}

func TestBestDeterministic(t *testing.T) {
	pairs := []model.TradingPair{
		pair("kittenswap", "WHYPE", "0x3", "1.3", 700),
		pair("hyperswap", "FOO", "0x1", "1.1", 700),
		pair("hyperswap", "USDC", "0x2", "1.2", 700),
		pair("hyperswap", "USDC", "0x0", "1.0", 700),
		pair("hyperliquid", "USDC", "0x4", "1.4", 800),
	}
	first, _, err := testSelector().Best(pairs)
	require.NoError(t, err)
	assert.Equal(t, "0x0", first.PairAddress)

	for i := 0; i < 50; i++ {
		rotated := append(append([]model.TradingPair{}, pairs[i%len(pairs):]...), pairs[:i%len(pairs)]...)
		got, _, err := testSelector().Best(rotated)
		require.NoError(t, err)
		assert.Equal(t, first, got)
	}
}
