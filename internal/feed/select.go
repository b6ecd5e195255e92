package feed

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"priceScope/internal/model"
)

// Selector filters aggregator pairs and picks one deterministically.
type Selector struct {
	// ChainIDs restricts pairs to these chains; empty accepts any chain.
	ChainIDs []string
	// PrimaryVenues are preferred over every other venue, earlier entries first.
	PrimaryVenues []string
	// StableQuotes are quote symbols treated as USD-stable.
	StableQuotes    []string
	MinLiquidityUSD float64
}

type candidate struct {
	pair   model.TradingPair
	price  float64
	venue  int
	stable bool
}

// Best returns the winning pair and its parsed USD price. Ordering: primary
// venue rank, then stable quote, then liquidity, then pair address and price
// text so that equal inputs always produce the same choice.
func (s Selector) Best(pairs []model.TradingPair) (model.TradingPair, float64, error) {
	candidates := make([]candidate, 0, len(pairs))
	for _, pair := range pairs {
		if !s.acceptsChain(pair.ChainID) {
			continue
		}
		price, ok := parsePrice(pair.PriceUSD)
		if !ok {
			continue
		}
		if pair.LiquidityUSD < s.MinLiquidityUSD {
			continue
		}
		candidates = append(candidates, candidate{
			pair:   pair,
			price:  price,
			venue:  s.venueRank(pair.Venue),
			stable: s.isStable(pair.QuoteSymbol),
		})
	}
	if len(candidates) == 0 {
		return model.TradingPair{}, 0, ErrNoPair
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.venue != b.venue {
			return a.venue < b.venue
		}
		if a.stable != b.stable {
			return a.stable
		}
		if a.pair.LiquidityUSD != b.pair.LiquidityUSD {
			return a.pair.LiquidityUSD > b.pair.LiquidityUSD
		}
		if a.pair.PairAddress != b.pair.PairAddress {
			return strings.ToLower(a.pair.PairAddress) < strings.ToLower(b.pair.PairAddress)
		}
		return a.pair.PriceUSD < b.pair.PriceUSD
	})

	best := candidates[0]
	return best.pair, best.price, nil
}

func (s Selector) acceptsChain(chainID string) bool {
	if len(s.ChainIDs) == 0 {
		return true
	}
	for _, id := range s.ChainIDs {
		if strings.EqualFold(id, chainID) {
			return true
		}
	}
	return false
}

func (s Selector) venueRank(venue string) int {
	for i, primary := range s.PrimaryVenues {
		if strings.EqualFold(primary, venue) {
			return i
		}
	}
	return len(s.PrimaryVenues)
}

func (s Selector) isStable(symbol string) bool {
	for _, stable := range s.StableQuotes {
		if strings.EqualFold(stable, symbol) {
			return true
		}
	}
	return false
}

// parsePrice accepts only plain decimal strings with a positive value.
func parsePrice(text string) (float64, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, false
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return 0, false
	}
	price := d.InexactFloat64()
	if !model.ValidPrice(price) {
		return 0, false
	}
	return price, true
}
