package model

// TradingPair is one market for a token as reported by the external price feed.
type TradingPair struct {
	ChainID      string  `json:"chain_id"`
	Venue        string  `json:"venue"`
	PairAddress  string  `json:"pair_address"`
	BaseSymbol   string  `json:"base_symbol"`
	QuoteSymbol  string  `json:"quote_symbol"`
	PriceUSD     string  `json:"price_usd"`
	LiquidityUSD float64 `json:"liquidity_usd"`
}
