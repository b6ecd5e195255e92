package model

// TokenMeta captures ERC20 metadata.
type TokenMeta struct {
	Address  Token  `json:"address"`
	Decimals uint8  `json:"decimals"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
}
