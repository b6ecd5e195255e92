package model

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	ErrInvalidSnapshot = errors.New("invalid pool snapshot")
	ErrZeroSupply      = fmt.Errorf("%w: zero total share supply", ErrInvalidSnapshot)
	ErrZeroReserve     = fmt.Errorf("%w: zero reserve", ErrInvalidSnapshot)
)

// PoolSnapshot is the state of a constant-product pool read at one point in time.
type PoolSnapshot struct {
	Pool          Token    `json:"pool"`
	TokenA        Token    `json:"token_a"`
	TokenB        Token    `json:"token_b"`
	ReserveA      *big.Int `json:"reserve_a"`
	ReserveB      *big.Int `json:"reserve_b"`
	TotalSupply   *big.Int `json:"total_supply"`
	ShareDecimals uint8    `json:"share_decimals"`
	DecimalsA     uint8    `json:"decimals_a"`
	DecimalsB     uint8    `json:"decimals_b"`
}

// Validate rejects snapshots of pools that were never seeded or have an empty side.
func (s PoolSnapshot) Validate() error {
	if s.TotalSupply == nil || s.TotalSupply.Sign() <= 0 {
		return ErrZeroSupply
	}
	if s.ReserveA == nil || s.ReserveA.Sign() <= 0 {
		return fmt.Errorf("%w (token_a %s)", ErrZeroReserve, s.TokenA)
	}
	if s.ReserveB == nil || s.ReserveB.Sign() <= 0 {
		return fmt.Errorf("%w (token_b %s)", ErrZeroReserve, s.TokenB)
	}
	return nil
}

// PoolSide is one token's view of a pool: its own reserve and the opposite side.
type PoolSide struct {
	Reserve         *big.Int
	Decimals        uint8
	Counter         Token
	CounterReserve  *big.Int
	CounterDecimals uint8
}

// Side returns the pool viewed from token; ok is false when token is not in the pool.
func (s PoolSnapshot) Side(token Token) (PoolSide, bool) {
	switch {
	case s.TokenA.Equal(token):
		return PoolSide{
			Reserve:         s.ReserveA,
			Decimals:        s.DecimalsA,
			Counter:         s.TokenB,
			CounterReserve:  s.ReserveB,
			CounterDecimals: s.DecimalsB,
		}, true
	case s.TokenB.Equal(token):
		return PoolSide{
			Reserve:         s.ReserveB,
			Decimals:        s.DecimalsB,
			Counter:         s.TokenA,
			CounterReserve:  s.ReserveA,
			CounterDecimals: s.DecimalsA,
		}, true
	default:
		return PoolSide{}, false
	}
}
