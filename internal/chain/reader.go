package chain

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"priceScope/internal/metrics"
	"priceScope/internal/model"
)

// ContractCaller is the eth_call surface the reader needs; *Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ReaderConfig bounds every on-chain read.
type ReaderConfig struct {
	CallTimeout  time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// Reader performs the read-only contract calls used for pricing.
type Reader struct {
	caller ContractCaller
	cfg    ReaderConfig
	logger *zap.Logger
	meta   *TokenMetaCache
}

// NewReader builds a Reader over caller.
func NewReader(caller ContractCaller, cfg ReaderConfig, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	return &Reader{
		caller: caller,
		cfg:    cfg,
		logger: logger,
		meta:   NewTokenMetaCache(),
	}
}

// Consult asks a TWAP oracle how much of its paired asset amountIn of token is worth.
func (r *Reader) Consult(ctx context.Context, oracle, token model.Token, amountIn *big.Int) (*big.Int, error) {
	parsed, err := OracleABI()
	if err != nil {
		return nil, fmt.Errorf("parse oracle abi: %w", err)
	}
	values, err := r.call(ctx, oracle.Address(), parsed, "consult", token.Address(), amountIn)
	if err != nil {
		return nil, err
	}
	out, err := asBigInt(values[0])
	if err != nil {
		return nil, fmt.Errorf("consult: %w", err)
	}
	return out, nil
}

// PoolSnapshot reads pair state plus the decimals of both constituents.
func (r *Reader) PoolSnapshot(ctx context.Context, pool model.Token) (model.PoolSnapshot, error) {
	parsed, err := PairABI()
	if err != nil {
		return model.PoolSnapshot{}, fmt.Errorf("parse pair abi: %w", err)
	}

	var (
		token0, token1     common.Address
		reserve0, reserve1 *big.Int
		totalSupply        *big.Int
		shareDecimals      uint8
	)
	address := pool.Address()

	g, gctx := errgroup.WithContext(ctx)
	goSafe(g, func() error {
		values, err := r.call(gctx, address, parsed, "token0")
		if err != nil {
			return err
		}
		token0, err = asAddress(values[0])
		return err
	})
	goSafe(g, func() error {
		values, err := r.call(gctx, address, parsed, "token1")
		if err != nil {
			return err
		}
		token1, err = asAddress(values[0])
		return err
	})
	goSafe(g, func() error {
		values, err := r.call(gctx, address, parsed, "getReserves")
		if err != nil {
			return err
		}
		if len(values) < 2 {
			return fmt.Errorf("getReserves return size %d", len(values))
		}
		if reserve0, err = asBigInt(values[0]); err != nil {
			return fmt.Errorf("reserve0: %w", err)
		}
		if reserve1, err = asBigInt(values[1]); err != nil {
			return fmt.Errorf("reserve1: %w", err)
		}
		return nil
	})
	goSafe(g, func() error {
		values, err := r.call(gctx, address, parsed, "totalSupply")
		if err != nil {
			return err
		}
		totalSupply, err = asBigInt(values[0])
		return err
	})
	goSafe(g, func() error {
		values, err := r.call(gctx, address, parsed, "decimals")
		if err != nil {
			return err
		}
		shareDecimals, err = asUint8(values[0])
		return err
	})
	if err := g.Wait(); err != nil {
		return model.PoolSnapshot{}, fmt.Errorf("read pool %s: %w", pool, err)
	}

	snap := model.PoolSnapshot{
		Pool:          pool,
		TokenA:        tokenOf(token0),
		TokenB:        tokenOf(token1),
		ReserveA:      reserve0,
		ReserveB:      reserve1,
		TotalSupply:   totalSupply,
		ShareDecimals: shareDecimals,
	}

	var metaA, metaB model.TokenMeta
	g, gctx = errgroup.WithContext(ctx)
	goSafe(g, func() error {
		var err error
		metaA, err = r.TokenMeta(gctx, snap.TokenA)
		return err
	})
	goSafe(g, func() error {
		var err error
		metaB, err = r.TokenMeta(gctx, snap.TokenB)
		return err
	})
	if err := g.Wait(); err != nil {
		return model.PoolSnapshot{}, fmt.Errorf("read pool %s token decimals: %w", pool, err)
	}
	snap.DecimalsA = metaA.Decimals
	snap.DecimalsB = metaB.Decimals

	return snap, nil
}

// Symbol returns the ERC20 symbol of token, empty when the contract exposes none.
func (r *Reader) Symbol(ctx context.Context, token model.Token) (string, error) {
	meta, err := r.TokenMeta(ctx, token)
	if err != nil {
		return "", err
	}
	return meta.Symbol, nil
}

// TokenMeta loads token metadata via ERC20 calls. Results are cached; only a
// decimals failure is an error since symbol and name are optional in ERC20.
func (r *Reader) TokenMeta(ctx context.Context, token model.Token) (model.TokenMeta, error) {
	if meta, ok := r.meta.Get(token); ok {
		return meta, nil
	}

	meta := model.TokenMeta{Address: token}
	stringABI, err := ERC20ABI()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 string abi: %w", err)
	}
	bytes32ABI, err := erc20ABIBytes32.get()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}
	address := token.Address()

	values, err := r.call(ctx, address, stringABI, "decimals")
	if err != nil {
		return meta, err
	}
	if meta.Decimals, err = asUint8(values[0]); err != nil {
		return meta, fmt.Errorf("decimals: %w", err)
	}

	if values, err := r.call(ctx, address, stringABI, "symbol"); err == nil {
		if symbol, ok := values[0].(string); ok {
			meta.Symbol = symbol
		}
	} else if values, err := r.call(ctx, address, bytes32ABI, "symbol"); err == nil {
		if symbol, ok := bytes32ToString(values[0]); ok {
			meta.Symbol = symbol
		}
	} else {
		r.logger.Debug("symbol call failed", zap.String("token", token.String()), zap.Error(err))
	}

	if values, err := r.call(ctx, address, stringABI, "name"); err == nil {
		if name, ok := values[0].(string); ok {
			meta.Name = name
		}
	} else {
		r.logger.Debug("name call failed", zap.String("token", token.String()), zap.Error(err))
	}

	r.meta.Set(token, meta)
	return meta, nil
}

// call packs, executes and unpacks one view call. Throttling errors are
// retried with backoff; everything else fails on the first attempt.
func (r *Reader) call(ctx context.Context, to common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	if r.caller == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &to, Data: data}

	var resp []byte
	err = withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, IsRateLimited, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
		defer cancel()

		var err error
		resp, err = r.caller.CallContract(callCtx, msg, nil)
		if err != nil && IsRateLimited(err) {
			r.logger.Warn("rpc rate limited", zap.String("method", method), zap.String("to", to.Hex()), zap.Error(err))
		}
		return err
	})
	if err != nil {
		metrics.ChainCalls.WithLabelValues(method, "error").Inc()
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	metrics.ChainCalls.WithLabelValues(method, "ok").Inc()

	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("unpack %s: empty result", method)
	}
	return values, nil
}

// TokenMetaCache caches token metadata by address.
type TokenMetaCache struct {
	mu   sync.RWMutex
	data map[model.Token]model.TokenMeta
}

func NewTokenMetaCache() *TokenMetaCache {
	return &TokenMetaCache{data: make(map[model.Token]model.TokenMeta)}
}

func (c *TokenMetaCache) Get(token model.Token) (model.TokenMeta, bool) {
	c.mu.RLock()
	meta, ok := c.data[token]
	c.mu.RUnlock()
	return meta, ok
}

func (c *TokenMetaCache) Set(token model.Token, meta model.TokenMeta) {
	c.mu.Lock()
	c.data[token] = meta
	c.mu.Unlock()
}

// goSafe runs fn on g and returns a panic raised by fn (for example while
// unpacking an unexpected return value) as that call's error.
func goSafe(g *errgroup.Group, fn func() error) {
	g.Go(func() (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("contract read panicked: %v", rec)
			}
		}()
		return fn()
	})
}

func tokenOf(address common.Address) model.Token {
	return model.MustToken(address.Hex())
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case uint16:
		return uint8(v), nil
	case uint32:
		return uint8(v), nil
	case uint64:
		return uint8(v), nil
	case *big.Int:
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}
