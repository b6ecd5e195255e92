package pricing

import (
	"fmt"
	"strings"

	"priceScope/internal/model"
)

// Category selects the pricing strategy for a token.
type Category int

const (
	CategoryGeneric Category = iota
	CategoryStable
	CategoryOracle
	CategoryPoolShare
	CategoryDerivedPool
)

func (c Category) String() string {
	switch c {
	case CategoryGeneric:
		return "generic"
	case CategoryStable:
		return "stable"
	case CategoryOracle:
		return "oracle"
	case CategoryPoolShare:
		return "pool-share"
	case CategoryDerivedPool:
		return "derived-pool"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// Source is the outcome source a successful resolution in c carries.
func (c Category) Source() model.Source {
	switch c {
	case CategoryOracle:
		return model.SourceOracle
	case CategoryPoolShare:
		return model.SourcePoolReserves
	case CategoryDerivedPool:
		return model.SourceDerivedPool
	default:
		return model.SourceExternalFeed
	}
}

// OracleAsset is quoted by a TWAP oracle in units of Quote.
type OracleAsset struct {
	Token         model.Token
	Oracle        model.Token
	Quote         model.Token
	Decimals      uint8
	QuoteDecimals uint8
}

// DerivedAsset is priced through the reserve ratio of Pool.
type DerivedAsset struct {
	Token model.Token
	Pool  model.Token
}

type TableConfig struct {
	Stable  []model.Token
	Oracle  []OracleAsset
	Pools   []model.Token
	Derived []DerivedAsset
	// PoolSymbolMarker marks unlisted tokens as pool shares when their
	// symbol contains it. Empty disables symbol probing.
	PoolSymbolMarker string
}

// Table maps well-known identities to categories. It is immutable after
// construction.
type Table struct {
	categories map[model.Token]Category
	oracle     map[model.Token]OracleAsset
	derived    map[model.Token]DerivedAsset
	marker     string
}

// NewTable builds a Table; a token may appear in only one category.
func NewTable(cfg TableConfig) (*Table, error) {
	t := &Table{
		categories: make(map[model.Token]Category),
		oracle:     make(map[model.Token]OracleAsset),
		derived:    make(map[model.Token]DerivedAsset),
		marker:     strings.ToUpper(cfg.PoolSymbolMarker),
	}

	for _, token := range cfg.Stable {
		if err := t.add(token, CategoryStable); err != nil {
			return nil, err
		}
	}
	for _, asset := range cfg.Oracle {
		if asset.Oracle == "" || asset.Quote == "" {
			return nil, fmt.Errorf("oracle asset %s needs oracle and quote", asset.Token)
		}
		if asset.Quote == asset.Token {
			return nil, fmt.Errorf("oracle asset %s cannot be quoted in itself", asset.Token)
		}
		if err := t.add(asset.Token, CategoryOracle); err != nil {
			return nil, err
		}
		t.oracle[asset.Token] = asset
	}
	for _, token := range cfg.Pools {
		if err := t.add(token, CategoryPoolShare); err != nil {
			return nil, err
		}
	}
	for _, asset := range cfg.Derived {
		if asset.Pool == "" {
			return nil, fmt.Errorf("derived asset %s needs a pool", asset.Token)
		}
		if err := t.add(asset.Token, CategoryDerivedPool); err != nil {
			return nil, err
		}
		t.derived[asset.Token] = asset
	}
	return t, nil
}

func (t *Table) add(token model.Token, category Category) error {
	if token == "" {
		return fmt.Errorf("empty token in %s table", category)
	}
	if existing, ok := t.categories[token]; ok {
		return fmt.Errorf("token %s listed as both %s and %s", token, existing, category)
	}
	t.categories[token] = category
	return nil
}

// Classify looks token up without any I/O. known is false for tokens that
// are not listed; those classify as generic.
func (t *Table) Classify(token model.Token) (category Category, known bool) {
	category, known = t.categories[token]
	if !known {
		return CategoryGeneric, false
	}
	return category, true
}

// ClassifySymbol classifies an unlisted token from its ERC20 symbol. The
// marker matches regardless of case.
func (t *Table) ClassifySymbol(symbol string) Category {
	if t.marker != "" && strings.Contains(strings.ToUpper(symbol), t.marker) {
		return CategoryPoolShare
	}
	return CategoryGeneric
}

// ProbesSymbols reports whether unlisted tokens need a symbol read.
func (t *Table) ProbesSymbols() bool {
	return t.marker != ""
}

func (t *Table) Oracle(token model.Token) (OracleAsset, bool) {
	asset, ok := t.oracle[token]
	return asset, ok
}

func (t *Table) Derived(token model.Token) (DerivedAsset, bool) {
	asset, ok := t.derived[token]
	return asset, ok
}
