package main

import (
	"fmt"
	"io"
	"math/big"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"priceScope/internal/model"
)

func runPool(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	rawPool, _ := cmd.Flags().GetString("pool")
	pool, err := model.ParseToken(rawPool)
	if err != nil {
		return fmt.Errorf("--pool: %w", err)
	}
	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	withPrice, _ := cmd.Flags().GetBool("price")

	ctx, stop := signalContext()
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	snap, err := a.reader.PoolSnapshot(ctx, pool)
	if err != nil {
		return fmt.Errorf("read pool %s: %w", pool, err)
	}
	metaA, err := a.reader.TokenMeta(ctx, snap.TokenA)
	if err != nil {
		return err
	}
	metaB, err := a.reader.TokenMeta(ctx, snap.TokenB)
	if err != nil {
		return err
	}
	share, err := a.reader.TokenMeta(ctx, pool)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "pool        %s (%s)\n", pool, share.Symbol)
	fmt.Fprintf(out, "category    %s\n", a.resolver.Classify(ctx, pool))
	printSide(out, "token_a", metaA, snap.ReserveA)
	printSide(out, "token_b", metaB, snap.ReserveB)
	fmt.Fprintf(out, "supply      %s (raw %s, %d decimals)\n", human(snap.TotalSupply, snap.ShareDecimals), snap.TotalSupply, snap.ShareDecimals)

	if err := snap.Validate(); err != nil {
		fmt.Fprintf(out, "invalid     %v\n", err)
		return nil
	}
	if withPrice {
		outcome := a.resolver.ResolvePrice(ctx, pool)
		if outcome.OK() {
			fmt.Fprintf(out, "price_usd   %v (%s)\n", outcome.PriceUSD, outcome.Source)
		} else {
			fmt.Fprintf(out, "price_error %s (%s)\n", outcome.Error, outcome.Code)
		}
	}
	return nil
}

func printSide(out io.Writer, label string, meta model.TokenMeta, reserve *big.Int) {
	fmt.Fprintf(out, "%-11s %s %s reserve %s (raw %s, %d decimals)\n",
		label, meta.Address, meta.Symbol, human(reserve, meta.Decimals), reserve, meta.Decimals)
}

func human(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -int32(decimals)).String()
}
