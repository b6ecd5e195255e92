package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"priceScope/internal/model"
)

func runResolve(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	tokens, err := tokensFromArgs(args, cfg.Tokens)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		return fmt.Errorf("at least one token is required")
	}

	ctx, stop := signalContext()
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	outcomes := a.resolver.ResolveMany(ctx, tokens)

	enc := json.NewEncoder(cmd.OutOrStdout())
	seen := make(map[model.Token]struct{}, len(tokens))
	for _, token := range tokens {
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		if err := enc.Encode(model.PriceRecord{Token: token, PriceOutcome: outcomes[token]}); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}
	return nil
}
