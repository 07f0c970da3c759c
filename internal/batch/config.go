package batch

import (
	"github.com/bosocmputer/statement_ledger/configs"
	"github.com/bosocmputer/statement_ledger/internal/ledger"
	"github.com/shopspring/decimal"
)

// OptionsFromConfig maps process configuration onto manager options.
func OptionsFromConfig(cfg *configs.Config) Options {
	tolerance, err := decimal.NewFromString(cfg.BalanceTolerance)
	if err != nil {
		tolerance = decimal.NewFromInt(1)
	}
	return Options{
		ChunkSize:       cfg.ChunkSize,
		HeaderLines:     cfg.HeaderLines,
		InterChunkDelay: cfg.InterChunkDelay,
		Tolerance:       tolerance,
		Convention:      ledger.ParseConvention(cfg.AmountConvention),
		Language:        cfg.UILanguage,
		IdleTTL:         DefaultIdleTTL,
	}
}
