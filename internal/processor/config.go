package processor

import (
	"github.com/bosocmputer/statement_ledger/configs"
	"github.com/bosocmputer/statement_ledger/internal/ledger"
)

// OptionsFromConfig maps process configuration onto processor options.
func OptionsFromConfig(cfg *configs.Config) Options {
	return Options{
		Convention:        ledger.ParseConvention(cfg.AmountConvention),
		PreprocessImages:  cfg.EnableImagePreprocessing,
		MaxImageDimension: cfg.MaxImageDimension,
		Language:          cfg.UILanguage,
	}
}
