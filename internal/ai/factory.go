// factory.go - Builds provider adapters and dispatchers from configuration

package ai

import (
	"fmt"
	"log"

	"github.com/bosocmputer/statement_ledger/configs"
)

// CreateProviders creates one adapter per supported provider.
func CreateProviders(cfg *configs.Config) []Provider {
	return []Provider{
		NewGeminiProvider(cfg.CallTimeout, cfg.MaxOutputTokens),
		NewMistralProvider(cfg.CallTimeout, cfg.MaxOutputTokens),
	}
}

// ModelSpecs converts configured tiers to dispatcher model specs.
func ModelSpecs(tiers []configs.ModelTier) []ModelSpec {
	specs := make([]ModelSpec, 0, len(tiers))
	for _, t := range tiers {
		specs = append(specs, ModelSpec{Provider: t.Provider, Name: t.Model, Label: t.Label})
	}
	return specs
}

// RetryFromConfig returns the dispatcher retry policy.
func RetryFromConfig(cfg *configs.Config) RetryConfig {
	retry := DefaultRetryConfig
	if cfg.RetryMaxAttempts > 0 {
		retry.MaxAttempts = cfg.RetryMaxAttempts
	}
	if cfg.RetryInitialDelay > 0 {
		retry.InitialDelay = cfg.RetryInitialDelay
	}
	if cfg.RetryMaxDelay > 0 {
		retry.MaxDelay = cfg.RetryMaxDelay
	}
	return retry
}

// NewDispatchers creates the extraction and vision dispatchers sharing one
// set of adapters, credentials and rate limiter.
func NewDispatchers(cfg *configs.Config, limiter Waiter) (text, vision *Dispatcher, err error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("nil config")
	}
	providers := CreateProviders(cfg)
	retry := RetryFromConfig(cfg)

	text = NewDispatcher(providers, ModelSpecs(cfg.ModelTiers), cfg.APIKeys, retry)
	vision = NewDispatcher(providers, ModelSpecs(cfg.VisionTiers), cfg.APIKeys, retry)
	if limiter != nil {
		text.WithLimiter(limiter)
		vision.WithLimiter(limiter)
	}

	for _, m := range text.Models() {
		log.Printf("🔵 Extraction tier: %s (%s/%s, %d key(s))", m.Label, m.Provider, m.Name, len(cfg.APIKeys[m.Provider]))
	}
	for _, m := range vision.Models() {
		log.Printf("🔷 Vision tier: %s (%s/%s, %d key(s))", m.Label, m.Provider, m.Name, len(cfg.APIKeys[m.Provider]))
	}
	return text, vision, nil
}
