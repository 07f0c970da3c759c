package configs

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseModelTiers(t *testing.T) {
	tiers, err := ParseModelTiers("gemini:gemini-2.5-pro:Pro, mistral:mistral-large-latest")
	if err != nil {
		t.Fatalf("ParseModelTiers: %v", err)
	}
	if len(tiers) != 2 {
		t.Fatalf("tiers got=%d want=2", len(tiers))
	}
	if tiers[0].Label != "Pro" || tiers[0].Provider != ProviderGemini {
		t.Errorf("tier 0 got %+v", tiers[0])
	}
	if tiers[1].Label != "mistral-large-latest" {
		t.Errorf("tier 1 label got %q, want model name", tiers[1].Label)
	}
}

func TestParseModelTiersRejectsUnknownProvider(t *testing.T) {
	if _, err := ParseModelTiers("openai:gpt-4o"); err == nil {
		t.Fatal("expected error for unknown provider")
	}
	if _, err := ParseModelTiers("gemini"); err == nil {
		t.Fatal("expected error for missing model")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEYS", "k1, k2")
	t.Setenv("MISTRAL_API_KEYS", "")
	t.Setenv("MODEL_TIERS", "")
	t.Setenv("MODEL_TIERS_FILE", "")
	t.Setenv("INTER_CHUNK_DELAY", "250")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if got := cfg.APIKeys[ProviderGemini]; len(got) != 2 || got[1] != "k2" {
		t.Errorf("gemini keys got %v", got)
	}
	if len(cfg.ModelTiers) != 3 {
		t.Errorf("default tiers got=%d want=3", len(cfg.ModelTiers))
	}
	if cfg.InterChunkDelay != 250*time.Millisecond {
		t.Errorf("InterChunkDelay got %v", cfg.InterChunkDelay)
	}
	if cfg.HeaderLines != 10 || cfg.RetryMaxAttempts != 3 {
		t.Errorf("defaults got header=%d attempts=%d", cfg.HeaderLines, cfg.RetryMaxAttempts)
	}
}

func TestValidateRequiresUsableTier(t *testing.T) {
	cfg := &Config{
		APIKeys:          map[string][]string{ProviderMistral: {"m"}},
		ModelTiers:       []ModelTier{{Provider: ProviderGemini, Model: "gemini-2.5-pro", Label: "Pro"}},
		RetryMaxAttempts: 3,
		AmountConvention: "gross",
		BalanceTolerance: "1",
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when no tier has a key")
	}
	cfg.APIKeys[ProviderGemini] = []string{"g"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	cfg.AmountConvention = "other"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown amount convention")
	}
}

func TestLoadTierFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiers.yaml")
	body := "text:\n  - provider: gemini\n    model: gemini-2.5-flash\n    label: Flash\nvision:\n  - provider: mistral\n    model: pixtral-large-latest\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	text, vision, err := LoadTierFile(path)
	if err != nil {
		t.Fatalf("LoadTierFile: %v", err)
	}
	if len(text) != 1 || text[0].Label != "Flash" {
		t.Errorf("text tiers got %+v", text)
	}
	if len(vision) != 1 || vision[0].Label != "pixtral-large-latest" {
		t.Errorf("vision tiers got %+v", vision)
	}
}
