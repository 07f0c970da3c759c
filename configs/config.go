// config.go - Configuration loaded from environment variables

package configs

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Provider names understood by MODEL_TIERS.
const (
	ProviderGemini  = "gemini"
	ProviderMistral = "mistral"
)

const defaultModelTiers = "gemini:gemini-2.5-pro:Pro,gemini:gemini-2.5-flash:Flash,mistral:mistral-large-latest:Mistral"

const defaultVisionTiers = "gemini:gemini-2.5-flash:Flash Vision,mistral:pixtral-large-latest:Pixtral"

// ModelTier is one entry of the ordered model waterfall.
type ModelTier struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	Label    string `yaml:"label"`
}

// tierFile is the layout of MODEL_TIERS_FILE.
type tierFile struct {
	Text   []ModelTier `yaml:"text"`
	Vision []ModelTier `yaml:"vision"`
}

// Config is the immutable process configuration. Build it once with LoadConfig
// and pass it down; nothing mutates it afterwards.
type Config struct {
	// Credentials per provider, in priority order
	APIKeys map[string][]string

	// Ordered model waterfall for extraction and for vision OCR
	ModelTiers  []ModelTier
	VisionTiers []ModelTier

	// Chunking
	ChunkSize   int // 0 = suggest from document length, -1 = whole document
	HeaderLines int

	// Batch pacing and provider calls
	InterChunkDelay   time.Duration
	CallTimeout       time.Duration
	MaxOutputTokens   int
	RetryMaxAttempts  int
	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration
	RateLimitRPM      int

	// Reconciliation
	BalanceTolerance string
	AmountConvention string // "gross" or "net"

	// Image preprocessing settings
	EnableImagePreprocessing bool
	MaxImageDimension        int

	// Presentation
	UILanguage string

	// Server Configuration
	Port           string
	AllowedOrigins string

	// MongoDB Configuration; empty URI keeps batches in memory
	MongoURI    string
	MongoDBName string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		APIKeys: map[string][]string{
			ProviderGemini:  splitList(getEnv("GEMINI_API_KEYS", getEnv("GEMINI_API_KEY", ""))),
			ProviderMistral: splitList(getEnv("MISTRAL_API_KEYS", getEnv("MISTRAL_API_KEY", ""))),
		},

		ChunkSize:   getEnvInt("CHUNK_SIZE", 0),
		HeaderLines: getEnvInt("HEADER_LINES", 10),

		InterChunkDelay:   getEnvDuration("INTER_CHUNK_DELAY", 1500*time.Millisecond),
		CallTimeout:       getEnvDuration("CALL_TIMEOUT", 120*time.Second),
		MaxOutputTokens:   getEnvInt("MAX_OUTPUT_TOKENS", 16384),
		RetryMaxAttempts:  getEnvInt("RETRY_MAX_ATTEMPTS", 3),
		RetryInitialDelay: getEnvDuration("RETRY_INITIAL_DELAY", 2*time.Second),
		RetryMaxDelay:     getEnvDuration("RETRY_MAX_DELAY", 8*time.Second),
		RateLimitRPM:      getEnvInt("RATE_LIMIT_RPM", 12),

		BalanceTolerance: getEnv("BALANCE_TOLERANCE", "1"),
		AmountConvention: strings.ToLower(getEnv("AMOUNT_CONVENTION", "gross")),

		EnableImagePreprocessing: getEnvBool("ENABLE_IMAGE_PREPROCESSING", true),
		MaxImageDimension:        getEnvInt("MAX_IMAGE_DIMENSION", 2000),

		UILanguage: strings.ToLower(getEnv("UI_LANGUAGE", "en")),

		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "*"),

		MongoURI:    getEnv("MONGO_URI", ""),
		MongoDBName: getEnv("MONGO_DB_NAME", "statement_ledger"),
	}

	var err error
	if cfg.ModelTiers, err = ParseModelTiers(getEnv("MODEL_TIERS", defaultModelTiers)); err != nil {
		return nil, fmt.Errorf("MODEL_TIERS: %w", err)
	}
	if cfg.VisionTiers, err = ParseModelTiers(getEnv("VISION_MODEL_TIERS", defaultVisionTiers)); err != nil {
		return nil, fmt.Errorf("VISION_MODEL_TIERS: %w", err)
	}

	if path := getEnv("MODEL_TIERS_FILE", ""); path != "" {
		text, vision, err := LoadTierFile(path)
		if err != nil {
			return nil, err
		}
		if len(text) > 0 {
			cfg.ModelTiers = text
		}
		if len(vision) > 0 {
			cfg.VisionTiers = vision
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Println("✓ Configuration loaded successfully")
	return cfg, nil
}

// Validate checks that the waterfall can serve at least one call.
func (c *Config) Validate() error {
	if len(c.ModelTiers) == 0 {
		return errors.New("no model tiers configured")
	}
	usable := false
	for _, tier := range c.ModelTiers {
		if len(c.APIKeys[tier.Provider]) > 0 {
			usable = true
			break
		}
	}
	if !usable {
		return errors.New("no API key configured for any model tier (set GEMINI_API_KEYS or MISTRAL_API_KEYS)")
	}
	if c.HeaderLines < 0 {
		return fmt.Errorf("HEADER_LINES must be >= 0, got %d", c.HeaderLines)
	}
	if c.ChunkSize < -1 {
		return fmt.Errorf("CHUNK_SIZE must be -1, 0 or positive, got %d", c.ChunkSize)
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be >= 1, got %d", c.RetryMaxAttempts)
	}
	switch c.AmountConvention {
	case "gross", "net":
	default:
		return fmt.Errorf("AMOUNT_CONVENTION must be gross or net, got %q", c.AmountConvention)
	}
	if _, err := strconv.ParseFloat(c.BalanceTolerance, 64); err != nil {
		return fmt.Errorf("BALANCE_TOLERANCE: %w", err)
	}
	return nil
}

// ParseModelTiers reads "provider:model:label" entries separated by commas.
// The label is optional and defaults to the model name.
func ParseModelTiers(raw string) ([]ModelTier, error) {
	var tiers []ModelTier
	for _, entry := range splitList(raw) {
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) < 2 {
			return nil, fmt.Errorf("invalid tier %q, want provider:model[:label]", entry)
		}
		tier := ModelTier{
			Provider: strings.ToLower(strings.TrimSpace(parts[0])),
			Model:    strings.TrimSpace(parts[1]),
		}
		if len(parts) == 3 {
			tier.Label = strings.TrimSpace(parts[2])
		}
		if err := tier.normalize(); err != nil {
			return nil, err
		}
		tiers = append(tiers, tier)
	}
	return tiers, nil
}

// LoadTierFile reads a YAML file with `text:` and `vision:` tier lists.
func LoadTierFile(path string) (text, vision []ModelTier, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read MODEL_TIERS_FILE: %w", err)
	}
	var f tierFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, nil, fmt.Errorf("parse MODEL_TIERS_FILE: %w", err)
	}
	for i := range f.Text {
		if err := f.Text[i].normalize(); err != nil {
			return nil, nil, err
		}
	}
	for i := range f.Vision {
		if err := f.Vision[i].normalize(); err != nil {
			return nil, nil, err
		}
	}
	return f.Text, f.Vision, nil
}

func (t *ModelTier) normalize() error {
	t.Provider = strings.ToLower(strings.TrimSpace(t.Provider))
	switch t.Provider {
	case ProviderGemini, ProviderMistral:
	default:
		return fmt.Errorf("unknown provider %q", t.Provider)
	}
	if t.Model == "" {
		return fmt.Errorf("tier for provider %q has no model", t.Provider)
	}
	if t.Label == "" {
		t.Label = t.Model
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("1500ms") or bare milliseconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
