package config

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Generation providers.
const (
	ProviderGroq      = "groq"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Search providers.
const (
	SearchSerper = "serper"
	SearchJina   = "jina"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Generation GenerationConfig `yaml:"generation" mapstructure:"generation"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the record store. Database maps to the Postgres
// schema and Table to the collection holding topper records.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Database    string `yaml:"database" mapstructure:"database"`
	Table       string `yaml:"table" mapstructure:"table"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// SearchConfig configures the research collector and its provider.
type SearchConfig struct {
	Provider        string  `yaml:"provider" mapstructure:"provider"`
	Key             string  `yaml:"key" mapstructure:"key"`
	BaseURL         string  `yaml:"base_url" mapstructure:"base_url"`
	Exam            string  `yaml:"exam" mapstructure:"exam"`
	ResultsPerQuery int     `yaml:"results_per_query" mapstructure:"results_per_query"`
	TimeoutSecs     int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MinDelayMs      int     `yaml:"min_delay_ms" mapstructure:"min_delay_ms"`
	MaxDelayMs      int     `yaml:"max_delay_ms" mapstructure:"max_delay_ms"`
	MaxEvidence     int     `yaml:"max_evidence" mapstructure:"max_evidence"`
	RateLimitRPS    float64 `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`

	BreakerThreshold int `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs int `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// GenerationConfig configures the text-generation provider.
type GenerationConfig struct {
	Provider        string  `yaml:"provider" mapstructure:"provider"`
	Key             string  `yaml:"key" mapstructure:"key"`
	URL             string  `yaml:"url" mapstructure:"url"`
	Model           string  `yaml:"model" mapstructure:"model"`
	MaxTokens       int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature     float64 `yaml:"temperature" mapstructure:"temperature"`
	TimeoutSecs     int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts     int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	DefaultWaitSecs float64 `yaml:"default_wait_secs" mapstructure:"default_wait_secs"`
}

// BatchConfig configures batch selection and worker concurrency.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
	Limit       int `yaml:"limit" mapstructure:"limit"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("TOPPERS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database", "public")
	v.SetDefault("store.table", "toppers")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("search.provider", SearchSerper)
	v.SetDefault("search.exam", "UPSC")
	v.SetDefault("search.results_per_query", 8)
	v.SetDefault("search.timeout_secs", 20)
	v.SetDefault("search.min_delay_ms", 250)
	v.SetDefault("search.max_delay_ms", 500)
	v.SetDefault("search.max_evidence", 20)
	v.SetDefault("search.rate_limit_rps", 0)
	v.SetDefault("search.breaker_threshold", 10)
	v.SetDefault("search.breaker_reset_secs", 30)
	v.SetDefault("generation.provider", ProviderGroq)
	v.SetDefault("generation.model", "llama-3.3-70b-versatile")
	v.SetDefault("generation.max_tokens", 2048)
	v.SetDefault("generation.temperature", 0.4)
	v.SetDefault("generation.timeout_secs", 120)
	v.SetDefault("generation.max_attempts", 3)
	v.SetDefault("generation.default_wait_secs", 6)
	v.SetDefault("batch.concurrency", 1)
	v.SetDefault("batch.limit", 50)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// AutomaticEnv only resolves keys viper already knows about; keys without
	// a default need an explicit binding to be picked up from the environment.
	for _, key := range []string{
		"store.database_url",
		"search.key",
		"search.base_url",
		"generation.key",
		"generation.url",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the values an enrichment run cannot start without. Each
// missing value produces its own message naming the environment variable.
func (c *Config) Validate() error {
	type check struct {
		value any
		rules []validation.Rule
	}
	checks := []check{
		{c.Store.DatabaseURL, []validation.Rule{
			validation.Required.Error("TOPPERS_STORE_DATABASE_URL is required"),
		}},
		{c.Store.Table, []validation.Rule{
			validation.Required.Error("TOPPERS_STORE_TABLE is required"),
		}},
		{c.Store.Driver, []validation.Rule{
			validation.In("postgres", "sqlite").Error("TOPPERS_STORE_DRIVER must be postgres or sqlite"),
		}},
		{c.Search.Key, []validation.Rule{
			validation.Required.Error("TOPPERS_SEARCH_KEY is required"),
		}},
		{c.Search.Provider, []validation.Rule{
			validation.In(SearchSerper, SearchJina).Error("TOPPERS_SEARCH_PROVIDER must be serper or jina"),
		}},
		{c.Generation.Key, []validation.Rule{
			validation.Required.Error("TOPPERS_GENERATION_KEY is required"),
		}},
		{c.Generation.Provider, []validation.Rule{
			validation.In(ProviderGroq, ProviderAnthropic, ProviderGemini).
				Error("TOPPERS_GENERATION_PROVIDER must be groq, anthropic, or gemini"),
		}},
		{c.Generation.Model, []validation.Rule{
			validation.Required.Error("TOPPERS_GENERATION_MODEL is required"),
		}},
		{c.Batch.Concurrency, []validation.Rule{
			validation.Required.Error("TOPPERS_BATCH_CONCURRENCY must be at least 1"),
			validation.Min(1).Error("TOPPERS_BATCH_CONCURRENCY must be at least 1"),
		}},
	}
	if c.Generation.Provider == ProviderGroq {
		checks = append(checks, check{c.Generation.URL, []validation.Rule{
			validation.Required.Error("TOPPERS_GENERATION_URL is required"),
		}})
	}

	var msgs []string
	for _, chk := range checks {
		if err := validation.Validate(chk.value, chk.rules...); err != nil {
			msgs = append(msgs, err.Error())
		}
	}
	if len(msgs) > 0 {
		return eris.Errorf("config: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// ValidateStore checks only the store settings, for commands that never call
// the search or generation providers.
func (c *Config) ValidateStore() error {
	if err := validation.Validate(c.Store.DatabaseURL,
		validation.Required.Error("TOPPERS_STORE_DATABASE_URL is required"),
	); err != nil {
		return eris.Errorf("config: %s", err.Error())
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
