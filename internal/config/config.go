package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	LLM       LLMConfig       `yaml:"llm" mapstructure:"llm"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini    GeminiConfig    `yaml:"gemini" mapstructure:"gemini"`
	Render    RenderConfig    `yaml:"render" mapstructure:"render"`
	Templated TemplatedConfig `yaml:"templated" mapstructure:"templated"`
	Sheets    SheetsConfig    `yaml:"sheets" mapstructure:"sheets"`
	Recipes   RecipesConfig   `yaml:"recipes" mapstructure:"recipes"`
	Calc      CalcConfig      `yaml:"calc" mapstructure:"calc"`
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	OCR       OCRConfig       `yaml:"ocr" mapstructure:"ocr"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port                int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins      []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	ShutdownTimeoutSecs int      `yaml:"shutdown_timeout_secs" mapstructure:"shutdown_timeout_secs"`
	MaxUploadMB         int      `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
}

// LLMConfig selects the language model provider.
type LLMConfig struct {
	Provider    string `yaml:"provider" mapstructure:"provider"` // "gemini" or "anthropic"
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
}

// GeminiConfig holds Gemini API settings.
type GeminiConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	Model   string `yaml:"model" mapstructure:"model"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// RenderConfig points at the document rendering web app.
type RenderConfig struct {
	URL         string `yaml:"url" mapstructure:"url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// TemplatedConfig holds image-template API settings used by `generate`.
type TemplatedConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	DelayMS   int    `yaml:"delay_ms" mapstructure:"delay_ms"`
	OutputDir string `yaml:"output_dir" mapstructure:"output_dir"`
}

// SheetsConfig configures the project spreadsheet used for matching.
type SheetsConfig struct {
	Source          string `yaml:"source" mapstructure:"source"` // "", "google" or "xlsx"
	SpreadsheetID   string `yaml:"spreadsheet_id" mapstructure:"spreadsheet_id"`
	Range           string `yaml:"range" mapstructure:"range"`
	CredentialsFile string `yaml:"credentials_file" mapstructure:"credentials_file"`
	XLSXPath        string `yaml:"xlsx_path" mapstructure:"xlsx_path"`
	Sheet           string `yaml:"sheet" mapstructure:"sheet"`
	CacheTTLMins    int    `yaml:"cache_ttl_mins" mapstructure:"cache_ttl_mins"`
}

// RecipesConfig locates templates, their recipes and the template-set catalog.
type RecipesConfig struct {
	TemplateRoot string `yaml:"template_root" mapstructure:"template_root"`
	CatalogPath  string `yaml:"catalog_path" mapstructure:"catalog_path"`
	CacheTTLMins int    `yaml:"cache_ttl_mins" mapstructure:"cache_ttl_mins"`
}

// CalcConfig configures number normalization.
type CalcConfig struct {
	SeparatorPolicy string   `yaml:"separator_policy" mapstructure:"separator_policy"`
	CurrencyCodes   []string `yaml:"currency_codes" mapstructure:"currency_codes"`
}

// ListFieldConfig names a record-list field and its columns.
type ListFieldConfig struct {
	Name    string   `yaml:"name" mapstructure:"name"`
	Columns []string `yaml:"columns" mapstructure:"columns"`
}

// ExtractConfig configures the extraction prompt.
type ExtractConfig struct {
	ListFields []ListFieldConfig `yaml:"list_fields" mapstructure:"list_fields"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// OCRConfig configures upload text extraction.
type OCRConfig struct {
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	TimeoutSecs   int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// RetryConfig configures retries of outbound HTTP calls.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMS int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMS     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
	FailureThreshold int     `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int     `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// Load reads configuration from .env, config.yaml and the environment.
func Load() (*Config, error) {
	// .env is optional; real environment variables take precedence.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("DOCFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout_secs", 10)
	v.SetDefault("server.max_upload_mb", 20)
	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.timeout_secs", 120)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 8192)
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("render.timeout_secs", 120)
	v.SetDefault("templated.base_url", "https://api.templated.io/v1")
	v.SetDefault("templated.delay_ms", 1000)
	v.SetDefault("templated.output_dir", ".")
	v.SetDefault("sheets.range", "A:Z")
	v.SetDefault("sheets.cache_ttl_mins", 10)
	v.SetDefault("recipes.template_root", "templates")
	v.SetDefault("recipes.cache_ttl_mins", 10)
	v.SetDefault("calc.separator_policy", "strip_dot")
	v.SetDefault("calc.currency_codes", []string{"IDR", "Rp"})
	v.SetDefault("extract.list_fields", []map[string]any{
		{"name": "Bukti_BA", "columns": []string{"NO", "OBJEK", "JUMLAH", "DETAIL"}},
		{"name": "Pembelian", "columns": []string{"NO", "OBJEK", "JUMLAH", "DETAIL"}},
	})
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "docforge.db")
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("ocr.timeout_secs", 60)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 10000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("retry.failure_threshold", 5)
	v.SetDefault("retry.reset_timeout_secs", 30)

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

// Validate checks the settings required by a command mode ("serve",
// "extract", "generate" or "local" for commands that only touch recipes and
// the store). All problems are reported together.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.LLM.Provider {
	case "gemini", "anthropic":
	default:
		errs = append(errs, fmt.Sprintf("llm.provider %q must be gemini or anthropic", c.LLM.Provider))
	}
	switch c.Store.Driver {
	case "sqlite", "postgres", "memory":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite, postgres or memory", c.Store.Driver))
	}
	switch c.Calc.SeparatorPolicy {
	case "strip_dot", "keep_dot":
	default:
		errs = append(errs, fmt.Sprintf("calc.separator_policy %q must be strip_dot or keep_dot", c.Calc.SeparatorPolicy))
	}
	switch c.Sheets.Source {
	case "", "google", "xlsx":
	default:
		errs = append(errs, fmt.Sprintf("sheets.source %q must be google or xlsx", c.Sheets.Source))
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Render.URL == "" {
			errs = append(errs, "render.url is required")
		}
		errs = append(errs, c.llmKeyErrors()...)
	case "extract":
		errs = append(errs, c.llmKeyErrors()...)
	case "generate":
		if c.Templated.Key == "" {
			errs = append(errs, "templated.key is required")
		}
	case "local":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) llmKeyErrors() []string {
	switch c.LLM.Provider {
	case "anthropic":
		if c.Anthropic.Key == "" {
			return []string{"anthropic.key is required"}
		}
	case "gemini":
		if c.Gemini.Key == "" {
			return []string{"gemini.key is required"}
		}
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
