// Package config loads runtime configuration from config.yaml, environment
// variables, and built-in defaults, in ascending order of precedence
// (defaults < file < env). Environment variables use the DEALFLOW_ prefix
// with underscores, e.g. DEALFLOW_SERPAPI_KEY, DEALFLOW_STORE_DRIVER.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config is the top-level runtime configuration for the dealflow CLI.
//
// Scoring weights and thresholds are deliberately not part of this file:
// they live in their own strict-JSON file (scoring.config_path) so a
// scoring run is reproducible from a single artifact. This config only
// points at that file.
type Config struct {
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Sites      SitesConfig      `yaml:"sites" mapstructure:"sites"`
	Scoring    ScoringConfig    `yaml:"scoring" mapstructure:"scoring"`
	SerpAPI    SerpAPIConfig    `yaml:"serpapi" mapstructure:"serpapi"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Enrich     EnrichConfig     `yaml:"enrich" mapstructure:"enrich"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Geocode    GeocodeConfig    `yaml:"geocode" mapstructure:"geocode"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Export     ExportConfig     `yaml:"export" mapstructure:"export"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
}

// LogConfig controls the global zap logger.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json or console
}

// StoreConfig selects the persistence backend. The sqlite driver expects a
// file path in DatabaseURL; the postgres driver expects a pgx connection URL.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // sqlite or postgres
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// SitesConfig points at the source catalogue.
type SitesConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ScoringConfig points at the scoring weight file.
type ScoringConfig struct {
	ConfigPath string `yaml:"config_path" mapstructure:"config_path"`
}

// SerpAPIConfig configures the Google search client. PolitenessMS is the
// minimum gap between consecutive searches; SerpAPI meters by monthly
// volume rather than rate, so the gap mostly keeps us a polite tenant.
type SerpAPIConfig struct {
	Key          string `yaml:"key" mapstructure:"key"`
	BaseURL      string `yaml:"base_url" mapstructure:"base_url"`
	Num          int    `yaml:"num" mapstructure:"num"`
	PolitenessMS int    `yaml:"politeness_ms" mapstructure:"politeness_ms"`
	TimeoutSecs  int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries   int    `yaml:"max_retries" mapstructure:"max_retries"`
}

// FetchConfig configures the bulk feed fetcher behind `dealflow import`.
type FetchConfig struct {
	TimeoutSecs int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int `yaml:"max_retries" mapstructure:"max_retries"`
}

// EnrichConfig gates the LLM financial-extraction pass.
type EnrichConfig struct {
	Enabled     bool `yaml:"enabled" mapstructure:"enabled"`
	Concurrency int  `yaml:"concurrency" mapstructure:"concurrency"`
}

// AnthropicConfig configures the Claude client used for enrichment.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// GeocodeConfig configures listing geocoding. UserAgent is mandatory for
// the Nominatim fallback per the OSM usage policy; the built-in gazetteer
// needs nothing.
type GeocodeConfig struct {
	Enabled      bool   `yaml:"enabled" mapstructure:"enabled"`
	BaseURL      string `yaml:"base_url" mapstructure:"base_url"`
	UserAgent    string `yaml:"user_agent" mapstructure:"user_agent"`
	RatePerSec   int    `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	CacheTTLDays int    `yaml:"cache_ttl_days" mapstructure:"cache_ttl_days"`
}

// NotionConfig configures the Notion deal-board sink.
type NotionConfig struct {
	Token      string `yaml:"token" mapstructure:"token"`
	DealDB     string `yaml:"deal_db" mapstructure:"deal_db"`
	RatePerSec int    `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// SalesforceConfig configures the Salesforce lead sink (JWT bearer flow).
type SalesforceConfig struct {
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	Username string `yaml:"username" mapstructure:"username"`
	KeyPath  string `yaml:"key_path" mapstructure:"key_path"`
	LoginURL string `yaml:"login_url" mapstructure:"login_url"`
}

// PipelineConfig controls the run command. Concurrency bounds how many
// sources are searched in parallel; the SerpAPI politeness gap is still
// enforced globally across all of them.
type PipelineConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// ExportConfig controls where run artifacts land.
type ExportConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// ServerConfig configures `dealflow serve`.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// Load reads config.yaml from the working directory or ~/.dealflow (if
// present), applies environment overrides, and fills defaults for
// everything else. A missing config file is not an error; a malformed
// one is.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.dealflow")

	v.SetEnvPrefix("DEALFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: failed to read config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: failed to unmarshal config")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "dealflow.db")

	v.SetDefault("sites.path", "sites.yaml")
	v.SetDefault("scoring.config_path", "scoring_config.json")

	v.SetDefault("serpapi.base_url", "https://serpapi.com/search")
	v.SetDefault("serpapi.num", 10)
	v.SetDefault("serpapi.politeness_ms", 1500)
	v.SetDefault("serpapi.timeout_secs", 15)
	v.SetDefault("serpapi.max_retries", 3)

	v.SetDefault("fetch.timeout_secs", 60)
	v.SetDefault("fetch.max_retries", 3)

	v.SetDefault("enrich.enabled", false)
	v.SetDefault("enrich.concurrency", 3)

	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)

	v.SetDefault("geocode.enabled", true)
	v.SetDefault("geocode.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocode.user_agent", "dealflow-cli/1.0 (deals@seqcapital.com.au)")
	v.SetDefault("geocode.rate_per_sec", 1)
	v.SetDefault("geocode.cache_ttl_days", 90)

	v.SetDefault("notion.rate_per_sec", 3)

	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")

	v.SetDefault("pipeline.concurrency", 2)

	v.SetDefault("export.dir", "data")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
}

// InitLogger builds the global zap logger from LogConfig and installs it
// via zap.ReplaceGlobals, so packages can use zap.L() without plumbing.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrapf(err, "config: invalid log level %q", cfg.Level)
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: failed to build logger")
	}
	zap.ReplaceGlobals(logger)
	return nil
}
