package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/oncopurpose/repurposing-engine/internal/domain"
	"github.com/spf13/viper"
)

// Manager implements domain.ConfigManager using Viper.
type Manager struct {
	config *domain.Config
}

// NewManager creates a new configuration manager, loading defaults,
// an optional YAML file, and ONCOPURPOSE_-prefixed environment overrides.
func NewManager() (*Manager, error) {
	m := &Manager{}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

func (m *Manager) loadConfig() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/oncopurpose/")

	viper.SetEnvPrefix("ONCOPURPOSE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	m.setDefaults()
	bindFlatEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := viper.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	applyFlatEnvOverrides(config)

	m.config = config
	return nil
}

// bindFlatEnv registers the flat environment-variable names from the
// deployment contract against viper's key space, so they override the
// nested mapstructure defaults.
func bindFlatEnv() {
	pairs := map[string]string{
		"environment":                              "ENVIRONMENT",
		"corpus.dir":                               "CORPUS_DIR",
		"cache.url":                                "CACHE_URL",
		"database.url":                             "DATABASE_URL",
		"auth.access_token_ttl_minutes":             "ACCESS_TOKEN_TTL_MINUTES",
		"auth.refresh_token_ttl_days":               "REFRESH_TOKEN_TTL_DAYS",
		"rate_limit.basic":                          "RATE_LIMIT_BASIC",
		"rate_limit.professional":                   "RATE_LIMIT_PRO",
		"external.timeout_seconds":                  "EXTERNAL_TIMEOUT_SECONDS",
		"external.live_evidence_deadline_seconds":   "LIVE_EVIDENCE_DEADLINE_SECONDS",
		"external.pubmed_concurrency":                "PUBMED_CONCURRENCY",
		"external.clinicaltrials_concurrency":        "CLINICALTRIALS_CONCURRENCY",
		"external.drugbank_concurrency":              "DRUGBANK_CONCURRENCY",
		"cache.ttl_drug_details_seconds":             "CACHE_TTL_DRUG_DETAILS",
		"cache.ttl_search_results_seconds":           "CACHE_TTL_SEARCH_RESULTS",
		"cache.ttl_market_analysis_seconds":          "CACHE_TTL_MARKET_ANALYSIS",
		"cache.ttl_paper_summaries_seconds":          "CACHE_TTL_PAPER_SUMMARIES",
	}
	for key, env := range pairs {
		_ = viper.BindEnv(key, env)
	}
}

// applyFlatEnvOverrides copies the flat, seconds/minutes/days-denominated
// environment keys bound above onto the structured, time.Duration-typed
// Config.
func applyFlatEnvOverrides(cfg *domain.Config) {
	if v := viper.GetString("environment"); v != "" {
		cfg.Environment = v
	}
	if v := viper.GetString("corpus.dir"); v != "" {
		cfg.Corpus.Dir = v
	}
	if v := viper.GetString("cache.url"); v != "" {
		cfg.Cache.URL = v
	}
	if v := viper.GetString("database.url"); v != "" {
		cfg.Database.URL = v
	}
	if viper.IsSet("auth.access_token_ttl_minutes") {
		cfg.Auth.AccessTokenTTL = minutesToDuration(viper.GetInt("auth.access_token_ttl_minutes"))
	}
	if viper.IsSet("auth.refresh_token_ttl_days") {
		cfg.Auth.RefreshTokenTTL = daysToDuration(viper.GetInt("auth.refresh_token_ttl_days"))
	}
	if viper.IsSet("rate_limit.basic") {
		cfg.RateLimit.Basic = viper.GetInt("rate_limit.basic")
	}
	if viper.IsSet("rate_limit.professional") {
		cfg.RateLimit.Professional = viper.GetInt("rate_limit.professional")
	}
	if viper.IsSet("external.timeout_seconds") {
		cfg.External.Timeout = secondsToDuration(viper.GetInt("external.timeout_seconds"))
	}
	if viper.IsSet("external.live_evidence_deadline_seconds") {
		cfg.External.LiveEvidenceDeadline = secondsToDuration(viper.GetInt("external.live_evidence_deadline_seconds"))
	}
	if viper.IsSet("external.pubmed_concurrency") {
		cfg.External.PubMedConcurrency = viper.GetInt("external.pubmed_concurrency")
	}
	if viper.IsSet("external.clinicaltrials_concurrency") {
		cfg.External.ClinicalTrialsConcurrency = viper.GetInt("external.clinicaltrials_concurrency")
	}
	if viper.IsSet("external.drugbank_concurrency") {
		cfg.External.DrugBankConcurrency = viper.GetInt("external.drugbank_concurrency")
	}
	if viper.IsSet("cache.ttl_drug_details_seconds") {
		cfg.Cache.TTLDrugDetails = secondsToDuration(viper.GetInt("cache.ttl_drug_details_seconds"))
	}
	if viper.IsSet("cache.ttl_search_results_seconds") {
		cfg.Cache.TTLSearchResults = secondsToDuration(viper.GetInt("cache.ttl_search_results_seconds"))
	}
	if viper.IsSet("cache.ttl_market_analysis_seconds") {
		cfg.Cache.TTLMarketAnalysis = secondsToDuration(viper.GetInt("cache.ttl_market_analysis_seconds"))
	}
	if viper.IsSet("cache.ttl_paper_summaries_seconds") {
		cfg.Cache.TTLPaperSummaries = secondsToDuration(viper.GetInt("cache.ttl_paper_summaries_seconds"))
	}
}

func secondsToDuration(n int) time.Duration { return time.Duration(n) * time.Second }
func minutesToDuration(n int) time.Duration { return time.Duration(n) * time.Minute }
func daysToDuration(n int) time.Duration    { return time.Duration(n) * 24 * time.Hour }

// setDefaults sets the default TTL, tier-limit, and fetcher-bound
// policies.
func (m *Manager) setDefaults() {
	viper.SetDefault("environment", "development")

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")

	viper.SetDefault("corpus.dir", "./data/corpus")

	viper.SetDefault("cache.url", "")
	viper.SetDefault("cache.ttl_drug_details", "24h")
	viper.SetDefault("cache.ttl_search_results", "1h")
	viper.SetDefault("cache.ttl_market_analysis", "168h")
	viper.SetDefault("cache.ttl_paper_summaries", "720h")

	viper.SetDefault("database.url", "")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")

	viper.SetDefault("auth.access_token_ttl", "15m")
	viper.SetDefault("auth.refresh_token_ttl", "720h")

	viper.SetDefault("rate_limit.basic", 100)
	viper.SetDefault("rate_limit.professional", 1000)
	viper.SetDefault("rate_limit.window_size", 3600)

	viper.SetDefault("external.timeout", "30s")
	viper.SetDefault("external.live_evidence_deadline", "10s")
	viper.SetDefault("external.pubmed_concurrency", 3)
	viper.SetDefault("external.clinicaltrials_concurrency", 5)
	viper.SetDefault("external.drugbank_concurrency", 2)
	viper.SetDefault("external.pubmed_api_key", "")
	viper.SetDefault("external.pubmed_email", "")
	viper.SetDefault("external.drugbank_api_key", "")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

// GetConfig returns the complete configuration.
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// Reload reloads the configuration from its sources.
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration. An unset corpus directory is
// caught here, before the Corpus Loader runs at startup.
func (m *Manager) Validate() error {
	cfg := m.config

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	if cfg.Corpus.Dir == "" {
		return fmt.Errorf("corpus directory is required")
	}
	if cfg.RateLimit.Basic <= 0 {
		return fmt.Errorf("rate_limit.basic must be positive")
	}
	if cfg.RateLimit.Professional <= 0 {
		return fmt.Errorf("rate_limit.professional must be positive")
	}
	if cfg.External.PubMedConcurrency <= 0 || cfg.External.ClinicalTrialsConcurrency <= 0 || cfg.External.DrugBankConcurrency <= 0 {
		return fmt.Errorf("external fetcher concurrency bounds must be positive")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(cfg.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", cfg.Logging.Level)
	}

	return nil
}

// GetCacheConnectionString returns the configured cache URL, empty when
// the Cache Layer is disabled.
func (m *Manager) GetCacheConnectionString() string {
	return m.config.Cache.URL
}

// GetDatabaseConnectionString returns the configured database URL, empty
// when the Analysis Store runs in ephemeral mode.
func (m *Manager) GetDatabaseConnectionString() string {
	return m.config.Database.URL
}

// IsProduction returns true if running in production mode.
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.config.Environment) == "production"
}

// IsDevelopment returns true if running in development mode.
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.config.Environment)
	return env == "development" || env == "dev" || env == ""
}
