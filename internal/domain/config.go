package domain

import "time"

// Config is the top-level application configuration, loaded by
// internal/config from environment variables (prefix ONCOPURPOSE_) and
// an optional YAML file.
type Config struct {
	Environment string          `mapstructure:"environment"`
	Server      ServerConfig    `mapstructure:"server"`
	Corpus      CorpusConfig    `mapstructure:"corpus"`
	Cache       CacheConfig     `mapstructure:"cache"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Auth        AuthConfig      `mapstructure:"auth"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
	External    ExternalConfig  `mapstructure:"external"`
	Logging     LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig is the contract-level HTTP server configuration.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// CorpusConfig points at the on-disk curated datasets.
type CorpusConfig struct {
	Dir string `mapstructure:"dir"`
}

// CacheConfig configures the Redis-backed Cache Layer. An empty URL
// disables the cache; callers degrade gracefully.
type CacheConfig struct {
	URL               string        `mapstructure:"url"`
	TTLDrugDetails    time.Duration `mapstructure:"ttl_drug_details"`
	TTLSearchResults  time.Duration `mapstructure:"ttl_search_results"`
	TTLMarketAnalysis time.Duration `mapstructure:"ttl_market_analysis"`
	TTLPaperSummaries time.Duration `mapstructure:"ttl_paper_summaries"`
}

// DatabaseConfig configures the Analysis Store's durable backend. An
// empty URL disables durability; writes fall back to an ephemeral store.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// AuthConfig configures refresh-token lifetimes.
type AuthConfig struct {
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
}

// RateLimitConfig configures per-tier hourly admission limits.
type RateLimitConfig struct {
	Basic        int `mapstructure:"basic"`
	Professional int `mapstructure:"professional"`
	WindowSize   int `mapstructure:"window_size"`
}

// ExternalConfig configures the shared timeout, the live-evidence
// fan-out deadline, and per-fetcher concurrency bounds.
type ExternalConfig struct {
	Timeout                   time.Duration `mapstructure:"timeout"`
	LiveEvidenceDeadline      time.Duration `mapstructure:"live_evidence_deadline"`
	PubMedConcurrency         int           `mapstructure:"pubmed_concurrency"`
	ClinicalTrialsConcurrency int           `mapstructure:"clinicaltrials_concurrency"`
	DrugBankConcurrency       int           `mapstructure:"drugbank_concurrency"`
	DrugBankAPIKey            string        `mapstructure:"drugbank_api_key"`
	PubMedAPIKey              string        `mapstructure:"pubmed_api_key"`
	PubMedEmail               string        `mapstructure:"pubmed_email"`
}

// LoggingConfig configures the process-wide logrus logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
