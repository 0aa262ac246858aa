package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oncopurpose/repurposing-engine/internal/api"
	"github.com/oncopurpose/repurposing-engine/internal/auth"
	"github.com/oncopurpose/repurposing-engine/internal/cache"
	"github.com/oncopurpose/repurposing-engine/internal/config"
	"github.com/oncopurpose/repurposing-engine/internal/corpus"
	"github.com/oncopurpose/repurposing-engine/internal/index"
	"github.com/oncopurpose/repurposing-engine/internal/orchestrator"
	"github.com/oncopurpose/repurposing-engine/internal/ratelimit"
	"github.com/oncopurpose/repurposing-engine/internal/scoring"
	"github.com/oncopurpose/repurposing-engine/internal/search"
	"github.com/oncopurpose/repurposing-engine/internal/store"
	"github.com/oncopurpose/repurposing-engine/pkg/fetchers"
	"github.com/sirupsen/logrus"
)

func main() {
	log := newLogger()

	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		log.Fatalf("configuration validation failed: %v", err)
	}
	cfg := configManager.GetConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.WithFields(logrus.Fields{"dir": cfg.Corpus.Dir}).Info("loading corpus")
	corpusLoader := corpus.New(log)
	loadedCorpus, err := corpusLoader.Load(ctx, cfg.Corpus.Dir)
	if err != nil {
		log.Fatalf("failed to load corpus: %v", err)
	}

	indexBuilder := index.New()
	idx, err := indexBuilder.Build(loadedCorpus)
	if err != nil {
		log.Fatalf("failed to build index: %v", err)
	}
	log.WithFields(logrus.Fields{
		"drugs":      len(loadedCorpus.Drugs),
		"hero_cases": len(loadedCorpus.HeroCases),
	}).Info("corpus indexed")

	scorer := scoring.New()
	searchEngine := search.New(idx, scorer)

	cacheLayer := cache.New(configManager.GetCacheConnectionString(), log)

	rateLimiter := ratelimit.New(
		configManager.GetCacheConnectionString(),
		int64(cfg.RateLimit.WindowSize),
		cfg.RateLimit.Basic,
		cfg.RateLimit.Professional,
		log,
	)

	fetcherService := fetchers.NewService(log,
		fetchers.NewPubMedFetcher(fetchers.PubMedConfig{
			APIKey:      cfg.External.PubMedAPIKey,
			Email:       cfg.External.PubMedEmail,
			Timeout:     cfg.External.Timeout,
			Concurrency: cfg.External.PubMedConcurrency,
		}),
		fetchers.NewClinicalTrialsFetcher(fetchers.ClinicalTrialsConfig{
			Timeout:     cfg.External.Timeout,
			Concurrency: cfg.External.ClinicalTrialsConcurrency,
		}),
		fetchers.NewDrugBankFetcher(fetchers.DrugBankConfig{
			APIKey:      cfg.External.DrugBankAPIKey,
			Timeout:     cfg.External.Timeout,
			Concurrency: cfg.External.DrugBankConcurrency,
		}),
	)

	ephemeralPath := os.Getenv("ONCOPURPOSE_EPHEMERAL_STORE_PATH")
	if ephemeralPath == "" {
		ephemeralPath = "./data/analysis-artifacts.db"
	}
	analysisStore, err := store.New(ctx, configManager.GetDatabaseConnectionString(), ephemeralPath, log)
	if err != nil {
		log.Fatalf("failed to initialize analysis store: %v", err)
	}
	defer analysisStore.Close()

	orch := orchestrator.New(orchestrator.Config{
		Index:                idx,
		Search:               searchEngine,
		Scorer:               scorer,
		Cache:                cacheLayer,
		Fetchers:             fetcherService,
		Store:                analysisStore,
		SearchTTLSeconds:     int(cfg.Cache.TTLSearchResults.Seconds()),
		MarketAnalysisTTLSec: int(cfg.Cache.TTLMarketAnalysis.Seconds()),
		LiveEvidenceDeadline: cfg.External.LiveEvidenceDeadline,
		Log:                  log,
	})

	tokenManager := auth.NewRefreshTokenManager(cacheLayer, cfg.Auth.RefreshTokenTTL, log)

	server := api.NewServer(configManager, orch, rateLimiter, tokenManager, log)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received, gracefully shutting down")
		cancel()
	}()

	log.WithFields(logrus.Fields{"host": cfg.Server.Host, "port": cfg.Server.Port}).Info("starting oncopurpose repurposing-engine server")
	if err := server.Start(ctx); err != nil {
		log.Fatalf("server failed: %v", err)
	}
	log.Info("server stopped")
}

func newLogger() *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	log.SetOutput(os.Stdout)
	return log
}
