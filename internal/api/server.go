package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/oncopurpose/repurposing-engine/internal/auth"
	"github.com/oncopurpose/repurposing-engine/internal/domain"
	"github.com/oncopurpose/repurposing-engine/internal/middleware"
	"github.com/sirupsen/logrus"
)

// Server is the HTTP surface over the Query Orchestrator and the
// refresh-token lifecycle.
type Server struct {
	configManager domain.ConfigManager
	orchestrator  domain.QueryOrchestrator
	rateLimiter   domain.RateLimiter
	tokens        *auth.RefreshTokenManager
	log           *logrus.Logger

	router *gin.Engine
	server *http.Server
}

// NewServer wires the configured dependencies into the Gin router and
// returns a Server ready to Start.
func NewServer(configManager domain.ConfigManager, orchestrator domain.QueryOrchestrator, rateLimiter domain.RateLimiter, tokens *auth.RefreshTokenManager, log *logrus.Logger) *Server {
	cfg := configManager.GetConfig()

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.AuditLogger())
	router.Use(middleware.RequestTimeout(cfg.Server.ReadTimeout))
	router.Use(corsMiddleware())

	s := &Server{
		configManager: configManager,
		orchestrator:  orchestrator,
		rateLimiter:   rateLimiter,
		tokens:        tokens,
		log:           log,
		router:        router,
	}
	s.setupRoutes()
	return s
}

// Start runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetConfig().Server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	v1.Use(s.rateLimitMiddleware())
	{
		v1.GET("/search", s.handleSearch)
		v1.GET("/drugs/:name", s.handleDrugDetails)
		v1.GET("/mechanism", s.handleMechanismLookup)
		v1.GET("/stats", s.handleStats)
		v1.GET("/market-report", s.handleMarketReport)
		v1.POST("/auth/login", s.handleLogin)
		v1.POST("/auth/refresh", s.handleRefresh)
		v1.POST("/auth/revoke", s.handleRevoke)
	}
}

// rateLimitMiddleware admits requests identified by API key header
// (falling back to client IP) at the basic tier absent a tier claim.
// Health, docs, and metrics paths never reach this group.
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := c.GetHeader("X-API-Key")
		if identity == "" {
			identity = c.ClientIP()
		}
		tier := domain.TierBasic
		if c.GetHeader("X-API-Tier") == string(domain.TierProfessional) {
			tier = domain.TierProfessional
		}

		decision, err := s.rateLimiter.Admit(c.Request.Context(), identity, tier)
		if err != nil {
			s.log.WithError(err).Warn("api: rate limiter admission failed, allowing request")
			c.Next()
			return
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		if !decision.Allowed {
			c.Header("Retry-After", strconv.FormatInt(decision.RetryAfter, 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": decision.RetryAfter,
			})
			return
		}
		c.Next()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

// handleSearch runs the Query Orchestrator's composed search operation.
func (s *Server) handleSearch(c *gin.Context) {
	query := c.Query("q")
	req := domain.SearchRequest{
		QueryTerms: query,
		Filters: domain.SearchFilters{
			OncologyOnly: c.Query("oncology_only") == "true",
		},
		Page: domain.Pagination{
			Offset: queryInt(c, "offset", 0),
			Limit:  queryInt(c, "limit", 50),
		},
	}
	if minConf := c.Query("min_confidence"); minConf != "" {
		if v, err := strconv.ParseFloat(minConf, 64); err == nil {
			req.Filters.MinConfidence = &v
		}
	}
	for _, p := range c.QueryArray("phase") {
		req.Filters.PhaseIn = append(req.Filters.PhaseIn, domain.NormalizeClinicalPhase(p))
	}

	wantLive := c.Query("live") == "true"
	persist := c.Query("persist") == "true"

	result, err := s.orchestrator.Query(c.Request.Context(), req, wantLive, persist, c.GetString("correlation_id"), c.GetHeader("X-Subject"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"matches":        result.Matches,
		"cache_hit":      result.CacheHit,
		"data_sources":   result.DataSources,
		"degraded":       result.Degraded,
		"elapsed_millis": result.ElapsedMillis,
	})
}

// handleDrugDetails looks a single drug up by name, joining its corpus
// record with any curated hero cases.
func (s *Server) handleDrugDetails(c *gin.Context) {
	details, err := s.orchestrator.DrugDetails(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

func (s *Server) handleMechanismLookup(c *gin.Context) {
	substring := c.Query("q")
	drugs, err := s.orchestrator.LookupMechanism(c.Request.Context(), substring)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"drugs": drugs})
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.orchestrator.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleMarketReport(c *gin.Context) {
	drugID := c.Query("drug_id")
	cancerType := c.Query("cancer_type")
	if drugID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "drug_id is required"})
		return
	}
	report, err := s.orchestrator.BuildMarketReport(c.Request.Context(), drugID, cancerType)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

type loginRequest struct {
	Subject string `json:"subject"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// tokenEnvelope is the response shape both login and refresh return.
// The access token is an opaque handle here; encoding it as a signed
// JWT is the identity provider's concern, not this service's.
func (s *Server) tokenEnvelope(jti string) gin.H {
	return gin.H{
		"access_token":  uuid.NewString(),
		"refresh_token": jti,
		"expires_in":    int(s.configManager.GetConfig().Auth.AccessTokenTTL.Seconds()),
	}
}

// handleLogin stands in for the out-of-scope credential check and
// issues the initial refresh token for a subject.
func (s *Server) handleLogin(c *gin.Context) {
	var body loginRequest
	if err := c.ShouldBindJSON(&body); err != nil || body.Subject == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "subject is required"})
		return
	}
	record, err := s.tokens.Issue(c.Request.Context(), body.Subject)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.tokenEnvelope(record.JTI))
}

// handleRefresh rotates a refresh token: the old jti becomes unusable
// and a fresh one is returned alongside a new access token.
func (s *Server) handleRefresh(c *gin.Context) {
	var body refreshRequest
	if err := c.ShouldBindJSON(&body); err != nil || body.RefreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "refresh_token is required"})
		return
	}

	record, err := s.tokens.Rotate(c.Request.Context(), body.RefreshToken)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.tokenEnvelope(record.JTI))
}

func (s *Server) handleRevoke(c *gin.Context) {
	var body refreshRequest
	if err := c.ShouldBindJSON(&body); err != nil || body.RefreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "refresh_token is required"})
		return
	}
	if err := s.tokens.Revoke(c.Request.Context(), body.RefreshToken); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

// respondError maps the domain's typed errors onto HTTP status codes.
func respondError(c *gin.Context, err error) {
	switch e := err.(type) {
	case *domain.ValidationError:
		c.JSON(http.StatusBadRequest, gin.H{"error": e.Error()})
	case *domain.NotFoundError:
		c.JSON(http.StatusNotFound, gin.H{"error": e.Error()})
	case *domain.RateLimitedError:
		c.Header("Retry-After", e.RetryAfter.String())
		c.JSON(http.StatusTooManyRequests, gin.H{"error": e.Error()})
	case *domain.ServiceError:
		if e.Code == domain.ErrAuthInvalid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": e.Message})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": e.Message})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-API-Key, X-API-Tier, X-Subject")
		c.Header("Access-Control-Expose-Headers", "Content-Length")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
