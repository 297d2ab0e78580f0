package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/treerag/internal/config"
	dbRedis "github.com/kailas-cloud/treerag/internal/db/redis"
	"github.com/kailas-cloud/treerag/internal/domain"
	rel "github.com/kailas-cloud/treerag/internal/domain/relevance"
	logpkg "github.com/kailas-cloud/treerag/internal/logger"
	"github.com/kailas-cloud/treerag/internal/metrics"
	auditrepo "github.com/kailas-cloud/treerag/internal/repository/audit"
	documentrepo "github.com/kailas-cloud/treerag/internal/repository/document"
	"github.com/kailas-cloud/treerag/internal/repository/embcache"
	chiTransport "github.com/kailas-cloud/treerag/internal/transport/chi"
	openaiTransport "github.com/kailas-cloud/treerag/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/treerag/internal/usecase/embedding"
	"github.com/kailas-cloud/treerag/internal/usecase/filter"
	healthuc "github.com/kailas-cloud/treerag/internal/usecase/health"
	judgeuc "github.com/kailas-cloud/treerag/internal/usecase/judge"
	"github.com/kailas-cloud/treerag/internal/usecase/navigator"
	"github.com/kailas-cloud/treerag/internal/usecase/relevance"
	retrievaluc "github.com/kailas-cloud/treerag/internal/usecase/retrieval"
	"github.com/kailas-cloud/treerag/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting treerag API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.String("mode", string(cfg.Traversal.Mode)),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
		DB:       cfg.Database.DB,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	// Wait for database to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterJudgeMetrics()
	metrics.RegisterTraversalMetrics()

	// Semantic scorer: embeddings when configured, keyword overlap otherwise.
	// Nil interfaces (not typed nil pointers) keep the fallbacks working.
	var (
		semantic        relevance.SemanticScorer
		embeddingHealth healthuc.ProviderChecker
	)
	if cfg.Embedding.Provider != "" {
		provCfg := cfg.Providers[cfg.Embedding.Provider]
		base := buildEmbedder(cfg.Embedding, provCfg, store, cfg.Storage.KeyPrefix, logger)
		semantic = relevance.NewEmbeddingScorer(withInstruction(base, cfg.Embedding.DocumentInstruction), logger).
			WithQueryEmbedder(withInstruction(base, cfg.Embedding.QueryInstruction))
		embeddingHealth = base
		logger.Info("Embedder created",
			zap.String("provider", cfg.Embedding.Provider),
			zap.String("model", cfg.Embedding.Model),
			zap.Int("dimensions", cfg.Embedding.Dimensions),
		)
	}

	var (
		judge       domain.Judge
		judgeHealth healthuc.ProviderChecker
	)
	if cfg.Judge.Provider != "" {
		ij := buildJudge(cfg.Judge, cfg.Providers[cfg.Judge.Provider], logger)
		judge = ij
		judgeHealth = ij
		logger.Info("Relevance judge created",
			zap.String("provider", cfg.Judge.Provider),
			zap.String("model", cfg.Judge.Model),
		)
	}

	tc := cfg.Traversal
	weights, err := rel.NewWeights(tc.SemanticWeight, tc.StructuralWeight, tc.ContextualWeight)
	if err != nil {
		logger.Fatal("Invalid relevance weights", zap.Error(err))
	}
	model := relevance.New(relevance.Config{
		Weights:    weights,
		DepthDecay: tc.DepthDecay,
		MaxDepth:   tc.MaxDepth,
	}, semantic)

	gate, err := filter.New(filter.Config{
		LLMWeight:           tc.LLMWeight,
		KeywordWeight:       tc.KeywordWeight,
		ConfidenceThreshold: tc.ConfidenceThreshold,
	})
	if err != nil {
		logger.Fatal("Invalid filter config", zap.Error(err))
	}

	nav := navigator.New(model, gate, judge)
	retrievalSvc := retrievaluc.New(documentrepo.New(store, cfg.Storage.KeyPrefix), nav, model, gate,
		retrievaluc.Config{
			MaxDepth:    tc.MaxDepth,
			MaxBranches: tc.MaxBranches,
			Mode:        tc.Mode,
			Concurrency: tc.Concurrency,
			ReportLimit: 10,
		})

	if cfg.Audit.SQLitePath != "" {
		audit, err := auditrepo.Open(cfg.Audit.SQLitePath)
		if err != nil {
			logger.Fatal("Failed to open audit store", zap.Error(err))
		}
		defer func() { _ = audit.Close() }()
		retrievalSvc.WithAudit(audit)
		logger.Info("Decision audit enabled", zap.String("path", cfg.Audit.SQLitePath))
	}

	healthSvc := healthuc.New(store, judgeHealth, embeddingHealth)

	server := chiTransport.NewServer(retrievalSvc, healthSvc, logger).WithMaxBodyBytes(cfg.HTTP.MaxBodyBytes)

	r := chi.NewRouter()
	r.Use(chiTransport.JSONRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(chiTransport.WideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instrumented.
// Instruction prefixes are applied on top by the caller, so cache keys include them.
func buildEmbedder(
	ec config.EmbeddingConfig,
	provCfg config.ProviderConfig,
	store *dbRedis.Store,
	keyPrefix string,
	logger *zap.Logger,
) *embeddinguc.InstrumentedEmbedder {
	// Base provider (with transport metrics built-in)
	base := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     provCfg.APIKey,
		BaseURL:    provCfg.BaseURL,
		Model:      ec.Model,
		Dimensions: ec.Dimensions,
		Provider:   ec.Provider,
		Logger:     logger,
	})

	cached := embcache.New(base, store, keyPrefix,
		time.Duration(ec.CacheTTLHours)*time.Hour, metrics.EmbeddingCacheTotal, logger)

	return embeddinguc.NewInstrumentedEmbedder(cached, ec.Provider, ec.Model, logger)
}

func withInstruction(e domain.Embedder, instruction string) domain.Embedder {
	if instruction == "" {
		return e
	}
	return domain.NewInstructionEmbedder(e, instruction)
}

// buildJudge assembles OpenAI -> Instrumented (timeout, panic containment, verdict metrics).
func buildJudge(jc config.JudgeConfig, provCfg config.ProviderConfig, logger *zap.Logger) *judgeuc.InstrumentedJudge {
	base := openaiTransport.NewJudge(&openaiTransport.JudgeConfig{
		APIKey:      provCfg.APIKey,
		BaseURL:     provCfg.BaseURL,
		Model:       jc.Model,
		Provider:    jc.Provider,
		MaxTokens:   jc.MaxTokens,
		Temperature: jc.Temperature,
		Logger:      logger,
	})
	return judgeuc.NewInstrumentedJudge(base, jc.Provider, jc.Model,
		time.Duration(jc.TimeoutSec)*time.Second, logger)
}
