package cmd

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/cookbook/internal/config"
	"github.com/kailas-cloud/cookbook/internal/db/postgres"
	dbValkey "github.com/kailas-cloud/cookbook/internal/db/valkey"
	"github.com/kailas-cloud/cookbook/internal/domain"
	logpkg "github.com/kailas-cloud/cookbook/internal/logger"
	"github.com/kailas-cloud/cookbook/internal/metrics"
	"github.com/kailas-cloud/cookbook/internal/repository/embcache"
	"github.com/kailas-cloud/cookbook/internal/repository/lexical"
	reciperepo "github.com/kailas-cloud/cookbook/internal/repository/recipe"
	"github.com/kailas-cloud/cookbook/internal/repository/vector"
	openaiEmb "github.com/kailas-cloud/cookbook/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/cookbook/internal/usecase/embedding"
	indexeruc "github.com/kailas-cloud/cookbook/internal/usecase/indexer"
	reconcileruc "github.com/kailas-cloud/cookbook/internal/usecase/reconciler"
)

// vectorIndex is what the composition root needs from either vector driver.
type vectorIndex interface {
	EnsureCollection(ctx context.Context) error
	Upsert(ctx context.Context, p domain.VectorPoint) error
	Query(ctx context.Context, vec []float32, limit int, minScore float64) ([]domain.VectorHit, error)
	Delete(ctx context.Context, id int64) error
	Ping(ctx context.Context) error
}

// app holds the wired backends shared by all commands.
type app struct {
	env    string
	cfg    config.Config
	logger *zap.Logger

	db      *postgres.DB
	kv      *dbValkey.Store
	lexical *lexical.Index
	vector  vectorIndex
	recipes *reciperepo.Repo

	// provider is the raw embedding client, nil when embedding is disabled.
	provider *openaiEmb.Embedder
}

// newApp loads the configuration and connects to PostgreSQL. Search backends are opened by openIndexes.
func newApp(ctx context.Context, env string) (*app, error) {
	cfg, err := config.Load(env)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	pg, err := postgres.New(ctx, postgres.Config{DSN: cfg.Database.DSN, MaxConns: cfg.Database.MaxConns})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := pg.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		pg.Close()
		return nil, fmt.Errorf("database not ready: %w", err)
	}
	logger.Info("Connected to database")

	return &app{
		env:     env,
		cfg:     cfg,
		logger:  logger,
		db:      pg,
		recipes: reciperepo.New(pg.Pool(), cfg.Database.Channel),
	}, nil
}

// openIndexes opens the lexical index, the vector driver and the embedding provider.
func (a *app) openIndexes(ctx context.Context) error {
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterPipelineMetrics()

	lex, err := lexical.Open(a.cfg.Lexical.Path, a.logger)
	if err != nil {
		return fmt.Errorf("open lexical index: %w", err)
	}
	a.lexical = lex

	switch a.cfg.Vector.Driver {
	case config.VectorDriverValkey:
		kv, err := dbValkey.NewStore(dbValkey.Config{
			Addrs:    a.cfg.Vector.Addrs,
			Password: a.cfg.Vector.Password,
		})
		if err != nil {
			return fmt.Errorf("create valkey store: %w", err)
		}
		a.kv = kv
		if err := kv.WaitForReady(ctx, time.Duration(a.cfg.Database.ReadinessTimeout)*time.Second); err != nil {
			return fmt.Errorf("valkey not ready: %w", err)
		}
		a.vector = vector.NewStore(kv, a.cfg.Vector.IndexName).WithHNSW(vector.HNSWConfig{
			M:           a.cfg.Vector.HNSWM,
			EFConstruct: a.cfg.Vector.HNSWEFConstruct,
		})
	case config.VectorDriverMemory:
		a.vector = vector.NewMemory(a.cfg.Vector.HNSWM, a.cfg.Vector.HNSWEFSearch)
	}
	if err := a.vector.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("ensure vector index: %w", err)
	}

	if a.cfg.Embedding.Enabled() {
		emb := a.cfg.Embedding
		a.provider = openaiEmb.NewEmbedder(openaiEmb.Config{
			APIKey:     emb.APIKey,
			BaseURL:    emb.BaseURL,
			Model:      emb.Model,
			Dimensions: emb.Dimensions,
			Provider:   emb.Provider,
			Timeout:    time.Duration(emb.TimeoutSec) * time.Second,
		}, a.logger)
	}

	a.logger.Info("Search backends ready",
		zap.String("vector_driver", a.cfg.Vector.Driver),
		zap.String("lexical_path", a.cfg.Lexical.Path),
		zap.Bool("embedding", a.provider != nil),
	)
	return nil
}

// volatileIndexes reports whether a restart loses index contents.
func (a *app) volatileIndexes() bool {
	return a.cfg.Vector.Driver == config.VectorDriverMemory || a.cfg.Lexical.Path == ""
}

// embedder assembles the decorator chain: OpenAI -> Cached -> Instrumented -> Instruction.
// Returns nil when embedding is disabled.
func (a *app) embedder(instruction string) domain.Embedder {
	if a.provider == nil {
		return nil
	}
	emb := a.cfg.Embedding

	var e domain.Embedder = a.provider
	if emb.Cache && a.kv != nil {
		e = embcache.New(e, a.kv, embcache.Options{Model: emb.Model, TTL: emb.CacheTTL()},
			metrics.EmbeddingCacheTotal, a.logger)
	}

	e = embeddinguc.NewInstrumentedEmbedder(e, emb.Provider, emb.Model, emb.MaxConcurrency, a.logger)

	// Outermost, so the cache key includes the instruction.
	if instruction != "" {
		return domain.NewInstructionEmbedder(e, instruction)
	}
	return e
}

func (a *app) indexer() *indexeruc.Service {
	ic := a.cfg.Indexer
	return indexeruc.New(a.recipes, a.lexical, a.vector, a.logger).
		WithTimeout(ic.BackendTimeout()).
		WithRetry(ic.RetryAttempts, ic.RetryDelay()).
		WithVectorConcurrency(ic.VectorConcurrency)
}

func (a *app) reconciler(w reconcileruc.Writer) *reconcileruc.Service {
	ic := a.cfg.Indexer
	return reconcileruc.New(a.recipes, w, a.logger).
		WithBatchSize(ic.BatchSize).
		WithInterval(ic.Interval()).
		WithErrorBackoff(ic.ErrorBackoff())
}

func (a *app) close() {
	if a.lexical != nil {
		if err := a.lexical.Close(); err != nil {
			a.logger.Warn("close lexical index", zap.Error(err))
		}
	}
	if a.kv != nil {
		a.kv.Close()
	}
	a.db.Close()
	_ = a.logger.Sync()
}
