package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/cookbook/internal/metrics"
	chiTransport "github.com/kailas-cloud/cookbook/internal/transport/chi"
	"github.com/kailas-cloud/cookbook/internal/version"
	healthuc "github.com/kailas-cloud/cookbook/internal/usecase/health"
	listeneruc "github.com/kailas-cloud/cookbook/internal/usecase/listener"
	recipeuc "github.com/kailas-cloud/cookbook/internal/usecase/recipe"
	searchuc "github.com/kailas-cloud/cookbook/internal/usecase/search"
)

func newServeCmd(env *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the change listener and the backlog reconciler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), *env)
		},
	}
}

func runServe(ctx context.Context, env string) error {
	a, err := newApp(ctx, env)
	if err != nil {
		return err
	}
	defer a.close()
	logger := a.logger
	cfg := a.cfg

	logger.Info("Starting cookbook API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
	)

	if err := a.openIndexes(ctx); err != nil {
		return err
	}

	if a.volatileIndexes() {
		n, err := a.recipes.MarkDirty(ctx, nil)
		if err != nil {
			return fmt.Errorf("schedule index rebuild: %w", err)
		}
		logger.Info("Rebuilding in-memory indexes", zap.Int64("recipes", n))
	}

	docEmbedder := a.embedder(cfg.Embedding.DocumentInstruction)
	queryEmbedder := a.embedder(cfg.Embedding.QueryInstruction)

	idx := a.indexer()
	rec := a.reconciler(idx)

	recipeSvc := recipeuc.New(a.recipes, a.lexical, a.vector, logger).
		WithPagination(cfg.Pagination.DefaultPageSize, cfg.Pagination.MaxPageSize)
	if cfg.Embedding.EmbedDocuments && docEmbedder != nil {
		recipeSvc.WithEmbedder(docEmbedder)
	}

	searchSvc := searchuc.New(a.lexical, a.vector, logger).
		WithLimits(cfg.Search.VectorLimit, cfg.Search.VectorMinScore, cfg.Search.LexicalLimit).
		WithTimeout(time.Duration(cfg.Search.TimeoutSec) * time.Second)
	if cfg.Search.EmbedQueries && queryEmbedder != nil {
		searchSvc.WithQueryEmbedder(queryEmbedder)
	}

	// Pass a nil interface, not a typed nil pointer, when embedding is off.
	var embChecker healthuc.EmbeddingChecker
	if a.provider != nil {
		embChecker = a.provider
	}
	healthSvc := healthuc.New(a.db, a.vector, a.lexical, embChecker)

	server := chiTransport.NewServer(recipeSvc, searchSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(chiTransport.JSONRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(chiTransport.WideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	server.Mount(r, cfg.Auth.APIKeys)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Received shutdown signal")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error during shutdown", zap.Error(err))
		}
		return nil
	})

	if !cfg.Listener.Disabled {
		backoff := listeneruc.Backoff{
			Initial:    time.Duration(cfg.Listener.BackoffInitialMs) * time.Millisecond,
			Max:        time.Duration(cfg.Listener.BackoffMaxMs) * time.Millisecond,
			Multiplier: 2,
		}
		g.Go(func() error {
			return listeneruc.Supervise(gctx, func(ctx context.Context) error {
				sub, err := a.db.Listen(ctx, cfg.Database.Channel)
				if err != nil {
					return fmt.Errorf("listen: %w", err)
				}
				defer sub.Close()
				return listeneruc.New(sub, idx, logger).Run(ctx)
			}, backoff, logger)
		})
	}

	g.Go(func() error {
		return rec.Run(gctx)
	})

	err = g.Wait()
	logger.Info("Server stopped gracefully")
	return err
}
