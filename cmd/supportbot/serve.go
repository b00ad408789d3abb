package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"techsupport.dev/assistant/internal/api"
	"techsupport.dev/assistant/internal/auth"
	"techsupport.dev/assistant/internal/config"
	"techsupport.dev/assistant/internal/core"
	"techsupport.dev/assistant/internal/knowledge"
	"techsupport.dev/assistant/internal/session"
	"techsupport.dev/assistant/internal/store"
)

func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the support assistant HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configErr != nil {
				return configErr
			}
			return serve()
		},
	}
}

func serve() error {
	cfg := config.AppConfig
	ctx := context.Background()

	// The dataset is served whenever the store cannot answer.
	ds, err := knowledge.LoadDataset(cfg.KnowledgeData)
	if err != nil {
		return err
	}
	patterns, err := buildPatterns(ds)
	if err != nil {
		return err
	}

	dbStore, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		return errors.WithMessage(err, "failed to initialize database")
	}
	defer dbStore.Close()

	if cfg.SeedIfEmpty {
		n, err := ds.Seed(ctx, dbStore)
		if err != nil {
			log.WithError(err).Warn("could not seed knowledge base, continuing with fallback data")
		} else if n > 0 {
			log.WithField("questions", n).Info("seeded empty knowledge base")
		}
		if err := ensureAdmin(ctx, dbStore); err != nil {
			log.WithError(err).Warn("could not create admin account")
		}
	}

	sessions, err := newSessionStore(ctx, cfg)
	if err != nil {
		return err
	}
	if c, ok := sessions.(io.Closer); ok {
		defer c.Close()
	}

	repo := knowledge.NewRepository(dbStore, ds, cfg.KnowledgeTimeout)
	assistant := core.NewAssistant(repo, core.NewMatcher(patterns))
	chatService := core.NewChatService(assistant, sessions, dbStore, cfg.TypingDelay)

	// Initialize API Handler and Router
	tokens := auth.NewTokenManager(cfg.JWTSecret, auth.DefaultTokenTTL)
	apiHandler := api.NewAPIHandler(chatService, repo, dbStore, tokens, sessions)
	router := api.NewRouter(apiHandler, prometheus.DefaultRegisterer)

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Serve our metrics endpoint for prometheus to scrape
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.MetricsPort),
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("metrics listener stopped")
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting server on %s. Press Ctrl+C to quit.", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- errors.Wrapf(err, "could not listen on %s", serverAddr)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return err
	}
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("metrics listener forced to shutdown")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "server forced to shutdown")
	}

	log.Info("Server exiting gracefully")
	return nil
}

func newSessionStore(ctx context.Context, cfg config.Config) (session.Store, error) {
	if cfg.RedisURL == "" {
		log.Info("keeping sessions in memory")
		return session.NewMemoryStore(), nil
	}

	rs, err := session.NewRedisStore(cfg.RedisURL, cfg.SessionTTL)
	if err != nil {
		return nil, err
	}
	if err := rs.Ping(ctx); err != nil {
		return nil, err
	}
	log.Info("keeping sessions in redis")
	return rs, nil
}
