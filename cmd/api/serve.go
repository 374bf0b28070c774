package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pagekit/api/internal/app"
	"pagekit/api/internal/cache"
	"pagekit/api/internal/config"
	"pagekit/api/internal/logging"
	"pagekit/api/internal/search"
	"pagekit/api/internal/store"
)

func newServeCmd(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfg)
		},
	}
}

// runtime holds the backends shared by serve and run.
type runtime struct {
	service   *app.Service
	templates *search.Service
	closers   []func()
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

func openRuntime(ctx context.Context, cfg config.Config) (*runtime, error) {
	log := logging.FromContext(ctx)

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	rt := &runtime{closers: []func(){func() { _ = db.Close() }}}

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		rt.Close()
		return nil, fmt.Errorf("migrations failed: %w", err)
	}

	dataStore := store.NewPostgresStore(db)

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, *log)
		rt.closers = append(rt.closers, meiliClient.Close)
	}
	searchService := search.NewService(meiliClient, dataStore)

	var invalidator cache.Invalidator = cache.Noop{}
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisCache, err := cache.NewRedisCache(cfg.RedisURL)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		rt.closers = append(rt.closers, func() { _ = redisCache.Close() })
		invalidator = redisCache
		log.Info().Msg("using redis for css cache invalidation")
	}

	rt.templates = searchService
	rt.service = app.New(cfg, dataStore, searchService, invalidator)
	return rt, nil
}

func serve(ctx context.Context, cfg config.Config) error {
	log := logging.FromContext(ctx)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	rt.service.Bootstrap(ctx)
	go rt.templates.Run(ctx)

	if cfg.File != "" {
		err := config.Watch(ctx, cfg.File, func(next config.Config) {
			logging.SetLevel(next.LogLevel)
		})
		if err != nil {
			log.Warn().Err(err).Str("path", cfg.File).Msg("config watch disabled")
		}
	}

	baseCtx := context.WithoutCancel(ctx)
	httpServer := app.NewHTTPServer(rt.service, cfg.TokenSecret, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("pagekit api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(baseCtx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	log.Info().Msg("pagekit api stopped")
	return nil
}
