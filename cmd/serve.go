package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/lunarvale/tonearm/internal/repositories"
	"github.com/lunarvale/tonearm/internal/server"
	"github.com/lunarvale/tonearm/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/time/rate"
)

// Serve runs the local gateway server until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	host := cmd.String("host")
	if host == "" {
		host = r.config.Server.Host
	}
	port := r.config.Server.Port
	if p := cmd.Int("port"); p != 0 {
		port = int(p)
	}

	var cache *repositories.ResponseRepository
	if !cmd.Bool("no-cache") {
		db, err := shared.NewDatabase(r.config.Database.Path)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

		if err := shared.RunMigrations(db); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}

		cache = repositories.NewResponseRepository(db)
	}

	router := server.NewBasicRouter()
	router.Use(
		server.RequestID(),
		server.Logging(r.logger),
	)
	if r.config.Upstream.RateLimit > 0 {
		limiter := rate.NewLimiter(rate.Limit(r.config.Upstream.RateLimit), int(r.config.Upstream.RateLimit)+1)
		router.Use(server.Throttle(limiter))
	}

	router.Handler(&server.HealthHandler{})
	router.Handler(server.NewProxyHandler(server.ProxyHandlerOpts{
		Client:     r.api,
		Cache:      cache,
		TTLSeconds: r.config.Gateway.CacheTTLSeconds,
		Logger:     r.logger,
	}))

	addr := fmt.Sprintf("%s:%d", host, port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		r.logger.Info("gateway listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	r.logger.Info("shutting down gateway")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	return nil
}
