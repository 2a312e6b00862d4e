// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lawdesk Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/lawdesk/lawdesk/internal/auth"
	"github.com/lawdesk/lawdesk/internal/auth/postgres"
	authredis "github.com/lawdesk/lawdesk/internal/auth/redis"
	"github.com/lawdesk/lawdesk/internal/config"
	"github.com/lawdesk/lawdesk/internal/httpapi"
	"github.com/lawdesk/lawdesk/internal/observability"
	"github.com/lawdesk/lawdesk/internal/store"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the credential API",
		Long: `Start the HTTP credential API and, when metrics.addr is set, the
metrics and health endpoints.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags, true)
			if err != nil {
				return err
			}
			return runServe(cmd, cfg)
		},
	}
}

func runServe(cmd *cobra.Command, cfg *config.Config) error {
	logger := setupLogging(cmd, cfg.Log)
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting credential service",
		"http_addr", cfg.HTTP.Addr,
		"metrics_addr", cfg.Metrics.Addr,
	)

	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()
	logger.Info("account store connected", "session_registry", cfg.Redis.Addr)

	var (
		obsServer *observability.Server
		metrics   *auth.Metrics
	)
	if cfg.Metrics.Addr != "" {
		obsServer = observability.NewServer(cfg.Metrics.Addr, readiness(b.pool.Ping, b.sessions.Ping), logger)
		metrics = auth.NewMetrics(obsServer.Registerer())
	}

	svc, err := newCredentialService(cfg, b.pool, b.sessions, metrics, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: httpapi.NewRouter(svc, httpapi.Options{
			Logger:         logger,
			SecureCookies:  cfg.HTTP.SecureCookies,
			RequestTimeout: cfg.HTTP.WriteTimeout,
		}),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	ln, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return oops.Code("HTTP_LISTEN_FAILED").With("addr", cfg.HTTP.Addr).Wrap(err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	httpErr := make(chan error, 1)
	go func() {
		if serveErr := srv.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			httpErr <- serveErr
		}
		close(httpErr)
	}()
	go monitorServerErrors(ctx, cancel, httpErr, "http", logger)

	if obsServer != nil {
		obsErr, err := obsServer.Start()
		if err != nil {
			shutdown(srv, nil, cfg, logger)
			return err //nolint:wrapcheck // observability errors carry their own codes
		}
		go monitorServerErrors(ctx, cancel, obsErr, "observability", logger)
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	cmd.Println("Credential service started")
	logger.Info("credential service ready", "http_addr", ln.Addr().String())

	<-ctx.Done()
	logger.Info("shutting down...")
	shutdown(srv, obsServer, cfg, logger)
	logger.Info("shutdown complete")
	return nil
}

func shutdown(srv *http.Server, obsServer *observability.Server, cfg *config.Config, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("error stopping http server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(ctx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}
}

// monitorServerErrors cancels ctx when a server reports an error. It exits
// when the channel closes or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}

// readiness requires the account store. The session registry is reported
// but never blocks traffic.
func readiness(accounts, sessions func(ctx context.Context) error) observability.ReadinessChecker {
	return observability.AllReady(
		observability.Check{Name: "postgres", Probe: accounts},
		observability.Check{Name: "redis", Probe: sessions, Optional: true},
	)
}

// backend holds the connections behind a credential service.
type backend struct {
	pool     *pgxpool.Pool
	redis    *goredis.Client
	sessions *authredis.SessionRegistry
}

func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backend, error) {
	pool, err := store.OpenPool(ctx, cfg.Database.URL, store.PoolOptions{MaxConns: cfg.Database.MaxConns})
	if err != nil {
		return nil, err //nolint:wrapcheck // store errors carry their own codes
	}

	client := authredis.Connect(ctx, authredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, logger)

	return &backend{
		pool:     pool,
		redis:    client,
		sessions: authredis.NewSessionRegistry(client, cfg.Redis.KeyPrefix),
	}, nil
}

func (b *backend) Close() {
	if err := b.redis.Close(); err != nil {
		slog.Debug("error closing redis client", "error", err)
	}
	b.pool.Close()
}

// newCredentialService assembles the service from configuration and open
// connections. metrics may be nil.
func newCredentialService(
	cfg *config.Config,
	db postgres.DB,
	sessions auth.SessionRegistry,
	metrics *auth.Metrics,
	logger *slog.Logger,
) (*auth.CredentialService, error) {
	hasher, err := auth.NewArgon2idHasher([]byte(cfg.Auth.Salt), cfg.Auth.Argon2Params())
	if err != nil {
		return nil, err //nolint:wrapcheck // auth errors carry their own codes
	}
	tokens, err := auth.NewTokenCodec(cfg.Auth.TokenConfig())
	if err != nil {
		return nil, err //nolint:wrapcheck // auth errors carry their own codes
	}

	return auth.NewCredentialService(auth.Deps{
		Accounts:      postgres.NewAccountRepository(db),
		Tx:            postgres.NewTransactor(db),
		Sessions:      sessions,
		Hasher:        hasher,
		Tokens:        tokens,
		Logger:        logger,
		Metrics:       metrics,
		RegistryRetry: cfg.Auth.RetryPolicy(),
	})
}

// openCredentials is the default Deps.CredentialsOpener.
func openCredentials(ctx context.Context, cfg *config.Config, logger *slog.Logger) (httpapi.Credentials, func(), error) {
	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	svc, err := newCredentialService(cfg, b.pool, b.sessions, nil, logger)
	if err != nil {
		b.Close()
		return nil, nil, err
	}
	return svc, b.Close, nil
}
