package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/nkiryanov/authcore/internal/configwatch"
	"github.com/nkiryanov/authcore/internal/db"
	"github.com/nkiryanov/authcore/internal/handlers"
	"github.com/nkiryanov/authcore/internal/handlers/grpcauth"
	"github.com/nkiryanov/authcore/internal/logger"
	"github.com/nkiryanov/authcore/internal/repository"
	"github.com/nkiryanov/authcore/internal/repository/memory"
	"github.com/nkiryanov/authcore/internal/repository/postgres"
	"github.com/nkiryanov/authcore/internal/service/auth"
	"github.com/nkiryanov/authcore/internal/service/auth/revocation"
	"github.com/nkiryanov/authcore/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/authcore/internal/service/csrf"
	"github.com/nkiryanov/authcore/internal/service/gate"
	"github.com/nkiryanov/authcore/internal/service/loginguard"
	"github.com/nkiryanov/authcore/internal/service/ratelimit"
	"github.com/nkiryanov/authcore/internal/service/sweeper"
	"github.com/nkiryanov/authcore/internal/service/user"
)

const shutdownTimeout = 5 * time.Second

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	// Not run if GRPCAddr is empty
	GRPCAddr   string
	GRPCServer *grpc.Server

	config  *Config
	logger  logger.Logger
	origins *gate.OriginPolicy
	sweeper *sweeper.Sweeper
	closers []func()
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	l, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	app := &ServerApp{
		ListenAddr: c.ListenAddr,
		GRPCAddr:   c.GRPCAddr,
		config:     c,
		logger:     l,
	}

	// Users store: postgres if configured, memory otherwise
	var users repository.UserRepo
	if c.DatabaseDSN != "" {
		pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
		}
		app.closers = append(app.closers, pool.Close)
		users = &postgres.UserRepo{DB: pool}
	} else {
		l.Warn("Database not configured, users kept in memory and lost on restart")
		users = memory.NewUserRepo()
	}

	// Initialize core components
	registry := revocation.New(nil)
	tokenManager, err := tokenmanager.New(tokenmanager.Config{
		SecretKey:  c.SecretKey,
		AccessTTL:  c.AccessTTL,
		RefreshTTL: c.RefreshTTL,
	}, registry, l.With("module", "tokens"))
	if err != nil {
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}
	limiter, err := ratelimit.New(ratelimit.Config{Window: c.RateLimitWindow, Ceiling: c.RateLimitCeiling}, nil)
	if err != nil {
		return nil, fmt.Errorf("error while creating rate limiter. Err: %w", err)
	}
	loginGuard, err := loginguard.New(loginguard.Config{MaxAttempts: c.LoginMaxAttempts, Lockout: c.LoginLockout}, nil, l.With("module", "login"))
	if err != nil {
		return nil, fmt.Errorf("error while creating login guard. Err: %w", err)
	}
	csrfGuard, err := csrf.New(csrf.Config{Validity: c.CSRFValidity}, nil)
	if err != nil {
		return nil, fmt.Errorf("error while creating csrf guard. Err: %w", err)
	}

	app.origins = gate.NewOriginPolicy(c.AllowedOrigins)
	if app.origins.Len() == 0 {
		l.Warn("No allowed origins configured, every request will be rejected")
	}
	g, err := gate.New(app.origins, limiter, tokenManager, l.With("module", "gate"))
	if err != nil {
		return nil, fmt.Errorf("error while creating gate. Err: %w", err)
	}

	// Initialize services
	userService := user.NewService(user.DefaultHasher, users, l)
	authService, err := auth.NewService(auth.Config{SecureCookies: c.SecureCookies}, tokenManager, userService, loginGuard, csrfGuard, l)
	if err != nil {
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	app.Handler = handlers.NewRouter(authService, g, l)

	if c.GRPCAddr != "" {
		app.GRPCServer = grpc.NewServer(grpc.ChainUnaryInterceptor(
			grpcauth.UnaryServerInterceptor(g, l.With("module", "grpc"), grpc_health_v1.Health_Check_FullMethodName),
		))
		grpc_health_v1.RegisterHealthServer(app.GRPCServer, health.NewServer())
	}

	app.sweeper = sweeper.New(c.SweepInterval, nil, l.With("module", "sweeper"),
		sweeper.Target{Name: "refresh_tokens", Store: registry},
		sweeper.Target{Name: "rate_limits", Store: limiter},
		sweeper.Target{Name: "login_attempts", Store: loginGuard},
		sweeper.Target{Name: "csrf_tokens", Store: csrfGuard},
	)

	return app, nil
}

// Run servers, sweeper and config watcher until context cancelled or any server failed
func (s *ServerApp) Run(ctx context.Context) error {
	defer func() {
		for _, closeFn := range s.closers {
			closeFn()
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stopped := []<-chan struct{}{s.sweeper.Run(ctx)}

	if s.config.ConfigPath != "" {
		watchStopped, err := configwatch.Watch(ctx, s.config.ConfigPath, 0, s.reloadOrigins, s.logger)
		if err != nil {
			return fmt.Errorf("error while watching config file. Err: %w", err)
		}
		stopped = append(stopped, watchStopped)
	}

	servers := []func(context.Context) error{s.runHTTP}
	if s.GRPCServer != nil {
		servers = append(servers, s.runGRPC)
	}

	errs := make(chan error, len(servers))
	for _, serve := range servers {
		go func() { errs <- serve(ctx) }()
	}

	// First stopped server stops the rest
	var err error
	for range servers {
		err = errors.Join(err, <-errs)
		cancel()
	}

	for _, ch := range stopped {
		<-ch
	}

	return err
}

// Run http server and close it gracefully on context cancellation
func (s *ServerApp) runHTTP(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           s.Handler,
		ReadHeaderTimeout: shutdownTimeout,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting HTTP server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *ServerApp) runGRPC(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.GRPCAddr)
	if err != nil {
		return fmt.Errorf("error while listening grpc address. Err: %w", err)
	}

	go func() {
		<-ctx.Done()
		s.logger.Info("Stopping gRPC server")
		s.GRPCServer.GracefulStop()
	}()

	s.logger.Info("Starting gRPC server", "address", s.GRPCAddr)
	err = s.GRPCServer.Serve(listen)
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

// Re-read allowed origins from config file, keep current ones if file is broken
func (s *ServerApp) reloadOrigins() {
	c := *s.config
	c.AllowedOrigins = nil

	if err := c.LoadYAML(c.ConfigPath); err != nil {
		s.logger.Error("Config reload failed, allowed origins kept", "error", err)
		return
	}
	if c.AllowedOrigins == nil {
		s.logger.Warn("No allowed origins in config file, current ones kept", "path", c.ConfigPath)
		return
	}
	if err := c.Validate(); err != nil {
		s.logger.Error("Reloaded config invalid, allowed origins kept", "error", err)
		return
	}

	s.origins.Set(c.AllowedOrigins)
	s.logger.Info("Allowed origins reloaded", "count", s.origins.Len())
}
