package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"helpr/internal/api"
	"helpr/internal/audit"
	"helpr/internal/auth"
	"helpr/internal/config"
	"helpr/internal/database"
	"helpr/internal/domain"
	"helpr/internal/events"
	"helpr/internal/logging"
	"helpr/internal/metrics"
	"helpr/internal/models"
	"helpr/internal/notify"
	"helpr/internal/realtime"
	"helpr/internal/repository"
	"helpr/internal/service"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, base, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}
	logger := base.With().Str("component", "api-main").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := initDatabase(ctx, cfg, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}
	sessions := initSessionStore(redisClient, base)

	bus := events.NewEventBus(base)
	events.AttachLogger(bus, base)
	if cfg.Monitoring.PrometheusEnabled {
		events.AttachMetrics(bus)
	}

	hub := realtime.NewHub(base)
	var (
		broadcaster domain.Broadcaster      = hub
		conns       domain.ConnectionCloser = hub
	)
	if cfg.Realtime.RedisFanout && redisClient != nil {
		relay := realtime.NewRedisRelay(redisClient, hub, base)
		broadcaster = relay
		conns = relay
		go func() {
			if err := relay.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("realtime relay stopped")
			}
		}()
	}

	svc, err := initServices(ctx, cfg, db, sessions, broadcaster, conns, bus, base)
	if err != nil {
		return err
	}

	coord := realtime.NewCoordinator(hub, broadcaster, db, svc.Messages, base)
	wsServer := realtime.NewServer(coord, svc.Auth, cfg.Realtime, base)

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(db, cfg.Backup, base)
		go backupService.Start(ctx)
	}

	startMetrics(ctx, cfg, &logger)

	httpServer := api.NewHTTPServer(cfg.API, svc, wsServer, db.PingContext, base)

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(cfg.API, base)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
		go grpcServer.WatchReadiness(ctx, 10*time.Second, db.PingContext)
	}

	return startServers(ctx, grpcServer, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, closer, nil
}

func loadServices(path string, logger *zerolog.Logger) ([]models.Service, error) {
	if path == "" {
		path = "configs/services.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn().Str("services_path", path).Msg("services file not found, skipping seed")
			return nil, nil
		}
		logger.Error().Err(err).Str("services_path", path).Msg("read services")
		return nil, err
	}

	var servicesConfig struct {
		Services []models.Service `yaml:"services"`
	}
	if err := yaml.Unmarshal(data, &servicesConfig); err != nil {
		logger.Error().Err(err).Str("services_path", path).Msg("parse services")
		return nil, err
	}
	return servicesConfig.Services, nil
}

func initDatabase(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}

	seed, err := loadServices(cfg.ServicesFile, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	inserted, err := db.SeedServices(ctx, seed)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("seed services: %w", err)
	}
	if inserted > 0 {
		logger.Info().Int("count", inserted).Msg("service catalog seeded")
	}
	return db, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		if cfg.Realtime.RedisFanout {
			logger.Warn().Err(err).Msg("redis unavailable at startup, cross-instance fan-out will retry")
			return client
		}
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = repository.Close(client)
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

func initSessionStore(client *redis.Client, logger *zerolog.Logger) domain.SessionStore {
	memory := repository.NewMemorySessionStore()
	if client == nil {
		return memory
	}
	policy := repository.RetryPolicy{InitialDelay: 2 * time.Second, MaxDelay: time.Minute, BackoffFactor: 2}
	return repository.NewFailoverSessionStore(repository.NewRedisSessionStore(client), memory, policy, logger)
}

func initServices(
	ctx context.Context,
	cfg *config.Config,
	db *database.DB,
	sessions domain.SessionStore,
	broadcaster domain.Broadcaster,
	conns domain.ConnectionCloser,
	bus *events.EventBus,
	logger *zerolog.Logger,
) (api.Services, error) {
	recorder := audit.NewRecorder(db, bus, logger)
	fanout := notify.NewFanout(broadcaster, db, bus, logger)
	tokens := auth.NewTokenManager(cfg.API.Auth.JWTSecret, cfg.API.Auth.AccessTTL, cfg.API.Auth.RefreshTTL, cfg.App.Name)

	svc := api.Services{
		Auth:     service.NewAuthService(db, sessions, tokens, cfg.API.Auth, !cfg.App.IsProduction(), logger),
		Users:    service.NewUserService(db, logger),
		Bookings: service.NewBookingService(db, db, db, fanout, recorder, bus, logger),
		Messages: service.NewMessageService(db, db, sessions, fanout, cfg.Realtime.ChatRateLimit, cfg.Realtime.ChatRateWindow, logger),
		Admin:    service.NewAdminService(db, recorder, conns, logger),
		Catalog:  service.NewCatalogService(db, recorder, logger),
		Audit:    recorder,
	}
	if err := svc.Catalog.Reload(ctx); err != nil {
		return svc, fmt.Errorf("load service catalog: %w", err)
	}
	return svc, nil
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil {
			errCh <- err
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Bool("grpc", grpcServer != nil).Msg("API server started")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("http server stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return runErr
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
