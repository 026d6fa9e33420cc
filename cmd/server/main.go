// Command sendergate starts the sender trust gate gRPC server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/and161185/sendergate/internal/api"
	"github.com/and161185/sendergate/internal/cache"
	"github.com/and161185/sendergate/internal/config"
	"github.com/and161185/sendergate/internal/dispatch"
	"github.com/and161185/sendergate/internal/lease"
	"github.com/and161185/sendergate/internal/limiter"
	"github.com/and161185/sendergate/internal/migrate"
	"github.com/and161185/sendergate/internal/notify"
	"github.com/and161185/sendergate/internal/repository/postgres"
	grpcserver "github.com/and161185/sendergate/internal/server/grpc"
	"github.com/and161185/sendergate/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, runs migrations and serves until SIGINT/SIGTERM.
func main() {
	cfgPath := flag.String("config", os.Getenv("CONFIG_PATH"), "YAML config file (ENV overrides it)")
	flag.Parse()

	cfg, err := config.LoadFile(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Server.Addr),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func newLogger(c config.LogConfig) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if c.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if err := migrate.Up(ctx, cfg.Database.DSN, logger); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}

	db, err := postgres.New(ctx, cfg.Database.DSN, postgres.Options{
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer db.Close()

	// Repositories
	contacts := postgres.NewContactRepo(db)
	auditRepo := postgres.NewAuditRepo(db)
	tasks := postgres.NewTaskRepo(db)

	// Job leases live in Postgres and the stats cache is process-local unless Redis is configured.
	var (
		locker     lease.Locker     = lease.NewPostgres(db.Pool)
		statsCache cache.StatsCache = cache.NewMemory()
	)
	if cfg.Redis.Addr != "" {
		rc, err := cache.Dial(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer func() { _ = rc.Close() }()
		locker = lease.NewRedis(rc)
		statsCache = cache.NewRedis(rc)
		logger.Info("redis enabled", zap.String("addr", cfg.Redis.Addr))
	}

	dispatcher := dispatch.New(tasks, dispatch.Config{
		Workers:        cfg.Dispatch.Workers,
		QueueSize:      cfg.Dispatch.QueueSize,
		BacklogSize:    cfg.Dispatch.BacklogSize,
		BatchSize:      cfg.Dispatch.BatchSize,
		PollInterval:   cfg.Dispatch.PollInterval,
		LeaseTTL:       cfg.Dispatch.LeaseTTL,
		BaseDelay:      cfg.Dispatch.BaseDelay,
		MaxRetries:     cfg.Dispatch.MaxRetries,
		EnqueueTimeout: cfg.Dispatch.EnqueueTimeout,
		TaskTimeout:    cfg.Dispatch.TaskTimeout,
	}, logger)

	// Notification sinks
	webhooks := make([]*notify.Webhook, 0, len(cfg.Notify.Webhooks))
	for _, wc := range cfg.Notify.Webhooks {
		webhooks = append(webhooks, notify.NewWebhook(wc, nil))
	}
	var stream notify.Sink
	if brokers := cfg.Notify.Brokers(); len(brokers) > 0 {
		ks := notify.NewKafkaSink(notify.NewKafkaWriter(brokers, cfg.Notify.KafkaTopic))
		defer func() { _ = ks.Close() }()
		stream = ks
		logger.Info("decision stream enabled", zap.Strings("brokers", brokers), zap.String("topic", cfg.Notify.KafkaTopic))
	}

	notify.Handlers{
		Operator:          notify.NewLogSink(logger),
		Limiter:           limiter.NewPGWithQuerier(db.Pool, cfg.Notify.ThrottleWindow, cfg.Notify.ThrottleMax),
		Stream:            stream,
		Webhooks:          webhooks,
		WebhookMaxRetries: cfg.Dispatch.WebhookMaxRetries,
		Log:               logger,
	}.Register(dispatcher)
	publisher := notify.NewPublisher(dispatcher, webhooks, stream != nil)

	// Services
	auditSvc := service.NewAuditService(auditRepo, statsCache, dispatcher, service.AuditOptions{
		RetentionDays: cfg.Audit.RetentionDays,
		StatsWindow:   cfg.Audit.StatsWindow,
		StatsInterval: cfg.Audit.StatsInterval,
		WriteTimeout:  cfg.Audit.WriteTimeout,
		PreviewMax:    cfg.Audit.PreviewMax,
	}, logger)
	auditSvc.RegisterReplay(dispatcher)
	gateSvc := service.NewGateService(contacts, auditSvc, publisher, cfg.Database.ResolveTimeout, logger)
	adminSvc := service.NewAdminService(contacts, auditSvc, publisher, cfg.Auth.RootSubject, logger)

	// Periodic jobs
	sched := dispatch.NewScheduler(locker, logger)
	sched.Add(dispatch.Job{
		Name:     "audit.retention",
		Schedule: dispatch.DailyAt{Hour: cfg.Audit.RetentionHour, Minute: cfg.Audit.RetentionMinute},
		LeaseTTL: time.Hour,
		Run: func(ctx context.Context) error {
			n, err := auditSvc.Prune(ctx)
			if err == nil {
				logger.Info("audit retention", zap.Int64("deleted", n), zap.Int("days", cfg.Audit.RetentionDays))
			}
			return err
		},
	})
	sched.Add(dispatch.Job{
		Name:     "audit.stats",
		Schedule: dispatch.Every(cfg.Audit.StatsInterval),
		LeaseTTL: cfg.Audit.StatsInterval / 2,
		Run: func(ctx context.Context) error {
			_, err := auditSvc.RefreshStats(ctx)
			return err
		},
	})

	// gRPC server with interceptors
	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			grpcserver.RecoverUnary(logger),
			grpcserver.LoggingUnary(logger),
			grpcserver.AuthUnary([]byte(cfg.Auth.JWTSecret), adminSvc, logger),
		),
	}
	if cfg.Server.TLSEnabled() {
		creds, err := credentials.NewServerTLSFromFile(cfg.Server.TLSCert, cfg.Server.TLSKey)
		if err != nil {
			return fmt.Errorf("load TLS cert/key: %w", err)
		}
		opts = append(opts, grpc.Creds(creds))
	} else {
		logger.Warn("TLS disabled, serving plaintext")
	}
	s := grpc.NewServer(opts...)
	api.RegisterGateServer(s, grpcserver.New(gateSvc, adminSvc, auditSvc, dispatcher, logger))

	// Health & reflection (dev)
	hs := health.NewServer()
	hs.SetServingStatus(api.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	if cfg.Server.Reflection {
		reflection.Register(s)
	}

	lis, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	// Workers outlive the listener so events from in-flight calls are still queued and persisted.
	workCtx, stopWork := context.WithCancel(context.WithoutCancel(ctx))
	defer stopWork()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return dispatcher.Run(workCtx) })
	g.Go(func() error { return sched.Run(workCtx) })
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Server.Addr), zap.Bool("tls", cfg.Server.TLSEnabled()))
		if err := s.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		hs.Shutdown()
		// graceful shutdown
		done := make(chan struct{})
		go func() {
			s.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(cfg.Server.ShutdownTimeout):
			s.Stop()
			<-done
		}
		stopWork()
		return nil
	})
	return g.Wait()
}
