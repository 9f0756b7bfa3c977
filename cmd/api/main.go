package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"gestix.app/internal/audit"
	"gestix.app/internal/auth"
	"gestix.app/internal/config"
	"gestix.app/internal/httpapi"
	"gestix.app/internal/migrate"
	"gestix.app/internal/obs"
	"gestix.app/internal/session"
	"gestix.app/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	configFile := flag.String("config", "", "Path to config file (default: ./config.yaml or /etc/gestix/config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		obs.Logger().Fatal("load config", zap.Error(err))
	}
	logger, err := obs.InitLogger(cfg.Log.Level)
	if err != nil {
		obs.Logger().Fatal("init logger", zap.Error(err))
	}
	defer func() { _ = logger.Sync() }()

	// Инициализация observability (регистрация метрик)
	obs.Init()
	obs.InitBuildInfo(version, commit, strconv.Itoa(cfg.Audit.ServerID))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Database.DSN == "" {
		logger.Fatal("database DSN is required (GESTIX_DATABASE_DSN)")
	}
	store, err := pg.Open(cfg.Database.DSN, pg.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer store.Close()

	if cfg.Database.AutoMigrate {
		mctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err := migrate.NewManager(store.DB(), migrate.Migrations(), migrate.Seeds()).Up(mctx)
		cancel()
		if err != nil {
			logger.Fatal("apply migrations", zap.Error(err))
		}
		logger.Info("migrations applied")
	}

	probe := httpapi.ReadyProbe{Database: store}
	var sessions session.Store
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		rs := session.NewRedisStore(client, cfg.Redis.Prefix)
		sessions, probe.Sessions = rs, rs
		logger.Info("session store: redis", zap.String("addr", cfg.Redis.Addr))
	} else {
		ms := session.NewMemoryStore()
		ms.StartSweeper(ctx, time.Minute)
		sessions = ms
		logger.Info("session store: memory")
	}

	auditOpts := []audit.Option{
		audit.WithServerID(cfg.Audit.ServerID),
		audit.WithWriteTimeout(cfg.Audit.WriteTimeout),
		audit.WithOperatorLog(logger),
	}
	if cfg.Audit.FilePath != "" {
		mirror, closeMirror, err := obs.NewFileLogger(obs.FileConfig{
			Path:       cfg.Audit.FilePath,
			MaxSizeMB:  cfg.Audit.MaxSizeMB,
			MaxBackups: cfg.Audit.MaxBackups,
			MaxAgeDays: cfg.Audit.MaxAgeDays,
			Compress:   true,
		})
		if err != nil {
			logger.Fatal("open audit file", zap.Error(err))
		}
		defer func() { _ = closeMirror() }()
		auditOpts = append(auditOpts, audit.WithMirror(mirror))
	}
	auditLog := audit.NewLogger(store, auditOpts...)

	cookies := session.NewCookies(session.CookieConfig{
		Name:   cfg.Session.CookieName,
		Path:   cfg.Session.CookiePath,
		Domain: cfg.Session.CookieDomain,
		Secure: cfg.Session.CookieSecure,
		Secret: []byte(cfg.Session.Secret),
	})
	mgr, err := auth.NewManager(store, sessions, cookies, auditLog,
		auth.WithTimeout(cfg.Session.Timeout),
		auth.WithLoginRedirect(cfg.Session.LoginRedirect),
		auth.WithLogger(logger),
	)
	if err != nil {
		logger.Fatal("init auth", zap.Error(err))
	}

	api := httpapi.New(mgr, probe, httpapi.Config{
		Version:        version,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		LoginBurst:     cfg.RateLimit.LoginBurst,
		LoginPerSecond: cfg.RateLimit.LoginPerSecond,

		SessionPollInterval: cfg.Session.PollInterval,
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(), // уже обёрнут метриками в httpapi
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	var grpcSrv *grpc.Server
	if cfg.GRPC.Addr != "" {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			logger.Fatal("grpc listen", zap.Error(err))
		}
		grpcSrv = grpc.NewServer()
		health := httpapi.NewHealthServer(probe)
		health.Register(grpcSrv)
		go health.Run(ctx, 10*time.Second)
		go func() {
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				logger.Error("grpc serve", zap.Error(err))
			}
		}()
		logger.Info("grpc health listening", zap.String("addr", cfg.GRPC.Addr))
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()
	logger.Info("starting gestix-api",
		zap.String("version", version),
		zap.String("addr", srv.Addr),
		zap.Duration("session_timeout", mgr.Timeout()),
	)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	logger.Info("stopped")
}
