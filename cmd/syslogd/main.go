package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/MikroWizard/mikroman/internal/audit"
	"github.com/MikroWizard/mikroman/internal/config"
	"github.com/MikroWizard/mikroman/internal/db"
	"github.com/MikroWizard/mikroman/internal/devrpc"
	"github.com/MikroWizard/mikroman/internal/health"
	"github.com/MikroWizard/mikroman/internal/metrics"
	"github.com/MikroWizard/mikroman/internal/repo"
	"github.com/MikroWizard/mikroman/internal/routeros"
	"github.com/MikroWizard/mikroman/internal/syslogd"
)

func main() {
	cfg := config.Load()
	log := newLogger(cfg.LogFormat)

	database, err := db.Connect(cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.DBUser, cfg.DBPass)
	if err != nil {
		log.Error("database connection failed", "err", err)
		os.Exit(1)
	}
	defer database.Close()
	database.SetMaxOpenConns(cfg.DBMaxOpenConns)
	database.SetMaxIdleConns(cfg.DBMaxIdleConns)

	metrics.Register()

	sysconfig := repo.NewSysconfigRepo(database)
	dialer := &routeros.Dialer{
		Timeout:     time.Duration(cfg.DeviceRPCTimeoutSeconds) * time.Second,
		DefaultUser: defaultCred(sysconfig, repo.KeyDefaultUser),
		DefaultPass: defaultCred(sysconfig, repo.KeyDefaultPass),
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Warn("redis unreachable, local-user cache disabled", "addr", cfg.RedisAddr, "err", err)
			rdb = nil
		}
	}

	localUsers := devrpc.NewLocalUsers(dialer, rdb,
		time.Duration(cfg.LocalUserCacheTTL)*time.Second, log)

	engine := audit.NewEngine(database, log, audit.Options{
		Window:   int64(cfg.CorrWindowSeconds),
		Interval: time.Duration(cfg.CorrPollIntervalMS) * time.Millisecond,
		MaxPolls: cfg.CorrMaxPolls,
	})

	server := syslogd.NewServer(syslogd.Deps{
		Devices:    repo.NewDeviceRepo(database),
		LocalUsers: localUsers,
		Audit:      engine,
		Accounts:   audit.NewAccountRepo(database),
		Events:     audit.NewEventRepo(database),
		Log:        log,
	}, fmt.Sprintf(":%d", cfg.SyslogPort))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var healthSrv *health.Server
	if cfg.HealthAddr != "" {
		healthSrv = health.NewServer(cfg.HealthAddr, database, log)
		go func() {
			if err := healthSrv.Run(); err != nil {
				log.Error("health listener failed", "err", err)
			}
		}()
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Info("shutting down")
		cancel()
	}()

	if err := server.Run(ctx); err != nil {
		log.Error("syslog listener failed", "err", err)
		os.Exit(1)
	}
	if healthSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		healthSrv.Shutdown(shutdownCtx)
		shutdownCancel()
	}
	log.Info("stopped")
}

func defaultCred(sysconfig *repo.SysconfigRepo, key string) string {
	v, err := sysconfig.Get(context.Background(), key)
	if err != nil {
		return ""
	}
	return v
}

func newLogger(format string) *slog.Logger {
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, nil)
	} else {
		handler = slog.NewTextHandler(os.Stdout, nil)
	}
	return slog.New(handler)
}
