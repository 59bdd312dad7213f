package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/MikroWizard/mikroman/internal/audit"
	"github.com/MikroWizard/mikroman/internal/config"
	"github.com/MikroWizard/mikroman/internal/db"
	"github.com/MikroWizard/mikroman/internal/health"
	"github.com/MikroWizard/mikroman/internal/metrics"
	"github.com/MikroWizard/mikroman/internal/policy"
	"github.com/MikroWizard/mikroman/internal/radius"
	"github.com/MikroWizard/mikroman/internal/repo"
	"github.com/MikroWizard/mikroman/internal/routeros"
	"github.com/MikroWizard/mikroman/internal/sweep"
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

	if err := db.Run(db.URL(cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.DBUser, cfg.DBPass)); err != nil {
		log.Error("migrations failed", "err", err)
		os.Exit(1)
	}

	metrics.Register()

	sysconfig := repo.NewSysconfigRepo(database)
	secret, err := sysconfig.Get(context.Background(), repo.KeyRadSecret)
	if err != nil || secret == "" {
		log.Error("shared RADIUS secret not configured (sysconfig key rad_secret)", "err", err)
		os.Exit(1)
	}

	dialer := &routeros.Dialer{
		Timeout:     time.Duration(cfg.DeviceRPCTimeoutSeconds) * time.Second,
		DefaultUser: defaultCred(sysconfig, repo.KeyDefaultUser),
		DefaultPass: defaultCred(sysconfig, repo.KeyDefaultPass),
	}
	pool := policy.NewPool(cfg.DeviceRPCWorkers)
	defer pool.Close()
	enforcer := policy.NewEnforcer(dialer, pool, log, cfg.SyslogPort)

	engine := audit.NewEngine(database, log, audit.Options{
		Window:   int64(cfg.CorrWindowSeconds),
		Interval: time.Duration(cfg.CorrPollIntervalMS) * time.Millisecond,
		MaxPolls: cfg.CorrMaxPolls,
	})

	server := radius.NewServer(radius.Deps{
		Devices:   repo.NewDeviceRepo(database),
		Users:     repo.NewUserRepo(database),
		Perms:     repo.NewPermRepo(database),
		Sysconfig: sysconfig,
		Audit:     engine,
		Enforcer:  enforcer,
		Log:       log,
	}, secret)
	server.AuthAddr = fmt.Sprintf(":%d", cfg.RadiusAuthPort)
	server.AcctAddr = fmt.Sprintf(":%d", cfg.RadiusAcctPort)
	if cfg.CoAEnabled {
		server.CoAAddr = fmt.Sprintf(":%d", cfg.CoAPort)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sweeper := sweep.New(repo.NewDeviceRepo(database), sysconfig, enforcer, log)
	if err := sweeper.Start(ctx, cfg.SweepCron); err != nil {
		log.Error("sweep scheduler failed", "cron", cfg.SweepCron, "err", err)
		os.Exit(1)
	}
	defer sweeper.Stop()

	var healthSrv *health.Server
	if cfg.HealthAddr != "" {
		healthSrv = health.NewServer(cfg.HealthAddr, database, log)
		go func() {
			if err := healthSrv.Run(); err != nil {
				log.Error("health listener failed", "err", err)
			}
		}()
	}

	var wg sync.WaitGroup
	server.Start(&wg)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	server.Stop(shutdownCtx)
	if healthSrv != nil {
		healthSrv.Shutdown(shutdownCtx)
	}
	wg.Wait()
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
