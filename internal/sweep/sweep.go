// Package sweep runs the periodic device-configuration reconciler. When
// the force_radius flag is on, every enabled device is visited and its
// RADIUS client registration and remote-logging setup are brought back in
// line; devices drift when operators hand-edit them.
package sweep

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/MikroWizard/mikroman/internal/models"
	"github.com/MikroWizard/mikroman/internal/policy"
	"github.com/MikroWizard/mikroman/internal/repo"
)

type Sweeper struct {
	devices   *repo.DeviceRepo
	sysconfig *repo.SysconfigRepo
	enforcer  *policy.Enforcer
	log       *slog.Logger

	cron *cron.Cron
}

func New(devices *repo.DeviceRepo, sysconfig *repo.SysconfigRepo, enforcer *policy.Enforcer, log *slog.Logger) *Sweeper {
	return &Sweeper{
		devices:   devices,
		sysconfig: sysconfig,
		enforcer:  enforcer,
		log:       log,
	}
}

// Start schedules the sweep with the given cron spec and runs one sweep
// immediately so a fresh process converges without waiting a full period.
func (s *Sweeper) Start(ctx context.Context, spec string) error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(spec, func() { s.Sweep(ctx) }); err != nil {
		return err
	}
	go s.Sweep(ctx)
	s.cron.Start()
	return nil
}

// Stop waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Sweep reconciles every enabled device once. Per-device failures are
// logged and skipped; one unreachable device must not stall the rest.
func (s *Sweeper) Sweep(ctx context.Context) {
	on, err := s.sysconfig.GetBool(ctx, repo.KeyForceRadius)
	if err != nil {
		s.log.Error("sweep: read force_radius flag", "err", err)
		return
	}
	if !on {
		s.log.Debug("sweep: force_radius off, skipping")
		return
	}

	secret, err := s.sysconfig.Get(ctx, repo.KeyRadSecret)
	if err != nil {
		s.log.Error("sweep: read shared secret", "err", err)
		return
	}
	defaultIP, err := s.sysconfig.Get(ctx, repo.KeyDefaultIP)
	if err != nil && err != repo.ErrSysconfigMissing {
		s.log.Error("sweep: read default peer address", "err", err)
		return
	}

	devices, err := s.devices.ListEnabled(ctx)
	if err != nil {
		s.log.Error("sweep: list devices", "err", err)
		return
	}

	s.log.Info("sweep starting", "devices", len(devices))
	for i := range devices {
		if ctx.Err() != nil {
			return
		}
		s.sweepDevice(ctx, &devices[i], defaultIP, secret)
	}
	s.log.Info("sweep finished")
}

func (s *Sweeper) sweepDevice(ctx context.Context, dev *models.Device, defaultIP, secret string) {
	peerIP := dev.PeerIP
	if peerIP == "" {
		peerIP = defaultIP
	}
	if peerIP == "" {
		s.log.Warn("sweep: no peer address for device", "devid", dev.ID)
		return
	}

	if err := s.enforcer.EnsureRadiusClient(ctx, dev, peerIP, secret); err != nil {
		s.log.Warn("sweep: radius client reconcile failed", "devid", dev.ID, "err", err)
		return
	}

	ok, err := s.enforcer.CheckSyslogConfig(ctx, dev, peerIP, true)
	if err != nil {
		s.log.Warn("sweep: syslog reconcile failed", "devid", dev.ID, "err", err)
		return
	}
	if ok != dev.SyslogConfigured {
		if err := s.devices.SetSyslogConfigured(ctx, dev.ID, ok); err != nil {
			s.log.Warn("sweep: record syslog state", "devid", dev.ID, "err", err)
		}
	}
}
