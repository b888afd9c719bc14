package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/logging"
)

const (
	DefaultSyncInterval        = 5 * time.Minute
	DefaultStartupProbeTimeout = 3 * time.Second
	DefaultShutdownTimeout     = 30 * time.Second
)

type SchedulerConfig struct {
	SyncInterval        time.Duration
	StartupProbeTimeout time.Duration
	ShutdownTimeout     time.Duration
}

func (c *SchedulerConfig) withDefaults() {
	if c.SyncInterval <= 0 {
		c.SyncInterval = DefaultSyncInterval
	}
	if c.StartupProbeTimeout <= 0 {
		c.StartupProbeTimeout = DefaultStartupProbeTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
}

// Scheduler triggers sync cycles: on demand, on a timer while auto-sync is
// on, once at startup and on local media changes. Triggers that arrive while
// a cycle runs are dropped.
type Scheduler struct {
	orch    *Orchestrator
	cfg     SchedulerConfig
	log     logging.Logger
	trigger chan models.Trigger
	changes <-chan struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler. changes may be nil.
func NewScheduler(orch *Orchestrator, cfg SchedulerConfig, changes <-chan struct{}, log logging.Logger) *Scheduler {
	cfg.withDefaults()
	return &Scheduler{
		orch:    orch,
		cfg:     cfg,
		log:     log.With("module", "scheduler"),
		trigger: make(chan models.Trigger, 1),
		changes: changes,
	}
}

// Start launches the background loop and, if enabled, the startup cycle. It
// does not block on either.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	meta, err := s.orch.Metadata(ctx)
	if err != nil {
		s.log.Error(ctx, "failed to load sync preferences", "error", err)
		meta = &models.SyncMetadata{}
	}

	if meta.SyncOnStartup {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.startup(ctx)
		}()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx)
	}()
}

func (s *Scheduler) startup(ctx context.Context) {
	if err := s.orch.Probe(ctx, s.cfg.StartupProbeTimeout); err != nil {
		s.log.Info(ctx, "skipping startup sync", "error", err)
		return
	}
	s.run(ctx, models.TriggerStartup)
}

func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.autoSync(ctx) {
				s.run(ctx, models.TriggerTimer)
			}
		case t := <-s.trigger:
			s.run(ctx, t)
		case <-s.changes:
			if s.autoSync(ctx) {
				s.run(ctx, models.TriggerChange)
			}
		}
	}
}

func (s *Scheduler) autoSync(ctx context.Context) bool {
	meta, err := s.orch.Metadata(ctx)
	if err != nil {
		s.log.Error(ctx, "failed to load sync preferences", "error", err)
		return false
	}
	return meta.AutoSync
}

func (s *Scheduler) run(ctx context.Context, t models.Trigger) {
	_, err := s.orch.Sync(ctx, t)
	switch {
	case err == nil:
	case errors.Is(err, common.ErrSyncInProgress):
		s.log.Debug(ctx, "trigger dropped, sync in progress", "trigger", t)
	default:
		s.log.Debug(ctx, "scheduled sync failed", "trigger", t, "error", err)
	}
}

// Trigger requests a cycle from the background loop. It never blocks; a
// request made while another is pending is dropped.
func (s *Scheduler) Trigger(t models.Trigger) {
	select {
	case s.trigger <- t:
	default:
	}
}

func (s *Scheduler) stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Shutdown stops the background loop. It waits up to ShutdownTimeout for an
// in-flight cycle; when none is running and auto-sync is on it runs one last
// cycle within the same budget.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	wasRunning := s.orch.Session().Running()
	if wasRunning {
		if err := s.orch.Session().Wait(ctx); err != nil {
			s.stop()
			s.log.Warn(ctx, "sync still running at shutdown", "error", err)
			return err
		}
	}
	s.stop()

	if !wasRunning && s.autoSync(ctx) {
		_, err := s.orch.Sync(ctx, models.TriggerShutdown)
		if err != nil && !errors.Is(err, common.ErrSyncInProgress) {
			s.log.Warn(ctx, "final sync failed", "error", err)
		}
		if errors.Is(err, common.ErrSyncInProgress) {
			if werr := s.orch.Session().Wait(ctx); werr != nil {
				return werr
			}
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
