// Package scheduler drives the periodic jobs: syncing the git source into
// the asset root and sweeping stale files out of the staging directory.
package scheduler

import (
	"context"
	"log"
	"sync"

	"github.com/assetgatehq/assetgate/internal/config"
	"github.com/assetgatehq/assetgate/internal/gitsync"
	"github.com/assetgatehq/assetgate/internal/metrics"
	"github.com/assetgatehq/assetgate/internal/storage"
	"github.com/robfig/cron/v3"
)

type Scheduler struct {
	cron   *cron.Cron
	cfg    *config.Config
	syncer *gitsync.Syncer
	store  *storage.Store

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

func New(cfg *config.Config, syncer *gitsync.Syncer, store *storage.Store) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		cfg:     cfg,
		syncer:  syncer,
		store:   store,
		entries: make(map[string]cron.EntryID),
	}
}

func (s *Scheduler) Start() error {
	if s.syncer != nil && s.syncer.Enabled() && s.cfg.Source.Schedule != "" {
		if err := s.schedule("sync", s.cfg.Source.Schedule, s.RunSync); err != nil {
			return err
		}
	}
	if s.cfg.Staging.SweepSchedule != "" {
		if err := s.schedule("sweep", s.cfg.Staging.SweepSchedule, s.RunSweep); err != nil {
			return err
		}
	}

	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) schedule(name, spec string, job func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.entries[name]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, name)
	}

	entryID, err := s.cron.AddFunc(spec, job)
	if err != nil {
		return err
	}
	s.entries[name] = entryID
	log.Printf("Scheduled %s: %s", name, spec)
	return nil
}

// RunSync performs one git sync. Exported so the serve command can force
// an initial sync before accepting traffic.
func (s *Scheduler) RunSync() {
	sha, err := s.syncer.Sync(context.Background())
	metrics.RecordSync(err)
	if err != nil {
		log.Printf("Source sync failed: %v", err)
		return
	}
	log.Printf("Source synced to %s", sha)
}

// RunSweep removes stale staged uploads.
func (s *Scheduler) RunSweep() {
	removed, err := s.store.SweepStaging(s.cfg.Staging.MaxAge)
	if err != nil {
		log.Printf("Staging sweep failed: %v", err)
		return
	}
	metrics.RecordSweep(removed)
	if removed > 0 {
		log.Printf("Staging sweep removed %d stale files", removed)
	}
}
