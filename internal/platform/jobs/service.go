package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"hrportal/internal/domain/session"
	"hrportal/internal/platform/config"
)

const (
	JobEvictProviders = "evict_idle_providers"
	JobPurgeSnapshots = "purge_stale_snapshots"
)

// Providers is the slice of the session registry the jobs drive.
type Providers interface {
	Evict(idle time.Duration) int
	Refresh(ctx context.Context, olderThan time.Duration) int
	Len() int
}

type Recorder interface {
	ObserveJob(job, status string, items int64)
	SetActiveProviders(n int)
}

// Service runs housekeeping for the session registry: dropping idle
// providers from memory and purging snapshots nobody has written for longer
// than the snapshot TTL. Purger may be nil for stores that expire entries
// themselves; live snapshots are still refreshed for those.
type Service struct {
	Registry    Providers
	Purger      session.Purger
	Cfg         config.JobsConfig
	SnapshotTTL time.Duration
	Recorder    Recorder
	Logger      zerolog.Logger
	queue       chan job
}

type job struct {
	Type string
	Run  func(context.Context) (int64, error)
}

func New(registry Providers, purger session.Purger, cfg config.JobsConfig, snapshotTTL time.Duration, recorder Recorder, logger zerolog.Logger) *Service {
	return &Service{
		Registry:    registry,
		Purger:      purger,
		Cfg:         cfg,
		SnapshotTTL: snapshotTTL,
		Recorder:    recorder,
		Logger:      logger.With().Str("component", "jobs").Logger(),
		queue:       make(chan job, 16),
	}
}

func (s *Service) Start(ctx context.Context) {
	go s.worker(ctx)
	if s.Cfg.SweepInterval > 0 {
		go s.scheduleSweeps(ctx, s.Cfg.SweepInterval)
	}
}

func (s *Service) Enqueue(jobType string, run func(context.Context) (int64, error)) bool {
	select {
	case s.queue <- job{Type: jobType, Run: run}:
		return true
	default:
		s.Logger.Warn().Str("jobType", jobType).Msg("job queue full")
		return false
	}
}

func (s *Service) RunNow(ctx context.Context, jobType string, run func(context.Context) (int64, error)) (int64, error) {
	return s.runJob(ctx, job{Type: jobType, Run: run})
}

func (s *Service) EvictIdle(context.Context) (int64, error) {
	evicted := s.Registry.Evict(s.Cfg.ProviderIdleTTL)
	return int64(evicted), nil
}

// PurgeSnapshots first rewrites snapshots of providers still signed in
// that are halfway to the TTL, then removes everything older than the TTL.
// A live Session therefore never loses its snapshot.
func (s *Service) PurgeSnapshots(ctx context.Context) (int64, error) {
	if s.SnapshotTTL <= 0 {
		return 0, nil
	}
	if refreshed := s.Registry.Refresh(ctx, s.SnapshotTTL/2); refreshed > 0 {
		s.Logger.Debug().Int("refreshed", refreshed).Msg("live snapshots rewritten")
	}
	if s.Purger == nil {
		return 0, nil
	}
	return s.Purger.Purge(ctx, s.SnapshotTTL)
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				s.Logger.Warn().Err(err).Str("jobType", j.Type).Msg("job run failed")
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (int64, error) {
	started := time.Now()
	items, err := j.Run(ctx)
	status := "completed"
	if err != nil {
		status = "failed"
	}
	if s.Recorder != nil {
		s.Recorder.ObserveJob(j.Type, status, items)
		s.Recorder.SetActiveProviders(s.Registry.Len())
	}
	s.Logger.Debug().
		Str("jobType", j.Type).
		Str("status", status).
		Int64("items", items).
		Dur("duration", time.Since(started)).
		Msg("job run")
	return items, err
}

func (s *Service) scheduleSweeps(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.Cfg.ProviderIdleTTL > 0 {
				s.Enqueue(JobEvictProviders, s.EvictIdle)
			}
			if s.SnapshotTTL > 0 {
				s.Enqueue(JobPurgeSnapshots, s.PurgeSnapshots)
			}
		}
	}
}
