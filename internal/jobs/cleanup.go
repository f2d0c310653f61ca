package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const cleanupTimeout = 30 * time.Second

// ExpiredDeleter is anything holding data that can age out.
type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// CleanupJob sweeps expired sessions out of the registry and, when
// persistence is enabled, out of the snapshot table.
type CleanupJob struct {
	sessions  ExpiredDeleter
	snapshots ExpiredDeleter
	interval  time.Duration
	done      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewCleanupJob builds a sweeper. snapshots may be nil.
func NewCleanupJob(sessions, snapshots ExpiredDeleter, interval time.Duration) *CleanupJob {
	return &CleanupJob{
		sessions:  sessions,
		snapshots: snapshots,
		interval:  interval,
		done:      make(chan struct{}),
	}
}

func (j *CleanupJob) Start() {
	j.wg.Add(1)
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("cleanup job started")
}

// Stop halts the schedule and waits for an in-flight sweep. Safe to call twice.
func (j *CleanupJob) Stop() {
	j.stopOnce.Do(func() {
		close(j.done)
		j.wg.Wait()
		log.Info().Msg("cleanup job stopped")
	})
}

func (j *CleanupJob) run() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *CleanupJob) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	j.RunOnce(ctx)
}

// RunOnce performs a single sweep and reports how many sessions were removed
// from the registry.
func (j *CleanupJob) RunOnce(ctx context.Context) int64 {
	removed := j.runCleanup(ctx, "sessions", j.sessions.DeleteExpired)
	if j.snapshots != nil {
		j.runCleanup(ctx, "session snapshots", j.snapshots.DeleteExpired)
	}
	return removed
}

func (j *CleanupJob) runCleanup(ctx context.Context, name string, fn func(context.Context) (int64, error)) int64 {
	count, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to cleanup %s", name)
		return 0
	}
	if count > 0 {
		log.Info().Int64("count", count).Msgf("cleaned up %s", name)
	}
	return count
}
