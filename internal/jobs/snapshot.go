package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/trmquang93/planning-poker-sub001/internal/model"
)

const snapshotTimeout = 15 * time.Second

type SessionSource interface {
	GetAllSessions() []*model.Session
}

type SnapshotStore interface {
	SaveAll(ctx context.Context, sessions []*model.Session) error
}

// SnapshotJob periodically copies the registry into durable storage so a
// restart can pick up where it left off.
type SnapshotJob struct {
	source   SessionSource
	store    SnapshotStore
	interval time.Duration
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewSnapshotJob(source SessionSource, store SnapshotStore, interval time.Duration) *SnapshotJob {
	return &SnapshotJob{
		source:   source,
		store:    store,
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (j *SnapshotJob) Start() {
	j.wg.Add(1)
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("snapshot job started")
}

// Stop halts the schedule and writes one final snapshot.
func (j *SnapshotJob) Stop() {
	j.stopOnce.Do(func() {
		close(j.done)
		j.wg.Wait()
		j.snapshot()
		log.Info().Msg("snapshot job stopped")
	})
}

func (j *SnapshotJob) run() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.snapshot()
		}
	}
}

func (j *SnapshotJob) snapshot() {
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()

	if err := j.RunOnce(ctx); err != nil {
		log.Error().Err(err).Msg("failed to snapshot sessions")
	}
}

// RunOnce saves the current registry contents.
func (j *SnapshotJob) RunOnce(ctx context.Context) error {
	sessions := j.source.GetAllSessions()
	if err := j.store.SaveAll(ctx, sessions); err != nil {
		return err
	}
	log.Debug().Int("count", len(sessions)).Msg("sessions snapshotted")
	return nil
}
