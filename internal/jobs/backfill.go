package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mentorscore/session-api/internal/config"
	"github.com/mentorscore/session-api/internal/service"
)

type Backfiller interface {
	Backfill(ctx context.Context, limit int) (service.BackfillReport, error)
}

// BackfillJob periodically rebuilds stored sessions whose timeline is
// missing. It runs one pass on start.
type BackfillJob struct {
	backfiller Backfiller
	batchSize  int
	interval   time.Duration
	done       chan struct{}
	stopOnce   sync.Once
}

func NewBackfillJob(backfiller Backfiller, batchSize int, interval time.Duration) *BackfillJob {
	return &BackfillJob{
		backfiller: backfiller,
		batchSize:  batchSize,
		interval:   interval,
		done:       make(chan struct{}),
	}
}

func (j *BackfillJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Int("batchSize", j.batchSize).Msg("backfill job started")
}

func (j *BackfillJob) Stop() {
	j.stopOnce.Do(func() {
		close(j.done)
		log.Info().Msg("backfill job stopped")
	})
}

func (j *BackfillJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.RunOnce()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.RunOnce()
		}
	}
}

// RunOnce runs a single backfill pass bounded by config.BackfillPassTimeout.
func (j *BackfillJob) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), config.BackfillPassTimeout)
	defer cancel()

	go func() {
		select {
		case <-j.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	report, err := j.backfiller.Backfill(ctx, j.batchSize)
	if err != nil {
		log.Error().Err(err).Msg("failed to backfill sessions")
		return
	}
	if report.Scanned > 0 {
		log.Info().
			Int("scanned", report.Scanned).
			Int("refilled", report.Refilled).
			Int("degraded", report.Degraded).
			Int("failed", report.Failed).
			Msg("backfilled sessions")
	}
}
