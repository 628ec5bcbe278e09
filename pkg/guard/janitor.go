package guard

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/romiluz13/memory-engineering/pkg/store"
)

const (
	// TerminalRetention keeps finished executions around long enough to
	// inspect before they are purged.
	TerminalRetention = 24 * time.Hour

	// sweepSchedule runs the janitor hourly.
	sweepSchedule = "@hourly"
)

// Janitor periodically purges aged-out terminal executions and expired
// ephemeral documents.
type Janitor struct {
	store  *store.Store
	logger zerolog.Logger
	cron   *cron.Cron
}

// NewJanitor creates a janitor. Call Start to begin sweeping.
func NewJanitor(st *store.Store, logger zerolog.Logger) *Janitor {
	return &Janitor{store: st, logger: logger, cron: cron.New()}
}

// Start schedules the hourly sweep.
func (j *Janitor) Start() error {
	_, err := j.cron.AddFunc(sweepSchedule, func() {
		if err := j.Sweep(context.Background()); err != nil {
			j.logger.Error().Err(err).Msg("Janitor sweep failed")
		}
	})
	if err != nil {
		return err
	}
	j.cron.Start()
	return nil
}

// Stop halts the schedule, waiting for an in-flight sweep.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// Sweep runs one purge pass immediately.
func (j *Janitor) Sweep(ctx context.Context) error {
	executions, err := j.store.PurgeTerminalExecutions(ctx, TerminalRetention)
	if err != nil {
		return err
	}
	documents, err := j.store.PurgeExpiredDocuments(ctx)
	if err != nil {
		return err
	}
	if executions > 0 || documents > 0 {
		j.logger.Info().
			Int("executions", executions).
			Int("documents", documents).
			Msg("Janitor purged aged-out rows")
	}
	return nil
}
