// Package scheduler runs the periodic archive jobs with robfig/cron.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/alanyoungcy/lazywhale/internal/domain"
)

// Config holds the cron expressions (standard five fields, UTC). An empty
// expression disables the job.
type Config struct {
	ArchiveCron  string
	SnapshotCron string
}

// Scheduler uploads the previous day's order events and the latest
// snapshot of one market.
type Scheduler struct {
	cron     *cron.Cron
	archiver domain.Archiver
	market   string
	logger   *slog.Logger
	ctx      context.Context
	now      func() time.Time
}

// New creates a Scheduler. Jobs run with ctx and stop being useful once it
// is cancelled.
func New(ctx context.Context, archiver domain.Archiver, market string, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(time.UTC)),
		archiver: archiver,
		market:   market,
		logger:   logger.With(slog.String("component", "scheduler"), slog.String("market", market)),
		ctx:      ctx,
		now:      time.Now,
	}
}

// RegisterAll adds the configured jobs.
func (s *Scheduler) RegisterAll(cfg Config) error {
	if cfg.ArchiveCron != "" {
		if _, err := s.cron.AddFunc(cfg.ArchiveCron, s.archiveJob); err != nil {
			return domain.NewConfigurationError("archive.events_cron", "%v", err)
		}
	}
	if cfg.SnapshotCron != "" {
		if _, err := s.cron.AddFunc(cfg.SnapshotCron, s.snapshotJob); err != nil {
			return domain.NewConfigurationError("archive.snapshot_cron", "%v", err)
		}
	}
	return nil
}

// Jobs is the number of registered jobs.
func (s *Scheduler) Jobs() int { return len(s.cron.Entries()) }

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", slog.Int("jobs", s.Jobs()))
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// ArchiveDay uploads the order events of the UTC day containing day.
func (s *Scheduler) ArchiveDay(ctx context.Context, day time.Time) (int64, error) {
	n, err := s.archiver.ArchiveEvents(ctx, s.market, day)
	if err != nil {
		return 0, fmt.Errorf("scheduler: archive %s: %w", day.UTC().Format("2006-01-02"), err)
	}
	return n, nil
}

func (s *Scheduler) archiveJob() {
	day := s.now().UTC().Add(-24 * time.Hour)
	n, err := s.ArchiveDay(s.ctx, day)
	if err != nil {
		s.logger.Error("archive events failed", slog.String("error", err.Error()))
		return
	}
	s.logger.Info("order events archived",
		slog.String("day", day.Format("2006-01-02")),
		slog.Int64("count", n),
	)
}

func (s *Scheduler) snapshotJob() {
	if err := s.archiver.UploadSnapshot(s.ctx, s.market); err != nil {
		s.logger.Error("snapshot upload failed", slog.String("error", err.Error()))
		return
	}
	s.logger.Debug("snapshot uploaded")
}
