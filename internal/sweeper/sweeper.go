// Package sweeper periodically moves occurrences whose scheduled date has
// passed into OVERDUE.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"maintenance-scheduler/config"
	"maintenance-scheduler/internal/events"
	"maintenance-scheduler/internal/logger"
	"maintenance-scheduler/internal/metrics"
	"maintenance-scheduler/internal/model"
	"maintenance-scheduler/internal/schedule"
)

// Store is the slice of persistence the sweeper needs.
type Store interface {
	ListOverdueCandidates(ctx context.Context, before time.Time, from []model.Status, afterID string, limit int) ([]model.ScheduleOccurrence, error)
	MarkOverdue(ctx context.Context, id string, from []model.Status, now time.Time) (bool, error)
}

// Result summarizes one sweep.
type Result struct {
	Scanned      int
	Transitioned int
	Failed       int
	Batches      int
	// Truncated is set when the sweep stopped early on its time budget or a
	// listing error. Remaining candidates are picked up by the next sweep.
	Truncated bool
}

// Service runs overdue sweeps on a cron schedule.
type Service struct {
	cfg       config.SweeperConfig
	store     Store
	publisher events.Publisher
	log       logger.Logger
	metrics   *metrics.Metrics
	loc       *time.Location
	now       func() time.Time
}

// NewService creates a sweeper. It fails only on an unknown timezone.
func NewService(cfg config.SweeperConfig, st Store, pub events.Publisher, log logger.Logger, m *metrics.Metrics) (*Service, error) {
	loc := time.UTC
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("failed to load sweeper timezone %q: %w", cfg.Timezone, err)
		}
		loc = l
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Service{
		cfg:       cfg,
		store:     st,
		publisher: pub,
		log:       log,
		metrics:   m,
		loc:       loc,
		now:       time.Now,
	}, nil
}

// Run sweeps once immediately and then on every tick of the configured
// schedule until ctx is cancelled. A tick that fires while a sweep is still
// running is skipped.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		s.log.Info("Sweeper is disabled. Not starting.")
		return
	}

	spec := s.cfg.Schedule
	if spec == "" {
		spec = "@every " + s.cfg.Interval.String()
	}

	cl := cronLogger{log: s.log}
	c := cron.New(
		cron.WithLocation(s.loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(spec, func() { s.SweepOnce(ctx) }); err != nil {
		s.log.Error("Invalid sweeper schedule", "schedule", spec, "error", err)
		return
	}

	s.log.Info("Starting overdue sweeper", "schedule", spec, "tz", s.loc.String())
	s.SweepOnce(ctx)
	c.Start()

	<-ctx.Done()
	s.log.Info("Sweeper shutting down.")
	<-c.Stop().Done()
}

// SweepOnce marks every SCHEDULED or IN_PROGRESS occurrence dated before
// today as OVERDUE. Failures on single occurrences are logged and counted;
// they never abort the sweep.
func (s *Service) SweepOnce(ctx context.Context) Result {
	started := s.now()
	defer func() {
		s.metrics.SweepDuration.Observe(time.Since(started).Seconds())
	}()

	if s.cfg.MaxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.MaxDuration)
		defer cancel()
	}

	today := s.today(started)
	sources := schedule.OverdueSources()
	var res Result
	afterID := ""
	for {
		if ctx.Err() != nil {
			res.Truncated = true
			break
		}
		batch, err := s.store.ListOverdueCandidates(ctx, today, sources, afterID, s.cfg.BatchSize)
		if err != nil {
			s.log.Error("Failed to list overdue candidates", "after_id", afterID, "error", err)
			s.metrics.ErrorsCount.WithLabelValues("sweep_list").Inc()
			res.Truncated = true
			break
		}
		res.Batches++
		for i := range batch {
			res.Scanned++
			s.sweepOne(ctx, &batch[i], today, &res)
		}
		if len(batch) < s.cfg.BatchSize {
			break
		}
		afterID = batch[len(batch)-1].ID
	}

	s.log.Info("Sweep finished",
		"scanned", res.Scanned,
		"transitioned", res.Transitioned,
		"failed", res.Failed,
		"batches", res.Batches,
		"truncated", res.Truncated,
	)
	return res
}

func (s *Service) sweepOne(ctx context.Context, occ *model.ScheduleOccurrence, today time.Time, res *Result) {
	changed, err := schedule.MarkOverdue(occ, today)
	if err != nil {
		s.failItem(occ.ID, err, res)
		return
	}
	if !changed {
		return
	}

	applied, err := s.store.MarkOverdue(ctx, occ.ID, schedule.OverdueSources(), s.now().UTC())
	if err != nil {
		s.failItem(occ.ID, err, res)
		return
	}
	if !applied {
		// Started, completed or cancelled since it was listed.
		return
	}

	res.Transitioned++
	s.metrics.OccurrencesOverdue.Inc()
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, events.New(events.OccurrenceOverdue, occ, s.now().UTC())); err != nil {
		s.log.Warn("Failed to publish overdue event", "occurrence_id", occ.ID, "error", err)
	}
}

func (s *Service) failItem(id string, err error, res *Result) {
	res.Failed++
	s.metrics.SweepFailures.Inc()
	s.log.Error("Failed to mark occurrence overdue", "occurrence_id", id, "error", err)
}

// today returns the current calendar date in the sweeper's timezone, at UTC
// midnight to match how scheduled dates are stored.
func (s *Service) today(now time.Time) time.Time {
	y, m, d := now.In(s.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
