// Package scheduler drives the daily contribution processor on a cron
// schedule. Each due run iterates every user with a plan and hands the
// processor a fresh resource budget.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/spendsave/savings-engine/internal/daily"
	"github.com/spendsave/savings-engine/internal/ledger"
)

const defaultPollInterval = 30 * time.Second

type SchedulerService struct {
	ledger    *ledger.Ledger
	processor *daily.Processor
	logger    *logrus.Logger

	schedule cron.Schedule
	budget   uint64
	interval time.Duration

	lastRun time.Time
	done    chan struct{}
	now     func() time.Time
}

// NewSchedulerService parses cronExpr (standard five-field syntax) and
// returns a stopped scheduler. budgetUnits is the per-run resource budget
// handed to the processor for each user.
func NewSchedulerService(l *ledger.Ledger, processor *daily.Processor, cronExpr string, budgetUnits uint64, logger *logrus.Logger) (*SchedulerService, error) {
	schedule, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("fail to parse cron expression %q: %w", cronExpr, err)
	}

	return &SchedulerService{
		ledger:    l,
		processor: processor,
		logger:    logger,
		schedule:  schedule,
		budget:    budgetUnits,
		interval:  defaultPollInterval,
		done:      make(chan struct{}),
		now:       time.Now,
	}, nil
}

func (s *SchedulerService) Start() {
	go s.run()
}

func (s *SchedulerService) Stop() {
	close(s.done)
}

func (s *SchedulerService) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.checkAndRun(context.Background()); err != nil {
				s.logger.Errorf("fail to run scheduled contributions: %v", err)
			}
		case <-s.done:
			return
		}
	}
}

// checkAndRun executes one pass when the schedule is due. The first pass
// after startup anchors the schedule without running, so a restart does not
// double-execute the day's contributions.
func (s *SchedulerService) checkAndRun(ctx context.Context) error {
	now := s.now().UTC()
	if s.lastRun.IsZero() {
		s.lastRun = now
		return nil
	}
	if now.Before(s.schedule.Next(s.lastRun)) {
		return nil
	}
	s.lastRun = now
	return s.RunOnce(ctx)
}

// RunOnce processes every user with at least one contribution plan. Per-user
// failures are logged and do not stop the sweep.
func (s *SchedulerService) RunOnce(ctx context.Context) error {
	users, err := s.ledger.ListPlanUsers(ctx)
	if err != nil {
		return fmt.Errorf("fail to list plan users: %w", err)
	}

	for _, user := range users {
		res, err := s.processor.ExecuteForUser(ctx, user, daily.NewBudget(s.budget))
		if err != nil {
			s.logger.WithFields(logrus.Fields{
				"user": user.Hex(),
			}).WithError(err).Error("fail to process daily contributions")
			continue
		}
		s.logger.WithFields(logrus.Fields{
			"user":      user.Hex(),
			"processed": res.Processed,
			"skipped":   res.Skipped,
			"total":     res.Total.String(),
		}).Info("daily contributions processed")
	}

	// Flush the journal entries produced by this sweep into the log so the
	// in-memory journal does not grow for the lifetime of the host.
	for _, evt := range s.ledger.DrainEvents() {
		s.logger.WithFields(logrus.Fields{
			"type":       evt.Type,
			"attributes": evt.Attributes,
		}).Info("journal event")
	}
	return nil
}
