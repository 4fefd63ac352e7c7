// Package reconciler sweeps resolved courses whose bets are still unsettled.
package reconciler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/grade-market/internal/metrics"
	"github.com/yourusername/grade-market/internal/service"
)

// Settler re-runs settlement for courses with pending bets
type Settler interface {
	SettlePending(ctx context.Context) ([]*service.ResolutionReport, error)
}

// Summary describes one sweep
type Summary struct {
	Courses int
	Settled int
	Failed  int
	Pending int
	Partial int
}

func (s Summary) String() string {
	return fmt.Sprintf("courses=%d settled=%d failed=%d pending=%d partial=%d",
		s.Courses, s.Settled, s.Failed, s.Pending, s.Partial)
}

// Reconciler runs settlement sweeps on a cron schedule
type Reconciler struct {
	cron         *cron.Cron
	settler      Settler
	logger       *logrus.Logger
	mu           sync.RWMutex
	sweepMu      sync.Mutex
	isRunning    bool
	entryID      cron.EntryID
	scheduled    bool
	sweepTimeout time.Duration
}

// NewReconciler creates a new reconciler
func NewReconciler(settler Settler, log *logrus.Logger) *Reconciler {
	return &Reconciler{
		cron:         cron.New(cron.WithLocation(time.UTC)),
		settler:      settler,
		logger:       log,
		sweepTimeout: 10 * time.Minute,
	}
}

// Schedule registers the sweep with a cron expression, e.g. "@every 5m"
func (r *Reconciler) Schedule(cronExpression string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isRunning {
		return fmt.Errorf("cannot schedule sweep while reconciler is running")
	}
	if r.scheduled {
		r.cron.Remove(r.entryID)
	}

	entryID, err := r.cron.AddFunc(cronExpression, func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.sweepTimeout)
		defer cancel()

		if _, err := r.RunOnce(ctx); err != nil {
			r.logger.WithError(err).Error("Scheduled settlement sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to add sweep: %w", err)
	}

	r.entryID = entryID
	r.scheduled = true
	r.logger.WithField("schedule", cronExpression).Info("Scheduled settlement sweep")
	return nil
}

// RunOnce performs a single sweep. Overlapping sweeps are serialized.
func (r *Reconciler) RunOnce(ctx context.Context) (Summary, error) {
	r.sweepMu.Lock()
	defer r.sweepMu.Unlock()

	start := time.Now()
	reports, err := r.settler.SettlePending(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("settlement sweep: %w", err)
	}

	var summary Summary
	summary.Courses = len(reports)
	for _, report := range reports {
		summary.Settled += len(report.Settled)
		summary.Failed += len(report.Failed)
		summary.Pending += len(report.Pending)
		if report.Partial() {
			summary.Partial++
			r.logger.WithFields(logrus.Fields{
				"course_code": report.CourseCode,
				"user_id":     report.UserID,
				"pending":     report.Pending,
				"error":       report.UpstreamError,
			}).Warn("Course still has unsettled bets")
		}
	}

	metrics.UpdatePendingSettlements(summary.Pending)
	r.logger.WithFields(logrus.Fields{
		"summary":     summary.String(),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Settlement sweep completed")

	return summary, nil
}

// Start starts the cron loop
func (r *Reconciler) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isRunning {
		return fmt.Errorf("reconciler is already running")
	}
	if !r.scheduled {
		return fmt.Errorf("no sweep scheduled")
	}

	r.cron.Start()
	r.isRunning = true
	r.logger.Info("Reconciler started")
	return nil
}

// Stop waits for a running sweep to finish and stops the cron loop
func (r *Reconciler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isRunning {
		return
	}

	<-r.cron.Stop().Done()
	r.isRunning = false
	r.logger.Info("Reconciler stopped")
}

// IsRunning returns whether the cron loop is active
func (r *Reconciler) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isRunning
}

// NextRun returns when the next sweep fires, or zero when not running
func (r *Reconciler) NextRun() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.isRunning || !r.scheduled {
		return time.Time{}
	}
	entry := r.cron.Entry(r.entryID)
	if !entry.Valid() {
		return time.Time{}
	}
	return entry.Next
}
