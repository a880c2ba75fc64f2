/*
scheduler.go - Automated overdue installment scheduler

PURPOSE:
  Periodically checks for pending installments whose scheduled date has
  passed and marks them overdue, emitting a notification for each.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Delegates the actual sweep to InstallmentService.SweepOverdue
  - The sweep is idempotent: already-overdue installments are not pending
    and are never picked up twice

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewOverdueScheduler(handler.Installments, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: SweepOverdue endpoint (manual sweep)
  - engine/installment.go: SweepOverdue implementation
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warp/commission-engine/engine"
)

// OverdueScheduler handles automated overdue detection.
type OverdueScheduler struct {
	Installments  *engine.InstallmentService
	Logger        *logrus.Logger
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewOverdueScheduler creates a new scheduler.
func NewOverdueScheduler(installments *engine.InstallmentService, logger *logrus.Logger) *OverdueScheduler {
	return &OverdueScheduler{
		Installments:  installments,
		Logger:        logger,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (sc *OverdueScheduler) Start() {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if !sc.Enabled {
		sc.Logger.Info("overdue scheduler disabled, not starting")
		return
	}

	sc.ticker = time.NewTicker(sc.CheckInterval)
	sc.wg.Add(1)

	go sc.run()

	sc.Logger.WithField("interval", sc.CheckInterval.String()).Info("overdue scheduler started")
}

// Stop stops the scheduler.
func (sc *OverdueScheduler) Stop() {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.ticker != nil {
		sc.ticker.Stop()
		close(sc.stop)
		sc.wg.Wait()
		sc.Logger.Info("overdue scheduler stopped")
	}
}

func (sc *OverdueScheduler) run() {
	defer sc.wg.Done()

	// Run immediately on start
	sc.checkAndProcess()

	for {
		select {
		case <-sc.ticker.C:
			sc.checkAndProcess()
		case <-sc.stop:
			return
		}
	}
}

func (sc *OverdueScheduler) checkAndProcess() {
	ctx := context.Background()

	marked, err := sc.Installments.SweepOverdue(ctx)
	if err != nil {
		sc.Logger.WithField("module", "scheduler").Error("overdue sweep failed: " + err.Error())
		return
	}
	if len(marked) > 0 {
		sc.Logger.WithFields(logrus.Fields{
			"module": "scheduler",
			"marked": len(marked),
		}).Info("marked installments overdue")
	}
}

// RunNow triggers an immediate check (for testing/admin).
func (sc *OverdueScheduler) RunNow() {
	sc.checkAndProcess()
}

// GetNextRunTime returns when the next scheduled check will occur.
func (sc *OverdueScheduler) GetNextRunTime() time.Time {
	return time.Now().Add(sc.CheckInterval)
}
