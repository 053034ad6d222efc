package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/explorers-club/progress/internal/config"
	"github.com/explorers-club/progress/internal/domain"
	"github.com/explorers-club/progress/internal/metrics"
	"golang.org/x/sync/errgroup"
)

// TotalsSource reads durable XP totals from the database
type TotalsSource interface {
	ListTeamTotals(ctx context.Context) ([]domain.TeamTotals, error)
	ListExplorerXP(ctx context.Context, afterID int64, limit int) ([]domain.ScoreboardEntry, error)
}

// ScoreboardSink receives reconciled totals
type ScoreboardSink interface {
	BatchSetTeams(ctx context.Context, teams []domain.TeamTotals) error
	BatchSetExplorers(ctx context.Context, explorers []domain.ScoreboardEntry) error
}

// ReconcileWorker periodically copies XP totals from PostgreSQL into the
// Redis scoreboard and reports team XP drift
type ReconcileWorker struct {
	source  TotalsSource
	sink    ScoreboardSink
	config  *config.SyncConfig
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewReconcileWorker creates a new reconcile worker
func NewReconcileWorker(
	source TotalsSource,
	sink ScoreboardSink,
	cfg *config.SyncConfig,
	logger *slog.Logger,
) *ReconcileWorker {
	return &ReconcileWorker{
		source: source,
		sink:   sink,
		config: cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins the background reconcile loop
func (w *ReconcileWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("reconcile worker started", "interval", w.config.Interval)

	go w.run(ctx)
	return nil
}

// Stop stops the background reconcile loop
func (w *ReconcileWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("reconcile worker stopped")
	return nil
}

func (w *ReconcileWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			if err := w.RunOnce(ctx); err != nil {
				w.logger.Error("reconcile cycle failed", "error", err)
			}
		}
	}
}

// RunOnce reconciles teams and explorers concurrently
func (w *ReconcileWorker) RunOnce(ctx context.Context) error {
	startTime := time.Now()

	var teams, explorers int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		teams, err = w.reconcileTeams(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		explorers, err = w.reconcileExplorers(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	w.logger.Info("reconcile cycle completed",
		"duration", time.Since(startTime),
		"teams", teams,
		"explorers", explorers,
	)
	return nil
}

func (w *ReconcileWorker) reconcileTeams(ctx context.Context) (int, error) {
	totals, err := w.source.ListTeamTotals(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing team totals: %w", err)
	}

	for _, t := range totals {
		drift := t.Drift()
		metrics.TeamXPDrift.WithLabelValues(strconv.FormatInt(t.TeamID, 10)).Set(float64(drift))
		if drift != 0 {
			w.logger.Warn("team xp drift",
				"team_id", t.TeamID,
				"team_xp", t.TeamXP,
				"contribution_total", t.ContributionTotal,
				"drift", drift,
			)
		}
	}

	if err := w.sink.BatchSetTeams(ctx, totals); err != nil {
		return 0, fmt.Errorf("setting team scores: %w", err)
	}
	return len(totals), nil
}

func (w *ReconcileWorker) reconcileExplorers(ctx context.Context) (int, error) {
	batchSize := w.config.BatchSize
	if batchSize <= 0 {
		batchSize = 500
	}

	var afterID int64
	count := 0
	for {
		page, err := w.source.ListExplorerXP(ctx, afterID, batchSize)
		if err != nil {
			return count, fmt.Errorf("listing explorer xp: %w", err)
		}
		if len(page) == 0 {
			return count, nil
		}
		if err := w.sink.BatchSetExplorers(ctx, page); err != nil {
			return count, fmt.Errorf("setting explorer scores: %w", err)
		}
		count += len(page)
		afterID = page[len(page)-1].ID
		if len(page) < batchSize {
			return count, nil
		}
	}
}

// IsRunning returns whether the worker is currently running
func (w *ReconcileWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
