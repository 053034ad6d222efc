package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/explorers-club/progress/internal/config"
	"github.com/explorers-club/progress/internal/domain"
	"github.com/explorers-club/progress/internal/metrics"
	"github.com/go-co-op/gocron/v2"
)

// CurrentChapterSource resolves the chapter unlocked today
type CurrentChapterSource interface {
	GetCurrentChapter(ctx context.Context) domain.CurrentChapter
}

// ChapterBroadcaster announces newly unlocked chapters
type ChapterBroadcaster interface {
	BroadcastChapterUnlocked(chapter domain.Chapter)
}

// UnlockAnnouncer polls the current chapter on a schedule and broadcasts
// whenever it changes. The first check only records the baseline.
type UnlockAnnouncer struct {
	chapters    CurrentChapterSource
	broadcaster ChapterBroadcaster
	config      *config.UnlockConfig
	location    *time.Location
	logger      *slog.Logger
	scheduler   gocron.Scheduler

	mu     sync.Mutex
	seen   bool
	lastID int64
}

// NewUnlockAnnouncer creates a new unlock announcer
func NewUnlockAnnouncer(
	chapters CurrentChapterSource,
	broadcaster ChapterBroadcaster,
	cfg *config.UnlockConfig,
	location *time.Location,
	logger *slog.Logger,
) *UnlockAnnouncer {
	return &UnlockAnnouncer{
		chapters:    chapters,
		broadcaster: broadcaster,
		config:      cfg,
		location:    location,
		logger:      logger,
	}
}

// Start schedules the check, running it once immediately
func (a *UnlockAnnouncer) Start(ctx context.Context) error {
	scheduler, err := gocron.NewScheduler(gocron.WithLocation(a.location))
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(a.config.Interval),
		gocron.NewTask(func() {
			checkCtx, cancel := context.WithTimeout(ctx, time.Minute)
			defer cancel()
			a.Check(checkCtx)
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("scheduling unlock check: %w", err)
	}

	a.scheduler = scheduler
	scheduler.Start()
	a.logger.Info("unlock announcer started", "interval", a.config.Interval, "location", a.location.String())
	return nil
}

// Stop shuts the scheduler down
func (a *UnlockAnnouncer) Stop() error {
	if a.scheduler == nil {
		return nil
	}
	if err := a.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("stopping scheduler: %w", err)
	}
	a.logger.Info("unlock announcer stopped")
	return nil
}

// Check broadcasts the current chapter if it differs from the last one seen.
// It reports whether an announcement was made.
func (a *UnlockAnnouncer) Check(ctx context.Context) bool {
	current := a.chapters.GetCurrentChapter(ctx)
	if current.Err != nil {
		a.logger.Warn("unlock check failed", "error", current.Err)
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var id int64
	if current.Chapter != nil {
		id = current.Chapter.ID
	}
	if !a.seen {
		a.seen = true
		a.lastID = id
		return false
	}
	if id == a.lastID || current.Chapter == nil {
		a.lastID = id
		return false
	}

	a.lastID = id
	a.broadcaster.BroadcastChapterUnlocked(*current.Chapter)
	metrics.ChaptersAnnounced.Inc()
	a.logger.Info("chapter unlocked",
		"chapter_id", current.Chapter.ID,
		"title", current.Chapter.Title,
		"week", current.Chapter.WeekNumber,
	)
	return true
}
