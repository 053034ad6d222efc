package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/explorers-club/progress/internal/config"
	"github.com/explorers-club/progress/internal/domain"
)

// ChapterAggregator gates story chapters by unlock date and tallies progress.
// Its queries report failures inside the result instead of returning an error.
type ChapterAggregator struct {
	store   ChapterStore
	loc     *time.Location
	clock   func() time.Time
	timeout time.Duration
	logger  *slog.Logger
}

// NewChapterAggregator creates a chapter aggregator using the club timezone
func NewChapterAggregator(store ChapterStore, cfg *config.ProgressConfig, logger *slog.Logger) (*ChapterAggregator, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return &ChapterAggregator{
		store:   store,
		loc:     loc,
		clock:   time.Now,
		timeout: cfg.StoreTimeout,
		logger:  logger,
	}, nil
}

// Today returns the current calendar day in the club timezone
func (a *ChapterAggregator) Today() time.Time {
	return domain.CalendarDay(a.clock(), a.loc)
}

// GetCurrentChapter returns the latest unlocked chapter of the newest season
// and the date the next one unlocks.
func (a *ChapterAggregator) GetCurrentChapter(ctx context.Context) domain.CurrentChapter {
	today := a.Today()

	var season *domain.Season
	err := callStore(ctx, a.timeout, func(ctx context.Context) error {
		var err error
		season, err = a.store.GetLatestSeason(ctx)
		return err
	})
	if err != nil {
		a.logger.Error("failed to load latest season", "error", err)
		return domain.CurrentChapter{Err: fmt.Errorf("loading latest season: %w", classify(err, domain.ErrQueryFailed))}
	}

	seasonID := season.ID
	var chapters []domain.Chapter
	err = callStore(ctx, a.timeout, func(ctx context.Context) error {
		var err error
		chapters, err = a.store.ListChapters(ctx, domain.ChapterFilter{SeasonID: &seasonID})
		return err
	})
	if err != nil {
		a.logger.Error("failed to list season chapters", "season_id", seasonID, "error", err)
		return domain.CurrentChapter{Err: fmt.Errorf("listing chapters of season %d: %w", seasonID, classify(err, domain.ErrQueryFailed))}
	}

	return domain.CurrentChapter{
		Chapter:         CurrentChapterOf(chapters, today),
		NextChapterDate: NextUnlockDate(chapters, today),
	}
}

// GetChapterProgress tallies, for every unlocked chapter of every season, how
// many linked activities exist and how many the profile has completed. A nil
// profileID counts nothing as completed and skips the completion query.
func (a *ChapterAggregator) GetChapterProgress(ctx context.Context, profileID *int64) domain.ChapterProgress {
	today := a.Today()
	progress := domain.ChapterProgress{Chapters: map[int64]domain.ChapterCount{}}

	var chapters []domain.Chapter
	err := callStore(ctx, a.timeout, func(ctx context.Context) error {
		var err error
		chapters, err = a.store.ListChapters(ctx, domain.ChapterFilter{UnlockDateOnOrBefore: &today})
		return err
	})
	if err != nil {
		a.logger.Error("failed to list unlocked chapters", "error", err)
		progress.Err = fmt.Errorf("listing unlocked chapters: %w", classify(err, domain.ErrQueryFailed))
		return progress
	}
	if len(chapters) == 0 {
		return progress
	}

	chapterIDs := make([]int64, 0, len(chapters))
	for _, ch := range chapters {
		chapterIDs = append(chapterIDs, ch.ID)
	}

	var links []domain.ChapterActivity
	err = callStore(ctx, a.timeout, func(ctx context.Context) error {
		var err error
		links, err = a.store.ListChapterActivities(ctx, chapterIDs)
		return err
	})
	if err != nil {
		a.logger.Error("failed to list chapter activities", "error", err)
		progress.Err = fmt.Errorf("listing chapter activities: %w", classify(err, domain.ErrQueryFailed))
		return progress
	}

	linked := groupChapterActivities(chapterIDs, links)
	activityIDs := distinctActivityIDs(linked)

	completed := map[int64]struct{}{}
	if profileID != nil && len(activityIDs) > 0 {
		err = callStore(ctx, a.timeout, func(ctx context.Context) error {
			var err error
			completed, err = a.store.ListCompletedActivityIDs(ctx, *profileID, activityIDs)
			return err
		})
		if err != nil {
			a.logger.Error("failed to list completed activities", "profile_id", *profileID, "error", err)
			progress.Err = fmt.Errorf("listing completed activities of profile %d: %w", *profileID, classify(err, domain.ErrQueryFailed))
			return progress
		}
	}

	for _, id := range chapterIDs {
		count := domain.ChapterCount{Total: len(linked[id])}
		for _, activityID := range linked[id] {
			if _, ok := completed[activityID]; ok {
				count.Completed++
			}
		}
		progress.Chapters[id] = count
	}

	return progress
}

// CurrentChapterOf returns the unlocked chapter with the latest unlock date.
// Chapters sharing that date resolve to the highest id.
func CurrentChapterOf(chapters []domain.Chapter, today time.Time) *domain.Chapter {
	var current *domain.Chapter
	for i := range chapters {
		ch := &chapters[i]
		if !ch.IsUnlocked(today) {
			continue
		}
		if current == nil ||
			ch.UnlockDate.After(current.UnlockDate) ||
			(ch.UnlockDate.Equal(current.UnlockDate) && ch.ID > current.ID) {
			current = ch
		}
	}
	if current == nil {
		return nil
	}
	found := *current
	return &found
}

// NextUnlockDate returns the earliest unlock date after today, or nil
func NextUnlockDate(chapters []domain.Chapter, today time.Time) *time.Time {
	var next *time.Time
	for i := range chapters {
		date := chapters[i].UnlockDate
		if !date.After(today) {
			continue
		}
		if next == nil || date.Before(*next) {
			d := date
			next = &d
		}
	}
	return next
}

// groupChapterActivities maps each known chapter to its distinct activity ids.
// Links to chapters outside chapterIDs are ignored.
func groupChapterActivities(chapterIDs []int64, links []domain.ChapterActivity) map[int64][]int64 {
	linked := make(map[int64][]int64, len(chapterIDs))
	seen := make(map[int64]map[int64]struct{}, len(chapterIDs))
	for _, id := range chapterIDs {
		linked[id] = nil
		seen[id] = map[int64]struct{}{}
	}
	for _, link := range links {
		ids, ok := seen[link.ChapterID]
		if !ok {
			continue
		}
		if _, dup := ids[link.ActivityID]; dup {
			continue
		}
		ids[link.ActivityID] = struct{}{}
		linked[link.ChapterID] = append(linked[link.ChapterID], link.ActivityID)
	}
	return linked
}

func distinctActivityIDs(linked map[int64][]int64) []int64 {
	seen := map[int64]struct{}{}
	var ids []int64
	for _, activityIDs := range linked {
		for _, id := range activityIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}
