package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/explorers-club/progress/internal/domain"
	"github.com/explorers-club/progress/internal/metrics"
)

// ProfileStore is the slice of the progress store the award engine writes to
type ProfileStore interface {
	GetActivity(ctx context.Context, activityID int64) (*domain.Activity, error)
	GetProfile(ctx context.Context, profileID int64) (*domain.Profile, error)
	UpdateProfileXP(ctx context.Context, profileID, xp, teamContribution int64) error
	IncrementProfileXP(ctx context.Context, profileID, xpDelta, contributionDelta int64) (*domain.Profile, error)
	IncrementTeamXP(ctx context.Context, teamID, amount int64) (int64, error)
}

// BadgeEvaluator decides which badges a completion newly earns
type BadgeEvaluator interface {
	EvaluateBadges(ctx context.Context, userID string, profileID, xpGained, teamXPGained int64) ([]domain.Badge, error)
}

// ChapterStore is the read side used by the chapter aggregator
type ChapterStore interface {
	GetLatestSeason(ctx context.Context) (*domain.Season, error)
	ListChapters(ctx context.Context, filter domain.ChapterFilter) ([]domain.Chapter, error)
	ListChapterActivities(ctx context.Context, chapterIDs []int64) ([]domain.ChapterActivity, error)
	ListCompletedActivityIDs(ctx context.Context, profileID int64, activityIDs []int64) (map[int64]struct{}, error)
}

// FeedStore lists joined completion rows for a team
type FeedStore interface {
	ListTeamCompletions(ctx context.Context, teamID int64, limit int) ([]domain.TeamCompletion, error)
}

// CompletionStore records which activities a profile has completed
type CompletionStore interface {
	ClaimCompletion(ctx context.Context, profileID, activityID int64, notes string, completedAt time.Time) (bool, error)
	ReleaseCompletion(ctx context.Context, profileID, activityID int64) error
	GetCompletion(ctx context.Context, profileID, activityID int64) (*domain.TeamCompletion, error)
}

// callStore bounds a store call by timeout. A deadline expiry is reported as
// domain.ErrUnavailable.
func callStore(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	err := fn(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		metrics.StoreTimeouts.Inc()
		return fmt.Errorf("%w: %w", domain.ErrUnavailable, err)
	}
	return err
}

// classify tags a store error with kind unless it already carries a more
// specific domain error.
func classify(err error, kind error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrUnavailable),
		errors.Is(err, domain.ErrInvalidRequest),
		errors.Is(err, kind):
		return err
	default:
		return fmt.Errorf("%w: %w", kind, err)
	}
}
