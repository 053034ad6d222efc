package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/explorers-club/progress/internal/config"
	"github.com/explorers-club/progress/internal/domain"
	"github.com/explorers-club/progress/internal/metrics"
)

// TeamShare is the XP a team receives for a member's reward: half, rounded down
func TeamShare(xp int64) int64 {
	if xp <= 0 {
		return 0
	}
	return xp / 2
}

// AwardEngine credits completed activities to profiles and their teams
type AwardEngine struct {
	store  ProfileStore
	badges BadgeEvaluator
	config *config.ProgressConfig
	logger *slog.Logger
}

// NewAwardEngine creates a new award engine
func NewAwardEngine(store ProfileStore, badges BadgeEvaluator, cfg *config.ProgressConfig, logger *slog.Logger) *AwardEngine {
	return &AwardEngine{
		store:  store,
		badges: badges,
		config: cfg,
		logger: logger,
	}
}

// CompleteActivity awards an activity's XP to a profile and half of it to the
// profile's team, then evaluates badges.
//
// The profile update is authoritative: if it fails nothing is credited. The
// team increment is best-effort and only logged on failure. Badge failures
// are returned wrapped in domain.ErrBadgeEvaluation after XP has been
// persisted, unless the engine is configured to swallow them.
func (e *AwardEngine) CompleteActivity(ctx context.Context, activityID, profileID int64) (*domain.AwardResult, error) {
	var activity *domain.Activity
	err := callStore(ctx, e.config.StoreTimeout, func(ctx context.Context) error {
		var err error
		activity, err = e.store.GetActivity(ctx, activityID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("loading activity %d: %w", activityID, classify(err, domain.ErrQueryFailed))
	}
	if activity.XP < 0 {
		return nil, fmt.Errorf("activity %d has negative xp %d: %w", activityID, activity.XP, domain.ErrInvalidRequest)
	}

	var profile *domain.Profile
	err = callStore(ctx, e.config.StoreTimeout, func(ctx context.Context) error {
		var err error
		profile, err = e.store.GetProfile(ctx, profileID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("loading profile %d: %w", profileID, classify(err, domain.ErrQueryFailed))
	}

	teamXPGained := TeamShare(activity.XP)
	result := &domain.AwardResult{
		Success:      true,
		XPGained:     activity.XP,
		TeamXPGained: teamXPGained,
		TeamID:       profile.TeamID,
		NewBadges:    []domain.Badge{},
	}

	if err := e.creditProfile(ctx, profile, activity.XP, teamXPGained, result); err != nil {
		if errors.Is(err, domain.ErrUnavailable) || errors.Is(err, context.Canceled) {
			// The write may have committed before the deadline cut it off
			return nil, fmt.Errorf("crediting profile %d: %w: %w", profileID, domain.ErrCreditUncertain, err)
		}
		return nil, fmt.Errorf("crediting profile %d: %w", profileID, classify(err, domain.ErrUpdateFailed))
	}
	metrics.XPAwarded.Add(float64(activity.XP))

	if profile.HasTeam() {
		teamID := *profile.TeamID
		err := callStore(ctx, e.config.StoreTimeout, func(ctx context.Context) error {
			_, err := e.store.IncrementTeamXP(ctx, teamID, teamXPGained)
			return err
		})
		if err != nil {
			metrics.TeamXPFailures.Inc()
			e.logger.Warn("failed to increment team xp",
				"team_id", teamID,
				"profile_id", profileID,
				"amount", teamXPGained,
				"error", err,
			)
		} else {
			result.TeamXPUpdated = true
		}
	} else {
		e.logger.Warn("profile has no team, skipping team xp", "profile_id", profileID)
	}

	var badges []domain.Badge
	err = callStore(ctx, e.config.StoreTimeout, func(ctx context.Context) error {
		var err error
		badges, err = e.badges.EvaluateBadges(ctx, profile.UserID, profileID, activity.XP, teamXPGained)
		return err
	})
	if err != nil {
		metrics.BadgeFailures.Inc()
		if !e.config.SwallowBadgeErrors {
			return nil, fmt.Errorf("%w: profile %d: %w", domain.ErrBadgeEvaluation, profileID, err)
		}
		e.logger.Warn("badge evaluation failed, returning no badges",
			"profile_id", profileID,
			"activity_id", activityID,
			"error", err,
		)
	} else if len(badges) > 0 {
		result.NewBadges = badges
	}

	e.logger.Info("activity completed",
		"profile_id", profileID,
		"activity_id", activityID,
		"xp_gained", result.XPGained,
		"team_xp_gained", result.TeamXPGained,
		"new_badges", len(result.NewBadges),
	)

	return result, nil
}

// creditProfile persists the new xp and team contribution
func (e *AwardEngine) creditProfile(ctx context.Context, profile *domain.Profile, xp, teamXP int64, result *domain.AwardResult) error {
	if e.config.AtomicProfileIncrement {
		return callStore(ctx, e.config.StoreTimeout, func(ctx context.Context) error {
			updated, err := e.store.IncrementProfileXP(ctx, profile.ID, xp, teamXP)
			if err != nil {
				return err
			}
			result.NewXP = updated.XP
			result.NewTeamContribution = updated.TeamContribution
			return nil
		})
	}

	newXP := profile.XP + xp
	newContribution := profile.TeamContribution + teamXP
	err := callStore(ctx, e.config.StoreTimeout, func(ctx context.Context) error {
		return e.store.UpdateProfileXP(ctx, profile.ID, newXP, newContribution)
	})
	if err != nil {
		return err
	}
	result.NewXP = newXP
	result.NewTeamContribution = newContribution
	return nil
}
