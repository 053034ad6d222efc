package badge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/explorers-club/progress/internal/domain"
	"github.com/explorers-club/progress/internal/metrics"
)

// Store is the badge persistence used by the evaluator
type Store interface {
	ListBadges(ctx context.Context) ([]domain.Badge, error)
	ListAwardedBadgeIDs(ctx context.Context, profileID int64) (map[int64]struct{}, error)
	GetBadgeStats(ctx context.Context, profileID int64) (*domain.BadgeContext, error)
	AwardBadge(ctx context.Context, profileID, badgeID int64) (bool, error)
}

// Evaluator awards every badge whose criteria the profile now meets
type Evaluator struct {
	store  Store
	logger *slog.Logger
}

// NewEvaluator creates a new badge evaluator
func NewEvaluator(store Store, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		store:  store,
		logger: logger,
	}
}

// EvaluateBadges checks all badges against the profile's current totals and
// the gains of the completion that triggered the check. Only badges awarded by
// this call are returned.
func (e *Evaluator) EvaluateBadges(ctx context.Context, userID string, profileID, xpGained, teamXPGained int64) ([]domain.Badge, error) {
	badges, err := e.store.ListBadges(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing badges: %w", err)
	}
	if len(badges) == 0 {
		return []domain.Badge{}, nil
	}

	held, err := e.store.ListAwardedBadgeIDs(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("listing awarded badges: %w", err)
	}

	stats, err := e.store.GetBadgeStats(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("loading badge stats: %w", err)
	}
	stats.UserID = userID
	stats.ProfileID = profileID
	stats.XPGained = xpGained
	stats.TeamXPGained = teamXPGained

	awarded := []domain.Badge{}
	for _, b := range badges {
		if _, ok := held[b.ID]; ok {
			continue
		}
		if !MeetsThreshold(stats, b.Criteria) {
			continue
		}

		inserted, err := e.store.AwardBadge(ctx, profileID, b.ID)
		if err != nil {
			return awarded, fmt.Errorf("awarding badge %d: %w", b.ID, err)
		}
		if !inserted {
			// Awarded concurrently by another completion
			continue
		}

		metrics.BadgesAwarded.Inc()
		e.logger.Info("badge awarded",
			"badge_id", b.ID,
			"badge", b.Name,
			"profile_id", profileID,
		)
		awarded = append(awarded, b)
	}

	return awarded, nil
}

// MeetsThreshold reports whether every criterion is satisfied. Empty criteria
// and unknown keys never match.
func MeetsThreshold(stats *domain.BadgeContext, criteria map[string]int64) bool {
	if len(criteria) == 0 {
		return false
	}
	for key, required := range criteria {
		var have int64
		switch key {
		case domain.CriterionXP:
			have = stats.XP
		case domain.CriterionTeamContribution:
			have = stats.TeamContribution
		case domain.CriterionCompletions:
			have = stats.Completions
		case domain.CriterionActivityXP:
			have = stats.XPGained
		case domain.CriterionTeamXPGained:
			have = stats.TeamXPGained
		default:
			return false
		}
		if have < required {
			return false
		}
	}
	return true
}
