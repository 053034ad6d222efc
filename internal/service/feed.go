package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/explorers-club/progress/internal/config"
	"github.com/explorers-club/progress/internal/domain"
)

// FeedBuilder produces the reverse-chronological activity feed of a team
type FeedBuilder struct {
	store  FeedStore
	config *config.ProgressConfig
	logger *slog.Logger
}

// NewFeedBuilder creates a new feed builder
func NewFeedBuilder(store FeedStore, cfg *config.ProgressConfig, logger *slog.Logger) *FeedBuilder {
	return &FeedBuilder{
		store:  store,
		config: cfg,
		logger: logger,
	}
}

// GetTeamActivityLogs returns up to limit completed activities of the team's
// members, newest first. A non-positive limit uses the default feed size.
func (b *FeedBuilder) GetTeamActivityLogs(ctx context.Context, teamID int64, limit int) ([]domain.FeedEntry, error) {
	limit = b.normalizeLimit(limit)

	var rows []domain.TeamCompletion
	err := callStore(ctx, b.config.StoreTimeout, func(ctx context.Context) error {
		var err error
		rows, err = b.store.ListTeamCompletions(ctx, teamID, limit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing completions of team %d: %w", teamID, classify(err, domain.ErrQueryFailed))
	}

	entries := BuildFeed(rows, teamID, limit)
	b.logger.Debug("built team feed", "team_id", teamID, "limit", limit, "entries", len(entries))
	return entries, nil
}

// GetSocialFeed is GetTeamActivityLogs sized for the social view. A
// non-positive limit uses the social feed size instead of the default.
func (b *FeedBuilder) GetSocialFeed(ctx context.Context, teamID int64, limit int) ([]domain.FeedEntry, error) {
	if limit <= 0 {
		limit = b.config.SocialFeedLimit
	}
	return b.GetTeamActivityLogs(ctx, teamID, limit)
}

func (b *FeedBuilder) normalizeLimit(limit int) int {
	if limit <= 0 {
		limit = b.config.DefaultFeedLimit
	}
	if b.config.MaxFeedLimit > 0 && limit > b.config.MaxFeedLimit {
		limit = b.config.MaxFeedLimit
	}
	return limit
}

// BuildFeed keeps the team's completed rows, orders them by completion time
// descending and truncates to limit.
func BuildFeed(rows []domain.TeamCompletion, teamID int64, limit int) []domain.FeedEntry {
	entries := make([]domain.FeedEntry, 0, len(rows))
	for _, row := range rows {
		if row.CompletedAt == nil || row.Profile.TeamID != teamID {
			continue
		}
		entries = append(entries, NewFeedEntry(row))
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CompletedAt.After(entries[j].CompletedAt)
	})

	if limit >= 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// NewFeedEntry converts a completed row into a feed entry. The row must have
// a completion time.
func NewFeedEntry(row domain.TeamCompletion) domain.FeedEntry {
	entry := domain.FeedEntry{
		Profile:  row.Profile,
		Activity: row.Activity,
		Notes:    row.Notes,
		Status:   domain.FeedStatusCompleted,
	}
	if row.CompletedAt != nil {
		entry.CompletedAt = *row.CompletedAt
	}
	return entry
}
