package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/explorers-club/progress/internal/config"
	"github.com/explorers-club/progress/internal/domain"
)

// RankingSource serves precomputed rankings, normally the Redis scoreboard
type RankingSource interface {
	TopTeams(ctx context.Context, n int) ([]domain.ScoreboardEntry, error)
	TopExplorers(ctx context.Context, n int) ([]domain.ScoreboardEntry, error)
}

// TotalsStore is the durable source of team XP
type TotalsStore interface {
	ListTeamTotals(ctx context.Context) ([]domain.TeamTotals, error)
}

// ScoreboardService answers ranking queries from the realtime scoreboard,
// falling back to the store when it is unavailable
type ScoreboardService struct {
	rankings RankingSource
	totals   TotalsStore
	config   *config.ScoreboardConfig
	logger   *slog.Logger
}

// NewScoreboardService creates a new scoreboard service
func NewScoreboardService(
	rankings RankingSource,
	totals TotalsStore,
	cfg *config.ScoreboardConfig,
	logger *slog.Logger,
) *ScoreboardService {
	return &ScoreboardService{
		rankings: rankings,
		totals:   totals,
		config:   cfg,
		logger:   logger,
	}
}

// GetTopTeams returns the n highest scoring teams
func (s *ScoreboardService) GetTopTeams(ctx context.Context, n int) ([]domain.ScoreboardEntry, error) {
	n = s.normalizeLimit(n)

	if s.rankings != nil {
		entries, err := s.rankings.TopTeams(ctx, n)
		if err == nil {
			return entries, nil
		}
		s.logger.Warn("scoreboard unavailable, ranking teams from store", "error", err)
	}

	totals, err := s.totals.ListTeamTotals(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing team totals: %w", classify(err, domain.ErrQueryFailed))
	}
	return RankTeams(totals, n), nil
}

// GetTopExplorers returns the n highest scoring explorers
func (s *ScoreboardService) GetTopExplorers(ctx context.Context, n int) ([]domain.ScoreboardEntry, error) {
	n = s.normalizeLimit(n)
	if s.rankings == nil {
		return nil, fmt.Errorf("explorer rankings: %w", domain.ErrUnavailable)
	}
	entries, err := s.rankings.TopExplorers(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("getting top explorers: %w", classify(err, domain.ErrUnavailable))
	}
	return entries, nil
}

func (s *ScoreboardService) normalizeLimit(n int) int {
	if n <= 0 {
		n = s.config.DefaultLimit
	}
	if n > s.config.MaxLimit {
		n = s.config.MaxLimit
	}
	return n
}

// RankTeams orders teams by XP descending, ties by ID, and keeps the top n
func RankTeams(totals []domain.TeamTotals, n int) []domain.ScoreboardEntry {
	sorted := append([]domain.TeamTotals(nil), totals...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].TeamXP != sorted[j].TeamXP {
			return sorted[i].TeamXP > sorted[j].TeamXP
		}
		return sorted[i].TeamID < sorted[j].TeamID
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}

	entries := make([]domain.ScoreboardEntry, len(sorted))
	for i, t := range sorted {
		entries[i] = domain.ScoreboardEntry{
			Rank:  int64(i + 1),
			ID:    t.TeamID,
			Name:  t.Name,
			Score: t.TeamXP,
		}
	}
	return entries
}
