package badge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/explorers-club/progress/internal/domain"
)

type fakeStore struct {
	badges   []domain.Badge
	held     map[int64]struct{}
	stats    domain.BadgeContext
	statsErr error
	awardErr error
	raced    map[int64]bool

	awarded []int64
}

func (f *fakeStore) ListBadges(ctx context.Context) ([]domain.Badge, error) {
	return f.badges, nil
}

func (f *fakeStore) ListAwardedBadgeIDs(ctx context.Context, profileID int64) (map[int64]struct{}, error) {
	if f.held == nil {
		return map[int64]struct{}{}, nil
	}
	return f.held, nil
}

func (f *fakeStore) GetBadgeStats(ctx context.Context, profileID int64) (*domain.BadgeContext, error) {
	if f.statsErr != nil {
		return nil, f.statsErr
	}
	stats := f.stats
	return &stats, nil
}

func (f *fakeStore) AwardBadge(ctx context.Context, profileID, badgeID int64) (bool, error) {
	if f.awardErr != nil {
		return false, f.awardErr
	}
	if f.raced[badgeID] {
		return false, nil
	}
	f.awarded = append(f.awarded, badgeID)
	return true, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEvaluateBadgesAwardsNewlyMetBadges(t *testing.T) {
	store := &fakeStore{
		badges: []domain.Badge{
			{ID: 1, Name: "First Steps", Criteria: map[string]int64{"completions": 1}},
			{ID: 2, Name: "Centurion", Criteria: map[string]int64{"xp": 100}},
			{ID: 3, Name: "Legend", Criteria: map[string]int64{"xp": 1000}},
			{ID: 4, Name: "Manual", Criteria: nil},
			{ID: 5, Name: "Team Player", Criteria: map[string]int64{"team_contribution": 50, "completions": 3}},
		},
		held:  map[int64]struct{}{1: {}},
		stats: domain.BadgeContext{XP: 110, TeamContribution: 55, Completions: 4},
	}
	evaluator := NewEvaluator(store, testLogger())

	badges, err := evaluator.EvaluateBadges(context.Background(), "user-7", 7, 10, 5)
	if err != nil {
		t.Fatalf("evaluate badges: %v", err)
	}
	if len(badges) != 2 || badges[0].ID != 2 || badges[1].ID != 5 {
		t.Fatalf("expected badges 2 and 5, got %+v", badges)
	}
	if len(store.awarded) != 2 {
		t.Fatalf("expected 2 inserts, got %v", store.awarded)
	}
}

func TestEvaluateBadgesSkipsConcurrentAward(t *testing.T) {
	store := &fakeStore{
		badges: []domain.Badge{{ID: 2, Criteria: map[string]int64{"xp": 100}}},
		stats:  domain.BadgeContext{XP: 110},
		raced:  map[int64]bool{2: true},
	}
	evaluator := NewEvaluator(store, testLogger())

	badges, err := evaluator.EvaluateBadges(context.Background(), "user-7", 7, 10, 5)
	if err != nil {
		t.Fatalf("evaluate badges: %v", err)
	}
	if len(badges) != 0 {
		t.Fatalf("expected no badges, got %+v", badges)
	}
}

func TestEvaluateBadgesErrors(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name  string
		store *fakeStore
	}{
		{name: "stats", store: &fakeStore{
			badges:   []domain.Badge{{ID: 1, Criteria: map[string]int64{"xp": 1}}},
			statsErr: boom,
		}},
		{name: "award", store: &fakeStore{
			badges:   []domain.Badge{{ID: 1, Criteria: map[string]int64{"xp": 1}}},
			stats:    domain.BadgeContext{XP: 5},
			awardErr: boom,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evaluator := NewEvaluator(tt.store, testLogger())
			if _, err := evaluator.EvaluateBadges(context.Background(), "u", 1, 1, 0); !errors.Is(err, boom) {
				t.Fatalf("expected wrapped boom, got %v", err)
			}
		})
	}
}

func TestMeetsThreshold(t *testing.T) {
	stats := &domain.BadgeContext{XP: 100, TeamContribution: 50, Completions: 3, XPGained: 20, TeamXPGained: 10}
	tests := []struct {
		name     string
		criteria map[string]int64
		want     bool
	}{
		{name: "empty", criteria: map[string]int64{}, want: false},
		{name: "exact xp", criteria: map[string]int64{"xp": 100}, want: true},
		{name: "short xp", criteria: map[string]int64{"xp": 101}, want: false},
		{name: "activity xp", criteria: map[string]int64{"activity_xp": 20}, want: true},
		{name: "team gain", criteria: map[string]int64{"team_xp_gained": 11}, want: false},
		{name: "all met", criteria: map[string]int64{"completions": 3, "team_contribution": 50}, want: true},
		{name: "one short", criteria: map[string]int64{"completions": 4, "team_contribution": 50}, want: false},
		{name: "unknown key", criteria: map[string]int64{"streak": 1}, want: false},
	}
	for _, tt := range tests {
		if got := MeetsThreshold(stats, tt.criteria); got != tt.want {
			t.Fatalf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
	}
}
