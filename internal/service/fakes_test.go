package service

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/explorers-club/progress/internal/config"
	"github.com/explorers-club/progress/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func int64Ptr(v int64) *int64 {
	return &v
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type fakeProfileStore struct {
	activities map[int64]domain.Activity
	profiles   map[int64]domain.Profile
	teams      map[int64]int64

	activityErr  error
	profileErr   error
	updateErr    error
	incrementErr error
	teamErr      error

	updateCalls    int
	incrementCalls int
	teamCalls      int
	teamAmounts    []int64
}

func newFakeProfileStore() *fakeProfileStore {
	return &fakeProfileStore{
		activities: map[int64]domain.Activity{},
		profiles:   map[int64]domain.Profile{},
		teams:      map[int64]int64{},
	}
}

func (f *fakeProfileStore) GetActivity(ctx context.Context, activityID int64) (*domain.Activity, error) {
	if f.activityErr != nil {
		return nil, f.activityErr
	}
	activity, ok := f.activities[activityID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &activity, nil
}

func (f *fakeProfileStore) GetProfile(ctx context.Context, profileID int64) (*domain.Profile, error) {
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	profile, ok := f.profiles[profileID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &profile, nil
}

func (f *fakeProfileStore) UpdateProfileXP(ctx context.Context, profileID, xp, teamContribution int64) error {
	f.updateCalls++
	if f.updateErr != nil {
		return f.updateErr
	}
	profile := f.profiles[profileID]
	profile.XP = xp
	profile.TeamContribution = teamContribution
	f.profiles[profileID] = profile
	return nil
}

func (f *fakeProfileStore) IncrementProfileXP(ctx context.Context, profileID, xpDelta, contributionDelta int64) (*domain.Profile, error) {
	f.incrementCalls++
	if f.incrementErr != nil {
		return nil, f.incrementErr
	}
	profile, ok := f.profiles[profileID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	profile.XP += xpDelta
	profile.TeamContribution += contributionDelta
	f.profiles[profileID] = profile
	return &profile, nil
}

func (f *fakeProfileStore) IncrementTeamXP(ctx context.Context, teamID, amount int64) (int64, error) {
	f.teamCalls++
	if f.teamErr != nil {
		return 0, f.teamErr
	}
	f.teamAmounts = append(f.teamAmounts, amount)
	f.teams[teamID] += amount
	return f.teams[teamID], nil
}

type fakeBadgeEvaluator struct {
	badges []domain.Badge
	err    error

	calls        int
	userID       string
	profileID    int64
	xpGained     int64
	teamXPGained int64
}

func (f *fakeBadgeEvaluator) EvaluateBadges(ctx context.Context, userID string, profileID, xpGained, teamXPGained int64) ([]domain.Badge, error) {
	f.calls++
	f.userID = userID
	f.profileID = profileID
	f.xpGained = xpGained
	f.teamXPGained = teamXPGained
	return f.badges, f.err
}

type fakeChapterStore struct {
	season    *domain.Season
	seasonErr error
	chapters  []domain.Chapter
	chapErr   error
	links     []domain.ChapterActivity
	linksErr  error
	completed map[int64][]int64
	doneErr   error

	listFilters    []domain.ChapterFilter
	linkChapterIDs []int64
	completedCalls int
	completedIDs   []int64
}

func (f *fakeChapterStore) GetLatestSeason(ctx context.Context) (*domain.Season, error) {
	if f.seasonErr != nil {
		return nil, f.seasonErr
	}
	if f.season == nil {
		return nil, domain.ErrNotFound
	}
	return f.season, nil
}

func (f *fakeChapterStore) ListChapters(ctx context.Context, filter domain.ChapterFilter) ([]domain.Chapter, error) {
	f.listFilters = append(f.listFilters, filter)
	if f.chapErr != nil {
		return nil, f.chapErr
	}
	var out []domain.Chapter
	for _, ch := range f.chapters {
		if filter.SeasonID != nil && ch.SeasonID != *filter.SeasonID {
			continue
		}
		if filter.UnlockDateOnOrBefore != nil && ch.UnlockDate.After(*filter.UnlockDateOnOrBefore) {
			continue
		}
		out = append(out, ch)
	}
	return out, nil
}

func (f *fakeChapterStore) ListChapterActivities(ctx context.Context, chapterIDs []int64) ([]domain.ChapterActivity, error) {
	f.linkChapterIDs = chapterIDs
	if f.linksErr != nil {
		return nil, f.linksErr
	}
	wanted := map[int64]bool{}
	for _, id := range chapterIDs {
		wanted[id] = true
	}
	var out []domain.ChapterActivity
	for _, link := range f.links {
		if wanted[link.ChapterID] {
			out = append(out, link)
		}
	}
	return out, nil
}

func (f *fakeChapterStore) ListCompletedActivityIDs(ctx context.Context, profileID int64, activityIDs []int64) (map[int64]struct{}, error) {
	f.completedCalls++
	f.completedIDs = activityIDs
	if f.doneErr != nil {
		return nil, f.doneErr
	}
	subset := map[int64]bool{}
	for _, id := range activityIDs {
		subset[id] = true
	}
	out := map[int64]struct{}{}
	for _, id := range f.completed[profileID] {
		if subset[id] {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

type fakeFeedStore struct {
	rows      []domain.TeamCompletion
	err       error
	teamID    int64
	limit     int
	callCount int
}

func (f *fakeFeedStore) ListTeamCompletions(ctx context.Context, teamID int64, limit int) ([]domain.TeamCompletion, error) {
	f.callCount++
	f.teamID = teamID
	f.limit = limit
	return f.rows, f.err
}

func progressConfig() *config.ProgressConfig {
	return &config.ProgressConfig{
		Timezone:         "UTC",
		DefaultFeedLimit: 20,
		SocialFeedLimit:  50,
		MaxFeedLimit:     100,
	}
}
