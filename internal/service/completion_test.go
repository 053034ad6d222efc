package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/explorers-club/progress/internal/domain"
	"github.com/explorers-club/progress/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type claimKey struct {
	profileID  int64
	activityID int64
}

type fakeCompletionStore struct {
	claimed    map[claimKey]time.Time
	claimErr   error
	releaseErr error
	// releaseFailures fails that many releases before succeeding
	releaseFailures int
	getErr          error
	row             *domain.TeamCompletion

	releases []claimKey
}

func newFakeCompletionStore() *fakeCompletionStore {
	return &fakeCompletionStore{claimed: map[claimKey]time.Time{}}
}

func (f *fakeCompletionStore) ClaimCompletion(ctx context.Context, profileID, activityID int64, notes string, completedAt time.Time) (bool, error) {
	if f.claimErr != nil {
		return false, f.claimErr
	}
	key := claimKey{profileID, activityID}
	if _, ok := f.claimed[key]; ok {
		return false, nil
	}
	f.claimed[key] = completedAt
	return true, nil
}

func (f *fakeCompletionStore) ReleaseCompletion(ctx context.Context, profileID, activityID int64) error {
	key := claimKey{profileID, activityID}
	f.releases = append(f.releases, key)
	if f.releaseErr != nil {
		return f.releaseErr
	}
	if f.releaseFailures > 0 {
		f.releaseFailures--
		return errors.New("connection reset")
	}
	delete(f.claimed, key)
	return nil
}

func (f *fakeCompletionStore) GetCompletion(ctx context.Context, profileID, activityID int64) (*domain.TeamCompletion, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.row, nil
}

type fakeAwarder struct {
	result *domain.AwardResult
	err    error
	calls  int
}

func (f *fakeAwarder) CompleteActivity(ctx context.Context, activityID, profileID int64) (*domain.AwardResult, error) {
	f.calls++
	return f.result, f.err
}

type fakeScoreboard struct {
	explorers map[int64]int64
	teams     map[int64]int64
	err       error
}

func (f *fakeScoreboard) IncrementExplorer(ctx context.Context, profileID, delta int64) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.explorers[profileID] += delta
	return f.explorers[profileID], nil
}

func (f *fakeScoreboard) IncrementTeam(ctx context.Context, teamID, delta int64) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.teams[teamID] += delta
	return f.teams[teamID], nil
}

type fakeNotifier struct {
	entries   map[int64][]domain.FeedEntry
	teamTotal map[int64]int64
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{entries: map[int64][]domain.FeedEntry{}, teamTotal: map[int64]int64{}}
}

func (f *fakeNotifier) BroadcastFeedEntry(teamID int64, entry domain.FeedEntry) {
	f.entries[teamID] = append(f.entries[teamID], entry)
}

func (f *fakeNotifier) BroadcastTeamXP(teamID, gained, total int64) {
	f.teamTotal[teamID] = total
}

func newCompletionFixture() (*CompletionService, *fakeCompletionStore, *fakeAwarder) {
	store := newFakeCompletionStore()
	awarder := &fakeAwarder{result: &domain.AwardResult{
		Success:       true,
		XPGained:      10,
		TeamXPGained:  5,
		TeamID:        int64Ptr(3),
		TeamXPUpdated: true,
		NewBadges:     []domain.Badge{},
	}}
	svc := NewCompletionService(store, awarder, progressConfig(), testLogger())
	svc.clock = func() time.Time { return time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC) }
	return svc, store, awarder
}

func TestSubmitCreditsOnceAndBroadcasts(t *testing.T) {
	svc, store, awarder := newCompletionFixture()
	completedAt := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	store.row = &domain.TeamCompletion{
		Profile:     domain.ProfileSummary{ID: 7, Name: "Robin", TeamID: 3},
		Activity:    domain.ActivitySummary{ID: 1, Title: "Build a den", XP: 10},
		CompletedAt: &completedAt,
	}
	scoreboard := &fakeScoreboard{explorers: map[int64]int64{}, teams: map[int64]int64{3: 100}}
	notifier := newFakeNotifier()
	svc.SetScoreboard(scoreboard)
	svc.SetNotifier(notifier)

	outcome, err := svc.Submit(context.Background(), domain.CompletionSubmission{ProfileID: 7, ActivityID: 1})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if outcome.Award.XPGained != 10 {
		t.Fatalf("expected 10 xp, got %d", outcome.Award.XPGained)
	}
	if outcome.Entry.Profile.Name != "Robin" || outcome.Entry.Status != domain.FeedStatusCompleted {
		t.Fatalf("unexpected entry: %+v", outcome.Entry)
	}
	if scoreboard.explorers[7] != 10 || scoreboard.teams[3] != 105 {
		t.Fatalf("expected scoreboard mirrored, got %v %v", scoreboard.explorers, scoreboard.teams)
	}
	if len(notifier.entries[3]) != 1 || notifier.teamTotal[3] != 105 {
		t.Fatalf("expected broadcasts for team 3, got %v %v", notifier.entries, notifier.teamTotal)
	}

	_, err = svc.Submit(context.Background(), domain.CompletionSubmission{ProfileID: 7, ActivityID: 1})
	if !errors.Is(err, domain.ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted, got %v", err)
	}
	if awarder.calls != 1 {
		t.Fatalf("expected award engine invoked once, got %d", awarder.calls)
	}
}

func TestSubmitReleasesClaimWhenXPNotCredited(t *testing.T) {
	svc, store, awarder := newCompletionFixture()
	awarder.err = domain.ErrUpdateFailed

	_, err := svc.Submit(context.Background(), domain.CompletionSubmission{ProfileID: 7, ActivityID: 1})
	if !errors.Is(err, domain.ErrUpdateFailed) {
		t.Fatalf("expected ErrUpdateFailed, got %v", err)
	}
	if len(store.releases) != 1 {
		t.Fatalf("expected claim released, got %v", store.releases)
	}
	if len(store.claimed) != 0 {
		t.Fatal("expected no remaining claim")
	}
}

func TestSubmitRetriesRelease(t *testing.T) {
	svc, store, awarder := newCompletionFixture()
	awarder.err = domain.ErrUpdateFailed
	store.releaseFailures = 1

	_, err := svc.Submit(context.Background(), domain.CompletionSubmission{ProfileID: 7, ActivityID: 1})
	if !errors.Is(err, domain.ErrUpdateFailed) {
		t.Fatalf("expected ErrUpdateFailed, got %v", err)
	}
	if len(store.releases) != 2 {
		t.Fatalf("expected 2 release attempts, got %d", len(store.releases))
	}
	if len(store.claimed) != 0 {
		t.Fatal("expected claim released on second attempt")
	}
}

func TestSubmitReportsUnreleasedClaim(t *testing.T) {
	svc, store, awarder := newCompletionFixture()
	awarder.err = domain.ErrUpdateFailed
	store.releaseErr = errors.New("connection refused")
	stuck := testutil.ToFloat64(metrics.StuckClaims)

	_, err := svc.Submit(context.Background(), domain.CompletionSubmission{ProfileID: 7, ActivityID: 1})
	if !errors.Is(err, domain.ErrUpdateFailed) {
		t.Fatalf("expected ErrUpdateFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "claim not released") {
		t.Fatalf("expected error to report the held claim, got %v", err)
	}
	if len(store.releases) != releaseAttempts {
		t.Fatalf("expected %d release attempts, got %d", releaseAttempts, len(store.releases))
	}
	if got := testutil.ToFloat64(metrics.StuckClaims) - stuck; got != 1 {
		t.Fatalf("expected stuck claims to grow by 1, got %v", got)
	}
}

// committedThenSlowStore applies the profile write and then stalls until the
// caller gives up, as a database does when the reply is lost after COMMIT.
type committedThenSlowStore struct {
	*fakeProfileStore
}

func (s committedThenSlowStore) UpdateProfileXP(ctx context.Context, profileID, xp, teamContribution int64) error {
	if err := s.fakeProfileStore.UpdateProfileXP(ctx, profileID, xp, teamContribution); err != nil {
		return err
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s committedThenSlowStore) IncrementProfileXP(ctx context.Context, profileID, xpDelta, contributionDelta int64) (*domain.Profile, error) {
	if _, err := s.fakeProfileStore.IncrementProfileXP(ctx, profileID, xpDelta, contributionDelta); err != nil {
		return nil, err
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestSubmitKeepsClaimWhenCreditTimesOut(t *testing.T) {
	for _, atomic := range []bool{false, true} {
		profiles, badges := newAwardFixture()
		cfg := progressConfig()
		cfg.StoreTimeout = 20 * time.Millisecond
		cfg.AtomicProfileIncrement = atomic
		engine := NewAwardEngine(committedThenSlowStore{profiles}, badges, cfg, testLogger())

		completions := newFakeCompletionStore()
		svc := NewCompletionService(completions, engine, cfg, testLogger())
		submission := domain.CompletionSubmission{ProfileID: 7, ActivityID: 1}

		_, err := svc.Submit(context.Background(), submission)
		if !domain.IsCreditUncertain(err) {
			t.Fatalf("atomic=%v: expected uncertain credit, got %v", atomic, err)
		}
		if domain.IsRetryable(err) {
			t.Fatalf("atomic=%v: uncertain credit must not be retryable", atomic)
		}
		if len(completions.releases) != 0 {
			t.Fatalf("atomic=%v: expected claim kept, got releases %v", atomic, completions.releases)
		}

		if _, err := svc.Submit(context.Background(), submission); !errors.Is(err, domain.ErrAlreadyCompleted) {
			t.Fatalf("atomic=%v: expected ErrAlreadyCompleted on resubmit, got %v", atomic, err)
		}
		if xp := profiles.profiles[7].XP; xp != 110 {
			t.Fatalf("atomic=%v: expected xp 110, got %d", atomic, xp)
		}
	}
}

func TestSubmitKeepsClaimWhenBadgesFailAfterXP(t *testing.T) {
	svc, store, awarder := newCompletionFixture()
	awarder.err = errors.Join(domain.ErrBadgeEvaluation, errors.New("rules offline"))

	_, err := svc.Submit(context.Background(), domain.CompletionSubmission{ProfileID: 7, ActivityID: 1})
	if !errors.Is(err, domain.ErrBadgeEvaluation) {
		t.Fatalf("expected ErrBadgeEvaluation, got %v", err)
	}
	if len(store.releases) != 0 {
		t.Fatal("expected claim kept so xp is not credited twice")
	}

	_, err = svc.Submit(context.Background(), domain.CompletionSubmission{ProfileID: 7, ActivityID: 1})
	if !errors.Is(err, domain.ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted on retry, got %v", err)
	}
}

func TestSubmitValidation(t *testing.T) {
	svc, _, awarder := newCompletionFixture()

	_, err := svc.Submit(context.Background(), domain.CompletionSubmission{ProfileID: 7})
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if awarder.calls != 0 {
		t.Fatal("expected no award for invalid submission")
	}
}

func TestSubmitClaimFailure(t *testing.T) {
	svc, store, awarder := newCompletionFixture()
	store.claimErr = errors.New("insert failed")

	_, err := svc.Submit(context.Background(), domain.CompletionSubmission{ProfileID: 7, ActivityID: 1})
	if !errors.Is(err, domain.ErrUpdateFailed) {
		t.Fatalf("expected ErrUpdateFailed, got %v", err)
	}
	if awarder.calls != 0 {
		t.Fatal("expected no award when claim fails")
	}
}

func TestSubmitFallsBackToBareEntry(t *testing.T) {
	svc, store, _ := newCompletionFixture()
	store.getErr = errors.New("lookup failed")
	notifier := newFakeNotifier()
	svc.SetNotifier(notifier)

	outcome, err := svc.Submit(context.Background(), domain.CompletionSubmission{ProfileID: 7, ActivityID: 1, Notes: "muddy"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if outcome.Entry.Profile.ID != 7 || outcome.Entry.Activity.ID != 1 || outcome.Entry.Notes != "muddy" {
		t.Fatalf("unexpected fallback entry: %+v", outcome.Entry)
	}
	if len(notifier.entries[3]) != 1 {
		t.Fatal("expected fallback entry broadcast")
	}
}

func TestSubmitScoreboardFailureIsNotFatal(t *testing.T) {
	svc, _, _ := newCompletionFixture()
	svc.SetScoreboard(&fakeScoreboard{err: errors.New("redis down")})

	if _, err := svc.Submit(context.Background(), domain.CompletionSubmission{ProfileID: 7, ActivityID: 1}); err != nil {
		t.Fatalf("expected scoreboard failure ignored, got %v", err)
	}
}

func TestSubmitBatchContinuesPastFailures(t *testing.T) {
	svc, store, awarder := newCompletionFixture()
	store.claimed[claimKey{7, 1}] = time.Now()

	err := svc.SubmitBatch(context.Background(), []domain.CompletionSubmission{
		{ProfileID: 7, ActivityID: 1},
		{ProfileID: 0, ActivityID: 1},
		{ProfileID: 8, ActivityID: 2},
	})
	if err != nil {
		t.Fatalf("submit batch: %v", err)
	}
	if awarder.calls != 1 {
		t.Fatalf("expected one award, got %d", awarder.calls)
	}
}

func TestSubmitBatchReportsRetryableFailures(t *testing.T) {
	svc, _, awarder := newCompletionFixture()
	awarder.err = fmt.Errorf("%w: profile lookup timed out", domain.ErrUnavailable)

	err := svc.SubmitBatch(context.Background(), []domain.CompletionSubmission{
		{ProfileID: 7, ActivityID: 1},
		{ProfileID: 8, ActivityID: 1},
	})
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if awarder.calls != 2 {
		t.Fatalf("expected every submission attempted, got %d", awarder.calls)
	}
}
