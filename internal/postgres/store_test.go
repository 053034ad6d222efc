package postgres

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/explorers-club/progress/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// testRepository connects to the database named by PROGRESS_TEST_POSTGRES, a
// connection string for a disposable database.
func testRepository(t *testing.T) *Repository {
	t.Helper()
	dsn := os.Getenv("PROGRESS_TEST_POSTGRES")
	if dsn == "" {
		t.Skip("PROGRESS_TEST_POSTGRES not set")
	}

	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connecting: %v", err)
	}
	t.Cleanup(pool.Close)

	repo := &Repository{pool: pool, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	if err := repo.RunMigrations(context.Background()); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	return repo
}

func TestClaimCompletionAgainstPostgres(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	team := &domain.Team{Name: "Otters"}
	if err := repo.CreateTeam(ctx, team); err != nil {
		t.Fatalf("create team: %v", err)
	}
	profile := &domain.Profile{UserID: "user-claim", Name: "Robin", TeamID: &team.ID}
	if err := repo.CreateProfile(ctx, profile); err != nil {
		t.Fatalf("create profile: %v", err)
	}
	activity := &domain.Activity{Name: "den", Title: "Build a den", XP: 10}
	if err := repo.CreateActivity(ctx, activity); err != nil {
		t.Fatalf("create activity: %v", err)
	}

	at := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	claimed, err := repo.ClaimCompletion(ctx, profile.ID, activity.ID, "first", at)
	if err != nil || !claimed {
		t.Fatalf("expected first claim to succeed, got %v %v", claimed, err)
	}
	claimed, err = repo.ClaimCompletion(ctx, profile.ID, activity.ID, "second", at.Add(time.Minute))
	if err != nil || claimed {
		t.Fatalf("expected second claim to be refused, got %v %v", claimed, err)
	}

	if err := repo.ReleaseCompletion(ctx, profile.ID, activity.ID); err != nil {
		t.Fatalf("release: %v", err)
	}
	done, err := repo.ListCompletedActivityIDs(ctx, profile.ID, []int64{activity.ID})
	if err != nil {
		t.Fatalf("list completed: %v", err)
	}
	if _, ok := done[activity.ID]; ok {
		t.Fatal("expected released pair not to count as completed")
	}

	claimed, err = repo.ClaimCompletion(ctx, profile.ID, activity.ID, "retry", at.Add(time.Hour))
	if err != nil || !claimed {
		t.Fatalf("expected claim after release to succeed, got %v %v", claimed, err)
	}
	row, err := repo.GetCompletion(ctx, profile.ID, activity.ID)
	if err != nil {
		t.Fatalf("get completion: %v", err)
	}
	if row.Notes != "retry" || row.CompletedAt == nil || !row.CompletedAt.Equal(at.Add(time.Hour)) {
		t.Fatalf("expected reclaimed row, got %+v", row)
	}

	if _, err := repo.ClaimCompletion(ctx, profile.ID, activity.ID+1_000_000, "", at); !domain.IsNotFoundError(err) {
		t.Fatalf("expected ErrNotFound for unknown activity, got %v", err)
	}
}

func TestListChaptersAgainstPostgres(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	season := &domain.Season{Story: "Autumn trails"}
	if err := repo.CreateSeason(ctx, season); err != nil {
		t.Fatalf("create season: %v", err)
	}
	unlocks := []time.Time{
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
	}
	for i, unlock := range unlocks {
		chapter := &domain.Chapter{SeasonID: season.ID, WeekNumber: i + 1, Title: "week", UnlockDate: unlock}
		if err := repo.CreateChapter(ctx, chapter); err != nil {
			t.Fatalf("create chapter %d: %v", i+1, err)
		}
	}

	today := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	chapters, err := repo.ListChapters(ctx, domain.ChapterFilter{SeasonID: &season.ID, UnlockDateOnOrBefore: &today})
	if err != nil {
		t.Fatalf("list chapters: %v", err)
	}
	if len(chapters) != 2 {
		t.Fatalf("expected 2 unlocked chapters, got %d", len(chapters))
	}
	if !chapters[0].UnlockDate.Equal(unlocks[0]) || !chapters[1].UnlockDate.Equal(unlocks[1]) {
		t.Fatalf("expected chapters ordered by unlock date, got %v and %v", chapters[0].UnlockDate, chapters[1].UnlockDate)
	}

	all, err := repo.ListChapters(ctx, domain.ChapterFilter{SeasonID: &season.ID})
	if err != nil {
		t.Fatalf("list all chapters: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 chapters without a date filter, got %d", len(all))
	}
}
