package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/explorers-club/progress/internal/config"
	"github.com/explorers-club/progress/internal/domain"
	"github.com/explorers-club/progress/internal/postgres"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/joho/godotenv"
)

var teamSeeds = []struct {
	name   string
	colour string
}{
	{"Otters", "#3b82f6"},
	{"Foxes", "#f97316"},
	{"Owls", "#8b5cf6"},
	{"Badgers", "#22c55e"},
}

var explorerNames = []string{
	"Robin", "Alex", "Sam", "Jamie", "Kit", "Morgan", "Charlie", "Riley",
	"Frankie", "Ash", "Rowan", "Sky", "Jules", "Remy", "Noor", "Tali",
}

var activitySeeds = []struct {
	title      string
	xp         int64
	categories []string
}{
	{"Build a Den", 20, []string{"outdoors", "teamwork"}},
	{"Leaf Rubbing", 5, []string{"nature", "crafts"}},
	{"Spot Five Birds", 10, []string{"nature"}},
	{"Cloud Diary", 5, []string{"nature", "science"}},
	{"Make a Bug Hotel", 15, []string{"nature", "crafts"}},
	{"Puddle Measuring", 10, []string{"science", "outdoors"}},
	{"Stick Raft Race", 15, []string{"outdoors", "teamwork"}},
	{"Night Sky Map", 20, []string{"science"}},
	{"Nature Mandala", 10, []string{"crafts"}},
	{"Tree Height Challenge", 15, []string{"science", "outdoors"}},
	{"Rock Pool Survey", 20, []string{"nature", "science"}},
	{"Mud Kitchen Menu", 5, []string{"outdoors", "crafts"}},
}

var badgeSeeds = []domain.Badge{
	{Name: "First Steps", Criteria: map[string]int64{domain.CriterionCompletions: 1}},
	{Name: "Trailblazer", Criteria: map[string]int64{domain.CriterionXP: 100}},
	{Name: "Team Player", Criteria: map[string]int64{domain.CriterionTeamContribution: 50}},
	{Name: "Big Adventure", Criteria: map[string]int64{domain.CriterionActivityXP: 20}},
	{Name: "Explorer Extraordinaire", Criteria: map[string]int64{domain.CriterionCompletions: 10, domain.CriterionXP: 150}},
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	weeks := flag.Int("weeks", 12, "Number of weekly chapters in the season")
	unlocked := flag.Int("unlocked", 3, "Chapters already unlocked today")
	perChapter := flag.Int("per-chapter", 3, "Activities linked to each chapter")
	flag.Parse()

	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}
	location, err := cfg.Progress.Location()
	if err != nil {
		logger.Error("invalid club timezone", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	repo, err := postgres.NewRepository(&cfg.Postgres, logger)
	if err != nil {
		logger.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer repo.Close()

	if err := repo.RunMigrations(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	today := domain.CalendarDay(time.Now(), location)
	if err := seed(ctx, repo, today, *weeks, *unlocked, *perChapter, logger); err != nil {
		logger.Error("seeding failed", "error", err)
		os.Exit(1)
	}
	logger.Info("seed complete")
}

func seed(ctx context.Context, repo *postgres.Repository, today time.Time, weeks, unlocked, perChapter int, logger *slog.Logger) error {
	var teamIDs []int64
	for _, t := range teamSeeds {
		team := &domain.Team{Name: t.name, Colour: t.colour}
		if err := repo.CreateTeam(ctx, team); err != nil {
			return err
		}
		teamIDs = append(teamIDs, team.ID)
	}
	logger.Info("created teams", "count", len(teamIDs))

	for i, name := range explorerNames {
		teamID := teamIDs[i%len(teamIDs)]
		profile := &domain.Profile{
			UserID: uuid.NewString(),
			Name:   name,
			TeamID: &teamID,
		}
		if err := repo.CreateProfile(ctx, profile); err != nil {
			return err
		}
	}
	logger.Info("created profiles", "count", len(explorerNames))

	var activityIDs []int64
	for _, a := range activitySeeds {
		activity := &domain.Activity{
			Name:       slug.Make(a.title),
			Title:      a.title,
			XP:         a.xp,
			Categories: a.categories,
		}
		if err := repo.CreateActivity(ctx, activity); err != nil {
			return err
		}
		activityIDs = append(activityIDs, activity.ID)
	}
	logger.Info("created activities", "count", len(activityIDs))

	name := fmt.Sprintf("Season %d", today.Year())
	season := &domain.Season{Name: &name, Story: "A year of adventures in the wild."}
	if err := repo.CreateSeason(ctx, season); err != nil {
		return err
	}

	// Chapters unlock weekly; the first `unlocked` are already open today.
	start := today.AddDate(0, 0, -7*(unlocked-1))
	for week := 1; week <= weeks; week++ {
		chapter := &domain.Chapter{
			SeasonID:   season.ID,
			WeekNumber: week,
			Title:      fmt.Sprintf("Week %d", week),
			UnlockDate: start.AddDate(0, 0, 7*(week-1)),
		}
		if err := repo.CreateChapter(ctx, chapter); err != nil {
			return err
		}
		for order := 0; order < perChapter; order++ {
			activityID := activityIDs[((week-1)*perChapter+order)%len(activityIDs)]
			link := domain.ChapterActivity{ChapterID: chapter.ID, ActivityID: activityID, Order: order}
			if err := repo.LinkChapterActivity(ctx, link); err != nil {
				return err
			}
		}
	}
	logger.Info("created season", "season_id", season.ID, "chapters", weeks)

	for i := range badgeSeeds {
		badge := badgeSeeds[i]
		badge.ImageURL = "/badges/" + slug.Make(badge.Name) + ".png"
		if err := repo.CreateBadge(ctx, &badge); err != nil {
			return err
		}
	}
	logger.Info("created badges", "count", len(badgeSeeds))

	return nil
}
