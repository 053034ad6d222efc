package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/explorers-club/progress/internal/domain"
	"github.com/jackc/pgx/v5/pgtype"
)

// CreateTeam inserts a team and sets its ID
func (r *Repository) CreateTeam(ctx context.Context, team *domain.Team) error {
	query := `INSERT INTO teams (name, colour, team_xp) VALUES ($1, $2, $3) RETURNING id`
	if err := r.pool.QueryRow(ctx, query, team.Name, team.Colour, team.TeamXP).Scan(&team.ID); err != nil {
		return fmt.Errorf("creating team: %w", err)
	}
	return nil
}

// CreateProfile inserts a profile and sets its ID
func (r *Repository) CreateProfile(ctx context.Context, profile *domain.Profile) error {
	query := `
		INSERT INTO profiles (user_id, name, nickname, colour, team_id, xp, team_contribution)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	err := r.pool.QueryRow(ctx, query,
		profile.UserID,
		profile.Name,
		profile.Nickname,
		profile.Colour,
		profile.TeamID,
		profile.XP,
		profile.TeamContribution,
	).Scan(&profile.ID, &profile.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating profile: %w", err)
	}
	return nil
}

// CreateActivity inserts an activity and sets its ID
func (r *Repository) CreateActivity(ctx context.Context, activity *domain.Activity) error {
	categories := activity.Categories
	if categories == nil {
		categories = []string{}
	}
	query := `
		INSERT INTO activities (name, title, description, hints, tips, trivia, image, xp, categories, photo_required)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at
	`
	err := r.pool.QueryRow(ctx, query,
		activity.Name,
		activity.Title,
		activity.Description,
		activity.Hints,
		activity.Tips,
		activity.Trivia,
		activity.Image,
		activity.XP,
		categories,
		activity.PhotoRequired,
	).Scan(&activity.ID, &activity.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating activity: %w", err)
	}
	return nil
}

// CreateSeason inserts a season and sets its ID
func (r *Repository) CreateSeason(ctx context.Context, season *domain.Season) error {
	query := `INSERT INTO seasons (name, hero_image, story) VALUES ($1, $2, $3) RETURNING id, created_at`
	if err := r.pool.QueryRow(ctx, query, season.Name, season.HeroImage, season.Story).Scan(&season.ID, &season.CreatedAt); err != nil {
		return fmt.Errorf("creating season: %w", err)
	}
	return nil
}

// CreateChapter inserts a chapter and sets its ID
func (r *Repository) CreateChapter(ctx context.Context, chapter *domain.Chapter) error {
	query := `
		INSERT INTO chapters (season_id, week_number, title, body, unlock_date)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := r.pool.QueryRow(ctx, query,
		chapter.SeasonID,
		chapter.WeekNumber,
		chapter.Title,
		chapter.Body,
		pgtype.Date{Time: chapter.UnlockDate, Valid: true},
	).Scan(&chapter.ID, &chapter.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating chapter: %w", err)
	}
	return nil
}

// LinkChapterActivity attaches an activity to a chapter
func (r *Repository) LinkChapterActivity(ctx context.Context, link domain.ChapterActivity) error {
	query := `
		INSERT INTO chapter_activities (chapter_id, activity_id, "order")
		VALUES ($1, $2, $3)
		ON CONFLICT (chapter_id, activity_id) DO UPDATE SET "order" = $3
	`
	if _, err := r.pool.Exec(ctx, query, link.ChapterID, link.ActivityID, link.Order); err != nil {
		return fmt.Errorf("linking chapter activity: %w", err)
	}
	return nil
}

// CreateBadge inserts a badge and sets its ID
func (r *Repository) CreateBadge(ctx context.Context, badge *domain.Badge) error {
	var criteria []byte
	if badge.Criteria != nil {
		var err error
		criteria, err = json.Marshal(badge.Criteria)
		if err != nil {
			return fmt.Errorf("marshaling criteria: %w", err)
		}
	}
	query := `INSERT INTO badges (name, image_url, criteria) VALUES ($1, $2, $3) RETURNING id`
	if err := r.pool.QueryRow(ctx, query, badge.Name, badge.ImageURL, criteria).Scan(&badge.ID); err != nil {
		return fmt.Errorf("creating badge: %w", err)
	}
	return nil
}
