package postgres

import (
	"context"
	"fmt"

	"github.com/explorers-club/progress/internal/domain"
)

const profileColumns = `id, user_id, name, nickname, colour, team_id, xp, team_contribution, created_at`

// GetActivity retrieves an activity by ID
func (r *Repository) GetActivity(ctx context.Context, activityID int64) (*domain.Activity, error) {
	query := `
		SELECT id, name, title, description, long_description, hints, tips, trivia,
			   image, xp, categories, photo_required, created_at
		FROM activities
		WHERE id = $1
	`
	var a domain.Activity
	err := r.pool.QueryRow(ctx, query, activityID).Scan(
		&a.ID,
		&a.Name,
		&a.Title,
		&a.Description,
		&a.LongDescription,
		&a.Hints,
		&a.Tips,
		&a.Trivia,
		&a.Image,
		&a.XP,
		&a.Categories,
		&a.PhotoRequired,
		&a.CreatedAt,
	)
	if err != nil {
		if notFound(err) {
			return nil, fmt.Errorf("activity %d: %w", activityID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting activity: %w", err)
	}
	return &a, nil
}

// GetProfile retrieves a profile by ID
func (r *Repository) GetProfile(ctx context.Context, profileID int64) (*domain.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`
	var p domain.Profile
	err := r.pool.QueryRow(ctx, query, profileID).Scan(
		&p.ID,
		&p.UserID,
		&p.Name,
		&p.Nickname,
		&p.Colour,
		&p.TeamID,
		&p.XP,
		&p.TeamContribution,
		&p.CreatedAt,
	)
	if err != nil {
		if notFound(err) {
			return nil, fmt.Errorf("profile %d: %w", profileID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting profile: %w", err)
	}
	return &p, nil
}

// UpdateProfileXP overwrites a profile's XP and team contribution
func (r *Repository) UpdateProfileXP(ctx context.Context, profileID, xp, teamContribution int64) error {
	query := `UPDATE profiles SET xp = $2, team_contribution = $3 WHERE id = $1`
	result, err := r.pool.Exec(ctx, query, profileID, xp, teamContribution)
	if err != nil {
		return fmt.Errorf("updating profile xp: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("profile %d: %w", profileID, domain.ErrNotFound)
	}
	return nil
}

// IncrementProfileXP adds to a profile's XP and team contribution in one statement
func (r *Repository) IncrementProfileXP(ctx context.Context, profileID, xpDelta, contributionDelta int64) (*domain.Profile, error) {
	query := `
		UPDATE profiles
		SET xp = xp + $2, team_contribution = team_contribution + $3
		WHERE id = $1
		RETURNING ` + profileColumns
	var p domain.Profile
	err := r.pool.QueryRow(ctx, query, profileID, xpDelta, contributionDelta).Scan(
		&p.ID,
		&p.UserID,
		&p.Name,
		&p.Nickname,
		&p.Colour,
		&p.TeamID,
		&p.XP,
		&p.TeamContribution,
		&p.CreatedAt,
	)
	if err != nil {
		if notFound(err) {
			return nil, fmt.Errorf("profile %d: %w", profileID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("incrementing profile xp: %w", err)
	}
	return &p, nil
}

// IncrementTeamXP atomically adds amount to the team's XP and returns the new total
func (r *Repository) IncrementTeamXP(ctx context.Context, teamID, amount int64) (int64, error) {
	query := `UPDATE teams SET team_xp = team_xp + $2 WHERE id = $1 RETURNING team_xp`
	var total int64
	err := r.pool.QueryRow(ctx, query, teamID, amount).Scan(&total)
	if err != nil {
		if notFound(err) {
			return 0, fmt.Errorf("team %d: %w", teamID, domain.ErrNotFound)
		}
		return 0, fmt.Errorf("incrementing team xp: %w", err)
	}
	return total, nil
}

// ListCategories returns the distinct activity categories in alphabetical order
func (r *Repository) ListCategories(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT category
		FROM activities, unnest(categories) AS category
		ORDER BY category
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	defer rows.Close()

	categories := []string{}
	for rows.Next() {
		var category string
		if err := rows.Scan(&category); err != nil {
			return nil, fmt.Errorf("scanning category: %w", err)
		}
		categories = append(categories, category)
	}
	return categories, rows.Err()
}

// ListActivitiesByCategory lists the activities tagged with category
func (r *Repository) ListActivitiesByCategory(ctx context.Context, category string) ([]domain.ActivitySummary, error) {
	query := `
		SELECT id, name, title, image, xp
		FROM activities
		WHERE $1 = ANY(categories)
		ORDER BY title, id
	`
	rows, err := r.pool.Query(ctx, query, category)
	if err != nil {
		return nil, fmt.Errorf("listing activities by category: %w", err)
	}
	defer rows.Close()

	activities := []domain.ActivitySummary{}
	for rows.Next() {
		var a domain.ActivitySummary
		if err := rows.Scan(&a.ID, &a.Name, &a.Title, &a.Image, &a.XP); err != nil {
			return nil, fmt.Errorf("scanning activity: %w", err)
		}
		activities = append(activities, a)
	}
	return activities, rows.Err()
}
