package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/explorers-club/progress/internal/domain"
	"github.com/jackc/pgx/v5"
)

const completionSelect = `
		SELECT p.id, p.name, p.nickname, p.colour, COALESCE(p.team_id, 0),
			   a.id, a.name, a.title, a.image, a.xp,
			   uap.completed_at, uap.notes
		FROM user_activity_progress uap
		JOIN profiles p ON p.id = uap.profile_id
		JOIN activities a ON a.id = uap.activity_id`

// ClaimCompletion marks the activity completed for the profile. It reports
// false when the pair was already completed.
func (r *Repository) ClaimCompletion(ctx context.Context, profileID, activityID int64, notes string, completedAt time.Time) (bool, error) {
	query := `
		INSERT INTO user_activity_progress (profile_id, activity_id, completed_at, notes, created_at)
		VALUES ($1, $2, $3, $4, $3)
		ON CONFLICT (profile_id, activity_id)
		DO UPDATE SET completed_at = EXCLUDED.completed_at, notes = EXCLUDED.notes
		WHERE user_activity_progress.completed_at IS NULL
		RETURNING id
	`
	var id int64
	err := r.pool.QueryRow(ctx, query, profileID, activityID, completedAt, notes).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		if notFound(err) {
			return false, fmt.Errorf("profile %d activity %d: %w", profileID, activityID, domain.ErrNotFound)
		}
		return false, fmt.Errorf("claiming completion: %w", err)
	}
	return true, nil
}

// ReleaseCompletion clears the completion time so the pair can be claimed again
func (r *Repository) ReleaseCompletion(ctx context.Context, profileID, activityID int64) error {
	query := `
		UPDATE user_activity_progress
		SET completed_at = NULL
		WHERE profile_id = $1 AND activity_id = $2
	`
	if _, err := r.pool.Exec(ctx, query, profileID, activityID); err != nil {
		return fmt.Errorf("releasing completion: %w", err)
	}
	return nil
}

// GetCompletion retrieves the joined completion row of a profile and activity
func (r *Repository) GetCompletion(ctx context.Context, profileID, activityID int64) (*domain.TeamCompletion, error) {
	query := completionSelect + `
		WHERE uap.profile_id = $1 AND uap.activity_id = $2
	`
	row, err := scanCompletion(r.pool.QueryRow(ctx, query, profileID, activityID))
	if err != nil {
		if notFound(err) {
			return nil, fmt.Errorf("completion: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting completion: %w", err)
	}
	return row, nil
}

// ListTeamCompletions lists the most recent completions of the team's members
func (r *Repository) ListTeamCompletions(ctx context.Context, teamID int64, limit int) ([]domain.TeamCompletion, error) {
	query := completionSelect + `
		WHERE p.team_id = $1 AND uap.completed_at IS NOT NULL
		ORDER BY uap.completed_at DESC, uap.id DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, teamID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing team completions: %w", err)
	}
	defer rows.Close()

	var completions []domain.TeamCompletion
	for rows.Next() {
		row, err := scanCompletion(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning completion: %w", err)
		}
		completions = append(completions, *row)
	}
	return completions, rows.Err()
}

func scanCompletion(row pgx.Row) (*domain.TeamCompletion, error) {
	var c domain.TeamCompletion
	err := row.Scan(
		&c.Profile.ID,
		&c.Profile.Name,
		&c.Profile.Nickname,
		&c.Profile.Colour,
		&c.Profile.TeamID,
		&c.Activity.ID,
		&c.Activity.Name,
		&c.Activity.Title,
		&c.Activity.Image,
		&c.Activity.XP,
		&c.CompletedAt,
		&c.Notes,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
