package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/explorers-club/progress/internal/domain"
)

// ListBadges retrieves every badge with its criteria
func (r *Repository) ListBadges(ctx context.Context) ([]domain.Badge, error) {
	query := `SELECT id, name, image_url, criteria FROM badges ORDER BY id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing badges: %w", err)
	}
	defer rows.Close()

	var badges []domain.Badge
	for rows.Next() {
		var b domain.Badge
		var criteria []byte
		if err := rows.Scan(&b.ID, &b.Name, &b.ImageURL, &criteria); err != nil {
			return nil, fmt.Errorf("scanning badge: %w", err)
		}
		if len(criteria) > 0 {
			if err := json.Unmarshal(criteria, &b.Criteria); err != nil {
				return nil, fmt.Errorf("unmarshaling criteria of badge %d: %w", b.ID, err)
			}
		}
		badges = append(badges, b)
	}
	return badges, rows.Err()
}

// ListAwardedBadgeIDs returns the badges a profile already holds
func (r *Repository) ListAwardedBadgeIDs(ctx context.Context, profileID int64) (map[int64]struct{}, error) {
	query := `SELECT badge_id FROM profile_badges WHERE profile_id = $1`
	rows, err := r.pool.Query(ctx, query, profileID)
	if err != nil {
		return nil, fmt.Errorf("listing awarded badges: %w", err)
	}
	defer rows.Close()

	held := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning awarded badge: %w", err)
		}
		held[id] = struct{}{}
	}
	return held, rows.Err()
}

// GetBadgeStats loads the totals badge criteria are checked against
func (r *Repository) GetBadgeStats(ctx context.Context, profileID int64) (*domain.BadgeContext, error) {
	query := `
		SELECT p.xp, p.team_contribution,
			   (SELECT COUNT(*) FROM user_activity_progress uap
				WHERE uap.profile_id = p.id AND uap.completed_at IS NOT NULL)
		FROM profiles p
		WHERE p.id = $1
	`
	stats := domain.BadgeContext{ProfileID: profileID}
	err := r.pool.QueryRow(ctx, query, profileID).Scan(&stats.XP, &stats.TeamContribution, &stats.Completions)
	if err != nil {
		if notFound(err) {
			return nil, fmt.Errorf("profile %d: %w", profileID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting badge stats: %w", err)
	}
	return &stats, nil
}

// AwardBadge records a badge for a profile, reporting false if it was already held
func (r *Repository) AwardBadge(ctx context.Context, profileID, badgeID int64) (bool, error) {
	query := `
		INSERT INTO profile_badges (profile_id, badge_id)
		VALUES ($1, $2)
		ON CONFLICT (profile_id, badge_id) DO NOTHING
	`
	result, err := r.pool.Exec(ctx, query, profileID, badgeID)
	if err != nil {
		return false, fmt.Errorf("awarding badge: %w", err)
	}
	return result.RowsAffected() > 0, nil
}
