package postgres

import (
	"context"
	"fmt"

	"github.com/explorers-club/progress/internal/domain"
)

// ListTeamTotals returns each team's XP alongside its members' contributions
func (r *Repository) ListTeamTotals(ctx context.Context) ([]domain.TeamTotals, error) {
	query := `
		SELECT t.id, t.name, t.team_xp, COALESCE(SUM(p.team_contribution), 0)
		FROM teams t
		LEFT JOIN profiles p ON p.team_id = t.id
		GROUP BY t.id, t.name, t.team_xp
		ORDER BY t.id
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing team totals: %w", err)
	}
	defer rows.Close()

	var totals []domain.TeamTotals
	for rows.Next() {
		var t domain.TeamTotals
		if err := rows.Scan(&t.TeamID, &t.Name, &t.TeamXP, &t.ContributionTotal); err != nil {
			return nil, fmt.Errorf("scanning team totals: %w", err)
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

// ListExplorerXP pages through profile XP in ID order, starting after afterID
func (r *Repository) ListExplorerXP(ctx context.Context, afterID int64, limit int) ([]domain.ScoreboardEntry, error) {
	query := `
		SELECT id, name, xp
		FROM profiles
		WHERE id > $1
		ORDER BY id
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing explorer xp: %w", err)
	}
	defer rows.Close()

	var entries []domain.ScoreboardEntry
	for rows.Next() {
		var e domain.ScoreboardEntry
		if err := rows.Scan(&e.ID, &e.Name, &e.Score); err != nil {
			return nil, fmt.Errorf("scanning explorer xp: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
