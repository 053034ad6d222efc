package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/explorers-club/progress/internal/domain"
	"github.com/jackc/pgx/v5/pgtype"
)

// GetLatestSeason returns the season with the highest ID
func (r *Repository) GetLatestSeason(ctx context.Context) (*domain.Season, error) {
	query := `
		SELECT id, name, hero_image, story, story_parts, story_slides, created_at
		FROM seasons
		ORDER BY id DESC
		LIMIT 1
	`
	var s domain.Season
	err := r.pool.QueryRow(ctx, query).Scan(
		&s.ID,
		&s.Name,
		&s.HeroImage,
		&s.Story,
		&s.StoryParts,
		&s.StorySlides,
		&s.CreatedAt,
	)
	if err != nil {
		if notFound(err) {
			return nil, fmt.Errorf("latest season: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting latest season: %w", err)
	}
	return &s, nil
}

// ListChapters lists chapters matching the filter ordered by unlock date
func (r *Repository) ListChapters(ctx context.Context, filter domain.ChapterFilter) ([]domain.Chapter, error) {
	var (
		where []string
		args  []any
	)
	if filter.SeasonID != nil {
		args = append(args, *filter.SeasonID)
		where = append(where, fmt.Sprintf("season_id = $%d", len(args)))
	}
	if filter.UnlockDateOnOrBefore != nil {
		args = append(args, pgtype.Date{Time: *filter.UnlockDateOnOrBefore, Valid: true})
		where = append(where, fmt.Sprintf("unlock_date <= $%d", len(args)))
	}

	query := `
		SELECT id, season_id, week_number, title, body, body_parts, body_slides, unlock_date, created_at
		FROM chapters`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	query += "\n\t\tORDER BY unlock_date, id"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing chapters: %w", err)
	}
	defer rows.Close()

	var chapters []domain.Chapter
	for rows.Next() {
		var c domain.Chapter
		var unlock pgtype.Date
		err := rows.Scan(
			&c.ID,
			&c.SeasonID,
			&c.WeekNumber,
			&c.Title,
			&c.Body,
			&c.BodyParts,
			&c.BodySlides,
			&unlock,
			&c.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning chapter: %w", err)
		}
		c.UnlockDate = unlock.Time
		chapters = append(chapters, c)
	}
	return chapters, rows.Err()
}

// ListChapterActivities lists the activity links of the given chapters
func (r *Repository) ListChapterActivities(ctx context.Context, chapterIDs []int64) ([]domain.ChapterActivity, error) {
	if len(chapterIDs) == 0 {
		return nil, nil
	}
	query := `
		SELECT chapter_id, activity_id, "order"
		FROM chapter_activities
		WHERE chapter_id = ANY($1)
		ORDER BY chapter_id, "order", activity_id
	`
	rows, err := r.pool.Query(ctx, query, chapterIDs)
	if err != nil {
		return nil, fmt.Errorf("listing chapter activities: %w", err)
	}
	defer rows.Close()

	var links []domain.ChapterActivity
	for rows.Next() {
		var link domain.ChapterActivity
		if err := rows.Scan(&link.ChapterID, &link.ActivityID, &link.Order); err != nil {
			return nil, fmt.Errorf("scanning chapter activity: %w", err)
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

// ListCompletedActivityIDs returns which of activityIDs the profile has completed
func (r *Repository) ListCompletedActivityIDs(ctx context.Context, profileID int64, activityIDs []int64) (map[int64]struct{}, error) {
	completed := make(map[int64]struct{})
	if len(activityIDs) == 0 {
		return completed, nil
	}
	query := `
		SELECT activity_id
		FROM user_activity_progress
		WHERE profile_id = $1
		  AND activity_id = ANY($2)
		  AND completed_at IS NOT NULL
	`
	rows, err := r.pool.Query(ctx, query, profileID, activityIDs)
	if err != nil {
		return nil, fmt.Errorf("listing completed activities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning completed activity: %w", err)
		}
		completed[id] = struct{}{}
	}
	return completed, rows.Err()
}
