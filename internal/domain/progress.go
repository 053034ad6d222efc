package domain

import "time"

// FeedStatusCompleted is the only status a team feed entry can carry
const FeedStatusCompleted = "completed"

// UserActivityProgress is one explorer's attempt at an activity
type UserActivityProgress struct {
	ProfileID   int64      `json:"profile_id"`
	ActivityID  int64      `json:"activity_id"`
	CompletedAt *time.Time `json:"completed_at"`
	Notes       string     `json:"notes,omitempty"`
}

// IsCompleted reports whether the attempt has been completed
func (p *UserActivityProgress) IsCompleted() bool {
	return p.CompletedAt != nil
}

// TeamCompletion is a completion row joined with its profile and activity
type TeamCompletion struct {
	Profile     ProfileSummary  `json:"profile"`
	Activity    ActivitySummary `json:"activity"`
	CompletedAt *time.Time      `json:"completed_at"`
	Notes       string          `json:"notes,omitempty"`
}

// FeedEntry is a team activity feed item
type FeedEntry struct {
	Profile     ProfileSummary  `json:"profile"`
	Activity    ActivitySummary `json:"activity"`
	CompletedAt time.Time       `json:"completed_at"`
	Notes       string          `json:"notes,omitempty"`
	Status      string          `json:"status"`
}

// AwardResult is the outcome of crediting a completed activity
type AwardResult struct {
	Success             bool    `json:"success"`
	XPGained            int64   `json:"xp_gained"`
	TeamXPGained        int64   `json:"team_xp_gained"`
	NewXP               int64   `json:"new_xp"`
	NewTeamContribution int64   `json:"new_team_contribution"`
	TeamID              *int64  `json:"team_id,omitempty"`
	TeamXPUpdated       bool    `json:"team_xp_updated"`
	NewBadges           []Badge `json:"new_badges"`
}

// CurrentChapter is the unlocked chapter of the latest season. A non-nil Err
// means the lookup failed and both fields are nil.
type CurrentChapter struct {
	Chapter         *Chapter   `json:"current_chapter"`
	NextChapterDate *time.Time `json:"next_chapter_date"`
	Err             error      `json:"-"`
}

// ChapterCount is the completion tally of one chapter
type ChapterCount struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
}

// ChapterProgress maps chapter ids to their tallies. A non-nil Err means the
// aggregation failed and Chapters is empty.
type ChapterProgress struct {
	Chapters map[int64]ChapterCount `json:"chapters"`
	Err      error                  `json:"-"`
}

// CompletionSubmission is a request to mark an activity completed for a profile
type CompletionSubmission struct {
	ProfileID  int64  `json:"profile_id"`
	ActivityID int64  `json:"activity_id"`
	Notes      string `json:"notes,omitempty"`
}

// Validate checks the ids are set
func (s *CompletionSubmission) Validate() error {
	if s.ProfileID <= 0 || s.ActivityID <= 0 {
		return ErrInvalidRequest
	}
	return nil
}

// CompletionOutcome is what a successful submission produced
type CompletionOutcome struct {
	Award *AwardResult `json:"award"`
	Entry FeedEntry    `json:"entry"`
}
