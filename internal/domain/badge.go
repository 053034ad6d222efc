package domain

// Badge criteria keys
const (
	CriterionXP               = "xp"
	CriterionTeamContribution = "team_contribution"
	CriterionCompletions      = "completions"
	CriterionActivityXP       = "activity_xp"
	CriterionTeamXPGained     = "team_xp_gained"
)

// Badge is an award with threshold criteria, e.g. {"xp": 500} or {"completions": 10}.
// Every criterion must be met; a badge with no criteria is never awarded automatically.
type Badge struct {
	ID       int64            `json:"id"`
	Name     string           `json:"name"`
	ImageURL string           `json:"image_url,omitempty"`
	Criteria map[string]int64 `json:"criteria,omitempty"`
}

// BadgeContext is the state badge criteria are evaluated against
type BadgeContext struct {
	UserID           string
	ProfileID        int64
	XP               int64
	TeamContribution int64
	Completions      int64
	XPGained         int64
	TeamXPGained     int64
}
