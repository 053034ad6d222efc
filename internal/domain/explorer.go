package domain

import "time"

// Profile is one child explorer, distinct from the parent account that owns it
type Profile struct {
	ID               int64     `json:"id"`
	UserID           string    `json:"user_id"`
	Name             string    `json:"name"`
	Nickname         string    `json:"nickname,omitempty"`
	Colour           string    `json:"colour,omitempty"`
	TeamID           *int64    `json:"team,omitempty"`
	XP               int64     `json:"xp"`
	TeamContribution int64     `json:"team_contribution"`
	CreatedAt        time.Time `json:"created_at"`
}

// HasTeam reports whether the profile is attached to a team
func (p *Profile) HasTeam() bool {
	return p.TeamID != nil
}

// Team groups profiles; TeamXP accumulates the members' contributions
type Team struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Colour string `json:"colour,omitempty"`
	TeamXP int64  `json:"team_xp"`
}

// ProfileSummary is the lightweight profile shape embedded in feed entries
type ProfileSummary struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Nickname string `json:"nickname,omitempty"`
	Colour   string `json:"colour,omitempty"`
	TeamID   int64  `json:"team"`
}

// ScoreboardEntry is a ranked row of the team or explorer scoreboard
type ScoreboardEntry struct {
	Rank  int64  `json:"rank"`
	ID    int64  `json:"id"`
	Name  string `json:"name,omitempty"`
	Score int64  `json:"score"`
}

// TeamTotals compares a team's stored XP against its members' contributions
type TeamTotals struct {
	TeamID            int64  `json:"team_id"`
	Name              string `json:"name"`
	TeamXP            int64  `json:"team_xp"`
	ContributionTotal int64  `json:"contribution_total"`
}

// Drift is how far team_xp is from the sum of member contributions
func (t TeamTotals) Drift() int64 {
	return t.TeamXP - t.ContributionTotal
}
