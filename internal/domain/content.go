package domain

import "time"

// Activity is a real-world mission with a fixed XP reward
type Activity struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	LongDescription string    `json:"long_description,omitempty"`
	Hints           string    `json:"hints,omitempty"`
	Tips            string    `json:"tips,omitempty"`
	Trivia          string    `json:"trivia,omitempty"`
	Image           *string   `json:"image"`
	XP              int64     `json:"xp"`
	Categories      []string  `json:"categories"`
	PhotoRequired   bool      `json:"photo_required"`
	CreatedAt       time.Time `json:"created_at"`
}

// ActivitySummary is the lightweight activity shape embedded in feed entries
type ActivitySummary struct {
	ID    int64   `json:"id"`
	Name  string  `json:"name"`
	Title string  `json:"title"`
	Image *string `json:"image"`
	XP    int64   `json:"xp"`
}

// Season is a themed collection of chapters
type Season struct {
	ID          int64     `json:"id"`
	Name        *string   `json:"name"`
	HeroImage   *string   `json:"hero_image"`
	Story       string    `json:"story,omitempty"`
	StoryParts  []string  `json:"story_parts,omitempty"`
	StorySlides []string  `json:"story_slides,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Chapter is one week of story content, visible once UnlockDate has been reached.
// UnlockDate is a calendar date stored at midnight UTC.
type Chapter struct {
	ID         int64     `json:"id"`
	SeasonID   int64     `json:"season_id"`
	WeekNumber int       `json:"week_number"`
	Title      string    `json:"title"`
	Body       string    `json:"body,omitempty"`
	BodyParts  []string  `json:"body_parts,omitempty"`
	BodySlides []string  `json:"body_slides,omitempty"`
	UnlockDate time.Time `json:"unlock_date"`
	CreatedAt  time.Time `json:"created_at"`
}

// IsUnlocked reports whether the chapter is visible on the given calendar day
func (c *Chapter) IsUnlocked(today time.Time) bool {
	return !c.UnlockDate.After(today)
}

// ChapterActivity links a chapter to one of its activities
type ChapterActivity struct {
	ChapterID  int64 `json:"chapter_id"`
	ActivityID int64 `json:"activity_id"`
	Order      int   `json:"order"`
}

// ChapterFilter narrows ListChapters; nil fields are not applied
type ChapterFilter struct {
	SeasonID             *int64
	UnlockDateOnOrBefore *time.Time
}
