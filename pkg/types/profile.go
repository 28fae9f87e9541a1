package types

import "encoding/json"

type Profile struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Email       string          `json:"email,omitempty"`
	FullName    string          `json:"full_name,omitempty"`
	AvatarURL   string          `json:"avatar_url,omitempty"`
	Points      int             `json:"points"`
	Level       int             `json:"level"`
	Badges      []string        `json:"badges"`
	Preferences json.RawMessage `json:"preferences,omitempty"`
	CreatedAt   string          `json:"created_at"`
	UpdatedAt   string          `json:"updated_at"`
}

type GamificationEvent struct {
	ID           string  `json:"id"`
	UserID       string  `json:"user_id"`
	ActionType   string  `json:"action_type"`
	PointsEarned int     `json:"points_earned"`
	BadgeEarned  *string `json:"badge_earned,omitempty"`
	Description  string  `json:"description,omitempty"`
	CreatedAt    string  `json:"created_at"`
}

// LevelForPoints maps a point total to a profile level.
func LevelForPoints(points int) int {
	if points < 0 {
		return 1
	}
	return points/500 + 1
}
