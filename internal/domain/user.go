package domain

import "time"

// Profile is a user account as seen by the capture front-ends.
type Profile struct {
	UserID     string `json:"user_id"`
	TelegramID *int64 `json:"telegram_id,omitempty"`
}

// LinkCode is a short-lived, single-use code that binds a Telegram identity
// to a Profile.
type LinkCode struct {
	Code      string     `json:"code"`
	UserID    string     `json:"user_id"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
}

// AccountLabel is a user-configured account. Either field may be empty.
type AccountLabel struct {
	Label string
	Name  string
}

// UsageCounter counts rate-limited actions for one user on one calendar day.
type UsageCounter struct {
	UserID     string `json:"user_id"`
	Day        string `json:"day"` // YYYY-MM-DD
	VoiceCount int    `json:"voice_count"`
}
