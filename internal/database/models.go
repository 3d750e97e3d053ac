package database

import (
	"time"
)

// Platform identifies one of the supported chat ecosystems. It is used as
// a partition key throughout the schema and the API.
type Platform string

const (
	PlatformTelegram Platform = "telegram"
	PlatformDiscord  Platform = "discord"
)

// Platforms lists every supported platform in a stable order.
var Platforms = []Platform{PlatformTelegram, PlatformDiscord}

// Valid reports whether p is a member of the closed platform set.
func (p Platform) Valid() bool {
	return p == PlatformTelegram || p == PlatformDiscord
}

func (p Platform) String() string { return string(p) }

// User represents a tracked community member. The (platform, user_id) pair
// is unique; the display name is refreshed on every tracked message so
// leaderboards show current names.
type User struct {
	Platform    Platform  `db:"platform"`
	UserID      string    `db:"user_id"`
	DisplayName string    `db:"display_name"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// ChatCounter is the per-user-per-day activity aggregate. ChatDate is a
// UTC calendar date in YYYY-MM-DD form; counts only ever grow.
type ChatCounter struct {
	ChatDate      string    `db:"chat_date"`
	Platform      Platform  `db:"platform"`
	UserID        string    `db:"user_id"`
	MessageCount  int64     `db:"message_count"`
	MessageLength int64     `db:"message_length"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// ChannelMessage is one row of the append-only Telegram channel log used
// as the source for chat summarization. It is never aggregated into
// counters directly.
type ChannelMessage struct {
	ID               int64     `db:"id"`
	MessageID        int64     `db:"message_id"`
	ChatID           int64     `db:"chat_id"`
	ChatType         string    `db:"chat_type"`
	ChatTitle        string    `db:"chat_title"`
	SenderID         int64     `db:"sender_id"`
	SenderName       string    `db:"sender_name"`
	MessageText      string    `db:"message_text"`
	MessageDate      time.Time `db:"message_date"`
	MediaType        string    `db:"media_type"`
	ForwardedFrom    string    `db:"forwarded_from"`
	ReplyToMessageID int64     `db:"reply_to_message_id"`
	MessageThreadID  int64     `db:"message_thread_id"`
	CreatedAt        time.Time `db:"created_at"`
}

// LeaderboardEntry is one ranked row of a leaderboard query, ordered by
// message count, then total message length.
type LeaderboardEntry struct {
	UserID        string `db:"user_id"        json:"userId"`
	DisplayName   string `db:"display_name"   json:"displayName"`
	MessageCount  int64  `db:"message_count"  json:"messageCount"`
	MessageLength int64  `db:"message_length" json:"messageLength"`
}

// ActivityTotals holds summed counters for one user over one time window.
type ActivityTotals struct {
	MessageCount  int64 `db:"message_count"  json:"messageCount"`
	MessageLength int64 `db:"message_length" json:"messageLength"`
}

// PlatformStats is the per-platform summary served by the stats API.
type PlatformStats struct {
	TotalUsers     int64 `db:"total_users"      json:"totalUsers"`
	TotalMessages  int64 `db:"total_messages"   json:"totalMessages"`
	ActiveToday    int64 `db:"active_today"     json:"activeToday"`
	ActiveThisWeek int64 `db:"active_this_week" json:"activeThisWeek"`
}
