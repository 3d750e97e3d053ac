package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// DateFormat is the canonical form of chat_date values (UTC calendar day).
const DateFormat = "2006-01-02"

// Store defines the interface for database operations. Methods accept
// context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// TrackMessage records one message: it upserts the user row and
	// atomically increments the per-day counter, both in one transaction.
	TrackMessage(ctx context.Context, platform Platform, userID, displayName string, messageLength int) error

	// DailyLeaderboard returns ranked rows for exactly one calendar date.
	DailyLeaderboard(ctx context.Context, platform Platform, date string, limit int) ([]LeaderboardEntry, error)

	// LeaderboardSince returns rows with chat_date >= since, summed per
	// user. An empty since means all-time.
	LeaderboardSince(ctx context.Context, platform Platform, since string, limit int) ([]LeaderboardEntry, error)

	// UserTotalsOnDate sums a user's counters for one calendar date.
	UserTotalsOnDate(ctx context.Context, platform Platform, userID, date string) (ActivityTotals, error)

	// UserTotalsSince sums a user's counters for chat_date >= since; an
	// empty since means all-time.
	UserTotalsSince(ctx context.Context, platform Platform, userID, since string) (ActivityTotals, error)

	// UserRank returns the user's 1-based position by all-time message
	// count on the platform. found is false when the user has no rows.
	UserRank(ctx context.Context, platform Platform, userID string) (rank int64, found bool, err error)

	// PlatformStats returns the combined platform summary. today and
	// weekAgo are UTC dates bounding the activity windows.
	PlatformStats(ctx context.Context, platform Platform, today, weekAgo string) (PlatformStats, error)

	// SaveChannelMessage appends one row to the Telegram channel log.
	SaveChannelMessage(ctx context.Context, msg *ChannelMessage) error

	// RecentChannelMessages retrieves the most recent 'limit' channel log
	// rows for a chat, in chronological order.
	RecentChannelMessages(ctx context.Context, chatID int64, limit int) ([]ChannelMessage, error)

	// PruneChannelMessages deletes channel log rows older than the cutoff
	// and reports how many were removed.
	PruneChannelMessages(ctx context.Context, olderThan time.Time) (int64, error)

	// RunMaintenance performs database maintenance tasks like VACUUM.
	RunMaintenance(ctx context.Context) error
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx. It requires
// a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// TrackMessage upserts the user row and increments the day counter. The
// counter update is a single INSERT ... ON CONFLICT statement so that
// concurrent messages from the same user on the same day never lose
// updates, and both writes share one transaction.
func (s *sqlxStore) TrackMessage(ctx context.Context, platform Platform, userID, displayName string, messageLength int) error {
	if !platform.Valid() {
		return fmt.Errorf("invalid platform %q", platform)
	}
	if userID == "" {
		return errors.New("user_id must not be empty")
	}
	if displayName == "" {
		return errors.New("display_name must not be empty")
	}
	if messageLength < 0 {
		return fmt.Errorf("message_length must be >= 0, got %d", messageLength)
	}

	now := time.Now().UTC()
	chatDate := now.Format(DateFormat)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction for message tracking",
			"platform", platform, "user_id", userID, "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
			}
		}
	}()

	// Display name follows the latest message so leaderboards never show
	// stale labels.
	userQuery := `
        INSERT INTO users (platform, user_id, display_name, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT (platform, user_id)
        DO UPDATE SET display_name = excluded.display_name, updated_at = excluded.updated_at;
    `
	if _, err := tx.ExecContext(ctx, userQuery, platform, userID, displayName, now, now); err != nil {
		s.logger.ErrorContext(ctx, "Error upserting user", "platform", platform, "user_id", userID, "error", err)
		return fmt.Errorf("failed to upsert user (%s/%s): %w", platform, userID, err)
	}

	counterQuery := `
        INSERT INTO chat_counters (chat_date, platform, user_id, message_count, message_length, updated_at)
        VALUES (?, ?, ?, 1, ?, ?)
        ON CONFLICT (chat_date, platform, user_id)
        DO UPDATE SET
            message_count  = message_count + 1,
            message_length = message_length + excluded.message_length,
            updated_at     = excluded.updated_at;
    `
	if _, err := tx.ExecContext(ctx, counterQuery, chatDate, platform, userID, messageLength, now); err != nil {
		s.logger.ErrorContext(ctx, "Error upserting chat counter",
			"platform", platform, "user_id", userID, "chat_date", chatDate, "error", err)
		return fmt.Errorf("failed to upsert chat counter (%s/%s on %s): %w", platform, userID, chatDate, err)
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit message tracking transaction",
			"platform", platform, "user_id", userID, "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	s.logger.DebugContext(ctx, "Message tracked",
		"platform", platform, "user_id", userID, "chat_date", chatDate, "length", messageLength)
	return nil
}

// DailyLeaderboard returns ranked rows for exactly one calendar date,
// ordered by message count desc, then message length desc.
func (s *sqlxStore) DailyLeaderboard(ctx context.Context, platform Platform, date string, limit int) ([]LeaderboardEntry, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var entries []LeaderboardEntry
	query := `
        SELECT c.user_id, u.display_name, c.message_count, c.message_length
        FROM chat_counters c
        JOIN users u ON u.platform = c.platform AND u.user_id = c.user_id
        WHERE c.platform = ? AND c.chat_date = ?
        ORDER BY c.message_count DESC, c.message_length DESC
        LIMIT ?;
    `
	if err := s.db.SelectContext(ctx, &entries, query, platform, date, limit); err != nil {
		s.logger.ErrorContext(ctx, "Error getting daily leaderboard",
			"platform", platform, "chat_date", date, "error", err)
		return nil, fmt.Errorf("failed to get daily leaderboard for %s on %s: %w", platform, date, err)
	}
	return entries, nil
}

// LeaderboardSince sums counters per user for chat_date >= since and
// ranks the sums. An empty since yields the all-time leaderboard.
func (s *sqlxStore) LeaderboardSince(ctx context.Context, platform Platform, since string, limit int) ([]LeaderboardEntry, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var entries []LeaderboardEntry
	query := `
        SELECT c.user_id, u.display_name,
               SUM(c.message_count) AS message_count,
               SUM(c.message_length) AS message_length
        FROM chat_counters c
        JOIN users u ON u.platform = c.platform AND u.user_id = c.user_id
        WHERE c.platform = ? AND (? = '' OR c.chat_date >= ?)
        GROUP BY c.user_id, u.display_name
        ORDER BY message_count DESC, message_length DESC
        LIMIT ?;
    `
	if err := s.db.SelectContext(ctx, &entries, query, platform, since, since, limit); err != nil {
		s.logger.ErrorContext(ctx, "Error getting leaderboard",
			"platform", platform, "since", since, "error", err)
		return nil, fmt.Errorf("failed to get leaderboard for %s since %q: %w", platform, since, err)
	}
	return entries, nil
}

// UserTotalsOnDate sums a user's counters for one calendar date. A user
// with no rows yields zero totals, not an error.
func (s *sqlxStore) UserTotalsOnDate(ctx context.Context, platform Platform, userID, date string) (ActivityTotals, error) {
	var totals ActivityTotals
	query := `
        SELECT COALESCE(SUM(message_count), 0) AS message_count,
               COALESCE(SUM(message_length), 0) AS message_length
        FROM chat_counters
        WHERE platform = ? AND user_id = ? AND chat_date = ?;
    `
	if err := s.db.GetContext(ctx, &totals, query, platform, userID, date); err != nil {
		s.logger.ErrorContext(ctx, "Error getting user totals for date",
			"platform", platform, "user_id", userID, "chat_date", date, "error", err)
		return ActivityTotals{}, fmt.Errorf("failed to get totals for %s/%s on %s: %w", platform, userID, date, err)
	}
	return totals, nil
}

// UserTotalsSince sums a user's counters for chat_date >= since; an empty
// since means all-time.
func (s *sqlxStore) UserTotalsSince(ctx context.Context, platform Platform, userID, since string) (ActivityTotals, error) {
	var totals ActivityTotals
	query := `
        SELECT COALESCE(SUM(message_count), 0) AS message_count,
               COALESCE(SUM(message_length), 0) AS message_length
        FROM chat_counters
        WHERE platform = ? AND user_id = ? AND (? = '' OR chat_date >= ?);
    `
	if err := s.db.GetContext(ctx, &totals, query, platform, userID, since, since); err != nil {
		s.logger.ErrorContext(ctx, "Error getting user totals",
			"platform", platform, "user_id", userID, "since", since, "error", err)
		return ActivityTotals{}, fmt.Errorf("failed to get totals for %s/%s since %q: %w", platform, userID, since, err)
	}
	return totals, nil
}

// UserRank ranks users by all-time message count descending and returns
// the target user's 1-based position. The tie-break among equal counts is
// unspecified. Scans all counter rows for the platform, which is fine at
// community scale.
func (s *sqlxStore) UserRank(ctx context.Context, platform Platform, userID string) (int64, bool, error) {
	var rank int64
	query := `
        SELECT user_rank FROM (
            SELECT user_id,
                   RANK() OVER (ORDER BY SUM(message_count) DESC) AS user_rank
            FROM chat_counters
            WHERE platform = ?
            GROUP BY user_id
        ) ranked
        WHERE user_id = ?;
    `
	err := s.db.GetContext(ctx, &rank, query, platform, userID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, false, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting user rank",
			"platform", platform, "user_id", userID, "error", err)
		return 0, false, fmt.Errorf("failed to get rank for %s/%s: %w", platform, userID, err)
	}
	return rank, true, nil
}

// PlatformStats returns distinct-user and message totals plus active-user
// counts for today and the trailing week.
func (s *sqlxStore) PlatformStats(ctx context.Context, platform Platform, today, weekAgo string) (PlatformStats, error) {
	if ctx.Err() != nil {
		return PlatformStats{}, ctx.Err()
	}

	var stats PlatformStats
	query := `
        SELECT
            (SELECT COUNT(*) FROM users WHERE platform = ?) AS total_users,
            (SELECT COALESCE(SUM(message_count), 0) FROM chat_counters WHERE platform = ?) AS total_messages,
            (SELECT COUNT(DISTINCT user_id) FROM chat_counters WHERE platform = ? AND chat_date = ?) AS active_today,
            (SELECT COUNT(DISTINCT user_id) FROM chat_counters WHERE platform = ? AND chat_date >= ?) AS active_this_week;
    `
	if err := s.db.GetContext(ctx, &stats, query, platform, platform, platform, today, platform, weekAgo); err != nil {
		s.logger.ErrorContext(ctx, "Error getting platform stats", "platform", platform, "error", err)
		return PlatformStats{}, fmt.Errorf("failed to get platform stats for %s: %w", platform, err)
	}
	return stats, nil
}

// SaveChannelMessage appends one row to the Telegram channel log.
func (s *sqlxStore) SaveChannelMessage(ctx context.Context, msg *ChannelMessage) error {
	if msg == nil {
		return errors.New("cannot save nil channel message")
	}
	if msg.ChatID == 0 {
		return errors.New("channel message must have a non-zero chat_id")
	}
	if msg.MessageDate.IsZero() {
		msg.MessageDate = time.Now().UTC()
	}
	msg.CreatedAt = time.Now().UTC()

	query := `
        INSERT INTO channel_messages (
            message_id, chat_id, chat_type, chat_title, sender_id, sender_name,
            message_text, message_date, media_type, forwarded_from,
            reply_to_message_id, message_thread_id, created_at
        ) VALUES (
            :message_id, :chat_id, :chat_type, :chat_title, :sender_id, :sender_name,
            :message_text, :message_date, :media_type, :forwarded_from,
            :reply_to_message_id, :message_thread_id, :created_at
        );
    `
	result, err := s.db.NamedExecContext(ctx, query, msg)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving channel message",
			"chat_id", msg.ChatID, "message_id", msg.MessageID, "error", err)
		return fmt.Errorf("failed to save channel message (chat %d): %w", msg.ChatID, err)
	}

	if id, err := result.LastInsertId(); err == nil {
		msg.ID = id
	} else {
		s.logger.WarnContext(ctx, "Could not retrieve last insert ID after saving channel message",
			"chat_id", msg.ChatID, "error", err)
	}

	s.logger.DebugContext(ctx, "Channel message saved", "chat_id", msg.ChatID, "message_id", msg.MessageID)
	return nil
}

// RecentChannelMessages retrieves the most recent 'limit' rows for a chat
// and returns them oldest-first, ready for summarization.
func (s *sqlxStore) RecentChannelMessages(ctx context.Context, chatID int64, limit int) ([]ChannelMessage, error) {
	if chatID == 0 {
		return nil, errors.New("chat_id cannot be zero")
	}
	if limit <= 0 {
		limit = 50
	} else if limit > 500 {
		limit = 500
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var messages []ChannelMessage
	query := `
        SELECT id, message_id, chat_id, chat_type, chat_title, sender_id, sender_name,
               message_text, message_date, media_type, forwarded_from,
               reply_to_message_id, message_thread_id, created_at
        FROM channel_messages
        WHERE chat_id = ?
        ORDER BY message_date DESC, id DESC
        LIMIT ?;
    `
	if err := s.db.SelectContext(ctx, &messages, query, chatID, limit); err != nil {
		s.logger.ErrorContext(ctx, "Error getting recent channel messages",
			"chat_id", chatID, "limit", limit, "error", err)
		return nil, fmt.Errorf("failed to get recent channel messages for chat %d: %w", chatID, err)
	}

	// Reverse into chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// PruneChannelMessages deletes channel log rows older than the cutoff.
func (s *sqlxStore) PruneChannelMessages(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM channel_messages WHERE message_date < ?`, olderThan.UTC())
	if err != nil {
		s.logger.ErrorContext(ctx, "Error pruning channel messages", "older_than", olderThan, "error", err)
		return 0, fmt.Errorf("failed to prune channel messages: %w", err)
	}

	count, _ := result.RowsAffected()
	s.logger.InfoContext(ctx, "Pruned channel messages", "count", count, "older_than", olderThan)
	return count, nil
}

// RunMaintenance executes a VACUUM command on the SQLite database.
func (s *sqlxStore) RunMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		s.logger.WarnContext(ctx, "Context cancelled before starting VACUUM", "error", ctx.Err())
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")

	_, err := s.db.ExecContext(ctx, "VACUUM;")
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "VACUUM operation timed out or was cancelled", "error", err)
		return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)
	case err != nil:
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)
	}

	s.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed")
	return nil
}
