// Package stats implements the statistics and leaderboard engine. It
// validates every request against the closed platform/period sets before
// any query executes, computes UTC time windows, and delegates the
// aggregation itself to the database store.
package stats

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/edgard/pulsebot/internal/database"
)

// Validation sentinels. Callers map these to user-facing 400 responses;
// anything else coming out of the service is a persistence failure.
var (
	ErrInvalidPlatform = errors.New("invalid platform")
	ErrInvalidPeriod   = errors.New("invalid period")
	ErrInvalidLimit    = errors.New("limit must be between 1 and 1000")
	ErrEmptyUserID     = errors.New("user id must not be empty")
)

// MaxLimit bounds leaderboard queries at the engine level. The HTTP API
// applies its own tighter cap on top.
const MaxLimit = 1000

// Period selects the date-range filter for leaderboard aggregation.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
	PeriodAll     Period = "all"
)

// ParsePeriod maps a raw string onto the closed period set. An empty
// string defaults to all-time.
func ParsePeriod(raw string) (Period, error) {
	switch Period(raw) {
	case PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodAll:
		return Period(raw), nil
	case "":
		return PeriodAll, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPeriod, raw)
	}
}

// UserStats bundles a user's activity windows with their all-time rank.
// Rank is nil when the user has no counter rows on the platform; the
// tie-break among equal message counts is unspecified.
type UserStats struct {
	Daily   database.ActivityTotals `json:"daily"`
	Weekly  database.ActivityTotals `json:"weekly"`
	Monthly database.ActivityTotals `json:"monthly"`
	AllTime database.ActivityTotals `json:"allTime"`
	Rank    *int64                  `json:"rank"`
}

// OverviewTotals is the cross-platform sum in the overview response.
type OverviewTotals struct {
	TotalUsers    int64 `json:"totalUsers"`
	TotalMessages int64 `json:"totalMessages"`
}

// Overview combines totals with a per-platform breakdown.
type Overview struct {
	Total     OverviewTotals                     `json:"total"`
	Platforms map[string]database.PlatformStats `json:"platforms"`
}

// Service is the statistics engine. Reads tolerate concurrent writers;
// results are approximate under concurrent tracking, which is acceptable
// for a community leaderboard.
type Service struct {
	store  database.Store
	logger *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewService creates a statistics service over the given store.
func NewService(store database.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		store:  store,
		logger: logger.With("component", "stats"),
		now:    time.Now,
	}
}

// Leaderboard returns ranked activity rows for a platform and period,
// capped at limit. Validation happens before any query executes.
func (s *Service) Leaderboard(ctx context.Context, platform database.Platform, period Period, limit int) ([]database.LeaderboardEntry, error) {
	if !platform.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPlatform, platform)
	}
	if _, err := ParsePeriod(string(period)); err != nil {
		return nil, err
	}
	if limit < 1 || limit > MaxLimit {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidLimit, limit)
	}

	now := s.now().UTC()

	var (
		entries []database.LeaderboardEntry
		err     error
	)
	switch period {
	case PeriodDaily:
		entries, err = s.store.DailyLeaderboard(ctx, platform, now.Format(database.DateFormat), limit)
	case PeriodWeekly:
		entries, err = s.store.LeaderboardSince(ctx, platform, weekStart(now), limit)
	case PeriodMonthly:
		entries, err = s.store.LeaderboardSince(ctx, platform, monthStart(now), limit)
	default:
		entries, err = s.store.LeaderboardSince(ctx, platform, "", limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s leaderboard: %w", period, err)
	}

	if entries == nil {
		entries = []database.LeaderboardEntry{}
	}
	return entries, nil
}

// UserStats returns a user's daily/weekly/monthly/all-time totals and
// all-time rank on the platform.
func (s *Service) UserStats(ctx context.Context, platform database.Platform, userID string) (*UserStats, error) {
	if !platform.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPlatform, platform)
	}
	if userID == "" {
		return nil, ErrEmptyUserID
	}

	now := s.now().UTC()
	today := now.Format(database.DateFormat)

	result := &UserStats{}

	var err error
	if result.Daily, err = s.store.UserTotalsOnDate(ctx, platform, userID, today); err != nil {
		return nil, fmt.Errorf("failed to get daily totals: %w", err)
	}
	if result.Weekly, err = s.store.UserTotalsSince(ctx, platform, userID, weekStart(now)); err != nil {
		return nil, fmt.Errorf("failed to get weekly totals: %w", err)
	}
	if result.Monthly, err = s.store.UserTotalsSince(ctx, platform, userID, monthStart(now)); err != nil {
		return nil, fmt.Errorf("failed to get monthly totals: %w", err)
	}
	if result.AllTime, err = s.store.UserTotalsSince(ctx, platform, userID, ""); err != nil {
		return nil, fmt.Errorf("failed to get all-time totals: %w", err)
	}

	rank, found, err := s.store.UserRank(ctx, platform, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user rank: %w", err)
	}
	if found {
		result.Rank = &rank
	}

	return result, nil
}

// PlatformStats returns the platform summary: distinct users, total
// messages, and active-user counts for today and the trailing week.
func (s *Service) PlatformStats(ctx context.Context, platform database.Platform) (database.PlatformStats, error) {
	if !platform.Valid() {
		return database.PlatformStats{}, fmt.Errorf("%w: %q", ErrInvalidPlatform, platform)
	}

	now := s.now().UTC()
	stats, err := s.store.PlatformStats(ctx, platform, now.Format(database.DateFormat), weekStart(now))
	if err != nil {
		return database.PlatformStats{}, fmt.Errorf("failed to get platform stats: %w", err)
	}
	return stats, nil
}

// Overview aggregates every platform's stats into combined totals plus a
// per-platform breakdown. Total message count is the sum of the
// per-platform message counts.
func (s *Service) Overview(ctx context.Context) (*Overview, error) {
	overview := &Overview{
		Platforms: make(map[string]database.PlatformStats, len(database.Platforms)),
	}

	for _, platform := range database.Platforms {
		stats, err := s.PlatformStats(ctx, platform)
		if err != nil {
			return nil, fmt.Errorf("failed to get overview for %s: %w", platform, err)
		}
		overview.Platforms[platform.String()] = stats
		overview.Total.TotalUsers += stats.TotalUsers
		overview.Total.TotalMessages += stats.TotalMessages
	}

	return overview, nil
}

// weekStart is the UTC date seven days before now.
func weekStart(now time.Time) string {
	return now.AddDate(0, 0, -7).Format(database.DateFormat)
}

// monthStart is the first day of the current UTC month.
func monthStart(now time.Time) string {
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).Format(database.DateFormat)
}
