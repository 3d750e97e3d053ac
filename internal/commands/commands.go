// Package commands implements the chat command processor shared by the
// Telegram and Discord webhook adapters. A message is dispatched to at
// most one handler; handler failures are converted into a generic
// apology reply and never propagate to the webhook response.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/edgard/pulsebot/internal/config"
	"github.com/edgard/pulsebot/internal/database"
	"github.com/edgard/pulsebot/internal/gemini"
	"github.com/edgard/pulsebot/internal/ratelimit"
	"github.com/edgard/pulsebot/internal/security"
	"github.com/edgard/pulsebot/internal/stats"
)

// Reply texts. Kept as constants rather than config so the command layer
// stays self-contained.
const (
	msgRateLimited     = "You're sending commands too fast. Try again in %d seconds."
	msgGeneralError    = "Something went wrong. Please try again later."
	msgSummaryDisabled = "Chat summaries are not available right now."
	msgNoActivity      = "No activity recorded yet."
	msgHelp            = "Available commands:\n" +
		"/stats - your activity and rank\n" +
		"/top [daily|weekly|monthly|all] - leaderboard\n" +
		"/summary - summary of recent chat (Telegram groups)\n" +
		"/help - this message"
)

const leaderboardSize = 10

// knownCommands is the closed set of dispatchable command names. Checked
// before the rate limiter so typos never consume a user's budget.
var knownCommands = map[string]bool{
	"help":    true,
	"start":   true,
	"stats":   true,
	"top":     true,
	"summary": true,
}

// Request carries the fields a webhook adapter extracts from one inbound
// message. ChatID is only meaningful on Telegram.
type Request struct {
	Platform    database.Platform
	UserID      string
	DisplayName string
	ChatID      int64
	Text        string
}

// Processor routes recognized commands to their handlers. One instance
// serves all platforms.
type Processor struct {
	logger         *slog.Logger
	stats          *stats.Service
	store          database.Store
	geminiClient   gemini.Client // nil when no API key is configured
	commandLimiter *ratelimit.Limiter
	summaryLimiter *ratelimit.Limiter
	summaryWindow  int
}

// NewProcessor creates a command processor. geminiClient may be nil, in
// which case the summary command reports itself unavailable.
func NewProcessor(
	logger *slog.Logger,
	cfg *config.Config,
	statsService *stats.Service,
	store database.Store,
	geminiClient gemini.Client,
	commandLimiter *ratelimit.Limiter,
	summaryLimiter *ratelimit.Limiter,
) *Processor {
	return &Processor{
		logger:         logger.With("component", "commands"),
		stats:          statsService,
		store:          store,
		geminiClient:   geminiClient,
		commandLimiter: commandLimiter,
		summaryLimiter: summaryLimiter,
		summaryWindow:  cfg.Gemini.SummaryWindow,
	}
}

// IsCommand reports whether the message text addresses the bot.
func IsCommand(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "/")
}

// Process dispatches at most one command handler for the request and
// returns the reply text. A non-command or unrecognized message yields an
// empty reply. Handler errors are logged and mapped to a generic apology.
func (p *Processor) Process(ctx context.Context, req Request) string {
	name, arg := splitCommand(req.Text)
	if !knownCommands[name] {
		// Unrecognized commands produce no reply and must not charge
		// the user's rate-limit budget.
		return ""
	}

	log := p.logger.With("platform", req.Platform, "user_id", req.UserID, "command", name)

	limiterKey := string(req.Platform) + ":" + req.UserID
	if p.commandLimiter.IsLimited(limiterKey) {
		reset := p.commandLimiter.ResetAfter(limiterKey)
		log.InfoContext(ctx, "Command rate limited", "reset_after", reset)
		return fmt.Sprintf(msgRateLimited, int(reset.Seconds())+1)
	}

	// The abuse report is advisory: it is logged for moderation but the
	// command still runs.
	arg = security.Sanitize(arg, security.DefaultMaxInputLength)
	if report := security.DetectAbuse(req.Text); report.Score > 0 {
		log.WarnContext(ctx, "Abuse heuristics flagged command message",
			"score", report.Score, "spam", report.IsSpam, "flood", report.IsFlood, "suspicious", report.Suspicious)
	}

	var (
		reply string
		err   error
	)
	switch name {
	case "help", "start":
		reply = msgHelp
	case "stats":
		reply, err = p.handleStats(ctx, req)
	case "top":
		reply, err = p.handleTop(ctx, req, arg)
	case "summary":
		reply, err = p.handleSummary(ctx, req, limiterKey)
	}

	if err != nil {
		log.ErrorContext(ctx, "Command handler failed", "error", err)
		return msgGeneralError
	}
	return reply
}

func (p *Processor) handleStats(ctx context.Context, req Request) (string, error) {
	userStats, err := p.stats.UserStats(ctx, req.Platform, req.UserID)
	if err != nil {
		return "", fmt.Errorf("stats command failed: %w", err)
	}

	if userStats.Rank == nil {
		return msgNoActivity, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Stats for %s\n", req.DisplayName)
	fmt.Fprintf(&b, "Today: %d messages\n", userStats.Daily.MessageCount)
	fmt.Fprintf(&b, "This week: %d messages\n", userStats.Weekly.MessageCount)
	fmt.Fprintf(&b, "This month: %d messages\n", userStats.Monthly.MessageCount)
	fmt.Fprintf(&b, "All time: %d messages (%d characters)\n", userStats.AllTime.MessageCount, userStats.AllTime.MessageLength)
	fmt.Fprintf(&b, "Rank: #%d", *userStats.Rank)
	return b.String(), nil
}

func (p *Processor) handleTop(ctx context.Context, req Request, arg string) (string, error) {
	period, err := stats.ParsePeriod(strings.ToLower(strings.TrimSpace(arg)))
	if err != nil {
		return "Unknown period. Use daily, weekly, monthly, or all.", nil
	}

	entries, err := p.stats.Leaderboard(ctx, req.Platform, period, leaderboardSize)
	if err != nil {
		return "", fmt.Errorf("top command failed: %w", err)
	}

	if len(entries) == 0 {
		return msgNoActivity, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Top %s (%s)\n", string(req.Platform), period)
	for i, entry := range entries {
		fmt.Fprintf(&b, "%d. %s - %d messages\n", i+1, entry.DisplayName, entry.MessageCount)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (p *Processor) handleSummary(ctx context.Context, req Request, limiterKey string) (string, error) {
	if req.Platform != database.PlatformTelegram || req.ChatID == 0 {
		return "Summaries are only available in Telegram group chats.", nil
	}
	if p.geminiClient == nil {
		return msgSummaryDisabled, nil
	}

	// Summaries get their own, stricter budget on top of the generic
	// command limiter.
	if p.summaryLimiter.IsLimited(limiterKey) {
		reset := p.summaryLimiter.ResetAfter(limiterKey)
		return fmt.Sprintf(msgRateLimited, int(reset.Seconds())+1), nil
	}

	messages, err := p.store.RecentChannelMessages(ctx, req.ChatID, p.summaryWindow)
	if err != nil {
		return "", fmt.Errorf("summary command failed: %w", err)
	}
	if len(messages) == 0 {
		return "Nothing to summarize yet.", nil
	}

	summary, err := p.geminiClient.GenerateChatSummary(ctx, messages)
	if err != nil {
		// Upstream failure: log upstream detail, apologize in chat, and
		// leave the webhook acknowledgment untouched.
		p.logger.ErrorContext(ctx, "Summary generation failed", "chat_id", req.ChatID, "error", err)
		return msgGeneralError, nil
	}
	return summary, nil
}

// splitCommand extracts the command name and argument from a message like
// "/top weekly" or "/stats@pulsebot". It returns an empty name for
// non-command text.
func splitCommand(text string) (name, arg string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}

	rest := text[1:]
	if i := strings.IndexAny(rest, " \t\n"); i >= 0 {
		name, arg = rest[:i], strings.TrimSpace(rest[i:])
	} else {
		name = rest
	}

	// Strip the @botname suffix Telegram appends in groups.
	if i := strings.Index(name, "@"); i >= 0 {
		name = name[:i]
	}

	return strings.ToLower(name), arg
}
