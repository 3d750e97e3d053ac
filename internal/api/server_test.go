package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/pulsebot/internal/api"
	"github.com/edgard/pulsebot/internal/commands"
	"github.com/edgard/pulsebot/internal/config"
	"github.com/edgard/pulsebot/internal/database"
	"github.com/edgard/pulsebot/internal/ratelimit"
	"github.com/edgard/pulsebot/internal/stats"
)

type trackedMessage struct {
	platform    database.Platform
	userID      string
	displayName string
	length      int
}

// fakeStore records writes and serves canned reads. Unimplemented Store
// methods panic through the embedded nil interface.
type fakeStore struct {
	database.Store

	tracked   []trackedMessage
	channeled []database.ChannelMessage

	pingErr   error
	trackErr  error
	board     []database.LeaderboardEntry
	lastLimit int
	pstats    database.PlatformStats
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func (f *fakeStore) TrackMessage(_ context.Context, platform database.Platform, userID, displayName string, length int) error {
	if f.trackErr != nil {
		return f.trackErr
	}
	f.tracked = append(f.tracked, trackedMessage{platform, userID, displayName, length})
	return nil
}

func (f *fakeStore) SaveChannelMessage(_ context.Context, msg *database.ChannelMessage) error {
	f.channeled = append(f.channeled, *msg)
	return nil
}

func (f *fakeStore) DailyLeaderboard(_ context.Context, _ database.Platform, _ string, limit int) ([]database.LeaderboardEntry, error) {
	f.lastLimit = limit
	return f.board, nil
}

func (f *fakeStore) LeaderboardSince(_ context.Context, _ database.Platform, _ string, limit int) ([]database.LeaderboardEntry, error) {
	f.lastLimit = limit
	return f.board, nil
}

func (f *fakeStore) PlatformStats(_ context.Context, _ database.Platform, _, _ string) (database.PlatformStats, error) {
	return f.pstats, nil
}

func (f *fakeStore) UserTotalsOnDate(_ context.Context, _ database.Platform, _, _ string) (database.ActivityTotals, error) {
	return database.ActivityTotals{}, nil
}

func (f *fakeStore) UserTotalsSince(_ context.Context, _ database.Platform, _, _ string) (database.ActivityTotals, error) {
	return database.ActivityTotals{}, nil
}

func (f *fakeStore) UserRank(_ context.Context, _ database.Platform, _ string) (int64, bool, error) {
	return 0, false, nil
}

func newTestServer(t *testing.T, store *fakeStore, apiLimit int) *api.Server {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{}
	cfg.Server.Addr = ":0"
	cfg.Server.ShutdownTimeout = time.Second
	cfg.RateLimit.API.MaxRequests = apiLimit
	cfg.RateLimit.API.Window = time.Minute
	cfg.Telegram.RequestTimeout = time.Second
	cfg.Gemini.SummaryWindow = 100

	statsService := stats.NewService(store, log)
	processor := commands.NewProcessor(log, cfg, statsService, store, nil,
		ratelimit.New(100, time.Minute), ratelimit.New(100, time.Minute))

	return api.NewServer(log, cfg, statsService, store, processor,
		ratelimit.New(apiLimit, time.Minute), nil)
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "203.0.113.9:51234"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded), "response body: %s", rec.Body.String())
	return rec, decoded
}

func errorCode(t *testing.T, body map[string]any) string {
	t.Helper()

	errObj, ok := body["error"].(map[string]any)
	require.True(t, ok, "expected error envelope, got %v", body)
	code, _ := errObj["code"].(string)
	return code
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeStore{}, 100)

	rec, body := doJSON(t, srv.Handler(), http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, api.Version, body["version"])
}

func TestHealthEndpointUnhealthy(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeStore{pingErr: errors.New("gone")}, 100)

	rec, body := doJSON(t, srv.Handler(), http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "UNHEALTHY", errorCode(t, body))
}

func TestLeaderboardEndpoint(t *testing.T) {
	t.Parallel()

	store := &fakeStore{board: []database.LeaderboardEntry{
		{UserID: "1", DisplayName: "Alice", MessageCount: 9},
	}}
	srv := newTestServer(t, store, 100)

	rec, body := doJSON(t, srv.Handler(), http.MethodGet, "/api/leaderboard/telegram/weekly", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(1), body["count"])
	assert.Equal(t, 10, store.lastLimit, "default limit should apply")
}

func TestLeaderboardLimitClamped(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	srv := newTestServer(t, store, 100)

	rec, _ := doJSON(t, srv.Handler(), http.MethodGet, "/api/leaderboard/telegram/all?limit=5000", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 100, store.lastLimit)
}

func TestLeaderboardBadInputs(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeStore{}, 100)
	handler := srv.Handler()

	rec, body := doJSON(t, handler, http.MethodGet, "/api/leaderboard/irc/daily", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_PLATFORM", errorCode(t, body))

	rec, body = doJSON(t, handler, http.MethodGet, "/api/leaderboard/telegram/fortnightly", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_PERIOD", errorCode(t, body))

	rec, body = doJSON(t, handler, http.MethodGet, "/api/leaderboard/telegram/daily?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_LIMIT", errorCode(t, body))

	rec, body = doJSON(t, handler, http.MethodGet, "/api/leaderboard/telegram/daily?limit=-3", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_LIMIT", errorCode(t, body))
}

func TestUserStatsBlankUserID(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeStore{}, 100)

	rec, body := doJSON(t, srv.Handler(), http.MethodGet, "/api/user/telegram/%20", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_USER_ID", errorCode(t, body))
}

func TestAPIRateLimit(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeStore{}, 1)
	handler := srv.Handler()

	rec, _ := doJSON(t, handler, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, body := doJSON(t, handler, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE_LIMITED", errorCode(t, body))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestWebhooksBypassAPIRateLimit(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	srv := newTestServer(t, store, 1)
	handler := srv.Handler()

	doJSON(t, handler, http.MethodGet, "/api/health", "")
	doJSON(t, handler, http.MethodGet, "/api/health", "")

	rec, body := doJSON(t, handler, http.MethodPost, "/discord/webhook",
		`{"username":"Alice","user_id":"42","content":"hello"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
}

func TestTelegramWebhookTracksMessage(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	srv := newTestServer(t, store, 100)

	payload := `{"update_id":1,"message":{"message_id":10,` +
		`"from":{"id":42,"is_bot":false,"first_name":"Alice","last_name":"Smith"},` +
		`"chat":{"id":-1001,"type":"supergroup","title":"Test Group"},` +
		`"date":1750000000,"text":"héllo"}}`

	rec, body := doJSON(t, srv.Handler(), http.MethodPost, "/telegram/webhook", payload)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["tracked"])

	require.Len(t, store.tracked, 1)
	assert.Equal(t, database.PlatformTelegram, store.tracked[0].platform)
	assert.Equal(t, "42", store.tracked[0].userID)
	assert.Equal(t, "Alice Smith", store.tracked[0].displayName)
	assert.Equal(t, 5, store.tracked[0].length, "length must count runes, not bytes")

	// Group traffic also lands in the channel log.
	require.Len(t, store.channeled, 1)
	assert.Equal(t, int64(-1001), store.channeled[0].ChatID)
	assert.Equal(t, "héllo", store.channeled[0].MessageText)
}

func TestTelegramWebhookIgnoresBots(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	srv := newTestServer(t, store, 100)

	payload := `{"update_id":2,"message":{"message_id":11,` +
		`"from":{"id":7,"is_bot":true,"first_name":"Bot"},` +
		`"chat":{"id":5,"type":"private"},"date":1750000000,"text":"beep"}}`

	rec, body := doJSON(t, srv.Handler(), http.MethodPost, "/telegram/webhook", payload)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, false, body["tracked"])
	assert.Empty(t, store.tracked)
}

func TestTelegramWebhookIgnoresServiceEvents(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	srv := newTestServer(t, store, 100)

	payload := `{"update_id":3,"message":{"message_id":12,` +
		`"from":{"id":42,"is_bot":false,"first_name":"Alice"},` +
		`"chat":{"id":-1001,"type":"supergroup"},"date":1750000000,` +
		`"new_chat_title":"Renamed Group"}}`

	rec, body := doJSON(t, srv.Handler(), http.MethodPost, "/telegram/webhook", payload)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["tracked"])
	assert.Empty(t, store.tracked)
}

func TestTelegramWebhookMalformedJSON(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	srv := newTestServer(t, store, 100)

	rec, body := doJSON(t, srv.Handler(), http.MethodPost, "/telegram/webhook", `{"update_id":`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Empty(t, store.tracked)
}

func TestTelegramWebhookPersistenceFailure(t *testing.T) {
	t.Parallel()

	store := &fakeStore{trackErr: errors.New("disk full")}
	srv := newTestServer(t, store, 100)

	payload := `{"update_id":4,"message":{"message_id":13,` +
		`"from":{"id":42,"is_bot":false,"first_name":"Alice"},` +
		`"chat":{"id":5,"type":"private"},"date":1750000000,"text":"hi"}}`

	rec, body := doJSON(t, srv.Handler(), http.MethodPost, "/telegram/webhook", payload)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", errorCode(t, body))
}

func TestTelegramWebhookSecretEnforced(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{}
	cfg.RateLimit.API.MaxRequests = 100
	cfg.RateLimit.API.Window = time.Minute
	cfg.Telegram.WebhookSecret = "hunter2"
	cfg.Telegram.RequestTimeout = time.Second

	statsService := stats.NewService(store, log)
	processor := commands.NewProcessor(log, cfg, statsService, store, nil,
		ratelimit.New(100, time.Minute), ratelimit.New(100, time.Minute))
	srv := api.NewServer(log, cfg, statsService, store, processor,
		ratelimit.New(100, time.Minute), nil)

	payload := `{"update_id":5,"message":{"message_id":14,` +
		`"from":{"id":42,"is_bot":false,"first_name":"Alice"},` +
		`"chat":{"id":5,"type":"private"},"date":1750000000,"text":"hi"}}`

	req := httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, store.tracked)

	req = httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader(payload))
	req.Header.Set("X-Telegram-Bot-Api-Secret-Token", "hunter2")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, store.tracked, 1)
}

func TestDiscordWebhookTracksAndReplies(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	srv := newTestServer(t, store, 100)

	rec, body := doJSON(t, srv.Handler(), http.MethodPost, "/discord/webhook",
		`{"username":"Alice","user_id":"42","content":"/help"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["tracked"])

	reply, _ := body["reply"].(string)
	assert.Contains(t, reply, "/stats")

	require.Len(t, store.tracked, 1)
	assert.Equal(t, database.PlatformDiscord, store.tracked[0].platform)
}

func TestDiscordWebhookMissingUserID(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	srv := newTestServer(t, store, 100)

	rec, body := doJSON(t, srv.Handler(), http.MethodPost, "/discord/webhook",
		`{"username":"Alice","content":"hello"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Empty(t, store.tracked)
}
