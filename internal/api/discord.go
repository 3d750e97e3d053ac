package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/edgard/pulsebot/internal/commands"
	"github.com/edgard/pulsebot/internal/database"
)

// discordWebhookPayload is the flat envelope delivered by the Discord
// gateway relay.
type discordWebhookPayload struct {
	Username string `json:"username"`
	UserID   string `json:"user_id"`
	Content  string `json:"content"`
}

// handleDiscordWebhook ingests one relayed Discord message. Unlike
// Telegram, replies travel back inline in the webhook response, so
// command processing runs synchronously here.
func (s *Server) handleDiscordWebhook(w http.ResponseWriter, r *http.Request) {
	log := s.logger.With("webhook", "discord")

	var payload discordWebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		log.WarnContext(r.Context(), "Failed to decode Discord payload", "error", err)
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "reason": "invalid payload"})
		return
	}

	userID := strings.TrimSpace(payload.UserID)
	if userID == "" {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "reason": "missing user_id"})
		return
	}

	displayName := strings.TrimSpace(payload.Username)
	if displayName == "" {
		displayName = userID
	}

	if err := s.store.TrackMessage(r.Context(), database.PlatformDiscord, userID, displayName, utf8.RuneCountInString(payload.Content)); err != nil {
		log.ErrorContext(r.Context(), "Failed to track Discord message", "user_id", userID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to record message.")
		return
	}

	resp := map[string]any{"success": true, "tracked": true}
	if commands.IsCommand(payload.Content) {
		reply := s.processor.Process(r.Context(), commands.Request{
			Platform:    database.PlatformDiscord,
			UserID:      userID,
			DisplayName: displayName,
			Text:        payload.Content,
		})
		if reply != "" {
			resp["reply"] = reply
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
