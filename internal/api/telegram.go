package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/pulsebot/internal/commands"
	"github.com/edgard/pulsebot/internal/database"
)

// handleTelegramWebhook ingests one Telegram update. Payloads without a
// usable sender, bot-originated messages, and service events are
// acknowledged but not tracked. The endpoint answers 200 with a success
// flag in all expected cases; only an unexpected persistence failure
// yields a 500.
func (s *Server) handleTelegramWebhook(w http.ResponseWriter, r *http.Request) {
	log := s.logger.With("webhook", "telegram")

	if secret := s.cfg.Telegram.WebhookSecret; secret != "" {
		if r.Header.Get("X-Telegram-Bot-Api-Secret-Token") != secret {
			log.WarnContext(r.Context(), "Webhook secret mismatch", "remote", clientIP(r))
			s.writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid webhook secret.")
			return
		}
	}

	var update models.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		log.WarnContext(r.Context(), "Failed to decode Telegram update", "error", err)
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "reason": "invalid payload"})
		return
	}

	// Channel posts carry no personal sender; they only feed the
	// append-only log used for summarization.
	if update.ChannelPost != nil {
		s.appendChannelLog(r.Context(), update.ChannelPost)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "tracked": false})
		return
	}

	msg := update.Message
	if msg == nil || msg.From == nil {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "tracked": false, "reason": "no sender"})
		return
	}
	if msg.From.IsBot || isServiceEvent(msg) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "tracked": false, "reason": "ignored"})
		return
	}

	text := messageText(msg)
	userID := strconv.FormatInt(msg.From.ID, 10)
	displayName := telegramDisplayName(msg.From)

	if err := s.store.TrackMessage(r.Context(), database.PlatformTelegram, userID, displayName, utf8.RuneCountInString(text)); err != nil {
		log.ErrorContext(r.Context(), "Failed to track Telegram message",
			"user_id", userID, "chat_id", msg.Chat.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to record message.")
		return
	}

	// Group traffic also feeds the summarization log.
	chatType := string(msg.Chat.Type)
	if chatType == "group" || chatType == "supergroup" {
		s.appendChannelLog(r.Context(), msg)
	}

	// Command processing is detached from the webhook response: the
	// acknowledgment below does not wait for (or depend on) the reply.
	if commands.IsCommand(text) && s.tgClient != nil {
		go s.processTelegramCommand(commands.Request{
			Platform:    database.PlatformTelegram,
			UserID:      userID,
			DisplayName: displayName,
			ChatID:      msg.Chat.ID,
			Text:        text,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "tracked": true})
}

// processTelegramCommand runs in its own goroutine with a detached
// context, so a slow summary or a hung Telegram API call never affects
// the already-returned webhook acknowledgment.
func (s *Server) processTelegramCommand(req commands.Request) {
	ctx, cancel := context.WithTimeout(context.Background(), s.commandDeadline())
	defer cancel()

	reply := s.processor.Process(ctx, req)
	if reply == "" {
		return
	}

	sendCtx, sendCancel := context.WithTimeout(context.Background(), s.cfg.Telegram.RequestTimeout)
	defer sendCancel()

	if _, err := s.tgClient.SendMessage(sendCtx, &tgbot.SendMessageParams{
		ChatID: req.ChatID,
		Text:   reply,
	}); err != nil {
		s.logger.Error("Failed to send Telegram reply",
			"chat_id", req.ChatID, "user_id", req.UserID, "error", err)
	}
}

// commandDeadline bounds background command processing. Summaries can
// legitimately take as long as a Gemini call, so that timeout dominates.
func (s *Server) commandDeadline() time.Duration {
	if s.cfg.Gemini.Timeout > s.cfg.Telegram.RequestTimeout {
		return s.cfg.Gemini.Timeout
	}
	return s.cfg.Telegram.RequestTimeout
}

// appendChannelLog stores one message in the append-only channel log.
// Failures are logged and swallowed: the log is a best-effort source for
// summaries, not part of the tracking contract.
func (s *Server) appendChannelLog(ctx context.Context, msg *models.Message) {
	entry := &database.ChannelMessage{
		MessageID:       int64(msg.ID),
		ChatID:          msg.Chat.ID,
		ChatType:        string(msg.Chat.Type),
		ChatTitle:       msg.Chat.Title,
		MessageText:     messageText(msg),
		MessageDate:     time.Unix(int64(msg.Date), 0).UTC(),
		MediaType:       mediaType(msg),
		ForwardedFrom:   forwardLabel(msg.ForwardOrigin),
		MessageThreadID: int64(msg.MessageThreadID),
	}
	if msg.From != nil {
		entry.SenderID = msg.From.ID
		entry.SenderName = telegramDisplayName(msg.From)
	}
	if msg.ReplyToMessage != nil {
		entry.ReplyToMessageID = int64(msg.ReplyToMessage.ID)
	}

	if err := s.store.SaveChannelMessage(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "Failed to append channel log",
			"chat_id", msg.Chat.ID, "message_id", msg.ID, "error", err)
	}
}

// isServiceEvent reports whether the message is a join/leave/title/pin
// style system event rather than user content.
func isServiceEvent(msg *models.Message) bool {
	return len(msg.NewChatMembers) > 0 ||
		msg.LeftChatMember != nil ||
		msg.NewChatTitle != "" ||
		len(msg.NewChatPhoto) > 0 ||
		msg.DeleteChatPhoto ||
		msg.GroupChatCreated ||
		msg.PinnedMessage != nil
}

// messageText prefers the text body and falls back to a media caption.
func messageText(msg *models.Message) string {
	if msg.Text != "" {
		return msg.Text
	}
	return msg.Caption
}

func mediaType(msg *models.Message) string {
	switch {
	case len(msg.Photo) > 0:
		return "photo"
	case msg.Video != nil:
		return "video"
	case msg.Document != nil:
		return "document"
	case msg.Sticker != nil:
		return "sticker"
	case msg.Voice != nil:
		return "voice"
	case msg.Audio != nil:
		return "audio"
	case msg.Animation != nil:
		return "animation"
	default:
		return ""
	}
}

// forwardLabel extracts a human-readable origin for forwarded messages.
func forwardLabel(origin *models.MessageOrigin) string {
	if origin == nil {
		return ""
	}
	switch {
	case origin.MessageOriginUser != nil:
		return telegramDisplayName(&origin.MessageOriginUser.SenderUser)
	case origin.MessageOriginHiddenUser != nil:
		return origin.MessageOriginHiddenUser.SenderUserName
	case origin.MessageOriginChat != nil:
		return origin.MessageOriginChat.SenderChat.Title
	case origin.MessageOriginChannel != nil:
		return origin.MessageOriginChannel.Chat.Title
	default:
		return ""
	}
}

// telegramDisplayName prefers first+last name, then username, then the
// numeric ID.
func telegramDisplayName(u *models.User) string {
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	if name != "" {
		return name
	}
	if u.Username != "" {
		return u.Username
	}
	return strconv.FormatInt(u.ID, 10)
}
