// Package gemini implements the integration with Google's Gemini API
// used to generate chat summaries from the Telegram channel message log.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/edgard/pulsebot/internal/config"
	"github.com/edgard/pulsebot/internal/database"
)

// Client defines the AI operations used by the summary command.
type Client interface {
	// GenerateChatSummary produces a short natural-language summary of
	// the given messages, oldest first.
	GenerateChatSummary(ctx context.Context, messages []database.ChannelMessage) (string, error)
}

type sdkClient struct {
	genaiClient   *genai.Client
	log           *slog.Logger
	contentConfig *genai.GenerateContentConfig
	modelName     string
	maxRetries    int
	retryDelay    time.Duration
}

// NewClient creates a new Gemini client with the provided configuration.
func NewClient(ctx context.Context, cfg config.GeminiConfig, log *slog.Logger) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	gi, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	contentConfig := &genai.GenerateContentConfig{
		Temperature: &cfg.Temperature,
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: cfg.Instruction}},
		},
	}

	logger := log.With("component", "gemini_client")
	logger.Info("Gemini client initialized", "model", cfg.Model)
	return &sdkClient{
		genaiClient:   gi,
		log:           logger,
		contentConfig: contentConfig,
		modelName:     cfg.Model,
		maxRetries:    cfg.MaxRetries,
		retryDelay:    time.Duration(cfg.RetryDelaySeconds) * time.Second,
	}, nil
}

// GenerateChatSummary formats the message log and asks the model for a
// summary. Transient API failures (500/503) are retried.
func (c *sdkClient) GenerateChatSummary(ctx context.Context, messages []database.ChannelMessage) (string, error) {
	if len(messages) == 0 {
		return "", errors.New("no messages to summarize")
	}

	c.log.DebugContext(ctx, "Generating chat summary", "message_count", len(messages))

	var b strings.Builder
	for _, m := range messages {
		if m.MessageText == "" {
			continue
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", m.MessageDate.Format("2006-01-02 15:04"), senderLabel(m), m.MessageText)
	}
	if b.Len() == 0 {
		return "", errors.New("no text messages to summarize")
	}

	contents := []*genai.Content{
		{Role: genai.RoleUser, Parts: []*genai.Part{{Text: b.String()}}},
	}

	resp, err := c.generateContentWithRetries(ctx, contents)
	if err != nil {
		return "", err
	}

	text := resp.Text()
	if text == "" {
		return "", errors.New("gemini returned an empty summary")
	}
	return strings.TrimSpace(text), nil
}

func (c *sdkClient) generateContentWithRetries(ctx context.Context, contents []*genai.Content) (*genai.GenerateContentResponse, error) {
	var resp *genai.GenerateContentResponse
	var err error

	for i := 0; i <= c.maxRetries; i++ {
		resp, err = c.genaiClient.Models.GenerateContent(ctx, c.modelName, contents, c.contentConfig)
		if err == nil {
			return resp, nil
		}

		c.log.WarnContext(ctx, "Gemini API call failed, checking for retry",
			"attempt", i+1, "max_retries", c.maxRetries, "error", err)

		var apiErr *genai.APIError
		if errors.As(err, &apiErr) && (apiErr.Code == 500 || apiErr.Code == 503) {
			if i < c.maxRetries {
				c.log.InfoContext(ctx, "Retrying Gemini API call", "delay", c.retryDelay, "code", apiErr.Code)
				select {
				case <-time.After(c.retryDelay):
					continue
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
			return nil, fmt.Errorf("gemini API call failed after %d retries (code %d): %w", c.maxRetries, apiErr.Code, err)
		}

		return nil, fmt.Errorf("gemini API call failed: %w", err)
	}
	return nil, err
}

// senderLabel prefers the stored display name and falls back to the
// numeric sender ID.
func senderLabel(m database.ChannelMessage) string {
	if m.SenderName != "" {
		return m.SenderName
	}
	return fmt.Sprintf("UID %d", m.SenderID)
}
