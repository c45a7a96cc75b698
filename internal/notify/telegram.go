package notify

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/eichelb4rt/ArXiv-Notifications/internal/cursor"
	"github.com/eichelb4rt/ArXiv-Notifications/internal/retry"
)

// Telegram caps messages at 4096 characters.
const telegramMessageLimit = 4096

// TelegramChannel posts the digest to a chat via the bot API: one message for
// the header, then one per article unit. Each send is confirmed individually
// and retried with backoff on transient failures.
type TelegramChannel struct {
	botToken    string
	chatID      string
	apiBase     string
	client      *http.Client
	retryConfig retry.Config
	pause       time.Duration
}

func NewTelegramChannel(botToken, chatID string) *TelegramChannel {
	return &TelegramChannel{
		botToken:    botToken,
		chatID:      chatID,
		apiBase:     "https://api.telegram.org",
		client:      &http.Client{Timeout: 30 * time.Second},
		retryConfig: retry.DefaultConfig(),
		pause:       500 * time.Millisecond,
	}
}

func (c *TelegramChannel) Name() string { return "telegram" }

// Deliver sends the header and the units in order. A failed message is
// recorded and delivery continues with the next unit, so one oversized or
// rejected unit never hides the rest of the digest.
func (c *TelegramChannel) Deliver(ctx context.Context, digest *Digest) error {
	messages := make([]string, 0, len(digest.Units)+1)
	messages = append(messages, html.EscapeString(digest.Header()))
	for _, u := range digest.Units {
		messages = append(messages, renderTelegramUnit(u))
	}

	var failed []RecipientError
	delivered := 0
	for i, msg := range messages {
		if err := c.sendConfirmed(ctx, msg); err != nil {
			failed = append(failed, RecipientError{
				Recipient: fmt.Sprintf("message %d/%d", i+1, len(messages)),
				Err:       err,
			})
			continue
		}
		delivered++

		if c.pause > 0 && i < len(messages)-1 {
			select {
			case <-ctx.Done():
				// Keep the accounting so the caller can tell a partial
				// delivery from a total channel failure.
				failed = append(failed, RecipientError{
					Recipient: fmt.Sprintf("messages %d-%d/%d", i+2, len(messages), len(messages)),
					Err:       ctx.Err(),
				})
				return &DeliveryError{Channel: c.Name(), Delivered: delivered, Failed: failed}
			case <-time.After(c.pause):
			}
		}
	}

	if len(failed) > 0 {
		return &DeliveryError{Channel: c.Name(), Delivered: delivered, Failed: failed}
	}
	return nil
}

func renderTelegramUnit(u Unit) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>%s</b>\n\n", html.EscapeString(u.Title))
	sb.WriteString(html.EscapeString(u.Summary))
	sb.WriteString("\n\n")
	if len(u.Authors) > 0 {
		fmt.Fprintf(&sb, "%s\n", html.EscapeString(strings.Join(u.Authors, ", ")))
	}
	fmt.Fprintf(&sb, "Date: %s\n%s", u.Published.Format(cursor.DateFormat), html.EscapeString(u.Link))
	return truncateRunes(sb.String(), telegramMessageLimit)
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}

// sendConfirmed posts one message and treats anything but a 200 response as
// an unconfirmed delivery. Server errors and rate limiting are retried.
func (c *TelegramChannel) sendConfirmed(ctx context.Context, text string) error {
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", c.apiBase, c.botToken)
	form := url.Values{}
	form.Set("chat_id", c.chatID)
	form.Set("text", text)
	form.Set("parse_mode", "HTML")
	form.Set("disable_web_page_preview", "true")

	return retry.WithBackoff(ctx, c.retryConfig, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return retry.Permanent(fmt.Errorf("telegram: new request: %w", err))
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("telegram: do request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("telegram: unconfirmed delivery: %s", resp.Status)
			if retry.HTTPStatusRetryable(resp.StatusCode) {
				return err
			}
			return retry.Permanent(err)
		}
		return nil
	})
}
