package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// telegramAPIBase is overridable in tests.
var telegramAPIBase = "https://api.telegram.org"

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// TelegramChannel delivers alerts through the Telegram bot API.
type TelegramChannel struct {
	BotToken string
	ChatID   string
	Client   *http.Client

	// BaseURL overrides the bot API endpoint; empty means the public API.
	BaseURL string
}

func (c *TelegramChannel) Name() string { return "telegram" }

func (c *TelegramChannel) Send(ctx context.Context, alert *AlertContext) error {
	severity := alert.Severity()

	lines := []string{
		fmt.Sprintf("🚨 *XSS ALERT: %d* 🚨", alert.ID),
		"",
		fmt.Sprintf("*Severity:* %s %s", Emoji(severity), severity),
		fmt.Sprintf("*Detected:* %s", formatTimestamp(alert.ReceivedAt)),
		"",
		"*🔗 Vulnerable URL:*",
		fmt.Sprintf("`%s`", truncate(alert.Href, 100)),
		"",
		fmt.Sprintf("*🌐 Origin:* `%s`", alert.Origin),
		fmt.Sprintf("*↩️ Referer:* `%s`", truncate(alert.referrerOrNA(), 100)),
		"",
		"*🔍 User Agent:*",
		fmt.Sprintf("`%s`", truncate(alert.UserAgent, 100)),
		"",
		"*🍪 Cookies:*",
		fmt.Sprintf("`%s`", truncate(alert.cookiesOrNone(), 100)),
		"",
		fmt.Sprintf("*🌍 Victim IP:* [%s](%s)", alert.SourceIP, ipInfoLink(alert.SourceIP)),
		"",
		"⚠️ *Action Required:* Investigate immediately",
	}

	msg := telegramMessage{
		ChatID:    c.ChatID,
		Text:      strings.Join(lines, "\n"),
		ParseMode: "Markdown",
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	base := c.BaseURL
	if base == "" {
		base = telegramAPIBase
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", base, c.BotToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, detail)
	}
	return nil
}
