package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbed struct {
	Title     string         `json:"title"`
	Color     int            `json:"color"`
	Fields    []discordField `json:"fields"`
	Footer    struct {
		Text string `json:"text"`
	} `json:"footer"`
	Timestamp string `json:"timestamp"`
}

type discordMessage struct {
	Content string         `json:"content"`
	Embeds  []discordEmbed `json:"embeds"`
}

// DiscordChannel delivers alerts to a Discord webhook.
type DiscordChannel struct {
	WebhookURL string
	Client     *http.Client
}

func (c *DiscordChannel) Name() string { return "discord" }

func (c *DiscordChannel) Send(ctx context.Context, alert *AlertContext) error {
	severity := alert.Severity()

	embed := discordEmbed{
		Title:     fmt.Sprintf("XSS Alert: %d", alert.ID),
		Color:     DiscordColor(severity),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Fields: []discordField{
			{Name: "🔗 Vulnerable URL", Value: fmt.Sprintf("```%s```", truncate(alert.Href, 100))},
			{Name: "⚠️ Severity", Value: string(severity), Inline: true},
			{Name: "⏰ Timestamp", Value: formatTimestamp(alert.ReceivedAt), Inline: true},
			{Name: "🌐 Origin", Value: fmt.Sprintf("`%s`", alert.Origin), Inline: true},
			{Name: "↩️ Referer", Value: fmt.Sprintf("`%s`", truncate(alert.referrerOrNA(), 100)), Inline: true},
			{Name: "🔍 User Agent", Value: fmt.Sprintf("```%s```", truncate(alert.UserAgent, 100))},
			{Name: "🍪 Cookies", Value: fmt.Sprintf("```%s```", truncate(alert.cookiesOrNone(), 100))},
			{Name: "🌍 Victim IP", Value: fmt.Sprintf("[%s](%s)", alert.SourceIP, ipInfoLink(alert.SourceIP)), Inline: true},
		},
	}
	embed.Footer.Text = "Blindspot • XSS Alert"

	msg := discordMessage{
		Content: "🚨 **New XSS Vulnerability Detected** 🚨",
		Embeds:  []discordEmbed{embed},
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Discord answers successful webhook posts with 204.
	if resp.StatusCode != http.StatusNoContent {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, detail)
	}
	return nil
}
