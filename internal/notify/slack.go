package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

type slackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Blocks []slackBlock `json:"blocks"`
}

type slackMessage struct {
	Blocks      []slackBlock      `json:"blocks"`
	Attachments []slackAttachment `json:"attachments"`
}

// SlackChannel delivers alerts to a Slack incoming webhook.
type SlackChannel struct {
	WebhookURL string
	Client     *http.Client
}

func (c *SlackChannel) Name() string { return "slack" }

func (c *SlackChannel) Send(ctx context.Context, alert *AlertContext) error {
	severity := alert.Severity()

	msg := slackMessage{
		Blocks: []slackBlock{
			{
				Type: "header",
				Text: &slackText{Type: "plain_text", Text: fmt.Sprintf("🚨 XSS Alert: %d", alert.ID), Emoji: true},
			},
			{
				Type: "section",
				Fields: []slackText{
					{Type: "mrkdwn", Text: fmt.Sprintf("*Severity:*\n%s", severity)},
					{Type: "mrkdwn", Text: fmt.Sprintf("*Timestamp:*\n%s", formatTimestamp(alert.ReceivedAt))},
				},
			},
			{
				Type: "section",
				Text: &slackText{Type: "mrkdwn", Text: fmt.Sprintf("*🔗 Vulnerable URL:*\n`%s`", truncate(alert.Href, 100))},
			},
			{
				Type: "section",
				Fields: []slackText{
					{Type: "mrkdwn", Text: fmt.Sprintf("*🌐 Origin:*\n`%s`", alert.Origin)},
					{Type: "mrkdwn", Text: fmt.Sprintf("*↩️ Referer:*\n`%s`", truncate(alert.referrerOrNA(), 100))},
				},
			},
			{
				Type: "section",
				Text: &slackText{Type: "mrkdwn", Text: fmt.Sprintf("*🔍 User Agent:*\n`%s`", truncate(alert.UserAgent, 100))},
			},
			{
				Type: "section",
				Text: &slackText{Type: "mrkdwn", Text: fmt.Sprintf("*🍪 Cookies:*\n`%s`", truncate(alert.cookiesOrNone(), 100))},
			},
			{
				Type: "section",
				Fields: []slackText{
					{Type: "mrkdwn", Text: fmt.Sprintf("*🌍 Victim IP:*\n<%s|%s>", ipInfoLink(alert.SourceIP), alert.SourceIP)},
					{Type: "mrkdwn", Text: "*🔐 Action:*\nInvestigate immediately"},
				},
			},
			{Type: "divider"},
		},
		Attachments: []slackAttachment{
			{Color: HexColor(severity), Blocks: []slackBlock{}},
		},
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

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, detail)
	}
	return nil
}
