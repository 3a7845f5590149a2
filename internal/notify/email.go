package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// EmailChannel delivers alerts over SMTP to every opted-in recipient.
type EmailChannel struct {
	Host       string
	Port       int
	User       string
	Pass       string
	From       string
	Recipients []string

	// SendMail is replaceable in tests; nil means smtp.SendMail.
	SendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Send(ctx context.Context, alert *AlertContext) error {
	if len(c.Recipients) == 0 {
		// Nobody opted in; a silent no-op rather than an error.
		return nil
	}

	subject := fmt.Sprintf("XSS Alert: %s", alert.Href)
	body := emailHTML(alert)

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", c.From)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(c.Recipients, ","))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=utf-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	var auth smtp.Auth
	if c.User != "" {
		auth = smtp.PlainAuth("", c.User, c.Pass, c.Host)
	}

	send := c.SendMail
	if send == nil {
		send = smtp.SendMail
	}

	addr := fmt.Sprintf("%s:%d", c.Host, c.Port)
	return send(addr, auth, c.From, c.Recipients, []byte(msg.String()))
}

func emailHTML(alert *AlertContext) string {
	severity := alert.Severity()

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>XSS Alert: %d</title></head>
<body style="font-family: Arial, sans-serif; color: #333;">
  <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
    <div style="background-color: #2C2F33; color: white; padding: 15px 20px; text-align: center;">
      <h1 style="margin: 0; font-size: 22px;">🚨 XSS Alert: %d</h1>
    </div>
    <div style="padding: 20px; border: 1px solid #E0E0E0;">
      <div style="display: inline-block; background-color: %s; color: white; padding: 5px 10px; font-weight: bold;">Severity: %s</div>
      <p><strong>⏰ Detected:</strong> <code>%s</code><br>
         <strong>🌍 Victim IP:</strong> <a href="%s">%s</a></p>
      <p><strong>🔗 Vulnerable URL:</strong><br><code>%s</code></p>
      <p><strong>🌐 Origin:</strong> <code>%s</code><br>
         <strong>↩️ Referer:</strong> <code>%s</code></p>
      <p><strong>🔍 User Agent:</strong><br><code>%s</code></p>
      <p><strong>🍪 Cookies:</strong><br><code>%s</code></p>
    </div>
    <div style="text-align: center; font-size: 12px; color: #777; margin-top: 20px;">
      <p>This is an automated security alert. Please take appropriate action immediately.</p>
      <p>Blindspot - XSS Alert</p>
    </div>
  </div>
</body>
</html>`,
		alert.ID, alert.ID,
		HexColor(severity), severity,
		formatTimestamp(alert.ReceivedAt),
		ipInfoLink(alert.SourceIP), alert.SourceIP,
		alert.Href,
		alert.Origin, alert.referrerOrNA(),
		alert.UserAgent,
		alert.cookiesOrNone())
}
