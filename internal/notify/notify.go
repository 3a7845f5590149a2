// Package notify fans newly persisted alerts out to the configured
// notification channels. Delivery is at-least-once, best-effort: one
// channel's failure never blocks another's, and no failure ever reaches
// the ingestion caller.
package notify

import (
	"context"
	"net/http"
	"net/smtp"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/blindspot-sh/blindspot/internal/logging"
)

// Channel delivers one formatted alert notification. Implementations are
// independent; the dispatcher isolates their failures from each other.
type Channel interface {
	Name() string
	Send(ctx context.Context, alert *AlertContext) error
}

// ConfigProvider supplies channel configuration at dispatch time. Settings
// are re-read on every call so operator changes apply without restart.
type ConfigProvider interface {
	Settings() (map[string]string, error)
	Recipients() ([]string, error)
}

// Dispatcher delivers alerts to every enabled channel.
type Dispatcher struct {
	Config ConfigProvider
	Load   func(alertID int64) (*AlertContext, error)
	Logger *zap.Logger
	Client *http.Client

	// SendMail is passed through to the email channel; nil means
	// smtp.SendMail.
	SendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

	wg sync.WaitGroup
}

// Dispatch hands an alert to the fan-out on a background goroutine. The
// caller never observes completion or failure; errors land in the
// dispatcher's log.
func (d *Dispatcher) Dispatch(alertID int64) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.Notify(context.Background(), alertID)
	}()
}

// Wait blocks until all dispatched fan-outs have finished. Used at
// shutdown and in tests.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Notify formats and delivers the alert to every enabled channel,
// attempting each one even when an earlier channel fails. Email runs
// after the instant-messaging channels.
func (d *Dispatcher) Notify(ctx context.Context, alertID int64) {
	settings, err := d.Config.Settings()
	if err != nil {
		d.Logger.Error("load notification settings failed", logging.AlertID(alertID), zap.Error(err))
		return
	}

	if !settingBool(settings, "notifications_enabled") {
		d.Logger.Debug("notifications disabled", logging.AlertID(alertID))
		return
	}

	alert, err := d.Load(alertID)
	if err != nil {
		d.Logger.Error("load alert for notification failed", logging.AlertID(alertID), zap.Error(err))
		return
	}
	if alert == nil {
		d.Logger.Warn("alert vanished before notification", logging.AlertID(alertID))
		return
	}

	client := d.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	var channels []Channel
	if settingBool(settings, "discord_enabled") {
		channels = append(channels, &DiscordChannel{WebhookURL: settings["discord_webhook"], Client: client})
	}
	if settingBool(settings, "slack_enabled") {
		channels = append(channels, &SlackChannel{WebhookURL: settings["slack_webhook"], Client: client})
	}
	if settingBool(settings, "telegram_enabled") {
		channels = append(channels, &TelegramChannel{
			BotToken: settings["telegram_bot_token"],
			ChatID:   settings["telegram_chat_id"],
			Client:   client,
		})
	}

	for _, ch := range channels {
		if err := ch.Send(ctx, alert); err != nil {
			d.Logger.Warn("channel delivery failed",
				logging.AlertID(alertID),
				logging.Channel(ch.Name()),
				logging.Severity(string(alert.Severity())),
				zap.Error(err))
			continue
		}
		d.Logger.Info("notification delivered",
			logging.AlertID(alertID),
			logging.Channel(ch.Name()))
	}

	if settingBool(settings, "emails_enabled") {
		recipients, err := d.Config.Recipients()
		if err != nil {
			d.Logger.Error("load email recipients failed", logging.AlertID(alertID), zap.Error(err))
			return
		}
		if len(recipients) == 0 {
			d.Logger.Debug("no email recipients opted in", logging.AlertID(alertID))
			return
		}

		port, err := strconv.Atoi(settings["smtp_port"])
		if err != nil {
			port = 587
		}
		email := &EmailChannel{
			Host:       settings["smtp_host"],
			Port:       port,
			User:       settings["smtp_user"],
			Pass:       settings["smtp_pass"],
			From:       settings["smtp_from"],
			Recipients: recipients,
			SendMail:   d.SendMail,
		}
		if err := email.Send(ctx, alert); err != nil {
			d.Logger.Warn("channel delivery failed",
				logging.AlertID(alertID),
				logging.Channel(email.Name()),
				zap.Error(err))
			return
		}
		d.Logger.Info("notification delivered",
			logging.AlertID(alertID),
			logging.Channel(email.Name()))
	}
}

func settingBool(settings map[string]string, key string) bool {
	v, err := strconv.ParseBool(settings[key])
	if err != nil {
		return false
	}
	return v
}
