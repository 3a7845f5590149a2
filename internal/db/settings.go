package db

import (
	"database/sql"
	"fmt"
	"strconv"
)

// DefaultSettings are seeded on first start. Channel credentials are
// placeholders until the operator configures them.
var DefaultSettings = map[string]string{
	"notifications_enabled": "false",

	"emails_enabled": "false",
	"smtp_host":      "smtp.example.com",
	"smtp_port":      "587",
	"smtp_user":      "",
	"smtp_pass":      "",
	"smtp_from":      "blindspot@example.com",

	"discord_enabled":  "false",
	"slack_enabled":    "false",
	"telegram_enabled": "false",

	"discord_webhook":    "",
	"slack_webhook":      "",
	"telegram_bot_token": "",
	"telegram_chat_id":   "",

	"ip_header": "X-Forwarded-For",
}

// EnsureSettings inserts any missing default settings keys. Existing
// values are never overwritten.
func EnsureSettings(d *sql.DB) error {
	for key, value := range DefaultSettings {
		_, err := d.Exec(
			"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT (key) DO NOTHING",
			key, value,
		)
		if err != nil {
			return fmt.Errorf("seed setting %q: %w", key, err)
		}
	}
	return nil
}

// GetSetting returns the value for a settings key, or "" if unset.
func GetSetting(d *sql.DB, key string) (string, error) {
	row := d.QueryRow("SELECT value FROM settings WHERE key = ?", key)
	var value string
	err := row.Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// SetSetting creates or replaces a settings key.
func SetSetting(d *sql.DB, key, value string) error {
	_, err := d.Exec(
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT (key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}

// GetAllSettings returns every settings key and value.
func GetAllSettings(d *sql.DB) (map[string]string, error) {
	rows, err := d.Query("SELECT key, value FROM settings")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		settings[key] = value
	}
	return settings, rows.Err()
}

// SettingBool interprets a settings value as a boolean. Unparseable or
// missing values are false.
func SettingBool(settings map[string]string, key string) bool {
	v, err := strconv.ParseBool(settings[key])
	if err != nil {
		return false
	}
	return v
}
