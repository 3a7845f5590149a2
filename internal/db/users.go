package db

import (
	"database/sql"
	"time"

	"github.com/blindspot-sh/blindspot/internal/models"
)

// CreateUser inserts a new operator account and returns its ID.
func CreateUser(d *sql.DB, username, passwordHash, apiToken, role string) (int64, error) {
	result, err := d.Exec(
		"INSERT INTO users (username, password_hash, api_token, role, created_at) VALUES (?, ?, ?, ?, ?)",
		username, passwordHash, apiToken, role, time.Now().Unix(),
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// CountUsers returns the number of operator accounts.
func CountUsers(d *sql.DB) (int, error) {
	var count int
	err := d.QueryRow("SELECT COUNT(*) FROM users").Scan(&count)
	return count, err
}

// CountUsersByAPIToken reports how many accounts carry the given token.
// Used by the bearer check on the operator API.
func CountUsersByAPIToken(d *sql.DB, token string) (int, error) {
	var count int
	err := d.QueryRow("SELECT COUNT(*) FROM users WHERE api_token = ?", token).Scan(&count)
	return count, err
}

// NotificationRecipients returns the email addresses of users who opted in
// to email notifications. Accounts without an address are skipped.
func NotificationRecipients(d *sql.DB) ([]string, error) {
	rows, err := d.Query(
		"SELECT email FROM users WHERE email_notifications = 1 AND email IS NOT NULL AND email != ''",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}

// GetUserByUsername retrieves an operator account by username.
func GetUserByUsername(d *sql.DB, username string) (*models.User, error) {
	row := d.QueryRow(
		"SELECT id, username, password_hash, api_token, email, role, email_notifications, created_at FROM users WHERE username = ?",
		username,
	)
	var u models.User
	var notif int
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.APIToken, &u.Email, &u.Role, &notif, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.EmailNotifications = notif != 0
	return &u, nil
}
