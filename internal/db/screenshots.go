package db

import (
	"database/sql"

	"github.com/blindspot-sh/blindspot/internal/models"
)

// CreateScreenshot stores the decoded PNG for an alert.
func CreateScreenshot(d *sql.DB, alertID int64, name string, data []byte) error {
	_, err := d.Exec(
		"INSERT INTO screenshots (alert_id, name, data) VALUES (?, ?, ?)",
		alertID, name, data,
	)
	return err
}

// GetScreenshot retrieves the screenshot for an alert, or nil if absent.
func GetScreenshot(d *sql.DB, alertID int64) (*models.Screenshot, error) {
	row := d.QueryRow("SELECT alert_id, name, data FROM screenshots WHERE alert_id = ?", alertID)
	var s models.Screenshot
	err := row.Scan(&s.AlertID, &s.Name, &s.Data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
