package db

import (
	"database/sql"
	"time"

	"github.com/blindspot-sh/blindspot/internal/models"
)

// CreateTrackingEntry inserts a new tracking entry and returns its row ID.
// Duplicate tracking identifiers are allowed; resolution picks the most
// recent entry not yet linked to an alert.
func CreateTrackingEntry(d *sql.DB, trackingID, url, method, fieldsJSON, contentType string) (int64, error) {
	result, err := d.Exec(
		"INSERT INTO tracking_entries (tracking_id, url, method, fields, content_type, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		trackingID, url, method, fieldsJSON, contentType, time.Now().Unix(),
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// ResolveTrackingEntry returns the most recent tracking entry with the
// given identifier that has no alert linked to it, or nil if none exists.
// A nil result is a normal outcome, not an error.
func ResolveTrackingEntry(d *sql.DB, trackingID string) (*models.TrackingEntry, error) {
	row := d.QueryRow(`
		SELECT t.id, t.tracking_id, t.url, t.method, t.fields, t.content_type, t.created_at
		FROM tracking_entries t
		WHERE t.tracking_id = ?
		  AND NOT EXISTS (SELECT 1 FROM alerts a WHERE a.tracking_entry_id = t.id)
		ORDER BY t.created_at DESC, t.id DESC
		LIMIT 1
	`, trackingID)
	var t models.TrackingEntry
	err := row.Scan(&t.ID, &t.TrackingID, &t.URL, &t.Method, &t.Fields, &t.ContentType, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTrackingEntry retrieves a tracking entry by row ID.
func GetTrackingEntry(d *sql.DB, id int64) (*models.TrackingEntry, error) {
	row := d.QueryRow(
		"SELECT id, tracking_id, url, method, fields, content_type, created_at FROM tracking_entries WHERE id = ?",
		id,
	)
	var t models.TrackingEntry
	err := row.Scan(&t.ID, &t.TrackingID, &t.URL, &t.Method, &t.Fields, &t.ContentType, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
