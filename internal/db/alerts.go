package db

import (
	"database/sql"
	"fmt"

	"github.com/blindspot-sh/blindspot/internal/models"
)

// AlertDraft carries one parsed callback before storage. All nested
// records are written together with the alert row in a single transaction.
type AlertDraft struct {
	ReceivedAt   int64
	SourceIP     string
	UserAgent    string
	Cookies      *string
	Timezone     string
	TimezoneName string
	WallClock    string
	InIframe     bool

	Document    models.AlertDocument
	Location    models.AlertLocation
	Permissions []models.AlertPermission
	Scripts     []models.AlertScript
	MetaTags    []models.AlertMetaTag
	Source      string
}

// CreateAlert persists the alert and every nested record atomically and
// returns the new alert ID. Any failure rolls back the whole aggregate;
// an alert with missing nested data is never observable.
func CreateAlert(d *sql.DB, draft *AlertDraft) (int64, error) {
	tx, err := d.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	inIframe := 0
	if draft.InIframe {
		inIframe = 1
	}

	result, err := tx.Exec(
		"INSERT INTO alerts (received_at, source_ip, user_agent, cookies, timezone, timezone_name, wall_clock, in_iframe) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		draft.ReceivedAt, draft.SourceIP, draft.UserAgent, draft.Cookies,
		draft.Timezone, draft.TimezoneName, draft.WallClock, inIframe,
	)
	if err != nil {
		return 0, fmt.Errorf("insert alert: %w", err)
	}
	alertID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("alert id: %w", err)
	}

	doc := draft.Document
	_, err = tx.Exec(
		"INSERT INTO alert_documents (alert_id, title, url, domain, referrer, last_modified, ready_state, character_set, content_type, design_mode, child_count) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		alertID, doc.Title, doc.URL, doc.Domain, doc.Referrer, doc.LastModified,
		doc.ReadyState, doc.CharacterSet, doc.ContentType, doc.DesignMode, doc.ChildCount,
	)
	if err != nil {
		return 0, fmt.Errorf("insert document: %w", err)
	}

	loc := draft.Location
	_, err = tx.Exec(
		"INSERT INTO alert_locations (alert_id, href, protocol, host, hostname, port, pathname, search, hash, origin) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		alertID, loc.Href, loc.Protocol, loc.Host, loc.Hostname, loc.Port,
		loc.Pathname, loc.Search, loc.Hash, loc.Origin,
	)
	if err != nil {
		return 0, fmt.Errorf("insert location: %w", err)
	}

	for _, p := range draft.Permissions {
		if _, err := tx.Exec(
			"INSERT INTO alert_permissions (alert_id, name, status) VALUES (?, ?, ?)",
			alertID, p.Name, p.Status,
		); err != nil {
			return 0, fmt.Errorf("insert permission %q: %w", p.Name, err)
		}
	}

	for _, s := range draft.Scripts {
		async, deferred := 0, 0
		if s.Async {
			async = 1
		}
		if s.Defer {
			deferred = 1
		}
		if _, err := tx.Exec(
			"INSERT INTO alert_scripts (alert_id, src, type, async, defer) VALUES (?, ?, ?, ?, ?)",
			alertID, s.Src, s.Type, async, deferred,
		); err != nil {
			return 0, fmt.Errorf("insert script: %w", err)
		}
	}

	for _, m := range draft.MetaTags {
		if _, err := tx.Exec(
			"INSERT INTO alert_meta_tags (alert_id, name, content, http_equiv, property) VALUES (?, ?, ?, ?, ?)",
			alertID, m.Name, m.Content, m.HTTPEquiv, m.Property,
		); err != nil {
			return 0, fmt.Errorf("insert meta tag: %w", err)
		}
	}

	if _, err := tx.Exec(
		"INSERT INTO alert_sources (alert_id, document) VALUES (?, ?)",
		alertID, draft.Source,
	); err != nil {
		return 0, fmt.Errorf("insert document source: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}

	return alertID, nil
}

// LinkTrackingEntry attaches the tracking back-reference to an already
// committed alert. Best-effort relative to ingestion: callers log failures
// instead of failing the request.
func LinkTrackingEntry(d *sql.DB, alertID, trackingEntryID int64) error {
	_, err := d.Exec(
		"UPDATE alerts SET tracking_entry_id = ? WHERE id = ?",
		trackingEntryID, alertID,
	)
	return err
}

// GetAlert retrieves an alert by ID.
func GetAlert(d *sql.DB, id int64) (*models.Alert, error) {
	row := d.QueryRow(
		"SELECT id, tracking_entry_id, received_at, source_ip, user_agent, cookies, timezone, timezone_name, wall_clock, in_iframe FROM alerts WHERE id = ?",
		id,
	)
	var a models.Alert
	var inIframe int
	err := row.Scan(&a.ID, &a.TrackingEntryID, &a.ReceivedAt, &a.SourceIP, &a.UserAgent,
		&a.Cookies, &a.Timezone, &a.TimezoneName, &a.WallClock, &inIframe)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.InIframe = inIframe != 0
	return &a, nil
}

// GetAlertDocument retrieves the document record for an alert.
func GetAlertDocument(d *sql.DB, alertID int64) (*models.AlertDocument, error) {
	row := d.QueryRow(
		"SELECT alert_id, title, url, domain, referrer, last_modified, ready_state, character_set, content_type, design_mode, child_count FROM alert_documents WHERE alert_id = ?",
		alertID,
	)
	var doc models.AlertDocument
	err := row.Scan(&doc.AlertID, &doc.Title, &doc.URL, &doc.Domain, &doc.Referrer,
		&doc.LastModified, &doc.ReadyState, &doc.CharacterSet, &doc.ContentType,
		&doc.DesignMode, &doc.ChildCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetAlertLocation retrieves the location record for an alert.
func GetAlertLocation(d *sql.DB, alertID int64) (*models.AlertLocation, error) {
	row := d.QueryRow(
		"SELECT alert_id, href, protocol, host, hostname, port, pathname, search, hash, origin FROM alert_locations WHERE alert_id = ?",
		alertID,
	)
	var loc models.AlertLocation
	err := row.Scan(&loc.AlertID, &loc.Href, &loc.Protocol, &loc.Host, &loc.Hostname,
		&loc.Port, &loc.Pathname, &loc.Search, &loc.Hash, &loc.Origin)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &loc, nil
}

// GetAlertPermissions retrieves all permission records for an alert.
func GetAlertPermissions(d *sql.DB, alertID int64) ([]models.AlertPermission, error) {
	rows, err := d.Query(
		"SELECT id, alert_id, name, status FROM alert_permissions WHERE alert_id = ? ORDER BY id",
		alertID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []models.AlertPermission
	for rows.Next() {
		var p models.AlertPermission
		if err := rows.Scan(&p.ID, &p.AlertID, &p.Name, &p.Status); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// GetAlertScripts retrieves all script records for an alert.
func GetAlertScripts(d *sql.DB, alertID int64) ([]models.AlertScript, error) {
	rows, err := d.Query(
		"SELECT id, alert_id, src, type, async, defer FROM alert_scripts WHERE alert_id = ? ORDER BY id",
		alertID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scripts []models.AlertScript
	for rows.Next() {
		var s models.AlertScript
		var async, deferred int
		if err := rows.Scan(&s.ID, &s.AlertID, &s.Src, &s.Type, &async, &deferred); err != nil {
			return nil, err
		}
		s.Async = async != 0
		s.Defer = deferred != 0
		scripts = append(scripts, s)
	}
	return scripts, rows.Err()
}

// GetAlertMetaTags retrieves all meta tag records for an alert.
func GetAlertMetaTags(d *sql.DB, alertID int64) ([]models.AlertMetaTag, error) {
	rows, err := d.Query(
		"SELECT id, alert_id, name, content, http_equiv, property FROM alert_meta_tags WHERE alert_id = ? ORDER BY id",
		alertID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var metas []models.AlertMetaTag
	for rows.Next() {
		var m models.AlertMetaTag
		if err := rows.Scan(&m.ID, &m.AlertID, &m.Name, &m.Content, &m.HTTPEquiv, &m.Property); err != nil {
			return nil, err
		}
		metas = append(metas, m)
	}
	return metas, rows.Err()
}

// GetAlertSource retrieves the serialized page HTML for an alert.
func GetAlertSource(d *sql.DB, alertID int64) (*models.AlertSource, error) {
	row := d.QueryRow("SELECT alert_id, document FROM alert_sources WHERE alert_id = ?", alertID)
	var src models.AlertSource
	err := row.Scan(&src.AlertID, &src.Document)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &src, nil
}

// AlertSummary is one row of the alert listing.
type AlertSummary struct {
	ID         int64
	ReceivedAt int64
	SourceIP   string
	UserAgent  string
	Href       string
	TrackingID *string
}

// ListAlerts returns alert summaries, newest first.
func ListAlerts(d *sql.DB) ([]AlertSummary, error) {
	rows, err := d.Query(`
		SELECT a.id, a.received_at, a.source_ip, a.user_agent,
		       COALESCE(l.href, ''), t.tracking_id
		FROM alerts a
		LEFT JOIN alert_locations l ON l.alert_id = a.id
		LEFT JOIN tracking_entries t ON t.id = a.tracking_entry_id
		ORDER BY a.received_at DESC, a.id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []AlertSummary
	for rows.Next() {
		var s AlertSummary
		if err := rows.Scan(&s.ID, &s.ReceivedAt, &s.SourceIP, &s.UserAgent, &s.Href, &s.TrackingID); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// DeleteAlert removes an alert; nested records and the screenshot cascade.
func DeleteAlert(d *sql.DB, id int64) error {
	_, err := d.Exec("DELETE FROM alerts WHERE id = ?", id)
	return err
}
