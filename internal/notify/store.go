package notify

import (
	"database/sql"
	"time"

	"github.com/blindspot-sh/blindspot/internal/db"
)

// StoreConfig reads channel configuration and recipients from the
// settings and users tables on every call.
type StoreConfig struct {
	DB *sql.DB
}

func (s *StoreConfig) Settings() (map[string]string, error) {
	return db.GetAllSettings(s.DB)
}

func (s *StoreConfig) Recipients() ([]string, error) {
	return db.NotificationRecipients(s.DB)
}

// NewStoreLoader returns a Load function that assembles an AlertContext
// from the persisted alert and its nested records.
func NewStoreLoader(d *sql.DB) func(alertID int64) (*AlertContext, error) {
	return func(alertID int64) (*AlertContext, error) {
		alert, err := db.GetAlert(d, alertID)
		if err != nil || alert == nil {
			return nil, err
		}

		ctx := &AlertContext{
			ID:         alert.ID,
			ReceivedAt: time.Unix(alert.ReceivedAt, 0),
			SourceIP:   alert.SourceIP,
			UserAgent:  alert.UserAgent,
			Cookies:    alert.Cookies,
		}

		loc, err := db.GetAlertLocation(d, alertID)
		if err != nil {
			return nil, err
		}
		if loc != nil {
			ctx.Href = loc.Href
			ctx.Origin = loc.Origin
		}

		doc, err := db.GetAlertDocument(d, alertID)
		if err != nil {
			return nil, err
		}
		if doc != nil {
			ctx.Referrer = doc.Referrer
		}

		return ctx, nil
	}
}
