package notify

import (
	"fmt"
	"time"
)

// AlertContext carries the slice of a persisted alert that message
// formatting needs.
type AlertContext struct {
	ID         int64
	ReceivedAt time.Time
	SourceIP   string
	UserAgent  string
	Cookies    *string
	Href       string
	Origin     string
	Referrer   string
}

// Severity returns the classified severity for this alert.
func (a *AlertContext) Severity() Severity {
	return Classify(a.Cookies, a.Href)
}

func (a *AlertContext) cookiesOrNone() string {
	if a.Cookies == nil || *a.Cookies == "" {
		return "None"
	}
	return *a.Cookies
}

func (a *AlertContext) referrerOrNA() string {
	if a.Referrer == "" {
		return "N/A"
	}
	return a.Referrer
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func ipInfoLink(ip string) string {
	return fmt.Sprintf("https://ipinfo.io/%s", ip)
}
