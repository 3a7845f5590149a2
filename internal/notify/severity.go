package notify

import (
	"regexp"
	"strings"
)

// Severity is the coarse priority assigned to an alert for notification
// formatting. It is a string-containment heuristic, not a security
// analysis.
type Severity string

const (
	SeverityLow      Severity = "Low"
	SeverityMedium   Severity = "Medium"
	SeverityHigh     Severity = "High"
	SeverityCritical Severity = "Critical"
)

var (
	sensitivePathPattern = regexp.MustCompile(`(?i)admin|dashboard|account|profile|payment`)
	criticalPathPattern  = regexp.MustCompile(`(?i)admin|dashboard`)
)

// Classify derives a severity from an alert's cookies and page URL.
// Cookie substring checks are case-sensitive; URL patterns are not.
// Critical requires an already-High alert with an "auth" cookie or an
// admin/dashboard URL.
func Classify(cookies *string, href string) Severity {
	severity := SeverityMedium

	if cookies != nil &&
		(strings.Contains(*cookies, "auth") ||
			strings.Contains(*cookies, "session") ||
			strings.Contains(*cookies, "token")) {
		severity = SeverityHigh
	}

	if sensitivePathPattern.MatchString(href) {
		severity = SeverityHigh
	}

	if severity == SeverityHigh &&
		((cookies != nil && strings.Contains(*cookies, "auth")) || criticalPathPattern.MatchString(href)) {
		severity = SeverityCritical
	}

	return severity
}

// DiscordColor returns the decimal embed color for a severity.
func DiscordColor(s Severity) int {
	switch s {
	case SeverityLow:
		return 5814783 // blue
	case SeverityHigh:
		return 16744192 // orange
	case SeverityCritical:
		return 16711680 // red
	default:
		return 16776960 // yellow
	}
}

// HexColor returns the hex color for a severity, used by Slack and email.
func HexColor(s Severity) string {
	switch s {
	case SeverityLow:
		return "#5865F2"
	case SeverityHigh:
		return "#FF8800"
	case SeverityCritical:
		return "#FF0000"
	default:
		return "#FFCC00"
	}
}

// Emoji returns the indicator used in Telegram messages.
func Emoji(s Severity) string {
	switch s {
	case SeverityLow:
		return "🔵"
	case SeverityMedium:
		return "🟡"
	case SeverityHigh:
		return "🟠"
	case SeverityCritical:
		return "🔴"
	default:
		return "⚠️"
	}
}
