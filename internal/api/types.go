// Package api defines the wire types shared by the server and the CLI
// client.
package api

// Fingerprint is the JSON document a beacon POSTs to the callback
// endpoint. Pointer and slice fields distinguish absent keys from empty
// values; document, location, userAgent, scripts and metaTags are
// required.
type Fingerprint struct {
	UserAgent      *string           `json:"userAgent"`
	Cookies        *string           `json:"cookies"`
	DocumentSource string            `json:"documentSource"`
	Document       *DocumentInfo     `json:"document"`
	Location       *LocationInfo     `json:"location"`
	Timezone       string            `json:"timezone"`
	TimezoneName   string            `json:"timezoneName"`
	CurrentTime    string            `json:"currentTime"`
	Permissions    map[string]string `json:"permissions"`
	IsInIframe     bool              `json:"isInIframe"`
	Scripts        []ScriptInfo      `json:"scripts"`
	MetaTags       []MetaTagInfo     `json:"metaTags"`
	Screenshot     string            `json:"screenshot"`

	// UniqueIdentifier is the beacon-embedded tracking identifier. The
	// beacon template substitutes the literal string "null" when no
	// identifier was embedded.
	UniqueIdentifier string `json:"uniqueIdentifier"`
}

// DocumentInfo mirrors the victim page's document properties.
type DocumentInfo struct {
	Title        string `json:"title"`
	URL          string `json:"URL"`
	Domain       string `json:"domain"`
	Referrer     string `json:"referrer"`
	LastModified string `json:"lastModified"`
	ReadyState   string `json:"readyState"`
	CharacterSet string `json:"characterSet"`
	ContentType  string `json:"contentType"`
	DesignMode   string `json:"designMode"`
	Children     int    `json:"children"`
}

// LocationInfo mirrors the victim page's window.location properties.
type LocationInfo struct {
	Href     string `json:"href"`
	Protocol string `json:"protocol"`
	Host     string `json:"host"`
	Hostname string `json:"hostname"`
	Port     string `json:"port"`
	Pathname string `json:"pathname"`
	Search   string `json:"search"`
	Hash     string `json:"hash"`
	Origin   string `json:"origin"`
}

// ScriptInfo describes one script element on the victim page.
type ScriptInfo struct {
	Src   string `json:"src"`
	Type  string `json:"type"`
	Async bool   `json:"async"`
	Defer bool   `json:"defer"`
}

// MetaTagInfo describes one meta element on the victim page.
type MetaTagInfo struct {
	Name      string `json:"name"`
	Content   string `json:"content"`
	HTTPEquiv string `json:"httpEquiv"`
	Property  string `json:"property"`
}

// TrackField is one form field of a tracked injection target. Both value
// and type must be present.
type TrackField struct {
	Value *string `json:"value"`
	Type  *string `json:"type"`
}

// TrackTarget describes the request shape an injection was attempted
// against.
type TrackTarget struct {
	URL         string                `json:"url"`
	Method      string                `json:"method"`
	Data        map[string]TrackField `json:"data"`
	ContentType *string               `json:"content_type,omitempty"`
}

// TrackRequest registers an injection attempt.
type TrackRequest struct {
	Target *TrackTarget `json:"target"`
	UID    string       `json:"uid"`
}

// TrackResponse confirms a registration and echoes the beacon URLs the
// identifier can be reached at.
type TrackResponse struct {
	TrackingID string            `json:"tracking_id"`
	Payloads   map[string]string `json:"payloads"`
}

// AlertSummary is one row of the alert listing.
type AlertSummary struct {
	ID         int64   `json:"id"`
	ReceivedAt string  `json:"received_at"`
	SourceIP   string  `json:"source_ip"`
	UserAgent  string  `json:"user_agent"`
	Href       string  `json:"href"`
	TrackingID *string `json:"tracking_id,omitempty"`
}

// ListAlertsResponse lists alert summaries, newest first.
type ListAlertsResponse struct {
	Alerts []AlertSummary `json:"alerts"`
}

// TrackingEntryDetail describes the registration an alert correlated to.
type TrackingEntryDetail struct {
	TrackingID  string `json:"tracking_id"`
	URL         string `json:"url"`
	Method      string `json:"method"`
	Fields      string `json:"fields"`
	ContentType string `json:"content_type"`
	CreatedAt   string `json:"created_at"`
}

// AlertDetail is the full view of one alert.
type AlertDetail struct {
	ID           int64                `json:"id"`
	ReceivedAt   string               `json:"received_at"`
	SourceIP     string               `json:"source_ip"`
	UserAgent    string               `json:"user_agent"`
	Cookies      *string              `json:"cookies"`
	Timezone     string               `json:"timezone"`
	TimezoneName string               `json:"timezone_name"`
	WallClock    string               `json:"wall_clock"`
	InIframe     bool                 `json:"in_iframe"`
	Document     *DocumentInfo        `json:"document,omitempty"`
	Location     *LocationInfo        `json:"location,omitempty"`
	Permissions  map[string]string    `json:"permissions,omitempty"`
	Scripts      []ScriptInfo         `json:"scripts,omitempty"`
	MetaTags     []MetaTagInfo        `json:"meta_tags,omitempty"`
	Tracking     *TrackingEntryDetail `json:"tracking,omitempty"`
	HasSource    bool                 `json:"has_source"`
	Screenshot   string               `json:"screenshot,omitempty"`
}

// DeleteAlertResponse confirms an alert deletion.
type DeleteAlertResponse struct {
	Deleted bool `json:"deleted"`
}

// ErrorResponse carries an API error message.
type ErrorResponse struct {
	Error string `json:"error"`
}
