// Package models defines the database entity types.
package models

// User represents an operator account. The API token is the bearer
// credential for the operator API.
type User struct {
	ID                 int64
	Username           string
	PasswordHash       string
	APIToken           string
	Email              *string
	Role               string
	EmailNotifications bool
	CreatedAt          int64
}

// TrackingEntry records one attempted injection, correlated later against
// an incoming callback via its tracking identifier.
type TrackingEntry struct {
	ID          int64
	TrackingID  string
	URL         string
	Method      string
	Fields      string // JSON-encoded map of field name -> {value, type}
	ContentType string
	CreatedAt   int64
}

// Alert is the persisted result of one beacon execution.
type Alert struct {
	ID              int64
	TrackingEntryID *int64
	ReceivedAt      int64
	SourceIP        string
	UserAgent       string
	Cookies         *string
	Timezone        string
	TimezoneName    string
	WallClock       string
	InIframe        bool
}

// AlertDocument contains the victim page's document properties.
type AlertDocument struct {
	AlertID      int64
	Title        string
	URL          string
	Domain       string
	Referrer     string
	LastModified string
	ReadyState   string
	CharacterSet string
	ContentType  string
	DesignMode   string
	ChildCount   int
}

// AlertLocation contains the victim page's window.location properties.
type AlertLocation struct {
	AlertID  int64
	Href     string
	Protocol string
	Host     string
	Hostname string
	Port     string
	Pathname string
	Search   string
	Hash     string
	Origin   string
}

// AlertPermission records one browser permission state.
type AlertPermission struct {
	ID      int64
	AlertID int64
	Name    string
	Status  string
}

// AlertScript records one script element present on the victim page.
type AlertScript struct {
	ID      int64
	AlertID int64
	Src     string
	Type    string
	Async   bool
	Defer   bool
}

// AlertMetaTag records one meta element present on the victim page.
type AlertMetaTag struct {
	ID        int64
	AlertID   int64
	Name      string
	Content   string
	HTTPEquiv string
	Property  string
}

// AlertSource holds the full serialized HTML of the victim page, stored
// separately from the alert row due to size.
type AlertSource struct {
	AlertID  int64
	Document string
}

// Screenshot holds the decoded PNG captured by the beacon.
type Screenshot struct {
	AlertID int64
	Name    string
	Data    []byte
}
