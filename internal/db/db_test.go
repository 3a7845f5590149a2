package db

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/blindspot-sh/blindspot/internal/models"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "blindspot_test.db")
	database, err := Open(path)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func testDraft(cookies *string, href string) *AlertDraft {
	return &AlertDraft{
		ReceivedAt:   1756300000,
		SourceIP:     "203.0.113.7",
		UserAgent:    "Mozilla/5.0 (X11; Linux x86_64)",
		Cookies:      cookies,
		Timezone:     "Europe/London",
		TimezoneName: "British Summer Time",
		WallClock:    "Wed Aug 27 2025 14:00:00 GMT+0100",
		InIframe:     false,
		Document: models.AlertDocument{
			Title:    "Support",
			URL:      href,
			Domain:   "victim.example",
			Referrer: "https://victim.example/",
		},
		Location: models.AlertLocation{
			Href:   href,
			Host:   "victim.example",
			Origin: "https://victim.example",
		},
		Permissions: []models.AlertPermission{
			{Name: "geolocation", Status: "prompt"},
			{Name: "camera", Status: "denied"},
		},
		Scripts: []models.AlertScript{
			{Src: "https://victim.example/app.js", Type: "text/javascript", Async: true},
		},
		MetaTags: []models.AlertMetaTag{
			{Name: "viewport", Content: "width=device-width"},
		},
		Source: "<html><body>support</body></html>",
	}
}

func TestOpenAppliesMigrationsIdempotently(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blindspot_test.db")

	first, err := Open(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	_ = first.Close()

	// A second open must skip already applied migrations.
	second, err := Open(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer second.Close()

	var count int
	if err := second.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if count == 0 {
		t.Error("no migrations recorded")
	}
}

func TestEnsureSettings(t *testing.T) {
	d := newTestDB(t)

	if err := EnsureSettings(d); err != nil {
		t.Fatalf("seed settings: %v", err)
	}

	v, err := GetSetting(d, "ip_header")
	if err != nil {
		t.Fatalf("get setting: %v", err)
	}
	if v != "X-Forwarded-For" {
		t.Errorf("expected default ip_header, got %q", v)
	}

	// Operator edits survive reseeding.
	if err := SetSetting(d, "ip_header", "CF-Connecting-IP"); err != nil {
		t.Fatalf("set setting: %v", err)
	}
	if err := EnsureSettings(d); err != nil {
		t.Fatalf("reseed settings: %v", err)
	}
	v, _ = GetSetting(d, "ip_header")
	if v != "CF-Connecting-IP" {
		t.Errorf("reseeding overwrote an operator value, got %q", v)
	}
}

func TestResolveTrackingEntry(t *testing.T) {
	d := newTestDB(t)

	entry, err := ResolveTrackingEntry(d, "abcdefghij")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if entry != nil {
		t.Fatal("never-registered identifier resolved to an entry")
	}

	firstID, err := CreateTrackingEntry(d, "abcdefghij", "https://victim.example/support", "POST", `{}`, "application/x-www-form-urlencoded")
	if err != nil {
		t.Fatalf("create first entry: %v", err)
	}
	secondID, err := CreateTrackingEntry(d, "abcdefghij", "https://victim.example/contact", "POST", `{}`, "application/x-www-form-urlencoded")
	if err != nil {
		t.Fatalf("create second entry: %v", err)
	}

	// The most recent unlinked entry wins.
	entry, err = ResolveTrackingEntry(d, "abcdefghij")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if entry == nil || entry.ID != secondID {
		t.Fatalf("expected entry %d, got %+v", secondID, entry)
	}

	// Linking the resolved entry makes the older one resolvable again.
	alertID, err := CreateAlert(d, testDraft(nil, "https://victim.example/support"))
	if err != nil {
		t.Fatalf("create alert: %v", err)
	}
	if err := LinkTrackingEntry(d, alertID, secondID); err != nil {
		t.Fatalf("link: %v", err)
	}

	entry, err = ResolveTrackingEntry(d, "abcdefghij")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if entry == nil || entry.ID != firstID {
		t.Fatalf("expected fallback to entry %d, got %+v", firstID, entry)
	}
}

func TestCreateAlertPersistsAggregate(t *testing.T) {
	d := newTestDB(t)

	cookies := "session=abc123"
	alertID, err := CreateAlert(d, testDraft(&cookies, "https://victim.example/account"))
	if err != nil {
		t.Fatalf("create alert: %v", err)
	}

	alert, err := GetAlert(d, alertID)
	if err != nil {
		t.Fatalf("get alert: %v", err)
	}
	if alert == nil {
		t.Fatal("alert not found")
	}
	if alert.SourceIP != "203.0.113.7" {
		t.Errorf("unexpected source ip %q", alert.SourceIP)
	}
	if alert.Cookies == nil || *alert.Cookies != "session=abc123" {
		t.Errorf("unexpected cookies %v", alert.Cookies)
	}
	if alert.TrackingEntryID != nil {
		t.Error("fresh alert must not carry a tracking back-reference")
	}

	doc, err := GetAlertDocument(d, alertID)
	if err != nil || doc == nil {
		t.Fatalf("get document: %v, %v", doc, err)
	}
	if doc.URL != "https://victim.example/account" {
		t.Errorf("unexpected document url %q", doc.URL)
	}

	loc, err := GetAlertLocation(d, alertID)
	if err != nil || loc == nil {
		t.Fatalf("get location: %v, %v", loc, err)
	}

	perms, err := GetAlertPermissions(d, alertID)
	if err != nil {
		t.Fatalf("get permissions: %v", err)
	}
	if len(perms) != 2 {
		t.Errorf("expected 2 permissions, got %d", len(perms))
	}

	scripts, err := GetAlertScripts(d, alertID)
	if err != nil {
		t.Fatalf("get scripts: %v", err)
	}
	if len(scripts) != 1 || !scripts[0].Async {
		t.Errorf("unexpected scripts %+v", scripts)
	}

	metas, err := GetAlertMetaTags(d, alertID)
	if err != nil {
		t.Fatalf("get meta tags: %v", err)
	}
	if len(metas) != 1 || metas[0].Name != "viewport" {
		t.Errorf("unexpected meta tags %+v", metas)
	}

	src, err := GetAlertSource(d, alertID)
	if err != nil || src == nil {
		t.Fatalf("get source: %v, %v", src, err)
	}
	if src.Document == "" {
		t.Error("document source not stored")
	}
}

func TestDeleteAlertCascades(t *testing.T) {
	d := newTestDB(t)

	alertID, err := CreateAlert(d, testDraft(nil, "https://victim.example/home"))
	if err != nil {
		t.Fatalf("create alert: %v", err)
	}
	if err := CreateScreenshot(d, alertID, "shot.png", []byte{0x89, 0x50, 0x4e, 0x47}); err != nil {
		t.Fatalf("create screenshot: %v", err)
	}

	if err := DeleteAlert(d, alertID); err != nil {
		t.Fatalf("delete alert: %v", err)
	}

	alert, err := GetAlert(d, alertID)
	if err != nil {
		t.Fatalf("get alert: %v", err)
	}
	if alert != nil {
		t.Fatal("alert still present after delete")
	}

	for table, query := range map[string]string{
		"alert_documents":   "SELECT COUNT(*) FROM alert_documents WHERE alert_id = ?",
		"alert_locations":   "SELECT COUNT(*) FROM alert_locations WHERE alert_id = ?",
		"alert_permissions": "SELECT COUNT(*) FROM alert_permissions WHERE alert_id = ?",
		"alert_scripts":     "SELECT COUNT(*) FROM alert_scripts WHERE alert_id = ?",
		"alert_meta_tags":   "SELECT COUNT(*) FROM alert_meta_tags WHERE alert_id = ?",
		"alert_sources":     "SELECT COUNT(*) FROM alert_sources WHERE alert_id = ?",
		"screenshots":       "SELECT COUNT(*) FROM screenshots WHERE alert_id = ?",
	} {
		var count int
		if err := d.QueryRow(query, alertID).Scan(&count); err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if count != 0 {
			t.Errorf("%s rows survived the cascade", table)
		}
	}
}

func TestDeleteTrackingEntryUnlinksAlert(t *testing.T) {
	d := newTestDB(t)

	entryID, err := CreateTrackingEntry(d, "abcdefghij", "https://victim.example/support", "POST", `{}`, "application/x-www-form-urlencoded")
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}
	alertID, err := CreateAlert(d, testDraft(nil, "https://victim.example/support"))
	if err != nil {
		t.Fatalf("create alert: %v", err)
	}
	if err := LinkTrackingEntry(d, alertID, entryID); err != nil {
		t.Fatalf("link: %v", err)
	}

	if _, err := d.Exec("DELETE FROM tracking_entries WHERE id = ?", entryID); err != nil {
		t.Fatalf("delete entry: %v", err)
	}

	alert, err := GetAlert(d, alertID)
	if err != nil {
		t.Fatalf("get alert: %v", err)
	}
	if alert == nil {
		t.Fatal("alert deleted alongside tracking entry")
	}
	if alert.TrackingEntryID != nil {
		t.Error("back-reference not cleared when tracking entry was removed")
	}
}

func TestListAlerts(t *testing.T) {
	d := newTestDB(t)

	firstID, err := CreateAlert(d, testDraft(nil, "https://victim.example/a"))
	if err != nil {
		t.Fatalf("create alert: %v", err)
	}
	draft := testDraft(nil, "https://victim.example/b")
	draft.ReceivedAt++
	secondID, err := CreateAlert(d, draft)
	if err != nil {
		t.Fatalf("create alert: %v", err)
	}

	entryID, err := CreateTrackingEntry(d, "abcdefghij", "https://victim.example/b", "POST", `{}`, "application/x-www-form-urlencoded")
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}
	if err := LinkTrackingEntry(d, secondID, entryID); err != nil {
		t.Fatalf("link: %v", err)
	}

	summaries, err := ListAlerts(d)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}
	if summaries[0].ID != secondID || summaries[1].ID != firstID {
		t.Errorf("summaries not newest first: %+v", summaries)
	}
	if summaries[0].TrackingID == nil || *summaries[0].TrackingID != "abcdefghij" {
		t.Errorf("linked summary missing tracking id: %+v", summaries[0])
	}
	if summaries[1].TrackingID != nil {
		t.Errorf("unlinked summary carries tracking id: %+v", summaries[1])
	}
}

func TestScreenshotRoundTrip(t *testing.T) {
	d := newTestDB(t)

	alertID, err := CreateAlert(d, testDraft(nil, "https://victim.example/home"))
	if err != nil {
		t.Fatalf("create alert: %v", err)
	}

	data := []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}
	if err := CreateScreenshot(d, alertID, "https___victim_example_home-2025-08-27T13:00:00.000Z.png", data); err != nil {
		t.Fatalf("create screenshot: %v", err)
	}

	shot, err := GetScreenshot(d, alertID)
	if err != nil {
		t.Fatalf("get screenshot: %v", err)
	}
	if shot == nil {
		t.Fatal("screenshot not found")
	}
	if string(shot.Data) != string(data) {
		t.Error("screenshot bytes corrupted")
	}

	missing, err := GetScreenshot(d, alertID+1)
	if err != nil {
		t.Fatalf("get missing screenshot: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing screenshot")
	}
}

func TestUsers(t *testing.T) {
	d := newTestDB(t)

	count, err := CountUsers(d)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected empty user table, got %d", count)
	}

	if _, err := CreateUser(d, "admin", "$argon2id$fake", "blindspot_testtoken", "admin"); err != nil {
		t.Fatalf("create user: %v", err)
	}

	count, err = CountUsers(d)
	if err != nil || count != 1 {
		t.Fatalf("expected 1 user, got %d (%v)", count, err)
	}

	n, err := CountUsersByAPIToken(d, "blindspot_testtoken")
	if err != nil || n != 1 {
		t.Fatalf("token lookup failed: %d (%v)", n, err)
	}
	n, err = CountUsersByAPIToken(d, "blindspot_wrong")
	if err != nil || n != 0 {
		t.Fatalf("wrong token matched: %d (%v)", n, err)
	}

	u, err := GetUserByUsername(d, "admin")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if u == nil || u.APIToken != "blindspot_testtoken" {
		t.Fatalf("unexpected user %+v", u)
	}
	if u.EmailNotifications {
		t.Error("email notifications default on")
	}

	recipients, err := NotificationRecipients(d)
	if err != nil {
		t.Fatalf("recipients: %v", err)
	}
	if len(recipients) != 0 {
		t.Errorf("expected no opted-in recipients, got %v", recipients)
	}

	if _, err := d.Exec("UPDATE users SET email = 'admin@example.com', email_notifications = 1 WHERE username = 'admin'"); err != nil {
		t.Fatalf("opt in: %v", err)
	}
	recipients, err = NotificationRecipients(d)
	if err != nil {
		t.Fatalf("recipients: %v", err)
	}
	if len(recipients) != 1 || recipients[0] != "admin@example.com" {
		t.Errorf("unexpected recipients %v", recipients)
	}
}
