package server

import (
	"bytes"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/blindspot-sh/blindspot/internal/api"
	"github.com/blindspot-sh/blindspot/internal/db"
	"github.com/blindspot-sh/blindspot/internal/notify"
	"github.com/blindspot-sh/blindspot/internal/ratelimit"
)

func setupPublicServer(t *testing.T) (*PublicServer, *sql.DB) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "blindspot_test.db")
	database, err := db.Open(path)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	if err := db.EnsureSettings(database); err != nil {
		t.Fatalf("seed settings: %v", err)
	}

	srv := &PublicServer{
		DB:     database,
		Logger: zap.NewNop(),
		Dispatcher: &notify.Dispatcher{
			Config: &notify.StoreConfig{DB: database},
			Load:   notify.NewStoreLoader(database),
			Logger: zap.NewNop(),
		},
		Limiter: ratelimit.New(20, time.Minute),
	}
	return srv, database
}

func strp(s string) *string { return &s }

func validFingerprint(identifier string) *api.Fingerprint {
	return &api.Fingerprint{
		UserAgent:      strp("Mozilla/5.0 (X11; Linux x86_64)"),
		Cookies:        strp("session=abc123"),
		DocumentSource: "<html><body>support</body></html>",
		Document: &api.DocumentInfo{
			Title:    "Support",
			URL:      "https://victim.example/support",
			Domain:   "victim.example",
			Referrer: "https://victim.example/",
			Children: 2,
		},
		Location: &api.LocationInfo{
			Href:   "https://victim.example/support",
			Host:   "victim.example",
			Origin: "https://victim.example",
		},
		Timezone:     "Europe/London",
		TimezoneName: "British Summer Time",
		CurrentTime:  "Wed Aug 27 2025 14:00:00 GMT+0100",
		Permissions:  map[string]string{"geolocation": "prompt"},
		Scripts: []api.ScriptInfo{
			{Src: "https://victim.example/app.js", Async: true},
		},
		MetaTags: []api.MetaTagInfo{
			{Name: "viewport", Content: "width=device-width"},
		},
		Screenshot:       "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte{0x89, 0x50, 0x4e, 0x47}),
		UniqueIdentifier: identifier,
	}
}

func postCallback(t *testing.T, handler http.Handler, fp *api.Fingerprint) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(fp)
	if err != nil {
		t.Fatalf("marshal fingerprint: %v", err)
	}
	req := httptest.NewRequest("POST", "/cb", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestCallbackStoresAlert(t *testing.T) {
	srv, database := setupPublicServer(t)
	handler := srv.Handler()

	w := postCallback(t, handler, validFingerprint("null"))
	srv.Dispatcher.Wait()

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	summaries, err := db.ListAlerts(database)
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(summaries))
	}

	alertID := summaries[0].ID

	alert, err := db.GetAlert(database, alertID)
	if err != nil || alert == nil {
		t.Fatalf("get alert: %v, %v", alert, err)
	}
	if alert.TrackingEntryID != nil {
		t.Error("untagged beacon produced a tracking back-reference")
	}
	if alert.Cookies == nil || *alert.Cookies != "session=abc123" {
		t.Errorf("unexpected cookies %v", alert.Cookies)
	}

	doc, _ := db.GetAlertDocument(database, alertID)
	if doc == nil || doc.URL != "https://victim.example/support" {
		t.Errorf("unexpected document %+v", doc)
	}
	perms, _ := db.GetAlertPermissions(database, alertID)
	if len(perms) != 1 || perms[0].Name != "geolocation" {
		t.Errorf("unexpected permissions %+v", perms)
	}
	scripts, _ := db.GetAlertScripts(database, alertID)
	if len(scripts) != 1 || !scripts[0].Async {
		t.Errorf("unexpected scripts %+v", scripts)
	}

	shot, _ := db.GetScreenshot(database, alertID)
	if shot == nil {
		t.Fatal("screenshot not stored")
	}
	if !bytes.Equal(shot.Data, []byte{0x89, 0x50, 0x4e, 0x47}) {
		t.Error("screenshot bytes corrupted")
	}
	if !strings.HasSuffix(shot.Name, ".png") {
		t.Errorf("unexpected screenshot name %q", shot.Name)
	}
}

func TestCallbackRejectsIncompletePayload(t *testing.T) {
	srv, database := setupPublicServer(t)
	handler := srv.Handler()

	tests := []struct {
		name   string
		mutate func(fp *api.Fingerprint)
	}{
		{"missing document", func(fp *api.Fingerprint) { fp.Document = nil }},
		{"missing location", func(fp *api.Fingerprint) { fp.Location = nil }},
		{"missing user agent", func(fp *api.Fingerprint) { fp.UserAgent = nil }},
		{"missing scripts", func(fp *api.Fingerprint) { fp.Scripts = nil }},
		{"missing meta tags", func(fp *api.Fingerprint) { fp.MetaTags = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp := validFingerprint("null")
			tt.mutate(fp)

			w := postCallback(t, handler, fp)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", w.Code)
			}
		})
	}

	var count int
	if err := database.QueryRow("SELECT COUNT(*) FROM alerts").Scan(&count); err != nil {
		t.Fatalf("count alerts: %v", err)
	}
	if count != 0 {
		t.Errorf("rejected payloads left %d alert rows behind", count)
	}
}

func TestCallbackRejectsMalformedJSON(t *testing.T) {
	srv, _ := setupPublicServer(t)

	req := httptest.NewRequest("POST", "/cb", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestCallbackCorrelation(t *testing.T) {
	srv, database := setupPublicServer(t)
	handler := srv.Handler()

	entryID, err := db.CreateTrackingEntry(database, "abcdefghij", "https://victim.example/support", "POST", `{}`, "application/x-www-form-urlencoded")
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}

	w := postCallback(t, handler, validFingerprint("abcdefghij"))
	srv.Dispatcher.Wait()
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	summaries, _ := db.ListAlerts(database)
	if len(summaries) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(summaries))
	}
	alert, _ := db.GetAlert(database, summaries[0].ID)
	if alert.TrackingEntryID == nil || *alert.TrackingEntryID != entryID {
		t.Errorf("alert not linked to tracking entry: %+v", alert.TrackingEntryID)
	}
}

func TestCallbackUnknownIdentifierStillStored(t *testing.T) {
	srv, database := setupPublicServer(t)

	w := postCallback(t, srv.Handler(), validFingerprint("zzzzzzzzzz"))
	srv.Dispatcher.Wait()
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	summaries, _ := db.ListAlerts(database)
	if len(summaries) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(summaries))
	}
	if summaries[0].TrackingID != nil {
		t.Error("unknown identifier produced a back-reference")
	}
}

func TestCallbackRateLimited(t *testing.T) {
	srv, _ := setupPublicServer(t)
	srv.Limiter = ratelimit.New(2, time.Minute)
	handler := srv.Handler()

	for i := 0; i < 2; i++ {
		if w := postCallback(t, handler, validFingerprint("null")); w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, w.Code)
		}
	}

	w := postCallback(t, handler, validFingerprint("null"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "rate limit exceeded") {
		t.Errorf("unexpected body %q", w.Body.String())
	}
	srv.Dispatcher.Wait()
}

func TestCallbackUsesForwardedAddress(t *testing.T) {
	srv, database := setupPublicServer(t)
	handler := srv.Handler()

	body, _ := json.Marshal(validFingerprint("null"))
	req := httptest.NewRequest("POST", "/cb", bytes.NewReader(body))
	req.Header.Set("X-Forwarded-For", "198.51.100.9, 10.0.0.2")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	srv.Dispatcher.Wait()

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	summaries, _ := db.ListAlerts(database)
	if len(summaries) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(summaries))
	}
	if summaries[0].SourceIP != "198.51.100.9" {
		t.Errorf("expected first forwarded hop, got %q", summaries[0].SourceIP)
	}
}

func TestBeaconServed(t *testing.T) {
	srv, _ := setupPublicServer(t)
	handler := srv.Handler()

	req := httptest.NewRequest("GET", "/abcdefghij", nil)
	req.Host = "xss.example.com"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/javascript" {
		t.Errorf("unexpected content type %q", ct)
	}
	script := w.Body.String()
	if !strings.Contains(script, "abcdefghij") {
		t.Error("beacon does not embed the tracking identifier")
	}
	if !strings.Contains(script, "xss.example.com") {
		t.Error("beacon does not embed the request host")
	}
}

func TestBeaconUntaggedPath(t *testing.T) {
	srv, _ := setupPublicServer(t)
	handler := srv.Handler()

	for _, path := range []string{"/", "/favicon.ico", "/some/deep/path"} {
		req := httptest.NewRequest("GET", path, nil)
		req.Host = "xss.example.com"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, w.Code)
			continue
		}
		if !strings.Contains(w.Body.String(), "null") {
			t.Errorf("%s: untagged beacon must embed the literal null", path)
		}
	}
}

func TestScreenshotName(t *testing.T) {
	now := time.Date(2025, 8, 27, 13, 0, 0, 0, time.UTC)
	got := screenshotName("https://victim.example/support?q=1", now)
	want := "https___victim_example_support_q__-2025-08-27T13:00:00.000Z.png"
	if got != want {
		t.Errorf("screenshotName = %q, want %q", got, want)
	}
}
