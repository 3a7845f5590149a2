package server

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/blindspot-sh/blindspot/internal/api"
	"github.com/blindspot-sh/blindspot/internal/db"
	"github.com/blindspot-sh/blindspot/internal/logging"
	"github.com/blindspot-sh/blindspot/internal/models"
)

// maxCallbackBody bounds the fingerprint document; the document source
// and screenshot dominate its size.
const maxCallbackBody = 10 << 20 // 10MB

const screenshotPrefix = "data:image/png;base64,"

var screenshotNameSanitizer = regexp.MustCompile(`[^a-zA-Z]`)

// handleCallback ingests one beacon callback: parse, persist atomically,
// store the screenshot, resolve the tracking correlation, then hand the
// alert to the notification fan-out without waiting on it.
func (s *PublicServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	sourceIP := sourceIPFrom(r)
	requestID := requestIDFrom(r)

	r.Body = http.MaxBytesReader(w, r.Body, maxCallbackBody)

	var fp api.Fingerprint
	if err := json.NewDecoder(r.Body).Decode(&fp); err != nil {
		s.Logger.Debug("malformed callback payload",
			logging.SourceIP(sourceIP),
			logging.RequestID(requestID),
			zap.Error(err))
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	// A payload missing any required section must not partially corrupt
	// storage; reject before the first write.
	if fp.Document == nil || fp.Location == nil || fp.UserAgent == nil || fp.Scripts == nil || fp.MetaTags == nil {
		s.Logger.Debug("incomplete callback payload",
			logging.SourceIP(sourceIP),
			logging.RequestID(requestID))
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	draft := draftFromFingerprint(&fp, sourceIP)

	alertID, err := db.CreateAlert(s.DB, draft)
	if err != nil {
		s.Logger.Error("store alert failed",
			logging.SourceIP(sourceIP),
			logging.RequestID(requestID),
			zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	// Screenshot decode failure fails the whole request even though the
	// alert above has already committed; callers retrying will create a
	// second alert.
	encoded := strings.TrimPrefix(fp.Screenshot, screenshotPrefix)
	pngData, err := base64.StdEncoding.DecodeString(encoded)
	if err == nil {
		name := screenshotName(fp.Document.URL, time.Now())
		err = db.CreateScreenshot(s.DB, alertID, name, pngData)
	}
	if err != nil {
		s.Logger.Error("store screenshot failed",
			logging.AlertID(alertID),
			logging.RequestID(requestID),
			zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	s.resolveCorrelation(alertID, fp.UniqueIdentifier, requestID)

	// Fire-and-forget: the response never waits on channel delivery.
	s.Dispatcher.Dispatch(alertID)

	s.Logger.Info("alert stored",
		logging.AlertID(alertID),
		logging.URL(fp.Document.URL),
		logging.SourceIP(sourceIP),
		logging.RequestID(requestID))

	w.WriteHeader(http.StatusOK)
}

// resolveCorrelation links the alert to the most recent unlinked tracking
// entry carrying the beacon's identifier. Best-effort: a miss is a normal
// outcome and a storage failure only degrades correlation quality.
func (s *PublicServer) resolveCorrelation(alertID int64, identifier, requestID string) {
	// The beacon template substitutes the literal "null" when no
	// identifier was embedded.
	if identifier == "" || identifier == "null" {
		return
	}

	entry, err := db.ResolveTrackingEntry(s.DB, identifier)
	if err != nil {
		s.Logger.Warn("tracking lookup failed",
			logging.AlertID(alertID),
			logging.TrackingID(identifier),
			logging.RequestID(requestID),
			zap.Error(err))
		return
	}
	if entry == nil {
		s.Logger.Info("no tracking entry for identifier",
			logging.AlertID(alertID),
			logging.TrackingID(identifier),
			logging.RequestID(requestID))
		return
	}

	if err := db.LinkTrackingEntry(s.DB, alertID, entry.ID); err != nil {
		s.Logger.Warn("link tracking entry failed",
			logging.AlertID(alertID),
			logging.TrackingID(identifier),
			logging.RequestID(requestID),
			zap.Error(err))
		return
	}

	s.Logger.Info("alert correlated",
		logging.AlertID(alertID),
		logging.TrackingID(identifier),
		logging.URL(entry.URL))
}

func draftFromFingerprint(fp *api.Fingerprint, sourceIP string) *db.AlertDraft {
	draft := &db.AlertDraft{
		ReceivedAt:   time.Now().Unix(),
		SourceIP:     sourceIP,
		UserAgent:    *fp.UserAgent,
		Cookies:      fp.Cookies,
		Timezone:     fp.Timezone,
		TimezoneName: fp.TimezoneName,
		WallClock:    fp.CurrentTime,
		InIframe:     fp.IsInIframe,
		Source:       fp.DocumentSource,
		Document: models.AlertDocument{
			Title:        fp.Document.Title,
			URL:          fp.Document.URL,
			Domain:       fp.Document.Domain,
			Referrer:     fp.Document.Referrer,
			LastModified: fp.Document.LastModified,
			ReadyState:   fp.Document.ReadyState,
			CharacterSet: fp.Document.CharacterSet,
			ContentType:  fp.Document.ContentType,
			DesignMode:   fp.Document.DesignMode,
			ChildCount:   fp.Document.Children,
		},
		Location: models.AlertLocation{
			Href:     fp.Location.Href,
			Protocol: fp.Location.Protocol,
			Host:     fp.Location.Host,
			Hostname: fp.Location.Hostname,
			Port:     fp.Location.Port,
			Pathname: fp.Location.Pathname,
			Search:   fp.Location.Search,
			Hash:     fp.Location.Hash,
			Origin:   fp.Location.Origin,
		},
	}

	for name, status := range fp.Permissions {
		draft.Permissions = append(draft.Permissions, models.AlertPermission{Name: name, Status: status})
	}
	for _, sc := range fp.Scripts {
		draft.Scripts = append(draft.Scripts, models.AlertScript{
			Src: sc.Src, Type: sc.Type, Async: sc.Async, Defer: sc.Defer,
		})
	}
	for _, m := range fp.MetaTags {
		draft.MetaTags = append(draft.MetaTags, models.AlertMetaTag{
			Name: m.Name, Content: m.Content, HTTPEquiv: m.HTTPEquiv, Property: m.Property,
		})
	}

	return draft
}

// screenshotName derives the stored filename from the page URL and the
// ingestion time. Collisions only affect the filename, never correctness.
func screenshotName(pageURL string, now time.Time) string {
	sanitized := screenshotNameSanitizer.ReplaceAllString(pageURL, "_")
	return sanitized + "-" + now.UTC().Format("2006-01-02T15:04:05.000Z") + ".png"
}
