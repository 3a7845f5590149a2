package server

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/blindspot-sh/blindspot/internal/api"
	"github.com/blindspot-sh/blindspot/internal/db"
	"github.com/blindspot-sh/blindspot/internal/logging"
	"github.com/blindspot-sh/blindspot/internal/ratelimit"
	"github.com/blindspot-sh/blindspot/internal/token"
)

var allowedMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true, "PATCH": true, "OPTIONS": true,
}

const defaultContentType = "application/x-www-form-urlencoded"

// APIServer handles the authenticated operator API: registration of
// injection attempts and alert retrieval.
type APIServer struct {
	DB      *sql.DB
	Domain  string
	Logger  *zap.Logger
	Limiter *ratelimit.Limiter
}

// Handler returns the HTTP handler for the operator API.
func (s *APIServer) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestContext)
	r.Use(s.authMiddleware)

	r.Post("/v1/track", s.handleTrack)
	r.Get("/v1/alerts", s.handleListAlerts)
	r.Get("/v1/alerts/{id}", s.handleGetAlert)
	r.Get("/v1/alerts/{id}/screenshot", s.handleGetScreenshot)
	r.Delete("/v1/alerts/{id}", s.handleDeleteAlert)

	return r
}

func (s *APIServer) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = withRequestID(r, uuid.NewString())
		r = withSourceIP(r, ResolveSourceIP(s.DB, r))
		next.ServeHTTP(w, r)
	})
}

// authMiddleware requires a bearer token matching a user's API token.
func (s *APIServer) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			writeJSON(w, http.StatusUnauthorized, api.ErrorResponse{Error: "unauthorized"})
			return
		}

		bearer := strings.TrimPrefix(authHeader, "Bearer ")
		count, err := db.CountUsersByAPIToken(s.DB, bearer)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "database error"})
			return
		}
		if count == 0 {
			writeJSON(w, http.StatusUnauthorized, api.ErrorResponse{Error: "unauthorized"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *APIServer) handleTrack(w http.ResponseWriter, r *http.Request) {
	ip := sourceIPFrom(r)
	if !s.Limiter.Allow(ip) {
		s.Logger.Warn("registration rate limit exceeded", logging.SourceIP(ip))
		writeJSON(w, http.StatusTooManyRequests, api.ErrorResponse{Error: "rate limit exceeded, try again later"})
		return
	}

	var req api.TrackRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "invalid JSON"})
		return
	}

	method, err := validateTrackRequest(&req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
		return
	}

	fieldsJSON, err := json.Marshal(req.Target.Data)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "invalid field map"})
		return
	}

	contentType := defaultContentType
	if req.Target.ContentType != nil {
		contentType = *req.Target.ContentType
	}

	if _, err := db.CreateTrackingEntry(s.DB, req.UID, req.Target.URL, method, string(fieldsJSON), contentType); err != nil {
		s.Logger.Error("create tracking entry failed", logging.TrackingID(req.UID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "error tracking request"})
		return
	}

	s.Logger.Info("injection attempt registered",
		logging.TrackingID(req.UID),
		logging.URL(req.Target.URL),
		logging.Method(method))

	writeJSON(w, http.StatusOK, api.TrackResponse{
		TrackingID: req.UID,
		Payloads: map[string]string{
			"http":  fmt.Sprintf("http://%s/%s", s.Domain, req.UID),
			"https": fmt.Sprintf("https://%s/%s", s.Domain, req.UID),
		},
	})
}

// validateTrackRequest enforces the registration shape and returns the
// normalized method. No partial writes happen on a violation.
func validateTrackRequest(req *api.TrackRequest) (string, error) {
	if req.Target == nil {
		return "", fmt.Errorf("target is not valid")
	}
	if req.Target.URL == "" {
		return "", fmt.Errorf("target url is required")
	}
	method := strings.ToUpper(req.Target.Method)
	if !allowedMethods[method] {
		return "", fmt.Errorf("target method is not valid")
	}
	if req.Target.Data == nil {
		return "", fmt.Errorf("target data is required")
	}
	for name, field := range req.Target.Data {
		if field.Value == nil || field.Type == nil {
			return "", fmt.Errorf("field %q must carry value and type", name)
		}
	}
	if !token.Valid(req.UID) {
		return "", fmt.Errorf("uid is not valid")
	}
	return method, nil
}

func (s *APIServer) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	summaries, err := db.ListAlerts(s.DB)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "database error"})
		return
	}

	resp := api.ListAlertsResponse{Alerts: make([]api.AlertSummary, 0, len(summaries))}
	for _, a := range summaries {
		resp.Alerts = append(resp.Alerts, api.AlertSummary{
			ID:         a.ID,
			ReceivedAt: time.Unix(a.ReceivedAt, 0).UTC().Format(time.RFC3339),
			SourceIP:   a.SourceIP,
			UserAgent:  a.UserAgent,
			Href:       a.Href,
			TrackingID: a.TrackingID,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *APIServer) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "invalid alert id"})
		return
	}

	alert, err := db.GetAlert(s.DB, id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "database error"})
		return
	}
	if alert == nil {
		writeJSON(w, http.StatusNotFound, api.ErrorResponse{Error: "alert not found"})
		return
	}

	detail := api.AlertDetail{
		ID:           alert.ID,
		ReceivedAt:   time.Unix(alert.ReceivedAt, 0).UTC().Format(time.RFC3339),
		SourceIP:     alert.SourceIP,
		UserAgent:    alert.UserAgent,
		Cookies:      alert.Cookies,
		Timezone:     alert.Timezone,
		TimezoneName: alert.TimezoneName,
		WallClock:    alert.WallClock,
		InIframe:     alert.InIframe,
	}

	if doc, err := db.GetAlertDocument(s.DB, id); err == nil && doc != nil {
		detail.Document = &api.DocumentInfo{
			Title: doc.Title, URL: doc.URL, Domain: doc.Domain, Referrer: doc.Referrer,
			LastModified: doc.LastModified, ReadyState: doc.ReadyState,
			CharacterSet: doc.CharacterSet, ContentType: doc.ContentType,
			DesignMode: doc.DesignMode, Children: doc.ChildCount,
		}
	}
	if loc, err := db.GetAlertLocation(s.DB, id); err == nil && loc != nil {
		detail.Location = &api.LocationInfo{
			Href: loc.Href, Protocol: loc.Protocol, Host: loc.Host, Hostname: loc.Hostname,
			Port: loc.Port, Pathname: loc.Pathname, Search: loc.Search, Hash: loc.Hash,
			Origin: loc.Origin,
		}
	}
	if perms, err := db.GetAlertPermissions(s.DB, id); err == nil && len(perms) > 0 {
		detail.Permissions = make(map[string]string, len(perms))
		for _, p := range perms {
			detail.Permissions[p.Name] = p.Status
		}
	}
	if scripts, err := db.GetAlertScripts(s.DB, id); err == nil {
		for _, sc := range scripts {
			detail.Scripts = append(detail.Scripts, api.ScriptInfo{
				Src: sc.Src, Type: sc.Type, Async: sc.Async, Defer: sc.Defer,
			})
		}
	}
	if metas, err := db.GetAlertMetaTags(s.DB, id); err == nil {
		for _, m := range metas {
			detail.MetaTags = append(detail.MetaTags, api.MetaTagInfo{
				Name: m.Name, Content: m.Content, HTTPEquiv: m.HTTPEquiv, Property: m.Property,
			})
		}
	}
	if src, err := db.GetAlertSource(s.DB, id); err == nil && src != nil {
		detail.HasSource = src.Document != ""
	}
	if shot, err := db.GetScreenshot(s.DB, id); err == nil && shot != nil {
		detail.Screenshot = shot.Name
	}
	if alert.TrackingEntryID != nil {
		if entry, err := db.GetTrackingEntry(s.DB, *alert.TrackingEntryID); err == nil && entry != nil {
			detail.Tracking = &api.TrackingEntryDetail{
				TrackingID:  entry.TrackingID,
				URL:         entry.URL,
				Method:      entry.Method,
				Fields:      entry.Fields,
				ContentType: entry.ContentType,
				CreatedAt:   time.Unix(entry.CreatedAt, 0).UTC().Format(time.RFC3339),
			}
		}
	}

	writeJSON(w, http.StatusOK, detail)
}

func (s *APIServer) handleGetScreenshot(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "invalid alert id"})
		return
	}

	shot, err := db.GetScreenshot(s.DB, id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "database error"})
		return
	}
	if shot == nil {
		writeJSON(w, http.StatusNotFound, api.ErrorResponse{Error: "screenshot not found"})
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", shot.Name))
	w.WriteHeader(http.StatusOK)
	w.Write(shot.Data)
}

func (s *APIServer) handleDeleteAlert(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "invalid alert id"})
		return
	}

	alert, err := db.GetAlert(s.DB, id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "database error"})
		return
	}
	if alert == nil {
		writeJSON(w, http.StatusNotFound, api.ErrorResponse{Error: "alert not found"})
		return
	}

	if err := db.DeleteAlert(s.DB, id); err != nil {
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "failed to delete alert"})
		return
	}

	writeJSON(w, http.StatusOK, api.DeleteAlertResponse{Deleted: true})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}
