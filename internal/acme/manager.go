// Package acme handles automatic TLS certificate management via ACME.
package acme

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"net/http"
	"os"

	"github.com/caddyserver/certmagic"
	certmagicsqlite "github.com/rsclarke/certmagic-sqlite"
	"go.uber.org/zap"
)

// Manager obtains and renews the certificate for the callback domain via
// HTTP-01 and TLS-ALPN-01. Certificates live in the application database
// so a single file survives redeploys.
type Manager struct {
	Domain  string
	Email   string
	Staging bool
	DB      *sql.DB
	Logger  *zap.Logger

	config  *certmagic.Config
	issuer  *certmagic.ACMEIssuer
	storage *certmagicsqlite.SQLiteStorage
}

// SetLogger configures the global certmagic loggers.
// Call this before starting any HTTP servers that handle ACME challenges.
func SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	certmagic.Default.Logger = logger
	certmagic.DefaultACME.Logger = logger
}

// NewManager creates a new ACME manager.
func NewManager(domain, email string, db *sql.DB, staging bool, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}

	certmagic.Default.Logger = logger
	certmagic.DefaultACME.Logger = logger

	return &Manager{
		Domain:  domain,
		Email:   email,
		Staging: staging,
		DB:      db,
		Logger:  logger,
	}
}

// Setup prepares the storage, config and issuer. Call before starting
// the HTTP listener so HTTPChallengeHandler can answer challenges while
// Manage runs.
func (m *Manager) Setup() error {
	hostname, _ := os.Hostname()
	storage, err := certmagicsqlite.NewWithDB(m.DB, certmagicsqlite.WithOwnerID(hostname))
	if err != nil {
		return fmt.Errorf("create certmagic storage: %w", err)
	}
	m.storage = storage

	cfg := certmagic.NewDefault()
	cfg.Storage = m.storage
	cfg.Logger = m.Logger
	m.config = cfg

	caURL := certmagic.LetsEncryptProductionCA
	if m.Staging {
		caURL = certmagic.LetsEncryptStagingCA
	}

	m.issuer = certmagic.NewACMEIssuer(m.config, certmagic.ACMEIssuer{
		CA:     caURL,
		Email:  m.Email,
		Agreed: true,
		Logger: m.Logger,
	})
	m.config.Issuers = []certmagic.Issuer{m.issuer}

	return nil
}

// Manage obtains the certificate for the domain, blocking until the
// first issuance succeeds. Renewal continues in the background.
func (m *Manager) Manage(ctx context.Context) error {
	if m.config == nil {
		return fmt.Errorf("manager not set up")
	}
	if err := m.config.ManageSync(ctx, []string{m.Domain}); err != nil {
		return fmt.Errorf("manage certificate for %s: %w", m.Domain, err)
	}
	return nil
}

// HTTPChallengeHandler wraps the public HTTP handler so HTTP-01
// challenge requests are answered before beacon routing sees them.
func (m *Manager) HTTPChallengeHandler(h http.Handler) http.Handler {
	if m.issuer == nil {
		return h
	}
	return m.issuer.HTTPChallengeHandler(h)
}

// TLSConfig returns a TLS configuration serving the managed certificate.
func (m *Manager) TLSConfig() *tls.Config {
	if m.config == nil {
		return nil
	}
	cfg := m.config.TLSConfig()
	cfg.NextProtos = []string{"h2", "http/1.1", "acme-tls/1"}
	return cfg
}
