package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/blindspot-sh/blindspot/internal/acme"
	"github.com/blindspot-sh/blindspot/internal/auth"
	"github.com/blindspot-sh/blindspot/internal/db"
	"github.com/blindspot-sh/blindspot/internal/logging"
	"github.com/blindspot-sh/blindspot/internal/notify"
	"github.com/blindspot-sh/blindspot/internal/ratelimit"
	"github.com/blindspot-sh/blindspot/internal/server"
)

// Per-address request ceilings, per minute.
const (
	callbackRateLimit = 20
	trackRateLimit    = 5
)

var serverFlags struct {
	httpPort      int
	httpsPort     int
	apiPort       int
	tlsCert       string
	tlsKey        string
	domain        string
	dbPath        string
	noACME        bool
	acmeEmail     string
	acmeStaging   bool
	adminPassFile string
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start all listeners (HTTP, HTTPS, API)",
	Long: `Start the blindspot server with HTTP, HTTPS, and API listeners.

The HTTP and HTTPS listeners serve the beacon script on every path and
receive callbacks on /cb. The API listener serves the authenticated
operator API on a separate port.

TLS Modes:
  By default, ACME is enabled and certificates are automatically obtained
  from Let's Encrypt using HTTP-01 and TLS-ALPN-01 challenges. The HTTP
  listener must be publicly reachable on port 80 for ACME to work.

  --tls-cert + --tls-key  → Manual TLS mode (use provided certificates)
  --no-acme               → HTTP only (no HTTPS server)
  (neither)               → ACME mode (automatic Let's Encrypt certificates)

Notes:
  Ports 80 and 443 require root or 'setcap cap_net_bind_service'.
  Certificates are stored inside the application database.

On first start with an empty user table, an admin account is created and
its API token printed once. Set --admin-pass-file to supply the admin
password; otherwise a random one is generated and printed alongside.`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().IntVar(&serverFlags.httpPort, "http-port", getEnvInt("BLINDSPOT_HTTP_PORT", 80), "HTTP port to listen on")
	serverCmd.Flags().IntVar(&serverFlags.httpsPort, "https-port", getEnvInt("BLINDSPOT_HTTPS_PORT", 443), "HTTPS port to listen on")
	serverCmd.Flags().IntVar(&serverFlags.apiPort, "api-port", getEnvInt("BLINDSPOT_API_PORT", 8081), "API port to listen on")
	serverCmd.Flags().StringVar(&serverFlags.tlsCert, "tls-cert", "", "path to TLS certificate file (enables manual TLS mode)")
	serverCmd.Flags().StringVar(&serverFlags.tlsKey, "tls-key", "", "path to TLS key file (enables manual TLS mode)")
	serverCmd.Flags().StringVar(&serverFlags.domain, "domain", getEnv("BLINDSPOT_DOMAIN", "localhost"), "domain payload URLs are built from")
	serverCmd.Flags().StringVar(&serverFlags.dbPath, "db", getEnv("BLINDSPOT_DB", "blindspot.db"), "database path")
	serverCmd.Flags().BoolVar(&serverFlags.noACME, "no-acme", false, "disable automatic TLS (ACME)")
	serverCmd.Flags().StringVar(&serverFlags.acmeEmail, "acme-email", getEnv("BLINDSPOT_ACME_EMAIL", ""), "email for Let's Encrypt notifications")
	serverCmd.Flags().BoolVar(&serverFlags.acmeStaging, "acme-staging", false, "use Let's Encrypt staging CA")
	serverCmd.Flags().StringVar(&serverFlags.adminPassFile, "admin-pass-file", os.Getenv("BLINDSPOT_ADMIN_PASS_FILE"), "file holding the initial admin password")
}

func runServer(cmd *cobra.Command, args []string) error {
	database, err := db.Open(serverFlags.dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	if err := db.EnsureSettings(database); err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}

	if err := bootstrapAdmin(database); err != nil {
		return err
	}

	dispatcher := &notify.Dispatcher{
		Config: &notify.StoreConfig{DB: database},
		Load:   notify.NewStoreLoader(database),
		Logger: logger.Named("notify"),
	}

	publicSrv := &server.PublicServer{
		DB:         database,
		Logger:     logger.Named("public"),
		Dispatcher: dispatcher,
		Limiter:    ratelimit.New(callbackRateLimit, time.Minute),
	}
	publicHandler := publicSrv.Handler()

	apiSrv := &server.APIServer{
		DB:      database,
		Domain:  serverFlags.domain,
		Logger:  logger.Named("api"),
		Limiter: ratelimit.New(trackRateLimit, time.Minute),
	}

	manualTLS := serverFlags.tlsCert != "" && serverFlags.tlsKey != ""
	acmeMode := !manualTLS && !serverFlags.noACME

	var manager *acme.Manager
	if acmeMode {
		acme.SetLogger(logger.Named("certmagic"))
		manager = acme.NewManager(serverFlags.domain, serverFlags.acmeEmail, database, serverFlags.acmeStaging, logger.Named("certmagic"))
		if err := manager.Setup(); err != nil {
			return fmt.Errorf("ACME setup: %w", err)
		}
		// HTTP-01 challenges must win over beacon routing.
		publicHandler = manager.HTTPChallengeHandler(publicHandler)
	}

	httpServer := server.NewManagedServer("http", server.DefaultServerConfig(
		fmt.Sprintf(":%d", serverFlags.httpPort), publicHandler, logger.Named("http")))
	logger.Info("starting http server", logging.Port(serverFlags.httpPort))
	httpServer.Start()
	if err := httpServer.WaitForStartup(500 * time.Millisecond); err != nil {
		return err
	}

	apiServer := server.NewManagedServer("api", server.DefaultServerConfig(
		fmt.Sprintf(":%d", serverFlags.apiPort), apiSrv.Handler(), logger.Named("api")))
	logger.Info("starting api server", logging.Port(serverFlags.apiPort))
	apiServer.Start()
	if err := apiServer.WaitForStartup(500 * time.Millisecond); err != nil {
		return err
	}

	var httpsServer *server.ManagedServer
	switch {
	case acmeMode:
		logger.Info("starting acme certificate acquisition",
			logging.Domain(serverFlags.domain), zap.Bool("staging", serverFlags.acmeStaging))
		if err := manager.Manage(context.Background()); err != nil {
			return fmt.Errorf("ACME certificate acquisition: %w", err)
		}
		logger.Info("acme certificate obtained", logging.Domain(serverFlags.domain))

		cfg := server.DefaultServerConfig(fmt.Sprintf(":%d", serverFlags.httpsPort), publicHandler, logger.Named("https"))
		cfg.TLSConfig = manager.TLSConfig()
		httpsServer = server.NewManagedServer("https", cfg)
		logger.Info("starting https server", logging.Port(serverFlags.httpsPort), logging.TLSMode("acme"))
		httpsServer.Start()
		if err := httpsServer.WaitForStartup(500 * time.Millisecond); err != nil {
			return err
		}

	case manualTLS:
		cert, err := tls.LoadX509KeyPair(serverFlags.tlsCert, serverFlags.tlsKey)
		if err != nil {
			return fmt.Errorf("load TLS certificate: %w", err)
		}

		cfg := server.DefaultServerConfig(fmt.Sprintf(":%d", serverFlags.httpsPort), publicHandler, logger.Named("https"))
		cfg.TLSConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
		httpsServer = server.NewManagedServer("https", cfg)
		logger.Info("starting https server", logging.Port(serverFlags.httpsPort), logging.TLSMode("manual"))
		httpsServer.Start()
		if err := httpsServer.WaitForStartup(500 * time.Millisecond); err != nil {
			return err
		}

	default:
		logger.Info("https disabled", zap.String("reason", "no-acme specified without manual TLS certificates"))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if httpsServer != nil {
		httpsServer.Shutdown(ctx)
	}
	httpServer.Shutdown(ctx)
	apiServer.Shutdown(ctx)

	// Let in-flight notification fan-outs drain.
	dispatcher.Wait()

	return nil
}

// bootstrapAdmin creates the initial admin account when the user table
// is empty and prints its credentials exactly once.
func bootstrapAdmin(database *sql.DB) error {
	count, err := db.CountUsers(database)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}

	var password string
	generated := false
	if serverFlags.adminPassFile != "" {
		data, err := os.ReadFile(serverFlags.adminPassFile)
		if err != nil {
			return fmt.Errorf("read admin password file: %w", err)
		}
		password = strings.TrimSpace(string(data))
		if password == "" {
			return fmt.Errorf("admin password file %s is empty", serverFlags.adminPassFile)
		}
	} else {
		password, err = auth.GeneratePassword()
		if err != nil {
			return fmt.Errorf("generate admin password: %w", err)
		}
		generated = true
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	token, err := auth.GenerateAPIToken()
	if err != nil {
		return fmt.Errorf("generate API token: %w", err)
	}

	if _, err := db.CreateUser(database, "admin", hash, token, "admin"); err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	fmt.Println("=============================================================")
	fmt.Println("ADMIN ACCOUNT CREATED (save this, it will not be shown again):")
	fmt.Println("  username:  admin")
	if generated {
		fmt.Println("  password:  " + password)
	}
	fmt.Println("  api token: " + token)
	fmt.Println("=============================================================")

	return nil
}
