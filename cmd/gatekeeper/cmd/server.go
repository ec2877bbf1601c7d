package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/jmcleod/gatekeeper/api"
	"github.com/jmcleod/gatekeeper/credential"
	"github.com/jmcleod/gatekeeper/internal/config"
	"github.com/jmcleod/gatekeeper/internal/util"
	"github.com/jmcleod/gatekeeper/storage"
	bboltstorage "github.com/jmcleod/gatekeeper/storage/bbolt"
	"github.com/jmcleod/gatekeeper/storage/memory"
)

// limiterSweepInterval is how often stale login-failure records are dropped.
const limiterSweepInterval = 10 * time.Minute

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the credential access server",
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().String("listen", "", "Address to listen on (overrides config)")
	serverCmd.Flags().String("tls-cert", "", "Path to TLS certificate file (overrides config)")
	serverCmd.Flags().String("tls-key", "", "Path to TLS key file (overrides config)")
	serverCmd.Flags().String("audit-db", "", "Path to the audit trail database (overrides config)")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))

	storeOpts, err := cfg.StoreOptions()
	if err != nil {
		return err
	}
	store, err := credential.NewStore(append(storeOpts, credential.WithLogger(logger))...)
	if err != nil {
		return fmt.Errorf("failed to create credential store: %w", err)
	}

	auditRepo, closeRepo, err := openAuditRepository(cfg.AuditDB)
	if err != nil {
		return err
	}
	defer closeRepo()

	proxies, err := cfg.ProxyPrefixes()
	if err != nil {
		return err
	}
	internalToken, err := cfg.InternalToken()
	if err != nil {
		return err
	}
	registry := credential.NewRegistry()
	registry.RegisterAll(cfg.Permissions())

	a := api.New(store,
		api.WithLogger(logger),
		api.WithService(cfg.Service),
		api.WithRegistry(registry),
		api.WithAuditRepository(auditRepo),
		api.WithAuditRetention(cfg.AuditRetention.MaxAge, cfg.AuditRetention.MaxEntries),
		api.WithIPRateLimit(cfg.RateLimit.RequestsPerMinute),
		api.WithTrustedProxies(proxies),
		api.WithAuditWebhook(cfg.AuditWebhook.URL, cfg.AuditWebhook.Header),
		api.WithInternalToken(internalToken),
		api.WithAlertFunc(func(ev api.AlertEvent) {
			logger.Warn("security alert",
				"component", "alerts",
				"type", string(ev.Type),
				"message", ev.Message,
				"count", ev.Count,
				"threshold", ev.Threshold,
			)
		}),
	)
	defer a.Close()

	if cfg.BootstrapAdmin.Username != "" {
		password, err := cfg.BootstrapPassword()
		if err != nil {
			return err
		}
		if _, err := a.Bootstrap(cfg.BootstrapAdmin.Username, password); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go store.RunSweeper(ctx, 0)
	go a.RunLimiterSweeper(ctx, limiterSweepInterval)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(api.SecurityHeaders)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	r.Mount("/api/v1", a.Router())

	tlsConfig, err := serverTLSConfig(cfg.TLS)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	done := make(chan error, 1)
	go func() {
		if err := server.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			done <- fmt.Errorf("server failed: %w", err)
			return
		}
		done <- nil
	}()

	printBanner()
	fmt.Printf("Starting server on %s (service: %s)...\n", cfg.Listen, cfg.Service)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		fmt.Printf("\nReceived %s, shutting down...\n", sig)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-done:
		return err
	}
}

// openAuditRepository opens the bbolt audit trail at path, or an
// in-memory one when path is empty.
func openAuditRepository(path string) (storage.Repository, func(), error) {
	if path == "" {
		return memory.NewRepository(), func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	repo, err := bboltstorage.NewRepositoryFromFile(path, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open audit storage: %w", err)
	}
	return repo, func() { repo.Close() }, nil
}

func serverTLSConfig(c config.TLSConfig) (*tls.Config, error) {
	if c.CertFile != "" && c.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS key pair: %w", err)
		}
		return &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}, nil
	}
	cert, err := util.GenerateSelfSignedCert()
	if err != nil {
		return nil, fmt.Errorf("failed to generate self-signed certificate: %w", err)
	}
	fmt.Println("Using self-signed runtime generated certificate for TLS")
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
