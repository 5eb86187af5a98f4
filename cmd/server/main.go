// Package main initializes and starts the consultdesk backend, setting up
// configuration, logging, the database, repositories, services, handlers
// and optional TLS.
package main

import (
	"cmp"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	nethttp "net/http"

	"github.com/common-nighthawk/go-figure"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/atinyakov/consultdesk/internal/config"
	"github.com/atinyakov/consultdesk/internal/db"
	"github.com/atinyakov/consultdesk/internal/logger"
	"github.com/atinyakov/consultdesk/internal/middleware"
	"github.com/atinyakov/consultdesk/internal/repository"
	"github.com/atinyakov/consultdesk/internal/server/handler/http"
	"github.com/atinyakov/consultdesk/internal/service"
	"github.com/atinyakov/consultdesk/internal/token"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	// Parse command-line, file and environment configuration.
	options := config.Parse()

	figure.NewFigure("consultdesk", "cybermedium", true).Print()
	fmt.Println()
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	log := logger.New()
	if err := log.Init(options.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Log.Sync() }()
	zapLogger := log.Log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	postgresDB, err := db.InitPostgres(options.DatabaseDSN)
	if err != nil {
		zapLogger.Fatal("cannot init database", zap.Error(err))
	}
	defer postgresDB.Close()

	db.StartRevokedTokenCleaner(ctx, postgresDB, options.CleanInterval, zapLogger)

	tokens, err := token.NewManager(options.Secret, options.AccessTTL, options.RefreshTTL)
	if err != nil {
		zapLogger.Fatal("invalid token settings", zap.Error(err))
	}

	authRepo := repository.NewPostgresAuthRepository(postgresDB)
	contentRepo := repository.NewPostgresContentRepository(postgresDB)

	authService := service.NewAuthService(authRepo, tokens)
	contentService := service.NewContentService(contentRepo)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(postgresDB, "consultdesk"),
	)

	router := http.NewRouter(http.Deps{
		Auth:          &http.AuthHandler{AuthService: authService, Log: zapLogger},
		Content:       &http.ContentHandler{ContentService: contentService, Log: zapLogger},
		Health:        &http.HealthHandler{DB: postgresDB, Log: zapLogger},
		Authenticator: authService,
		Metrics:       middleware.NewMetrics(reg),
		Gatherer:      reg,
		Log:           zapLogger,
	})

	server := &nethttp.Server{
		Addr:              options.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if options.TLS() {
		server.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	errCh := make(chan error, 1)
	go func() {
		zapLogger.Info("starting server", zap.String("addr", options.Port), zap.Bool("tls", options.TLS()))
		if options.TLS() {
			errCh <- server.ListenAndServeTLS(options.TLSCert, options.TLSKey)
			return
		}
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, nethttp.ErrServerClosed) {
			zapLogger.Fatal("server failed", zap.Error(err))
		}
	case <-ctx.Done():
		zapLogger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}
