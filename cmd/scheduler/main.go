package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sungwon/mail-scheduler/internal/api"
	"github.com/sungwon/mail-scheduler/internal/blobstore"
	"github.com/sungwon/mail-scheduler/internal/config"
	"github.com/sungwon/mail-scheduler/internal/engine"
	"github.com/sungwon/mail-scheduler/internal/logger"
	"github.com/sungwon/mail-scheduler/internal/mailbox"
	"github.com/sungwon/mail-scheduler/internal/storage"
	"github.com/sungwon/mail-scheduler/internal/transport"
)

func main() {
	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewFromConfig(logger.Config{
		Level:     cfg.Logging.Level,
		Output:    cfg.Logging.Output,
		FilePath:  cfg.Logging.FilePath,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		MaxFiles:  cfg.Logging.MaxFiles,
	})
	log.Info().Msg("starting mail scheduler")

	// Connect to database and apply the schema
	ctx := context.Background()
	db, err := storage.NewDB(
		ctx,
		cfg.Database.URL,
		cfg.Database.PoolMin,
		cfg.Database.PoolMax,
		cfg.Database.ConnectTimeout,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := storage.ApplySchema(ctx, db.Pool); err != nil {
		log.Fatal().Err(err).Msg("failed to apply database schema")
	}
	log.Info().Msg("database connection established")

	store := storage.New(db.Pool)

	// Attachment blob store
	blobs, err := blobstore.New(blobstore.Config{
		Type:       cfg.BlobStore.Type,
		Path:       cfg.BlobStore.Path,
		S3Bucket:   cfg.BlobStore.S3Bucket,
		S3Prefix:   cfg.BlobStore.S3Prefix,
		S3Endpoint: cfg.BlobStore.S3Endpoint,
		S3Region:   cfg.BlobStore.S3Region,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize blob store")
	}

	// Mail transport and mailbox access
	sender := transport.NewSMTPSender(transport.Config{
		Host:               cfg.SMTP.Host,
		Port:               cfg.SMTP.Port,
		Timeout:            cfg.SMTP.Timeout,
		InsecureSkipVerify: cfg.SMTP.InsecureSkipVerify,
	}, log)
	if cfg.SMTP.InsecureSkipVerify || cfg.IMAP.InsecureSkipVerify {
		log.Warn().Msg("TLS certificate verification is disabled")
	}

	dialer := mailbox.NewIMAPDialer(mailbox.Config{
		Host:               cfg.IMAP.Host,
		Port:               cfg.IMAP.Port,
		Timeout:            cfg.IMAP.Timeout,
		InsecureSkipVerify: cfg.IMAP.InsecureSkipVerify,
	}, log)

	// Delivery engine: recovery, queue rebuild, dispatch + reconcile loops
	eng := engine.New(store, sender, dialer, blobs, engine.Config{
		DispatchIdle:    cfg.Engine.DispatchIdle,
		PollInterval:    cfg.IMAP.PollInterval,
		SearchWindow:    cfg.IMAP.SearchWindow,
		ShutdownTimeout: cfg.Engine.ShutdownTimeout,
	}, log)
	if err := eng.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start delivery engine")
	}

	// HTTP server
	router := api.NewRouter(store, db, blobs, eng, log)
	addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("API server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	// Stop taking new requests first, then drain the engine so in-flight
	// deliveries finish with the store still reachable.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	eng.Stop()
	log.Info().Msg("scheduler stopped")
}
