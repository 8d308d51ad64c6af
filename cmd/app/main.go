package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfrange/internal/api"
	cfgpkg "github.com/local/pdfrange/internal/config"
	logpkg "github.com/local/pdfrange/internal/logger"
	"github.com/local/pdfrange/internal/metrics"
	"github.com/local/pdfrange/internal/orchestrator"
	"github.com/local/pdfrange/internal/pdfdoc"
	"github.com/local/pdfrange/internal/preview"
	"github.com/local/pdfrange/internal/source"
	"github.com/local/pdfrange/internal/statuscheck"
	"github.com/local/pdfrange/internal/store"
	"github.com/local/pdfrange/internal/web"
)

func main() {
	cfg := cfgpkg.FromEnv()

	// Init logging
	if err := logpkg.Init(logpkg.Options{
		Level:        cfg.Logging.Level,
		Pretty:       cfg.Logging.Pretty,
		File:         cfg.Logging.File,
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
		AxiomAPIKey:  cfg.Axiom.APIKey,
		AxiomOrgID:   cfg.Axiom.OrgID,
		AxiomDataset: cfg.Axiom.Dataset,
		AxiomFlush:   cfg.Axiom.FlushInterval,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
	}
	defer logpkg.Close()

	metrics.Init()

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	engine := pdfdoc.NewPDFCPU(pdfdoc.Options{Strict: cfg.PDF.Validation == "strict"})
	orch := orchestrator.New(engine)

	// Session store
	var (
		sessions store.Store
		pinger   statuscheck.RedisPinger
	)
	switch cfg.Sessions.Backend {
	case "redis":
		rs, err := store.NewRedis(rootCtx, orch, store.RedisOptions{
			URL:     cfg.Sessions.RedisURL,
			TTL:     cfg.Sessions.TTL,
			LockTTL: cfg.Sessions.LockTTL,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		sessions, pinger = rs, rs
	default:
		ms := store.NewMemory(orch, cfg.Sessions.TTL)
		go ms.RunSweeper(rootCtx, cfg.Sessions.SweepInterval)
		sessions = ms
	}
	defer sessions.Close()

	fetcher := source.New(source.Options{
		AllowFile:   cfg.Source.AllowFile,
		AllowHTTP:   cfg.Source.AllowHTTP,
		HTTPTimeout: cfg.Source.HTTPTimeout,
		MaxBytes:    cfg.Server.MaxUploadBytes,
		S3: source.S3Options{
			Region:        cfg.Source.Region,
			AccessKey:     cfg.Source.AccessKey,
			SecretKey:     cfg.Source.SecretKey,
			Endpoint:      cfg.Source.S3Endpoint,
			DefaultBucket: cfg.Source.DefaultBucket,
		},
	})

	checker := statuscheck.New(statuscheck.Options{
		Redis:    pinger,
		S3:       fetcher,
		Sessions: sessions,
	})

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), api.RequestLogger())

	api.New(api.Config{
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Preview: preview.Options{
			DPI:     cfg.Preview.DPI,
			Quality: cfg.Preview.Quality,
		},
	}, sessions, fetcher, checker).SetupRoutes(r)

	if cfg.Server.WebEnabled {
		ui, err := web.New(web.Options{MaxUploadMB: cfg.Server.MaxUploadBytes >> 20})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load web templates")
		}
		ui.RegisterRoutes(r)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().
			Str("port", cfg.Server.Port).
			Str("sessions", cfg.Sessions.Backend).
			Str("validation", cfg.PDF.Validation).
			Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutting down")
	cancelRoot()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	log.Info().Msg("shutdown complete")
}
