package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/liveclass/classroom/internal/admission"
	"github.com/liveclass/classroom/internal/config"
	"github.com/liveclass/classroom/internal/logging"
	"github.com/liveclass/classroom/internal/recording"
	"github.com/liveclass/classroom/internal/server"
	"github.com/liveclass/classroom/internal/signaling"
	"github.com/liveclass/classroom/internal/version"
)

func main() {
	addr := flag.String("addr", "", "listen address (default $ADDR or :8080)")
	envFile := flag.String("env", "", "dotenv file to load (default .env)")
	flag.Parse()

	logger := logging.Init(slog.LevelInfo)

	if err := run(*addr, *envFile, logger); err != nil {
		logger.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

func run(addr, envFile string, logger *slog.Logger) error {
	cfg, err := config.LoadServer(config.ServerOptions{Addr: addr, EnvFile: envFile})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var checker admission.Checker = admission.AllowAll{}
	if cfg.DatabaseURL != "" {
		pg, err := admission.NewPostgresChecker(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pg.Close()
		checker = pg
		logger.Info("Enrollment checks enabled")
	}

	// 1. Create the Hub and run its event loop
	hub := signaling.NewHub(signaling.Options{
		JoinPolicy:             cfg.JoinPolicy,
		WhiteboardSyncEvery:    cfg.WhiteboardSyncEvery,
		WhiteboardSyncInterval: cfg.WhiteboardSyncInterval,
		Admission:              checker,
		Recorder:               recording.LogTrigger{Logger: logger},
		Logger:                 logger,
	})
	hubDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(hubDone)
	}()

	// 2. Serve HTTP until interrupted
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.NewRouter(hub, cfg, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting signaling server", "addr", cfg.Addr, "version", version.Version, "join_policy", cfg.JoinPolicy)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	stop()
	<-hubDone
	return err
}
