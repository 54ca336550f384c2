package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"healthdeck/internal/api"
	"healthdeck/internal/config"
	"healthdeck/internal/live"
	"healthdeck/internal/monitor"
	"healthdeck/internal/probe"
	"healthdeck/internal/storage"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the monitor and the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
}

func serve(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	fs := afero.NewOsFs()
	if err := seedServices(ctx, db, fs, cfg); err != nil {
		return err
	}

	mon := monitor.New(db, probe.NewRegistry())
	hub := live.NewHub(mon, live.Options{
		AllowOrigins: cfg.AllowOrigins,
		GraphHours:   storage.DefaultGraphHours,
		GraphPoints:  storage.DefaultGraphMaxPoints,
	})
	mon.SetNotifier(hub.Notify)

	if err := mon.Start(ctx); err != nil {
		return err
	}
	defer mon.Stop()
	go hub.Run(ctx)

	if cfg.WatchSeed && cfg.ServicesFile != "" {
		watcher, err := config.NewWatcher(cfg.ServicesFile, 0, func() {
			resyncServices(ctx, db, fs, cfg.ServicesFile, mon, hub)
		})
		if err != nil {
			log.Warn().Err(err).Msg("[Config] Services file will not be watched")
		} else {
			go watcher.Run(ctx)
			defer func() {
				stop()
				<-watcher.Done()
			}()
		}
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.NewRouter(mon, hub, cfg.AllowOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Listen).Msg("[Server] Listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		log.Info().Msg("[Server] Shutting down")
	}

	// Stream handlers only return once the hub drops their clients.
	hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("[Server] Graceful shutdown failed")
	}
	return nil
}

// seedServices applies the services file, or the built-in defaults when no file
// exists and the database is empty.
func seedServices(ctx context.Context, db *storage.DB, fs afero.Fs, cfg config.Config) error {
	services, err := config.LoadSeedServices(fs, cfg.ServicesFile)
	if err != nil {
		return err
	}
	if services != nil {
		_, err := db.SyncSeedServices(ctx, services)
		return err
	}
	if cfg.SeedDefaults {
		if _, err := db.SeedDefaults(ctx, config.DefaultServices()); err != nil {
			return err
		}
	}
	return nil
}

func resyncServices(ctx context.Context, db *storage.DB, fs afero.Fs, path string, mon *monitor.Monitor, hub *live.Hub) {
	services, err := config.LoadSeedServices(fs, path)
	if err != nil {
		log.Error().Err(err).Msg("[Config] Failed to reload services file")
		return
	}
	if services == nil {
		log.Warn().Str("config_path", path).Msg("[Config] Services file removed, keeping current services")
		return
	}
	report, err := db.SyncSeedServices(ctx, services)
	if err != nil {
		log.Error().Err(err).Msg("[Config] Failed to sync services file")
		return
	}
	if !report.Changed() {
		return
	}
	if err := mon.ReloadServices(ctx); err != nil {
		log.Error().Err(err).Msg("[Scheduler] Reload failed")
		return
	}
	hub.Notify()
}
