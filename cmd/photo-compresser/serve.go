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

	"github.com/spf13/cobra"

	"github.com/Ewasince/photo-compresser/internal/cache"
	"github.com/Ewasince/photo-compresser/internal/profile"
	"github.com/Ewasince/photo-compresser/internal/viewer"
	"github.com/Ewasince/photo-compresser/internal/web"
)

var port int

// serveCmd starts the viewer API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the viewer API server",
	Long: `Starts an HTTP server that can:
- Start and stop compression runs, with progress over a websocket
- Read reports and look up image pairs
- Explain profile selection for a single image
- Render cached previews and side by side comparisons

The profile file is reloaded when it changes on disk.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func init() {
	serveCmd.Flags().IntVar(&port, "port", 8080, "port to run the server on")
}

// runServe starts the server and handles graceful shutdown.
func runServe(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = port
	}

	log := setupLogger(cfg)

	live, err := profile.NewLiveRegistry(cfg.ProfilesFile, log)
	if err != nil {
		return err
	}
	if err := live.Watch(); err != nil {
		log.Warnf("Profile hot reload disabled: %v", err)
	}
	defer live.Close()

	cacheCfg, err := cache.LoadConfig(cfg.Cache.ConfigFile)
	if err != nil {
		log.Warnf("Using default cache limits: %v", err)
	}

	archiver, err := newArchiver(cfg, log)
	if err != nil {
		return err
	}

	ext := newExtractor(cfg, log)
	defer ext.Close()

	server := web.NewServer(cfg, log, web.Deps{
		Pipeline:  newPipeline(cfg, log, ext),
		Extractor: ext,
		Profiles:  live,
		Viewer:    viewer.New(log, cacheCfg),
		Archiver:  archiver,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	fmt.Printf("photo-compresser API listening on http://localhost:%d\n", cfg.Server.Port)
	fmt.Printf("Press Ctrl+C to stop the server\n\n")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}
	fmt.Println("\nShutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	fmt.Println("Server stopped")
	return nil
}
