package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"image-converter/internal/api"
	"image-converter/internal/capture"
	"image-converter/internal/config"
	"image-converter/internal/convert"
	"image-converter/internal/workflow"
)

func main() {
	cfg := config.Load()

	converter := convert.NewClient(cfg.Converter.BaseURL, cfg.Converter.Timeout)

	var device capture.Device = capture.NoDevice{}
	if cfg.Camera.SnapshotURL != "" {
		device = capture.NewSnapshotDevice(cfg.Camera.SnapshotURL, nil)
	}

	sessions := api.NewSessionManager(func() *workflow.Controller {
		return workflow.NewController(converter, capture.NewCamera(device, cfg.Camera.MaxDimension))
	}, cfg.SessionIdleTimeout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go sessions.Run(ctx)

	server := api.NewServer(sessions, cfg.MaxImageBytes)
	page, err := api.NewPageHandler(filepath.Join(cfg.WebDir, "index.html"), api.PageData{
		Title:            "Image Converter Pro",
		MaxImageMB:       cfg.MaxImageBytes >> 20,
		CameraConfigured: cfg.Camera.SnapshotURL != "",
	})
	if err != nil {
		log.Fatalf("load page: %v", err)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newMux(server.Handler(), page),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Converter.Timeout + 15*time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	log.Printf("listening on :%s; converter=%s", cfg.Port, cfg.Converter.BaseURL)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server failed: %v", err)
	}
}

// newMux mounts the API under /api/ and the page at the root.
func newMux(apiHandler, page http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/api/", apiHandler)
	mux.Handle("/", page)
	return mux
}
