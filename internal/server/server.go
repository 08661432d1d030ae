// Package server hosts the local HTTP API for the engine.
package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	api "github.com/stepherg/gestaltmgr/internal/http"
	"github.com/stepherg/gestaltmgr/manager"
)

// Config configures the engine's HTTP server.
type Config struct {
	ListenAddr   string           // address to bind (e.g. 127.0.0.1:8090)
	Manager      *manager.Manager // required
	Logger       *log.Logger      // optional; defaults to log.Default()
	ReadTimeout  time.Duration    // optional
	WriteTimeout time.Duration    // optional
	IdleTimeout  time.Duration    // optional
}

var ErrNilManager = errors.New("server: manager is nil")

// Start launches the HTTP server. It returns the *http.Server, a channel
// that receives a terminal error (if any), and an error for immediate
// startup issues. The server stops when the supplied context is canceled.
//
// The apply and reset endpoints block for the duration of a transaction, so
// the write timeout is left generous; transfers to the device plus its
// reboot acknowledgment can take minutes.
func Start(ctx context.Context, cfg Config) (*http.Server, <-chan error, error) {
	if cfg.Manager == nil {
		return nil, nil, ErrNilManager
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:8090"
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	hub := api.NewHub()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/devices", api.DevicesHandler(cfg.Manager))
	mux.HandleFunc("/api/devices/refresh", api.RefreshHandler(cfg.Manager))
	mux.HandleFunc("/api/devices/select", api.SelectHandler(cfg.Manager))
	mux.HandleFunc("/api/snapshot", api.SnapshotHandler(cfg.Manager))
	mux.HandleFunc("/api/apply", api.ApplyHandler(cfg.Manager, hub))
	mux.HandleFunc("/api/reset", api.ResetHandler(cfg.Manager, hub))
	mux.HandleFunc("/api/progress", api.ProgressHandler(hub))

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  durationOr(cfg.ReadTimeout, 10*time.Second),
		WriteTimeout: durationOr(cfg.WriteTimeout, 10*time.Minute),
		IdleTimeout:  durationOr(cfg.IdleTimeout, 60*time.Second),
	}

	errCh := make(chan error, 1)

	go func() {
		cfg.Logger.Printf("engine API listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Shutdown watcher
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	return srv, errCh, nil
}

func durationOr(v time.Duration, d time.Duration) time.Duration {
	if v <= 0 {
		return d
	}
	return v
}
