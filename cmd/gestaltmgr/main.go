package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/stepherg/gestaltmgr"
	"github.com/stepherg/gestaltmgr/internal/server"
	"github.com/stepherg/gestaltmgr/manager"
	"github.com/stepherg/gestaltmgr/restore"
	"github.com/stepherg/gestaltmgr/runtime"
	"github.com/stepherg/gestaltmgr/tweak"
)

// gestaltmgr: local tweak-application engine. It discovers attached
// devices through the usbmux bridge, serves the engine API, and submits
// restore transactions through the restore gateway.
func main() {
	opts := gestaltmgr.DefaultOptions()
	if v := os.Getenv("GESTALTMGR_WIFI"); v == "0" || v == "false" {
		opts.ApplyOverWiFi = false
	}
	if v := os.Getenv("GESTALTMGR_MIN_VERSION"); v != "" {
		opts.MinVersion = gestaltmgr.ParseVersion(v)
	}
	opts.CatalogDir = os.Getenv("GESTALTMGR_CATALOG_DIR")

	muxURL := envOr("GESTALTMGR_MUX_URL", "http://127.0.0.1:8085")
	restoreURL := envOr("GESTALTMGR_RESTORE_URL", "ws://127.0.0.1:8086/restore")
	addr := envOr("GESTALTMGR_ADDR", "127.0.0.1:8090")

	mux, err := runtime.NewMuxAdapter(runtime.MuxOptions{BaseURL: muxURL})
	if err != nil {
		log.Fatalf("mux adapter: %v", err)
	}

	catalog := tweak.DefaultCatalog()
	defs, err := tweak.LoadDefinitionDir(opts.CatalogDir)
	if err != nil {
		log.Fatalf("catalog definitions: %v", err)
	}
	if err := catalog.Extend(defs); err != nil {
		log.Fatalf("catalog definitions: %v", err)
	}
	if len(defs) > 0 {
		log.Printf("loaded %d tweak definitions from %s", len(defs), opts.CatalogDir)
	}

	channel := runtime.NewRestoreAdapter(restoreURL)
	if err := channel.Connect(context.Background()); err != nil {
		log.Fatalf("restore gateway: %v", err)
	}
	defer channel.Close()

	registry := gestaltmgr.NewRegistry(mux, mux, opts, nil)
	defer registry.Close()
	mgr := manager.New(registry, catalog, restore.NewOrchestrator(channel, nil), opts)

	// Initial discovery to seed the registry; per-device failures are
	// notices, not fatal.
	notices, err := mgr.Refresh(context.Background())
	if err != nil {
		log.Printf("initial refresh failed: %v", err)
	}
	for _, n := range notices {
		log.Printf("device %s skipped: %v", n.Serial, n.Err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	_, errCh, err := server.Start(ctx, server.Config{ListenAddr: addr, Manager: mgr})
	if err != nil {
		log.Fatalf("failed to start engine API: %v", err)
	}
	go func() {
		if err := <-errCh; err != nil {
			log.Printf("engine API error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	log.Printf("gestaltmgr running on %s (current device: %s)", addr, registry.CurrentName())
	<-sigCh
	log.Printf("shutdown signal received; stopping server")
	cancel()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
