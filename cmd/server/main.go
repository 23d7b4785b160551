// Package main is the entry point for the antigravity gateway: a
// multi-protocol proxy that exposes OpenAI, Gemini, and Claude compatible
// HTTP surfaces over a pool of antigravity upstream credentials.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/openrelay/antigravity-gateway/internal/antigravity"
	"github.com/openrelay/antigravity-gateway/internal/config"
	"github.com/openrelay/antigravity-gateway/internal/gateway"
	"github.com/openrelay/antigravity-gateway/internal/logging"
	"github.com/openrelay/antigravity-gateway/internal/memory"
	"github.com/openrelay/antigravity-gateway/internal/quota"
	"github.com/openrelay/antigravity-gateway/internal/rotator"
	"github.com/openrelay/antigravity-gateway/internal/sigcache"
	"github.com/openrelay/antigravity-gateway/internal/store"
	"github.com/openrelay/antigravity-gateway/internal/upstream"
)

var Version = "dev"

func main() {
	var configPath string
	var envPath string
	flag.StringVar(&configPath, "config", "config.json", "Configuration file path")
	flag.StringVar(&envPath, "env", ".env", "Environment override file path")
	flag.Parse()

	cfg, err := config.Load(configPath, envPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Options{
		Level:    cfg.LogLevel,
		FilePath: cfg.LogFile,
		Console:  true,
	})
	logger.Infof("antigravity gateway %s starting on port %d", Version, cfg.Port)

	st, err := store.Open(filepath.Join(cfg.DataDir, "accounts.json"))
	if err != nil {
		logger.Fatalf("open credential store: %v", err)
	}
	defer st.Close()

	quotaCache, err := quota.Open(filepath.Join(cfg.DataDir, "quotas.json"))
	if err != nil {
		logger.Fatalf("open quota cache: %v", err)
	}
	defer quotaCache.Close()

	sigCache := sigcache.New()

	regulator := memory.New(cfg.MemoryHighMB)
	regulator.Subscribe(quotaCache)
	regulator.Subscribe(sigCache)
	regulator.Start()
	defer regulator.Stop()

	oauthClient := antigravity.NewClient(nil)
	rot := rotator.New(st, oauthClient, cfg)
	upstreamClient := upstream.NewClient(nil)

	srv := gateway.New(cfg, rot, upstreamClient, quotaCache, sigCache, regulator, logger)

	watcher, err := config.NewWatcher(configPath, func(next *config.Config) {
		logger.Info("configuration reloaded")
		srv.SetConfig(next)
		rot.UpdateRotationConfig(next.RotationStrategy, next.RequestCountPerToken, next.SkipProjectDiscovery)
	})
	if err != nil {
		logger.Warnf("config watcher unavailable: %v", err)
	} else {
		defer watcher.Close()
	}

	// Chat generations are effectively unbounded; keep the server's own
	// read/write timeouts disabled and rely on the SSE heartbeat to keep
	// intermediaries from cutting idle connections.
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: srv.Router(),
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Warnf("shutdown: %v", err)
	}
}
