package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/assetgatehq/assetgate/internal/api"
	"github.com/assetgatehq/assetgate/internal/audit"
	"github.com/assetgatehq/assetgate/internal/config"
	"github.com/assetgatehq/assetgate/internal/gitsync"
	"github.com/assetgatehq/assetgate/internal/scheduler"
	"github.com/assetgatehq/assetgate/internal/storage"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "sync":
		runSync(os.Args[2:])
	case "token":
		runToken(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`assetgate - confined asset gateway

Usage:
  assetgate <command> [options]

Commands:
  serve    Start the asset gateway (HTTP API + scheduler)
  sync     Run a one-shot git source sync and exit
  token    Mint a write token for the upload API

Options:
  -config string   Path to config file (default "config.yaml")

Examples:
  assetgate serve -config config.yaml
  assetgate sync -config config.yaml
  assetgate token -config config.yaml -ttl 1h`)
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to config file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := os.MkdirAll(cfg.RootDir, 0755); err != nil {
		log.Fatalf("failed to create asset root: %v", err)
	}
	if err := os.MkdirAll(cfg.StagingDir, 0755); err != nil {
		log.Fatalf("failed to create staging dir: %v", err)
	}

	// Initialize components
	store := storage.New(cfg.RootDir, cfg.StagingDir)

	var opts []api.ServerOption
	if cfg.Audit.Enabled {
		aud, err := audit.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Audit.MaxEntries)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer aud.Close()
		opts = append(opts, api.WithAudit(aud))
	}

	srv, err := api.New(cfg, store, opts...)
	if err != nil {
		log.Fatalf("failed to create server: %v", err)
	}

	// Start scheduler
	syncer := gitsync.New(cfg)
	sched := scheduler.New(cfg, syncer, store)
	if syncer.Enabled() {
		// Populate the root before accepting traffic.
		sched.RunSync()
	}
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Handle shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Starting assetgate server on %s (root %s)", cfg.ListenAddr, cfg.RootDir)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(ctx)
}

func runSync(args []string) {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to config file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	syncer := gitsync.New(cfg)
	if !syncer.Enabled() {
		log.Fatalf("no git source configured")
	}

	sha, err := syncer.Sync(context.Background())
	if err != nil {
		log.Fatalf("sync failed: %v", err)
	}
	fmt.Println(sha)
}

func runToken(args []string) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to config file")
	ttl := fs.Duration("ttl", 0, "token lifetime (defaults to api_auth.write_token_ttl)")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	token, err := mintToken(cfg, *ttl)
	if err != nil {
		log.Fatalf("failed to mint token: %v", err)
	}
	fmt.Println(token)
}

func mintToken(cfg *config.Config, ttl time.Duration) (string, error) {
	if cfg.APIAuth.WriteSecret == "" {
		return "", fmt.Errorf("api_auth.write_secret is not configured")
	}
	if ttl <= 0 {
		ttl = cfg.APIAuth.WriteTokenTTL
	}
	return api.MintWriteToken(cfg.APIAuth.WriteSecret, cfg.APIAuth.WriteIssuer, ttl)
}
