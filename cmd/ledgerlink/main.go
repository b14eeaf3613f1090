package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/finhooks/ledgerlink/internal/config"
	"github.com/finhooks/ledgerlink/internal/deliveries"
	"github.com/finhooks/ledgerlink/internal/log"
	"github.com/finhooks/ledgerlink/internal/notion"
	"github.com/finhooks/ledgerlink/internal/recon"
	"github.com/finhooks/ledgerlink/internal/storage"
	"github.com/finhooks/ledgerlink/internal/token"
	"github.com/finhooks/ledgerlink/internal/webhook"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "start":
		os.Exit(runStart(args))
	case "version":
		fmt.Printf("ledgerlink version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`ledgerlink - Notion webhook gateway linking transactions to day pages

Usage:
  ledgerlink <command> [flags]

Commands:
  start       Start the webhook server in foreground
  version     Show version information
  help        Show this help message

Start flags:
  --config    Path to config.yaml (default: ./config.yaml)
`)
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", "./config.yaml", "path to config file")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	// Optional .env; config interpolation picks the variables up.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("starting", "service", cfg.Service.Name, "version", version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		logger.Error("failed to open state database", "error", err)
		return 1
	}
	defer func() { _ = db.Close() }()

	tokens := token.NewStore(db, cfg.Notion.VerificationToken)

	client := notion.NewClient(notion.ClientConfig{
		Token:   cfg.Notion.Token,
		BaseURL: cfg.Notion.BaseURL,
		Version: cfg.Notion.Version,
	})

	engine := recon.New(client, recon.Config{
		DayDatabaseID:       cfg.Notion.DayDatabaseID,
		TransactionMarker:   cfg.Notion.TransactionMarker,
		DateMarker:          cfg.Notion.DateMarker,
		DateProperty:        cfg.Notion.DateProperty,
		DayRelationProperty: cfg.Notion.DayRelationProperty,
		DayTitleProperty:    cfg.Notion.DayTitleProperty,
	})

	dispatcher := webhook.NewDispatcher(client, engine)

	maxBodySize, err := config.ParseMaxBodySize(cfg.Webhook.MaxBodySize)
	if err != nil {
		logger.Error("invalid max body size", "error", err)
		return 1
	}

	server := webhook.New(webhook.Config{
		Listen:          cfg.Service.Listen,
		Path:            cfg.Webhook.Path,
		SignatureHeader: cfg.Webhook.SignatureHeader,
		MaxBodySize:     maxBodySize,
		ServiceName:     cfg.Service.Name,
		Version:         version,
		Checks: webhook.Checks{
			NotionTokenSet:        cfg.Notion.Token != "",
			DayDatabaseConfigured: cfg.Notion.DayDatabaseID != "",
		},
	}, tokens, dispatcher, deliveries.New(db), log.WithComponent("webhook"))

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("webhook server failed", "error", err)
		return 1
	}

	logger.Info("shutdown complete")
	return 0
}
