package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/appetiteclub/kds/cmd/utils/internal/commands"
	"github.com/appetiteclub/kds/pkg/config"
	"github.com/appetiteclub/kds/pkg/logging"
)

const (
	appName    = "kds-utils"
	appVersion = "0.1.0"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "seed-demo":
		cfg, logger := load(append(args, "--seed.demo=true"))
		if err := commands.SeedDemo(ctx, cfg, logger); err != nil {
			log.Fatalf("❌ Demo seeding failed: %v", err)
		}
		logger.Info("✅ Demo seeding completed successfully")

	case "reset-db":
		cfg, logger := load(args)
		if err := commands.ResetDB(ctx, cfg, logger); err != nil {
			log.Fatalf("❌ Database reset failed: %v", err)
		}
		logger.Info("✅ Database reset completed successfully")

	case "watch":
		logger := logging.NewLogger(os.Getenv("KDS_LOG_LEVEL"))
		if err := commands.Watch(ctx, args, os.Stdout, logger); err != nil {
			log.Fatalf("❌ Watch failed: %v", err)
		}

	case "act":
		logger := logging.NewLogger(os.Getenv("KDS_LOG_LEVEL"))
		if err := commands.Act(ctx, args, os.Stdout, logger); err != nil {
			log.Fatalf("❌ Command failed: %v", err)
		}

	case "version":
		fmt.Printf("%s version %s\n", appName, appVersion)

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func load(args []string) (*config.Config, logging.Logger) {
	cfg, err := config.Load("KDS", args)
	if err != nil {
		log.Fatalf("Cannot load config: %v", err)
	}
	logLevel, _ := cfg.GetString("log.level")
	return cfg, logging.NewLogger(logLevel)
}

func printUsage() {
	fmt.Printf(`%s - kitchen display utility commands

Usage:
  %s <command> [options]

Commands:
  seed-demo    Create demo stations and route demo orders to them
  reset-db     Remove all stations, orders and routing entries - USE WITH CAUTION
  watch        Follow the live feed (--url, --role, --station, --table, --tables)
  act          Send a display command: act <start|complete|recall|bump|bump-table> <id>
  version      Print version information
  help         Show this help message

Environment Variables:
  KDS_DB_DRIVER       System of record: mongo, postgres or memory (default: mongo)
  KDS_DB_MONGO_URL    MongoDB connection URL
  KDS_BROKER_KIND     Message bus: nats, amqp or local (default: nats)
  KDS_LOG_LEVEL       Log level: debug, info, error (default: info)

Examples:
  %s seed-demo --db.driver=postgres
  %s watch --role=station --station=<station-id>
  %s act bump-table <table-id>

`, appName, appName, appName, appName, appName)
}
