package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/tsunghuanghsieh/db-trigger-ws-sse/internal/adapter/postgres"
	"github.com/tsunghuanghsieh/db-trigger-ws-sse/internal/config"
)

// runMigrate dispatches migration subcommands (up, down, version).
func runMigrate(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printMigrateHelp()
		return nil
	}

	switch args[0] {
	case "up":
		return runMigrateUp()
	case "down":
		return runMigrateDown(args[1:])
	case "version":
		return runMigrateVersion()
	default:
		printMigrateHelp()
		return fmt.Errorf("unknown migrate command: %s", args[0])
	}
}

func printMigrateHelp() {
	fmt.Fprintf(os.Stderr, `Usage: counterd migrate <command> [options]

Commands:
  up        Apply all pending migrations
  down      Roll back migrations
  version   Print the current migration version
  help      Show this help message

Examples:
  counterd migrate up
  counterd migrate down --steps 1
  counterd migrate version
`)
}

func loadDSN() (string, error) {
	cfg, err := config.Load()
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	return cfg.Postgres.DSN, nil
}

func runMigrateUp() error {
	dsn, err := loadDSN()
	if err != nil {
		return err
	}
	if err := postgres.RunMigrations(context.Background(), dsn); err != nil {
		return err
	}
	fmt.Println("migrations applied")
	return nil
}

func runMigrateDown(args []string) error {
	fs := flag.NewFlagSet("down", flag.ContinueOnError)
	steps := fs.Int("steps", 1, "number of migrations to roll back")
	if err := fs.Parse(args); err != nil {
		return err
	}

	dsn, err := loadDSN()
	if err != nil {
		return err
	}
	if err := postgres.RollbackMigrations(context.Background(), dsn, *steps); err != nil {
		return err
	}
	fmt.Printf("rolled back %d migration(s)\n", *steps)
	return nil
}

func runMigrateVersion() error {
	dsn, err := loadDSN()
	if err != nil {
		return err
	}
	version, err := postgres.MigrationVersion(context.Background(), dsn)
	if err != nil {
		return err
	}
	fmt.Printf("migration version: %d\n", version)
	return nil
}
