package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/procurement-backend/pkg/config"
	"github.com/angelmondragon/procurement-backend/pkg/db"
	"github.com/angelmondragon/procurement-backend/pkg/logger"
	"github.com/angelmondragon/procurement-backend/pkg/migrate"
)

const sourceDir = "pkg/migrate/migrations"

const usage = `usage: migrate <command> [flags]

commands:
  up                  apply every pending migration
  down                roll back the last migration
  status              list applied and pending migrations
  to -version V       migrate up or down to version V
  create -name N      write an empty migration file
  validate            check migration file names and markers

db commands read the embedded set unless -dir is given`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	command := os.Args[1]

	fs := flag.NewFlagSet(command, flag.ExitOnError)
	dir := fs.String("dir", "", "migrations directory (default: embedded, or "+sourceDir+" for create/validate)")
	name := fs.String("name", "", "migration name for create")
	version := fs.String("version", "", "target version YYYYMMDDHHMMSS for to")
	_ = fs.Parse(os.Args[2:])

	switch command {
	case "create":
		path, err := migrate.CreateSQLMigration(orDefault(*dir, sourceDir), *name)
		exitOn(err)
		fmt.Println("created", path)
		return
	case "validate":
		exitOn(migrate.ValidateDir(orDefault(*dir, sourceDir)))
		fmt.Println("migrations ok")
		return
	case "up", "down", "status", "to":
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()
	cfg, err := config.Load()
	requireResource(logg, "config", err)
	if cfg.DB.IsSQLite() {
		exitOn(errors.New("goose migrations target postgres; sqlite schemas sync from models at boot"))
	}

	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "command": command})
	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(logg, "database", err)
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	requireResource(logg, "sql handle", err)
	runner, err := migrate.NewRunner(sqlDB, migrate.Source(*dir))
	requireResource(logg, "migration source", err)

	switch command {
	case "up":
		results, err := runner.Up(ctx)
		exitOn(err)
		printResults(results)
	case "down":
		result, err := runner.Down(ctx)
		if errors.Is(err, goose.ErrNoNextVersion) {
			fmt.Println("nothing to roll back")
			return
		}
		exitOn(err)
		printResults([]*goose.MigrationResult{result})
	case "status":
		statuses, err := runner.Status(ctx)
		exitOn(err)
		printStatus(statuses)
	case "to":
		results, err := runner.MigrateTo(ctx, *version)
		exitOn(err)
		printResults(results)
	}
}

func printResults(results []*goose.MigrationResult) {
	if len(results) == 0 {
		fmt.Println("schema already at target")
		return
	}
	for _, r := range results {
		fmt.Printf("%-4s %d %s (%s)\n", r.Direction, r.Source.Version, r.Source.Path, r.Duration.Round(time.Millisecond))
	}
}

func printStatus(statuses []*goose.MigrationStatus) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tSTATE\tAPPLIED AT\tFILE")
	for _, s := range statuses {
		applied := "-"
		if !s.AppliedAt.IsZero() {
			applied = s.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.Source.Version, s.State, applied, s.Source.Path)
	}
	tw.Flush()
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func exitOn(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, "migrate:", err)
	os.Exit(1)
}

func requireResource(logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), "resource not working: "+resource, err)
	os.Exit(1)
}
