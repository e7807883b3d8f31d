package main

import (
	"context"
	"log"

	"memberpass-be/internal/bootstrap"
	"memberpass-be/internal/config"
	"memberpass-be/pkg/database"

	"github.com/fatih/color"
)

// sweep closes abandoned checkouts and lapsed memberships. It is meant to
// run from cron alongside the API.
func main() {
	cfg := config.Load()
	// role commands must settle before the process exits
	cfg.Worker.Dispatcher = "inline"

	db, err := database.Open(cfg.Database.Connection, cfg.Database.SqlitePath)
	if err != nil {
		log.Fatal(color.RedString("Failed to connect to database: %v", err))
	}

	container := bootstrap.NewContainer(db, cfg)
	defer container.Close()

	ctx := context.Background()
	report, err := container.Sweep.Run(ctx)
	if err != nil {
		log.Fatal(color.RedString("Sweep failed: %v", err))
	}

	resent, err := container.Relay.RunOnce(ctx)
	if err != nil {
		log.Printf("%s %v", color.YellowString("Outbox relay failed:"), err)
	}

	color.Green("Sweep complete")
	color.Cyan("  timed out: %d", report.TimedOut)
	color.Cyan("  expired:   %d", report.Expired)
	color.Cyan("  skipped:   %d", report.Skipped)
	color.Cyan("  resent:    %d", resent)
}
