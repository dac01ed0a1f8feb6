package main

import (
	"fmt"
	"os"

	"github.com/bizdesk/bizdesk/internal/config"
	"github.com/bizdesk/bizdesk/internal/repository/postgres"
	"github.com/bizdesk/bizdesk/migrations"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Connect to database
	db, err := postgres.New(cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	fmt.Printf("Connected to %s database\n", cfg.Database.Driver)

	applied, err := postgres.RunMigrations(db, migrations.GetFS())
	for _, name := range applied {
		fmt.Printf("✓ Migration %s completed successfully\n", name)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		db.Close()
		os.Exit(1)
	}

	if len(applied) == 0 {
		fmt.Println("Database is up to date")
		return
	}
	fmt.Printf("\nApplied %d migration(s)\n", len(applied))
}
