package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/vncsmyrnk/ballot/internal/adapters/repository/postgres"
	"github.com/vncsmyrnk/ballot/internal/config"
)

// Runs one embedded migration by name, e.g. `migrations create_polls.up`,
// or every up migration with `migrations all`.
func main() {
	if len(os.Args) < 2 {
		log.Fatal("a migration name is required.")
	}
	migrationName := os.Args[1]

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := postgres.Open(ctx, config.PostgresFromEnv().ConnString())
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	if migrationName == "all" {
		if err := postgres.Migrate(ctx, db); err != nil {
			log.Fatal(err)
		}
		log.Println("All migrations executed successfully.")
		return
	}

	file, err := postgres.MigrateByName(ctx, db, migrationName)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("Migration file %s executed successfully.", file)
}
