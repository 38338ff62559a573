package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"job-route-service/internal/adapters/repositories"
	"job-route-service/internal/app"
	"job-route-service/internal/config"
	"log"

	"github.com/joho/godotenv"
)

// dbtool initializes the schema of the configured store and optionally seeds jobs.
func main() {
	seed := flag.Bool("seed", true, "load jobs from SEED_PATH after creating the schema")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()

	log.Printf("Initializing database schema mode=%s...", cfg.Mode)
	db, dialect, err := app.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatalf("schema initialization failed: %v", err)
	}
	defer db.Close()
	log.Println("Schema ready.")

	if !*seed {
		return
	}

	if err := seedJobs(ctx, db, dialect, cfg.SeedPath); err != nil {
		log.Fatalf("seeding failed: %v", err)
	}
}

func seedJobs(ctx context.Context, db *sql.DB, dialect repositories.Dialect, seedPath string) error {
	log.Printf("Seeding database from %s...", seedPath)
	n, err := repositories.SeedFromJSON(ctx, db, dialect, seedPath)
	if err != nil {
		return fmt.Errorf("seed %q: %w", seedPath, err)
	}
	log.Printf("Seeding complete. jobs=%d", n)
	return nil
}
