package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"ms-registration/internal/cleanup"
	"ms-registration/internal/config"
	"ms-registration/internal/logger"
	regdb "ms-registration/internal/registration/db"
	"ms-registration/internal/tempsession"
)

// One-shot cleanup runner for cron setups where the in-process ticker in the
// gateway is not wanted. Sweeps expired temp sessions and stale pending
// registrations, prints the counts and exits.
func main() {
	log := logger.NewLogger()
	defer log.Close()

	staleAfter := flag.Duration("stale-after", 0, "override for the pending registration cutoff, e.g. 48h")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}

	cfg := config.Load()
	window := cfg.Cleanup.StaleAfter
	if *staleAfter > 0 {
		window = *staleAfter
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.Database.Username, cfg.Database.Password,
		cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)

	connector := pgdriver.NewConnector(pgdriver.WithDSN(dsn))
	sqldb := sql.OpenDB(connector)
	defer sqldb.Close()

	if err := sqldb.Ping(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to Postgres: %v", err))
	}
	bunDB := bun.NewDB(sqldb, pgdialect.New())

	sessions := tempsession.NewStore(bunDB, nil, cfg.Session.TTL, log)
	registrationDB := regdb.NewDB(bunDB, log)
	job := cleanup.NewJob(sessions, registrationDB, window, log)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	result, err := job.Run(ctx)
	if err != nil {
		log.Error("CLEANUP", fmt.Sprintf("Cleanup finished with errors: %v", err))
	}
	if result != nil {
		log.LogCleanup("SUMMARY", fmt.Sprintf("removed %d expired sessions, %d incomplete registrations",
			result.ExpiredTempData, result.IncompleteRegistrations))
	}
}
