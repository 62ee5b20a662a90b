package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Upstream data sync pipeline",
	Long:  "Incrementally syncs the weather, worldbank, and svi sources into climate.* Postgres tables.",
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

// ingestPool creates a pgxpool.Pool for the ingest subsystem.
// Uses cfg.Ingest.DatabaseURL, falling back to cfg.Store.DatabaseURL.
func ingestPool(ctx context.Context) (*pgxpool.Pool, error) {
	dsn := cfg.IngestDatabaseURL()
	if dsn == "" {
		return nil, eris.New("ingest: no database_url configured (set ingest.database_url or store.database_url)")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: create connection pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "ingest: ping database")
	}

	fmt.Println("Connected to database")
	return pool, nil
}
